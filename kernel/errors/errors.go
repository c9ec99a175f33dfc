package errors

// KernelError is a trivial implementation of a kernel error message that doesn't
// require a memory allocation. It is used as an alternative to errors.New.
type KernelError string

// Error implements the error interface.
func (err KernelError) Error() string {
	return string(err)
}

// Sentinel errors shared by the memory, disk and file system subsystems.
// Each maps onto one of the documented error categories: a NotFound result
// is returned alongside a false/zero value rather than panicking, an
// Exhausted result is returned as a sentinel zero value, and a Spurious
// result is silently swallowed by its caller.
var (
	ErrInvalidParamValue = KernelError("invalid parameter value")

	// ErrPoolExhausted is returned when a frame pool or VM pool cannot
	// satisfy a request because it no longer (or never did) have a
	// contiguous region large enough.
	ErrPoolExhausted = KernelError("pool exhausted")

	// ErrNotFound is returned when a lookup (file, region, pool) fails to
	// locate its target.
	ErrNotFound = KernelError("not found")

	// ErrNotHeadOfSequence is raised when a release operation is handed a
	// frame that is not the first frame of an allocated run.
	ErrNotHeadOfSequence = KernelError("frame is not the head of an allocated sequence")

	// ErrPoolNotOwner is raised when no registered pool claims a frame
	// passed to ReleaseFrames.
	ErrPoolNotOwner = KernelError("no registered pool owns this frame")

	// ErrAlreadyMounted / ErrNotMounted name the states of the two-step
	// Format/Mount file system lifecycle; no function in this module
	// returns them.
	ErrAlreadyMounted = KernelError("file system already mounted")
	ErrNotMounted     = KernelError("file system not mounted")

	// ErrFileExists / ErrFileNotFound name file table failures; no function
	// in this module returns them (CreateFile and DeleteFile report
	// failure as false).
	ErrFileExists   = KernelError("file already exists")
	ErrFileNotFound = KernelError("file not found")

	// ErrDiskNotReady is the cause fs.Mount wraps when the disk it is given
	// reports zero capacity.
	ErrDiskNotReady = KernelError("disk not ready")
)
