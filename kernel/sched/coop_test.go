package sched

import "testing"

func TestCooperativeSchedulerTracksCurrentThread(t *testing.T) {
	s := NewCooperativeScheduler()
	a := s.NewThread()
	if s.CurrentThread() != a {
		t.Fatal("expected the newly created thread to become current")
	}

	b := s.NewThread()
	if s.CurrentThread() != b {
		t.Fatal("expected the second thread to become current")
	}
}

func TestResumeOrderIsFIFO(t *testing.T) {
	s := NewCooperativeScheduler()
	a := s.NewThread()
	b := s.NewThread()
	c := s.NewThread()

	s.ResumeFromBlocking(a)
	s.ResumeFromBlocking(b)
	s.ResumeFromBlocking(c)

	order := s.ResumedOrder()
	if len(order) != 3 || order[0] != a || order[1] != b || order[2] != c {
		t.Fatalf("expected resume order [a b c]; got %v", order)
	}
}

func TestWaitingForIOFlag(t *testing.T) {
	s := NewCooperativeScheduler()
	th := s.NewThread()

	if th.WaitingForIO() {
		t.Fatal("expected a fresh thread to not be waiting for IO")
	}
	th.SetWaitingForIO(true)
	if !th.WaitingForIO() {
		t.Fatal("expected WaitingForIO to reflect SetWaitingForIO(true)")
	}
}
