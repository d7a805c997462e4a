package internal

import "sync/atomic"

type Scheduler struct {
	// incremented each time a pass completes
	clock atomic.Uint64

	// set while a spin owns the scheduler
	running atomic.Bool
}

func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Acquire claims the scheduler, false if someone else is running it.
func (s *Scheduler) Acquire() bool {
	return s.running.CompareAndSwap(false, true)
}

func (s *Scheduler) Release() {
	s.running.Store(false)
}

func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Tick records a completed pass and returns the new time.
func (s *Scheduler) Tick() uint64 {
	return s.clock.Add(1)
}

func (s *Scheduler) Time() uint64 {
	return s.clock.Load()
}
