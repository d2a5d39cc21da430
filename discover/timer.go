package discover

import (
	"sync"
	"time"
)

// Scheduler runs delayed callbacks and cancels every outstanding one on
// Stop. Callbacks fire on their own goroutines; a callback scheduled
// before Stop but not yet started observes the stopped flag and never
// runs, so no callback touches the table after shutdown has begun.
type Scheduler struct {
	mu      sync.Mutex
	stopped bool
	tasks   map[*Task]struct{}
}

// Task is a handle to one scheduled callback.
type Task struct {
	s     *Scheduler
	timer *time.Timer
	fn    func()
}

// NewScheduler creates an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{tasks: make(map[*Task]struct{})}
}

// Schedule runs fn after d, unless the scheduler stops or the task is
// canceled first. Returns nil when the scheduler is already stopped.
func (s *Scheduler) Schedule(d time.Duration, fn func()) *Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	t := &Task{s: s, fn: fn}
	s.tasks[t] = struct{}{}
	t.timer = time.AfterFunc(d, t.run)
	return t
}

func (t *Task) run() {
	s := t.s
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	delete(s.tasks, t)
	s.mu.Unlock()
	t.fn()
}

// Cancel prevents the task from running if it has not started yet.
func (t *Task) Cancel() {
	if t == nil {
		return
	}
	s := t.s
	s.mu.Lock()
	delete(s.tasks, t)
	s.mu.Unlock()
	t.timer.Stop()
}

// Stop cancels all outstanding tasks. Schedule calls after Stop are
// no-ops.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	tasks := s.tasks
	s.tasks = nil
	s.mu.Unlock()

	for t := range tasks {
		t.timer.Stop()
	}
}

// Stopped reports whether Stop has been called.
func (s *Scheduler) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}
