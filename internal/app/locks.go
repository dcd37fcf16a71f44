package app

import "sync"

// runLocks hands out one mutex per question run so the
// "write response, check all-answered, maybe close" section is serialized
// per run while unrelated runs and sessions proceed in parallel.
type runLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// lock acquires the mutex for the run and returns its unlock func.
func (l *runLocks) lock(runID string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*sync.Mutex)
	}
	m, ok := l.locks[runID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[runID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
