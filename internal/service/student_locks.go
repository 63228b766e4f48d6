package service

import "sync"

// studentLocks serializes lifecycle operations per student. The store offers
// no cross-record transactions, so the capacity check and credit-hour write
// must not interleave for the same student.
type studentLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newStudentLocks() *studentLocks {
	return &studentLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for the given student, creating it on first use,
// and returns the unlock function.
func (l *studentLocks) Lock(studentID string) func() {
	l.mu.Lock()
	m, ok := l.locks[studentID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[studentID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
