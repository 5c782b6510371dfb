// Package rwlock implements a reader/writer lock with a bounded-starvation
// admission policy.
//
// Any number of readers may hold the lock together; a writer holds it alone.
// Unlike sync.RWMutex, a waiting writer does not immediately block new
// readers. Instead, once a writer starts waiting, at most N further readers
// are admitted ahead of it; after that the lock is reserved for the writer
// and new readers queue behind it. After each writer releases, up to N
// readers are again admitted before the next waiting writer, so readers are
// not starved by a steady stream of writers either.
package rwlock

import (
	"fmt"
	"sync"
)

// DefaultOvertakeBound is the number of readers that may be admitted ahead
// of a waiting writer when no explicit bound is configured.
const DefaultOvertakeBound = 4

// Mode identifies the current state of a lock.
type Mode int

const (
	Idle Mode = iota
	Reading
	Writing
)

func (m Mode) String() string {
	switch m {
	case Idle:
		return "idle"
	case Reading:
		return "reading"
	case Writing:
		return "writing"
	default:
		return "unknown"
	}
}

// State is a point-in-time snapshot of a lock, used for diagnostics and tests.
type State struct {
	Mode           Mode
	Readers        int
	WaitingReaders int
	WaitingWriters int
	Overtaken      int
}

// RWLock is a reader/writer lock with a configurable overtake bound.
//
// The zero value is not usable; create locks with New.
type RWLock struct {
	mu      sync.Mutex
	readOK  *sync.Cond
	writeOK *sync.Cond

	bound int

	readers        int
	writing        bool
	waitingReaders int
	waitingWriters int

	// overtaken counts readers admitted while at least one writer is
	// waiting. It resets every time a writer acquires the lock.
	overtaken int

	// readerTurn is set when a writer hands the lock to waiting readers and
	// cleared by the first reader admitted. Writers may not barge in while set.
	readerTurn bool
}

// New creates a lock that admits at most bound readers ahead of a waiting
// writer. The bound must be at least 1, otherwise readers could starve.
func New(bound int) (*RWLock, error) {
	if bound < 1 {
		return nil, fmt.Errorf("invalid overtake bound %d: must be >= 1", bound)
	}

	l := &RWLock{bound: bound}
	l.readOK = sync.NewCond(&l.mu)
	l.writeOK = sync.NewCond(&l.mu)
	return l, nil
}

// Bound returns the configured overtake bound.
func (l *RWLock) Bound() int {
	return l.bound
}

// RLock acquires the lock in shared mode.
func (l *RWLock) RLock() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.waitingReaders++
	for l.writing || (l.waitingWriters > 0 && l.overtaken >= l.bound) {
		l.readOK.Wait()
	}
	l.waitingReaders--

	l.readerTurn = false
	l.readers++
	if l.waitingWriters > 0 {
		l.overtaken++
	}
}

// RUnlock releases a shared hold. It panics if the lock is not held for reading.
func (l *RWLock) RUnlock() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.readers == 0 {
		panic("rwlock: RUnlock of lock not held for reading")
	}

	l.readers--
	if l.readers == 0 && l.waitingWriters > 0 {
		l.writeOK.Signal()
	}
}

// Lock acquires the lock in exclusive mode.
func (l *RWLock) Lock() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.waitingWriters == 0 {
		// a fresh wait period: readers already holding the lock do not count
		// against this writer
		l.overtaken = 0
	}
	l.waitingWriters++
	for l.writing || l.readers > 0 || l.readerTurn {
		l.writeOK.Wait()
	}
	l.waitingWriters--

	l.writing = true
	l.overtaken = 0
}

// Unlock releases an exclusive hold. It panics if the lock is not held for writing.
//
// Waiting readers are woken first and up to the overtake bound of them get
// in before the next waiting writer. If no reader is waiting, the next
// writer is woken.
func (l *RWLock) Unlock() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.writing {
		panic("rwlock: Unlock of lock not held for writing")
	}

	l.writing = false
	if l.waitingReaders > 0 {
		// the next waiting writer is signalled by the last of these readers
		l.readerTurn = true
		l.readOK.Broadcast()
		return
	}
	if l.waitingWriters > 0 {
		l.writeOK.Signal()
	}
}

// State returns a snapshot of the lock.
func (l *RWLock) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := State{
		Readers:        l.readers,
		WaitingReaders: l.waitingReaders,
		WaitingWriters: l.waitingWriters,
		Overtaken:      l.overtaken,
	}
	switch {
	case l.writing:
		s.Mode = Writing
	case l.readers > 0:
		s.Mode = Reading
	default:
		s.Mode = Idle
	}
	return s
}
