package rwlock

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	blockedWindow = 50 * time.Millisecond
	releaseWait   = 2 * time.Second
)

func newLock(t *testing.T, bound int) *RWLock {
	t.Helper()
	l, err := New(bound)
	require.NoError(t, err)
	return l
}

// acquire runs fn in a goroutine and returns a channel closed once fn returns.
func acquire(fn func()) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		fn()
		close(done)
	}()
	return done
}

func requireBlocked(t *testing.T, done <-chan struct{}, msg string) {
	t.Helper()
	select {
	case <-done:
		t.Fatal(msg)
	case <-time.After(blockedWindow):
	}
}

func requireAcquired(t *testing.T, done <-chan struct{}, msg string) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(releaseWait):
		t.Fatal(msg)
	}
}

func waitFor(t *testing.T, l *RWLock, cond func(State) bool) {
	t.Helper()
	require.Eventually(t, func() bool { return cond(l.State()) }, releaseWait, time.Millisecond)
}

func TestNew_InvalidBound(t *testing.T) {
	_, err := New(0)
	require.Error(t, err)
	_, err = New(-3)
	require.Error(t, err)
}

func TestRWLock_States(t *testing.T) {
	l := newLock(t, DefaultOvertakeBound)
	assert.Equal(t, Idle, l.State().Mode)

	l.RLock()
	l.RLock()
	s := l.State()
	assert.Equal(t, Reading, s.Mode)
	assert.Equal(t, 2, s.Readers)

	l.RUnlock()
	l.RUnlock()
	assert.Equal(t, Idle, l.State().Mode)

	l.Lock()
	assert.Equal(t, Writing, l.State().Mode)
	l.Unlock()
	assert.Equal(t, Idle, l.State().Mode)
}

func TestRWLock_UnlockPanics(t *testing.T) {
	l := newLock(t, 1)
	assert.Panics(t, func() { l.RUnlock() })
	assert.Panics(t, func() { l.Unlock() })
}

func TestRWLock_WriterExcludesReaders(t *testing.T) {
	l := newLock(t, 2)
	l.Lock()

	reader := acquire(l.RLock)
	requireBlocked(t, reader, "reader acquired a lock held by a writer")

	writer := acquire(l.Lock)
	requireBlocked(t, writer, "second writer acquired a lock held by a writer")
	waitFor(t, l, func(s State) bool { return s.WaitingReaders == 1 && s.WaitingWriters == 1 })

	l.Unlock()
	requireAcquired(t, reader, "reader not admitted after writer released")

	l.RUnlock()
	requireAcquired(t, writer, "writer not admitted after reader released")
	l.Unlock()
}

func TestRWLock_ReadersShare(t *testing.T) {
	l := newLock(t, 1)
	const readers = 16

	var wg sync.WaitGroup
	var inside atomic.Int32
	var peak atomic.Int32
	start := make(chan struct{})

	for range readers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			l.RLock()
			n := inside.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			inside.Add(-1)
			l.RUnlock()
		}()
	}

	close(start)
	wg.Wait()
	assert.Greater(t, peak.Load(), int32(1), "readers never overlapped")
}

// Once a writer is waiting, exactly bound readers may still get in; the next
// one queues behind the writer.
func TestRWLock_WriterAdmittedWithinBound(t *testing.T) {
	for _, bound := range []int{1, 3, 5} {
		l := newLock(t, bound)

		l.RLock()
		writer := acquire(l.Lock)
		waitFor(t, l, func(s State) bool { return s.WaitingWriters == 1 })

		for i := range bound {
			r := acquire(l.RLock)
			requireAcquired(t, r, "reader within the overtake bound was blocked")
			assert.Equal(t, i+1, l.State().Overtaken)
		}

		late := acquire(l.RLock)
		requireBlocked(t, late, "reader beyond the overtake bound overtook the writer")
		requireBlocked(t, writer, "writer admitted while readers hold the lock")

		for range bound + 1 {
			l.RUnlock()
		}

		requireAcquired(t, writer, "writer not admitted after overtaking readers left")
		requireBlocked(t, late, "reader admitted while writer holds the lock")

		l.Unlock()
		requireAcquired(t, late, "queued reader not admitted after writer released")
		l.RUnlock()
		assert.Equal(t, Idle, l.State().Mode)
	}
}

// A writer releasing to waiting readers must let them in before another
// writer, even when writers keep arriving.
func TestRWLock_ReadersNotStarvedByWriters(t *testing.T) {
	l := newLock(t, 2)
	l.Lock()

	reader := acquire(l.RLock)
	waitFor(t, l, func(s State) bool { return s.WaitingReaders == 1 })
	requireBlocked(t, reader, "reader admitted while writer holds the lock")

	second := acquire(l.Lock)
	waitFor(t, l, func(s State) bool { return s.WaitingWriters == 1 })

	l.Unlock()
	requireAcquired(t, reader, "reader starved by a waiting writer")
	requireBlocked(t, second, "writer barged in ahead of woken readers")

	l.RUnlock()
	requireAcquired(t, second, "writer not admitted after reader released")
	l.Unlock()
}

// Mixed stress: writers must always be alone and every goroutine must finish.
func TestRWLock_MutualExclusionStress(t *testing.T) {
	l := newLock(t, DefaultOvertakeBound)

	var (
		readers atomic.Int32
		writers atomic.Int32
		wg      sync.WaitGroup
	)

	for i := range 64 {
		wg.Add(1)
		go func(write bool) {
			defer wg.Done()
			for range 50 {
				if write {
					l.Lock()
					assert.Equal(t, int32(1), writers.Add(1))
					assert.Equal(t, int32(0), readers.Load())
					writers.Add(-1)
					l.Unlock()
				} else {
					l.RLock()
					readers.Add(1)
					assert.Equal(t, int32(0), writers.Load())
					readers.Add(-1)
					l.RUnlock()
				}
			}
		}(i%4 == 0)
	}

	done := acquire(wg.Wait)
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("stress test deadlocked")
	}
	assert.Equal(t, Idle, l.State().Mode)
}
