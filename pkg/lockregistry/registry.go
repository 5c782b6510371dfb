// Package lockregistry maps resource paths to their reader/writer locks.
//
// Locks are created lazily on first reference to a path and are never
// removed: the handle returned for a path stays valid, and identical, for
// the lifetime of the process. This keeps the identity guarantee simple at
// the cost of memory growing with the number of distinct paths served.
package lockregistry

import (
	"fmt"
	"sync"

	"github.com/marmos91/httpfs/pkg/rwlock"
)

// Registry is a concurrency-safe mapping from resource path to *rwlock.RWLock.
//
// The registry mutex guards only the map. It is released before GetOrCreate
// returns, so callers never block on a path lock while holding it.
//
// Example usage:
//
//	reg, _ := lockregistry.New(rwlock.DefaultOvertakeBound)
//	lock := reg.GetOrCreate("docs/readme.txt")
//	lock.RLock()
//	defer lock.RUnlock()
type Registry struct {
	mu    sync.Mutex
	locks map[string]*rwlock.RWLock
	bound int

	// newLock allocates a lock for a never-seen key. Swapped in tests.
	newLock func(bound int) (*rwlock.RWLock, error)
}

// New creates an empty registry whose locks admit at most bound readers
// ahead of a waiting writer.
func New(bound int) (*Registry, error) {
	if bound < 1 {
		return nil, fmt.Errorf("invalid overtake bound %d: must be >= 1", bound)
	}

	return &Registry{
		locks:   make(map[string]*rwlock.RWLock),
		bound:   bound,
		newLock: rwlock.New,
	}, nil
}

// GetOrCreate returns the lock for key, allocating it on first use.
//
// The lookup and the insert happen under one critical section, so for a
// key never seen before exactly one concurrent caller allocates the lock
// and every caller receives that same handle.
func (r *Registry) GetOrCreate(key string) *rwlock.RWLock {
	r.mu.Lock()
	defer r.mu.Unlock()

	if lock, ok := r.locks[key]; ok {
		return lock
	}

	lock, err := r.newLock(r.bound)
	if err != nil {
		// bound is validated in New
		panic(fmt.Sprintf("lockregistry: allocate lock for %q: %v", key, err))
	}
	r.locks[key] = lock
	return lock
}

// Lookup returns the lock for key without creating it.
func (r *Registry) Lookup(key string) (*rwlock.RWLock, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, ok := r.locks[key]
	return lock, ok
}

// Len returns the number of registered paths.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.locks)
}

// Bound returns the overtake bound applied to every lock in the registry.
func (r *Registry) Bound() int {
	return r.bound
}
