// Package lock provides assignment.Locker implementations: an in-process
// lock for single-node deployments and a Redis lock for several engine
// processes sharing one store.
package lock

import (
	"context"
	"sync"

	"github.com/tohka53/gtrehabiMovement/assignment"
)

var _ assignment.Locker = (*Local)(nil)

// Local is a non-blocking keyed mutex.
type Local struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewLocal() *Local {
	return &Local{held: make(map[string]bool)}
}

func (l *Local) TryLock(_ context.Context, key string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held[key] {
		return nil, false, nil
	}
	l.held[key] = true

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, true, nil
}
