package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/nodekeeper/nodekeeper/pkg/pack"
)

// OperationLock serializes mutating operations per package name.
// Operations on different names proceed independently; read-only
// queries never take the lock.
type OperationLock struct {
	mu   sync.Mutex
	held map[string]chan struct{}
}

// NewOperationLock creates an empty lock set.
func NewOperationLock() *OperationLock {
	return &OperationLock{held: make(map[string]chan struct{})}
}

// TryAcquire takes the lock for name, or reports contention immediately
// if another operation holds it. The returned release function must be
// called exactly once.
func (l *OperationLock) TryAcquire(name string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[name]; ok {
		return nil, pack.NewLockContentionError(
			fmt.Sprintf("another operation is in progress for %s", name)).WithPackage(name)
	}

	done := make(chan struct{})
	l.held[name] = done
	return l.releaseFunc(name, done), nil
}

// Acquire takes the lock for name, waiting for the current holder if
// there is one. It returns early if the context is cancelled.
func (l *OperationLock) Acquire(ctx context.Context, name string) (func(), error) {
	for {
		l.mu.Lock()
		holder, ok := l.held[name]
		if !ok {
			done := make(chan struct{})
			l.held[name] = done
			l.mu.Unlock()
			return l.releaseFunc(name, done), nil
		}
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, pack.NewLockContentionError(
				fmt.Sprintf("cancelled while waiting for the lock on %s", name)).WithPackage(name)
		case <-holder:
		}
	}
}

func (l *OperationLock) releaseFunc(name string, done chan struct{}) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, name)
			l.mu.Unlock()
			close(done)
		})
	}
}
