package workflow

import (
	"context"
	"sync"
)

// sessionRegistry tracks cancel functions for in-flight sessions on this
// instance so CancelSession can reach the running goroutine.
type sessionRegistry struct {
	mu      sync.Mutex
	cancels map[int]context.CancelFunc
}

var registry = &sessionRegistry{cancels: map[int]context.CancelFunc{}}

func (r *sessionRegistry) register(sessionId int, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancels[sessionId] = cancel
}

func (r *sessionRegistry) unregister(sessionId int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cancels, sessionId)
}

// cancel fires the session's cancel func if it is running here.
func (r *sessionRegistry) cancel(sessionId int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cancel, ok := r.cancels[sessionId]
	if ok {
		cancel()
	}
	return ok
}
