package council

import (
	"sync"
	"sync/atomic"
)

// CancelRegistry tracks the cancellation flag of each in-flight run,
// keyed by the conversation the run belongs to. The flag is set from the
// request-handling context and polled by the pipeline at stage
// boundaries, hence the atomic.
type CancelRegistry struct {
	mu    sync.Mutex
	flags map[string]*atomic.Bool
}

// NewCancelRegistry creates an empty registry.
func NewCancelRegistry() *CancelRegistry {
	return &CancelRegistry{flags: make(map[string]*atomic.Bool)}
}

// Register creates the cancellation flag for a run. A second run on the
// same conversation replaces the previous flag. Callers must pair every
// Register with a Deregister on all exit paths.
func (r *CancelRegistry) Register(conversationID string) *atomic.Bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	flag := &atomic.Bool{}
	r.flags[conversationID] = flag
	return flag
}

// Cancel sets the flag for a conversation's active run. It reports
// whether a run was registered.
func (r *CancelRegistry) Cancel(conversationID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	flag, ok := r.flags[conversationID]
	if !ok {
		return false
	}
	flag.Store(true)
	return true
}

// Deregister removes a conversation's flag so handles never leak across
// runs.
func (r *CancelRegistry) Deregister(conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.flags, conversationID)
}

// Active reports whether a run is registered for the conversation.
func (r *CancelRegistry) Active(conversationID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.flags[conversationID]
	return ok
}
