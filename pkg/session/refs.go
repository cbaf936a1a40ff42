package session

import (
	"sync"

	"github.com/google/uuid"
)

// RefPrefix marks identifiers issued by a Registry
const RefPrefix = "blob:"

// Blob is what a reference resolves to
type Blob struct {
	MediaType string
	Data      []byte
}

// Registry hands out displayable references to image bytes. A reference
// stays resolvable until it is released.
type Registry struct {
	mu    sync.RWMutex
	blobs map[string]Blob
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{blobs: make(map[string]Blob)}
}

// Create registers data and returns its reference
func (r *Registry) Create(data []byte, mediaType string) string {
	ref := RefPrefix + uuid.NewString()

	r.mu.Lock()
	r.blobs[ref] = Blob{MediaType: mediaType, Data: data}
	r.mu.Unlock()

	return ref
}

// Get resolves ref
func (r *Registry) Get(ref string) (Blob, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.blobs[ref]
	return b, ok
}

// Release drops ref. Releasing an unknown or empty ref is a no-op.
func (r *Registry) Release(ref string) {
	if ref == "" {
		return
	}
	r.mu.Lock()
	delete(r.blobs, ref)
	r.mu.Unlock()
}

// Len returns the number of live references
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.blobs)
}

// Clear releases every reference
func (r *Registry) Clear() {
	r.mu.Lock()
	r.blobs = make(map[string]Blob)
	r.mu.Unlock()
}
