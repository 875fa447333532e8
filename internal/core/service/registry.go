package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/yndnr/pairmesh-go/internal/core/domain"
	"github.com/yndnr/pairmesh-go/internal/transport"
	"github.com/yndnr/pairmesh-go/pkg/cmap"
)

// Handle is the registry entry of one identity. A handle is pending from
// Reserve until Bind attaches its transport.
type Handle struct {
	identity string

	mu        sync.RWMutex
	transport transport.Transport
	createdAt time.Time
}

// Identity returns the normalized identity.
func (h *Handle) Identity() string {
	return h.identity
}

// CreatedAt returns when the connection was bound.
func (h *Handle) CreatedAt() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.createdAt
}

// Transport returns the bound transport, or nil while pending.
func (h *Handle) Transport() transport.Transport {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.transport
}

// Bound reports whether a transport is attached.
func (h *Handle) Bound() bool {
	return h.Transport() != nil
}

// SendMessage sends through the bound transport.
func (h *Handle) SendMessage(ctx context.Context, to string, content transport.Content) error {
	tr := h.Transport()
	if tr == nil {
		return domain.ErrTransportUnavailable
	}
	return tr.SendMessage(ctx, to, content)
}

// Registry maps identities to their live connection.
//
// Reserve is the only way in, so at most one connection attempt per
// identity can be in flight.
type Registry struct {
	handles *cmap.Map[*Handle]
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handles: cmap.New[*Handle]()}
}

// Has reports whether identity is bound or reserved.
func (r *Registry) Has(identity string) bool {
	return r.handles.Has(identity)
}

// Get returns the bound handle of identity.
func (r *Registry) Get(identity string) (*Handle, bool) {
	h, ok := r.handles.Get(identity)
	if !ok || !h.Bound() {
		return nil, false
	}
	return h, true
}

// Reserve atomically claims identity with a pending handle. It returns
// false when identity is already present.
func (r *Registry) Reserve(identity string) (*Handle, bool) {
	h := &Handle{identity: identity}
	if !r.handles.SetIfAbsent(identity, h) {
		return nil, false
	}
	return h, true
}

// Bind attaches tr to a reserved handle. It is a compare-and-set under the
// shard lock: when h was removed or replaced since Reserve it reports false
// and leaves h unbound.
func (r *Registry) Bind(h *Handle, tr transport.Transport, createdAt time.Time) bool {
	_, bound := r.handles.Update(h.identity, func(cur *Handle, exists bool) (*Handle, bool) {
		if !exists || cur != h {
			return cur, false
		}
		h.mu.Lock()
		h.transport = tr
		h.createdAt = createdAt
		h.mu.Unlock()
		return h, true
	})
	return bound
}

// Release drops a handle whose start failed.
func (r *Registry) Release(h *Handle) {
	r.RemoveIf(h.identity, h)
}

// Remove deletes identity unconditionally.
func (r *Registry) Remove(identity string) (*Handle, bool) {
	return r.handles.Pop(identity)
}

// RemoveIf deletes identity only while it still maps to h, so a late event
// from an old connection cannot evict its replacement.
func (r *Registry) RemoveIf(identity string, h *Handle) bool {
	return r.handles.DeleteIf(identity, func(cur *Handle) bool {
		return cur == h
	})
}

// Len returns the number of bound handles.
func (r *Registry) Len() int {
	n := 0
	r.handles.Range(func(_ string, h *Handle) bool {
		if h.Bound() {
			n++
		}
		return true
	})
	return n
}

// Identities returns the bound identities, sorted.
func (r *Registry) Identities() []string {
	ids := make([]string, 0, r.handles.Count())
	r.handles.Range(func(id string, h *Handle) bool {
		if h.Bound() {
			ids = append(ids, id)
		}
		return true
	})
	sort.Strings(ids)
	return ids
}

// Drain removes and returns every handle, pending ones included.
func (r *Registry) Drain() []*Handle {
	m := r.handles.Drain()
	out := make([]*Handle, 0, len(m))
	for _, h := range m {
		out = append(out, h)
	}
	return out
}
