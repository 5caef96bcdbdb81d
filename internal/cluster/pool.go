package cluster

import (
	"sync"

	"k8s.io/klog/v2"

	"github.com/aonescu/kubedit/internal/resource"
)

// Pool hands out at most one handle per identity and closes a handle once its last user
// releases it.
type Pool struct {
	transport Transport

	mu      sync.Mutex
	entries map[resource.Identity]*poolEntry
}

type poolEntry struct {
	handle *Handle
	refs   int
}

func NewPool(transport Transport) *Pool {
	return &Pool{
		transport: transport,
		entries:   make(map[resource.Identity]*poolEntry),
	}
}

// Acquire returns the handle bound to ref's identity, opening it on first use.
// Concurrent callers for one identity receive the same instance.
func (p *Pool) Acquire(ref resource.Ref) (*Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if entry, exists := p.entries[ref.Identity]; exists && !entry.handle.IsClosed() {
		entry.refs++
		return entry.handle, nil
	}

	h, err := Open(ref, p.transport)
	if err != nil {
		return nil, err
	}
	p.entries[ref.Identity] = &poolEntry{handle: h, refs: 1}
	klog.V(2).InfoS("Opened resource handle", "identity", ref.Identity.String())
	return h, nil
}

// Release gives up one reference to h. Handles not owned by the pool are ignored.
func (p *Pool) Release(h *Handle) {
	if h == nil {
		return
	}

	p.mu.Lock()
	entry, exists := p.entries[h.Identity()]
	if !exists || entry.handle != h {
		p.mu.Unlock()
		return
	}
	entry.refs--
	last := entry.refs <= 0
	if last {
		delete(p.entries, h.Identity())
	}
	p.mu.Unlock()

	if last {
		h.Close()
	}
}

// Len returns the number of open handles.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Close closes every handle regardless of outstanding references.
func (p *Pool) Close() {
	p.mu.Lock()
	entries := p.entries
	p.entries = make(map[resource.Identity]*poolEntry)
	p.mu.Unlock()

	for _, entry := range entries {
		entry.handle.Close()
	}
}

// ResolveHandle is the transition taken on every reconciliation step: it keeps current
// while it is still bound to ref's identity, otherwise it acquires a new handle and
// reports the replacement. The caller releases the old handle.
func ResolveHandle(current *Handle, ref resource.Ref, acquire func(resource.Ref) (*Handle, error)) (*Handle, bool, error) {
	if current != nil && !current.IsClosed() && resource.SameResource(current.Identity(), ref.Identity) {
		return current, false, nil
	}
	h, err := acquire(ref)
	if err != nil {
		return current, false, err
	}
	return h, true, nil
}
