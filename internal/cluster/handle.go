package cluster

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
	"k8s.io/klog/v2"

	"github.com/aonescu/kubedit/internal/faults"
	"github.com/aonescu/kubedit/internal/resource"
)

// Handle is the live binding to one object on the cluster. Its identity never changes;
// a document that starts describing another object gets a new handle.
type Handle struct {
	ref       resource.Ref
	transport Transport
	fetches   singleflight.Group

	mu         sync.Mutex
	server     *resource.Snapshot
	fetched    bool
	exists     bool
	deleted    bool
	closed     bool
	sub        *subscription
	watchState WatchState
	watchErr   error
	watchHolds int
	listeners  []*listener
}

// Open creates a handle for ref without contacting the cluster.
func Open(ref resource.Ref, transport Transport) (*Handle, error) {
	if err := ref.Identity.Validate(); err != nil {
		return nil, err
	}
	return &Handle{
		ref:       ref,
		transport: transport,
	}, nil
}

func (h *Handle) Identity() resource.Identity {
	return h.ref.Identity
}

func (h *Handle) Ref() resource.Ref {
	return h.ref
}

// Fetch returns the server copy, or nil when the object does not exist. Without force the
// last known state is returned once one is available; watch events keep it current.
// Transport failures leave the handle state untouched.
func (h *Handle) Fetch(ctx context.Context, force bool) (*resource.Snapshot, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, h.closedError()
	}
	if !force && h.fetched {
		defer h.mu.Unlock()
		return h.current(), nil
	}
	h.mu.Unlock()

	value, err, _ := h.fetches.Do("get", func() (interface{}, error) {
		return h.transport.Get(ctx, h.ref)
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	switch {
	case faults.IsCategory(err, faults.NotFoundError):
		if !h.closed {
			if h.exists {
				h.deleted = true
			}
			h.exists = false
			h.fetched = true
		}
		return nil, nil
	case err != nil:
		return nil, err
	}

	snapshot := value.(*resource.Snapshot)
	if !h.closed {
		h.server = snapshot
		h.exists = true
		h.deleted = false
		h.fetched = true
	}
	return snapshot, nil
}

// Push creates or replaces the server object with local's payload. It fails with a
// ConflictError when the server moved past the version local was derived from and holds
// a different payload.
func (h *Handle) Push(ctx context.Context, local *resource.Snapshot) (*resource.Snapshot, error) {
	if local == nil {
		return nil, faults.NewTypedError(faults.InternalError, "nothing to push", nil)
	}
	if local.Identity() != h.ref.Identity {
		return nil, faults.NewTypedError(faults.InternalError,
			fmt.Sprintf("cannot push %s through the handle of %s", local.Identity(), h.ref.Identity), nil)
	}

	server, err := h.Fetch(ctx, true)
	if err != nil {
		return nil, err
	}

	toSend := local.WithVersion("")
	if server != nil {
		if resource.VersionNewer(server.Version(), local.Version()) && !resource.SemanticallyEqual(server, local) {
			return nil, faults.NewTypedError(faults.ConflictError,
				fmt.Sprintf("%s was modified on the cluster (version %s, editing %s)", h.ref.Identity, server.Version(), local.Version()), nil)
		}
		toSend = local.WithVersion(server.Version())
	}

	updated, err := h.transport.CreateOrReplace(ctx, toSend)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	if !h.closed {
		h.server = updated
		h.exists = true
		h.deleted = false
		h.fetched = true
	}
	h.mu.Unlock()
	klog.V(2).InfoS("Pushed resource", "identity", h.ref.Identity.String(), "version", updated.Version())
	return updated, nil
}

// Listen registers a listener. The returned channel is closed once cancel is called or the
// handle is closed. Listeners survive watch restarts.
func (h *Handle) Listen() (<-chan Event, func()) {
	l := newListener()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		l.stop()
		return l.out, func() {}
	}
	h.listeners = append(h.listeners, l)
	h.mu.Unlock()

	return l.out, func() {
		h.mu.Lock()
		for i, registered := range h.listeners {
			if registered == l {
				h.listeners = append(h.listeners[:i], h.listeners[i+1:]...)
				break
			}
		}
		h.mu.Unlock()
		l.stop()
	}
}

// publish must be called with h.mu held.
func (h *Handle) publish(event Event) {
	for _, l := range h.listeners {
		l.push(event)
	}
}

// Close stops the watch and deregisters every listener before returning. Later calls
// are no-ops and events still in flight are discarded.
func (h *Handle) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	sub := h.sub
	h.sub = nil
	h.watchState = WatchStopped
	listeners := h.listeners
	h.listeners = nil
	if sub != nil {
		sub.stop()
	}
	h.mu.Unlock()

	for _, l := range listeners {
		l.stop()
	}
	if sub != nil {
		<-sub.done
	}
	klog.V(2).InfoS("Closed resource handle", "identity", h.ref.Identity.String())
}

func (h *Handle) IsClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Fetched reports whether the server state is known, from a fetch or a watch event.
func (h *Handle) Fetched() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fetched
}

func (h *Handle) Exists() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exists
}

func (h *Handle) IsDeleted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.deleted
}

// Snapshot returns the last known server copy, nil when the object does not exist.
func (h *Handle) Snapshot() *resource.Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current()
}

// ServerState is a consistent view of what a handle knows about its server object.
type ServerState struct {
	Server  *resource.Snapshot
	Exists  bool
	Deleted bool
	Fetched bool
}

func (h *Handle) State() ServerState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return ServerState{
		Server:  h.current(),
		Exists:  h.exists,
		Deleted: h.deleted,
		Fetched: h.fetched,
	}
}

func (h *Handle) WatchState() WatchState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.watchState
}

// WatchErr is the error that moved the change stream to WatchFailed.
func (h *Handle) WatchErr() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.watchErr
}

// IsModified reports whether candidate differs from the last known server copy.
func (h *Handle) IsModified(candidate *resource.Snapshot) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !resource.SemanticallyEqual(candidate, h.current())
}

// IsOutdated reports whether the server holds a newer version than the one candidate was
// derived from, with a different payload.
func (h *Handle) IsOutdated(candidate *resource.Snapshot) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.isOutdated(candidate)
}

// CanPush reports whether there is something new to send and nobody is ahead.
func (h *Handle) CanPush(candidate *resource.Snapshot) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exists &&
		!h.isOutdated(candidate) &&
		!resource.SemanticallyEqual(candidate, h.current())
}

func (h *Handle) isOutdated(candidate *resource.Snapshot) bool {
	server := h.current()
	if candidate == nil || server == nil {
		return false
	}
	return resource.VersionNewer(server.Version(), candidate.Version()) &&
		!resource.SemanticallyEqual(server, candidate)
}

func (h *Handle) current() *resource.Snapshot {
	if !h.exists {
		return nil
	}
	return h.server
}

func (h *Handle) closedError() error {
	return faults.NewTypedError(faults.InternalError, "handle for "+h.ref.Identity.String()+" is closed", nil)
}
