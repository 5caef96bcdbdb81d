package cluster

import (
	"context"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/klog/v2"

	"github.com/aonescu/kubedit/internal/faults"
	"github.com/aonescu/kubedit/internal/resource"
)

// WatchState is the lifecycle of a handle's change stream:
// Stopped -> Starting -> Active -> (Failed | Stopped).
type WatchState int

const (
	WatchStopped WatchState = iota
	WatchStarting
	WatchActive
	WatchFailed
)

func (s WatchState) String() string {
	switch s {
	case WatchStopped:
		return "Stopped"
	case WatchStarting:
		return "Starting"
	case WatchActive:
		return "Active"
	case WatchFailed:
		return "Failed"
	default:
		return fmt.Sprintf("WatchState(%d)", int(s))
	}
}

type subscription struct {
	w      watch.Interface
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *subscription) stop() {
	s.cancel()
	s.w.Stop()
}

// Watch starts the change stream. It is a no-op while the stream is starting or active,
// and restarts a stopped or failed one. The stream outlives ctx; only StopWatch and
// Close end it.
func (h *Handle) Watch(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return h.closedError()
	}
	if h.watchState == WatchStarting || h.watchState == WatchActive {
		h.mu.Unlock()
		return nil
	}
	h.watchState = WatchStarting
	h.watchErr = nil
	h.mu.Unlock()

	watchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	w, err := h.transport.Watch(watchCtx, h.ref)

	h.mu.Lock()
	defer h.mu.Unlock()
	if err != nil {
		cancel()
		if h.watchState == WatchStarting {
			h.watchState = WatchFailed
			h.watchErr = err
		}
		klog.ErrorS(err, "Failed to start watch", "identity", h.ref.Identity.String())
		return err
	}
	if h.closed || h.watchState != WatchStarting {
		// stopped or closed while the request was in flight
		cancel()
		w.Stop()
		return nil
	}

	sub := &subscription{w: w, cancel: cancel, done: make(chan struct{})}
	h.sub = sub
	h.watchState = WatchActive
	go h.receive(sub)
	klog.V(2).InfoS("Watch started", "identity", h.ref.Identity.String())
	return nil
}

// StopWatch ends the change stream. Listeners stay registered for a later Watch.
func (h *Handle) StopWatch() {
	h.mu.Lock()
	sub := h.sub
	h.sub = nil
	if !h.closed {
		h.watchState = WatchStopped
	}
	if sub != nil {
		sub.stop()
	}
	h.mu.Unlock()

	if sub != nil {
		<-sub.done
		klog.V(2).InfoS("Watch stopped", "identity", h.ref.Identity.String())
	}
}

// HoldWatch registers one more party that wants the change stream. It does not start the
// stream; Watch does.
func (h *Handle) HoldWatch() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.watchHolds++
}

// ReleaseWatch drops a hold taken with HoldWatch and stops the stream once nobody holds
// it anymore.
func (h *Handle) ReleaseWatch() {
	h.mu.Lock()
	if h.watchHolds > 0 {
		h.watchHolds--
	}
	last := h.watchHolds == 0
	h.mu.Unlock()

	if last {
		h.StopWatch()
	}
}

func (h *Handle) receive(sub *subscription) {
	defer close(sub.done)
	for event := range sub.w.ResultChan() {
		if !h.deliver(sub, event) {
			return
		}
	}
	h.streamEnded(sub)
}

// deliver applies one watch event. It returns false once the subscription is no longer
// the handle's current one, so that nothing reaches a closed or restarted handle.
func (h *Handle) deliver(sub *subscription, event watch.Event) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || h.sub != sub {
		return false
	}

	switch event.Type {
	case watch.Added, watch.Modified:
		snapshot, err := toSnapshot(event.Object)
		if err != nil {
			klog.ErrorS(err, "Dropping undecodable watch event", "identity", h.ref.Identity.String())
			return true
		}
		if snapshot.Identity() != h.ref.Identity {
			return true
		}
		h.server = snapshot
		h.exists = true
		h.deleted = false
		h.fetched = true
		eventType := EventModified
		if event.Type == watch.Added {
			eventType = EventAdded
		}
		h.publish(Event{Type: eventType, Identity: h.ref.Identity, Snapshot: snapshot})
	case watch.Deleted:
		if snapshot, err := toSnapshot(event.Object); err == nil && snapshot.Identity() != h.ref.Identity {
			return true
		}
		h.exists = false
		h.deleted = true
		h.fetched = true
		h.publish(Event{Type: EventRemoved, Identity: h.ref.Identity})
	case watch.Error:
		cause := apierrors.FromObject(event.Object)
		h.fail(sub, faults.NewTypedError(faults.TransportError, "watch of "+h.ref.Identity.String()+" failed", cause))
		return false
	}
	return true
}

func (h *Handle) streamEnded(sub *subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || h.sub != sub {
		return
	}
	h.fail(sub, faults.NewTypedError(faults.TransportError, "watch of "+h.ref.Identity.String()+" was closed by the server", nil))
}

// fail must be called with h.mu held.
func (h *Handle) fail(sub *subscription, err error) {
	h.sub = nil
	h.watchState = WatchFailed
	h.watchErr = err
	sub.stop()
	klog.ErrorS(err, "Watch failed", "identity", h.ref.Identity.String())
	h.publish(Event{Type: EventError, Identity: h.ref.Identity, Err: err})
}

func toSnapshot(obj runtime.Object) (*resource.Snapshot, error) {
	if u, ok := obj.(*unstructured.Unstructured); ok {
		return resource.NewSnapshot(u), nil
	}
	if obj == nil {
		return nil, fmt.Errorf("watch event carries no object")
	}
	content, err := runtime.DefaultUnstructuredConverter.ToUnstructured(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to convert %T: %w", obj, err)
	}
	return resource.NewSnapshot(&unstructured.Unstructured{Object: content}), nil
}
