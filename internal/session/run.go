package session

import (
	"context"
	"time"

	"k8s.io/klog/v2"

	"github.com/aonescu/kubedit/internal/cluster"
	"github.com/aonescu/kubedit/internal/engine"
	"github.com/aonescu/kubedit/internal/types"
)

// Run reconciles on every trigger: local edits, events from the bound object and the
// poll interval. It returns when ctx is done or the session is closed.
func (s *Session) Run(ctx context.Context) error {
	s.trigger(ctx, "open")

	var tick <-chan time.Time
	if s.poll > 0 {
		ticker := time.NewTicker(s.poll)
		defer ticker.Stop()
		tick = ticker.C
	}

	changes := s.doc.Changes()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		case _, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			s.trigger(ctx, "document changed")
		case ev := <-s.remote:
			s.onRemote(ctx, ev)
		case <-tick:
			s.trigger(ctx, "poll")
		}
	}
}

func (s *Session) trigger(ctx context.Context, reason string) {
	if _, err := s.Update(ctx); err != nil && err != errSessionClosed {
		klog.V(2).InfoS("Update failed", "document", s.doc.Path(), "trigger", reason, "err", err)
	}
}

// onRemote drops events of handles the session no longer holds. A failed change stream
// is reported and left alone until the next update restarts it.
func (s *Session) onRemote(ctx context.Context, ev remoteEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || ev.handle != s.handle {
		klog.V(4).InfoS("Dropped event of a released handle", "document", s.doc.Path(), "identity", ev.event.Identity.String())
		return
	}

	if ev.event.Type == cluster.EventError {
		s.notifier.ShowError(s.notice(), "Lost connection to cluster while watching "+ev.handle.Identity().String(), ev.event.Err)
		s.observeWatch(ev.handle)
		s.record(types.ActionError, engine.Indeterminate, "", ev.event.Err.Error())
		return
	}

	if _, err := s.update(ctx); err != nil {
		klog.V(2).InfoS("Update failed", "document", s.doc.Path(), "trigger", "remote "+string(ev.event.Type), "err", err)
	}
}
