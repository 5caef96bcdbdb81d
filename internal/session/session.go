package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"k8s.io/klog/v2"

	"github.com/aonescu/kubedit/internal/cluster"
	"github.com/aonescu/kubedit/internal/engine"
	"github.com/aonescu/kubedit/internal/faults"
	"github.com/aonescu/kubedit/internal/formatting"
	"github.com/aonescu/kubedit/internal/metrics"
	"github.com/aonescu/kubedit/internal/notify"
	"github.com/aonescu/kubedit/internal/resource"
	"github.com/aonescu/kubedit/internal/state"
	"github.com/aonescu/kubedit/internal/types"
)

var (
	errDispatcherClosed = errors.New("dispatcher is closed")
	errSessionClosed    = faults.NewTypedError(faults.InternalError, "session is closed", nil)
)

var watchStates = []string{
	cluster.WatchStopped.String(),
	cluster.WatchStarting.String(),
	cluster.WatchActive.String(),
	cluster.WatchFailed.String(),
}

// Scope resolves the namespace of documents that name none.
type Scope interface {
	DefaultNamespace(apiVersion, kind string) (string, error)
}

type Options struct {
	Notifier   notify.Notifier
	Dispatcher Dispatcher
	// Scope fills in missing namespaces. Documents are taken as written when it is nil.
	Scope Scope
	// Store records the sync history. Nothing is recorded when it is nil.
	Store   state.Store
	Metrics *metrics.Metrics
	// PollInterval enables a periodic reconciliation in Run when positive.
	PollInterval time.Duration
}

// Session binds one document to the cluster object it describes. Every reconciliation
// step runs under the session lock; handle events are forwarded to Run.
type Session struct {
	doc        Document
	pool       *cluster.Pool
	notifier   notify.Notifier
	dispatcher Dispatcher
	scope      Scope
	store      state.Store
	metrics    *metrics.Metrics
	poll       time.Duration

	remote chan remoteEvent
	done   chan struct{}

	mu           sync.Mutex
	local        *resource.Snapshot
	lastSynced   *resource.Snapshot
	handle       *cluster.Handle
	stopListen   func()
	watching     bool
	holdsWatch   bool
	lastDecision engine.Decision
	closed       bool
	// provisional is set while lastSynced is a first read that was never compared
	// with the server copy.
	provisional bool
}

type remoteEvent struct {
	handle *cluster.Handle
	event  cluster.Event
}

// Status is a point-in-time view of a session.
type Status struct {
	Document        string         `json:"document"`
	Identity        string         `json:"identity,omitempty"`
	Verdict         engine.Verdict `json:"verdict"`
	Reason          string         `json:"reason,omitempty"`
	AutoReloadable  bool           `json:"auto_reloadable,omitempty"`
	HasLocalChanges bool           `json:"has_local_changes"`
	WatchState      string         `json:"watch_state"`
	Watching        bool           `json:"watching"`
}

func New(doc Document, pool *cluster.Pool, opts Options) *Session {
	s := &Session{
		doc:          doc,
		pool:         pool,
		notifier:     opts.Notifier,
		dispatcher:   opts.Dispatcher,
		scope:        opts.Scope,
		store:        opts.Store,
		metrics:      opts.Metrics,
		poll:         opts.PollInterval,
		remote:       make(chan remoteEvent, 16),
		done:         make(chan struct{}),
		watching:     true,
		lastDecision: engine.Decision{Verdict: engine.Indeterminate, Reason: "not reconciled yet"},
	}
	if s.notifier == nil {
		s.notifier = notify.NewLogNotifier()
	}
	if s.dispatcher == nil {
		s.dispatcher = InlineDispatcher{}
	}
	return s
}

func (s *Session) Document() string {
	return s.doc.Path()
}

// Update reconciles the document with its cluster object and applies the resulting side
// effects. Failures are shown as error notifications and also returned.
func (s *Session) Update(ctx context.Context) (engine.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.lastDecision, errSessionClosed
	}
	return s.update(ctx)
}

func (s *Session) update(ctx context.Context) (engine.Decision, error) {
	local, err := s.readLocal()
	if err != nil {
		return s.fail(err, "Invalid resource document"), err
	}

	h, err := s.resolve(ctx, local)
	if err != nil {
		return s.fail(err, "Could not open "+local.Identity().String()), err
	}

	watchErr := s.ensureWatch(ctx, h)
	current := h.State()
	if !current.Fetched {
		if _, err := h.Fetch(ctx, false); err != nil {
			return s.fail(err, fmt.Sprintf("Could not load %s %s from cluster", h.Identity().Kind, h.Identity().Name)), err
		}
		current = h.State()
	}
	s.settleSynced(current)

	decision := engine.Decide(engine.Input{
		Local:         s.local,
		LastSynced:    s.lastSynced,
		Server:        current.Server,
		ServerExists:  current.Exists,
		ServerDeleted: current.Deleted,
	})

	var wanted []notification
	action := types.ActionDecide
	switch decision.Verdict {
	case engine.Outdated:
		if decision.AutoReloadable {
			if err := s.replaceContent(current.Server); err != nil {
				return s.fail(err, "Could not reload document"), err
			}
			action = types.ActionReload
			s.metrics.ObserveReload()
			klog.InfoS("Reloaded document from cluster", "document", s.doc.Path(), "version", current.Server.Version())
		} else {
			wanted = append(wanted, notification{kind: notify.KindReloadable})
		}
	case engine.Deleted:
		wanted = append(wanted, notification{kind: notify.KindDeleted})
	case engine.Conflict:
		wanted = append(wanted, notification{kind: notify.KindDeleted}, notification{kind: notify.KindPushable})
	case engine.Pushable:
		wanted = append(wanted, notification{kind: notify.KindPushable})
	}
	if watchErr != nil {
		wanted = append(wanted, notification{kind: notify.KindError, message: "Could not watch " + h.Identity().String(), cause: watchErr})
	}
	s.present(wanted...)

	s.lastDecision = decision
	if action == types.ActionReload {
		s.lastDecision = s.decideWith(h)
	}
	s.metrics.ObserveVerdict(string(decision.Verdict))
	s.observeWatch(h)
	s.record(action, decision.Verdict, s.local.Version(), decision.Reason)
	klog.V(2).InfoS("Reconciled document", "document", s.doc.Path(), "identity", h.Identity().String(),
		"verdict", decision.Verdict, "version", s.local.Version())
	return decision, nil
}

// Push sends the document to the cluster. On success the document is replaced with the
// stored object, on a conflict it is left untouched.
func (s *Session) Push(ctx context.Context) (*resource.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errSessionClosed
	}

	local, err := s.readLocal()
	if err != nil {
		s.fail(err, "Invalid resource document")
		return nil, err
	}
	h, err := s.resolve(ctx, local)
	if err != nil {
		s.fail(err, "Could not open "+local.Identity().String())
		return nil, err
	}

	notice := s.notice()
	id := h.Identity()
	updated, err := h.Push(ctx, local)
	switch {
	case faults.IsCategory(err, faults.ConflictError):
		s.notifier.ShowConflict(notice)
		s.metrics.ObservePush("conflict")
		s.record(types.ActionPush, engine.Conflict, local.Version(), err.Error())
		klog.InfoS("Push rejected", "document", s.doc.Path(), "identity", id.String(), "reason", err.Error())
		return nil, err
	case err != nil:
		s.notifier.ShowError(notice, fmt.Sprintf("%s: %s", formatting.SaveFailureMessage(id), formatting.TrimCause(err)), err)
		s.metrics.ObservePush("error")
		s.record(types.ActionError, engine.Indeterminate, local.Version(), err.Error())
		return nil, err
	}

	if err := s.replaceContent(updated); err != nil {
		s.fail(err, "Could not write document")
		return updated, err
	}
	s.notifier.HideAll(notice)
	s.lastDecision = s.decideWith(h)
	s.metrics.ObservePush("success")
	s.record(types.ActionPush, s.lastDecision.Verdict, updated.Version(), "pushed to cluster")
	klog.InfoS("Pushed document", "document", s.doc.Path(), "identity", id.String(), "version", updated.Version())
	return updated, nil
}

// Reload replaces the document with the current cluster copy. It fails with a
// NotFoundError, and shows the deleted notification, when the object no longer exists.
// A document that does not parse is reloaded from the object it was last bound to.
func (s *Session) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSessionClosed
	}

	h := s.handle
	local, err := s.readLocal()
	switch {
	case err == nil:
		if h, err = s.resolve(ctx, local); err != nil {
			s.fail(err, "Could not open "+local.Identity().String())
			return err
		}
	case h == nil:
		s.fail(err, "Invalid resource document")
		return err
	}

	server, err := h.Fetch(ctx, true)
	if err != nil {
		s.fail(err, fmt.Sprintf("Could not load %s %s from cluster", h.Identity().Kind, h.Identity().Name))
		return err
	}

	if server == nil {
		s.present(notification{kind: notify.KindDeleted})
		s.record(types.ActionReload, engine.Deleted, "", "object no longer exists")
		return faults.NewTypedError(faults.NotFoundError, h.Identity().String()+" no longer exists on the cluster", nil)
	}

	if err := s.replaceContent(server); err != nil {
		s.fail(err, "Could not reload document")
		return err
	}
	s.present()
	s.lastDecision = s.decideWith(h)
	s.metrics.ObserveReload()
	s.record(types.ActionReload, s.lastDecision.Verdict, server.Version(), "reloaded from cluster")
	return nil
}

// StartWatch enables the change stream of the bound object. A session watches by default.
func (s *Session) StartWatch(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSessionClosed
	}
	s.watching = true
	if s.handle == nil {
		return nil
	}
	s.holdWatch(s.handle)
	err := s.handle.Watch(ctx)
	s.observeWatch(s.handle)
	return err
}

// StopWatch ends this session's interest in the change stream until StartWatch. The
// stream itself stops once no other session bound to the same object watches it.
func (s *Session) StopWatch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watching = false
	if s.handle != nil {
		s.releaseWatch(s.handle)
		s.observeWatch(s.handle)
	}
}

// ExistsOnCluster reports whether the object the document describes exists.
func (s *Session) ExistsOnCluster(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, errSessionClosed
	}

	h := s.handle
	if h == nil {
		local, err := s.readLocal()
		if err != nil {
			return false, err
		}
		if h, err = s.resolve(ctx, local); err != nil {
			return false, err
		}
	}
	if !h.Fetched() {
		if _, err := h.Fetch(ctx, false); err != nil {
			return false, err
		}
	}
	return h.Exists(), nil
}

// Status returns the outcome of the last reconciliation.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := Status{
		Document:        s.doc.Path(),
		Verdict:         s.lastDecision.Verdict,
		Reason:          s.lastDecision.Reason,
		AutoReloadable:  s.lastDecision.AutoReloadable,
		HasLocalChanges: s.lastDecision.HasLocalChanges,
		WatchState:      cluster.WatchStopped.String(),
		Watching:        s.watching,
	}
	if s.handle != nil {
		status.Identity = s.handle.Identity().String()
		status.WatchState = s.handle.WatchState().String()
	}
	return status
}

// Close releases the bound handle and stops Run. Later calls are no-ops.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
	if s.stopListen != nil {
		s.stopListen()
		s.stopListen = nil
	}
	s.notifier.HideAll(s.notice())
	if s.handle != nil {
		s.releaseWatch(s.handle)
		s.pool.Release(s.handle)
		s.handle = nil
	}
	s.metrics.Forget(s.doc.Path())
	klog.V(2).InfoS("Closed session", "document", s.doc.Path())
}

// readLocal parses the document. The first successful read becomes the synced copy.
func (s *Session) readLocal() (*resource.Snapshot, error) {
	text, err := s.doc.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	local, err := resource.Parse(text)
	if err != nil {
		return nil, err
	}
	if local, err = s.placeInNamespace(local); err != nil {
		return nil, err
	}
	s.local = local
	if s.lastSynced == nil {
		s.lastSynced = local
		s.provisional = true
	}
	return local, nil
}

func (s *Session) placeInNamespace(local *resource.Snapshot) (*resource.Snapshot, error) {
	if s.scope == nil || local.Identity().Namespace != "" {
		return local, nil
	}
	namespace, err := s.scope.DefaultNamespace(local.APIVersion(), local.Identity().Kind)
	if err != nil || namespace == "" {
		return local, err
	}
	return local.WithNamespace(namespace), nil
}

// settleSynced compares a document that was never synced with the server copy it was
// derived from. A server copy that is not newer than the document becomes its synced
// copy, so that edits made before the session started count as local changes.
func (s *Session) settleSynced(current cluster.ServerState) {
	if !s.provisional || !current.Exists || current.Server == nil {
		return
	}
	s.provisional = false
	if !resource.VersionNewer(current.Server.Version(), s.lastSynced.Version()) {
		s.lastSynced = current.Server
	}
}

// resolve keeps the bound handle while the document describes the same object and
// switches to a new one when it does not.
func (s *Session) resolve(ctx context.Context, local *resource.Snapshot) (*cluster.Handle, error) {
	h, replaced, err := cluster.ResolveHandle(s.handle, resource.RefOf(local), s.pool.Acquire)
	if err != nil || !replaced {
		return h, err
	}

	old := s.handle
	if old != nil {
		s.notifier.HideAll(s.notice())
		s.releaseWatch(old)
		// the document now describes another object
		s.lastSynced = local
		s.provisional = true
	}
	s.handle = h
	s.bind(h)
	if old != nil {
		s.pool.Release(old)
		klog.InfoS("Document now describes another resource", "document", s.doc.Path(),
			"previous", old.Identity().String(), "identity", h.Identity().String())
	}

	if err := s.renameIfNeeded(h.Identity()); err != nil {
		klog.ErrorS(err, "Failed to rename document", "document", s.doc.Path())
	}
	return h, nil
}

func (s *Session) bind(h *cluster.Handle) {
	if s.stopListen != nil {
		s.stopListen()
	}
	events, cancel := h.Listen()
	s.stopListen = cancel
	go s.forward(h, events)
}

func (s *Session) forward(h *cluster.Handle, events <-chan cluster.Event) {
	for event := range events {
		select {
		case s.remote <- remoteEvent{handle: h, event: event}:
		case <-s.done:
			return
		}
	}
}

func (s *Session) renameIfNeeded(id resource.Identity) error {
	natural := resource.FileName(id)
	previous := s.doc.Path()
	if filepath.Base(previous) == natural {
		return nil
	}
	if err := s.dispatcher.Do(func() error { return s.doc.Rename(natural) }); err != nil {
		return err
	}
	s.metrics.Forget(previous)
	s.record(types.ActionRename, "", "", "renamed from "+filepath.Base(previous))
	klog.V(2).InfoS("Renamed document", "from", previous, "to", s.doc.Path())
	return nil
}

// ensureWatch restarts a stopped or failed change stream. After a failure the server
// copy is fetched again since events may have been missed.
func (s *Session) ensureWatch(ctx context.Context, h *cluster.Handle) error {
	if !s.watching {
		return nil
	}
	s.holdWatch(h)
	current := h.WatchState()
	if current == cluster.WatchActive || current == cluster.WatchStarting {
		return nil
	}
	if err := h.Watch(ctx); err != nil {
		return err
	}
	if current == cluster.WatchFailed {
		if _, err := h.Fetch(ctx, true); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) holdWatch(h *cluster.Handle) {
	if !s.holdsWatch {
		h.HoldWatch()
		s.holdsWatch = true
	}
}

func (s *Session) releaseWatch(h *cluster.Handle) {
	if s.holdsWatch {
		h.ReleaseWatch()
		s.holdsWatch = false
	}
}

func (s *Session) replaceContent(snapshot *resource.Snapshot) error {
	text, err := resource.Serialize(snapshot)
	if err != nil {
		return err
	}
	if err := s.dispatcher.Do(func() error { return s.doc.Write(text) }); err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}
	s.local = snapshot
	s.lastSynced = snapshot
	s.provisional = false
	return nil
}

func (s *Session) decideWith(h *cluster.Handle) engine.Decision {
	current := h.State()
	return engine.Decide(engine.Input{
		Local:         s.local,
		LastSynced:    s.lastSynced,
		Server:        current.Server,
		ServerExists:  current.Exists,
		ServerDeleted: current.Deleted,
	})
}

// fail shows err as the only notification of the document.
func (s *Session) fail(err error, message string) engine.Decision {
	decision := engine.Decision{Verdict: engine.Indeterminate, Reason: err.Error()}
	s.present(notification{kind: notify.KindError, message: message, cause: err})
	s.lastDecision = decision
	s.metrics.ObserveVerdict(string(decision.Verdict))
	s.record(types.ActionError, decision.Verdict, "", err.Error())
	klog.V(2).InfoS("Reconciliation failed", "document", s.doc.Path(), "category", faults.CategoryOf(err), "err", err)
	return decision
}

type notification struct {
	kind    notify.Kind
	message string
	cause   error
}

var notificationKinds = []notify.Kind{
	notify.KindReloadable,
	notify.KindDeleted,
	notify.KindPushable,
	notify.KindConflict,
	notify.KindError,
}

// present leaves exactly the wanted notifications shown. Those already shown stay as
// they are.
func (s *Session) present(wanted ...notification) {
	notice := s.notice()
	keep := make(map[notify.Kind]bool, len(wanted))
	for _, n := range wanted {
		keep[n.kind] = true
	}
	for _, kind := range notificationKinds {
		if !keep[kind] {
			s.notifier.Hide(notice, kind)
		}
	}
	for _, n := range wanted {
		switch n.kind {
		case notify.KindReloadable:
			s.notifier.ShowReloadable(notice)
		case notify.KindDeleted:
			s.notifier.ShowDeleted(notice)
		case notify.KindPushable:
			s.notifier.ShowPushable(notice)
		case notify.KindConflict:
			s.notifier.ShowConflict(notice)
		case notify.KindError:
			s.notifier.ShowError(notice, n.message, n.cause)
		}
	}
}

func (s *Session) notice() notify.Notice {
	n := notify.Notice{Document: s.doc.Path()}
	if s.handle != nil {
		n.Identity = s.handle.Identity()
	}
	return n
}

func (s *Session) observeWatch(h *cluster.Handle) {
	s.metrics.SetWatchState(s.doc.Path(), h.WatchState().String(), watchStates)
}

func (s *Session) record(action types.Action, verdict engine.Verdict, version, detail string) {
	if s.store == nil {
		return
	}
	event := types.SyncEvent{
		Document:  s.doc.Path(),
		Version:   version,
		Verdict:   string(verdict),
		Action:    action,
		Detail:    detail,
		Timestamp: time.Now(),
	}
	if s.handle != nil {
		id := s.handle.Identity()
		event.Kind, event.Namespace, event.Name = id.Kind, id.Namespace, id.Name
	}
	if err := s.store.Record(event); err != nil {
		klog.ErrorS(err, "Failed to record sync event", "document", event.Document)
	}
}
