// Package clustertest provides an in-memory cluster transport for tests.
package clustertest

import (
	"context"
	"strconv"
	"sync"

	"k8s.io/apimachinery/pkg/watch"

	"github.com/aonescu/kubedit/internal/faults"
	"github.com/aonescu/kubedit/internal/resource"
)

// Transport keeps objects in memory and assigns increasing numeric version tokens on
// every write. Watchers are fakes the test drives through Emit.
type Transport struct {
	mu       sync.Mutex
	objects  map[resource.Identity]*resource.Snapshot
	version  int
	watchers []*watch.RaceFreeFakeWatcher

	GetErr   error
	PushErr  error
	WatchErr error

	Gets    int
	Pushes  int
	Watches int
}

func NewTransport() *Transport {
	return &Transport{
		objects: make(map[resource.Identity]*resource.Snapshot),
	}
}

func (t *Transport) Get(_ context.Context, ref resource.Ref) (*resource.Snapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Gets++
	if t.GetErr != nil {
		return nil, t.GetErr
	}
	s, exists := t.objects[ref.Identity]
	if !exists {
		return nil, faults.NewTypedError(faults.NotFoundError, ref.Identity.String()+" not found", nil)
	}
	return s, nil
}

func (t *Transport) CreateOrReplace(_ context.Context, s *resource.Snapshot) (*resource.Snapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Pushes++
	if t.PushErr != nil {
		return nil, t.PushErr
	}
	return t.store(s), nil
}

func (t *Transport) Watch(_ context.Context, _ resource.Ref) (watch.Interface, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Watches++
	if t.WatchErr != nil {
		return nil, t.WatchErr
	}
	w := watch.NewRaceFreeFake()
	t.watchers = append(t.watchers, w)
	return w, nil
}

// Put stores s as a server side write and returns the stored, versioned copy. Nothing is
// emitted to watchers.
func (t *Transport) Put(s *resource.Snapshot) *resource.Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.store(s)
}

// Remove deletes the object without notifying watchers.
func (t *Transport) Remove(id resource.Identity) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.objects, id)
}

// Object returns the stored copy of id.
func (t *Transport) Object(id resource.Identity) *resource.Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.objects[id]
}

// Watcher returns the most recently started watcher, nil if none was started.
func (t *Transport) Watcher() *watch.RaceFreeFakeWatcher {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.watchers) == 0 {
		return nil
	}
	return t.watchers[len(t.watchers)-1]
}

// Modify writes s on the server and emits a modified event on the latest watcher.
func (t *Transport) Modify(s *resource.Snapshot) *resource.Snapshot {
	stored := t.Put(s)
	if w := t.Watcher(); w != nil && !w.IsStopped() {
		w.Modify(stored.Object())
	}
	return stored
}

// Delete removes the object and emits a deleted event on the latest watcher.
func (t *Transport) Delete(id resource.Identity) {
	t.mu.Lock()
	s := t.objects[id]
	delete(t.objects, id)
	t.mu.Unlock()
	if w := t.Watcher(); w != nil && s != nil && !w.IsStopped() {
		w.Delete(s.Object())
	}
}

func (t *Transport) store(s *resource.Snapshot) *resource.Snapshot {
	t.version++
	stored := s.WithVersion(strconv.Itoa(t.version))
	t.objects[stored.Identity()] = stored
	return stored
}
