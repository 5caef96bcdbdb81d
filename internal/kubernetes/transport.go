package kubernetes

import (
	"context"

	"k8s.io/apimachinery/pkg/watch"

	"github.com/aonescu/kubedit/internal/faults"
	"github.com/aonescu/kubedit/internal/resource"
)

// Transport talks to the cluster on behalf of resource handles. An absent object is
// reported as a NotFoundError, never as a nil snapshot.
type Transport struct {
	registry *Registry
}

func NewTransport(registry *Registry) *Transport {
	return &Transport{registry: registry}
}

func (t *Transport) Get(ctx context.Context, ref resource.Ref) (*resource.Snapshot, error) {
	ops, err := t.registry.Operations(ref.APIVersion, ref.Kind)
	if err != nil {
		return nil, err
	}
	obj, err := ops.Get(ctx, ref.Namespace, ref.Name)
	if err != nil {
		return nil, classify(err, "get", ref)
	}
	return resource.NewSnapshot(obj), nil
}

func (t *Transport) CreateOrReplace(ctx context.Context, s *resource.Snapshot) (*resource.Snapshot, error) {
	if s == nil {
		return nil, faults.NewTypedError(faults.InternalError, "nothing to push", nil)
	}
	ref := resource.RefOf(s)
	ops, err := t.registry.Operations(ref.APIVersion, ref.Kind)
	if err != nil {
		return nil, err
	}
	obj, err := ops.CreateOrReplace(ctx, s.Object())
	if err != nil {
		return nil, classify(err, "push", ref)
	}
	return resource.NewSnapshot(obj), nil
}

func (t *Transport) Watch(ctx context.Context, ref resource.Ref) (watch.Interface, error) {
	ops, err := t.registry.Operations(ref.APIVersion, ref.Kind)
	if err != nil {
		return nil, err
	}
	w, err := ops.Watch(ctx, ref.Namespace, ref.Name)
	if err != nil {
		return nil, classify(err, "watch", ref)
	}
	return w, nil
}

// List returns every object of the given kind in namespace.
func (t *Transport) List(ctx context.Context, apiVersion, kind, namespace string) ([]*resource.Snapshot, error) {
	ops, err := t.registry.Operations(apiVersion, kind)
	if err != nil {
		return nil, err
	}
	list, err := ops.List(ctx, namespace)
	if err != nil {
		return nil, classify(err, "list", resource.Ref{APIVersion: apiVersion, Identity: resource.Identity{Kind: kind, Namespace: namespace}})
	}
	snapshots := make([]*resource.Snapshot, 0, len(list.Items))
	for i := range list.Items {
		snapshots = append(snapshots, resource.NewSnapshot(&list.Items[i]))
	}
	return snapshots, nil
}

func (t *Transport) Delete(ctx context.Context, ref resource.Ref) error {
	ops, err := t.registry.Operations(ref.APIVersion, ref.Kind)
	if err != nil {
		return err
	}
	return classify(ops.Delete(ctx, ref.Namespace, ref.Name), "delete", ref)
}
