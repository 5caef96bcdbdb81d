package cluster

import (
	"context"

	"k8s.io/apimachinery/pkg/watch"

	"github.com/aonescu/kubedit/internal/resource"
)

// Transport is the cluster access a handle needs. Get reports an absent object as a
// faults.NotFoundError.
type Transport interface {
	Get(ctx context.Context, ref resource.Ref) (*resource.Snapshot, error)
	CreateOrReplace(ctx context.Context, s *resource.Snapshot) (*resource.Snapshot, error)
	Watch(ctx context.Context, ref resource.Ref) (watch.Interface, error)
}
