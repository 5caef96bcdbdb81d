package session

import (
	"context"

	"github.com/aonescu/kubedit/internal/cluster"
	"github.com/aonescu/kubedit/internal/faults"
	"github.com/aonescu/kubedit/internal/resource"
)

// CreateFunc creates a document named baseName holding text.
type CreateFunc func(baseName string, text []byte) (Document, error)

// OpenResource fetches ref from the cluster, writes it to a new document and returns a
// session bound to it.
func OpenResource(ctx context.Context, pool *cluster.Pool, ref resource.Ref, create CreateFunc, opts Options) (*Session, error) {
	h, err := pool.Acquire(ref)
	if err != nil {
		return nil, err
	}
	defer pool.Release(h)

	server, err := h.Fetch(ctx, false)
	if err != nil {
		return nil, err
	}
	if server == nil {
		return nil, faults.NewTypedError(faults.NotFoundError, ref.Identity.String()+" does not exist on the cluster", nil)
	}

	text, err := resource.Serialize(server)
	if err != nil {
		return nil, err
	}
	doc, err := create(resource.FileName(ref.Identity), text)
	if err != nil {
		return nil, err
	}

	s := New(doc, pool, opts)
	if _, err := s.Update(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}
