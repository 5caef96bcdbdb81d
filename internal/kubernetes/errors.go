package kubernetes

import (
	"errors"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"

	"github.com/aonescu/kubedit/internal/faults"
	"github.com/aonescu/kubedit/internal/resource"
)

func isNotFound(err error) bool {
	return apierrors.IsNotFound(err)
}

func isAlreadyExists(err error) bool {
	return apierrors.IsAlreadyExists(err)
}

// classify maps an api server error onto the fault taxonomy. Errors already carrying a
// category pass through unchanged.
func classify(err error, action string, ref resource.Ref) error {
	if err == nil {
		return nil
	}
	var typedErr *faults.TypedError
	if errors.As(err, &typedErr) {
		return err
	}

	message := fmt.Sprintf("failed to %s %s", action, ref.Identity)
	switch {
	case apierrors.IsNotFound(err):
		return faults.NewTypedError(faults.NotFoundError, message, err)
	case apierrors.IsConflict(err):
		return faults.NewTypedError(faults.ConflictError, message, err)
	case apierrors.IsInvalid(err), apierrors.IsBadRequest(err):
		return faults.NewTypedError(faults.ValidationError, message, err)
	default:
		// unauthorized, forbidden, timeouts and connection failures all end up here
		return faults.NewTypedError(faults.TransportError, message, err)
	}
}
