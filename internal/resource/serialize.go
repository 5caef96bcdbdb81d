package resource

import (
	"bytes"
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"sigs.k8s.io/yaml"

	"github.com/aonescu/kubedit/internal/faults"
)

// Parse reads a single YAML or JSON resource document.
func Parse(text []byte) (*Snapshot, error) {
	if len(bytes.TrimSpace(text)) == 0 {
		return nil, faults.NewTypedError(faults.ParseError, "document is empty", nil)
	}
	data, err := yaml.YAMLToJSON(text)
	if err != nil {
		return nil, faults.NewTypedError(faults.ParseError, "document is not valid yaml", err)
	}
	obj := &unstructured.Unstructured{}
	if err := obj.UnmarshalJSON(data); err != nil {
		return nil, faults.NewTypedError(faults.ParseError, "document is not a resource", err)
	}
	if strings.TrimSpace(obj.GetAPIVersion()) == "" {
		return nil, faults.NewTypedError(faults.ParseError, "document has no apiVersion", nil)
	}
	snapshot := NewSnapshot(obj)
	if err := snapshot.Identity().Validate(); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// Serialize renders the snapshot as YAML. Managed field entries are left out since they
// only add noise to an edited document.
func Serialize(s *Snapshot) ([]byte, error) {
	if s == nil {
		return nil, faults.NewTypedError(faults.InternalError, "nothing to serialize", nil)
	}
	obj := s.Object()
	obj.SetManagedFields(nil)
	data, err := yaml.Marshal(obj.Object)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize %s: %w", s.Identity(), err)
	}
	return data, nil
}
