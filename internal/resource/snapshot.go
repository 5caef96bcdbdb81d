package resource

import (
	"bytes"
	"encoding/json"
	"strconv"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/aonescu/kubedit/internal/authority"
)

var serverFields = authority.NewServerFieldMap()

// Snapshot is an immutable point-in-time copy of one resource object. Accessors hand out
// copies, updates produce a new Snapshot.
type Snapshot struct {
	obj      *unstructured.Unstructured
	identity Identity
	payload  []byte
}

// NewSnapshot copies obj. It returns nil for a nil object.
func NewSnapshot(obj *unstructured.Unstructured) *Snapshot {
	if obj == nil {
		return nil
	}
	copied := obj.DeepCopy()
	s := &Snapshot{
		obj: copied,
		identity: Identity{
			Kind:      copied.GetKind(),
			Namespace: copied.GetNamespace(),
			Name:      copied.GetName(),
		},
	}
	s.payload = canonicalPayload(copied.Object)
	return s
}

func (s *Snapshot) Identity() Identity {
	return s.identity
}

func (s *Snapshot) APIVersion() string {
	return s.obj.GetAPIVersion()
}

// Version is the opaque token the server assigned on its last write. It is empty for a
// snapshot that never came from the cluster.
func (s *Snapshot) Version() string {
	return s.obj.GetResourceVersion()
}

// Object returns a deep copy of the full object.
func (s *Snapshot) Object() *unstructured.Unstructured {
	return s.obj.DeepCopy()
}

// WithVersion returns a copy carrying the given version token.
func (s *Snapshot) WithVersion(version string) *Snapshot {
	obj := s.obj.DeepCopy()
	obj.SetResourceVersion(version)
	return NewSnapshot(obj)
}

// WithNamespace returns a copy placed in namespace.
func (s *Snapshot) WithNamespace(namespace string) *Snapshot {
	obj := s.obj.DeepCopy()
	obj.SetNamespace(namespace)
	return NewSnapshot(obj)
}

// IdentityOf projects a snapshot onto its identity.
func IdentityOf(s *Snapshot) Identity {
	if s == nil {
		return Identity{}
	}
	return s.identity
}

// SemanticallyEqual compares identity and payload, ignoring the version token and the
// fields the cluster populates on its own.
func SemanticallyEqual(a, b *Snapshot) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.identity == b.identity && bytes.Equal(a.payload, b.payload)
}

// VersionNewer reports whether the server token is strictly newer than the local one.
// Tokens compare numerically when both are unsigned integers. An empty local token means
// the local copy was never synced and nothing can be newer than it.
func VersionNewer(server, local string) bool {
	if server == "" || local == "" {
		return false
	}
	serverNum, serr := strconv.ParseUint(server, 10, 64)
	localNum, lerr := strconv.ParseUint(local, 10, 64)
	if serr == nil && lerr == nil {
		return serverNum > localNum
	}
	return server != local
}

func canonicalPayload(obj map[string]interface{}) []byte {
	stripped := runtimeDeepCopy(obj)
	serverFields.Strip(stripped)
	// encoding/json sorts map keys and prints int64(1) and float64(1) alike
	data, err := json.Marshal(stripped)
	if err != nil {
		return nil
	}
	return data
}

func runtimeDeepCopy(obj map[string]interface{}) map[string]interface{} {
	return (&unstructured.Unstructured{Object: obj}).DeepCopy().Object
}
