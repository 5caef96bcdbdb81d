package resource

import (
	"fmt"
	"regexp"
	"strings"

	"k8s.io/apimachinery/pkg/api/validation/path"
	"k8s.io/apimachinery/pkg/util/validation"

	"github.com/aonescu/kubedit/internal/faults"
)

var kindPattern = regexp.MustCompile(`^[A-Z][A-Za-z0-9]*$`)

// Identity names one resource across edits. Generation and resourceVersion are not part
// of it.
type Identity struct {
	Kind      string `json:"kind"`
	Namespace string `json:"namespace,omitempty"`
	Name      string `json:"name"`
}

func (i Identity) String() string {
	if i.Namespace == "" {
		return fmt.Sprintf("%s/%s", i.Kind, i.Name)
	}
	return fmt.Sprintf("%s/%s/%s", i.Kind, i.Namespace, i.Name)
}

// Validate reports a ValidationError when kind, namespace or name cannot address a
// resource on a cluster.
func (i Identity) Validate() error {
	if !kindPattern.MatchString(i.Kind) {
		return faults.NewTypedError(faults.ValidationError, fmt.Sprintf("invalid kind %q", i.Kind), nil)
	}
	if strings.TrimSpace(i.Name) == "" {
		return faults.NewTypedError(faults.ValidationError, fmt.Sprintf("%s has no name", i.Kind), nil)
	}
	if msgs := path.IsValidPathSegmentName(i.Name); len(msgs) > 0 {
		return faults.NewTypedError(faults.ValidationError,
			fmt.Sprintf("invalid name %q: %s", i.Name, strings.Join(msgs, ", ")), nil)
	}
	if i.Namespace != "" {
		if msgs := validation.IsDNS1123Label(i.Namespace); len(msgs) > 0 {
			return faults.NewTypedError(faults.ValidationError,
				fmt.Sprintf("invalid namespace %q: %s", i.Namespace, strings.Join(msgs, ", ")), nil)
		}
	}
	return nil
}

// ParseIdentity reads KIND/NAME or KIND/NAMESPACE/NAME.
func ParseIdentity(text string) (Identity, error) {
	parts := strings.Split(strings.TrimSpace(text), "/")
	var id Identity
	switch len(parts) {
	case 2:
		id = Identity{Kind: parts[0], Name: parts[1]}
	case 3:
		id = Identity{Kind: parts[0], Namespace: parts[1], Name: parts[2]}
	default:
		return Identity{}, faults.NewTypedError(faults.ValidationError,
			fmt.Sprintf("expected KIND/NAME or KIND/NAMESPACE/NAME, got %q", text), nil)
	}
	if err := id.Validate(); err != nil {
		return Identity{}, err
	}
	return id, nil
}

// SameResource reports whether a and b address the same cluster object.
func SameResource(a, b Identity) bool {
	return a == b
}

// FileName is the natural base name of a document holding the resource.
func FileName(id Identity) string {
	if id.Namespace == "" {
		return id.Name + ".yaml"
	}
	return id.Name + "@" + id.Namespace + ".yaml"
}

// Ref locates a resource on a cluster: its identity plus the apiVersion needed to pick
// the endpoint serving its kind.
type Ref struct {
	APIVersion string `json:"apiVersion,omitempty"`
	Identity
}

// RefOf returns the cluster reference of a snapshot.
func RefOf(s *Snapshot) Ref {
	if s == nil {
		return Ref{}
	}
	return Ref{APIVersion: s.APIVersion(), Identity: s.Identity()}
}
