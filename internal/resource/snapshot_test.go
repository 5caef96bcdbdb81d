package resource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/aonescu/kubedit/internal/faults"
)

const deploymentYAML = `apiVersion: apps/v1
kind: Deployment
metadata:
  name: foo
  namespace: ns
  resourceVersion: "7"
  uid: 0b5a7d0e
  generation: 2
  creationTimestamp: "2024-01-02T03:04:05Z"
  labels:
    app: foo
spec:
  replicas: 2
  template:
    spec:
      containers:
      - name: app
        image: nginx:1.25
        ports:
        - containerPort: 80
status:
  readyReplicas: 2
`

func deployment(t *testing.T, version string, replicas int64) *Snapshot {
	t.Helper()
	obj := &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "apps/v1",
		"kind":       "Deployment",
		"metadata": map[string]interface{}{
			"name":      "foo",
			"namespace": "ns",
		},
		"spec": map[string]interface{}{
			"replicas": replicas,
		},
	}}
	if version != "" {
		obj.SetResourceVersion(version)
	}
	return NewSnapshot(obj)
}

func TestParse(t *testing.T) {
	s, err := Parse([]byte(deploymentYAML))
	require.NoError(t, err)

	assert.Equal(t, Identity{Kind: "Deployment", Namespace: "ns", Name: "foo"}, s.Identity())
	assert.Equal(t, "7", s.Version())
	assert.Equal(t, "apps/v1", s.APIVersion())
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		category faults.ErrorCategory
	}{
		{name: "empty", text: "  \n", category: faults.ParseError},
		{name: "not yaml", text: "kind: [unclosed", category: faults.ParseError},
		{name: "no kind", text: "apiVersion: v1\nmetadata:\n  name: x\n", category: faults.ParseError},
		{name: "no apiVersion", text: "kind: ConfigMap\nmetadata:\n  name: x\n", category: faults.ParseError},
		{name: "no name", text: "apiVersion: v1\nkind: ConfigMap\nmetadata: {}\n", category: faults.ValidationError},
		{name: "bad namespace", text: "apiVersion: v1\nkind: ConfigMap\nmetadata:\n  name: x\n  namespace: Bad_NS\n", category: faults.ValidationError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.text))
			require.Error(t, err)
			assert.True(t, faults.IsCategory(err, tt.category), "expected %s, got %v", tt.category, err)
		})
	}
}

func TestRoundTrip(t *testing.T) {
	original, err := Parse([]byte(deploymentYAML))
	require.NoError(t, err)

	text, err := Serialize(original)
	require.NoError(t, err)

	parsed, err := Parse(text)
	require.NoError(t, err)

	assert.True(t, SemanticallyEqual(original, parsed))
	assert.Equal(t, original.Version(), parsed.Version())
}

func TestSerializeDropsManagedFields(t *testing.T) {
	s, err := Parse([]byte(deploymentYAML))
	require.NoError(t, err)
	obj := s.Object()
	err = unstructured.SetNestedSlice(obj.Object, []interface{}{
		map[string]interface{}{"manager": "kubectl"},
	}, "metadata", "managedFields")
	require.NoError(t, err)

	text, err := Serialize(NewSnapshot(obj))
	require.NoError(t, err)
	assert.NotContains(t, string(text), "managedFields")
	assert.Contains(t, string(text), "resourceVersion")
}

func TestSemanticallyEqual(t *testing.T) {
	assert.True(t, SemanticallyEqual(deployment(t, "1", 2), deployment(t, "9", 2)),
		"version token must be ignored")
	assert.False(t, SemanticallyEqual(deployment(t, "1", 2), deployment(t, "1", 3)))
	assert.True(t, SemanticallyEqual(nil, nil))
	assert.False(t, SemanticallyEqual(deployment(t, "1", 2), nil))

	parsed, err := Parse([]byte(deploymentYAML))
	require.NoError(t, err)
	obj := parsed.Object()
	obj.SetUID("another")
	obj.SetGeneration(99)
	unstructured.SetNestedField(obj.Object, int64(0), "status", "readyReplicas")
	assert.True(t, SemanticallyEqual(parsed, NewSnapshot(obj)), "bookkeeping fields must be ignored")
}

func TestSnapshotIsImmutable(t *testing.T) {
	s := deployment(t, "1", 2)

	obj := s.Object()
	unstructured.SetNestedField(obj.Object, int64(5), "spec", "replicas")

	replicas, _, _ := unstructured.NestedInt64(s.Object().Object, "spec", "replicas")
	assert.Equal(t, int64(2), replicas)

	bumped := s.WithVersion("2")
	assert.Equal(t, "1", s.Version())
	assert.Equal(t, "2", bumped.Version())
	assert.True(t, SemanticallyEqual(s, bumped))
}

func TestVersionNewer(t *testing.T) {
	assert.True(t, VersionNewer("10", "9"))
	assert.False(t, VersionNewer("9", "10"))
	assert.False(t, VersionNewer("9", "9"))
	assert.True(t, VersionNewer("abc", "abd"))
	assert.False(t, VersionNewer("abc", "abc"))
	assert.False(t, VersionNewer("", "3"))
	assert.False(t, VersionNewer("3", ""))
}
