package kubernetes

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/watch"
	dynamicfake "k8s.io/client-go/dynamic/fake"

	"github.com/aonescu/kubedit/internal/faults"
	"github.com/aonescu/kubedit/internal/resource"
)

var (
	deploymentsGVR = schema.GroupVersionResource{Group: "apps", Version: "v1", Resource: "deployments"}
	widgetsGVR     = schema.GroupVersionResource{Group: "example.com", Version: "v1", Resource: "widgets"}
)

func newDeployment(namespace, name string, replicas int64) *unstructured.Unstructured {
	return &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "apps/v1",
		"kind":       "Deployment",
		"metadata": map[string]interface{}{
			"name":      name,
			"namespace": namespace,
		},
		"spec": map[string]interface{}{
			"replicas": replicas,
		},
	}}
}

func newTransport(t *testing.T, objects ...runtime.Object) (*Transport, *dynamicfake.FakeDynamicClient) {
	t.Helper()
	client := dynamicfake.NewSimpleDynamicClientWithCustomListKinds(runtime.NewScheme(), map[schema.GroupVersionResource]string{
		deploymentsGVR: "DeploymentList",
		widgetsGVR:     "WidgetList",
	}, objects...)
	return NewTransport(NewRegistry(client, nil)), client
}

func refOf(obj *unstructured.Unstructured) resource.Ref {
	return resource.RefOf(resource.NewSnapshot(obj))
}

func TestRegistry_LookupBuiltin(t *testing.T) {
	registry := NewRegistry(nil, nil)

	kind, err := registry.Lookup("apps/v1", "Deployment")
	require.NoError(t, err)
	assert.Equal(t, deploymentsGVR, kind.GVR)
	assert.True(t, kind.Namespaced)

	kind, err = registry.Lookup("v1", "Namespace")
	require.NoError(t, err)
	assert.False(t, kind.Namespaced)
}

func TestRegistry_LookupUnknownWithoutMapper(t *testing.T) {
	registry := NewRegistry(nil, nil)

	_, err := registry.Lookup("example.com/v1", "Widget")
	assert.True(t, faults.IsCategory(err, faults.ValidationError))

	// same kind name, different group
	_, err = registry.Lookup("extensions.example.com/v1", "Deployment")
	assert.True(t, faults.IsCategory(err, faults.ValidationError))

	_, err = registry.Lookup("a/b/c", "Deployment")
	assert.True(t, faults.IsCategory(err, faults.ValidationError))
}

func TestRegistry_LookupThroughMapper(t *testing.T) {
	gv := schema.GroupVersion{Group: "example.com", Version: "v1"}
	mapper := meta.NewDefaultRESTMapper([]schema.GroupVersion{gv})
	mapper.Add(gv.WithKind("Widget"), meta.RESTScopeNamespace)

	registry := NewRegistry(nil, mapper)
	kind, err := registry.Lookup("example.com/v1", "Widget")
	require.NoError(t, err)
	assert.Equal(t, widgetsGVR, kind.GVR)
	assert.True(t, kind.Namespaced)

	_, err = registry.Lookup("example.com/v1", "Gadget")
	assert.True(t, faults.IsCategory(err, faults.ValidationError))
}

func TestTransport_Get(t *testing.T) {
	existing := newDeployment("ns", "foo", 2)
	transport, _ := newTransport(t, existing)

	snapshot, err := transport.Get(context.Background(), refOf(existing))
	require.NoError(t, err)
	assert.True(t, resource.SemanticallyEqual(resource.NewSnapshot(existing), snapshot))

	_, err = transport.Get(context.Background(), refOf(newDeployment("ns", "missing", 1)))
	assert.True(t, faults.IsCategory(err, faults.NotFoundError))
}

func TestTransport_CreateOrReplace(t *testing.T) {
	transport, client := newTransport(t, newDeployment("ns", "foo", 2))
	ctx := context.Background()

	// create
	created, err := transport.CreateOrReplace(ctx, resource.NewSnapshot(newDeployment("ns", "bar", 1)))
	require.NoError(t, err)
	assert.Equal(t, "bar", created.Identity().Name)

	// replace without a version token
	_, err = transport.CreateOrReplace(ctx, resource.NewSnapshot(newDeployment("ns", "foo", 5)))
	require.NoError(t, err)

	current, err := client.Resource(deploymentsGVR).Namespace("ns").Get(ctx, "foo", metav1.GetOptions{})
	require.NoError(t, err)
	replicas, _, _ := unstructured.NestedInt64(current.Object, "spec", "replicas")
	assert.Equal(t, int64(5), replicas)

	// a version token for an object that is gone falls back to create
	stale := newDeployment("ns", "baz", 3)
	stale.SetResourceVersion("12")
	_, err = transport.CreateOrReplace(ctx, resource.NewSnapshot(stale))
	require.NoError(t, err)
	_, err = client.Resource(deploymentsGVR).Namespace("ns").Get(ctx, "baz", metav1.GetOptions{})
	require.NoError(t, err)
}

func TestTransport_List(t *testing.T) {
	transport, _ := newTransport(t, newDeployment("ns", "a", 1), newDeployment("ns", "b", 1), newDeployment("other", "c", 1))

	snapshots, err := transport.List(context.Background(), "apps/v1", "Deployment", "ns")
	require.NoError(t, err)
	assert.Len(t, snapshots, 2)
}

func TestTransport_Delete(t *testing.T) {
	existing := newDeployment("ns", "foo", 2)
	transport, _ := newTransport(t, existing)
	ctx := context.Background()

	require.NoError(t, transport.Delete(ctx, refOf(existing)))

	_, err := transport.Get(ctx, refOf(existing))
	assert.True(t, faults.IsCategory(err, faults.NotFoundError))

	err = transport.Delete(ctx, refOf(existing))
	assert.True(t, faults.IsCategory(err, faults.NotFoundError))
}

func TestTransport_Watch(t *testing.T) {
	transport, client := newTransport(t)
	ctx := context.Background()

	w, err := transport.Watch(ctx, refOf(newDeployment("ns", "foo", 1)))
	require.NoError(t, err)
	defer w.Stop()

	_, err = client.Resource(deploymentsGVR).Namespace("ns").Create(ctx, newDeployment("ns", "foo", 1), metav1.CreateOptions{})
	require.NoError(t, err)

	select {
	case event := <-w.ResultChan():
		assert.Equal(t, watch.Added, event.Type)
	case <-time.After(5 * time.Second):
		t.Fatal("Expected an added event")
	}
}

func TestClassify(t *testing.T) {
	ref := refOf(newDeployment("ns", "foo", 1))
	gr := deploymentsGVR.GroupResource()

	tests := []struct {
		err      error
		category faults.ErrorCategory
	}{
		{apierrors.NewNotFound(gr, "foo"), faults.NotFoundError},
		{apierrors.NewConflict(gr, "foo", errors.New("stale")), faults.ConflictError},
		{apierrors.NewUnauthorized("nope"), faults.TransportError},
		{apierrors.NewForbidden(gr, "foo", errors.New("rbac")), faults.TransportError},
		{apierrors.NewBadRequest("bad"), faults.ValidationError},
		{errors.New("dial tcp: connection refused"), faults.TransportError},
		{faults.NewTypedError(faults.ParseError, "kept", nil), faults.ParseError},
	}

	for _, tt := range tests {
		assert.True(t, faults.IsCategory(classify(tt.err, "get", ref), tt.category), "expected %s for %v", tt.category, tt.err)
	}
	assert.NoError(t, classify(nil, "get", ref))
}

func TestScope_DefaultNamespace(t *testing.T) {
	scope := NewScope(NewRegistry(nil, nil), "team")

	namespace, err := scope.DefaultNamespace("apps/v1", "Deployment")
	require.NoError(t, err)
	assert.Equal(t, "team", namespace)

	namespace, err = scope.DefaultNamespace("v1", "Namespace")
	require.NoError(t, err)
	assert.Empty(t, namespace)

	_, err = scope.DefaultNamespace("example.com/v1", "Widget")
	assert.True(t, faults.IsCategory(err, faults.ValidationError))
}

func TestContextNamespace(t *testing.T) {
	kubeconfig := filepath.Join(t.TempDir(), "config")
	require.NoError(t, os.WriteFile(kubeconfig, []byte(`apiVersion: v1
kind: Config
clusters:
- name: dev
  cluster:
    server: https://127.0.0.1:6443
users:
- name: dev
  user:
    token: secret
contexts:
- name: dev
  context:
    cluster: dev
    user: dev
    namespace: team
current-context: dev
`), 0o600))

	assert.Equal(t, "team", contextNamespace(kubeconfig))
	assert.Equal(t, "default", contextNamespace(filepath.Join(t.TempDir(), "missing")))
}
