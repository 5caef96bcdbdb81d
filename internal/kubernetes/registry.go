package kubernetes

import (
	"context"
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	rbacv1 "k8s.io/api/rbac/v1"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/fields"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/dynamic"
	"k8s.io/klog/v2"

	"github.com/aonescu/kubedit/internal/faults"
)

// Kind describes where a resource kind is served.
type Kind struct {
	GVR        schema.GroupVersionResource
	Namespaced bool
}

// Operations is the capability set for one kind. Every resource kind is served by the
// same generic handle, only the operation set differs.
type Operations struct {
	Get             func(ctx context.Context, namespace, name string) (*unstructured.Unstructured, error)
	List            func(ctx context.Context, namespace string) (*unstructured.UnstructuredList, error)
	Watch           func(ctx context.Context, namespace, name string) (watch.Interface, error)
	CreateOrReplace func(ctx context.Context, obj *unstructured.Unstructured) (*unstructured.Unstructured, error)
	Delete          func(ctx context.Context, namespace, name string) error
}

func builtinKinds() map[string]Kind {
	return map[string]Kind{
		"Pod":                   {GVR: corev1.SchemeGroupVersion.WithResource("pods"), Namespaced: true},
		"Service":               {GVR: corev1.SchemeGroupVersion.WithResource("services"), Namespaced: true},
		"ConfigMap":             {GVR: corev1.SchemeGroupVersion.WithResource("configmaps"), Namespaced: true},
		"Secret":                {GVR: corev1.SchemeGroupVersion.WithResource("secrets"), Namespaced: true},
		"ServiceAccount":        {GVR: corev1.SchemeGroupVersion.WithResource("serviceaccounts"), Namespaced: true},
		"PersistentVolumeClaim": {GVR: corev1.SchemeGroupVersion.WithResource("persistentvolumeclaims"), Namespaced: true},
		"PersistentVolume":      {GVR: corev1.SchemeGroupVersion.WithResource("persistentvolumes")},
		"Namespace":             {GVR: corev1.SchemeGroupVersion.WithResource("namespaces")},
		"Node":                  {GVR: corev1.SchemeGroupVersion.WithResource("nodes")},
		"Deployment":            {GVR: appsv1.SchemeGroupVersion.WithResource("deployments"), Namespaced: true},
		"StatefulSet":           {GVR: appsv1.SchemeGroupVersion.WithResource("statefulsets"), Namespaced: true},
		"DaemonSet":             {GVR: appsv1.SchemeGroupVersion.WithResource("daemonsets"), Namespaced: true},
		"ReplicaSet":            {GVR: appsv1.SchemeGroupVersion.WithResource("replicasets"), Namespaced: true},
		"Job":                   {GVR: batchv1.SchemeGroupVersion.WithResource("jobs"), Namespaced: true},
		"CronJob":               {GVR: batchv1.SchemeGroupVersion.WithResource("cronjobs"), Namespaced: true},
		"Ingress":               {GVR: networkingv1.SchemeGroupVersion.WithResource("ingresses"), Namespaced: true},
		"NetworkPolicy":         {GVR: networkingv1.SchemeGroupVersion.WithResource("networkpolicies"), Namespaced: true},
		"Role":                  {GVR: rbacv1.SchemeGroupVersion.WithResource("roles"), Namespaced: true},
		"RoleBinding":           {GVR: rbacv1.SchemeGroupVersion.WithResource("rolebindings"), Namespaced: true},
		"ClusterRole":           {GVR: rbacv1.SchemeGroupVersion.WithResource("clusterroles")},
		"ClusterRoleBinding":    {GVR: rbacv1.SchemeGroupVersion.WithResource("clusterrolebindings")},
	}
}

// Registry selects the operation set for a kind. Built-in kinds are known up front,
// anything else is resolved through the REST mapper when one is configured.
type Registry struct {
	client dynamic.Interface
	mapper meta.RESTMapper
	kinds  map[string]Kind
}

func NewRegistry(client dynamic.Interface, mapper meta.RESTMapper) *Registry {
	return &Registry{
		client: client,
		mapper: mapper,
		kinds:  builtinKinds(),
	}
}

// Lookup resolves kind, preferring the registered entry when its group matches the one
// named by apiVersion.
func (r *Registry) Lookup(apiVersion, kind string) (Kind, error) {
	gv, err := schema.ParseGroupVersion(apiVersion)
	if err != nil {
		return Kind{}, faults.NewTypedError(faults.ValidationError, fmt.Sprintf("invalid apiVersion %q", apiVersion), err)
	}

	registered, exists := r.kinds[kind]
	if exists && (apiVersion == "" || registered.GVR.Group == gv.Group) {
		return registered, nil
	}

	if r.mapper == nil {
		return Kind{}, faults.NewTypedError(faults.ValidationError, fmt.Sprintf("unsupported kind %s in %s", kind, apiVersion), nil)
	}
	mapping, err := r.mapper.RESTMapping(gv.WithKind(kind).GroupKind(), gv.Version)
	if err != nil {
		if meta.IsNoMatchError(err) {
			return Kind{}, faults.NewTypedError(faults.ValidationError, fmt.Sprintf("unsupported kind %s in %s", kind, apiVersion), err)
		}
		return Kind{}, faults.NewTypedError(faults.TransportError, "failed to discover "+kind, err)
	}
	klog.V(4).InfoS("Resolved kind through discovery", "kind", kind, "resource", mapping.Resource.String())
	return Kind{
		GVR:        mapping.Resource,
		Namespaced: mapping.Scope.Name() == meta.RESTScopeNameNamespace,
	}, nil
}

func (r *Registry) Operations(apiVersion, kind string) (Operations, error) {
	k, err := r.Lookup(apiVersion, kind)
	if err != nil {
		return Operations{}, err
	}
	return OperationsFor(r.client, k), nil
}

// OperationsFor builds the operation set for k on top of the dynamic client.
func OperationsFor(client dynamic.Interface, k Kind) Operations {
	scoped := func(namespace string) dynamic.ResourceInterface {
		if k.Namespaced {
			return client.Resource(k.GVR).Namespace(namespace)
		}
		return client.Resource(k.GVR)
	}

	return Operations{
		Get: func(ctx context.Context, namespace, name string) (*unstructured.Unstructured, error) {
			return scoped(namespace).Get(ctx, name, metav1.GetOptions{})
		},
		List: func(ctx context.Context, namespace string) (*unstructured.UnstructuredList, error) {
			return scoped(namespace).List(ctx, metav1.ListOptions{})
		},
		Watch: func(ctx context.Context, namespace, name string) (watch.Interface, error) {
			return scoped(namespace).Watch(ctx, metav1.ListOptions{
				FieldSelector: fields.OneTermEqualSelector("metadata.name", name).String(),
			})
		},
		CreateOrReplace: func(ctx context.Context, obj *unstructured.Unstructured) (*unstructured.Unstructured, error) {
			return createOrReplace(ctx, scoped(obj.GetNamespace()), obj)
		},
		Delete: func(ctx context.Context, namespace, name string) error {
			return scoped(namespace).Delete(ctx, name, metav1.DeleteOptions{})
		},
	}
}

func createOrReplace(ctx context.Context, ri dynamic.ResourceInterface, obj *unstructured.Unstructured) (*unstructured.Unstructured, error) {
	if obj.GetResourceVersion() != "" {
		updated, err := ri.Update(ctx, obj, metav1.UpdateOptions{})
		if err == nil || !isNotFound(err) {
			return updated, err
		}
		obj = obj.DeepCopy()
		obj.SetResourceVersion("")
	}

	created, err := ri.Create(ctx, obj, metav1.CreateOptions{})
	if err == nil || !isAlreadyExists(err) {
		return created, err
	}

	current, err := ri.Get(ctx, obj.GetName(), metav1.GetOptions{})
	if err != nil {
		return nil, err
	}
	replacement := obj.DeepCopy()
	replacement.SetResourceVersion(current.GetResourceVersion())
	return ri.Update(ctx, replacement, metav1.UpdateOptions{})
}
