package kubernetes

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/u2takey/go-utils/filesystem/homedir"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/discovery/cached/memory"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/restmapper"
	"k8s.io/client-go/tools/clientcmd"
)

// Clients bundles the clients built from one kubeconfig.
type Clients struct {
	Config    *rest.Config
	Dynamic   dynamic.Interface
	Clientset kubernetes.Interface
	// Namespace is the namespace of the current kubeconfig context, "default" when it
	// names none.
	Namespace string
}

// DefaultKubeconfig returns $KUBECONFIG, or ~/.kube/config when it is unset.
func DefaultKubeconfig() string {
	if env := os.Getenv("KUBECONFIG"); env != "" {
		return env
	}
	if home := homedir.HomeDir(); home != "" {
		return filepath.Join(home, ".kube", "config")
	}
	return ""
}

func NewClients(kubeconfig string) (*Clients, error) {
	config, err := clientcmd.BuildConfigFromFlags("", kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("failed to build config: %w", err)
	}

	dynamicClient, err := dynamic.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create dynamic client: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}

	return &Clients{
		Config:    config,
		Dynamic:   dynamicClient,
		Clientset: clientset,
		Namespace: contextNamespace(kubeconfig),
	}, nil
}

func contextNamespace(kubeconfig string) string {
	loader := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
		&clientcmd.ClientConfigLoadingRules{ExplicitPath: kubeconfig}, &clientcmd.ConfigOverrides{})
	namespace, _, err := loader.Namespace()
	if err != nil || namespace == "" {
		return metav1.NamespaceDefault
	}
	return namespace
}

// RESTMapper resolves kinds the registry does not know through cached discovery.
func (c *Clients) RESTMapper() meta.RESTMapper {
	return restmapper.NewDeferredDiscoveryRESTMapper(memory.NewMemCacheClient(c.Clientset.Discovery()))
}

// Registry returns a registry backed by these clients.
func (c *Clients) Registry() *Registry {
	return NewRegistry(c.Dynamic, c.RESTMapper())
}
