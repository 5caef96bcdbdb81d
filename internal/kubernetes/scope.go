package kubernetes

// Scope places resources that name no namespace. Namespaced kinds go to the default
// namespace, cluster scoped kinds stay without one.
type Scope struct {
	registry  *Registry
	namespace string
}

func NewScope(registry *Registry, namespace string) *Scope {
	return &Scope{registry: registry, namespace: namespace}
}

// DefaultNamespace returns the namespace a resource of the given kind lives in when it
// names none.
func (s *Scope) DefaultNamespace(apiVersion, kind string) (string, error) {
	k, err := s.registry.Lookup(apiVersion, kind)
	if err != nil {
		return "", err
	}
	if !k.Namespaced {
		return "", nil
	}
	return s.namespace, nil
}
