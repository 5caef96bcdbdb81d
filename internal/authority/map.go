package authority

import "strings"

// ServerFieldMap holds the fields of a resource that are owned by the cluster.
type ServerFieldMap struct {
	paths []FieldPath
}

func NewServerFieldMap() *ServerFieldMap {
	m := &ServerFieldMap{}
	seen := make(map[string]bool)
	for _, mapping := range OwnerTable {
		for _, field := range mapping.Fields {
			if key := field.String(); !seen[key] {
				seen[key] = true
				m.paths = append(m.paths, field)
			}
		}
	}
	return m
}

// Strip removes every server owned field from obj in place. Maps left empty by the
// removal of a nested field are removed too.
func (m *ServerFieldMap) Strip(obj map[string]interface{}) {
	for _, field := range m.paths {
		removeField(obj, field)
	}
}

func removeField(obj map[string]interface{}, field FieldPath) {
	if len(field) == 0 || obj == nil {
		return
	}
	if len(field) == 1 {
		delete(obj, field[0])
		return
	}
	child, ok := obj[field[0]].(map[string]interface{})
	if !ok {
		return
	}
	removeField(child, field[1:])
	if len(child) == 0 {
		delete(obj, field[0])
	}
}

func (p FieldPath) String() string {
	return strings.Join(p, "/")
}
