package memory

import (
	"sort"
	"sync"

	"github.com/ehr/fhirsearch/pkg/expression"
)

// Scope holds the indexed values of one extraction context: either the
// top-level fields of a resource or one extracted value of a search parameter.
type Scope map[expression.FieldName][]expression.Value

// Resource is an indexed entity that expression trees are evaluated against.
type Resource struct {
	Type string
	ID   string
	// Fields are the resource's own indexed fields.
	Fields Scope
	// Params holds one Scope per extracted value of each search parameter.
	Params map[string][]Scope
	// Compartments maps a compartment type to the instance ids this resource
	// is a member of.
	Compartments map[string][]string
}

// Reference returns a reference to r.
func (r *Resource) Reference() expression.Reference {
	return expression.Reference{ResourceType: r.Type, ID: r.ID}
}

// InCompartment reports whether r belongs to the given compartment instance.
// A resource is always a member of its own compartment.
func (r *Resource) InCompartment(compartmentType, id string) bool {
	if r.Type == compartmentType && r.ID == id {
		return true
	}
	for _, member := range r.Compartments[compartmentType] {
		if member == id {
			return true
		}
	}
	return false
}

// references returns the reference values held in field, looking first at
// the resource's fields and then at the Reference values extracted for a
// search parameter of the same name.
func (r *Resource) references(field string) []expression.Reference {
	var refs []expression.Reference
	for _, v := range r.Fields[expression.FieldName(field)] {
		if v.Kind() == expression.ValueReference {
			refs = append(refs, v.Reference())
		}
	}
	for _, scope := range r.Params[field] {
		for _, v := range scope[expression.FieldReference] {
			if v.Kind() == expression.ValueReference {
				refs = append(refs, v.Reference())
			}
		}
	}
	return refs
}

// ---------------------------------------------------------------------------
// Store
// ---------------------------------------------------------------------------

// Store resolves the resources reached by chained searches.
type Store interface {
	// Get returns the resource of the given type and id.
	Get(resourceType, id string) (*Resource, bool)
	// ReferencedBy returns the resources of sourceType whose field references
	// target.
	ReferencedBy(sourceType, field string, target expression.Reference) []*Resource
}

// MapStore is an in-memory Store. It is safe for concurrent use.
type MapStore struct {
	mu        sync.RWMutex
	resources map[expression.Reference]*Resource
}

// NewMapStore creates a store holding the given resources.
func NewMapStore(resources ...*Resource) *MapStore {
	s := &MapStore{resources: make(map[expression.Reference]*Resource)}
	for _, r := range resources {
		s.Put(r)
	}
	return s
}

// Put adds or replaces a resource.
func (s *MapStore) Put(r *Resource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resources[r.Reference()] = r
}

// Get implements Store.
func (s *MapStore) Get(resourceType, id string) (*Resource, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.resources[expression.Reference{ResourceType: resourceType, ID: id}]
	return r, ok
}

// ReferencedBy implements Store. Results are ordered by id.
func (s *MapStore) ReferencedBy(sourceType, field string, target expression.Reference) []*Resource {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Resource
	for key, r := range s.resources {
		if key.ResourceType != sourceType {
			continue
		}
		for _, ref := range r.references(field) {
			if refersTo(ref, target) {
				out = append(out, r)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// All returns every stored resource of resourceType, ordered by id.
func (s *MapStore) All(resourceType string) []*Resource {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Resource
	for key, r := range s.resources {
		if key.ResourceType == resourceType {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// refersTo matches a stored reference against a target. A stored reference
// without a resource type matches on id alone.
func refersTo(ref, target expression.Reference) bool {
	if ref.ID != target.ID {
		return false
	}
	return ref.ResourceType == "" || ref.ResourceType == target.ResourceType
}
