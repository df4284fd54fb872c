package expression

import (
	"fmt"
	"regexp"
	"sort"
	"sync"
)

// FieldName names an indexed field that a leaf predicate compares against.
type FieldName string

// Standard index fields produced by search-value extraction.
const (
	FieldDateTimeStart         FieldName = "DateTimeStart"
	FieldDateTimeEnd           FieldName = "DateTimeEnd"
	FieldNumber                FieldName = "Number"
	FieldQuantity              FieldName = "Quantity"
	FieldQuantityCode          FieldName = "QuantityCode"
	FieldQuantitySystem        FieldName = "QuantitySystem"
	FieldReference             FieldName = "Reference"
	FieldReferenceResourceType FieldName = "ReferenceResourceType"
	FieldString                FieldName = "String"
	FieldTokenCode             FieldName = "TokenCode"
	FieldTokenSystem           FieldName = "TokenSystem"
	FieldTokenText             FieldName = "TokenText"
	FieldURI                   FieldName = "Uri"
)

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.\-]*$`)

// Valid reports whether f is usable as an indexed field identifier.
func (f FieldName) Valid() bool {
	return fieldPattern.MatchString(string(f))
}

// ParamType is the FHIR SearchParameter.type of a declared parameter.
type ParamType string

const (
	ParamNumber    ParamType = "number"
	ParamDate      ParamType = "date"
	ParamString    ParamType = "string"
	ParamToken     ParamType = "token"
	ParamReference ParamType = "reference"
	ParamComposite ParamType = "composite"
	ParamQuantity  ParamType = "quantity"
	ParamURI       ParamType = "uri"
	ParamSpecial   ParamType = "special"
)

// SearchParameterInfo describes a declared search parameter.
type SearchParameterInfo struct {
	Name string
	// Code is the name used on the query string; it defaults to Name.
	Code string
	Type ParamType
	// ResourceTypes lists the resource types the parameter is declared on.
	// Empty means the parameter applies to every resource type.
	ResourceTypes []string
	// TargetResourceTypes lists the reference targets of a reference parameter.
	TargetResourceTypes []string
}

func (p SearchParameterInfo) clone() SearchParameterInfo {
	p.ResourceTypes = append([]string(nil), p.ResourceTypes...)
	p.TargetResourceTypes = append([]string(nil), p.TargetResourceTypes...)
	if p.Code == "" {
		p.Code = p.Name
	}
	return p
}

// AppliesTo reports whether the parameter is declared on resourceType.
func (p SearchParameterInfo) AppliesTo(resourceType string) bool {
	if len(p.ResourceTypes) == 0 {
		return true
	}
	for _, rt := range p.ResourceTypes {
		if rt == resourceType || rt == "Resource" || rt == "DomainResource" {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// ParameterRegistry
// ---------------------------------------------------------------------------

// ParameterRegistry holds the declared search parameters that trees may
// reference. It is safe for concurrent use.
type ParameterRegistry struct {
	mu     sync.RWMutex
	params map[string]SearchParameterInfo
}

// NewParameterRegistry creates an empty registry.
func NewParameterRegistry() *ParameterRegistry {
	return &ParameterRegistry{params: make(map[string]SearchParameterInfo)}
}

// Register declares a parameter. Names must be unique.
func (r *ParameterRegistry) Register(info SearchParameterInfo) error {
	if info.Name == "" {
		return invalid(KindSearchParameter, "search parameter name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.params[info.Name]; exists {
		return fmt.Errorf("search parameter %q already registered", info.Name)
	}
	r.params[info.Name] = info.clone()
	return nil
}

// Lookup returns the declared parameter called name on resourceType. An
// unknown parameter fails with an *InvalidExpressionError so that callers
// building a tree can return it directly.
func (r *ParameterRegistry) Lookup(resourceType, name string) (*SearchParameterInfo, error) {
	r.mu.RLock()
	info, ok := r.params[name]
	r.mu.RUnlock()
	if !ok {
		return nil, invalid(KindSearchParameter, fmt.Sprintf("unknown search parameter %q", name))
	}
	if resourceType != "" && !info.AppliesTo(resourceType) {
		return nil, invalid(KindSearchParameter,
			fmt.Sprintf("search parameter %q is not declared on resource type %q", name, resourceType))
	}
	cp := info.clone()
	return &cp, nil
}

// Names returns the registered parameter names, sorted.
func (r *ParameterRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.params))
	for name := range r.params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultParameterRegistry returns a registry pre-loaded with the common
// search parameters used across the standard clinical resources.
func DefaultParameterRegistry() *ParameterRegistry {
	r := NewParameterRegistry()
	for _, info := range []SearchParameterInfo{
		{Name: "_id", Type: ParamToken},
		{Name: "_lastUpdated", Type: ParamDate},
		{Name: "status", Type: ParamToken, ResourceTypes: []string{"Observation", "Encounter", "MedicationRequest", "Condition"}},
		{Name: "code", Type: ParamToken, ResourceTypes: []string{"Observation", "Condition", "MedicationRequest"}},
		{Name: "name", Type: ParamString, ResourceTypes: []string{"Patient", "Practitioner", "Organization"}},
		{Name: "family", Type: ParamString, ResourceTypes: []string{"Patient", "Practitioner"}},
		{Name: "given", Type: ParamString, ResourceTypes: []string{"Patient", "Practitioner"}},
		{Name: "gender", Type: ParamToken, ResourceTypes: []string{"Patient", "Practitioner"}},
		{Name: "birthdate", Type: ParamDate, ResourceTypes: []string{"Patient"}},
		{Name: "identifier", Type: ParamToken, ResourceTypes: []string{"Patient", "Practitioner", "Organization"}},
		{Name: "date", Type: ParamDate, ResourceTypes: []string{"Observation", "Encounter"}},
		{Name: "value-quantity", Type: ParamQuantity, ResourceTypes: []string{"Observation"}},
		{Name: "patient", Type: ParamReference, ResourceTypes: []string{"Observation", "Encounter", "Condition", "MedicationRequest"}, TargetResourceTypes: []string{"Patient"}},
		{Name: "subject", Type: ParamReference, ResourceTypes: []string{"Observation", "Encounter", "Condition", "MedicationRequest"}, TargetResourceTypes: []string{"Patient", "Group"}},
		{Name: "encounter", Type: ParamReference, ResourceTypes: []string{"Observation", "Condition"}, TargetResourceTypes: []string{"Encounter"}},
		{Name: "general-practitioner", Type: ParamReference, ResourceTypes: []string{"Patient"}, TargetResourceTypes: []string{"Practitioner", "Organization"}},
		{Name: "organization", Type: ParamReference, ResourceTypes: []string{"Practitioner", "Patient"}, TargetResourceTypes: []string{"Organization"}},
	} {
		// Names above are unique; Register cannot fail here.
		_ = r.Register(info)
	}
	return r
}
