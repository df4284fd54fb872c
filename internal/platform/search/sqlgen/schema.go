package sqlgen

import (
	"fmt"
	"sort"

	"github.com/ehr/fhirsearch/pkg/expression"
)

const (
	// IDColumn is the surrogate UUID primary key of every resource table.
	IDColumn = "id"
	// FHIRIDColumn holds the logical FHIR id of the resource.
	FHIRIDColumn = "fhir_id"
)

// ParamMapping maps a search parameter to the columns its extracted values
// are stored in.
type ParamMapping struct {
	// Column is tested by missing-parameter checks.
	Column string
	// Fields maps index fields referenced inside the parameter scope to
	// columns. Fields not listed fall back to the table's Columns.
	Fields map[expression.FieldName]string
}

// TableMapping describes how one resource type is stored.
type TableMapping struct {
	Table   string
	Columns map[expression.FieldName]string
	Params  map[string]ParamMapping
	// References maps a reference field or parameter to the UUID column
	// holding the target's id.
	References map[string]string
	// Compartments maps a compartment type to the UUID column linking the
	// resource to the compartment owner.
	Compartments map[string]string
}

// Schema maps resource types to their table mappings.
type Schema map[string]*TableMapping

// Table returns the mapping for resourceType.
func (s Schema) Table(resourceType string) (*TableMapping, error) {
	tm, ok := s[resourceType]
	if !ok {
		return nil, fmt.Errorf("resource type %q has no table mapping", resourceType)
	}
	return tm, nil
}

// ResourceTypes returns the mapped resource types, sorted.
func (s Schema) ResourceTypes() []string {
	types := make([]string, 0, len(s))
	for rt := range s {
		types = append(types, rt)
	}
	sort.Strings(types)
	return types
}

// scalar maps every listed field to col.
func scalar(col string, fields ...expression.FieldName) ParamMapping {
	m := ParamMapping{Column: col, Fields: make(map[expression.FieldName]string, len(fields))}
	for _, f := range fields {
		m.Fields[f] = col
	}
	return m
}

func token(codeCol, sysCol string) ParamMapping {
	m := scalar(codeCol, expression.FieldTokenCode)
	if sysCol != "" {
		m.Fields[expression.FieldTokenSystem] = sysCol
	}
	return m
}

func date(col string) ParamMapping {
	return scalar(col, expression.FieldDateTimeStart, expression.FieldDateTimeEnd)
}

func reference(col string) ParamMapping {
	return scalar(col, expression.FieldReference)
}

func str(col string) ParamMapping {
	return scalar(col, expression.FieldString)
}

func common(params map[string]ParamMapping) map[string]ParamMapping {
	params["_id"] = token(FHIRIDColumn, "")
	params["_lastUpdated"] = date("updated_at")
	return params
}

// DefaultSchema returns the table layout of the standard clinical resources.
func DefaultSchema() Schema {
	return Schema{
		"Patient": {
			Table: "patients",
			Columns: map[expression.FieldName]string{
				"id":           FHIRIDColumn,
				"name":         "last_name",
				"family":       "last_name",
				"given":        "first_name",
				"gender":       "gender",
				"birthDate":    "birth_date",
				"deceasedDate": "deceased_datetime",
				"active":       "active",
			},
			Params: common(map[string]ParamMapping{
				"name":                 str("last_name"),
				"family":               str("last_name"),
				"given":                str("first_name"),
				"gender":               token("gender", ""),
				"birthdate":            date("birth_date"),
				"identifier":           token("identifier_value", "identifier_system"),
				"general-practitioner": reference("practitioner_id"),
				"organization":         reference("managing_organization_id"),
			}),
			References: map[string]string{
				"general-practitioner": "practitioner_id",
				"generalPractitioner":  "practitioner_id",
				"organization":         "managing_organization_id",
			},
			Compartments: map[string]string{
				"Practitioner": "practitioner_id",
			},
		},
		"Practitioner": {
			Table: "practitioners",
			Columns: map[expression.FieldName]string{
				"id":     FHIRIDColumn,
				"name":   "last_name",
				"family": "last_name",
				"given":  "first_name",
				"gender": "gender",
				"active": "active",
			},
			Params: common(map[string]ParamMapping{
				"name":         str("last_name"),
				"family":       str("last_name"),
				"given":        str("first_name"),
				"gender":       token("gender", ""),
				"identifier":   token("identifier_value", "identifier_system"),
				"organization": reference("organization_id"),
			}),
			References: map[string]string{
				"organization": "organization_id",
			},
		},
		"Organization": {
			Table: "organizations",
			Columns: map[expression.FieldName]string{
				"id":     FHIRIDColumn,
				"name":   "name",
				"active": "active",
			},
			Params: common(map[string]ParamMapping{
				"name":       str("name"),
				"identifier": token("identifier_value", "identifier_system"),
			}),
		},
		"Observation": {
			Table: "observations",
			Columns: map[expression.FieldName]string{
				"id":            FHIRIDColumn,
				"status":        "status",
				"code":          "code_value",
				"effectiveDate": "effective_date",
				"value":         "value_quantity",
				"patient":       "patient_id",
				"subject":       "patient_id",
				"encounter":     "encounter_id",
			},
			Params: common(map[string]ParamMapping{
				"status": token("status", ""),
				"code":   token("code_value", "code_system"),
				"date":   date("effective_date"),
				"value-quantity": {
					Column: "value_quantity",
					Fields: map[expression.FieldName]string{
						expression.FieldQuantity:     "value_quantity",
						expression.FieldQuantityCode: "value_unit",
					},
				},
				"patient":   reference("patient_id"),
				"subject":   reference("patient_id"),
				"encounter": reference("encounter_id"),
			}),
			References: map[string]string{
				"patient":   "patient_id",
				"subject":   "patient_id",
				"encounter": "encounter_id",
			},
			Compartments: map[string]string{
				"Patient":   "patient_id",
				"Encounter": "encounter_id",
			},
		},
		"Condition": {
			Table: "conditions",
			Columns: map[expression.FieldName]string{
				"id":             FHIRIDColumn,
				"code":           "code_value",
				"clinicalStatus": "clinical_status",
				"onsetDate":      "onset_date",
				"patient":        "patient_id",
				"subject":        "patient_id",
				"encounter":      "encounter_id",
			},
			Params: common(map[string]ParamMapping{
				"code":            token("code_value", "code_system"),
				"clinical-status": token("clinical_status", ""),
				"onset-date":      date("onset_date"),
				"patient":         reference("patient_id"),
				"subject":         reference("patient_id"),
				"encounter":       reference("encounter_id"),
			}),
			References: map[string]string{
				"patient":   "patient_id",
				"subject":   "patient_id",
				"encounter": "encounter_id",
			},
			Compartments: map[string]string{
				"Patient":   "patient_id",
				"Encounter": "encounter_id",
			},
		},
		"Encounter": {
			Table: "encounters",
			Columns: map[expression.FieldName]string{
				"id":          FHIRIDColumn,
				"status":      "status",
				"class":       "class",
				"periodStart": "period_start",
				"periodEnd":   "period_end",
				"patient":     "patient_id",
				"subject":     "patient_id",
			},
			Params: common(map[string]ParamMapping{
				"status":  token("status", ""),
				"class":   token("class", ""),
				"date":    date("period_start"),
				"patient": reference("patient_id"),
				"subject": reference("patient_id"),
			}),
			References: map[string]string{
				"patient":     "patient_id",
				"subject":     "patient_id",
				"participant": "practitioner_id",
			},
			Compartments: map[string]string{
				"Patient":      "patient_id",
				"Practitioner": "practitioner_id",
			},
		},
		"MedicationRequest": {
			Table: "medication_requests",
			Columns: map[expression.FieldName]string{
				"id":         FHIRIDColumn,
				"status":     "status",
				"intent":     "intent",
				"medication": "medication_code",
				"authoredOn": "authored_on",
				"patient":    "patient_id",
				"subject":    "patient_id",
				"encounter":  "encounter_id",
			},
			Params: common(map[string]ParamMapping{
				"status":    token("status", ""),
				"code":      token("medication_code", "medication_system"),
				"patient":   reference("patient_id"),
				"subject":   reference("patient_id"),
				"encounter": reference("encounter_id"),
			}),
			References: map[string]string{
				"patient":   "patient_id",
				"subject":   "patient_id",
				"encounter": "encounter_id",
				"requester": "requester_id",
			},
			Compartments: map[string]string{
				"Patient":   "patient_id",
				"Encounter": "encounter_id",
			},
		},
	}
}
