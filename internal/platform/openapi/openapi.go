package openapi

import (
	"net/http"
	"sort"

	"github.com/labstack/echo/v4"

	"github.com/ehr/fhirsearch/internal/platform/search/sqlgen"
	"github.com/ehr/fhirsearch/pkg/expression"
)

// Generator builds an OpenAPI 3.0 document for the expression search routes
// from the SQL schema.
type Generator struct {
	schema  sqlgen.Schema
	version string
	baseURL string
}

// NewGenerator creates a new OpenAPI spec generator.
func NewGenerator(schema sqlgen.Schema, version, baseURL string) *Generator {
	return &Generator{schema: schema, version: version, baseURL: baseURL}
}

// GenerateSpec produces the OpenAPI 3.0 document as a map.
func (g *Generator) GenerateSpec() map[string]interface{} {
	resourceTypes := g.schema.ResourceTypes()

	paths := map[string]interface{}{
		"/search/$explain": map[string]interface{}{
			"post": map[string]interface{}{
				"summary":     "Explain an expression against a resource table",
				"operationId": "explainExpression",
				"tags":        []string{"search"},
				"requestBody": jsonBody("#/components/schemas/ExplainRequest"),
				"responses":   responses("Explanation"),
			},
		},
		"/search/$format": map[string]interface{}{
			"post": map[string]interface{}{
				"summary":     "Validate, flatten and key an expression",
				"operationId": "formatExpression",
				"tags":        []string{"search"},
				"requestBody": jsonBody("#/components/schemas/Expression"),
				"responses":   responses("Prepared"),
			},
		},
		"/search/{resourceType}/_expression": map[string]interface{}{
			"post": map[string]interface{}{
				"summary":     "Search a resource type with an expression",
				"operationId": "searchExpression",
				"tags":        []string{"search"},
				"parameters": []map[string]interface{}{
					{
						"name": "resourceType", "in": "path", "required": true,
						"schema": map[string]interface{}{"type": "string", "enum": resourceTypes},
					},
					{"name": "_count", "in": "query", "schema": map[string]string{"type": "integer"}},
					{"name": "_offset", "in": "query", "schema": map[string]string{"type": "integer"}},
				},
				"requestBody": jsonBody("#/components/schemas/Expression"),
				"responses":   responses("Bundle"),
			},
		},
	}

	return map[string]interface{}{
		"openapi": "3.0.3",
		"info": map[string]interface{}{
			"title":       "FHIR Search Expression API",
			"version":     g.version,
			"description": "Evaluate FHIR search expression trees",
		},
		"servers": []map[string]string{
			{"url": g.baseURL},
		},
		"paths": paths,
		"components": map[string]interface{}{
			"schemas": map[string]interface{}{
				"Expression":       buildExpressionSchema(),
				"ExplainRequest":   buildExplainRequestSchema(resourceTypes),
				"Explanation":      objectOf("resourceType", "canonical", "flattened", "cacheKey", "where", "countSql", "dataSql"),
				"Prepared":         objectOf("canonical", "flattened", "cacheKey"),
				"Bundle":           buildBundleSchema(),
				"OperationOutcome": buildOperationOutcomeSchema(),
			},
			"x-search-parameters": g.searchParameters(),
		},
	}
}

// searchParameters lists the mapped search parameters per resource type.
func (g *Generator) searchParameters() map[string][]string {
	out := make(map[string][]string, len(g.schema))
	for rt, tm := range g.schema {
		names := make([]string, 0, len(tm.Params))
		for name := range tm.Params {
			names = append(names, name)
		}
		sort.Strings(names)
		out[rt] = names
	}
	return out
}

func jsonBody(ref string) map[string]interface{} {
	return map[string]interface{}{
		"required": true,
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{
				"schema": map[string]string{"$ref": ref},
			},
		},
	}
}

func responses(okSchema string) map[string]interface{} {
	return map[string]interface{}{
		"200": buildResponseWithSchema("Success", "#/components/schemas/"+okSchema),
		"400": buildResponseWithSchema("Invalid or unsupported expression", "#/components/schemas/OperationOutcome"),
		"500": buildResponseWithSchema("Internal error", "#/components/schemas/OperationOutcome"),
	}
}

func buildResponseWithSchema(description, schemaRef string) map[string]interface{} {
	return map[string]interface{}{
		"description": description,
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{
				"schema": map[string]string{"$ref": schemaRef},
			},
		},
	}
}

func objectOf(props ...string) map[string]interface{} {
	properties := make(map[string]interface{}, len(props))
	for _, p := range props {
		properties[p] = map[string]string{"type": "string"}
	}
	return map[string]interface{}{"type": "object", "properties": properties}
}

func stringEnum(values ...string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "enum": values}
}

func buildExpressionSchema() map[string]interface{} {
	kinds := make([]string, 0, len(expression.Kinds()))
	for _, k := range expression.Kinds() {
		kinds = append(kinds, k.DocumentTag())
	}
	self := map[string]string{"$ref": "#/components/schemas/Expression"}

	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"kind": stringEnum(kinds...),
			"param": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"name": map[string]string{"type": "string"},
					"type": map[string]string{"type": "string"},
				},
				"required": []string{"name"},
			},
			"field": map[string]string{"type": "string"},
			"operator": stringEnum(
				string(expression.OpEqual), string(expression.OpNotEqual),
				string(expression.OpGreaterThan), string(expression.OpGreaterOrEqual),
				string(expression.OpLessThan), string(expression.OpLessOrEqual),
				string(expression.OpAnd), string(expression.OpOr),
			),
			"value": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"kind":  stringEnum("string", "number", "date", "quantity", "reference"),
					"value": map[string]string{"type": "string"},
					"unit":  map[string]string{"type": "string"},
				},
				"required": []string{"kind", "value"},
			},
			"mode":            stringEnum(string(expression.StringExact), string(expression.StringStartsWith), string(expression.StringContains)),
			"comparand":       map[string]string{"type": "string"},
			"ignoreCase":      map[string]string{"type": "boolean"},
			"sourceField":     map[string]string{"type": "string"},
			"targetKinds":     map[string]interface{}{"type": "array", "items": map[string]string{"type": "string"}},
			"reversed":        map[string]string{"type": "boolean"},
			"missing":         map[string]string{"type": "boolean"},
			"compartmentType": map[string]string{"type": "string"},
			"compartmentId":   map[string]string{"type": "string"},
			"nested":          self,
			"children":        map[string]interface{}{"type": "array", "items": self, "minItems": 2},
		},
		"required": []string{"kind"},
	}
}

func buildExplainRequestSchema(resourceTypes []string) map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"resourceType": stringEnum(resourceTypes...),
			"expression":   map[string]string{"$ref": "#/components/schemas/Expression"},
		},
		"required": []string{"resourceType", "expression"},
	}
}

func buildBundleSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"resourceType": stringEnum("Bundle"),
			"type":         stringEnum("searchset"),
			"total":        map[string]string{"type": "integer"},
			"link": map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"relation": map[string]string{"type": "string"},
						"url":      map[string]string{"type": "string"},
					},
				},
			},
			"entry": map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"fullUrl": map[string]string{"type": "string"},
					},
				},
			},
		},
		"required": []string{"resourceType", "type"},
	}
}

func buildOperationOutcomeSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"resourceType": stringEnum("OperationOutcome"),
			"issue": map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"severity":    stringEnum("fatal", "error", "warning", "information"),
						"code":        map[string]interface{}{"type": "string"},
						"diagnostics": map[string]interface{}{"type": "string"},
						"expression": map[string]interface{}{
							"type":  "array",
							"items": map[string]interface{}{"type": "string"},
						},
					},
					"required": []string{"severity", "code"},
				},
			},
		},
		"required": []string{"resourceType", "issue"},
	}
}

// RegisterRoutes registers the OpenAPI endpoint.
func (g *Generator) RegisterRoutes(apiGroup *echo.Group) {
	apiGroup.GET("/openapi.json", func(c echo.Context) error {
		return c.JSON(http.StatusOK, g.GenerateSpec())
	})
}
