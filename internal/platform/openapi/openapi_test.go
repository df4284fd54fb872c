package openapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/ehr/fhirsearch/internal/platform/search/sqlgen"
	"github.com/ehr/fhirsearch/pkg/expression"
)

// fetchSpec serves the generated document and decodes it the way a client
// would see it.
func fetchSpec(t *testing.T, g *Generator) map[string]interface{} {
	t.Helper()
	e := echo.New()
	g.RegisterRoutes(e.Group("/fhir"))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/fhir/openapi.json", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var spec map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &spec); err != nil {
		t.Fatalf("decode spec: %v", err)
	}
	return spec
}

func get(t *testing.T, m map[string]interface{}, keys ...string) interface{} {
	t.Helper()
	var cur interface{} = m
	for _, k := range keys {
		obj, ok := cur.(map[string]interface{})
		if !ok {
			t.Fatalf("%v is not an object at %q", cur, k)
		}
		cur = obj[k]
	}
	return cur
}

func TestGenerateSpec_Structure(t *testing.T) {
	spec := fetchSpec(t, NewGenerator(sqlgen.DefaultSchema(), "1.0.0", "http://localhost:8000/fhir"))

	if spec["openapi"] != "3.0.3" {
		t.Errorf("expected openapi '3.0.3', got %v", spec["openapi"])
	}
	if v := get(t, spec, "info", "version"); v != "1.0.0" {
		t.Errorf("expected version '1.0.0', got %v", v)
	}
	for _, path := range []string{"/search/$explain", "/search/$format", "/search/{resourceType}/_expression"} {
		if get(t, spec, "paths", path, "post") == nil {
			t.Errorf("missing POST %s", path)
		}
	}
}

func TestGenerateSpec_ExpressionKinds(t *testing.T) {
	spec := fetchSpec(t, NewGenerator(sqlgen.DefaultSchema(), "dev", ""))

	enum, ok := get(t, spec, "components", "schemas", "Expression", "properties", "kind", "enum").([]interface{})
	if !ok {
		t.Fatal("expected kind enum")
	}
	if len(enum) != len(expression.Kinds()) {
		t.Fatalf("expected %d kinds, got %v", len(expression.Kinds()), enum)
	}
	for i, k := range expression.Kinds() {
		if enum[i] != k.DocumentTag() {
			t.Errorf("kind %d = %v, want %s", i, enum[i], k.DocumentTag())
		}
	}
}

func TestGenerateSpec_ResourceTypesFromSchema(t *testing.T) {
	schema := sqlgen.DefaultSchema()
	spec := fetchSpec(t, NewGenerator(schema, "dev", ""))

	enum, ok := get(t, spec, "components", "schemas", "ExplainRequest", "properties", "resourceType", "enum").([]interface{})
	if !ok {
		t.Fatal("expected resourceType enum")
	}
	want := schema.ResourceTypes()
	if len(enum) != len(want) {
		t.Fatalf("expected %v, got %v", want, enum)
	}
	for i := range want {
		if enum[i] != want[i] {
			t.Errorf("resource type %d = %v, want %s", i, enum[i], want[i])
		}
	}

	params, ok := get(t, spec, "components", "x-search-parameters", "Patient").([]interface{})
	if !ok || len(params) != len(schema["Patient"].Params) {
		t.Errorf("Patient search parameters = %v", params)
	}
}
