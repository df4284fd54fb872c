package pagination

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func newContext(target string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, target, nil)
	return e.NewContext(req, httptest.NewRecorder())
}

func TestFromContext(t *testing.T) {
	tests := []struct {
		name         string
		target       string
		defaultLimit int
		want         Params
	}{
		{"defaults", "/", 20, Params{Limit: 20, Offset: 0}},
		{"configured default", "/", 50, Params{Limit: 50, Offset: 0}},
		{"explicit values", "/?_count=25&_offset=5", 20, Params{Limit: 25, Offset: 5}},
		{"count capped", "/?_count=500", 20, Params{Limit: MaxLimit, Offset: 0}},
		{"default capped", "/", 1000, Params{Limit: MaxLimit, Offset: 0}},
		{"zero count uses default", "/?_count=0", 10, Params{Limit: 10, Offset: 0}},
		{"negative offset", "/?_offset=-3", 20, Params{Limit: 20, Offset: 0}},
		{"garbage", "/?_count=abc&_offset=xyz", 20, Params{Limit: 20, Offset: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromContext(newContext(tt.target), tt.defaultLimit)
			if got != tt.want {
				t.Errorf("FromContext() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParams_Navigation(t *testing.T) {
	p := Params{Limit: 10, Offset: 5}
	if !p.HasNext(20) {
		t.Error("expected HasNext at 5+10 < 20")
	}
	if p.HasNext(15) {
		t.Error("expected no next page at 5+10 == 15")
	}
	if !p.HasPrevious() {
		t.Error("expected HasPrevious")
	}
	if got := p.NextOffset(); got != 15 {
		t.Errorf("NextOffset() = %d, want 15", got)
	}
	if got := p.PreviousOffset(); got != 0 {
		t.Errorf("PreviousOffset() = %d, want 0", got)
	}
}

func TestParams_FHIRLinks_MiddlePage(t *testing.T) {
	p := Params{Limit: 10, Offset: 10}
	links := p.FHIRLinks("/search/Patient/_expression", 50)

	if len(links) != 3 {
		t.Fatalf("expected 3 links, got %d", len(links))
	}
	want := map[string]string{
		"self":     "/search/Patient/_expression?_offset=10&_count=10",
		"next":     "/search/Patient/_expression?_offset=20&_count=10",
		"previous": "/search/Patient/_expression?_offset=0&_count=10",
	}
	for _, l := range links {
		if want[l.Relation] != l.URL {
			t.Errorf("%s link = %q, want %q", l.Relation, l.URL, want[l.Relation])
		}
	}
}

func TestParams_FHIRLinks_NoResults(t *testing.T) {
	links := Params{Limit: 20}.FHIRLinks("/search/Patient/_expression", 0)
	if len(links) != 1 || links[0].Relation != "self" {
		t.Errorf("expected only a self link, got %+v", links)
	}
}

func TestFHIRLink_JSONFormat(t *testing.T) {
	data, err := json.Marshal(FHIRLink{Relation: "next", URL: "/x?_offset=20"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"relation":"next","url":"/x?_offset=20"}` {
		t.Errorf("unexpected JSON: %s", data)
	}
}
