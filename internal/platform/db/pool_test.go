package db

import (
	"context"
	"strings"
	"testing"
)

func TestNewPool_RejectsBadInput(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		max, min int32
		want     string
	}{
		{"zero max", "postgres://localhost/test", 0, 0, "invalid pool size"},
		{"min above max", "postgres://localhost/test", 2, 5, "invalid pool size"},
		{"bad url", "://not a url", 5, 1, "parse database url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPool(context.Background(), tt.url, tt.max, tt.min)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected %q error, got %v", tt.want, err)
			}
		})
	}
}
