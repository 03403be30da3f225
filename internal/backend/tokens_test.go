package backend_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bustracking/bustracking/internal/backend"
)

func TestNormalizeTokens(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		all    []string
		byStop map[string][]string
	}{
		{
			name:   "nested stops",
			raw:    `{"stops":[{"stop_id":"S1","fcm_tokens":[{"fcm_token":"a"}]},{"stop_id":2,"fcm_tokens":[{"token":"b"},"a"]}]}`,
			all:    []string{"a", "b"},
			byStop: map[string][]string{"S1": {"a"}, "2": {"b", "a"}},
		},
		{
			name:   "flat array with stop tags",
			raw:    `[{"fcm_token":"a","stop_id":1},{"token":"b"}," c ","a"]`,
			all:    []string{"a", "b", "c"},
			byStop: map[string][]string{"1": {"a"}},
		},
		{
			name:   "wrapped token list",
			raw:    `{"tokens":["a","b"]}`,
			all:    []string{"a", "b"},
			byStop: map[string][]string{},
		},
		{
			name:   "empty array",
			raw:    `[]`,
			all:    []string{},
			byStop: map[string][]string{},
		},
		{
			name:   "unknown shape",
			raw:    `"nope"`,
			all:    []string{},
			byStop: map[string][]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := backend.NormalizeTokens("R1", json.RawMessage(tt.raw))
			assert.Equal(t, "R1", rt.RouteID)
			assert.Equal(t, tt.all, rt.All)
			assert.Equal(t, tt.byStop, rt.ByStop)
			assert.JSONEq(t, tt.raw, string(rt.Raw))
		})
	}
}
