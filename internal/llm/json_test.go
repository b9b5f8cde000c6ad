package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bare object", `{"category": "family_law"}`, `{"category": "family_law"}`},
		{"markdown fence", "```json\n{\"category\": \"family_law\"}\n```", `{"category": "family_law"}`},
		{"leading prose", `Sure! Here you go: {"category": "family_law"}`, `{"category": "family_law"}`},
		{"trailing prose", `{"category": "family_law"} Let me know if you need more.`, `{"category": "family_law"}`},
		{"no object", "I cannot classify that.", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSONObject(tt.input))
		})
	}
}
