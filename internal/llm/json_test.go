package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/riskdesk/internal/common"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "raw", input: `  [{"a":1}]  `, want: `[{"a":1}]`},
		{name: "json fence", input: "Here you go:\n```json\n[{\"a\":1}]\n```\nThanks", want: `[{"a":1}]`},
		{name: "plain fence", input: "```\n{\"b\":2}\n```", want: `{"b":2}`},
		{name: "first fence wins", input: "```json\n1\n```\n```json\n2\n```", want: "1"},
		{name: "inline fence", input: "```json {\"c\":3}```", want: `{"c":3}`},
		{name: "empty", input: "   ", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSON(tt.input))
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var out []map[string]any
	require.NoError(t, DecodeJSON("```json\n[{\"transaction_id\": 7}]\n```", &out))
	require.Len(t, out, 1)

	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "prose", input: "I cannot help with that."},
		{name: "truncated", input: "```json\n[{\"transaction_id\": \n```"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v any
			err := DecodeJSON(tt.input, &v)
			require.Error(t, err)
			assert.ErrorIs(t, err, common.ErrParse)
		})
	}
}
