package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type queryArgs struct {
	Query   string   `json:"query" description:"Search text"`
	Mode    string   `json:"mode" enum:"fast,exact"`
	Limit   *int     `json:"limit"`
	Tags    []string `json:"tags,omitempty"`
	Extra   any      `json:"extra,omitempty"`
	Ignored string   `json:"-"`
	hidden  string
}

func TestCreateSchema_Tags(t *testing.T) {
	schema := CreateSchema(&queryArgs{})

	props := schema["properties"].(map[string]any)
	assert.Len(t, props, 5)
	assert.Equal(t, map[string]any{"type": "string", "description": "Search text"}, props["query"])
	assert.Equal(t, []string{"fast", "exact"}, props["mode"].(map[string]any)["enum"])
	assert.Equal(t, "integer", props["limit"].(map[string]any)["type"])
	assert.Equal(t, "array", props["tags"].(map[string]any)["type"])
	assert.Equal(t, []string{"query", "mode"}, schema["required"])

	require.NoError(t, ValidateParameters(map[string]any{"query": "x", "mode": "fast", "extra": 3.0}, schema))

	err := ValidateParameters(map[string]any{"query": "x", "mode": "slow"}, schema)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "mode", ve.Field)
}

func TestCreateSchema_NonStruct(t *testing.T) {
	schema := CreateSchema(42)
	assert.Equal(t, "object", schema["type"])
	assert.Empty(t, schema["properties"])
	assert.NotContains(t, schema, "required")

	assert.Equal(t, "object", CreateSchema(nil)["type"])
}

func TestValidateParameters_JSONDecodedSchema(t *testing.T) {
	schema := map[string]any{
		"type":     "object",
		"required": []any{"path"},
		"properties": map[string]any{
			"path":  map[string]any{"type": "string"},
			"lines": map[string]any{"type": "integer"},
			"kind":  map[string]any{"type": "string", "enum": []any{"file", "dir"}},
		},
	}

	assert.NoError(t, ValidateParameters(map[string]any{"path": "a", "lines": 3.0, "kind": "dir"}, schema))
	assert.Error(t, ValidateParameters(map[string]any{"lines": 3.0}, schema))
	assert.Error(t, ValidateParameters(map[string]any{"path": "a", "lines": 2.5}, schema))
	assert.Error(t, ValidateParameters(map[string]any{"path": "a", "kind": "link"}, schema))
}
