package tools

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSchema(t *testing.T) {
	schema := CreateSchema(ImageArgs{})

	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, []string{"prompt"}, schema["required"])

	props := schema["properties"].(map[string]any)
	model := props["model"].(map[string]any)
	assert.Equal(t, "string", model["type"])
	assert.Equal(t, []string{"dall-e-3", "dall-e-2"}, model["enum"])

	empty := CreateSchema(DateTimeArgs{})
	assert.NotContains(t, empty, "required")
	assert.Empty(t, empty["properties"])
}

func TestCreateSchemaIsValidJSONSchema(t *testing.T) {
	data, err := json.Marshal(CreateSchema(TaskCreateArgs{}))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"type": "object",
		"properties": {
			"user_id": {"type": "string", "description": "Id of the user the task belongs to"},
			"title": {"type": "string", "description": "Short task title"},
			"description": {"type": "string", "description": "Longer task description"},
			"due_date": {"type": "string", "description": "Due date, e.g. 2024-05-01"},
			"estimated_time": {"type": "string", "description": "Estimated effort, e.g. 2h"}
		},
		"required": ["user_id", "title"]
	}`, string(data))
}

func TestValidateParameters(t *testing.T) {
	schema := CreateSchema(TTSArgs{})

	tests := []struct {
		name    string
		params  map[string]any
		field   string
		wantErr bool
	}{
		{name: "valid", params: map[string]any{"content": "hi", "voice": "echo"}},
		{name: "optional omitted", params: map[string]any{"content": "hi"}},
		{name: "missing required", params: map[string]any{"voice": "echo"}, field: "content", wantErr: true},
		{name: "wrong type", params: map[string]any{"content": 42.0}, field: "content", wantErr: true},
		{name: "enum violation", params: map[string]any{"content": "hi", "voice": "robot"}, field: "voice", wantErr: true},
		{name: "extra fields allowed", params: map[string]any{"content": "hi", "speed": 2.0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateParameters(tt.params, schema)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var argErr *ArgumentError
			require.ErrorAs(t, err, &argErr)
			assert.Equal(t, tt.field, argErr.Field)
		})
	}
}

func TestParseKind(t *testing.T) {
	for _, k := range AllKinds() {
		assert.Equal(t, k, ParseKind(k.String()))
	}
	assert.Equal(t, KindUnknown, ParseKind("rm_rf"))
	assert.Equal(t, "unknown", KindUnknown.String())
	assert.Len(t, AllKinds(), len(catalog))
}
