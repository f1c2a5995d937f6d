package settings

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedDefaults_CoverEveryBuiltinCategory(t *testing.T) {
	d := EmbeddedDefaults()
	for _, category := range BuiltinCategories {
		value, ok := d.Value(category)
		require.True(t, ok, category)
		var obj map[string]interface{}
		require.NoError(t, json.Unmarshal(value, &obj), category)
		assert.NotEmpty(t, obj, category)
	}
	assert.Equal(t, len(BuiltinCategories), len(d.Categories()))
}

func TestEmbeddedDefaults_Dependencies(t *testing.T) {
	value, ok := EmbeddedDefaults().Value(CategoryDependencies)
	require.True(t, ok)

	var deps struct {
		AutoBlockTasks *bool `json:"autoBlockTasks"`
	}
	require.NoError(t, json.Unmarshal(value, &deps))
	require.NotNil(t, deps.AutoBlockTasks)
	assert.False(t, *deps.AutoBlockTasks)
}

func TestParseDefaults_Rejects(t *testing.T) {
	full := string(embeddedDefaults)

	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"missing category", strings.Replace(full, "workflow:", "workflow_v2:", 1), `missing category "workflow"`},
		{"null default", full + "\nextra:\n", `"extra" must be a mapping`},
		{"scalar default", full + "\nextra: 3\n", `"extra" must be a mapping`},
		{"not yaml", "notifications: [", "parse defaults"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDefaults([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseDefaults_ExtraCategoryIsRecognized(t *testing.T) {
	d, err := ParseDefaults(append(append([]byte(nil), embeddedDefaults...), []byte("\nreports:\n  weekly: true\n")...))
	require.NoError(t, err)
	assert.True(t, d.Has("reports"))

	value, _ := d.Value("reports")
	assert.JSONEq(t, `{"weekly":true}`, string(value))
}

func TestDefaults_ValueIsACopy(t *testing.T) {
	d := EmbeddedDefaults()
	v, _ := d.Value(CategoryAppearance)
	v[0] = 'X'

	again, _ := d.Value(CategoryAppearance)
	assert.Equal(t, byte('{'), again[0])
}
