package settings

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	assert.NoError(t, p.Validate(EmbeddedDefaults()))

	assert.True(t, p.UserOverridable[CategoryNotifications])
	assert.True(t, p.UserOverridable[CategoryAppearance])
	assert.True(t, p.UserOverridable[CategoryTimeTracking])
	assert.False(t, p.UserOverridable[CategoryWorkflow])
	assert.False(t, p.UserOverridable[CategoryDependencies])
	assert.False(t, p.UserOverridable[CategoryTaskDefaults])

	var names []string
	for _, s := range p.Steps {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"user-override", "project", "user", "global", "system"}, names)
}

func TestPolicy_ValidateNeedsSteps(t *testing.T) {
	assert.Error(t, Policy{}.Validate(EmbeddedDefaults()))
}

func TestSteps(t *testing.T) {
	user := &Setting{Value: json.RawMessage(`{"u":1}`)}
	enabled := &Setting{Value: json.RawMessage(`{"p":1}`), Enabled: true}
	disabled := &Setting{Value: json.RawMessage(`{"p":0}`)}

	tests := []struct {
		name   string
		layers Layers
		want   Source
	}{
		{"nothing stored", Layers{Default: json.RawMessage(`{}`)}, SourceSystem},
		{"global only", Layers{Global: user, Default: json.RawMessage(`{}`)}, SourceGlobal},
		{"disabled project", Layers{Project: disabled, Global: user, Default: json.RawMessage(`{}`)}, SourceGlobal},
		{"layered project over user", Layers{User: user, Project: enabled, Default: json.RawMessage(`{}`)}, SourceProject},
		{"overridable user over project", Layers{User: user, Project: enabled, UserOverridable: true, Default: json.RawMessage(`{}`)}, SourceUser},
		{"disabled project, user fallback", Layers{User: user, Project: disabled, Default: json.RawMessage(`{}`)}, SourceUser},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Source
			for _, step := range DefaultSteps() {
				if _, source, ok, _ := step.Match(tt.layers); ok {
					got = source
					break
				}
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
