package mode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryDefaults(t *testing.T) {
	r := NewRegistry(nil)

	assert.True(t, r.Knows("default"))
	assert.True(t, r.Knows("technical"))
	assert.True(t, r.Knows("CEO"))

	m, err := r.Get("casual")
	require.NoError(t, err)
	assert.Equal(t, []string{"weather", "web_search"}, m.ToolsEnabled)
}

func TestRegistryEnabled(t *testing.T) {
	r := NewRegistry(nil)

	tests := []struct {
		name string
		mode string
		tool string
		want bool
	}{
		{name: "wildcard enables everything", mode: "default", tool: "command_executor", want: true},
		{name: "listed tool", mode: "casual", tool: "weather", want: true},
		{name: "unlisted tool", mode: "casual", tool: "command_executor", want: false},
		{name: "unknown mode enables nothing", mode: "pirate", tool: "weather", want: false},
		{name: "case-insensitive mode name", mode: "Legal", tool: "web_search", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Enabled(tt.mode, tt.tool))
		})
	}
}

func TestRegistryConfiguredModes(t *testing.T) {
	r := NewRegistry(map[string]Mode{
		"Support": {
			Name:         "Support",
			Prompt:       "You answer support tickets.",
			ToolsEnabled: []string{"web_search"},
		},
	})

	// configured modes are kept and the default mode is always present
	assert.True(t, r.Knows("support"))
	assert.True(t, r.Knows("default"))
	assert.Equal(t, "You answer support tickets.", r.Prompt("support"))
}

func TestRegistryPromptFallback(t *testing.T) {
	r := NewRegistry(nil)
	assert.Equal(t, r.Prompt("default"), r.Prompt("nonexistent"))
}
