package sandbox

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryResolve(t *testing.T) {
	registry := DefaultRegistry()

	tests := []struct {
		lang     string
		expected string
	}{
		{"python", "python"},
		{"bash", "bash"},
		{"sh", "bash"},
		{"node", "node"},
		{"javascript", "node"},
		{"js", "node"},
		{"ts", "node"},
		{"typescript", "node"},
		{"JavaScript", "node"},
		{"PYTHON", "python"},
	}

	for _, tt := range tests {
		t.Run(tt.lang, func(t *testing.T) {
			rt, err := registry.Resolve(tt.lang)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, rt.Name)
			assert.Equal(t, tt.expected, registry.Normalize(tt.lang))
		})
	}

	t.Run("UnknownLanguage", func(t *testing.T) {
		_, err := registry.Resolve("ruby")
		require.ErrorIs(t, err, ErrValidation)

		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "lang", verr.Field)
		assert.Contains(t, verr.Message, "ruby")
		assert.Equal(t, "ruby", registry.Normalize("Ruby"))
	})

	t.Run("SurroundingSpaceRejected", func(t *testing.T) {
		_, err := registry.Resolve(" python ")
		require.ErrorIs(t, err, ErrValidation)
	})

	t.Run("EmptyLanguage", func(t *testing.T) {
		_, err := registry.Resolve("")
		require.ErrorIs(t, err, ErrValidation)
	})
}

func TestRegistryAliasesShareRuntime(t *testing.T) {
	registry := DefaultRegistry()

	node, err := registry.Resolve("node")
	require.NoError(t, err)

	for _, alias := range []string{"javascript", "js", "ts", "typescript"} {
		rt, err := registry.Resolve(alias)
		require.NoError(t, err)
		assert.Equal(t, node.Command, rt.Command, alias)
		assert.Equal(t, node.Extension, rt.Extension, alias)
	}

	sh, err := registry.Resolve("sh")
	require.NoError(t, err)
	bash, err := registry.Resolve("bash")
	require.NoError(t, err)
	assert.Equal(t, bash.Command, sh.Command)
	assert.Equal(t, bash.Extension, sh.Extension)
}

func TestRegistryDefaults(t *testing.T) {
	registry := DefaultRegistry()

	assert.Equal(t,
		[]string{"bash", "javascript", "js", "node", "python", "sh", "ts", "typescript"},
		registry.Names())

	runtimes := registry.Runtimes()
	require.Len(t, runtimes, 3)
	assert.Equal(t, "bash", runtimes[0].Name)
	assert.Equal(t, "node", runtimes[1].Name)
	assert.Equal(t, "python", runtimes[2].Name)

	assert.Equal(t, os.FileMode(ExecutableFilePermission), runtimes[0].FileMode())
	assert.Equal(t, os.FileMode(FilePermission), runtimes[2].FileMode())
	assert.Contains(t, runtimes[1].Env, "NODE_NO_WARNINGS=1")
}

func TestRegistryResolveReturnsCopy(t *testing.T) {
	registry := DefaultRegistry()

	rt, err := registry.Resolve("node")
	require.NoError(t, err)
	rt.Env[0] = "MUTATED=1"

	again, err := registry.Resolve("node")
	require.NoError(t, err)
	assert.Equal(t, "NODE_NO_WARNINGS=1", again.Env[0])
}

func TestNewRegistryErrors(t *testing.T) {
	tests := []struct {
		name     string
		runtimes []Runtime
		errMsg   string
	}{
		{
			name:   "Empty",
			errMsg: "at least one runtime",
		},
		{
			name:     "MissingName",
			runtimes: []Runtime{{Command: "cat", Extension: ".txt"}},
			errMsg:   "has no name",
		},
		{
			name:     "MissingCommand",
			runtimes: []Runtime{{Name: "x", Extension: ".txt"}},
			errMsg:   "has no command",
		},
		{
			name:     "BadExtension",
			runtimes: []Runtime{{Name: "x", Command: "cat", Extension: "txt"}},
			errMsg:   "invalid extension",
		},
		{
			name: "DuplicateAlias",
			runtimes: []Runtime{
				{Name: "a", Command: "cat", Extension: ".a", Aliases: []string{"shared"}},
				{Name: "b", Command: "cat", Extension: ".b", Aliases: []string{"SHARED"}},
			},
			errMsg: `alias "shared" is claimed by both a and b`,
		},
		{
			name: "AliasShadowsName",
			runtimes: []Runtime{
				{Name: "a", Command: "cat", Extension: ".a"},
				{Name: "b", Command: "cat", Extension: ".b", Aliases: []string{"a"}},
			},
			errMsg: "claimed by both",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.runtimes...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
