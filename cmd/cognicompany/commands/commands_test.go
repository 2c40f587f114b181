package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jholhewres/cognicompany/pkg/cognicompany/config"
)

func TestRootRegistersCommands(t *testing.T) {
	root := NewRootCmd("test")

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"serve", "config", "setup", "channel", "assistants", "completion", "health"} {
		assert.Contains(t, names, want)
	}
	assert.Equal(t, "test", root.Version)
}

func TestCompletionWritesScript(t *testing.T) {
	root := NewRootCmd("test")
	root.SetArgs([]string{"completion", "bash"})
	root.SetOut(&bytes.Buffer{})
	require.NoError(t, root.Execute())
}

func TestRedactedMasksLiteralSecrets(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Discord.Token = "literal-token"
	cfg.OpenAI.APIKey = "${OPENAI_API_KEY}"

	r := redacted(cfg)
	assert.Equal(t, "********", r.Discord.Token)
	assert.Equal(t, "${OPENAI_API_KEY}", r.OpenAI.APIKey)
	assert.Equal(t, "literal-token", cfg.Discord.Token, "original untouched")
}

func TestWriteDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, writeDotEnv(path, map[string]string{"OPENAI_API_KEY": "sk-1", "DISCORD_TOKEN": "tok"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "DISCORD_TOKEN=\"tok\"\nOPENAI_API_KEY=\"sk-1\"\n", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestConfigValidateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := config.DefaultConfig()
	require.NoError(t, config.SaveConfigToFile(cfg, path))

	root := NewRootCmd("test")
	root.SetArgs([]string{"--config", path, "config", "validate"})
	require.NoError(t, root.Execute())

	cfg.Relay.ChunkBudget = 5000
	require.NoError(t, config.SaveConfigToFile(cfg, path))
	root = NewRootCmd("test")
	root.SetArgs([]string{"--config", path, "config", "validate"})
	assert.Error(t, root.Execute())
}
