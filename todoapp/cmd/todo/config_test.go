package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ichigozero/taskhaven/todosvc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv(gatewayEnv, "")
	dir := t.TempDir()

	cfg, err := loadConfig(filepath.Join(dir, "config.toml"), dir)
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(dir), cfg)
	assert.Equal(t, filepath.Join(dir, "session.json"), cfg.SessionFile)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
gateway = "http://gateway.internal:8000"
session_file = "/tmp/taskhaven-session.json"
`), 0o600))

	t.Setenv(gatewayEnv, "")
	cfg, err := loadConfig(path, dir)
	require.NoError(t, err)
	assert.Equal(t, "http://gateway.internal:8000", cfg.Gateway)
	assert.Equal(t, "/tmp/taskhaven-session.json", cfg.SessionFile)
	assert.Equal(t, filepath.Join(dir, "todo.log"), cfg.LogFile)

	t.Setenv(gatewayEnv, "http://override:9000")
	cfg, err = loadConfig(path, dir)
	require.NoError(t, err)
	assert.Equal(t, "http://override:9000", cfg.Gateway)
}

func TestLoadConfigRejectsBadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("gateway = "), 0o600))

	_, err := loadConfig(path, dir)
	assert.Error(t, err)
}

func TestPrintTodos(t *testing.T) {
	var buf bytes.Buffer
	printTodos(&buf, nil)
	assert.Equal(t, "No todos yet. Add one above!\n", buf.String())

	buf.Reset()
	printTodos(&buf, []todosvc.Todo{
		{ID: "a", Text: "Buy milk", Priority: todosvc.PriorityHigh},
		{ID: "b", Text: "Read book", Priority: todosvc.PriorityLow, Completed: true},
	})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "[ ] high"))
	assert.Contains(t, lines[0], "Buy milk")
	assert.True(t, strings.HasPrefix(lines[1], "[x] low"))
}

func TestReadPassword(t *testing.T) {
	var prompt bytes.Buffer
	password, err := readPassword(strings.NewReader("secret1\n"), &prompt)
	require.NoError(t, err)
	assert.Equal(t, "secret1", password)
	assert.Equal(t, "Password: ", prompt.String())

	password, err = readPassword(strings.NewReader("secret2"), &prompt)
	require.NoError(t, err)
	assert.Equal(t, "secret2", password)
}

func TestRootCommandWiring(t *testing.T) {
	cmd := newRootCmd()
	for _, name := range []string{"login", "logout", "list", "add"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, sub.Name())
	}

	add, _, err := cmd.Find([]string{"add"})
	require.NoError(t, err)
	assert.Equal(t, "low", add.Flags().Lookup("priority").DefValue)
}
