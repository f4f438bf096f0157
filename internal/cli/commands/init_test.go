package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestInit_ScaffoldsProject(t *testing.T) {
	dir := t.TempDir()

	cmd := NewInitCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs([]string{"--dir", dir})

	require.NoError(t, cmd.Execute())

	// The sources directory exists
	info, err := os.Stat(filepath.Join(dir, "sources"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	// The config parses back and carries the defaults
	data, err := os.ReadFile(filepath.Join(dir, "lakemill.yaml"))
	require.NoError(t, err)

	var cfg map[string]any
	require.NoError(t, yaml.Unmarshal(data, &cfg))
	assert.Equal(t, "sources", cfg["sources_dir"])
	assert.Equal(t, "fail", cfg["on_ragged"])
	assert.Equal(t, "reject", cfg["on_cast_error"])

	// The listing names every expected source file
	assert.Contains(t, out.String(), "studentInfo.csv")
	assert.Contains(t, out.String(), "studentVle.csv")
}

func TestInit_RefusesExistingConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lakemill.yaml"), []byte("{}"), 0644))

	cmd := NewInitCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--dir", dir})

	assert.Error(t, cmd.Execute())
}

func TestVersionCommand(t *testing.T) {
	cmd := NewVersionCommand("1.2.3", "2026-01-01", "abc1234")
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "lakemill 1.2.3")
	assert.Contains(t, out.String(), "abc1234")
}
