package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, version+"\n", out.String())
}

func TestFlagsOverrideConfig(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG_ENV", "missing")
	flagServer, flagRoom, flagListen = "wss://relay.example.org/hub", "lobby", ":7070"
	t.Cleanup(func() { flagServer, flagRoom, flagListen = "", "", "" })

	src, err := loadConfig()
	require.NoError(t, err)
	cfg := src.Config()
	assert.Equal(t, "wss://relay.example.org/hub", cfg.Signal.URL)
	assert.Equal(t, "lobby", cfg.Room)
	assert.Equal(t, ":7070", cfg.Listen)
}

func TestMissingConfigFile(t *testing.T) {
	flagConfig = filepath.Join(t.TempDir(), "absent.yaml")
	t.Cleanup(func() { flagConfig = "" })

	_, err := loadConfig()
	require.Error(t, err)
}
