package main

import (
	"testing"
)

func TestCommandRejectsArguments(t *testing.T) {
	cmd := newCommand()
	cmd.SetArgs([]string{"extra"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected positional arguments to be rejected")
	}
}

func TestCommandFailsOnInvalidConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cmd := newCommand()
	cmd.SetArgs([]string{"--config", t.TempDir() + "/missing.toml"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected defaults without monitored directories to fail validation")
	}
}
