package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigDefaultsWithoutConfigFile(t *testing.T) {
	os.Unsetenv("SMRITI_CONFIG_FILE")
	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() failed: %v", err)
	}
	if cfg.Server.Name != "smritid" {
		t.Errorf("Expected default server name, got %q", cfg.Server.Name)
	}
}

func TestLoadConfigReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "smritid.json")
	if err := os.WriteFile(path, []byte(`{"server":{"name":"from-file"}}`), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	t.Setenv("SMRITI_CONFIG_FILE", path)
	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() failed: %v", err)
	}
	if cfg.Server.Name != "from-file" {
		t.Errorf("Expected server name from config file, got %q", cfg.Server.Name)
	}
}
