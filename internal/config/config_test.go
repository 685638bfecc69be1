package config

import (
	"os"
	"path/filepath"
	"testing"

	"smriti/internal/storage"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.Name != "smritid" {
		t.Errorf("Expected server name 'smritid', got '%s'", cfg.Server.Name)
	}
	if cfg.Server.Environment != "development" {
		t.Errorf("Expected environment 'development', got '%s'", cfg.Server.Environment)
	}
	if cfg.Home == "" {
		t.Error("Expected Home to be non-empty")
	}

	if cfg.Storage.Type != storage.TypeMemory {
		t.Errorf("Expected storage type memory, got '%s'", cfg.Storage.Type)
	}
	if cfg.Vasana.Lambda != 50 {
		t.Errorf("Expected vasana.Lambda 50, got %v", cfg.Vasana.Lambda)
	}
	if cfg.HybridSearch.TopK != 10 {
		t.Errorf("Expected hybrid_search.TopK 10, got %d", cfg.HybridSearch.TopK)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Expected log level 'info', got '%s'", cfg.Logging.Level)
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg == nil {
		t.Fatal("Load() returned nil config")
	}
	if cfg.Server.Name != "smritid" {
		t.Errorf("Expected default server name, got '%s'", cfg.Server.Name)
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)

	_ = os.Setenv("SMRITI_SERVER_NAME", "test-server")
	_ = os.Setenv("SMRITI_SERVER_ENVIRONMENT", "production")
	_ = os.Setenv("SMRITI_VASANA_LAMBDA", "25")
	_ = os.Setenv("SMRITI_SVAPNA_MAX_SESSIONS_PER_CYCLE", "10")
	_ = os.Setenv("SMRITI_HYBRID_SEARCH_TOP_K", "20")
	_ = os.Setenv("SMRITI_LOG_LEVEL", "debug")
	defer clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Server.Name != "test-server" {
		t.Errorf("Expected server name 'test-server', got '%s'", cfg.Server.Name)
	}
	if cfg.Server.Environment != "production" {
		t.Errorf("Expected environment 'production', got '%s'", cfg.Server.Environment)
	}
	if cfg.Vasana.Lambda != 25 {
		t.Errorf("Expected vasana.Lambda 25, got %v", cfg.Vasana.Lambda)
	}
	if cfg.Svapna.MaxSessionsPerCycle != 10 {
		t.Errorf("Expected svapna.MaxSessionsPerCycle 10, got %d", cfg.Svapna.MaxSessionsPerCycle)
	}
	if cfg.HybridSearch.TopK != 20 {
		t.Errorf("Expected hybrid_search.TopK 20, got %d", cfg.HybridSearch.TopK)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected log level 'debug', got '%s'", cfg.Logging.Level)
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	configJSON := `{
		"server": {
			"name": "file-server",
			"version": "2.0.0",
			"environment": "staging"
		},
		"logging": {
			"level": "warn",
			"format": "json",
			"enable_timestamps": false
		}
	}`

	if err := os.WriteFile(configPath, []byte(configJSON), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	clearEnv(t)

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() failed: %v", err)
	}

	if cfg.Server.Name != "file-server" {
		t.Errorf("Expected server name 'file-server', got '%s'", cfg.Server.Name)
	}
	if cfg.Server.Version != "2.0.0" {
		t.Errorf("Expected version '2.0.0', got '%s'", cfg.Server.Version)
	}
	if cfg.Server.Environment != "staging" {
		t.Errorf("Expected environment 'staging', got '%s'", cfg.Server.Environment)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Expected log level 'warn', got '%s'", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Expected log format 'json', got '%s'", cfg.Logging.Format)
	}
	// Fields absent from the file keep their defaults.
	if cfg.Vasana.Lambda != 50 {
		t.Errorf("Expected vasana.Lambda to keep default 50, got %v", cfg.Vasana.Lambda)
	}
}

func TestLoadFromFileWithEnvOverride(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	configJSON := `{
		"server": {
			"name": "file-server",
			"environment": "staging"
		}
	}`

	if err := os.WriteFile(configPath, []byte(configJSON), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	clearEnv(t)
	_ = os.Setenv("SMRITI_SERVER_NAME", "env-server")
	defer clearEnv(t)

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() failed: %v", err)
	}

	if cfg.Server.Name != "env-server" {
		t.Errorf("Expected server name 'env-server' (env override), got '%s'", cfg.Server.Name)
	}
	// File values survive where env doesn't override them.
	if cfg.Server.Environment != "staging" {
		t.Errorf("Expected environment 'staging' (from file), got '%s'", cfg.Server.Environment)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := Default()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{name: "valid default config", mutate: func(*Config) {}, wantErr: false},
		{
			name:    "empty server name",
			mutate:  func(c *Config) { c.Server.Name = "" },
			wantErr: true,
			errMsg:  "server.name cannot be empty",
		},
		{
			name:    "invalid environment",
			mutate:  func(c *Config) { c.Server.Environment = "invalid" },
			wantErr: true,
			errMsg:  "server.environment must be one of",
		},
		{
			name:    "empty home",
			mutate:  func(c *Config) { c.Home = "" },
			wantErr: true,
			errMsg:  "home cannot be empty",
		},
		{
			name:    "non-positive vasana lambda",
			mutate:  func(c *Config) { c.Vasana.Lambda = 0 },
			wantErr: true,
			errMsg:  "vasana.lambda must be > 0",
		},
		{
			name:    "zero svapna session cap",
			mutate:  func(c *Config) { c.Svapna.MaxSessionsPerCycle = 0 },
			wantErr: true,
			errMsg:  "svapna.max_sessions_per_cycle must be >= 1",
		},
		{
			name:    "zero hybrid search top_k",
			mutate:  func(c *Config) { c.HybridSearch.TopK = 0 },
			wantErr: true,
			errMsg:  "hybrid_search.top_k must be >= 1",
		},
		{
			name:    "negative identity max chars",
			mutate:  func(c *Config) { c.Identity.MaxCharsPerFile = -1 },
			wantErr: true,
			errMsg:  "identity.max_chars_per_file cannot be negative",
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: true,
			errMsg:  "logging.level must be one of",
		},
		{
			name:    "invalid log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: true,
			errMsg:  "logging.format must be 'text' or 'json'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr && !contains(err.Error(), tt.errMsg) {
				t.Errorf("Validate() error = %v, should contain %q", err, tt.errMsg)
			}
		})
	}
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"true", true},
		{"TRUE", true},
		{"1", true},
		{"yes", true},
		{"on", true},
		{"enabled", true},
		{"false", false},
		{"0", false},
		{"no", false},
		{"", false},
		{"invalid", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if result := parseBool(tt.input); result != tt.expected {
				t.Errorf("parseBool(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestToJSON(t *testing.T) {
	cfg := Default()
	data, err := cfg.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() failed: %v", err)
	}
	if len(data) == 0 {
		t.Error("ToJSON() returned empty data")
	}
	if !contains(string(data), "server") {
		t.Error("JSON should contain 'server' field")
	}
}

func TestSaveToFile(t *testing.T) {
	cfg := Default()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "saved-config.json")

	if err := cfg.SaveToFile(configPath); err != nil {
		t.Fatalf("SaveToFile() failed: %v", err)
	}

	loadedCfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() after save failed: %v", err)
	}
	if loadedCfg.Server.Name != cfg.Server.Name {
		t.Errorf("Loaded config doesn't match saved config: %s != %s", loadedCfg.Server.Name, cfg.Server.Name)
	}
}

func clearEnv(t *testing.T) {
	t.Helper()
	envVars := []string{
		"SMRITI_HOME",
		"SMRITI_SERVER_NAME",
		"SMRITI_SERVER_VERSION",
		"SMRITI_SERVER_ENVIRONMENT",
		"SMRITI_STORAGE_TYPE",
		"SMRITI_SQLITE_PATH",
		"SMRITI_SQLITE_TIMEOUT",
		"SMRITI_EMBEDDINGS_ENABLED",
		"SMRITI_EMBEDDINGS_PROVIDER",
		"SMRITI_EMBEDDINGS_MODEL",
		"SMRITI_NEO4J_URI",
		"SMRITI_NEO4J_USERNAME",
		"SMRITI_NEO4J_PASSWORD",
		"SMRITI_NEO4J_DATABASE",
		"SMRITI_NEO4J_TIMEOUT_MS",
		"SMRITI_VASANA_LAMBDA",
		"SMRITI_VASANA_DECAY_HALF_LIFE",
		"SMRITI_SVAPNA_MAX_SESSIONS_PER_CYCLE",
		"SMRITI_SVAPNA_SURPRISE_THRESHOLD",
		"SMRITI_HYBRID_SEARCH_TOP_K",
		"SMRITI_HYBRID_SEARCH_PROJECT",
		"SMRITI_UNIFIED_RECALL_LIMIT",
		"SMRITI_TEMPORAL_LIMIT",
		"SMRITI_IDENTITY_CONFIG_PATH",
		"SMRITI_IDENTITY_MAX_CHARS_PER_FILE",
		"SMRITI_LOG_LEVEL",
		"SMRITI_LOG_FORMAT",
		"SMRITI_LOG_ENABLE_TIMESTAMPS",
	}
	for _, v := range envVars {
		os.Unsetenv(v)
	}
}

func contains(s, substr string) bool {
	if len(s) == 0 || len(substr) == 0 {
		return false
	}
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
