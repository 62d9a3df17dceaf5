package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kuuji/athena/internal/wirename"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()

	if cfg.Forwarder.PITLifetime != DefaultPITLifetime {
		t.Errorf("default PITLifetime = %v, want %v", cfg.Forwarder.PITLifetime, DefaultPITLifetime)
	}
	if cfg.Forwarder.ContentStoreCapacityMB != DefaultContentStoreCapacityMB {
		t.Errorf("default ContentStoreCapacityMB = %d, want %d", cfg.Forwarder.ContentStoreCapacityMB, DefaultContentStoreCapacityMB)
	}
	if cfg.Control.SocketPath != DefaultControlSocketPath {
		t.Errorf("default Control.SocketPath = %q, want %q", cfg.Control.SocketPath, DefaultControlSocketPath)
	}
}

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Forwarder.Name = "edge1"
	cfg.Links = []LinkConfig{
		{URI: "udp://10.0.0.2:4567/name=wan0", Routes: []string{"lci:/"}},
	}
	return cfg
}

func TestSaveAndLoadConfig_roundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "athena.toml")

	original := validConfig()
	original.Forwarder.ManagementPrefix = "lci:/mgmt"
	original.Forwarder.QuitName = "lci:/mgmt/quit"
	original.Forwarder.PITLifetime = 10 * time.Second
	original.Forwarder.ContentStoreCapacityMB = 128
	original.Forwarder.RetryAlternateEgress = true
	original.Metrics.ListenAddr = "127.0.0.1:9090"

	if err := SaveConfig(path, original); err != nil {
		t.Fatalf("SaveConfig() error: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}

	if loaded.Forwarder.Name != original.Forwarder.Name {
		t.Errorf("Forwarder.Name = %q, want %q", loaded.Forwarder.Name, original.Forwarder.Name)
	}
	if loaded.Forwarder.ManagementPrefix != original.Forwarder.ManagementPrefix {
		t.Errorf("ManagementPrefix = %q, want %q", loaded.Forwarder.ManagementPrefix, original.Forwarder.ManagementPrefix)
	}
	if loaded.Forwarder.PITLifetime != original.Forwarder.PITLifetime {
		t.Errorf("PITLifetime = %v, want %v", loaded.Forwarder.PITLifetime, original.Forwarder.PITLifetime)
	}
	if loaded.Forwarder.ContentStoreCapacityMB != original.Forwarder.ContentStoreCapacityMB {
		t.Errorf("ContentStoreCapacityMB = %d, want %d", loaded.Forwarder.ContentStoreCapacityMB, original.Forwarder.ContentStoreCapacityMB)
	}
	if loaded.Forwarder.RetryAlternateEgress != original.Forwarder.RetryAlternateEgress {
		t.Errorf("RetryAlternateEgress = %v, want %v", loaded.Forwarder.RetryAlternateEgress, original.Forwarder.RetryAlternateEgress)
	}
	if len(loaded.Links) != 1 || loaded.Links[0].URI != original.Links[0].URI {
		t.Errorf("Links = %+v, want %+v", loaded.Links, original.Links)
	}
	if len(loaded.Links[0].Routes) != 1 || loaded.Links[0].Routes[0] != "lci:/" {
		t.Errorf("Links[0].Routes = %v, want [lci:/]", loaded.Links[0].Routes)
	}
	if loaded.Metrics.ListenAddr != original.Metrics.ListenAddr {
		t.Errorf("Metrics.ListenAddr = %q, want %q", loaded.Metrics.ListenAddr, original.Metrics.ListenAddr)
	}
}

func TestLoadConfig_fileNotFound(t *testing.T) {
	t.Parallel()

	_, err := LoadConfig("/nonexistent/path/athena.toml")
	if err == nil {
		t.Fatal("LoadConfig() expected error for missing file")
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected fs.ErrNotExist, got: %v", err)
	}
}

func TestLoadConfig_appliesDefaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "athena.toml")

	content := `
[forwarder]
name = "edge1"

[[link]]
uri = "udp://10.0.0.2:4567/name=wan0"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing minimal config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}

	if cfg.Forwarder.PITLifetime != DefaultPITLifetime {
		t.Errorf("PITLifetime = %v, want default %v", cfg.Forwarder.PITLifetime, DefaultPITLifetime)
	}
	if cfg.Forwarder.ContentStoreCapacityMB != DefaultContentStoreCapacityMB {
		t.Errorf("ContentStoreCapacityMB = %d, want default %d", cfg.Forwarder.ContentStoreCapacityMB, DefaultContentStoreCapacityMB)
	}
	if cfg.Control.SocketPath != DefaultControlSocketPath {
		t.Errorf("Control.SocketPath = %q, want default %q", cfg.Control.SocketPath, DefaultControlSocketPath)
	}
}

func TestLoadConfig_rejectsMissingName(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "athena.toml")

	content := `
[[link]]
uri = "udp://10.0.0.2:4567/name=wan0"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("LoadConfig() expected error when forwarder.name is missing")
	}
}

func TestLoadConfig_rejectsNoLinks(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "athena.toml")

	content := `
[forwarder]
name = "edge1"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("LoadConfig() expected error when no links are configured")
	}
}

func TestLoadConfig_rejectsBadRoute(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "athena.toml")

	content := `
[forwarder]
name = "edge1"

[[link]]
uri = "udp://10.0.0.2:4567/name=wan0"
routes = ["not-a-valid-name"]
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("LoadConfig() expected error for a route that does not parse")
	}
}

func TestConfig_ManagementPrefixName_default(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	n, err := cfg.ManagementPrefixName()
	if err != nil {
		t.Fatalf("ManagementPrefixName() error: %v", err)
	}
	want, err := wirename.Parse("lci:/edge1")
	if err != nil {
		t.Fatalf("wirename.Parse: %v", err)
	}
	if !n.Equal(want) {
		t.Errorf("ManagementPrefixName() = %v, want %v", n, want)
	}
}

func TestConfig_QuitNameName_default(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	n, err := cfg.QuitNameName()
	if err != nil {
		t.Fatalf("QuitNameName() error: %v", err)
	}
	want, err := wirename.Parse("lci:/edge1/quit")
	if err != nil {
		t.Fatalf("wirename.Parse: %v", err)
	}
	if !n.Equal(want) {
		t.Errorf("QuitNameName() = %v, want %v", n, want)
	}
}

func TestSaveConfig_createsParentDirs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "deep", "nested", "athena.toml")

	cfg := validConfig()
	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig() error: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not created at nested path: %v", err)
	}
}

func TestParseTOML_andMarshalTOML(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	s, err := MarshalTOML(cfg)
	if err != nil {
		t.Fatalf("MarshalTOML() error: %v", err)
	}

	parsed, err := ParseTOML(s)
	if err != nil {
		t.Fatalf("ParseTOML() error: %v", err)
	}
	if parsed.Forwarder.Name != cfg.Forwarder.Name {
		t.Errorf("Forwarder.Name = %q, want %q", parsed.Forwarder.Name, cfg.Forwarder.Name)
	}
	if len(parsed.Links) != len(cfg.Links) {
		t.Fatalf("Links count = %d, want %d", len(parsed.Links), len(cfg.Links))
	}
}

func TestDefaultConfigPath(t *testing.T) {
	t.Parallel()
	want := "/etc/athena/athena.toml"
	if got := DefaultConfigPath(); got != want {
		t.Errorf("DefaultConfigPath() = %q, want %q", got, want)
	}
}
