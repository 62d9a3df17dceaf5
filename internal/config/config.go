// Package config loads and saves the forwarder daemon's TOML
// configuration, following the teacher's pattern of a top-level Config
// struct with nested FooConfig structs, a DefaultConfig constructor,
// and Load/Save helpers around a well-known path.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/kuuji/athena/internal/wirename"
)

// DefaultConfigDir is the system-wide config directory for the
// forwarder daemon.
const DefaultConfigDir = "/etc/athena"

// configFileName is the daemon config file inside DefaultConfigDir.
// Unlike the teacher's device private key, nothing in this config is
// sensitive, so there is no separate secrets file to split out.
const configFileName = "athena.toml"

// Config is the top-level configuration for the forwarder daemon. It
// is persisted as a TOML file at DefaultConfigPath().
type Config struct {
	Forwarder ForwarderConfig `toml:"forwarder"`
	Links     []LinkConfig    `toml:"link"`
	Control   ControlConfig   `toml:"control"`
	Metrics   MetricsConfig   `toml:"metrics"`
}

// ForwarderConfig names the forwarder instance and sets the fixed
// parameters of its pipeline.
type ForwarderConfig struct {
	// Name identifies this forwarder. It also seeds the default
	// ManagementPrefix and QuitName when those are left unset.
	Name string `toml:"name"`

	// ManagementPrefix is the reserved name prefix that diverts a
	// matching Interest to the control handler instead of the FIB.
	// Textual "lci:/..." form; empty means "lci:/<name>".
	ManagementPrefix string `toml:"management_prefix,omitempty"`

	// QuitName is the reserved management name that signals process
	// exit. Empty means "lci:/<name>/quit".
	QuitName string `toml:"quit_name,omitempty"`

	// PITLifetime bounds how long a PIT entry survives without a
	// matching ContentObject.
	PITLifetime time.Duration `toml:"pit_lifetime"`

	// ContentStoreCapacityMB is the Content Store's byte budget, in
	// megabytes.
	ContentStoreCapacityMB int64 `toml:"content_store_capacity_mb"`

	// RetryAlternateEgress enables retrying a returned Interest over a
	// newly available egress link instead of simply dropping it.
	RetryAlternateEgress bool `toml:"retry_alternate_egress,omitempty"`
}

// ManagementPrefixName parses Forwarder.ManagementPrefix, falling back
// to "lci:/<name>" when it is unset.
func (c *Config) ManagementPrefixName() (wirename.Name, error) {
	s := c.Forwarder.ManagementPrefix
	if s == "" {
		s = "lci:/" + c.Forwarder.Name
	}
	return wirename.Parse(s)
}

// QuitNameName parses Forwarder.QuitName, falling back to
// "lci:/<name>/quit" when it is unset.
func (c *Config) QuitNameName() (wirename.Name, error) {
	s := c.Forwarder.QuitName
	if s == "" {
		s = "lci:/" + c.Forwarder.Name + "/quit"
	}
	return wirename.Parse(s)
}

// LinkConfig describes one link to open at startup and, optionally,
// the routes to install over it once it opens.
type LinkConfig struct {
	// URI is a full connection URI, e.g. "udp://10.0.0.2:4567/name=wan0".
	URI string `toml:"uri"`

	// Routes are "lci:/..." name prefixes to route over this link once
	// open. "lci:/" (the empty name) installs the default route.
	Routes []string `toml:"routes,omitempty"`
}

// ControlConfig configures the unix-socket management surface.
type ControlConfig struct {
	// SocketPath is the unix socket the control server listens on.
	SocketPath string `toml:"socket_path"`
}

// MetricsConfig configures the Prometheus-style /metrics HTTP
// endpoint.
type MetricsConfig struct {
	// ListenAddr is the host:port the metrics server binds, e.g.
	// "127.0.0.1:9090". Empty disables the metrics server.
	ListenAddr string `toml:"listen_addr,omitempty"`
}

// DefaultPITLifetime is the out-of-the-box PIT entry lifetime.
const DefaultPITLifetime = 4 * time.Second

// DefaultContentStoreCapacityMB is a conservative default cache budget.
const DefaultContentStoreCapacityMB = 64

// DefaultControlSocketPath is the default control socket location.
const DefaultControlSocketPath = "/var/run/athena/control.sock"

// DefaultConfig returns a Config populated with sensible defaults.
// Forwarder.Name and Links are left empty and must be filled in by the
// user.
func DefaultConfig() *Config {
	return &Config{
		Forwarder: ForwarderConfig{
			PITLifetime:            DefaultPITLifetime,
			ContentStoreCapacityMB: DefaultContentStoreCapacityMB,
		},
		Control: ControlConfig{
			SocketPath: DefaultControlSocketPath,
		},
	}
}

// DefaultConfigPath returns the default path for the daemon config
// file.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir, configFileName)
}

// Validate checks constraints that can only be checked after decoding:
// required fields are present, name prefixes parse, at least one link
// is configured. LoadConfig calls this so a malformed config is caught
// at startup rather than deep in the forwarder.
func (c *Config) Validate() error {
	if c.Forwarder.Name == "" {
		return errors.New("config: forwarder.name is required")
	}
	if _, err := c.ManagementPrefixName(); err != nil {
		return fmt.Errorf("config: forwarder.management_prefix: %w", err)
	}
	if _, err := c.QuitNameName(); err != nil {
		return fmt.Errorf("config: forwarder.quit_name: %w", err)
	}
	if len(c.Links) == 0 {
		return errors.New("config: at least one [[link]] must be configured")
	}
	for i, l := range c.Links {
		if l.URI == "" {
			return fmt.Errorf("config: link[%d]: uri is required", i)
		}
		for _, r := range l.Routes {
			if _, err := wirename.Parse(r); err != nil {
				return fmt.Errorf("config: link[%d]: route %q: %w", i, r, err)
			}
		}
	}
	return nil
}

// LoadConfig reads and decodes the TOML config file at path, applies
// defaults for unset fields, and validates the result.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config file not found: %w", err)
		}
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseTOML decodes a TOML config from a string, applying defaults but
// skipping Validate — useful for partial configs under test or tooling
// that fills in the rest programmatically.
func ParseTOML(s string) (*Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.Decode(s, cfg); err != nil {
		return nil, fmt.Errorf("decoding TOML config: %w", err)
	}
	applyDefaults(cfg)
	return cfg, nil
}

// MarshalTOML encodes a Config to a TOML string.
func MarshalTOML(cfg *Config) (string, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return "", fmt.Errorf("encoding TOML config: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// SaveConfig writes cfg as TOML to path, creating parent directories
// with mode 0755 if needed.
func SaveConfig(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("encoding TOML config: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("writing config file %s: %w", path, err)
	}
	return nil
}

// applyDefaults fills in zero-valued optional fields after decoding.
func applyDefaults(cfg *Config) {
	if cfg.Forwarder.PITLifetime == 0 {
		cfg.Forwarder.PITLifetime = DefaultPITLifetime
	}
	if cfg.Forwarder.ContentStoreCapacityMB == 0 {
		cfg.Forwarder.ContentStoreCapacityMB = DefaultContentStoreCapacityMB
	}
	if cfg.Control.SocketPath == "" {
		cfg.Control.SocketPath = DefaultControlSocketPath
	}
}
