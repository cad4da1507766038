// Package config loads the YAML settings shared by the adfs commands.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/soypat/adfs/internal/hostfile"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where commands look for a config file when none is given.
const DefaultPath = "adfs.yaml"

type Config struct {
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	// Defaults for host files copied in without a .inf sidecar.
	Defaults struct {
		LoadAddr Addr   `yaml:"load_addr"`
		ExecAddr Addr   `yaml:"exec_addr"`
		Access   string `yaml:"access"`
	} `yaml:"defaults"`
	MCP struct {
		Image    string `yaml:"image"`
		ReadOnly bool   `yaml:"read_only"`
	} `yaml:"mcp"`
}

// Addr is a 32 bit address. YAML may spell it in decimal, as 0x hex or as
// Acorn style &hex.
type Addr uint32

func (a *Addr) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: address must be a scalar", value.Line)
	}
	s := value.Value
	base := 0
	if strings.HasPrefix(s, "&") {
		s, base = s[1:], 16
	}
	v, err := strconv.ParseUint(s, base, 32)
	if err != nil {
		return fmt.Errorf("line %d: bad address %q: %w", value.Line, value.Value, err)
	}
	*a = Addr(v)
	return nil
}

func (a Addr) MarshalYAML() (any, error) {
	return fmt.Sprintf("&%08X", uint32(a)), nil
}

// Default returns the settings used when no config file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	// Unstamped data at the BASIC page, read and write for the owner.
	cfg.Defaults.LoadAddr = 0x1900
	cfg.Defaults.ExecAddr = 0x1900
	cfg.Defaults.Access = "-RW-----"
	cfg.MCP.ReadOnly = true
	return cfg
}

// Load reads the config at path. A missing file yields Default. Fields the
// file leaves out keep their default value.
func Load(fs afero.Fs, path string) (*Config, error) {
	cfg := Default()
	data, err := afero.ReadFile(fs, path)
	if errors.Is(err, afero.ErrFileNotFound) {
		return cfg, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if _, err := cfg.HostDefaults(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Write stores cfg as YAML at path, creating its directory.
func Write(fs afero.Fs, path string, cfg *Config) error {
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return afero.WriteFile(fs, path, data, 0o644)
}

// Logger builds the logger described by the log section, writing to w.
func (cfg *Config) Logger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	switch cfg.Log.Format {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("unknown log format %q", cfg.Log.Format)
}

// HostDefaults converts the defaults section for use with hostfile.Load.
func (cfg *Config) HostDefaults() (hostfile.Defaults, error) {
	attr, err := hostfile.ParseAttr(cfg.Defaults.Access)
	if err != nil {
		return hostfile.Defaults{}, fmt.Errorf("defaults.access: %w", err)
	}
	return hostfile.Defaults{
		LoadAddr: uint32(cfg.Defaults.LoadAddr),
		ExecAddr: uint32(cfg.Defaults.ExecAddr),
		Attr:     attr,
	}, nil
}
