package config

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/soypat/adfs"
	"github.com/soypat/adfs/internal/hostfile"
	"github.com/spf13/afero"
)

func TestLoadMissing(t *testing.T) {
	cfg, err := Load(afero.NewMemMapFs(), DefaultPath)
	if err != nil {
		t.Fatal(err)
	}
	def, err := cfg.HostDefaults()
	if err != nil {
		t.Fatal(err)
	}
	want := hostfile.Defaults{LoadAddr: 0x1900, ExecAddr: 0x1900, Attr: adfs.AttrOwnerRead | adfs.AttrOwnerWrite}
	if def != want {
		t.Errorf("HostDefaults() = %+v, want %+v", def, want)
	}
	if !cfg.MCP.ReadOnly {
		t.Error("MCP server writable by default")
	}
}

func TestLoad(t *testing.T) {
	fs := afero.NewMemMapFs()
	const file = `
log:
  level: debug
  format: json
defaults:
  load_addr: "&FFFFFF00"
  exec_addr: 0x8023
  access: L-R--R---
mcp:
  image: /discs/games.adf
`
	if err := afero.WriteFile(fs, "/etc/adfs.yaml", []byte(file), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(fs, "/etc/adfs.yaml")
	if err != nil {
		t.Fatal(err)
	}
	def, err := cfg.HostDefaults()
	if err != nil {
		t.Fatal(err)
	}
	if def.LoadAddr != 0xFFFFFF00 || def.ExecAddr != 0x8023 || def.Attr != adfs.AttrLocked|adfs.AttrOwnerRead|adfs.AttrPublicRead {
		t.Errorf("HostDefaults() = %+v", def)
	}
	if cfg.MCP.Image != "/discs/games.adf" || !cfg.MCP.ReadOnly {
		t.Errorf("mcp section %+v", cfg.MCP)
	}

	var buf bytes.Buffer
	log, err := cfg.Logger(&buf)
	if err != nil {
		t.Fatal(err)
	}
	log.Debug("hello", slog.Int("n", 1))
	if !strings.Contains(buf.String(), `"msg":"hello"`) {
		t.Errorf("json debug log missing: %q", buf.String())
	}
}

func TestLoadInvalid(t *testing.T) {
	for _, file := range []string{
		"defaults:\n  access: RW\n",
		"defaults:\n  load_addr: banana\n",
		"defaults:\n  load_addr: [1, 2]\n",
		"log: [\n",
	} {
		fs := afero.NewMemMapFs()
		if err := afero.WriteFile(fs, DefaultPath, []byte(file), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(fs, DefaultPath); err == nil {
			t.Errorf("Load(%q) succeeded", file)
		}
	}
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, DefaultPath, []byte("defaults:\n  access: LRW\n"), 0o644)
	if _, err := Load(fs, DefaultPath); !errors.Is(err, hostfile.ErrBadAttr) {
		t.Errorf("bad access error = %v", err)
	}

	cfg := Default()
	cfg.Log.Format = "xml"
	if _, err := cfg.Logger(&bytes.Buffer{}); err == nil {
		t.Error("unknown log format accepted")
	}
}

func TestWriteRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	cfg := Default()
	cfg.Defaults.LoadAddr = 0xFFFFFB42
	if err := Write(fs, "/home/user/.config/adfs.yaml", cfg); err != nil {
		t.Fatal(err)
	}
	data, _ := afero.ReadFile(fs, "/home/user/.config/adfs.yaml")
	if !strings.Contains(string(data), "&FFFFFB42") {
		t.Errorf("address not written in Acorn form:\n%s", data)
	}
	back, err := Load(fs, "/home/user/.config/adfs.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if *back != *cfg {
		t.Errorf("round trip %+v != %+v", back, cfg)
	}
}
