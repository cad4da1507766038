package hostfile

import (
	"bytes"
	"errors"
	"testing"

	"github.com/soypat/adfs"
	"github.com/spf13/afero"
)

func TestParseAttr(t *testing.T) {
	tests := []struct {
		s       string
		want    adfs.Attr
		wantErr bool
	}{
		{s: "--------"},
		{s: "-RW-R---", want: adfs.AttrOwnerRead | adfs.AttrOwnerWrite | adfs.AttrPublicRead},
		{s: "LDR-----", want: adfs.AttrLocked | adfs.AttrDir | adfs.AttrOwnerRead},
		{s: "DRWERWEP", want: adfs.AttrDir | adfs.AttrOwnerRead | adfs.AttrOwnerWrite | adfs.AttrOwnerExec |
			adfs.AttrPublicRead | adfs.AttrPublicWrite | adfs.AttrPublicExec | adfs.AttrPrivate},
		{s: "-RW", wantErr: true},
		{s: "-RW-R----", wantErr: true},
		{s: "-WR-----", wantErr: true},
		{s: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseAttr(tt.s)
		if tt.wantErr {
			if !errors.Is(err, ErrBadAttr) {
				t.Errorf("ParseAttr(%q) error = %v", tt.s, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseAttr(%q) = %v, %v; want %v", tt.s, got, err, tt.want)
		}
		if got.String() != tt.s {
			t.Errorf("%q printed back as %q", tt.s, got.String())
		}
	}
}

func TestInfRoundTrip(t *testing.T) {
	obj := adfs.Object{
		Name:     "ELITE",
		Attr:     adfs.AttrLocked | adfs.AttrOwnerRead | adfs.AttrOwnerWrite,
		LoadAddr: 0x1900,
		ExecAddr: 0xFFFF8023,
		Length:   0x5000,
	}
	line := AppendInf(nil, &obj)
	const want = "ELITE        00001900 FFFF8023 00005000 L-RW-----\n"
	if string(line) != want {
		t.Fatalf("AppendInf = %q, want %q", line, want)
	}
	inf, err := ParseInf(line)
	if err != nil {
		t.Fatal(err)
	}
	if inf.Name != obj.Name || inf.LoadAddr != obj.LoadAddr || inf.ExecAddr != obj.ExecAddr ||
		inf.Length != obj.Length || inf.Attr != obj.Attr || !inf.HasAttr {
		t.Errorf("ParseInf = %+v", inf)
	}
}

func TestParseInf(t *testing.T) {
	inf, err := ParseInf([]byte("BOOT 0 FFFFFFFF 10\n"))
	if err != nil {
		t.Fatal(err)
	} else if inf.HasAttr || inf.Name != "BOOT" || inf.ExecAddr != 0xFFFFFFFF || inf.Length != 0x10 {
		t.Errorf("no attribute field: %+v", inf)
	}
	inf, err = ParseInf([]byte("LOCKD 0 0 0 L -R------\r\n"))
	if err != nil {
		t.Fatal(err)
	} else if inf.Attr != adfs.AttrLocked|adfs.AttrOwnerRead {
		t.Errorf("split lock flag parsed as %v", inf.Attr)
	}
	inf, err = ParseInf([]byte("caf\xe9 0 0 0\n"))
	if err != nil {
		t.Fatal(err)
	} else if inf.Name != "café" {
		t.Errorf("latin-1 name decoded as %q", inf.Name)
	}
	for _, bad := range []string{"", "NAME 0 0", "NAME 0 0 XYZ", "NAME 0 100000000 0", "NAME 0 0 0 RWX"} {
		if _, err := ParseInf([]byte(bad)); !errors.Is(err, ErrBadAttr) {
			t.Errorf("ParseInf(%q) error = %v", bad, err)
		}
	}
}

func TestLoadSave(t *testing.T) {
	fs := afero.NewMemMapFs()
	def := Defaults{LoadAddr: 0xFFFFFF00, ExecAddr: 0xFFFFFF00, Attr: adfs.AttrOwnerRead | adfs.AttrOwnerWrite}
	data := []byte("10 PRINT \"HELLO\"\r")
	if err := afero.WriteFile(fs, "/host/prog.bas", data, 0o644); err != nil {
		t.Fatal(err)
	}
	obj, err := Load(fs, "/host/prog.bas", def)
	if err != nil {
		t.Fatal(err)
	}
	if obj.Name != "prog/bas" || obj.Attr != def.Attr || obj.LoadAddr != def.LoadAddr ||
		obj.Length != uint32(len(data)) || !bytes.Equal(obj.Data, data) {
		t.Fatalf("Load without sidecar = %+v", obj)
	}

	obj.Name = "PROG"
	obj.Attr |= adfs.AttrLocked
	obj.ExecAddr = 0x8023
	if err = Save(fs, "/out/PROG", &obj); err != nil {
		t.Fatal(err)
	}
	back, err := Load(fs, "/out/PROG", def)
	if err != nil {
		t.Fatal(err)
	}
	if back.Name != "PROG" || back.Attr != obj.Attr || back.ExecAddr != 0x8023 || !bytes.Equal(back.Data, data) {
		t.Errorf("Load with sidecar = %+v", back)
	}

	if err = afero.WriteFile(fs, "/out/PROG"+InfSuffix, []byte("PROG 0 0 0 ?\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err = Load(fs, "/out/PROG", def); !errors.Is(err, ErrBadAttr) {
		t.Errorf("Load with bad sidecar = %v", err)
	}
	if err = afero.WriteFile(fs, "/out/PROG"+InfSuffix, []byte("$.GAMES.ELITE 00001900 00008023 00000011 -RW-----\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if back, err = Load(fs, "/out/PROG", def); err != nil {
		t.Fatal(err)
	} else if back.Name != "ELITE" || back.ExecAddr != 0x8023 {
		t.Errorf("Load with full path sidecar = %+v", back)
	}
	if _, err = Load(fs, "/missing", def); err == nil {
		t.Error("Load of missing file succeeded")
	}
}

func TestNameMapping(t *testing.T) {
	if got := HostToADFS("read.me"); got != "read/me" {
		t.Errorf("HostToADFS = %q", got)
	}
	if got := ADFSToHost("read/me"); got != "read.me" {
		t.Errorf("ADFSToHost = %q", got)
	}
}
