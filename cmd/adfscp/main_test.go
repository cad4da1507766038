package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/afero"
)

func newTestApp() (*app, *bytes.Buffer, *bytes.Buffer) {
	var stdout, stderr bytes.Buffer
	return &app{hostfs: afero.NewMemMapFs(), stdout: &stdout, stderr: &stderr}, &stdout, &stderr
}

func TestCopyRoundTrip(t *testing.T) {
	a, stdout, stderr := newTestApp()
	if code := a.run([]string{"format", "/disc.adf", "--size", "S", "--title", "Work"}); code != 0 {
		t.Fatalf("format exit %d: %s", code, stderr)
	}
	fi, err := a.hostfs.Stat("/disc.adf")
	if err != nil {
		t.Fatal(err)
	} else if fi.Size() != 640*256 {
		t.Fatalf("image size %d", fi.Size())
	}

	data := []byte("10 PRINT \"HELLO\"\r")
	afero.WriteFile(a.hostfs, "/in/prog.bas", data, 0o644)
	if code := a.run([]string{"copy", "in", "/disc.adf", "$", "/in/prog.bas"}); code != 0 {
		t.Fatalf("copy in exit %d: %s", code, stderr)
	}
	a.hostfs.MkdirAll("/out", 0o755)
	if code := a.run([]string{"copy", "OUT", "/disc.adf", "$.PROG/BAS", "/out"}); code != 0 {
		t.Fatalf("copy out exit %d: %s", code, stderr)
	}
	got, err := afero.ReadFile(a.hostfs, "/out/prog.bas")
	if err != nil {
		t.Fatal(err)
	} else if !bytes.Equal(got, data) {
		t.Errorf("copied out %q", got)
	}
	inf, err := afero.ReadFile(a.hostfs, "/out/prog.bas.inf")
	if err != nil {
		t.Fatal(err)
	}
	const wantInf = "prog/bas     00001900 00001900 00000011 -RW-----\n"
	if string(inf) != wantInf {
		t.Errorf("sidecar %q, want %q", inf, wantInf)
	}

	stdout.Reset()
	if code := a.run([]string{"cat", "/disc.adf"}); code != 0 {
		t.Fatalf("cat exit %d: %s", code, stderr)
	}
	for _, want := range []string{`$ (00) "Work"`, "prog/bas   -RW-----  00001900 00001900 00000011 000007", "1 of 47 entries"} {
		if !strings.Contains(stdout.String(), want) {
			t.Errorf("catalogue missing %q:\n%s", want, stdout)
		}
	}

	stdout.Reset()
	if code := a.run([]string{"map", "/disc.adf"}); code != 0 {
		t.Fatalf("map exit %d: %s", code, stderr)
	}
	if !strings.Contains(stdout.String(), "sectors 640 free 632") || !strings.Contains(stdout.String(), "000008 000278") {
		t.Errorf("map output:\n%s", stdout)
	}
}

func TestExitCodes(t *testing.T) {
	a, _, stderr := newTestApp()
	if code := a.run([]string{"format", "/disc.adf", "--size", "M"}); code != 0 {
		t.Fatalf("format exit %d: %s", code, stderr)
	}
	afero.WriteFile(a.hostfs, "/file", []byte("x"), 0o644)
	tests := []struct {
		args []string
		want int
	}{
		{args: []string{"copy", "in", "/disc.adf", "$"}, want: exitUsage},
		{args: []string{"copy", "sideways", "/disc.adf", "$", "/file"}, want: exitUsage},
		{args: []string{"copy", "in", "/missing.adf", "$", "/file"}, want: exitImage},
		{args: []string{"copy", "in", "/disc.adf", "$", "/missing"}, want: exitHost},
		{args: []string{"copy", "in", "/disc.adf", "$.NODIR", "/file"}, want: exitADFS},
		{args: []string{"copy", "out", "/disc.adf", "$.NOFILE", "/out"}, want: exitADFS},
		{args: []string{"copy", "out", "/disc.adf", "$", "/out"}, want: exitADFS},
		{args: []string{"cat", "/disc.adf", "$.FILE"}, want: exitADFS},
		{args: []string{"format", "/x.adf", "--size", "XL"}, want: exitUsage},
	}
	// FILE is a file, so cataloguing it fails.
	if code := a.run([]string{"copy", "in", "/disc.adf", "$", "/file"}); code != 0 {
		t.Fatalf("copy in exit %d: %s", code, stderr)
	}
	for _, tt := range tests {
		if code := a.run(tt.args); code != tt.want {
			t.Errorf("%q exit %d, want %d", tt.args, code, tt.want)
		}
	}
}

func TestConfigInit(t *testing.T) {
	a, _, stderr := newTestApp()
	if code := a.run([]string{"config", "init", "--config", "/etc/adfs.yaml"}); code != 0 {
		t.Fatalf("config init exit %d: %s", code, stderr)
	}
	if code := a.run([]string{"config", "init", "--config", "/etc/adfs.yaml"}); code != exitHost {
		t.Errorf("second config init exit %d", code)
	}
	afero.WriteFile(a.hostfs, "/bad.yaml", []byte("defaults:\n  access: bogus\n"), 0o644)
	if code := a.run([]string{"map", "/disc.adf", "--config", "/bad.yaml"}); code != exitHost {
		t.Errorf("bad config exit %d", code)
	}
}
