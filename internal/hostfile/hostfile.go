// Package hostfile moves ADFS objects to and from the host filesystem. Each
// host file may carry a ".inf" sidecar holding what the host cannot store:
//
//	NAME         LOAD     EXEC     LENGTH   ATTR
//	ELITE        00001900 00008023 00005000 L-RW-R---
//
// Addresses and length are hexadecimal. ATTR is an optional L for locked
// followed by D, owner RWE, public RWE and P, each replaced by '-' when clear.
package hostfile

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/soypat/adfs"
	"github.com/spf13/afero"
	"golang.org/x/text/encoding/charmap"
)

// InfSuffix is appended to a host file name to form its sidecar name.
const InfSuffix = ".inf"

var ErrBadAttr = errors.New("hostfile: bad attribute string")

// Defaults apply to host files copied in without a sidecar, and to sidecars
// that omit the attribute field.
type Defaults struct {
	LoadAddr uint32
	ExecAddr uint32
	Attr     adfs.Attr
}

// Inf is the content of a sidecar file.
type Inf struct {
	Name     string
	LoadAddr uint32
	ExecAddr uint32
	Length   uint32
	Attr     adfs.Attr
	// HasAttr is false when the sidecar had no attribute field.
	HasAttr bool
}

const attrLetters = "DRWERWEP"

var attrFlags = [...]adfs.Attr{adfs.AttrDir, adfs.AttrOwnerRead, adfs.AttrOwnerWrite, adfs.AttrOwnerExec,
	adfs.AttrPublicRead, adfs.AttrPublicWrite, adfs.AttrPublicExec, adfs.AttrPrivate}

// ParseAttr parses the letter form written by adfs.Attr.String.
func ParseAttr(s string) (adfs.Attr, error) {
	var attr adfs.Attr
	if strings.HasPrefix(s, "L") {
		attr |= adfs.AttrLocked
		s = s[1:]
	}
	if len(s) != len(attrLetters) {
		return 0, fmt.Errorf("%w: %q", ErrBadAttr, s)
	}
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case attrLetters[i]:
			attr |= attrFlags[i]
		case '-':
		default:
			return 0, fmt.Errorf("%w: %q at %d", ErrBadAttr, s[i], i)
		}
	}
	return attr, nil
}

// ParseInf parses the first line of a sidecar. Sidecars are Latin-1 text.
func ParseInf(b []byte) (Inf, error) {
	text, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return Inf{}, err
	}
	line, _, _ := strings.Cut(string(text), "\n")
	fields := strings.Fields(line)
	if len(fields) < 4 {
		return Inf{}, fmt.Errorf("%w: want at least 4 fields, got %d", ErrBadAttr, len(fields))
	}
	inf := Inf{Name: fields[0]}
	for i, dst := range []*uint32{&inf.LoadAddr, &inf.ExecAddr, &inf.Length} {
		v, err := strconv.ParseUint(fields[i+1], 16, 32)
		if err != nil {
			return Inf{}, fmt.Errorf("%w: field %d: %w", ErrBadAttr, i+2, err)
		}
		*dst = uint32(v)
	}
	if len(fields) > 4 {
		// Older sidecars separate the lock flag from the rest.
		inf.Attr, err = ParseAttr(strings.Join(fields[4:], ""))
		if err != nil {
			return Inf{}, err
		}
		inf.HasAttr = true
	}
	return inf, nil
}

// AppendInf appends the sidecar line for obj to dst.
func AppendInf(dst []byte, obj *adfs.Object) []byte {
	dst = fmt.Appendf(dst, "%-12s %08X %08X %08X ", obj.Name, obj.LoadAddr, obj.ExecAddr, obj.Length)
	dst = obj.Attr.Appendf(dst)
	return append(dst, '\n')
}

// WriteInf writes the sidecar line for obj to w.
func WriteInf(w io.Writer, obj *adfs.Object) error {
	_, err := w.Write(AppendInf(nil, obj))
	return err
}

// HostToADFS maps a host file name onto an ADFS name. The directory
// separators of the two systems are swapped: host "a.txt" is ADFS "a/txt".
func HostToADFS(name string) string {
	return strings.ReplaceAll(name, ".", "/")
}

// ADFSToHost is the inverse of HostToADFS.
func ADFSToHost(name string) string {
	return strings.ReplaceAll(name, "/", ".")
}

// Load reads the host file at name and its sidecar, if present, into an
// object ready for adfs.FS.Save. Without a sidecar the ADFS name is derived
// from the host file name and def supplies addresses and attributes.
func Load(fs afero.Fs, name string, def Defaults) (adfs.Object, error) {
	data, err := afero.ReadFile(fs, name)
	if err != nil {
		return adfs.Object{}, err
	}
	obj := adfs.Object{
		Name:     HostToADFS(filepath.Base(name)),
		Attr:     def.Attr,
		LoadAddr: def.LoadAddr,
		ExecAddr: def.ExecAddr,
		Length:   uint32(len(data)),
		Data:     data,
	}
	infb, err := afero.ReadFile(fs, name+InfSuffix)
	if errors.Is(err, afero.ErrFileNotFound) {
		return obj, nil
	} else if err != nil {
		return adfs.Object{}, err
	}
	inf, err := ParseInf(infb)
	if err != nil {
		return adfs.Object{}, fmt.Errorf("%s%s: %w", name, InfSuffix, err)
	}
	// Some tools record the full path, such as $.GAMES.ELITE.
	obj.Name = inf.Name
	if i := strings.LastIndexByte(inf.Name, '.'); i >= 0 {
		obj.Name = inf.Name[i+1:]
	}
	obj.LoadAddr = inf.LoadAddr
	obj.ExecAddr = inf.ExecAddr
	if inf.HasAttr {
		obj.Attr = inf.Attr
	}
	return obj, nil
}

// Save writes obj's contents to the host file at name and its sidecar next to it.
func Save(fs afero.Fs, name string, obj *adfs.Object) error {
	if len(obj.Data) < int(obj.Length) {
		return errors.New("hostfile: object contents not loaded")
	}
	err := afero.WriteFile(fs, name, obj.Data[:obj.Length], 0o644)
	if err != nil {
		return err
	}
	return afero.WriteFile(fs, name+InfSuffix, AppendInf(nil, obj), 0o644)
}
