package adfs

import (
	"errors"
	"log/slog"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// Mode represents the volume access mode used in Mount.
type Mode uint8

// Volume access modes for calling Mount.
const (
	ModeRead  Mode = 1 << 0
	ModeWrite Mode = 1 << 1
	ModeRW    Mode = ModeRead | ModeWrite
)

var (
	errInvalidMode   = errors.New("invalid adfs access mode")
	errForbiddenMode = errors.New("forbidden adfs access mode")
	errNotMounted    = errors.New("adfs volume not mounted")
)

// Attr holds an object's access attributes. Each flag's bit index is the
// index of the name byte whose top bit stores it on disk.
type Attr uint16

const (
	AttrOwnerRead Attr = 1 << iota
	AttrOwnerWrite
	AttrLocked
	AttrDir
	AttrOwnerExec
	AttrPublicRead
	AttrPublicWrite
	AttrPublicExec
	_ // Name byte 8 carries no attribute.
	AttrPrivate

	attrMask = AttrOwnerRead | AttrOwnerWrite | AttrLocked | AttrDir | AttrOwnerExec |
		AttrPublicRead | AttrPublicWrite | AttrPublicExec | AttrPrivate
)

func (a Attr) IsDir() bool    { return a&AttrDir != 0 }
func (a Attr) IsLocked() bool { return a&AttrLocked != 0 }

// String returns the attributes in .inf letter form: an optional L for locked
// followed by D, owner RWE, public RWE and P, with '-' for clear flags.
func (a Attr) String() string {
	return string(a.Appendf(nil))
}

func (a Attr) Appendf(dst []byte) []byte {
	if a.IsLocked() {
		dst = append(dst, 'L')
	}
	const letters = "DRWERWEP"
	flags := [...]Attr{AttrDir, AttrOwnerRead, AttrOwnerWrite, AttrOwnerExec,
		AttrPublicRead, AttrPublicWrite, AttrPublicExec, AttrPrivate}
	for i, f := range flags {
		if a&f != 0 {
			dst = append(dst, letters[i])
		} else {
			dst = append(dst, '-')
		}
	}
	return dst
}

// Object describes a file or directory. Data holds the object's contents once
// loaded with FS.Load or when supplied by the caller for FS.Save.
type Object struct {
	Name     string
	Attr     Attr
	LoadAddr uint32
	ExecAddr uint32
	Length   uint32
	// Sector is the first sector of the object's contents.
	Sector uint32
	Data   []byte
}

// Release drops the object's data buffer.
func (obj *Object) Release() {
	obj.Data = nil
}

// DirInfo is the identity a directory records in its own footer.
type DirInfo struct {
	Name         string
	Title        string
	ParentSector uint32
	Sequence     uint8
	Entries      int
	Capacity     int
}

// VolumeStat summarizes the free space map.
type VolumeStat struct {
	TotalSectors uint32
	FreeSectors  uint32
	FreeExtents  int
	LargestFree  uint32
	DiscID       uint16
	BootOption   uint8
}

// Extent is a run of contiguous sectors.
type Extent struct {
	Start  uint32
	Length uint32
}

// Mount attaches the FS to the ADFS volume on bd. The root directory is read
// to check the device holds an old style ADFS volume. Mode should be ModeRead,
// ModeWrite or both. Mounting discards any cached state.
func (fsys *FS) Mount(bd BlockDevice, mode Mode) error {
	if mode&^ModeRW != 0 || mode == 0 {
		return errInvalidMode
	} else if bd == nil {
		return errors.New("nil block device")
	}
	blk, err := makeBlockIndexer(sectorSize)
	if err != nil {
		return err
	}
	fsys.device = bd
	fsys.blk = blk
	fsys.perm = mode
	fsys.discardMap()

	var root Object
	makeRoot(&root)
	sb, fr := fsys.loadDir(&root)
	if fr != frOK {
		fsys.device = nil
		return fr
	}
	sb.release()
	fsys.debug("mounted", slog.Int("mode", int(mode)))
	return nil
}

// SetLogger sets the logger used to report device errors and transactions.
// A nil logger disables logging.
func (fsys *FS) SetLogger(log *slog.Logger) {
	fsys.log = log
}

// Find resolves a dotted ADFS path such as "$.GAMES.ELITE" and returns its
// directory entry. Names compare case-insensitively. The contents are not read.
func (fsys *FS) Find(path string) (Object, error) {
	var obj Object
	if fsys.device == nil {
		return obj, errNotMounted
	}
	fr := fsys.follow_path(path, &obj)
	if fr != frOK {
		return Object{}, fr
	}
	return obj, nil
}

// Load reads the object's contents into obj.Data.
func (fsys *FS) Load(obj *Object) error {
	if fsys.device == nil {
		return errNotMounted
	} else if fsys.perm&ModeRead == 0 {
		return errForbiddenMode
	}
	fr := fsys.load(obj)
	if fr != frOK {
		return fr
	}
	return nil
}

// Save writes obj into the directory at destDir, replacing any file of the
// same name. On success obj.Length and obj.Sector are set from the write.
// On failure obj is left untouched and no part of the free space map is
// committed to disk.
func (fsys *FS) Save(obj *Object, destDir string) error {
	if fsys.device == nil {
		return errNotMounted
	} else if fsys.perm&ModeWrite == 0 {
		return errForbiddenMode
	}
	saved := *obj
	fr := fsys.save(&saved, destDir)
	if fr != frOK {
		return fr
	}
	*obj = saved
	return nil
}

// ReadDir returns the entries of the directory at path in on-disk order,
// which is sorted by name.
func (fsys *FS) ReadDir(path string) ([]Object, error) {
	if fsys.device == nil {
		return nil, errNotMounted
	}
	var dir Object
	fr := fsys.follow_path(path, &dir)
	if fr != frOK {
		return nil, fr
	}
	objs, fr := fsys.readdir(&dir)
	if fr != frOK {
		return nil, fr
	}
	return objs, nil
}

// DirInfo returns the footer information of the directory at path.
func (fsys *FS) DirInfo(path string) (DirInfo, error) {
	if fsys.device == nil {
		return DirInfo{}, errNotMounted
	}
	var dir Object
	fr := fsys.follow_path(path, &dir)
	if fr != frOK {
		return DirInfo{}, fr
	} else if !dir.Attr.IsDir() {
		return DirInfo{}, frNotADir
	}
	sb, fr := fsys.loadDir(&dir)
	if fr != frOK {
		return DirInfo{}, fr
	}
	defer sb.release()
	db := dirBlock{data: sb.bytes()}
	title, err := charmap.ISO8859_1.NewDecoder().Bytes(db.title())
	if err != nil {
		return DirInfo{}, err
	}
	return DirInfo{
		Name:         db.dirName(),
		Title:        strings.TrimRight(string(title), " "),
		ParentSector: db.parentSector(),
		Sequence:     db.sequence(),
		Entries:      db.count(),
		Capacity:     db.capacity(),
	}, nil
}

// Stat summarizes the volume's free space map.
func (fsys *FS) Stat() (VolumeStat, error) {
	if fsys.device == nil {
		return VolumeStat{}, errNotMounted
	}
	fr := fsys.loadMap()
	if fr != frOK {
		return VolumeStat{}, fr
	}
	m := fsys.fsmap
	st := VolumeStat{
		TotalSectors: m.TotalSectors(),
		FreeExtents:  m.count(),
		DiscID:       m.DiscID(),
		BootOption:   m.BootOption(),
	}
	for i := 0; i < m.count(); i++ {
		n := m.length(i)
		st.FreeSectors += n
		st.LargestFree = max(st.LargestFree, n)
	}
	return st, nil
}

// Extents returns the free extents in map order.
func (fsys *FS) Extents() ([]Extent, error) {
	if fsys.device == nil {
		return nil, errNotMounted
	}
	fr := fsys.loadMap()
	if fr != frOK {
		return nil, fr
	}
	m := fsys.fsmap
	extents := make([]Extent, m.count())
	for i := range extents {
		extents[i] = Extent{Start: m.start(i), Length: m.length(i)}
	}
	return extents, nil
}
