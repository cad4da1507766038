package adfs

import (
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// follow_path resolves path from the root directory into obj.
// "$" is the root itself and a leading "$." is optional.
func (fsys *FS) follow_path(path string, obj *Object) fileResult {
	if path == "$" {
		makeRoot(obj)
		return frOK
	}
	path = strings.TrimPrefix(path, "$.")
	var dir Object
	makeRoot(&dir)
	for {
		name, rest, more := strings.Cut(path, ".")
		var child Object
		fr := fsys.search(&dir, &child, name)
		if fr != frOK {
			return fr
		} else if !more {
			*obj = child
			return frOK
		}
		dir = child
		path = rest
	}
}

// search looks up name in directory dir and decodes the entry into child.
func (fsys *FS) search(dir, child *Object, name string) fileResult {
	if len(name) > maxName {
		return frNameTooLong
	} else if len(name) == 0 {
		return frNotFound
	} else if !dir.Attr.IsDir() {
		return frNotADir
	}
	sb, fr := fsys.loadDir(dir)
	if fr != frOK {
		return fr
	}
	defer sb.release()
	_, fr = dirBlock{data: sb.bytes()}.lookup(name, child)
	return fr
}

// loadDir reads the directory block of dir and checks its markers.
// The returned buffer must be released by the caller.
func (fsys *FS) loadDir(dir *Object) (*sectorbuf, fileResult) {
	if dir.Length < dirHdrSize+dirFtrSize || dir.Length > maxDirSize {
		return nil, frBrokenDir
	}
	sb := fsys.getbuf(int(dir.Length))
	fr := fsys.disk_read(sb, dir.Sector)
	if fr != frOK {
		sb.release()
		return nil, fr
	}
	if !(dirBlock{data: sb.bytes()}).valid() {
		fsys.warn("loadDir:markers", slog.String("dir", dir.Name), slog.Uint64("sector", uint64(dir.Sector)))
		sb.release()
		return nil, frBrokenDir
	}
	return sb, frOK
}

// load reads obj.Length bytes of contents from obj.Sector into obj.Data.
func (fsys *FS) load(obj *Object) fileResult {
	buf := make([]byte, fsys.blk.sectors(int64(obj.Length))*fsys.blk.size())
	if len(buf) > 0 {
		_, err := fsys.device.ReadBlocks(buf, int64(obj.Sector))
		if err != nil {
			fsys.logerror("load", slog.String("name", obj.Name), slog.Uint64("sector", uint64(obj.Sector)), slog.String("err", err.Error()))
			return frReadErr
		}
	}
	obj.Data = buf[:obj.Length:obj.Length]
	return frOK
}

func (fsys *FS) readdir(dir *Object) ([]Object, fileResult) {
	if !dir.Attr.IsDir() {
		return nil, frNotADir
	}
	sb, fr := fsys.loadDir(dir)
	if fr != frOK {
		return nil, fr
	}
	defer sb.release()
	db := dirBlock{data: sb.bytes()}
	objs := make([]Object, db.count())
	for i := range objs {
		db.entry(i).decode(&objs[i])
	}
	return objs, frOK
}

// save creates or replaces obj in destDir. Once the free space map has been
// loaded any failure discards it, so a half done change never reaches disk.
func (fsys *FS) save(obj *Object, destDir string) (fr fileResult) {
	if fr = checkName(obj.Name); fr != frOK {
		return fr
	} else if obj.Attr.IsDir() {
		return frIsDir
	} else if obj.Data == nil && obj.Length != 0 {
		return frIntErr // Contents were never loaded.
	} else if fsys.blk.sectors(int64(len(obj.Data))) > maxSector {
		return frNoSpace
	}
	obj.Length = uint32(len(obj.Data))

	var dir Object
	if fr = fsys.follow_path(destDir, &dir); fr != frOK {
		return fr
	} else if !dir.Attr.IsDir() {
		return frNotADir
	}
	if fr = fsys.loadMap(); fr != frOK {
		return fr
	}
	txn := slog.String("txn", uuid.NewString())
	fsys.debug("save:begin", txn, slog.String("name", obj.Name), slog.String("dir", destDir), slog.Uint64("len", uint64(obj.Length)))
	defer func() {
		if fr != frOK {
			fsys.discardMap()
			fsys.warn("save:abort", txn, slog.String("err", fr.Error()))
		}
	}()

	sb, fr := fsys.loadDir(&dir)
	if fr != frOK {
		return fr
	}
	defer sb.release()
	db := dirBlock{data: sb.bytes()}

	var old Object
	slot, fr := db.lookup(obj.Name, &old)
	switch {
	case fr == frOK:
		// Replace the existing file in place.
		if old.Attr.IsDir() {
			return frIsDir
		} else if old.Attr.IsLocked() {
			return frLocked
		}
		if fr = fsys.freeExtent(&old); fr != frOK {
			return fr
		}
		if fr = fsys.allocWrite(obj); fr != frOK {
			return fr
		}
	case fr != frNotFound:
		return fr
	case slot < 0 || db.count() >= db.capacity():
		return frDirFull
	default:
		if fr = fsys.allocWrite(obj); fr != frOK {
			return fr
		}
		db.makeslot(slot)
	}
	db.entry(slot).encode(obj)
	if fr = fsys.disk_write(db.data, dir.Sector); fr != frOK {
		return fr
	}
	if fr = fsys.persistMap(); fr != frOK {
		return fr
	}
	fsys.info("save", txn, slog.String("name", obj.Name), slog.Uint64("sector", uint64(obj.Sector)), slog.Bool("replaced", old.Name != ""))
	return frOK
}
