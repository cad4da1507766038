package adfs

import (
	"errors"
	"log/slog"
	"os"
	"testing"
)

var errInjected = errors.New("injected device fault")

// faultyBlocks wraps a device and fails writes touching sectors in
// [failFrom, failTo). Reads always pass through.
type faultyBlocks struct {
	BlockDevice
	failFrom, failTo int64
	writes           int
}

func (b *faultyBlocks) WriteBlocks(data []byte, startBlock int64) (int, error) {
	end := startBlock + int64(len(data)+sectorSize-1)/sectorSize
	if startBlock < b.failTo && end > b.failFrom {
		return 0, errInjected
	}
	b.writes++
	return b.BlockDevice.WriteBlocks(data, startBlock)
}

func (b *faultyBlocks) heal() { b.failFrom, b.failTo = 0, 0 }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// newTestFS formats an in-memory volume of the given size and mounts it read-write.
func newTestFS(t testing.TB, sectors int) (*FS, *BytesBlocks) {
	t.Helper()
	dev := NewBytesBlocks(sectors)
	var f Formatter
	err := f.Format(dev, sectors, FormatConfig{Title: "TestDisc"})
	if err != nil {
		t.Fatal(err)
	}
	fsys := new(FS)
	fsys.SetLogger(testLogger())
	err = fsys.Mount(dev, ModeRW)
	if err != nil {
		t.Fatal(err)
	}
	return fsys, dev
}

// mkdirRaw creates an empty directory entry in parent. Directories cannot be
// created through the public API.
func mkdirRaw(t testing.TB, fsys *FS, parent, name string) {
	t.Helper()
	var pdir Object
	if fr := fsys.follow_path(parent, &pdir); fr != frOK {
		t.Fatal("resolving parent:", fr)
	}
	if fr := fsys.loadMap(); fr != frOK {
		t.Fatal(fr)
	}
	sector, fr := fsys.fsmap.alloc(rootSize / sectorSize)
	if fr != frOK {
		t.Fatal(fr)
	}
	block := make([]byte, rootSize)
	initDirBlock(block, name, pdir.Sector, name)
	if fr = fsys.disk_write(block, sector); fr != frOK {
		t.Fatal(fr)
	}
	sb, fr := fsys.loadDir(&pdir)
	if fr != frOK {
		t.Fatal(fr)
	}
	defer sb.release()
	db := dirBlock{data: sb.bytes()}
	var existing Object
	slot, fr := db.lookup(name, &existing)
	if fr != frNotFound || slot < 0 {
		t.Fatalf("cannot place %q: %v slot=%d", name, fr, slot)
	}
	db.makeslot(slot)
	db.entry(slot).encode(&Object{
		Name:   name,
		Attr:   AttrDir | AttrLocked | AttrOwnerRead,
		Length: rootSize,
		Sector: sector,
	})
	if fr = fsys.disk_write(db.data, pdir.Sector); fr != frOK {
		t.Fatal(fr)
	}
	if fr = fsys.persistMap(); fr != frOK {
		t.Fatal(fr)
	}
}

func seqData(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i)
	}
	return data
}
