package adfs

import (
	"bytes"
	"errors"
	"testing"
)

// FuzzSave is a self contained fuzzing function whose working principle is
// similar to that of a virtual machine. It takes in a series of 64-bit
// operations and performs them on a freshly formatted volume, checking the
// volume against a model of what it should hold after every operation.
func FuzzSave(f *testing.F) {
	// 64-bit operation definition, starting with least significant bits:
	//
	//  - OP:       First 4 bits are the operation to perform.
	//  - WHO:      Next 4 bits select the file name.
	//  - ATTR:     Next 8 bits are the attributes of saved files.
	//  - RESERVED: Middle bits are reserved.
	//  - DATASIZE: Last 16 bits is the size of the data to write, if applicable.
	const (
		opSave uint64 = iota
		opFind
		opChangeDir
		opRemount

		whoOff      = 4
		attrOff     = 8
		datasizeOff = 48
	)
	writeData := make([]byte, 1<<16)
	for i := range writeData {
		writeData[i] = byte(i * 7)
	}
	f.Add(opSave|(1000<<datasizeOff), opFind, opSave|(1<<whoOff)|(300<<datasizeOff),
		opChangeDir, opSave|(2<<whoOff)|(10<<datasizeOff), opRemount,
		opFind|(2<<whoOff), opChangeDir, opSave|(2000<<datasizeOff), opFind,
		opSave|(1<<whoOff)|(4<<attrOff), opSave|(1<<whoOff))
	const totalSectors = SizeS
	logger := testLogger()
	f.Fuzz(func(t *testing.T, fsop0, fsop1, fsop2, fsop3, fsop4, fsop5, fsop6, fsop7, fsop8, fsop9, fsop10, fsop11 uint64) {
		fsys, dev := newTestFS(t, totalSectors)
		fsys.SetLogger(logger)
		mkdirRaw(t, fsys, "$", "SUB")
		type model struct {
			data   []byte
			locked bool
		}
		files := make(map[string]model)
		dir := "$"
		fsops := [...]uint64{fsop0, fsop1, fsop2, fsop3, fsop4, fsop5, fsop6, fsop7, fsop8, fsop9, fsop10, fsop11}
		for _, fsop := range fsops {
			op := fsop & 0xf
			name := string(rune('A' + (fsop>>whoOff)&0xf))
			attr := Attr(fsop>>attrOff) & (AttrOwnerRead | AttrOwnerWrite | AttrLocked | AttrPublicRead)
			datasize := uint16(fsop >> datasizeOff)
			key := dir + "." + name
			switch op % 4 {
			case opSave:
				obj := Object{Name: name, Attr: attr, LoadAddr: uint32(fsop), Data: writeData[:datasize]}
				err := fsys.Save(&obj, dir)
				prev, exists := files[key]
				switch {
				case exists && prev.locked:
					if !errors.Is(err, ErrLocked) {
						t.Fatalf("overwriting locked %s: %v", key, err)
					}
				case errors.Is(err, ErrNoSpace), errors.Is(err, ErrMapFull), errors.Is(err, ErrDirectoryFull):
					// Volume full, state must be unchanged.
				case err != nil:
					t.Fatalf("Save(%s): %v", key, err)
				default:
					files[key] = model{data: writeData[:datasize], locked: attr.IsLocked()}
				}

			case opFind:
				obj, err := fsys.Find(key)
				want, exists := files[key]
				if !exists {
					if !errors.Is(err, ErrNotFound) {
						t.Fatalf("Find(%s) of missing file: %v", key, err)
					}
					break
				} else if err != nil {
					t.Fatalf("Find(%s): %v", key, err)
				}
				if err = fsys.Load(&obj); err != nil {
					t.Fatal(err)
				} else if !bytes.Equal(obj.Data, want.data) {
					t.Fatalf("%s contents differ", key)
				}

			case opChangeDir:
				if dir == "$" {
					dir = "$.SUB"
				} else {
					dir = "$"
				}

			case opRemount:
				fsys = new(FS)
				fsys.SetLogger(logger)
				if err := fsys.Mount(dev, ModeRW); err != nil {
					t.Fatal(err)
				}
			}
			var m freeMap
			copy(m.data[:], dev.Bytes())
			if !m.valid() {
				t.Fatal("free space map on disk invalid")
			}
		}
		st, err := fsys.Stat()
		if err != nil {
			t.Fatal(err)
		}
		used := uint32(firstDataSector + rootSize/sectorSize)
		for _, file := range files {
			used += uint32(len(file.data)+sectorSize-1) / sectorSize
		}
		if st.FreeSectors+used != totalSectors {
			t.Fatalf("free %d + used %d != total %d", st.FreeSectors, used, totalSectors)
		}
	})
}
