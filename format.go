package adfs

import (
	"errors"
	"strings"
)

// Standard old map floppy sizes in sectors.
const (
	SizeS = 640  // 160K, single sided 40 track.
	SizeM = 1280 // 320K, single sided 80 track.
	SizeL = 2560 // 640K, double sided 80 track.
)

// First sector after the free space map and the root directory.
const firstDataSector = rootSector + rootSize/sectorSize

// Formatter writes empty ADFS volumes.
type Formatter struct {
	window []byte
	// block device is temporarily used by the formatter to write blocks.
	bd BlockDevice
}

type FormatConfig struct {
	// Title is stored in the root directory footer. Defaults to "$".
	Title string
	// DiscID tells discs apart when several share a name.
	DiscID uint16
	// BootOption is the *OPT 4 action: 0 none, 1 load, 2 run, 3 exec.
	BootOption uint8
}

// Format erases the first sectors blocks of bd and writes an empty volume:
// a free space map with a single free extent and an empty root directory.
func (f *Formatter) Format(bd BlockDevice, sectors int, cfg FormatConfig) error {
	if bd == nil || sectors <= firstDataSector || sectors > maxSector {
		return errors.New("invalid Format argument")
	} else if cfg.BootOption > 3 {
		return errors.New("invalid boot option")
	} else if len(cfg.Title) > ftrTitleLen {
		return errors.New("title too long")
	}
	if cfg.Title == "" {
		cfg.Title = "$"
	}
	const winsize = firstDataSector * sectorSize
	if len(f.window) < winsize {
		f.window = make([]byte, winsize)
	}
	win := f.window[:winsize]
	clear(win)
	f.bd = bd
	defer func() { f.bd = nil }()

	if err := f.bd.EraseBlocks(0, int64(sectors)); err != nil {
		return err
	}

	var m freeMap
	m.SetTotalSectors(uint32(sectors))
	m.SetDiscID(cfg.DiscID)
	m.SetBootOption(cfg.BootOption)
	m.insert(0, firstDataSector, uint32(sectors-firstDataSector))
	m.seal()
	copy(win, m.data[:])

	initDirBlock(win[rootSector*sectorSize:rootSector*sectorSize+rootSize], "$", rootSector, cfg.Title)

	_, err := f.bd.WriteBlocks(win, 0)
	return err
}

// initDirBlock writes an empty directory with sequence number 0 into block.
func initDirBlock(block []byte, name string, parent uint32, title string) {
	clear(block)
	db := dirBlock{data: block}
	copy(db.data[1:], hugo)
	ftr := db.footer()
	putTerm(ftr[ftrName:ftrName+maxName], name)
	put24(ftr[ftrParent:], parent)
	putTerm(ftr[ftrTitle:ftrTitle+ftrTitleLen], title)
	copy(ftr[ftrMagic:], hugo)
}

// putTerm stores s in dst, terminated by CR if shorter than dst.
func putTerm(dst []byte, s string) {
	n := copy(dst, strings.ToValidUTF8(s, "?"))
	if n < len(dst) {
		dst[n] = '\r'
	}
}
