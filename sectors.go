package adfs

import (
	"encoding/binary"
	"strconv"
)

// Directory entry field offsets.
const (
	entName     = 0x00
	entLoadAddr = 0x0A
	entExecAddr = 0x0E
	entLength   = 0x12
	entSector   = 0x16
	entSequence = 0x19
)

// Directory footer field offsets, relative to the start of the footer.
const (
	ftrEnd      = 0x00
	ftrName     = 0x01
	ftrParent   = 0x0B
	ftrTitle    = 0x0E
	ftrTitleLen = 19
	ftrSequence = 0x2F
	ftrMagic    = 0x30
	ftrCheck    = 0x34
)

// Free space map field offsets within the 512 byte map.
const (
	mapStarts       = 0x000
	mapTotalSectors = 0x0FC
	mapCheck0       = 0x0FF
	mapLengths      = 0x100
	mapDiscID       = 0x1FB
	mapBootOption   = 0x1FD
	mapEnd          = 0x1FE
	mapCheck1       = 0x1FF
)

const hugo = "Hugo"

// dirEntry is a view of a 26 byte directory entry. The high bit of each of the
// ten name bytes doubles as an attribute flag.
type dirEntry struct {
	data []byte
}

// isSentinel reports whether the entry marks the end of the directory.
func (de dirEntry) isSentinel() bool {
	return de.data[entName] == 0
}

func (de dirEntry) nameLen() int {
	for i := 0; i < maxName; i++ {
		if isTerm(de.data[entName+i] & 0x7f) {
			return i
		}
	}
	return maxName
}

// name returns the entry's name with the attribute bits stripped.
func (de dirEntry) name() string {
	n := de.nameLen()
	var buf [maxName]byte
	for i := 0; i < n; i++ {
		buf[i] = de.data[entName+i] & 0x7f
	}
	return string(buf[:n])
}

// attr gathers the attribute flags from the name bytes. Byte 8 carries no flag.
func (de dirEntry) attr() (attr Attr) {
	for i := 0; i < maxName; i++ {
		if attrMask&(1<<i) != 0 && de.data[entName+i]&0x80 != 0 {
			attr |= 1 << i
		}
	}
	return attr
}

func (de dirEntry) loadAddr() uint32 { return binary.LittleEndian.Uint32(de.data[entLoadAddr:]) }
func (de dirEntry) execAddr() uint32 { return binary.LittleEndian.Uint32(de.data[entExecAddr:]) }
func (de dirEntry) length() uint32   { return binary.LittleEndian.Uint32(de.data[entLength:]) }
func (de dirEntry) sector() uint32   { return get24(de.data[entSector:]) }

// decode fills obj from the entry. obj's data buffer is left untouched.
func (de dirEntry) decode(obj *Object) {
	obj.Name = de.name()
	obj.Attr = de.attr()
	obj.LoadAddr = de.loadAddr()
	obj.ExecAddr = de.execAddr()
	obj.Length = de.length()
	obj.Sector = de.sector()
}

// encode overwrites the entry with obj's name, attributes and location.
// The sequence byte is preserved.
func (de dirEntry) encode(obj *Object) {
	name := de.data[entName : entName+maxName]
	clear(name)
	n := copy(name, obj.Name)
	for i := 0; i < n; i++ {
		name[i] &= 0x7f
	}
	if n < maxName {
		name[n] = '\r'
	}
	attr := obj.Attr & attrMask
	for i := 0; i < maxName; i++ {
		name[i] |= b2i[byte](attr&(1<<i) != 0) << 7
	}
	binary.LittleEndian.PutUint32(de.data[entLoadAddr:], obj.LoadAddr)
	binary.LittleEndian.PutUint32(de.data[entExecAddr:], obj.ExecAddr)
	binary.LittleEndian.PutUint32(de.data[entLength:], obj.Length)
	put24(de.data[entSector:], obj.Sector)
}

// dirBlock is a view of a whole directory: header, entries and footer.
type dirBlock struct {
	data []byte
}

func (db dirBlock) sequence() byte { return db.data[0] }

func (db dirBlock) footer() []byte { return db.data[len(db.data)-dirFtrSize:] }

// valid checks the "Hugo" markers in header and footer and that both
// carry the same sequence number.
func (db dirBlock) valid() bool {
	if len(db.data) < dirHdrSize+dirFtrSize {
		return false
	}
	ftr := db.footer()
	return string(db.data[1:dirHdrSize]) == hugo &&
		ftr[ftrSequence] == db.data[0] &&
		string(ftr[ftrMagic:ftrMagic+4]) == hugo
}

// capacity is the number of entry slots between header and footer.
func (db dirBlock) capacity() int {
	return (len(db.data) - dirHdrSize - dirFtrSize) / dirEntSize
}

func (db dirBlock) entry(i int) dirEntry {
	off := dirHdrSize + i*dirEntSize
	return dirEntry{data: db.data[off : off+dirEntSize : off+dirEntSize]}
}

// count returns the number of entries before the sentinel.
func (db dirBlock) count() int {
	n := db.capacity()
	for i := 0; i < n; i++ {
		if db.entry(i).isSentinel() {
			return i
		}
	}
	return n
}

// lookup searches the sorted entries for name. When found the entry is decoded
// into obj. slot is the index of the matching entry or of the entry name would
// be inserted before; it is -1 when the scan ran into the footer.
func (db dirBlock) lookup(name string, obj *Object) (slot int, fr fileResult) {
	n := db.capacity()
	for i := 0; i < n; i++ {
		ent := db.entry(i)
		if ent.isSentinel() {
			return i, frNotFound
		}
		c := cmpName(name, ent.name())
		if c < 0 {
			return i, frNotFound // Passed the point where name would be.
		} else if c == 0 {
			ent.decode(obj)
			return i, frOK
		}
	}
	return -1, frNotFound
}

// makeslot moves entries from slot onwards one place towards the footer.
// The last slot before the footer is lost, so the caller must check there
// is room first.
func (db dirBlock) makeslot(slot int) {
	off := dirHdrSize + slot*dirEntSize
	end := len(db.data) - dirFtrSize
	copy(db.data[off+dirEntSize:end], db.data[off:end-dirEntSize])
}

// dirName returns the directory's own name as recorded in its footer.
func (db dirBlock) dirName() string {
	return termString(db.footer()[ftrName:ftrName+maxName], 0x7f)
}

func (db dirBlock) title() []byte {
	ftr := db.footer()
	title := ftr[ftrTitle : ftrTitle+ftrTitleLen]
	for i, c := range title {
		if isTerm(c) {
			return title[:i]
		}
	}
	return title
}

func (db dirBlock) parentSector() uint32 { return get24(db.footer()[ftrParent:]) }

func (db dirBlock) String() string {
	return string(db.Appendf(nil, '\n'))
}

func (db dirBlock) Appendf(dst []byte, separator byte) []byte {
	if !db.valid() {
		dst = append(dst, "invalid directory markers"...)
		return append(dst, separator)
	}
	dst = labelAppend(dst, "Name", []byte(db.dirName()), separator)
	dst = labelAppend(dst, "Title", db.title(), separator)
	dst = labelAppendUint32("Parent", dst, db.parentSector(), separator)
	dst = labelAppendUint32("Sequence", dst, uint32(db.sequence()), separator)
	dst = labelAppendUint32("Entries", dst, uint32(db.count()), separator)
	return dst
}

// freeMap holds the two sector free space map. Sector 0 holds the start
// sector of each free extent, sector 1 the matching lengths.
type freeMap struct {
	data [mapSize]byte
}

// count returns the number of free extents. The map stores it as a byte offset.
func (m *freeMap) count() int { return int(m.data[mapEnd]) / 3 }

func (m *freeMap) setCount(n int) { m.data[mapEnd] = byte(3 * n) }

func (m *freeMap) start(i int) uint32  { return get24(m.data[mapStarts+3*i:]) }
func (m *freeMap) length(i int) uint32 { return get24(m.data[mapLengths+3*i:]) }

func (m *freeMap) setExtent(i int, start, length uint32) {
	put24(m.data[mapStarts+3*i:], start)
	put24(m.data[mapLengths+3*i:], length)
}

// insert opens a gap at i and stores the extent there.
func (m *freeMap) insert(i int, start, length uint32) {
	end := 3 * m.count()
	copy(m.data[mapStarts+3*i+3:mapStarts+end+3], m.data[mapStarts+3*i:mapStarts+end])
	copy(m.data[mapLengths+3*i+3:mapLengths+end+3], m.data[mapLengths+3*i:mapLengths+end])
	m.setExtent(i, start, length)
	m.setCount(m.count() + 1)
}

// remove drops extent i, closing the gap.
func (m *freeMap) remove(i int) {
	end := 3 * m.count()
	copy(m.data[mapStarts+3*i:mapStarts+end], m.data[mapStarts+3*i+3:mapStarts+end])
	copy(m.data[mapLengths+3*i:mapLengths+end], m.data[mapLengths+3*i+3:mapLengths+end])
	m.setExtent(m.count()-1, 0, 0)
	m.setCount(m.count() - 1)
}

// TotalSectors returns the size of the volume in sectors.
func (m *freeMap) TotalSectors() uint32 { return get24(m.data[mapTotalSectors:]) }

func (m *freeMap) SetTotalSectors(n uint32) { put24(m.data[mapTotalSectors:], n) }

// DiscID returns the identifier RISC OS uses to tell discs apart.
func (m *freeMap) DiscID() uint16 { return binary.LittleEndian.Uint16(m.data[mapDiscID:]) }

func (m *freeMap) SetDiscID(id uint16) { binary.LittleEndian.PutUint16(m.data[mapDiscID:], id) }

// BootOption returns the *OPT 4 boot action.
func (m *freeMap) BootOption() uint8 { return m.data[mapBootOption] }

func (m *freeMap) SetBootOption(opt uint8) { m.data[mapBootOption] = opt }

// valid checks both checksums and that the end pointer addresses whole entries.
func (m *freeMap) valid() bool {
	end := int(m.data[mapEnd])
	return end%3 == 0 && end <= 3*mapMaxEntries &&
		checksum(m.data[:sectorSize]) == m.data[mapCheck0] &&
		checksum(m.data[sectorSize:]) == m.data[mapCheck1]
}

// seal recomputes the checksum of both map sectors.
func (m *freeMap) seal() {
	m.data[mapCheck0] = checksum(m.data[:sectorSize])
	m.data[mapCheck1] = checksum(m.data[sectorSize:])
}

func (m *freeMap) String() string {
	return string(m.Appendf(nil, '\n'))
}

func (m *freeMap) Appendf(dst []byte, separator byte) []byte {
	if !m.valid() {
		dst = append(dst, "invalid map checksum"...)
		dst = append(dst, separator)
	}
	dst = labelAppendUint32("TotalSectors", dst, m.TotalSectors(), separator)
	dst = labelAppendUint32("DiscID", dst, uint32(m.DiscID()), separator)
	dst = labelAppendUint32("BootOption", dst, uint32(m.BootOption()), separator)
	for i := 0; i < m.count(); i++ {
		dst = labelAppendUint32("extent", dst, m.start(i), '+')
		dst = strconv.AppendUint(dst, uint64(m.length(i)), 10)
		dst = append(dst, separator)
	}
	return dst
}

// checksum is the ADFS map checksum over the first 255 bytes of a map sector:
// an 8 bit sum where each carry is added in on the following byte.
func checksum(half []byte) byte {
	_ = half[254]
	sum, c := uint(255), uint(0)
	for i := 254; i >= 0; i-- {
		sum += uint(half[i]) + c
		c = 0
		if sum >= 256 {
			sum &= 0xff
			c = 1
		}
	}
	return byte(sum)
}

func termString(b []byte, mask byte) string {
	var buf [32]byte
	out := buf[:0]
	for _, c := range b {
		c &= mask
		if isTerm(c) {
			break
		}
		out = append(out, c)
	}
	return string(out)
}

func labelAppend(dst []byte, label string, data []byte, sep byte) []byte {
	if len(data) == 0 {
		return dst
	}
	dst = append(dst, label...)
	dst = append(dst, ':')
	dst = append(dst, data...)
	dst = append(dst, sep)
	return dst
}

func labelAppendUint(label string, dst []byte, data uint64, sep byte) []byte {
	dst = append(dst, label...)
	dst = append(dst, ':')
	dst = strconv.AppendUint(dst, data, 10)
	dst = append(dst, sep)
	return dst
}

func labelAppendUint32(label string, dst []byte, data uint32, sep byte) []byte {
	return labelAppendUint(label, dst, uint64(data), sep)
}
