package adfs

import (
	"context"
	"errors"
	"log/slog"
	"math/bits"
	"strconv"
	"strings"
	"sync"
)

// On-disk layout of an old style ("Hugo") ADFS volume.
const (
	sectorSize = 256
	maxSector  = 1<<24 - 1 // Sector numbers are 3 bytes wide.

	rootSector = 2
	rootSize   = 1280
	maxName    = 10

	dirHdrSize = 0x05
	dirEntSize = 0x1A
	dirFtrSize = 0x35
	// Largest directory block accepted from a directory entry.
	maxDirSize = 1 << 16

	mapSize       = 512
	mapMaxEntries = 82
)

// BlockDevice is the sector store backing a volume. ADFS sectors are 256 bytes
// long and the driver only ever passes buffers holding a whole number of sectors.
type BlockDevice interface {
	ReadBlocks(dst []byte, startBlock int64) (int, error)
	WriteBlocks(data []byte, startBlock int64) (int, error)
	EraseBlocks(startBlock, numBlocks int64) error
}

// FS is a mounted ADFS volume. FS caches the free space map across operations,
// so it is not safe for concurrent use and no two FS should be mounted on the
// same image at once. FS must not be copied after first use.
type FS struct {
	_      noCopy
	device BlockDevice
	blk    blkIdxer
	perm   Mode
	// fsmap is nil until first needed and after any failed transaction,
	// so the next operation starts over from what is on disk.
	fsmap *freeMap
	log   *slog.Logger
	bufs  sync.Pool
}

// fileResult is the driver's status code. Every non-OK value is an error kind
// callers can compare against with errors.Is.
type fileResult int

const (
	frOK               fileResult = iota // succeeded
	frNotFound                           // no such object
	frNameTooLong                        // path segment longer than 10 bytes
	frNotADir                            // path walks through a file
	frReadErr                            // block device read failed
	frWriteErr                           // block device write failed
	frBrokenDir                          // directory magic mismatch
	frDirFull                            // no free entry before the footer
	frMapFull                            // free space map already holds 82 extents
	frBadMap                             // free space map checksum mismatch
	frNoSpace                            // no free extent large enough
	frIntErr                             // on-disk state contradicts itself
	frNotImplemented                     // operation not supported
	frBadName                            // name contains reserved characters
	frLocked                             // target is locked
	frIsDir                              // target is a directory
)

var frMessages = [...]string{
	frOK:             "no error",
	frNotFound:       "not found",
	frNameTooLong:    "name too long",
	frNotADir:        "not a directory",
	frReadErr:        "read error",
	frWriteErr:       "write error",
	frBrokenDir:      "broken directory",
	frDirFull:        "directory full",
	frMapFull:        "free space map full",
	frBadMap:         "bad free space map",
	frNoSpace:        "not enough space",
	frIntErr:         "internal inconsistency",
	frNotImplemented: "not implemented",
	frBadName:        "bad name",
	frLocked:         "locked",
	frIsDir:          "is a directory",
}

func (fr fileResult) Error() string {
	if fr >= 0 && int(fr) < len(frMessages) {
		return "adfs: " + frMessages[fr]
	}
	return "adfs.fr:" + strconv.Itoa(int(fr))
}

// Error kinds returned by FS methods.
var (
	ErrNotFound        error = frNotFound
	ErrNameTooLong     error = frNameTooLong
	ErrNotADirectory   error = frNotADir
	ErrRead            error = frReadErr
	ErrWrite           error = frWriteErr
	ErrBrokenDirectory error = frBrokenDir
	ErrDirectoryFull   error = frDirFull
	ErrMapFull         error = frMapFull
	ErrBadFreeMap      error = frBadMap
	ErrNoSpace         error = frNoSpace
	ErrInternal        error = frIntErr
	ErrNotImplemented  error = frNotImplemented
	ErrBadName         error = frBadName
	ErrLocked          error = frLocked
	ErrIsDirectory     error = frIsDir
)

// noCopy may be embedded into structs which must not be copied
// after first use. See go vet's copylocks check.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

func makeRoot(obj *Object) {
	*obj = Object{
		Name:   "$",
		Attr:   AttrDir | AttrOwnerRead,
		Length: rootSize,
		Sector: rootSector,
	}
}

// disk_read fills the whole of sb starting at sector.
func (fsys *FS) disk_read(sb *sectorbuf, sector uint32) fileResult {
	_, err := fsys.device.ReadBlocks(sb.buf, int64(sector))
	if err != nil {
		fsys.logerror("disk_read", slog.Uint64("sector", uint64(sector)), slog.String("err", err.Error()))
		return frReadErr
	}
	return frOK
}

// disk_write stores data starting at sector. A trailing partial
// sector is padded with zeros.
func (fsys *FS) disk_write(data []byte, sector uint32) fileResult {
	if len(data) == 0 {
		return frOK
	}
	buf := data
	if fsys.blk.off(int64(len(data))) != 0 {
		sb := fsys.getbuf(len(data))
		defer sb.release()
		copy(sb.buf, data)
		buf = sb.buf
	}
	_, err := fsys.device.WriteBlocks(buf, int64(sector))
	if err != nil {
		fsys.logerror("disk_write", slog.Uint64("sector", uint64(sector)), slog.Int("len", len(data)), slog.String("err", err.Error()))
		return frWriteErr
	}
	return frOK
}

// sectorbuf is a scratch buffer covering whole sectors. Only the first n bytes
// are meaningful. The buffer must not be used after release.
type sectorbuf struct {
	fsys *FS
	buf  []byte
	n    int
}

func (fsys *FS) getbuf(n int) *sectorbuf {
	size := int(fsys.blk.sectors(int64(n)) * fsys.blk.size())
	sb, _ := fsys.bufs.Get().(*sectorbuf)
	if sb == nil {
		sb = &sectorbuf{}
	}
	if cap(sb.buf) < size {
		sb.buf = make([]byte, size)
	}
	sb.fsys = fsys
	sb.buf = sb.buf[:size]
	sb.n = n
	return sb
}

func (sb *sectorbuf) bytes() []byte { return sb.buf[:sb.n] }

func (sb *sectorbuf) release() {
	fsys := sb.fsys
	if fsys == nil {
		panic("adfs: sectorbuf released twice")
	}
	clear(sb.buf)
	sb.fsys = nil
	fsys.bufs.Put(sb)
}

func (fsys *FS) logattrs(level slog.Level, msg string, attrs ...slog.Attr) {
	if fsys.log != nil {
		fsys.log.LogAttrs(context.Background(), level, msg, attrs...)
	}
}

func (fsys *FS) debug(msg string, attrs ...slog.Attr) {
	fsys.logattrs(slog.LevelDebug, msg, attrs...)
}
func (fsys *FS) info(msg string, attrs ...slog.Attr) {
	fsys.logattrs(slog.LevelInfo, msg, attrs...)
}
func (fsys *FS) warn(msg string, attrs ...slog.Attr) {
	fsys.logattrs(slog.LevelWarn, msg, attrs...)
}
func (fsys *FS) logerror(msg string, attrs ...slog.Attr) {
	fsys.logattrs(slog.LevelError, msg, attrs...)
}

// checkName validates a name for a new directory entry.
func checkName(name string) fileResult {
	switch {
	case len(name) == 0:
		return frBadName
	case len(name) > maxName:
		return frNameTooLong
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c <= ' ' || c >= 0x7f || strings.IndexByte(".:*#$&@^%\\|\"", c) >= 0 {
			return frBadName
		}
	}
	return frOK
}

// fold is the format's case folding for stored names: upper and lower case
// letters compare equal and the attribute bit is dropped.
func fold(c byte) byte { return c & 0x5f }

// foldTarget folds a name being looked up. Bit 7 is kept, so a byte above
// 0x7f sorts after every stored character and never matches.
func foldTarget(c byte) byte { return c & 0xdf }

// cmpName compares the name being looked up, a, against the stored name b
// in the order entries are sorted within a directory. A name that is a
// prefix of another sorts first.
func cmpName(a, b string) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		ca, cb := foldTarget(a[i]), fold(b[i])
		if ca != cb {
			return int(ca) - int(cb)
		}
	}
	return len(a) - len(b)
}

// blkIdxer is a helper for calculating block indexes and offsets.
type blkIdxer struct {
	blockshift int64
	blockmask  int64
}

func makeBlockIndexer(blockSize int) (blkIdxer, error) {
	if blockSize <= 0 {
		return blkIdxer{}, errors.New("blockSize must be positive and non-zero")
	}
	tz := bits.TrailingZeros(uint(blockSize))
	if blockSize>>tz != 1 {
		return blkIdxer{}, errors.New("blockSize must be a power of 2")
	}
	blk := blkIdxer{
		blockshift: int64(tz),
		blockmask:  (1 << tz) - 1,
	}
	return blk, nil
}

// size returns the size of a block in bytes.
func (blk *blkIdxer) size() int64 {
	return 1 << blk.blockshift
}

// off gets the offset of the byte at byteIdx from the start of its block.
func (blk *blkIdxer) off(byteIdx int64) int64 {
	return byteIdx & blk.blockmask
}

// sectors returns the number of blocks needed to hold n bytes.
func (blk *blkIdxer) sectors(n int64) int64 {
	return (n + blk.blockmask) >> blk.blockshift
}

type _integer interface {
	~uint8 | ~uint16 | ~uint32 | ~int | ~uint
}

func b2i[T _integer](b bool) T {
	if b {
		return 1
	}
	return 0
}

// isTerm reports whether c ends a name field. ADFS uses CR but
// any control character is accepted.
func isTerm[T _integer](c T) bool { return c < ' ' }

func get24(b []byte) uint32 {
	_ = b[2]
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
}

func put24(b []byte, v uint32) {
	_ = b[2]
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
}
