package adfs

import (
	"errors"
	"fmt"
	"io"
)

var (
	_ BlockDevice = (*BytesBlocks)(nil)
	_ BlockDevice = (*ImageBlocks)(nil)
)

// BytesBlocks is an in-memory BlockDevice of 256 byte sectors.
type BytesBlocks struct {
	blk blkIdxer
	buf []byte
}

// NewBytesBlocks returns a zeroed device of numBlocks sectors.
func NewBytesBlocks(numBlocks int) *BytesBlocks {
	return BytesBlocksFrom(make([]byte, sectorSize*numBlocks))
}

// BytesBlocksFrom uses image as the device's storage without copying it.
// A trailing partial sector is not addressable.
func BytesBlocksFrom(image []byte) *BytesBlocks {
	blk, _ := makeBlockIndexer(sectorSize)
	return &BytesBlocks{
		blk: blk,
		buf: image[:len(image)-int(blk.off(int64(len(image))))],
	}
}

// Bytes returns the device's storage.
func (b *BytesBlocks) Bytes() []byte { return b.buf }

func (b *BytesBlocks) Size() int64 { return int64(len(b.buf)) }

func (b *BytesBlocks) ReadBlocks(dst []byte, startBlock int64) (int, error) {
	if b.blk.off(int64(len(dst))) != 0 {
		return 0, errors.New("startBlock not aligned to block size")
	} else if startBlock < 0 {
		return 0, errors.New("invalid startBlock")
	}
	off := startBlock * b.blk.size()
	end := off + int64(len(dst))
	if end > int64(len(b.buf)) {
		return 0, fmt.Errorf("read past end of buffer: %d > %d", end, len(b.buf))
	}
	return copy(dst, b.buf[off:end]), nil
}

func (b *BytesBlocks) WriteBlocks(data []byte, startBlock int64) (int, error) {
	if b.blk.off(int64(len(data))) != 0 {
		return 0, errors.New("startBlock not aligned to block size")
	} else if startBlock < 0 {
		return 0, errors.New("invalid startBlock")
	}
	off := startBlock * b.blk.size()
	end := off + int64(len(data))
	if end > int64(len(b.buf)) {
		return 0, fmt.Errorf("write past end of buffer: %d > %d", end, len(b.buf))
	}
	return copy(b.buf[off:end], data), nil
}

func (b *BytesBlocks) EraseBlocks(startBlock, numBlocks int64) error {
	if startBlock < 0 || numBlocks <= 0 {
		return errors.New("invalid erase parameters")
	}
	start := startBlock * b.blk.size()
	end := start + numBlocks*b.blk.size()
	if end > int64(len(b.buf)) {
		return errors.New("erase past end of buffer")
	}
	clear(b.buf[start:end])
	return nil
}

// Image is the storage behind an ImageBlocks, usually an *os.File or afero.File.
type Image interface {
	io.ReaderAt
	io.WriterAt
}

// ImageBlocks is a BlockDevice over a disc image file. Reads past the end of
// the image return zeros, since many image files omit unused trailing sectors.
type ImageBlocks struct {
	img Image
}

func NewImageBlocks(img Image) *ImageBlocks {
	return &ImageBlocks{img: img}
}

func (ib *ImageBlocks) ReadBlocks(dst []byte, startBlock int64) (int, error) {
	if len(dst)%sectorSize != 0 {
		return 0, errors.New("dst size not multiple of block size")
	} else if startBlock < 0 {
		return 0, errors.New("invalid startBlock")
	}
	n, err := ib.img.ReadAt(dst, startBlock*sectorSize)
	if errors.Is(err, io.EOF) {
		clear(dst[n:])
		return len(dst), nil
	} else if err != nil {
		return n, fmt.Errorf("image read error: %w", err)
	}
	return n, nil
}

func (ib *ImageBlocks) WriteBlocks(data []byte, startBlock int64) (int, error) {
	if len(data)%sectorSize != 0 {
		return 0, errors.New("data size not multiple of block size")
	} else if startBlock < 0 {
		return 0, errors.New("invalid startBlock")
	}
	n, err := ib.img.WriteAt(data, startBlock*sectorSize)
	if err != nil {
		return n, fmt.Errorf("image write error: %w", err)
	}
	return n, nil
}

// EraseBlocks writes zeros over the sectors.
func (ib *ImageBlocks) EraseBlocks(startBlock, numBlocks int64) error {
	if startBlock < 0 || numBlocks <= 0 {
		return errors.New("invalid erase parameters")
	}
	var zeros [16 * sectorSize]byte
	for numBlocks > 0 {
		n := min(numBlocks, int64(len(zeros)/sectorSize))
		_, err := ib.WriteBlocks(zeros[:n*sectorSize], startBlock)
		if err != nil {
			return err
		}
		startBlock += n
		numBlocks -= n
	}
	return nil
}
