package adfs

import (
	"log/slog"
)

// loadMap reads and verifies the free space map unless it is already cached.
func (fsys *FS) loadMap() fileResult {
	if fsys.fsmap != nil {
		return frOK
	}
	m := new(freeMap)
	_, err := fsys.device.ReadBlocks(m.data[:], 0)
	if err != nil {
		fsys.logerror("loadMap", slog.String("err", err.Error()))
		return frReadErr
	}
	if !m.valid() {
		fsys.warn("loadMap:checksum",
			slog.Int("want0", int(m.data[mapCheck0])), slog.Int("got0", int(checksum(m.data[:sectorSize]))),
			slog.Int("want1", int(m.data[mapCheck1])), slog.Int("got1", int(checksum(m.data[sectorSize:]))),
			slog.Int("end", int(m.data[mapEnd])),
		)
		return frBadMap
	}
	fsys.fsmap = m
	return frOK
}

// persistMap seals the cached map and writes it back to sectors 0 and 1.
func (fsys *FS) persistMap() fileResult {
	if fsys.fsmap == nil {
		return frIntErr
	}
	fsys.fsmap.seal()
	return fsys.disk_write(fsys.fsmap.data[:], 0)
}

// discardMap drops the cached map so it is read again from disk next time.
func (fsys *FS) discardMap() {
	fsys.fsmap = nil
}

// freeExtent returns the sectors held by obj to the map.
func (fsys *FS) freeExtent(obj *Object) fileResult {
	n := uint32(fsys.blk.sectors(int64(obj.Length)))
	if n == 0 {
		return frOK // Empty objects hold no sectors.
	}
	fr := fsys.fsmap.free(obj.Sector, n)
	if fr != frOK {
		fsys.warn("freeExtent", slog.Uint64("sector", uint64(obj.Sector)), slog.Uint64("n", uint64(n)), slog.String("err", fr.Error()))
	}
	return fr
}

// allocWrite reserves room for obj, records the chosen sector in obj and
// writes obj.Data there. The allocation stays in the cached map even when the
// write fails, so callers must discard the map on error.
func (fsys *FS) allocWrite(obj *Object) fileResult {
	n := uint32(fsys.blk.sectors(int64(obj.Length)))
	if n == 0 {
		obj.Sector = 0
		return frOK
	} else if len(obj.Data) < int(obj.Length) {
		return frIntErr
	}
	sector, fr := fsys.fsmap.alloc(n)
	if fr != frOK {
		return fr
	}
	obj.Sector = sector
	fsys.debug("allocWrite", slog.Uint64("sector", uint64(sector)), slog.Uint64("n", uint64(n)))
	return fsys.disk_write(obj.Data[:obj.Length], sector)
}

// free adds the extent [sector, sector+n) to the map, merging it with the
// free extents directly before and after it.
func (m *freeMap) free(sector, n uint32) fileResult {
	end := sector + n
	if n == 0 || end > maxSector+1 || end < sector {
		return frIntErr
	}
	cnt := m.count()
	i := 0
	for ; i < cnt; i++ {
		start, length := m.start(i), m.length(i)
		if start+length == sector {
			// Coalesce onto the end of extent i and swallow the next
			// extent if the freed run reaches it.
			if i+1 < cnt {
				next := m.start(i + 1)
				if next < end {
					return frIntErr
				} else if next == end {
					length += m.length(i + 1)
					m.remove(i + 1)
				}
			}
			m.setExtent(i, start, length+n)
			return frOK
		}
		if start > sector {
			break
		} else if start+length > sector {
			return frIntErr // Already free.
		}
	}
	if i < cnt {
		start := m.start(i)
		if start < end {
			return frIntErr // Overlaps the following free extent.
		} else if start == end {
			m.setExtent(i, sector, n+m.length(i))
			return frOK
		}
	}
	if cnt >= mapMaxEntries {
		return frMapFull
	}
	m.insert(i, sector, n)
	return frOK
}

// alloc takes n sectors from the first extent large enough to hold them.
// Extents are scanned in map order, which is ascending start sector.
func (m *freeMap) alloc(n uint32) (uint32, fileResult) {
	cnt := m.count()
	for i := 0; i < cnt; i++ {
		length := m.length(i)
		if length < n {
			continue
		}
		start := m.start(i)
		if length == n {
			m.remove(i)
		} else {
			m.setExtent(i, start+n, length-n)
		}
		return start, frOK
	}
	return 0, frNoSpace
}
