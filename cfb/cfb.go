// Package cfb reads Compound File Binary (CFB / OLE2) containers, the
// structured-storage format wrapping legacy .xls workbooks, VBA projects,
// and encrypted OOXML packages (MS-CFB).
package cfb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/TsubasaBE/go-xlsbin/record"
)

// Sector ID sentinels (MS-CFB §2.1).
const (
	maxRegSect = 0xFFFFFFFA // largest regular sector ID
	difSect    = 0xFFFFFFFC // sector holds DIFAT entries
	fatSect    = 0xFFFFFFFD // sector holds FAT entries
	endOfChain = 0xFFFFFFFE // chain terminator
	freeSect   = 0xFFFFFFFF // unallocated sector
)

// Directory entry object types (MS-CFB §2.6.1).
const (
	objUnknown = 0x00
	objStorage = 0x01
	objStream  = 0x02
	objRoot    = 0x05
)

const (
	headerSize   = 512
	dirEntrySize = 128
	miniSectSize = 64
)

// signature is the 8-byte magic at the start of every CFB file.
var signature = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

// ErrBadSignature is returned by Open when the input does not start with the
// CFB magic bytes.
var ErrBadSignature = errors.New("cfb: bad signature")

// dirEntry is one parsed 128-byte directory entry.
type dirEntry struct {
	name        string
	objType     uint8
	startSector uint32
	size        uint64
}

// File is an open CFB container.  Directory metadata and the allocation
// tables are parsed up front; stream payload sectors are fetched lazily and
// cached for the lifetime of the File.
type File struct {
	r          io.ReadSeeker
	fileSize   int64
	sectorSize int
	miniCutoff uint32
	fat        []uint32
	miniFat    []uint32
	dirs       []dirEntry

	sectors    map[uint32][]byte
	miniStream []byte // root storage payload, loaded on first mini-stream read
}

// Open parses the container header, the FAT and mini-FAT allocation tables,
// and the directory tree of the CFB file in r.  r must be positioned
// anywhere; Open seeks as needed.
func Open(r io.ReadSeeker) (*File, error) {
	fileSize, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("cfb: seek end: %w", err)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("cfb: seek start: %w", err)
	}

	hdr := make([]byte, headerSize)
	if _, err := io.ReadFull(r, hdr); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("cfb: file shorter than %d byte header: %w", headerSize, ErrBadSignature)
		}
		return nil, fmt.Errorf("cfb: read header: %w", err)
	}
	for i, b := range signature {
		if hdr[i] != b {
			return nil, ErrBadSignature
		}
	}

	sectorShift := binary.LittleEndian.Uint16(hdr[30:])
	if sectorShift != 9 && sectorShift != 12 {
		return nil, fmt.Errorf("cfb: unsupported sector shift %d (want 9 or 12)", sectorShift)
	}

	f := &File{
		r:          r,
		fileSize:   fileSize,
		sectorSize: 1 << sectorShift,
		miniCutoff: binary.LittleEndian.Uint32(hdr[56:]),
		sectors:    make(map[uint32][]byte),
	}

	numFatSectors := binary.LittleEndian.Uint32(hdr[44:])
	firstDirSector := binary.LittleEndian.Uint32(hdr[48:])
	firstMiniFat := binary.LittleEndian.Uint32(hdr[60:])
	numMiniFat := binary.LittleEndian.Uint32(hdr[64:])
	firstDifat := binary.LittleEndian.Uint32(hdr[68:])
	numDifat := binary.LittleEndian.Uint32(hdr[72:])

	if err := f.loadFat(hdr, numFatSectors, firstDifat, numDifat); err != nil {
		return nil, err
	}
	if err := f.loadMiniFat(firstMiniFat, numMiniFat); err != nil {
		return nil, err
	}
	if err := f.loadDirectory(firstDirSector); err != nil {
		return nil, err
	}
	return f, nil
}

// HasStream reports whether the container holds a stream with the given
// name.  Names compare case-insensitively, per MS-CFB.
func (f *File) HasStream(name string) bool {
	_, ok := f.findEntry(name)
	return ok
}

// Streams returns the names of all stream entries in directory order.
func (f *File) Streams() []string {
	var names []string
	for _, d := range f.dirs {
		if d.objType == objStream {
			names = append(names, d.name)
		}
	}
	return names
}

// OpenStream returns the full contents of the named stream.  Streams smaller
// than the header's mini-stream cutoff live in the root storage mini stream;
// larger streams occupy regular sectors.
func (f *File) OpenStream(name string) ([]byte, error) {
	d, ok := f.findEntry(name)
	if !ok {
		return nil, fmt.Errorf("cfb: stream %q not found", name)
	}
	if d.size > uint64(f.fileSize) {
		return nil, fmt.Errorf("cfb: stream %q size %d exceeds file size %d", name, d.size, f.fileSize)
	}
	if uint64(d.size) < uint64(f.miniCutoff) {
		return f.readMiniStream(d)
	}
	return f.readChain(d.startSector, int(d.size))
}

func (f *File) findEntry(name string) (dirEntry, bool) {
	for _, d := range f.dirs {
		if d.objType == objStream && strings.EqualFold(d.name, name) {
			return d, true
		}
	}
	return dirEntry{}, false
}

// ── allocation tables ─────────────────────────────────────────────────────────

// loadFat assembles the FAT from the 109 DIFAT entries embedded in the
// header plus any overflow DIFAT sectors chained from the header.
func (f *File) loadFat(hdr []byte, numFatSectors, firstDifat, numDifat uint32) error {
	entriesPerSector := f.sectorSize / 4

	// The sector counts come from untrusted header fields; the file cannot
	// hold more sectors than its size allows, so clamp before sizing
	// anything from them.
	if n := f.numSectors(); numDifat > n {
		numDifat = n
	}
	if n := f.numSectors(); numFatSectors > n {
		numFatSectors = n
	}

	difat := make([]uint32, 0, 109+int(numDifat)*entriesPerSector)
	for i := 0; i < 109; i++ {
		difat = append(difat, binary.LittleEndian.Uint32(hdr[76+4*i:]))
	}

	// Overflow DIFAT sectors: each holds sectorSize/4 - 1 FAT sector IDs
	// followed by the ID of the next DIFAT sector.
	sect := firstDifat
	seen := make(map[uint32]bool)
	for k := uint32(0); k < numDifat; k++ {
		if sect == endOfChain || sect == freeSect {
			break
		}
		if seen[sect] {
			return fmt.Errorf("cfb: DIFAT chain cycle at sector %d", sect)
		}
		seen[sect] = true
		data, err := f.sector(sect)
		if err != nil {
			return fmt.Errorf("cfb: DIFAT: %w", err)
		}
		for i := 0; i < entriesPerSector-1; i++ {
			difat = append(difat, binary.LittleEndian.Uint32(data[4*i:]))
		}
		sect = binary.LittleEndian.Uint32(data[f.sectorSize-4:])
	}

	fat := make([]uint32, 0, int(numFatSectors)*entriesPerSector)
	for _, id := range difat {
		if id > maxRegSect {
			continue
		}
		data, err := f.sector(id)
		if err != nil {
			return fmt.Errorf("cfb: FAT: %w", err)
		}
		for i := 0; i < entriesPerSector; i++ {
			fat = append(fat, binary.LittleEndian.Uint32(data[4*i:]))
		}
	}
	if len(fat) == 0 {
		return fmt.Errorf("cfb: empty FAT")
	}
	f.fat = fat
	return nil
}

// loadMiniFat reads the mini-FAT chain named in the header.
func (f *File) loadMiniFat(firstMiniFat, numMiniFat uint32) error {
	if numMiniFat == 0 || firstMiniFat > maxRegSect {
		return nil
	}
	if n := f.numSectors(); numMiniFat > n {
		numMiniFat = n
	}
	data, err := f.readChain(firstMiniFat, int(numMiniFat)*f.sectorSize)
	if err != nil {
		return fmt.Errorf("cfb: mini-FAT: %w", err)
	}
	f.miniFat = make([]uint32, len(data)/4)
	for i := range f.miniFat {
		f.miniFat[i] = binary.LittleEndian.Uint32(data[4*i:])
	}
	return nil
}

// loadDirectory walks the directory chain and decodes the 128-byte entries.
func (f *File) loadDirectory(firstDirSector uint32) error {
	// Directory size is not stored in the v3 header; read the whole chain.
	data, err := f.readChainAll(firstDirSector)
	if err != nil {
		return fmt.Errorf("cfb: directory: %w", err)
	}
	for off := 0; off+dirEntrySize <= len(data); off += dirEntrySize {
		e := data[off : off+dirEntrySize]
		nameLen := int(binary.LittleEndian.Uint16(e[64:]))
		if nameLen < 2 || nameLen > 64 {
			continue // free or corrupt entry
		}
		f.dirs = append(f.dirs, dirEntry{
			name:        record.DecodeUTF16LE(e[:nameLen-2]), // drop the UTF-16 NUL
			objType:     e[66],
			startSector: binary.LittleEndian.Uint32(e[116:]),
			size:        binary.LittleEndian.Uint64(e[120:]),
		})
	}
	if len(f.dirs) == 0 || f.dirs[0].objType != objRoot {
		return fmt.Errorf("cfb: missing root directory entry")
	}
	return nil
}

// ── sector access ─────────────────────────────────────────────────────────────

// sector returns the raw bytes of the given regular sector, fetching from
// the underlying reader on first access and caching thereafter.
// numSectors is the number of regular sectors the file can actually hold.
// Sector counts read from the header are clamped against it.
func (f *File) numSectors() uint32 {
	n := (f.fileSize - headerSize) / int64(f.sectorSize)
	if n < 0 {
		return 0
	}
	return uint32(n)
}

func (f *File) sector(id uint32) ([]byte, error) {
	if id > maxRegSect {
		return nil, fmt.Errorf("cfb: sector ID 0x%08X is not a regular sector", id)
	}
	if data, ok := f.sectors[id]; ok {
		return data, nil
	}
	off := int64(headerSize) + int64(id)*int64(f.sectorSize)
	if off+int64(f.sectorSize) > f.fileSize {
		return nil, fmt.Errorf("cfb: sector %d is past end of file", id)
	}
	if _, err := f.r.Seek(off, io.SeekStart); err != nil {
		return nil, fmt.Errorf("cfb: seek sector %d: %w", id, err)
	}
	data := make([]byte, f.sectorSize)
	if _, err := io.ReadFull(f.r, data); err != nil {
		return nil, fmt.Errorf("cfb: read sector %d: %w", id, err)
	}
	f.sectors[id] = data
	return data, nil
}

// readChain follows a FAT chain from start and returns exactly size bytes.
func (f *File) readChain(start uint32, size int) ([]byte, error) {
	if size < 0 {
		return nil, fmt.Errorf("cfb: negative chain size %d", size)
	}
	// A valid chain cannot deliver more bytes than the file contains, so a
	// corrupt size must not drive the pre-allocation.
	sizeHint := size
	if int64(sizeHint) > f.fileSize {
		sizeHint = int(f.fileSize)
	}
	out := make([]byte, 0, sizeHint)
	sect := start
	// A well-formed chain cannot be longer than the FAT itself; anything
	// longer is a cycle.
	for k := 0; k < len(f.fat)+1; k++ {
		if sect == endOfChain {
			break
		}
		if sect > maxRegSect || int(sect) >= len(f.fat) {
			return nil, fmt.Errorf("cfb: chain references invalid sector 0x%08X", sect)
		}
		data, err := f.sector(sect)
		if err != nil {
			return nil, err
		}
		out = append(out, data...)
		if len(out) >= size {
			return out[:size], nil
		}
		sect = f.fat[sect]
	}
	if len(out) < size {
		return nil, fmt.Errorf("cfb: chain ended after %d of %d bytes", len(out), size)
	}
	return out[:size], nil
}

// readChainAll follows a FAT chain to its terminator, without a size bound.
func (f *File) readChainAll(start uint32) ([]byte, error) {
	var out []byte
	sect := start
	for k := 0; k < len(f.fat)+1; k++ {
		if sect == endOfChain || sect == freeSect {
			return out, nil
		}
		if sect > maxRegSect || int(sect) >= len(f.fat) {
			return nil, fmt.Errorf("cfb: chain references invalid sector 0x%08X", sect)
		}
		data, err := f.sector(sect)
		if err != nil {
			return nil, err
		}
		out = append(out, data...)
		sect = f.fat[sect]
	}
	return nil, fmt.Errorf("cfb: FAT chain cycle starting at sector %d", start)
}

// readMiniStream reads a stream stored in 64-byte mini sectors inside the
// root storage payload, following the mini-FAT chain.
func (f *File) readMiniStream(d dirEntry) ([]byte, error) {
	if f.miniStream == nil {
		root := f.dirs[0]
		ms, err := f.readChain(root.startSector, int(root.size))
		if err != nil {
			return nil, fmt.Errorf("cfb: mini stream: %w", err)
		}
		f.miniStream = ms
	}

	size := int(d.size)
	out := make([]byte, 0, size)
	sect := d.startSector
	for k := 0; k < len(f.miniFat)+1; k++ {
		if sect == endOfChain {
			break
		}
		if sect > maxRegSect || int(sect) >= len(f.miniFat) {
			return nil, fmt.Errorf("cfb: mini chain references invalid sector 0x%08X", sect)
		}
		off := int(sect) * miniSectSize
		if off+miniSectSize > len(f.miniStream) {
			return nil, fmt.Errorf("cfb: mini sector %d is past end of mini stream", sect)
		}
		out = append(out, f.miniStream[off:off+miniSectSize]...)
		if len(out) >= size {
			return out[:size], nil
		}
		sect = f.miniFat[sect]
	}
	if len(out) < size {
		return nil, fmt.Errorf("cfb: mini chain ended after %d of %d bytes", len(out), size)
	}
	return out[:size], nil
}
