package format

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/harukana/vnarc/internal/arc"
	"github.com/harukana/vnarc/internal/vio"
)

// BGI/Ethornell pack files. Both generations share the same shape:
// a 12-byte magic, a u32 entry count, a fixed-width entry table, and
// raw entry data addressed relative to the end of the table.
var (
	burikoV1Magic = []byte("PackFile    ")
	burikoV2Magic = []byte("BURIKO ARC20")
)

const burikoMaxEntries = 100_000

var burikoV1 = arc.Format{
	Name:       "buriko-v1",
	Extensions: []string{".arc"},
	Sniff: func(_ string, header []byte, _ *vio.Source) int {
		if bytes.HasPrefix(header, burikoV1Magic) {
			return 255
		}
		return 0
	},
	Parse: func(src *vio.Source, _ string, opts arc.Options) ([]arc.Entry, error) {
		return parseBuriko(src, opts, burikoV1Magic, 0x10, 0x20)
	},
}

var burikoV2 = arc.Format{
	Name:       "buriko-v2",
	Extensions: []string{".arc"},
	Sniff: func(_ string, header []byte, _ *vio.Source) int {
		if bytes.HasPrefix(header, burikoV2Magic) {
			return 255
		}
		return 0
	},
	Parse: func(src *vio.Source, _ string, opts arc.Options) ([]arc.Entry, error) {
		return parseBuriko(src, opts, burikoV2Magic, 0x60, 0x80)
	},
}

func parseBuriko(src *vio.Source, opts arc.Options, magic []byte, nameLen, entrySize int) ([]arc.Entry, error) {
	header := make([]byte, 16)
	if err := src.ReadFull(header, 0); err != nil {
		return nil, fmt.Errorf("%w: %v", arc.ErrStructure, err)
	}
	if !bytes.HasPrefix(header, magic) {
		return nil, arc.ErrFormatMismatch
	}
	count := int(binary.LittleEndian.Uint32(header[12:]))
	if count < 0 || count > burikoMaxEntries {
		return nil, fmt.Errorf("%w: implausible entry count %d", arc.ErrStructure, count)
	}

	indexSize := int64(count) * int64(entrySize)
	base := int64(len(header)) + indexSize
	if base > src.Size() {
		return nil, fmt.Errorf("%w: index (%d entries) exceeds container length %d", arc.ErrStructure, count, src.Size())
	}

	index := make([]byte, indexSize)
	if err := src.ReadFull(index, int64(len(header))); err != nil {
		return nil, fmt.Errorf("%w: %v", arc.ErrStructure, err)
	}

	entries := make([]arc.Entry, 0, count)
	for i := 0; i < count; i++ {
		rec := index[i*entrySize:]
		name := decodeName(trimFixed(rec[:nameLen]), opts.NameEncoding)
		offset := int64(binary.LittleEndian.Uint32(rec[nameLen:]))
		size := int64(binary.LittleEndian.Uint32(rec[nameLen+4:]))
		if base+offset+size > src.Size() {
			return nil, fmt.Errorf("%w: entry %q spans past container end", arc.ErrStructure, name)
		}
		entry, err := arc.NewEntry(name, []arc.Segment{{
			Offset:     base + offset,
			PackedSize: size,
			Size:       size,
		}})
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := checkOverlap(entries); err != nil {
		return nil, err
	}
	return entries, nil
}
