package format

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/harukana/vnarc/internal/arc"
	"github.com/harukana/vnarc/internal/vio"
)

// Softpal pack files. The Amuse generation carries a "PAC " magic; the
// base generation has no magic at all, so sniffing is a trial parse:
// for each plausible name width the first entry's offset must land
// exactly at the end of the index. The confidence score combines
// entry-count plausibility with the number of structurally consistent
// entries seen in a bounded sample.
const (
	pacSoftpalIndexOffset int64 = 0x3FE
	pacAmuseIndexOffset   int64 = 0x804
	pacAmuseNameWidth           = 0x20
	pacMaxEntries               = 100_000
	pacSniffSample              = 64
)

var pacMagic = []byte("PAC ")

var pacNameWidths = []int64{0x20, 0x10}

var pacFormat = arc.Format{
	Name:       "pac",
	Extensions: []string{".pac"},
	Sniff:      sniffPac,
	Parse:      parsePac,
}

func sniffPac(_ string, header []byte, src *vio.Source) int {
	if bytes.HasPrefix(header, pacMagic) {
		if len(header) < 12 {
			return 0
		}
		count := int64(int32(binary.LittleEndian.Uint32(header[8:])))
		if pacLayoutValid(src, pacAmuseIndexOffset, pacAmuseNameWidth, count) {
			return 200
		}
		return 0
	}

	if len(header) < 4 {
		return 0
	}
	count := int64(int32(binary.LittleEndian.Uint32(header[:4])))
	if count <= 0 || count > pacMaxEntries {
		return 0
	}
	for _, width := range pacNameWidths {
		if !pacLayoutValid(src, pacSoftpalIndexOffset, width, count) {
			continue
		}
		return 50 + pacConsistentEntries(src, pacSoftpalIndexOffset, width, count)
	}
	return 0
}

// pacLayoutValid checks the structural invariant that identifies the
// index layout: the first entry's data offset must equal the byte
// immediately after the index.
func pacLayoutValid(src *vio.Source, indexOffset, width, count int64) bool {
	if count <= 0 || count > pacMaxEntries {
		return false
	}
	first, err := readU32(src, indexOffset+width+4)
	if err != nil {
		return false
	}
	expected := indexOffset + (width+8)*count
	return int64(first) == expected && expected <= src.Size()
}

// pacConsistentEntries samples the index and counts records whose
// declared ranges stay inside the container with non-decreasing
// offsets.
func pacConsistentEntries(src *vio.Source, indexOffset, width, count int64) int {
	sample := count
	if sample > pacSniffSample {
		sample = pacSniffSample
	}
	consistent := 0
	prevOffset := int64(0)
	for i := int64(0); i < sample; i++ {
		rec := indexOffset + (width+8)*i
		size, err := readU32(src, rec+width)
		if err != nil {
			break
		}
		offset, err := readU32(src, rec+width+4)
		if err != nil {
			break
		}
		end := int64(offset) + int64(size)
		if int64(offset) < prevOffset || end > src.Size() {
			break
		}
		prevOffset = int64(offset)
		consistent++
	}
	return consistent
}

func parsePac(src *vio.Source, _ string, opts arc.Options) ([]arc.Entry, error) {
	var magic [4]byte
	if err := src.ReadFull(magic[:], 0); err != nil {
		return nil, fmt.Errorf("%w: %v", arc.ErrStructure, err)
	}

	indexOffset := pacSoftpalIndexOffset
	countOffset := int64(0)
	widths := pacNameWidths
	if bytes.Equal(magic[:], pacMagic) {
		indexOffset = pacAmuseIndexOffset
		countOffset = 8
		widths = []int64{pacAmuseNameWidth}
	}

	rawCount, err := readU32(src, countOffset)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", arc.ErrStructure, err)
	}
	count := int64(int32(rawCount))
	if count < 0 || count > pacMaxEntries {
		return nil, fmt.Errorf("%w: implausible entry count %d", arc.ErrStructure, count)
	}
	if count == 0 {
		return nil, nil
	}

	width := int64(-1)
	for _, w := range widths {
		if pacLayoutValid(src, indexOffset, w, count) {
			width = w
			break
		}
	}
	if width < 0 {
		return nil, fmt.Errorf("%w: no known index layout matches", arc.ErrStructure)
	}

	recLen := width + 8
	index := make([]byte, recLen*count)
	if err := src.ReadFull(index, indexOffset); err != nil {
		return nil, fmt.Errorf("%w: %v", arc.ErrStructure, err)
	}

	entries := make([]arc.Entry, 0, count)
	for i := int64(0); i < count; i++ {
		rec := index[i*recLen:]
		name := decodeName(trimFixed(rec[:width]), opts.NameEncoding)
		size := int64(binary.LittleEndian.Uint32(rec[width:]))
		offset := int64(binary.LittleEndian.Uint32(rec[width+4:]))
		if offset+size > src.Size() {
			return nil, fmt.Errorf("%w: entry %q spans past container end", arc.ErrStructure, name)
		}
		entry, err := arc.NewEntry(name, []arc.Segment{{
			Offset:     offset,
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

func readU32(src *vio.Source, off int64) (uint32, error) {
	var raw [4]byte
	if err := src.ReadFull(raw[:], off); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(raw[:]), nil
}
