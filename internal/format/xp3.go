package format

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"unicode/utf16"

	"github.com/klauspost/compress/zlib"

	"github.com/harukana/vnarc/internal/arc"
	"github.com/harukana/vnarc/internal/vio"
)

// Kirikiri XP3 archive. The index is a chunked table (optionally
// zlib-compressed as a whole) of File records, each carrying a
// UTF-16LE name and a segment table. Entries here routinely span
// several independently compressed segments, which is what the
// segmented stream engine exists for.
var xp3Magic = []byte{0x58, 0x50, 0x33, 0x0D, 0x0A, 0x20, 0x0A, 0x1A, 0x8B, 0x67, 0x01}

// xp3MaxIndexSize caps the decompressed index; anything larger is a
// corrupt or hostile count, not a real table of contents.
const xp3MaxIndexSize = 1 << 28

const xp3SegmentRecordLen = 28

var xp3Format = arc.Format{
	Name:       "xp3",
	Extensions: []string{".xp3"},
	Sniff: func(_ string, header []byte, _ *vio.Source) int {
		if bytes.HasPrefix(header, xp3Magic) {
			return 255
		}
		return 0
	},
	Parse: parseXP3,
}

func parseXP3(src *vio.Source, _ string, _ arc.Options) ([]arc.Entry, error) {
	header := make([]byte, len(xp3Magic)+8)
	if err := src.ReadFull(header, 0); err != nil {
		return nil, fmt.Errorf("%w: %v", arc.ErrStructure, err)
	}
	if !bytes.HasPrefix(header, xp3Magic) {
		return nil, arc.ErrFormatMismatch
	}
	indexOffset := int64(binary.LittleEndian.Uint64(header[len(xp3Magic):]))
	if indexOffset <= 0 || indexOffset >= src.Size() {
		return nil, fmt.Errorf("%w: index offset %d outside container of length %d", arc.ErrStructure, indexOffset, src.Size())
	}

	index, err := readXP3Index(src, indexOffset)
	if err != nil {
		return nil, err
	}

	var entries []arc.Entry
	for pos := 0; pos+12 <= len(index); {
		tag := index[pos : pos+4]
		size := int64(binary.LittleEndian.Uint64(index[pos+4 : pos+12]))
		bodyStart := pos + 12
		if size < 0 || int64(bodyStart)+size > int64(len(index)) {
			return nil, fmt.Errorf("%w: chunk %q overruns index", arc.ErrStructure, tag)
		}
		if bytes.Equal(tag, []byte("File")) {
			entry, err := parseXP3File(index[bodyStart : int64(bodyStart)+size])
			if err != nil {
				return nil, err
			}
			entries = append(entries, entry)
		}
		pos = bodyStart + int(size)
	}
	return entries, nil
}

// readXP3Index loads the table of contents, inflating it when the
// stored-compressed flag is set.
func readXP3Index(src *vio.Source, offset int64) ([]byte, error) {
	var flag [1]byte
	if err := src.ReadFull(flag[:], offset); err != nil {
		return nil, fmt.Errorf("%w: %v", arc.ErrStructure, err)
	}

	if flag[0]&1 == 0 {
		var raw [8]byte
		if err := src.ReadFull(raw[:], offset+1); err != nil {
			return nil, fmt.Errorf("%w: %v", arc.ErrStructure, err)
		}
		size := int64(binary.LittleEndian.Uint64(raw[:]))
		if size <= 0 || size > xp3MaxIndexSize || offset+9+size > src.Size() {
			return nil, fmt.Errorf("%w: index size %d out of range", arc.ErrStructure, size)
		}
		index := make([]byte, size)
		if err := src.ReadFull(index, offset+9); err != nil {
			return nil, fmt.Errorf("%w: %v", arc.ErrStructure, err)
		}
		return index, nil
	}

	var sizes [16]byte
	if err := src.ReadFull(sizes[:], offset+1); err != nil {
		return nil, fmt.Errorf("%w: %v", arc.ErrStructure, err)
	}
	packed := int64(binary.LittleEndian.Uint64(sizes[0:8]))
	size := int64(binary.LittleEndian.Uint64(sizes[8:16]))
	if packed <= 0 || offset+17+packed > src.Size() {
		return nil, fmt.Errorf("%w: packed index size %d out of range", arc.ErrStructure, packed)
	}
	if size <= 0 || size > xp3MaxIndexSize {
		return nil, fmt.Errorf("%w: index size %d out of range", arc.ErrStructure, size)
	}

	rc, err := zlib.NewReader(io.NewSectionReader(src, offset+17, packed))
	if err != nil {
		return nil, fmt.Errorf("%w: opening index decoder: %v", arc.ErrStructure, err)
	}
	defer rc.Close()
	index := make([]byte, size)
	if _, err := io.ReadFull(rc, index); err != nil {
		return nil, fmt.Errorf("%w: inflating index: %v", arc.ErrStructure, err)
	}
	return index, nil
}

// parseXP3File decodes one File chunk body into an entry descriptor.
func parseXP3File(body []byte) (arc.Entry, error) {
	var (
		name     string
		declared int64 = -1
		segments []arc.Segment
	)
	for pos := 0; pos+12 <= len(body); {
		tag := body[pos : pos+4]
		size := int64(binary.LittleEndian.Uint64(body[pos+4 : pos+12]))
		start := pos + 12
		if size < 0 || int64(start)+size > int64(len(body)) {
			return arc.Entry{}, fmt.Errorf("%w: sub-chunk %q overruns File chunk", arc.ErrStructure, tag)
		}
		sub := body[start : int64(start)+size]
		switch {
		case bytes.Equal(tag, []byte("info")):
			if len(sub) < 22 {
				return arc.Entry{}, fmt.Errorf("%w: short info chunk", arc.ErrStructure)
			}
			declared = int64(binary.LittleEndian.Uint64(sub[4:12]))
			nameLen := int(binary.LittleEndian.Uint16(sub[20:22]))
			if 22+nameLen*2 > len(sub) {
				return arc.Entry{}, fmt.Errorf("%w: name overruns info chunk", arc.ErrStructure)
			}
			units := make([]uint16, nameLen)
			for i := range units {
				units[i] = binary.LittleEndian.Uint16(sub[22+i*2:])
			}
			name = string(utf16.Decode(units))
		case bytes.Equal(tag, []byte("segm")):
			if size%xp3SegmentRecordLen != 0 {
				return arc.Entry{}, fmt.Errorf("%w: segment table size %d not a record multiple", arc.ErrStructure, size)
			}
			for i := 0; i < len(sub); i += xp3SegmentRecordLen {
				rec := sub[i:]
				segments = append(segments, arc.Segment{
					Compressed: binary.LittleEndian.Uint32(rec[0:4])&1 != 0,
					Offset:     int64(binary.LittleEndian.Uint64(rec[4:12])),
					Size:       int64(binary.LittleEndian.Uint64(rec[12:20])),
					PackedSize: int64(binary.LittleEndian.Uint64(rec[20:28])),
				})
			}
		}
		pos = start + int(size)
	}

	if name == "" || len(segments) == 0 {
		return arc.Entry{}, fmt.Errorf("%w: File chunk missing info or segment table", arc.ErrStructure)
	}
	entry, err := arc.NewEntry(name, segments)
	if err != nil {
		return arc.Entry{}, err
	}
	if declared >= 0 && entry.Size != declared {
		return arc.Entry{}, fmt.Errorf("%w: entry %q declares %d bytes but segments sum to %d",
			arc.ErrStructure, name, declared, entry.Size)
	}
	return entry, nil
}
