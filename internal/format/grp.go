package format

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/harukana/vnarc/internal/arc"
	"github.com/harukana/vnarc/internal/vio"
)

// ExHIBIT resource volumes (res###.grp). The data volumes carry no
// magic of their own; their table of contents lives in a lower-numbered
// sibling whose header reads "AiFS". Resolving it means decrementing
// the numeric suffix until that signature appears — a one-shot
// filesystem lookup performed at open time. Detection itself relies on
// the filename pattern only, so its score stays below any magic-based
// match.
var grpTocMagic = []byte("AiFS")

// grpIndexSkipMarker pads some TOC index records by one extra word.
const grpIndexSkipMarker = 0x0100_0000

var grpFormat = arc.Format{
	Name:       "grp",
	Extensions: []string{".grp"},
	Sniff: func(filename string, header []byte, _ *vio.Source) int {
		info, err := parseGrpName(filepath.Base(filename))
		if err != nil || info.num == 0 {
			return 0
		}
		// A file that is itself a TOC is not a data volume.
		if bytes.HasPrefix(header, grpTocMagic) {
			return 0
		}
		return 40
	},
	Parse: parseGrp,
}

type grpNameInfo struct {
	prefix string // up to the digit run
	digits int    // width of the digit run, for zero padding
	suffix string
	num    int
}

func parseGrpName(name string) (grpNameInfo, error) {
	lower := strings.ToLower(name)
	if !strings.HasPrefix(lower, "res") || !strings.HasSuffix(lower, ".grp") || len(name) < 8 {
		return grpNameInfo{}, fmt.Errorf("%q does not match the res###.grp pattern", name)
	}
	digits := name[3 : len(name)-4]
	if digits == "" {
		return grpNameInfo{}, fmt.Errorf("%q has no volume number", name)
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return grpNameInfo{}, fmt.Errorf("%q has a non-numeric volume suffix", name)
		}
	}
	num, err := strconv.Atoi(digits)
	if err != nil {
		return grpNameInfo{}, fmt.Errorf("parsing volume number of %q: %w", name, err)
	}
	return grpNameInfo{prefix: name[:3], digits: len(digits), suffix: name[len(name)-4:], num: num}, nil
}

// locateGrpTOC walks the numeric suffix downwards until a sibling file
// opens with the TOC signature. It returns the TOC path and the
// 1-based distance from the volume to it, which is the volume's index
// inside the TOC.
func locateGrpTOC(path string) (string, int, error) {
	dir := filepath.Dir(path)
	info, err := parseGrpName(filepath.Base(path))
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", arc.ErrFormatMismatch, err)
	}
	if info.num == 0 {
		return "", 0, fmt.Errorf("%w: volume 0 has no preceding TOC", arc.ErrFormatMismatch)
	}

	volumeIndex := 1
	for num := info.num - 1; num >= 0; num-- {
		candidate := filepath.Join(dir, fmt.Sprintf("%s%0*d%s", info.prefix, info.digits, num, info.suffix))
		f, err := os.Open(candidate)
		if err != nil {
			return "", 0, fmt.Errorf("%w: TOC candidate %q: %v", arc.ErrStructure, candidate, err)
		}
		var magic [4]byte
		_, rerr := f.Read(magic[:])
		f.Close()
		if rerr == nil && bytes.Equal(magic[:], grpTocMagic) {
			return candidate, volumeIndex, nil
		}
		volumeIndex++
	}
	return "", 0, fmt.Errorf("%w: no TOC volume found below %q", arc.ErrStructure, filepath.Base(path))
}

func parseGrp(src *vio.Source, filename string, _ arc.Options) ([]arc.Entry, error) {
	tocPath, volumeIndex, err := locateGrpTOC(filename)
	if err != nil {
		return nil, err
	}
	toc, err := os.ReadFile(tocPath)
	if err != nil {
		return nil, fmt.Errorf("%w: reading TOC %q: %v", arc.ErrStructure, tocPath, err)
	}
	return parseGrpTOC(toc, volumeIndex, src.Size())
}

// parseGrpTOC walks the TOC's per-volume blocks until it finds the one
// referencing volumeIndex, then reads its entry table.
func parseGrpTOC(toc []byte, volumeIndex int, archiveSize int64) ([]arc.Entry, error) {
	if len(toc) < 0x10 || !bytes.HasPrefix(toc, grpTocMagic) {
		return nil, fmt.Errorf("%w: TOC too small or missing signature", arc.ErrStructure)
	}
	resCount := int(int32(binary.LittleEndian.Uint32(toc[0xC:])))
	if resCount <= 0 {
		return nil, fmt.Errorf("%w: TOC resource count %d", arc.ErrStructure, resCount)
	}

	blockOffset := -1
	pos := 0x10
	for i := 0; i < resCount; i++ {
		if pos+0x10 > len(toc) {
			break
		}
		num := int(int32(binary.LittleEndian.Uint32(toc[pos:])))
		if num == grpIndexSkipMarker {
			pos += 4
			if pos+0x10 > len(toc) {
				break
			}
			num = int(int32(binary.LittleEndian.Uint32(toc[pos:])))
		}
		entryCount := int(binary.LittleEndian.Uint32(toc[pos+0xC:]))
		if num == volumeIndex {
			blockOffset = pos
			break
		}
		pos += 0x10 + entryCount*8
	}
	if blockOffset < 0 {
		return nil, fmt.Errorf("%w: volume %d not referenced by TOC", arc.ErrStructure, volumeIndex)
	}

	startIndex := int(int32(binary.LittleEndian.Uint32(toc[blockOffset+4:])))
	entryCount := int(int32(binary.LittleEndian.Uint32(toc[blockOffset+0xC:])))
	if startIndex < 0 || entryCount < 0 {
		return nil, fmt.Errorf("%w: negative TOC block geometry", arc.ErrStructure)
	}
	tableOffset := blockOffset + 0x10
	if tableOffset+entryCount*8 > len(toc) {
		return nil, fmt.Errorf("%w: entry table exceeds TOC size", arc.ErrStructure)
	}

	entries := make([]arc.Entry, 0, entryCount)
	for i := 0; i < entryCount; i++ {
		rec := toc[tableOffset+i*8:]
		offset := int64(binary.LittleEndian.Uint32(rec))
		size := int64(binary.LittleEndian.Uint32(rec[4:]))
		if size == 0 {
			continue
		}
		if offset+size > archiveSize {
			return nil, fmt.Errorf("%w: TOC entry %d spans past volume end", arc.ErrStructure, i)
		}
		entry, err := arc.NewEntry(fmt.Sprintf("%05d.ogg", startIndex+i), []arc.Segment{{
			Offset:     offset,
			PackedSize: size,
			Size:       size,
		}})
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: volume contains no entries", arc.ErrStructure)
	}
	if err := checkOverlap(entries); err != nil {
		return nil, err
	}
	return entries, nil
}
