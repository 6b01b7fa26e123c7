// Package arc implements the virtual archive engine: the container
// index model, format detection, and the seekable segmented stream
// that serves an entry's logical bytes regardless of how they are
// physically stored.
package arc

import (
	"fmt"
	"sort"
)

// Segment is one contiguous physical chunk backing part of an entry's
// logical byte range. PackedSize is the stored length; Size is the
// decoded length. For stored segments the two are equal.
type Segment struct {
	Offset     int64
	PackedSize int64
	Size       int64
	Compressed bool
}

// Entry is the immutable descriptor of one logical file inside a
// container. Size is always the sum of the segment logical sizes.
// Entries are created once at archive-open time and borrowed, not
// owned, by the streams reading them.
type Entry struct {
	Name     string
	Size     int64
	Segments []Segment

	// starts[i] is the logical offset of Segments[i]; used for binary
	// search in the stream engine.
	starts []int64
}

// NewEntry builds a validated descriptor from a segment list.
func NewEntry(name string, segments []Segment) (Entry, error) {
	e := Entry{Name: name, Segments: segments, starts: make([]int64, len(segments))}
	for i, seg := range segments {
		if seg.Size < 0 || seg.PackedSize < 0 || seg.Offset < 0 {
			return Entry{}, fmt.Errorf("%w: entry %q segment %d has negative geometry", ErrStructure, name, i)
		}
		e.starts[i] = e.Size
		e.Size += seg.Size
	}
	return e, nil
}

// segmentAt returns the index of the segment whose logical range
// contains pos. pos must be in [0, Size).
func (e *Entry) segmentAt(pos int64) int {
	i := sort.Search(len(e.starts), func(i int) bool { return e.starts[i] > pos })
	return i - 1
}

// start returns the logical offset of segment i.
func (e *Entry) start(i int) int64 { return e.starts[i] }

// ValidateEntries checks every entry's physical ranges against the
// container length. Any violation rejects the whole index.
func ValidateEntries(entries []Entry, containerSize int64) error {
	for i := range entries {
		e := &entries[i]
		for j, seg := range e.Segments {
			end := seg.Offset + seg.PackedSize
			if end < seg.Offset || end > containerSize {
				return fmt.Errorf("%w: entry %q segment %d spans [%d,%d) beyond container length %d",
					ErrStructure, e.Name, j, seg.Offset, end, containerSize)
			}
		}
	}
	return nil
}
