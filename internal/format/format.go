// Package format holds the container index parsers and assembles them
// into the detection registry. The candidate set is closed: Formats
// returns it in a fixed priority order, which is also the documented
// tie-break when two candidates score equally.
package format

import (
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/harukana/vnarc/internal/arc"
	"github.com/harukana/vnarc/internal/filter"
	"github.com/harukana/vnarc/internal/vio"
)

// Formats returns every supported container format, highest priority
// first.
func Formats() []arc.Format {
	return []arc.Format{
		burikoV2,
		burikoV1,
		xp3Format,
		pacFormat,
		grpFormat,
	}
}

// Registry builds a fresh registry over the closed format set.
func Registry() *arc.Registry {
	return arc.NewRegistry(Formats()...)
}

// Open detects the format of the container at path and opens it as an
// archive. Entry streams are wrapped by the filter chain according to
// opts.
func Open(path string, opts arc.Options) (*arc.Archive, error) {
	src, err := vio.NewFile(path)
	if err != nil {
		return nil, err
	}
	a, err := OpenSource(src, path, opts)
	if err != nil {
		src.Close()
		return nil, err
	}
	return a, nil
}

// OpenSource is Open over an already-constructed source; the archive
// takes ownership of it on success.
func OpenSource(src *vio.Source, filename string, opts arc.Options) (*arc.Archive, error) {
	header, err := arc.ReadHeader(src)
	if err != nil {
		return nil, err
	}
	f, score, ok := Registry().Detect(filename, header, src)
	if !ok {
		return nil, fmt.Errorf("%q: %w", filename, arc.ErrFormatMismatch)
	}
	slog.Debug("format detected", "container", filename, "format", f.Name, "score", score)

	entries, err := f.Parse(src, filename, opts)
	if err != nil {
		return nil, fmt.Errorf("parsing %s index of %q: %w", f.Name, filename, err)
	}
	wrap := func(s *arc.Stream, d *arc.Diagnostics) (io.ReadSeekCloser, error) {
		return filter.Wrap(s, opts, d)
	}
	return arc.New(src, f, entries, wrap)
}

// Detect classifies the container at path without opening it as an
// archive.
func Detect(path string) (arc.Format, int, error) {
	src, err := vio.NewFile(path)
	if err != nil {
		return arc.Format{}, 0, err
	}
	defer src.Close()
	header, err := arc.ReadHeader(src)
	if err != nil {
		return arc.Format{}, 0, err
	}
	f, score, ok := Registry().Detect(path, header, src)
	if !ok {
		return arc.Format{}, 0, fmt.Errorf("%q: %w", path, arc.ErrFormatMismatch)
	}
	return f, score, nil
}

// checkOverlap rejects indexes whose entries' physical ranges overlap
// one another. Segment bounds against the container length are checked
// separately at archive construction.
func checkOverlap(entries []arc.Entry) error {
	type span struct {
		start, end int64
		name       string
	}
	var spans []span
	for i := range entries {
		for _, seg := range entries[i].Segments {
			if seg.PackedSize == 0 {
				continue
			}
			spans = append(spans, span{seg.Offset, seg.Offset + seg.PackedSize, entries[i].Name})
		}
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	for i := 1; i < len(spans); i++ {
		if spans[i].start < spans[i-1].end {
			return fmt.Errorf("%w: entries %q and %q overlap", arc.ErrStructure, spans[i-1].name, spans[i].name)
		}
	}
	return nil
}
