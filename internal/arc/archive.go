package arc

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/harukana/vnarc/internal/vio"
)

// WrapFunc optionally layers a filter chain over a freshly opened
// entry stream. It receives the archive's diagnostics so transforms
// can report non-fatal anomalies.
type WrapFunc func(stream *Stream, diag *Diagnostics) (io.ReadSeekCloser, error)

// EntryInfo is the listing view of one entry.
type EntryInfo struct {
	Name string
	Size int64
}

// Archive is an opened container: a shared source, the format that
// claimed it, and the immutable entry index. Opening either fully
// succeeds or fails; there is no partially constructed Archive.
type Archive struct {
	src     *vio.Source
	format  Format
	entries []Entry
	byName  map[string]int
	diag    Diagnostics
	wrap    WrapFunc
}

// New assembles an archive from parsed entries, validating their
// physical ranges against the source length.
func New(src *vio.Source, format Format, entries []Entry, wrap WrapFunc) (*Archive, error) {
	if err := ValidateEntries(entries, src.Size()); err != nil {
		return nil, err
	}
	byName := make(map[string]int, len(entries))
	for i := range entries {
		if _, dup := byName[entries[i].Name]; !dup {
			byName[entries[i].Name] = i
		}
	}
	slog.Debug("archive opened", "format", format.Name, "container", src.Name(), "entries", len(entries))
	return &Archive{src: src, format: format, entries: entries, byName: byName, wrap: wrap}, nil
}

// FormatName returns the name of the format that claimed the container.
func (a *Archive) FormatName() string { return a.format.Name }

// Diagnostics returns the archive-scoped warning collector.
func (a *Archive) Diagnostics() *Diagnostics { return &a.diag }

// Len returns the number of entries.
func (a *Archive) Len() int { return len(a.entries) }

// Entries lists every entry's name and logical size.
func (a *Archive) Entries() []EntryInfo {
	infos := make([]EntryInfo, len(a.entries))
	for i := range a.entries {
		infos[i] = EntryInfo{Name: a.entries[i].Name, Size: a.entries[i].Size}
	}
	return infos
}

// OpenIndex opens the i-th entry as a seekable stream, wrapped by the
// filter chain when one matches. Each call returns an independent
// cursor.
func (a *Archive) OpenIndex(i int) (io.ReadSeekCloser, error) {
	if i < 0 || i >= len(a.entries) {
		return nil, fmt.Errorf("%w: entry index %d of %d", ErrOutOfBounds, i, len(a.entries))
	}
	stream := newStream(a.src, &a.entries[i])
	if a.wrap == nil {
		return stream, nil
	}
	wrapped, err := a.wrap(stream, &a.diag)
	if err != nil {
		stream.Close()
		return nil, fmt.Errorf("opening entry %q: %w", a.entries[i].Name, err)
	}
	return wrapped, nil
}

// Open opens an entry by name.
func (a *Archive) Open(name string) (io.ReadSeekCloser, error) {
	i, ok := a.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return a.OpenIndex(i)
}

// Close releases the underlying source. Streams still open on this
// archive fail their subsequent reads.
func (a *Archive) Close() error {
	return a.src.Close()
}
