package arc

import "errors"

var (
	// ErrFormatMismatch is returned by sniffers and parsers when the
	// input is not an instance of their format. The registry treats it
	// as "try the next candidate".
	ErrFormatMismatch = errors.New("format mismatch")

	// ErrStructure marks a container whose index violates its own
	// invariants (offsets out of bounds, counts outside a sane range).
	// Opening such a container fails as a whole; no partial archive is
	// ever returned.
	ErrStructure = errors.New("structural corruption")

	// ErrOutOfBounds is returned for seeks past an entry's end and for
	// entry indices beyond the entry count. The stream and archive
	// remain usable.
	ErrOutOfBounds = errors.New("out of bounds")

	// ErrDecode marks corrupt compressed bytes encountered mid-stream.
	// It fails the read that hit it; other entries are unaffected.
	ErrDecode = errors.New("decode failure")

	// ErrNotFound is returned when an entry name is not present in the
	// archive index.
	ErrNotFound = errors.New("entry not found")
)
