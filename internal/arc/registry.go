package arc

import (
	"fmt"

	"github.com/harukana/vnarc/internal/vio"
)

// SniffLen is the bounded header prefix handed to every sniffer.
// Classification never requires reading more of the file than this;
// formats needing structural validation get the open source for trial
// parsing on top of it.
const SniffLen = 64

// Format is one container format candidate: a sniffer that scores how
// well an input matches, and a parser that produces the validated
// entry descriptors. The format set is closed at build time; formats
// are plain values in a fixed priority list, not open-ended runtime
// plugins.
type Format struct {
	// Name identifies the format in logs and CLI output.
	Name string

	// Extensions lists the filename extensions the format usually
	// carries, lowercase with dot. Informational; sniffing decides.
	Extensions []string

	// Sniff inspects the filename and header prefix (and, for formats
	// that need a trial parse, the open source) and returns a
	// confidence score, 0 meaning no match. Sniff must not mutate
	// anything.
	Sniff func(filename string, header []byte, src *vio.Source) int

	// Parse reads the container's table of contents and returns its
	// entries, or a structural error.
	Parse func(src *vio.Source, filename string, opts Options) ([]Entry, error)
}

// Registry holds the candidate formats in priority order.
type Registry struct {
	formats []Format
}

// NewRegistry builds a registry from formats in the given order. The
// order is the documented tie-break: on equal scores the earliest
// registered format wins, so callers wanting deterministic cross-run
// behavior register in a fixed order.
func NewRegistry(formats ...Format) *Registry {
	r := &Registry{}
	for _, f := range formats {
		r.Register(f)
	}
	return r
}

// Register appends a format candidate.
func (r *Registry) Register(f Format) {
	r.formats = append(r.formats, f)
}

// Formats returns the registered candidates in priority order.
func (r *Registry) Formats() []Format {
	return r.formats
}

// Detect scores every candidate against the header prefix and returns
// the one with the strictly highest score. A zero score from every
// candidate is a non-match.
func (r *Registry) Detect(filename string, header []byte, src *vio.Source) (Format, int, bool) {
	best := -1
	bestScore := 0
	for i := range r.formats {
		score := r.formats[i].Sniff(filename, header, src)
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return Format{}, 0, false
	}
	return r.formats[best], bestScore, true
}

// ReadHeader fetches the sniffing prefix from a source. Containers
// shorter than SniffLen yield a short header.
func ReadHeader(src *vio.Source) ([]byte, error) {
	n := int64(SniffLen)
	if sz := src.Size(); sz < n {
		n = sz
	}
	header := make([]byte, n)
	if n == 0 {
		return header, nil
	}
	if err := src.ReadFull(header, 0); err != nil {
		return nil, fmt.Errorf("reading header prefix: %w", err)
	}
	return header, nil
}
