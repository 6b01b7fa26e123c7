package arc

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/harukana/vnarc/internal/vio"
)

// Stream is a per-open decoding cursor over one entry. It translates a
// logical byte position into physical reads against the shared source,
// keeping at most one live decoder bound to the segment currently
// being consumed.
//
// A Stream is single-owner: it must not be used from multiple
// goroutines without external synchronization. Multiple Streams over
// the same archive may run concurrently; the source serializes the
// physical reads underneath them.
type Stream struct {
	src   *vio.Source
	entry *Entry
	pos   int64
	dec   *segmentDecoder // nil while idle
}

// segmentDecoder is the Streaming half of the stream's state machine:
// a decompressor bound to one segment's physical byte range, plus the
// count of logical bytes it has left to produce.
type segmentDecoder struct {
	seg       int
	rc        io.ReadCloser
	remaining int64
}

func newStream(src *vio.Source, entry *Entry) *Stream {
	return &Stream{src: src, entry: entry}
}

// Name returns the entry name.
func (s *Stream) Name() string { return s.entry.Name }

// Size returns the entry's logical (decoded) size.
func (s *Stream) Size() int64 { return s.entry.Size }

func (s *Stream) Read(p []byte) (int, error) {
	if s.pos >= s.entry.Size {
		s.dropDecoder()
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}

	seg := s.entry.segmentAt(s.pos)
	segment := &s.entry.Segments[seg]
	within := s.pos - s.entry.start(seg)

	if !segment.Compressed {
		want := int64(len(p))
		if rest := segment.Size - within; want > rest {
			want = rest
		}
		n, err := s.src.ReadAt(p[:want], segment.Offset+within)
		s.pos += int64(n)
		if err == io.EOF && n > 0 {
			err = nil
		}
		return n, err
	}

	if s.dec == nil || s.dec.seg != seg {
		if err := s.openDecoder(seg, within); err != nil {
			return 0, err
		}
	}

	want := int64(len(p))
	if want > s.dec.remaining {
		want = s.dec.remaining
	}
	n, err := s.dec.rc.Read(p[:want])
	s.pos += int64(n)
	s.dec.remaining -= int64(n)

	switch {
	case s.dec.remaining == 0:
		// Segment fully consumed; next read moves on cleanly.
		s.dropDecoder()
		if err == io.EOF {
			err = nil
		}
	case err == io.EOF:
		// Decoder ran dry before the declared segment size.
		short := s.dec.remaining
		s.dropDecoder()
		if n == 0 {
			return 0, fmt.Errorf("%w: segment %d of %q ended %d bytes early", ErrDecode, seg, s.entry.Name, short)
		}
		err = nil
	case err != nil:
		s.dropDecoder()
		return n, fmt.Errorf("%w: segment %d of %q: %v", ErrDecode, seg, s.entry.Name, err)
	}
	return n, err
}

// Seek repositions the logical cursor. A forward seek that stays
// inside the segment bound to the live decoder is serviced by
// decode-and-discard; anything else drops the decoder and defers the
// restart to the next Read, so back-to-back seeks cost nothing.
func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = s.pos + offset
	case io.SeekEnd:
		target = s.entry.Size + offset
	default:
		return s.pos, fmt.Errorf("invalid whence %d", whence)
	}
	if target < 0 || target > s.entry.Size {
		return s.pos, fmt.Errorf("%w: seek to %d in entry %q of size %d", ErrOutOfBounds, target, s.entry.Name, s.entry.Size)
	}

	if s.dec != nil {
		seg := s.dec.seg
		segEnd := s.entry.start(seg) + s.entry.Segments[seg].Size
		if target >= s.pos && target < segEnd {
			if delta := target - s.pos; delta > 0 {
				if _, err := io.CopyN(io.Discard, s.dec.rc, delta); err != nil {
					// The decoder is no longer trustworthy; the next
					// read restarts it and reports any real damage.
					s.dropDecoder()
				} else {
					s.dec.remaining -= delta
				}
			}
			s.pos = target
			return s.pos, nil
		}
		s.dropDecoder()
	}

	s.pos = target
	return s.pos, nil
}

// Close releases the live decoder, if any. The shared source stays
// open; it belongs to the archive.
func (s *Stream) Close() error {
	s.dropDecoder()
	return nil
}

// openDecoder binds a fresh decompressor to segment seg and
// decode-discards skip bytes so the next read starts at the cursor.
// The discard is O(skip), the accepted cost of seeking into
// compressed data.
func (s *Stream) openDecoder(seg int, skip int64) error {
	s.dropDecoder()
	segment := &s.entry.Segments[seg]
	sr := io.NewSectionReader(s.src, segment.Offset, segment.PackedSize)
	rc, err := zlib.NewReader(sr)
	if err != nil {
		return fmt.Errorf("%w: opening segment %d of %q: %v", ErrDecode, seg, s.entry.Name, err)
	}
	if skip > 0 {
		if _, err := io.CopyN(io.Discard, rc, skip); err != nil {
			rc.Close()
			return fmt.Errorf("%w: resuming segment %d of %q at +%d: %v", ErrDecode, seg, s.entry.Name, skip, err)
		}
	}
	s.dec = &segmentDecoder{seg: seg, rc: rc, remaining: segment.Size - skip}
	return nil
}

func (s *Stream) dropDecoder() {
	if s.dec != nil {
		s.dec.rc.Close()
		s.dec = nil
	}
}
