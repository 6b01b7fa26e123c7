package filter

import (
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"

	"github.com/harukana/vnarc/internal/arc"
)

// inflated is the shared machinery for transforms whose visible stream
// is `prefix ++ inflate(physical bytes after skip)`. The decoder is
// forward-only; backward seeks restart it from the stripped header and
// decode-discard up to the cursor, the same cost model as seeking into
// a compressed segment. SeekEnd is unsupported: the decoded length is
// unknowable without a full decode.
type inflated struct {
	base   io.ReadSeekCloser
	prefix []byte
	skip   int64
	newDec func(io.Reader) (io.ReadCloser, error)

	diag     *arc.Diagnostics
	expected int64 // declared decoded size, -1 when the format has none
	warned   bool

	rc       io.ReadCloser
	consumed int64 // payload bytes produced by rc so far
	done     bool  // rc ran to EOF; consumed is the full decoded size
	pos      int64
}

// newPrefixInflate builds the header-stripped compressed payload
// transform: strip the 5-byte signature, inflate the raw DEFLATE
// remainder, and serve the FF FE literal prefix first.
func newPrefixInflate(base *arc.Stream) *inflated {
	return &inflated{
		base:     base,
		prefix:   literalPrefix[:],
		skip:     cipherHeaderLen,
		newDec:   func(r io.Reader) (io.ReadCloser, error) { return flate.NewReader(r), nil },
		expected: -1,
	}
}

// newTaggedZlib builds the tagged compressed passthrough: strip the
// 8-byte tag (magic + declared size), inflate the zlib remainder. A
// decoded length disagreeing with the tag is a warning, not a
// failure; the bytes are still returned.
func newTaggedZlib(base *arc.Stream, expected int64, diag *arc.Diagnostics) *inflated {
	return &inflated{
		base: base,
		skip: 8,
		newDec: func(r io.Reader) (io.ReadCloser, error) {
			rc, err := zlib.NewReader(r)
			if err != nil {
				return nil, err
			}
			return rc, nil
		},
		diag:     diag,
		expected: expected,
	}
}

func (f *inflated) Read(p []byte) (int, error) {
	n := 0
	for f.pos < int64(len(f.prefix)) && n < len(p) {
		p[n] = f.prefix[f.pos]
		n++
		f.pos++
	}
	if n == len(p) {
		return n, nil
	}
	payloadPos := f.pos - int64(len(f.prefix))

	if f.rc != nil && f.consumed > payloadPos {
		f.drop()
	}
	if f.done {
		if payloadPos >= f.consumed {
			if n > 0 {
				return n, nil
			}
			return 0, io.EOF
		}
		f.done = false
	}
	if f.rc == nil {
		if _, err := f.base.Seek(f.skip, io.SeekStart); err != nil {
			return n, err
		}
		rc, err := f.newDec(f.base)
		if err != nil {
			return n, fmt.Errorf("%w: opening decoder: %v", arc.ErrDecode, err)
		}
		f.rc = rc
		f.consumed = 0
	}
	if payloadPos > f.consumed {
		skipped, err := io.CopyN(io.Discard, f.rc, payloadPos-f.consumed)
		f.consumed += skipped
		if err == io.EOF {
			f.finish()
			if n > 0 {
				return n, nil
			}
			return 0, io.EOF
		}
		if err != nil {
			f.drop()
			return n, fmt.Errorf("%w: %v", arc.ErrDecode, err)
		}
	}

	m, err := f.rc.Read(p[n:])
	f.consumed += int64(m)
	f.pos += int64(m)
	n += m
	if err == io.EOF {
		f.finish()
		if n > 0 {
			return n, nil
		}
		return 0, io.EOF
	}
	if err != nil {
		f.drop()
		return n, fmt.Errorf("%w: %v", arc.ErrDecode, err)
	}
	return n, nil
}

func (f *inflated) Seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = f.pos + offset
	case io.SeekEnd:
		return f.pos, fmt.Errorf("seek from end of inflated stream: %w", errors.ErrUnsupported)
	default:
		return f.pos, fmt.Errorf("invalid whence %d", whence)
	}
	if target < 0 {
		return f.pos, fmt.Errorf("%w: seek to %d", arc.ErrOutOfBounds, target)
	}
	// Bookkeeping only; the next Read reconciles the decoder, so
	// stacked seeks before a read cost nothing.
	f.pos = target
	return f.pos, nil
}

func (f *inflated) Close() error {
	f.drop()
	return f.base.Close()
}

// finish records that the decoder ran to EOF and checks the declared
// size hint, warning at most once per stream.
func (f *inflated) finish() {
	if f.rc != nil {
		f.rc.Close()
		f.rc = nil
	}
	f.done = true
	if f.expected >= 0 && f.consumed != f.expected && !f.warned {
		f.warned = true
		if f.diag != nil {
			f.diag.Warn("decoded size mismatch", "expected", f.expected, "got", f.consumed)
		}
	}
}

func (f *inflated) drop() {
	if f.rc != nil {
		f.rc.Close()
		f.rc = nil
	}
	f.done = false
}
