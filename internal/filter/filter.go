// Package filter implements the transparent decode transforms layered
// over entry streams: per-byte ciphers, header-stripped compressed
// payloads, and tagged zlib unwrapping. Detection happens once, when
// an entry is opened, by sniffing its first bytes against the enabled
// transforms; unmatched streams pass through unchanged.
package filter

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/harukana/vnarc/internal/arc"
)

// sniffLen covers every known transform signature.
const sniffLen = 8

var mdfMagic = []byte("mdf\x00")

// cipher signature: FE FE <mode> FF FE, mode selects the transform.
func cryptMode(header []byte) (byte, bool) {
	if len(header) >= 5 &&
		header[0] == 0xFE && header[1] == 0xFE &&
		header[2] <= 2 &&
		header[3] == 0xFF && header[4] == 0xFE {
		return header[2], true
	}
	return 0, false
}

// Wrap sniffs the stream's first bytes and layers the matching
// transform, honoring the per-transform toggles in opts. The stream
// is rewound before the wrapper is returned, so consumers always
// start at logical position zero.
func Wrap(stream *arc.Stream, opts arc.Options, diag *arc.Diagnostics) (io.ReadSeekCloser, error) {
	header := make([]byte, sniffLen)
	n, err := io.ReadFull(stream, header)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	header = header[:n]
	if _, err := stream.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	if mode, ok := cryptMode(header); ok {
		switch {
		case mode == 0 && opts.CryptXOR:
			return newCipherStream(stream, decodeXOR), nil
		case mode == 1 && opts.CryptSwap:
			return newCipherStream(stream, decodeSwap), nil
		case mode == 2 && opts.CryptZlib:
			return newPrefixInflate(stream), nil
		}
		return stream, nil
	}

	if opts.UnwrapMDF && len(header) >= 8 && bytes.HasPrefix(header, mdfMagic) {
		expected := int64(binary.LittleEndian.Uint32(header[4:8]))
		return newTaggedZlib(stream, expected, diag), nil
	}

	return stream, nil
}
