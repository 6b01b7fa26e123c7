package filter

import (
	"fmt"
	"io"

	"github.com/harukana/vnarc/internal/arc"
)

// cipherHeaderLen is the FE FE <mode> FF FE signature length.
const cipherHeaderLen = 5

// literalPrefix is the plaintext the signature displaced; every
// cipher-mode stream serves it before the transformed payload.
var literalPrefix = [2]byte{0xFF, 0xFE}

// decodeXOR recovers a byte of the threshold-XOR cipher. Bytes below
// the threshold pass through unchanged; the rest are XORed with a
// value derived from the byte widened to 16 bits.
func decodeXOR(b byte) byte {
	if b < 20 {
		return b
	}
	ch := uint16(b)
	return byte(ch ^ (((ch & 0xFE) << 8) ^ 1))
}

// decodeSwap exchanges adjacent bit pairs.
func decodeSwap(b byte) byte {
	return (b&0xAA)>>1 | (b&0x55)<<1
}

// cipherStream decodes a per-byte cipher on the fly. The transform is
// stateless per byte, so the stream supports true random access: a
// logical position maps directly onto a physical one, and seeks cost
// nothing.
type cipherStream struct {
	base   *arc.Stream
	decode func(byte) byte
	size   int64
	pos    int64
}

func newCipherStream(base *arc.Stream, decode func(byte) byte) *cipherStream {
	// Output: 2 literal bytes in place of the 5-byte signature.
	return &cipherStream{base: base, decode: decode, size: base.Size() - cipherHeaderLen + int64(len(literalPrefix))}
}

func (c *cipherStream) Read(p []byte) (int, error) {
	if c.pos >= c.size {
		return 0, io.EOF
	}
	n := 0
	for c.pos < int64(len(literalPrefix)) && n < len(p) {
		p[n] = literalPrefix[c.pos]
		n++
		c.pos++
	}
	if n == len(p) {
		return n, nil
	}

	phys := cipherHeaderLen + (c.pos - int64(len(literalPrefix)))
	if _, err := c.base.Seek(phys, io.SeekStart); err != nil {
		return n, err
	}
	want := int64(len(p) - n)
	if rest := c.size - c.pos; want > rest {
		want = rest
	}
	m, err := c.base.Read(p[n : n+int(want)])
	for i := n; i < n+m; i++ {
		p[i] = c.decode(p[i])
	}
	n += m
	c.pos += int64(m)
	if err == io.EOF && n > 0 {
		err = nil
	}
	return n, err
}

func (c *cipherStream) Seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = c.pos + offset
	case io.SeekEnd:
		target = c.size + offset
	default:
		return c.pos, fmt.Errorf("invalid whence %d", whence)
	}
	if target < 0 || target > c.size {
		return c.pos, fmt.Errorf("%w: seek to %d in cipher stream of size %d", arc.ErrOutOfBounds, target, c.size)
	}
	c.pos = target
	return c.pos, nil
}

func (c *cipherStream) Close() error {
	return c.base.Close()
}
