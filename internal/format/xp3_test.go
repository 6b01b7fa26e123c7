package format

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
	"unicode/utf16"

	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harukana/vnarc/internal/arc"
	"github.com/harukana/vnarc/internal/vio"
)

func xp3Chunk(tag string, body []byte) []byte {
	out := make([]byte, 0, 12+len(body))
	out = append(out, tag...)
	out = binary.LittleEndian.AppendUint64(out, uint64(len(body)))
	return append(out, body...)
}

func xp3Info(declared int64, name string) []byte {
	units := utf16.Encode([]rune(name))
	body := make([]byte, 22+2*len(units))
	binary.LittleEndian.PutUint64(body[4:], uint64(declared))
	binary.LittleEndian.PutUint16(body[20:], uint16(len(units)))
	for i, u := range units {
		binary.LittleEndian.PutUint16(body[22+i*2:], u)
	}
	return body
}

func xp3Segm(segments []arc.Segment) []byte {
	body := make([]byte, len(segments)*xp3SegmentRecordLen)
	for i, seg := range segments {
		rec := body[i*xp3SegmentRecordLen:]
		var flag uint32
		if seg.Compressed {
			flag = 1
		}
		binary.LittleEndian.PutUint32(rec[0:], flag)
		binary.LittleEndian.PutUint64(rec[4:], uint64(seg.Offset))
		binary.LittleEndian.PutUint64(rec[12:], uint64(seg.Size))
		binary.LittleEndian.PutUint64(rec[20:], uint64(seg.PackedSize))
	}
	return body
}

type xp3Entry struct {
	name   string
	chunks [][]byte // each becomes one zlib-compressed segment
}

// buildXP3 packs every chunk as its own compressed segment, writes the
// data region, and appends the index, compressed when packIndex is set.
func buildXP3(t *testing.T, entries []xp3Entry, packIndex bool) []byte {
	t.Helper()
	headerLen := int64(len(xp3Magic) + 8)

	var data []byte
	var index []byte
	for _, e := range entries {
		var segments []arc.Segment
		var declared int64
		for _, chunk := range e.chunks {
			packed := xp3Zlib(t, chunk)
			segments = append(segments, arc.Segment{
				Offset:     headerLen + int64(len(data)),
				PackedSize: int64(len(packed)),
				Size:       int64(len(chunk)),
				Compressed: true,
			})
			data = append(data, packed...)
			declared += int64(len(chunk))
		}
		fileBody := append(xp3Info(declared, e.name), xp3Segm(segments)...)
		index = append(index, xp3Chunk("File", fileBody)...)
	}

	raw := append([]byte{}, xp3Magic...)
	raw = binary.LittleEndian.AppendUint64(raw, uint64(headerLen+int64(len(data))))
	raw = append(raw, data...)

	if !packIndex {
		raw = append(raw, 0)
		raw = binary.LittleEndian.AppendUint64(raw, uint64(len(index)))
		return append(raw, index...)
	}
	packed := xp3Zlib(t, index)
	raw = append(raw, 1)
	raw = binary.LittleEndian.AppendUint64(raw, uint64(len(packed)))
	raw = binary.LittleEndian.AppendUint64(raw, uint64(len(index)))
	return append(raw, packed...)
}

func xp3Zlib(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestXP3MultiSegmentEntry(t *testing.T) {
	t.Parallel()

	part1 := bytes.Repeat([]byte("segment one payload "), 20)
	part2 := bytes.Repeat([]byte("and the second half "), 15)
	raw := buildXP3(t, []xp3Entry{
		{name: "data/scenario.ks", chunks: [][]byte{part1, part2}},
		{name: "data/title.png", chunks: [][]byte{[]byte("png-ish bytes")}},
	}, false)

	a, err := OpenSource(vio.NewBytes("game.xp3", raw), "game.xp3", arc.DefaultOptions())
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, "xp3", a.FormatName())
	require.Equal(t, 2, a.Len())

	want := append(append([]byte{}, part1...), part2...)
	rc, err := a.Open("data/scenario.ks")
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// Seek across the segment boundary and read through it.
	boundary := int64(len(part1))
	_, err = rc.Seek(boundary-5, io.SeekStart)
	require.NoError(t, err)
	buf := make([]byte, 10)
	_, err = io.ReadFull(rc, buf)
	require.NoError(t, err)
	assert.Equal(t, want[boundary-5:boundary+5], buf)
}

func TestXP3CompressedIndex(t *testing.T) {
	t.Parallel()

	payload := []byte("compressed index, plain entry")
	raw := buildXP3(t, []xp3Entry{{name: "readme.txt", chunks: [][]byte{payload}}}, true)

	a, err := OpenSource(vio.NewBytes("game.xp3", raw), "game.xp3", arc.DefaultOptions())
	require.NoError(t, err)
	defer a.Close()

	rc, err := a.Open("readme.txt")
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestXP3Sniff(t *testing.T) {
	t.Parallel()

	raw := buildXP3(t, []xp3Entry{{name: "a", chunks: [][]byte{[]byte("x")}}}, false)
	src := vio.NewBytes("game.xp3", raw)
	header, err := arc.ReadHeader(src)
	require.NoError(t, err)

	f, score, ok := Registry().Detect("game.xp3", header, src)
	require.True(t, ok)
	assert.Equal(t, "xp3", f.Name)
	assert.Equal(t, 255, score)
}

func TestXP3RejectsDeclaredSizeMismatch(t *testing.T) {
	t.Parallel()

	chunk := []byte("some body")
	packed := xp3Zlib(t, chunk)
	headerLen := int64(len(xp3Magic) + 8)
	fileBody := append(xp3Info(int64(len(chunk))+3, "liar.txt"), xp3Segm([]arc.Segment{{
		Offset:     headerLen,
		PackedSize: int64(len(packed)),
		Size:       int64(len(chunk)),
		Compressed: true,
	}})...)
	index := xp3Chunk("File", fileBody)

	raw := append([]byte{}, xp3Magic...)
	raw = binary.LittleEndian.AppendUint64(raw, uint64(headerLen+int64(len(packed))))
	raw = append(raw, packed...)
	raw = append(raw, 0)
	raw = binary.LittleEndian.AppendUint64(raw, uint64(len(index)))
	raw = append(raw, index...)

	_, err := OpenSource(vio.NewBytes("bad.xp3", raw), "bad.xp3", arc.DefaultOptions())
	assert.ErrorIs(t, err, arc.ErrStructure)
}

func TestXP3RejectsBadIndexOffset(t *testing.T) {
	t.Parallel()

	raw := append([]byte{}, xp3Magic...)
	raw = binary.LittleEndian.AppendUint64(raw, uint64(1<<40))
	raw = append(raw, make([]byte, 64)...)

	_, err := OpenSource(vio.NewBytes("bad.xp3", raw), "bad.xp3", arc.DefaultOptions())
	assert.ErrorIs(t, err, arc.ErrStructure)
}
