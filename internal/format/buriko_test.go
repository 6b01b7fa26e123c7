package format

import (
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harukana/vnarc/internal/arc"
	"github.com/harukana/vnarc/internal/vio"
)

type burikoFile struct {
	name string
	data []byte
}

// buildBuriko assembles a pack file of the given generation with the
// entries laid out back to back after the index.
func buildBuriko(magic []byte, nameLen, entrySize int, files []burikoFile) []byte {
	header := make([]byte, 16)
	copy(header, magic)
	binary.LittleEndian.PutUint32(header[12:], uint32(len(files)))

	index := make([]byte, len(files)*entrySize)
	var data []byte
	for i, f := range files {
		rec := index[i*entrySize:]
		copy(rec[:nameLen], f.name)
		binary.LittleEndian.PutUint32(rec[nameLen:], uint32(len(data)))
		binary.LittleEndian.PutUint32(rec[nameLen+4:], uint32(len(f.data)))
		data = append(data, f.data...)
	}
	return append(append(header, index...), data...)
}

func TestBurikoV1(t *testing.T) {
	t.Parallel()

	files := []burikoFile{
		{"scene01.dat", []byte("first entry body")},
		{"scene02.dat", []byte("the second entry, somewhat longer")},
	}
	raw := buildBuriko(burikoV1Magic, 0x10, 0x20, files)

	a, err := OpenSource(vio.NewBytes("game.arc", raw), "game.arc", arc.DefaultOptions())
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, "buriko-v1", a.FormatName())
	require.Equal(t, 2, a.Len())
	for _, f := range files {
		rc, err := a.Open(f.name)
		require.NoError(t, err)
		got, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, f.data, got)
		rc.Close()
	}
}

func TestBurikoV2(t *testing.T) {
	t.Parallel()

	files := []burikoFile{
		{"data/voice/00001.ogg", []byte("opus opus opus")},
	}
	raw := buildBuriko(burikoV2Magic, 0x60, 0x80, files)

	a, err := OpenSource(vio.NewBytes("game.arc", raw), "game.arc", arc.DefaultOptions())
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, "buriko-v2", a.FormatName())
	infos := a.Entries()
	require.Len(t, infos, 1)
	assert.Equal(t, files[0].name, infos[0].Name)
	assert.Equal(t, int64(len(files[0].data)), infos[0].Size)
}

func TestBurikoSniffPriority(t *testing.T) {
	t.Parallel()

	raw := buildBuriko(burikoV2Magic, 0x60, 0x80, []burikoFile{{"a", []byte("x")}})
	src := vio.NewBytes("game.arc", raw)
	header, err := arc.ReadHeader(src)
	require.NoError(t, err)

	f, score, ok := Registry().Detect("game.arc", header, src)
	require.True(t, ok)
	assert.Equal(t, "buriko-v2", f.Name)
	assert.Equal(t, 255, score)
}

func TestBurikoRejectsTruncatedIndex(t *testing.T) {
	t.Parallel()

	raw := buildBuriko(burikoV1Magic, 0x10, 0x20, []burikoFile{{"a", []byte("x")}})
	// Inflate the count beyond what the container can hold.
	binary.LittleEndian.PutUint32(raw[12:], 500)

	_, err := OpenSource(vio.NewBytes("bad.arc", raw), "bad.arc", arc.DefaultOptions())
	assert.ErrorIs(t, err, arc.ErrStructure)
}

func TestBurikoRejectsEntryPastEnd(t *testing.T) {
	t.Parallel()

	raw := buildBuriko(burikoV1Magic, 0x10, 0x20, []burikoFile{{"a", []byte("x")}})
	// Stretch the entry size past the container.
	binary.LittleEndian.PutUint32(raw[16+0x14:], 9999)

	_, err := OpenSource(vio.NewBytes("bad.arc", raw), "bad.arc", arc.DefaultOptions())
	assert.ErrorIs(t, err, arc.ErrStructure)
}

func TestBurikoRejectsOverlap(t *testing.T) {
	t.Parallel()

	files := []burikoFile{
		{"a", []byte("0123456789")},
		{"b", []byte("xyz")},
	}
	raw := buildBuriko(burikoV1Magic, 0x10, 0x20, files)
	// Point the second entry back into the first one's range.
	binary.LittleEndian.PutUint32(raw[16+0x20+0x10:], 2)

	_, err := OpenSource(vio.NewBytes("bad.arc", raw), "bad.arc", arc.DefaultOptions())
	assert.ErrorIs(t, err, arc.ErrStructure)
}
