package format

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harukana/vnarc/internal/arc"
	"github.com/harukana/vnarc/internal/vio"
)

type grpBlock struct {
	volume     int
	startIndex int
	entries    [][2]uint32 // offset, size pairs
	skipMarker bool
}

func buildGrpTOC(blocks []grpBlock) []byte {
	toc := make([]byte, 0x10)
	copy(toc, grpTocMagic)
	binary.LittleEndian.PutUint32(toc[0xC:], uint32(len(blocks)))
	for _, b := range blocks {
		if b.skipMarker {
			toc = binary.LittleEndian.AppendUint32(toc, grpIndexSkipMarker)
		}
		toc = binary.LittleEndian.AppendUint32(toc, uint32(b.volume))
		toc = binary.LittleEndian.AppendUint32(toc, uint32(b.startIndex))
		toc = binary.LittleEndian.AppendUint32(toc, 0)
		toc = binary.LittleEndian.AppendUint32(toc, uint32(len(b.entries)))
		for _, e := range b.entries {
			toc = binary.LittleEndian.AppendUint32(toc, e[0])
			toc = binary.LittleEndian.AppendUint32(toc, e[1])
		}
	}
	return toc
}

func writeGrpSet(t *testing.T, toc []byte, volumes map[string][]byte) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "res000.grp"), toc, 0o644))
	for name, data := range volumes {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
	}
	return dir
}

func TestGrpVolume(t *testing.T) {
	t.Parallel()

	track1 := []byte("oggs track one body")
	track2 := []byte("oggs track two, longer body")
	volume := append(append([]byte{}, track1...), track2...)

	toc := buildGrpTOC([]grpBlock{{
		volume:     1,
		startIndex: 5,
		entries: [][2]uint32{
			{0, uint32(len(track1))},
			{uint32(len(track1)), uint32(len(track2))},
		},
	}})
	dir := writeGrpSet(t, toc, map[string][]byte{"res001.grp": volume})

	a, err := Open(filepath.Join(dir, "res001.grp"), arc.DefaultOptions())
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, "grp", a.FormatName())
	infos := a.Entries()
	require.Len(t, infos, 2)
	assert.Equal(t, "00005.ogg", infos[0].Name)
	assert.Equal(t, "00006.ogg", infos[1].Name)

	rc, err := a.Open("00006.ogg")
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, track2, got)
}

// The TOC for a volume may sit more than one step down; intermediate
// siblings without the signature are skipped and each step bumps the
// volume's index inside the TOC.
func TestGrpTOCSeveralStepsDown(t *testing.T) {
	t.Parallel()

	payload := []byte("only entry")
	toc := buildGrpTOC([]grpBlock{
		{volume: 1, startIndex: 0, entries: [][2]uint32{{0, 4}}},
		{volume: 2, startIndex: 10, entries: [][2]uint32{{0, uint32(len(payload))}}},
	})
	dir := writeGrpSet(t, toc, map[string][]byte{
		"res001.grp": []byte("data"),
		"res002.grp": payload,
	})

	a, err := Open(filepath.Join(dir, "res002.grp"), arc.DefaultOptions())
	require.NoError(t, err)
	defer a.Close()

	infos := a.Entries()
	require.Len(t, infos, 1)
	assert.Equal(t, "00010.ogg", infos[0].Name)
}

func TestGrpSkipMarkerAndZeroEntries(t *testing.T) {
	t.Parallel()

	volume := []byte("abcdefgh")
	toc := buildGrpTOC([]grpBlock{{
		volume:     1,
		startIndex: 0,
		skipMarker: true,
		entries: [][2]uint32{
			{0, 4},
			{4, 0}, // placeholder, must be dropped
			{4, 4},
		},
	}})
	dir := writeGrpSet(t, toc, map[string][]byte{"res001.grp": volume})

	a, err := Open(filepath.Join(dir, "res001.grp"), arc.DefaultOptions())
	require.NoError(t, err)
	defer a.Close()

	infos := a.Entries()
	require.Len(t, infos, 2)
	assert.Equal(t, "00000.ogg", infos[0].Name)
	assert.Equal(t, "00002.ogg", infos[1].Name)
}

func TestGrpSniff(t *testing.T) {
	t.Parallel()

	data := []byte("volume payload")
	assert.Equal(t, 40, grpFormat.Sniff("res001.grp", data, nil))
	assert.Equal(t, 40, grpFormat.Sniff("/games/ex/res042.grp", data, nil))
	assert.Zero(t, grpFormat.Sniff("res000.grp", data, nil), "volume 0 has no TOC below it")
	assert.Zero(t, grpFormat.Sniff("res001.grp", append([]byte{}, grpTocMagic...), nil), "a TOC is not a data volume")
	assert.Zero(t, grpFormat.Sniff("other001.grp", data, nil))
	assert.Zero(t, grpFormat.Sniff("res001.dat", data, nil))
}

func TestGrpMissingTOC(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "res001.grp")
	require.NoError(t, os.WriteFile(path, []byte("payload"), 0o644))

	src, err := vio.NewFile(path)
	require.NoError(t, err)
	defer src.Close()
	_, err = parseGrp(src, path, arc.DefaultOptions())
	assert.ErrorIs(t, err, arc.ErrStructure)
}

func TestGrpVolumeNotInTOC(t *testing.T) {
	t.Parallel()

	toc := buildGrpTOC([]grpBlock{{volume: 2, startIndex: 0, entries: [][2]uint32{{0, 1}}}})
	dir := writeGrpSet(t, toc, map[string][]byte{"res001.grp": []byte("x")})

	_, err := Open(filepath.Join(dir, "res001.grp"), arc.DefaultOptions())
	assert.ErrorIs(t, err, arc.ErrStructure)
}
