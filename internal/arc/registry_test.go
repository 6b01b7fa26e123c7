package arc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harukana/vnarc/internal/vio"
)

func scoredFormat(name string, score int) Format {
	return Format{
		Name:  name,
		Sniff: func(string, []byte, *vio.Source) int { return score },
	}
}

func TestDetectHighestScoreWins(t *testing.T) {
	t.Parallel()

	r := NewRegistry(
		scoredFormat("weak", 50),
		scoredFormat("strong", 200),
		scoredFormat("none", 0),
	)
	src := vio.NewBytes("x", []byte("payload"))

	f, score, ok := r.Detect("x", nil, src)
	require.True(t, ok)
	assert.Equal(t, "strong", f.Name)
	assert.Equal(t, 200, score)
}

func TestDetectTieBreaksToFirstRegistered(t *testing.T) {
	t.Parallel()

	r := NewRegistry(
		scoredFormat("first", 50),
		scoredFormat("second", 50),
	)
	src := vio.NewBytes("x", nil)

	// Repeated detection must be deterministic.
	for i := 0; i < 5; i++ {
		f, _, ok := r.Detect("x", nil, src)
		require.True(t, ok)
		assert.Equal(t, "first", f.Name)
	}
}

func TestDetectNoMatch(t *testing.T) {
	t.Parallel()

	r := NewRegistry(scoredFormat("a", 0), scoredFormat("b", 0))
	_, _, ok := r.Detect("x", nil, vio.NewBytes("x", nil))
	assert.False(t, ok)

	_, _, ok = NewRegistry().Detect("x", nil, vio.NewBytes("x", nil))
	assert.False(t, ok)
}

func TestReadHeader(t *testing.T) {
	t.Parallel()

	long := make([]byte, SniffLen*2)
	for i := range long {
		long[i] = byte(i)
	}
	header, err := ReadHeader(vio.NewBytes("long", long))
	require.NoError(t, err)
	assert.Equal(t, long[:SniffLen], header)

	header, err = ReadHeader(vio.NewBytes("short", []byte{1, 2, 3}))
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, header)

	header, err = ReadHeader(vio.NewBytes("empty", nil))
	require.NoError(t, err)
	assert.Empty(t, header)
}
