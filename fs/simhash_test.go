package fs_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/usefocal/focal/fs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimHashFile_NearestWithinThreshold(t *testing.T) {
	t.Parallel()

	idx := fs.OpenSimHashFile(filepath.Join(t.TempDir(), "simhash.json"), zerolog.Nop())
	idx.Update("https://a", 0b1111)

	url, ok := idx.Nearest(0b1110, 3)

	assert.True(t, ok)
	assert.Equal(t, "https://a", url)
}

func TestSimHashFile_NearestBeyondThreshold(t *testing.T) {
	t.Parallel()

	idx := fs.OpenSimHashFile(filepath.Join(t.TempDir(), "simhash.json"), zerolog.Nop())
	idx.Update("https://a", 0)

	_, ok := idx.Nearest(0b11111111, 3)

	assert.False(t, ok)
}

func TestSimHashFile_NearestInsertionStable(t *testing.T) {
	t.Parallel()

	idx := fs.OpenSimHashFile(filepath.Join(t.TempDir(), "simhash.json"), zerolog.Nop())
	idx.Update("https://z-first", 0b0001)
	idx.Update("https://a-second", 0b0010)

	// Both entries are within distance 3 of the probe; the first inserted
	// wins regardless of lexical order.
	url, ok := idx.Nearest(0b0011, 3)

	require.True(t, ok)
	assert.Equal(t, "https://z-first", url)
}

func TestSimHashFile_RoundTripPreservesOrder(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "simhash.json")

	idx := fs.OpenSimHashFile(path, zerolog.Nop())
	idx.Update("https://z-first", 0b0001)
	idx.Update("https://a-second", 0b0010)
	require.NoError(t, idx.Save())

	reloaded := fs.OpenSimHashFile(path, zerolog.Nop())

	require.Equal(t, 2, reloaded.Len())
	url, ok := reloaded.Nearest(0b0011, 3)
	require.True(t, ok)
	assert.Equal(t, "https://z-first", url)
}

func TestSimHashFile_UpdateOverwrites(t *testing.T) {
	t.Parallel()

	idx := fs.OpenSimHashFile(filepath.Join(t.TempDir(), "simhash.json"), zerolog.Nop())
	idx.Update("https://a", 0)
	idx.Update("https://a", ^uint64(0))

	_, ok := idx.Nearest(0, 3)
	assert.False(t, ok)

	url, ok := idx.Nearest(^uint64(0), 3)
	require.True(t, ok)
	assert.Equal(t, "https://a", url)
	assert.Equal(t, 1, idx.Len())
}

func TestSimHashFile_CorruptFileStartsEmpty(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "simhash.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	idx := fs.OpenSimHashFile(path, zerolog.Nop())

	assert.Zero(t, idx.Len())
}
