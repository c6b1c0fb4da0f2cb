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

func TestLedger_RoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ledger.json")

	ledger := fs.OpenLedger(path, zerolog.Nop())
	ledger.Set("https://example.com/a", "sha256:aaa")
	ledger.Set("https://example.com/b", "sha256:bbb")
	require.NoError(t, ledger.Save())

	reloaded := fs.OpenLedger(path, zerolog.Nop())

	hash, ok := reloaded.Get("https://example.com/a")
	assert.True(t, ok)
	assert.Equal(t, "sha256:aaa", hash)
	assert.Equal(t, 2, reloaded.Len())
}

func TestLedger_MissingFileStartsEmpty(t *testing.T) {
	t.Parallel()

	ledger := fs.OpenLedger(filepath.Join(t.TempDir(), "missing.json"), zerolog.Nop())

	assert.Zero(t, ledger.Len())
	_, ok := ledger.Get("https://example.com")
	assert.False(t, ok)
}

func TestLedger_CorruptFileStartsEmpty(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ledger.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	ledger := fs.OpenLedger(path, zerolog.Nop())

	assert.Zero(t, ledger.Len())
}

func TestLedger_Overwrite(t *testing.T) {
	t.Parallel()

	ledger := fs.OpenLedger(filepath.Join(t.TempDir(), "ledger.json"), zerolog.Nop())
	ledger.Set("https://example.com/a", "sha256:old")
	ledger.Set("https://example.com/a", "sha256:new")

	hash, ok := ledger.Get("https://example.com/a")
	assert.True(t, ok)
	assert.Equal(t, "sha256:new", hash)
	assert.Equal(t, 1, ledger.Len())
}
