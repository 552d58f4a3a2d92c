package strategy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/subnet-sentinel/internal/domain"
)

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	return NewFileStore(t.TempDir(), zerolog.Nop())
}

func TestFileStore_SaveAndLoadRoundTrip(t *testing.T) {
	store := newTestFileStore(t)

	saved := domain.AllocationMap{
		1:  0.25,
		18: 0.15,
		0:  0.05,
		42: 0.55,
	}
	require.NoError(t, store.Save("hotkey1", saved))

	loaded, err := store.Load("hotkey1")
	require.NoError(t, err)
	require.Len(t, loaded, 4)
	for netuid, fraction := range saved {
		assert.InDelta(t, fraction, loaded[netuid], 1e-4)
	}
}

func TestFileStore_SaveRefusesEmpty(t *testing.T) {
	store := newTestFileStore(t)
	assert.Error(t, store.Save("hotkey1", domain.AllocationMap{}))
}

func TestFileStore_SaveDropsDust(t *testing.T) {
	store := newTestFileStore(t)

	require.NoError(t, store.Save("hotkey1", domain.AllocationMap{
		1: 0.9995,
		2: 0.0005, // below the dust threshold
	}))

	loaded, err := store.Load("hotkey1")
	require.NoError(t, err)
	assert.NotContains(t, loaded, 2)
	assert.Contains(t, loaded, 1)
}

func TestFileStore_FileSortedByAllocationDescending(t *testing.T) {
	store := newTestFileStore(t)

	require.NoError(t, store.Save("hotkey1", domain.AllocationMap{
		5: 0.10,
		9: 0.60,
		2: 0.30,
	}))

	content, err := os.ReadFile(store.Path("hotkey1"))
	require.NoError(t, err)
	assert.Equal(t, "9: 0.6000\n2: 0.3000\n5: 0.1000\n", string(content))
}

func TestFileStore_LoadMissingFileIsEmpty(t *testing.T) {
	store := newTestFileStore(t)

	loaded, err := store.Load("never-saved")
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestFileStore_LoadRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir, zerolog.Nop())

	tests := []struct {
		name    string
		content string
	}{
		{"no separator", "1 0.5\n"},
		{"non-numeric netuid", "abc: 0.5\n"},
		{"non-numeric fraction", "1: lots\n"},
		{"fraction above one", "1: 1.5\n"},
		{"negative fraction", "1: -0.1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, "bad.strategy")
			require.NoError(t, os.WriteFile(path, []byte("2: 0.4\n"+tt.content), 0644))

			_, err := store.Load("bad")
			assert.Error(t, err, "one malformed line must reject the whole file")
		})
	}
}

func TestFileStore_LoadSkipsBlankLines(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir, zerolog.Nop())

	path := filepath.Join(dir, "hk.strategy")
	require.NoError(t, os.WriteFile(path, []byte("1: 0.5\n\n2: 0.5\n"), 0644))

	loaded, err := store.Load("hk")
	require.NoError(t, err)
	assert.Len(t, loaded, 2)
}

func TestFileStore_SaveOverwritesAtomically(t *testing.T) {
	store := newTestFileStore(t)

	require.NoError(t, store.Save("hk", domain.AllocationMap{1: 1.0}))
	require.NoError(t, store.Save("hk", domain.AllocationMap{2: 1.0}))

	loaded, err := store.Load("hk")
	require.NoError(t, err)
	assert.NotContains(t, loaded, 1, "save replaces, never merges")
	assert.Contains(t, loaded, 2)

	_, err = os.Stat(store.Path("hk") + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must not linger")
}
