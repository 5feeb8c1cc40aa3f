package quarantine

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, cfg Config) *Store {
	t.Helper()
	if cfg.Dir == "" {
		cfg.Dir = t.TempDir()
	}
	store, err := NewStore(cfg, nil)
	require.NoError(t, err)
	return store
}

func stageFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "staged.bin")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func binFiles(t *testing.T, dir string) []string {
	t.Helper()
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		require.NoError(t, err)
		if !d.IsDir() && strings.HasSuffix(path, ".bin") {
			files = append(files, path)
		}
		return nil
	})
	require.NoError(t, err)
	return files
}

func TestQuarantineAndList(t *testing.T) {
	store := newTestStore(t, Config{})
	payload := bytes.Repeat([]byte("malicious"), 10)
	src := stageFile(t, payload)

	receipt, err := store.Quarantine(src, "script injection: script tag", map[string]string{
		"originalFilename": "evil.gif",
		"ownerId":          "user-9",
	})
	require.NoError(t, err)
	require.NotEmpty(t, receipt.ID)
	require.FileExists(t, receipt.Path)

	// The original stays in place; quarantine copies.
	require.FileExists(t, src)

	records, err := store.List()
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, receipt.ID, records[0].QuarantineID)
	require.Equal(t, "evil.gif", records[0].OriginalFilename)
	require.Equal(t, "script injection: script tag", records[0].Reason)
	require.Equal(t, int64(len(payload)), records[0].FileSize)
	require.Len(t, records[0].FileHash, 64)
	require.Equal(t, "quarantined", records[0].Status)
}

func TestReleaseRemovesAllResidue(t *testing.T) {
	dir := t.TempDir()
	store := newTestStore(t, Config{Dir: dir})
	src := stageFile(t, []byte("payload"))

	receipt, err := store.Quarantine(src, "test", nil)
	require.NoError(t, err)

	require.NoError(t, store.Release(receipt.ID))
	require.NoFileExists(t, receipt.Path)
	require.Empty(t, binFiles(t, dir))

	records, err := store.List()
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestReleaseUnknownID(t *testing.T) {
	store := newTestStore(t, Config{})
	require.ErrorIs(t, store.Release("no-such-id"), ErrNotFound)
	// Releasing twice behaves the same way.
	src := stageFile(t, []byte("payload"))
	receipt, err := store.Quarantine(src, "test", nil)
	require.NoError(t, err)
	require.NoError(t, store.Release(receipt.ID))
	require.ErrorIs(t, store.Release(receipt.ID), ErrNotFound)
}

func TestSizeBudgetEvictsOldestFirst(t *testing.T) {
	dir := t.TempDir()
	store := newTestStore(t, Config{Dir: dir, MaxTotalSizeBytes: 100})

	first, err := store.Quarantine(stageFile(t, bytes.Repeat([]byte("a"), 60)), "first", nil)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	second, err := store.Quarantine(stageFile(t, bytes.Repeat([]byte("b"), 60)), "second", nil)
	require.NoError(t, err)

	records, err := store.List()
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, second.ID, records[0].QuarantineID)
	require.NotEqual(t, first.ID, records[0].QuarantineID)
}

func TestSingleFileOverBudget(t *testing.T) {
	store := newTestStore(t, Config{MaxTotalSizeBytes: 10})
	_, err := store.Quarantine(stageFile(t, bytes.Repeat([]byte("x"), 64)), "too big", nil)
	require.Error(t, err)
}

func TestSweepExpiredReleasesOldRecords(t *testing.T) {
	dir := t.TempDir()
	store := newTestStore(t, Config{Dir: dir, MaxRetention: 20 * time.Millisecond})

	receipt, err := store.Quarantine(stageFile(t, []byte("payload")), "test", nil)
	require.NoError(t, err)

	require.Empty(t, store.SweepExpired())

	time.Sleep(30 * time.Millisecond)
	released := store.SweepExpired()
	require.Equal(t, []string{receipt.ID}, released)
	require.Empty(t, binFiles(t, dir))
}

func TestTotalSize(t *testing.T) {
	store := newTestStore(t, Config{})
	_, err := store.Quarantine(stageFile(t, bytes.Repeat([]byte("a"), 40)), "a", nil)
	require.NoError(t, err)
	_, err = store.Quarantine(stageFile(t, bytes.Repeat([]byte("b"), 25)), "b", nil)
	require.NoError(t, err)

	total, err := store.TotalSize()
	require.NoError(t, err)
	require.Equal(t, int64(65), total)
}
