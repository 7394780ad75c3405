package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestResponseCache_Miss(t *testing.T) {
	store := newTestStore(t)

	resp, err := store.GetResponse("nope")
	require.NoError(t, err)
	assert.Nil(t, resp)
}

func TestResponseCache_SetAndGet(t *testing.T) {
	store := newTestStore(t)

	err := store.SetResponse("abc", &CachedResponse{Model: "gemini-2.5-flash", Text: "Eiffel Tower"})
	require.NoError(t, err)

	resp, err := store.GetResponse("abc")
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, "gemini-2.5-flash", resp.Model)
	assert.Equal(t, "Eiffel Tower", resp.Text)
}

func TestResponseCache_Overwrite(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.SetResponse("abc", &CachedResponse{Model: "m", Text: "first"}))
	require.NoError(t, store.SetResponse("abc", &CachedResponse{Model: "m", Text: "second"}))

	resp, err := store.GetResponse("abc")
	require.NoError(t, err)
	assert.Equal(t, "second", resp.Text)
}

func TestUsageLog_Totals(t *testing.T) {
	store := newTestStore(t)

	entries := []*UsageEntry{
		{TelegramID: 1, Kind: "identify", Model: "m", InputTokens: 100, OutputTokens: 50, CostUSD: 0.01},
		{TelegramID: 1, Kind: "answer", Model: "m", InputTokens: 10, OutputTokens: 5, CostUSD: 0.002},
		{TelegramID: 1, Kind: "identify", Model: "m", Cached: true},
		{TelegramID: 2, Kind: "identify", Model: "m", InputTokens: 999, OutputTokens: 999, CostUSD: 1},
	}
	for _, e := range entries {
		require.NoError(t, store.RecordUsage(e))
		assert.NotEmpty(t, e.ID)
		assert.False(t, e.CreatedAt.IsZero())
	}

	totals, err := store.UsageTotals(1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), totals.Calls)
	assert.Equal(t, int64(1), totals.CachedCalls)
	assert.Equal(t, int64(110), totals.InputTokens)
	assert.Equal(t, int64(55), totals.OutputTokens)
	assert.InDelta(t, 0.012, totals.CostUSD, 1e-9)
}

func TestUsageLog_EmptyTotals(t *testing.T) {
	store := newTestStore(t)

	totals, err := store.UsageTotals(42)
	require.NoError(t, err)
	assert.Equal(t, UsageTotals{}, totals)
}

func TestNewSQLiteStore_FilePermissions(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cache.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.SetResponse("k", &CachedResponse{Model: "m", Text: "t"}))

	info, err := os.Stat(dbPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}
