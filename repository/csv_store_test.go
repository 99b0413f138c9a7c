package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pennytrack/apperrors"
	"pennytrack/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCSVStore(t *testing.T) (*CSVStore, string, string) {
	t.Helper()
	dir := t.TempDir()
	tracked := filepath.Join(dir, "data", "tracked_skus.csv")
	history := filepath.Join(dir, "data", "price_history.csv")
	store, err := NewCSVStore(tracked, history)
	require.NoError(t, err)
	return store, tracked, history
}

func TestCSVStoreMissingFilesAreEmpty(t *testing.T) {
	store, _, _ := newTestCSVStore(t)
	ctx := context.Background()

	items, err := store.ListTracked(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)

	obs, err := store.History(ctx, "1001")
	require.NoError(t, err)
	assert.Empty(t, obs)
}

func TestCSVStoreUpsertCandidates(t *testing.T) {
	store, trackedPath, _ := newTestCSVStore(t)
	ctx := context.Background()

	n, err := store.UpsertCandidates(ctx, []models.ClearanceCandidate{
		{SKU: "1001", Name: "Spruce Tree", StoreID: "0121"},
		{SKU: "1002", Name: "Fir Tree", StoreID: "0121"},
		{SKU: "1001", Name: "Spruce Tree again", StoreID: "0121"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, store.ApplyFetchResult(ctx, "1001", decimal.RequireFromString("19.03"), time.Now()))

	n, err = store.UpsertCandidates(ctx, []models.ClearanceCandidate{
		{SKU: "1001", Name: "Renamed", StoreID: "9999"},
		{SKU: "1003", Name: "Wreath", StoreID: "0121"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	items, err := store.ListTracked(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "Spruce Tree", items[0].Name, "existing records are untouched")
	assert.Equal(t, "0121", items[0].StoreID)
	assert.True(t, items[0].HasPrice())
	assert.False(t, items[2].HasPrice())
	assert.Nil(t, items[2].LastUpdated)

	raw, err := os.ReadFile(trackedPath)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "sku,store_id,name,last_price,last_updated\n")
	assert.Contains(t, string(raw), "1003,0121,Wreath,,\n")
}

func TestCSVStoreApplyFetchResult(t *testing.T) {
	store, _, historyPath := newTestCSVStore(t)
	ctx := context.Background()

	added, err := store.AddTracked(ctx, models.TrackedItem{SKU: "1001", StoreID: "0121", Name: "Spruce Tree"})
	require.NoError(t, err)
	assert.True(t, added)

	first := time.Date(2025, 12, 1, 9, 30, 15, 500, time.Local)
	second := first.Add(-24 * time.Hour)
	require.NoError(t, store.ApplyFetchResult(ctx, "1001", decimal.RequireFromString("49.98"), first))
	require.NoError(t, store.ApplyFetchResult(ctx, "1001", decimal.RequireFromString("37.03"), second))

	item, err := store.GetTracked(ctx, "1001")
	require.NoError(t, err)
	assert.True(t, item.LastPrice.Decimal.Equal(decimal.RequireFromString("37.03")))
	require.NotNil(t, item.LastUpdated)
	assert.True(t, item.LastUpdated.Equal(second.Truncate(time.Second)))

	obs, err := store.History(ctx, "1001")
	require.NoError(t, err)
	require.Len(t, obs, 2)
	// storage order is insertion order, not time order
	assert.True(t, obs[0].Timestamp.After(obs[1].Timestamp))
	models.SortObservations(obs)
	assert.True(t, obs[0].Price.Equal(decimal.RequireFromString("37.03")))

	raw, err := os.ReadFile(historyPath)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "sku,price,timestamp\n1001,49.98,2025-12-01 09:30:15\n")
}

func TestCSVStoreApplyFetchResultUntracked(t *testing.T) {
	store, _, _ := newTestCSVStore(t)
	ctx := context.Background()

	err := store.ApplyFetchResult(ctx, "404404", decimal.RequireFromString("1.00"), time.Now())
	assert.True(t, apperrors.IsNotFound(err))

	obs, err := store.History(ctx, "404404")
	require.NoError(t, err)
	assert.Empty(t, obs)
}

func TestCSVStoreApplyFetchResultHistoryFailure(t *testing.T) {
	dir := t.TempDir()
	historyDir := filepath.Join(dir, "price_history.csv")
	require.NoError(t, os.Mkdir(historyDir, 0755))
	store, err := NewCSVStore(filepath.Join(dir, "tracked_skus.csv"), historyDir)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.AddTracked(ctx, models.TrackedItem{SKU: "1001", Name: "Spruce Tree"})
	require.NoError(t, err)

	err = store.ApplyFetchResult(ctx, "1001", decimal.RequireFromString("49.98"), time.Now())
	require.Error(t, err)
	assert.Equal(t, apperrors.KindStoreIO, apperrors.KindOf(err))

	item, err := store.GetTracked(ctx, "1001")
	require.NoError(t, err)
	assert.False(t, item.LastPrice.Valid)
	assert.Nil(t, item.LastUpdated)
}

func TestCSVStoreAddAndRemove(t *testing.T) {
	store, _, _ := newTestCSVStore(t)
	ctx := context.Background()

	added, err := store.AddTracked(ctx, models.TrackedItem{SKU: "1001", Name: "Spruce Tree"})
	require.NoError(t, err)
	assert.True(t, added)

	added, err = store.AddTracked(ctx, models.TrackedItem{SKU: "1001", Name: "Duplicate"})
	require.NoError(t, err)
	assert.False(t, added)

	require.NoError(t, store.RemoveTracked(ctx, "1001"))
	assert.True(t, apperrors.IsNotFound(store.RemoveTracked(ctx, "1001")))

	_, err = store.GetTracked(ctx, "1001")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestCSVStoreReadsLegacyFiles(t *testing.T) {
	store, trackedPath, historyPath := newTestCSVStore(t)
	ctx := context.Background()

	// column order differs and one column is missing
	require.NoError(t, os.WriteFile(trackedPath, []byte(
		"name,sku,last_price\n"+
			"Spruce Tree,1001,19.02\n"+
			"Fir Tree,1002,\n"+
			",,\n"), 0644))
	require.NoError(t, os.WriteFile(historyPath, []byte(
		"sku,price,timestamp\n"+
			"1001,24.99,2025-11-10 08:00:00\n"+
			"1001,not-a-price,2025-11-11 08:00:00\n"+
			"1002,9.99,2025-11-12 08:00:00\n"+
			"1001,19.02,2025-12-01T08:00:00Z\n"), 0644))

	items, err := store.ListTracked(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "1001", items[0].SKU)
	assert.True(t, items[0].LastPrice.Decimal.Equal(decimal.RequireFromString("19.02")))
	assert.Empty(t, items[0].StoreID)
	assert.False(t, items[1].HasPrice())

	obs, err := store.History(ctx, "1001")
	require.NoError(t, err)
	require.Len(t, obs, 2)
	assert.True(t, obs[0].Price.Equal(decimal.RequireFromString("24.99")))
	assert.True(t, obs[1].Price.Equal(decimal.RequireFromString("19.02")))
}
