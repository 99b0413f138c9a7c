package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSortObservations(t *testing.T) {
	base := time.Date(2025, 12, 1, 9, 0, 0, 0, time.UTC)
	obs := []PriceObservation{
		{SKU: "1001", Price: decimal.RequireFromString("9.03"), Timestamp: base.Add(48 * time.Hour)},
		{SKU: "1001", Price: decimal.RequireFromString("19.06"), Timestamp: base},
		{SKU: "1001", Price: decimal.RequireFromString("12.03"), Timestamp: base.Add(24 * time.Hour)},
	}

	SortObservations(obs)

	assert.Equal(t, "19.06", obs[0].Price.StringFixed(2))
	assert.Equal(t, "12.03", obs[1].Price.StringFixed(2))
	assert.Equal(t, "9.03", obs[2].Price.StringFixed(2))
}

func TestSummarizeHistory(t *testing.T) {
	base := time.Now()
	obs := []PriceObservation{
		{Price: decimal.RequireFromString("20.00"), Timestamp: base},
		{Price: decimal.RequireFromString("15.00"), Timestamp: base.Add(time.Hour)},
	}

	s := SummarizeHistory(obs)
	require.NotNil(t, s)
	assert.Equal(t, "15.00", s.CurrentPrice.StringFixed(2))
	assert.Equal(t, "-5.00", s.TotalChange.StringFixed(2))
	assert.Equal(t, "-25.0", s.PercentChange.StringFixed(1))
	assert.Equal(t, 2, s.DataPoints)

	assert.Nil(t, SummarizeHistory(nil))
}

func TestFormatPrice(t *testing.T) {
	cases := map[string]string{
		"0.01":      "$0.01",
		"19.03":     "$19.03",
		"1234.5":    "$1,234.50",
		"100000":    "$100,000.00",
		"1234567.8": "$1,234,567.80",
		"-5":        "-$5.00",
	}
	for in, want := range cases {
		assert.Equal(t, want, FormatPrice(decimal.RequireFromString(in)), in)
	}
}

func TestTrackedItemJSONNullPrice(t *testing.T) {
	item := TrackedItem{SKU: "1001", StoreID: "0121", Name: "Tree"}
	data, err := json.Marshal(item)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"last_price":null`)

	item.LastPrice = decimal.NewNullDecimal(decimal.RequireFromString("19.5"))
	data, err = json.Marshal(item)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"last_price":"19.50"`)
	assert.True(t, item.HasPrice())
}

func TestBatchResultFailedKeys(t *testing.T) {
	b := BatchResult{Failures: []ItemFailure{{Key: "a"}, {Key: "b"}}}
	assert.Equal(t, []string{"a", "b"}, b.FailedKeys())
}

func TestTaskLifecycle(t *testing.T) {
	task := NewTask(TaskKindSync, "")
	assert.True(t, task.IsActive())
	assert.Contains(t, task.ID, "task_")

	task.Start()
	assert.Equal(t, TaskStatusProcessing, task.Status)

	task.Complete(&BatchResult{Total: 1, Updated: 1})
	assert.True(t, task.IsCompleted())
	assert.NotNil(t, task.CompletedAt)
	assert.GreaterOrEqual(t, task.Duration(), time.Duration(0))

	failed := NewTask(TaskKindCheck, "1001")
	failed.Fail("boom")
	assert.Equal(t, TaskStatusFailed, failed.Status)
	assert.Equal(t, "boom", failed.Error)
}
