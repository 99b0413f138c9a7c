package publisher

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"pennytrack/models"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisPublisher(t *testing.T) {
	ctx := context.Background()
	const stream = "pennytrack_test_alerts"

	publisher := NewRedisPublisher(ctx, "localhost:6379", 0, stream, 100)
	defer publisher.Close()

	if err := publisher.Ping(); err != nil {
		t.Skip("Redis is not available, skipping test")
	}

	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 0})
	defer client.Close()
	require.NoError(t, client.Del(ctx, stream).Err())

	alert := Alert{
		SKU:     "205594063",
		Name:    "Pre-Lit Spruce Tree",
		StoreID: "0121",
		Price:   decimal.RequireFromString("19.02"),
		Classification: models.ClassificationResult{
			Probability: 0.95,
			AlertLevel:  models.AlertExtreme,
			Confidence:  "Extreme Alert",
		},
		ObservedAt: time.Date(2025, 12, 1, 8, 0, 0, 0, time.UTC),
	}
	require.NoError(t, publisher.Publish(alert))
	require.NoError(t, publisher.TrimStreams())

	entries, err := client.XRange(ctx, stream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	values := entries[0].Values
	assert.Equal(t, "205594063", values[FieldSKU])
	assert.Equal(t, "extreme", values[FieldLevel])

	var decoded Alert
	require.NoError(t, json.Unmarshal([]byte(values[FieldAlert].(string)), &decoded))
	assert.Equal(t, alert.SKU, decoded.SKU)
	assert.True(t, decoded.Price.Equal(alert.Price))
	assert.False(t, decoded.PreviousPrice.Valid)

	require.NoError(t, client.Del(ctx, stream).Err())
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.Publish(Alert{SKU: "1"}))
	assert.NoError(t, p.TrimStreams())
	assert.NoError(t, p.Close())
}
