package redis

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFill(t *testing.T) {
	id := uuid.New()
	at := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	fill, err := decodeFill([]byte(`{"order_id":"` + id.String() + `","filled_notional":250.5,"at":"` + at.Format(time.RFC3339) + `"}`))
	require.NoError(t, err)
	assert.Equal(t, id, fill.OrderID)
	assert.InDelta(t, 250.5, fill.FilledNotional, 1e-9)
	assert.True(t, fill.At.Equal(at))
}

func TestDecodeFillDefaultsMissingTimestamp(t *testing.T) {
	id := uuid.New()
	fill, err := decodeFill([]byte(`{"order_id":"` + id.String() + `","filled_notional":10}`))
	require.NoError(t, err)
	assert.False(t, fill.At.IsZero())
}

func TestDecodeFillRejectsBadPayloads(t *testing.T) {
	cases := map[string]string{
		"not json":          `{`,
		"bad order id":      `{"order_id":"nope","filled_notional":1}`,
		"negative notional": `{"order_id":"` + uuid.NewString() + `","filled_notional":-5}`,
	}
	for name, payload := range cases {
		_, err := decodeFill([]byte(payload))
		assert.Error(t, err, name)
	}
}
