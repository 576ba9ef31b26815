package shared

import (
	"context"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetTraceID(t *testing.T) {
	t.Run("generates an id", func(t *testing.T) {
		id := GetTraceID(SetTraceID(context.Background(), ""))
		assert.Len(t, id, TraceIDLength*2)
		_, err := hex.DecodeString(id)
		assert.NoError(t, err)
	})

	t.Run("keeps an incoming id", func(t *testing.T) {
		assert.Equal(t, "host/abc-000001", GetTraceID(SetTraceID(context.Background(), "host/abc-000001")))
	})

	t.Run("replaces an oversized id", func(t *testing.T) {
		long := strings.Repeat("x", maxTraceIDLength+1)
		id := GetTraceID(SetTraceID(context.Background(), long))
		assert.NotEqual(t, long, id)
		assert.Len(t, id, TraceIDLength*2)
	})

	t.Run("ids are unique", func(t *testing.T) {
		seen := make(map[string]bool)
		for i := 0; i < 100; i++ {
			id := GetTraceID(SetTraceID(context.Background(), ""))
			assert.False(t, seen[id])
			seen[id] = true
		}
	})
}

func TestGetTraceID_Missing(t *testing.T) {
	assert.Empty(t, GetTraceID(context.Background()))
	ctx := context.WithValue(context.Background(), TraceIDKey, 42)
	assert.Empty(t, GetTraceID(ctx), "non-string values are ignored")
}
