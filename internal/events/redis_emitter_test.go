package events

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisEmitterAppendsToStream(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	em := NewRedisEmitter(client, "", nil)
	em.Emit(context.Background(), New(RouteComputed, map[string]any{
		"input_token":     "wsol",
		"output_token":    "usdc",
		"expected_output": uint64(992512500),
	}))
	em.Emit(context.Background(), New(HopExecuted, map[string]any{"hop_index": 0}))

	entries, err := client.XRange(context.Background(), DefaultStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, string(RouteComputed), entries[0].Values["type"])
	assert.Contains(t, entries[0].Values["payload"], "992512500")
	assert.Equal(t, string(HopExecuted), entries[1].Values["type"])
}

func TestRedisEmitterSwallowsBackendFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mr.Close()

	em := NewRedisEmitter(client, "audit", nil)
	// Must not panic or block past its timeout.
	em.Emit(context.Background(), New(ArbitrageExecuted, nil))
}

func TestMemoryEmitter(t *testing.T) {
	m := NewMemoryEmitter()
	m.Emit(context.Background(), New(SandwichAttackDetected, map[string]any{"risk_score": 700}))
	m.Emit(context.Background(), New(AttackReported, nil))

	assert.Len(t, m.Events(), 2)
	assert.Len(t, m.ByType(SandwichAttackDetected), 1)
	assert.Empty(t, m.ByType(RouteComputed))
}
