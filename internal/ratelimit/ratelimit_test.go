package ratelimit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"deepresearch/internal/config"
)

func TestNew_BlankURLAlwaysAllows(t *testing.T) {
	l, err := New(config.RedisConfig{})
	require.NoError(t, err)

	cfg := Config{KeyPrefix: "chat_api", MaxRequests: 1, WindowMS: 60000, MaxRetries: 3}

	res, err := l.Record(context.Background(), cfg)
	require.NoError(t, err)
	require.True(t, res.Allowed)

	res, err = l.Record(context.Background(), cfg)
	require.NoError(t, err)
	require.True(t, res.Allowed, "limiter with no backing store must degrade open")
}

func TestWindowKey_DerivationMatchesBetweenCheckAndRecord(t *testing.T) {
	require.Equal(t, windowKey("chat_api", 1000), windowKey("chat_api", 1000))
	require.NotEqual(t, windowKey("chat_api", 1000), windowKey("other", 1000))
}
