package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"deepresearch/internal/config"
)

func TestKey_IsStableAndOrderIndependent(t *testing.T) {
	k1, err := Key("fetch", map[string]any{"url": "https://a.example", "n": 3})
	require.NoError(t, err)
	k2, err := Key("fetch", map[string]any{"n": 3, "url": "https://a.example"})
	require.NoError(t, err)
	require.Equal(t, k1, k2)
}

func TestKey_DiffersByFunctionName(t *testing.T) {
	k1, err := Key("fetch", "x")
	require.NoError(t, err)
	k2, err := Key("summarize", "x")
	require.NoError(t, err)
	require.NotEqual(t, k1, k2)
}

func TestNew_BlankURLDisablesCache(t *testing.T) {
	c, err := New(config.RedisConfig{}, 0)
	require.NoError(t, err)

	calls := 0
	compute := func(context.Context) ([]byte, error) {
		calls++
		return []byte("value"), nil
	}

	v1, err := c.GetOrCompute(context.Background(), "fn", "args", compute)
	require.NoError(t, err)
	require.Equal(t, "value", string(v1))

	v2, err := c.GetOrCompute(context.Background(), "fn", "args", compute)
	require.NoError(t, err)
	require.Equal(t, "value", string(v2))

	require.Equal(t, 2, calls, "disabled cache must call compute every time")
}
