package dedup

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNoop(t *testing.T) {
	var d Deduper = Noop{}
	for i := 0; i < 3; i++ {
		require.NoError(t, d.Mark(context.Background(), "$evt"))
		seen, err := d.Seen(context.Background(), "$evt")
		require.NoError(t, err)
		require.False(t, seen)
	}
	require.NoError(t, d.Close())
}

func TestNewRedis_BadURL(t *testing.T) {
	_, err := NewRedis(context.Background(), "not a url", 0, nil)
	require.Error(t, err)
}

func TestRedisDeduper_EmptyEventID(t *testing.T) {
	d := &RedisDeduper{}
	seen, err := d.Seen(context.Background(), "")
	require.NoError(t, err)
	require.False(t, seen)
	require.NoError(t, d.Mark(context.Background(), ""))
}
