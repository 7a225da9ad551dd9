package redis

import (
	"context"
	"os"
	"testing"

	"github.com/jmgilman/go/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ParsesURL(t *testing.T) {
	tests := []struct {
		url    string
		addr   string
		db     int
		prefix string
	}{
		{"redis://localhost:6379/0", "localhost:6379", 0, DefaultPrefix},
		{"redis://cache:6380/3?prefix=app:", "cache:6380", 3, "app:"},
		{"redis://cache:6380/2?prefix=", "cache:6380", 2, ""},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			d, err := New(tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.addr, d.opt.Addr)
			assert.Equal(t, tt.db, d.opt.DB)
			assert.Equal(t, tt.prefix, d.prefix)
			assert.Equal(t, 1, d.opt.PoolSize)
		})
	}
}

func TestNew_InvalidURL(t *testing.T) {
	_, err := New("redis://localhost:6379/notadb")
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidConfig, errors.GetCode(err))
}

func TestWithPrefix(t *testing.T) {
	d, err := New("redis://localhost:6379", WithPrefix("x:"))
	require.NoError(t, err)
	assert.Equal(t, "x:", d.prefix)
	assert.Equal(t, "x:k", (&conn{prefix: d.prefix}).key("k"))
}

// Runs against a live server when KVTIER_TEST_REDIS holds a URL.
func TestDialer_Live(t *testing.T) {
	url := os.Getenv("KVTIER_TEST_REDIS")
	if url == "" {
		t.Skip("KVTIER_TEST_REDIS not set")
	}
	ctx := context.Background()

	d, err := New(url, WithPrefix("kvtier-test:"))
	require.NoError(t, err)
	require.NoError(t, d.Bootstrap(ctx))

	c, err := d.Dial(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(ctx) })

	_, _ = c.Remove(ctx, "live-key")

	_, found, err := c.Get(ctx, "live-key")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Set(ctx, "live-key", "v"))
	v, found, err := c.Get(ctx, "live-key")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "v", v)

	existed, err := c.Remove(ctx, "live-key")
	require.NoError(t, err)
	assert.True(t, existed)
}
