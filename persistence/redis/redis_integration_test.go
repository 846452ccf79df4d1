//go:build integration

package redis

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/goadesign/agentic-core/agentic/core"
)

func TestStoreSaveAndLoadMessagesAgainstRealRedis(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	container, err := redis.Run(ctx, "redis:7")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := goredis.ParseURL(uri)
	require.NoError(t, err)
	client := goredis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	store, err := New(Options{Client: client})
	require.NoError(t, err)

	msgs := []core.Message{
		{Role: core.RoleUser, Content: "hello"},
		{Role: core.RoleAssistant, Content: "hi there"},
	}
	require.NoError(t, store.SaveMessages(ctx, "session-1", msgs))

	loaded, err := store.LoadMessages(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, msgs, loaded)
}

func TestStoreLoadMessagesUnknownSessionReturnsNil(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	container, err := redis.Run(ctx, "redis:7")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := goredis.ParseURL(uri)
	require.NoError(t, err)
	client := goredis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	store, err := New(Options{Client: client})
	require.NoError(t, err)

	loaded, err := store.LoadMessages(ctx, "no-such-session")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}
