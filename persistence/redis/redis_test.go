package redis

import (
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsNilClient(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestNewAppliesDefaults(t *testing.T) {
	s, err := New(Options{Client: redis.NewClient(&redis.Options{})})
	require.NoError(t, err)
	assert.Equal(t, "agentic:history:", s.prefix)
	assert.Equal(t, DefaultTTL, s.ttl)
}

func TestNewHonorsExplicitOptions(t *testing.T) {
	s, err := New(Options{Client: redis.NewClient(&redis.Options{}), KeyPrefix: "custom:", TTL: time.Minute})
	require.NoError(t, err)
	assert.Equal(t, "custom:", s.prefix)
	assert.Equal(t, time.Minute, s.ttl)
}

func TestKeyAppliesPrefix(t *testing.T) {
	s, err := New(Options{Client: redis.NewClient(&redis.Options{}), KeyPrefix: "p:"})
	require.NoError(t, err)
	assert.Equal(t, "p:session-1", s.key("session-1"))
}
