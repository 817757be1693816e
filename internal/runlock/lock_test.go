package runlock

import (
	"context"
	"testing"
	"time"

	"github.com/jobsift/jobsift/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilLockerAlwaysGrants(t *testing.T) {
	var l *Locker

	token, ok, err := l.TryLock(context.Background(), "scrape_run:abc", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, token)

	assert.NoError(t, l.Release(context.Background(), "scrape_run:abc", token))
}

func TestNewRedisClient_DisabledWithoutAddr(t *testing.T) {
	assert.Nil(t, NewRedisClient(config.Config{}))
	assert.Nil(t, NewLocker(nil))
}
