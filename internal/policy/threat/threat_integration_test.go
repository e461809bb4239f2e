//go:build integration

package threat

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	id "scholarship/pkg/domain"
	"scholarship/pkg/testutil/containers"
)

func TestRedisElevate(t *testing.T) {
	rc := containers.GetManager().GetRedis(t)
	ctx := context.Background()
	s := NewRedis(rc.Client, time.Minute)
	student := id.UserID(uuid.New())

	for want := int64(1); want <= 3; want++ {
		got, err := s.Elevate(ctx, student, "test")
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	level, err := s.Level(ctx, student)
	require.NoError(t, err)
	require.Equal(t, int64(3), level)

	ttl, err := rc.Client.TTL(ctx, keyPrefix+student.String()).Result()
	require.NoError(t, err)
	require.Greater(t, ttl, time.Duration(0))
}
