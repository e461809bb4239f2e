package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	id "scholarship/pkg/domain"
)

func TestAccessorsDefaults(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, id.Actor{}, Actor(ctx))
	assert.Empty(t, RequestID(ctx))
	_, ok := ExpectedVersion(ctx)
	assert.False(t, ok)
	assert.WithinDuration(t, time.Now(), Now(ctx), time.Second)
}

func TestAccessorsRoundTrip(t *testing.T) {
	actor := id.Actor{ID: id.UserID(uuid.New()), Role: id.RoleVerifier}
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	ctx := WithActor(context.Background(), actor)
	ctx = WithTime(ctx, fixed)
	ctx = WithExpectedVersion(ctx, 7)
	ctx = WithClientMetadata(ctx, "10.0.0.1", "curl/8.0")

	assert.Equal(t, actor, Actor(ctx))
	assert.Equal(t, actor.ID, UserID(ctx))
	assert.Equal(t, fixed, Now(ctx))
	v, ok := ExpectedVersion(ctx)
	assert.True(t, ok)
	assert.Equal(t, int64(7), v)
	assert.Equal(t, "10.0.0.1", ClientIP(ctx))
	assert.Equal(t, "curl/8.0", UserAgent(ctx))
}
