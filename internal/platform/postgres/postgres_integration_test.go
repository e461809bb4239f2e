//go:build integration

package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"scholarship/pkg/testutil/containers"
)

func TestMigrateIsIdempotent(t *testing.T) {
	pg := containers.GetManager().GetPostgres(t)
	ctx := context.Background()

	require.NoError(t, Migrate(ctx, pg.DB))
	require.NoError(t, Migrate(ctx, pg.DB))

	var n int
	require.NoError(t, pg.DB.QueryRowContext(ctx,
		`SELECT count(*) FROM information_schema.tables WHERE table_name IN ('applications','documents','profiles','outbox')`,
	).Scan(&n))
	require.Equal(t, 4, n)
}
