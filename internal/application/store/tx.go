package store

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"slices"
	"sync"
	"time"

	dErrors "scholarship/pkg/domain-errors"
	txcontext "scholarship/pkg/platform/tx"
)

// numShards spreads lock keys so unrelated applications rarely contend.
const numShards = 128

const defaultTxTimeout = 5 * time.Second

// ShardedTx serializes work per lock key using a fixed set of mutexes. It is
// the in-memory counterpart of PostgresTx: it provides isolation but no
// rollback.
type ShardedTx struct {
	shards  [numShards]sync.Mutex
	timeout time.Duration
}

func NewShardedTx(timeout time.Duration) *ShardedTx {
	if timeout <= 0 {
		timeout = defaultTxTimeout
	}
	return &ShardedTx{timeout: timeout}
}

// RunInTx holds the shard of every key while fn runs. Shards are taken in
// ascending order and deduplicated, so overlapping key sets cannot deadlock.
func (t *ShardedTx) RunInTx(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	ctx, cancel := withTimeout(ctx, t.timeout)
	defer cancel()

	shards := make([]int, 0, len(keys))
	for _, k := range keys {
		shards = append(shards, int(hashKey(k)%numShards))
	}
	slices.Sort(shards)
	shards = slices.Compact(shards)
	for _, i := range shards {
		t.shards[i].Lock()
	}
	defer func() {
		for i := len(shards) - 1; i >= 0; i-- {
			t.shards[shards[i]].Unlock()
		}
	}()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	return fn(ctx)
}

// PostgresTx opens a transaction and takes a transaction-scoped advisory lock
// per key before running fn. Stores called with the returned context join
// the transaction.
type PostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPostgresTx(db *sql.DB, timeout time.Duration) *PostgresTx {
	if timeout <= 0 {
		timeout = defaultTxTimeout
	}
	return &PostgresTx{db: db, timeout: timeout}
}

func (t *PostgresTx) RunInTx(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	ctx, cancel := withTimeout(ctx, t.timeout)
	defer cancel()

	sorted := slices.Clone(keys)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	return txcontext.Run(ctx, t.db, func(txCtx context.Context) error {
		q := txcontext.Pick(txCtx, t.db)
		for _, k := range sorted {
			if _, err := q.ExecContext(txCtx, `SELECT pg_advisory_xact_lock(hashtext($1))`, k); err != nil {
				return fmt.Errorf("advisory lock %s: %w", k, err)
			}
		}
		return fn(txCtx)
	})
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

func hashKey(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}
