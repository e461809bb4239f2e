//go:build integration

package containers

import (
	"sync"
	"testing"
)

// Manager starts each container at most once per test binary so suites in
// the same package share them.
type Manager struct {
	pgOnce       sync.Once
	redisOnce    sync.Once
	redpandaOnce sync.Once

	postgres *PostgresContainer
	redis    *RedisContainer
	redpanda *RedpandaContainer
}

var shared = &Manager{}

// GetManager returns the process-wide container manager.
func GetManager() *Manager {
	return shared
}

func (m *Manager) GetPostgres(t *testing.T) *PostgresContainer {
	t.Helper()
	m.pgOnce.Do(func() { m.postgres = NewPostgresContainer(t) })
	return m.postgres
}

func (m *Manager) GetRedis(t *testing.T) *RedisContainer {
	t.Helper()
	m.redisOnce.Do(func() { m.redis = NewRedisContainer(t) })
	return m.redis
}

func (m *Manager) GetRedpanda(t *testing.T) *RedpandaContainer {
	t.Helper()
	m.redpandaOnce.Do(func() { m.redpanda = NewRedpandaContainer(t) })
	return m.redpanda
}
