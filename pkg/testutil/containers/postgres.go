//go:build integration

package containers

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresContainer wraps a testcontainers Postgres instance.
type PostgresContainer struct {
	Container testcontainers.Container
	DSN       string
	DB        *sql.DB
}

// NewPostgresContainer starts a Postgres container and opens a lib/pq pool on it.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("scholarship"),
		tcpostgres.WithUsername("scholarship"),
		tcpostgres.WithPassword("scholarship"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to open postgres: %v", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to ping postgres: %v", err)
	}

	return &PostgresContainer{
		Container: container,
		DSN:       dsn,
		DB:        db,
	}
}

// Truncate empties the given tables between tests.
func (p *PostgresContainer) Truncate(ctx context.Context, tables ...string) error {
	for _, table := range tables {
		if _, err := p.DB.ExecContext(ctx, "TRUNCATE TABLE "+table+" CASCADE"); err != nil {
			return err
		}
	}
	return nil
}

// SeedApplication inserts a minimal profile and application row so tables
// with foreign keys to applications can be exercised in isolation.
func (p *PostgresContainer) SeedApplication(ctx context.Context, appID, studentID uuid.UUID) error {
	profileID := uuid.New()
	now := time.Now().UTC()
	if _, err := p.DB.ExecContext(ctx, `
		INSERT INTO profiles (id, student_id, full_name, identity_number, bank_account_number, category,
			annual_income, academic_percentage, created_at, updated_at)
		VALUES ($1, $2, 'Seed Student', 'ID-SEED', 'ACC-SEED', 'SC', 100000, 75, $3, $3)`,
		profileID, studentID, now); err != nil {
		return err
	}
	_, err := p.DB.ExecContext(ctx, `
		INSERT INTO applications (id, student_id, profile_id, status, stage, type, year, eligibility,
			withdrawal_status, created_at, updated_at)
		VALUES ($1, $2, $3, 'submitted', 'verifier', 'new', $4, 'eligible', 'not_available', $5, $5)`,
		appID, studentID, profileID, now.Year(), now)
	return err
}
