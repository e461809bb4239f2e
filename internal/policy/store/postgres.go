package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"scholarship/internal/application/ports"
	"scholarship/internal/policy"
	id "scholarship/pkg/domain"
	txcontext "scholarship/pkg/platform/tx"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Register(ctx context.Context, kind policy.FingerprintKind, fingerprint string, studentID id.UserID, now time.Time) ([]id.UserID, error) {
	q := txcontext.Pick(ctx, s.db)
	if _, err := q.ExecContext(ctx, `
		INSERT INTO policy_fingerprints (kind, fingerprint, student_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (kind, fingerprint, student_id) DO NOTHING`,
		string(kind), fingerprint, uuid.UUID(studentID), now); err != nil {
		return nil, fmt.Errorf("insert fingerprint: %w", err)
	}
	rows, err := q.QueryContext(ctx, `
		SELECT student_id FROM policy_fingerprints
		WHERE kind = $1 AND fingerprint = $2 AND student_id <> $3
		ORDER BY created_at`,
		string(kind), fingerprint, uuid.UUID(studentID))
	if err != nil {
		return nil, fmt.Errorf("query fingerprints: %w", err)
	}
	defer rows.Close()
	var others []id.UserID
	for rows.Next() {
		var u uuid.UUID
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan fingerprint: %w", err)
		}
		others = append(others, id.UserID(u))
	}
	return others, rows.Err()
}

func (s *PostgresStore) Save(ctx context.Context, alert ports.PolicyAlert) error {
	_, err := txcontext.Pick(ctx, s.db).ExecContext(ctx, `
		INSERT INTO policy_alerts (id, student_id, kind, detail, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		uuid.UUID(alert.ID), uuid.UUID(alert.StudentID), string(alert.Kind), alert.Detail, alert.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert policy alert: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByStudent(ctx context.Context, studentID id.UserID) ([]ports.PolicyAlert, error) {
	rows, err := txcontext.Pick(ctx, s.db).QueryContext(ctx, `
		SELECT id, student_id, kind, detail, created_at FROM policy_alerts
		WHERE student_id = $1 ORDER BY created_at`, uuid.UUID(studentID))
	if err != nil {
		return nil, fmt.Errorf("list policy alerts: %w", err)
	}
	defer rows.Close()
	var out []ports.PolicyAlert
	for rows.Next() {
		var (
			a       ports.PolicyAlert
			alertID uuid.UUID
			student uuid.UUID
			kind    string
		)
		if err := rows.Scan(&alertID, &student, &kind, &a.Detail, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan policy alert: %w", err)
		}
		a.ID = id.AlertID(alertID)
		a.StudentID = id.UserID(student)
		a.Kind = ports.AlertKind(kind)
		out = append(out, a)
	}
	return out, rows.Err()
}
