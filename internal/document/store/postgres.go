package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"scholarship/internal/document/models"
	id "scholarship/pkg/domain"
	"scholarship/pkg/platform/sentinel"
	txcontext "scholarship/pkg/platform/tx"
)

const documentColumns = `id, application_id, type, locator, file_name, verification_status,
	issued_at, expires_at, reupload_required, remarks, verified_by, verified_at, created_at, updated_at`

// PostgresStore persists documents in the documents table. Calls made inside
// a transaction carried in ctx join that transaction.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreateMany(ctx context.Context, docs []*models.Document) error {
	if len(docs) == 0 {
		return nil
	}
	return txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		q := txcontext.Pick(ctx, s.db)
		for _, d := range docs {
			_, err := q.ExecContext(ctx, `
				INSERT INTO documents (`+documentColumns+`)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
				uuid.UUID(d.ID), uuid.UUID(d.ApplicationID), string(d.Type), d.Locator, d.FileName,
				string(d.VerificationStatus), d.IssuedAt, d.ExpiresAt, d.ReuploadRequired, d.Remarks,
				nullableUser(d.VerifiedBy), d.VerifiedAt, d.CreatedAt, d.UpdatedAt,
			)
			if err != nil {
				return fmt.Errorf("insert document: %w", err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) FindByID(ctx context.Context, docID id.DocumentID) (*models.Document, error) {
	row := txcontext.Pick(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, uuid.UUID(docID))
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find document: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) ListByApplication(ctx context.Context, appID id.ApplicationID) ([]*models.Document, error) {
	rows, err := txcontext.Pick(ctx, s.db).QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE application_id = $1 ORDER BY created_at, id`,
		uuid.UUID(appID))
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return collect(rows)
}

// ListExpired pages approved documents past their expiry in (expires_at, id)
// order, starting after the cursor.
func (s *PostgresStore) ListExpired(ctx context.Context, now time.Time, after *models.ExpiryCursor, limit int) ([]*models.Document, error) {
	if limit <= 0 {
		limit = 1000
	}
	query := `
		SELECT ` + documentColumns + ` FROM documents
		WHERE verification_status = $1 AND expires_at IS NOT NULL AND expires_at < $2`
	args := []any{string(models.StatusApproved), now}
	if after != nil {
		query += ` AND (expires_at, id) > ($3, $4)`
		args = append(args, after.ExpiresAt, uuid.UUID(after.ID))
	}
	query += fmt.Sprintf(` ORDER BY expires_at, id LIMIT %d`, limit)
	rows, err := txcontext.Pick(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list expired documents: %w", err)
	}
	return collect(rows)
}

// Execute locks the row with SELECT ... FOR UPDATE, applies validate and
// mutate, and writes the result back in the same transaction.
func (s *PostgresStore) Execute(
	ctx context.Context,
	docID id.DocumentID,
	validate func(*models.Document) error,
	mutate func(*models.Document),
) (*models.Document, error) {
	var out *models.Document
	err := txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		q := txcontext.Pick(ctx, s.db)
		d, err := scanDocument(q.QueryRowContext(ctx,
			`SELECT `+documentColumns+` FROM documents WHERE id = $1 FOR UPDATE`, uuid.UUID(docID)))
		if errors.Is(err, sql.ErrNoRows) {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock document: %w", err)
		}
		if err := validate(d); err != nil {
			return err
		}
		mutate(d)
		_, err = q.ExecContext(ctx, `
			UPDATE documents SET
				locator = $2, file_name = $3, verification_status = $4, issued_at = $5, expires_at = $6,
				reupload_required = $7, remarks = $8, verified_by = $9, verified_at = $10, updated_at = $11
			WHERE id = $1`,
			uuid.UUID(d.ID), d.Locator, d.FileName, string(d.VerificationStatus), d.IssuedAt, d.ExpiresAt,
			d.ReuploadRequired, d.Remarks, nullableUser(d.VerifiedBy), d.VerifiedAt, d.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("update document: %w", err)
		}
		out = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) DeleteByApplication(ctx context.Context, appID id.ApplicationID) error {
	_, err := txcontext.Pick(ctx, s.db).ExecContext(ctx,
		`DELETE FROM documents WHERE application_id = $1`, uuid.UUID(appID))
	if err != nil {
		return fmt.Errorf("delete documents: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var (
		d                          models.Document
		docID, appID               uuid.UUID
		docType, status            string
		issuedAt, expiresAt, verAt sql.NullTime
		verifiedBy                 uuid.NullUUID
	)
	if err := row.Scan(&docID, &appID, &docType, &d.Locator, &d.FileName, &status,
		&issuedAt, &expiresAt, &d.ReuploadRequired, &d.Remarks, &verifiedBy, &verAt,
		&d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.ID = id.DocumentID(docID)
	d.ApplicationID = id.ApplicationID(appID)
	d.Type = models.Type(docType)
	d.VerificationStatus = models.VerificationStatus(status)
	d.IssuedAt = nullTime(issuedAt)
	d.ExpiresAt = nullTime(expiresAt)
	d.VerifiedAt = nullTime(verAt)
	if verifiedBy.Valid {
		by := id.UserID(verifiedBy.UUID)
		d.VerifiedBy = &by
	}
	return &d, nil
}

func collect(rows *sql.Rows) ([]*models.Document, error) {
	defer rows.Close()
	var out []*models.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullableUser(u *id.UserID) uuid.NullUUID {
	if u == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*u), Valid: true}
}
