package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"scholarship/internal/profile/models"
	id "scholarship/pkg/domain"
	"scholarship/pkg/platform/sentinel"
	txcontext "scholarship/pkg/platform/tx"
)

const profileColumns = `id, student_id, full_name, identity_number, bank_account_number, category,
	annual_income, academic_percentage, district, institution, course, created_at, updated_at`

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, p *models.Profile) error {
	_, err := txcontext.Pick(ctx, s.db).ExecContext(ctx, `
		INSERT INTO profiles (`+profileColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		uuid.UUID(p.ID), uuid.UUID(p.StudentID), p.FullName, p.IdentityNumber, p.BankAccountNumber,
		string(p.Category), p.AnnualIncome, p.AcademicPercentage, p.District, p.Institution, p.Course,
		p.CreatedAt, p.UpdatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, profileID id.ProfileID) (*models.Profile, error) {
	var (
		p              models.Profile
		pid, studentID uuid.UUID
		category       string
	)
	err := txcontext.Pick(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = $1`, uuid.UUID(profileID),
	).Scan(&pid, &studentID, &p.FullName, &p.IdentityNumber, &p.BankAccountNumber, &category,
		&p.AnnualIncome, &p.AcademicPercentage, &p.District, &p.Institution, &p.Course,
		&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find profile: %w", err)
	}
	p.ID = id.ProfileID(pid)
	p.StudentID = id.UserID(studentID)
	p.Category = models.Category(category)
	return &p, nil
}

func (s *PostgresStore) Update(ctx context.Context, p *models.Profile) error {
	res, err := txcontext.Pick(ctx, s.db).ExecContext(ctx, `
		UPDATE profiles SET
			full_name = $2, identity_number = $3, bank_account_number = $4, category = $5,
			annual_income = $6, academic_percentage = $7, district = $8, institution = $9,
			course = $10, updated_at = $11
		WHERE id = $1`,
		uuid.UUID(p.ID), p.FullName, p.IdentityNumber, p.BankAccountNumber, string(p.Category),
		p.AnnualIncome, p.AcademicPercentage, p.District, p.Institution, p.Course, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) Delete(ctx context.Context, profileID id.ProfileID) error {
	res, err := txcontext.Pick(ctx, s.db).ExecContext(ctx, `DELETE FROM profiles WHERE id = $1`, uuid.UUID(profileID))
	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
