package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"scholarship/internal/application/models"
	id "scholarship/pkg/domain"
	"scholarship/pkg/platform/sentinel"
	txcontext "scholarship/pkg/platform/tx"
)

var applicationColumns = []string{
	"id", "student_id", "profile_id", "status", "query_reason", "stage", "type", "year",
	"eligibility", "fraud_score", "scholarship_amount", "withdrawn_amount", "withdrawal_status",
	"approved_at", "queries", "district", "version", "created_at", "updated_at",
}

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// PostgresStore persists applications. Writes join the transaction carried
// in ctx when present.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, app *models.Application) error {
	queries, err := json.Marshal(app.Queries)
	if err != nil {
		return fmt.Errorf("encode queries: %w", err)
	}
	query, args, err := psql.Insert("applications").Columns(applicationColumns...).Values(
		uuid.UUID(app.ID), uuid.UUID(app.StudentID), uuid.UUID(app.ProfileID), string(app.Status),
		string(app.QueryReason), string(app.Stage), string(app.Type), app.Year, string(app.Eligibility),
		app.FraudScore, app.ScholarshipAmount, app.WithdrawnAmount, string(app.WithdrawalStatus),
		app.ApprovedAt, string(queries), app.District, app.Version, app.CreatedAt, app.UpdatedAt,
	).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := txcontext.Pick(ctx, s.db).ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert application: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, appID id.ApplicationID) (*models.Application, error) {
	query, args, err := psql.Select(applicationColumns...).From("applications").
		Where(squirrel.Eq{"id": uuid.UUID(appID)}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	app, err := scanApplication(txcontext.Pick(ctx, s.db).QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find application: %w", err)
	}
	return app, nil
}

func (s *PostgresStore) ListByStudent(ctx context.Context, studentID id.UserID) ([]*models.Application, error) {
	query, args, err := psql.Select(applicationColumns...).From("applications").
		Where(squirrel.Eq{"student_id": uuid.UUID(studentID)}).
		OrderBy("created_at DESC", "year DESC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	rows, err := txcontext.Pick(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	return collect(rows)
}

func (s *PostgresStore) Queue(ctx context.Context, filter models.QueueFilter) ([]*models.Application, int, error) {
	filter = filter.Normalize()
	where := queueConditions(filter)

	countSQL, countArgs, err := psql.Select("COUNT(*)").From("applications").Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count: %w", err)
	}
	q := txcontext.Pick(ctx, s.db)
	var total int
	if err := q.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count queue: %w", err)
	}

	pageSQL, pageArgs, err := psql.Select(applicationColumns...).From("applications").Where(where).
		OrderBy("created_at", "id").
		Limit(uint64(filter.Limit)).Offset(uint64(filter.Offset)).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build queue: %w", err)
	}
	rows, err := q.QueryContext(ctx, pageSQL, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("query queue: %w", err)
	}
	apps, err := collect(rows)
	if err != nil {
		return nil, 0, err
	}
	if apps == nil {
		apps = []*models.Application{}
	}
	return apps, total, nil
}

func queueConditions(f models.QueueFilter) squirrel.And {
	where := squirrel.And{}
	if f.Stage != "" {
		where = append(where, squirrel.Eq{"stage": string(f.Stage)})
	}
	if f.Status != "" {
		where = append(where, squirrel.Eq{"status": string(f.Status)})
	}
	if f.District != "" {
		where = append(where, squirrel.Eq{"district": f.District})
	}
	if f.Year != 0 {
		where = append(where, squirrel.Eq{"year": f.Year})
	}
	return where
}

// Execute locks the row with SELECT ... FOR UPDATE, runs validate and mutate,
// and writes back guarded by the version read under the lock. A concurrent
// writer that slipped past the lock surfaces as sentinel.ErrStaleVersion.
func (s *PostgresStore) Execute(
	ctx context.Context,
	appID id.ApplicationID,
	validate func(*models.Application) error,
	mutate func(*models.Application),
) (*models.Application, error) {
	var out *models.Application
	err := txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		q := txcontext.Pick(ctx, s.db)
		query, args, err := psql.Select(applicationColumns...).From("applications").
			Where(squirrel.Eq{"id": uuid.UUID(appID)}).Suffix("FOR UPDATE").ToSql()
		if err != nil {
			return fmt.Errorf("build lock: %w", err)
		}
		app, err := scanApplication(q.QueryRowContext(ctx, query, args...))
		if errors.Is(err, sql.ErrNoRows) {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock application: %w", err)
		}
		if err := validate(app); err != nil {
			return err
		}
		previous := app.Version
		mutate(app)
		app.Version = previous + 1

		queries, err := json.Marshal(app.Queries)
		if err != nil {
			return fmt.Errorf("encode queries: %w", err)
		}
		update, uargs, err := psql.Update("applications").SetMap(map[string]any{
			"status":             string(app.Status),
			"query_reason":       string(app.QueryReason),
			"stage":              string(app.Stage),
			"eligibility":        string(app.Eligibility),
			"fraud_score":        app.FraudScore,
			"scholarship_amount": app.ScholarshipAmount,
			"withdrawn_amount":   app.WithdrawnAmount,
			"withdrawal_status":  string(app.WithdrawalStatus),
			"approved_at":        app.ApprovedAt,
			"queries":            string(queries),
			"district":           app.District,
			"version":            app.Version,
			"updated_at":         app.UpdatedAt,
		}).Where(squirrel.Eq{"id": uuid.UUID(app.ID), "version": previous}).ToSql()
		if err != nil {
			return fmt.Errorf("build update: %w", err)
		}
		res, err := q.ExecContext(ctx, update, uargs...)
		if err != nil {
			return fmt.Errorf("update application: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			return sentinel.ErrStaleVersion
		}
		out = app
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) Delete(ctx context.Context, appID id.ApplicationID) error {
	res, err := txcontext.Pick(ctx, s.db).ExecContext(ctx, `DELETE FROM applications WHERE id = $1`, uuid.UUID(appID))
	if err != nil {
		return fmt.Errorf("delete application: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CreateDisbursement(ctx context.Context, d *models.Disbursement) error {
	_, err := txcontext.Pick(ctx, s.db).ExecContext(ctx, `
		INSERT INTO disbursements (id, application_id, student_id, amount, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.UUID(d.ID), uuid.UUID(d.ApplicationID), uuid.UUID(d.StudentID), d.Amount, d.BalanceAfter, d.CreatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23503" {
		return sentinel.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("insert disbursement: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListDisbursements(ctx context.Context, appID id.ApplicationID) ([]*models.Disbursement, error) {
	rows, err := txcontext.Pick(ctx, s.db).QueryContext(ctx, `
		SELECT id, application_id, student_id, amount, balance_after, created_at
		FROM disbursements WHERE application_id = $1 ORDER BY created_at, id`, uuid.UUID(appID))
	if err != nil {
		return nil, fmt.Errorf("list disbursements: %w", err)
	}
	defer rows.Close()
	out := []*models.Disbursement{}
	for rows.Next() {
		var (
			d                     models.Disbursement
			dID, appUUID, student uuid.UUID
		)
		if err := rows.Scan(&dID, &appUUID, &student, &d.Amount, &d.BalanceAfter, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan disbursement: %w", err)
		}
		d.ID = id.DisbursementID(dID)
		d.ApplicationID = id.ApplicationID(appUUID)
		d.StudentID = id.UserID(student)
		out = append(out, &d)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApplication(row rowScanner) (*models.Application, error) {
	var (
		app                                                  models.Application
		appID, studentID, profileID                          uuid.UUID
		status, reason, stage, appType, eligibility, wStatus string
		fraud                                                sql.NullInt64
		approvedAt                                           sql.NullTime
		queries                                              []byte
	)
	if err := row.Scan(&appID, &studentID, &profileID, &status, &reason, &stage, &appType, &app.Year,
		&eligibility, &fraud, &app.ScholarshipAmount, &app.WithdrawnAmount, &wStatus,
		&approvedAt, &queries, &app.District, &app.Version, &app.CreatedAt, &app.UpdatedAt); err != nil {
		return nil, err
	}
	app.ID = id.ApplicationID(appID)
	app.StudentID = id.UserID(studentID)
	app.ProfileID = id.ProfileID(profileID)
	app.Status = models.Status(status)
	app.QueryReason = models.QueryReason(reason)
	app.Stage = models.Stage(stage)
	app.Type = models.Type(appType)
	app.Eligibility = models.EligibilityStatus(eligibility)
	app.WithdrawalStatus = models.WithdrawalStatus(wStatus)
	if fraud.Valid {
		score := int(fraud.Int64)
		app.FraudScore = &score
	}
	if approvedAt.Valid {
		at := approvedAt.Time
		app.ApprovedAt = &at
	}
	if err := json.Unmarshal(queries, &app.Queries); err != nil {
		return nil, fmt.Errorf("decode queries: %w", err)
	}
	return &app, nil
}

func collect(rows *sql.Rows) ([]*models.Application, error) {
	defer rows.Close()
	var out []*models.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		out = append(out, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applications: %w", err)
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
