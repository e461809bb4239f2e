//go:build integration

package store_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"scholarship/internal/application/models"
	"scholarship/internal/application/store"
	pgplatform "scholarship/internal/platform/postgres"
	id "scholarship/pkg/domain"
	"scholarship/pkg/platform/sentinel"
	"scholarship/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
	tx       *store.PostgresTx
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.Require().NoError(pgplatform.Migrate(context.Background(), s.postgres.DB))
	s.store = store.NewPostgres(s.postgres.DB)
	s.tx = store.NewPostgresTx(s.postgres.DB, 10*time.Second)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.Truncate(context.Background(), "disbursements", "documents", "applications", "profiles"))
}

// seed inserts a profile row through the seed helper, then replaces the
// seeded application with app so the aggregate under test is exact.
func (s *PostgresStoreSuite) seed(app *models.Application) {
	ctx := context.Background()
	placeholder := uuid.New()
	s.Require().NoError(s.postgres.SeedApplication(ctx, placeholder, uuid.UUID(app.StudentID)))
	var profileID uuid.UUID
	s.Require().NoError(s.postgres.DB.QueryRowContext(ctx,
		`SELECT profile_id FROM applications WHERE id = $1`, placeholder).Scan(&profileID))
	_, err := s.postgres.DB.ExecContext(ctx, `DELETE FROM applications WHERE id = $1`, placeholder)
	s.Require().NoError(err)
	app.ProfileID = id.ProfileID(profileID)
	s.Require().NoError(s.store.Create(ctx, app))
}

func (s *PostgresStoreSuite) newApp(year int) *models.Application {
	now := time.Now().UTC().Truncate(time.Microsecond)
	app, err := models.NewApplication(id.ApplicationID(uuid.New()), id.UserID(uuid.New()), id.ProfileID(uuid.New()),
		models.TypeNew, year, models.EligibilityEligible, "Pune", now)
	s.Require().NoError(err)
	return app
}

func (s *PostgresStoreSuite) TestRoundTripWithQueries() {
	ctx := context.Background()
	app := s.newApp(2026)
	s.seed(app)

	actor := id.Actor{ID: id.UserID(uuid.New()), Role: id.RoleVerifier}
	updated, err := s.store.Execute(ctx, app.ID,
		func(a *models.Application) error { return a.CanRaiseQuery() },
		func(a *models.Application) {
			a.ApplyRaiseQuery(id.QueryID(uuid.New()), actor, "income", "Income", "unclear", time.Now().UTC())
		})
	s.Require().NoError(err)
	s.Equal(int64(2), updated.Version)

	found, err := s.store.FindByID(ctx, app.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusQueryRaised, found.Status)
	s.Equal(models.QueryReasonHuman, found.QueryReason)
	s.Equal(1, found.Queries.OpenCount())
	s.Nil(found.FraudScore)

	_, err = s.store.FindByID(ctx, id.ApplicationID(uuid.New()))
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestQueueFilters() {
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		s.seed(s.newApp(2026))
	}
	s.seed(s.newApp(2025))

	page, total, err := s.store.Queue(ctx, models.QueueFilter{Stage: models.StageVerifier, Year: 2026, Limit: 2})
	s.Require().NoError(err)
	s.Equal(3, total)
	s.Len(page, 2)

	page, total, err = s.store.Queue(ctx, models.QueueFilter{Stage: models.StageAdmin})
	s.Require().NoError(err)
	s.Zero(total)
	s.Empty(page)
}

func (s *PostgresStoreSuite) TestConcurrentWithdrawalsWithLedger() {
	ctx := context.Background()
	app := s.newApp(2026)
	app.ApplyForward(app.CreatedAt)
	app.ApplyApproval(decimal.NewFromInt(100), app.CreatedAt)
	s.seed(app)

	var ok atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			amount := decimal.NewFromInt(15)
			err := s.tx.RunInTx(ctx, []string{"application:" + app.ID.String()}, func(txCtx context.Context) error {
				var balance decimal.Decimal
				updated, err := s.store.Execute(txCtx, app.ID,
					func(a *models.Application) error { return a.CanWithdraw(amount) },
					func(a *models.Application) { balance = a.ApplyWithdrawal(amount, time.Now().UTC()) })
				if err != nil {
					return err
				}
				d, err := models.NewDisbursement(id.DisbursementID(uuid.New()), updated, amount, balance, time.Now().UTC())
				if err != nil {
					return err
				}
				return s.store.CreateDisbursement(txCtx, d)
			})
			if err == nil {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()

	found, err := s.store.FindByID(ctx, app.ID)
	s.Require().NoError(err)
	s.Equal(int32(6), ok.Load())
	s.True(found.WithdrawnAmount.Equal(decimal.NewFromInt(90)))

	rows, err := s.store.ListDisbursements(ctx, app.ID)
	s.Require().NoError(err)
	s.Len(rows, 6)
}

func (s *PostgresStoreSuite) TestOpenApplicationPerYearIsUnique() {
	ctx := context.Background()
	first := s.newApp(2026)
	s.seed(first)

	dup := s.newApp(2026)
	dup.StudentID = first.StudentID
	dup.ProfileID = first.ProfileID
	s.ErrorIs(s.store.Create(ctx, dup), sentinel.ErrConflict)
}
