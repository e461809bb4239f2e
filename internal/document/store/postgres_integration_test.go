//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"scholarship/internal/document/models"
	"scholarship/internal/document/store"
	pgplatform "scholarship/internal/platform/postgres"
	id "scholarship/pkg/domain"
	"scholarship/pkg/platform/sentinel"
	"scholarship/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
	appID    id.ApplicationID
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
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.postgres.Truncate(ctx, "documents", "applications", "profiles"))
	appID := uuid.New()
	s.Require().NoError(s.postgres.SeedApplication(ctx, appID, uuid.New()))
	s.appID = id.ApplicationID(appID)
}

func (s *PostgresStoreSuite) newDoc(expiresAt *time.Time) *models.Document {
	now := time.Now().UTC().Truncate(time.Microsecond)
	d, err := models.NewDocument(id.DocumentID(uuid.New()), s.appID, models.TypeBankProof,
		"loc/"+uuid.NewString(), "bank.pdf", nil, expiresAt, now)
	s.Require().NoError(err)
	return d
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	doc := s.newDoc(nil)
	s.Require().NoError(s.store.CreateMany(ctx, []*models.Document{doc}))

	found, err := s.store.FindByID(ctx, doc.ID)
	s.Require().NoError(err)
	s.Equal(doc.Locator, found.Locator)
	s.Equal(models.StatusPending, found.VerificationStatus)
	s.Nil(found.VerifiedBy)

	_, err = s.store.FindByID(ctx, id.DocumentID(uuid.New()))
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestExecuteAndExpiryFilter() {
	ctx := context.Background()
	past := time.Now().UTC().Add(-time.Hour)
	doc := s.newDoc(&past)
	s.Require().NoError(s.store.CreateMany(ctx, []*models.Document{doc}))

	verifier := id.UserID(uuid.New())
	_, err := s.store.Execute(ctx, doc.ID,
		func(d *models.Document) error { return d.CanVerify() },
		func(d *models.Document) {
			d.ApplyVerification(models.DecisionApproved, "ok", verifier, time.Now().UTC())
		})
	s.Require().NoError(err)

	expired, err := s.store.ListExpired(ctx, time.Now().UTC(), nil, 10)
	s.Require().NoError(err)
	s.Require().Len(expired, 1)
	s.Equal(verifier, *expired[0].VerifiedBy)

	after, err := s.store.ListExpired(ctx, time.Now().UTC(), models.CursorAt(expired[0]), 10)
	s.Require().NoError(err)
	s.Empty(after, "the cursor excludes the document it points at")

	_, err = s.store.Execute(ctx, doc.ID,
		func(d *models.Document) error { return d.CanExpire(time.Now().UTC()) },
		func(d *models.Document) { d.ApplyExpiry(time.Now().UTC()) })
	s.Require().NoError(err)

	expired, err = s.store.ListExpired(ctx, time.Now().UTC(), nil, 10)
	s.Require().NoError(err)
	s.Empty(expired)
}
