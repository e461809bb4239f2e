package expiry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"scholarship/internal/application/models"
	"scholarship/internal/application/ports"
	"scholarship/internal/application/service"
	"scholarship/internal/application/service/mocks"
	appstore "scholarship/internal/application/store"
	docmodels "scholarship/internal/document/models"
	docstore "scholarship/internal/document/store"
	"scholarship/internal/platform/filestore"
	profilemodels "scholarship/internal/profile/models"
	profilestore "scholarship/internal/profile/store"
	"scholarship/internal/scanner"
	id "scholarship/pkg/domain"
	dErrors "scholarship/pkg/domain-errors"
	audit "scholarship/pkg/platform/audit"
	"scholarship/pkg/requestcontext"
)

type SweeperSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	notifier *mocks.MockNotifier
	auditor  *mocks.MockAuditPublisher
	svc      *service.Service
	apps     *appstore.InMemory
	logger   *slog.Logger
	now      time.Time
	verifier id.Actor
}

func TestSweeperSuite(t *testing.T) {
	suite.Run(t, new(SweeperSuite))
}

func (s *SweeperSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.notifier = mocks.NewMockNotifier(s.ctrl)
	s.auditor = mocks.NewMockAuditPublisher(s.ctrl)
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s.apps = appstore.NewInMemory()

	blobs, err := filestore.New(s.T().TempDir(), "/files")
	s.Require().NoError(err)
	s.svc = service.New(s.apps, docstore.NewInMemory(), profilestore.NewInMemory(),
		appstore.NewShardedTx(time.Second), scanner.New(), blobs,
		service.WithLogger(s.logger),
	)
	s.now = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	s.verifier = id.Actor{ID: id.UserID(uuid.New()), Role: id.RoleVerifier}
}

// approvedExpiring submits an application whose documents expire a day after
// s.now and has every document approved. It returns the application ID.
func (s *SweeperSuite) approvedExpiring(student id.UserID, files int) id.ApplicationID {
	ctx := requestcontext.WithTime(context.Background(), s.now)
	expires := s.now.Add(24 * time.Hour)
	req := service.SubmitRequest{Profile: profilemodels.Data{
		FullName:           "Ravi Kumar",
		IdentityNumber:     uuid.NewString(),
		BankAccountNumber:  uuid.NewString(),
		Category:           profilemodels.CategoryST,
		AnnualIncome:       decimal.NewFromInt(120000),
		AcademicPercentage: 81,
		District:           "Nashik",
	}}
	for range files {
		req.Files = append(req.Files, ports.File{
			Name:      "certificate.pdf",
			Type:      docmodels.TypeCategoryProof,
			Content:   []byte("%PDF-1.4 certificate"),
			ExpiresAt: &expires,
		})
	}
	res, err := s.svc.Submit(ctx, id.Actor{ID: student, Role: id.RoleStudent}, req)
	s.Require().NoError(err)
	for _, d := range res.Documents {
		_, err := s.svc.VerifyDocument(ctx, s.verifier, d.ID, docmodels.DecisionApproved, "")
		s.Require().NoError(err)
	}
	return res.Application.ID
}

func (s *SweeperSuite) sweeper(locker Locker) *Sweeper {
	return NewSweeper(s.svc, locker,
		WithNotifier(s.notifier),
		WithAuditPublisher(s.auditor),
		WithLogger(s.logger),
		WithBatchSize(2),
	)
}

func (s *SweeperSuite) TestSweepIsIdempotentAndNotifiesOncePerStudent() {
	first, second := id.UserID(uuid.New()), id.UserID(uuid.New())
	firstApp := s.approvedExpiring(first, 3)
	s.approvedExpiring(second, 1)

	s.notifier.EXPECT().Notify(gomock.Any(), first, expiryMessage).Return(nil).Times(1)
	s.notifier.EXPECT().Notify(gomock.Any(), second, expiryMessage).Return(nil).Times(1)
	s.auditor.EXPECT().Emit(gomock.Any(), gomock.Cond(func(e audit.Event) bool {
		return e.Action == string(audit.EventSweepCompleted) && e.Category == audit.CategoryOperations
	})).Return(nil).Times(2)

	sweeper := s.sweeper(NewMemoryLocker())
	ctx := requestcontext.WithTime(context.Background(), s.now.Add(48*time.Hour))

	report, err := sweeper.RunOnce(ctx)
	s.Require().NoError(err)
	s.True(report.Locked)
	s.Equal(4, report.Expired)
	s.Equal(0, report.Failed)
	s.Equal(2, report.Notified)

	app, err := s.apps.FindByID(ctx, firstApp)
	s.Require().NoError(err)
	s.Equal(models.StatusQueryRaised, app.Status)
	s.Equal(models.QueryReasonExpiry, app.QueryReason)

	report, err = sweeper.RunOnce(ctx)
	s.Require().NoError(err)
	s.Equal(Report{Locked: true}, report)
}

func (s *SweeperSuite) TestNothingDueBeforeExpiry() {
	s.approvedExpiring(id.UserID(uuid.New()), 1)
	s.auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)

	report, err := s.sweeper(NewMemoryLocker()).RunOnce(requestcontext.WithTime(context.Background(), s.now))
	s.Require().NoError(err)
	s.Equal(0, report.Expired)
	s.Equal(0, report.Notified)
}

func (s *SweeperSuite) TestSkipsWhenAnotherReplicaHoldsTheLock() {
	locker := NewMemoryLocker()
	_, ok, err := locker.TryLock(context.Background(), LockKey, time.Minute)
	s.Require().NoError(err)
	s.Require().True(ok)

	svc := &fakeService{}
	report, err := NewSweeper(svc, locker, WithLogger(s.logger)).RunOnce(context.Background())
	s.Require().NoError(err)
	s.False(report.Locked)
	s.Zero(svc.listed)
}

func (s *SweeperSuite) TestFailuresNeverAbortTheBatch() {
	student := id.UserID(uuid.New())
	failing, moved, expiring := newDoc(), newDoc(), newDoc()
	svc := &fakeService{
		docs: []*docmodels.Document{failing, moved, expiring},
		outcomes: map[id.DocumentID]error{
			failing.ID: errors.New("connection reset"),
			moved.ID:   dErrors.New(dErrors.CodeInvalidState, "document is not an expired approved document"),
		},
		student: student,
	}
	s.notifier.EXPECT().Notify(gomock.Any(), student, expiryMessage).Return(errors.New("broker down"))

	report, err := NewSweeper(svc, NewMemoryLocker(), WithNotifier(s.notifier), WithLogger(s.logger)).RunOnce(context.Background())
	s.Require().NoError(err)
	s.Equal(1, report.Expired)
	s.Equal(1, report.Skipped)
	s.Equal(1, report.Failed)
	s.Equal(0, report.Notified)
	s.Equal(3, svc.expired)
}

func (s *SweeperSuite) TestFailingPageDoesNotHideLaterDocuments() {
	student := id.UserID(uuid.New())
	early := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	svc := &fakeService{outcomes: map[id.DocumentID]error{}, student: student}
	for range 3 {
		doc := newDoc()
		doc.ExpiresAt = &early
		svc.docs = append(svc.docs, doc)
		svc.outcomes[doc.ID] = errors.New("connection reset")
	}
	healthy := newDoc()
	svc.docs = append(svc.docs, healthy)
	s.notifier.EXPECT().Notify(gomock.Any(), student, expiryMessage).Return(nil)

	report, err := NewSweeper(svc, NewMemoryLocker(),
		WithNotifier(s.notifier),
		WithLogger(s.logger),
		WithBatchSize(2),
	).RunOnce(context.Background())
	s.Require().NoError(err)
	s.Equal(1, report.Expired)
	s.Equal(3, report.Failed)
	s.Equal(1, report.Notified)
	s.Equal(4, svc.expired)
	s.True(svc.done[healthy.ID])
}

func (s *SweeperSuite) TestRejectedApplicationIsNotNotified() {
	student := id.UserID(uuid.New())
	appID := s.approvedExpiring(student, 1)
	admin := id.Actor{ID: id.UserID(uuid.New()), Role: id.RoleAdmin}
	_, err := s.svc.Reject(requestcontext.WithTime(context.Background(), s.now), admin, appID, "forged marksheet")
	s.Require().NoError(err)

	s.auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)

	ctx := requestcontext.WithTime(context.Background(), s.now.Add(48*time.Hour))
	report, err := s.sweeper(NewMemoryLocker()).RunOnce(ctx)
	s.Require().NoError(err)
	s.Equal(1, report.Expired)
	s.Equal(0, report.Notified)

	app, err := s.apps.FindByID(ctx, appID)
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, app.Status)
}

func (s *SweeperSuite) TestLockReleaseAllowsNextRun() {
	locker := NewMemoryLocker()
	release, ok, err := locker.TryLock(context.Background(), LockKey, time.Minute)
	s.Require().NoError(err)
	s.Require().True(ok)
	_, ok, _ = locker.TryLock(context.Background(), LockKey, time.Minute)
	s.False(ok)
	s.Require().NoError(release(context.Background()))
	_, ok, _ = locker.TryLock(context.Background(), LockKey, time.Minute)
	s.True(ok)
}

func newDoc() *docmodels.Document {
	expires := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	return &docmodels.Document{ID: id.DocumentID(uuid.New()), ApplicationID: id.ApplicationID(uuid.New()), ExpiresAt: &expires}
}

// fakeService pages docs in expiry order and resolves ExpireDocument from
// outcomes. Like the stores, it keeps listing documents whose expiry failed.
type fakeService struct {
	docs     []*docmodels.Document
	outcomes map[id.DocumentID]error
	student  id.UserID
	listed   int
	expired  int
	done     map[id.DocumentID]bool
}

func (f *fakeService) ExpiredDocuments(_ context.Context, after *docmodels.ExpiryCursor, limit int) ([]*docmodels.Document, error) {
	f.listed++
	sorted := append([]*docmodels.Document(nil), f.docs...)
	sort.Slice(sorted, func(i, j int) bool { return docmodels.CursorAt(sorted[i]).Precedes(sorted[j]) })
	var out []*docmodels.Document
	for _, d := range sorted {
		if f.done[d.ID] || !after.Precedes(d) {
			continue
		}
		out = append(out, d)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeService) ExpireDocument(_ context.Context, docID id.DocumentID) (*service.ExpiryOutcome, error) {
	f.expired++
	if err := f.outcomes[docID]; err != nil {
		return nil, err
	}
	if f.done == nil {
		f.done = make(map[id.DocumentID]bool)
	}
	f.done[docID] = true
	return &service.ExpiryOutcome{StudentID: f.student, ApplicationChanged: true}, nil
}
