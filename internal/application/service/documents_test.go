package service

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/mock/gomock"

	"scholarship/internal/application/models"
	"scholarship/internal/application/ports"
	docmodels "scholarship/internal/document/models"
	id "scholarship/pkg/domain"
	dErrors "scholarship/pkg/domain-errors"
	audit "scholarship/pkg/platform/audit"
	"scholarship/pkg/requestcontext"
)

// submitWithExpiringDocument submits one document that expires the day after
// the request time and has the verifier approve it.
func (s *ServiceSuite) submitWithExpiringDocument(student id.Actor) (*models.Application, *docmodels.Document) {
	expires := s.now.Add(24 * time.Hour)
	file := pdfFile("income.pdf")
	file.ExpiresAt = &expires
	res, err := s.service.Submit(s.ctx, student, SubmitRequest{Profile: eligibleProfile(), Files: []ports.File{file}})
	s.Require().NoError(err)
	doc, err := s.service.VerifyDocument(s.ctx, s.verifier, res.Documents[0].ID, docmodels.DecisionApproved, "ok")
	s.Require().NoError(err)
	return res.Application, doc
}

func (s *ServiceSuite) later() time.Time {
	return s.now.Add(48 * time.Hour)
}

func (s *ServiceSuite) TestVerifyDocument() {
	s.Run("records the decision without touching the application", func() {
		s.permissive()
		res := s.submit(newStudent(), eligibleProfile())
		doc, err := s.service.VerifyDocument(s.ctx, s.verifier, res.Documents[0].ID, docmodels.DecisionRejected, " blurry scan ")
		s.Require().NoError(err)
		s.Equal(docmodels.StatusRejected, doc.VerificationStatus)
		s.Equal("blurry scan", doc.Remarks)
		s.Require().NotNil(doc.VerifiedBy)
		s.Equal(s.verifier.ID, *doc.VerifiedBy)

		app, err := s.apps.FindByID(s.ctx, res.Application.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusSubmitted, app.Status)
		s.Equal(res.Application.Version, app.Version)
	})

	s.Run("verifier only", func() {
		s.permissive()
		student := newStudent()
		res := s.submit(student, eligibleProfile())
		_, err := s.service.VerifyDocument(s.ctx, student, res.Documents[0].ID, docmodels.DecisionApproved, "")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("unknown document", func() {
		_, err := s.service.VerifyDocument(s.ctx, s.verifier, id.DocumentID(uuid.New()), docmodels.DecisionApproved, "")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestExpireDocument() {
	s.Run("expires the document and reopens the application", func() {
		s.permissive()
		student := newStudent()
		app, doc := s.submitWithExpiringDocument(student)
		ctx := requestcontext.WithTime(s.ctx, s.later())

		due, err := s.service.ExpiredDocuments(ctx, nil, 10)
		s.Require().NoError(err)
		s.Require().Len(due, 1)

		out, err := s.service.ExpireDocument(ctx, doc.ID)
		s.Require().NoError(err)
		s.True(out.ApplicationChanged)
		s.Equal(student.ID, out.StudentID)
		s.Equal(docmodels.StatusExpired, out.Document.VerificationStatus)
		s.True(out.Document.ReuploadRequired)

		reopened, err := s.apps.FindByID(s.ctx, app.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusQueryRaised, reopened.Status)
		s.Equal(models.QueryReasonExpiry, reopened.QueryReason)

		_, err = s.service.ExpireDocument(ctx, doc.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState), "already expired")

		due, err = s.service.ExpiredDocuments(ctx, nil, 10)
		s.Require().NoError(err)
		s.Empty(due)
	})

	s.Run("reopens an approved application without touching its ledger", func() {
		s.permissive()
		student := newStudent()
		app, doc := s.submitWithExpiringDocument(student)
		_, err := s.service.Forward(s.ctx, s.verifier, app.ID)
		s.Require().NoError(err)
		_, err = s.service.Approve(s.ctx, s.admin, app.ID, decimal.NewFromInt(1000))
		s.Require().NoError(err)

		out, err := s.service.ExpireDocument(requestcontext.WithTime(s.ctx, s.later()), doc.ID)
		s.Require().NoError(err)
		s.True(out.ApplicationChanged)

		reopened, err := s.apps.FindByID(s.ctx, app.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusQueryRaised, reopened.Status)
		s.Equal(models.WithdrawalAvailable, reopened.WithdrawalStatus)
	})

	s.Run("rejected applications stay rejected", func() {
		s.permissive()
		app, doc := s.submitWithExpiringDocument(newStudent())
		_, err := s.service.Reject(s.ctx, s.admin, app.ID, "duplicate")
		s.Require().NoError(err)

		out, err := s.service.ExpireDocument(requestcontext.WithTime(s.ctx, s.later()), doc.ID)
		s.Require().NoError(err)
		s.False(out.ApplicationChanged)
		s.Equal(docmodels.StatusExpired, out.Document.VerificationStatus)

		current, err := s.apps.FindByID(s.ctx, app.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusRejected, current.Status)
	})

	s.Run("not yet expired", func() {
		s.permissive()
		_, doc := s.submitWithExpiringDocument(newStudent())
		_, err := s.service.ExpireDocument(s.ctx, doc.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
}

func (s *ServiceSuite) TestReuploadDocument() {
	s.Run("replaces an expired document and returns the application to the verifier", func() {
		s.permissive()
		student := newStudent()
		app, doc := s.submitWithExpiringDocument(student)
		_, err := s.service.RaiseQuery(s.ctx, s.verifier, app.ID, RaiseQueryRequest{Title: "Photo", Message: "Upload photo"})
		s.Require().NoError(err)
		_, err = s.service.ExpireDocument(requestcontext.WithTime(s.ctx, s.later()), doc.ID)
		s.Require().NoError(err)

		replaced, err := s.service.ReuploadDocument(s.ctx, student, doc.ID, pdfFile("income-2027.pdf"))
		s.Require().NoError(err)
		s.Equal(docmodels.StatusReverificationRequired, replaced.VerificationStatus)
		s.False(replaced.ReuploadRequired)
		s.Equal("income-2027.pdf", replaced.FileName)
		s.NotEqual(doc.Locator, replaced.Locator)

		current, err := s.apps.FindByID(s.ctx, app.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusResubmitted, current.Status)
		s.Equal(models.StageVerifier, current.Stage)
		s.Equal(1, current.Queries.OpenCount(), "open queries are not resolved by a re-upload")
	})

	s.Run("pending documents cannot be replaced", func() {
		s.permissive()
		student := newStudent()
		res := s.submit(student, eligibleProfile())
		_, err := s.service.ReuploadDocument(s.ctx, student, res.Documents[0].ID, pdfFile("again.pdf"))
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("unsafe replacement is denied and nothing changes", func() {
		student := newStudent()
		s.scanner.EXPECT().Scan(gomock.Any(), gomock.Cond(func(f ports.File) bool { return f.Name == "payload.pdf" })).
			Return(ports.ScanResult{Classification: ports.ClassificationScript, Details: "pdf javascript"}, nil)
		s.security.EXPECT().Emit(gomock.Any(), hasEvent(audit.EventUnsafeUploadBlocked)).Return(nil)
		s.threats.EXPECT().Elevate(gomock.Any(), student.ID, gomock.Any()).Return(int64(3), nil)
		s.permissive()

		res := s.submit(student, eligibleProfile())
		doc, err := s.service.VerifyDocument(s.ctx, s.verifier, res.Documents[0].ID, docmodels.DecisionRejected, "illegible")
		s.Require().NoError(err)

		_, err = s.service.ReuploadDocument(s.ctx, student, doc.ID, pdfFile("payload.pdf"))
		s.True(dErrors.HasCode(err, dErrors.CodeSecurityDenial))

		current, err := s.docs.FindByID(s.ctx, doc.ID)
		s.Require().NoError(err)
		s.Equal(docmodels.StatusRejected, current.VerificationStatus)
		s.Equal(doc.Locator, current.Locator)
	})

	s.Run("only the owner may replace", func() {
		s.permissive()
		res := s.submit(newStudent(), eligibleProfile())
		_, err := s.service.ReuploadDocument(s.ctx, newStudent(), res.Documents[0].ID, pdfFile("x.pdf"))
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}
