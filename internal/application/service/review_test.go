package service

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/mock/gomock"

	"scholarship/internal/application/models"
	"scholarship/internal/application/ports"
	id "scholarship/pkg/domain"
	dErrors "scholarship/pkg/domain-errors"
	audit "scholarship/pkg/platform/audit"
	"scholarship/pkg/requestcontext"
)

func (s *ServiceSuite) TestForward() {
	s.Run("verifier moves the application to the admin stage", func() {
		s.notifier.EXPECT().Notify(gomock.Any(), gomock.Any(), "Your application has been verified and forwarded for final review.").Return(nil)
		s.permissive()
		student := newStudent()
		res := s.submit(student, eligibleProfile())

		app, err := s.service.Forward(s.ctx, s.verifier, res.Application.ID)
		s.Require().NoError(err)
		s.Equal(models.StageAdmin, app.Stage)
		s.Equal(models.StatusUnderReview, app.Status)
		s.Equal(res.Application.Version+1, app.Version)
	})

	s.Run("rejected when the application is already at the admin stage", func() {
		s.security.EXPECT().Emit(gomock.Any(), hasEvent(audit.EventAuthorizationDenied)).Return(nil)
		s.permissive()
		app := s.submitAtAdmin(newStudent())

		_, err := s.service.Forward(s.ctx, s.verifier, app.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("students cannot forward", func() {
		s.permissive()
		student := newStudent()
		res := s.submit(student, eligibleProfile())
		_, err := s.service.Forward(s.ctx, student, res.Application.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("terminal applications cannot move", func() {
		s.permissive()
		app := s.seed(newStudent().ID, 2026, reject)
		_, err := s.service.Forward(s.ctx, s.verifier, app.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("unknown application", func() {
		_, err := s.service.Forward(s.ctx, s.verifier, id.ApplicationID(uuid.New()))
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("stale version token", func() {
		s.permissive()
		res := s.submit(newStudent(), eligibleProfile())
		ctx := requestcontext.WithExpectedVersion(s.ctx, res.Application.Version+3)
		_, err := s.service.Forward(ctx, s.verifier, res.Application.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeStaleVersion))
		s.True(dErrors.IsRetryable(err))
	})
}

func (s *ServiceSuite) TestRaiseQueryAndResubmit() {
	s.permissive()
	student := newStudent()
	res := s.submit(student, eligibleProfile())
	appID := res.Application.ID

	for _, title := range []string{"Income certificate", "Caste certificate", "Marksheet"} {
		_, err := s.service.RaiseQuery(s.ctx, s.verifier, appID, RaiseQueryRequest{Field: "documents", Title: title, Message: "Please upload a clearer copy"})
		s.Require().NoError(err)
	}
	app, err := s.service.GetApplication(s.ctx, student, appID)
	s.Require().NoError(err)
	s.Equal(models.StatusQueryRaised, app.Status)
	s.Equal(models.QueryReasonHuman, app.QueryReason)
	s.Equal(models.StageVerifier, app.Stage)
	s.Equal(3, app.Queries.OpenCount())

	_, err = s.service.RaiseQuery(s.ctx, s.verifier, appID, RaiseQueryRequest{Title: " "})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.service.Resubmit(s.ctx, newStudent(), appID, SubmitRequest{Profile: eligibleProfile()})
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden), "another student cannot resubmit")

	updated := profileData(400000, 55, "GENERAL")
	updated.FullName = "Asha R. Patil"
	out, err := s.service.Resubmit(s.ctx, student, appID, SubmitRequest{
		Profile: updated,
		Files:   []ports.File{pdfFile("income-v2.pdf")},
	})
	s.Require().NoError(err)
	s.Equal(models.StatusResubmitted, out.Application.Status)
	s.Equal(models.StageVerifier, out.Application.Stage)
	s.Equal(models.EligibilityEligible, out.Application.Eligibility, "eligibility is a submission-time snapshot")
	s.Len(out.Documents, 1)

	queries, err := s.service.ListQueries(s.ctx, student, appID)
	s.Require().NoError(err)
	s.Require().Len(queries, 3)
	for _, q := range queries {
		s.Equal(models.QueryStatusResolved, q.Status)
		s.Require().NotNil(q.RespondedAt)
		s.Equal(s.now, *q.RespondedAt)
		s.Equal(resubmissionNote, q.Response)
	}

	profile, err := s.profiles.FindByID(s.ctx, out.Application.ProfileID)
	s.Require().NoError(err)
	s.Equal("Asha R. Patil", profile.FullName)
	s.Equal(res.Application.ProfileID, profile.ID, "profile is overwritten in place")

	docs, err := s.service.ListDocuments(s.ctx, student, appID)
	s.Require().NoError(err)
	s.Len(docs, 3)
}

func (s *ServiceSuite) TestRaiseQueryAtAnyStage() {
	s.Run("admin queries an application still with the verifier", func() {
		s.permissive()
		res := s.submit(newStudent(), eligibleProfile())
		app, err := s.service.RaiseQuery(s.ctx, s.admin, res.Application.ID, RaiseQueryRequest{Title: "Bank proof", Message: "Upload a passbook copy"})
		s.Require().NoError(err)
		s.Equal(models.StatusQueryRaised, app.Status)
		s.Equal(models.StageVerifier, app.Stage)
	})

	s.Run("verifier queries an application after forwarding", func() {
		s.permissive()
		res := s.submit(newStudent(), eligibleProfile())
		_, err := s.service.Forward(s.ctx, s.verifier, res.Application.ID)
		s.Require().NoError(err)

		app, err := s.service.RaiseQuery(s.ctx, s.verifier, res.Application.ID, RaiseQueryRequest{Title: "Marksheet", Message: "Page two is missing"})
		s.Require().NoError(err)
		s.Equal(models.StatusQueryRaised, app.Status)
		s.Equal(models.StageAdmin, app.Stage)
		s.Equal(1, app.Queries.OpenCount())
	})

	s.Run("students cannot raise queries", func() {
		s.permissive()
		student := newStudent()
		res := s.submit(student, eligibleProfile())
		_, err := s.service.RaiseQuery(s.ctx, student, res.Application.ID, RaiseQueryRequest{Title: "x", Message: "y"})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *ServiceSuite) TestApprove() {
	s.Run("requires the admin stage", func() {
		s.permissive()
		res := s.submit(newStudent(), eligibleProfile())
		_, err := s.service.Approve(s.ctx, s.admin, res.Application.ID, decimal.NewFromInt(1000))
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("amount must be positive", func() {
		s.permissive()
		app := s.submitAtAdmin(newStudent())
		_, err := s.service.Approve(s.ctx, s.admin, app.ID, decimal.Zero)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("verifiers cannot approve", func() {
		s.permissive()
		app := s.submitAtAdmin(newStudent())
		_, err := s.service.Approve(s.ctx, s.verifier, app.ID, decimal.NewFromInt(1000))
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("approved applications cannot be approved again", func() {
		s.permissive()
		app := s.approved(newStudent(), 1000)
		_, err := s.service.Approve(s.ctx, s.admin, app.ID, decimal.NewFromInt(2000))
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("approve then withdraw everything", func() {
		s.permissive()
		student := newStudent()
		app := s.approved(student, 50000)
		s.Require().NotNil(app.ApprovedAt)

		out, err := s.service.Withdraw(s.ctx, student, app.ID, decimal.NewFromInt(50000))
		s.Require().NoError(err)
		s.Equal(models.WithdrawalFullyWithdrawn, out.Application.WithdrawalStatus)
		s.True(out.Application.Balance().IsZero())
	})
}

func (s *ServiceSuite) TestReject() {
	s.Run("admin rejects at any stage and the reason is logged", func() {
		s.permissive()
		res := s.submit(newStudent(), eligibleProfile())
		app, err := s.service.Reject(s.ctx, s.admin, res.Application.ID, "Income proof forged")
		s.Require().NoError(err)
		s.Equal(models.StatusRejected, app.Status)

		queries := app.Queries.Queries()
		s.Require().Len(queries, 1)
		s.Equal(models.QueryKindRejection, queries[0].Kind)
		s.Equal(models.QueryStatusResolved, queries[0].Status)
		s.Equal("Income proof forged", queries[0].Message)

		_, err = s.service.Forward(s.ctx, s.verifier, app.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("reason is required", func() {
		_, err := s.service.Reject(s.ctx, s.admin, id.ApplicationID(uuid.New()), "")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *ServiceSuite) TestOverrideStatus() {
	s.Run("moves an open application to a non-terminal status", func() {
		s.permissive()
		res := s.submit(newStudent(), eligibleProfile())
		app, err := s.service.OverrideStatus(s.ctx, s.admin, res.Application.ID, models.StatusUnderVerification, "manual check")
		s.Require().NoError(err)
		s.Equal(models.StatusUnderVerification, app.Status)
		s.Equal(models.StageVerifier, app.Stage)
	})

	s.Run("query_raised through override is a human query", func() {
		s.permissive()
		res := s.submit(newStudent(), eligibleProfile())
		app, err := s.service.OverrideStatus(s.ctx, s.admin, res.Application.ID, models.StatusQueryRaised, "")
		s.Require().NoError(err)
		s.Equal(models.QueryReasonHuman, app.QueryReason)
	})

	s.Run("terminal targets go through approve or reject", func() {
		_, err := s.service.OverrideStatus(s.ctx, s.admin, id.ApplicationID(uuid.New()), models.StatusApproved, "")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("admin only", func() {
		s.permissive()
		res := s.submit(newStudent(), eligibleProfile())
		_, err := s.service.OverrideStatus(s.ctx, s.verifier, res.Application.ID, models.StatusUnderReview, "")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}
