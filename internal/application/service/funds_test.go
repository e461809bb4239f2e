package service

import (
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"scholarship/internal/application/models"
	dErrors "scholarship/pkg/domain-errors"
	"scholarship/pkg/requestcontext"
)

func (s *ServiceSuite) TestWithdraw() {
	s.Run("partial then full withdrawal", func() {
		s.permissive()
		student := newStudent()
		app := s.approved(student, 1000)

		out, err := s.service.Withdraw(s.ctx, student, app.ID, decimal.NewFromInt(400))
		s.Require().NoError(err)
		s.Equal(models.WithdrawalPartiallyWithdrawn, out.Application.WithdrawalStatus)
		s.True(out.Disbursement.Amount.Equal(decimal.NewFromInt(400)))
		s.True(out.Disbursement.BalanceAfter.Equal(decimal.NewFromInt(600)))
		s.Equal(student.ID, out.Disbursement.StudentID)

		out, err = s.service.Withdraw(s.ctx, student, app.ID, decimal.NewFromInt(600))
		s.Require().NoError(err)
		s.Equal(models.WithdrawalFullyWithdrawn, out.Application.WithdrawalStatus)

		_, err = s.service.Withdraw(s.ctx, student, app.ID, decimal.NewFromInt(1))
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("more than the balance is refused", func() {
		s.permissive()
		student := newStudent()
		app := s.approved(student, 1000)
		_, err := s.service.Withdraw(s.ctx, student, app.ID, decimal.NewFromInt(1001))
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("amount must be positive", func() {
		s.permissive()
		student := newStudent()
		app := s.approved(student, 1000)
		_, err := s.service.Withdraw(s.ctx, student, app.ID, decimal.NewFromInt(-5))
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("not available before approval", func() {
		s.permissive()
		student := newStudent()
		res := s.submit(student, eligibleProfile())
		_, err := s.service.Withdraw(s.ctx, student, res.Application.ID, decimal.NewFromInt(10))
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("only the owner may withdraw", func() {
		s.permissive()
		app := s.approved(newStudent(), 1000)
		_, err := s.service.Withdraw(s.ctx, newStudent(), app.ID, decimal.NewFromInt(10))
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("rejecting a reopened approval closes the grant", func() {
		s.permissive()
		student := newStudent()
		app, doc := s.submitWithExpiringDocument(student)
		_, err := s.service.Forward(s.ctx, s.verifier, app.ID)
		s.Require().NoError(err)
		_, err = s.service.Approve(s.ctx, s.admin, app.ID, decimal.NewFromInt(1000))
		s.Require().NoError(err)
		_, err = s.service.Withdraw(s.ctx, student, app.ID, decimal.NewFromInt(250))
		s.Require().NoError(err)
		_, err = s.service.ExpireDocument(requestcontext.WithTime(s.ctx, s.later()), doc.ID)
		s.Require().NoError(err)

		rejected, err := s.service.Reject(s.ctx, s.admin, app.ID, "forged certificate")
		s.Require().NoError(err)
		s.Equal(models.StatusRejected, rejected.Status)
		s.Equal(models.WithdrawalNotAvailable, rejected.WithdrawalStatus)
		s.True(rejected.WithdrawnAmount.Equal(decimal.NewFromInt(250)))

		_, err = s.service.Withdraw(s.ctx, student, app.ID, decimal.NewFromInt(750))
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))

		rows, err := s.service.ListDisbursements(s.ctx, student, app.ID)
		s.Require().NoError(err)
		s.Len(rows, 1, "draws made before the rejection stay on the ledger")
	})

	s.Run("stale version token", func() {
		s.permissive()
		student := newStudent()
		app := s.approved(student, 1000)
		ctx := requestcontext.WithExpectedVersion(s.ctx, app.Version-1)
		_, err := s.service.Withdraw(ctx, student, app.ID, decimal.NewFromInt(10))
		s.True(dErrors.HasCode(err, dErrors.CodeStaleVersion))
	})
}

func (s *ServiceSuite) TestConcurrentWithdrawalsNeverOverdraw() {
	s.permissive()
	student := newStudent()
	app := s.approved(student, 1000)

	const callers = 50
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.service.Withdraw(s.ctx, student, app.ID, decimal.NewFromInt(30)); err == nil {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(33), succeeded.Load())
	final, err := s.service.GetApplication(s.ctx, student, app.ID)
	s.Require().NoError(err)
	s.True(final.WithdrawnAmount.Equal(decimal.NewFromInt(990)))
	s.True(final.WithdrawnAmount.LessThanOrEqual(final.ScholarshipAmount))
	s.Equal(models.WithdrawalPartiallyWithdrawn, final.WithdrawalStatus)

	rows, err := s.service.ListDisbursements(s.ctx, student, app.ID)
	s.Require().NoError(err)
	s.Len(rows, 33)
}
