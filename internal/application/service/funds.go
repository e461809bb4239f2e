package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"scholarship/internal/application/models"
	id "scholarship/pkg/domain"
	audit "scholarship/pkg/platform/audit"
	"scholarship/pkg/requestcontext"
)

// Withdraw draws amount from the approved scholarship. The balance check,
// the aggregate update and the ledger row happen under one lock, so
// concurrent draws can never exceed the granted amount.
func (s *Service) Withdraw(ctx context.Context, actor id.Actor, appID id.ApplicationID, amount decimal.Decimal) (res *WithdrawResult, err error) {
	ctx, end := s.begin(ctx, "withdraw", attribute.String("application_id", appID.String()))
	defer func() { end(&err) }()

	app, err := s.loadApplication(ctx, appID)
	if err != nil {
		return nil, err
	}
	if err := s.requireOwner(ctx, actor, "withdraw", app); err != nil {
		return nil, err
	}
	if err := requirePositive(amount, "withdrawal amount"); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	res = &WithdrawResult{}
	err = s.inTx(ctx, []string{applicationKey(appID)}, func(ctx context.Context) error {
		var balance decimal.Decimal
		updated, err := s.apps.Execute(ctx, appID,
			func(a *models.Application) error {
				if err := checkVersion(ctx, a); err != nil {
					return err
				}
				return a.CanWithdraw(amount)
			},
			func(a *models.Application) { balance = a.ApplyWithdrawal(amount, now) },
		)
		if err != nil {
			return translate(err, "application")
		}
		entry, err := models.NewDisbursement(id.DisbursementID(uuid.New()), updated, amount, balance, now)
		if err != nil {
			return translate(err, "disbursement")
		}
		if err := s.apps.CreateDisbursement(ctx, entry); err != nil {
			return translate(err, "disbursement")
		}
		res.Application = updated
		res.Disbursement = entry

		event := s.newEvent(ctx, audit.EventFundsWithdrawn, actor, actor.ID, appID.String())
		event.Decision = string(updated.WithdrawalStatus)
		event.Reason = "amount:" + amount.String()
		return s.recordTransition(ctx, event)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementTransition(string(audit.EventFundsWithdrawn), string(res.Application.WithdrawalStatus))
	s.metrics.AddWithdrawn(amount.InexactFloat64())
	s.logger.InfoContext(ctx, "funds withdrawn",
		"application_id", appID.String(),
		"amount", amount.String(),
		"balance", res.Disbursement.BalanceAfter.String(),
	)
	s.notify(ctx, actor.ID, fmt.Sprintf("You withdrew %s. Remaining balance: %s.",
		amount.StringFixed(2), res.Disbursement.BalanceAfter.StringFixed(2)))
	return res, nil
}

// ListDisbursements returns the withdrawal ledger of an application, oldest
// first.
func (s *Service) ListDisbursements(ctx context.Context, actor id.Actor, appID id.ApplicationID) ([]*models.Disbursement, error) {
	app, err := s.loadApplication(ctx, appID)
	if err != nil {
		return nil, err
	}
	if err := s.canRead(ctx, actor, "list_disbursements", app); err != nil {
		return nil, err
	}
	rows, err := s.apps.ListDisbursements(ctx, appID)
	if err != nil {
		return nil, translate(err, "disbursement")
	}
	return rows, nil
}
