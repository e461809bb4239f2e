package models

import (
	"time"

	"github.com/shopspring/decimal"

	id "scholarship/pkg/domain"
	dErrors "scholarship/pkg/domain-errors"
)

// Disbursement is one ledger row written alongside a successful withdrawal.
type Disbursement struct {
	ID            id.DisbursementID `json:"id"`
	ApplicationID id.ApplicationID  `json:"application_id"`
	StudentID     id.UserID         `json:"student_id"`
	Amount        decimal.Decimal   `json:"amount"`
	BalanceAfter  decimal.Decimal   `json:"balance_after"`
	CreatedAt     time.Time         `json:"created_at"`
}

func NewDisbursement(
	disbursementID id.DisbursementID,
	app *Application,
	amount, balanceAfter decimal.Decimal,
	now time.Time,
) (*Disbursement, error) {
	if disbursementID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "disbursement ID required")
	}
	if !amount.IsPositive() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "disbursement amount must be positive")
	}
	if balanceAfter.IsNegative() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "balance cannot be negative")
	}
	return &Disbursement{
		ID:            disbursementID,
		ApplicationID: app.ID,
		StudentID:     app.StudentID,
		Amount:        amount,
		BalanceAfter:  balanceAfter,
		CreatedAt:     now,
	}, nil
}
