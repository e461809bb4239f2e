package models

import (
	"time"

	"github.com/shopspring/decimal"

	id "scholarship/pkg/domain"
	dErrors "scholarship/pkg/domain-errors"
)

// Application is the aggregate root of the scholarship lifecycle.
//
// Invariants:
//   - WithdrawnAmount never exceeds ScholarshipAmount and never decreases
//   - QueryReason is set if and only if Status is query_raised
//   - Stage becomes admin only through a forward
//   - FraudScore, when present, lies in [0, 100]
//   - Version increases by one on every persisted mutation
type Application struct {
	ID                id.ApplicationID  `json:"id"`
	StudentID         id.UserID         `json:"student_id"`
	ProfileID         id.ProfileID      `json:"profile_id"`
	Status            Status            `json:"status"`
	QueryReason       QueryReason       `json:"query_reason,omitempty"`
	Stage             Stage             `json:"stage"`
	Type              Type              `json:"type"`
	Year              int               `json:"year"`
	Eligibility       EligibilityStatus `json:"eligibility"`
	FraudScore        *int              `json:"fraud_score,omitempty"`
	ScholarshipAmount decimal.Decimal   `json:"scholarship_amount"`
	WithdrawnAmount   decimal.Decimal   `json:"withdrawn_amount"`
	WithdrawalStatus  WithdrawalStatus  `json:"withdrawal_status"`
	ApprovedAt        *time.Time        `json:"approved_at,omitempty"`
	Queries           QueryLog          `json:"queries"`
	District          string            `json:"district"`
	Version           int64             `json:"version"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// NewApplication creates a freshly submitted application at the verifier stage.
func NewApplication(
	appID id.ApplicationID,
	studentID id.UserID,
	profileID id.ProfileID,
	appType Type,
	year int,
	eligibility EligibilityStatus,
	district string,
	now time.Time,
) (*Application, error) {
	if appID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "application ID required")
	}
	if studentID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "student ID required")
	}
	if profileID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "profile ID required")
	}
	if !appType.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invalid application type")
	}
	if year <= 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "year must be positive")
	}
	if !eligibility.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invalid eligibility status")
	}
	return &Application{
		ID:                appID,
		StudentID:         studentID,
		ProfileID:         profileID,
		Status:            StatusSubmitted,
		Stage:             StageVerifier,
		Type:              appType,
		Year:              year,
		Eligibility:       eligibility,
		ScholarshipAmount: decimal.Zero,
		WithdrawnAmount:   decimal.Zero,
		WithdrawalStatus:  WithdrawalNotAvailable,
		District:          district,
		Version:           1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// Balance is the amount still available for withdrawal.
func (a *Application) Balance() decimal.Decimal {
	return a.ScholarshipAmount.Sub(a.WithdrawnAmount)
}

func (a *Application) IsOwnedBy(studentID id.UserID) bool {
	return a.StudentID == studentID
}

// RecordFraudScore stores the opaque advisory score.
func (a *Application) RecordFraudScore(score int) error {
	if score < 0 || score > 100 {
		return dErrors.New(dErrors.CodeInvariantViolation, "fraud score must be between 0 and 100")
	}
	a.FraudScore = &score
	return nil
}

func (a *Application) setStatus(status Status, reason QueryReason, now time.Time) {
	a.Status = status
	a.QueryReason = reason
	a.UpdatedAt = now
}

func (a *Application) requireOpen() error {
	if a.Status.IsTerminal() {
		return dErrors.New(dErrors.CodeInvariantViolation, "application is already "+string(a.Status))
	}
	return nil
}

// CanForward checks that the application can move to the admin stage.
// The stage check itself is an authorization concern handled by the caller.
func (a *Application) CanForward() error {
	return a.requireOpen()
}

func (a *Application) ApplyForward(now time.Time) {
	a.Stage = StageAdmin
	a.setStatus(StatusUnderReview, QueryReasonNone, now)
}

func (a *Application) CanRaiseQuery() error {
	return a.requireOpen()
}

// ApplyRaiseQuery appends an open clarification query and parks the
// application in query_raised. The stage is left unchanged.
func (a *Application) ApplyRaiseQuery(queryID id.QueryID, actor id.Actor, field, title, message string, now time.Time) {
	a.Queries = a.Queries.Append(QueryEntry{
		Kind:      EntryRaised,
		QueryID:   queryID,
		At:        now,
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		Field:     field,
		Title:     title,
		Message:   message,
	})
	a.setStatus(StatusQueryRaised, QueryReasonHuman, now)
}

func (a *Application) CanResubmit() error {
	return a.requireOpen()
}

// ApplyResubmission resolves every open query with the same note and hands
// the application back to the verifier.
func (a *Application) ApplyResubmission(actor id.Actor, note string, now time.Time) {
	a.Queries = a.Queries.ResolveAll(actor, note, now)
	a.Stage = StageVerifier
	a.setStatus(StatusResubmitted, QueryReasonNone, now)
}

// CanReupload checks that a replaced document may reopen verification.
func (a *Application) CanReupload() error {
	return a.requireOpen()
}

func (a *Application) ApplyReupload(now time.Time) {
	a.Stage = StageVerifier
	a.setStatus(StatusResubmitted, QueryReasonNone, now)
}

// CanApprove validates the grant amount. An approval after expiry-driven
// re-verification must not fall below what has already been drawn.
func (a *Application) CanApprove(amount decimal.Decimal) error {
	if err := a.requireOpen(); err != nil {
		return err
	}
	if !amount.IsPositive() {
		return dErrors.New(dErrors.CodeInvariantViolation, "scholarship amount must be positive")
	}
	if amount.LessThan(a.WithdrawnAmount) {
		return dErrors.New(dErrors.CodeInvariantViolation, "scholarship amount below amount already withdrawn")
	}
	return nil
}

func (a *Application) ApplyApproval(amount decimal.Decimal, now time.Time) {
	a.ScholarshipAmount = amount
	a.WithdrawalStatus = a.withdrawalStatusFor(a.WithdrawnAmount)
	approvedAt := now
	a.ApprovedAt = &approvedAt
	a.setStatus(StatusApproved, QueryReasonNone, now)
}

func (a *Application) CanReject() error {
	return a.requireOpen()
}

// ApplyRejection records the reason as an already-resolved rejection entry
// and closes the grant. Funds already drawn stay on the ledger.
func (a *Application) ApplyRejection(queryID id.QueryID, actor id.Actor, reason string, now time.Time) {
	a.Queries = a.Queries.Append(QueryEntry{
		Kind:      EntryRejection,
		QueryID:   queryID,
		At:        now,
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		Title:     "Application rejected",
		Message:   reason,
		Response:  "rejected",
	})
	a.WithdrawalStatus = WithdrawalNotAvailable
	a.setStatus(StatusRejected, QueryReasonNone, now)
}

// CanOverride allows an admin to move an open application to any
// non-terminal status. Terminal outcomes go through approve or reject.
func (a *Application) CanOverride(target Status) error {
	if !target.IsValid() {
		return dErrors.New(dErrors.CodeInvariantViolation, "unknown status")
	}
	if target.IsTerminal() {
		return dErrors.New(dErrors.CodeInvariantViolation, "use approve or reject for terminal statuses")
	}
	return a.requireOpen()
}

func (a *Application) ApplyOverride(target Status, now time.Time) {
	reason := QueryReasonNone
	if target == StatusQueryRaised {
		reason = QueryReasonHuman
	}
	a.setStatus(target, reason, now)
}

// CanWithdraw checks a draw against the remaining balance.
func (a *Application) CanWithdraw(amount decimal.Decimal) error {
	if a.Status == StatusRejected || !a.WithdrawalStatus.CanWithdraw() {
		return dErrors.New(dErrors.CodeInvariantViolation, "funds are not available for withdrawal")
	}
	if !amount.IsPositive() {
		return dErrors.New(dErrors.CodeInvariantViolation, "withdrawal amount must be positive")
	}
	if amount.GreaterThan(a.Balance()) {
		return dErrors.New(dErrors.CodeInvariantViolation, "withdrawal amount exceeds available balance")
	}
	return nil
}

// ApplyWithdrawal draws amount and returns the remaining balance.
func (a *Application) ApplyWithdrawal(amount decimal.Decimal, now time.Time) decimal.Decimal {
	a.WithdrawnAmount = a.WithdrawnAmount.Add(amount)
	a.WithdrawalStatus = a.withdrawalStatusFor(a.WithdrawnAmount)
	a.UpdatedAt = now
	return a.Balance()
}

func (a *Application) withdrawalStatusFor(withdrawn decimal.Decimal) WithdrawalStatus {
	switch {
	case !a.ScholarshipAmount.IsPositive():
		return WithdrawalNotAvailable
	case withdrawn.IsZero():
		return WithdrawalAvailable
	case withdrawn.GreaterThanOrEqual(a.ScholarshipAmount):
		return WithdrawalFullyWithdrawn
	default:
		return WithdrawalPartiallyWithdrawn
	}
}

// ApplyExpiry reopens the application after one of its approved documents
// expired. Rejected applications are left alone.
func (a *Application) ApplyExpiry(now time.Time) bool {
	if a.Status == StatusRejected {
		return false
	}
	a.setStatus(StatusQueryRaised, QueryReasonExpiry, now)
	return true
}

// CanReset reports whether the application may be discarded by its student.
func (a *Application) CanReset() error {
	if a.WithdrawnAmount.IsPositive() {
		return dErrors.New(dErrors.CodeInvariantViolation, "cannot reset after funds have been withdrawn")
	}
	return nil
}

// Clone returns a deep copy. Stores hand out clones so callers never share
// mutable state with the stored aggregate.
func (a *Application) Clone() *Application {
	if a == nil {
		return nil
	}
	c := *a
	if a.FraudScore != nil {
		score := *a.FraudScore
		c.FraudScore = &score
	}
	if a.ApprovedAt != nil {
		at := *a.ApprovedAt
		c.ApprovedAt = &at
	}
	c.Queries = NewQueryLog(a.Queries.entries...)
	return &c
}
