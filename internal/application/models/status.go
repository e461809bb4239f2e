package models

import (
	dErrors "scholarship/pkg/domain-errors"
)

// Status is the externally visible lifecycle position of an application.
type Status string

const (
	StatusSubmitted         Status = "submitted"
	StatusUnderReview       Status = "under_review"
	StatusUnderVerification Status = "under_verification"
	StatusQueryRaised       Status = "query_raised"
	StatusResubmitted       Status = "resubmitted"
	StatusApproved          Status = "approved"
	StatusRejected          Status = "rejected"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusSubmitted, StatusUnderReview, StatusUnderVerification, StatusQueryRaised,
		StatusResubmitted, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// IsTerminal reports whether the normal workflow has finished with the application.
// The expiry sweep may still demote an approved application.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "unknown application status")
	}
	return st, nil
}

// QueryReason tags why an application sits in query_raised. It is empty for
// every other status.
type QueryReason string

const (
	QueryReasonNone   QueryReason = ""
	QueryReasonHuman  QueryReason = "human"
	QueryReasonExpiry QueryReason = "expiry"
)

// Stage is the role that currently owns the application for action.
type Stage string

const (
	StageVerifier Stage = "verifier"
	StageAdmin    Stage = "admin"
)

func (s Stage) IsValid() bool {
	return s == StageVerifier || s == StageAdmin
}

type Type string

const (
	TypeNew     Type = "new"
	TypeRenewal Type = "renewal"
)

func (t Type) IsValid() bool {
	return t == TypeNew || t == TypeRenewal
}

type EligibilityStatus string

const (
	EligibilityChecking    EligibilityStatus = "checking"
	EligibilityEligible    EligibilityStatus = "eligible"
	EligibilityNotEligible EligibilityStatus = "not_eligible"
)

func (e EligibilityStatus) IsValid() bool {
	switch e {
	case EligibilityChecking, EligibilityEligible, EligibilityNotEligible:
		return true
	}
	return false
}

type WithdrawalStatus string

const (
	WithdrawalNotAvailable       WithdrawalStatus = "not_available"
	WithdrawalAvailable          WithdrawalStatus = "available"
	WithdrawalPartiallyWithdrawn WithdrawalStatus = "partially_withdrawn"
	WithdrawalFullyWithdrawn     WithdrawalStatus = "fully_withdrawn"
)

// CanWithdraw reports whether funds may be drawn in this state.
func (w WithdrawalStatus) CanWithdraw() bool {
	return w == WithdrawalAvailable || w == WithdrawalPartiallyWithdrawn
}
