package service

import (
	"strings"

	"github.com/shopspring/decimal"

	"scholarship/internal/application/models"
	"scholarship/internal/application/ports"
	docmodels "scholarship/internal/document/models"
	profilemodels "scholarship/internal/profile/models"
	id "scholarship/pkg/domain"
	dErrors "scholarship/pkg/domain-errors"
)

// SubmitRequest carries the profile snapshot and files for Submit, Renew and
// Resubmit.
type SubmitRequest struct {
	Profile profilemodels.Data
	Files   []ports.File
}

type SubmitResult struct {
	Application *models.Application
	Documents   []*docmodels.Document
	Alerts      []ports.PolicyAlert
}

type RaiseQueryRequest struct {
	Field   string
	Title   string
	Message string
}

func (r *RaiseQueryRequest) Normalize() {
	r.Field = strings.TrimSpace(r.Field)
	r.Title = strings.TrimSpace(r.Title)
	r.Message = strings.TrimSpace(r.Message)
}

func (r *RaiseQueryRequest) Validate() error {
	if r.Title == "" {
		return dErrors.New(dErrors.CodeValidation, "query title is required")
	}
	if r.Message == "" {
		return dErrors.New(dErrors.CodeValidation, "query message is required")
	}
	return nil
}

type WithdrawResult struct {
	Application  *models.Application
	Disbursement *models.Disbursement
}

type QueuePage struct {
	Items  []*models.Application
	Total  int
	Limit  int
	Offset int
}

// ExpiryOutcome reports what ExpireDocument changed, so the sweep can notify
// each affected student once.
type ExpiryOutcome struct {
	Document           *docmodels.Document
	StudentID          id.UserID
	ApplicationID      id.ApplicationID
	ApplicationChanged bool
}

func requirePositive(amount decimal.Decimal, what string) error {
	if !amount.IsPositive() {
		return dErrors.New(dErrors.CodeValidation, what+" must be greater than zero")
	}
	return nil
}
