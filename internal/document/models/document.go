package models

import (
	"strings"
	"time"

	id "scholarship/pkg/domain"
	dErrors "scholarship/pkg/domain-errors"
)

type Type string

const (
	TypeIdentityProof  Type = "identity_proof"
	TypeIncomeProof    Type = "income_proof"
	TypeCategoryProof  Type = "category_proof"
	TypeAcademicRecord Type = "academic_record"
	TypeBankProof      Type = "bank_proof"
	TypeOther          Type = "other"
)

func (t Type) IsValid() bool {
	switch t {
	case TypeIdentityProof, TypeIncomeProof, TypeCategoryProof, TypeAcademicRecord, TypeBankProof, TypeOther:
		return true
	}
	return false
}

// ParseType maps free-form input onto a document type. Empty input is "other".
func ParseType(s string) (Type, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return TypeOther, nil
	}
	t := Type(s)
	if !t.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "unknown document type: "+s)
	}
	return t, nil
}

type VerificationStatus string

const (
	StatusPending                VerificationStatus = "pending"
	StatusApproved               VerificationStatus = "approved"
	StatusRejected               VerificationStatus = "rejected"
	StatusExpired                VerificationStatus = "expired"
	StatusReverificationRequired VerificationStatus = "reverification_required"
)

// Decision is a verifier's verdict on one document.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

func ParseDecision(s string) (Decision, error) {
	switch d := Decision(strings.ToLower(strings.TrimSpace(s))); d {
	case DecisionApproved, DecisionRejected:
		return d, nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "decision must be approved or rejected")
}

// Document is one uploaded file attached to an application.
//
// Invariants:
//   - Locator always points at the most recent upload
//   - ReuploadRequired is set only while the document is expired
//   - ExpiresAt, when present, is after IssuedAt
type Document struct {
	ID                 id.DocumentID      `json:"id"`
	ApplicationID      id.ApplicationID   `json:"application_id"`
	Type               Type               `json:"type"`
	Locator            string             `json:"locator"`
	FileName           string             `json:"file_name"`
	VerificationStatus VerificationStatus `json:"verification_status"`
	IssuedAt           *time.Time         `json:"issued_at,omitempty"`
	ExpiresAt          *time.Time         `json:"expires_at,omitempty"`
	ReuploadRequired   bool               `json:"reupload_required"`
	Remarks            string             `json:"remarks,omitempty"`
	VerifiedBy         *id.UserID         `json:"verified_by,omitempty"`
	VerifiedAt         *time.Time         `json:"verified_at,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

func NewDocument(
	docID id.DocumentID,
	appID id.ApplicationID,
	docType Type,
	locator, fileName string,
	issuedAt, expiresAt *time.Time,
	now time.Time,
) (*Document, error) {
	if docID.IsNil() || appID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "document and application IDs required")
	}
	if !docType.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invalid document type")
	}
	if locator == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "document locator required")
	}
	if issuedAt != nil && expiresAt != nil && !expiresAt.After(*issuedAt) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "document expiry must be after issue date")
	}
	return &Document{
		ID:                 docID,
		ApplicationID:      appID,
		Type:               docType,
		Locator:            locator,
		FileName:           fileName,
		VerificationStatus: StatusPending,
		IssuedAt:           issuedAt,
		ExpiresAt:          expiresAt,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

// CanVerify allows a verifier to record or revise a decision on any document
// that has not expired.
func (d *Document) CanVerify() error {
	if d.VerificationStatus == StatusExpired {
		return dErrors.New(dErrors.CodeInvariantViolation, "expired documents must be re-uploaded before verification")
	}
	return nil
}

func (d *Document) ApplyVerification(decision Decision, remarks string, verifier id.UserID, now time.Time) {
	if decision == DecisionApproved {
		d.VerificationStatus = StatusApproved
	} else {
		d.VerificationStatus = StatusRejected
	}
	d.Remarks = remarks
	by := verifier
	d.VerifiedBy = &by
	at := now
	d.VerifiedAt = &at
	d.UpdatedAt = now
}

// CanReupload reports whether the student may replace the file.
func (d *Document) CanReupload() error {
	if d.ReuploadRequired || d.VerificationStatus == StatusExpired || d.VerificationStatus == StatusRejected {
		return nil
	}
	return dErrors.New(dErrors.CodeInvariantViolation, "document does not require a re-upload")
}

// ApplyReupload swaps in the new file and queues the document for another
// verification pass. Previous verifier remarks are kept for context.
func (d *Document) ApplyReupload(locator, fileName string, issuedAt, expiresAt *time.Time, now time.Time) {
	d.Locator = locator
	d.FileName = fileName
	if issuedAt != nil {
		d.IssuedAt = issuedAt
	}
	d.ExpiresAt = expiresAt
	d.VerificationStatus = StatusReverificationRequired
	d.ReuploadRequired = false
	d.VerifiedBy = nil
	d.VerifiedAt = nil
	d.UpdatedAt = now
}

// ExpiryCursor is a position in the (expires_at, id) order used to page
// through expired documents. A nil cursor starts from the beginning.
type ExpiryCursor struct {
	ExpiresAt time.Time
	ID        id.DocumentID
}

// CursorAt positions a cursor on d, which must carry an expiry.
func CursorAt(d *Document) *ExpiryCursor {
	return &ExpiryCursor{ExpiresAt: *d.ExpiresAt, ID: d.ID}
}

// Precedes reports whether c sorts strictly before d.
func (c *ExpiryCursor) Precedes(d *Document) bool {
	if c == nil {
		return true
	}
	if !c.ExpiresAt.Equal(*d.ExpiresAt) {
		return c.ExpiresAt.Before(*d.ExpiresAt)
	}
	return c.ID.String() < d.ID.String()
}

// IsExpiredAt reports whether an approved document has passed its expiry.
func (d *Document) IsExpiredAt(now time.Time) bool {
	return d.VerificationStatus == StatusApproved && d.ExpiresAt != nil && d.ExpiresAt.Before(now)
}

func (d *Document) CanExpire(now time.Time) error {
	if !d.IsExpiredAt(now) {
		return dErrors.New(dErrors.CodeInvariantViolation, "document is not an expired approved document")
	}
	return nil
}

func (d *Document) ApplyExpiry(now time.Time) {
	d.VerificationStatus = StatusExpired
	d.ReuploadRequired = true
	d.UpdatedAt = now
}

func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	c.IssuedAt = cloneTime(d.IssuedAt)
	c.ExpiresAt = cloneTime(d.ExpiresAt)
	c.VerifiedAt = cloneTime(d.VerifiedAt)
	if d.VerifiedBy != nil {
		by := *d.VerifiedBy
		c.VerifiedBy = &by
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
