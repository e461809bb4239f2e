package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	id "scholarship/pkg/domain"
	dErrors "scholarship/pkg/domain-errors"
)

// Category is the student's reservation category as declared on the form.
type Category string

const (
	CategoryGeneral Category = "GENERAL"
	CategorySC      Category = "SC"
	CategoryST      Category = "ST"
	CategoryOBC     Category = "OBC"
	CategoryEWS     Category = "EWS"
)

// ParseCategory normalizes case. Unknown categories are accepted as-is so the
// eligibility rules decide what they mean.
func ParseCategory(s string) Category {
	return Category(strings.ToUpper(strings.TrimSpace(s)))
}

// Data is the student-supplied content of a profile snapshot.
type Data struct {
	FullName           string          `json:"full_name"`
	IdentityNumber     string          `json:"identity_number"`
	BankAccountNumber  string          `json:"bank_account_number"`
	Category           Category        `json:"category"`
	AnnualIncome       decimal.Decimal `json:"annual_income"`
	AcademicPercentage float64         `json:"academic_percentage"`
	District           string          `json:"district"`
	Institution        string          `json:"institution"`
	Course             string          `json:"course"`
}

// Validate checks the data at the trust boundary.
func (d Data) Validate() error {
	if strings.TrimSpace(d.FullName) == "" {
		return dErrors.New(dErrors.CodeValidation, "full name is required")
	}
	if strings.TrimSpace(d.IdentityNumber) == "" {
		return dErrors.New(dErrors.CodeValidation, "identity number is required")
	}
	if strings.TrimSpace(d.BankAccountNumber) == "" {
		return dErrors.New(dErrors.CodeValidation, "bank account number is required")
	}
	if d.Category == "" {
		return dErrors.New(dErrors.CodeValidation, "category is required")
	}
	if d.AnnualIncome.IsNegative() {
		return dErrors.New(dErrors.CodeValidation, "annual income cannot be negative")
	}
	if d.AcademicPercentage < 0 || d.AcademicPercentage > 100 {
		return dErrors.New(dErrors.CodeValidation, "academic percentage must be between 0 and 100")
	}
	return nil
}

// Normalize trims free-text fields and upper-cases the category.
func (d Data) Normalize() Data {
	d.FullName = strings.TrimSpace(d.FullName)
	d.IdentityNumber = strings.TrimSpace(d.IdentityNumber)
	d.BankAccountNumber = strings.TrimSpace(d.BankAccountNumber)
	d.Category = ParseCategory(string(d.Category))
	d.District = strings.TrimSpace(d.District)
	d.Institution = strings.TrimSpace(d.Institution)
	d.Course = strings.TrimSpace(d.Course)
	return d
}

// Profile is the snapshot of student data attached to one application.
// Submit and renew create a snapshot; resubmission overwrites it in place.
type Profile struct {
	ID        id.ProfileID `json:"id"`
	StudentID id.UserID    `json:"student_id"`
	Data
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewProfile(profileID id.ProfileID, studentID id.UserID, data Data, now time.Time) (*Profile, error) {
	if profileID.IsNil() || studentID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "profile and student IDs required")
	}
	data = data.Normalize()
	if err := data.Validate(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvariantViolation, dErrors.MessageOf(err))
	}
	return &Profile{
		ID:        profileID,
		StudentID: studentID,
		Data:      data,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ApplyOverwrite replaces the snapshot content, keeping identity and creation time.
func (p *Profile) ApplyOverwrite(data Data, now time.Time) {
	p.Data = data.Normalize()
	p.UpdatedAt = now
}

func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
