package models_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scholarship/internal/profile/models"
	id "scholarship/pkg/domain"
	dErrors "scholarship/pkg/domain-errors"
)

func validData() models.Data {
	return models.Data{
		FullName:           "  Asha Patil ",
		IdentityNumber:     "1234-5678",
		BankAccountNumber:  "000111222",
		Category:           "sc",
		AnnualIncome:       decimal.NewFromInt(120000),
		AcademicPercentage: 82.5,
		District:           "Pune",
	}
}

func TestNewProfileNormalizes(t *testing.T) {
	p, err := models.NewProfile(id.ProfileID(uuid.New()), id.UserID(uuid.New()), validData(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, "Asha Patil", p.FullName)
	assert.Equal(t, models.CategorySC, p.Category)
}

func TestNewProfileRejectsInvalidData(t *testing.T) {
	cases := map[string]func(d *models.Data){
		"missing name":       func(d *models.Data) { d.FullName = " " },
		"missing identity":   func(d *models.Data) { d.IdentityNumber = "" },
		"missing bank":       func(d *models.Data) { d.BankAccountNumber = "" },
		"negative income":    func(d *models.Data) { d.AnnualIncome = decimal.NewFromInt(-1) },
		"percentage too big": func(d *models.Data) { d.AcademicPercentage = 100.1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			d := validData()
			mutate(&d)
			_, err := models.NewProfile(id.ProfileID(uuid.New()), id.UserID(uuid.New()), d, time.Now())
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
			assert.True(t, dErrors.HasCode(d.Normalize().Validate(), dErrors.CodeValidation))
		})
	}
}

func TestApplyOverwriteKeepsIdentity(t *testing.T) {
	created := time.Now().Add(-time.Hour)
	p, err := models.NewProfile(id.ProfileID(uuid.New()), id.UserID(uuid.New()), validData(), created)
	require.NoError(t, err)
	originalID := p.ID

	d := validData()
	d.AnnualIncome = decimal.NewFromInt(900000)
	now := time.Now()
	p.ApplyOverwrite(d, now)

	assert.Equal(t, originalID, p.ID)
	assert.Equal(t, created, p.CreatedAt)
	assert.Equal(t, now, p.UpdatedAt)
	assert.True(t, p.AnnualIncome.Equal(decimal.NewFromInt(900000)))
}
