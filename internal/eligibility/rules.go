// Package eligibility decides whether a profile snapshot qualifies for a
// scholarship. Evaluation is pure: no I/O, no clock, no side effects.
package eligibility

import (
	"slices"

	"github.com/shopspring/decimal"

	"scholarship/internal/profile/models"
)

// Outcome of an evaluation.
type Outcome string

const (
	Eligible    Outcome = "eligible"
	NotEligible Outcome = "not_eligible"
)

// Reason names the first rule that failed.
type Reason string

const (
	ReasonNone     Reason = ""
	ReasonIncome   Reason = "income_at_or_above_ceiling"
	ReasonMarks    Reason = "percentage_at_or_below_minimum"
	ReasonCategory Reason = "category_not_covered"
)

// Rules are the thresholds an evaluation is run against.
type Rules struct {
	IncomeCeiling decimal.Decimal
	MinPercentage float64
	Categories    []models.Category
}

// DefaultRules: income strictly below 250000, percentage strictly above 60,
// category SC, ST or OBC.
func DefaultRules() Rules {
	return Rules{
		IncomeCeiling: decimal.NewFromInt(250000),
		MinPercentage: 60,
		Categories:    []models.Category{models.CategorySC, models.CategoryST, models.CategoryOBC},
	}
}

// NewRules builds rules from configured values, falling back to the defaults
// for anything left unset.
func NewRules(incomeCeiling decimal.Decimal, minPercentage float64, categories []string) Rules {
	r := DefaultRules()
	if incomeCeiling.IsPositive() {
		r.IncomeCeiling = incomeCeiling
	}
	if minPercentage > 0 {
		r.MinPercentage = minPercentage
	}
	if len(categories) > 0 {
		r.Categories = make([]models.Category, 0, len(categories))
		for _, c := range categories {
			r.Categories = append(r.Categories, models.ParseCategory(c))
		}
	}
	return r
}

// Result is the outcome plus the first failing rule, if any.
type Result struct {
	Outcome Outcome
	Reason  Reason
}

func (r Result) Eligible() bool {
	return r.Outcome == Eligible
}

// Evaluate applies the rules in order, failing fast:
//  1. annual income must be below the ceiling
//  2. academic percentage must exceed the minimum
//  3. category must be one of the covered categories
func Evaluate(rules Rules, data models.Data) Result {
	if !data.AnnualIncome.LessThan(rules.IncomeCeiling) {
		return Result{Outcome: NotEligible, Reason: ReasonIncome}
	}
	if data.AcademicPercentage <= rules.MinPercentage {
		return Result{Outcome: NotEligible, Reason: ReasonMarks}
	}
	if !slices.Contains(rules.Categories, models.ParseCategory(string(data.Category))) {
		return Result{Outcome: NotEligible, Reason: ReasonCategory}
	}
	return Result{Outcome: Eligible}
}
