package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"scholarship/internal/application/models"
	id "scholarship/pkg/domain"
	dErrors "scholarship/pkg/domain-errors"
	audit "scholarship/pkg/platform/audit"
	"scholarship/pkg/requestcontext"
)

// transition is one reviewer action on an application: a precondition, the
// mutation and the audit entry written with it.
type transition struct {
	op     string
	action audit.AuditEvent
	stage  models.Stage
	// anyStage skips the stage check for transitions any reviewer may run.
	anyStage bool
	check    func(*models.Application) error
	apply    func(*models.Application)
	reason   string
	message  func(*models.Application) string
}

// review runs t under the application lock. The stage is checked again on the
// locked copy because a concurrent forward or resubmission may have moved it.
func (s *Service) review(ctx context.Context, actor id.Actor, appID id.ApplicationID, t transition) (*models.Application, error) {
	app, err := s.loadApplication(ctx, appID)
	if err != nil {
		return nil, err
	}
	if !t.anyStage {
		if err := s.requireStage(ctx, actor, t.op, app, t.stage); err != nil {
			return nil, err
		}
	}

	var updated *models.Application
	err = s.inTx(ctx, []string{applicationKey(appID)}, func(ctx context.Context) error {
		updated, err = s.apps.Execute(ctx, appID,
			func(a *models.Application) error {
				if err := checkVersion(ctx, a); err != nil {
					return err
				}
				if !t.anyStage && a.Stage != t.stage {
					return dErrors.New(dErrors.CodeForbidden, "application is not at the "+string(t.stage)+" stage")
				}
				return t.check(a)
			},
			t.apply,
		)
		if err != nil {
			return translate(err, "application")
		}
		event := s.newEvent(ctx, t.action, actor, updated.StudentID, appID.String())
		event.Decision = string(updated.Status)
		event.Reason = t.reason
		return s.recordTransition(ctx, event)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementTransition(string(t.action), string(updated.Status))
	s.logger.InfoContext(ctx, "application transitioned",
		"operation", t.op,
		"application_id", appID.String(),
		"status", string(updated.Status),
		"stage", string(updated.Stage),
		"actor_id", actorID(actor),
	)
	if t.message != nil {
		s.notify(ctx, updated.StudentID, t.message(updated))
	}
	return updated, nil
}

// Forward hands a verified application to the admin stage.
func (s *Service) Forward(ctx context.Context, actor id.Actor, appID id.ApplicationID) (app *models.Application, err error) {
	ctx, end := s.begin(ctx, "forward", attribute.String("application_id", appID.String()))
	defer func() { end(&err) }()
	if err := s.requireRole(ctx, actor, "forward", appID.String(), id.RoleVerifier); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	return s.review(ctx, actor, appID, transition{
		op:     "forward",
		action: audit.EventApplicationForwarded,
		stage:  models.StageVerifier,
		check:  (*models.Application).CanForward,
		apply:  func(a *models.Application) { a.ApplyForward(now) },
		message: func(*models.Application) string {
			return "Your application has been verified and forwarded for final review."
		},
	})
}

// RaiseQuery asks the student for clarification. Verifiers and admins may
// raise one whatever stage the application is at.
func (s *Service) RaiseQuery(ctx context.Context, actor id.Actor, appID id.ApplicationID, req RaiseQueryRequest) (app *models.Application, err error) {
	ctx, end := s.begin(ctx, "raise_query", attribute.String("application_id", appID.String()))
	defer func() { end(&err) }()
	if err := s.requireRole(ctx, actor, "raise_query", appID.String(), id.RoleVerifier, id.RoleAdmin); err != nil {
		return nil, err
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	queryID := id.QueryID(uuid.New())
	return s.review(ctx, actor, appID, transition{
		op:       "raise_query",
		action:   audit.EventQueryRaised,
		anyStage: true,
		check:    (*models.Application).CanRaiseQuery,
		apply: func(a *models.Application) {
			a.ApplyRaiseQuery(queryID, actor, req.Field, req.Title, req.Message, now)
		},
		reason: req.Title,
		message: func(*models.Application) string {
			return "A query was raised on your application: " + req.Title
		},
	})
}

// Approve grants amount and opens the application for withdrawals.
func (s *Service) Approve(ctx context.Context, actor id.Actor, appID id.ApplicationID, amount decimal.Decimal) (app *models.Application, err error) {
	ctx, end := s.begin(ctx, "approve", attribute.String("application_id", appID.String()))
	defer func() { end(&err) }()
	if err := s.requireRole(ctx, actor, "approve", appID.String(), id.RoleAdmin); err != nil {
		return nil, err
	}
	if err := requirePositive(amount, "scholarship amount"); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	return s.review(ctx, actor, appID, transition{
		op:     "approve",
		action: audit.EventApplicationApproved,
		stage:  models.StageAdmin,
		check:  func(a *models.Application) error { return a.CanApprove(amount) },
		apply:  func(a *models.Application) { a.ApplyApproval(amount, now) },
		reason: "amount:" + amount.String(),
		message: func(a *models.Application) string {
			return fmt.Sprintf("Congratulations! Your scholarship of %s has been approved.", a.ScholarshipAmount.StringFixed(2))
		},
	})
}

// Reject closes the application and records the reason in the query log.
// An admin may reject at either stage.
func (s *Service) Reject(ctx context.Context, actor id.Actor, appID id.ApplicationID, reason string) (app *models.Application, err error) {
	ctx, end := s.begin(ctx, "reject", attribute.String("application_id", appID.String()))
	defer func() { end(&err) }()
	if err := s.requireRole(ctx, actor, "reject", appID.String(), id.RoleAdmin); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "rejection reason is required")
	}
	now := requestcontext.Now(ctx)
	queryID := id.QueryID(uuid.New())
	return s.review(ctx, actor, appID, transition{
		op:       "reject",
		action:   audit.EventApplicationRejected,
		anyStage: true,
		check:    (*models.Application).CanReject,
		apply:    func(a *models.Application) { a.ApplyRejection(queryID, actor, reason, now) },
		reason:   reason,
		message: func(*models.Application) string {
			return "Your scholarship application was rejected: " + reason
		},
	})
}

// OverrideStatus moves an open application to any non-terminal status.
func (s *Service) OverrideStatus(ctx context.Context, actor id.Actor, appID id.ApplicationID, target models.Status, note string) (app *models.Application, err error) {
	ctx, end := s.begin(ctx, "override_status", attribute.String("application_id", appID.String()))
	defer func() { end(&err) }()
	if err := s.requireRole(ctx, actor, "override_status", appID.String(), id.RoleAdmin); err != nil {
		return nil, err
	}
	if !target.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown status")
	}
	if target.IsTerminal() {
		return nil, dErrors.New(dErrors.CodeValidation, "use approve or reject for terminal statuses")
	}
	now := requestcontext.Now(ctx)
	return s.review(ctx, actor, appID, transition{
		op:       "override_status",
		action:   audit.EventStatusOverridden,
		anyStage: true,
		check:    func(a *models.Application) error { return a.CanOverride(target) },
		apply:    func(a *models.Application) { a.ApplyOverride(target, now) },
		reason:   strings.TrimSpace(note),
		message: func(a *models.Application) string {
			return "Your application status was updated to " + string(a.Status) + "."
		},
	})
}
