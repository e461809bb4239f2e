package service

import (
	"context"

	"scholarship/internal/application/models"
	id "scholarship/pkg/domain"
	dErrors "scholarship/pkg/domain-errors"
	audit "scholarship/pkg/platform/audit"
)

// deny records an authorization failure and returns the error to surface.
// The message names the missing capability only.
func (s *Service) deny(ctx context.Context, actor id.Actor, op string, studentID id.UserID, subject, reason string) error {
	s.metrics.IncrementSecurityDenial("authorization")
	s.logger.WarnContext(ctx, "authorization denied",
		"operation", op,
		"actor_id", actorID(actor),
		"actor_role", string(actor.Role),
		"subject", subject,
	)
	event := s.newEvent(ctx, audit.EventAuthorizationDenied, actor, studentID, subject)
	event.Decision = "denied"
	event.Reason = op + ": " + reason
	event.Severity = audit.SeverityWarning
	s.recordSecurity(ctx, event)
	return dErrors.New(dErrors.CodeForbidden, reason)
}

func (s *Service) requireRole(ctx context.Context, actor id.Actor, op string, subject string, roles ...id.Role) error {
	if !actor.Authenticated() {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	for _, r := range roles {
		if actor.Is(r) {
			return nil
		}
	}
	return s.deny(ctx, actor, op, id.UserID{}, subject, "role not permitted")
}

// requireOwner admits only the student who owns app.
func (s *Service) requireOwner(ctx context.Context, actor id.Actor, op string, app *models.Application) error {
	if err := s.requireRole(ctx, actor, op, app.ID.String(), id.RoleStudent); err != nil {
		return err
	}
	if !app.IsOwnedBy(actor.ID) {
		return s.deny(ctx, actor, op, app.StudentID, app.ID.String(), "not the owner of this application")
	}
	return nil
}

// requireStage admits a reviewer whose role matches the application's
// current stage.
func (s *Service) requireStage(ctx context.Context, actor id.Actor, op string, app *models.Application, stage models.Stage) error {
	if app.Stage != stage {
		return s.deny(ctx, actor, op, app.StudentID, app.ID.String(), "application is not at the "+string(stage)+" stage")
	}
	return nil
}

// canRead reports whether actor may see app. Reviewers see everything;
// students only their own.
func (s *Service) canRead(ctx context.Context, actor id.Actor, op string, app *models.Application) error {
	if !actor.Authenticated() {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	switch actor.Role {
	case id.RoleVerifier, id.RoleAdmin, id.RoleSystem:
		return nil
	case id.RoleStudent:
		if app.IsOwnedBy(actor.ID) {
			return nil
		}
	}
	return s.deny(ctx, actor, op, app.StudentID, app.ID.String(), "not permitted to view this application")
}

// stageForRole maps a reviewer role to the stage it works on.
func stageForRole(role id.Role) (models.Stage, bool) {
	switch role {
	case id.RoleVerifier:
		return models.StageVerifier, true
	case id.RoleAdmin:
		return models.StageAdmin, true
	}
	return "", false
}
