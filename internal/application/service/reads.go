package service

import (
	"context"

	"scholarship/internal/application/models"
	docmodels "scholarship/internal/document/models"
	id "scholarship/pkg/domain"
	dErrors "scholarship/pkg/domain-errors"
)

func (s *Service) GetApplication(ctx context.Context, actor id.Actor, appID id.ApplicationID) (*models.Application, error) {
	app, err := s.loadApplication(ctx, appID)
	if err != nil {
		return nil, err
	}
	if err := s.canRead(ctx, actor, "get_application", app); err != nil {
		return nil, err
	}
	return app, nil
}

func (s *Service) ListDocuments(ctx context.Context, actor id.Actor, appID id.ApplicationID) ([]*docmodels.Document, error) {
	if _, err := s.GetApplication(ctx, actor, appID); err != nil {
		return nil, err
	}
	docs, err := s.docs.ListByApplication(ctx, appID)
	if err != nil {
		return nil, translate(err, "document")
	}
	return docs, nil
}

// ListQueries returns the folded view of the application's query log.
func (s *Service) ListQueries(ctx context.Context, actor id.Actor, appID id.ApplicationID) ([]models.Query, error) {
	app, err := s.GetApplication(ctx, actor, appID)
	if err != nil {
		return nil, err
	}
	return app.Queries.Queries(), nil
}

// MyApplications lists the caller's applications, newest first.
func (s *Service) MyApplications(ctx context.Context, actor id.Actor) ([]*models.Application, error) {
	if err := s.requireRole(ctx, actor, "my_applications", "application", id.RoleStudent); err != nil {
		return nil, err
	}
	apps, err := s.apps.ListByStudent(ctx, actor.ID)
	if err != nil {
		return nil, translate(err, "application")
	}
	return apps, nil
}

// Queue returns the reviewer's work queue. The stage is always taken from
// the caller's role; a requested stage is ignored.
func (s *Service) Queue(ctx context.Context, actor id.Actor, filter models.QueueFilter) (*QueuePage, error) {
	if err := s.requireRole(ctx, actor, "queue", "queue", id.RoleVerifier, id.RoleAdmin); err != nil {
		return nil, err
	}
	stage, ok := stageForRole(actor.Role)
	if !ok {
		return nil, dErrors.New(dErrors.CodeForbidden, "role has no review queue")
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown status filter")
	}
	filter.Stage = stage
	filter = filter.Normalize()

	items, total, err := s.apps.Queue(ctx, filter)
	if err != nil {
		return nil, translate(err, "application")
	}
	return &QueuePage{Items: items, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}
