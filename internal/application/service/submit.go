package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"scholarship/internal/application/models"
	"scholarship/internal/eligibility"
	profilemodels "scholarship/internal/profile/models"
	id "scholarship/pkg/domain"
	dErrors "scholarship/pkg/domain-errors"
	audit "scholarship/pkg/platform/audit"
	"scholarship/pkg/requestcontext"
)

const resubmissionNote = "Resubmitted with updated information"

// precheck decides, from the student's existing applications, whether a new
// application for year may be created. It runs twice: once before any work
// and again under the student lock.
type precheck func(existing []*models.Application, year int) error

func firstApplication(existing []*models.Application, _ int) error {
	if len(existing) > 0 {
		return dErrors.New(dErrors.CodeConflict, "an application already exists for this student")
	}
	return nil
}

func renewal(existing []*models.Application, year int) error {
	approved := false
	for _, app := range existing {
		if app.Year == year {
			return dErrors.New(dErrors.CodeConflict, fmt.Sprintf("an application for %d already exists", year))
		}
		if app.Status == models.StatusApproved {
			approved = true
		}
	}
	if !approved {
		return dErrors.New(dErrors.CodeConflict, "renewal requires a previously approved application")
	}
	return nil
}

// Submit creates the student's first application.
func (s *Service) Submit(ctx context.Context, actor id.Actor, req SubmitRequest) (res *SubmitResult, err error) {
	ctx, end := s.begin(ctx, "submit", attribute.String("student_id", actor.ID.String()))
	defer func() { end(&err) }()
	if err := s.requireRole(ctx, actor, "submit", "application", id.RoleStudent); err != nil {
		return nil, err
	}
	return s.create(ctx, actor, req, models.TypeNew, firstApplication)
}

// Renew opens a renewal application for the current year. The student must
// hold a previously approved application and nothing for this year yet.
func (s *Service) Renew(ctx context.Context, actor id.Actor, req SubmitRequest) (res *SubmitResult, err error) {
	ctx, end := s.begin(ctx, "renew", attribute.String("student_id", actor.ID.String()))
	defer func() { end(&err) }()
	if err := s.requireRole(ctx, actor, "renew", "application", id.RoleStudent); err != nil {
		return nil, err
	}
	return s.create(ctx, actor, req, models.TypeRenewal, renewal)
}

func (s *Service) create(ctx context.Context, actor id.Actor, req SubmitRequest, appType models.Type, check precheck) (*SubmitResult, error) {
	data := req.Profile.Normalize()
	if err := data.Validate(); err != nil {
		return nil, err
	}
	if err := s.validateFiles(req.Files, true); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	year := now.Year()
	existing, err := s.apps.ListByStudent(ctx, actor.ID)
	if err != nil {
		return nil, translate(err, "application")
	}
	if err := check(existing, year); err != nil {
		return nil, err
	}

	appID := id.ApplicationID(uuid.New())
	if err := s.scanFiles(ctx, actor, appID.String(), req.Files); err != nil {
		return nil, err
	}
	locators, err := s.storeFiles(ctx, req.Files)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			s.discardFiles(ctx, locators)
		}
	}()

	profile, err := profilemodels.NewProfile(id.ProfileID(uuid.New()), actor.ID, data, now)
	if err != nil {
		return nil, asValidation(err)
	}
	outcome := eligibility.Evaluate(s.rules, profile.Data)
	status := models.EligibilityNotEligible
	if outcome.Eligible() {
		status = models.EligibilityEligible
	}
	app, err := models.NewApplication(appID, actor.ID, profile.ID, appType, year, status, profile.District, now)
	if err != nil {
		return nil, asValidation(err)
	}
	docs, err := buildDocuments(app.ID, req.Files, locators, now)
	if err != nil {
		return nil, err
	}

	alerts := s.detectPolicy(ctx, actor, year, app, profile.Data)
	s.scoreFraud(ctx, app, docs)

	action := audit.EventApplicationSubmitted
	if appType == models.TypeRenewal {
		action = audit.EventApplicationRenewed
	}
	err = s.inTx(ctx, []string{studentKey(actor.ID)}, func(ctx context.Context) error {
		current, err := s.apps.ListByStudent(ctx, actor.ID)
		if err != nil {
			return translate(err, "application")
		}
		if err := check(current, year); err != nil {
			return err
		}
		if err := s.profiles.Create(ctx, profile); err != nil {
			return translate(err, "profile")
		}
		if err := s.apps.Create(ctx, app); err != nil {
			return translate(err, "application")
		}
		if err := s.docs.CreateMany(ctx, docs); err != nil {
			return translate(err, "document")
		}
		event := s.newEvent(ctx, action, actor, actor.ID, app.ID.String())
		event.Decision = string(app.Status)
		event.Reason = "eligibility:" + string(app.Eligibility)
		return s.recordTransition(ctx, event)
	})
	if err != nil {
		return nil, err
	}
	committed = true

	s.metrics.IncrementTransition(string(action), string(app.Status))
	s.logger.InfoContext(ctx, "application created",
		"application_id", app.ID.String(),
		"student_id", actor.ID.String(),
		"type", string(app.Type),
		"year", app.Year,
		"eligibility", string(app.Eligibility),
		"documents", len(docs),
		"alerts", len(alerts),
	)
	s.notify(ctx, actor.ID, fmt.Sprintf("Your %s scholarship application for %d has been submitted.", app.Type, app.Year))
	return &SubmitResult{Application: app, Documents: docs, Alerts: alerts}, nil
}

// Resubmit answers every open query at once: the profile snapshot is
// overwritten, new documents are appended and the application goes back to
// the verifier. Eligibility is not recomputed.
func (s *Service) Resubmit(ctx context.Context, actor id.Actor, appID id.ApplicationID, req SubmitRequest) (res *SubmitResult, err error) {
	ctx, end := s.begin(ctx, "resubmit", attribute.String("application_id", appID.String()))
	defer func() { end(&err) }()

	app, err := s.loadApplication(ctx, appID)
	if err != nil {
		return nil, err
	}
	if err := s.requireOwner(ctx, actor, "resubmit", app); err != nil {
		return nil, err
	}
	data := req.Profile.Normalize()
	if err := data.Validate(); err != nil {
		return nil, err
	}
	if err := s.validateFiles(req.Files, false); err != nil {
		return nil, err
	}
	if err := app.CanResubmit(); err != nil {
		return nil, translate(err, "application")
	}
	if err := s.scanFiles(ctx, actor, app.ID.String(), req.Files); err != nil {
		return nil, err
	}
	locators, err := s.storeFiles(ctx, req.Files)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			s.discardFiles(ctx, locators)
		}
	}()

	now := requestcontext.Now(ctx)
	docs, err := buildDocuments(app.ID, req.Files, locators, now)
	if err != nil {
		return nil, err
	}

	var updated *models.Application
	err = s.inTx(ctx, []string{applicationKey(appID)}, func(ctx context.Context) error {
		profile, err := s.profiles.FindByID(ctx, app.ProfileID)
		if err != nil {
			return translate(err, "profile")
		}
		updated, err = s.apps.Execute(ctx, appID,
			func(a *models.Application) error {
				if err := checkVersion(ctx, a); err != nil {
					return err
				}
				return a.CanResubmit()
			},
			func(a *models.Application) {
				a.ApplyResubmission(actor, resubmissionNote, now)
			},
		)
		if err != nil {
			return translate(err, "application")
		}
		profile.ApplyOverwrite(data, now)
		if err := s.profiles.Update(ctx, profile); err != nil {
			return translate(err, "profile")
		}
		if len(docs) > 0 {
			if err := s.docs.CreateMany(ctx, docs); err != nil {
				return translate(err, "document")
			}
		}
		event := s.newEvent(ctx, audit.EventApplicationResubmitted, actor, actor.ID, appID.String())
		event.Decision = string(updated.Status)
		return s.recordTransition(ctx, event)
	})
	if err != nil {
		return nil, err
	}
	committed = true

	s.metrics.IncrementTransition(string(audit.EventApplicationResubmitted), string(updated.Status))
	s.logger.InfoContext(ctx, "application resubmitted",
		"application_id", appID.String(),
		"documents", len(docs),
	)
	return &SubmitResult{Application: updated, Documents: docs}, nil
}

// Reset discards the student's latest application together with its
// documents and profile snapshot. It is refused once funds were withdrawn.
func (s *Service) Reset(ctx context.Context, actor id.Actor) (err error) {
	ctx, end := s.begin(ctx, "reset", attribute.String("student_id", actor.ID.String()))
	defer func() { end(&err) }()
	if err := s.requireRole(ctx, actor, "reset", "application", id.RoleStudent); err != nil {
		return err
	}
	existing, err := s.apps.ListByStudent(ctx, actor.ID)
	if err != nil {
		return translate(err, "application")
	}
	if len(existing) == 0 {
		return dErrors.New(dErrors.CodeNotFound, "no application to reset")
	}
	latest := existing[0]

	err = s.inTx(ctx, []string{studentKey(actor.ID), applicationKey(latest.ID)}, func(ctx context.Context) error {
		app, err := s.apps.FindByID(ctx, latest.ID)
		if err != nil {
			return translate(err, "application")
		}
		if err := checkVersion(ctx, app); err != nil {
			return err
		}
		if err := app.CanReset(); err != nil {
			return dErrors.New(dErrors.CodeConflict, dErrors.MessageOf(err))
		}
		if err := s.docs.DeleteByApplication(ctx, app.ID); err != nil {
			return translate(err, "document")
		}
		if err := s.apps.Delete(ctx, app.ID); err != nil {
			return translate(err, "application")
		}
		if err := s.profiles.Delete(ctx, app.ProfileID); err != nil {
			return translate(err, "profile")
		}
		event := s.newEvent(ctx, audit.EventApplicationReset, actor, actor.ID, app.ID.String())
		event.Decision = "deleted"
		return s.recordTransition(ctx, event)
	})
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "application reset",
		"application_id", latest.ID.String(),
		"student_id", actor.ID.String(),
	)
	return nil
}
