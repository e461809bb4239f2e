package service

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"scholarship/internal/application/models"
	"scholarship/internal/application/ports"
	docmodels "scholarship/internal/document/models"
	id "scholarship/pkg/domain"
	dErrors "scholarship/pkg/domain-errors"
	audit "scholarship/pkg/platform/audit"
	"scholarship/pkg/requestcontext"
)

// VerifyDocument records a verifier's decision on one document. The
// application status is left unchanged.
func (s *Service) VerifyDocument(ctx context.Context, actor id.Actor, docID id.DocumentID, decision docmodels.Decision, remarks string) (doc *docmodels.Document, err error) {
	ctx, end := s.begin(ctx, "verify_document", attribute.String("document_id", docID.String()))
	defer func() { end(&err) }()
	if err := s.requireRole(ctx, actor, "verify_document", docID.String(), id.RoleVerifier); err != nil {
		return nil, err
	}
	if decision != docmodels.DecisionApproved && decision != docmodels.DecisionRejected {
		return nil, dErrors.New(dErrors.CodeValidation, "decision must be approved or rejected")
	}
	remarks = strings.TrimSpace(remarks)

	current, err := s.loadDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	app, err := s.loadApplication(ctx, current.ApplicationID)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	err = s.inTx(ctx, []string{applicationKey(app.ID)}, func(ctx context.Context) error {
		doc, err = s.docs.Execute(ctx, docID,
			(*docmodels.Document).CanVerify,
			func(d *docmodels.Document) {
				d.ApplyVerification(decision, remarks, actor.ID, now)
			},
		)
		if err != nil {
			return translate(err, "document")
		}
		event := s.newEvent(ctx, audit.EventDocumentVerified, actor, app.StudentID, docID.String())
		event.Decision = string(decision)
		event.Reason = remarks
		return s.recordTransition(ctx, event)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementTransition(string(audit.EventDocumentVerified), string(doc.VerificationStatus))
	s.logger.InfoContext(ctx, "document verified",
		"document_id", docID.String(),
		"application_id", app.ID.String(),
		"decision", string(decision),
	)
	return doc, nil
}

// ReuploadDocument replaces the file behind an expired, rejected or flagged
// document and sends the application back to the verifier. Open queries and
// the profile snapshot are left untouched.
func (s *Service) ReuploadDocument(ctx context.Context, actor id.Actor, docID id.DocumentID, file ports.File) (doc *docmodels.Document, err error) {
	ctx, end := s.begin(ctx, "reupload_document", attribute.String("document_id", docID.String()))
	defer func() { end(&err) }()

	current, err := s.loadDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	app, err := s.loadApplication(ctx, current.ApplicationID)
	if err != nil {
		return nil, err
	}
	if err := s.requireOwner(ctx, actor, "reupload_document", app); err != nil {
		return nil, err
	}
	if err := s.validateFiles([]ports.File{file}, true); err != nil {
		return nil, err
	}
	if err := current.CanReupload(); err != nil {
		return nil, translate(err, "document")
	}
	if err := app.CanReupload(); err != nil {
		return nil, translate(err, "application")
	}
	if err := s.scanFiles(ctx, actor, docID.String(), []ports.File{file}); err != nil {
		return nil, err
	}
	locators, err := s.storeFiles(ctx, []ports.File{file})
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
	var updated *models.Application
	err = s.inTx(ctx, []string{applicationKey(app.ID)}, func(ctx context.Context) error {
		locked, err := s.apps.FindByID(ctx, app.ID)
		if err != nil {
			return translate(err, "application")
		}
		if err := checkVersion(ctx, locked); err != nil {
			return err
		}
		if err := locked.CanReupload(); err != nil {
			return translate(err, "application")
		}
		doc, err = s.docs.Execute(ctx, docID,
			(*docmodels.Document).CanReupload,
			func(d *docmodels.Document) {
				d.ApplyReupload(locators[0], file.Name, file.IssuedAt, file.ExpiresAt, now)
			},
		)
		if err != nil {
			return translate(err, "document")
		}
		updated, err = s.apps.Execute(ctx, app.ID,
			(*models.Application).CanReupload,
			func(a *models.Application) { a.ApplyReupload(now) },
		)
		if err != nil {
			return translate(err, "application")
		}
		event := s.newEvent(ctx, audit.EventDocumentReuploaded, actor, actor.ID, docID.String())
		event.Decision = string(updated.Status)
		return s.recordTransition(ctx, event)
	})
	if err != nil {
		return nil, err
	}
	committed = true

	s.metrics.IncrementTransition(string(audit.EventDocumentReuploaded), string(updated.Status))
	s.logger.InfoContext(ctx, "document re-uploaded",
		"document_id", docID.String(),
		"application_id", app.ID.String(),
	)
	return doc, nil
}

// ExpiredDocuments lists approved documents whose validity ended before the
// request time, one page at a time after the cursor.
func (s *Service) ExpiredDocuments(ctx context.Context, after *docmodels.ExpiryCursor, limit int) ([]*docmodels.Document, error) {
	docs, err := s.docs.ListExpired(ctx, requestcontext.Now(ctx), after, limit)
	if err != nil {
		return nil, translate(err, "document")
	}
	return docs, nil
}

// ExpireDocument marks one approved document as expired and reopens its
// application for re-verification. The expiry is re-checked under the
// application lock, so a concurrent re-upload or verification wins cleanly.
func (s *Service) ExpireDocument(ctx context.Context, docID id.DocumentID) (out *ExpiryOutcome, err error) {
	ctx, end := s.begin(ctx, "expire_document", attribute.String("document_id", docID.String()))
	defer func() { end(&err) }()

	actor := id.SystemActor()
	now := requestcontext.Now(ctx)
	current, err := s.loadDocument(ctx, docID)
	if err != nil {
		return nil, err
	}

	out = &ExpiryOutcome{ApplicationID: current.ApplicationID}
	err = s.inTx(ctx, []string{applicationKey(current.ApplicationID)}, func(ctx context.Context) error {
		doc, err := s.docs.Execute(ctx, docID,
			func(d *docmodels.Document) error { return d.CanExpire(now) },
			func(d *docmodels.Document) { d.ApplyExpiry(now) },
		)
		if err != nil {
			return translate(err, "document")
		}
		out.Document = doc

		app, err := s.apps.FindByID(ctx, doc.ApplicationID)
		if err != nil {
			return translate(err, "application")
		}
		out.StudentID = app.StudentID
		if app.Status != models.StatusRejected {
			if _, err := s.apps.Execute(ctx, app.ID,
				func(*models.Application) error { return nil },
				func(a *models.Application) { out.ApplicationChanged = a.ApplyExpiry(now) },
			); err != nil {
				return translate(err, "application")
			}
		}
		event := s.newEvent(ctx, audit.EventDocumentExpired, actor, app.StudentID, docID.String())
		event.Decision = string(docmodels.StatusExpired)
		return s.recordTransition(ctx, event)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementTransition(string(audit.EventDocumentExpired), string(out.Document.VerificationStatus))
	s.logger.InfoContext(ctx, "document expired",
		"document_id", docID.String(),
		"application_id", out.ApplicationID.String(),
		"application_reopened", out.ApplicationChanged,
	)
	return out, nil
}
