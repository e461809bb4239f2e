package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"scholarship/internal/application/models"
	"scholarship/internal/application/ports"
	docmodels "scholarship/internal/document/models"
	profilemodels "scholarship/internal/profile/models"
	id "scholarship/pkg/domain"
	dErrors "scholarship/pkg/domain-errors"
	audit "scholarship/pkg/platform/audit"
)

func (s *Service) validateFiles(files []ports.File, required bool) error {
	if required && len(files) == 0 {
		return dErrors.New(dErrors.CodeValidation, "at least one document is required")
	}
	if len(files) > s.maxFiles {
		return dErrors.New(dErrors.CodeValidation, "too many files")
	}
	for _, f := range files {
		if strings.TrimSpace(f.Name) == "" {
			return dErrors.New(dErrors.CodeValidation, "file name is required")
		}
		if len(f.Content) == 0 {
			return dErrors.New(dErrors.CodeValidation, "file "+f.Name+" is empty")
		}
		if f.Type != "" && !f.Type.IsValid() {
			return dErrors.New(dErrors.CodeValidation, "invalid document type for "+f.Name)
		}
		if f.IssuedAt != nil && f.ExpiresAt != nil && !f.ExpiresAt.After(*f.IssuedAt) {
			return dErrors.New(dErrors.CodeValidation, "expiry date must be after issue date for "+f.Name)
		}
	}
	return nil
}

// scanFiles inspects every file before anything is written. One unsafe file
// rejects the whole batch.
func (s *Service) scanFiles(ctx context.Context, actor id.Actor, subject string, files []ports.File) error {
	results := make([]ports.ScanResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			r, err := s.scanner.Scan(gctx, f)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "file scanning unavailable")
	}

	var denied *ports.ScanResult
	for i := range results {
		r := results[i]
		if r.Safe {
			continue
		}
		if denied == nil {
			denied = &results[i]
		}
		s.metrics.IncrementSecurityDenial(string(r.Classification))
		s.logger.ErrorContext(ctx, "CRITICAL: unsafe upload blocked",
			"student_id", actor.ID.String(),
			"file_name", files[i].Name,
			"classification", string(r.Classification),
			"details", r.Details,
		)
		event := s.newEvent(ctx, audit.EventUnsafeUploadBlocked, actor, actor.ID, subject)
		event.Decision = "blocked"
		event.Reason = string(r.Classification)
		event.Severity = audit.SeverityCritical
		s.recordSecurity(ctx, event)
	}
	if denied == nil {
		return nil
	}
	s.elevateThreat(ctx, actor.ID, "unsafe_upload:"+string(denied.Classification))
	return dErrors.New(dErrors.CodeSecurityDenial, "upload rejected: "+string(denied.Classification))
}

// storeFiles writes scanned files to the blob store and returns their
// locators in input order.
func (s *Service) storeFiles(ctx context.Context, files []ports.File) ([]string, error) {
	locators := make([]string, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			loc, err := s.blobs.Put(gctx, f.Name, f.Content)
			if err != nil {
				return err
			}
			locators[i] = loc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.discardFiles(ctx, locators)
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to store documents")
	}
	return locators, nil
}

// discardFiles removes blobs whose records were never committed. Failures are
// logged; the blob is then orphaned on disk.
func (s *Service) discardFiles(ctx context.Context, locators []string) {
	ctx = context.WithoutCancel(ctx)
	for _, loc := range locators {
		if loc == "" {
			continue
		}
		if err := s.blobs.Delete(ctx, loc); err != nil {
			s.logger.WarnContext(ctx, "failed to discard uploaded blob",
				"locator", loc,
				"error", err,
			)
		}
	}
}

func buildDocuments(appID id.ApplicationID, files []ports.File, locators []string, now time.Time) ([]*docmodels.Document, error) {
	docs := make([]*docmodels.Document, 0, len(files))
	for i, f := range files {
		docType := f.Type
		if docType == "" {
			docType = docmodels.TypeOther
		}
		doc, err := docmodels.NewDocument(id.DocumentID(uuid.New()), appID, docType, locators[i], f.Name, f.IssuedAt, f.ExpiresAt, now)
		if err != nil {
			return nil, asValidation(err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// asValidation converts constructor invariant violations into caller errors.
func asValidation(err error) error {
	if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
		return dErrors.New(dErrors.CodeValidation, dErrors.MessageOf(err))
	}
	return err
}

// scoreFraud asks the external scorer for an advisory score. Any failure
// leaves the score unset.
func (s *Service) scoreFraud(ctx context.Context, app *models.Application, docs []*docmodels.Document) {
	if s.fraud == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.fraudTimeout)
	defer cancel()
	score, err := s.fraud.Score(ctx, app, docs)
	if err != nil {
		s.metrics.IncrementFraudScore("unavailable")
		s.logger.WarnContext(ctx, "fraud scoring skipped",
			"application_id", app.ID.String(),
			"error", err,
		)
		return
	}
	if err := app.RecordFraudScore(score); err != nil {
		s.metrics.IncrementFraudScore("invalid")
		s.logger.WarnContext(ctx, "fraud score discarded",
			"application_id", app.ID.String(),
			"score", score,
		)
		return
	}
	s.metrics.IncrementFraudScore("scored")
}

// detectPolicy runs the abuse heuristics. Alerts are advisory: they are
// audited and raise the threat indicator but never fail the submission.
func (s *Service) detectPolicy(ctx context.Context, actor id.Actor, year int, app *models.Application, data profilemodels.Data) []ports.PolicyAlert {
	if s.detector == nil {
		return nil
	}
	alerts, err := s.detector.Detect(ctx, actor.ID, year, data)
	if err != nil {
		s.logger.WarnContext(ctx, "policy detection failed",
			"student_id", actor.ID.String(),
			"error", err,
		)
		return nil
	}
	for _, a := range alerts {
		s.metrics.IncrementPolicyAlert(string(a.Kind))
		s.logger.WarnContext(ctx, "policy alert raised",
			"student_id", actor.ID.String(),
			"kind", string(a.Kind),
			"detail", a.Detail,
		)
		event := s.newEvent(ctx, audit.EventPolicyAlertRaised, actor, actor.ID, app.ID.String())
		event.Decision = "flagged"
		event.Reason = string(a.Kind)
		event.Severity = audit.SeverityWarning
		s.recordSecurity(ctx, event)
	}
	if len(alerts) > 0 {
		s.elevateThreat(ctx, actor.ID, "policy_alert:"+string(alerts[0].Kind))
	}
	return alerts
}
