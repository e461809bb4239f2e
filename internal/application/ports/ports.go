// Package ports declares the external collaborators of the lifecycle service.
// Adapters live in their own packages and never import the service.
package ports

//go:generate mockgen -source=ports.go -destination=../service/mocks/ports.go -package=mocks

import (
	"context"
	"time"

	appmodels "scholarship/internal/application/models"
	docmodels "scholarship/internal/document/models"
	profilemodels "scholarship/internal/profile/models"
	id "scholarship/pkg/domain"
)

// File is one uploaded file as received from the caller.
type File struct {
	Name      string
	Type      docmodels.Type
	Content   []byte
	IssuedAt  *time.Time
	ExpiresAt *time.Time
}

// Classification names the kind of unsafe content a scanner found.
type Classification string

const (
	ClassificationClean      Classification = "clean"
	ClassificationExecutable Classification = "executable"
	ClassificationScript     Classification = "script"
	ClassificationTestVirus  Classification = "test_signature"
	ClassificationDisguised  Classification = "disguised_content"
	ClassificationOversized  Classification = "oversized"
)

type ScanResult struct {
	Safe           bool
	Classification Classification
	Details        string
}

// Scanner inspects file contents before anything is persisted.
type Scanner interface {
	Scan(ctx context.Context, file File) (ScanResult, error)
}

// BlobStore keeps file contents and hands back an opaque locator.
type BlobStore interface {
	Put(ctx context.Context, name string, content []byte) (string, error)
	Delete(ctx context.Context, locator string) error
	URLFor(locator string) string
}

// FraudScorer returns an advisory 0-100 risk score. Failures never block a
// submission.
type FraudScorer interface {
	Score(ctx context.Context, app *appmodels.Application, docs []*docmodels.Document) (int, error)
}

// Notifier delivers a human-readable message to a user. Delivery is best
// effort; callers log and drop errors.
type Notifier interface {
	Notify(ctx context.Context, userID id.UserID, message string) error
}

type AlertKind string

const (
	AlertDuplicateIdentity    AlertKind = "duplicate_identity"
	AlertDuplicateBankAccount AlertKind = "duplicate_bank_account"
	AlertDuplicateYear        AlertKind = "duplicate_year"
)

// PolicyAlert is an advisory finding. It never blocks a submission.
type PolicyAlert struct {
	ID        id.AlertID
	StudentID id.UserID
	Kind      AlertKind
	Detail    string
	CreatedAt time.Time
}

type PolicyDetector interface {
	Detect(ctx context.Context, studentID id.UserID, year int, profile profilemodels.Data) ([]PolicyAlert, error)
}

// ThreatRecorder keeps a per-student threat indicator raised by unsafe
// uploads and policy alerts.
type ThreatRecorder interface {
	Elevate(ctx context.Context, studentID id.UserID, reason string) (int64, error)
}
