package audit

import (
	"context"
	"time"

	id "scholarship/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose so they can
// be routed and retained differently.
type EventCategory string

const (
	// CategoryCompliance covers lifecycle decisions and fund movements. Written
	// fail-closed in the same transaction as the state change.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers blocked uploads, policy alerts and authorization denials.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers background activity such as sweep runs.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	// UserID is the student the event concerns.
	UserID id.UserID
	// Subject is the primary record involved (application or document ID).
	Subject   string
	Action    string
	Decision  string
	Reason    string
	RequestID string
	ActorID   string
	ActorRole string
	Severity  Severity
	IP        string
	Client    string
}

// Severity levels for security events.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

type AuditEvent string

const (
	// Lifecycle
	EventApplicationSubmitted   AuditEvent = "application_submitted"
	EventApplicationRenewed     AuditEvent = "application_renewed"
	EventApplicationForwarded   AuditEvent = "application_forwarded"
	EventQueryRaised            AuditEvent = "query_raised"
	EventApplicationResubmitted AuditEvent = "application_resubmitted"
	EventApplicationApproved    AuditEvent = "application_approved"
	EventApplicationRejected    AuditEvent = "application_rejected"
	EventStatusOverridden       AuditEvent = "status_overridden"
	EventApplicationReset       AuditEvent = "application_reset"

	// Documents
	EventDocumentVerified   AuditEvent = "document_verified"
	EventDocumentReuploaded AuditEvent = "document_reuploaded"
	EventDocumentExpired    AuditEvent = "document_expired"

	// Funds
	EventFundsWithdrawn AuditEvent = "funds_withdrawn"

	// Security
	EventUnsafeUploadBlocked AuditEvent = "unsafe_upload_blocked"
	EventPolicyAlertRaised   AuditEvent = "policy_alert_raised"
	EventAuthorizationDenied AuditEvent = "authorization_denied"

	// Operations
	EventSweepCompleted AuditEvent = "expiry_sweep_completed"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventApplicationSubmitted:   CategoryCompliance,
	EventApplicationRenewed:     CategoryCompliance,
	EventApplicationForwarded:   CategoryCompliance,
	EventQueryRaised:            CategoryCompliance,
	EventApplicationResubmitted: CategoryCompliance,
	EventApplicationApproved:    CategoryCompliance,
	EventApplicationRejected:    CategoryCompliance,
	EventStatusOverridden:       CategoryCompliance,
	EventApplicationReset:       CategoryCompliance,
	EventDocumentVerified:       CategoryCompliance,
	EventDocumentReuploaded:     CategoryCompliance,
	EventDocumentExpired:        CategoryCompliance,
	EventFundsWithdrawn:         CategoryCompliance,

	EventUnsafeUploadBlocked: CategorySecurity,
	EventPolicyAlertRaised:   CategorySecurity,
	EventAuthorizationDenied: CategorySecurity,

	EventSweepCompleted: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByUser(ctx context.Context, userID id.UserID) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}
