package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"scholarship/internal/application/metrics"
	"scholarship/internal/application/models"
	"scholarship/internal/application/ports"
	docmodels "scholarship/internal/document/models"
	"scholarship/internal/eligibility"
	profilemodels "scholarship/internal/profile/models"
	id "scholarship/pkg/domain"
	dErrors "scholarship/pkg/domain-errors"
	audit "scholarship/pkg/platform/audit"
	"scholarship/pkg/platform/sentinel"
	"scholarship/pkg/requestcontext"
)

type ApplicationStore interface {
	Create(ctx context.Context, app *models.Application) error
	FindByID(ctx context.Context, appID id.ApplicationID) (*models.Application, error)
	ListByStudent(ctx context.Context, studentID id.UserID) ([]*models.Application, error)
	Queue(ctx context.Context, filter models.QueueFilter) ([]*models.Application, int, error)
	Execute(ctx context.Context, appID id.ApplicationID, validate func(*models.Application) error, mutate func(*models.Application)) (*models.Application, error)
	Delete(ctx context.Context, appID id.ApplicationID) error
	CreateDisbursement(ctx context.Context, d *models.Disbursement) error
	ListDisbursements(ctx context.Context, appID id.ApplicationID) ([]*models.Disbursement, error)
}

type DocumentStore interface {
	CreateMany(ctx context.Context, docs []*docmodels.Document) error
	FindByID(ctx context.Context, docID id.DocumentID) (*docmodels.Document, error)
	ListByApplication(ctx context.Context, appID id.ApplicationID) ([]*docmodels.Document, error)
	ListExpired(ctx context.Context, now time.Time, after *docmodels.ExpiryCursor, limit int) ([]*docmodels.Document, error)
	Execute(ctx context.Context, docID id.DocumentID, validate func(*docmodels.Document) error, mutate func(*docmodels.Document)) (*docmodels.Document, error)
	DeleteByApplication(ctx context.Context, appID id.ApplicationID) error
}

type ProfileStore interface {
	Create(ctx context.Context, p *profilemodels.Profile) error
	FindByID(ctx context.Context, profileID id.ProfileID) (*profilemodels.Profile, error)
	Update(ctx context.Context, p *profilemodels.Profile) error
	Delete(ctx context.Context, profileID id.ProfileID) error
}

// TxRunner serializes work on the given lock keys and makes the writes inside
// fn atomic where the backing store supports it. Calls must not be nested.
type TxRunner interface {
	RunInTx(ctx context.Context, keys []string, fn func(ctx context.Context) error) error
}

// AuditPublisher emits an event. The compliance publisher returns an error the
// caller must act on; the security publisher is best effort.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

const (
	defaultFraudTimeout = 3 * time.Second
	defaultMaxFiles     = 10
)

// Service owns every state transition of an application and its documents.
// All mutations of one application are serialized on its lock key.
type Service struct {
	apps     ApplicationStore
	docs     DocumentStore
	profiles ProfileStore
	tx       TxRunner
	scanner  ports.Scanner
	blobs    ports.BlobStore

	fraud        ports.FraudScorer
	fraudTimeout time.Duration
	notifier     ports.Notifier
	detector     ports.PolicyDetector
	threats      ports.ThreatRecorder
	rules        eligibility.Rules
	maxFiles     int

	compliance AuditPublisher
	security   AuditPublisher
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
}

type Option func(*Service)

func WithFraudScorer(scorer ports.FraudScorer) Option {
	return func(s *Service) {
		s.fraud = scorer
	}
}

func WithFraudTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.fraudTimeout = d
		}
	}
}

func WithNotifier(n ports.Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

func WithPolicyDetector(d ports.PolicyDetector) Option {
	return func(s *Service) {
		s.detector = d
	}
}

func WithThreatRecorder(r ports.ThreatRecorder) Option {
	return func(s *Service) {
		s.threats = r
	}
}

func WithEligibilityRules(rules eligibility.Rules) Option {
	return func(s *Service) {
		s.rules = rules
	}
}

// WithMaxFiles caps the number of files accepted by one submission.
func WithMaxFiles(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxFiles = n
		}
	}
}

// WithAuditPublisher sets the fail-closed publisher for lifecycle events.
func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) {
		s.compliance = p
	}
}

// WithSecurityPublisher sets the best-effort publisher for security events.
func WithSecurityPublisher(p AuditPublisher) Option {
	return func(s *Service) {
		s.security = p
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

func New(
	apps ApplicationStore,
	docs DocumentStore,
	profiles ProfileStore,
	tx TxRunner,
	scanner ports.Scanner,
	blobs ports.BlobStore,
	opts ...Option,
) *Service {
	s := &Service{
		apps:         apps,
		docs:         docs,
		profiles:     profiles,
		tx:           tx,
		scanner:      scanner,
		blobs:        blobs,
		fraudTimeout: defaultFraudTimeout,
		rules:        eligibility.DefaultRules(),
		maxFiles:     defaultMaxFiles,
		logger:       slog.Default(),
		tracer:       otel.Tracer("scholarship/application"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FileURL resolves a stored document locator to a URL clients can fetch.
func (s *Service) FileURL(locator string) string {
	return s.blobs.URLFor(locator)
}

// inTx runs fn through the TxRunner and codes any uncoded failure.
func (s *Service) inTx(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	return translate(s.tx.RunInTx(ctx, keys, fn), "transaction")
}

func studentKey(studentID id.UserID) string {
	return "student:" + studentID.String()
}

func applicationKey(appID id.ApplicationID) string {
	return "application:" + appID.String()
}

// begin opens a span for op and returns a finisher that records the outcome
// and latency. Call it as `defer func() { end(&err) }()`.
func (s *Service) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(*error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "application."+op, trace.WithAttributes(attrs...))
	return ctx, func(errp *error) {
		if errp != nil && *errp != nil {
			span.RecordError(*errp)
			span.SetStatus(codes.Error, dErrors.MessageOf(*errp))
		}
		span.End()
		s.metrics.ObserveOperation(op, time.Since(start))
	}
}

// translate maps store sentinels and model invariant violations onto the
// coded errors the transport understands. Coded errors pass through.
func translate(err error, what string) error {
	if err == nil {
		return nil
	}
	var coded *dErrors.Error
	if errors.As(err, &coded) {
		if coded.Code == dErrors.CodeInvariantViolation {
			return dErrors.New(dErrors.CodeInvalidState, coded.Message)
		}
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, what+" not found")
	case errors.Is(err, sentinel.ErrStaleVersion):
		return dErrors.New(dErrors.CodeStaleVersion, what+" was modified concurrently")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, what+" already exists")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.New(dErrors.CodeInvalidState, what+" is in the wrong state")
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "storage unavailable")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "operation timed out")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to process "+what)
	}
}

// checkVersion enforces the If-Match token carried on ctx, if any.
func checkVersion(ctx context.Context, app *models.Application) error {
	if expected, ok := requestcontext.ExpectedVersion(ctx); ok && expected != app.Version {
		return dErrors.New(dErrors.CodeStaleVersion, "application was modified; reload and retry")
	}
	return nil
}

func (s *Service) loadApplication(ctx context.Context, appID id.ApplicationID) (*models.Application, error) {
	app, err := s.apps.FindByID(ctx, appID)
	if err != nil {
		return nil, translate(err, "application")
	}
	return app, nil
}

func (s *Service) loadDocument(ctx context.Context, docID id.DocumentID) (*docmodels.Document, error) {
	doc, err := s.docs.FindByID(ctx, docID)
	if err != nil {
		return nil, translate(err, "document")
	}
	return doc, nil
}

func (s *Service) newEvent(ctx context.Context, action audit.AuditEvent, actor id.Actor, studentID id.UserID, subject string) audit.Event {
	return audit.Event{
		Category:  action.Category(),
		Timestamp: requestcontext.Now(ctx),
		UserID:    studentID,
		Subject:   subject,
		Action:    string(action),
		RequestID: requestcontext.RequestID(ctx),
		ActorID:   actorID(actor),
		ActorRole: string(actor.Role),
		IP:        requestcontext.ClientIP(ctx),
		Client:    requestcontext.ClientSummary(ctx),
	}
}

func actorID(actor id.Actor) string {
	if actor.ID.IsNil() {
		return string(actor.Role)
	}
	return actor.ID.String()
}

// recordTransition writes the compliance record for a committed transition.
// It runs inside the transaction so a failed write aborts the change.
func (s *Service) recordTransition(ctx context.Context, event audit.Event) error {
	if s.compliance == nil {
		return nil
	}
	if err := s.compliance.Emit(ctx, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit trail")
	}
	return nil
}

func (s *Service) recordSecurity(ctx context.Context, event audit.Event) {
	if s.security == nil {
		return
	}
	if err := s.security.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "security audit dropped",
			"action", event.Action,
			"subject", event.Subject,
			"error", err,
		)
	}
}

func (s *Service) notify(ctx context.Context, userID id.UserID, message string) {
	if s.notifier == nil || userID.IsNil() {
		return
	}
	if err := s.notifier.Notify(ctx, userID, message); err != nil {
		s.logger.WarnContext(ctx, "notification failed",
			"user_id", userID.String(),
			"error", err,
		)
	}
}

func (s *Service) elevateThreat(ctx context.Context, studentID id.UserID, reason string) {
	if s.threats == nil {
		return
	}
	level, err := s.threats.Elevate(ctx, studentID, reason)
	if err != nil {
		s.logger.WarnContext(ctx, "threat indicator update failed",
			"student_id", studentID.String(),
			"error", err,
		)
		return
	}
	s.logger.WarnContext(ctx, "threat indicator elevated",
		"student_id", studentID.String(),
		"level", level,
		"reason", reason,
	)
}
