// Package expiry runs the periodic sweep that expires approved documents
// whose validity has ended and reopens their applications.
package expiry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"scholarship/internal/application/metrics"
	"scholarship/internal/application/ports"
	"scholarship/internal/application/service"
	docmodels "scholarship/internal/document/models"
	id "scholarship/pkg/domain"
	dErrors "scholarship/pkg/domain-errors"
	audit "scholarship/pkg/platform/audit"
	"scholarship/pkg/requestcontext"
)

const (
	LockKey = "scholarship:expiry-sweep"

	defaultInterval  = 24 * time.Hour
	defaultLockTTL   = 10 * time.Minute
	defaultBatchSize = 100

	expiryMessage = "One or more of your approved documents have expired. Please re-upload them to keep your application active."
)

// Service is the part of the lifecycle service the sweep drives.
type Service interface {
	ExpiredDocuments(ctx context.Context, after *docmodels.ExpiryCursor, limit int) ([]*docmodels.Document, error)
	ExpireDocument(ctx context.Context, docID id.DocumentID) (*service.ExpiryOutcome, error)
}

// Locker grants a single holder per key across replicas.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Report summarizes one sweep run.
type Report struct {
	Expired  int
	Skipped  int
	Failed   int
	Notified int
	Locked   bool
}

type Sweeper struct {
	svc       Service
	locker    Locker
	notifier  ports.Notifier
	auditor   AuditPublisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
	interval  time.Duration
	lockTTL   time.Duration
	batchSize int
}

type Option func(*Sweeper)

func WithInterval(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithLockTTL(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.lockTTL = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

func WithNotifier(n ports.Notifier) Option {
	return func(s *Sweeper) {
		s.notifier = n
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Sweeper) {
		s.auditor = p
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sweeper) {
		s.metrics = m
	}
}

func NewSweeper(svc Service, locker Locker, opts ...Option) *Sweeper {
	s := &Sweeper{
		svc:       svc,
		locker:    locker,
		logger:    slog.Default(),
		interval:  defaultInterval,
		lockTTL:   defaultLockTTL,
		batchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps once at start and then on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	s.sweep(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
		s.logger.ErrorContext(ctx, "expiry sweep failed", "error", err)
	}
}

// RunOnce performs one sweep if no other replica holds the sweep lock. Every
// document in the run is judged against the same instant.
func (s *Sweeper) RunOnce(ctx context.Context) (Report, error) {
	var report Report
	release, ok, err := s.locker.TryLock(ctx, LockKey, s.lockTTL)
	if err != nil {
		return report, fmt.Errorf("acquire sweep lock: %w", err)
	}
	if !ok {
		s.logger.InfoContext(ctx, "expiry sweep skipped, lock held elsewhere")
		return report, nil
	}
	report.Locked = true
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logger.WarnContext(ctx, "failed to release sweep lock", "error", err)
		}
	}()

	start := time.Now()
	ctx = requestcontext.WithTime(ctx, requestcontext.Now(ctx))

	affected := make(map[id.UserID]struct{})
	// Pages advance past the last listed document, so documents that keep
	// failing are visited once per run and never hide the ones behind them.
	var cursor *docmodels.ExpiryCursor
	for {
		docs, err := s.svc.ExpiredDocuments(ctx, cursor, s.batchSize)
		if err != nil {
			return report, fmt.Errorf("list expired documents: %w", err)
		}
		for _, doc := range docs {
			s.expire(ctx, doc.ID, &report, affected)
		}
		if len(docs) < s.batchSize {
			break
		}
		cursor = docmodels.CursorAt(docs[len(docs)-1])
	}

	for studentID := range affected {
		if s.notifier == nil {
			break
		}
		if err := s.notifier.Notify(ctx, studentID, expiryMessage); err != nil {
			s.logger.WarnContext(ctx, "expiry notification failed",
				"student_id", studentID.String(),
				"error", err,
			)
			continue
		}
		report.Notified++
	}

	s.metrics.ObserveSweep(time.Since(start))
	s.recordRun(ctx, report)
	s.logger.InfoContext(ctx, "expiry sweep completed",
		"expired", report.Expired,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"notified", report.Notified,
	)
	return report, nil
}

func (s *Sweeper) expire(ctx context.Context, docID id.DocumentID, report *Report, affected map[id.UserID]struct{}) {
	out, err := s.svc.ExpireDocument(ctx, docID)
	switch {
	case err == nil:
		report.Expired++
		s.metrics.IncrementSweepDocument("expired")
		if out.ApplicationChanged {
			affected[out.StudentID] = struct{}{}
		}
	case dErrors.HasCode(err, dErrors.CodeInvalidState), dErrors.HasCode(err, dErrors.CodeNotFound):
		// Re-uploaded, re-verified or deleted since it was listed.
		report.Skipped++
		s.metrics.IncrementSweepDocument("skipped")
	default:
		report.Failed++
		s.metrics.IncrementSweepDocument("failed")
		s.logger.ErrorContext(ctx, "failed to expire document",
			"document_id", docID.String(),
			"error", err,
		)
	}
}

func (s *Sweeper) recordRun(ctx context.Context, report Report) {
	if s.auditor == nil {
		return
	}
	actor := id.SystemActor()
	err := s.auditor.Emit(ctx, audit.Event{
		Category:  audit.EventSweepCompleted.Category(),
		Timestamp: requestcontext.Now(ctx),
		Subject:   LockKey,
		Action:    string(audit.EventSweepCompleted),
		Decision:  fmt.Sprintf("expired=%d skipped=%d failed=%d notified=%d", report.Expired, report.Skipped, report.Failed, report.Notified),
		ActorID:   string(actor.Role),
		ActorRole: string(actor.Role),
		Severity:  audit.SeverityInfo,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "sweep audit dropped", "error", err)
	}
}

// MemoryLocker is a process-local Locker used when Redis is not configured.
type MemoryLocker struct {
	mu    sync.Mutex
	held  map[string]time.Time
	clock func() time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]time.Time), clock: time.Now}
}

func (l *MemoryLocker) TryLock(_ context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock()
	if until, ok := l.held[key]; ok && now.Before(until) {
		return nil, false, nil
	}
	until := now.Add(ttl)
	l.held[key] = until
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.held[key].Equal(until) {
			delete(l.held, key)
		}
		return nil
	}, true, nil
}
