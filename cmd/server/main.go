package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"scholarship/internal/application/handler"
	appmetrics "scholarship/internal/application/metrics"
	"scholarship/internal/application/ports"
	"scholarship/internal/application/service"
	appstore "scholarship/internal/application/store"
	docstore "scholarship/internal/document/store"
	"scholarship/internal/eligibility"
	"scholarship/internal/expiry"
	"scholarship/internal/fraud"
	jwttoken "scholarship/internal/jwt_token"
	"scholarship/internal/notify"
	"scholarship/internal/platform/config"
	"scholarship/internal/platform/filestore"
	"scholarship/internal/platform/httpserver"
	"scholarship/internal/platform/kafka"
	"scholarship/internal/platform/logger"
	"scholarship/internal/platform/metrics"
	"scholarship/internal/platform/postgres"
	"scholarship/internal/platform/redis"
	"scholarship/internal/policy"
	policystore "scholarship/internal/policy/store"
	"scholarship/internal/policy/threat"
	profilestore "scholarship/internal/profile/store"
	"scholarship/internal/scanner"
	audit "scholarship/pkg/platform/audit"
	"scholarship/pkg/platform/audit/publisher"
	"scholarship/pkg/platform/audit/publishers/compliance"
	auditmem "scholarship/pkg/platform/audit/store/memory"
	auditpg "scholarship/pkg/platform/audit/store/postgres"
	"scholarship/pkg/platform/audit/worker"
	"scholarship/pkg/platform/circuit"
	"scholarship/pkg/platform/middleware/auth"
	"scholarship/pkg/platform/middleware/metadata"
	"scholarship/pkg/platform/middleware/request"
	"scholarship/pkg/platform/middleware/requesttime"
)

const (
	threatTTL         = 24 * time.Hour
	securityAuditBuf  = 1024
	topicPartitions   = 3
	topicReplication  = 1
	readinessDeadline = 2 * time.Second
)

// infra holds the optional backing services. Nil fields fall back to
// in-process implementations.
type infra struct {
	db       *sql.DB
	redis    *redis.Client
	producer *kafka.Producer
}

func (i *infra) close() {
	if i.producer != nil {
		i.producer.Close()
	}
	if i.redis != nil {
		_ = i.redis.Close()
	}
	if i.db != nil {
		_ = i.db.Close()
	}
}

func main() {
	log := logger.New()
	if err := run(log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	if cfg.IsProduction() && cfg.Auth.JWTSigningKey == "" {
		return errors.New("JWT_SIGNING_KEY is required in production")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backends, err := connect(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer backends.close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	appMetrics := appmetrics.New(reg)
	httpMetrics := metrics.New(reg)

	blobs, err := filestore.New(cfg.Storage.UploadDir, cfg.Storage.PublicBaseURL)
	if err != nil {
		return fmt.Errorf("init upload store: %w", err)
	}

	// Compliance events ride the caller's transaction; security events are
	// buffered and may be dropped under pressure.
	var (
		auditStore audit.Store = auditmem.NewInMemoryStore()
		outbox     *auditpg.Store
	)
	if backends.db != nil {
		outbox = auditpg.New(backends.db)
		auditStore = outbox
	}
	complianceAudit := compliance.New(auditStore, compliance.WithLogger(log))
	securityAudit := publisher.NewPublisher(auditStore,
		publisher.WithAsyncBuffer(securityAuditBuf),
		publisher.WithLogger(log),
	)
	defer securityAudit.Close()

	st := stores(backends.db, cfg)
	notifications := notifier(backends.producer, cfg, log)
	svc := service.New(st.apps, st.docs, st.profiles, st.tx,
		scanner.New(scanner.WithMaxSize(int(cfg.Storage.MaxFileBytes))),
		blobs,
		service.WithNotifier(notifications),
		service.WithFraudScorer(fraudScorer(cfg, log)),
		service.WithFraudTimeout(cfg.Fraud.Timeout),
		service.WithPolicyDetector(policyDetector(backends.db, cfg, log)),
		service.WithThreatRecorder(threatRecorder(backends.redis)),
		service.WithEligibilityRules(eligibility.NewRules(
			cfg.Eligibility.IncomeCeiling,
			cfg.Eligibility.MinPercentage,
			cfg.Eligibility.Categories,
		)),
		service.WithMaxFiles(cfg.Storage.MaxFiles),
		service.WithAuditPublisher(complianceAudit),
		service.WithSecurityPublisher(securityAudit),
		service.WithLogger(log),
		service.WithMetrics(appMetrics),
		service.WithTracer(otel.Tracer("scholarship/application")),
	)

	router := chi.NewRouter()
	router.Use(request.RequestID)
	router.Use(request.Recovery(log))
	router.Use(request.Logger(log))
	router.Use(requesttime.Middleware)
	router.Use(metadata.ClientMetadata)
	router.Use(httpMetrics.Middleware)

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Get("/readyz", readiness(backends))
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if base := cfg.Storage.PublicBaseURL; strings.HasPrefix(base, "/") {
		prefix := strings.TrimSuffix(base, "/")
		router.Handle(prefix+"/*", http.StripPrefix(prefix, http.FileServer(http.Dir(cfg.Storage.UploadDir))))
	}

	api := handler.New(svc, log, handler.WithMaxUploadBytes(cfg.Storage.MaxFileBytes*int64(cfg.Storage.MaxFiles)))
	authenticator := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)
	router.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(authenticator, log))
		api.Register(r)
	})

	srv := httpserver.New(cfg.Server.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting scholarship service", "addr", cfg.Server.Addr, "env", cfg.Server.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if cfg.Sweep.Enabled {
		var locker expiry.Locker = expiry.NewMemoryLocker()
		if backends.redis != nil {
			locker = backends.redis
		}
		sweeper := expiry.NewSweeper(svc, locker,
			expiry.WithInterval(cfg.Sweep.Interval),
			expiry.WithLockTTL(cfg.Sweep.LockTTL),
			expiry.WithNotifier(notifications),
			expiry.WithAuditPublisher(securityAudit),
			expiry.WithLogger(log),
			expiry.WithMetrics(appMetrics),
		)
		g.Go(func() error { return ignoreCancel(sweeper.Run(gctx)) })
	}

	if outbox != nil && backends.producer != nil {
		relay := worker.NewWorker(outbox, kafka.NewAuditSink(backends.producer, cfg.Kafka.AuditTopic), log,
			worker.WithInterval(cfg.Outbox.Interval),
			worker.WithBatchSize(cfg.Outbox.BatchSize),
		)
		g.Go(func() error { return ignoreCancel(relay.Run(gctx)) })
	}

	return g.Wait()
}

// connect opens whichever backing services are configured.
func connect(ctx context.Context, cfg config.Config, log *slog.Logger) (*infra, error) {
	backends := &infra{}
	if cfg.Database.URL != "" {
		db, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		backends.db = db
		if err := postgres.Migrate(ctx, db); err != nil {
			backends.close()
			return nil, err
		}
		log.Info("using postgres stores")
	} else {
		log.Warn("DATABASE_URL not set, using in-memory stores")
	}

	client, err := redis.New(cfg.Redis)
	if err != nil {
		backends.close()
		return nil, err
	}
	backends.redis = client

	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.New(ctx, cfg.Kafka)
		if err != nil {
			backends.close()
			return nil, err
		}
		backends.producer = producer
		if err := producer.EnsureTopics(ctx, topicPartitions, topicReplication,
			cfg.Kafka.NotificationTopic, cfg.Kafka.AuditTopic); err != nil {
			backends.close()
			return nil, err
		}
	}
	return backends, nil
}

type storeSet struct {
	apps     service.ApplicationStore
	docs     service.DocumentStore
	profiles service.ProfileStore
	tx       service.TxRunner
}

func stores(db *sql.DB, cfg config.Config) storeSet {
	if db != nil {
		return storeSet{
			apps:     appstore.NewPostgres(db),
			docs:     docstore.NewPostgres(db),
			profiles: profilestore.NewPostgres(db),
			tx:       appstore.NewPostgresTx(db, cfg.Database.TxTimeout),
		}
	}
	return storeSet{
		apps:     appstore.NewInMemory(),
		docs:     docstore.NewInMemory(),
		profiles: profilestore.NewInMemory(),
		tx:       appstore.NewShardedTx(cfg.Database.TxTimeout),
	}
}

func notifier(producer *kafka.Producer, cfg config.Config, log *slog.Logger) ports.Notifier {
	if producer == nil {
		return notify.NewLog(log)
	}
	return notify.NewKafka(producer, cfg.Kafka.NotificationTopic)
}

func fraudScorer(cfg config.Config, log *slog.Logger) ports.FraudScorer {
	if cfg.Fraud.URL == "" {
		return fraud.Disabled{}
	}
	breaker := circuit.New("fraud",
		circuit.WithFailureThreshold(cfg.Fraud.FailureThreshold),
		circuit.WithCooldown(cfg.Fraud.Cooldown),
	)
	return fraud.New(cfg.Fraud.URL,
		fraud.WithTimeout(cfg.Fraud.Timeout),
		fraud.WithBreaker(breaker),
		fraud.WithLogger(log),
	)
}

func policyDetector(db *sql.DB, cfg config.Config, log *slog.Logger) ports.PolicyDetector {
	if db != nil {
		pg := policystore.NewPostgres(db)
		return policy.NewDetector(pg, pg, cfg.Policy.FingerprintKey, policy.WithLogger(log))
	}
	mem := policystore.NewInMemory()
	return policy.NewDetector(mem, mem, cfg.Policy.FingerprintKey, policy.WithLogger(log))
}

func threatRecorder(client *redis.Client) ports.ThreatRecorder {
	if client == nil {
		return threat.NewInMemory()
	}
	return threat.NewRedis(client.Client, threatTTL)
}

func readiness(backends *infra) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessDeadline)
		defer cancel()
		checks := map[string]func(context.Context) error{}
		if backends.db != nil {
			checks["postgres"] = backends.db.PingContext
		}
		if backends.redis != nil {
			checks["redis"] = backends.redis.Health
		}
		if backends.producer != nil {
			checks["kafka"] = backends.producer.Health
		}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				http.Error(w, name+" unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	}
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
