// Package app assembles infrastructure and domain services from configuration.
// The server and the operator CLI share it so both see the same stores.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/twmb/franz-go/pkg/kgo"

	"webdir/internal/audit"
	bubblingmetrics "webdir/internal/bubbling/metrics"
	"webdir/internal/bubbling/models"
	bubblingservice "webdir/internal/bubbling/service"
	bubblingstore "webdir/internal/bubbling/store"
	catservice "webdir/internal/category/service"
	catstore "webdir/internal/category/store"
	mservice "webdir/internal/membership/service"
	mstore "webdir/internal/membership/store"
	"webdir/internal/platform/config"
	"webdir/internal/platform/kafka"
	"webdir/internal/platform/metrics"
	"webdir/internal/platform/postgres"
	platformredis "webdir/internal/platform/redis"
	rankmetrics "webdir/internal/ranking/metrics"
	rankservice "webdir/internal/ranking/service"
	ratelimitmetrics "webdir/internal/ratelimit/metrics"
	ratelimitservice "webdir/internal/ratelimit/service"
	ratelimitstore "webdir/internal/ratelimit/store"
	sitemetrics "webdir/internal/site/metrics"
	siteservice "webdir/internal/site/service"
	sitestore "webdir/internal/site/store"
	trustservice "webdir/internal/trust/service"
	truststore "webdir/internal/trust/store"
	votemetrics "webdir/internal/vote/metrics"
	voteservice "webdir/internal/vote/service"
	votestore "webdir/internal/vote/store"
	"webdir/pkg/platform/circuit"
	"webdir/pkg/platform/tx"
)

const auditBuffer = 1024

// membershipStore is every view of the membership table the services take.
type membershipStore interface {
	mservice.Store
	voteservice.MembershipStore
	rankservice.MembershipStore
	bubblingservice.MembershipReader
	catservice.MembershipCounter
}

// App holds the wired services plus the resources that must be closed.
type App struct {
	Categories  *catservice.Service
	Sites       *siteservice.Service
	Trust       *trustservice.Service
	Memberships *mservice.Service
	Votes       *voteservice.Service
	Ranking     *rankservice.Service
	Bubbling    *bubblingservice.Service
	RateLimit   *ratelimitservice.Service

	AuditWorker *audit.Worker
	Registry    *prometheus.Registry
	HTTPMetrics *metrics.Metrics

	DB    *sql.DB
	Redis *platformredis.Client
	Kafka *kgo.Client

	logger *slog.Logger
}

// New connects whatever backends cfg names and builds every service on top.
// Backends left unconfigured fall back to in-memory implementations.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	a := &App{logger: logger, Registry: prometheus.NewRegistry()}
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if err := a.connect(ctx, cfg); err != nil {
		a.Close()
		return nil, err
	}
	a.build(cfg)
	return a, nil
}

func (a *App) connect(ctx context.Context, cfg config.Config) error {
	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	a.DB = db
	if db != nil && cfg.Database.AutoMigrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			return err
		}
		a.logger.InfoContext(ctx, "database schema applied")
	}

	a.Redis, err = platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}

	a.Kafka, err = kafka.New(ctx, cfg.Kafka)
	if err != nil {
		return err
	}
	if a.Kafka != nil {
		if err := kafka.EnsureTopic(ctx, a.Kafka, cfg.Kafka.Topic, cfg.Kafka.Partitions); err != nil {
			return fmt.Errorf("ensure audit topic: %w", err)
		}
	}

	a.logger.InfoContext(ctx, "backends selected",
		"postgres", a.DB != nil,
		"redis", a.Redis != nil,
		"kafka", a.Kafka != nil,
	)
	return nil
}

func (a *App) build(cfg config.Config) {
	logger := a.logger

	var (
		runner      tx.Runner
		categories  catservice.Store
		sites       siteservice.Store
		profiles    trustservice.Store
		memberships membershipStore
		votes       voteservice.Store
	)
	if a.DB != nil {
		runner = tx.NewPostgresRunner(a.DB, tx.WithTimeout(cfg.Database.TxTimeout))
		categories = catstore.NewPostgres(a.DB)
		sites = sitestore.NewPostgres(a.DB)
		profiles = truststore.NewPostgres(a.DB)
		memberships = mstore.NewPostgres(a.DB)
		votes = votestore.NewPostgres(a.DB)
	} else {
		runner = tx.NewMemoryRunner()
		categories = catstore.NewInMemory()
		sites = sitestore.NewInMemory()
		profiles = truststore.NewInMemory()
		memberships = mstore.NewInMemory()
		votes = votestore.NewInMemory()
	}

	var sink audit.Store = audit.NewInMemoryStore()
	if a.Kafka != nil {
		sink = audit.NewKafkaStore(a.Kafka, cfg.Kafka.Topic)
	}
	a.AuditWorker = audit.NewWorker(sink, auditBuffer, logger)
	publisher := audit.NewPublisher(a.AuditWorker)

	var cache bubblingservice.Cache = bubblingstore.NewMemoryCache()
	var limiterStore ratelimitservice.Store = ratelimitstore.NewInMemory()
	limiterOpts := []ratelimitservice.Option{
		ratelimitservice.WithLogger(logger),
		ratelimitservice.WithMetrics(ratelimitmetrics.New(a.Registry)),
	}
	if a.Redis != nil {
		cache = bubblingstore.NewRedisCache(a.Redis.Client)
		limiterStore = ratelimitstore.NewRedis(a.Redis.Client)
		limiterOpts = append(limiterOpts,
			ratelimitservice.WithFallback(ratelimitstore.NewInMemory(), circuit.New("vote-ratelimit")),
		)
	}

	a.HTTPMetrics = metrics.New(a.Registry)
	a.Trust = trustservice.New(profiles,
		trustservice.WithLogger(logger),
		trustservice.WithTrustedKarma(cfg.Trust.TrustedKarma),
	)
	a.Categories = catservice.New(categories, runner,
		catservice.WithLogger(logger),
		catservice.WithAuditPublisher(publisher),
		catservice.WithMembershipCounter(memberships),
	)
	a.Sites = siteservice.New(sites, runner, a.Trust,
		siteservice.WithLogger(logger),
		siteservice.WithMetrics(sitemetrics.New(a.Registry)),
		siteservice.WithAuditPublisher(publisher),
		siteservice.WithDeadThreshold(cfg.Health.DeadThreshold),
	)
	a.Memberships = mservice.New(memberships, runner, a.Categories, a.Sites, a.Trust,
		mservice.WithLogger(logger),
		mservice.WithAuditPublisher(publisher),
		mservice.WithPageSize(cfg.Server.PageSize),
	)
	a.RateLimit = ratelimitservice.New(limiterStore, cfg.Votes.RateLimit, cfg.Votes.RateWindow, limiterOpts...)
	a.Votes = voteservice.New(votes, memberships, runner,
		voteservice.WithLogger(logger),
		voteservice.WithMetrics(votemetrics.New(a.Registry)),
		voteservice.WithAuditPublisher(publisher),
		voteservice.WithLimiter(a.RateLimit),
	)
	a.Bubbling = bubblingservice.New(memberships, a.Categories, a.Sites, cache,
		bubblingservice.WithLogger(logger),
		bubblingservice.WithMetrics(bubblingmetrics.New(a.Registry)),
		bubblingservice.WithTTL(cfg.Bubbling.CacheTTL),
		bubblingservice.WithThresholds(models.Thresholds{
			MinScore: cfg.Bubbling.MinScore,
			MaxRank:  cfg.Bubbling.MaxRank,
		}),
	)
	a.Ranking = rankservice.New(memberships, a.Categories, runner,
		rankservice.WithLogger(logger),
		rankservice.WithMetrics(rankmetrics.New(a.Registry)),
		rankservice.WithAuditPublisher(publisher),
		rankservice.WithInvalidator(a.Bubbling),
		rankservice.WithPoolSize(cfg.Ranking.PoolSize),
		rankservice.WithRunTimeout(cfg.Ranking.RunTimeout),
	)
}

// Close releases every connected backend.
func (a *App) Close() error {
	var errs []error
	if a.Kafka != nil {
		a.Kafka.Close()
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}
