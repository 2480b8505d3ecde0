package app

import (
	"log/slog"

	"gorm.io/gorm"

	"github.com/oggyb/muzz-matching/internal/cache"
	"github.com/oggyb/muzz-matching/internal/clock"
	"github.com/oggyb/muzz-matching/internal/config"
	"github.com/oggyb/muzz-matching/internal/conversation"
	"github.com/oggyb/muzz-matching/internal/feed"
	"github.com/oggyb/muzz-matching/internal/matching"
	"github.com/oggyb/muzz-matching/internal/notify"
	"github.com/oggyb/muzz-matching/internal/repository"
	"github.com/oggyb/muzz-matching/internal/safety"
	"github.com/oggyb/muzz-matching/internal/stream"
	"github.com/oggyb/muzz-matching/internal/utils/pagination"
)

// AppContext holds shared dependencies (DB, Redis, Logger, etc.) and the
// domain components built on top of them. Both transports read from it.
type AppContext struct {
	Config     *config.Config
	DB         *gorm.DB
	RedisCache *cache.RedisCache
	Logger     *slog.Logger
	Clock      clock.Clock
	Notifier   notify.Sink

	Repos    *repository.Repositories
	Broker   *stream.Broker
	Gate     *safety.Gate
	Registry *matching.Registry
	Ledger   *matching.Ledger
	Feed     *feed.Feed
	Chat     *conversation.Service
}

// Option overrides a default dependency of New.
type Option func(*AppContext)

// WithClock replaces the system clock, mostly for tests.
func WithClock(c clock.Clock) Option {
	return func(a *AppContext) { a.Clock = c }
}

// WithNotifier sets where match and message notifications go. Defaults
// to the log.
func WithNotifier(s notify.Sink) Option {
	return func(a *AppContext) { a.Notifier = s }
}

// New creates a new AppContext and wires every domain component.
func New(cfg *config.Config, db *gorm.DB, rdb *cache.RedisCache, logger *slog.Logger, opts ...Option) *AppContext {
	a := &AppContext{
		Config:     cfg,
		DB:         db,
		RedisCache: rdb,
		Logger:     logger,
		Clock:      clock.NewSystem(),
		Notifier:   notify.LogSink{Logger: logger},
	}
	for _, opt := range opts {
		opt(a)
	}

	a.Repos = repository.New(db).WithTxAttempts(cfg.Matching.TxAttempts)
	a.Broker = stream.NewBroker(rdb.Client, logger)

	a.Gate = safety.NewGate(a.Repos, a.Clock, logger).
		WithEvents(a.Broker).
		WithCounts(rdb)

	a.Registry = matching.NewRegistry(a.Repos, a.Clock, logger).
		WithNotifier(a.Notifier).
		WithEvents(a.Broker).
		WithCounts(rdb)

	pageSize := pagination.PageSize{Default: cfg.Feed.DefaultPageSize, Max: cfg.Feed.MaxPageSize}
	a.Ledger = matching.NewLedger(a.Repos, a.Registry, a.Clock, logger).
		WithCounts(rdb).
		WithPageSize(pageSize)

	a.Feed = feed.New(a.Repos.Profiles, a.Gate, a.Repos, a.Clock, logger).
		WithPageSize(pageSize).
		WithPassTTL(cfg.Matching.PassTTL).
		WithCounts(rdb)

	a.Chat = conversation.NewService(a.Repos, a.Gate, a.Broker, a.Notifier, a.Clock, logger, conversation.Options{
		MessageRate:  cfg.Chat.MessageRate,
		MessageBurst: cfg.Chat.MessageBurst,
	})
	return a
}
