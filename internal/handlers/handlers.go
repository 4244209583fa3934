package handlers

import (
	"context"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/stemplay/leaderboard-api/internal/cache"
	"github.com/stemplay/leaderboard-api/internal/logic"
)

// MaxBodySize limits the size of request bodies to 1MB
const MaxBodySize = 1048576

// PgPool is the Postgres surface handlers need: the logic query interface
// plus liveness for readiness checks. *pgxpool.Pool satisfies it.
type PgPool interface {
	logic.PgPool
	Ping(ctx context.Context) error
}

type Config struct {
	WorkerPool      logic.IngestQueue
	Postgres        PgPool
	ClickHouse      driver.Conn
	Cache           *cache.Client
	Logger          *zap.Logger
	PageSize        int
	DefaultTenantID string
	// Services
	Scores      logic.ScoreService
	Leaderboard logic.LeaderboardService
}

type Handler struct {
	pool          logic.IngestQueue
	pg            PgPool
	ch            driver.Conn
	cache         *cache.Client
	logger        *zap.SugaredLogger
	validator     *validator.Validate
	pageSize      int
	defaultTenant string
	scores        logic.ScoreService
	leaderboard   logic.LeaderboardService
}

func New(cfg Config) *Handler {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	return &Handler{
		pool:          cfg.WorkerPool,
		pg:            cfg.Postgres,
		ch:            cfg.ClickHouse,
		cache:         cfg.Cache,
		logger:        cfg.Logger.Sugar(),
		validator:     validator.New(),
		pageSize:      cfg.PageSize,
		defaultTenant: cfg.DefaultTenantID,
		scores:        cfg.Scores,
		leaderboard:   cfg.Leaderboard,
	}
}
