package logic

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/stemplay/leaderboard-api/internal/cache"
	"github.com/stemplay/leaderboard-api/internal/models"
)

// PgPool defines the interface for PostgreSQL connection pool
type PgPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Cache defines the subset of the cache client the leaderboard uses.
// Implementations never return errors; failures surface as zero values.
type Cache interface {
	ZAdd(ctx context.Context, key, member string, score float64)
	ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) []cache.ZEntry
	ZScore(ctx context.Context, key, member string) (float64, bool)
	Expire(ctx context.Context, key string, ttl time.Duration)
}

// IngestQueue defines the interface for the score-history worker pool
type IngestQueue interface {
	Enqueue(event *models.ScoreEvent) bool
	QueueDepth() int
}

// LeaderboardService maintains and queries the sharded leaderboard cache.
// Write operations are best effort and never report failure; read
// operations return empty results when the cache is cold or unavailable
// and callers are expected to fall back to Postgres.
type LeaderboardService interface {
	UpdateScore(ctx context.Context, tenantID, gameID, playerID string, score float64)
	UpdateGlobalScore(ctx context.Context, tenantID, playerID string, totalScore float64)
	GetTopK(ctx context.Context, tenantID, gameID string, k int) []models.LeaderboardEntry
	GetGlobalTopK(ctx context.Context, tenantID string, k int) []models.LeaderboardEntry
	ApproxRank(ctx context.Context, tenantID, gameID, playerID string) (int64, bool)
	RebuildFromDB(ctx context.Context, tenantID, gameID string) (int, error)
}

// ScoreService owns the score submission write path.
type ScoreService interface {
	Submit(ctx context.Context, tenantID string, playerID uuid.UUID, gameID string, req *models.ScoreSubmitRequest) (*models.ScoreSubmitResult, error)
	GetProgress(ctx context.Context, tenantID string, playerID uuid.UUID, gameID string) (*models.GameProgress, error)
}

// AchievementsService evaluates achievement criteria against a player's
// aggregate statistics and grants anything newly met.
type AchievementsService interface {
	Evaluate(ctx context.Context, tenantID string, playerID uuid.UUID) ([]string, error)
}
