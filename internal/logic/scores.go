package logic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/stemplay/leaderboard-api/internal/models"
)

// cacheUpdateTimeout bounds the detached cache update so a wedged Redis
// cannot leak goroutines. The request never waits on it.
const cacheUpdateTimeout = 5 * time.Second

type scoreService struct {
	pg           PgPool
	leaderboard  LeaderboardService
	achievements AchievementsService
	ingest       IngestQueue
	logger       *zap.SugaredLogger
}

func NewScoreService(pg PgPool, lb LeaderboardService, ach AchievementsService, ingest IngestQueue, logger *zap.Logger) ScoreService {
	return &scoreService{
		pg:           pg,
		leaderboard:  lb,
		achievements: ach,
		ingest:       ingest,
		logger:       logger.Sugar(),
	}
}

// Submit persists a score and returns the resulting progress. The durable
// write is the consistency boundary: it commits before the function
// returns. The leaderboard cache update is dispatched afterwards on a
// detached goroutine and its outcome is unobservable; a reader can see a
// stale cached score until that task lands or the shard TTL expires.
//
// A submission at or below the existing high score still succeeds, with
// IsNewHighScore false and the durable high score unchanged.
func (s *scoreService) Submit(ctx context.Context, tenantID string, playerID uuid.UUID, gameID string, req *models.ScoreSubmitRequest) (*models.ScoreSubmitResult, error) {
	tx, err := s.pg.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var prevHigh int64
	err = tx.QueryRow(ctx, `
		SELECT high_score FROM game_progress
		WHERE player_id = $1 AND tenant_id = $2 AND game_id = $3
	`, playerID, tenantID, gameID).Scan(&prevHigh)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("read previous high score: %w", err)
	}

	level := int32(1)
	if req.Level != nil {
		level = *req.Level
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO game_progress (player_id, tenant_id, game_id, high_score, best_time, level, play_count, total_score, stars, last_played_at)
		VALUES ($1, $2, $3, $4, $5, $6, 1, $4, 0, NOW())
		ON CONFLICT (player_id, tenant_id, game_id) DO UPDATE SET
			high_score = GREATEST(game_progress.high_score, EXCLUDED.high_score),
			best_time = CASE
				WHEN EXCLUDED.best_time IS NOT NULL AND (game_progress.best_time IS NULL OR EXCLUDED.best_time < game_progress.best_time)
				THEN EXCLUDED.best_time ELSE game_progress.best_time END,
			play_count = game_progress.play_count + 1,
			total_score = game_progress.total_score + EXCLUDED.high_score,
			last_played_at = NOW(),
			level = GREATEST(game_progress.level, EXCLUDED.level)
	`, playerID, tenantID, gameID, req.Score, req.Time, level)
	if err != nil {
		return nil, fmt.Errorf("upsert game progress: %w", err)
	}

	newHigh := prevHigh
	if req.Score > newHigh {
		newHigh = req.Score
	}
	stars := models.CalculateStars(gameID, newHigh)

	_, err = tx.Exec(ctx, `
		UPDATE game_progress SET stars = GREATEST(stars, $1)
		WHERE player_id = $2 AND tenant_id = $3 AND game_id = $4
	`, stars, playerID, tenantID, gameID)
	if err != nil {
		return nil, fmt.Errorf("update stars: %w", err)
	}

	var totalScore int64
	err = tx.QueryRow(ctx, `
		UPDATE players SET
			total_score = total_score + $1,
			games_played = games_played + 1,
			total_play_time = COALESCE(total_play_time, 0) + COALESCE($2, 0)
		WHERE id = $3 AND tenant_id = $4
		RETURNING total_score
	`, req.Score, req.Time, playerID, tenantID).Scan(&totalScore)
	if err != nil {
		return nil, fmt.Errorf("update player totals: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO score_history (player_id, tenant_id, game_id, score, level, play_time, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`, playerID, tenantID, gameID, req.Score, req.Level, req.Time)
	if err != nil {
		return nil, fmt.Errorf("insert score history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	isNewHigh := req.Score > prevHigh

	// Best-effort cache update, detached from the request. Ordering against
	// concurrent submissions from the same player is not guaranteed; the
	// shard TTL bounds any resulting staleness.
	pid := playerID.String()
	go func() {
		cctx, cancel := context.WithTimeout(context.Background(), cacheUpdateTimeout)
		defer cancel()
		s.leaderboard.UpdateScore(cctx, tenantID, gameID, pid, float64(newHigh))
		s.leaderboard.UpdateGlobalScore(cctx, tenantID, pid, float64(totalScore))
	}()

	if s.ingest != nil {
		playTime := int32(0)
		if req.Time != nil {
			playTime = *req.Time
		}
		s.ingest.Enqueue(&models.ScoreEvent{
			Timestamp:   time.Now().UTC(),
			TenantID:    tenantID,
			GameID:      gameID,
			PlayerID:    pid,
			Score:       req.Score,
			Level:       level,
			PlayTime:    playTime,
			IsHighScore: isNewHigh,
		})
	}

	newAchievements, err := s.achievements.Evaluate(ctx, tenantID, playerID)
	if err != nil {
		return nil, fmt.Errorf("evaluate achievements: %w", err)
	}
	if newAchievements == nil {
		newAchievements = []string{}
	}

	return &models.ScoreSubmitResult{
		Success:         true,
		HighScore:       newHigh,
		Stars:           stars,
		IsNewHighScore:  isNewHigh,
		NewAchievements: newAchievements,
	}, nil
}

// GetProgress returns the player's durable progress for a game, or zeroed
// defaults if they have never played it.
func (s *scoreService) GetProgress(ctx context.Context, tenantID string, playerID uuid.UUID, gameID string) (*models.GameProgress, error) {
	gp := &models.GameProgress{
		PlayerID: playerID,
		TenantID: tenantID,
		GameID:   gameID,
		Level:    1,
	}

	err := s.pg.QueryRow(ctx, `
		SELECT high_score, best_time, stars, level, play_count, total_score, last_played_at
		FROM game_progress
		WHERE player_id = $1 AND tenant_id = $2 AND game_id = $3
	`, playerID, tenantID, gameID).Scan(
		&gp.HighScore, &gp.BestTime, &gp.Stars, &gp.Level, &gp.PlayCount, &gp.TotalScore, &gp.LastPlayedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return gp, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read game progress: %w", err)
	}
	return gp, nil
}
