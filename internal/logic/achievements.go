package logic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type achievementsService struct {
	pg     PgPool
	logger *zap.SugaredLogger
}

func NewAchievementsService(pg PgPool, logger *zap.Logger) AchievementsService {
	return &achievementsService{pg: pg, logger: logger.Sugar()}
}

// playerAggregates are the statistics achievement criteria run against.
type playerAggregates struct {
	TotalScore     int64
	GamesPlayed    int64
	UniqueGames    int64
	ThreeStarGames int64
}

type achievementCriteria struct {
	Type      string `json:"type"`
	Threshold *int64 `json:"threshold"`
}

func criteriaMet(criteriaType string, threshold int64, agg playerAggregates) bool {
	switch criteriaType {
	case "games_played":
		return agg.GamesPlayed >= threshold
	case "total_score":
		return agg.TotalScore >= threshold
	case "unique_games":
		return agg.UniqueGames >= threshold
	case "all_three_stars":
		return agg.ThreeStarGames >= threshold
	default:
		return false
	}
}

// Evaluate checks every tenant achievement definition against the player's
// current aggregates and grants any that are newly met, returning their ids.
func (s *achievementsService) Evaluate(ctx context.Context, tenantID string, playerID uuid.UUID) ([]string, error) {
	var agg playerAggregates
	err := s.pg.QueryRow(ctx, `
		SELECT total_score, games_played FROM players WHERE id = $1 AND tenant_id = $2
	`, playerID, tenantID).Scan(&agg.TotalScore, &agg.GamesPlayed)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read player stats: %w", err)
	}

	err = s.pg.QueryRow(ctx, `
		SELECT COUNT(DISTINCT game_id)::bigint FROM game_progress WHERE player_id = $1 AND tenant_id = $2
	`, playerID, tenantID).Scan(&agg.UniqueGames)
	if err != nil {
		return nil, fmt.Errorf("count unique games: %w", err)
	}

	err = s.pg.QueryRow(ctx, `
		SELECT COUNT(*)::bigint FROM game_progress WHERE player_id = $1 AND tenant_id = $2 AND stars = 3
	`, playerID, tenantID).Scan(&agg.ThreeStarGames)
	if err != nil {
		return nil, fmt.Errorf("count three star games: %w", err)
	}

	rows, err := s.pg.Query(ctx, `
		SELECT id, criteria_json, game_id FROM achievements WHERE tenant_id = $1
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load achievement definitions: %w", err)
	}

	type definition struct {
		id       string
		criteria achievementCriteria
		gameID   *string
	}
	var defs []definition
	for rows.Next() {
		var d definition
		var criteriaJSON []byte
		if err := rows.Scan(&d.id, &criteriaJSON, &d.gameID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan achievement definition: %w", err)
		}
		if err := json.Unmarshal(criteriaJSON, &d.criteria); err != nil {
			s.logger.Warnw("Skipping achievement with malformed criteria", "id", d.id, "error", err)
			continue
		}
		defs = append(defs, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate achievement definitions: %w", err)
	}

	earnedRows, err := s.pg.Query(ctx, `
		SELECT achievement_id FROM player_achievements WHERE player_id = $1 AND tenant_id = $2
	`, playerID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load earned achievements: %w", err)
	}
	earned := make(map[string]struct{})
	for earnedRows.Next() {
		var id string
		if err := earnedRows.Scan(&id); err != nil {
			earnedRows.Close()
			return nil, fmt.Errorf("scan earned achievement: %w", err)
		}
		earned[id] = struct{}{}
	}
	earnedRows.Close()
	if err := earnedRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate earned achievements: %w", err)
	}

	var newlyAwarded []string
	for _, d := range defs {
		if _, ok := earned[d.id]; ok {
			continue
		}

		threshold := int64(math.MaxInt64)
		if d.criteria.Threshold != nil {
			threshold = *d.criteria.Threshold
		}
		if !criteriaMet(d.criteria.Type, threshold, agg) {
			continue
		}

		_, err := s.pg.Exec(ctx, `
			INSERT INTO player_achievements (player_id, tenant_id, achievement_id, game_id, earned_at)
			VALUES ($1, $2, $3, $4, NOW())
			ON CONFLICT DO NOTHING
		`, playerID, tenantID, d.id, d.gameID)
		if err != nil {
			return nil, fmt.Errorf("grant achievement %s: %w", d.id, err)
		}

		s.logger.Infow("Achievement unlocked", "player", playerID, "achievement", d.id)
		newlyAwarded = append(newlyAwarded, d.id)
	}

	return newlyAwarded, nil
}
