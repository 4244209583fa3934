package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"github.com/stemplay/leaderboard-api/internal/models"
)

// GetGameLeaderboard returns the top players for a game
// @Summary Game Leaderboard
// @Description Top-K entries for a game, served from the shard cache with a Postgres fallback
// @Tags Leaderboards
// @Produce json
// @Param gameID path string true "Game ID"
// @Param limit query int false "Limit" default(50)
// @Success 200 {object} map[string]interface{} "Leaderboard"
// @Failure 500 {object} map[string]string "Internal Error"
// @Router /leaderboards/games/{gameID} [get]
func (h *Handler) GetGameLeaderboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := tenantFromContext(ctx)
	gameID := chi.URLParam(r, "gameID")
	limit := h.limitFromQuery(r)

	// Cache first. An empty result means cold or unavailable, not
	// definitively empty, so it falls through to Postgres.
	entries := h.leaderboard.GetTopK(ctx, tenantID, gameID, limit)
	if len(entries) > 0 {
		h.jsonResponse(w, http.StatusOK, map[string]interface{}{
			"entries": entries,
			"source":  "cache",
		})
		return
	}

	rows, err := h.pg.Query(ctx, `
		SELECT p.id::text, gp.high_score, p.display_name,
			RANK() OVER (ORDER BY gp.high_score DESC)::bigint as rank
		FROM game_progress gp
		JOIN players p ON p.id = gp.player_id AND p.tenant_id = gp.tenant_id
		WHERE gp.tenant_id = $1 AND gp.game_id = $2
		ORDER BY gp.high_score DESC
		LIMIT $3
	`, tenantID, gameID, limit)
	if err != nil {
		h.logger.Errorw("Failed to query leaderboard", "game", gameID, "error", err)
		h.errorResponse(w, http.StatusInternalServerError, "Query failed")
		return
	}
	defer rows.Close()

	results := make([]models.LeaderboardEntry, 0, limit)
	for rows.Next() {
		var entry models.LeaderboardEntry
		var score int64
		if err := rows.Scan(&entry.PlayerID, &score, &entry.DisplayName, &entry.Rank); err != nil {
			h.logger.Warnw("Failed to scan leaderboard row", "error", err)
			continue
		}
		entry.Score = float64(score)
		results = append(results, entry)
	}

	h.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"entries": results,
		"source":  "db",
	})
}

// GetMyRank returns the requesting player's rank for a game
// @Summary My Rank
// @Tags Leaderboards
// @Produce json
// @Param gameID path string true "Game ID"
// @Success 200 {object} map[string]interface{} "Rank"
// @Router /leaderboards/games/{gameID}/me [get]
func (h *Handler) GetMyRank(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := tenantFromContext(ctx)
	gameID := chi.URLParam(r, "gameID")

	playerID, ok := playerIDFromRequest(r)
	if !ok {
		h.errorResponse(w, http.StatusUnauthorized, "Missing or invalid player ID")
		return
	}

	if rank, ok := h.leaderboard.ApproxRank(ctx, tenantID, gameID, playerID.String()); ok {
		h.jsonResponse(w, http.StatusOK, map[string]interface{}{
			"rank":   rank,
			"source": "cache",
		})
		return
	}

	// Not cached: compute the exact rank from the durable store. Only a
	// genuinely missing row means unranked; backend failures are hard errors.
	var score int64
	err := h.pg.QueryRow(ctx, `
		SELECT high_score FROM game_progress
		WHERE player_id = $1 AND tenant_id = $2 AND game_id = $3
	`, playerID, tenantID, gameID).Scan(&score)
	if errors.Is(err, pgx.ErrNoRows) {
		h.jsonResponse(w, http.StatusOK, map[string]interface{}{
			"rank":  nil,
			"score": 0,
		})
		return
	}
	if err != nil {
		h.logger.Errorw("Failed to read high score", "game", gameID, "error", err)
		h.errorResponse(w, http.StatusInternalServerError, "Query failed")
		return
	}

	var rank int64
	err = h.pg.QueryRow(ctx, `
		SELECT COUNT(*)::bigint + 1 FROM game_progress
		WHERE tenant_id = $1 AND game_id = $2 AND high_score > $3
	`, tenantID, gameID, score).Scan(&rank)
	if err != nil {
		h.logger.Errorw("Failed to compute rank", "game", gameID, "error", err)
		h.errorResponse(w, http.StatusInternalServerError, "Query failed")
		return
	}

	h.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"rank":   rank,
		"score":  score,
		"source": "db",
	})
}

// GetAroundMe returns up to 5 players above and below the requesting player
// @Summary Around Me
// @Tags Leaderboards
// @Produce json
// @Param gameID path string true "Game ID"
// @Success 200 {object} map[string]interface{} "Entries"
// @Router /leaderboards/games/{gameID}/around-me [get]
func (h *Handler) GetAroundMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := tenantFromContext(ctx)
	gameID := chi.URLParam(r, "gameID")

	playerID, ok := playerIDFromRequest(r)
	if !ok {
		h.errorResponse(w, http.StatusUnauthorized, "Missing or invalid player ID")
		return
	}

	var myScore int64
	err := h.pg.QueryRow(ctx, `
		SELECT high_score FROM game_progress
		WHERE player_id = $1 AND tenant_id = $2 AND game_id = $3
	`, playerID, tenantID, gameID).Scan(&myScore)
	if errors.Is(err, pgx.ErrNoRows) {
		h.jsonResponse(w, http.StatusOK, map[string]interface{}{"entries": []models.LeaderboardEntry{}})
		return
	}
	if err != nil {
		h.logger.Errorw("Failed to read high score", "game", gameID, "error", err)
		h.errorResponse(w, http.StatusInternalServerError, "Query failed")
		return
	}

	rows, err := h.pg.Query(ctx, `
		(SELECT p.id::text, gp.high_score, p.display_name
			FROM game_progress gp JOIN players p ON p.id = gp.player_id AND p.tenant_id = gp.tenant_id
			WHERE gp.tenant_id = $1 AND gp.game_id = $2 AND gp.high_score > $3
			ORDER BY gp.high_score ASC LIMIT 5)
		UNION ALL
		(SELECT p.id::text, gp.high_score, p.display_name
			FROM game_progress gp JOIN players p ON p.id = gp.player_id AND p.tenant_id = gp.tenant_id
			WHERE gp.tenant_id = $1 AND gp.game_id = $2 AND gp.high_score <= $3
			ORDER BY gp.high_score DESC LIMIT 5)
	`, tenantID, gameID, myScore)
	if err != nil {
		h.logger.Errorw("Failed to query around-me", "game", gameID, "error", err)
		h.errorResponse(w, http.StatusInternalServerError, "Query failed")
		return
	}
	defer rows.Close()

	entries := make([]models.LeaderboardEntry, 0, 10)
	for rows.Next() {
		var entry models.LeaderboardEntry
		var score int64
		if err := rows.Scan(&entry.PlayerID, &score, &entry.DisplayName); err != nil {
			continue
		}
		entry.Score = float64(score)
		entries = append(entries, entry)
	}

	h.jsonResponse(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

// GetGlobalLeaderboard returns the tenant-wide lifetime-score leaderboard
// @Summary Global Leaderboard
// @Tags Leaderboards
// @Produce json
// @Param limit query int false "Limit" default(50)
// @Success 200 {object} map[string]interface{} "Leaderboard"
// @Router /leaderboards/global [get]
func (h *Handler) GetGlobalLeaderboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := tenantFromContext(ctx)
	limit := h.limitFromQuery(r)

	entries := h.leaderboard.GetGlobalTopK(ctx, tenantID, limit)
	if len(entries) > 0 {
		h.jsonResponse(w, http.StatusOK, map[string]interface{}{
			"entries": entries,
			"source":  "cache",
		})
		return
	}

	rows, err := h.pg.Query(ctx, `
		SELECT id::text, total_score, display_name FROM players
		WHERE tenant_id = $1 ORDER BY total_score DESC LIMIT $2
	`, tenantID, limit)
	if err != nil {
		h.logger.Errorw("Failed to query global leaderboard", "error", err)
		h.errorResponse(w, http.StatusInternalServerError, "Query failed")
		return
	}
	defer rows.Close()

	results := make([]models.LeaderboardEntry, 0, limit)
	rank := int64(1)
	for rows.Next() {
		var entry models.LeaderboardEntry
		var score int64
		if err := rows.Scan(&entry.PlayerID, &score, &entry.DisplayName); err != nil {
			continue
		}
		entry.Score = float64(score)
		entry.Rank = rank
		results = append(results, entry)
		rank++
	}

	h.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"entries": results,
		"source":  "db",
	})
}

// RebuildLeaderboard repopulates a game's cache shards from Postgres
// @Summary Rebuild Leaderboard Cache
// @Tags Leaderboards
// @Produce json
// @Param gameID path string true "Game ID"
// @Success 200 {object} map[string]interface{} "Rebuilt count"
// @Router /leaderboards/games/{gameID}/rebuild [post]
func (h *Handler) RebuildLeaderboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := tenantFromContext(ctx)
	gameID := chi.URLParam(r, "gameID")

	count, err := h.leaderboard.RebuildFromDB(ctx, tenantID, gameID)
	if err != nil {
		h.logger.Errorw("Leaderboard rebuild failed", "game", gameID, "error", err)
		h.errorResponse(w, http.StatusInternalServerError, "Rebuild failed")
		return
	}

	h.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"rebuilt": count,
		"gameId":  gameID,
	})
}
