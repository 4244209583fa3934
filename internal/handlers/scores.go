package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stemplay/leaderboard-api/internal/models"
)

// SubmitScore records a play session's score
// @Summary Submit Score
// @Description Persists the score durably, updates stars and totals, and schedules a best-effort leaderboard cache update
// @Tags Scores
// @Accept json
// @Produce json
// @Param gameID path string true "Game ID"
// @Param body body models.ScoreSubmitRequest true "Score submission"
// @Success 200 {object} models.ScoreSubmitResult "Result"
// @Failure 400 {object} map[string]string "Validation Error"
// @Failure 500 {object} map[string]string "Internal Error"
// @Router /games/{gameID}/scores [post]
func (h *Handler) SubmitScore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := tenantFromContext(ctx)
	gameID := chi.URLParam(r, "gameID")

	playerID, ok := playerIDFromRequest(r)
	if !ok {
		h.errorResponse(w, http.StatusUnauthorized, "Missing or invalid player ID")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)
	var req models.ScoreSubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorResponse(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		h.errorResponse(w, http.StatusBadRequest, "Score must be between 0 and 999999")
		return
	}

	result, err := h.scores.Submit(ctx, tenantID, playerID, gameID, &req)
	if err != nil {
		h.logger.Errorw("Score submission failed",
			"tenant", tenantID, "game", gameID, "player", playerID, "error", err)
		h.errorResponse(w, http.StatusInternalServerError, "Submission failed")
		return
	}

	h.jsonResponse(w, http.StatusOK, result)
}

// GetProgress returns the player's durable progress for a game
// @Summary Game Progress
// @Tags Scores
// @Produce json
// @Param gameID path string true "Game ID"
// @Success 200 {object} models.GameProgress "Progress"
// @Router /games/{gameID}/progress [get]
func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := tenantFromContext(ctx)
	gameID := chi.URLParam(r, "gameID")

	playerID, ok := playerIDFromRequest(r)
	if !ok {
		h.errorResponse(w, http.StatusUnauthorized, "Missing or invalid player ID")
		return
	}

	progress, err := h.scores.GetProgress(ctx, tenantID, playerID, gameID)
	if err != nil {
		h.logger.Errorw("Failed to read progress",
			"tenant", tenantID, "game", gameID, "player", playerID, "error", err)
		h.errorResponse(w, http.StatusInternalServerError, "Query failed")
		return
	}

	h.jsonResponse(w, http.StatusOK, progress)
}
