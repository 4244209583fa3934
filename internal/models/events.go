package models

import "time"

// ScoreEvent is one accepted score submission, shipped to ClickHouse by the
// ingestion worker pool for history and analytics. It is emitted after the
// Postgres transaction commits, so it never represents a rejected write.
type ScoreEvent struct {
	Timestamp   time.Time `json:"timestamp"`
	TenantID    string    `json:"tenant_id"`
	GameID      string    `json:"game_id"`
	PlayerID    string    `json:"player_id"`
	Score       int64     `json:"score"`
	Level       int32     `json:"level"`
	PlayTime    int32     `json:"play_time"`
	IsHighScore bool      `json:"is_high_score"`
}
