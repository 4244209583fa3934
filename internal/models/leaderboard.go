package models

// LeaderboardEntry is a ranked row served to clients. DisplayName is only
// populated on the Postgres fallback path; the cache stores player ids and
// scores only.
type LeaderboardEntry struct {
	Rank        int64   `json:"rank"`
	PlayerID    string  `json:"playerId"`
	DisplayName string  `json:"displayName,omitempty"`
	Score       float64 `json:"score"`
}
