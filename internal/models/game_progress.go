package models

import (
	"time"

	"github.com/google/uuid"
)

// GameProgress is the durable per-(tenant, game, player) record. high_score
// is the authoritative value the leaderboard cache is rebuilt from.
type GameProgress struct {
	PlayerID     uuid.UUID `json:"playerId"`
	TenantID     string    `json:"tenantId"`
	GameID       string    `json:"gameId"`
	HighScore    int64     `json:"highScore"`
	BestTime     *int32    `json:"bestTime"`
	Level        int32     `json:"level"`
	Stars        int32     `json:"stars"`
	PlayCount    int32     `json:"playCount"`
	TotalScore   int64     `json:"totalScore"`
	LastPlayedAt time.Time `json:"lastPlayedAt"`
}

type ScoreSubmitRequest struct {
	Score int64  `json:"score" validate:"min=0,max=999999"`
	Time  *int32 `json:"time,omitempty"`
	Level *int32 `json:"level,omitempty"`
}

type ScoreSubmitResult struct {
	Success         bool     `json:"success"`
	HighScore       int64    `json:"highScore"`
	Stars           int32    `json:"stars"`
	IsNewHighScore  bool     `json:"isNewHighScore"`
	NewAchievements []string `json:"newAchievements"`
}

// starThresholds maps a game to its [1-star, 2-star, 3-star] score cutoffs.
var starThresholds = map[string][3]int64{
	"PhysicsMasterBilliards": {200, 600, 1500},
	"STEMProjectVolley":      {300, 800, 1500},
	"DroneDefense":           {200, 500, 1000},
	"CampusDash":             {100, 300, 600},
	"ChemistryLab":           {150, 400, 900},
	"MathBlaster":            {200, 500, 1200},
	"BiologyExplorer":        {100, 350, 800},
	"CodeRunner":             {250, 600, 1400},
	"GeoQuest":               {150, 450, 1000},
	"RobotBuilder":           {200, 550, 1300},
	"SpaceNavigator":         {300, 700, 1500},
	"CircuitMaster":          {150, 400, 900},
	"EcoSystem":              {100, 300, 700},
	"DataDetective":          {200, 500, 1100},
	"WeatherStation":         {150, 400, 850},
	"LabSafety":              {100, 250, 600},
	"BridgeBuilder":          {200, 500, 1200},
	"StarMapper":             {150, 400, 900},
	"MicroWorld":             {100, 350, 800},
	"EnergyGrid":             {200, 500, 1100},
	"FossilHunter":           {150, 400, 900},
	"VolcanoLab":             {200, 500, 1000},
	"OceanExplorer":          {100, 300, 700},
	"GeneticLab":             {200, 600, 1300},
	"RocketScience":          {250, 600, 1400},
}

var defaultThresholds = [3]int64{100, 300, 600}

// StarThresholds returns the score cutoffs for a game, falling back to the
// default triple for unknown game ids.
func StarThresholds(gameID string) [3]int64 {
	if t, ok := starThresholds[gameID]; ok {
		return t
	}
	return defaultThresholds
}

// CalculateStars maps a score to a 0-3 star rating for the given game.
func CalculateStars(gameID string, score int64) int32 {
	t := StarThresholds(gameID)
	switch {
	case score >= t[2]:
		return 3
	case score >= t[1]:
		return 2
	case score >= t[0]:
		return 1
	default:
		return 0
	}
}
