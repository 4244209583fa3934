package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Config
const (
	API_URL   = "http://localhost:8080/api/v1"
	TENANT_ID = "stem_default"
)

var games = []string{
	"PhysicsMasterBilliards",
	"CampusDash",
	"ChemistryLab",
	"CodeRunner",
	"RocketScience",
}

type scoreSubmission struct {
	Score int64  `json:"score"`
	Time  *int32 `json:"time,omitempty"`
	Level *int32 `json:"level,omitempty"`
}

func main() {
	rng := rand.New(rand.NewSource(42))
	client := &http.Client{Timeout: 5 * time.Second}

	// Deterministic seed: 20 players submitting a handful of scores each.
	players := make([]uuid.UUID, 20)
	for i := range players {
		players[i] = uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("seed-player-%d", i)))
	}

	submitted := 0
	for _, playerID := range players {
		for _, game := range games {
			plays := 1 + rng.Intn(3)
			for p := 0; p < plays; p++ {
				playTime := int32(30 + rng.Intn(270))
				level := int32(1 + rng.Intn(5))
				sub := scoreSubmission{
					Score: int64(rng.Intn(1600)),
					Time:  &playTime,
					Level: &level,
				}
				if err := submit(client, playerID, game, sub); err != nil {
					log.Printf("submit failed (player=%s game=%s): %v", playerID, game, err)
					continue
				}
				submitted++
			}
		}
	}

	log.Printf("Seeded %d score submissions across %d players and %d games",
		submitted, len(players), len(games))
}

func submit(client *http.Client, playerID uuid.UUID, gameID string, sub scoreSubmission) error {
	body, err := json.Marshal(sub)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/games/%s/scores", API_URL, gameID)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", TENANT_ID)
	req.Header.Set("X-Player-ID", playerID.String())

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(data))
	}
	return nil
}
