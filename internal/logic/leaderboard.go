package logic

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/stemplay/leaderboard-api/internal/models"
)

const (
	// shardTTL bounds cache memory and forces periodic reconciliation with
	// Postgres. A cold shard is repopulated by the next write or a rebuild.
	shardTTL = 2 * time.Hour

	// rebuildLimit caps how many rows a rebuild replays from Postgres.
	rebuildLimit = 10000
)

// shardIndex deterministically assigns a player to a shard. It must stay
// pure and identical between the write path and every read path: any
// divergence strands entries in a shard readers never look at.
func shardIndex(playerID string, shardCount int) int {
	h := fnv.New64a()
	h.Write([]byte(playerID))
	return int(h.Sum64() % uint64(shardCount))
}

func lbKey(tenantID, gameID string, shard int) string {
	return fmt.Sprintf("lb:%s:%s:shard:%d", tenantID, gameID, shard)
}

// globalKey addresses the all-games leaderboard, which accumulates lifetime
// total score rather than a per-game high score. The game slot "global" is
// reserved for it.
func globalKey(tenantID string, shard int) string {
	return fmt.Sprintf("lb:%s:global:shard:%d", tenantID, shard)
}

type leaderboardService struct {
	cache  Cache
	pg     PgPool
	shards int
	logger *zap.SugaredLogger
}

func NewLeaderboardService(c Cache, pg PgPool, shardCount int, logger *zap.Logger) LeaderboardService {
	if shardCount < 1 {
		shardCount = 1
	}
	return &leaderboardService{
		cache:  c,
		pg:     pg,
		shards: shardCount,
		logger: logger.Sugar(),
	}
}

// UpdateScore writes the player's score into their shard and refreshes the
// shard TTL. Failures are absorbed by the cache layer; a dropped write is
// repaired by the next write for this player or by a rebuild.
func (s *leaderboardService) UpdateScore(ctx context.Context, tenantID, gameID, playerID string, score float64) {
	key := lbKey(tenantID, gameID, shardIndex(playerID, s.shards))
	s.cache.ZAdd(ctx, key, playerID, score)
	s.cache.Expire(ctx, key, shardTTL)
}

func (s *leaderboardService) UpdateGlobalScore(ctx context.Context, tenantID, playerID string, totalScore float64) {
	key := globalKey(tenantID, shardIndex(playerID, s.shards))
	s.cache.ZAdd(ctx, key, playerID, totalScore)
	s.cache.Expire(ctx, key, shardTTL)
}

// GetTopK merges each shard's own top k into a global top k. Because a
// shard contributes at most its own k entries, an entry ranked k+1 inside a
// deep shard can be missed even when it belongs in the true global top k.
// The read handlers fall back to Postgres when the cache comes back empty,
// and that path computes exact ranks.
func (s *leaderboardService) GetTopK(ctx context.Context, tenantID, gameID string, k int) []models.LeaderboardEntry {
	return s.mergeTopK(ctx, k, func(shard int) string {
		return lbKey(tenantID, gameID, shard)
	})
}

func (s *leaderboardService) GetGlobalTopK(ctx context.Context, tenantID string, k int) []models.LeaderboardEntry {
	return s.mergeTopK(ctx, k, func(shard int) string {
		return globalKey(tenantID, shard)
	})
}

func (s *leaderboardService) mergeTopK(ctx context.Context, k int, keyFor func(shard int) string) []models.LeaderboardEntry {
	if k <= 0 {
		return nil
	}

	var mu sync.Mutex
	var all []models.LeaderboardEntry

	g, ctx := errgroup.WithContext(ctx)
	for shard := 0; shard < s.shards; shard++ {
		key := keyFor(shard)
		g.Go(func() error {
			entries := s.cache.ZRevRangeWithScores(ctx, key, 0, int64(k)-1)
			if len(entries) == 0 {
				return nil
			}
			mu.Lock()
			for _, e := range entries {
				all = append(all, models.LeaderboardEntry{PlayerID: e.Member, Score: e.Score})
			}
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	// Descending by score; equal scores order by player id so results are
	// deterministic across runs and backends.
	sort.Slice(all, func(i, j int) bool {
		if all[i].Score != all[j].Score {
			return all[i].Score > all[j].Score
		}
		return all[i].PlayerID < all[j].PlayerID
	})
	if len(all) > k {
		all = all[:k]
	}
	for i := range all {
		all[i].Rank = int64(i) + 1
	}
	return all
}

// ApproxRank returns the player's 1-based rank, or ok=false when the player
// is not cached and the caller must fall back to Postgres. Despite the
// name it is exact: it scans every shard in full and counts strictly
// greater scores, trading O(total cached entries) cost for correctness the
// top-k merge does not give.
func (s *leaderboardService) ApproxRank(ctx context.Context, tenantID, gameID, playerID string) (int64, bool) {
	own := lbKey(tenantID, gameID, shardIndex(playerID, s.shards))
	score, ok := s.cache.ZScore(ctx, own, playerID)
	if !ok {
		return 0, false
	}

	var higher int64
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	for shard := 0; shard < s.shards; shard++ {
		key := lbKey(tenantID, gameID, shard)
		g.Go(func() error {
			entries := s.cache.ZRevRangeWithScores(ctx, key, 0, -1)
			var n int64
			for _, e := range entries {
				if e.Score > score {
					n++
				}
			}
			mu.Lock()
			higher += n
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	return higher + 1, true
}

// RebuildFromDB repopulates the cache shards for a (tenant, game) pair from
// the durable store, highest scores first, capped at rebuildLimit rows.
// Returns the number of rows rehydrated.
func (s *leaderboardService) RebuildFromDB(ctx context.Context, tenantID, gameID string) (int, error) {
	rows, err := s.pg.Query(ctx, `
		SELECT player_id::text, high_score
		FROM game_progress
		WHERE tenant_id = $1 AND game_id = $2
		ORDER BY high_score DESC
		LIMIT $3
	`, tenantID, gameID, rebuildLimit)
	if err != nil {
		return 0, fmt.Errorf("query high scores: %w", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var playerID string
		var highScore int64
		if err := rows.Scan(&playerID, &highScore); err != nil {
			return count, fmt.Errorf("scan high score row: %w", err)
		}
		s.UpdateScore(ctx, tenantID, gameID, playerID, float64(highScore))
		count++
	}
	if err := rows.Err(); err != nil {
		return count, fmt.Errorf("iterate high score rows: %w", err)
	}

	s.logger.Infow("Leaderboard rebuilt from database",
		"tenant", tenantID, "game", gameID, "rows", count)
	return count, nil
}
