package logic

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/stemplay/leaderboard-api/internal/cache"
	"github.com/stemplay/leaderboard-api/internal/models"
)

// memCache is an in-memory sorted-set store implementing the Cache
// interface. With failing set it behaves like a dead backend: writes are
// dropped and reads come back empty, mirroring the real client's
// error-swallowing contract.
type memCache struct {
	mu      sync.Mutex
	zsets   map[string]map[string]float64
	ttls    map[string]time.Duration
	failing bool
}

func newMemCache() *memCache {
	return &memCache{
		zsets: make(map[string]map[string]float64),
		ttls:  make(map[string]time.Duration),
	}
}

func (m *memCache) ZAdd(ctx context.Context, key, member string, score float64) {
	if m.failing {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.zsets[key] == nil {
		m.zsets[key] = make(map[string]float64)
	}
	m.zsets[key][member] = score
}

func (m *memCache) ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) []cache.ZEntry {
	if m.failing {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	set := m.zsets[key]
	entries := make([]cache.ZEntry, 0, len(set))
	for member, score := range set {
		entries = append(entries, cache.ZEntry{Member: member, Score: score})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].Member < entries[j].Member
	})

	if stop == -1 {
		stop = int64(len(entries)) - 1
	}
	if start > int64(len(entries))-1 || start > stop {
		return nil
	}
	if stop > int64(len(entries))-1 {
		stop = int64(len(entries)) - 1
	}
	return entries[start : stop+1]
}

func (m *memCache) ZScore(ctx context.Context, key, member string) (float64, bool) {
	if m.failing {
		return 0, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	score, ok := m.zsets[key][member]
	return score, ok
}

func (m *memCache) Expire(ctx context.Context, key string, ttl time.Duration) {
	if m.failing {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ttls[key] = ttl
}

func (m *memCache) totalEntries() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, set := range m.zsets {
		n += len(set)
	}
	return n
}

// assign copies val into the pointer dest, converting compatible types.
func assign(dest, val any) error {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Ptr || dv.IsNil() {
		return fmt.Errorf("scan destination must be a non-nil pointer, got %T", dest)
	}
	elem := dv.Elem()
	if val == nil {
		elem.Set(reflect.Zero(elem.Type()))
		return nil
	}
	v := reflect.ValueOf(val)
	if v.Type().AssignableTo(elem.Type()) {
		elem.Set(v)
		return nil
	}
	if v.Type().ConvertibleTo(elem.Type()) {
		elem.Set(v.Convert(elem.Type()))
		return nil
	}
	return fmt.Errorf("cannot scan %T into %T", val, dest)
}

// fakeRows implements pgx.Rows over a static result set. Unused interface
// methods panic via the embedded nil interface.
type fakeRows struct {
	pgx.Rows
	data [][]any
	idx  int
	err  error
}

func (r *fakeRows) Close()     {}
func (r *fakeRows) Err() error { return r.err }

func (r *fakeRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.idx-1]
	for i, d := range dest {
		if err := assign(d, row[i]); err != nil {
			return err
		}
	}
	return nil
}

// fakeRow implements pgx.Row.
type fakeRow struct {
	vals []any
	err  error
}

func (r *fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		if err := assign(d, r.vals[i]); err != nil {
			return err
		}
	}
	return nil
}

// fakePg implements PgPool with scriptable behavior.
type fakePg struct {
	QueryFunc    func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRowFunc func(ctx context.Context, sql string, args ...any) pgx.Row
	ExecFunc     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	BeginFunc    func(ctx context.Context) (pgx.Tx, error)
}

func (f *fakePg) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if f.QueryFunc != nil {
		return f.QueryFunc(ctx, sql, args...)
	}
	return &fakeRows{}, nil
}

func (f *fakePg) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if f.QueryRowFunc != nil {
		return f.QueryRowFunc(ctx, sql, args...)
	}
	return &fakeRow{err: pgx.ErrNoRows}
}

func (f *fakePg) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if f.ExecFunc != nil {
		return f.ExecFunc(ctx, sql, args...)
	}
	return pgconn.CommandTag{}, nil
}

func (f *fakePg) Begin(ctx context.Context) (pgx.Tx, error) {
	if f.BeginFunc != nil {
		return f.BeginFunc(ctx)
	}
	return nil, fmt.Errorf("no BeginFunc configured")
}

// fakeTx implements pgx.Tx by delegating to func fields; unimplemented
// methods panic via the embedded interface.
type fakeTx struct {
	pgx.Tx
	QueryRowFunc func(ctx context.Context, sql string, args ...any) pgx.Row
	ExecFunc     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	committed    bool
	rolledBack   bool
}

func (t *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if t.QueryRowFunc != nil {
		return t.QueryRowFunc(ctx, sql, args...)
	}
	return &fakeRow{err: pgx.ErrNoRows}
}

func (t *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if t.ExecFunc != nil {
		return t.ExecFunc(ctx, sql, args...)
	}
	return pgconn.CommandTag{}, nil
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

// scoreCall records one leaderboard write.
type scoreCall struct {
	TenantID string
	GameID   string
	PlayerID string
	Score    float64
}

// mockLeaderboard records cache updates; done is signaled after the global
// update so tests can wait out the detached goroutine.
type mockLeaderboard struct {
	mu          sync.Mutex
	scoreCalls  []scoreCall
	globalCalls []scoreCall
	done        chan struct{}
}

func newMockLeaderboard() *mockLeaderboard {
	return &mockLeaderboard{done: make(chan struct{}, 8)}
}

func (m *mockLeaderboard) UpdateScore(ctx context.Context, tenantID, gameID, playerID string, score float64) {
	m.mu.Lock()
	m.scoreCalls = append(m.scoreCalls, scoreCall{tenantID, gameID, playerID, score})
	m.mu.Unlock()
}

func (m *mockLeaderboard) UpdateGlobalScore(ctx context.Context, tenantID, playerID string, totalScore float64) {
	m.mu.Lock()
	m.globalCalls = append(m.globalCalls, scoreCall{TenantID: tenantID, PlayerID: playerID, Score: totalScore})
	m.mu.Unlock()
	m.done <- struct{}{}
}

func (m *mockLeaderboard) GetTopK(ctx context.Context, tenantID, gameID string, k int) []models.LeaderboardEntry {
	return nil
}

func (m *mockLeaderboard) GetGlobalTopK(ctx context.Context, tenantID string, k int) []models.LeaderboardEntry {
	return nil
}

func (m *mockLeaderboard) ApproxRank(ctx context.Context, tenantID, gameID, playerID string) (int64, bool) {
	return 0, false
}

func (m *mockLeaderboard) RebuildFromDB(ctx context.Context, tenantID, gameID string) (int, error) {
	return 0, nil
}

func (m *mockLeaderboard) waitForGlobalUpdate(timeout time.Duration) bool {
	select {
	case <-m.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// mockAchievements returns a fixed award list.
type mockAchievements struct {
	awards []string
	err    error
}

func (m *mockAchievements) Evaluate(ctx context.Context, tenantID string, playerID uuid.UUID) ([]string, error) {
	return m.awards, m.err
}

// mockIngest records enqueued score events.
type mockIngest struct {
	mu     sync.Mutex
	events []*models.ScoreEvent
}

func (m *mockIngest) Enqueue(event *models.ScoreEvent) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return true
}

func (m *mockIngest) QueueDepth() int { return 0 }
