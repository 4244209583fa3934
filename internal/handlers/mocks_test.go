package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/stemplay/leaderboard-api/internal/cache"
	"github.com/stemplay/leaderboard-api/internal/logic"
	"github.com/stemplay/leaderboard-api/internal/models"
)

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

type fakeRows struct {
	pgx.Rows
	data [][]any
	idx  int
}

func (r *fakeRows) Close()     {}
func (r *fakeRows) Err() error { return nil }

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

var (
	_ PgPool                   = (*fakePool)(nil)
	_ logic.LeaderboardService = (*stubLeaderboard)(nil)
	_ logic.ScoreService       = (*stubScores)(nil)
	_ logic.IngestQueue        = (*stubIngest)(nil)
)

// fakePool implements PgPool with scriptable behavior.
type fakePool struct {
	QueryFunc    func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRowFunc func(ctx context.Context, sql string, args ...any) pgx.Row
	PingErr      error
}

func (f *fakePool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if f.QueryFunc != nil {
		return f.QueryFunc(ctx, sql, args...)
	}
	return &fakeRows{}, nil
}

func (f *fakePool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if f.QueryRowFunc != nil {
		return f.QueryRowFunc(ctx, sql, args...)
	}
	return &fakeRow{err: pgx.ErrNoRows}
}

func (f *fakePool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (f *fakePool) Begin(ctx context.Context) (pgx.Tx, error) {
	return nil, fmt.Errorf("no transactions in handler tests")
}

func (f *fakePool) Ping(ctx context.Context) error { return f.PingErr }

// fakeCH stubs ClickHouse liveness.
type fakeCH struct {
	driver.Conn
	err error
}

func (f *fakeCH) Ping(ctx context.Context) error { return f.err }

// fakeRedis stubs the cache backend's liveness.
type fakeRedis struct {
	redis.Cmdable
	err error
}

func (f *fakeRedis) Ping(ctx context.Context) *redis.StatusCmd {
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	return redis.NewStatusResult("PONG", nil)
}

// stubLeaderboard implements logic.LeaderboardService with func fields.
type stubLeaderboard struct {
	GetTopKFunc       func(ctx context.Context, tenantID, gameID string, k int) []models.LeaderboardEntry
	GetGlobalTopKFunc func(ctx context.Context, tenantID string, k int) []models.LeaderboardEntry
	ApproxRankFunc    func(ctx context.Context, tenantID, gameID, playerID string) (int64, bool)
	RebuildFunc       func(ctx context.Context, tenantID, gameID string) (int, error)
}

func (s *stubLeaderboard) UpdateScore(ctx context.Context, tenantID, gameID, playerID string, score float64) {
}

func (s *stubLeaderboard) UpdateGlobalScore(ctx context.Context, tenantID, playerID string, totalScore float64) {
}

func (s *stubLeaderboard) GetTopK(ctx context.Context, tenantID, gameID string, k int) []models.LeaderboardEntry {
	if s.GetTopKFunc != nil {
		return s.GetTopKFunc(ctx, tenantID, gameID, k)
	}
	return nil
}

func (s *stubLeaderboard) GetGlobalTopK(ctx context.Context, tenantID string, k int) []models.LeaderboardEntry {
	if s.GetGlobalTopKFunc != nil {
		return s.GetGlobalTopKFunc(ctx, tenantID, k)
	}
	return nil
}

func (s *stubLeaderboard) ApproxRank(ctx context.Context, tenantID, gameID, playerID string) (int64, bool) {
	if s.ApproxRankFunc != nil {
		return s.ApproxRankFunc(ctx, tenantID, gameID, playerID)
	}
	return 0, false
}

func (s *stubLeaderboard) RebuildFromDB(ctx context.Context, tenantID, gameID string) (int, error) {
	if s.RebuildFunc != nil {
		return s.RebuildFunc(ctx, tenantID, gameID)
	}
	return 0, nil
}

// stubScores implements logic.ScoreService with func fields.
type stubScores struct {
	SubmitFunc      func(ctx context.Context, tenantID string, playerID uuid.UUID, gameID string, req *models.ScoreSubmitRequest) (*models.ScoreSubmitResult, error)
	GetProgressFunc func(ctx context.Context, tenantID string, playerID uuid.UUID, gameID string) (*models.GameProgress, error)
}

func (s *stubScores) Submit(ctx context.Context, tenantID string, playerID uuid.UUID, gameID string, req *models.ScoreSubmitRequest) (*models.ScoreSubmitResult, error) {
	if s.SubmitFunc != nil {
		return s.SubmitFunc(ctx, tenantID, playerID, gameID, req)
	}
	return &models.ScoreSubmitResult{Success: true, NewAchievements: []string{}}, nil
}

func (s *stubScores) GetProgress(ctx context.Context, tenantID string, playerID uuid.UUID, gameID string) (*models.GameProgress, error) {
	if s.GetProgressFunc != nil {
		return s.GetProgressFunc(ctx, tenantID, playerID, gameID)
	}
	return &models.GameProgress{TenantID: tenantID, GameID: gameID, PlayerID: playerID, Level: 1}, nil
}

// stubIngest reports a fixed queue depth.
type stubIngest struct{ depth int }

func (s *stubIngest) Enqueue(event *models.ScoreEvent) bool { return true }
func (s *stubIngest) QueueDepth() int                       { return s.depth }

type testDeps struct {
	pg     *fakePool
	ch     *fakeCH
	rdb    *fakeRedis
	lb     *stubLeaderboard
	scores *stubScores
}

func newTestDeps() *testDeps {
	return &testDeps{
		pg:     &fakePool{},
		ch:     &fakeCH{},
		rdb:    &fakeRedis{},
		lb:     &stubLeaderboard{},
		scores: &stubScores{},
	}
}

func newTestHandler(d *testDeps) *Handler {
	return New(Config{
		WorkerPool:      &stubIngest{},
		Postgres:        d.pg,
		ClickHouse:      d.ch,
		Cache:           cache.NewClient(d.rdb, "arcade:", zap.NewNop()),
		Logger:          zap.NewNop(),
		PageSize:        50,
		DefaultTenantID: "stem_default",
		Scores:          d.scores,
		Leaderboard:     d.lb,
	})
}

// newTestRouter mounts the handler on the same routes the server uses.
func newTestRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.TenantMiddleware)
		r.Post("/games/{gameID}/scores", h.SubmitScore)
		r.Get("/games/{gameID}/progress", h.GetProgress)
		r.Route("/leaderboards", func(r chi.Router) {
			r.Get("/global", h.GetGlobalLeaderboard)
			r.Get("/games/{gameID}", h.GetGameLeaderboard)
			r.Get("/games/{gameID}/me", h.GetMyRank)
			r.Get("/games/{gameID}/around-me", h.GetAroundMe)
			r.Post("/games/{gameID}/rebuild", h.RebuildLeaderboard)
		})
	})
	return r
}

func doRequest(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}
