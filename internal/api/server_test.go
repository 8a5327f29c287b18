package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/scoracle-nhl/internal/api/handler"
	"github.com/albapepper/scoracle-nhl/internal/cache"
	"github.com/albapepper/scoracle-nhl/internal/config"
	"github.com/albapepper/scoracle-nhl/internal/pipeline"
	"github.com/albapepper/scoracle-nhl/internal/runs"
)

type okRow struct{}

func (okRow) Scan(dest ...any) error {
	if b, ok := dest[0].(*[]byte); ok {
		*b = []byte(`[]`)
	}
	return nil
}

type okDB struct{}

func (okDB) QueryRow(context.Context, string, ...any) pgx.Row { return okRow{} }

func newTestRouter(t *testing.T, cfg *config.Config) http.Handler {
	t.Helper()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := pipeline.NewWith(nil, nil, nil, pipeline.Settings{Location: time.UTC}, quiet)
	h := handler.New(context.Background(), okDB{}, cache.New(false), runs.NewMemoryStore(), p, quiet)
	return NewRouter(h, cfg)
}

func TestRouter_Routes(t *testing.T) {
	r := newTestRouter(t, &config.Config{CORSAllowOrigins: []string{"*"}})

	for _, path := range []string{
		"/",
		"/health",
		"/health/db",
		"/health/cache",
		"/api/v1/accuracy/scopes",
		"/api/v1/accuracy/stats/2024-11-04",
		"/api/v1/accuracy/players/2024-11-04",
		"/api/v1/accuracy/history/8478402",
	} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.NotEmpty(t, rec.Header().Get("X-Process-Time"), path)
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/jobs/project", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	r := newTestRouter(t, &config.Config{
		RateLimitEnabled:  true,
		RateLimitRequests: 2,
		RateLimitWindow:   time.Minute,
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("GET", "/health", nil)
		req.RemoteAddr = "203.0.113.7:5555"
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	// burst is half the window allowance
	require.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests, http.StatusTooManyRequests}, codes)

	req := httptest.NewRequest("GET", "/health", nil)
	req.RemoteAddr = "198.51.100.1:5555"
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
