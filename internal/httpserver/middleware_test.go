package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"lv-brokerfeed/internal/health"
	"lv-brokerfeed/internal/ledger"
	"lv-brokerfeed/internal/settings"
	"lv-brokerfeed/internal/settlement"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeParser map[string]string

func (f fakeParser) ParseToken(token string) (string, error) {
	if id, ok := f[token]; ok {
		return id, nil
	}
	return "", errors.New("bad token")
}

type fakeIBStore struct{ seen string }

func (f *fakeIBStore) IBStatus(_ context.Context, userID string, _ settings.IBSettings) (ledger.IBStatus, error) {
	f.seen = userID
	return ledger.IBStatus{}, nil
}

func (f *fakeIBStore) Withdraw(context.Context, string, decimal.NullDecimal, settings.IBSettings) (ledger.Withdrawal, error) {
	return ledger.Withdrawal{}, nil
}

type fakeIBSettings struct{}

func (fakeIBSettings) ActiveIB(context.Context) settings.IBSettings {
	return settings.DefaultIBSettings()
}

type fakeDB struct{}

func (fakeDB) Ping(context.Context) error { return nil }

type fakeFeed struct{}

func (fakeFeed) IsInitialized() bool        { return true }
func (fakeFeed) AvailableSymbols() []string { return []string{"EURUSD"} }

func newTestRouter(t *testing.T, store *fakeIBStore) http.Handler {
	return NewRouter(RouterDeps{
		IBHandler:         ledger.NewHandler(store, fakeIBSettings{}, zaptest.NewLogger(t)),
		SettlementHandler: settlement.NewHandler(nil),
		HealthHandler:     health.NewHandler(fakeDB{}, fakeFeed{}, time.Now()),
		Auth:              fakeParser{"good": "user-7"},
		InternalToken:     "internal",
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("ok"))
		}),
	})
}

func TestRouterAuth(t *testing.T) {
	store := &fakeIBStore{}
	router := newTestRouter(t, store)

	req := httptest.NewRequest(http.MethodGet, "/v1/ib/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req.Header.Set("Authorization", "Bearer nope")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req.Header.Set("Authorization", "Bearer good")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-7", store.seen)
}

func TestRouterInternalToken(t *testing.T) {
	router := newTestRouter(t, &fakeIBStore{})

	req := httptest.NewRequest(http.MethodPost, "/v1/internal/settlements", nil)
	req.Header.Set("X-Internal-Token", "wrong")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestInternalAuthEmptyTokenRejects(t *testing.T) {
	h := InternalAuth("")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouterPublicRoutes(t *testing.T) {
	router := newTestRouter(t, &fakeIBStore{})

	for _, path := range []string{"/health", "/health/live", "/metrics"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/v1/prices", nil)
	req.Header.Set("Origin", "https://app.example")
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	other := httptest.NewRequest(http.MethodGet, "/", nil)
	other.RemoteAddr = "10.0.0.2:5000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, other)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiterPrune(t *testing.T) {
	rl := NewRateLimiter(10, 10)
	now := time.Now()
	require.True(t, rl.allow("10.0.0.1", now))
	require.True(t, rl.allow("10.0.0.2", now.Add(5*time.Minute)))

	rl.prune(now.Add(5 * time.Minute))
	assert.Len(t, rl.visitors, 1)
	assert.Contains(t, rl.visitors, "10.0.0.2")
}
