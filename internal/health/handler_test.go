package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDB struct{ err error }

func (f fakeDB) Ping(context.Context) error { return f.err }

type fakeFeed struct {
	ready   bool
	symbols []string
}

func (f fakeFeed) IsInitialized() bool        { return f.ready }
func (f fakeFeed) AvailableSymbols() []string { return f.symbols }

func TestLive(t *testing.T) {
	h := NewHandler(nil, nil, time.Now().Add(-time.Minute))
	rec := httptest.NewRecorder()
	h.Live(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body liveResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.GreaterOrEqual(t, body.UptimeSec, int64(59))
}

func TestReady(t *testing.T) {
	tests := []struct {
		name string
		db   pinger
		feed feedState
		code int
	}{
		{"all up", fakeDB{}, fakeFeed{ready: true, symbols: []string{"EURUSD"}}, http.StatusOK},
		{"db down", fakeDB{err: errors.New("refused")}, fakeFeed{ready: true}, http.StatusServiceUnavailable},
		{"feed pending", fakeDB{}, fakeFeed{}, http.StatusServiceUnavailable},
		{"no pool", nil, fakeFeed{ready: true}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(tt.db, tt.feed, time.Now())
			rec := httptest.NewRecorder()
			h.Ready(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}

func TestReadyReportsSymbols(t *testing.T) {
	h := NewHandler(fakeDB{}, fakeFeed{ready: true, symbols: []string{"EURUSD", "BTCUSD"}}, time.Now())
	rec := httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body readinessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Database.Reachable)
	assert.Equal(t, 2, body.Feed.Symbols)
}

func TestReadyFailsOnRegisteredCheck(t *testing.T) {
	h := NewHandler(fakeDB{}, fakeFeed{ready: true}, time.Now())
	h.AddCheck("ib_tiers", func(context.Context) error { return errors.New("tier 2 overlaps tier 1") })
	h.AddCheck("noop", func(context.Context) error { return nil })

	rec := httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body readinessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, map[string]string{"ib_tiers": "tier 2 overlaps tier 1"}, body.Checks)
}
