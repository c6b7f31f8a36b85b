package health

import (
	"context"
	"net/http"
	"time"

	"lv-brokerfeed/internal/httputil"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type feedState interface {
	IsInitialized() bool
	AvailableSymbols() []string
}

type Handler struct {
	db        pinger
	feed      feedState
	startedAt time.Time
	timeout   time.Duration
	checks    []check
}

type check struct {
	name string
	fn   func(ctx context.Context) error
}

func NewHandler(db pinger, feed feedState, startedAt time.Time) *Handler {
	start := startedAt.UTC()
	if start.IsZero() {
		start = time.Now().UTC()
	}
	return &Handler{db: db, feed: feed, startedAt: start, timeout: time.Second}
}

// AddCheck registers a readiness condition. Register before serving.
func (h *Handler) AddCheck(name string, fn func(ctx context.Context) error) {
	h.checks = append(h.checks, check{name: name, fn: fn})
}

type liveResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	UptimeSec int64  `json:"uptime_sec"`
	Uptime    string `json:"uptime"`
}

type readinessResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	UptimeSec int64             `json:"uptime_sec"`
	Database  databaseStat      `json:"database"`
	Feed      feedStat          `json:"feed"`
	Checks    map[string]string `json:"checks,omitempty"`
}

type databaseStat struct {
	Reachable bool   `json:"reachable"`
	PingMs    int64  `json:"ping_ms"`
	Error     string `json:"error,omitempty"`
}

type feedStat struct {
	Initialized bool `json:"initialized"`
	Symbols     int  `json:"symbols"`
}

func (h *Handler) uptime(now time.Time) time.Duration {
	uptime := now.Sub(h.startedAt)
	if uptime < 0 {
		return 0
	}
	return uptime
}

// Live does not touch any dependency.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	uptime := h.uptime(now)
	httputil.WriteJSON(w, http.StatusOK, liveResponse{
		Status:    "ok",
		Timestamp: now.Format(time.RFC3339),
		UptimeSec: int64(uptime.Seconds()),
		Uptime:    uptime.String(),
	})
}

// Ready returns 503 until the database answers and the feed holds a symbol list.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	db := h.checkDB(r.Context())
	fs := feedStat{}
	if h.feed != nil && h.feed.IsInitialized() {
		fs.Initialized = true
		fs.Symbols = len(h.feed.AvailableSymbols())
	}

	failed := h.runChecks(r.Context())

	status, code := "ok", http.StatusOK
	if !db.Reachable || !fs.Initialized || len(failed) > 0 {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, code, readinessResponse{
		Status:    status,
		Timestamp: now.Format(time.RFC3339),
		UptimeSec: int64(h.uptime(now).Seconds()),
		Database:  db,
		Feed:      fs,
		Checks:    failed,
	})
}

func (h *Handler) runChecks(ctx context.Context) map[string]string {
	var failed map[string]string
	for _, c := range h.checks {
		cctx, cancel := context.WithTimeout(ctx, h.timeout)
		err := c.fn(cctx)
		cancel()
		if err != nil {
			if failed == nil {
				failed = map[string]string{}
			}
			failed[c.name] = err.Error()
		}
	}
	return failed
}

func (h *Handler) checkDB(ctx context.Context) databaseStat {
	if h.db == nil {
		return databaseStat{Error: "pool is not configured"}
	}
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	err := h.db.Ping(ctx)
	stat := databaseStat{PingMs: time.Since(start).Milliseconds()}
	if err != nil {
		stat.Error = err.Error()
		return stat
	}
	stat.Reachable = true
	return stat
}
