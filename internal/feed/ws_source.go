package feed

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// WSSource streams quotes over a WebSocket subscription. Snapshot lookups and
// the symbol list go through the REST source.
type WSSource struct {
	*HTTPSource
	url    string
	dialer *websocket.Dialer
	logger *zap.Logger
}

func NewWSSource(wsURL string, rest *HTTPSource, logger *zap.Logger) *WSSource {
	return &WSSource{
		HTTPSource: rest,
		url:        wsURL,
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger:     logger.Named("ws-source"),
	}
}

type subscribeFrame struct {
	Action  string   `json:"action"`
	Symbols []string `json:"symbols"`
}

// Stream keeps a subscription open until ctx is done, redialing with backoff
// whenever the connection drops.
func (s *WSSource) Stream(ctx context.Context, symbols []string, fn func(RawQuote)) error {
	for {
		conn, err := s.dial(ctx)
		if err != nil {
			return err
		}
		err = s.read(ctx, conn, symbols, fn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("quote stream dropped, reconnecting", zap.Error(err))
	}
}

func (s *WSSource) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if s.apiKey != "" {
		header.Set("X-API-Key", s.apiKey)
	}
	backoff := retry.WithCappedDuration(30*time.Second, retry.NewExponential(500*time.Millisecond))

	var conn *websocket.Conn
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		c, _, err := s.dialer.DialContext(ctx, s.url, header)
		if err != nil {
			s.logger.Debug("dial failed", zap.String("url", s.url), zap.Error(err))
			return retry.RetryableError(err)
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (s *WSSource) read(ctx context.Context, conn *websocket.Conn, symbols []string, fn func(RawQuote)) error {
	if err := conn.WriteJSON(subscribeFrame{Action: "subscribe", Symbols: symbols}); err != nil {
		return err
	}
	s.logger.Info("subscribed", zap.Int("symbols", len(symbols)))

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		var w wireQuote
		if err := conn.ReadJSON(&w); err != nil {
			return err
		}
		if w.Symbol == "" {
			continue
		}
		fn(w.raw())
	}
}
