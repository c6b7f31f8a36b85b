package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// HTTPSource polls the broker's REST quote API.
type HTTPSource struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
}

func NewHTTPSource(baseURL, apiKey string, rps float64) *HTTPSource {
	if rps <= 0 {
		rps = 10
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (s *HTTPSource) Connect(ctx context.Context) error {
	_, err := s.Symbols(ctx)
	return err
}

func (s *HTTPSource) Symbols(ctx context.Context) ([]string, error) {
	var resp struct {
		Symbols []string `json:"symbols"`
	}
	if err := s.get(ctx, "/symbols", &resp); err != nil {
		return nil, err
	}
	return resp.Symbols, nil
}

func (s *HTTPSource) Quote(ctx context.Context, symbol string) (RawQuote, error) {
	var w wireQuote
	if err := s.get(ctx, "/quotes/"+url.PathEscape(symbol), &w); err != nil {
		return RawQuote{}, err
	}
	if w.Symbol == "" {
		w.Symbol = symbol
	}
	return w.raw(), nil
}

func (s *HTTPSource) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *HTTPSource) get(ctx context.Context, path string, out any) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return unavailable(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("X-API-Key", s.apiKey)
	}
	res, err := s.client.Do(req)
	if err != nil {
		return unavailable(err)
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", path, ErrUnknownSymbol)
	case res.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return unavailable(fmt.Errorf("GET %s: status %d: %s", path, res.StatusCode, strings.TrimSpace(string(body))))
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return unavailable(errors.Join(errors.New("decode upstream response"), err))
	}
	return nil
}
