package feed

import (
	"errors"
	"fmt"
)

var (
	ErrNotInitialized      = errors.New("feed not initialized")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrUnknownSymbol       = errors.New("unknown symbol")
)

// Retryable reports whether a later call may succeed where err failed.
func Retryable(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable) || errors.Is(err, ErrNotInitialized)
}

func unavailable(err error) error {
	if err == nil || errors.Is(err, ErrUpstreamUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
}
