package marketdata

import (
	"errors"
	"fmt"
	"strings"
)

const maxSymbolsPerRequest = 100

var errNoSymbols = errors.New("symbols is required")

// parseSymbolList splits a comma separated symbol list, normalizing case and
// dropping duplicates. Symbols may contain letters, digits, '.', '_', '-'
// and '/'.
func parseSymbolList(raw string) ([]string, error) {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		s := strings.ToUpper(strings.TrimSpace(p))
		if s == "" {
			continue
		}
		if !validSymbol(s) {
			return nil, fmt.Errorf("invalid symbol %q", s)
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, errNoSymbols
	}
	if len(out) > maxSymbolsPerRequest {
		return nil, fmt.Errorf("at most %d symbols per request", maxSymbolsPerRequest)
	}
	return out, nil
}

func validSymbol(s string) bool {
	if len(s) > 20 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.', r == '_', r == '-', r == '/':
		default:
			return false
		}
	}
	return true
}
