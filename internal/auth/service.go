package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Service verifies session tokens issued by the account service. It never
// issues tokens itself.
type Service struct {
	issuer string
	secret []byte
	leeway time.Duration
}

func NewService(issuer string, secret []byte) *Service {
	return &Service{issuer: issuer, secret: secret, leeway: 30 * time.Second}
}

// ParseToken returns the user ID carried in a valid HS256 session token.
func (s *Service) ParseToken(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.secret, nil
	}, jwt.WithLeeway(s.leeway), jwt.WithExpirationRequired())
	if err != nil {
		return "", errors.Join(ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid {
		return "", ErrInvalidToken
	}
	if s.issuer != "" && claims.Issuer != s.issuer {
		return "", errors.Join(ErrInvalidToken, errors.New("invalid issuer"))
	}
	if claims.Subject == "" {
		return "", errors.Join(ErrInvalidToken, errors.New("invalid subject"))
	}
	return claims.Subject, nil
}
