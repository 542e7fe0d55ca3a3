package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const callbackIssuer = "cardflow-issuer"

var ErrInvalidSignature = errors.New("invalid callback signature")

// CallbackClaims bind a signed callback to one transaction outcome.
type CallbackClaims struct {
	Token        string `json:"tok"`
	IsSuccessful bool   `json:"ok"`
	jwt.RegisteredClaims
}

type CallbackSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewCallbackSigner(secret string, ttl time.Duration) *CallbackSigner {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CallbackSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Sign returns an HS256 token over the callback outcome.
func (s *CallbackSigner) Sign(token string, isSuccessful bool) (string, error) {
	now := s.now()
	claims := CallbackClaims{
		Token:        token,
		IsSuccessful: isSuccessful,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    callbackIssuer,
			Subject:   token,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing callback: %w", err)
	}
	return signed, nil
}

// Verify parses a bearer token and checks that it was signed for exactly
// this token and outcome.
func (s *CallbackSigner) Verify(bearer, token string, isSuccessful bool) (*CallbackClaims, error) {
	raw := strings.TrimSpace(bearer)
	if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
		raw = strings.TrimSpace(raw[7:])
	}
	if raw == "" {
		return nil, fmt.Errorf("missing bearer token: %w", ErrInvalidSignature)
	}

	claims := &CallbackClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(callbackIssuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if claims.Token != token || claims.IsSuccessful != isSuccessful {
		return nil, fmt.Errorf("claims do not match payload: %w", ErrInvalidSignature)
	}
	return claims, nil
}
