package security

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"time"

	"ethtrader/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// RS256Signer mints API client tokens; used by the token CLI command, never by the server
type RS256Signer struct {
	Priv *rsa.PrivateKey
	Iss  string
	Aud  string
	now  func() time.Time
}

// NewRS256Signer loads a PEM-encoded RSA private key, PKCS1 or PKCS8
func NewRS256Signer(cfg *config.JWTConfig) (*RS256Signer, error) {
	if cfg == nil {
		return nil, errors.New("jwt config is required")
	}
	if cfg.PrivateKeyPath == "" {
		return nil, errors.New("private key path is empty")
	}

	b, err := os.ReadFile(cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}

	priv, err := parseRSAPrivateKeyFromPem(b)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	return &RS256Signer{
		Priv: priv,
		Iss:  cfg.Issuer,
		Aud:  cfg.Audience,
		now:  time.Now,
	}, nil
}

// Mint signs a token for client valid for ttl; scope is space separated
func (s *RS256Signer) Mint(client string, ttl time.Duration, scope string) (string, error) {
	if client == "" {
		return "", ErrNoSubject
	}
	if ttl <= 0 {
		return "", fmt.Errorf("ttl must be positive, got %s", ttl)
	}

	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.Iss,
			Subject:   client,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
		Scope: scope,
	}
	if s.Aud != "" {
		claims.Audience = jwt.ClaimStrings{s.Aud}
	}

	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.Priv)
}
