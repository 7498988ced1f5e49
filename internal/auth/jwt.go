package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned when a token fails verification for any reason.
var ErrInvalidToken = errors.New("auth: invalid token")

// Config represents configuration for the JWT manager.
type Config struct {
	// Secret is the HMAC signing key. Required.
	Secret string
	// TokenDuration is how long issued tokens stay valid.
	TokenDuration time.Duration
	// Issuer is stamped into and checked against the iss claim.
	Issuer string
}

// DefaultConfig returns a default JWT configuration.
func DefaultConfig() *Config {
	return &Config{
		TokenDuration: 24 * time.Hour,
		Issuer:        "statuspulse",
	}
}

// Claims carries the client identity inside a session token.
type Claims struct {
	jwt.RegisteredClaims

	ClientID string `json:"client_id"`
}

// JWTManager issues and verifies HS256 session tokens for websocket clients.
type JWTManager struct {
	config *Config
	secret []byte
}

// NewJWTManager creates a JWT manager. The secret must not be empty.
func NewJWTManager(config *Config) (*JWTManager, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Secret == "" {
		return nil, errors.New("auth: secret not configured")
	}
	if config.TokenDuration <= 0 {
		config.TokenDuration = 24 * time.Hour
	}
	return &JWTManager{
		config: config,
		secret: []byte(config.Secret),
	}, nil
}

// Generate issues a signed token for the given client id.
func (m *JWTManager) Generate(clientID string) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   clientID,
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.TokenDuration)),
		},
		ClientID: clientID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token, returning its claims. Expired tokens,
// wrong signing methods and signature mismatches all map to ErrInvalidToken.
func (m *JWTManager) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if m.config.Issuer != "" && claims.Issuer != m.config.Issuer {
		return nil, fmt.Errorf("%w: wrong issuer %q", ErrInvalidToken, claims.Issuer)
	}
	if claims.ClientID == "" {
		claims.ClientID = claims.Subject
	}
	return claims, nil
}
