package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/guard-e/hostel/internal/hostel/access"
)

// ErrInvalidToken is returned for tokens that fail parsing or validation.
var ErrInvalidToken = errors.New("invalid token")

// Claims are the session token claims. SFlags is carried along unchanged.
type Claims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Flags    int    `json:"flags"`
	SFlags   int    `json:"sflags"`
	jwt.RegisteredClaims
}

// Session rebuilds the authenticated session the token was issued for.
func (c *Claims) Session() access.Session {
	return access.NewSession(access.IdentityRecord{
		UserID: c.UserID,
		Name:   c.Username,
		Flags:  c.Flags,
		SFlags: c.SFlags,
	})
}

// DefaultTokenTTL is used when the issuer is built with a zero TTL.
const DefaultTokenTTL = 12 * time.Hour

// TokenIssuer signs and validates HS256 session tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret string, ttl time.Duration) (*TokenIssuer, error) {
	if len(secret) < 16 {
		return nil, errors.New("jwt secret must be at least 16 bytes")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue creates a token for s with a unique JTI.
func (i *TokenIssuer) Issue(s access.Session) (string, *Claims, error) {
	now := i.now()
	claims := &Claims{
		UserID:   s.UserID,
		Username: s.Username,
		Flags:    s.Flags,
		SFlags:   s.SFlags,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   fmt.Sprintf("%d", s.UserID),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", nil, fmt.Errorf("signing token: %w", err)
	}
	return signed, claims, nil
}

// Parse validates tokenStr and returns its claims.
func (i *TokenIssuer) Parse(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
