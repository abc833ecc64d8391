package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")

type TokenType string

const (
	TypeAccess  TokenType = "access"
	TypeRefresh TokenType = "refresh"
)

type Claims struct {
	Type TokenType `json:"type"`
	jwt.RegisteredClaims
}

// Codec signs and verifies typed HS256 tokens.
//
// All instants are truncated to whole seconds. A token is accepted while
// nbf <= now < exp, so expiry is exclusive.
type Codec struct {
	secret []byte
	now    func() time.Time
	parser *jwt.Parser
}

func NewCodec(secret []byte, now func() time.Time) *Codec {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	c := &Codec{secret: secret, now: now}
	c.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.clock),
	)
	return c
}

func (c *Codec) clock() time.Time { return c.now().Truncate(time.Second) }

func (c *Codec) Issue(subject string, ttl time.Duration, typ TokenType) (string, *Claims, error) {
	if subject == "" {
		return "", nil, errors.New("empty subject")
	}
	if ttl <= 0 {
		return "", nil, fmt.Errorf("non-positive ttl %s", ttl)
	}
	now := c.clock()
	claims := &Claims{
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign %s token: %w", typ, err)
	}
	return signed, claims, nil
}

func (c *Codec) Verify(token string, want TokenType) (*Claims, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	claims := &Claims{}
	_, err := c.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Type != want {
		return nil, fmt.Errorf("%w: type %q, want %q", ErrInvalidToken, claims.Type, want)
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: missing sub or jti", ErrInvalidToken)
	}
	return claims, nil
}
