package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"tapline/internal/domain"
)

// DefaultTTL is the validity window of an invite link.
const DefaultTTL = 14 * 24 * time.Hour

// ErrInvalid covers every verification failure: expired, malformed or mis-signed.
var ErrInvalid = errors.New("invalid or expired token")

// Claims binds an invite to its session and stakeholder role.
type Claims struct {
	InviteID  string
	SessionID string
	RoleType  domain.RoleType
}

type inviteClaims struct {
	jwt.RegisteredClaims
	InviteID  string `json:"invite_id"`
	SessionID string `json:"session_id"`
	RoleType  string `json:"role_type"`
}

// Codec signs and verifies invite tokens with a shared HS256 secret.
type Codec struct {
	secret []byte
	TTL    time.Duration
	Now    func() time.Time
}

func New(secret string, ttl time.Duration) (*Codec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("token secret not configured")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Codec{secret: []byte(secret), TTL: ttl, Now: time.Now}, nil
}

func (c *Codec) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Issue returns a signed token and its absolute expiry.
func (c *Codec) Issue(claims Claims) (string, time.Time, error) {
	if claims.InviteID == "" || claims.SessionID == "" || claims.RoleType == "" {
		return "", time.Time{}, errors.New("invite_id, session_id and role_type are required")
	}
	issued := c.now().UTC().Truncate(time.Second)
	expires := issued.Add(c.TTL)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, inviteClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		InviteID:  claims.InviteID,
		SessionID: claims.SessionID,
		RoleType:  string(claims.RoleType),
	})
	signed, err := tok.SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// Verify checks signature and expiry and returns the decoded claims.
func (c *Codec) Verify(raw string) (Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Claims{}, ErrInvalid
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	parsed := &inviteClaims{}
	tok, err := parser.ParseWithClaims(raw, parsed, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil || !tok.Valid {
		return Claims{}, ErrInvalid
	}
	if parsed.InviteID == "" || parsed.SessionID == "" || parsed.RoleType == "" {
		return Claims{}, ErrInvalid
	}
	return Claims{
		InviteID:  parsed.InviteID,
		SessionID: parsed.SessionID,
		RoleType:  domain.RoleType(parsed.RoleType),
	}, nil
}
