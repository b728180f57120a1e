// Package auth turns bearer credentials into member identities.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"chat-engine/internal/chaterr"
)

const (
	RoleMember = "MEMBER"
	RoleAdmin  = "ADMIN"
)

// Identity is an authenticated member.
type Identity struct {
	MemberID int64
	Role     string
}

// IsAdmin reports whether the identity carries the admin role.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// Verifier validates a bearer token.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// Claims is the token payload. The subject is the member id.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role,omitempty"`
}

// JWTVerifier validates HS256 tokens locally.
type JWTVerifier struct {
	secret []byte
	issuer string
}

// NewJWTVerifier constructs a verifier. An empty issuer skips the issuer check.
func NewJWTVerifier(secret, issuer string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), issuer: issuer}
}

func (v *JWTVerifier) Verify(_ context.Context, token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, chaterr.ErrUnauthenticated
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return Identity{}, fmt.Errorf("%w: %v", chaterr.ErrUnauthenticated, err)
	}

	memberID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || memberID <= 0 {
		return Identity{}, chaterr.ErrUnauthenticated
	}

	role := claims.Role
	if role == "" {
		role = RoleMember
	}
	return Identity{MemberID: memberID, Role: role}, nil
}

// Sign issues a token for id. It is used by tests and local tooling.
func (v *JWTVerifier) Sign(id Identity, claims jwt.RegisteredClaims) (string, error) {
	claims.Subject = strconv.FormatInt(id.MemberID, 10)
	if v.issuer != "" && claims.Issuer == "" {
		claims.Issuer = v.issuer
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{RegisteredClaims: claims, Role: id.Role})
	return t.SignedString(v.secret)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", errors.New("invalid authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}
