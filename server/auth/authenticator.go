// Package auth associates browser sessions with owner identities. A
// successful login or registration issues a signed JWT delivered as a
// cookie; every store-touching request resolves it back to a user before any
// store access happens.
package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/pcplabs/pcpchat/store"
)

// SessionCookieName carries the session token between browser and server.
const SessionCookieName = "pcpchat_session"

const (
	issuer        = "pcpchat"
	tokenLifetime = 30 * 24 * time.Hour
)

// ErrUnauthenticated reports a missing, expired, or forged session token.
var ErrUnauthenticated = errors.New("auth: unauthenticated")

// Authenticator issues and verifies session tokens.
type Authenticator struct {
	store  *store.Store
	secret []byte
}

// NewAuthenticator builds an Authenticator signing with the given secret.
func NewAuthenticator(s *store.Store, secret string) *Authenticator {
	return &Authenticator{store: s, secret: []byte(secret)}
}

// IssueToken creates a signed session token for the given user id.
func (a *Authenticator) IssueToken(userID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenLifetime)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign session token")
	}
	return signed, nil
}

// AuthenticateToUser resolves the request's Authorization and Cookie headers
// to the owning user. It returns ErrUnauthenticated when no valid session is
// present; any store operation must be rejected before this succeeds.
func (a *Authenticator) AuthenticateToUser(ctx context.Context, authHeader, cookieHeader string) (*store.User, error) {
	raw := tokenFromHeaders(authHeader, cookieHeader)
	if raw == "" {
		return nil, ErrUnauthenticated
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid || claims.Subject == "" {
		return nil, ErrUnauthenticated
	}
	user, err := a.store.GetUser(ctx, &store.FindUser{ID: &claims.Subject})
	if err != nil {
		return nil, errors.Wrap(err, "load session user")
	}
	if user == nil {
		return nil, ErrUnauthenticated
	}
	return user, nil
}

// HashPassword derives a bcrypt hash for storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", errors.Wrap(err, "hash password")
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the stored hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// tokenFromHeaders prefers a Bearer token, falling back to the session cookie.
func tokenFromHeaders(authHeader, cookieHeader string) string {
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	header := http.Header{}
	header.Add("Cookie", cookieHeader)
	req := http.Request{Header: header}
	cookie, err := req.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}
