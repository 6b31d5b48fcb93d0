package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/payrelay/payrelay-go/proxy"
)

// DefaultSessionCookie is the cookie carrying the session token.
const DefaultSessionCookie = "payrelay_session"

// sessionClaims are the JWT claims a session token carries.
type sessionClaims struct {
	jwt.RegisteredClaims

	// Wallet is the user's linked wallet address, when known.
	Wallet string `json:"wallet,omitempty"`
}

// JWTSessionProvider authenticates relay callers from an HS256-signed JWT
// session cookie.
type JWTSessionProvider struct {
	// CookieName is the session cookie name. Defaults to DefaultSessionCookie.
	CookieName string

	// Secret is the HMAC signing key. Required.
	Secret []byte
}

var _ proxy.SessionProvider = (*JWTSessionProvider)(nil)

// SessionFromRequest implements proxy.SessionProvider.
func (p *JWTSessionProvider) SessionFromRequest(r *http.Request) (*proxy.Session, error) {
	name := p.CookieName
	if name == "" {
		name = DefaultSessionCookie
	}

	cookie, err := r.Cookie(name)
	if err != nil {
		return nil, fmt.Errorf("missing session cookie: %w", err)
	}

	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(cookie.Value, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return p.Secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, fmt.Errorf("invalid session token: %w", err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, errors.New("invalid session token")
	}

	return &proxy.Session{
		Subject:       claims.Subject,
		WalletAddress: claims.Wallet,
	}, nil
}

// IssueSessionToken mints a session token for the given subject. Intended
// for the auth collaborator and tests; the gateway itself only verifies.
func (p *JWTSessionProvider) IssueSessionToken(subject, wallet string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Wallet: wallet,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.Secret)
}
