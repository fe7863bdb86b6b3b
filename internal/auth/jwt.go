package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"petadopt/internal/model"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type contextKey string

const (
	sessionKey contextKey = "session"
	claimsKey  contextKey = "claims"
)

// Header names read by the middleware.
const (
	OrganizationHeader = "X-Organization-ID"
	DevUserHeader      = "X-User-ID"
	DevRoleHeader      = "X-User-Role"
)

var ErrRevoked = errors.New("token revoked")

// Claims are the session token claims.
type Claims struct {
	Role model.Role `json:"role"`
	Name string     `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 session tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue mints a token for user with a fresh jti.
func (i *Issuer) Issue(user model.User) (string, error) {
	now := i.now()
	claims := Claims{
		Role: user.Role,
		Name: user.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies the signature and expiry of tokenString.
func (i *Issuer) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.Subject == "" {
		return nil, errors.New("invalid token")
	}
	if _, err := model.ParseRole(string(claims.Role)); err != nil {
		return nil, err
	}
	return claims, nil
}

// RevocationChecker reports whether a token id was signed out.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// Authenticator resolves the request session from a bearer token.
type Authenticator struct {
	issuer     *Issuer
	revoked    RevocationChecker
	devHeaders bool
	log        *zap.Logger
}

func NewAuthenticator(issuer *Issuer, revoked RevocationChecker, devHeaders bool, log *zap.Logger) *Authenticator {
	return &Authenticator{issuer: issuer, revoked: revoked, devHeaders: devHeaders, log: log}
}

// Middleware attaches the caller's session to the request context.
// Requests without credentials pass through anonymously; handlers that need
// a session check for one.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		activeOrg := strings.TrimSpace(r.Header.Get(OrganizationHeader))

		// Development mode: identity from headers
		if a.devHeaders && r.Header.Get(DevUserHeader) != "" {
			role, err := model.ParseRole(r.Header.Get(DevRoleHeader))
			if err != nil {
				http.Error(w, "Invalid role header", http.StatusUnauthorized)
				return
			}
			sess := model.Session{UserID: r.Header.Get(DevUserHeader), Role: role, ActiveOrganizationID: activeOrg}
			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, sessionKey, sess)))
			return
		}

		tokenString := bearerToken(r)
		if tokenString == "" {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := a.issuer.Parse(tokenString)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}
		if a.revoked != nil {
			revoked, err := a.revoked.IsRevoked(ctx, claims.ID)
			if err != nil {
				a.log.Error("Failed to check token revocation", zap.Error(err))
				http.Error(w, "Authentication unavailable", http.StatusServiceUnavailable)
				return
			}
			if revoked {
				http.Error(w, "Token revoked", http.StatusUnauthorized)
				return
			}
		}

		sess := model.Session{UserID: claims.Subject, Role: claims.Role, ActiveOrganizationID: activeOrg}
		ctx = context.WithValue(ctx, sessionKey, sess)
		ctx = context.WithValue(ctx, claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearerToken reads the Authorization header. Browsers cannot set headers on
// a WebSocket handshake, so upgrades may pass the token as a query parameter.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return r.URL.Query().Get("token")
	}
	return ""
}

// SessionFrom returns the session attached by the middleware.
func SessionFrom(ctx context.Context) (model.Session, bool) {
	sess, ok := ctx.Value(sessionKey).(model.Session)
	return sess, ok
}

// ClaimsFrom returns the verified token claims, if the request carried a token.
func ClaimsFrom(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	return claims, ok
}

// WithSession returns a context carrying sess.
func WithSession(ctx context.Context, sess model.Session) context.Context {
	return context.WithValue(ctx, sessionKey, sess)
}
