package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"petadopt/internal/model"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRevocations struct {
	revoked map[string]bool
	err     error
}

func (f *fakeRevocations) IsRevoked(_ context.Context, id string) (bool, error) {
	return f.revoked[id], f.err
}

var testUser = model.User{ID: "u-1", Name: "Ana", Role: model.RoleProtetor}

func TestIssuer_RoundTrip(t *testing.T) {
	iss := NewIssuer("secret", time.Hour)
	token, err := iss.Issue(testUser)
	require.NoError(t, err)

	claims, err := iss.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.Subject)
	assert.Equal(t, model.RoleProtetor, claims.Role)
	assert.NotEmpty(t, claims.ID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, 5*time.Second)
}

func TestIssuer_UniqueTokenIDs(t *testing.T) {
	iss := NewIssuer("secret", time.Hour)
	a, err := iss.Issue(testUser)
	require.NoError(t, err)
	b, err := iss.Issue(testUser)
	require.NoError(t, err)

	ca, _ := iss.Parse(a)
	cb, _ := iss.Parse(b)
	assert.NotEqual(t, ca.ID, cb.ID)
}

func TestIssuer_RejectsExpiredAndForeign(t *testing.T) {
	iss := NewIssuer("secret", time.Hour)
	iss.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, err := iss.Issue(testUser)
	require.NoError(t, err)

	fresh := NewIssuer("secret", time.Hour)
	_, err = fresh.Parse(expired)
	assert.True(t, errors.Is(err, jwt.ErrTokenExpired))

	other := NewIssuer("other", time.Hour)
	token, err := other.Issue(testUser)
	require.NoError(t, err)
	_, err = fresh.Parse(token)
	assert.Error(t, err)
}

func runMiddleware(a *Authenticator, r *http.Request) (*httptest.ResponseRecorder, *model.Session) {
	var got *model.Session
	h := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sess, ok := SessionFrom(r.Context()); ok {
			got = &sess
		}
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec, got
}

func TestMiddleware_BearerToken(t *testing.T) {
	iss := NewIssuer("secret", time.Hour)
	token, err := iss.Issue(testUser)
	require.NoError(t, err)

	a := NewAuthenticator(iss, &fakeRevocations{}, false, zap.NewNop())
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	r.Header.Set(OrganizationHeader, "org-9")

	rec, sess := runMiddleware(a, r)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, sess)
	assert.Equal(t, model.Session{UserID: "u-1", Role: model.RoleProtetor, ActiveOrganizationID: "org-9"}, *sess)
}

func TestMiddleware_QueryToken(t *testing.T) {
	iss := NewIssuer("secret", time.Hour)
	token, err := iss.Issue(testUser)
	require.NoError(t, err)

	a := NewAuthenticator(iss, nil, false, zap.NewNop())
	r := httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil)
	r.Header.Set("Upgrade", "websocket")
	rec, sess := runMiddleware(a, r)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, sess)
	assert.Equal(t, "u-1", sess.UserID)

	// plain requests must use the header
	rec, sess = runMiddleware(a, httptest.NewRequest(http.MethodGet, "/me?token="+token, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, sess)
}

func TestMiddleware_Anonymous(t *testing.T) {
	a := NewAuthenticator(NewIssuer("secret", time.Hour), nil, false, zap.NewNop())
	rec, sess := runMiddleware(a, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, sess)
}

func TestMiddleware_Revoked(t *testing.T) {
	iss := NewIssuer("secret", time.Hour)
	token, err := iss.Issue(testUser)
	require.NoError(t, err)
	claims, err := iss.Parse(token)
	require.NoError(t, err)

	a := NewAuthenticator(iss, &fakeRevocations{revoked: map[string]bool{claims.ID: true}}, false, zap.NewNop())
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+token)

	rec, sess := runMiddleware(a, r)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, sess)
}

func TestMiddleware_InvalidToken(t *testing.T) {
	a := NewAuthenticator(NewIssuer("secret", time.Hour), nil, false, zap.NewNop())
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer nope")

	rec, _ := runMiddleware(a, r)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddleware_DevHeaders(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(DevUserHeader, "dev-1")
	r.Header.Set(DevRoleHeader, "adotante")

	enabled := NewAuthenticator(NewIssuer("secret", time.Hour), nil, true, zap.NewNop())
	_, sess := runMiddleware(enabled, r)
	require.NotNil(t, sess)
	assert.Equal(t, model.RoleAdotante, sess.Role)

	disabled := NewAuthenticator(NewIssuer("secret", time.Hour), nil, false, zap.NewNop())
	_, sess = runMiddleware(disabled, r)
	assert.Nil(t, sess)
}
