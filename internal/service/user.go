package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"petadopt/internal/model"
	"petadopt/internal/store"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 6

// TokenIssuer mints a signed session token for an authenticated user.
type TokenIssuer interface {
	Issue(user model.User) (string, error)
}

// TokenRevoker denies a token id until it would have expired anyway.
type TokenRevoker interface {
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error
}

type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// UserService is the local identity provider.
type UserService struct {
	store   store.Users
	issuer  TokenIssuer
	revoker TokenRevoker
	log     *zap.Logger
	now     func() time.Time
	cost    int
}

func NewUserService(st store.Users, issuer TokenIssuer, revoker TokenRevoker, log *zap.Logger) *UserService {
	return &UserService{
		store:   st,
		issuer:  issuer,
		revoker: revoker,
		log:     log,
		now:     time.Now,
		cost:    bcrypt.DefaultCost,
	}
}

func (s *UserService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	v := &ValidationError{}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		v.Problems = append(v.Problems, Problem{Field: "name", Reason: "required"})
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		v.Problems = append(v.Problems, Problem{Field: "email", Reason: "must be a valid e-mail address"})
	}
	if len(in.Password) < minPasswordLength {
		v.Problems = append(v.Problems, Problem{Field: "password", Reason: fmt.Sprintf("must have at least %d characters", minPasswordLength)})
	}
	role, err := model.ParseRole(in.Role)
	if err != nil {
		v.Problems = append(v.Problems, Problem{Field: "role", Reason: err.Error()})
	}
	if len(v.Problems) > 0 {
		return nil, v
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := model.User{
		ID:           newID(),
		Name:         name,
		Email:        email,
		Role:         role,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}
	err = s.store.CreateUser(ctx, user)
	switch {
	case errors.Is(err, store.ErrConflict):
		return nil, invalid("email", "e-mail already registered")
	case err != nil:
		return nil, &PersistenceError{Op: "create user", Err: err}
	}

	s.log.Info("User registered", zap.String("user_id", user.ID), zap.String("role", string(role)))
	return &user, nil
}

// Authenticate checks credentials and returns the user with a fresh token.
// Unknown e-mail and wrong password are indistinguishable to the caller.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*model.User, string, error) {
	user, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, "", forbidden("invalid credentials")
	case err != nil:
		return nil, "", &PersistenceError{Op: "load user", Err: err}
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, "", forbidden("invalid credentials")
	}

	token, err := s.issuer.Issue(user)
	if err != nil {
		return nil, "", fmt.Errorf("issue token: %w", err)
	}
	return &user, token, nil
}

// CurrentUser returns the profile for the session user.
func (s *UserService) CurrentUser(ctx context.Context, sess model.Session) (*model.User, error) {
	if sess.UserID == "" {
		return nil, forbidden("authentication required")
	}
	user, err := s.store.GetUserByID(ctx, sess.UserID)
	if err != nil {
		return nil, storeErr("load user", "user", sess.UserID, err)
	}
	return &user, nil
}

// SignOut revokes the token id until expiresAt.
func (s *UserService) SignOut(ctx context.Context, tokenID string, expiresAt time.Time) error {
	if tokenID == "" || s.revoker == nil {
		return nil
	}
	if err := s.revoker.Revoke(ctx, tokenID, expiresAt); err != nil {
		return &PersistenceError{Op: "revoke token", Err: err}
	}
	return nil
}
