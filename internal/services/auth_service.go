package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"paydesk/internal/identity"
	"paydesk/internal/models"
)

type AuthState string

const (
	StateInitializing    AuthState = "initializing"
	StateAuthenticated   AuthState = "authenticated"
	StateUnauthenticated AuthState = "unauthenticated"
)

// Identity is the part of *identity.Adapter the controller uses.
type Identity interface {
	SignIn(ctx context.Context, username, password string) (identity.SignInResult, error)
	SignOut(ctx context.Context) error
	CurrentUser(ctx context.Context) (identity.User, error)
	IDToken(ctx context.Context) (string, error)
}

type ProfileSource interface {
	Profile(ctx context.Context) (models.UserProfile, error)
}

// AuthSession is the session object the controller writes. *session.Session
// satisfies it.
type AuthSession interface {
	SetToken(ctx context.Context, token string)
	SetProfile(ctx context.Context, p models.UserProfile)
	Profile() (models.UserProfile, bool)
	Clear(ctx context.Context)
}

// AuthService resolves who is using a console session.
type AuthService struct {
	identity Identity
	profiles ProfileSource
	session  AuthSession
	logger   *slog.Logger

	mu    sync.RWMutex
	state AuthState
	user  *models.UserProfile
}

func NewAuthService(id Identity, profiles ProfileSource, sess AuthSession, logger *slog.Logger) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{identity: id, profiles: profiles, session: sess, logger: logger, state: StateInitializing}
}

// Init resolves the current identity and profile. Any failure leaves the
// service unauthenticated with the session cleared.
func (s *AuthService) Init(ctx context.Context) AuthState {
	s.setState(StateInitializing, nil)

	p, err := s.resolve(ctx)
	if err != nil {
		s.logger.Info("no authenticated session", "err", err)
		s.session.Clear(ctx)
		s.setState(StateUnauthenticated, nil)
		return StateUnauthenticated
	}
	s.setState(StateAuthenticated, &p)
	return StateAuthenticated
}

func (s *AuthService) resolve(ctx context.Context) (models.UserProfile, error) {
	if _, err := s.identity.CurrentUser(ctx); err != nil {
		return models.UserProfile{}, fmt.Errorf("current user: %w", err)
	}
	return s.loadProfile(ctx)
}

func (s *AuthService) loadProfile(ctx context.Context) (models.UserProfile, error) {
	token, err := s.identity.IDToken(ctx)
	if err != nil {
		return models.UserProfile{}, fmt.Errorf("id token: %w", err)
	}
	s.session.SetToken(ctx, token)

	p, err := s.profiles.Profile(ctx)
	if err != nil {
		return models.UserProfile{}, fmt.Errorf("load profile: %w", err)
	}
	s.session.SetProfile(ctx, p)
	return p, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (models.UserProfile, error) {
	res, err := s.identity.SignIn(ctx, email, password)
	if err != nil {
		s.logger.Info("sign in failed", "email", email, "err", err)
		return models.UserProfile{}, err
	}
	if !res.IsSignedIn {
		s.logger.Info("sign in incomplete", "email", email, "next_step", res.NextStep)
		return models.UserProfile{}, identity.ErrSignInIncomplete
	}

	p, err := s.loadProfile(ctx)
	if err != nil {
		s.session.Clear(ctx)
		s.setState(StateUnauthenticated, nil)
		return models.UserProfile{}, err
	}
	s.setState(StateAuthenticated, &p)
	s.logger.Info("signed in", "user", p.ID.String(), "role", p.Role)
	return p, nil
}

// Logout never fails: the session is cleared whatever the provider says.
func (s *AuthService) Logout(ctx context.Context) {
	if err := s.identity.SignOut(ctx); err != nil {
		s.logger.Warn("provider sign out failed", "err", err)
	}
	s.session.Clear(ctx)
	s.setState(StateUnauthenticated, nil)
}

// Invalidate drops the user after the request pipeline reset the session.
func (s *AuthService) Invalidate() {
	s.setState(StateUnauthenticated, nil)
}

func (s *AuthService) State() AuthState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *AuthService) User() (models.UserProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return models.UserProfile{}, false
	}
	return *s.user, true
}

func (s *AuthService) setState(state AuthState, user *models.UserProfile) {
	s.mu.Lock()
	s.state = state
	s.user = user
	s.mu.Unlock()
}

// LoginMessage turns a Login error into the text shown on the login form.
func LoginMessage(err error) string {
	var apiErr *APIError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, models.ErrUserNotConfirmed):
		return "Please confirm your email address before signing in."
	case errors.Is(err, models.ErrInvalidCredentials):
		return "Invalid email or password."
	case errors.Is(err, models.ErrUserNotFound):
		return "User not found. Please check your email address."
	case errors.Is(err, identity.ErrSignInIncomplete):
		return "Sign in not completed"
	case errors.As(err, &apiErr):
		return apiErr.Message
	default:
		return "Login failed. Please try again."
	}
}
