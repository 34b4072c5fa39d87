package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"paydesk/internal/identity"
	"paydesk/internal/models"
	"paydesk/internal/session"
)

type stubIdentity struct {
	signIn     identity.SignInResult
	signInErr  error
	userErr    error
	token      string
	tokenErr   error
	signOutErr error
	signOuts   int
}

func (s *stubIdentity) SignIn(ctx context.Context, u, p string) (identity.SignInResult, error) {
	return s.signIn, s.signInErr
}

func (s *stubIdentity) SignOut(ctx context.Context) error {
	s.signOuts++
	return s.signOutErr
}

func (s *stubIdentity) CurrentUser(ctx context.Context) (identity.User, error) {
	return identity.User{UserID: "u"}, s.userErr
}

func (s *stubIdentity) IDToken(ctx context.Context) (string, error) { return s.token, s.tokenErr }

type stubProfiles struct {
	profile models.UserProfile
	err     error
	calls   int
}

func (s *stubProfiles) Profile(ctx context.Context) (models.UserProfile, error) {
	s.calls++
	return s.profile, s.err
}

func TestAuthInit(t *testing.T) {
	t.Run("authenticated", func(t *testing.T) {
		sess := session.New("ws", nil, nil)
		profiles := &stubProfiles{profile: models.UserProfile{ID: "1", Role: "agent"}}
		svc := NewAuthService(&stubIdentity{token: "tok"}, profiles, sess, nil)
		if svc.State() != StateInitializing {
			t.Fatalf("initial state = %s", svc.State())
		}

		if st := svc.Init(context.Background()); st != StateAuthenticated {
			t.Fatalf("state = %s", st)
		}
		if sess.Token() != "tok" {
			t.Errorf("token not cached")
		}
		if p, ok := sess.Profile(); !ok || p.Role != "agent" {
			t.Errorf("profile not cached: %+v", p)
		}
		if u, ok := svc.User(); !ok || u.ID != "1" {
			t.Errorf("user = %+v", u)
		}
	})

	failures := map[string]*stubIdentity{
		"no current user": {userErr: identity.ErrNoIdentity, token: "tok"},
		"no token":        {tokenErr: identity.ErrNoIdentity},
	}
	for name, id := range failures {
		t.Run(name, func(t *testing.T) {
			sess := session.New("ws", nil, nil)
			sess.SetToken(context.Background(), "stale")
			svc := NewAuthService(id, &stubProfiles{}, sess, nil)
			if st := svc.Init(context.Background()); st != StateUnauthenticated {
				t.Fatalf("state = %s", st)
			}
			if sess.Token() != "" {
				t.Fatal("session not cleared")
			}
		})
	}

	t.Run("profile failure", func(t *testing.T) {
		sess := session.New("ws", nil, nil)
		svc := NewAuthService(&stubIdentity{token: "tok"}, &stubProfiles{err: errors.New("boom")}, sess, nil)
		if st := svc.Init(context.Background()); st != StateUnauthenticated {
			t.Fatalf("state = %s", st)
		}
		if sess.Token() != "" {
			t.Fatal("session not cleared")
		}
	})
}

func TestAuthLogin(t *testing.T) {
	sess := session.New("ws", nil, nil)
	id := &stubIdentity{signIn: identity.SignInResult{IsSignedIn: true}, token: "tok"}
	profiles := &stubProfiles{profile: models.UserProfile{ID: "2", Role: "account"}}
	svc := NewAuthService(id, profiles, sess, nil)

	p, err := svc.Login(context.Background(), "ann@example.com", "pw")
	if err != nil {
		t.Fatal(err)
	}
	if p.Role != "account" || svc.State() != StateAuthenticated {
		t.Fatalf("profile = %+v, state = %s", p, svc.State())
	}
	if profiles.calls != 1 {
		t.Fatalf("profile fetched %d times", profiles.calls)
	}
}

func TestAuthLoginErrors(t *testing.T) {
	cases := []struct {
		name    string
		id      *stubIdentity
		want    error
		message string
	}{
		{"bad password", &stubIdentity{signInErr: fmt.Errorf("%w: x", models.ErrInvalidCredentials)}, models.ErrInvalidCredentials, "Invalid email or password."},
		{"unconfirmed", &stubIdentity{signInErr: models.ErrUserNotConfirmed}, models.ErrUserNotConfirmed, "Please confirm your email address before signing in."},
		{"not found", &stubIdentity{signInErr: models.ErrUserNotFound}, models.ErrUserNotFound, "User not found. Please check your email address."},
		{"incomplete", &stubIdentity{signIn: identity.SignInResult{NextStep: "MFA"}}, identity.ErrSignInIncomplete, "Sign in not completed"},
		{"other", &stubIdentity{signInErr: errors.New("throttled")}, nil, "Login failed. Please try again."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := NewAuthService(tc.id, &stubProfiles{}, session.New("ws", nil, nil), nil)
			_, err := svc.Login(context.Background(), "a", "b")
			if err == nil {
				t.Fatal("expected error")
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
			if got := LoginMessage(err); got != tc.message {
				t.Fatalf("message = %q, want %q", got, tc.message)
			}
			if svc.State() == StateAuthenticated {
				t.Fatal("authenticated after failed login")
			}
		})
	}
}

func TestAuthLogoutNeverFails(t *testing.T) {
	sess := session.New("ws", nil, nil)
	id := &stubIdentity{signIn: identity.SignInResult{IsSignedIn: true}, token: "tok", signOutErr: errors.New("offline")}
	svc := NewAuthService(id, &stubProfiles{profile: models.UserProfile{Role: "agent"}}, sess, nil)
	if _, err := svc.Login(context.Background(), "a", "b"); err != nil {
		t.Fatal(err)
	}

	svc.Logout(context.Background())

	if svc.State() != StateUnauthenticated || id.signOuts != 1 {
		t.Fatalf("state = %s, sign outs = %d", svc.State(), id.signOuts)
	}
	if sess.Token() != "" {
		t.Fatal("session not cleared")
	}
	if _, ok := svc.User(); ok {
		t.Fatal("user survived logout")
	}
}
