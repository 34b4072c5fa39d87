// Package identity wraps the third-party identity service behind a small
// adapter that owns the session's provider credentials.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"paydesk/internal/config"
	"paydesk/internal/models"
)

var (
	ErrNoIdentity       = errors.New("identity: no signed-in user")
	ErrSignInIncomplete = errors.New("identity: sign-in requires an additional step")
)

// SignInResult reports whether the provider completed the sign-in.
type SignInResult struct {
	IsSignedIn  bool
	NextStep    string
	Credentials models.Credentials
}

// User is the provider's view of the signed-in principal.
type User struct {
	UserID     string
	Username   string
	Attributes map[string]string
}

// Provider is implemented by CognitoProvider and DevProvider.
type Provider interface {
	SignIn(ctx context.Context, username, password string) (SignInResult, error)
	Refresh(ctx context.Context, username, refreshToken string) (models.Credentials, error)
	GetUser(ctx context.Context, accessToken string) (User, error)
	SignOut(ctx context.Context, accessToken string) error
}

// CredentialVault is where the adapter keeps provider tokens between calls.
// *session.Session satisfies it.
type CredentialVault interface {
	Credentials() (models.Credentials, bool)
	SetCredentials(ctx context.Context, c models.Credentials)
	ClearCredentials(ctx context.Context)
}

// expiryLeeway is how early cached tokens count as expired.
const expiryLeeway = time.Minute

type Adapter struct {
	provider Provider
	vault    CredentialVault
	logger   *slog.Logger
	now      func() time.Time
}

func NewAdapter(provider Provider, vault CredentialVault, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{provider: provider, vault: vault, logger: logger, now: time.Now}
}

func (a *Adapter) SignIn(ctx context.Context, username, password string) (SignInResult, error) {
	username = strings.TrimSpace(username)
	res, err := a.provider.SignIn(ctx, username, password)
	if err != nil {
		return SignInResult{}, err
	}
	if res.IsSignedIn {
		if res.Credentials.Username == "" {
			res.Credentials.Username = username
		}
		a.vault.SetCredentials(ctx, res.Credentials)
	}
	return res, nil
}

// SignOut always forgets local credentials, even when the provider call fails.
func (a *Adapter) SignOut(ctx context.Context) error {
	creds, ok := a.vault.Credentials()
	a.vault.ClearCredentials(ctx)
	if !ok || creds.AccessToken == "" {
		return nil
	}
	return a.provider.SignOut(ctx, creds.AccessToken)
}

func (a *Adapter) CurrentUser(ctx context.Context) (User, error) {
	creds, err := a.FetchAuthSession(ctx, false)
	if err != nil {
		return User{}, err
	}
	return a.provider.GetUser(ctx, creds.AccessToken)
}

// FetchAuthSession returns the current credentials, refreshing them when
// force is set or the cached ones are about to expire.
func (a *Adapter) FetchAuthSession(ctx context.Context, force bool) (models.Credentials, error) {
	creds, ok := a.vault.Credentials()
	if !ok {
		return models.Credentials{}, ErrNoIdentity
	}
	fresh := !creds.ExpiresAt.IsZero() && a.now().Add(expiryLeeway).Before(creds.ExpiresAt)
	if !force && (fresh || creds.ExpiresAt.IsZero()) {
		return creds, nil
	}
	if creds.RefreshToken == "" {
		return models.Credentials{}, ErrNoIdentity
	}

	next, err := a.provider.Refresh(ctx, creds.Username, creds.RefreshToken)
	if err != nil {
		a.logger.Warn("identity refresh failed", "err", err)
		return models.Credentials{}, err
	}
	if next.RefreshToken == "" {
		next.RefreshToken = creds.RefreshToken
	}
	if next.Username == "" {
		next.Username = creds.Username
	}
	a.vault.SetCredentials(ctx, next)
	return next, nil
}

func (a *Adapter) FetchUserAttributes(ctx context.Context) (map[string]string, error) {
	u, err := a.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	return u.Attributes, nil
}

// IDToken returns the ID token as a plain string.
func (a *Adapter) IDToken(ctx context.Context) (string, error) {
	creds, err := a.FetchAuthSession(ctx, false)
	if err != nil {
		return "", err
	}
	if creds.IDToken == "" {
		return "", ErrNoIdentity
	}
	return creds.IDToken, nil
}

// RefreshIDToken forces a refresh and returns the new ID token.
func (a *Adapter) RefreshIDToken(ctx context.Context) (string, error) {
	creds, err := a.FetchAuthSession(ctx, true)
	if err != nil {
		return "", err
	}
	if creds.IDToken == "" {
		return "", ErrNoIdentity
	}
	return creds.IDToken, nil
}

// NewProvider builds the provider named by cfg.Provider.
func NewProvider(cfg config.IdentityConfig) (Provider, error) {
	switch cfg.Provider {
	case "dev":
		return NewDevProvider(cfg)
	case "", "cognito":
		return NewCognitoProvider(cfg)
	default:
		return nil, fmt.Errorf("identity: unknown provider %q", cfg.Provider)
	}
}
