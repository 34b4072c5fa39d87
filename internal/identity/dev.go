package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt"
	"golang.org/x/crypto/bcrypt"

	"paydesk/internal/config"
	"paydesk/internal/models"
	"paydesk/utils"
)

const devTokenTTL = time.Hour

// DevProvider is a local identity provider for development and the sandbox.
// Tokens are HS256 JWTs signed with the dev secret.
type DevProvider struct {
	tokens *utils.Manager
	users  map[string]config.DevUser

	mu       sync.Mutex
	sessions map[string]string // refresh token -> email
}

func NewDevProvider(cfg config.IdentityConfig) (*DevProvider, error) {
	tokens, err := utils.NewManager(cfg.DevSecret)
	if err != nil {
		return nil, err
	}
	p := &DevProvider{
		tokens:   tokens,
		users:    make(map[string]config.DevUser, len(cfg.DevUsers)),
		sessions: make(map[string]string),
	}
	for _, u := range cfg.DevUsers {
		if u.PasswordHash == "" && u.Password != "" {
			hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
			if err != nil {
				return nil, err
			}
			u.PasswordHash = string(hash)
		}
		u.Password = ""
		if u.Subject == "" {
			u.Subject = u.Email
		}
		p.users[strings.ToLower(u.Email)] = u
	}
	return p, nil
}

func (p *DevProvider) SignIn(ctx context.Context, username, password string) (SignInResult, error) {
	u, ok := p.users[strings.ToLower(username)]
	if !ok {
		return SignInResult{}, fmt.Errorf("%w: %s", models.ErrUserNotFound, username)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return SignInResult{}, models.ErrInvalidCredentials
	}
	if u.Unconfirmed {
		return SignInResult{}, models.ErrUserNotConfirmed
	}

	creds, err := p.issue(u)
	if err != nil {
		return SignInResult{}, err
	}
	refresh, err := p.tokens.NewRefreshToken()
	if err != nil {
		return SignInResult{}, err
	}
	p.mu.Lock()
	p.sessions[refresh] = strings.ToLower(u.Email)
	p.mu.Unlock()
	creds.RefreshToken = refresh
	creds.Username = u.Email
	return SignInResult{IsSignedIn: true, Credentials: creds}, nil
}

func (p *DevProvider) Refresh(ctx context.Context, username, refreshToken string) (models.Credentials, error) {
	p.mu.Lock()
	email, ok := p.sessions[refreshToken]
	p.mu.Unlock()
	if !ok {
		return models.Credentials{}, models.ErrInvalidCredentials
	}
	u, ok := p.users[email]
	if !ok {
		return models.Credentials{}, models.ErrUserNotFound
	}
	return p.issue(u)
}

func (p *DevProvider) GetUser(ctx context.Context, accessToken string) (User, error) {
	claims, err := p.tokens.Parse(accessToken)
	if err != nil {
		return User{}, fmt.Errorf("%w: %v", models.ErrInvalidCredentials, err)
	}
	if claims.TokenUse != "access" {
		return User{}, errors.New("identity: not an access token")
	}
	u, ok := p.users[strings.ToLower(claims.Email)]
	if !ok {
		return User{}, models.ErrUserNotFound
	}
	return User{
		UserID:   u.Subject,
		Username: u.Email,
		Attributes: map[string]string{
			"sub":               u.Subject,
			"email":             u.Email,
			"name":              u.FullName,
			"custom:role":       u.Role,
			"custom:department": u.Department,
		},
	}, nil
}

// SignOut revokes every refresh token of the user the access token belongs to.
func (p *DevProvider) SignOut(ctx context.Context, accessToken string) error {
	claims, err := p.tokens.Parse(accessToken)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidCredentials, err)
	}
	email := strings.ToLower(claims.Email)
	p.mu.Lock()
	for token, owner := range p.sessions {
		if owner == email {
			delete(p.sessions, token)
		}
	}
	p.mu.Unlock()
	return nil
}

// User returns the configured account behind a subject.
func (p *DevProvider) User(subject string) (config.DevUser, bool) {
	for _, u := range p.users {
		if u.Subject == subject {
			return u, true
		}
	}
	return config.DevUser{}, false
}

func (p *DevProvider) issue(u config.DevUser) (models.Credentials, error) {
	std := jwt.StandardClaims{Subject: u.Subject, Issuer: "paydesk-dev"}
	id, err := p.tokens.NewJWT(utils.Claims{Email: u.Email, Name: u.FullName, TokenUse: "id", StandardClaims: std}, devTokenTTL)
	if err != nil {
		return models.Credentials{}, err
	}
	access, err := p.tokens.NewJWT(utils.Claims{Email: u.Email, TokenUse: "access", StandardClaims: std}, devTokenTTL)
	if err != nil {
		return models.Credentials{}, err
	}
	exp, err := utils.TokenExpiry(id)
	if err != nil {
		return models.Credentials{}, err
	}
	return models.Credentials{IDToken: id, AccessToken: access, ExpiresAt: exp}, nil
}
