package identity

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go/service/cognitoidentityprovider/cognitoidentityprovideriface"

	"paydesk/internal/config"
	"paydesk/internal/models"
)

// CognitoProvider talks to a Cognito user pool app client.
type CognitoProvider struct {
	client       cognitoidentityprovideriface.CognitoIdentityProviderAPI
	clientID     string
	clientSecret string
	now          func() time.Time
}

func NewCognitoProvider(cfg config.IdentityConfig) (*CognitoProvider, error) {
	awsCfg := &aws.Config{Region: aws.String(cfg.Region)}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("aws session: %w", err)
	}
	return NewCognitoProviderWithClient(cognitoidentityprovider.New(sess), cfg.ClientID, cfg.ClientSecret), nil
}

func NewCognitoProviderWithClient(client cognitoidentityprovideriface.CognitoIdentityProviderAPI, clientID, clientSecret string) *CognitoProvider {
	return &CognitoProvider{client: client, clientID: clientID, clientSecret: clientSecret, now: time.Now}
}

func (p *CognitoProvider) SignIn(ctx context.Context, username, password string) (SignInResult, error) {
	params := map[string]*string{
		"USERNAME": aws.String(username),
		"PASSWORD": aws.String(password),
	}
	p.addSecretHash(params, username)

	out, err := p.client.InitiateAuthWithContext(ctx, &cognitoidentityprovider.InitiateAuthInput{
		AuthFlow:       aws.String(cognitoidentityprovider.AuthFlowTypeUserPasswordAuth),
		ClientId:       aws.String(p.clientID),
		AuthParameters: params,
	})
	if err != nil {
		return SignInResult{}, classifyCognitoError(err)
	}
	if out.AuthenticationResult == nil {
		return SignInResult{IsSignedIn: false, NextStep: aws.StringValue(out.ChallengeName)}, nil
	}
	creds := p.credentials(out.AuthenticationResult)
	creds.Username = username
	return SignInResult{IsSignedIn: true, Credentials: creds}, nil
}

func (p *CognitoProvider) Refresh(ctx context.Context, username, refreshToken string) (models.Credentials, error) {
	params := map[string]*string{"REFRESH_TOKEN": aws.String(refreshToken)}
	p.addSecretHash(params, username)

	out, err := p.client.InitiateAuthWithContext(ctx, &cognitoidentityprovider.InitiateAuthInput{
		AuthFlow:       aws.String(cognitoidentityprovider.AuthFlowTypeRefreshTokenAuth),
		ClientId:       aws.String(p.clientID),
		AuthParameters: params,
	})
	if err != nil {
		return models.Credentials{}, classifyCognitoError(err)
	}
	if out.AuthenticationResult == nil {
		return models.Credentials{}, ErrSignInIncomplete
	}
	return p.credentials(out.AuthenticationResult), nil
}

func (p *CognitoProvider) GetUser(ctx context.Context, accessToken string) (User, error) {
	out, err := p.client.GetUserWithContext(ctx, &cognitoidentityprovider.GetUserInput{
		AccessToken: aws.String(accessToken),
	})
	if err != nil {
		return User{}, classifyCognitoError(err)
	}
	u := User{Username: aws.StringValue(out.Username), Attributes: map[string]string{}}
	for _, attr := range out.UserAttributes {
		u.Attributes[aws.StringValue(attr.Name)] = aws.StringValue(attr.Value)
	}
	u.UserID = u.Attributes["sub"]
	return u, nil
}

func (p *CognitoProvider) SignOut(ctx context.Context, accessToken string) error {
	_, err := p.client.GlobalSignOutWithContext(ctx, &cognitoidentityprovider.GlobalSignOutInput{
		AccessToken: aws.String(accessToken),
	})
	if err != nil {
		return classifyCognitoError(err)
	}
	return nil
}

func (p *CognitoProvider) credentials(res *cognitoidentityprovider.AuthenticationResultType) models.Credentials {
	c := models.Credentials{
		IDToken:      aws.StringValue(res.IdToken),
		AccessToken:  aws.StringValue(res.AccessToken),
		RefreshToken: aws.StringValue(res.RefreshToken),
	}
	if res.ExpiresIn != nil {
		c.ExpiresAt = p.now().Add(time.Duration(*res.ExpiresIn) * time.Second)
	}
	return c
}

// addSecretHash sets SECRET_HASH for app clients that have a secret.
func (p *CognitoProvider) addSecretHash(params map[string]*string, username string) {
	if p.clientSecret == "" {
		return
	}
	params["SECRET_HASH"] = aws.String(secretHash(p.clientSecret, username, p.clientID))
}

func secretHash(secret, username, clientID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(username + clientID))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func classifyCognitoError(err error) error {
	var aerr awserr.Error
	if !errors.As(err, &aerr) {
		return err
	}
	switch aerr.Code() {
	case cognitoidentityprovider.ErrCodeNotAuthorizedException:
		return fmt.Errorf("%w: %s", models.ErrInvalidCredentials, aerr.Message())
	case cognitoidentityprovider.ErrCodeUserNotConfirmedException:
		return fmt.Errorf("%w: %s", models.ErrUserNotConfirmed, aerr.Message())
	case cognitoidentityprovider.ErrCodeUserNotFoundException:
		return fmt.Errorf("%w: %s", models.ErrUserNotFound, aerr.Message())
	default:
		return err
	}
}
