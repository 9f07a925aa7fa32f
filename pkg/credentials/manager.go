// Package credentials resolves named credentials from a vault and keeps OAuth2
// access tokens fresh.
//
// A refreshed token is written back only to the vault entry it was read from.
// Refreshes for the same credential id are collapsed with singleflight and the
// write-back goes through the vault's atomic Update, so pipelines sharing a
// credential never race on it.
package credentials

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ajitpratap0/relay/pkg/errors"
	"github.com/ajitpratap0/relay/pkg/metrics"
	"github.com/ajitpratap0/relay/pkg/vault"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"
)

const (
	grantRefreshToken      = "refresh_token"
	grantClientCredentials = "client_credentials"
)

// Manager resolves credentials by id
type Manager struct {
	vault  vault.Vault
	logger *zap.Logger
	client *http.Client
	now    func() time.Time
	group  singleflight.Group
}

// Option configures a Manager
type Option func(*Manager)

// WithHTTPClient sets the client used for token exchanges
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) { m.client = c }
}

// WithClock overrides the time source used for expiry checks
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a credential manager backed by v
func NewManager(v vault.Vault, logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		vault:  v,
		logger: logger.With(zap.String("component", "credentials")),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Resolve returns the credential stored under id. OAuth2 credentials with a
// token URL are refreshed first when their access token is missing or expired.
func (m *Manager) Resolve(ctx context.Context, id string) (*vault.Credential, error) {
	cred, err := m.vault.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !refreshable(cred) || cred.TokenValid(m.now()) {
		return cred, nil
	}
	return m.refresh(ctx, id, false)
}

// Refresh exchanges a new access token for id even if the current one is valid
func (m *Manager) Refresh(ctx context.Context, id string) (*vault.Credential, error) {
	cred, err := m.vault.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !refreshable(cred) {
		return nil, errors.New(errors.ErrorTypeValidation, "credential does not support token refresh").
			WithDetail("credential", id).
			WithDetail("type", string(cred.Kind))
	}
	return m.refresh(ctx, id, true)
}

func refreshable(c *vault.Credential) bool {
	return c.Kind == vault.KindOAuth2 && c.TokenURL != ""
}

func (m *Manager) refresh(ctx context.Context, id string, force bool) (*vault.Credential, error) {
	key := id
	if force {
		key = "force:" + id
	}
	v, err, shared := m.group.Do(key, func() (interface{}, error) {
		// re-read: a refresh that finished before this call may already have stored a valid token
		cred, err := m.vault.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if !force && cred.TokenValid(m.now()) {
			return cred, nil
		}

		tok, grant, err := m.exchange(ctx, cred)
		if err != nil {
			metrics.TokenRefreshes.WithLabelValues(grant, "failure").Inc()
			return nil, err
		}
		metrics.TokenRefreshes.WithLabelValues(grant, "success").Inc()

		var stored *vault.Credential
		err = m.vault.Update(ctx, id, func(c *vault.Credential) error {
			c.AccessToken = tok.AccessToken
			if tok.RefreshToken != "" {
				c.RefreshToken = tok.RefreshToken
			}
			if tok.TokenType != "" {
				c.TokenType = tok.TokenType
			}
			if tok.Expiry.IsZero() {
				c.ExpiresAt = nil
			} else {
				exp := tok.Expiry
				c.ExpiresAt = &exp
			}
			stored = c.Clone()
			return nil
		})
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeAuthentication, "failed to store refreshed token").
				WithDetail("credential", id)
		}

		m.logger.Info("access token refreshed",
			zap.String("credential", id),
			zap.String("grant", grant),
			zap.Timep("expires_at", stored.ExpiresAt))
		return stored, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		m.logger.Debug("joined in-flight token refresh", zap.String("credential", id))
	}
	return v.(*vault.Credential).Clone(), nil
}

// exchange performs the refresh_token or client_credentials grant for cred
func (m *Manager) exchange(ctx context.Context, cred *vault.Credential) (*oauth2.Token, string, error) {
	if m.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, m.client)
	}
	style := authStyle(cred)

	switch {
	case cred.RefreshToken != "":
		conf := &oauth2.Config{
			ClientID:     cred.ClientID,
			ClientSecret: cred.ClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: cred.TokenURL, AuthStyle: style},
			Scopes:       cred.Scopes,
		}
		tok, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: cred.RefreshToken}).Token()
		if err != nil {
			return nil, grantRefreshToken, exchangeError(err, cred.ID, grantRefreshToken)
		}
		return tok, grantRefreshToken, nil

	case cred.ClientID != "" && cred.ClientSecret != "":
		conf := &clientcredentials.Config{
			ClientID:     cred.ClientID,
			ClientSecret: cred.ClientSecret,
			TokenURL:     cred.TokenURL,
			Scopes:       cred.Scopes,
			AuthStyle:    style,
		}
		tok, err := conf.Token(ctx)
		if err != nil {
			return nil, grantClientCredentials, exchangeError(err, cred.ID, grantClientCredentials)
		}
		return tok, grantClientCredentials, nil
	}

	return nil, "none", errors.New(errors.ErrorTypeAuthorizationRequired,
		fmt.Sprintf("credential %q requires initial authorization", cred.ID)).
		WithDetail("credential", cred.ID)
}

func exchangeError(err error, id, grant string) error {
	return errors.Wrap(err, errors.ErrorTypeAuthentication, "token exchange failed").
		WithDetail("credential", id).
		WithDetail("grant", grant)
}

// authStyle reads extra.auth_style ("header" or "params"); auto-detect otherwise
func authStyle(cred *vault.Credential) oauth2.AuthStyle {
	switch cred.Extra["auth_style"] {
	case "header":
		return oauth2.AuthStyleInHeader
	case "params":
		return oauth2.AuthStyleInParams
	}
	return oauth2.AuthStyleAutoDetect
}
