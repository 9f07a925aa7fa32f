package credentials

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/ajitpratap0/relay/pkg/errors"
	"github.com/ajitpratap0/relay/pkg/testutil"
	"github.com/ajitpratap0/relay/pkg/vault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const okBody = testutil.TokenResponse

func TestResolveRefreshesExpiredToken(t *testing.T) {
	ts := testutil.NewTokenServer(t, http.StatusOK, okBody)
	past := time.Now().Add(-time.Hour)
	v := vault.NewMemoryVault(&vault.Credential{
		ID: "crm", Kind: vault.KindOAuth2,
		AccessToken: "stale", RefreshToken: "r1", ExpiresAt: &past,
		ClientID: "id", ClientSecret: "secret", TokenURL: ts.URL,
	})
	m := NewManager(v, testutil.TestLogger(t), WithHTTPClient(ts.Client()))

	cred, err := m.Resolve(context.Background(), "crm")
	require.NoError(t, err)
	assert.Equal(t, "fresh", cred.AccessToken)
	assert.Equal(t, int32(1), ts.Hits())
	assert.Equal(t, "refresh_token", <-ts.Grants)

	stored, err := v.Get(context.Background(), "crm")
	require.NoError(t, err)
	assert.Equal(t, "fresh", stored.AccessToken)
	assert.Equal(t, "rotated", stored.RefreshToken)
	require.NotNil(t, stored.ExpiresAt)
	assert.True(t, stored.ExpiresAt.After(time.Now().Add(50*time.Minute)))
}

func TestResolveValidTokenMakesNoCall(t *testing.T) {
	ts := testutil.NewTokenServer(t, http.StatusOK, okBody)
	future := time.Now().Add(time.Hour)
	v := vault.NewMemoryVault(&vault.Credential{
		ID: "crm", Kind: vault.KindOAuth2,
		AccessToken: "current", RefreshToken: "r1", ExpiresAt: &future, TokenURL: ts.URL,
	})
	m := NewManager(v, testutil.TestLogger(t), WithHTTPClient(ts.Client()))

	cred, err := m.Resolve(context.Background(), "crm")
	require.NoError(t, err)
	assert.Equal(t, "current", cred.AccessToken)
	assert.Zero(t, ts.Hits())
}

func TestResolveClientCredentialsGrant(t *testing.T) {
	ts := testutil.NewTokenServer(t, http.StatusOK, `{"access_token":"machine","token_type":"bearer","expires_in":60}`)
	v := vault.NewMemoryVault(&vault.Credential{
		ID: "svc", Kind: vault.KindOAuth2,
		ClientID: "id", ClientSecret: "secret", TokenURL: ts.URL,
		Extra: map[string]string{"auth_style": "params"},
	})
	m := NewManager(v, testutil.TestLogger(t), WithHTTPClient(ts.Client()))

	cred, err := m.Resolve(context.Background(), "svc")
	require.NoError(t, err)
	assert.Equal(t, "machine", cred.AccessToken)
	assert.Equal(t, "client_credentials", <-ts.Grants)
}

func TestResolveRequiresAuthorization(t *testing.T) {
	v := vault.NewMemoryVault(&vault.Credential{
		ID: "crm", Kind: vault.KindOAuth2, TokenURL: "http://127.0.0.1:0/token",
	})
	m := NewManager(v, testutil.TestLogger(t))

	_, err := m.Resolve(context.Background(), "crm")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeAuthorizationRequired))
	assert.True(t, errors.IsFatal(err))
}

func TestResolveNotFound(t *testing.T) {
	m := NewManager(vault.NewMemoryVault(), testutil.TestLogger(t))
	_, err := m.Resolve(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeCredentialsNotFound))
}

func TestResolveNonOAuthPassesThrough(t *testing.T) {
	v := vault.NewMemoryVault(
		&vault.Credential{ID: "key", Kind: vault.KindAPIKey, APIKey: "abc"},
		&vault.Credential{ID: "static", Kind: vault.KindOAuth2, AccessToken: "t"},
	)
	m := NewManager(v, testutil.TestLogger(t))

	cred, err := m.Resolve(context.Background(), "key")
	require.NoError(t, err)
	assert.Equal(t, "abc", cred.APIKey)

	cred, err = m.Resolve(context.Background(), "static")
	require.NoError(t, err)
	assert.Equal(t, "t", cred.AccessToken)
}

func TestResolveExchangeFailureIsFatal(t *testing.T) {
	ts := testutil.NewTokenServer(t, http.StatusBadRequest, `{"error":"invalid_grant"}`)
	v := vault.NewMemoryVault(&vault.Credential{
		ID: "crm", Kind: vault.KindOAuth2, RefreshToken: "revoked", TokenURL: ts.URL,
		Extra: map[string]string{"auth_style": "params"},
	})
	m := NewManager(v, testutil.TestLogger(t), WithHTTPClient(ts.Client()))

	_, err := m.Resolve(context.Background(), "crm")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeAuthentication))

	stored, _ := v.Get(context.Background(), "crm")
	assert.Empty(t, stored.AccessToken)
}

func TestConcurrentResolveExchangesOnce(t *testing.T) {
	ts := testutil.NewTokenServer(t, http.StatusOK, okBody)
	v := vault.NewMemoryVault(&vault.Credential{
		ID: "crm", Kind: vault.KindOAuth2, RefreshToken: "r1", TokenURL: ts.URL,
		Extra: map[string]string{"auth_style": "params"},
	})
	m := NewManager(v, testutil.TestLogger(t), WithHTTPClient(ts.Client()))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cred, err := m.Resolve(context.Background(), "crm")
			assert.NoError(t, err)
			assert.Equal(t, "fresh", cred.AccessToken)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), ts.Hits())
}

func TestRefreshForcesExchange(t *testing.T) {
	ts := testutil.NewTokenServer(t, http.StatusOK, okBody)
	future := time.Now().Add(time.Hour)
	v := vault.NewMemoryVault(&vault.Credential{
		ID: "crm", Kind: vault.KindOAuth2,
		AccessToken: "current", RefreshToken: "r1", ExpiresAt: &future, TokenURL: ts.URL,
		Extra: map[string]string{"auth_style": "params"},
	})
	m := NewManager(v, testutil.TestLogger(t), WithHTTPClient(ts.Client()))

	cred, err := m.Refresh(context.Background(), "crm")
	require.NoError(t, err)
	assert.Equal(t, "fresh", cred.AccessToken)
	assert.Equal(t, int32(1), ts.Hits())

	_, err = NewManager(vault.NewMemoryVault(&vault.Credential{ID: "k", Kind: vault.KindAPIKey}), nil).
		Refresh(context.Background(), "k")
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

// readOnlyVault serves credentials but rejects every write
type readOnlyVault struct {
	*vault.MemoryVault
}

func (readOnlyVault) Update(context.Context, string, func(*vault.Credential) error) error {
	return fmt.Errorf("vault file is read-only")
}

func TestResolveStoreFailureIsFatal(t *testing.T) {
	ts := testutil.NewTokenServer(t, http.StatusOK, okBody)
	past := time.Now().Add(-time.Minute)
	v := readOnlyVault{vault.NewMemoryVault(&vault.Credential{
		ID: "crm", Kind: vault.KindOAuth2,
		AccessToken: "stale", RefreshToken: "r1", ExpiresAt: &past, TokenURL: ts.URL,
		Extra: map[string]string{"auth_style": "params"},
	})}
	m := NewManager(v, testutil.TestLogger(t), WithHTTPClient(ts.Client()))

	_, err := m.Resolve(context.Background(), "crm")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeAuthentication))
	assert.True(t, errors.IsFatal(err))
	assert.Equal(t, int32(1), ts.Hits())
}

func TestResolveRefreshesTokenWithoutExpiry(t *testing.T) {
	ts := testutil.NewTokenServer(t, http.StatusOK, okBody)
	v := vault.NewMemoryVault(&vault.Credential{
		ID: "crm", Kind: vault.KindOAuth2,
		AccessToken: "unknown-age", RefreshToken: "r1", TokenURL: ts.URL,
		Extra: map[string]string{"auth_style": "params"},
	})
	m := NewManager(v, testutil.TestLogger(t), WithHTTPClient(ts.Client()))

	cred, err := m.Resolve(context.Background(), "crm")
	require.NoError(t, err)
	assert.Equal(t, "fresh", cred.AccessToken)
	require.NotNil(t, cred.ExpiresAt)
	assert.Equal(t, int32(1), ts.Hits())

	// the stored expiry now makes the token reusable
	_, err = m.Resolve(context.Background(), "crm")
	require.NoError(t, err)
	assert.Equal(t, int32(1), ts.Hits())
}
