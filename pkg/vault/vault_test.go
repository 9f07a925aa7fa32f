package vault

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ajitpratap0/relay/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryVaultGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	v := NewMemoryVault(&Credential{ID: "crm", Kind: KindAPIKey, APIKey: "k1"})

	c, err := v.Get(ctx, "crm")
	require.NoError(t, err)
	c.APIKey = "changed"

	again, err := v.Get(ctx, "crm")
	require.NoError(t, err)
	assert.Equal(t, "k1", again.APIKey)
}

func TestMemoryVaultNotFound(t *testing.T) {
	_, err := NewMemoryVault().Get(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeCredentialsNotFound))
}

func TestMemoryVaultUpdateIsAtomic(t *testing.T) {
	ctx := context.Background()
	v := NewMemoryVault(&Credential{ID: "c", Kind: KindOAuth2})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = v.Update(ctx, "c", func(c *Credential) error {
				c.AccessToken += "x"
				return nil
			})
		}()
	}
	wg.Wait()

	c, err := v.Get(ctx, "c")
	require.NoError(t, err)
	assert.Len(t, c.AccessToken, 50)
}

func TestMemoryVaultUpdateErrorKeepsEntry(t *testing.T) {
	ctx := context.Background()
	v := NewMemoryVault(&Credential{ID: "c", Kind: KindOAuth2, AccessToken: "old"})

	err := v.Update(ctx, "c", func(c *Credential) error {
		c.AccessToken = "new"
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	c, _ := v.Get(ctx, "c")
	assert.Equal(t, "old", c.AccessToken)
}

func TestTokenValid(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	assert.False(t, (&Credential{}).TokenValid(now))
	assert.True(t, (&Credential{AccessToken: "a"}).TokenValid(now))
	assert.False(t, (&Credential{AccessToken: "a", TokenURL: "https://auth.example.com/token"}).TokenValid(now))
	assert.False(t, (&Credential{AccessToken: "a", ExpiresAt: &past}).TokenValid(now))
	assert.True(t, (&Credential{AccessToken: "a", ExpiresAt: &future}).TokenValid(now))
}

func TestFileVaultRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vault.yaml")

	require.NoError(t, os.WriteFile(path, []byte(`
credentials:
  - id: warehouse
    type: basic
    username: loader
    password: ${RELAY_TEST_VAULT_PASSWORD}
`), 0o600))
	t.Setenv("RELAY_TEST_VAULT_PASSWORD", "s3cret")

	fv, err := OpenFileVault(path)
	require.NoError(t, err)

	c, err := fv.Get(ctx, "warehouse")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", c.Password)

	require.NoError(t, fv.Update(ctx, "warehouse", func(c *Credential) error {
		c.Password = "rotated"
		return nil
	}))

	reopened, err := OpenFileVault(path)
	require.NoError(t, err)
	c, err = reopened.Get(ctx, "warehouse")
	require.NoError(t, err)
	assert.Equal(t, "rotated", c.Password)
	assert.Equal(t, KindBasic, c.Kind)
}

func TestFileVaultKeepsDollarSignsInSecrets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
credentials:
  - id: warehouse
    type: basic
    username: loader
    password: 'pa$word1'
`), 0o600))
	t.Setenv("word1", "leaked")

	fv, err := OpenFileVault(path)
	require.NoError(t, err)

	c, err := fv.Get(context.Background(), "warehouse")
	require.NoError(t, err)
	assert.Equal(t, "pa$word1", c.Password)
}

func TestFileVaultWriteBackKeepsEnvReferences(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vault.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
credentials:
  - id: crm
    type: oauth2
    client_id: relay
    client_secret: ${RELAY_TEST_CLIENT_SECRET}
    refresh_token: r1
    token_url: ${RELAY_TEST_TOKEN_URL:-https://auth.example.com/token}
    extra:
      auth_style: ${RELAY_TEST_AUTH_STYLE:-header}
  - id: billing
    type: api_key
    api_key: ${RELAY_TEST_BILLING_KEY}
`), 0o600))
	t.Setenv("RELAY_TEST_CLIENT_SECRET", "s3cr3t")
	t.Setenv("RELAY_TEST_BILLING_KEY", "k-123")

	fv, err := OpenFileVault(path)
	require.NoError(t, err)

	c, err := fv.Get(ctx, "crm")
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", c.ClientSecret)
	assert.Equal(t, "https://auth.example.com/token", c.TokenURL)
	assert.Equal(t, "header", c.Extra["auth_style"])

	require.NoError(t, fv.Update(ctx, "crm", func(c *Credential) error {
		c.AccessToken = "fresh"
		c.RefreshToken = "r2"
		return nil
	}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "${RELAY_TEST_CLIENT_SECRET}")
	assert.Contains(t, content, "${RELAY_TEST_TOKEN_URL:-https://auth.example.com/token}")
	assert.Contains(t, content, "${RELAY_TEST_AUTH_STYLE:-header}")
	assert.Contains(t, content, "${RELAY_TEST_BILLING_KEY}")
	assert.NotContains(t, content, "s3cr3t")
	assert.NotContains(t, content, "k-123")
	assert.Contains(t, content, "fresh")
	assert.Contains(t, content, "r2")

	reopened, err := OpenFileVault(path)
	require.NoError(t, err)
	c, err = reopened.Get(ctx, "crm")
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", c.ClientSecret)
	assert.Equal(t, "fresh", c.AccessToken)
}

func TestOpenFileVaultMissingFile(t *testing.T) {
	fv, err := OpenFileVault(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Empty(t, fv.IDs())
}
