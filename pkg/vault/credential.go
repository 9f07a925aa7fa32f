// Package vault holds credentials keyed by id. The vault is the only place a
// credential is ever written back to, including OAuth2 token refreshes.
package vault

import (
	"time"
)

// Kind tags the credential union
type Kind string

const (
	KindAPIKey Kind = "api_key"
	KindOAuth2 Kind = "oauth2"
	KindBasic  Kind = "basic"
)

// Credential is a tagged union over api_key, oauth2 and basic secrets.
// Only the fields of its Kind are meaningful.
type Credential struct {
	ID   string `yaml:"id" json:"id"`
	Kind Kind   `yaml:"type" json:"type"`

	// api_key
	APIKey    string `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	APISecret string `yaml:"api_secret,omitempty" json:"api_secret,omitempty"`

	// basic
	Username string `yaml:"username,omitempty" json:"username,omitempty"`
	Password string `yaml:"password,omitempty" json:"password,omitempty"`

	// oauth2
	AccessToken  string     `yaml:"access_token,omitempty" json:"access_token,omitempty"`
	RefreshToken string     `yaml:"refresh_token,omitempty" json:"refresh_token,omitempty"`
	TokenType    string     `yaml:"token_type,omitempty" json:"token_type,omitempty"`
	ClientID     string     `yaml:"client_id,omitempty" json:"client_id,omitempty"`
	ClientSecret string     `yaml:"client_secret,omitempty" json:"client_secret,omitempty"`
	TokenURL     string     `yaml:"token_url,omitempty" json:"token_url,omitempty"`
	Scopes       []string   `yaml:"scopes,omitempty" json:"scopes,omitempty"`
	ExpiresAt    *time.Time `yaml:"expires_at,omitempty" json:"expires_at,omitempty"`

	// Extra carries adapter-specific secret material (service account JSON, SASL mechanism, ...)
	Extra map[string]string `yaml:"extra,omitempty" json:"extra,omitempty"`
}

// Clone returns a deep copy of c
func (c *Credential) Clone() *Credential {
	if c == nil {
		return nil
	}
	out := *c
	if c.Scopes != nil {
		out.Scopes = append([]string(nil), c.Scopes...)
	}
	if c.ExpiresAt != nil {
		t := *c.ExpiresAt
		out.ExpiresAt = &t
	}
	if c.Extra != nil {
		out.Extra = make(map[string]string, len(c.Extra))
		for k, v := range c.Extra {
			out.Extra[k] = v
		}
	}
	return &out
}

// stringFields lists every scalar secret field for field-wise processing
func (c *Credential) stringFields() []*string {
	return []*string{
		&c.APIKey, &c.APISecret, &c.Username, &c.Password,
		&c.AccessToken, &c.RefreshToken, &c.TokenType,
		&c.ClientID, &c.ClientSecret, &c.TokenURL,
	}
}

// mapStrings applies fn to every string value of c, including scopes and extra
func (c *Credential) mapStrings(fn func(string) string) {
	for _, f := range c.stringFields() {
		*f = fn(*f)
	}
	for i := range c.Scopes {
		c.Scopes[i] = fn(c.Scopes[i])
	}
	for k, v := range c.Extra {
		c.Extra[k] = fn(v)
	}
}

// TokenValid reports whether an OAuth2 access token exists and is known to
// be unexpired at now. Without an expiry the token is trusted only when there
// is no token URL to refresh it from.
func (c *Credential) TokenValid(now time.Time) bool {
	if c == nil || c.AccessToken == "" {
		return false
	}
	if c.ExpiresAt == nil {
		return c.TokenURL == ""
	}
	return now.Before(*c.ExpiresAt)
}

// Secret returns the primary secret for header-style authentication:
// the access token for oauth2 and the key for api_key.
func (c *Credential) Secret() string {
	if c == nil {
		return ""
	}
	switch c.Kind {
	case KindOAuth2:
		return c.AccessToken
	case KindAPIKey:
		return c.APIKey
	case KindBasic:
		return c.Password
	}
	return ""
}
