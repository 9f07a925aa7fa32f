package registry

import (
	"fmt"
	"testing"

	"github.com/ajitpratap0/relay/pkg/connector/core"
	"github.com/ajitpratap0/relay/pkg/errors"
	"github.com/ajitpratap0/relay/pkg/models"
	"github.com/ajitpratap0/relay/pkg/vault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAdapter struct {
	desc core.Descriptor
	cred *vault.Credential
}

func (s *stubAdapter) Descriptor() core.Descriptor { return s.desc }

func stubRegistration(desc core.Descriptor) Registration {
	return Registration{
		Descriptor: desc,
		Factory: func(conn *models.Connector, cred *vault.Credential) (core.Adapter, error) {
			return &stubAdapter{desc: desc, cred: cred}, nil
		},
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(stubRegistration(core.Descriptor{ID: "crm"})))

	err := r.Register(stubRegistration(core.Descriptor{ID: "crm"}))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	assert.Error(t, r.Register(Registration{Descriptor: core.Descriptor{ID: "nofactory"}}))
}

func TestCreateValidatesConnector(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(stubRegistration(core.Descriptor{
		ID:             "crm",
		Actions:        []core.Action{core.ActionDownload},
		Endpoints:      map[string]core.EndpointDecl{"contacts": {}},
		RequiredConfig: []string{"base_url"},
	}))

	tests := []struct {
		name    string
		conn    *models.Connector
		wantErr bool
	}{
		{"unknown adapter", &models.Connector{Adapter: "erp"}, true},
		{"missing endpoint", &models.Connector{Adapter: "crm", Config: map[string]interface{}{"base_url": "x"}}, true},
		{"unknown endpoint", &models.Connector{Adapter: "crm", Endpoint: "deals", Config: map[string]interface{}{"base_url": "x"}}, true},
		{"missing required config", &models.Connector{Adapter: "crm", Endpoint: "contacts"}, true},
		{"empty required config", &models.Connector{Adapter: "crm", Endpoint: "contacts", Config: map[string]interface{}{"base_url": ""}}, true},
		{"valid", &models.Connector{Adapter: "crm", Endpoint: "contacts", Config: map[string]interface{}{"base_url": "x"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := r.Create(tt.conn, nil)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
				assert.Nil(t, a)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "crm", a.Descriptor().ID)
		})
	}
}

func TestCreatePassesCredential(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(stubRegistration(core.Descriptor{ID: "crm"}))

	cred := &vault.Credential{ID: "c", Kind: vault.KindAPIKey, APIKey: "k"}
	a, err := r.Create(&models.Connector{Adapter: "crm"}, cred)
	require.NoError(t, err)
	assert.Same(t, cred, a.(*stubAdapter).cred)
}

func TestCreateWrapsFactoryErrors(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(Registration{
		Descriptor: core.Descriptor{ID: "broken"},
		Factory: func(*models.Connector, *vault.Credential) (core.Adapter, error) {
			return nil, fmt.Errorf("bad dsn")
		},
	})

	_, err := r.Create(&models.Connector{Adapter: "broken"}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
	assert.Contains(t, err.Error(), "bad dsn")
}

func TestListIsSorted(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(stubRegistration(core.Descriptor{ID: "sql"}))
	r.MustRegister(stubRegistration(core.Descriptor{ID: "http"}))
	assert.Equal(t, []string{"http", "sql"}, r.List())
	assert.True(t, r.Has("sql"))

	r.Clear()
	assert.Empty(t, r.List())
}

func TestDescriptorSupports(t *testing.T) {
	d := core.Descriptor{Actions: []core.Action{core.ActionUpload}}
	assert.True(t, d.Supports(core.ActionUpload))
	assert.False(t, d.Supports(core.ActionDownload))
}
