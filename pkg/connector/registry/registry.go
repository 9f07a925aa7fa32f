package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ajitpratap0/relay/pkg/connector/core"
	"github.com/ajitpratap0/relay/pkg/errors"
	"github.com/ajitpratap0/relay/pkg/logger"
	"github.com/ajitpratap0/relay/pkg/models"
	"github.com/ajitpratap0/relay/pkg/vault"
	"go.uber.org/zap"
)

// Factory creates an adapter instance for one connector and its resolved
// credential. cred is nil when the connector names no credential.
type Factory func(conn *models.Connector, cred *vault.Credential) (core.Adapter, error)

// Registration binds an adapter descriptor to its factory
type Registration struct {
	Descriptor core.Descriptor
	Factory    Factory
}

// Registry manages adapter registration and instantiation
type Registry struct {
	adapters map[string]Registration
	mu       sync.RWMutex
	logger   *zap.Logger
}

// Global registry instance
var globalRegistry = NewRegistry()

// NewRegistry creates a new adapter registry
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]Registration),
		logger:   logger.Get().With(zap.String("component", "adapter_registry")),
	}
}

// Register adds an adapter under its descriptor id
func (r *Registry) Register(reg Registration) error {
	id := reg.Descriptor.ID
	if id == "" || reg.Factory == nil {
		return errors.New(errors.ErrorTypeConfig, "adapter registration requires an id and a factory")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.adapters[id]; exists {
		return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("adapter %s already registered", id))
	}

	r.adapters[id] = reg
	r.logger.Debug("adapter registered", zap.String("adapter", id))
	return nil
}

// MustRegister registers reg and panics on failure; used from init functions
func (r *Registry) MustRegister(reg Registration) {
	if err := r.Register(reg); err != nil {
		panic(err)
	}
}

// Descriptor returns the descriptor of a registered adapter
func (r *Registry) Descriptor(id string) (core.Descriptor, error) {
	r.mu.RLock()
	reg, exists := r.adapters[id]
	r.mu.RUnlock()

	if !exists {
		return core.Descriptor{}, unknownAdapter(id)
	}
	return reg.Descriptor, nil
}

// Validate checks conn against the adapter descriptor: the adapter must exist,
// the endpoint must be declared when the adapter declares endpoints, and every
// required config key must be present.
func (r *Registry) Validate(conn *models.Connector) (core.Descriptor, error) {
	if conn == nil || conn.Adapter == "" {
		return core.Descriptor{}, errors.New(errors.ErrorTypeConfig, "connector has no adapter")
	}
	desc, err := r.Descriptor(conn.Adapter)
	if err != nil {
		return desc, err
	}

	if len(desc.Endpoints) > 0 {
		if conn.Endpoint == "" {
			return desc, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("adapter %s requires an endpoint", desc.ID)).
				WithDetail("adapter", desc.ID)
		}
		if _, ok := desc.Endpoint(conn.Endpoint); !ok {
			return desc, errors.New(errors.ErrorTypeConfig,
				fmt.Sprintf("adapter %s has no endpoint %s", desc.ID, conn.Endpoint)).
				WithDetail("adapter", desc.ID).
				WithDetail("endpoint", conn.Endpoint)
		}
	}

	for _, key := range desc.RequiredConfig {
		if !conn.HasConfig(key) {
			return desc, errors.New(errors.ErrorTypeConfig,
				fmt.Sprintf("adapter %s requires config field %s", desc.ID, key)).
				WithDetail("adapter", desc.ID).
				WithDetail("field", key)
		}
	}
	return desc, nil
}

// Create validates conn and builds a new adapter instance
func (r *Registry) Create(conn *models.Connector, cred *vault.Credential) (core.Adapter, error) {
	if _, err := r.Validate(conn); err != nil {
		return nil, err
	}

	r.mu.RLock()
	reg := r.adapters[conn.Adapter]
	r.mu.RUnlock()

	adapter, err := reg.Factory(conn, cred)
	if err != nil {
		var structured *errors.Error
		if errors.As(err, &structured) {
			return nil, err
		}
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, fmt.Sprintf("failed to create adapter %s", conn.Adapter))
	}
	return adapter, nil
}

// List returns the registered adapter ids in sorted order
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Has checks if an adapter is registered
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.adapters[id]
	return exists
}

// Clear removes all registered adapters (mainly for testing)
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters = make(map[string]Registration)
}

func unknownAdapter(id string) error {
	return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("adapter %s not found", id)).
		WithDetail("adapter", id)
}

// Global registry functions

// Register registers an adapter in the global registry
func Register(reg Registration) error {
	return globalRegistry.Register(reg)
}

// MustRegister registers an adapter in the global registry or panics
func MustRegister(reg Registration) {
	globalRegistry.MustRegister(reg)
}

// Create creates an adapter from the global registry
func Create(conn *models.Connector, cred *vault.Credential) (core.Adapter, error) {
	return globalRegistry.Create(conn, cred)
}

// List returns registered adapter ids from the global registry
func List() []string {
	return globalRegistry.List()
}

// GetRegistry returns the global registry instance.
// Adapter packages register themselves here from init.
func GetRegistry() *Registry {
	return globalRegistry
}
