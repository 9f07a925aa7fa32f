// Package base holds the pieces every adapter shares: connection state,
// a component logger, pagination configuration and record shaping.
package base

import (
	"context"
	"fmt"
	"sync"

	"github.com/ajitpratap0/relay/pkg/connector/core"
	"github.com/ajitpratap0/relay/pkg/errors"
	"github.com/ajitpratap0/relay/pkg/logger"
	"github.com/ajitpratap0/relay/pkg/models"
	"go.uber.org/zap"
)

// BaseConnector tracks the lifecycle of one adapter instance. Adapters embed
// it and call MarkConnected/MarkDisconnected from their own Connect and
// Disconnect.
type BaseConnector struct {
	name   string
	conn   *models.Connector
	logger *zap.Logger

	mu        sync.RWMutex
	connected bool
}

// NewBaseConnector creates the shared state for adapter name bound to conn
func NewBaseConnector(name string, conn *models.Connector) *BaseConnector {
	return &BaseConnector{
		name: name,
		conn: conn,
		logger: logger.With(
			zap.String("adapter", name),
			zap.String("endpoint", conn.Endpoint),
		),
	}
}

// Name returns the adapter id
func (bc *BaseConnector) Name() string { return bc.name }

// Connector returns the bound connector configuration
func (bc *BaseConnector) Connector() *models.Connector { return bc.conn }

// GetLogger returns the adapter logger, enriched with run fields from ctx
func (bc *BaseConnector) GetLogger(ctx context.Context) *zap.Logger {
	return logger.FromContext(ctx, bc.logger)
}

// MarkConnected records a successful Connect
func (bc *BaseConnector) MarkConnected() {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	bc.connected = true
}

// MarkDisconnected records a Disconnect. It reports whether the adapter
// was connected.
func (bc *BaseConnector) MarkDisconnected() bool {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	was := bc.connected
	bc.connected = false
	return was
}

// Connected reports whether Connect succeeded without a later Disconnect
func (bc *BaseConnector) Connected() bool {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.connected
}

// EnsureConnected returns a connection error when the adapter is not connected
func (bc *BaseConnector) EnsureConnected() error {
	if !bc.Connected() {
		return errors.Newf(errors.ErrorTypeConnection, "%s adapter is not connected", bc.name)
	}
	return nil
}

// Shape applies the connector's filter and field projection to rows fetched
// without server-side support for either.
func (bc *BaseConnector) Shape(rows []models.Record) []models.Record {
	rows = models.FilterRecords(rows, bc.conn.Filter)
	if len(bc.conn.Fields) == 0 {
		return rows
	}
	out := make([]models.Record, len(rows))
	for i, r := range rows {
		out[i] = models.Project(r, bc.conn.Fields)
	}
	return out
}

// PaginationFromConfig reads the pagination and max_items_per_page keys of
// conn.Config into a declaration, using def when pagination is unset.
func PaginationFromConfig(conn *models.Connector, def core.PaginationStyle) (*core.PaginationDecl, error) {
	style, err := ParseStyle(conn.ConfigString("pagination"), def)
	if err != nil {
		return nil, err
	}
	return &core.PaginationDecl{
		Style:               style,
		MaxItemsPerPage:     conn.ConfigInt("max_items_per_page", 0),
		DefaultItemsPerPage: conn.ConfigInt("default_items_per_page", 0),
	}, nil
}

// ParseStyle validates a pagination style name
func ParseStyle(s string, def core.PaginationStyle) (core.PaginationStyle, error) {
	switch style := core.PaginationStyle(s); style {
	case "":
		return def, nil
	case core.PaginationNone, core.PaginationOffset, core.PaginationCursor:
		return style, nil
	}
	return "", errors.New(errors.ErrorTypeConfig, fmt.Sprintf("unknown pagination style %q", s))
}

// RequireConfig returns a configuration error naming the first missing key
func RequireConfig(adapter string, conn *models.Connector, keys ...string) error {
	for _, key := range keys {
		if !conn.HasConfig(key) {
			return errors.New(errors.ErrorTypeConfig,
				fmt.Sprintf("%s adapter requires config %q", adapter, key))
		}
	}
	return nil
}
