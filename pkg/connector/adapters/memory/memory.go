// Package memory implements an in-process adapter over named datasets. It
// serves inline fixtures, local testing and pipelines chaining through memory.
//
// Configuration:
//
//	dataset:            dataset name (defaults to the endpoint)
//	pagination:         none | offset | cursor (default offset)
//	max_items_per_page: page size cap (default 0, no cap)
package memory

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/ajitpratap0/relay/pkg/connector/base"
	"github.com/ajitpratap0/relay/pkg/connector/core"
	"github.com/ajitpratap0/relay/pkg/connector/registry"
	"github.com/ajitpratap0/relay/pkg/errors"
	"github.com/ajitpratap0/relay/pkg/models"
	"github.com/ajitpratap0/relay/pkg/vault"
)

// AdapterID is the registry id of the memory adapter
const AdapterID = "memory"

// Store holds named datasets
type Store struct {
	mu       sync.RWMutex
	datasets map[string][]models.Record
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{datasets: make(map[string][]models.Record)}
}

// DefaultStore backs adapters created through the global registry
var DefaultStore = NewStore()

// Put replaces a dataset
func (s *Store) Put(name string, records []models.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.datasets[name] = append([]models.Record(nil), records...)
}

// Append adds records to a dataset
func (s *Store) Append(name string, records []models.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.datasets[name] = append(s.datasets[name], records...)
}

// Get returns a copy of a dataset
func (s *Store) Get(name string) []models.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Record(nil), s.datasets[name]...)
}

// Descriptor is the static registration descriptor
func Descriptor() core.Descriptor {
	return core.Descriptor{
		ID:          AdapterID,
		Description: "In-process datasets",
		Actions:     []core.Action{core.ActionDownload, core.ActionUpload},
		Pagination:  &core.PaginationDecl{Style: core.PaginationOffset},
	}
}

// Adapter reads and writes one dataset of a Store
type Adapter struct {
	*base.BaseConnector
	store   *Store
	dataset string
	desc    core.Descriptor
}

// New creates an adapter over store for conn
func New(store *Store, conn *models.Connector) (*Adapter, error) {
	dataset := conn.ConfigString("dataset")
	if dataset == "" {
		dataset = conn.Endpoint
	}
	if dataset == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "memory adapter requires a dataset or endpoint")
	}

	decl, err := base.PaginationFromConfig(conn, core.PaginationOffset)
	if err != nil {
		return nil, err
	}
	desc := Descriptor()
	desc.Pagination = decl

	return &Adapter{
		BaseConnector: base.NewBaseConnector(AdapterID, conn),
		store:         store,
		dataset:       dataset,
		desc:          desc,
	}, nil
}

func init() {
	registry.MustRegister(registry.Registration{
		Descriptor: Descriptor(),
		Factory: func(conn *models.Connector, _ *vault.Credential) (core.Adapter, error) {
			return New(DefaultStore, conn)
		},
	})
}

// Descriptor implements core.Adapter
func (a *Adapter) Descriptor() core.Descriptor { return a.desc }

// Connect implements core.Connector
func (a *Adapter) Connect(context.Context) error {
	a.MarkConnected()
	return nil
}

// Disconnect implements core.Disconnector
func (a *Adapter) Disconnect(context.Context) error {
	a.MarkDisconnected()
	return nil
}

// Download implements core.Downloader. Offset style reads a numeric offset;
// cursor style hands out the next index as a string cursor.
func (a *Adapter) Download(ctx context.Context, opts models.PageOptions) (*models.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows := models.SortRecords(models.FilterRecords(a.store.Get(a.dataset), a.Connector().Filter), a.Connector().Sort)

	start := 0
	if opts.Offset != nil {
		switch v := opts.Offset.(type) {
		case string:
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, errors.New(errors.ErrorTypeValidation, fmt.Sprintf("invalid cursor %q", v))
			}
			start = n
		default:
			start = models.OffsetInt(v)
		}
	}
	if start > len(rows) {
		start = len(rows)
	}
	end := len(rows)
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}

	page := &models.Page{Data: make([]models.Record, 0, end-start)}
	for _, r := range rows[start:end] {
		page.Data = append(page.Data, models.Project(r, a.Connector().Fields))
	}
	if a.desc.Pagination.Style == core.PaginationCursor && end < len(rows) {
		page.Options.NextOffset = strconv.Itoa(end)
	}
	return page, nil
}

// Upload implements core.Uploader
func (a *Adapter) Upload(ctx context.Context, records []models.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.store.Append(a.dataset, records)
	return nil
}
