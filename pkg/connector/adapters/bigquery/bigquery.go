// Package bigquery implements a BigQuery adapter. Uploads stream rows
// through the table inserter, or run a load job from newline-delimited JSON
// when mode is load. Downloads page through a SELECT with LIMIT/OFFSET.
//
// Configuration:
//
//	project:          GCP project id (required)
//	dataset:          dataset id (required)
//	table:            table id (defaults to the endpoint)
//	mode:             stream | load (default stream)
//	insert_id_field:  record field used as the streaming insert id for deduplication
//	credentials_file: service account key file
package bigquery

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"github.com/ajitpratap0/relay/pkg/connector/base"
	"github.com/ajitpratap0/relay/pkg/connector/core"
	"github.com/ajitpratap0/relay/pkg/connector/registry"
	"github.com/ajitpratap0/relay/pkg/errors"
	jsonpool "github.com/ajitpratap0/relay/pkg/json"
	"github.com/ajitpratap0/relay/pkg/models"
	"github.com/ajitpratap0/relay/pkg/vault"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// AdapterID is the registry id of the BigQuery adapter
const AdapterID = "bigquery"

// Descriptor is the static registration descriptor
func Descriptor() core.Descriptor {
	return core.Descriptor{
		ID:             AdapterID,
		Description:    "Google BigQuery tables",
		Actions:        []core.Action{core.ActionDownload, core.ActionUpload},
		Pagination:     &core.PaginationDecl{Style: core.PaginationOffset, DefaultItemsPerPage: 1000, MaxItemsPerPage: 10000},
		RequiredConfig: []string{"project", "dataset"},
	}
}

// Adapter reads and writes one table
type Adapter struct {
	*base.BaseConnector

	project       string
	dataset       string
	table         string
	load          bool
	insertIDField string
	options       []option.ClientOption

	client *bigquery.Client
}

// New creates a BigQuery adapter
func New(conn *models.Connector, cred *vault.Credential) (*Adapter, error) {
	if err := base.RequireConfig(AdapterID, conn, "project", "dataset"); err != nil {
		return nil, err
	}
	table := conn.ConfigString("table")
	if table == "" {
		table = conn.Endpoint
	}
	if table == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "bigquery adapter requires a table or endpoint")
	}

	var load bool
	switch mode := conn.ConfigString("mode"); mode {
	case "", "stream":
	case "load":
		load = true
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "bigquery adapter: unknown mode %q", mode)
	}

	var opts []option.ClientOption
	switch {
	case cred != nil && cred.APISecret != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(cred.APISecret)))
	case conn.ConfigString("credentials_file") != "":
		opts = append(opts, option.WithCredentialsFile(conn.ConfigString("credentials_file")))
	}

	return &Adapter{
		BaseConnector: base.NewBaseConnector(AdapterID, conn),
		project:       conn.ConfigString("project"),
		dataset:       conn.ConfigString("dataset"),
		table:         table,
		load:          load,
		insertIDField: conn.ConfigString("insert_id_field"),
		options:       opts,
	}, nil
}

func init() {
	registry.MustRegister(registry.Registration{
		Descriptor: Descriptor(),
		Factory: func(conn *models.Connector, cred *vault.Credential) (core.Adapter, error) {
			return New(conn, cred)
		},
	})
}

// Descriptor implements core.Adapter
func (a *Adapter) Descriptor() core.Descriptor { return Descriptor() }

// Connect creates the client and checks the table exists
func (a *Adapter) Connect(ctx context.Context) error {
	client, err := bigquery.NewClient(ctx, a.project, a.options...)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to create bigquery client")
	}
	if _, err := client.Dataset(a.dataset).Table(a.table).Metadata(ctx); err != nil {
		_ = client.Close()
		return errors.Wrap(err, errors.ErrorTypeConnection, fmt.Sprintf("table %s is not accessible", a.tableRef()))
	}
	a.client = client
	a.MarkConnected()
	return nil
}

// Disconnect closes the client
func (a *Adapter) Disconnect(context.Context) error {
	if !a.MarkDisconnected() || a.client == nil {
		return nil
	}
	return a.client.Close()
}

func (a *Adapter) tableRef() string {
	return fmt.Sprintf("%s.%s.%s", a.project, a.dataset, a.table)
}

// SelectSQL builds the page query; fields are projected server side
func SelectSQL(table string, fields []string, sorts []models.SortSpec, limit, offset int) string {
	cols := "*"
	if len(fields) > 0 {
		quoted := make([]string, len(fields))
		for i, f := range fields {
			quoted[i] = "`" + strings.ReplaceAll(f, "`", "") + "`"
		}
		cols = strings.Join(quoted, ", ")
	}
	q := fmt.Sprintf("SELECT %s FROM `%s`", cols, strings.ReplaceAll(table, "`", ""))
	if len(sorts) > 0 {
		parts := make([]string, len(sorts))
		for i, s := range sorts {
			dir := "ASC"
			if s.Descending {
				dir = "DESC"
			}
			parts[i] = "`" + strings.ReplaceAll(s.Field, "`", "") + "` " + dir
		}
		q += " ORDER BY " + strings.Join(parts, ", ")
	}
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", limit)
	}
	if offset > 0 {
		if limit <= 0 {
			// OFFSET requires LIMIT
			q += fmt.Sprintf(" LIMIT %d", int64(1)<<62)
		}
		q += fmt.Sprintf(" OFFSET %d", offset)
	}
	return q
}

// Download implements core.Downloader. Filters are applied after the fetch.
func (a *Adapter) Download(ctx context.Context, opts models.PageOptions) (*models.Page, error) {
	if err := a.EnsureConnected(); err != nil {
		return nil, err
	}
	conn := a.Connector()
	sql := SelectSQL(a.tableRef(), conn.Fields, conn.Sort, opts.Limit, models.OffsetInt(opts.Offset))

	it, err := a.client.Query(sql).Read(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "query failed")
	}

	var rows []models.Record
	for {
		var row map[string]bigquery.Value
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to read rows")
		}
		rec := make(models.Record, len(row))
		for k, v := range row {
			rec[k] = v
		}
		rows = append(rows, rec)
	}
	return &models.Page{Data: models.FilterRecords(rows, conn.Filter)}, nil
}

// Upload implements core.Uploader
func (a *Adapter) Upload(ctx context.Context, records []models.Record) error {
	if err := a.EnsureConnected(); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	table := a.client.Dataset(a.dataset).Table(a.table)
	if a.load {
		return a.loadJob(ctx, table, records)
	}

	rows := make([]*RowSaver, len(records))
	for i, r := range records {
		rows[i] = NewRowSaver(r, a.insertIDField)
	}
	if err := table.Inserter().Put(ctx, rows); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "streaming insert failed")
	}
	return nil
}

func (a *Adapter) loadJob(ctx context.Context, table *bigquery.Table, records []models.Record) error {
	var buf bytes.Buffer
	if err := jsonpool.MarshalLines(&buf, records); err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to encode batch")
	}
	source := bigquery.NewReaderSource(&buf)
	source.SourceFormat = bigquery.JSON

	loader := table.LoaderFrom(source)
	loader.WriteDisposition = bigquery.WriteAppend

	job, err := loader.Run(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to start load job")
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "load job failed")
	}
	if err := status.Err(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "load job failed")
	}
	a.GetLogger(ctx).Debug("load job done", zap.String("job", job.ID()), zap.Int("records", len(records)))
	return nil
}

// RowSaver adapts a record to bigquery.ValueSaver
type RowSaver struct {
	record   models.Record
	insertID string
}

// NewRowSaver wraps r; idField names the field used as insert id. Without
// one the client generates a random insert id per row.
func NewRowSaver(r models.Record, idField string) *RowSaver {
	s := &RowSaver{record: r}
	if idField != "" {
		if v, ok := r[idField]; ok && v != nil {
			s.insertID = fmt.Sprint(v)
		}
	}
	return s
}

// Save implements bigquery.ValueSaver
func (s *RowSaver) Save() (map[string]bigquery.Value, string, error) {
	row := make(map[string]bigquery.Value, len(s.record))
	for k, v := range s.record {
		row[k] = v
	}
	return row, s.insertID, nil
}
