// Package sql implements a relational adapter over database/sql with the
// pgx, MySQL, SQL Server and Snowflake drivers. Filters, sorting, field
// projection and paging are pushed down into the generated SELECT.
//
// Configuration:
//
//	dialect:            postgres | mysql | sqlserver | snowflake (required)
//	dsn:                driver connection string; may reference {username} and {password}
//	table:              table name (defaults to the endpoint)
//	query:              custom SELECT used as a derived table instead of table
//	pagination:         none | offset (default offset)
//	max_items_per_page: page size cap
//	insert_batch_size:  rows per INSERT statement (default 500)
//	max_open_conns:     connection pool size (default 4)
package sql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ajitpratap0/relay/pkg/connector/base"
	"github.com/ajitpratap0/relay/pkg/connector/core"
	"github.com/ajitpratap0/relay/pkg/connector/registry"
	"github.com/ajitpratap0/relay/pkg/errors"
	"github.com/ajitpratap0/relay/pkg/models"
	"github.com/ajitpratap0/relay/pkg/vault"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	// database/sql drivers
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/microsoft/go-mssqldb"
	_ "github.com/snowflakedb/gosnowflake"
)

// AdapterID is the registry id of the SQL adapter
const AdapterID = "sql"

// sqlserver caps a statement at 2100 parameters
const maxParams = 2000

// Descriptor is the static registration descriptor
func Descriptor() core.Descriptor {
	return core.Descriptor{
		ID:             AdapterID,
		Description:    "Relational databases (PostgreSQL, MySQL, SQL Server, Snowflake)",
		Actions:        []core.Action{core.ActionDownload, core.ActionUpload},
		Pagination:     &core.PaginationDecl{Style: core.PaginationOffset, DefaultItemsPerPage: 1000},
		RequiredConfig: []string{"dialect", "dsn"},
	}
}

// Adapter reads from and writes to one table
type Adapter struct {
	*base.BaseConnector

	desc      core.Descriptor
	dialect   Dialect
	dsn       string
	table     string
	query     string
	batchRows int
	maxConns  int

	db *sql.DB
}

// New creates a SQL adapter
func New(conn *models.Connector, cred *vault.Credential) (*Adapter, error) {
	if err := base.RequireConfig(AdapterID, conn, "dialect", "dsn"); err != nil {
		return nil, err
	}
	dialect, err := LookupDialect(conn.ConfigString("dialect"))
	if err != nil {
		return nil, err
	}

	table := conn.ConfigString("table")
	if table == "" {
		table = conn.Endpoint
	}
	query := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(conn.ConfigString("query")), ";"))
	if table == "" && query == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "sql adapter requires a table, endpoint or query")
	}

	desc := Descriptor()
	decl, err := base.PaginationFromConfig(conn, core.PaginationOffset)
	if err != nil {
		return nil, err
	}
	if decl.Style == core.PaginationCursor {
		return nil, errors.New(errors.ErrorTypeConfig, "sql adapter does not support cursor pagination")
	}
	if decl.DefaultItemsPerPage == 0 {
		decl.DefaultItemsPerPage = desc.Pagination.DefaultItemsPerPage
	}
	desc.Pagination = decl

	return &Adapter{
		BaseConnector: base.NewBaseConnector(AdapterID, conn),
		desc:          desc,
		dialect:       dialect,
		dsn:           expandDSN(conn.ConfigString("dsn"), cred),
		table:         table,
		query:         query,
		batchRows:     conn.ConfigInt("insert_batch_size", 500),
		maxConns:      conn.ConfigInt("max_open_conns", 4),
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

// expandDSN substitutes basic credentials into the DSN template
func expandDSN(dsn string, cred *vault.Credential) string {
	if cred == nil {
		return dsn
	}
	if cred.Extra["dsn"] != "" {
		return cred.Extra["dsn"]
	}
	return strings.NewReplacer("{username}", cred.Username, "{password}", cred.Password).Replace(dsn)
}

// Descriptor implements core.Adapter
func (a *Adapter) Descriptor() core.Descriptor { return a.desc }

// Connect opens the pool and pings the database
func (a *Adapter) Connect(ctx context.Context) error {
	db, err := sql.Open(a.dialect.Driver, a.dsn)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to open database")
	}
	db.SetMaxOpenConns(a.maxConns)
	db.SetMaxIdleConns(a.maxConns)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to reach database")
	}
	a.db = db
	a.MarkConnected()
	a.GetLogger(ctx).Debug("connected", zap.String("dialect", a.dialect.Name))
	return nil
}

// Disconnect closes the pool
func (a *Adapter) Disconnect(context.Context) error {
	if !a.MarkDisconnected() || a.db == nil {
		return nil
	}
	return a.db.Close()
}

// Download implements core.Downloader
func (a *Adapter) Download(ctx context.Context, opts models.PageOptions) (*models.Page, error) {
	if err := a.EnsureConnected(); err != nil {
		return nil, err
	}
	conn := a.Connector()

	var filter models.Filter
	if conn.Filter != nil {
		filter = conn.Filter.Filter
	}
	query, args, err := SelectQuery(a.dialect, a.table, a.query, conn.Fields, filter, conn.Sort,
		opts.Limit, models.OffsetInt(opts.Offset))
	if err != nil {
		return nil, err
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "query failed")
	}
	defer func() { _ = rows.Close() }()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	return &models.Page{Data: records}, nil
}

// Upload inserts the batch inside one transaction
func (a *Adapter) Upload(ctx context.Context, records []models.Record) (err error) {
	if err := a.EnsureConnected(); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, tx.Rollback())
		}
	}()

	for _, chunk := range chunkRows(records, a.rowsPerStatement(records)) {
		query, args, err := InsertQuery(a.dialect, a.table, chunk)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return errors.Wrap(err, errors.ErrorTypeConnection, "insert failed")
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "commit failed")
	}
	return nil
}

func (a *Adapter) rowsPerStatement(records []models.Record) int {
	n := a.batchRows
	if n <= 0 {
		n = 500
	}
	if cols := len(columnUnion(records)); cols > 0 && n*cols > maxParams {
		n = maxParams / cols
	}
	if n < 1 {
		n = 1
	}
	return n
}

func chunkRows(records []models.Record, size int) [][]models.Record {
	var out [][]models.Record
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		out = append(out, records[start:end])
	}
	return out
}

func scanRecords(rows *sql.Rows) ([]models.Record, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []models.Record
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to scan row")
		}
		rec := make(models.Record, len(cols))
		for i, c := range cols {
			rec[c] = normalize(values[i])
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, fmt.Sprintf("row iteration failed after %d rows", len(out)))
	}
	return out, nil
}

func normalize(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
