// Package gcs implements an object-store adapter over Google Cloud Storage.
// Object layout and paging match the s3 adapter: one object per uploaded
// batch, and download pages of up to items-per-page objects keyed by the
// last object name read.
//
// Configuration:
//
//	bucket:           bucket name (required)
//	prefix:           object prefix; the endpoint is appended
//	format:           jsonl | csv | avro | arrow (default jsonl)
//	compression:      none | gzip | zstd | snappy | lz4 | s2
//	credentials_file: service account key file
//	endpoint_url:     custom endpoint for emulators; disables authentication
//
// A credential whose api_secret (or extra.service_account_json) holds a
// service account key takes precedence over credentials_file.
package gcs

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"github.com/ajitpratap0/relay/pkg/connector/base"
	"github.com/ajitpratap0/relay/pkg/connector/core"
	"github.com/ajitpratap0/relay/pkg/connector/registry"
	"github.com/ajitpratap0/relay/pkg/connector/shared/objectstore"
	"github.com/ajitpratap0/relay/pkg/errors"
	"github.com/ajitpratap0/relay/pkg/models"
	"github.com/ajitpratap0/relay/pkg/vault"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// AdapterID is the registry id of the GCS adapter
const AdapterID = "gcs"

// Descriptor is the static registration descriptor
func Descriptor() core.Descriptor {
	return core.Descriptor{
		ID:             AdapterID,
		Description:    "Google Cloud Storage objects",
		Actions:        []core.Action{core.ActionDownload, core.ActionUpload},
		Pagination:     &core.PaginationDecl{Style: core.PaginationCursor, DefaultItemsPerPage: 1, MaxItemsPerPage: 1000},
		RequiredConfig: []string{"bucket"},
	}
}

// Adapter reads and writes objects under one prefix
type Adapter struct {
	*base.BaseConnector

	bucketName string
	options    []option.ClientOption
	layout     *objectstore.Layout

	client *storage.Client
	bucket *storage.BucketHandle
}

// New creates a GCS adapter
func New(conn *models.Connector, cred *vault.Credential) (*Adapter, error) {
	if err := base.RequireConfig(AdapterID, conn, "bucket"); err != nil {
		return nil, err
	}
	layout, err := objectstore.FromConnector(conn)
	if err != nil {
		return nil, err
	}
	return &Adapter{
		BaseConnector: base.NewBaseConnector(AdapterID, conn),
		bucketName:    conn.ConfigString("bucket"),
		options:       clientOptions(conn, cred),
		layout:        layout,
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

func clientOptions(conn *models.Connector, cred *vault.Credential) []option.ClientOption {
	var opts []option.ClientOption
	if endpoint := conn.ConfigString("endpoint_url"); endpoint != "" {
		return append(opts, option.WithEndpoint(endpoint), option.WithoutAuthentication())
	}
	if cred != nil {
		key := cred.Extra["service_account_json"]
		if key == "" {
			key = cred.APISecret
		}
		if key != "" {
			return append(opts, option.WithCredentialsJSON([]byte(key)))
		}
	}
	if file := conn.ConfigString("credentials_file"); file != "" {
		opts = append(opts, option.WithCredentialsFile(file))
	}
	return opts
}

// Descriptor implements core.Adapter
func (a *Adapter) Descriptor() core.Descriptor { return Descriptor() }

// Connect creates the client and checks bucket access
func (a *Adapter) Connect(ctx context.Context) error {
	client, err := storage.NewClient(ctx, a.options...)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to create storage client")
	}
	bucket := client.Bucket(a.bucketName)
	if _, err := bucket.Attrs(ctx); err != nil {
		_ = client.Close()
		return errors.Wrap(err, errors.ErrorTypeConnection, fmt.Sprintf("bucket %s is not accessible", a.bucketName))
	}
	a.client = client
	a.bucket = bucket
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

// Download reads up to opts.Limit objects after the cursor name
func (a *Adapter) Download(ctx context.Context, opts models.PageOptions) (*models.Page, error) {
	if err := a.EnsureConnected(); err != nil {
		return nil, err
	}
	query := &storage.Query{Prefix: a.layout.ListPrefix()}
	if err := query.SetAttrSelection([]string{"Name"}); err != nil {
		return nil, err
	}
	if cursor, ok := opts.Offset.(string); ok && cursor != "" {
		// StartOffset is inclusive
		query.StartOffset = cursor + "\x00"
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 1
	}

	page := &models.Page{}
	it := a.bucket.Objects(ctx, query)
	var last string
	for read := 0; ; read++ {
		attrs, err := it.Next()
		if err == iterator.Done {
			return page, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to list objects")
		}
		if read == limit {
			page.Options.NextOffset = last
			return page, nil
		}
		records, err := a.read(ctx, attrs.Name)
		if err != nil {
			return nil, err
		}
		page.Data = append(page.Data, a.Shape(records)...)
		last = attrs.Name
	}
}

func (a *Adapter) read(ctx context.Context, name string) ([]models.Record, error) {
	r, err := a.bucket.Object(name).NewReader(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to open "+name)
	}
	defer func() { _ = r.Close() }()

	body, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to read "+name)
	}
	return a.layout.Decode(name, body)
}

// Upload writes the batch as one object
func (a *Adapter) Upload(ctx context.Context, records []models.Record) error {
	if err := a.EnsureConnected(); err != nil {
		return err
	}
	obj, err := a.layout.Encode(records)
	if err != nil {
		return err
	}

	w := a.bucket.Object(obj.Key).NewWriter(ctx)
	w.ContentType = obj.ContentType
	w.ContentEncoding = obj.ContentEncoding
	w.Metadata = map[string]string{
		"records": fmt.Sprint(obj.Records),
		"format":  string(a.layout.Format),
	}
	if _, err := w.Write(obj.Body); err != nil {
		_ = w.Close()
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to write "+obj.Key)
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to finalize "+obj.Key)
	}
	a.GetLogger(ctx).Debug("uploaded object",
		zap.String("bucket", a.bucketName),
		zap.String("object", obj.Key),
		zap.Int("records", obj.Records))
	return nil
}
