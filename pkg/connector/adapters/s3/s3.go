// Package s3 implements an object-store adapter over Amazon S3 and
// S3-compatible services. Each uploaded batch becomes one object; downloads
// walk the objects under the prefix in key order, a page being up to
// items-per-page objects and the cursor the last key read.
//
// Configuration:
//
//	bucket:             bucket name (required)
//	region:             AWS region
//	endpoint_url:       custom endpoint (MinIO, LocalStack); enables path-style addressing
//	prefix:             key prefix; the endpoint is appended
//	format:             jsonl | csv | avro | arrow (default jsonl)
//	compression:        none | gzip | zstd | snappy | lz4 | s2
//	part_size_mb:       multipart part size (default 8)
//	upload_concurrency: parts uploaded in parallel (default 4)
//
// api_key credentials carry the access key id in api_key and the secret in
// api_secret; without a credential the default AWS chain is used.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/ajitpratap0/relay/pkg/connector/base"
	"github.com/ajitpratap0/relay/pkg/connector/core"
	"github.com/ajitpratap0/relay/pkg/connector/registry"
	"github.com/ajitpratap0/relay/pkg/connector/shared/objectstore"
	"github.com/ajitpratap0/relay/pkg/errors"
	"github.com/ajitpratap0/relay/pkg/models"
	"github.com/ajitpratap0/relay/pkg/vault"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// AdapterID is the registry id of the S3 adapter
const AdapterID = "s3"

// Client is the subset of *s3.Client the adapter uses
type Client interface {
	manager.UploadAPIClient
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Descriptor is the static registration descriptor
func Descriptor() core.Descriptor {
	return core.Descriptor{
		ID:             AdapterID,
		Description:    "Amazon S3 objects",
		Actions:        []core.Action{core.ActionDownload, core.ActionUpload},
		Pagination:     &core.PaginationDecl{Style: core.PaginationCursor, DefaultItemsPerPage: 1, MaxItemsPerPage: 1000},
		RequiredConfig: []string{"bucket"},
	}
}

// Adapter reads and writes objects under one prefix
type Adapter struct {
	*base.BaseConnector

	bucket   string
	region   string
	endpoint string
	cred     *vault.Credential
	layout   *objectstore.Layout
	partSize int64
	workers  int

	client   Client
	uploader *manager.Uploader
}

// New creates an S3 adapter. A non-nil client skips AWS configuration loading.
func New(conn *models.Connector, cred *vault.Credential, client Client) (*Adapter, error) {
	if err := base.RequireConfig(AdapterID, conn, "bucket"); err != nil {
		return nil, err
	}
	layout, err := objectstore.FromConnector(conn)
	if err != nil {
		return nil, err
	}
	return &Adapter{
		BaseConnector: base.NewBaseConnector(AdapterID, conn),
		bucket:        conn.ConfigString("bucket"),
		region:        conn.ConfigString("region"),
		endpoint:      conn.ConfigString("endpoint_url"),
		cred:          cred,
		layout:        layout,
		partSize:      int64(conn.ConfigInt("part_size_mb", 8)) * 1024 * 1024,
		workers:       conn.ConfigInt("upload_concurrency", 4),
		client:        client,
	}, nil
}

func init() {
	registry.MustRegister(registry.Registration{
		Descriptor: Descriptor(),
		Factory: func(conn *models.Connector, cred *vault.Credential) (core.Adapter, error) {
			return New(conn, cred, nil)
		},
	})
}

// Descriptor implements core.Adapter
func (a *Adapter) Descriptor() core.Descriptor { return Descriptor() }

// Connect loads AWS configuration and checks bucket access
func (a *Adapter) Connect(ctx context.Context) error {
	if a.client == nil {
		client, err := a.newClient(ctx)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeConfig, "failed to load AWS configuration")
		}
		a.client = client
	}

	if _, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.bucket)}); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, fmt.Sprintf("bucket %s is not accessible", a.bucket))
	}

	a.uploader = manager.NewUploader(a.client, func(u *manager.Uploader) {
		if a.partSize >= manager.MinUploadPartSize {
			u.PartSize = a.partSize
		}
		if a.workers > 0 {
			u.Concurrency = a.workers
		}
	})
	a.MarkConnected()
	return nil
}

func (a *Adapter) newClient(ctx context.Context) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if a.region != "" {
		opts = append(opts, awsconfig.WithRegion(a.region))
	}
	if a.cred != nil && a.cred.APIKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(a.cred.APIKey, a.cred.APISecret, a.cred.Extra["session_token"])))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if a.endpoint != "" {
			o.BaseEndpoint = aws.String(a.endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// Disconnect releases the client
func (a *Adapter) Disconnect(context.Context) error {
	a.MarkDisconnected()
	return nil
}

// Download reads up to opts.Limit objects after the cursor key
func (a *Adapter) Download(ctx context.Context, opts models.PageOptions) (*models.Page, error) {
	if err := a.EnsureConnected(); err != nil {
		return nil, err
	}
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(a.layout.ListPrefix()),
	}
	if opts.Limit > 0 {
		input.MaxKeys = aws.Int32(int32(opts.Limit))
	}
	if cursor, ok := opts.Offset.(string); ok && cursor != "" {
		input.StartAfter = aws.String(cursor)
	}

	listing, err := a.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to list objects")
	}

	page := &models.Page{}
	var last string
	for _, obj := range listing.Contents {
		key := aws.ToString(obj.Key)
		records, err := a.read(ctx, key)
		if err != nil {
			return nil, err
		}
		page.Data = append(page.Data, a.Shape(records)...)
		last = key
	}
	if aws.ToBool(listing.IsTruncated) && last != "" {
		page.Options.NextOffset = last
	}
	return page, nil
}

func (a *Adapter) read(ctx context.Context, key string) ([]models.Record, error) {
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to get "+key)
	}
	defer func() { _ = out.Body.Close() }()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to read "+key)
	}
	return a.layout.Decode(key, body)
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

	input := &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(obj.Key),
		Body:        bytes.NewReader(obj.Body),
		ContentType: aws.String(obj.ContentType),
		Metadata: map[string]string{
			"records": fmt.Sprint(obj.Records),
			"format":  string(a.layout.Format),
		},
	}
	if obj.ContentEncoding != "" {
		input.ContentEncoding = aws.String(obj.ContentEncoding)
	}
	if _, err := a.uploader.Upload(ctx, input); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to upload to S3")
	}
	a.GetLogger(ctx).Debug("uploaded object",
		zap.String("bucket", a.bucket),
		zap.String("key", obj.Key),
		zap.Int("records", obj.Records))
	return nil
}
