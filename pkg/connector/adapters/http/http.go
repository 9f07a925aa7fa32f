// Package http implements a JSON-over-HTTP adapter. Downloads issue GET
// requests against base_url + endpoint and read the record array found at
// records_path. Uploads POST each batch as a JSON array, or as JSON lines
// when body_format is jsonl.
//
// Configuration:
//
//	base_url:           service root (required)
//	records_path:       dotted path of the record array in responses
//	pagination:         none | offset | cursor (default none)
//	max_items_per_page: page size cap
//	limit_param:        query parameter carrying the page size (default "limit")
//	offset_param:       query parameter carrying the offset (default "offset")
//	cursor_param:       query parameter carrying the cursor (default "cursor")
//	next_cursor_path:   dotted response path of the next cursor (default "next_cursor")
//	api_key_header:     header used for api_key credentials (default "X-API-Key")
//	upload_method:      POST | PUT (default POST)
//	body_format:        json | jsonl (default json)
//	headers:            static request headers
package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"strings"

	"github.com/ajitpratap0/relay/pkg/clients"
	"github.com/ajitpratap0/relay/pkg/connector/base"
	"github.com/ajitpratap0/relay/pkg/connector/core"
	"github.com/ajitpratap0/relay/pkg/connector/registry"
	"github.com/ajitpratap0/relay/pkg/errors"
	jsonpool "github.com/ajitpratap0/relay/pkg/json"
	"github.com/ajitpratap0/relay/pkg/logger"
	"github.com/ajitpratap0/relay/pkg/models"
	"github.com/ajitpratap0/relay/pkg/vault"
	"go.uber.org/zap"
)

// AdapterID is the registry id of the HTTP adapter
const AdapterID = "http"

const maxErrorBody = 4 << 10

// Descriptor is the static registration descriptor
func Descriptor() core.Descriptor {
	return core.Descriptor{
		ID:             AdapterID,
		Description:    "JSON REST endpoints",
		Actions:        []core.Action{core.ActionDownload, core.ActionUpload},
		Pagination:     &core.PaginationDecl{Style: core.PaginationNone},
		RequiredConfig: []string{"base_url"},
	}
}

// Adapter talks to one REST resource
type Adapter struct {
	*base.BaseConnector

	desc   core.Descriptor
	cred   *vault.Credential
	client *nethttp.Client
	target *url.URL

	recordsPath    string
	limitParam     string
	offsetParam    string
	cursorParam    string
	nextCursorPath string
	apiKeyHeader   string
	uploadMethod   string
	jsonLines      bool
	headers        map[string]string
}

// New creates an HTTP adapter. A nil client uses clients.NewHTTPClient.
func New(conn *models.Connector, cred *vault.Credential, client *nethttp.Client) (*Adapter, error) {
	if err := base.RequireConfig(AdapterID, conn, "base_url"); err != nil {
		return nil, err
	}
	target, err := url.Parse(strings.TrimRight(conn.ConfigString("base_url"), "/") + "/" + strings.TrimLeft(conn.Endpoint, "/"))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid base_url")
	}

	desc := Descriptor()
	if desc.Pagination, err = base.PaginationFromConfig(conn, core.PaginationNone); err != nil {
		return nil, err
	}

	method := strings.ToUpper(conn.ConfigString("upload_method"))
	switch method {
	case "":
		method = nethttp.MethodPost
	case nethttp.MethodPost, nethttp.MethodPut, nethttp.MethodPatch:
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "http adapter: unsupported upload_method %q", method)
	}

	if client == nil {
		client = clients.NewHTTPClient(nil, logger.Get())
	}

	a := &Adapter{
		BaseConnector:  base.NewBaseConnector(AdapterID, conn),
		desc:           desc,
		cred:           cred,
		client:         client,
		target:         target,
		recordsPath:    conn.ConfigString("records_path"),
		limitParam:     stringOr(conn.ConfigString("limit_param"), "limit"),
		offsetParam:    stringOr(conn.ConfigString("offset_param"), "offset"),
		cursorParam:    stringOr(conn.ConfigString("cursor_param"), "cursor"),
		nextCursorPath: stringOr(conn.ConfigString("next_cursor_path"), "next_cursor"),
		apiKeyHeader:   stringOr(conn.ConfigString("api_key_header"), "X-API-Key"),
		uploadMethod:   method,
		jsonLines:      strings.EqualFold(conn.ConfigString("body_format"), "jsonl"),
		headers:        stringMap(conn.Config["headers"]),
	}
	return a, nil
}

// DefaultClient is shared by adapters created through the global registry
var DefaultClient *nethttp.Client

func init() {
	registry.MustRegister(registry.Registration{
		Descriptor: Descriptor(),
		Factory: func(conn *models.Connector, cred *vault.Credential) (core.Adapter, error) {
			return New(conn, cred, DefaultClient)
		},
	})
}

// Descriptor implements core.Adapter
func (a *Adapter) Descriptor() core.Descriptor { return a.desc }

// Connect implements core.Connector. No request is made; the first download
// surfaces reachability problems.
func (a *Adapter) Connect(context.Context) error {
	a.MarkConnected()
	return nil
}

// Disconnect implements core.Disconnector
func (a *Adapter) Disconnect(context.Context) error {
	a.MarkDisconnected()
	a.client.CloseIdleConnections()
	return nil
}

// Download implements core.Downloader
func (a *Adapter) Download(ctx context.Context, opts models.PageOptions) (*models.Page, error) {
	u := *a.target
	q := u.Query()
	if opts.Limit > 0 {
		q.Set(a.limitParam, fmt.Sprint(opts.Limit))
	}
	if opts.Offset != nil {
		switch a.desc.Pagination.Style {
		case core.PaginationCursor:
			q.Set(a.cursorParam, fmt.Sprint(opts.Offset))
		case core.PaginationOffset:
			q.Set(a.offsetParam, fmt.Sprint(models.OffsetInt(opts.Offset)))
		}
	}
	u.RawQuery = q.Encode()

	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	var body interface{}
	if err := a.do(req, &body); err != nil {
		return nil, err
	}

	rows, err := a.records(body)
	if err != nil {
		return nil, err
	}

	page := &models.Page{Data: a.Shape(rows)}
	if a.desc.Pagination.Style == core.PaginationCursor {
		if root, ok := body.(map[string]interface{}); ok {
			if next, found := models.GetPath(root, a.nextCursorPath); found && next != nil && next != "" {
				page.Options.NextOffset = next
			}
		}
	}
	a.GetLogger(ctx).Debug("downloaded page",
		zap.String("url", u.Redacted()),
		zap.Int("records", page.Len()))
	return page, nil
}

// Upload implements core.Uploader
func (a *Adapter) Upload(ctx context.Context, records []models.Record) error {
	buf := jsonpool.GetBuffer()
	defer jsonpool.PutBuffer(buf)

	contentType := "application/json"
	if a.jsonLines {
		contentType = "application/x-ndjson"
		if err := jsonpool.MarshalLines(buf, records); err != nil {
			return errors.Wrap(err, errors.ErrorTypeData, "failed to encode batch")
		}
	} else {
		payload, err := jsonpool.MarshalArray(records)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeData, "failed to encode batch")
		}
		buf.Write(payload)
	}

	req, err := nethttp.NewRequestWithContext(ctx, a.uploadMethod, a.target.String(), bytes.NewReader(buf.Bytes()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	return a.do(req, nil)
}

func (a *Adapter) do(req *nethttp.Request, out interface{}) error {
	for k, v := range a.headers {
		req.Header.Set(k, v)
	}
	a.authorize(req)

	resp, err := a.client.Do(req)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return errors.Newf(errors.ErrorTypeConnection, "%s %s returned %d: %s",
			req.Method, req.URL.Redacted(), resp.StatusCode, strings.TrimSpace(string(snippet))).
			WithDetail("status", resp.StatusCode)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := jsonpool.NewDecoder(resp.Body, false).Decode(out); err != nil && err != io.EOF {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to decode response")
	}
	return nil
}

func (a *Adapter) authorize(req *nethttp.Request) {
	if a.cred == nil {
		return
	}
	switch a.cred.Kind {
	case vault.KindAPIKey:
		req.Header.Set(a.apiKeyHeader, a.cred.APIKey)
	case vault.KindBasic:
		req.SetBasicAuth(a.cred.Username, a.cred.Password)
	case vault.KindOAuth2:
		if a.cred.AccessToken == "" {
			return
		}
		tokenType := a.cred.TokenType
		if tokenType == "" || strings.EqualFold(tokenType, "bearer") {
			tokenType = "Bearer"
		}
		req.Header.Set("Authorization", tokenType+" "+a.cred.AccessToken)
	}
}

// records locates the record array in a decoded body. Without records_path
// a top-level array, a "data" array or a single object are accepted.
func (a *Adapter) records(body interface{}) ([]models.Record, error) {
	if body == nil {
		return nil, nil
	}
	if a.recordsPath != "" {
		root, ok := body.(map[string]interface{})
		if !ok {
			return nil, errors.Newf(errors.ErrorTypeData, "response is not an object; cannot read %q", a.recordsPath)
		}
		v, found := models.GetPath(root, a.recordsPath)
		if !found {
			return nil, nil
		}
		return toRecords(v)
	}
	if root, ok := body.(map[string]interface{}); ok {
		if data, found := root["data"]; found {
			return toRecords(data)
		}
		return []models.Record{root}, nil
	}
	return toRecords(body)
}

func toRecords(v interface{}) ([]models.Record, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []interface{}:
		out := make([]models.Record, 0, len(t))
		for i, item := range t {
			m, ok := item.(map[string]interface{})
			if !ok {
				return nil, errors.Newf(errors.ErrorTypeData, "record %d is %T, not an object", i, item)
			}
			out = append(out, m)
		}
		return out, nil
	case map[string]interface{}:
		return []models.Record{t}, nil
	}
	return nil, errors.Newf(errors.ErrorTypeData, "unexpected records value %T", v)
}

func stringOr(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func stringMap(v interface{}) map[string]string {
	out := map[string]string{}
	switch m := v.(type) {
	case map[string]string:
		for k, val := range m {
			out[k] = val
		}
	case map[string]interface{}:
		for k, val := range m {
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}
