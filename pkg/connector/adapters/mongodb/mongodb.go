// Package mongodb implements a document adapter. Downloads page with
// skip/limit over a stable sort; uploads insert documents or, with
// upsert_key set, upsert them through a bulk write.
//
// Configuration:
//
//	uri:                connection string (required); may reference {username} and {password}
//	database:           database name (required)
//	collection:         collection name (defaults to the endpoint)
//	upsert_key:         field used to match existing documents on upload
//	max_items_per_page: page size cap
package mongodb

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ajitpratap0/relay/pkg/connector/base"
	"github.com/ajitpratap0/relay/pkg/connector/core"
	"github.com/ajitpratap0/relay/pkg/connector/registry"
	"github.com/ajitpratap0/relay/pkg/errors"
	"github.com/ajitpratap0/relay/pkg/models"
	"github.com/ajitpratap0/relay/pkg/vault"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// AdapterID is the registry id of the MongoDB adapter
const AdapterID = "mongodb"

// Descriptor is the static registration descriptor
func Descriptor() core.Descriptor {
	return core.Descriptor{
		ID:             AdapterID,
		Description:    "MongoDB collections",
		Actions:        []core.Action{core.ActionDownload, core.ActionUpload},
		Pagination:     &core.PaginationDecl{Style: core.PaginationOffset, DefaultItemsPerPage: 500},
		RequiredConfig: []string{"uri", "database"},
	}
}

// Adapter reads and writes one collection
type Adapter struct {
	*base.BaseConnector

	desc       core.Descriptor
	uri        string
	database   string
	collection string
	upsertKey  string

	client *mongo.Client
	coll   *mongo.Collection
}

// New creates a MongoDB adapter
func New(conn *models.Connector, cred *vault.Credential) (*Adapter, error) {
	if err := base.RequireConfig(AdapterID, conn, "uri", "database"); err != nil {
		return nil, err
	}
	collection := conn.ConfigString("collection")
	if collection == "" {
		collection = conn.Endpoint
	}
	if collection == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "mongodb adapter requires a collection or endpoint")
	}

	desc := Descriptor()
	decl, err := base.PaginationFromConfig(conn, core.PaginationOffset)
	if err != nil {
		return nil, err
	}
	if decl.Style == core.PaginationCursor {
		return nil, errors.New(errors.ErrorTypeConfig, "mongodb adapter does not support cursor pagination")
	}
	if decl.DefaultItemsPerPage == 0 {
		decl.DefaultItemsPerPage = desc.Pagination.DefaultItemsPerPage
	}
	desc.Pagination = decl

	uri := conn.ConfigString("uri")
	if cred != nil {
		uri = strings.NewReplacer("{username}", cred.Username, "{password}", cred.Password).Replace(uri)
	}

	return &Adapter{
		BaseConnector: base.NewBaseConnector(AdapterID, conn),
		desc:          desc,
		uri:           uri,
		database:      conn.ConfigString("database"),
		collection:    collection,
		upsertKey:     conn.ConfigString("upsert_key"),
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
func (a *Adapter) Descriptor() core.Descriptor { return a.desc }

// Connect dials the deployment and pings the primary
func (a *Adapter) Connect(ctx context.Context) error {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(a.uri))
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to connect to mongodb")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to reach mongodb")
	}
	a.client = client
	a.coll = client.Database(a.database).Collection(a.collection)
	a.MarkConnected()
	a.GetLogger(ctx).Debug("connected", zap.String("collection", a.collection))
	return nil
}

// Disconnect closes the client
func (a *Adapter) Disconnect(ctx context.Context) error {
	if !a.MarkDisconnected() || a.client == nil {
		return nil
	}
	return a.client.Disconnect(ctx)
}

// Download implements core.Downloader
func (a *Adapter) Download(ctx context.Context, opts models.PageOptions) (*models.Page, error) {
	if err := a.EnsureConnected(); err != nil {
		return nil, err
	}
	conn := a.Connector()

	filter := bson.M{}
	if conn.Filter != nil && conn.Filter.Filter != nil {
		var err error
		if filter, err = FilterDocument(conn.Filter.Filter); err != nil {
			return nil, err
		}
	}

	find := options.Find().SetSort(SortDocument(conn.Sort))
	if opts.Limit > 0 {
		find.SetLimit(int64(opts.Limit))
	}
	if skip := models.OffsetInt(opts.Offset); skip > 0 {
		find.SetSkip(int64(skip))
	}
	if len(conn.Fields) > 0 {
		projection := bson.D{}
		for _, f := range conn.Fields {
			projection = append(projection, bson.E{Key: f, Value: 1})
		}
		find.SetProjection(projection)
	}

	cursor, err := a.coll.Find(ctx, filter, find)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "find failed")
	}
	defer func() { _ = cursor.Close(ctx) }()

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to decode documents")
	}

	page := &models.Page{Data: make([]models.Record, 0, len(docs))}
	for _, d := range docs {
		rec := Normalize(d).(map[string]interface{})
		if len(conn.Fields) > 0 {
			rec = models.Project(rec, conn.Fields)
		}
		page.Data = append(page.Data, rec)
	}
	return page, nil
}

// Upload implements core.Uploader
func (a *Adapter) Upload(ctx context.Context, records []models.Record) error {
	if err := a.EnsureConnected(); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	if a.upsertKey == "" {
		docs := make([]interface{}, len(records))
		for i, r := range records {
			docs[i] = r
		}
		if _, err := a.coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false)); err != nil {
			return errors.Wrap(err, errors.ErrorTypeConnection, "insert failed")
		}
		return nil
	}

	writes := make([]mongo.WriteModel, 0, len(records))
	for i, r := range records {
		key, ok := r[a.upsertKey]
		if !ok || key == nil {
			return errors.Newf(errors.ErrorTypeData, "record %d has no %s", i, a.upsertKey)
		}
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.M{a.upsertKey: key}).
			SetUpdate(bson.M{"$set": r}).
			SetUpsert(true))
	}
	res, err := a.coll.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "bulk write failed")
	}
	a.GetLogger(ctx).Debug("bulk write",
		zap.Int64("matched", res.MatchedCount),
		zap.Int64("modified", res.ModifiedCount),
		zap.Int64("upserted", res.UpsertedCount))
	return nil
}

// SortDocument converts sort specs to a sort document. Without specs the
// natural _id order keeps skip/limit paging stable.
func SortDocument(specs []models.SortSpec) bson.D {
	if len(specs) == 0 {
		return bson.D{{Key: "_id", Value: 1}}
	}
	out := make(bson.D, len(specs))
	for i, s := range specs {
		dir := 1
		if s.Descending {
			dir = -1
		}
		out[i] = bson.E{Key: s.Field, Value: dir}
	}
	return out
}

// FilterDocument translates a filter tree into a query document
func FilterDocument(f models.Filter) (bson.M, error) {
	switch t := f.(type) {
	case models.Predicate:
		return predicateDocument(t)
	case *models.Predicate:
		return predicateDocument(*t)
	case models.Group:
		return groupDocument(t)
	case *models.Group:
		return groupDocument(*t)
	}
	return nil, errors.Newf(errors.ErrorTypeConfig, "unsupported filter %T", f)
}

func groupDocument(g models.Group) (bson.M, error) {
	members := make(bson.A, 0, len(g.Filters))
	for _, m := range g.Filters {
		doc, err := FilterDocument(m)
		if err != nil {
			return nil, err
		}
		members = append(members, doc)
	}
	if len(members) == 0 {
		return bson.M{}, nil
	}
	op := "$and"
	if g.Logic == models.LogicOr {
		op = "$or"
	}
	return bson.M{op: members}, nil
}

func predicateDocument(p models.Predicate) (bson.M, error) {
	var cond interface{}
	switch p.Operator {
	case models.OpEqual:
		cond = bson.M{"$eq": p.Value}
	case models.OpNotEqual:
		cond = bson.M{"$ne": p.Value}
	case models.OpGreater:
		cond = bson.M{"$gt": p.Value}
	case models.OpGreaterEqual:
		cond = bson.M{"$gte": p.Value}
	case models.OpLess:
		cond = bson.M{"$lt": p.Value}
	case models.OpLessEqual:
		cond = bson.M{"$lte": p.Value}
	case models.OpIn:
		values, _ := p.Value.([]interface{})
		cond = bson.M{"$in": bson.A(values)}
	case models.OpContains:
		cond = bson.M{"$regex": regexp.QuoteMeta(fmt.Sprint(p.Value))}
	case models.OpExists:
		exists := true
		if b, ok := p.Value.(bool); ok {
			exists = b
		}
		cond = bson.M{"$exists": exists}
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unsupported filter operator %q", p.Operator)
	}
	return bson.M{p.Field: cond}, nil
}

// Normalize converts driver types into plain record values
func Normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case bson.M:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = Normalize(val)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = Normalize(val)
		}
		return out
	case bson.D:
		out := make(map[string]interface{}, len(t))
		for _, e := range t {
			out[e.Key] = Normalize(e.Value)
		}
		return out
	case bson.A:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = Normalize(val)
		}
		return out
	case primitive.ObjectID:
		return t.Hex()
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.Decimal128:
		return t.String()
	}
	return v
}
