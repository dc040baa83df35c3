package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mdvault/mdvault/internal/docstore"
)

// MongoStore implements Backend on MongoDB collections: "documents" (unique
// index on slug), "trash" (compound index on slug+trashedAt), "versions" and
// a "counters" collection providing the per-slug monotonic version sequence.
// The trash transition touches two collections without a server transaction;
// the dispatcher's per-slug lock keeps it from interleaving with other
// mutations on the same slug.
type MongoStore struct {
	docs     *mongo.Collection
	trash    *mongo.Collection
	versions *mongo.Collection
	counters *mongo.Collection
}

// NewMongoStore wires the store onto db and ensures its indexes. Caller owns
// the client lifecycle.
func NewMongoStore(db *mongo.Database) *MongoStore {
	s := &MongoStore{
		docs:     db.Collection("documents"),
		trash:    db.Collection("trash"),
		versions: db.Collection("versions"),
		counters: db.Collection("counters"),
	}
	ctx := context.Background()
	s.docs.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "slug", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	s.trash.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "slug", Value: 1}, {Key: "trashedAt", Value: -1}},
		Options: options.Index().SetUnique(true),
	})
	s.versions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "slug", Value: 1}, {Key: "id", Value: -1}},
		Options: options.Index().SetUnique(true),
	})
	return s
}

func (m *MongoStore) CreateDoc(ctx context.Context, doc *docstore.Document) error {
	_, err := m.docs.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return docstore.ErrConflict
	}
	if err != nil {
		return wrapErr("mongo insert document", err)
	}
	return nil
}

func (m *MongoStore) GetDoc(ctx context.Context, slug string) (*docstore.Document, error) {
	var d docstore.Document
	err := m.docs.FindOne(ctx, bson.M{"slug": slug}).Decode(&d)
	if err == mongo.ErrNoDocuments {
		return nil, docstore.ErrNotFound
	}
	if err != nil {
		return nil, wrapErr("mongo get document", err)
	}
	return &d, nil
}

func (m *MongoStore) PutDoc(ctx context.Context, doc *docstore.Document) error {
	res, err := m.docs.ReplaceOne(ctx, bson.M{"slug": doc.Slug}, doc)
	if err != nil {
		return wrapErr("mongo replace document", err)
	}
	if res.MatchedCount == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

func (m *MongoStore) ListDocs(ctx context.Context) ([]docstore.DocumentMeta, error) {
	cur, err := m.docs.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, wrapErr("mongo list documents", err)
	}
	defer cur.Close(ctx)
	out := []docstore.DocumentMeta{}
	for cur.Next(ctx) {
		var d docstore.Document
		if err := cur.Decode(&d); err != nil {
			return nil, wrapErr("mongo decode document", err)
		}
		out = append(out, d.Meta())
	}
	if err := cur.Err(); err != nil {
		return nil, wrapErr("mongo list documents", err)
	}
	return out, nil
}

func (m *MongoStore) MoveToTrash(ctx context.Context, slug string, trashedAt int64) error {
	var d docstore.Document
	err := m.docs.FindOne(ctx, bson.M{"slug": slug}).Decode(&d)
	if err == mongo.ErrNoDocuments {
		return docstore.ErrNotFound
	}
	if err != nil {
		return wrapErr("mongo get document", err)
	}
	entry := docstore.TrashEntry{Document: d, TrashedAt: trashedAt}
	if _, err := m.trash.InsertOne(ctx, &entry); err != nil {
		return wrapErr("mongo insert trash entry", err)
	}
	if _, err := m.docs.DeleteOne(ctx, bson.M{"slug": slug}); err != nil {
		return wrapErr("mongo delete document", err)
	}
	return nil
}

func (m *MongoStore) ListTrash(ctx context.Context) ([]docstore.TrashEntry, error) {
	cur, err := m.trash.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "trashedAt", Value: -1}}))
	if err != nil {
		return nil, wrapErr("mongo list trash", err)
	}
	defer cur.Close(ctx)
	out := []docstore.TrashEntry{}
	for cur.Next(ctx) {
		var e docstore.TrashEntry
		if err := cur.Decode(&e); err != nil {
			return nil, wrapErr("mongo decode trash entry", err)
		}
		out = append(out, e)
	}
	if err := cur.Err(); err != nil {
		return nil, wrapErr("mongo list trash", err)
	}
	return out, nil
}

func (m *MongoStore) GetTrashEntry(ctx context.Context, slug string, trashedAt int64) (*docstore.TrashEntry, error) {
	var e docstore.TrashEntry
	err := m.trash.FindOne(ctx, bson.M{"slug": slug, "trashedAt": trashedAt}).Decode(&e)
	if err == mongo.ErrNoDocuments {
		return nil, docstore.ErrNotFound
	}
	if err != nil {
		return nil, wrapErr("mongo get trash entry", err)
	}
	return &e, nil
}

func (m *MongoStore) RestoreFromTrash(ctx context.Context, slug string, now time.Time) (*docstore.Document, error) {
	var e docstore.TrashEntry
	err := m.trash.FindOne(ctx, bson.M{"slug": slug},
		options.FindOne().SetSort(bson.D{{Key: "trashedAt", Value: -1}})).Decode(&e)
	if err == mongo.ErrNoDocuments {
		return nil, docstore.ErrNotFoundInTrash
	}
	if err != nil {
		return nil, wrapErr("mongo restore select", err)
	}
	doc := e.Document
	doc.UpdatedAt = now
	_, err = m.docs.InsertOne(ctx, &doc)
	if mongo.IsDuplicateKeyError(err) {
		return nil, docstore.ErrConflict
	}
	if err != nil {
		return nil, wrapErr("mongo restore insert", err)
	}
	if _, err := m.trash.DeleteOne(ctx, bson.M{"slug": slug, "trashedAt": e.TrashedAt}); err != nil {
		return nil, wrapErr("mongo restore delete", err)
	}
	return &doc, nil
}

func (m *MongoStore) PurgeTrash(ctx context.Context, slug string, trashedAt int64) error {
	res, err := m.trash.DeleteOne(ctx, bson.M{"slug": slug, "trashedAt": trashedAt})
	if err != nil {
		return wrapErr("mongo purge", err)
	}
	if res.DeletedCount == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

func (m *MongoStore) AppendVersion(ctx context.Context, v *docstore.Version) error {
	if _, err := m.versions.InsertOne(ctx, v); err != nil {
		return wrapErr("mongo append version", err)
	}
	return nil
}

func (m *MongoStore) ListVersions(ctx context.Context, slug string) ([]docstore.Version, error) {
	cur, err := m.versions.Find(ctx, bson.M{"slug": slug}, options.Find().SetSort(bson.D{{Key: "id", Value: -1}}))
	if err != nil {
		return nil, wrapErr("mongo list versions", err)
	}
	defer cur.Close(ctx)
	out := []docstore.Version{}
	for cur.Next(ctx) {
		var v docstore.Version
		if err := cur.Decode(&v); err != nil {
			return nil, wrapErr("mongo decode version", err)
		}
		out = append(out, v)
	}
	if err := cur.Err(); err != nil {
		return nil, wrapErr("mongo list versions", err)
	}
	return out, nil
}

func (m *MongoStore) GetVersion(ctx context.Context, slug string, id int64) (*docstore.Version, error) {
	var v docstore.Version
	err := m.versions.FindOne(ctx, bson.M{"slug": slug, "id": id}).Decode(&v)
	if err == mongo.ErrNoDocuments {
		return nil, docstore.ErrNotFound
	}
	if err != nil {
		return nil, wrapErr("mongo get version", err)
	}
	return &v, nil
}

func (m *MongoStore) NextVersionID(ctx context.Context, slug string) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := m.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": "verseq:" + slug},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, wrapErr("mongo version counter", err)
	}
	return counter.Seq, nil
}

func (m *MongoStore) Ping(ctx context.Context) error {
	if err := m.docs.Database().Client().Ping(ctx, nil); err != nil {
		return fmt.Errorf("%w: mongo ping: %v", docstore.ErrBackendUnavailable, err)
	}
	return nil
}

// Close is a no-op; the mongo client is owned and disconnected by the caller.
func (m *MongoStore) Close() error { return nil }

var _ Backend = (*MongoStore)(nil)
