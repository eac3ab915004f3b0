package cache

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// mongoDoc is the on-wire shape of a cache Entry in the remote-KV
// backend's collection.
type mongoDoc struct {
	Key          string    `bson:"_id"`
	Data         []byte    `bson:"data"`
	Timestamp    time.Time `bson:"timestamp"`
	TTLSeconds   float64   `bson:"ttl_seconds"`
	ETag         string    `bson:"etag,omitempty"`
	LastModified string    `bson:"last_modified,omitempty"`
	ContentType  string    `bson:"content_type,omitempty"`
	Compressed   bool      `bson:"compressed"`
	HitCount     int       `bson:"hit_count"`
	LastAccessed time.Time `bson:"last_accessed"`
}

// RemoteBackend is a distributed key-value cache backed by a MongoDB
// collection, generalizing web_fetch's RedisCacheBackend to the
// document-store client already used for result persistence
// (`internal/storage/database.go`'s MongoStorage).
type RemoteBackend struct {
	client     *mongo.Client
	collection *mongo.Collection
	timeout    time.Duration
}

// NewRemoteBackend connects to uri and targets database/collection.
func NewRemoteBackend(uri, database, collection string) (*RemoteBackend, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("remote cache connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("remote cache ping: %w", err)
	}
	return &RemoteBackend{
		client:     client,
		collection: client.Database(database).Collection(collection),
		timeout:    5 * time.Second,
	}, nil
}

func (r *RemoteBackend) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), r.timeout)
}

func (r *RemoteBackend) Get(key string) (*Entry, bool, error) {
	ctx, cancel := r.ctx()
	defer cancel()

	var doc mongoDoc
	err := r.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	entry := docToEntry(doc)
	if entry.IsExpired() {
		r.collection.DeleteOne(ctx, bson.M{"_id": key})
		return nil, false, nil
	}

	update := bson.M{"$set": bson.M{"last_accessed": time.Now()}, "$inc": bson.M{"hit_count": 1}}
	r.collection.UpdateOne(ctx, bson.M{"_id": key}, update)
	entry.HitCount++
	return entry, true, nil
}

func (r *RemoteBackend) Set(entry *Entry) error {
	ctx, cancel := r.ctx()
	defer cancel()

	doc := entryToDoc(entry)
	opts := options.Replace().SetUpsert(true)
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": entry.Key}, doc, opts)
	return err
}

func (r *RemoteBackend) Delete(key string) (bool, error) {
	ctx, cancel := r.ctx()
	defer cancel()

	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": key})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

func (r *RemoteBackend) Clear() error {
	ctx, cancel := r.ctx()
	defer cancel()
	_, err := r.collection.DeleteMany(ctx, bson.M{})
	return err
}

func (r *RemoteBackend) Keys() ([]string, error) {
	ctx, cancel := r.ctx()
	defer cancel()

	cur, err := r.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var keys []string
	for cur.Next(ctx) {
		var doc mongoDoc
		if err := cur.Decode(&doc); err != nil {
			continue
		}
		entry := docToEntry(doc)
		if !entry.IsExpired() {
			keys = append(keys, doc.Key)
		}
	}
	return keys, cur.Err()
}

func (r *RemoteBackend) Size() (int, error) {
	ctx, cancel := r.ctx()
	defer cancel()
	count, err := r.collection.CountDocuments(ctx, bson.M{})
	return int(count), err
}

// Close disconnects the underlying MongoDB client.
func (r *RemoteBackend) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.client.Disconnect(ctx)
}

func entryToDoc(e *Entry) mongoDoc {
	return mongoDoc{
		Key:          e.Key,
		Data:         e.Data,
		Timestamp:    e.Timestamp,
		TTLSeconds:   e.TTL.Seconds(),
		ETag:         e.ETag,
		LastModified: e.LastModified,
		ContentType:  e.ContentType,
		Compressed:   e.Compressed,
		HitCount:     e.HitCount,
		LastAccessed: e.LastAccessed,
	}
}

func docToEntry(d mongoDoc) *Entry {
	return &Entry{
		Key:          d.Key,
		Data:         d.Data,
		Timestamp:    d.Timestamp,
		TTL:          time.Duration(d.TTLSeconds * float64(time.Second)),
		ETag:         d.ETag,
		LastModified: d.LastModified,
		ContentType:  d.ContentType,
		Compressed:   d.Compressed,
		HitCount:     d.HitCount,
		LastAccessed: d.LastAccessed,
	}
}
