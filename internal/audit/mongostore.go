package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoConfig configures the Mongo-backed audit store.
type MongoConfig struct {
	// URI is the connection string.
	URI string

	// DB and Collection name the target namespace.
	DB         string
	Collection string
}

// MongoStore persists the chain in a MongoDB collection, one document
// per entry keyed by sequence. Same single-writer discipline as the
// file store: the head signature is process-local state guarded by a
// mutex, so appends serialize.
type MongoStore struct {
	client *mongo.Client
	col    *mongo.Collection
	signer *Signer

	mu      sync.Mutex
	head    string
	nextSeq int64
	closed  bool
}

// NewMongoStore connects, ensures indexes, and recovers the chain
// head from the highest-sequence document.
func NewMongoStore(ctx context.Context, cfg MongoConfig, signer *Signer) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	col := client.Database(cfg.DB).Collection(cfg.Collection)

	s := &MongoStore{
		client:  client,
		col:     col,
		signer:  signer,
		head:    GenesisSignature,
		nextSeq: 1,
	}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	if err := s.loadHead(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "seq", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "timestamp", Value: 1}}},
		{Keys: bson.D{{Key: "sessionId", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("ensure audit indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) loadHead(ctx context.Context) error {
	opts := options.FindOne().SetSort(bson.D{{Key: "seq", Value: -1}})
	var last Entry
	err := s.col.FindOne(ctx, bson.M{}, opts).Decode(&last)
	if err == mongo.ErrNoDocuments {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load audit head: %w", err)
	}
	s.head = last.Signature
	s.nextSeq = last.Seq + 1
	return nil
}

// Append signs and inserts one entry under the single-writer lock.
func (s *MongoStore) Append(ctx context.Context, rec Record) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Entry{}, ErrStoreClosed
	}

	e := Entry{
		Seq:       s.nextSeq,
		Timestamp: time.Now().UTC().Truncate(time.Millisecond),
		Level:     rec.Level,
		Action:    rec.Action,
		Tool:      rec.Tool,
		Params:    Redact(rec.Params),
		Authority: rec.Authority,
		Outcome:   rec.Outcome,
		SessionID: rec.SessionID,
		ActorID:   rec.ActorID,
	}
	e.Signature = s.signer.Sign(e, s.head)

	if _, err := s.col.InsertOne(ctx, e); err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrAppendFailed, err)
	}

	s.head = e.Signature
	s.nextSeq++
	return e, nil
}

// Query returns matching entries, newest first. Pure read.
func (s *MongoStore) Query(ctx context.Context, f Filter) ([]Entry, error) {
	q := bson.M{}
	if f.Level != "" {
		q["level"] = f.Level
	}
	if f.Tool != "" {
		q["tool"] = f.Tool
	}
	if !f.From.IsZero() || !f.To.IsZero() {
		rng := bson.M{}
		if !f.From.IsZero() {
			rng["$gte"] = f.From.UTC()
		}
		if !f.To.IsZero() {
			rng["$lte"] = f.To.UTC()
		}
		q["timestamp"] = rng
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "seq", Value: -1}}).
		SetLimit(int64(f.limit()))

	cur, err := s.col.Find(ctx, q, opts)
	if err != nil {
		return nil, fmt.Errorf("query audit chain: %w", err)
	}
	defer cur.Close(ctx)

	var out []Entry
	for cur.Next(ctx) {
		var e Entry
		if err := cur.Decode(&e); err != nil {
			return nil, fmt.Errorf("decode audit entry: %w", err)
		}
		out = append(out, e)
	}
	return out, cur.Err()
}

// Verify sweeps the last limit entries oldest to newest, re-deriving
// each signature. limit <= 0 verifies the full chain.
func (s *MongoStore) Verify(ctx context.Context, limit int) (Report, error) {
	opts := options.Find().SetSort(bson.D{{Key: "seq", Value: -1}})
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}
	cur, err := s.col.Find(ctx, bson.M{}, opts)
	if err != nil {
		return Report{}, fmt.Errorf("verify audit chain: %w", err)
	}
	defer cur.Close(ctx)

	var entries []Entry
	for cur.Next(ctx) {
		var e Entry
		if err := cur.Decode(&e); err != nil {
			return Report{}, fmt.Errorf("decode audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := cur.Err(); err != nil {
		return Report{}, err
	}

	// Reverse to oldest-first for the chained walk.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}

	return verifySpan(s.signer, entries, func(seq int64) string {
		if seq <= 1 {
			return GenesisSignature
		}
		var prev Entry
		err := s.col.FindOne(ctx, bson.M{"seq": seq - 1}).Decode(&prev)
		if err != nil {
			return GenesisSignature
		}
		return prev.Signature
	}), nil
}

// Head returns the current chain head signature.
func (s *MongoStore) Head() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.head
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
