// Package mongo stores one document per cutscene, frames embedded as an
// array.
package mongo

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nonxedy/nonscenes/internal/cutscene"
	"github.com/nonxedy/nonscenes/internal/storage"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
)

const (
	defaultDatabase   = "nonscenes"
	defaultCollection = "cutscenes"
	connectTimeout    = 10 * time.Second
)

// Config selects a MongoDB deployment.
type Config struct {
	URI        string
	Database   string
	Collection string
}

type frameDoc struct {
	FrameIndex int     `bson:"frameIndex"`
	World      string  `bson:"world"`
	X          float64 `bson:"x"`
	Y          float64 `bson:"y"`
	Z          float64 `bson:"z"`
	Yaw        float32 `bson:"yaw"`
	Pitch      float32 `bson:"pitch"`
}

type cutsceneDoc struct {
	Name       string     `bson:"name"`
	Key        string     `bson:"key"`
	FrameCount int        `bson:"frameCount"`
	UpdatedAt  time.Time  `bson:"updatedAt"`
	Frames     []frameDoc `bson:"frames"`
}

// Store is a MongoDB cutscene store.
type Store struct {
	cfg  Config
	opts storage.Options

	mu     sync.RWMutex
	client *mongo.Client
	coll   *mongo.Collection
}

// Open returns an uninitialized store for cfg.
func Open(cfg Config, opts storage.Options) *Store {
	if strings.TrimSpace(cfg.Database) == "" {
		cfg.Database = defaultDatabase
	}
	if strings.TrimSpace(cfg.Collection) == "" {
		cfg.Collection = defaultCollection
	}
	return &Store{cfg: cfg, opts: opts}
}

// Initialize connects, pings and ensures the unique key index.
func (s *Store) Initialize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(s.cfg.URI) == "" {
		return storage.Unavailable("mongodb uri is required", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return nil
	}

	client, err := mongo.Connect(options.Client().
		ApplyURI(s.cfg.URI).
		SetConnectTimeout(connectTimeout).
		SetServerSelectionTimeout(connectTimeout))
	if err != nil {
		return storage.Unavailable("connect mongodb", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return storage.Unavailable("ping mongodb", err)
	}
	coll := client.Database(s.cfg.Database).Collection(s.cfg.Collection)
	if _, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "key", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("cutscene_key"),
	}); err != nil {
		_ = client.Disconnect(context.Background())
		return storage.Unavailable("create mongodb index", err)
	}

	s.client = client
	s.coll = coll
	s.opts.Log().Info("mongodb storage initialized",
		zap.String("database", s.cfg.Database),
		zap.String("collection", s.cfg.Collection))
	return nil
}

// Shutdown disconnects the client.
func (s *Store) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	err := s.client.Disconnect(ctx)
	s.client = nil
	s.coll = nil
	return err
}

// Collection exposes the backing collection, nil before Initialize.
func (s *Store) Collection() *mongo.Collection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.coll
}

func (s *Store) collection(ctx context.Context) (*mongo.Collection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	coll := s.Collection()
	if coll == nil {
		return nil, storage.ErrNotInitialized
	}
	return coll, nil
}

// Save deletes then inserts the document. The pair is not transactional.
func (s *Store) Save(ctx context.Context, c cutscene.Cutscene) error {
	coll, err := s.collection(ctx)
	if err != nil {
		return err
	}
	if c.IsZero() {
		return storage.Transaction("save cutscene", cutscene.ErrNoFrames)
	}
	doc := cutsceneDoc{
		Name:       c.Name(),
		Key:        c.Key(),
		FrameCount: c.Len(),
		UpdatedAt:  time.Now().UTC(),
		Frames:     make([]frameDoc, c.Len()),
	}
	for i, p := range c.Frames() {
		doc.Frames[i] = frameDoc{FrameIndex: i, World: p.World, X: p.X, Y: p.Y, Z: p.Z, Yaw: p.Yaw, Pitch: p.Pitch}
	}

	if _, err := coll.DeleteOne(ctx, bson.D{{Key: "key", Value: c.Key()}}); err != nil {
		return storage.Transaction(fmt.Sprintf("delete cutscene %q", c.Name()), err)
	}
	if _, err := coll.InsertOne(ctx, doc); err != nil {
		return storage.Transaction(fmt.Sprintf("insert cutscene %q", c.Name()), err)
	}
	return nil
}

// LoadAll decodes every document, skipping malformed ones.
func (s *Store) LoadAll(ctx context.Context) ([]cutscene.Cutscene, error) {
	coll, err := s.collection(ctx)
	if err != nil {
		return nil, err
	}
	cur, err := coll.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "key", Value: 1}}))
	if err != nil {
		return nil, storage.Unavailable("find cutscenes", err)
	}
	defer cur.Close(ctx)

	log := s.opts.Log()
	var out []cutscene.Cutscene
	for cur.Next(ctx) {
		var doc cutsceneDoc
		if err := cur.Decode(&doc); err != nil {
			log.Warn("skipping malformed cutscene document", zap.Error(storage.Malformed("decode cutscene", err)))
			continue
		}
		sort.SliceStable(doc.Frames, func(i, j int) bool {
			return doc.Frames[i].FrameIndex < doc.Frames[j].FrameIndex
		})
		poses := make([]cutscene.Pose, len(doc.Frames))
		for i, f := range doc.Frames {
			poses[i] = cutscene.Pose{World: f.World, X: f.X, Y: f.Y, Z: f.Z, Yaw: f.Yaw, Pitch: f.Pitch}
		}
		if c, ok := storage.Assemble(doc.Name, poses, s.opts.Resolver); ok {
			out = append(out, c)
		} else {
			log.Warn("skipping cutscene without loadable frames", zap.String("cutscene", doc.Name))
		}
	}
	if err := cur.Err(); err != nil {
		return nil, storage.Unavailable("iterate cutscenes", err)
	}
	return out, nil
}

// Delete removes the document for name.
func (s *Store) Delete(ctx context.Context, name string) error {
	coll, err := s.collection(ctx)
	if err != nil {
		return err
	}
	if _, err := coll.DeleteOne(ctx, bson.D{{Key: "key", Value: cutscene.Key(name)}}); err != nil {
		return storage.Transaction(fmt.Sprintf("delete cutscene %q", name), err)
	}
	return nil
}

// Exists reports whether a document for name exists.
func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	coll, err := s.collection(ctx)
	if err != nil {
		return false, err
	}
	n, err := coll.CountDocuments(ctx, bson.D{{Key: "key", Value: cutscene.Key(name)}}, options.Count().SetLimit(1))
	if err != nil {
		return false, storage.Unavailable("count cutscenes", err)
	}
	return n > 0, nil
}

var _ storage.Store = (*Store)(nil)
