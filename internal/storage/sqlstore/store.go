// Package sqlstore implements storage.Store once for every relational engine.
// Engine packages only supply a Dialect: how to build the connection string
// and which migrations create the schema.
package sqlstore

import (
	"context"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/nonxedy/nonscenes/internal/cutscene"
	"github.com/nonxedy/nonscenes/internal/platform/storage/sqlmigrate"
	"github.com/nonxedy/nonscenes/internal/storage"
	"go.uber.org/zap"
)

// insertBatch bounds rows per multi-row insert, well under every engine's
// placeholder limit.
const insertBatch = 500

// Dialect is what an engine contributes.
type Dialect struct {
	// Name labels logs and traces.
	Name string
	// Driver is the database/sql driver name.
	Driver string
	// DSN builds the connection string.
	DSN func() (string, error)
	// Migrations holds the schema files, applied from MigrationRoot.
	Migrations    fs.FS
	MigrationRoot string
	// Configure tunes the pool after connecting. Optional.
	Configure func(*sqlx.DB)
}

// Store is a relational cutscene store.
type Store struct {
	dialect Dialect
	opts    storage.Options

	mu sync.RWMutex
	db *sqlx.DB
}

// New returns an uninitialized store for dialect.
func New(dialect Dialect, opts storage.Options) *Store {
	return &Store{dialect: dialect, opts: opts}
}

// Initialize connects and applies migrations.
func (s *Store) Initialize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.dialect.DSN == nil || s.dialect.Driver == "" {
		return storage.Unavailable("sql dialect is not configured", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return nil
	}

	dsn, err := s.dialect.DSN()
	if err != nil {
		return storage.Unavailable(fmt.Sprintf("build %s dsn", s.dialect.Name), err)
	}
	db, err := sqlx.ConnectContext(ctx, s.dialect.Driver, dsn)
	if err != nil {
		return storage.Unavailable(fmt.Sprintf("connect %s", s.dialect.Name), err)
	}
	if s.dialect.Configure != nil {
		s.dialect.Configure(db)
	}
	if s.dialect.Migrations != nil {
		if err := sqlmigrate.ApplyMigrations(ctx, db, s.dialect.Migrations, s.dialect.MigrationRoot); err != nil {
			_ = db.Close()
			return storage.Unavailable(fmt.Sprintf("migrate %s", s.dialect.Name), err)
		}
	}
	s.db = db
	s.opts.Log().Info("sql storage initialized", zap.String("dialect", s.dialect.Name))
	return nil
}

// Shutdown closes the pool.
func (s *Store) Shutdown(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// DB exposes the pool, nil before Initialize.
func (s *Store) DB() *sqlx.DB {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db
}

func (s *Store) conn(ctx context.Context) (*sqlx.DB, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	db := s.DB()
	if db == nil {
		return nil, storage.ErrNotInitialized
	}
	return db, nil
}

type headerRow struct {
	Name       string `db:"name"`
	FrameCount int    `db:"frame_count"`
}

type frameRow struct {
	CutsceneName string  `db:"cutscene_name"`
	FrameIndex   int     `db:"frame_index"`
	World        string  `db:"world"`
	X            float64 `db:"x"`
	Y            float64 `db:"y"`
	Z            float64 `db:"z"`
	Yaw          float32 `db:"yaw"`
	Pitch        float32 `db:"pitch"`
}

func (r frameRow) pose() cutscene.Pose {
	return cutscene.Pose{World: r.World, X: r.X, Y: r.Y, Z: r.Z, Yaw: r.Yaw, Pitch: r.Pitch}
}

// Save replaces the cutscene in one transaction.
func (s *Store) Save(ctx context.Context, c cutscene.Cutscene) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if c.IsZero() {
		return storage.Transaction("save cutscene", cutscene.ErrNoFrames)
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return storage.Transaction("begin save", err)
	}
	if err := deleteTx(ctx, tx, c.Name()); err != nil {
		_ = tx.Rollback()
		return storage.Transaction(fmt.Sprintf("clear cutscene %q", c.Name()), err)
	}
	if _, err := tx.NamedExecContext(ctx,
		`INSERT INTO cutscenes (name, frame_count) VALUES (:name, :frame_count)`,
		headerRow{Name: c.Name(), FrameCount: c.Len()},
	); err != nil {
		_ = tx.Rollback()
		return storage.Transaction(fmt.Sprintf("insert cutscene %q", c.Name()), err)
	}

	rows := make([]frameRow, c.Len())
	for i, p := range c.Frames() {
		rows[i] = frameRow{
			CutsceneName: c.Name(),
			FrameIndex:   i,
			World:        p.World,
			X:            p.X,
			Y:            p.Y,
			Z:            p.Z,
			Yaw:          p.Yaw,
			Pitch:        p.Pitch,
		}
	}
	for start := 0; start < len(rows); start += insertBatch {
		end := min(start+insertBatch, len(rows))
		if _, err := tx.NamedExecContext(ctx, `
INSERT INTO cutscene_frames (cutscene_name, frame_index, world, x, y, z, yaw, pitch)
VALUES (:cutscene_name, :frame_index, :world, :x, :y, :z, :yaw, :pitch)`,
			rows[start:end],
		); err != nil {
			_ = tx.Rollback()
			return storage.Transaction(fmt.Sprintf("insert frames of %q", c.Name()), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storage.Transaction(fmt.Sprintf("commit cutscene %q", c.Name()), err)
	}
	return nil
}

// LoadAll reads every cutscene with one ordered join.
func (s *Store) LoadAll(ctx context.Context) ([]cutscene.Cutscene, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryxContext(ctx, `
SELECT c.name AS cutscene_name, f.frame_index, f.world, f.x, f.y, f.z, f.yaw, f.pitch
FROM cutscenes c
JOIN cutscene_frames f ON f.cutscene_name = c.name
ORDER BY c.name, f.frame_index`)
	if err != nil {
		return nil, storage.Unavailable("query cutscenes", err)
	}
	defer rows.Close()

	log := s.opts.Log()
	var (
		out     []cutscene.Cutscene
		current string
		poses   []cutscene.Pose
		started bool
	)
	flush := func() {
		if !started {
			return
		}
		if c, ok := storage.Assemble(current, poses, s.opts.Resolver); ok {
			out = append(out, c)
		} else {
			log.Warn("skipping cutscene without loadable frames", zap.String("cutscene", current))
		}
	}
	for rows.Next() {
		var r frameRow
		if err := rows.StructScan(&r); err != nil {
			log.Warn("skipping malformed frame row", zap.Error(storage.Malformed("scan frame", err)))
			continue
		}
		if !started || r.CutsceneName != current {
			flush()
			current = r.CutsceneName
			poses = nil
			started = true
		}
		poses = append(poses, r.pose())
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Unavailable("iterate cutscenes", err)
	}
	flush()
	return out, nil
}

// Delete removes the cutscene and its frames.
func (s *Store) Delete(ctx context.Context, name string) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return storage.Transaction("begin delete", err)
	}
	if err := deleteTx(ctx, tx, name); err != nil {
		_ = tx.Rollback()
		return storage.Transaction(fmt.Sprintf("delete cutscene %q", name), err)
	}
	if err := tx.Commit(); err != nil {
		return storage.Transaction(fmt.Sprintf("commit delete %q", name), err)
	}
	return nil
}

// Exists reports whether name is stored.
func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return false, err
	}
	var count int
	if err := db.GetContext(ctx, &count,
		db.Rebind(`SELECT COUNT(*) FROM cutscenes WHERE LOWER(name) = ?`),
		strings.ToLower(strings.TrimSpace(name)),
	); err != nil {
		return false, storage.Unavailable("check cutscene", err)
	}
	return count > 0, nil
}

// deleteTx removes frames before the header so engines without cascading
// foreign keys stay consistent.
func deleteTx(ctx context.Context, tx *sqlx.Tx, name string) error {
	key := strings.ToLower(strings.TrimSpace(name))
	if _, err := tx.ExecContext(ctx,
		tx.Rebind(`DELETE FROM cutscene_frames WHERE cutscene_name IN (SELECT name FROM cutscenes WHERE LOWER(name) = ?)`),
		key,
	); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM cutscenes WHERE LOWER(name) = ?`), key)
	return err
}

var _ storage.Store = (*Store)(nil)
