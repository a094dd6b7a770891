// Package legacy reads and writes the one-YAML-file-per-cutscene format used
// before a database backend existed:
//
//	name: intro
//	frames:
//	  '0': {world: world, x: 1.5, y: 64.0, z: -3.0, yaw: 90.0, pitch: 10.0}
//	  '1': ...
//
// It is the import source for bootstrap and the write target while the
// configured store is unavailable.
package legacy

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/nonxedy/nonscenes/internal/cutscene"
	"github.com/nonxedy/nonscenes/internal/storage"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Ext is the cutscene file extension.
const Ext = ".yml"

type entry struct {
	World *string  `yaml:"world"`
	X     *float64 `yaml:"x"`
	Y     *float64 `yaml:"y"`
	Z     *float64 `yaml:"z"`
	Yaw   *float32 `yaml:"yaw"`
	Pitch *float32 `yaml:"pitch"`
}

func (e entry) pose() (cutscene.Pose, bool) {
	if e.World == nil || *e.World == "" || e.X == nil || e.Y == nil || e.Z == nil || e.Yaw == nil || e.Pitch == nil {
		return cutscene.Pose{}, false
	}
	return cutscene.Pose{World: *e.World, X: *e.X, Y: *e.Y, Z: *e.Z, Yaw: *e.Yaw, Pitch: *e.Pitch}, true
}

type fileDoc struct {
	Name   string    `yaml:"name"`
	Frames yaml.Node `yaml:"frames"`
}

type writeEntry struct {
	World string  `yaml:"world"`
	X     float64 `yaml:"x"`
	Y     float64 `yaml:"y"`
	Z     float64 `yaml:"z"`
	Yaw   float32 `yaml:"yaw"`
	Pitch float32 `yaml:"pitch"`
}

type writeDoc struct {
	Name   string                `yaml:"name"`
	Frames map[string]writeEntry `yaml:"frames"`
}

// Store keeps cutscenes as YAML files in one directory.
type Store struct {
	dir  string
	opts storage.Options
}

// Open returns a store rooted at dir.
func Open(dir string, opts storage.Options) *Store {
	return &Store{dir: dir, opts: opts}
}

// Dir returns the directory holding the files.
func (s *Store) Dir() string {
	return s.dir
}

// Initialize creates the directory.
func (s *Store) Initialize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(s.dir) == "" {
		return storage.Unavailable("legacy directory is required", nil)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return storage.Unavailable("create legacy directory", err)
	}
	return nil
}

// Shutdown is a no-op; files are closed after every call.
func (s *Store) Shutdown(context.Context) error {
	return nil
}

// Save writes <name>.yml through a temporary file, replacing any file whose
// name differs only by case.
func (s *Store) Save(ctx context.Context, c cutscene.Cutscene) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.IsZero() {
		return storage.Transaction("save cutscene", cutscene.ErrNoFrames)
	}
	if err := storage.ValidName(c.Name()); err != nil {
		return err
	}

	doc := writeDoc{Name: c.Name(), Frames: make(map[string]writeEntry, c.Len())}
	for i, p := range c.Frames() {
		doc.Frames[strconv.Itoa(i)] = writeEntry{World: p.World, X: p.X, Y: p.Y, Z: p.Z, Yaw: p.Yaw, Pitch: p.Pitch}
	}
	payload, err := yaml.Marshal(doc)
	if err != nil {
		return storage.Transaction("encode cutscene", err)
	}

	if err := s.removeMatching(c.Name()); err != nil {
		return storage.Transaction(fmt.Sprintf("replace cutscene %q", c.Name()), err)
	}
	target := filepath.Join(s.dir, c.Name()+Ext)
	tmp, err := os.CreateTemp(s.dir, ".cutscene-*")
	if err != nil {
		return storage.Transaction("create temp file", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return storage.Transaction("write cutscene file", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return storage.Transaction("close cutscene file", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return storage.Transaction("rename cutscene file", err)
	}
	return nil
}

// LoadAll parses every file, skipping unreadable files and frames.
func (s *Store) LoadAll(ctx context.Context) ([]cutscene.Cutscene, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	files, err := s.files()
	if err != nil {
		return nil, err
	}
	log := s.opts.Log()
	var out []cutscene.Cutscene
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c, err := s.load(path)
		if err != nil {
			log.Warn("skipping legacy cutscene file", zap.String("path", path), zap.Error(err))
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// Delete removes the file for name, whatever its case.
func (s *Store) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.removeMatching(name); err != nil {
		return storage.Transaction(fmt.Sprintf("delete cutscene %q", name), err)
	}
	return nil
}

// Exists reports whether a file for name exists.
func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	matches, err := s.matching(name)
	if err != nil {
		return false, err
	}
	return len(matches) > 0, nil
}

func (s *Store) load(path string) (cutscene.Cutscene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return cutscene.Cutscene{}, err
	}
	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return cutscene.Cutscene{}, storage.Malformed("parse yaml", err)
	}
	name := strings.TrimSpace(doc.Name)
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), Ext)
	}
	if doc.Frames.Kind != yaml.MappingNode {
		return cutscene.Cutscene{}, storage.Malformed("frames section is missing", nil)
	}

	type indexed struct {
		index int
		pose  cutscene.Pose
	}
	var frames []indexed
	content := doc.Frames.Content
	for i := 0; i+1 < len(content); i += 2 {
		idx, err := strconv.Atoi(content[i].Value)
		if err != nil {
			continue
		}
		var e entry
		if err := content[i+1].Decode(&e); err != nil {
			continue
		}
		p, ok := e.pose()
		if !ok {
			continue
		}
		frames = append(frames, indexed{index: idx, pose: p})
	}
	sort.Slice(frames, func(i, j int) bool { return frames[i].index < frames[j].index })

	poses := make([]cutscene.Pose, len(frames))
	for i, f := range frames {
		poses[i] = f.pose
	}
	c, ok := storage.Assemble(name, poses, s.opts.Resolver)
	if !ok {
		return cutscene.Cutscene{}, storage.Malformed("no loadable frames", nil)
	}
	return c, nil
}

func (s *Store) files() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, storage.Unavailable("read legacy directory", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), Ext) || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		out = append(out, filepath.Join(s.dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) matching(name string) ([]string, error) {
	key := cutscene.Key(name)
	files, err := s.files()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, path := range files {
		if cutscene.Key(strings.TrimSuffix(filepath.Base(path), Ext)) == key {
			out = append(out, path)
		}
	}
	return out, nil
}

func (s *Store) removeMatching(name string) error {
	matches, err := s.matching(name)
	if err != nil {
		return err
	}
	for _, path := range matches {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

var _ storage.Store = (*Store)(nil)
