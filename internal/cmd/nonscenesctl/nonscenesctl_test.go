package nonscenesctl

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/nonxedy/nonscenes/internal/cutscene"
	apperrors "github.com/nonxedy/nonscenes/internal/platform/errors"
	"github.com/nonxedy/nonscenes/internal/storage"
	"github.com/nonxedy/nonscenes/internal/storage/legacy"
	"github.com/nonxedy/nonscenes/internal/storage/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cutsceneOf(t *testing.T, name string, xs ...float64) cutscene.Cutscene {
	t.Helper()
	frames := make([]cutscene.Pose, len(xs))
	for i, x := range xs {
		frames[i] = cutscene.Pose{World: "world", X: x, Y: 64, Yaw: 90}
	}
	cs, err := cutscene.New(name, frames)
	require.NoError(t, err)
	return cs
}

func seed(t *testing.T, s storage.Store, cs ...cutscene.Cutscene) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.Initialize(ctx))
	defer func() { require.NoError(t, s.Shutdown(ctx)) }()
	for _, c := range cs {
		require.NoError(t, s.Save(ctx, c))
	}
}

func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("NONSCENES_STORAGE_TYPE", "sqlite")
	t.Setenv("NONSCENES_DATA_DIR", dir)
	t.Setenv("NONSCENES_OTEL_ENDPOINT", "")
	var out bytes.Buffer
	err := Execute(context.Background(), args, &out)
	return out.String(), err
}

func TestList(t *testing.T) {
	dir := t.TempDir()
	seed(t, sqlite.Open(filepath.Join(dir, "cutscenes.db"), storage.Options{}),
		cutsceneOf(t, "Outro", 0, 3000),
		cutsceneOf(t, "Intro", 0, 1, 2),
	)

	out, err := run(t, dir, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Regexp(t, `(?s)Intro\s+3\s+2 m.*Outro\s+2\s+3,000 m`, out)
	assert.Contains(t, out, "2 cutscenes, 5 frames")
}

func TestShow(t *testing.T) {
	dir := t.TempDir()
	seed(t, sqlite.Open(filepath.Join(dir, "cutscenes.db"), storage.Options{}), cutsceneOf(t, "Intro", 1.5, 2))

	out, err := run(t, dir, "show", "intro")
	require.NoError(t, err)
	assert.Contains(t, out, "Intro: 2 frames")
	assert.Regexp(t, `1\s+world\s+1\.50\s+64\.00\s+0\.00\s+90\.0\s+0\.0`, out)

	_, err = run(t, dir, "show", "missing")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestDelete(t *testing.T) {
	dir := t.TempDir()
	seed(t, sqlite.Open(filepath.Join(dir, "cutscenes.db"), storage.Options{}), cutsceneOf(t, "Intro", 0, 1))
	seed(t, legacy.Open(filepath.Join(dir, "cutscenes"), storage.Options{}), cutsceneOf(t, "Intro", 0, 1))

	out, err := run(t, dir, "delete", "Intro")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted Intro")

	out, err = run(t, dir, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "0 cutscenes, 0 frames")

	_, err = run(t, dir, "delete", "Intro")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestMigrate(t *testing.T) {
	dir := t.TempDir()
	seed(t, legacy.Open(filepath.Join(dir, "cutscenes"), storage.Options{}),
		cutsceneOf(t, "Intro", 0, 1),
		cutsceneOf(t, "Flyover", 0, 1, 2),
	)

	out, err := run(t, dir, "migrate", "--from", "legacy")
	require.NoError(t, err)
	assert.Contains(t, out, "migrated 2 of 2 cutscenes from legacy to sqlite")

	out, err = run(t, dir, "migrate", "--from", "sqlite", "--to", "bbolt")
	require.NoError(t, err)
	assert.Contains(t, out, "migrated 2 of 2 cutscenes from sqlite to bbolt")

	out, err = run(t, dir, "--storage", "bbolt", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "2 cutscenes, 5 frames")
}

func TestMigrateRejectsSameBackend(t *testing.T) {
	_, err := run(t, t.TempDir(), "migrate", "--from", "sqlite", "--to", "sqlite3")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidArgument))
}

func TestUnknownStorage(t *testing.T) {
	_, err := run(t, t.TempDir(), "--storage", "cassandra", "list")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidArgument))
}
