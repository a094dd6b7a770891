package storage

import (
	"context"
	"errors"
	"strings"

	"github.com/nonxedy/nonscenes/internal/cutscene"
	apperrors "github.com/nonxedy/nonscenes/internal/platform/errors"
	"go.uber.org/zap"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// ErrNotInitialized is returned by operations issued before Initialize or
// after Shutdown.
var ErrNotInitialized = apperrors.New(apperrors.CodeStorageUnavailable, "storage is not initialized")

// Store persists cutscenes. Names are matched case-insensitively; display
// names are stored as given.
type Store interface {
	// Initialize connects and creates the schema if needed.
	Initialize(ctx context.Context) error
	// Shutdown releases every resource. Calling it twice is harmless.
	Shutdown(ctx context.Context) error
	// Save replaces the stored cutscene with c.
	Save(ctx context.Context, c cutscene.Cutscene) error
	// LoadAll returns every stored cutscene with frames in order. Frames in
	// unknown worlds are dropped and cutscenes left empty are skipped.
	LoadAll(ctx context.Context) ([]cutscene.Cutscene, error)
	// Delete removes name. Deleting a missing cutscene is not an error.
	Delete(ctx context.Context, name string) error
	// Exists reports whether name is stored.
	Exists(ctx context.Context, name string) (bool, error)
}

// Options are shared by every backend.
type Options struct {
	// Resolver decides which worlds are known on load. Nil accepts any.
	Resolver cutscene.WorldResolver
	// Logger receives skipped-record warnings. Nil discards.
	Logger *zap.Logger
}

// Log returns the configured logger or a no-op one.
func (o Options) Log() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// Assemble builds a cutscene from loaded poses, dropping poses in unknown
// worlds. ok is false when no pose survives.
func Assemble(name string, poses []cutscene.Pose, resolver cutscene.WorldResolver) (cutscene.Cutscene, bool) {
	kept := poses[:0:0]
	for _, p := range poses {
		if cutscene.KnownWorld(resolver, p.World) {
			kept = append(kept, p)
		}
	}
	c, err := cutscene.New(name, kept)
	if err != nil {
		return cutscene.Cutscene{}, false
	}
	return c, true
}

// Unavailable wraps a connection or initialization failure.
func Unavailable(message string, cause error) error {
	return apperrors.Wrap(apperrors.CodeStorageUnavailable, message, cause)
}

// Transaction wraps a failed write.
func Transaction(message string, cause error) error {
	return apperrors.Wrap(apperrors.CodeStorageTransaction, message, cause)
}

// Malformed wraps an unreadable record.
func Malformed(message string, cause error) error {
	return apperrors.Wrap(apperrors.CodeStorageMalformed, message, cause)
}

// ValidName rejects names that are blank or that every backend could not
// store. The legacy store keeps one file per cutscene, so names must also
// be usable as file names.
func ValidName(name string) error {
	if cutscene.Key(name) == "" {
		return apperrors.New(apperrors.CodeInvalidArgument, "cutscene name is required")
	}
	if strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return apperrors.WithMetadata(apperrors.CodeInvalidArgument,
			"cutscene name cannot be used as a file name",
			map[string]string{"name": name})
	}
	return nil
}
