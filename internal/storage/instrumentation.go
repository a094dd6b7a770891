package storage

import (
	"context"

	"github.com/nonxedy/nonscenes/internal/cutscene"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/nonxedy/nonscenes/internal/storage"

var tracer = otel.Tracer(scopeName)

// Traced wraps s so every call produces a span tagged with backend.
func Traced(s Store, backend string) Store {
	if s == nil {
		return nil
	}
	if t, ok := s.(*tracedStore); ok {
		s = t.next
	}
	return &tracedStore{next: s, backend: backend}
}

// Unwrap returns the store beneath a Traced wrapper.
func Unwrap(s Store) Store {
	if t, ok := s.(*tracedStore); ok {
		return t.next
	}
	return s
}

type tracedStore struct {
	next    Store
	backend string
}

func (t *tracedStore) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("storage.backend", t.backend))
	return tracer.Start(ctx, "storage."+op, trace.WithAttributes(attrs...))
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (t *tracedStore) Initialize(ctx context.Context) (err error) {
	ctx, span := t.start(ctx, "initialize")
	defer func() { finish(span, err) }()
	return t.next.Initialize(ctx)
}

func (t *tracedStore) Shutdown(ctx context.Context) (err error) {
	ctx, span := t.start(ctx, "shutdown")
	defer func() { finish(span, err) }()
	return t.next.Shutdown(ctx)
}

func (t *tracedStore) Save(ctx context.Context, c cutscene.Cutscene) (err error) {
	ctx, span := t.start(ctx, "save",
		attribute.String("cutscene.name", c.Name()),
		attribute.Int("cutscene.frames", c.Len()))
	defer func() { finish(span, err) }()
	return t.next.Save(ctx, c)
}

func (t *tracedStore) LoadAll(ctx context.Context) (out []cutscene.Cutscene, err error) {
	ctx, span := t.start(ctx, "load_all")
	defer func() {
		span.SetAttributes(attribute.Int("cutscene.count", len(out)))
		finish(span, err)
	}()
	return t.next.LoadAll(ctx)
}

func (t *tracedStore) Delete(ctx context.Context, name string) (err error) {
	ctx, span := t.start(ctx, "delete", attribute.String("cutscene.name", name))
	defer func() { finish(span, err) }()
	return t.next.Delete(ctx, name)
}

func (t *tracedStore) Exists(ctx context.Context, name string) (ok bool, err error) {
	ctx, span := t.start(ctx, "exists", attribute.String("cutscene.name", name))
	defer func() { finish(span, err) }()
	return t.next.Exists(ctx, name)
}
