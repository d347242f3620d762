package settings

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Backend loads and flushes the whole document. Implementations need not be
// safe for concurrent use; the Store serializes every call.
type Backend interface {
	Load(ctx context.Context) (Document, error)
	Flush(ctx context.Context, doc Document) error
	Close() error
}

// FlushObserver is told the outcome of every backend flush.
type FlushObserver func(d time.Duration, err error)

// Option configures a Store.
type Option func(*Store)

// WithFlushObserver registers fn to be called after every flush.
func WithFlushObserver(fn FlushObserver) Option {
	return func(s *Store) { s.observe = fn }
}

// Store is the single owner of all scope records. Get, Mutate and Snapshot
// are linearizable: one mutex guards the map and the backend.
type Store struct {
	mu       sync.Mutex
	backend  Backend
	defaults Defaults
	records  map[ScopeKey]Record
	logger   *slog.Logger
	tracer   trace.Tracer
	observe  FlushObserver
}

// Open loads the document through backend. A missing document yields an
// empty store; a corrupt one is an error so that it is never overwritten.
func Open(ctx context.Context, backend Backend, defaults Defaults, logger *slog.Logger, opts ...Option) (*Store, error) {
	if defaults.Owner <= 0 {
		return nil, fmt.Errorf("%w: owner %d", ErrInvalidIdentity, defaults.Owner)
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		backend:  backend,
		defaults: defaults.withFallbacks(),
		records:  make(map[ScopeKey]Record),
		logger:   logger.With("component", "settings"),
		tracer:   otel.Tracer("github.com/flemzord/autoreply/internal/settings"),
	}
	for _, opt := range opts {
		opt(s)
	}

	doc, err := backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("settings: load: %w", err)
	}
	for key, raw := range doc {
		rec, err := DecodeRecord(raw, s.defaults)
		if err != nil {
			return nil, fmt.Errorf("settings: scope %s: %w", key, err)
		}
		s.records[key] = rec
	}
	s.logger.Debug("store loaded", "scopes", len(s.records))
	return s, nil
}

// Defaults returns the seeding values for new records.
func (s *Store) Defaults() Defaults {
	return s.defaults
}

// Get returns a copy of the record for key, creating the default record on
// first access. Get never fails: if persisting a new record fails the error
// is logged and the record is written by the next successful flush.
func (s *Store) Get(ctx context.Context, key ScopeKey) Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[key]; ok {
		return rec.Clone()
	}

	rec := s.defaults.NewRecord()
	s.records[key] = rec
	if err := s.flushLocked(ctx); err != nil {
		s.logger.Error("persisting new scope failed", "scope", string(key), "error", err)
	}
	return rec.Clone()
}

// Mutate applies fn to a copy of the record for key and, when fn succeeds,
// installs the copy and flushes the whole document before returning it.
//
// An error from fn leaves everything untouched and is returned as is. A flush
// failure restores the previous value and returns an error wrapping
// ErrPersist.
func (s *Store) Mutate(ctx context.Context, key ScopeKey, fn func(*Record) error) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.records[key]
	if !existed {
		prev = s.defaults.NewRecord()
	}

	next := prev.Clone()
	if err := fn(&next); err != nil {
		return prev.Clone(), err
	}
	if !ValidDelay(next.DelaySeconds) {
		return prev.Clone(), fmt.Errorf("%w: delay %v", ErrInvalidRecord, next.DelaySeconds)
	}
	normalize(&next, s.defaults.Owner)

	s.records[key] = next
	if err := s.flushLocked(ctx); err != nil {
		if existed {
			s.records[key] = prev
		} else {
			delete(s.records, key)
		}
		return prev.Clone(), fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return next.Clone(), nil
}

// Snapshot returns a deep copy of every record.
func (s *Store) Snapshot(_ context.Context) map[ScopeKey]Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[ScopeKey]Record, len(s.records))
	for k, rec := range s.records {
		out[k] = rec.Clone()
	}
	return out
}

// Keys returns every known scope key in lexical order.
func (s *Store) Keys() []ScopeKey {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]ScopeKey, 0, len(s.records))
	for k := range s.records {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Ping checks that the store can still reach its backend by reloading the
// document without applying it.
func (s *Store) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.backend.Load(ctx)
	return err
}

// Close releases the backend.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.Close()
}

func (s *Store) flushLocked(ctx context.Context) (err error) {
	ctx, span := s.tracer.Start(ctx, "settings.flush",
		trace.WithAttributes(attribute.Int("settings.scopes", len(s.records))))
	start := time.Now()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "flush failed")
		}
		span.End()
		if s.observe != nil {
			s.observe(time.Since(start), err)
		}
	}()

	doc, err := encodeAll(s.records)
	if err != nil {
		return err
	}
	return s.backend.Flush(ctx, doc)
}
