// Package dataset holds the tag dictionary: the TagEntry/Snapshot model,
// payload parsing, and the Store that owns the live snapshot, republishes it
// on change, and writes through to the persistent adapter.
package dataset

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/lixinlkmn2004/tagsyringe/kvstore"
)

// SchemaVersion is the persisted-layout version. When the persisted marker
// disagrees, all keys under the store's prefix are discarded and the store
// resets to an empty snapshot with NeedsRefresh set (forward-only migration).
const SchemaVersion = "2"

const (
	keyPrefix        = "tagset:"
	keySchemaVersion = keyPrefix + "schema_version"
	keySHA           = keyPrefix + "sha"
	keyPayload       = keyPrefix + "payload"
)

// Store holds the current Snapshot, exposes it reactively, and persists it.
// The in-memory snapshot is authoritative for the session: a persist failure
// is logged and swallowed, never rolled back.
type Store struct {
	kv     kvstore.Store
	logger *slog.Logger
	feed   *feed
	bus    busPublisher

	mu           sync.RWMutex
	snap         *Snapshot
	needsRefresh bool
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets a custom logger for the store.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New creates a Store over the persistent adapter and loads any persisted
// snapshot. Migration policy: a schema-version mismatch wipes the store's
// own key prefix and leaves NeedsRefresh set so the composition root forces
// an update on the next tick.
func New(ctx context.Context, kv kvstore.Store, opts ...Option) (*Store, error) {
	s := &Store{
		kv:     kv,
		logger: slog.Default(),
		feed:   newFeed(),
		snap:   EmptySnapshot(),
	}
	for _, o := range opts {
		o(s)
	}

	ver, _, err := kv.Get(ctx, keySchemaVersion)
	if err != nil {
		return nil, fmt.Errorf("dataset: read schema version: %w", err)
	}

	if ver != SchemaVersion {
		if err := s.wipe(ctx); err != nil {
			return nil, err
		}
		if err := kv.Set(ctx, keySchemaVersion, SchemaVersion); err != nil {
			return nil, fmt.Errorf("dataset: write schema version: %w", err)
		}
		s.needsRefresh = true
		s.logger.Info("dataset: schema migrated, persisted snapshot discarded",
			"from", ver, "to", SchemaVersion)
		return s, nil
	}

	s.loadPersisted(ctx)
	return s, nil
}

// wipe deletes every persisted key under the store's prefix. Other
// consumers' keys are untouched.
func (s *Store) wipe(ctx context.Context) error {
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		return fmt.Errorf("dataset: list keys: %w", err)
	}
	for _, k := range keys {
		if !strings.HasPrefix(k, keyPrefix) {
			continue
		}
		if err := s.kv.Delete(ctx, k); err != nil {
			return fmt.Errorf("dataset: delete %s: %w", k, err)
		}
	}
	return nil
}

// loadPersisted restores the last ingested snapshot. Any inconsistency
// (missing payload, parse failure, sha drift) resets to empty with
// NeedsRefresh set; a fresh download repairs it.
func (s *Store) loadPersisted(ctx context.Context) {
	raw, okPayload, err := s.kv.Get(ctx, keyPayload)
	if err != nil {
		s.logger.Error("dataset: read persisted payload", "error", err)
		s.needsRefresh = true
		return
	}
	sha, okSHA, err := s.kv.Get(ctx, keySHA)
	if err != nil {
		s.logger.Error("dataset: read persisted sha", "error", err)
		s.needsRefresh = true
		return
	}
	if !okPayload || !okSHA {
		s.needsRefresh = true
		return
	}

	snap, err := ParsePayload([]byte(raw))
	if err != nil || snap.ContentID() != sha {
		s.logger.Warn("dataset: persisted snapshot unusable, starting empty",
			"error", err)
		s.needsRefresh = true
		return
	}

	s.snap = snap
	s.logger.Info("dataset: snapshot restored",
		"sha", snap.ContentID(), "entries", snap.Len())
}

// NeedsRefresh reports whether the store started without a usable snapshot
// (first run, migration, or corrupt persistence) and an unconditional update
// should be triggered.
func (s *Store) NeedsRefresh() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.needsRefresh
}

// Current returns the live snapshot. Never nil; empty before first ingest.
func (s *Store) Current() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// SHA returns the live snapshot's content identity, "" before first ingest.
func (s *Store) SHA() string {
	return s.Current().ContentID()
}

// Changes returns a replay-latest subscription: the current snapshot is
// delivered immediately, then each superseding one. A slow consumer only
// observes the latest value. The channel closes when ctx is done.
func (s *Store) Changes(ctx context.Context) <-chan *Snapshot {
	s.mu.RLock()
	current := s.snap
	s.mu.RUnlock()
	return s.feed.subscribe(ctx, current)
}

// Ingest parses raw into a Snapshot and atomically replaces the live one.
// contentID, when non-empty, must match the payload's embedded identity.
// Persistence is write-through fire-and-forget; a failed write is logged and
// the in-memory snapshot remains authoritative. Publishes on Changes and
// broadcasts tag-updated when a bus is attached.
func (s *Store) Ingest(ctx context.Context, raw []byte, contentID string) error {
	snap, err := ParsePayload(raw)
	if err != nil {
		return err
	}
	if contentID != "" && snap.ContentID() != contentID {
		return &ParseError{Reason: fmt.Sprintf(
			"payload identity %s does not match expected %s",
			snap.ContentID(), contentID)}
	}

	s.mu.Lock()
	s.snap = snap
	s.needsRefresh = false
	s.mu.Unlock()

	go s.persist(context.WithoutCancel(ctx), raw, snap.ContentID())

	s.feed.publish(snap)
	s.publishUpdated(ctx, snap.ContentID())

	s.logger.Info("dataset: snapshot ingested",
		"sha", snap.ContentID(), "entries", snap.Len())
	return nil
}

// persist is fire-and-forget and unserialized: two rapid ingests can
// interleave their writes and leave a crossed payload/sha pair on disk.
// loadPersisted catches the mismatch on the next start and flags a refresh,
// so the resident snapshot is never affected.
func (s *Store) persist(ctx context.Context, raw []byte, sha string) {
	if err := s.kv.Set(ctx, keyPayload, string(raw)); err != nil {
		s.logger.Error("dataset: persist payload", "error", err)
		return
	}
	if err := s.kv.Set(ctx, keySHA, sha); err != nil {
		s.logger.Error("dataset: persist sha", "error", err)
	}
}
