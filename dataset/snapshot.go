package dataset

// Snapshot is one immutable, internally consistent version of the whole tag
// dictionary plus its content identity. ContentID is a remote-assigned hash,
// opaque and compared only for equality. Snapshots are superseded by pointer
// swap in the Store, never mutated.
type Snapshot struct {
	contentID string
	entries   map[string]*TagEntry // keyed by canonical full key
}

// EmptySnapshot is the state before the first ingest: no entries, no
// identity.
func EmptySnapshot() *Snapshot {
	return &Snapshot{entries: map[string]*TagEntry{}}
}

// ContentID returns the snapshot's content identity, "" when empty.
func (s *Snapshot) ContentID() string { return s.contentID }

// Len returns the number of entries.
func (s *Snapshot) Len() int { return len(s.entries) }

// Get looks up an entry by raw full key (canonicalized first).
// Returns nil when unknown.
func (s *Snapshot) Get(fullKey string) *TagEntry {
	return s.entries[CanonicalKey(fullKey)]
}

// Entries exposes the snapshot's entry map, keyed by canonical full key.
// The map is shared and must not be modified.
func (s *Snapshot) Entries() map[string]*TagEntry { return s.entries }
