package dataset

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lixinlkmn2004/tagsyringe/bus"
	"github.com/lixinlkmn2004/tagsyringe/kvstore"
)

func newTestStore(t *testing.T) (*Store, *kvstore.Memory) {
	t.Helper()
	kv := kvstore.NewMemory()
	s, err := New(context.Background(), kv)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s, kv
}

// waitForKey polls the kv store until key appears; persistence is
// fire-and-forget so the test must wait for the write-through.
func waitForKey(t *testing.T, kv kvstore.Store, key string) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if v, ok, _ := kv.Get(context.Background(), key); ok {
			return v
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("key %s never persisted", key)
	return ""
}

func TestNew_FreshStore(t *testing.T) {
	s, kv := newTestStore(t)

	if !s.NeedsRefresh() {
		t.Fatal("fresh store should need a refresh")
	}
	if s.SHA() != "" {
		t.Fatalf("fresh store sha: %q", s.SHA())
	}
	if s.Current().Len() != 0 {
		t.Fatal("fresh store should be empty")
	}

	v, ok, _ := kv.Get(context.Background(), keySchemaVersion)
	if !ok || v != SchemaVersion {
		t.Fatalf("schema version not written: %q ok=%v", v, ok)
	}
}

func TestIngest(t *testing.T) {
	s, kv := newTestStore(t)
	ctx := context.Background()

	if err := s.Ingest(ctx, []byte(samplePayload), "abc123"); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if s.SHA() != "abc123" {
		t.Fatalf("sha: %q", s.SHA())
	}
	if s.NeedsRefresh() {
		t.Fatal("refresh flag not cleared after ingest")
	}
	if s.Current().Get("a:foo") == nil {
		t.Fatal("entry missing after ingest")
	}

	// Write-through persistence.
	if got := waitForKey(t, kv, keySHA); got != "abc123" {
		t.Fatalf("persisted sha: %q", got)
	}
	waitForKey(t, kv, keyPayload)
}

func TestIngest_RejectsAtomically(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if err := s.Ingest(ctx, []byte(samplePayload), ""); err != nil {
		t.Fatal(err)
	}

	err := s.Ingest(ctx, []byte(`{"head":`), "")
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	// Previous snapshot retained.
	if s.SHA() != "abc123" {
		t.Fatalf("previous snapshot lost: sha=%q", s.SHA())
	}

	// Identity cross-check also rejects.
	err = s.Ingest(ctx, []byte(samplePayload), "expected-other")
	if !errors.As(err, &pe) {
		t.Fatalf("expected ParseError on identity mismatch, got %v", err)
	}
	if s.SHA() != "abc123" {
		t.Fatal("mismatched ingest replaced the snapshot")
	}
}

func TestIngest_FailedPersistIsNotFatal(t *testing.T) {
	kv := &failingWrites{Memory: kvstore.NewMemory()}
	s, err := New(context.Background(), kv)
	if err != nil {
		t.Fatal(err)
	}
	kv.fail = true

	if err := s.Ingest(context.Background(), []byte(samplePayload), ""); err != nil {
		t.Fatalf("ingest must succeed despite persist failure: %v", err)
	}
	if s.SHA() != "abc123" {
		t.Fatal("in-memory snapshot not authoritative")
	}
}

type failingWrites struct {
	*kvstore.Memory
	fail bool
}

func (f *failingWrites) Set(ctx context.Context, key, value string) error {
	if f.fail {
		return errors.New("disk on fire")
	}
	return f.Memory.Set(ctx, key, value)
}

func TestChanges_ReplayLatest(t *testing.T) {
	s, _ := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := s.Changes(ctx)

	// New subscriber immediately receives the current (empty) snapshot.
	select {
	case snap := <-ch:
		if snap.ContentID() != "" {
			t.Fatalf("expected empty replay, got %q", snap.ContentID())
		}
	case <-time.After(time.Second):
		t.Fatal("no replay on subscribe")
	}

	if err := s.Ingest(context.Background(), []byte(samplePayload), ""); err != nil {
		t.Fatal(err)
	}
	select {
	case snap := <-ch:
		if snap.ContentID() != "abc123" {
			t.Fatalf("got %q", snap.ContentID())
		}
	case <-time.After(time.Second):
		t.Fatal("no delivery after ingest")
	}
}

func TestChanges_Conflates(t *testing.T) {
	s, _ := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := s.Changes(ctx)
	// Do not read yet: the replayed empty snapshot sits in the buffer.

	second := `{"head":{"sha":"second"},"data":[]}`
	if err := s.Ingest(context.Background(), []byte(samplePayload), ""); err != nil {
		t.Fatal(err)
	}
	if err := s.Ingest(context.Background(), []byte(second), ""); err != nil {
		t.Fatal(err)
	}

	// A slow consumer observes only the latest value.
	snap := <-ch
	if snap.ContentID() != "second" {
		t.Fatalf("expected latest snapshot, got %q", snap.ContentID())
	}
}

func TestMigration_WipesOwnPrefixOnly(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemory()
	kv.Set(ctx, keySchemaVersion, "1")
	kv.Set(ctx, keySHA, "stale")
	kv.Set(ctx, keyPayload, "stale payload")
	kv.Set(ctx, "updater:check_result", "untouched")

	s, err := New(ctx, kv)
	if err != nil {
		t.Fatal(err)
	}
	if !s.NeedsRefresh() {
		t.Fatal("migration must set the forced refresh flag")
	}

	if _, ok, _ := kv.Get(ctx, keySHA); ok {
		t.Fatal("stale sha survived migration")
	}
	if _, ok, _ := kv.Get(ctx, keyPayload); ok {
		t.Fatal("stale payload survived migration")
	}
	if v, ok, _ := kv.Get(ctx, "updater:check_result"); !ok || v != "untouched" {
		t.Fatal("migration wiped a foreign key")
	}
	if v, _, _ := kv.Get(ctx, keySchemaVersion); v != SchemaVersion {
		t.Fatalf("schema version not bumped: %q", v)
	}
}

func TestNew_RestoresPersistedSnapshot(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemory()
	kv.Set(ctx, keySchemaVersion, SchemaVersion)
	kv.Set(ctx, keySHA, "abc123")
	kv.Set(ctx, keyPayload, samplePayload)

	s, err := New(ctx, kv)
	if err != nil {
		t.Fatal(err)
	}
	if s.NeedsRefresh() {
		t.Fatal("restored store should not need a refresh")
	}
	if s.SHA() != "abc123" || s.Current().Get("a:foo") == nil {
		t.Fatalf("snapshot not restored: sha=%q", s.SHA())
	}
}

func TestBusChannels(t *testing.T) {
	s, _ := newTestStore(t)
	b := bus.New()
	s.AttachBus(b)
	ctx := context.Background()

	var updated string
	b.On(bus.ChanTagUpdated, func(_ context.Context, payload any) (any, error) {
		updated, _ = payload.(string)
		return nil, nil
	})

	// Ingest via the update-tag channel.
	reply, err := b.Emit(ctx, bus.ChanUpdateTag, []byte(samplePayload))
	if err != nil {
		t.Fatalf("update-tag: %v", err)
	}
	if reply != "abc123" {
		t.Fatalf("update-tag reply: %v", reply)
	}
	if updated != "abc123" {
		t.Fatalf("tag-updated not broadcast: %q", updated)
	}

	// get-tag.
	reply, err = b.Emit(ctx, bus.ChanGetTag, "artist:foo")
	if err != nil {
		t.Fatal(err)
	}
	e, ok := reply.(*TagEntry)
	if !ok || e.PlainName != "福" {
		t.Fatalf("get-tag reply: %#v", reply)
	}
	if reply, _ = b.Emit(ctx, bus.ChanGetTag, "a:unknown"); reply != nil {
		t.Fatalf("unknown tag reply: %#v", reply)
	}

	// get-tag-sha.
	reply, err = b.Emit(ctx, bus.ChanGetTagSHA, nil)
	if err != nil || reply != "abc123" {
		t.Fatalf("get-tag-sha: %v / %v", reply, err)
	}

	// get-tag-map: matching sha omits the map.
	reply, err = b.Emit(ctx, bus.ChanGetTagMap, TagMapRequest{IfNotMatch: "abc123"})
	if err != nil {
		t.Fatal(err)
	}
	tm := reply.(TagMapReply)
	if tm.SHA != "abc123" || tm.Map != nil {
		t.Fatalf("matching sha should omit map: %+v", tm)
	}

	// get-tag-map: stale sha gets the map.
	reply, _ = b.Emit(ctx, bus.ChanGetTagMap, TagMapRequest{IfNotMatch: "old"})
	tm = reply.(TagMapReply)
	if tm.Map == nil || tm.Map["a:foo"] == nil {
		t.Fatalf("stale sha should get map: %+v", tm)
	}
}
