package dataset

import (
	"context"
	"fmt"

	"github.com/lixinlkmn2004/tagsyringe/bus"
)

// TagMapRequest is the payload for the get-tag-map channel. IfNotMatch is
// the caller's current sha; when it already matches the live snapshot the
// reply omits the map (cheap long-poll-style optimization).
type TagMapRequest struct {
	IfNotMatch string
}

// TagMapReply is the get-tag-map reply. Map is nil when the caller's sha
// matched; otherwise it is the live snapshot's entry map (shared, read-only).
type TagMapReply struct {
	SHA string
	Map map[string]*TagEntry
}

type busPublisher interface {
	Broadcast(ctx context.Context, channel string, payload any)
}

// AttachBus registers the store's channels on b: get-tag, get-tag-map,
// get-tag-sha and update-tag. After attachment every ingest also broadcasts
// tag-updated with the new content identity.
func (s *Store) AttachBus(b *bus.Bus) {
	s.mu.Lock()
	s.bus = b
	s.mu.Unlock()

	b.On(bus.ChanGetTag, func(_ context.Context, payload any) (any, error) {
		key, ok := payload.(string)
		if !ok {
			return nil, fmt.Errorf("dataset: get-tag payload must be string, got %T", payload)
		}
		e := s.Current().Get(key)
		if e == nil {
			return nil, nil
		}
		return e, nil
	})

	b.On(bus.ChanGetTagSHA, func(context.Context, any) (any, error) {
		return s.SHA(), nil
	})

	b.On(bus.ChanGetTagMap, func(_ context.Context, payload any) (any, error) {
		req, ok := payload.(TagMapRequest)
		if !ok {
			return nil, fmt.Errorf("dataset: get-tag-map payload must be TagMapRequest, got %T", payload)
		}
		snap := s.Current()
		reply := TagMapReply{SHA: snap.ContentID()}
		if req.IfNotMatch == "" || req.IfNotMatch != snap.ContentID() {
			reply.Map = snap.Entries()
		}
		return reply, nil
	})

	b.On(bus.ChanUpdateTag, func(ctx context.Context, payload any) (any, error) {
		var raw []byte
		switch v := payload.(type) {
		case []byte:
			raw = v
		case string:
			raw = []byte(v)
		default:
			return nil, fmt.Errorf("dataset: update-tag payload must be []byte, got %T", payload)
		}
		if err := s.Ingest(ctx, raw, ""); err != nil {
			return nil, err
		}
		return s.SHA(), nil
	})
}

// publishUpdated broadcasts tag-updated when a bus is attached. Broadcast is
// fire-and-forget notification; consumers' failures never affect ingest.
func (s *Store) publishUpdated(ctx context.Context, sha string) {
	s.mu.RLock()
	b := s.bus
	s.mu.RUnlock()
	if b != nil {
		b.Broadcast(ctx, bus.ChanTagUpdated, sha)
	}
}
