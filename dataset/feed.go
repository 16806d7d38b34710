package dataset

import (
	"context"
	"sync"
)

// feed is a conflating replay-latest stream: a new subscriber immediately
// receives the current snapshot, and a slow subscriber only ever observes
// the latest published value (intermediate snapshots are dropped, never
// queued). One producer, no backpressure — deliberately not a general
// reactive-streams abstraction.
type feed struct {
	mu   sync.Mutex
	subs map[int]chan *Snapshot
	next int
}

func newFeed() *feed {
	return &feed{subs: make(map[int]chan *Snapshot)}
}

// subscribe registers a subscriber seeded with current. The channel is
// closed when ctx is done.
func (f *feed) subscribe(ctx context.Context, current *Snapshot) <-chan *Snapshot {
	ch := make(chan *Snapshot, 1)
	ch <- current

	f.mu.Lock()
	id := f.next
	f.next++
	f.subs[id] = ch
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		delete(f.subs, id)
		close(ch)
		f.mu.Unlock()
	}()

	return ch
}

// publish conflates: any undelivered previous value is replaced by snap.
func (f *feed) publish(snap *Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}
