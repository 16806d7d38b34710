// Package bus provides the in-process publish/subscribe message bus that
// decouples dataset producers (updater, dataset store) from consumers
// (patcher, host UI). Channels are named; a channel may carry either
// request/reply traffic (Emit) or fire-and-forget notifications (Broadcast).
//
//	b := bus.New()
//	tok := b.On(bus.ChanGetTagSHA, func(ctx context.Context, _ any) (any, error) {
//		return store.SHA(), nil
//	})
//	defer b.Off(tok)
//
//	sha, err := b.Emit(ctx, bus.ChanGetTagSHA, nil)
//
// Emit dispatches to every registered handler concurrently and resolves with
// the first handler to complete, but only returns after all handlers have
// finished — a slow handler's failure is still observable even though its
// result is not the one propagated. Broadcast never fails the caller:
// zero consumers is fine and handler errors are logged and swallowed.
package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Handler processes one emission on a channel. The payload is whatever the
// emitter passed; handlers type-assert to the channel's documented contract.
type Handler func(ctx context.Context, payload any) (any, error)

// Token identifies one subscription for Off.
type Token string

type subscription struct {
	token   Token
	channel string
	h       Handler
}

// Bus is an in-process message bus. Safe for concurrent use.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]*subscription // per channel, in registration order
	byTok  map[Token]*subscription
	logger *slog.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets a custom logger for the bus.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) { b.logger = l }
}

// New creates an empty Bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		subs:   make(map[string][]*subscription),
		byTok:  make(map[Token]*subscription),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// On registers a handler for a channel. Multiple handlers per channel fan
// out; they are launched in registration order, but invocation and
// completion order are unspecified. Replies are indexed by registration
// order regardless.
func (b *Bus) On(channel string, h Handler) Token {
	sub := &subscription{
		token:   Token(uuid.NewString()),
		channel: channel,
		h:       h,
	}
	b.mu.Lock()
	b.subs[channel] = append(b.subs[channel], sub)
	b.byTok[sub.token] = sub
	b.mu.Unlock()
	return sub.token
}

// Off removes one subscription. Reports whether it was present.
func (b *Bus) Off(token Token) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.byTok[token]
	if !ok {
		return false
	}
	delete(b.byTok, token)

	list := b.subs[sub.channel]
	for i, s := range list {
		if s.token == token {
			b.subs[sub.channel] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(b.subs[sub.channel]) == 0 {
		delete(b.subs, sub.channel)
	}
	return true
}

// handlers returns a snapshot of the channel's subscription list.
func (b *Bus) handlers(channel string) []*subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()
	list := b.subs[channel]
	out := make([]*subscription, len(list))
	copy(out, list)
	return out
}

// Emit sends a request/reply message. With zero handlers it fails with
// *NoHandlerError. All handlers run concurrently; the returned value is the
// first handler's to complete. Emit returns only after every handler has
// finished: if any handler failed, the error is an *EmitError carrying the
// original request, the first successful reply (if any) and all replies in
// registration order, for diagnostics.
func (b *Bus) Emit(ctx context.Context, channel string, payload any) (any, error) {
	handlers := b.handlers(channel)
	if len(handlers) == 0 {
		return nil, &NoHandlerError{Channel: channel}
	}

	replies := make([]any, len(handlers))
	errs := make([]error, len(handlers))

	var (
		firstMu    sync.Mutex
		firstReply any
		firstSet   bool
	)

	var wg sync.WaitGroup
	for i, sub := range handlers {
		wg.Add(1)
		go func(i int, h Handler) {
			defer wg.Done()
			reply, err := b.dispatch(ctx, channel, h, payload)
			replies[i] = reply
			errs[i] = err
			if err == nil {
				firstMu.Lock()
				if !firstSet {
					firstReply = reply
					firstSet = true
				}
				firstMu.Unlock()
			}
		}(i, sub.h)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, &EmitError{
				Channel:    channel,
				Request:    payload,
				FirstReply: firstReply,
				Replies:    replies,
				Errs:       errs,
			}
		}
	}
	return firstReply, nil
}

// Broadcast sends a fire-and-forget notification. Zero handlers is not an
// error. Handler errors (and panics) are logged and swallowed. Broadcast
// returns after all handlers have run, so callers that need ordering with a
// subsequent action get it.
func (b *Bus) Broadcast(ctx context.Context, channel string, payload any) {
	handlers := b.handlers(channel)
	if len(handlers) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, sub := range handlers {
		wg.Add(1)
		go func(h Handler) {
			defer wg.Done()
			if _, err := b.dispatch(ctx, channel, h, payload); err != nil {
				b.logger.Error("bus: broadcast handler failed",
					"channel", channel, "error", err)
			}
		}(sub.h)
	}
	wg.Wait()
}

// dispatch invokes one handler, converting a panic into an error so a bad
// consumer cannot take down the emitter.
func (b *Bus) dispatch(ctx context.Context, channel string, h Handler, payload any) (reply any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("bus: handler panic on %s: %v", channel, r)
		}
	}()
	return h(ctx, payload)
}
