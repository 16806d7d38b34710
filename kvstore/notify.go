package kvstore

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

type listenerReg struct {
	key string
	l   Listener
}

// notifier implements the On/Off/notify part of Store, shared by the Memory
// and SQLite implementations.
type notifier struct {
	mu        sync.RWMutex
	listeners map[Token]listenerReg
	logger    *slog.Logger
}

func newNotifier(logger *slog.Logger) *notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &notifier{
		listeners: make(map[Token]listenerReg),
		logger:    logger,
	}
}

func (n *notifier) On(key string, l Listener) Token {
	tok := Token(uuid.NewString())
	n.mu.Lock()
	n.listeners[tok] = listenerReg{key: key, l: l}
	n.mu.Unlock()
	return tok
}

func (n *notifier) Off(token Token) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.listeners[token]; !ok {
		return false
	}
	delete(n.listeners, token)
	return true
}

// notify fires all listeners registered for key. A listener panic is
// recovered and logged; a bad observer must not break the write path.
func (n *notifier) notify(key, oldValue, newValue string, remote bool) {
	n.mu.RLock()
	var fire []Listener
	for _, reg := range n.listeners {
		if reg.key == key {
			fire = append(fire, reg.l)
		}
	}
	n.mu.RUnlock()

	for _, l := range fire {
		if err := n.fireOne(l, key, oldValue, newValue, remote); err != nil {
			n.logger.Error("kvstore: listener panic", "key", key, "error", err)
		}
	}
}

func (n *notifier) fireOne(l Listener, key, oldValue, newValue string, remote bool) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("kvstore: listener panic: %v", r)
		}
	}()
	l(key, oldValue, newValue, remote)
	return nil
}
