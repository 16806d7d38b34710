package bus

import (
	"errors"
	"fmt"
)

// NoHandlerError is returned by Emit when a request/reply message is sent on
// a channel with no registered handlers. Broadcast never produces it.
type NoHandlerError struct {
	Channel string
}

func (e *NoHandlerError) Error() string {
	return fmt.Sprintf("bus: no handler for channel: %s", e.Channel)
}

// EmitError is returned by Emit when at least one handler failed. It carries
// the original request and every handler's outcome so the caller can render
// a meaningful status message: FirstReply is the first successful reply (nil
// if none), Replies and Errs are indexed in registration order.
type EmitError struct {
	Channel    string
	Request    any
	FirstReply any
	Replies    []any
	Errs       []error
}

func (e *EmitError) Error() string {
	n := 0
	for _, err := range e.Errs {
		if err != nil {
			n++
		}
	}
	return fmt.Sprintf("bus: %d of %d handlers failed on %s: %v",
		n, len(e.Errs), e.Channel, errors.Join(e.Errs...))
}

// Unwrap exposes the individual handler errors to errors.Is/As.
func (e *EmitError) Unwrap() []error {
	var out []error
	for _, err := range e.Errs {
		if err != nil {
			out = append(out, err)
		}
	}
	return out
}
