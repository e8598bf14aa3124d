package tabs

import (
	"context"
	"encoding/json"
	"sync"

	"songify/internal/song"
)

// Call records one message delivered through a Fake.
type Call struct {
	TabID   song.TabID
	Message Message
}

// Fake is an in-memory Messenger for tests. Handlers are keyed by action.
type Fake struct {
	mu       sync.Mutex
	calls    []Call
	handlers map[string]func(song.TabID, Message) (json.RawMessage, error)
}

// NewFake returns a Fake with no handlers; unhandled actions fail with ErrNoEndpoint.
func NewFake() *Fake {
	return &Fake{handlers: make(map[string]func(song.TabID, Message) (json.RawMessage, error))}
}

// Handle registers the reply function for an action.
func (f *Fake) Handle(action string, fn func(song.TabID, Message) (json.RawMessage, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[action] = fn
}

// SendMessage implements Messenger.
func (f *Fake) SendMessage(ctx context.Context, tabID song.TabID, msg Message) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.calls = append(f.calls, Call{TabID: tabID, Message: msg})
	fn := f.handlers[msg.Action]
	f.mu.Unlock()
	if fn == nil {
		return nil, ErrNoEndpoint
	}
	return fn(tabID, msg)
}

// Calls returns delivered messages, optionally filtered by action.
func (f *Fake) Calls(action string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.calls {
		if action == "" || c.Message.Action == action {
			out = append(out, c)
		}
	}
	return out
}
