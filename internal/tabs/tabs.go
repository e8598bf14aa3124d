// Package tabs speaks the per-tab extraction endpoint protocol: text
// extraction, readiness probes, and playback commands.
package tabs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"songify/internal/song"
)

// Actions understood by the extraction endpoint.
const (
	ActionGetText   = "getText"
	ActionPing      = "ping"
	ActionPlayAudio = "playAudio"
)

// StatusReady is the probe reply of a loaded endpoint.
const StatusReady = "ready"

// ErrNoEndpoint reports a tab without a loaded extraction endpoint.
var ErrNoEndpoint = errors.New("no extraction endpoint in tab")

// ErrUnreachable reports that a message could not be handed to the browser
// at all. Transports wrap it.
var ErrUnreachable = errors.New("browser unreachable")

// ErrMalformedReply reports a reply that arrived but could not be decoded.
var ErrMalformedReply = errors.New("malformed tab reply")

// ErrEmptyText reports a successful extraction that produced nothing usable.
var ErrEmptyText = errors.New("extracted text is empty")

// Message is sent to a tab.
type Message struct {
	Action string `json:"action"`
	URL    string `json:"url,omitempty"`
}

// Tab describes a browser tab as reported by the extension.
type Tab struct {
	ID    song.TabID `json:"id"`
	Title string     `json:"title"`
	URL   string     `json:"url,omitempty"`
}

// Messenger delivers a message to one tab and returns its raw reply.
type Messenger interface {
	SendMessage(ctx context.Context, tabID song.TabID, msg Message) (json.RawMessage, error)
}

type statusReply struct {
	Status string `json:"status"`
}

type textReply struct {
	Text string `json:"text"`
}

// ExtractText asks the tab for its article text. Replies may be an object
// with a text field or a bare string.
func ExtractText(ctx context.Context, m Messenger, tabID song.TabID) (string, error) {
	raw, err := m.SendMessage(ctx, tabID, Message{Action: ActionGetText})
	if err != nil {
		return "", fmt.Errorf("get text from tab %d: %w", tabID, err)
	}
	text, err := parseText(raw)
	if err != nil {
		return "", fmt.Errorf("get text from tab %d: %w", tabID, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyText
	}
	return text, nil
}

func parseText(raw json.RawMessage) (string, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return "", ErrEmptyText
	}
	if strings.HasPrefix(trimmed, `"`) {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return "", fmt.Errorf("decode text reply: %w", err)
		}
		return text, nil
	}
	var reply textReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return "", fmt.Errorf("decode text reply: %w", err)
	}
	return reply.Text, nil
}

// Probe reports whether the tab's endpoint is loaded. Any failure counts as
// not ready; the error is returned for logging only.
func Probe(ctx context.Context, m Messenger, tabID song.TabID) (bool, error) {
	raw, err := m.SendMessage(ctx, tabID, Message{Action: ActionPing})
	if err != nil {
		return false, err
	}
	var reply statusReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return false, fmt.Errorf("decode ping reply: %w", err)
	}
	if reply.Status != StatusReady {
		return false, fmt.Errorf("tab reported status %q", reply.Status)
	}
	return true, nil
}

// PlayAudio delivers the playback command and returns the tab's status text.
// An undecodable reply yields ErrMalformedReply; the command still arrived.
func PlayAudio(ctx context.Context, m Messenger, tabID song.TabID, url string) (string, error) {
	raw, err := m.SendMessage(ctx, tabID, Message{Action: ActionPlayAudio, URL: url})
	if err != nil {
		return "", fmt.Errorf("play audio in tab %d: %w", tabID, err)
	}
	if len(raw) == 0 {
		return "", nil
	}
	var reply statusReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return "", fmt.Errorf("%w: playAudio: %w", ErrMalformedReply, err)
	}
	return reply.Status, nil
}

// NotDelivered reports whether err means a message never reached the tab's
// endpoint. Any other failure may have happened after the tab acted on it.
func NotDelivered(err error) bool {
	return errors.Is(err, ErrNoEndpoint) || errors.Is(err, ErrUnreachable)
}
