package songservice

import (
	"bytes"
	"encoding/json"
	"fmt"

	"songify/internal/song"
)

// ActionProcessText is the only outbound action the host understands.
const ActionProcessText = "process_text"

// Request is the outbound message sent to the song host.
type Request struct {
	Action   string     `json:"action"`
	Text     string     `json:"text"`
	SongType song.Style `json:"songType"`
}

// NewRequest builds a process_text request. The text field carries the
// JSON-encoded extracted content, so the host receives a quoted string.
func NewRequest(extracted string, style song.Style) (Request, error) {
	encoded, err := json.Marshal(extracted)
	if err != nil {
		return Request{}, fmt.Errorf("encode extracted text: %w", err)
	}
	return Request{Action: ActionProcessText, Text: string(encoded), SongType: style}, nil
}

// SongInfo is partial song metadata reported while writing.
type SongInfo struct {
	Title *string `json:"title,omitempty"`
	Style *string `json:"style,omitempty"`
}

// Event is one inbound message. Every field is optional; a nil field means
// "no change" and never clears existing state.
type Event struct {
	AudioURL *string   `json:"audio_url,omitempty"`
	SongInfo *SongInfo `json:"song_info,omitempty"`
	URL      *string   `json:"url,omitempty"`
	Error    *string   `json:"error,omitempty"`
	Lyrics   *string   `json:"lyrics,omitempty"`

	// Note holds a bare string message, which hosts emit for diagnostics.
	Note string `json:"-"`
}

// ResultURL returns the terminal audio URL, preferring audio_url over url.
func (e Event) ResultURL() (string, bool) {
	if e.AudioURL != nil && *e.AudioURL != "" {
		return *e.AudioURL, true
	}
	if e.URL != nil && *e.URL != "" {
		return *e.URL, true
	}
	return "", false
}

// ErrorText returns the reported error, if any.
func (e Event) ErrorText() (string, bool) {
	if e.Error != nil && *e.Error != "" {
		return *e.Error, true
	}
	return "", false
}

// Empty reports whether the event carries no actionable field.
func (e Event) Empty() bool {
	_, hasURL := e.ResultURL()
	_, hasErr := e.ErrorText()
	hasInfo := e.SongInfo != nil && (e.SongInfo.Title != nil || e.SongInfo.Style != nil)
	return !hasURL && !hasErr && !hasInfo && e.Lyrics == nil
}

// ParseEvent decodes a frame payload. Objects map onto Event fields; a bare
// JSON string becomes a Note.
func ParseEvent(payload []byte) (Event, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var note string
		if err := json.Unmarshal(trimmed, &note); err != nil {
			return Event{}, fmt.Errorf("decode note: %w", err)
		}
		return Event{Note: note}, nil
	}
	var evt Event
	if err := json.Unmarshal(trimmed, &evt); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return evt, nil
}

// Ptr is a small helper for building events in tests and fakes.
func Ptr(value string) *string {
	return &value
}
