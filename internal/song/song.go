// Package song holds the song request model shared by the lifecycle machine
// and its adapters.
package song

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"songify/internal/textutil"
)

// Style is the song format requested from the native host.
type Style string

const (
	StyleMusical     Style = "musical"
	StyleSpoken      Style = "spoken"
	StyleMeme        Style = "meme"
	StyleCute        Style = "cute"
	StyleInformative Style = "informative"
	StyleVerbatim    Style = "verbatim"
)

// DefaultStyle is used by the plain trigger action.
const DefaultStyle = StyleMusical

// AllStyles lists styles in menu order.
var AllStyles = []Style{
	StyleMusical,
	StyleSpoken,
	StyleMeme,
	StyleCute,
	StyleInformative,
	StyleVerbatim,
}

var titleCaser = cases.Title(language.English)

// Valid reports whether s is one of AllStyles.
func (s Style) Valid() bool {
	for _, candidate := range AllStyles {
		if s == candidate {
			return true
		}
	}
	return false
}

// Label returns the context menu label for the style.
func (s Style) Label() string {
	if s == StyleVerbatim {
		return "Use page text as lyrics"
	}
	return titleCaser.String(string(s))
}

// ParseStyle converts user input to a Style. Empty input yields DefaultStyle.
func ParseStyle(value string) (Style, error) {
	trimmed := Style(strings.ToLower(strings.TrimSpace(value)))
	if trimmed == "" {
		return DefaultStyle, nil
	}
	if !trimmed.Valid() {
		return "", fmt.Errorf("unknown song style %q", value)
	}
	return trimmed, nil
}

// State is a request lifecycle state.
type State string

const (
	StateIdle    State = "idle"
	StateWriting State = "writing"
	StatePlaying State = "playing"
)

// TabID identifies a browser tab.
type TabID int

// TabNone marks the absence of an origin tab.
const TabNone TabID = -1

// Request is the single song request tracked by the lifecycle machine.
type Request struct {
	ID          string    `json:"id"`
	OriginTabID TabID     `json:"origin_tab_id"`
	Style       Style     `json:"style"`
	Title       string    `json:"title"`
	State       State     `json:"state"`
	AudioURL    string    `json:"audio_url,omitempty"`
	Lyrics      string    `json:"lyrics,omitempty"`
	StartedAt   time.Time `json:"started_at,omitzero"`
	LastError   string    `json:"last_error,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitzero"`
}

// Idle returns the initial request slot.
func Idle() Request {
	return Request{OriginTabID: TabNone, State: StateIdle}
}

// HasOrigin reports whether the request still targets a tab.
func (r Request) HasOrigin() bool {
	return r.OriginTabID != TabNone
}

// Elapsed reports time spent writing, or zero outside writing.
func (r Request) Elapsed(now time.Time) time.Duration {
	if r.State != StateWriting || r.StartedAt.IsZero() {
		return 0
	}
	if d := now.Sub(r.StartedAt); d > 0 {
		return d
	}
	return 0
}

// FileName builds the suggested download name for a song title.
func FileName(title string) string {
	base := textutil.SanitizeFileName(title)
	if base == "" {
		base = "song"
	}
	return base + ".mp3"
}

// FormatElapsed renders a duration as m:ss.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
