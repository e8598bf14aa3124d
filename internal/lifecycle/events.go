package lifecycle

import (
	"time"

	"songify/internal/handshake"
	"songify/internal/persist"
	"songify/internal/song"
	"songify/internal/songservice"
)

// Event is an input to the machine.
type Event interface {
	eventName() string
}

// Triggered starts a fresh request after extraction succeeded.
type Triggered struct {
	RequestID string
	TabID     song.TabID
	TabTitle  string
	Style     song.Style
	Text      string
	At        time.Time
}

// ExtractionFailed reports a trigger whose page text could not be read.
type ExtractionFailed struct {
	TabID song.TabID
	Err   error
	At    time.Time
}

// ServiceMessage carries one inbound song host event.
type ServiceMessage struct {
	Message songservice.Event
	At      time.Time
}

// SendFailed reports that the outbound request never reached the host.
type SendFailed struct {
	RequestID string
	Err       error
	At        time.Time
}

// Tick is one elapsed-time ticker period.
type Tick struct {
	At time.Time
}

// PlaybackDelivered reports a completed handshake.
type PlaybackDelivered struct {
	Target handshake.Target
	At     time.Time
}

// HandshakeAbandoned reports a handshake that hit its attempt ceiling.
type HandshakeAbandoned struct {
	Target handshake.Target
	Err    error
	At     time.Time
}

func (Triggered) eventName() string          { return "triggered" }
func (ExtractionFailed) eventName() string   { return "extraction_failed" }
func (ServiceMessage) eventName() string     { return "service_message" }
func (SendFailed) eventName() string         { return "send_failed" }
func (Tick) eventName() string               { return "tick" }
func (PlaybackDelivered) eventName() string  { return "playback_delivered" }
func (HandshakeAbandoned) eventName() string { return "handshake_abandoned" }

// EventName returns a stable label for logging.
func EventName(evt Event) string {
	if evt == nil {
		return "unknown"
	}
	return evt.eventName()
}

// Command is a side effect requested by the machine.
type Command interface {
	commandName() string
}

// SendRequest forwards a request to the song host.
type SendRequest struct {
	RequestID string
	Request   songservice.Request
}

// Render updates the user-visible status string and badge.
type Render struct {
	Status string
	Badge  string
}

// StartTicker begins periodic Tick events.
type StartTicker struct{}

// StopTicker cancels the ticker. No Tick is delivered afterwards.
type StopTicker struct{}

// BeginHandshake starts probe-then-deliver against the origin tab.
type BeginHandshake struct {
	Target handshake.Target
}

// ArmPersistence schedules the deferred download.
type ArmPersistence struct {
	Job persist.Job
}

// CancelPersistence drops a pending download for URL.
type CancelPersistence struct {
	URL string
}

// SaveSnapshot persists the current request.
type SaveSnapshot struct {
	Request song.Request
}

// NotifyKind classifies user notifications.
type NotifyKind string

const (
	NotifyReady  NotifyKind = "ready"
	NotifyFailed NotifyKind = "failed"
)

// Notify asks for a push notification.
type Notify struct {
	Kind   NotifyKind
	Title  string
	Detail string
}

func (SendRequest) commandName() string       { return "send_request" }
func (Render) commandName() string            { return "render" }
func (StartTicker) commandName() string       { return "start_ticker" }
func (StopTicker) commandName() string        { return "stop_ticker" }
func (BeginHandshake) commandName() string    { return "begin_handshake" }
func (ArmPersistence) commandName() string    { return "arm_persistence" }
func (CancelPersistence) commandName() string { return "cancel_persistence" }
func (SaveSnapshot) commandName() string      { return "save_snapshot" }
func (Notify) commandName() string            { return "notify" }

// CommandName returns a stable label for logging.
func CommandName(cmd Command) string {
	if cmd == nil {
		return "unknown"
	}
	return cmd.commandName()
}
