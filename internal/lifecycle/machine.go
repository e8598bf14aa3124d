// Package lifecycle holds the song request state machine. Handle is a pure
// transition function: it mutates only the machine's own request slot and
// returns the side effects the caller must perform.
package lifecycle

import (
	"time"

	"songify/internal/handshake"
	"songify/internal/persist"
	"songify/internal/song"
	"songify/internal/songservice"
)

// Options tunes timer-related behaviour.
type Options struct {
	PersistenceGrace              time.Duration
	CancelPersistenceOnNewRequest bool
}

// Outcome is the result of handling one event.
type Outcome struct {
	From     song.State
	To       song.State
	Commands []Command
	// Reason explains why an event produced no effect. Empty otherwise.
	Reason string
}

// Transitioned reports whether the state changed.
func (o Outcome) Transitioned() bool {
	return o.From != o.To
}

// Machine owns the single request slot.
type Machine struct {
	opts Options
	req  song.Request

	ticking    bool
	pendingURL string
	armedURL   string
}

// New returns an idle machine.
func New(opts Options) *Machine {
	if opts.PersistenceGrace <= 0 {
		opts.PersistenceGrace = persist.DefaultGrace
	}
	return &Machine{opts: opts, req: song.Idle()}
}

// Request returns a copy of the current request.
func (m *Machine) Request() song.Request {
	return m.req
}

// Ticking reports whether the ticker should be running.
func (m *Machine) Ticking() bool {
	return m.ticking
}

// PendingHandshakeURL returns the URL whose handshake is still running.
func (m *Machine) PendingHandshakeURL() string {
	return m.pendingURL
}

// Handle applies evt and returns the resulting side effects.
func (m *Machine) Handle(evt Event) Outcome {
	from := m.req.State
	var out Outcome
	switch e := evt.(type) {
	case Triggered:
		out = m.onTriggered(e)
	case ExtractionFailed:
		out = Outcome{Reason: "extraction failed; request not started"}
	case ServiceMessage:
		out = m.onServiceMessage(e)
	case SendFailed:
		out = m.onSendFailed(e)
	case Tick:
		out = m.onTick(e)
	case PlaybackDelivered:
		out = m.onDelivered(e)
	case HandshakeAbandoned:
		out = m.onAbandoned(e)
	default:
		out = Outcome{Reason: "unknown event"}
	}
	out.From = from
	out.To = m.req.State
	return out
}

func (m *Machine) onTriggered(e Triggered) Outcome {
	var cmds []Command
	if m.opts.CancelPersistenceOnNewRequest && m.armedURL != "" {
		cmds = append(cmds, CancelPersistence{URL: m.armedURL})
		m.armedURL = ""
	}

	style := e.Style
	if !style.Valid() {
		style = song.DefaultStyle
	}
	m.req = song.Request{
		ID:          e.RequestID,
		OriginTabID: e.TabID,
		Style:       style,
		Title:       e.TabTitle,
		State:       song.StateWriting,
		StartedAt:   e.At,
		UpdatedAt:   e.At,
	}
	m.pendingURL = ""

	req, err := songservice.NewRequest(e.Text, style)
	if err != nil {
		m.req.LastError = err.Error()
		m.ticking = false
		return Outcome{Commands: append(cmds, StopTicker{}, renderAt(m.req, e.At, false), SaveSnapshot{Request: m.req})}
	}

	m.ticking = true
	cmds = append(cmds,
		SendRequest{RequestID: e.RequestID, Request: req},
		StartTicker{},
		renderAt(m.req, e.At, true),
		SaveSnapshot{Request: m.req},
	)
	return Outcome{Commands: cmds}
}

func (m *Machine) onServiceMessage(e ServiceMessage) Outcome {
	if m.req.State == song.StateIdle {
		return Outcome{Reason: "no active request"}
	}
	msg := e.Message
	changed := m.mergeMetadata(msg)

	var cmds []Command
	var reason string

	if errText, ok := msg.ErrorText(); ok && m.req.LastError != errText {
		m.req.LastError = errText
		changed = true
		if m.req.State == song.StateWriting {
			cmds = append(cmds, Notify{Kind: NotifyFailed, Title: m.req.Title, Detail: errText})
		}
	}

	if url, ok := msg.ResultURL(); ok {
		switch {
		case m.req.State == song.StatePlaying && m.req.AudioURL == url:
			reason = "duplicate result for playing song"
		case m.pendingURL == url:
			reason = "handshake already running for url"
		case !m.req.HasOrigin():
			// Nowhere to play it; keep the song by scheduling the download.
			m.req.AudioURL = url
			changed = true
			cmds = append(cmds, m.arm(url, m.req.Title, e.At))
			reason = "no origin tab; persistence only"
		default:
			m.req.AudioURL = url
			m.req.LastError = ""
			m.pendingURL = url
			changed = true
			cmds = append(cmds, BeginHandshake{Target: handshake.Target{
				RequestID: m.req.ID,
				TabID:     m.req.OriginTabID,
				URL:       url,
				Title:     m.req.Title,
			}})
		}
	}

	if !changed {
		if reason == "" {
			reason = "no metadata change"
		}
		return Outcome{Commands: cmds, Reason: reason}
	}
	m.req.UpdatedAt = e.At
	cmds = append(cmds, renderAt(m.req, e.At, m.ticking), SaveSnapshot{Request: m.req})
	return Outcome{Commands: cmds, Reason: reason}
}

// mergeMetadata applies present fields only. Empty strings count as absent so
// merges stay idempotent.
func (m *Machine) mergeMetadata(msg songservice.Event) bool {
	changed := false
	if info := msg.SongInfo; info != nil {
		if info.Title != nil && *info.Title != "" && *info.Title != m.req.Title {
			m.req.Title = *info.Title
			changed = true
		}
		if info.Style != nil {
			if style := song.Style(*info.Style); style.Valid() && style != m.req.Style {
				m.req.Style = style
				changed = true
			}
		}
	}
	if msg.Lyrics != nil && *msg.Lyrics != "" && *msg.Lyrics != m.req.Lyrics {
		m.req.Lyrics = *msg.Lyrics
		changed = true
	}
	return changed
}

func (m *Machine) onSendFailed(e SendFailed) Outcome {
	if e.RequestID != m.req.ID || m.req.State != song.StateWriting {
		return Outcome{Reason: "stale send failure"}
	}
	if e.Err != nil {
		m.req.LastError = e.Err.Error()
	} else {
		m.req.LastError = "request not delivered"
	}
	m.req.UpdatedAt = e.At
	m.ticking = false
	return Outcome{Commands: []Command{
		StopTicker{},
		renderAt(m.req, e.At, false),
		Notify{Kind: NotifyFailed, Title: m.req.Title, Detail: m.req.LastError},
		SaveSnapshot{Request: m.req},
	}}
}

func (m *Machine) onTick(e Tick) Outcome {
	if !m.ticking || m.req.State != song.StateWriting {
		return Outcome{Reason: "stale tick"}
	}
	return Outcome{Commands: []Command{renderAt(m.req, e.At, true)}}
}

func (m *Machine) onDelivered(e PlaybackDelivered) Outcome {
	if m.pendingURL == e.Target.URL {
		m.pendingURL = ""
	}
	if e.Target.RequestID != m.req.ID {
		// The request was overwritten while the handshake ran. Its song still
		// played, so it still gets saved.
		return Outcome{
			Commands: []Command{m.arm(e.Target.URL, e.Target.Title, e.At)},
			Reason:   "stale delivery; persistence only",
		}
	}
	if m.req.State == song.StatePlaying && m.req.AudioURL == e.Target.URL {
		return Outcome{Reason: "already playing url"}
	}

	m.req.State = song.StatePlaying
	m.req.AudioURL = e.Target.URL
	m.req.StartedAt = time.Time{}
	m.req.OriginTabID = song.TabNone
	m.req.LastError = ""
	m.req.UpdatedAt = e.At
	m.ticking = false

	return Outcome{Commands: []Command{
		StopTicker{},
		renderAt(m.req, e.At, false),
		m.arm(e.Target.URL, m.req.Title, e.At),
		Notify{Kind: NotifyReady, Title: m.req.Title, Detail: e.Target.URL},
		SaveSnapshot{Request: m.req},
	}}
}

func (m *Machine) onAbandoned(e HandshakeAbandoned) Outcome {
	if m.pendingURL == e.Target.URL {
		m.pendingURL = ""
	}
	if e.Target.RequestID != m.req.ID || m.req.State != song.StateWriting {
		return Outcome{Reason: "stale abandonment"}
	}
	m.req.OriginTabID = song.TabNone
	m.req.LastError = "tab never became ready"
	if e.Err != nil {
		m.req.LastError += ": " + e.Err.Error()
	}
	m.req.UpdatedAt = e.At
	m.ticking = false
	return Outcome{Commands: []Command{
		StopTicker{},
		renderAt(m.req, e.At, false),
		Notify{Kind: NotifyFailed, Title: m.req.Title, Detail: m.req.LastError},
		SaveSnapshot{Request: m.req},
	}}
}

func (m *Machine) arm(url, title string, at time.Time) Command {
	m.armedURL = url
	return ArmPersistence{Job: persist.Job{
		URL:      url,
		Filename: song.FileName(title),
		FireAt:   at.Add(m.opts.PersistenceGrace),
	}}
}
