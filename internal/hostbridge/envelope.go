// Package hostbridge exposes a websocket endpoint the browser extension
// connects to. Over it the daemon messages tabs, renders status, and asks the
// browser to download songs; the extension sends trigger actions back.
package hostbridge

import (
	"encoding/json"

	"songify/internal/song"
	"songify/internal/tabs"
)

// Envelope types.
const (
	TypeHello      = "hello"
	TypeMenu       = "menu"
	TypeTrigger    = "trigger"
	TypeTabMessage = "tab_message"
	TypeRender     = "render"
	TypeDownload   = "download"
	TypeResponse   = "response"
)

// ErrorNoEndpoint is the error code the extension reports when a tab has no
// content script listening.
const ErrorNoEndpoint = "no_endpoint"

// Envelope frames every websocket message.
type Envelope struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	TabID   song.TabID      `json:"tab_id,omitempty"`
	OK      bool            `json:"ok,omitempty"`
	Error   string          `json:"error,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// TriggerPayload is sent by the extension for button and menu actions.
type TriggerPayload struct {
	Tab   tabs.Tab `json:"tab"`
	Style string   `json:"style,omitempty"`
}

// DownloadPayload asks the browser to save a file.
type DownloadPayload struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

// MenuItem is one context menu entry.
type MenuItem struct {
	Style song.Style `json:"style"`
	Label string     `json:"label"`
}

// HelloPayload announces the extension version.
type HelloPayload struct {
	Version string `json:"version"`
}

func menuItems() []MenuItem {
	items := make([]MenuItem, 0, len(song.AllStyles))
	for _, style := range song.AllStyles {
		items = append(items, MenuItem{Style: style, Label: style.Label()})
	}
	return items
}

func mustPayload(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
