package ipc

import "time"

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// RequestInfo mirrors the tracked song request.
type RequestInfo struct {
	ID          string    `json:"id"`
	State       string    `json:"state"`
	Style       string    `json:"style"`
	Title       string    `json:"title"`
	OriginTabID int       `json:"origin_tab_id"`
	AudioURL    string    `json:"audio_url"`
	Lyrics      string    `json:"lyrics"`
	LastError   string    `json:"last_error"`
	StartedAt   time.Time `json:"started_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PendingDownload describes the armed persistence job.
type PendingDownload struct {
	URL      string    `json:"url"`
	Filename string    `json:"filename"`
	FireAt   time.Time `json:"fire_at"`
}

// StatusResponse represents daemon status information.
type StatusResponse struct {
	Running         bool             `json:"running"`
	PID             int              `json:"pid"`
	Request         RequestInfo      `json:"request"`
	StatusText      string           `json:"status_text"`
	Badge           string           `json:"badge"`
	BridgeConnected bool             `json:"bridge_connected"`
	BridgeAddress   string           `json:"bridge_address"`
	PendingDownload *PendingDownload `json:"pending_download"`
	Extracting      int              `json:"extracting"`
	PersistenceMode string           `json:"persistence_mode"`
	DatabasePath    string           `json:"database_path"`
	LockPath        string           `json:"lock_path"`
}

// TriggerRequest starts a song for a tab. A non-empty Text skips page
// extraction.
type TriggerRequest struct {
	TabID    int    `json:"tab_id"`
	TabTitle string `json:"tab_title"`
	Style    string `json:"style"`
	Text     string `json:"text"`
}

// TriggerResponse returns the new request id.
type TriggerResponse struct {
	RequestID string `json:"request_id"`
}

// SettingsGetRequest fetches stored settings.
type SettingsGetRequest struct{}

// SettingsGetResponse reports masked credentials.
type SettingsGetResponse struct {
	OpenAIAPIKey string `json:"openai_api_key"`
	PiAPIKey     string `json:"piapi_key"`
}

// SettingsSetRequest updates credentials. Empty fields are left unchanged.
type SettingsSetRequest struct {
	OpenAIAPIKey string `json:"openai_api_key"`
	PiAPIKey     string `json:"piapi_key"`
}

// SettingsSetResponse reports whether a restart is needed for changes to apply.
type SettingsSetResponse struct {
	Updated         bool `json:"updated"`
	RestartRequired bool `json:"restart_required"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
