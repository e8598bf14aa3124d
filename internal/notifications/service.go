package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"songify/internal/config"
	"songify/internal/textutil"
)

const userAgent = "Songify-Go/0.1.0"

// Service defines the notification surface used by the daemon.
type Service interface {
	NotifySongReady(ctx context.Context, title, url string) error
	NotifySongFailed(ctx context.Context, title, detail string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint:  topic,
		client:    &http.Client{Timeout: timeout},
		songReady: cfg.Notifications.SongReady,
		errors:    cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
	click    string
}

type ntfyService struct {
	endpoint  string
	client    *http.Client
	songReady bool
	errors    bool
}

func (n *ntfyService) NotifySongReady(ctx context.Context, title, url string) error {
	if !n.songReady {
		return nil
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = "Untitled"
	}
	data := payload{
		title:   "Songify - Song Ready",
		message: fmt.Sprintf("🎵 Song ready: %s", title),
		tags:    []string{"songify", "song", "ready"},
		click:   strings.TrimSpace(url),
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifySongFailed(ctx context.Context, title, detail string) error {
	if !n.errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("❌ Song failed")
	if title = strings.TrimSpace(title); title != "" {
		builder.WriteString(": ")
		builder.WriteString(title)
	}
	if detail = strings.TrimSpace(detail); detail != "" {
		builder.WriteString("\n")
		builder.WriteString(textutil.Truncate(detail, 400))
	}
	data := payload{
		title:    "Songify - Error",
		message:  builder.String(),
		tags:     []string{"songify", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Songify - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"songify", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}
	if data.click != "" {
		req.Header.Set("Click", data.click)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifySongReady(context.Context, string, string) error  { return nil }
func (noopService) NotifySongFailed(context.Context, string, string) error { return nil }
func (noopService) TestNotification(context.Context) error                 { return nil }
