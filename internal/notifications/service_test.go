package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"songify/internal/config"
	"songify/internal/notifications"
)

type captured struct {
	title    string
	body     string
	tags     string
	priority string
	click    string
}

func newNtfy(t *testing.T, status int) (*httptest.Server, <-chan captured) {
	t.Helper()
	requests := make(chan captured, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		requests <- captured{
			title:    r.Header.Get("Title"),
			body:     string(body),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			click:    r.Header.Get("Click"),
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte("nope"))
	}))
	t.Cleanup(srv.Close)
	return srv, requests
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	svc := notifications.NewService(&cfg)
	if err := svc.NotifySongReady(context.Background(), "Cat Song", "https://x/1.mp3"); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		send           func(notifications.Service) error
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
		expectClick    string
	}{
		{
			name: "song ready",
			send: func(s notifications.Service) error {
				return s.NotifySongReady(context.Background(), " Cat Song ", "https://x/1.mp3")
			},
			expectTitle:   "Songify - Song Ready",
			expectMessage: "🎵 Song ready: Cat Song",
			expectTags:    "songify,song,ready",
			expectClick:   "https://x/1.mp3",
		},
		{
			name: "song ready without title",
			send: func(s notifications.Service) error {
				return s.NotifySongReady(context.Background(), "", "")
			},
			expectTitle:   "Songify - Song Ready",
			expectMessage: "🎵 Song ready: Untitled",
			expectTags:    "songify,song,ready",
		},
		{
			name: "song failed",
			send: func(s notifications.Service) error {
				return s.NotifySongFailed(context.Background(), "Cat Facts", "quota exceeded")
			},
			expectTitle:    "Songify - Error",
			expectMessage:  "❌ Song failed: Cat Facts\nquota exceeded",
			expectTags:     "songify,error,alert",
			expectPriority: "high",
		},
		{
			name:           "test",
			send:           func(s notifications.Service) error { return s.TestNotification(context.Background()) },
			expectTitle:    "Songify - Test",
			expectMessage:  "🧪 Notification system test",
			expectTags:     "songify,test",
			expectPriority: "low",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, requests := newNtfy(t, http.StatusOK)
			cfg := config.Default()
			cfg.Notifications.NtfyTopic = srv.URL
			svc := notifications.NewService(&cfg)

			if err := tt.send(svc); err != nil {
				t.Fatalf("send: %v", err)
			}
			got := <-requests
			if got.title != tt.expectTitle {
				t.Errorf("title = %q, want %q", got.title, tt.expectTitle)
			}
			if got.body != tt.expectMessage {
				t.Errorf("body = %q, want %q", got.body, tt.expectMessage)
			}
			if got.tags != tt.expectTags {
				t.Errorf("tags = %q, want %q", got.tags, tt.expectTags)
			}
			if got.priority != tt.expectPriority {
				t.Errorf("priority = %q, want %q", got.priority, tt.expectPriority)
			}
			if got.click != tt.expectClick {
				t.Errorf("click = %q, want %q", got.click, tt.expectClick)
			}
		})
	}
}

func TestDisabledEventsAreSkipped(t *testing.T) {
	srv, requests := newNtfy(t, http.StatusOK)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	cfg.Notifications.SongReady = false
	cfg.Notifications.Errors = false
	svc := notifications.NewService(&cfg)

	if err := svc.NotifySongReady(context.Background(), "Cat Song", ""); err != nil {
		t.Fatalf("NotifySongReady: %v", err)
	}
	if err := svc.NotifySongFailed(context.Background(), "Cat Song", "boom"); err != nil {
		t.Fatalf("NotifySongFailed: %v", err)
	}
	select {
	case got := <-requests:
		t.Fatalf("unexpected request %+v", got)
	default:
	}
}

func TestNtfyErrorStatusReturned(t *testing.T) {
	srv, _ := newNtfy(t, http.StatusForbidden)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	svc := notifications.NewService(&cfg)

	err := svc.TestNotification(context.Background())
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected 403 error, got %v", err)
	}
}
