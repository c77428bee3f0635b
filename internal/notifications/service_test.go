package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"dubflow/internal/config"
	"dubflow/internal/notifications"
)

type capturedRequest struct {
	title    string
	tags     string
	priority string
	agent    string
	body     string
}

func newNtfyServer(t *testing.T, status int) (*httptest.Server, func() []capturedRequest) {
	t.Helper()
	var (
		mu       sync.Mutex
		requests []capturedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		requests = append(requests, capturedRequest{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			agent:    r.Header.Get("User-Agent"),
			body:     string(body),
		})
		mu.Unlock()
		w.WriteHeader(status)
		_, _ = w.Write([]byte("topic rejected"))
	}))
	t.Cleanup(srv.Close)
	return srv, func() []capturedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]capturedRequest(nil), requests...)
	}
}

func configFor(topic string) *config.Config {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = topic
	return &cfg
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	svc := notifications.NewService(configFor(""))
	if err := svc.NotifyWorkflowFailed(context.Background(), "wf", "extract", "boom"); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
	if err := notifications.NewService(nil).TestNotification(context.Background()); err != nil {
		t.Fatalf("expected nil config to yield noop notifier, got %v", err)
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
	}{
		{
			name: "workflow completed",
			send: func(s notifications.Service) error {
				return s.NotifyWorkflowCompleted(context.Background(), "wf-123")
			},
			expectTitle:   "dubflow - Complete",
			expectMessage: "Dubbed audio ready: wf-123",
			expectTags:    "dubflow,workflow,completed",
		},
		{
			name: "workflow failed",
			send: func(s notifications.Service) error {
				return s.NotifyWorkflowFailed(context.Background(), "wf-123", "extract", "  no subtitle entries ")
			},
			expectTitle:    "dubflow - Failed",
			expectMessage:  "Workflow wf-123 failed at extract: no subtitle entries",
			expectTags:     "dubflow,error,alert",
			expectPriority: "high",
		},
		{
			name: "failure without reason",
			send: func(s notifications.Service) error {
				return s.NotifyWorkflowFailed(context.Background(), "wf-9", "", "")
			},
			expectTitle:    "dubflow - Failed",
			expectMessage:  "Workflow wf-9 failed: unknown",
			expectTags:     "dubflow,error,alert",
			expectPriority: "high",
		},
		{
			name: "test notification",
			send: func(s notifications.Service) error {
				return s.TestNotification(context.Background())
			},
			expectTitle:    "dubflow - Test",
			expectMessage:  "Notification system test",
			expectTags:     "dubflow,test",
			expectPriority: "low",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, captured := newNtfyServer(t, http.StatusOK)
			svc := notifications.NewService(configFor(srv.URL))
			if err := tt.send(svc); err != nil {
				t.Fatalf("send: %v", err)
			}
			got := captured()
			if len(got) != 1 {
				t.Fatalf("expected 1 request, got %d", len(got))
			}
			req := got[0]
			if req.title != tt.expectTitle {
				t.Fatalf("title = %q, want %q", req.title, tt.expectTitle)
			}
			if req.body != tt.expectMessage {
				t.Fatalf("message = %q, want %q", req.body, tt.expectMessage)
			}
			if req.tags != tt.expectTags {
				t.Fatalf("tags = %q, want %q", req.tags, tt.expectTags)
			}
			if req.priority != tt.expectPriority {
				t.Fatalf("priority = %q, want %q", req.priority, tt.expectPriority)
			}
			if req.agent == "" {
				t.Fatal("expected user agent header")
			}
		})
	}
}

func TestNotifySuccessDisabledSkipsCompletion(t *testing.T) {
	srv, captured := newNtfyServer(t, http.StatusOK)
	cfg := configFor(srv.URL)
	cfg.Notifications.NotifySuccess = false
	svc := notifications.NewService(cfg)

	if err := svc.NotifyWorkflowCompleted(context.Background(), "wf"); err != nil {
		t.Fatalf("completion: %v", err)
	}
	if err := svc.NotifyWorkflowFailed(context.Background(), "wf", "mix", "boom"); err != nil {
		t.Fatalf("failure: %v", err)
	}
	got := captured()
	if len(got) != 1 || got[0].title != "dubflow - Failed" {
		t.Fatalf("expected only the failure notification, got %+v", got)
	}
}

func TestNtfyServiceReportsErrorStatus(t *testing.T) {
	srv, _ := newNtfyServer(t, http.StatusForbidden)
	svc := notifications.NewService(configFor(srv.URL))
	err := svc.TestNotification(context.Background())
	if err == nil {
		t.Fatal("expected error for 403 response")
	}
	if want := "ntfy returned 403: topic rejected"; err.Error() != want {
		t.Fatalf("error = %q, want %q", err.Error(), want)
	}
}
