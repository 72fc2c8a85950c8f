package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"opgrid/internal/config"
	"opgrid/internal/descriptor"
	"opgrid/internal/notifications"
)

func TestNewServiceReturnsNoopWhenEndpointMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.Endpoint = ""
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.Message{Status: 1}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestStatusLineIsDescriptorShaped(t *testing.T) {
	msg := notifications.Message{
		Status:   14,
		JobID:    "job-1",
		Session:  "s1",
		Marker:   "wf",
		Operator: "demo",
		Phase:    "task_execute",
		Error:    "boom; x=1",
	}
	line := msg.StatusLine()
	if !strings.HasPrefix(line, "status=14;jobid=job-1;session=s1;marker=wf;op=demo;phase=task_execute;") {
		t.Fatalf("unexpected status line %q", line)
	}

	parsed, err := descriptor.Parse(line)
	if err != nil {
		t.Fatalf("status line does not parse: %v", err)
	}
	if got := parsed.Get(notifications.FieldError); got != "boom; x=1" {
		t.Fatalf("error field = %q", got)
	}
	if parsed.JobID() != "job-1" {
		t.Fatalf("jobid = %q", parsed.JobID())
	}
}

func TestStatusLineOmitsEmptyFields(t *testing.T) {
	line := notifications.Message{Status: 0}.StatusLine()
	if line != "status=0;" {
		t.Fatalf("unexpected status line %q", line)
	}
}

func TestHTTPServicePostsPayload(t *testing.T) {
	tests := []struct {
		name           string
		msg            notifications.Message
		expectTitle    string
		expectTags     string
		expectPriority string
	}{
		{
			name: "completed",
			msg: notifications.Message{
				Status:      16,
				StatusLabel: "COMPLETED",
				JobID:       "job-9",
				Payload:     []byte(`{"ok":true}`),
				ContentType: "application/json",
			},
			expectTitle: "opgrid - COMPLETED (job-9)",
			expectTags:  "opgrid,job,completed",
		},
		{
			name: "failed",
			msg: notifications.Message{
				Status:      11,
				StatusLabel: "DISTRIBUTE_ERROR",
				JobID:       "job-9",
				Phase:       "task_distribute",
				Error:       "leader rejected lookup",
				Payload:     []byte("leader rejected lookup"),
			},
			expectTitle:    "opgrid - DISTRIBUTE_ERROR (job-9)",
			expectTags:     "opgrid,job,error",
			expectPriority: "high",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var (
				gotBody   string
				gotHeader http.Header
			)
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				body, _ := io.ReadAll(r.Body)
				gotBody = string(body)
				gotHeader = r.Header.Clone()
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.Endpoint = server.URL
			cfg.Notifications.RequestTimeout = 5
			svc := notifications.NewService(&cfg)

			if err := svc.Publish(context.Background(), tc.msg); err != nil {
				t.Fatalf("Publish returned error: %v", err)
			}
			if gotBody != string(tc.msg.Payload) {
				t.Fatalf("body = %q, want %q", gotBody, tc.msg.Payload)
			}
			if got := gotHeader.Get(notifications.HeaderStatus); got != tc.msg.StatusLine() {
				t.Fatalf("status header = %q, want %q", got, tc.msg.StatusLine())
			}
			if got := gotHeader.Get(notifications.HeaderTitle); got != tc.expectTitle {
				t.Fatalf("title = %q, want %q", got, tc.expectTitle)
			}
			if got := gotHeader.Get(notifications.HeaderTags); got != tc.expectTags {
				t.Fatalf("tags = %q, want %q", got, tc.expectTags)
			}
			if got := gotHeader.Get(notifications.HeaderPriority); got != tc.expectPriority {
				t.Fatalf("priority = %q, want %q", got, tc.expectPriority)
			}
			if got := gotHeader.Get(notifications.HeaderJobID); got != "job-9" {
				t.Fatalf("job header = %q", got)
			}
		})
	}
}

func TestHTTPServiceReportsServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic closed", http.StatusForbidden)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.Endpoint = server.URL
	svc := notifications.NewService(&cfg)

	err := svc.Publish(context.Background(), notifications.Message{Status: 16})
	if err == nil {
		t.Fatal("expected error for non-2xx response")
	}
	if !strings.Contains(err.Error(), "403") || !strings.Contains(err.Error(), "topic closed") {
		t.Fatalf("unexpected error %v", err)
	}
}
