package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"opgrid/internal/config"
	"opgrid/internal/descriptor"
)

const userAgent = "opgrid/0.1.0"

// Header names set on every HTTP notification.
const (
	HeaderStatus   = "X-Opgrid-Status"
	HeaderJobID    = "X-Opgrid-Job"
	HeaderTitle    = "Title"
	HeaderTags     = "Tags"
	HeaderPriority = "Priority"
)

// Field names used in the status line beyond the reserved descriptor names.
const (
	FieldStatus = "status"
	FieldPhase  = "phase"
	FieldError  = "error"
)

// Message is a single job status notification.
type Message struct {
	// Status is the integer job-status code.
	Status int
	// StatusLabel is the human-readable status, e.g. "COMPLETED".
	StatusLabel string
	JobID       string
	Session     string
	Marker      string
	Operator    string
	// Phase names the failing phase for error statuses.
	Phase string
	Error string
	// Payload is sent verbatim as the body.
	Payload     []byte
	ContentType string
}

// Failed reports whether the message describes a failed job.
func (m Message) Failed() bool {
	return m.Error != "" || strings.HasSuffix(m.StatusLabel, "_ERROR")
}

// StatusLine renders the message identity in descriptor form:
// status=<code>;jobid=...;session=...;marker=...;op=...;phase=...;error=...;
// Empty fields are omitted.
func (m Message) StatusLine() string {
	return descriptor.Format(
		descriptor.Pair{Name: FieldStatus, Value: strconv.Itoa(m.Status)},
		descriptor.Pair{Name: descriptor.NameJobID, Value: m.JobID},
		descriptor.Pair{Name: descriptor.NameSession, Value: m.Session},
		descriptor.Pair{Name: descriptor.NameMarker, Value: m.Marker},
		descriptor.Pair{Name: descriptor.NameOperator, Value: m.Operator},
		descriptor.Pair{Name: FieldPhase, Value: m.Phase},
		descriptor.Pair{Name: FieldError, Value: m.Error},
	)
}

func (m Message) title() string {
	label := m.StatusLabel
	if label == "" {
		label = strconv.Itoa(m.Status)
	}
	if m.JobID == "" {
		return "opgrid - " + label
	}
	return fmt.Sprintf("opgrid - %s (%s)", label, m.JobID)
}

// Service defines the notification surface exposed to the lifecycle.
type Service interface {
	Publish(ctx context.Context, msg Message) error
}

// NewService builds an HTTP notification service when an endpoint is
// configured and a noop implementation otherwise.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	endpoint := strings.TrimSpace(cfg.Notifications.Endpoint)
	if endpoint == "" {
		return noopService{}
	}
	timeout := cfg.NotificationTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &httpService{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

type httpService struct {
	endpoint string
	client   *http.Client
}

func (n *httpService) Publish(ctx context.Context, msg Message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(string(msg.Payload)))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	contentType := msg.ContentType
	if contentType == "" {
		contentType = "text/plain; charset=utf-8"
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(HeaderStatus, msg.StatusLine())
	if msg.JobID != "" {
		req.Header.Set(HeaderJobID, msg.JobID)
	}
	req.Header.Set(HeaderTitle, msg.title())
	if msg.Failed() {
		req.Header.Set(HeaderTags, "opgrid,job,error")
		req.Header.Set(HeaderPriority, "high")
	} else {
		req.Header.Set(HeaderTags, "opgrid,job,completed")
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("notification endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Message) error { return nil }
