package fulfillment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/contentdesk/contentdesk/pkg/logger"
	"github.com/contentdesk/contentdesk/pkg/metrics"
	"github.com/contentdesk/contentdesk/pkg/store"
)

// Job kinds carried in the X-Webhook-Event header
const (
	EventContentRequested = "content.requested"
	EventResumeRequested  = "resume.requested"
)

// ContentJob is the payload delivered to the generation pipeline for a
// content request. The worker reports results by writing Status and Output
// back to the record store, not by calling us back.
type ContentJob struct {
	RecordID    string            `json:"record_id"`
	UserID      string            `json:"user_id"`
	UserEmail   string            `json:"user_email"`
	ContentType store.ContentType `json:"content_type"`
	Details     store.Details     `json:"details"`
	TokenCost   int               `json:"token_cost"`
}

// ResumeJob is the payload delivered to the generation pipeline for a
// resume enhancement.
type ResumeJob struct {
	RecordID   string           `json:"record_id"`
	UserID     string           `json:"user_id"`
	UserEmail  string           `json:"user_email"`
	ResumeType store.ResumeType `json:"resume_type"`
	FileURL    string           `json:"file_url"`
	JobURL     string           `json:"job_url,omitempty"`
	TokenCost  int              `json:"token_cost"`
}

// Dispatcher delivers generation jobs to the external fulfillment pipeline.
// Delivery is a single synchronous attempt: the pipeline polls the record
// store for anything we fail to hand off, so there is no retry loop here.
type Dispatcher struct {
	url        string
	secret     string
	httpClient *http.Client
	metrics    *metrics.Metrics
	log        logger.Logger
}

// NewDispatcher creates a dispatcher for the given webhook endpoint. m may
// be nil.
func NewDispatcher(url, secret string, m *metrics.Metrics, log logger.Logger) *Dispatcher {
	return &Dispatcher{
		url:    url,
		secret: secret,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		metrics: m,
		log:     log,
	}
}

// DispatchContent hands a content request to the pipeline.
func (d *Dispatcher) DispatchContent(ctx context.Context, job ContentJob) error {
	return d.deliver(ctx, EventContentRequested, job)
}

// DispatchResume hands a resume enhancement to the pipeline.
func (d *Dispatcher) DispatchResume(ctx context.Context, job ResumeJob) error {
	return d.deliver(ctx, EventResumeRequested, job)
}

func (d *Dispatcher) deliver(ctx context.Context, event string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Event", event)
	if d.secret != "" {
		req.Header.Set("X-Webhook-Signature", Sign(body, d.secret))
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		d.record(false)
		d.log.Error("webhook delivery failed", "event", event, "error", err)
		return fmt.Errorf("failed to deliver webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		d.record(false)
		d.log.Error("webhook rejected", "event", event, "status", resp.StatusCode)
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	d.record(true)
	d.log.Info("webhook delivered", "event", event, "url", d.url)
	return nil
}

func (d *Dispatcher) record(success bool) {
	if d.metrics != nil {
		d.metrics.RecordWebhookDispatch(success)
	}
}

// Sign computes the hex HMAC-SHA256 signature of a payload.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a payload signature in constant time.
func VerifySignature(payload []byte, signature, secret string) bool {
	expected := Sign(payload, secret)
	return hmac.Equal([]byte(signature), []byte(expected))
}
