package hitl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/stepforge/flowrt/core"
)

// WebhookSink is the reference ReviewSink: it POSTs the review context to a
// configured URL and returns immediately (Emit must be non-blocking),
// trusting the remote system to call Resolve out of band once a human has
// decided.
type WebhookSink struct {
	url        string
	httpClient *http.Client
	logger     core.Logger
}

// NewWebhookSink builds a sink posting to url.
func NewWebhookSink(url string, logger core.Logger) *WebhookSink {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	return &WebhookSink{
		url:        url,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

type webhookPayload struct {
	ReviewID  string                 `json:"review_id"`
	Question  string                 `json:"question"`
	Trigger   string                 `json:"trigger"`
	Artifacts map[string]interface{} `json:"artifacts,omitempty"`
	Options   []string               `json:"options,omitempty"`
	Expiry    *time.Time             `json:"expiry,omitempty"`
}

// Emit posts the review asynchronously and returns without waiting for a
// response body: the actual decision arrives later via Resolve, typically
// called from an HTTP handler on the receiving end.
func (s *WebhookSink) Emit(ctx context.Context, review *PendingReview) error {
	payload := webhookPayload{
		ReviewID:  review.ID,
		Question:  review.Context.Question,
		Trigger:   review.Context.Trigger,
		Artifacts: review.Context.Artifacts,
		Options:   review.Options,
	}
	if !review.Expiry.IsZero() {
		payload.Expiry = &review.Expiry
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("hitl: marshaling webhook payload: %w", err)
	}

	go func() {
		reqCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, s.url, bytes.NewReader(body))
		if err != nil {
			s.logger.Warn("hitl webhook request build failed", map[string]interface{}{"error": err.Error()})
			return
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := s.httpClient.Do(req)
		if err != nil {
			s.logger.Warn("hitl webhook delivery failed", map[string]interface{}{"review_id": review.ID, "error": err.Error()})
			return
		}
		_ = resp.Body.Close()
	}()

	return nil
}
