package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/relayhq/eventrelay/event"
	"github.com/relayhq/eventrelay/signature"
	"github.com/relayhq/eventrelay/subscription"
)

const maxResponseBody = 1000 // spec: response bodies stored truncated to 1000 bytes

// envelope is the canonical outbound wire body per spec §4.6/§6.
type envelope struct {
	ID             string `json:"id"`
	EventType      string `json:"eventType"`
	Payload        any    `json:"payload"`
	ReceivedAt     string `json:"receivedAt"`
	IdempotencyKey string `json:"idempotencyKey"`
}

// Sender performs HTTP webhook delivery.
type Sender struct {
	client *http.Client
}

// NewSender creates a sender with the given per-attempt HTTP timeout.
func NewSender(timeout time.Duration) *Sender {
	return &Sender{client: &http.Client{Timeout: timeout}}
}

// Send delivers evt to sub's target URL and returns the outcome.
func (s *Sender) Send(ctx context.Context, sub *subscription.Subscription, evt *event.Event) Result {
	body, err := json.Marshal(envelope{
		ID:             evt.ID.String(),
		EventType:      evt.Type,
		Payload:        evt.Payload,
		ReceivedAt:     evt.ReceivedAt.Format(time.RFC3339),
		IdempotencyKey: evt.IdempotencyKey,
	})
	if err != nil {
		return Result{Error: fmt.Sprintf("marshal envelope: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.TargetURL, bytes.NewReader(body))
	if err != nil {
		return Result{Error: fmt.Sprintf("create request: %v", err)}
	}

	sig := signature.Sign(body, sub.SecretKey)
	ts := time.Now().Unix()

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature", sig)
	req.Header.Set("X-Timestamp", strconv.FormatInt(ts, 10))
	req.Header.Set("X-Event-Type", evt.Type)
	req.Header.Set("X-Event-Id", evt.ID.String())
	req.Header.Set("User-Agent", "webhook-relay/1.0")

	start := time.Now()
	resp, err := s.client.Do(req) //nolint:gosec // G704: target_url is an operator-registered webhook destination.
	latency := time.Since(start).Milliseconds()

	if err != nil {
		return Result{Error: err.Error(), LatencyMs: int(latency)}
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if readErr != nil {
		return Result{
			StatusCode: resp.StatusCode,
			Error:      fmt.Sprintf("read response: %v", readErr),
			LatencyMs:  int(latency),
		}
	}

	return Result{
		StatusCode: resp.StatusCode,
		Response:   string(respBody),
		LatencyMs:  int(latency),
	}
}
