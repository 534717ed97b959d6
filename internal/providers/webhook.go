package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/benvon/vaultflow/internal/models"
	"github.com/benvon/vaultflow/internal/request"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultWebhookTimeout bounds one provider call
	DefaultWebhookTimeout = 30 * time.Second
	maxResponseBytes      = 64 * 1024
)

// webhookResponse is the optional JSON a webhook may answer with
type webhookResponse struct {
	Summary    string         `json:"summary"`
	Target     string         `json:"target"`
	Parameters map[string]any `json:"parameters"`
}

// Webhook posts the decision as JSON to an integration endpoint. Any 2xx
// status is success; the body may carry a summary.
type Webhook struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

// NewWebhook creates a webhook provider
func NewWebhook(url string, client *http.Client, logger *zap.Logger) *Webhook {
	if client == nil {
		client = &http.Client{Timeout: DefaultWebhookTimeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Webhook{url: url, client: client, logger: logger}
}

// Execute posts the decision
func (w *Webhook) Execute(ctx context.Context, d models.Decision) (models.Outcome, error) {
	payload, err := json.Marshal(d)
	if err != nil {
		return models.Outcome{}, fmt.Errorf("failed to encode decision: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return models.Outcome{}, fmt.Errorf("failed to build webhook request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(request.HeaderRequestID, requestID)
	req.Header.Set("X-Vaultflow-Action", string(d.Action))

	start := time.Now()
	resp, err := w.client.Do(req)
	if err != nil {
		return models.Outcome{}, fmt.Errorf("webhook %s failed: %w", d.Action, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	w.logger.Debug("webhook_response",
		zap.String("action", string(d.Action)),
		zap.Int("status", resp.StatusCode),
		zap.String("request_id", requestID),
		zap.Int64("latency_ms", time.Since(start).Milliseconds()),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return models.Outcome{}, fmt.Errorf("webhook %s returned status %d: %s", d.Action, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	out := models.Outcome{
		Summary: fmt.Sprintf("%s delivered", d.Action),
		Target:  d.Target(),
	}
	var parsed webhookResponse
	if len(body) > 0 && json.Unmarshal(body, &parsed) == nil {
		if parsed.Summary != "" {
			out.Summary = parsed.Summary
		}
		if parsed.Target != "" {
			out.Target = parsed.Target
		}
		out.Parameters = parsed.Parameters
	}
	return out, nil
}

// RegisterWebhooks binds every external action kind to a webhook. A per-kind
// URL wins over the default; kinds with neither stay unbound.
func RegisterWebhooks(r *Registry, defaultURL string, perKind map[models.ActionKind]string, client *http.Client, logger *zap.Logger) {
	for _, kind := range models.ActionKinds {
		if kind == models.ActionNone {
			continue
		}
		url := perKind[kind]
		if url == "" {
			url = defaultURL
		}
		if url == "" {
			continue
		}
		r.Register(kind, NewWebhook(url, client, logger))
	}
}

var _ Provider = (*Webhook)(nil)
