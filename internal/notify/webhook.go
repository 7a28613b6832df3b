package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/LabGraphTeam/labgraph/internal/qc"
	"github.com/LabGraphTeam/labgraph/internal/version"
	"github.com/LabGraphTeam/labgraph/pkg/models"
)

// WebhookPayload is the JSON body sent to the webhook URL.
type WebhookPayload struct {
	Event     string `json:"event"`
	Source    string `json:"source"`
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data"`
}

type webhookChannel struct {
	url    string
	client *http.Client
}

func (c *webhookChannel) name() string { return "webhook" }

func (c *webhookChannel) sendViolations(ctx context.Context, recs []models.ControlRecord, at time.Time) error {
	return c.post(ctx, WebhookPayload{
		Event:     qc.TopicViolationsDetected,
		Source:    "qc",
		Timestamp: at.UTC().Format(time.RFC3339),
		Data:      models.ViolationBatch{Records: recs, DetectedAt: at},
	})
}

func (c *webhookChannel) sendReports(ctx context.Context, batch models.ReportBatch) error {
	return c.post(ctx, WebhookPayload{
		Event:     qc.TopicReportGenerated,
		Source:    "qc",
		Timestamp: batch.GeneratedAt.UTC().Format(time.RFC3339),
		Data:      batch,
	})
}

func (c *webhookChannel) post(ctx context.Context, payload WebhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "LabGraph-Webhook/"+version.Short())

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook endpoint returned %d", resp.StatusCode)
	}
	return nil
}
