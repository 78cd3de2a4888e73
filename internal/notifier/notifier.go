package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/quantrail/autoscaler/internal/logger"
	"github.com/quantrail/autoscaler/pkg/models"
)

// Config controls which sinks receive notifications.
type Config struct {
	Enabled       bool
	WebhookURL    string
	SlackURL      string
	Timeout       time.Duration
	RetryAttempts int
}

// Notifier forwards noteworthy pipeline events to external sinks. Delivery
// is fire-and-forget: a failed notification is logged and dropped, never
// allowed to stall the scaling pipeline.
type Notifier struct {
	cfg    Config
	client *http.Client
	done   chan struct{}
}

var notifyTypes = map[models.EventType]bool{
	models.EventTypeScalingComplete:  true,
	models.EventTypeScalingFailed:    true,
	models.EventTypeScalingRejected:  true,
	models.EventTypeRollbackComplete: true,
	models.EventTypeRollbackFailed:   true,
	models.EventTypeAlert:            true,
}

func New(cfg Config) *Notifier {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		done:   make(chan struct{}),
	}
}

// Start consumes the subscription until the channel closes.
func (n *Notifier) Start(sub <-chan *models.Event) {
	go func() {
		defer close(n.done)
		for event := range sub {
			if !n.cfg.Enabled || !notifyTypes[event.Type] {
				continue
			}
			n.deliver(event)
		}
	}()
}

func (n *Notifier) Wait() {
	<-n.done
}

func (n *Notifier) deliver(event *models.Event) {
	if n.cfg.WebhookURL != "" {
		if err := n.post(n.cfg.WebhookURL, event); err != nil {
			logger.Errorf("Webhook notification failed: %v", err)
		}
	}
	if n.cfg.SlackURL != "" {
		if err := n.post(n.cfg.SlackURL, slackPayload(event)); err != nil {
			logger.Errorf("Slack notification failed: %v", err)
		}
	}
}

func (n *Notifier) post(url string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	operation := func() error {
		req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("notification endpoint returned %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("notification endpoint returned %d", resp.StatusCode))
		}
		return nil
	}

	return backoff.Retry(operation,
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(n.cfg.RetryAttempts)))
}

type slackMessage struct {
	Text string `json:"text"`
}

func slackPayload(event *models.Event) slackMessage {
	icon := ":information_source:"
	switch event.Severity {
	case models.SeverityWarning:
		icon = ":warning:"
	case models.SeverityCritical:
		icon = ":rotating_light:"
	}
	return slackMessage{
		Text: fmt.Sprintf("%s *%s* [%s] %s", icon, event.Type, event.Service, event.Message),
	}
}
