package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// SlackNotifier posts internal processing errors to a Slack webhook.
type SlackNotifier struct {
	WebhookURL string
	Client     *http.Client
	Log        logrus.FieldLogger
}

// NewSlackNotifier builds a notifier; returns nil when no webhook is
// configured.
func NewSlackNotifier(webhookURL string, log logrus.FieldLogger) *SlackNotifier {
	if webhookURL == "" {
		return nil
	}
	return &SlackNotifier{
		WebhookURL: webhookURL,
		Client:     &http.Client{Timeout: 10 * time.Second},
		Log:        log,
	}
}

// Send posts one internal-error message. Failures are logged and swallowed.
func (n *SlackNotifier) Send(ctx context.Context, internal InternalError) {
	text := fmt.Sprintf("❌ *ERROR*\n*FileLoader - Internal Processing Error*\n*Timestamp:* %s\n*Message:* %s",
		time.Now().UTC().Format("2006-01-02 15:04:05 MST"), internal.Message)
	if internal.FileName != "" {
		text += fmt.Sprintf("\n• *File:* %s", internal.FileName)
	}
	if internal.LogID != 0 {
		text += fmt.Sprintf("\n• *Log ID:* %d", internal.LogID)
	}

	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		n.Log.WithError(err).Error("failed to encode slack payload")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		n.Log.WithError(err).Error("failed to build slack request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.Client.Do(req)
	if err != nil {
		n.Log.WithError(err).Error("failed to send slack notification")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		n.Log.Errorf("slack webhook returned status %d", resp.StatusCode)
		return
	}
	n.Log.Info("sent slack notification for internal processing error")
}
