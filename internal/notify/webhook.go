package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"wedding-rsvp/internal/models"
)

const maxWebhookRetries = 3

// Webhook posts every response as JSON to an external endpoint, e.g. an
// automation feeding a spreadsheet. Payloads are signed with HMAC-SHA256 in
// X-Webhook-Signature when a secret is set.
type Webhook struct {
	url     string
	secret  string
	client  *http.Client
	backoff time.Duration
	log     zerolog.Logger
}

// NewWebhook creates a webhook notifier
func NewWebhook(url, secret string, log zerolog.Logger) *Webhook {
	return &Webhook{
		url:     url,
		secret:  secret,
		client:  &http.Client{Timeout: 10 * time.Second},
		backoff: time.Second,
		log:     log,
	}
}

func (w *Webhook) Name() string { return "webhook" }

// Payload is the body sent for a response. Event fields read "Oui (n)",
// "Non", or "" when the guest gave no answer for that event.
func Payload(n models.ResponseNotice) map[string]any {
	total := n.TotalGuests
	if total < models.MinPartySize {
		total = models.MinPartySize
	}
	p := map[string]any{
		"type":            "invitation_response",
		"timestamp":       n.At.UTC().Format(time.RFC3339),
		"prenom":          n.Guest.FirstName,
		"nom":             n.Guest.LastName,
		"email":           n.Guest.Email,
		"telephone":       n.Guest.Phone,
		"famille":         string(n.Guest.Family),
		"total_personnes": total,
		"message":         html.UnescapeString(n.Message),
	}
	for _, e := range models.Events {
		p[e.Key()] = ""
	}
	for _, r := range n.Responses {
		if r.WillAttend {
			p[r.Event.Key()] = fmt.Sprintf("Oui (%d)", r.PlusOne)
		} else {
			p[r.Event.Key()] = "Non"
		}
	}
	return p
}

// NotifyResponse posts the payload, retrying network and 5xx failures with
// exponential backoff. 4xx responses are not retried.
func (w *Webhook) NotifyResponse(ctx context.Context, n models.ResponseNotice) error {
	body, err := json.Marshal(Payload(n))
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= maxWebhookRetries; attempt++ {
		retry, err := w.post(ctx, body)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry {
			return err
		}
		w.log.Warn().Err(err).Int("attempt", attempt).Msg("Webhook attempt failed")

		if attempt < maxWebhookRetries {
			// 1s, 2s, 4s
			select {
			case <-time.After(w.backoff << (attempt - 1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return fmt.Errorf("webhook failed after %d attempts: %w", maxWebhookRetries, lastErr)
}

func (w *Webhook) post(ctx context.Context, body []byte) (retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	if w.secret != "" {
		req.Header.Set("X-Webhook-Signature", Sign(w.secret, body))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return true, err
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return true, fmt.Errorf("webhook returned %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return false, fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return false, nil
}

// Sign returns the hex HMAC-SHA256 of body
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
