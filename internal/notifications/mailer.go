package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const brevoURL = "https://api.brevo.com/v3/smtp/email"

type Config struct {
	BrevoAPIKey string
	SenderEmail string
	SenderName  string
	Timeout     time.Duration
}

type Message struct {
	ToEmail     string
	ToName      string
	Subject     string
	HTMLContent string
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// NewMailer returns a Brevo backed mailer when an API key is configured and
// a mailer that only logs otherwise.
func NewMailer(cfg Config) Mailer {
	if cfg.BrevoAPIKey == "" || cfg.SenderEmail == "" {
		slog.Warn("Email service not configured, notifications will only be logged")
		return LogMailer{}
	}
	return NewBrevoMailer(cfg)
}

type BrevoMailer struct {
	url         string
	apiKey      string
	senderEmail string
	senderName  string
	httpClient  *http.Client
}

type brevoPayload struct {
	Sender      map[string]string   `json:"sender"`
	To          []map[string]string `json:"to"`
	Subject     string              `json:"subject"`
	HTMLContent string              `json:"htmlContent"`
}

func NewBrevoMailer(cfg Config) *BrevoMailer {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &BrevoMailer{
		url:         brevoURL,
		apiKey:      cfg.BrevoAPIKey,
		senderEmail: cfg.SenderEmail,
		senderName:  cfg.SenderName,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
	}
}

func (m *BrevoMailer) Send(ctx context.Context, msg Message) error {
	at := strings.Index(msg.ToEmail, "@")
	if at <= 0 {
		return fmt.Errorf("invalid recipient email: %q", msg.ToEmail)
	}

	recipientName := msg.ToName
	if recipientName == "" {
		recipientName = msg.ToEmail[:at]
	}

	body, err := json.Marshal(brevoPayload{
		Sender:      map[string]string{"name": m.senderName, "email": m.senderEmail},
		To:          []map[string]string{{"email": msg.ToEmail, "name": recipientName}},
		Subject:     msg.Subject,
		HTMLContent: msg.HTMLContent,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("api-key", m.apiKey)
	req.Header.Set("content-type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("brevo responded %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// LogMailer writes messages to the log instead of delivering them
type LogMailer struct{}

func (LogMailer) Send(ctx context.Context, msg Message) error {
	if msg.ToEmail == "" {
		return errors.New("recipient email is required")
	}
	slog.InfoContext(ctx, "Email not sent, mailer disabled",
		"to", msg.ToEmail, "subject", msg.Subject)
	return nil
}
