package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const resendBaseURL = "https://api.resend.com"

// ResendMailer отправляет письма через HTTP API Resend
type ResendMailer struct {
	apiKey  string
	from    string
	client  *http.Client
	baseURL string
}

// NewResendMailer создает отправителя; пустой ключ - ошибка конфигурации
func NewResendMailer(apiKey, from string) (*ResendMailer, error) {
	if apiKey == "" {
		return nil, errors.New("RESEND_API_KEY not set")
	}
	if from == "" {
		return nil, errors.New("EMAIL_SENDER not set")
	}

	return &ResendMailer{
		apiKey: apiKey,
		from:   from,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
		baseURL: resendBaseURL,
	}, nil
}

// WithBaseURL переопределяет адрес API (тесты, прокси)
func (m *ResendMailer) WithBaseURL(baseURL string) *ResendMailer {
	m.baseURL = baseURL
	return m
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html,omitempty"`
	Text    string   `json:"text,omitempty"`
}

// Send отправляет письмо
func (m *ResendMailer) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return nil
	}

	b, err := json.Marshal(sendRequest{
		From:    m.from,
		To:      msg.To,
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Text:    msg.Text,
	})
	if err != nil {
		return fmt.Errorf("failed to encode email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/emails", bytes.NewBuffer(b))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("failed to send email: status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
