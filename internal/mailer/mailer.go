// Package mailer отправляет письма сотрудникам (уведомления о новых заказах).
package mailer

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
)

// Message - одно письмо в текстовом и HTML виде
type Message struct {
	To      []string
	Subject string
	Text    string
	HTML    string
}

// Mailer отправляет письма
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LogMailer пишет письма в лог вместо отправки (локальная разработка, нет RESEND_API_KEY)
type LogMailer struct{}

// NewLogMailer создает LogMailer
func NewLogMailer() *LogMailer {
	return &LogMailer{}
}

// Send логирует письмо
func (LogMailer) Send(_ context.Context, msg Message) error {
	log.Info().
		Str("to", strings.Join(msg.To, ", ")).
		Str("subject", msg.Subject).
		Msgf("📧 Email (log mailer):\n%s", msg.Text)
	return nil
}
