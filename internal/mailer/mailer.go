// Package mailer delivers transactional and newsletter email.
package mailer

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/resend/resend-go/v2"
	"github.com/sirupsen/logrus"

	"digistore/internal/security"
)

type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
}

type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
	// Simulated reports whether messages are logged instead of delivered.
	Simulated() bool
}

type ResendSender struct {
	client *resend.Client
}

func NewResendSender(apiKey string) *ResendSender {
	return &ResendSender{client: resend.NewClient(apiKey)}
}

func NewResendSenderWithClient(client *resend.Client) *ResendSender {
	return &ResendSender{client: client}
}

func (s *ResendSender) Send(ctx context.Context, msg Message) (string, error) {
	sent, err := s.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    msg.From,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
	})
	if err != nil {
		return "", errors.Wrap(err, "send email")
	}
	return sent.Id, nil
}

func (s *ResendSender) Simulated() bool { return false }

// LogSender is used when no API key is configured.
type LogSender struct {
	logger *logrus.Logger
}

func NewLogSender(logger *logrus.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, msg Message) (string, error) {
	id := "simulated-" + uuid.NewString()
	s.logger.WithFields(logrus.Fields{
		"to":      security.ObfuscateEmail(msg.To),
		"subject": msg.Subject,
		"id":      id,
	}).Info("Email delivery simulated")
	return id, nil
}

func (s *LogSender) Simulated() bool { return true }
