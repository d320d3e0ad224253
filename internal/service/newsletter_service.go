package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"digistore/internal/mailer"
	"digistore/internal/models"
	"digistore/internal/security"
	"digistore/internal/store"
)

const defaultSendDelay = 100 * time.Millisecond

type SendResult struct {
	Email   string `json:"email"`
	Success bool   `json:"success"`
	ID      string `json:"id,omitempty"`
	Error   string `json:"error,omitempty"`
}

type SendReport struct {
	Message      string       `json:"message"`
	SentCount    int          `json:"sentCount"`
	FailedCount  int          `json:"failedCount"`
	TotalCount   int          `json:"totalCount"`
	IsSimulation bool         `json:"isSimulation"`
	Results      []SendResult `json:"results,omitempty"`
}

type NewsletterService struct {
	subscribers SubscriberStore
	mail        mailer.Sender
	emailFrom   string
	baseURL     string
	delay       time.Duration
	logger      *logrus.Logger
	now         func() time.Time
}

func NewNewsletterService(logger *logrus.Logger, subscribers SubscriberStore, mail mailer.Sender, emailFrom, baseURL string) *NewsletterService {
	return &NewsletterService{
		subscribers: subscribers,
		mail:        mail,
		emailFrom:   emailFrom,
		baseURL:     baseURL,
		delay:       defaultSendDelay,
		logger:      logger,
		now:         time.Now,
	}
}

// Subscribe stores email and returns the new subscriber count.
func (s *NewsletterService) Subscribe(ctx context.Context, email, ip, userAgent string) (int, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !security.IsValidEmail(email) {
		return 0, validationf("invalid email address")
	}

	total, err := s.subscribers.Add(ctx, models.Subscriber{
		Email:        email,
		SubscribedAt: s.now().UTC(),
		IPAddress:    ip,
		UserAgent:    userAgent,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateRecord) {
			return 0, fmt.Errorf("%w: email already subscribed", ErrDuplicate)
		}
		return 0, fmt.Errorf("failed to save subscriber: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"subscriber": security.ObfuscateEmail(email),
		"total":      total,
	}).Info("Newsletter subscription added")
	return total, nil
}

func (s *NewsletterService) Unsubscribe(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if !security.IsValidEmail(email) {
		return validationf("invalid email address")
	}
	if err := s.subscribers.Remove(ctx, email); err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return fmt.Errorf("%w: subscriber", ErrNotFound)
		}
		return fmt.Errorf("failed to remove subscriber: %w", err)
	}
	s.logger.WithField("subscriber", security.ObfuscateEmail(email)).Info("Newsletter subscription removed")
	return nil
}

func (s *NewsletterService) List(ctx context.Context) ([]models.Subscriber, error) {
	subscribers, err := s.subscribers.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscribers: %w", err)
	}
	return subscribers, nil
}

func (s *NewsletterService) Stats(ctx context.Context) (*models.SubscriberStats, error) {
	subscribers, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	stats := &models.SubscriberStats{
		Total:            len(subscribers),
		MonthlyBreakdown: make(map[string]int),
	}
	for _, sub := range subscribers {
		stats.MonthlyBreakdown[sub.SubscribedAt.UTC().Format("2006-01")]++
	}
	stats.ThisMonth = stats.MonthlyBreakdown[s.now().UTC().Format("2006-01")]
	if len(subscribers) > 0 {
		latest := subscribers[len(subscribers)-1].SubscribedAt
		stats.LatestSubscription = &latest
	}
	return stats, nil
}

func (s *NewsletterService) ExportCSV(ctx context.Context, w io.Writer) error {
	subscribers, err := s.List(ctx)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Email", "Subscribed At", "IP Address", "User Agent"}); err != nil {
		return err
	}
	for _, sub := range subscribers {
		record := []string{
			sub.Email,
			sub.SubscribedAt.UTC().Format(time.RFC3339),
			orNA(sub.IPAddress),
			orNA(sub.UserAgent),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// Send mails the newsletter to recipients, or to every subscriber when
// recipients is empty. Delivery is sequential with a short pause between
// messages to stay under the provider's rate limit.
func (s *NewsletterService) Send(ctx context.Context, subject, message string, recipients []string) (*SendReport, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" || strings.TrimSpace(message) == "" {
		return nil, validationf("subject and message are required")
	}

	if len(recipients) == 0 {
		subscribers, err := s.List(ctx)
		if err != nil {
			return nil, err
		}
		for _, sub := range subscribers {
			recipients = append(recipients, sub.Email)
		}
	}
	if len(recipients) == 0 {
		return nil, validationf("no recipients")
	}

	html := renderNewsletter(subject, message, s.baseURL)
	report := &SendReport{TotalCount: len(recipients), IsSimulation: s.mail.Simulated()}

	s.logger.WithFields(logrus.Fields{
		"subject":    subject,
		"recipients": len(recipients),
		"simulated":  report.IsSimulation,
	}).Info("Sending newsletter")

	for i, to := range recipients {
		if i > 0 && !report.IsSimulation && s.delay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.delay):
			}
		}

		result := SendResult{Email: to}
		id, err := s.mail.Send(ctx, mailer.Message{From: s.emailFrom, To: to, Subject: subject, HTML: html})
		if err != nil {
			s.logger.WithError(err).WithField("recipient", security.ObfuscateEmail(to)).Warn("Newsletter delivery failed")
			result.Error = "delivery failed"
			report.FailedCount++
		} else {
			result.Success = true
			result.ID = id
			report.SentCount++
		}
		report.Results = append(report.Results, result)
	}

	if report.IsSimulation {
		report.Message = fmt.Sprintf("Newsletter simulated for %d subscriber(s) (configure RESEND_API_KEY for real emails)", report.TotalCount)
	} else {
		report.Message = fmt.Sprintf("Newsletter sent! %d delivered, %d failed out of %d total.", report.SentCount, report.FailedCount, report.TotalCount)
	}
	return report, nil
}

func renderNewsletter(subject, message, baseURL string) string {
	var body strings.Builder
	for _, line := range strings.Split(message, "\n") {
		if strings.TrimSpace(line) == "" {
			body.WriteString(`<div style="height: 16px;"></div>`)
			continue
		}
		fmt.Fprintf(&body, `<p style="margin: 0 0 16px 0;">%s</p>`, security.EscapeHTML(line))
	}

	escapedSubject := security.EscapeHTML(subject)
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"><title>%s</title></head>
<body style="margin: 0; padding: 0; font-family: -apple-system, 'Segoe UI', Roboto, Arial, sans-serif; background-color: #f8fafc;">
<div style="max-width: 600px; margin: 40px auto; background: #ffffff; border-radius: 12px; padding: 40px 30px;">
<h1 style="margin: 0 0 8px 0;">Digital Store</h1>
<h2 style="color: #1a202c; margin: 0 0 24px 0;">%s</h2>
<div style="color: #4a5568; font-size: 16px; line-height: 1.6;">%s</div>
<p><a href="%s" style="color: #667eea;">Visit our store</a></p>
<p style="color: #a0aec0; font-size: 13px;">You're receiving this because you subscribed to our newsletter.</p>
</div>
</body>
</html>`, escapedSubject, escapedSubject, body.String(), security.EscapeHTML(baseURL))
}
