// Package sender отправляет письма-напоминания о продлении Pro.
package sender

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/magabrotheeeer/entitlement-service/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-service/internal/lib/smtp"
	"github.com/magabrotheeeer/entitlement-service/internal/models"
)

// Service формирует и отправляет письма.
type Service struct {
	transport smtp.Dialer
	log       *slog.Logger
}

// New создает новый экземпляр Service.
func New(transport smtp.Dialer, log *slog.Logger) *Service {
	return &Service{
		transport: transport,
		log:       log,
	}
}

// SendRenewalReminder разбирает сообщение из очереди и отправляет письмо.
// Сообщения без адреса отбрасываются без ошибки, повтор им не поможет.
func (s *Service) SendRenewalReminder(ctx context.Context, body []byte) error {
	const op = "sender.SendRenewalReminder"
	var notice models.ReminderNotice
	if err := json.Unmarshal(body, &notice); err != nil {
		s.log.Error("failed to unmarshal message body", sl.Err(err))
		return fmt.Errorf("%s: error unmarshalling message: %w", op, err)
	}
	if notice.Email == "" {
		s.log.Warn("reminder without email dropped",
			sl.UserUID(notice.UserUID), slog.Int64("reminder_id", notice.ReminderID))
		return nil
	}

	subject, text := reminderText(notice)
	if err := s.sendEmail(ctx, []string{notice.Email}, subject, text); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("renewal reminder sent",
		sl.UserUID(notice.UserUID), slog.String("type", string(notice.ReminderType)))
	return nil
}

func reminderText(n models.ReminderNotice) (string, string) {
	ends := "soon"
	if n.SubscriptionEndsAt != nil {
		ends = "on " + n.SubscriptionEndsAt.UTC().Format(time.DateOnly)
	}

	var subject string
	switch n.ReminderType {
	case models.ReminderRenewal3d:
		subject = "Your Pro subscription ends in 3 days"
	case models.ReminderRenewal1d:
		subject = "Your Pro subscription ends tomorrow"
	default:
		subject = "Your Pro subscription ends today"
	}

	body := fmt.Sprintf("Hello!\n\nYour Pro access ends %s.\n"+
		"Renew your plan to keep Pro features and an ad-free experience.\n", ends)
	return subject, body
}

func (s *Service) sendEmail(ctx context.Context, to []string, subject, bodyText string) error {
	from := s.transport.Sender()
	envelope := from
	if addr, err := mail.ParseAddress(from); err == nil {
		envelope = addr.Address
	}
	msg := strings.Join([]string{
		"From: " + from,
		"To: " + strings.Join(to, ";"),
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"",
		bodyText,
	}, "\r\n")

	client, err := s.transport.Connect(ctx)
	if err != nil {
		s.log.Error("failed to connect to SMTP server", sl.Err(err))
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Mail(envelope); err != nil {
		s.log.Error("failed to set MAIL FROM", slog.String("from", envelope), sl.Err(err))
		return err
	}
	for _, addr := range to {
		if err := client.Rcpt(addr); err != nil {
			s.log.Error("failed to set RCPT TO", slog.String("recipient", addr), sl.Err(err))
			return err
		}
	}

	wc, err := client.Data()
	if err != nil {
		s.log.Error("failed to get Data writer", sl.Err(err))
		return err
	}
	if _, err = wc.Write([]byte(msg)); err != nil {
		s.log.Error("failed to write email body", sl.Err(err))
		return err
	}
	if err = wc.Close(); err != nil {
		s.log.Error("failed to close Data writer", sl.Err(err))
		return err
	}
	if err = client.Quit(); err != nil {
		s.log.Error("failed to quit SMTP client", sl.Err(err))
		return err
	}
	return nil
}
