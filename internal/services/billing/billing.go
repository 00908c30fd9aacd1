// Package billing реализует биллинговый крон: отправку наступивших напоминаний,
// перевод просроченных подписок в expired и планирование напоминаний о продлении.
package billing

import (
	"context"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/entitlement-service/internal/config"
	"github.com/magabrotheeeer/entitlement-service/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-service/internal/metrics"
	"github.com/magabrotheeeer/entitlement-service/internal/models"
)

const jobName = "billing"

// Repository описывает операции хранилища, нужные крону.
type Repository interface {
	FindOverdueSubscribers(ctx context.Context, tiers []models.SubscriptionTier, cutoff time.Time, limit int) ([]*models.Subscriber, error)
	ExpireSubscriber(ctx context.Context, userUID string, cutoff time.Time) (bool, error)
	FindActiveMonthly(ctx context.Context, limit int) ([]*models.Subscriber, error)
	ReminderExists(ctx context.Context, userUID string, reminderType models.ReminderType, from time.Time) (bool, error)
	CreateReminder(ctx context.Context, userUID string, reminderType models.ReminderType, scheduledAt time.Time) (bool, error)
	FindDueReminders(ctx context.Context, now time.Time, limit int) ([]*models.ReminderNotice, error)
	MarkReminderSent(ctx context.Context, id int64, now time.Time) (bool, error)
}

// Dispatcher доставляет напоминание пользователю.
type Dispatcher interface {
	Dispatch(ctx context.Context, notice models.ReminderNotice) error
}

// reminderOffsets: за сколько до даты окончания отправляется напоминание каждого типа.
var reminderOffsets = []struct {
	kind   models.ReminderType
	before time.Duration
}{
	{models.ReminderRenewal3d, 3 * 24 * time.Hour},
	{models.ReminderRenewal1d, 24 * time.Hour},
	{models.ReminderRenewalToday, 0},
}

// Тарифы с датой окончания.
var expiringTiers = []models.SubscriptionTier{models.TierMonthly, models.TierAnnual}

// Service выполняет проходы биллингового крона.
type Service struct {
	repo       Repository
	dispatcher Dispatcher
	cfg        config.Billing
	metrics    *metrics.Metrics
	log        *slog.Logger
	now        func() time.Time
}

// New создаёт новый Service.
func New(repo Repository, dispatcher Dispatcher, cfg config.Billing, m *metrics.Metrics, log *slog.Logger) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	return &Service{
		repo:       repo,
		dispatcher: dispatcher,
		cfg:        cfg,
		metrics:    m,
		log:        log,
		now:        time.Now,
	}
}

// WithClock подменяет источник текущего времени.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Run выполняет все проходы. Ошибки отдельных строк логируются и учитываются
// в Failed, проход продолжается; необработанные строки подхватит следующий запуск.
func (s *Service) Run(ctx context.Context) models.BillingRunResult {
	const op = "billing.Run"
	log := s.log.With(sl.Op(op))
	started := time.Now()
	now := s.now()

	var result models.BillingRunResult
	s.dispatchDue(ctx, now, &result)
	s.expireOverdue(ctx, now, &result)
	s.scheduleReminders(ctx, now, &result)

	s.metrics.AddJobItems(jobName, "reminder_sent", result.ProcessedReminders)
	s.metrics.AddJobItems(jobName, "expired", result.ExpiredSubscriptions)
	s.metrics.AddJobItems(jobName, "reminder_scheduled", result.ScheduledReminders)
	s.metrics.AddJobItems(jobName, "failed", result.Failed)
	s.metrics.ObserveJob(jobName, started, result.Failed)

	log.Info("billing run finished",
		slog.Int("processed_reminders", result.ProcessedReminders),
		slog.Int("expired_subscriptions", result.ExpiredSubscriptions),
		slog.Int("scheduled_reminders", result.ScheduledReminders),
		slog.Int("failed", result.Failed),
	)
	return result
}

func (s *Service) expireOverdue(ctx context.Context, now time.Time, result *models.BillingRunResult) {
	cutoff := now.Add(-s.cfg.GracePeriod)
	subs, err := s.repo.FindOverdueSubscribers(ctx, expiringTiers, cutoff, s.cfg.BatchSize)
	if err != nil {
		s.log.Error("failed to find overdue subscribers", sl.Err(err))
		result.Failed++
		return
	}
	for _, sub := range subs {
		expired, err := s.repo.ExpireSubscriber(ctx, sub.UserUID, cutoff)
		if err != nil {
			s.log.Error("failed to expire subscriber", sl.UserUID(sub.UserUID), sl.Err(err))
			result.Failed++
			continue
		}
		if expired {
			result.ExpiredSubscriptions++
			s.metrics.IncExpiration("cron")
		}
	}
}

func (s *Service) scheduleReminders(ctx context.Context, now time.Time, result *models.BillingRunResult) {
	subs, err := s.repo.FindActiveMonthly(ctx, s.cfg.BatchSize)
	if err != nil {
		s.log.Error("failed to find active monthly subscribers", sl.Err(err))
		result.Failed++
		return
	}
	for _, sub := range subs {
		if sub.EndsAt == nil || sub.RenewalCanceledAt != nil {
			continue
		}
		for _, r := range reminderOffsets {
			scheduledAt := sub.EndsAt.Add(-r.before)
			if !scheduledAt.After(now) {
				continue
			}
			exists, err := s.repo.ReminderExists(ctx, sub.UserUID, r.kind, now)
			if err != nil {
				s.log.Error("failed to check reminder", sl.UserUID(sub.UserUID), sl.Err(err))
				result.Failed++
				continue
			}
			if exists {
				continue
			}
			created, err := s.repo.CreateReminder(ctx, sub.UserUID, r.kind, scheduledAt)
			if err != nil {
				s.log.Error("failed to create reminder", sl.UserUID(sub.UserUID), sl.Err(err))
				result.Failed++
				continue
			}
			if created {
				result.ScheduledReminders++
				s.metrics.IncReminder(string(r.kind), "scheduled")
			}
		}
	}
}

func (s *Service) dispatchDue(ctx context.Context, now time.Time, result *models.BillingRunResult) {
	due, err := s.repo.FindDueReminders(ctx, now, s.cfg.BatchSize)
	if err != nil {
		s.log.Error("failed to find due reminders", sl.Err(err))
		result.Failed++
		return
	}
	for _, notice := range due {
		if notice.RenewalCanceled || !matchesCurrentPeriod(notice) {
			// продление отменено, подписка продлена или сменила тариф:
			// напоминание закрывается без отправки
			s.log.Info("stale reminder closed without sending",
				sl.UserUID(notice.UserUID), slog.Int64("reminder_id", notice.ReminderID))
			s.metrics.IncReminder(string(notice.ReminderType), "closed")
			if _, err := s.repo.MarkReminderSent(ctx, notice.ReminderID, now); err != nil {
				s.log.Error("failed to close reminder", slog.Int64("reminder_id", notice.ReminderID), sl.Err(err))
				result.Failed++
			}
			continue
		}
		if err := s.dispatcher.Dispatch(ctx, *notice); err != nil {
			s.log.Error("failed to dispatch reminder", slog.Int64("reminder_id", notice.ReminderID), sl.Err(err))
			result.Failed++
			continue
		}
		marked, err := s.repo.MarkReminderSent(ctx, notice.ReminderID, now)
		if err != nil {
			s.log.Error("failed to mark reminder sent", slog.Int64("reminder_id", notice.ReminderID), sl.Err(err))
			result.Failed++
			continue
		}
		if marked {
			result.ProcessedReminders++
			s.metrics.IncReminder(string(notice.ReminderType), "sent")
		}
	}
}

// matchesCurrentPeriod сообщает, что напоминание запланировано от текущей даты
// окончания активной месячной подписки.
func matchesCurrentPeriod(n *models.ReminderNotice) bool {
	if n.SubscriptionStatus != models.StatusActive || n.SubscriptionTier != models.TierMonthly || n.SubscriptionEndsAt == nil {
		return false
	}
	for _, r := range reminderOffsets {
		if r.kind == n.ReminderType {
			return n.ScheduledAt.Equal(n.SubscriptionEndsAt.Add(-r.before))
		}
	}
	return false
}
