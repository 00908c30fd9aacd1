// Package reconciliation сверяет историю успешных транзакций провайдера с
// хранилищем подписок и зачисляет пропущенные периоды.
package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/magabrotheeeer/entitlement-service/internal/config"
	"github.com/magabrotheeeer/entitlement-service/internal/lib/period"
	"github.com/magabrotheeeer/entitlement-service/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-service/internal/metrics"
	"github.com/magabrotheeeer/entitlement-service/internal/models"
	"github.com/magabrotheeeer/entitlement-service/internal/paymentprovider"
)

const jobName = "reconcile"

// Repository описывает операции хранилища, нужные сверке.
type Repository interface {
	GetPayment(ctx context.Context, reference string) (*models.Payment, error)
	FindUserUIDByEmail(ctx context.Context, email string) (string, error)
	GetSubscriber(ctx context.Context, userUID string) (*models.Subscriber, error)
	ListPaymentsForUser(ctx context.Context, userUID string) ([]*models.Payment, error)
	ApplyReconciledPayment(ctx context.Context, p models.Payment, a models.Activation) (bool, error)
}

// TransactionSource отдаёт историю транзакций провайдера.
type TransactionSource interface {
	ListTransactions(ctx context.Context, status string, from, to time.Time) ([]paymentprovider.Transaction, error)
}

// Service выполняет сверку.
type Service struct {
	repo    Repository
	source  TransactionSource
	cfg     config.Reconciliation
	grace   time.Duration
	metrics *metrics.Metrics
	log     *slog.Logger
	now     func() time.Time
}

// New создаёт новый Service.
func New(repo Repository, source TransactionSource, cfg config.Reconciliation, grace time.Duration, m *metrics.Metrics, log *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		source:  source,
		cfg:     cfg,
		grace:   grace,
		metrics: m,
		log:     log,
		now:     time.Now,
	}
}

// WithClock подменяет источник текущего времени.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type credit struct {
	reference string
	at        time.Time
}

// outcome — результат обработки одной транзакции.
type outcome int

const (
	outcomeUpdated outcome = iota
	outcomeAlreadyActive
	outcomeDuplicate
	outcomeUnmatched
	outcomeSkipped
	outcomeFailed
)

// Run выполняет один проход сверки. Ошибка отдельной транзакции не прерывает
// проход: она учитывается в Failed. Ошибка возвращается, только если не удалось
// получить историю транзакций.
func (s *Service) Run(ctx context.Context) (models.ReconcileResult, error) {
	const op = "reconciliation.Run"
	log := s.log.With(sl.Op(op))
	started := time.Now()
	now := s.now()

	result := models.ReconcileResult{Duplicates: []models.DuplicatePayment{}}

	txs, err := s.source.ListTransactions(ctx, paymentprovider.TxSuccess, now.Add(-s.cfg.Window), now)
	if err != nil {
		s.metrics.ObserveJob(jobName, started, 1)
		return result, fmt.Errorf("%s: %w", op, err)
	}
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].Time().Before(txs[j].Time())
	})
	log.Info("reconciliation started", slog.Int("transactions", len(txs)))

	credited := make(map[string]credit)
	for i := range txs {
		if ctx.Err() != nil {
			log.Warn("reconciliation interrupted", sl.Err(ctx.Err()))
			break
		}
		tx := &txs[i]
		result.TotalTransactions++

		res, dup, err := s.reconcile(ctx, tx, now, credited)
		if err != nil {
			log.Error("failed to reconcile transaction", slog.String("reference", tx.Reference), sl.Err(err))
		}
		switch res {
		case outcomeUpdated:
			result.UpdatedSubscribers++
		case outcomeAlreadyActive:
			result.AlreadyActive++
		case outcomeDuplicate:
			result.DuplicatesFound++
			result.Duplicates = append(result.Duplicates, dup)
		case outcomeUnmatched:
			result.Unmatched++
		case outcomeSkipped:
			result.Skipped++
		case outcomeFailed:
			result.Failed++
		}
	}

	s.metrics.AddJobItems(jobName, "updated", result.UpdatedSubscribers)
	s.metrics.AddJobItems(jobName, "already_active", result.AlreadyActive)
	s.metrics.AddJobItems(jobName, "duplicate", result.DuplicatesFound)
	s.metrics.AddJobItems(jobName, "unmatched", result.Unmatched)
	s.metrics.AddJobItems(jobName, "failed", result.Failed)
	s.metrics.ObserveJob(jobName, started, result.Failed)

	log.Info("reconciliation finished",
		slog.Int("total", result.TotalTransactions),
		slog.Int("updated", result.UpdatedSubscribers),
		slog.Int("already_active", result.AlreadyActive),
		slog.Int("duplicates", result.DuplicatesFound),
		slog.Int("unmatched", result.Unmatched),
		slog.Int("skipped", result.Skipped),
		slog.Int("failed", result.Failed),
	)
	return result, nil
}

func (s *Service) reconcile(ctx context.Context, tx *paymentprovider.Transaction, now time.Time,
	credited map[string]credit) (outcome, models.DuplicatePayment, error) {
	var none models.DuplicatePayment

	if !tx.Succeeded() {
		return outcomeSkipped, none, nil
	}
	email := tx.Email()
	uid, err := s.resolveUser(ctx, tx, email)
	if err != nil {
		return outcomeFailed, none, err
	}
	if uid == "" {
		s.log.Info("no account for transaction", slog.String("reference", tx.Reference))
		return outcomeUnmatched, none, nil
	}

	paidAt := tx.Time()
	if prev, ok := credited[uid]; ok && period.Within(paidAt, prev.at, s.cfg.DuplicateWindow) {
		return outcomeDuplicate, duplicate(tx, email, prev.reference, prev.at), nil
	}

	sub, err := s.repo.GetSubscriber(ctx, uid)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return outcomeFailed, none, err
	}
	if sub != nil && (sub.Status == models.StatusActive || sub.Status == models.StatusLifetime) {
		return outcomeAlreadyActive, none, nil
	}

	tier := s.classify(tx)
	endsAt := period.End(tier, paidAt)
	if endsAt != nil && now.After(endsAt.Add(s.grace)) {
		return outcomeSkipped, none, nil
	}

	payments, err := s.repo.ListPaymentsForUser(ctx, uid)
	if err != nil {
		return outcomeFailed, none, err
	}
	for _, p := range payments {
		if p.Status != models.PaymentSuccess {
			continue
		}
		if p.Reference == tx.Reference {
			// уже зачтена при проверке платежа или прошлой сверкой
			return outcomeSkipped, none, nil
		}
		startedAt := p.CreatedAt
		if p.PaidAt != nil {
			startedAt = *p.PaidAt
		}
		if period.Within(paidAt, startedAt, s.cfg.DuplicateWindow) {
			return outcomeDuplicate, duplicate(tx, email, p.Reference, startedAt), nil
		}
	}
	if sub != nil && sub.StartedAt != nil && sub.LastPaymentRef != nil && *sub.LastPaymentRef != tx.Reference &&
		period.Within(paidAt, *sub.StartedAt, s.cfg.DuplicateWindow) {
		return outcomeDuplicate, duplicate(tx, email, *sub.LastPaymentRef, *sub.StartedAt), nil
	}

	txID := strconv.FormatInt(tx.ID, 10)
	payment := models.Payment{
		Reference:             tx.Reference,
		UserUID:               uid,
		Email:                 email,
		Amount:                tx.Amount,
		Currency:              tx.Currency,
		Tier:                  tier,
		Status:                models.PaymentSuccess,
		ProviderTransactionID: &txID,
		PaidAt:                &paidAt,
	}
	activation := models.Activation{
		UserUID:    uid,
		Email:      email,
		Status:     period.StatusFor(tier),
		Tier:       tier,
		StartedAt:  paidAt,
		EndsAt:     endsAt,
		PaymentRef: tx.Reference,
	}
	if tx.Customer.CustomerCode != "" {
		code := tx.Customer.CustomerCode
		activation.ProviderCustomerID = &code
	}

	ok, err := s.repo.ApplyReconciledPayment(ctx, payment, activation)
	if err != nil {
		return outcomeFailed, none, err
	}
	if !ok {
		return outcomeAlreadyActive, none, nil
	}
	credited[uid] = credit{reference: tx.Reference, at: paidAt}
	s.metrics.IncCredit(jobName, string(tier))
	s.log.Info("subscriber credited from processor history",
		sl.UserUID(uid), slog.String("reference", tx.Reference), slog.String("tier", string(tier)))
	return outcomeUpdated, none, nil
}

// resolveUser находит покупателя транзакции. Сначала по локальному платежу
// с той же ссылкой, затем по user_uid из метаданных checkout и только потом
// по email. Пустой uid без ошибки означает, что аккаунт не найден.
func (s *Service) resolveUser(ctx context.Context, tx *paymentprovider.Transaction, email string) (string, error) {
	p, err := s.repo.GetPayment(ctx, tx.Reference)
	switch {
	case err == nil && p.UserUID != "":
		return p.UserUID, nil
	case err != nil && !errors.Is(err, models.ErrNotFound):
		return "", err
	}

	if uid := strings.TrimSpace(tx.Meta("user_uid")); uid != "" {
		return uid, nil
	}

	if email == "" {
		return "", nil
	}
	uid, err := s.repo.FindUserUIDByEmail(ctx, email)
	if errors.Is(err, models.ErrNotFound) {
		return "", nil
	}
	return uid, err
}

// classify определяет тариф по метаданным транзакции, а при их отсутствии по сумме.
func (s *Service) classify(tx *paymentprovider.Transaction) models.SubscriptionTier {
	if interval := tx.Meta("interval"); interval != "" {
		return period.TierFromInterval(strings.ToLower(interval))
	}
	switch {
	case s.cfg.LifetimeThreshold > 0 && tx.Amount >= s.cfg.LifetimeThreshold:
		return models.TierLifetime
	case s.cfg.AnnualThreshold > 0 && tx.Amount >= s.cfg.AnnualThreshold:
		return models.TierAnnual
	default:
		return models.TierMonthly
	}
}

func duplicate(tx *paymentprovider.Transaction, email, existingRef string, existingAt time.Time) models.DuplicatePayment {
	return models.DuplicatePayment{
		Email:             email,
		Reference:         tx.Reference,
		ExistingReference: existingRef,
		PaidAt:            tx.Time(),
		ExistingStartedAt: existingAt,
	}
}
