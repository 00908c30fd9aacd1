package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/magabrotheeeer/entitlement-service/internal/models"
)

const subscriberColumns = `user_uid, email, subscription_status, subscription_tier, premium_badge,
	pro_enabled, plan, subscription_started_at, subscription_ends_at, last_payment_ref,
	provider_customer_id, renewal_canceled_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscriber(row rowScanner) (*models.Subscriber, error) {
	var sub models.Subscriber
	var startedAt, endsAt, canceledAt sql.NullTime
	var lastRef, customerID sql.NullString
	err := row.Scan(&sub.UserUID, &sub.Email, &sub.Status, &sub.Tier, &sub.PremiumBadge,
		&sub.ProEnabled, &sub.Plan, &startedAt, &endsAt, &lastRef,
		&customerID, &canceledAt, &sub.UpdatedAt)
	if err != nil {
		return nil, err
	}
	sub.StartedAt = nullTime(startedAt)
	sub.EndsAt = nullTime(endsAt)
	sub.RenewalCanceledAt = nullTime(canceledAt)
	sub.LastPaymentRef = nullString(lastRef)
	sub.ProviderCustomerID = nullString(customerID)
	return &sub, nil
}

// GetSubscriber возвращает запись подписчика по идентификатору пользователя.
func (s *Storage) GetSubscriber(ctx context.Context, userUID string) (*models.Subscriber, error) {
	const op = "storage.GetSubscriber"
	query := `SELECT ` + subscriberColumns + ` FROM subscribers WHERE user_uid = $1`
	sub, err := scanSubscriber(s.DB.QueryRowContext(ctx, query, userUID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, models.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// GetSubscriberByEmail возвращает последнюю обновлённую запись с указанным email.
func (s *Storage) GetSubscriberByEmail(ctx context.Context, email string) (*models.Subscriber, error) {
	const op = "storage.GetSubscriberByEmail"
	query := `SELECT ` + subscriberColumns + ` FROM subscribers
			  WHERE LOWER(email) = LOWER($1)
			  ORDER BY updated_at DESC LIMIT 1`
	sub, err := scanSubscriber(s.DB.QueryRowContext(ctx, query, strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, models.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// FindUserUIDByEmail сопоставляет email покупателя с идентификатором пользователя.
// Сначала ищет среди подписчиков, затем среди платежей.
func (s *Storage) FindUserUIDByEmail(ctx context.Context, email string) (string, error) {
	const op = "storage.FindUserUIDByEmail"
	query := `SELECT user_uid FROM (
				SELECT user_uid, 0 AS priority, updated_at AS seen_at FROM subscribers
				WHERE LOWER(email) = LOWER($1)
				UNION ALL
				SELECT user_uid, 1 AS priority, created_at AS seen_at FROM payments
				WHERE LOWER(email) = LOWER($1)
			  ) candidates
			  ORDER BY priority, seen_at DESC
			  LIMIT 1`
	var uid string
	err := s.DB.QueryRowContext(ctx, query, strings.TrimSpace(email)).Scan(&uid)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%s: %w", op, models.ErrNotFound)
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return uid, nil
}

// upsertSubscriberQuery зачисляет оплаченный период. Условие в ON CONFLICT
// подставляется вызывающим кодом.
const upsertSubscriberQuery = `INSERT INTO subscribers (user_uid, email, subscription_status, subscription_tier,
		premium_badge, pro_enabled, plan, subscription_started_at, subscription_ends_at,
		last_payment_ref, provider_customer_id, renewal_canceled_at, updated_at)
	VALUES ($1, $2, $3, $4, TRUE, TRUE, 'pro', $5, $6, $7, $8, NULL, NOW())
	ON CONFLICT (user_uid) DO UPDATE SET
		email = EXCLUDED.email,
		subscription_status = EXCLUDED.subscription_status,
		subscription_tier = EXCLUDED.subscription_tier,
		premium_badge = TRUE,
		pro_enabled = TRUE,
		plan = 'pro',
		subscription_started_at = EXCLUDED.subscription_started_at,
		subscription_ends_at = EXCLUDED.subscription_ends_at,
		last_payment_ref = EXCLUDED.last_payment_ref,
		provider_customer_id = COALESCE(EXCLUDED.provider_customer_id, subscribers.provider_customer_id),
		renewal_canceled_at = NULL,
		updated_at = NOW()
	WHERE `

// activateWhere не даёт понизить lifetime до ограниченного тарифа.
const activateWhere = `subscribers.subscription_status <> 'lifetime' OR EXCLUDED.subscription_status = 'lifetime'`

// creditInactiveWhere зачисляет период только неактивному подписчику.
const creditInactiveWhere = `subscribers.subscription_status NOT IN ('active', 'lifetime')`

func activate(ctx context.Context, ex execer, a models.Activation, where string) (bool, error) {
	res, err := ex.ExecContext(ctx, upsertSubscriberQuery+where,
		a.UserUID, a.Email, a.Status, a.Tier, a.StartedAt, a.EndsAt, a.PaymentRef, a.ProviderCustomerID)
	if err != nil {
		return false, err
	}
	return rowsChanged(res)
}

// ActivateSubscriber создаёт или обновляет подписчика по оплаченному периоду.
// Возвращает false, если запись не изменилась (lifetime не понижается).
func (s *Storage) ActivateSubscriber(ctx context.Context, a models.Activation) (bool, error) {
	const op = "storage.ActivateSubscriber"
	ok, err := activate(ctx, s.DB, a, activateWhere)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return ok, nil
}

// ExpireSubscriber переводит подписку в expired, если она всё ещё active или past_due
// и её дата окончания раньше cutoff. Возвращает false, если переход уже выполнен.
func (s *Storage) ExpireSubscriber(ctx context.Context, userUID string, cutoff time.Time) (bool, error) {
	const op = "storage.ExpireSubscriber"
	query := `UPDATE subscribers
			  SET subscription_status = 'expired', premium_badge = FALSE, pro_enabled = FALSE, updated_at = NOW()
			  WHERE user_uid = $1
			    AND subscription_status IN ('active', 'past_due')
			    AND (subscription_ends_at IS NULL OR subscription_ends_at < $2)`
	res, err := s.DB.ExecContext(ctx, query, userUID, cutoff)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	ok, err := rowsChanged(res)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return ok, nil
}

// CancelRenewal отключает автопродление. Статус и дата окончания не меняются.
// Возвращает ErrNoActiveSubscription, если подписка не active и не lifetime.
func (s *Storage) CancelRenewal(ctx context.Context, userUID string, now time.Time) (*models.Subscriber, error) {
	const op = "storage.CancelRenewal"
	query := `UPDATE subscribers
			  SET pro_enabled = FALSE, plan = 'free',
			      renewal_canceled_at = COALESCE(renewal_canceled_at, $2), updated_at = NOW()
			  WHERE user_uid = $1 AND subscription_status IN ('active', 'lifetime')
			  RETURNING ` + subscriberColumns
	sub, err := scanSubscriber(s.DB.QueryRowContext(ctx, query, userUID, now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, models.ErrNoActiveSubscription)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// FindOverdueSubscribers возвращает подписчиков с ограниченным тарифом,
// чья дата окончания раньше cutoff, а статус ещё active или past_due.
func (s *Storage) FindOverdueSubscribers(ctx context.Context, tiers []models.SubscriptionTier, cutoff time.Time, limit int) ([]*models.Subscriber, error) {
	const op = "storage.FindOverdueSubscribers"
	query := `SELECT ` + subscriberColumns + ` FROM subscribers
			  WHERE subscription_tier = ANY($1)
			    AND subscription_status IN ('active', 'past_due')
			    AND subscription_ends_at < $2
			  ORDER BY subscription_ends_at
			  LIMIT $3`
	return s.listSubscribers(ctx, op, query, tierNames(tiers), cutoff, limit)
}

// FindActiveMonthly возвращает активных ежемесячных подписчиков, у которых
// не отменено продление.
func (s *Storage) FindActiveMonthly(ctx context.Context, limit int) ([]*models.Subscriber, error) {
	const op = "storage.FindActiveMonthly"
	query := `SELECT ` + subscriberColumns + ` FROM subscribers
			  WHERE subscription_tier = 'monthly'
			    AND subscription_status = 'active'
			    AND subscription_ends_at IS NOT NULL
			    AND renewal_canceled_at IS NULL
			  ORDER BY subscription_ends_at
			  LIMIT $1`
	return s.listSubscribers(ctx, op, query, limit)
}

func (s *Storage) listSubscribers(ctx context.Context, op, query string, args ...any) ([]*models.Subscriber, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Subscriber
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

func tierNames(tiers []models.SubscriptionTier) []string {
	out := make([]string, len(tiers))
	for i, t := range tiers {
		out[i] = string(t)
	}
	return out
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
