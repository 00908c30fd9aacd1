package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/magabrotheeeer/entitlement-service/internal/migrations"
	"github.com/magabrotheeeer/entitlement-service/internal/models"
)

// setupTestDatabase поднимает PostgreSQL в контейнере и применяет миграции.
func setupTestDatabase(t *testing.T) (*Storage, func()) {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	require.NoError(t, err, "failed to start container")

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	storage, err := New(dsn)
	require.NoError(t, err, "failed to create storage")

	root, err := filepath.Abs("../../..")
	require.NoError(t, err)
	_, err = migrations.Run(storage.DB, filepath.Join(root, "migrations"))
	require.NoError(t, err)

	cleanup := func() {
		_ = storage.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}
	return storage, cleanup
}

// TestDataFactory создаёт тестовые записи напрямую в базе.
type TestDataFactory struct {
	storage *Storage
}

// NewTestDataFactory создает новую фабрику тестовых данных
func NewTestDataFactory(storage *Storage) *TestDataFactory {
	return &TestDataFactory{storage: storage}
}

// CreateSubscriber создаёт подписчика с указанным статусом, тарифом и датой окончания.
func (f *TestDataFactory) CreateSubscriber(t *testing.T, email string, status models.SubscriptionStatus,
	tier models.SubscriptionTier, endsAt *time.Time) string {
	t.Helper()
	uid := uuid.New().String()
	badge := status == models.StatusActive || status == models.StatusLifetime
	_, err := f.storage.DB.Exec(`INSERT INTO subscribers
		(user_uid, email, subscription_status, subscription_tier, premium_badge, pro_enabled, plan,
		 subscription_started_at, subscription_ends_at)
		VALUES ($1, $2, $3, $4, $5, $5, 'pro', NOW() - INTERVAL '1 day', $6)`,
		uid, email, status, tier, badge, endsAt)
	require.NoError(t, err)
	return uid
}

// CreatePayment создаёт ожидающий платёж.
func (f *TestDataFactory) CreatePayment(t *testing.T, userUID, email string, amount int64) string {
	t.Helper()
	ref := uuid.New().String()
	err := f.storage.CreatePendingPayment(context.Background(), models.Payment{
		Reference: ref,
		UserUID:   userUID,
		Email:     email,
		Amount:    amount,
		Currency:  "NGN",
		Tier:      models.TierMonthly,
	})
	require.NoError(t, err)
	return ref
}

func ptrTime(t time.Time) *time.Time {
	return &t
}
