package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/entitlement-service/internal/models"
)

func TestStorage_Reminders(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	factory := NewTestDataFactory(storage)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	endsAt := now.Add(72 * time.Hour)
	uid := factory.CreateSubscriber(t, "remind@example.com", models.StatusActive, models.TierMonthly, &endsAt)

	exists, err := storage.ReminderExists(ctx, uid, models.ReminderRenewal1d, now)
	require.NoError(t, err)
	assert.False(t, exists)

	created, err := storage.CreateReminder(ctx, uid, models.ReminderRenewal1d, endsAt.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.True(t, created)

	created, err = storage.CreateReminder(ctx, uid, models.ReminderRenewal1d, endsAt.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.False(t, created, "same (user, type, time) must not be inserted twice")

	exists, err = storage.ReminderExists(ctx, uid, models.ReminderRenewal1d, now)
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = storage.CreateReminder(ctx, uid, models.ReminderRenewal3d, now.Add(-time.Minute))
	require.NoError(t, err)

	due, err := storage.FindDueReminders(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, models.ReminderRenewal3d, due[0].ReminderType)
	assert.Equal(t, "remind@example.com", due[0].Email)
	require.NotNil(t, due[0].SubscriptionEndsAt)
	assert.Equal(t, models.StatusActive, due[0].SubscriptionStatus)
	assert.Equal(t, models.TierMonthly, due[0].SubscriptionTier)
	assert.False(t, due[0].RenewalCanceled)

	sent, err := storage.MarkReminderSent(ctx, due[0].ReminderID, now)
	require.NoError(t, err)
	assert.True(t, sent)
	sent, err = storage.MarkReminderSent(ctx, due[0].ReminderID, now)
	require.NoError(t, err)
	assert.False(t, sent)

	due, err = storage.FindDueReminders(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}
