package entitlement

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/entitlement-service/internal/models"
)

type RepoMock struct{ mock.Mock }

func (m *RepoMock) GetSubscriber(ctx context.Context, userUID string) (*models.Subscriber, error) {
	args := m.Called(ctx, userUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscriber), args.Error(1)
}

func (m *RepoMock) ExpireSubscriber(ctx context.Context, userUID string, cutoff time.Time) (bool, error) {
	args := m.Called(ctx, userUID, cutoff)
	return args.Bool(0), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestEvaluator_Current(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	future := now.AddDate(0, 0, 20)
	longAgo := now.AddDate(0, 0, -40)

	tests := []struct {
		name       string
		setupMocks func(r *RepoMock)
		wantPro    bool
		wantStatus models.SubscriptionStatus
		wantErr    bool
	}{
		{
			name: "active subscriber is pro",
			setupMocks: func(r *RepoMock) {
				r.On("GetSubscriber", mock.Anything, "user-1").Return(&models.Subscriber{
					UserUID: "user-1", Status: models.StatusActive, Tier: models.TierMonthly,
					PremiumBadge: true, EndsAt: &future,
				}, nil).Once()
			},
			wantPro:    true,
			wantStatus: models.StatusActive,
		},
		{
			name: "unknown user is none",
			setupMocks: func(r *RepoMock) {
				r.On("GetSubscriber", mock.Anything, "user-1").Return(nil, models.ErrNotFound).Once()
			},
			wantStatus: models.StatusNone,
		},
		{
			name: "missed cron expires lazily",
			setupMocks: func(r *RepoMock) {
				r.On("GetSubscriber", mock.Anything, "user-1").Return(&models.Subscriber{
					UserUID: "user-1", Status: models.StatusActive, Tier: models.TierMonthly,
					PremiumBadge: true, ProEnabled: true, EndsAt: &longAgo,
				}, nil).Once()
				r.On("ExpireSubscriber", mock.Anything, "user-1", now.Add(-DefaultGracePeriod)).Return(true, nil).Once()
			},
			wantStatus: models.StatusExpired,
		},
		{
			name: "concurrent expiry is a no-op",
			setupMocks: func(r *RepoMock) {
				r.On("GetSubscriber", mock.Anything, "user-1").Return(&models.Subscriber{
					UserUID: "user-1", Status: models.StatusActive, Tier: models.TierMonthly,
					PremiumBadge: true, EndsAt: &longAgo,
				}, nil).Once()
				r.On("ExpireSubscriber", mock.Anything, "user-1", now.Add(-DefaultGracePeriod)).Return(false, nil).Once()
			},
			wantStatus: models.StatusExpired,
		},
		{
			name: "store failure",
			setupMocks: func(r *RepoMock) {
				r.On("GetSubscriber", mock.Anything, "user-1").Return(nil, errors.New("db down")).Once()
			},
			wantErr: true,
		},
		{
			name: "expire write failure",
			setupMocks: func(r *RepoMock) {
				r.On("GetSubscriber", mock.Anything, "user-1").Return(&models.Subscriber{
					UserUID: "user-1", Status: models.StatusActive, Tier: models.TierMonthly, EndsAt: &longAgo,
				}, nil).Once()
				r.On("ExpireSubscriber", mock.Anything, "user-1", mock.Anything).Return(false, errors.New("db down")).Once()
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			tt.setupMocks(repo)
			ev := NewEvaluator(repo, newNoopLogger(), DefaultGracePeriod).WithClock(func() time.Time { return now })

			ent, _, err := ev.Current(context.Background(), "user-1")
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantPro, ent.IsPro)
				assert.Equal(t, tt.wantStatus, ent.Status)
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestEvaluator_IsProFailsClosed(t *testing.T) {
	repo := new(RepoMock)
	repo.On("GetSubscriber", mock.Anything, "user-1").Return(nil, errors.New("db down")).Once()
	ev := NewEvaluator(repo, newNoopLogger(), DefaultGracePeriod)

	assert.False(t, ev.IsPro(context.Background(), "user-1"))
	repo.AssertExpectations(t)
}
