package verification

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/entitlement-service/internal/config"
	"github.com/magabrotheeeer/entitlement-service/internal/metrics"
	"github.com/magabrotheeeer/entitlement-service/internal/models"
	"github.com/magabrotheeeer/entitlement-service/internal/paymentprovider"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreatePendingPayment(ctx context.Context, p models.Payment) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockRepository) GetPayment(ctx context.Context, reference string) (*models.Payment, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

func (m *MockRepository) FailPayment(ctx context.Context, reference string) error {
	args := m.Called(ctx, reference)
	return args.Error(0)
}

func (m *MockRepository) ApplyVerifiedPayment(ctx context.Context, txID string, paidAt time.Time, a models.Activation) (bool, error) {
	args := m.Called(ctx, txID, paidAt, a)
	return args.Bool(0), args.Error(1)
}

type MockProcessor struct {
	mock.Mock
	configured bool
}

func (m *MockProcessor) Configured() bool {
	return m.configured
}

func (m *MockProcessor) Verify(ctx context.Context, reference string) (*paymentprovider.Transaction, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paymentprovider.Transaction), args.Error(1)
}

func (m *MockProcessor) Initialize(ctx context.Context, req paymentprovider.InitializeRequest) (*paymentprovider.InitializeResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paymentprovider.InitializeResponse), args.Error(1)
}

type MockInvalidator struct {
	mock.Mock
}

func (m *MockInvalidator) Invalidate(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

var (
	fixedNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	testUID  = "6f1c2a4e-8d1b-4f8e-9a57-2f7c7e1d0b11"
	plans    = &config.Config{Plans: []config.Plan{
		{Tier: "monthly", Amount: 5000, Currency: "NGN"},
		{Tier: "annual", Amount: 50000, Currency: "NGN"},
	}}
)

func pendingPayment(ref string) *models.Payment {
	return &models.Payment{
		Reference: ref,
		UserUID:   testUID,
		Email:     "user@example.com",
		Amount:    5000,
		Currency:  "NGN",
		Tier:      models.TierMonthly,
		Status:    models.PaymentPending,
	}
}

func successTx(ref string, metadata string) *paymentprovider.Transaction {
	paidAt := fixedNow.Add(-time.Minute)
	return &paymentprovider.Transaction{
		ID:        99,
		Reference: ref,
		Status:    paymentprovider.TxSuccess,
		Amount:    5000,
		Currency:  "NGN",
		PaidAt:    &paidAt,
		Customer:  paymentprovider.Customer{Email: "user@example.com", CustomerCode: "CUS_1"},
		Metadata:  []byte(metadata),
	}
}

func TestService_Verify(t *testing.T) {
	tests := []struct {
		name         string
		reference    string
		configured   bool
		setupMocks   func(*MockRepository, *MockProcessor, *MockInvalidator)
		want         models.VerifyResult
		wantErr      error
		wantAnyError bool
	}{
		{
			name:       "missing reference",
			reference:  "  ",
			configured: true,
			setupMocks: func(_ *MockRepository, _ *MockProcessor, _ *MockInvalidator) {},
			wantErr:    models.ErrNotFound,
		},
		{
			name:       "processor credentials missing",
			reference:  "ref-1",
			configured: false,
			setupMocks: func(_ *MockRepository, _ *MockProcessor, _ *MockInvalidator) {},
			wantErr:    models.ErrAuthentication,
		},
		{
			name:       "unknown reference",
			reference:  "ref-unknown",
			configured: true,
			setupMocks: func(r *MockRepository, _ *MockProcessor, _ *MockInvalidator) {
				r.On("GetPayment", mock.Anything, "ref-unknown").
					Return(nil, fmt.Errorf("storage.GetPayment: %w", models.ErrNotFound)).Once()
			},
			wantErr: models.ErrNotFound,
		},
		{
			name:       "already processed payment is not credited again",
			reference:  "ref-done",
			configured: true,
			setupMocks: func(r *MockRepository, _ *MockProcessor, _ *MockInvalidator) {
				p := pendingPayment("ref-done")
				p.Status = models.PaymentSuccess
				r.On("GetPayment", mock.Anything, "ref-done").Return(p, nil).Once()
			},
			want: models.VerifyResult{Status: models.PaymentSuccess, Amount: 50, Currency: "NGN"},
		},
		{
			name:       "successful monthly payment",
			reference:  "ref-ok",
			configured: true,
			setupMocks: func(r *MockRepository, p *MockProcessor, c *MockInvalidator) {
				r.On("GetPayment", mock.Anything, "ref-ok").Return(pendingPayment("ref-ok"), nil).Once()
				p.On("Verify", mock.Anything, "ref-ok").Return(successTx("ref-ok", `{"interval":"monthly"}`), nil).Once()
				r.On("ApplyVerifiedPayment", mock.Anything, "99", fixedNow.Add(-time.Minute),
					mock.MatchedBy(func(a models.Activation) bool {
						return a.UserUID == testUID &&
							a.Status == models.StatusActive &&
							a.Tier == models.TierMonthly &&
							a.StartedAt.Equal(fixedNow) &&
							a.EndsAt != nil && a.EndsAt.Equal(fixedNow.AddDate(0, 1, 0)) &&
							a.PaymentRef == "ref-ok" &&
							a.ProviderCustomerID != nil && *a.ProviderCustomerID == "CUS_1"
					})).Return(true, nil).Once()
				c.On("Invalidate", mock.Anything, "entitlement:"+testUID).Return(nil).Once()
			},
			want: models.VerifyResult{Status: models.PaymentSuccess, Amount: 50, Currency: "NGN"},
		},
		{
			name:       "annual interval from metadata",
			reference:  "ref-annual",
			configured: true,
			setupMocks: func(r *MockRepository, p *MockProcessor, c *MockInvalidator) {
				r.On("GetPayment", mock.Anything, "ref-annual").Return(pendingPayment("ref-annual"), nil).Once()
				p.On("Verify", mock.Anything, "ref-annual").Return(successTx("ref-annual", `{"interval":"annually"}`), nil).Once()
				r.On("ApplyVerifiedPayment", mock.Anything, "99", mock.Anything,
					mock.MatchedBy(func(a models.Activation) bool {
						return a.Tier == models.TierAnnual && a.EndsAt != nil && a.EndsAt.Equal(fixedNow.AddDate(1, 0, 0))
					})).Return(true, nil).Once()
				c.On("Invalidate", mock.Anything, mock.Anything).Return(errors.New("redis down")).Once()
			},
			want: models.VerifyResult{Status: models.PaymentSuccess, Amount: 50, Currency: "NGN"},
		},
		{
			name:       "failed payment leaves subscriber untouched",
			reference:  "ref-fail",
			configured: true,
			setupMocks: func(r *MockRepository, p *MockProcessor, _ *MockInvalidator) {
				r.On("GetPayment", mock.Anything, "ref-fail").Return(pendingPayment("ref-fail"), nil).Once()
				p.On("Verify", mock.Anything, "ref-fail").Return(&paymentprovider.Transaction{
					Reference: "ref-fail", Status: paymentprovider.TxFailed, Amount: 5000, Currency: "NGN",
				}, nil).Once()
				r.On("FailPayment", mock.Anything, "ref-fail").Return(nil).Once()
			},
			want: models.VerifyResult{Status: models.PaymentFailed, Amount: 50, Currency: "NGN"},
		},
		{
			name:       "reversed payment is final",
			reference:  "ref-rev",
			configured: true,
			setupMocks: func(r *MockRepository, p *MockProcessor, _ *MockInvalidator) {
				r.On("GetPayment", mock.Anything, "ref-rev").Return(pendingPayment("ref-rev"), nil).Once()
				p.On("Verify", mock.Anything, "ref-rev").Return(&paymentprovider.Transaction{
					Reference: "ref-rev", Status: paymentprovider.TxReversed, Amount: 5000, Currency: "NGN",
				}, nil).Once()
				r.On("FailPayment", mock.Anything, "ref-rev").Return(nil).Once()
			},
			want: models.VerifyResult{Status: models.PaymentFailed, Amount: 50, Currency: "NGN"},
		},
		{
			name:       "unsettled payment stays pending",
			reference:  "ref-ongoing",
			configured: true,
			setupMocks: func(r *MockRepository, p *MockProcessor, _ *MockInvalidator) {
				r.On("GetPayment", mock.Anything, "ref-ongoing").Return(pendingPayment("ref-ongoing"), nil).Once()
				p.On("Verify", mock.Anything, "ref-ongoing").Return(&paymentprovider.Transaction{
					Reference: "ref-ongoing", Status: "ongoing", Amount: 5000, Currency: "NGN",
				}, nil).Once()
			},
			want: models.VerifyResult{Status: models.PaymentFailed, Amount: 50, Currency: "NGN"},
		},
		{
			name:       "provider unavailable",
			reference:  "ref-down",
			configured: true,
			setupMocks: func(r *MockRepository, p *MockProcessor, _ *MockInvalidator) {
				r.On("GetPayment", mock.Anything, "ref-down").Return(pendingPayment("ref-down"), nil).Once()
				p.On("Verify", mock.Anything, "ref-down").
					Return(nil, fmt.Errorf("paymentprovider.Verify: %w", models.ErrExternalProvider)).Once()
			},
			wantErr: models.ErrExternalProvider,
		},
		{
			name:       "concurrent verify already applied the payment",
			reference:  "ref-race",
			configured: true,
			setupMocks: func(r *MockRepository, p *MockProcessor, _ *MockInvalidator) {
				r.On("GetPayment", mock.Anything, "ref-race").Return(pendingPayment("ref-race"), nil).Once()
				p.On("Verify", mock.Anything, "ref-race").Return(successTx("ref-race", `{}`), nil).Once()
				r.On("ApplyVerifiedPayment", mock.Anything, "99", mock.Anything, mock.Anything).
					Return(false, fmt.Errorf("storage.ApplyVerifiedPayment: %w", models.ErrConsistencyViolation)).Once()
				done := pendingPayment("ref-race")
				done.Status = models.PaymentSuccess
				r.On("GetPayment", mock.Anything, "ref-race").Return(done, nil).Once()
			},
			want: models.VerifyResult{Status: models.PaymentSuccess, Amount: 50, Currency: "NGN"},
		},
		{
			name:       "store failure while applying",
			reference:  "ref-db",
			configured: true,
			setupMocks: func(r *MockRepository, p *MockProcessor, _ *MockInvalidator) {
				r.On("GetPayment", mock.Anything, "ref-db").Return(pendingPayment("ref-db"), nil).Once()
				p.On("Verify", mock.Anything, "ref-db").Return(successTx("ref-db", `{}`), nil).Once()
				r.On("ApplyVerifiedPayment", mock.Anything, "99", mock.Anything, mock.Anything).
					Return(false, errors.New("connection reset")).Once()
			},
			wantAnyError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockRepository)
			processor := &MockProcessor{configured: tt.configured}
			inv := new(MockInvalidator)
			tt.setupMocks(repo, processor, inv)

			svc := New(repo, processor, inv, metrics.New(prometheus.NewRegistry()), plans, newNoopLogger()).
				WithClock(func() time.Time { return fixedNow })

			got, err := svc.Verify(context.Background(), tt.reference)
			switch {
			case tt.wantErr != nil:
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.wantAnyError:
				require.Error(t, err)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}

			repo.AssertExpectations(t)
			processor.AssertExpectations(t)
			inv.AssertExpectations(t)
		})
	}
}

func TestService_VerifyTwiceCreditsOnce(t *testing.T) {
	repo := new(MockRepository)
	processor := &MockProcessor{configured: true}

	repo.On("GetPayment", mock.Anything, "ref-twice").Return(pendingPayment("ref-twice"), nil).Once()
	processor.On("Verify", mock.Anything, "ref-twice").Return(successTx("ref-twice", `{}`), nil).Once()
	repo.On("ApplyVerifiedPayment", mock.Anything, "99", mock.Anything, mock.Anything).Return(true, nil).Once()
	done := pendingPayment("ref-twice")
	done.Status = models.PaymentSuccess
	repo.On("GetPayment", mock.Anything, "ref-twice").Return(done, nil).Once()

	svc := New(repo, processor, nil, nil, plans, newNoopLogger()).WithClock(func() time.Time { return fixedNow })

	first, err := svc.Verify(context.Background(), "ref-twice")
	require.NoError(t, err)
	second, err := svc.Verify(context.Background(), "ref-twice")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	repo.AssertNumberOfCalls(t, "ApplyVerifiedPayment", 1)
	processor.AssertNumberOfCalls(t, "Verify", 1)
}

func TestService_VerifyAbandonedThenPaidCredits(t *testing.T) {
	repo := new(MockRepository)
	processor := &MockProcessor{configured: true}
	inv := new(MockInvalidator)

	// пользователь вернулся со страницы оплаты до списания
	repo.On("GetPayment", mock.Anything, "ref-late").Return(pendingPayment("ref-late"), nil).Twice()
	processor.On("Verify", mock.Anything, "ref-late").Return(&paymentprovider.Transaction{
		Reference: "ref-late", Status: paymentprovider.TxAbandoned, Amount: 5000, Currency: "NGN",
	}, nil).Once()
	// затем списание прошло, пришёл webhook
	processor.On("Verify", mock.Anything, "ref-late").Return(successTx("ref-late", `{}`), nil).Once()
	repo.On("ApplyVerifiedPayment", mock.Anything, "99", mock.Anything,
		mock.MatchedBy(func(a models.Activation) bool { return a.PaymentRef == "ref-late" })).Return(true, nil).Once()
	inv.On("Invalidate", mock.Anything, "entitlement:"+testUID).Return(nil).Once()

	svc := New(repo, processor, inv, nil, plans, newNoopLogger()).WithClock(func() time.Time { return fixedNow })

	first, err := svc.Verify(context.Background(), "ref-late")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, first.Status)

	second, err := svc.Verify(context.Background(), "ref-late")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSuccess, second.Status)

	repo.AssertNotCalled(t, "FailPayment", mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
	processor.AssertExpectations(t)
	inv.AssertExpectations(t)
}

func TestService_InitializeCheckout(t *testing.T) {
	t.Run("unknown tier", func(t *testing.T) {
		svc := New(new(MockRepository), &MockProcessor{}, nil, nil, plans, newNoopLogger())
		_, err := svc.InitializeCheckout(context.Background(), testUID, "user@example.com", "weekly")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("tier without price", func(t *testing.T) {
		svc := New(new(MockRepository), &MockProcessor{}, nil, nil, plans, newNoopLogger())
		_, err := svc.InitializeCheckout(context.Background(), testUID, "user@example.com", "lifetime")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("pending payment without processor", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("CreatePendingPayment", mock.Anything, mock.MatchedBy(func(p models.Payment) bool {
			return p.UserUID == testUID && p.Amount == 5000 && p.Tier == models.TierMonthly && p.Reference != ""
		})).Return(nil).Once()

		svc := New(repo, &MockProcessor{}, nil, nil, plans, newNoopLogger())
		checkout, err := svc.InitializeCheckout(context.Background(), testUID, "user@example.com", "monthly")
		require.NoError(t, err)
		assert.Equal(t, 50.0, checkout.Amount)
		assert.Equal(t, "NGN", checkout.Currency)
		assert.Empty(t, checkout.AuthorizationURL)
		repo.AssertExpectations(t)
	})

	t.Run("processor returns authorization url", func(t *testing.T) {
		repo := new(MockRepository)
		processor := &MockProcessor{configured: true}
		repo.On("CreatePendingPayment", mock.Anything, mock.Anything).Return(nil).Once()
		processor.On("Initialize", mock.Anything, mock.MatchedBy(func(req paymentprovider.InitializeRequest) bool {
			return req.Amount == 50000 && req.Metadata["interval"] == "annually" && req.Metadata["user_uid"] == testUID
		})).Return(&paymentprovider.InitializeResponse{AuthorizationURL: "https://pay.example/x"}, nil).Once()

		svc := New(repo, processor, nil, nil, plans, newNoopLogger())
		checkout, err := svc.InitializeCheckout(context.Background(), testUID, "user@example.com", "annual")
		require.NoError(t, err)
		assert.Equal(t, "https://pay.example/x", checkout.AuthorizationURL)
		assert.Equal(t, "annual", checkout.Tier)
		processor.AssertExpectations(t)
	})
}
