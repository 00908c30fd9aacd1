package checkout

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/entitlement-service/internal/http/middlewarectx"
	"github.com/magabrotheeeer/entitlement-service/internal/models"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) InitializeCheckout(ctx context.Context, userUID, email, tier string) (*models.Checkout, error) {
	args := m.Called(ctx, userUID, email, tier)
	if res := args.Get(0); res != nil {
		return res.(*models.Checkout), args.Error(1)
	}
	return nil, args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func withUser(r *http.Request, uid, email string) *http.Request {
	ctx := context.WithValue(r.Context(), middlewarectx.UserUID, uid)
	ctx = context.WithValue(ctx, middlewarectx.Email, email)
	return r.WithContext(ctx)
}

func TestCheckoutHandler(t *testing.T) {
	tests := []struct {
		name           string
		uid            string
		tokenEmail     string
		body           string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:       "monthly checkout",
			uid:        "user-1",
			tokenEmail: "a@example.com",
			body:       `{"tier":"monthly"}`,
			setupMock: func(m *MockService) {
				m.On("InitializeCheckout", mock.Anything, "user-1", "a@example.com", "monthly").
					Return(&models.Checkout{Reference: "ref-1", Amount: 4.99, Currency: "USD", Tier: "monthly"}, nil)
			},
			expectedStatus: http.StatusCreated,
			expectedBody:   `"reference":"ref-1"`,
		},
		{
			name: "email taken from body when token has none",
			uid:  "user-2",
			body: `{"tier":"annual","email":"b@example.com"}`,
			setupMock: func(m *MockService) {
				m.On("InitializeCheckout", mock.Anything, "user-2", "b@example.com", "annual").
					Return(&models.Checkout{Reference: "ref-2"}, nil)
			},
			expectedStatus: http.StatusCreated,
			expectedBody:   `"reference":"ref-2"`,
		},
		{
			name:           "unauthenticated",
			body:           `{"tier":"monthly"}`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   `{"error":"unauthorized"}`,
		},
		{
			name:           "unknown tier",
			uid:            "user-1",
			tokenEmail:     "a@example.com",
			body:           `{"tier":"weekly"}`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `field Tier must be one of`,
		},
		{
			name:           "no email anywhere",
			uid:            "user-3",
			body:           `{"tier":"monthly"}`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `email is required`,
		},
		{
			name:       "plan without price",
			uid:        "user-1",
			tokenEmail: "a@example.com",
			body:       `{"tier":"lifetime"}`,
			setupMock: func(m *MockService) {
				m.On("InitializeCheckout", mock.Anything, "user-1", "a@example.com", "lifetime").
					Return(nil, models.ErrNotFound)
			},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `plan is not available`,
		},
		{
			name:       "provider failure",
			uid:        "user-1",
			tokenEmail: "a@example.com",
			body:       `{"tier":"monthly"}`,
			setupMock: func(m *MockService) {
				m.On("InitializeCheckout", mock.Anything, "user-1", "a@example.com", "monthly").
					Return(nil, models.ErrExternalProvider)
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `failed to initialize checkout`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := new(MockService)
			tt.setupMock(service)

			req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(tt.body))
			if tt.uid != "" {
				req = withUser(req, tt.uid, tt.tokenEmail)
			}
			w := httptest.NewRecorder()

			New(newNoopLogger(), service).ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.expectedBody)
			service.AssertExpectations(t)
		})
	}
}
