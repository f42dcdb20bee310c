package start

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/entitlement-engine/internal/http/middlewarectx"
	"github.com/magabrotheeeer/entitlement-engine/internal/models"
	trialservice "github.com/magabrotheeeer/entitlement-engine/internal/services/trial"
)

// MockService реализует интерфейс start.Service
type MockService struct {
	mock.Mock
}

func (m *MockService) StartTrial(ctx context.Context, userID, productID string) (*models.TrialRecord, error) {
	args := m.Called(ctx, userID, productID)
	if res := args.Get(0); res != nil {
		return res.(*models.TrialRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestStartTrialHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	tests := []struct {
		name           string
		userID         string
		body           string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:   "успешный запуск пробного периода",
			userID: "user-1",
			body:   `{"product_id": "premium_monthly"}`,
			setupMock: func(m *MockService) {
				now := time.Now().UTC()
				record := &models.TrialRecord{
					UserID:    "user-1",
					ProductID: "premium_monthly",
					StartedAt: now,
					ExpiresAt: now.Add(72 * time.Hour),
					Status:    models.TrialActive,
				}
				m.On("StartTrial", mock.Anything, "user-1", "premium_monthly").Return(record, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"status":"active"`,
		},
		{
			name:   "пробный период уже использован",
			userID: "user-1",
			body:   `{"product_id": "premium_monthly"}`,
			setupMock: func(m *MockService) {
				m.On("StartTrial", mock.Anything, "user-1", "premium_monthly").
					Return(nil, trialservice.ErrTrialAlreadyUsed)
			},
			expectedStatus: http.StatusConflict,
			expectedBody:   `"error":"trial already used for this product"`,
		},
		{
			name:   "продукт не найден",
			userID: "user-1",
			body:   `{"product_id": "ghost_product"}`,
			setupMock: func(m *MockService) {
				m.On("StartTrial", mock.Anything, "user-1", "ghost_product").
					Return(nil, models.ErrNotFound)
			},
			expectedStatus: http.StatusNotFound,
			expectedBody:   `"error":"product not found"`,
		},
		{
			name:   "продукт недоступен для пробного периода",
			userID: "user-1",
			body:   `{"product_id": "archived_product"}`,
			setupMock: func(m *MockService) {
				m.On("StartTrial", mock.Anything, "user-1", "archived_product").
					Return(nil, models.NewDomainError("product archived_product is not active"))
			},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `"error":"product is not available for trial"`,
		},
		{
			name:           "невалидное тело запроса",
			userID:         "user-1",
			body:           `{not json`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `"error":"invalid request body"`,
		},
		{
			name:           "отсутствует product_id",
			userID:         "user-1",
			body:           `{}`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `field ProductID is a required field`,
		},
		{
			name:           "нет пользователя в контексте",
			userID:         "",
			body:           `{"product_id": "premium_monthly"}`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   `"error":"unauthorized"`,
		},
		{
			name:   "ошибка сервиса",
			userID: "user-1",
			body:   `{"product_id": "premium_monthly"}`,
			setupMock: func(m *MockService) {
				m.On("StartTrial", mock.Anything, "user-1", "premium_monthly").
					Return(nil, errors.New("db error"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `"error":"could not start trial"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockService)
			tt.setupMock(mockService)

			handler := New(logger, mockService)

			req := httptest.NewRequest(http.MethodPost, "/trials", strings.NewReader(tt.body))
			if tt.userID != "" {
				req = req.WithContext(context.WithValue(req.Context(), middlewarectx.User, tt.userID))
			}

			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.True(t, strings.Contains(w.Body.String(), tt.expectedBody),
				"response body should contain %s, got %s", tt.expectedBody, w.Body.String())

			mockService.AssertExpectations(t)
		})
	}
}
