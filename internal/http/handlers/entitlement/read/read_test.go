package read

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

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/entitlement-engine/internal/http/middlewarectx"
	"github.com/magabrotheeeer/entitlement-engine/internal/models"
)

// MockService реализует интерфейс read.Service
type MockService struct {
	mock.Mock
}

func (m *MockService) GetUserEntitlementByKey(ctx context.Context, userID, key string) (*models.Entitlement, error) {
	args := m.Called(ctx, userID, key)
	if res := args.Get(0); res != nil {
		return res.(*models.Entitlement), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestReadEntitlementHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	tests := []struct {
		name           string
		userID         string
		key            string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:   "успешное чтение права по ключу",
			userID: "user-1",
			key:    "premium_content",
			setupMock: func(m *MockService) {
				ent := &models.Entitlement{
					UserID:    "user-1",
					Key:       "premium_content",
					Role:      "member",
					Status:    models.StatusActive,
					GrantedAt: time.Now().UTC(),
				}
				m.On("GetUserEntitlementByKey", mock.Anything, "user-1", "premium_content").
					Return(ent, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"entitlement_key":"premium_content"`,
		},
		{
			name:   "право не найдено",
			userID: "user-1",
			key:    "unknown_key",
			setupMock: func(m *MockService) {
				m.On("GetUserEntitlementByKey", mock.Anything, "user-1", "unknown_key").
					Return(nil, models.ErrNotFound)
			},
			expectedStatus: http.StatusNotFound,
			expectedBody:   `"error":"entitlement not found"`,
		},
		{
			name:           "пустой ключ в URL",
			userID:         "user-1",
			key:            "",
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `"error":"missing entitlement key"`,
		},
		{
			name:           "нет пользователя в контексте",
			userID:         "",
			key:            "premium_content",
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   `"error":"unauthorized"`,
		},
		{
			name:   "ошибка сервиса чтения",
			userID: "user-1",
			key:    "premium_content",
			setupMock: func(m *MockService) {
				m.On("GetUserEntitlementByKey", mock.Anything, "user-1", "premium_content").
					Return(nil, errors.New("db error"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `"error":"could not read entitlement"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockService)
			tt.setupMock(mockService)

			handler := New(logger, mockService)

			req := httptest.NewRequest(http.MethodGet, "/entitlements/"+tt.key, nil)
			rctx := chi.NewRouteContext()
			rctx.URLParams.Add("key", tt.key)
			req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
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
