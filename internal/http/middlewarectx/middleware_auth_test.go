package middlewarectx_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/entitlement-engine/internal/http/middlewarectx"
	"github.com/magabrotheeeer/entitlement-engine/internal/lib/jwt"
	"github.com/magabrotheeeer/entitlement-engine/internal/models"
)

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestJWTMiddleware(t *testing.T) {
	logger := newNoopLogger()
	maker := jwt.NewJWTMaker("test_secret_key_1234567890", 15*time.Minute)

	validToken, err := maker.GenerateToken("user-42", "member")
	require.NoError(t, err)

	expiredMaker := jwt.NewJWTMaker("test_secret_key_1234567890", -time.Hour)
	expiredToken, err := expiredMaker.GenerateToken("user-42", "member")
	require.NoError(t, err)

	handlerCalled := false

	// Проверяем, что claims доезжают до обработчика через контекст
	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		userID := r.Context().Value(middlewarectx.User)
		role := r.Context().Value(middlewarectx.Role)
		assert.Equal(t, "user-42", userID)
		assert.Equal(t, "member", role)
		w.WriteHeader(http.StatusOK)
	})

	mw := middlewarectx.JWTMiddleware(maker, logger)(nextHandler)

	tests := []struct {
		name           string
		authHeader     string
		wantStatusCode int
		wantCalled     bool
	}{
		{
			name:           "missing Authorization header",
			authHeader:     "",
			wantStatusCode: http.StatusUnauthorized,
			wantCalled:     false,
		},
		{
			name:           "invalid Authorization header prefix",
			authHeader:     "Basic sometoken",
			wantStatusCode: http.StatusUnauthorized,
			wantCalled:     false,
		},
		{
			name:           "malformed token",
			authHeader:     "Bearer not.a.token",
			wantStatusCode: http.StatusUnauthorized,
			wantCalled:     false,
		},
		{
			name:           "expired token",
			authHeader:     "Bearer " + expiredToken,
			wantStatusCode: http.StatusUnauthorized,
			wantCalled:     false,
		},
		{
			name:           "valid token",
			authHeader:     "Bearer " + validToken,
			wantStatusCode: http.StatusOK,
			wantCalled:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handlerCalled = false

			req := httptest.NewRequest(http.MethodGet, "/somepath", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}

			rec := httptest.NewRecorder()

			mw.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatusCode, rec.Code)
			assert.Equal(t, tt.wantCalled, handlerCalled)
		})
	}
}

type IssuesMock struct{ mock.Mock }

func (m *IssuesMock) GetBillingIssue(ctx context.Context, userID string) (*models.BillingIssue, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.BillingIssue), args.Error(1)
}

func TestSuspensionGateMiddleware(t *testing.T) {
	logger := newNoopLogger()

	tests := []struct {
		name           string
		userID         string
		issue          *models.BillingIssue
		issueErr       error
		wantStatusCode int
		wantCalled     bool
	}{
		{
			name:           "no billing issue passes through",
			userID:         "user-1",
			issue:          &models.BillingIssue{HasIssue: false, State: models.DunningOK},
			wantStatusCode: http.StatusOK,
			wantCalled:     true,
		},
		{
			name:           "restricted user still passes",
			userID:         "user-1",
			issue:          &models.BillingIssue{HasIssue: true, State: models.DunningRestricted},
			wantStatusCode: http.StatusOK,
			wantCalled:     true,
		},
		{
			name:           "suspended user is blocked",
			userID:         "user-1",
			issue:          &models.BillingIssue{HasIssue: true, State: models.DunningSuspended},
			wantStatusCode: http.StatusForbidden,
			wantCalled:     false,
		},
		{
			name:           "missing user id",
			userID:         "",
			wantStatusCode: http.StatusUnauthorized,
			wantCalled:     false,
		},
		{
			name:           "service error",
			userID:         "user-1",
			issueErr:       errors.New("db down"),
			wantStatusCode: http.StatusInternalServerError,
			wantCalled:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issues := new(IssuesMock)
			if tt.issue != nil || tt.issueErr != nil {
				issues.On("GetBillingIssue", mock.Anything, tt.userID).
					Return(tt.issue, tt.issueErr).Once()
			}

			handlerCalled := false
			nextHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				handlerCalled = true
				w.WriteHeader(http.StatusOK)
			})

			mw := middlewarectx.SuspensionGateMiddleware(logger, issues)(nextHandler)

			req := httptest.NewRequest(http.MethodGet, "/somepath", nil)
			if tt.userID != "" {
				ctx := context.WithValue(req.Context(), middlewarectx.User, tt.userID)
				req = req.WithContext(ctx)
			}
			rec := httptest.NewRecorder()

			mw.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatusCode, rec.Code)
			assert.Equal(t, tt.wantCalled, handlerCalled)
			issues.AssertExpectations(t)
		})
	}
}
