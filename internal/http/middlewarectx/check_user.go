package middlewarectx

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/magabrotheeeer/entitlement-engine/internal/http/response"
	"github.com/magabrotheeeer/entitlement-engine/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-engine/internal/models"
)

// BillingIssueProvider отдает платёжный статус пользователя.
type BillingIssueProvider interface {
	GetBillingIssue(ctx context.Context, userID string) (*models.BillingIssue, error)
}

// SuspensionGateMiddleware создает middleware, блокирующий доступ пользователям
// в состоянии SUSPENDED. Маршруты платёжного статуса под этот гейт не ставятся:
// заблокированный пользователь должен видеть, как восстановить доступ.
func SuspensionGateMiddleware(log *slog.Logger, issues BillingIssueProvider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := r.Context().Value(User).(string)
			if !ok || userID == "" {
				log.Error("user identification missing")
				w.WriteHeader(http.StatusUnauthorized)
				render.JSON(w, r, response.Error("user identification missing"))
				return
			}

			issue, err := issues.GetBillingIssue(r.Context(), userID)
			if err != nil {
				log.Error("failed to get billing issue", sl.Err(err))
				w.WriteHeader(http.StatusInternalServerError)
				render.JSON(w, r, response.Error("internal service error"))
				return
			}

			if issue.HasIssue && issue.State == models.DunningSuspended {
				log.Error("account suspended, access denied",
					slog.String("user_id", userID))
				w.WriteHeader(http.StatusForbidden)
				render.JSON(w, r, response.Error("account suspended, access denied"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
