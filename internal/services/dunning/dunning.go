// Package services ведёт dunning-процесс: платёжные проблемы пользователей
// и их таймлайн ACTION_REQUIRED → GRACE_PERIOD → RESTRICTED → SUSPENDED.
//
// Состояния двигаются двумя путями: фоновым тикером по открытым записям и
// лениво при чтении платёжного статуса. Переход в SUSPENDED публикует
// событие отзыва всех прав пользователя.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/entitlement-engine/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-engine/internal/models"
)

// reasonNonPayment причина отзыва прав при переходе в SUSPENDED.
const reasonNonPayment = "non_payment"

// DunningRepository определяет методы хранилища dunning-записей.
type DunningRepository interface {
	FindDunningRecord(ctx context.Context, userID string) (*models.DunningRecord, error)
	UpsertDunningRecord(ctx context.Context, r *models.DunningRecord) error
	ListOpenDunningRecords(ctx context.Context) ([]*models.DunningRecord, error)
}

// EventPublisher публикует события отзыва прав (fire-and-forget).
type EventPublisher interface {
	PublishRevoked(payload models.EntitlementEventPayload, meta models.EventMeta) error
}

// DunningService обрабатывает платёжные события и двигает таймлайн записей.
type DunningService struct {
	repo      DunningRepository
	publisher EventPublisher
	log       *slog.Logger
}

// NewDunningService создает новый экземпляр DunningService.
func NewDunningService(repo DunningRepository, publisher EventPublisher, log *slog.Logger) *DunningService {
	return &DunningService{
		repo:      repo,
		publisher: publisher,
		log:       log,
	}
}

// ProcessMessage разбирает сырое сообщение очереди и применяет событие.
// Неизвестные типы событий подтверждаются и пропускаются.
func (s *DunningService) ProcessMessage(ctx context.Context, body []byte) error {
	event, err := models.ParseBillingEvent(body)
	if err != nil {
		var unknown *models.ErrUnknownEventType
		if errors.As(err, &unknown) {
			s.log.Warn("skipping unknown event type", slog.String("type", unknown.Type))
			return nil
		}
		return fmt.Errorf("dunning.ProcessMessage: %w", err)
	}
	return s.Execute(ctx, event)
}

// Execute применяет одно типизированное событие биллинга к dunning-записи
// пользователя. События, не влияющие на платёжный статус, пропускаются.
func (s *DunningService) Execute(ctx context.Context, event models.BillingEvent) error {
	const op = "dunning.Execute"
	now := time.Now().UTC()

	var err error
	switch e := event.(type) {
	case models.PaymentFailed:
		err = s.openIssue(ctx, e.Payload, now)
	case models.PaymentActionRequired:
		err = s.openIssue(ctx, e.Payload, now)
	case models.PaymentSuccessful:
		err = s.resolveIssue(ctx, e.Payload.UserID, now)
	case models.SubscriptionUpdated:
		// Возврат подписки в active означает, что платёжная проблема закрыта
		// на стороне биллинга.
		if e.Payload.Status == "active" {
			err = s.resolveIssue(ctx, e.Payload.UserID, now)
		}
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// openIssue создает запись о платёжной проблеме или перезапускает таймлайн
// существующей.
func (s *DunningService) openIssue(ctx context.Context, p models.PaymentPayload, now time.Time) error {
	details := models.IssueDetails{
		PortalURL:       p.PortalURL,
		ExpiresAt:       p.ExpiresAt,
		PaymentIntentID: p.PaymentIntentID,
		SubscriptionID:  p.SubscriptionID,
		FailureCode:     p.FailureCode,
		FailureReason:   p.FailureReason,
	}

	record, err := s.repo.FindDunningRecord(ctx, p.UserID)
	if err != nil {
		return err
	}
	if record == nil {
		record = models.NewDunningRecord(p.UserID, now, details)
	} else {
		record.ReopenIssue(now, details)
	}

	if err := s.repo.UpsertDunningRecord(ctx, record); err != nil {
		return err
	}
	s.log.Info("payment issue opened",
		slog.String("user_id", p.UserID),
		slog.String("failure_code", p.FailureCode))
	return nil
}

// resolveIssue закрывает платёжную проблему пользователя, если она есть.
func (s *DunningService) resolveIssue(ctx context.Context, userID string, now time.Time) error {
	record, err := s.repo.FindDunningRecord(ctx, userID)
	if err != nil {
		return err
	}
	if record == nil || record.State == models.DunningOK {
		return nil
	}

	record.Resolve(now)
	if err := s.repo.UpsertDunningRecord(ctx, record); err != nil {
		return err
	}
	s.log.Info("payment issue resolved", slog.String("user_id", userID))
	return nil
}

// GetBillingIssue возвращает платёжный статус пользователя. Назревший переход
// применяется и сохраняется прямо при чтении, чтобы ответ не отставал от
// таймлайна между тиками фонового процесса.
func (s *DunningService) GetBillingIssue(ctx context.Context, userID string) (*models.BillingIssue, error) {
	const op = "dunning.GetBillingIssue"
	now := time.Now().UTC()

	record, err := s.repo.FindDunningRecord(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if record == nil || record.State == models.DunningOK {
		message, actions := models.StateMessage(models.DunningOK, 0)
		return &models.BillingIssue{
			HasIssue: false,
			State:    models.DunningOK,
			Message:  message,
			Actions:  actions,
		}, nil
	}

	if record.ShouldTransition(now) {
		if err := s.applyTransition(ctx, record, now); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	days := record.DaysSinceDetection(now)
	message, actions := models.StateMessage(record.State, days)
	return &models.BillingIssue{
		HasIssue:           true,
		State:              record.State,
		Message:            message,
		PortalURL:          record.PortalURL,
		ExpiresAt:          record.ExpiresAt,
		DaysSinceDetection: days,
		Actions:            actions,
	}, nil
}

// ProcessTransitions применяет назревшие переходы ко всем открытым записям.
// Ошибка одной записи не останавливает остальные.
func (s *DunningService) ProcessTransitions(ctx context.Context) error {
	const op = "dunning.ProcessTransitions"
	now := time.Now().UTC()

	records, err := s.repo.ListOpenDunningRecords(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	for _, record := range records {
		if !record.ShouldTransition(now) {
			continue
		}
		if err := s.applyTransition(ctx, record, now); err != nil {
			s.log.Error("failed to apply dunning transition",
				slog.String("user_id", record.UserID),
				sl.Err(err))
		}
	}
	return nil
}

// Run запускает фоновый цикл переходов с заданным интервалом.
// Блокируется до отмены контекста.
func (s *DunningService) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.log.Info("starting dunning transitions pass")
			if err := s.ProcessTransitions(ctx); err != nil {
				s.log.Error("dunning transitions pass failed", sl.Err(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

// applyTransition двигает запись в следующее состояние и сохраняет её.
// Переход в SUSPENDED публикует отзыв всех прав пользователя.
func (s *DunningService) applyTransition(ctx context.Context, record *models.DunningRecord, now time.Time) error {
	previous := record.State
	if !record.ApplyTransition(now) {
		return nil
	}
	if err := s.repo.UpsertDunningRecord(ctx, record); err != nil {
		return err
	}

	s.log.Info("dunning state transition",
		slog.String("user_id", record.UserID),
		slog.String("from", string(previous)),
		slog.String("to", string(record.State)))

	if record.State == models.DunningSuspended {
		payload := models.EntitlementEventPayload{
			UserID:         record.UserID,
			EntitlementKey: "*",
			Status:         string(models.StatusRevoked),
			SubscriptionID: record.SubscriptionID,
			Reason:         reasonNonPayment,
		}
		if err := s.publisher.PublishRevoked(payload, models.EventMeta{}); err != nil {
			s.log.Error("failed to publish revocation event",
				slog.String("user_id", record.UserID),
				sl.Err(err))
		}
	}
	return nil
}
