// Package reconciler применяет события биллингового жизненного цикла
// к набору прав пользователя: создание и продление подписок, композиция
// add-on-ов, отзыв с учётом dunning-окна.
//
// Обработчики спроектированы под at-least-once доставку без гарантий порядка:
// повторное применение события сходится к тому же состоянию, а проверки
// (детект продления, dunning-гейт) сравнивают время события с сохранёнными
// метками, а не с предполагаемой последовательностью.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/magabrotheeeer/entitlement-engine/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-engine/internal/models"
)

// renewalSkewTolerance допуск на рассинхронизацию часов при детекте продления.
const renewalSkewTolerance = time.Second

// EntitlementRepository определяет методы хранилища прав.
type EntitlementRepository interface {
	// ListEntitlements возвращает все права пользователя.
	ListEntitlements(ctx context.Context, userID string) ([]*models.Entitlement, error)
	// FindEntitlement возвращает право по ключу или (nil, nil), если его нет.
	FindEntitlement(ctx context.Context, userID, key string) (*models.Entitlement, error)
	// SaveEntitlement добавляет новое право.
	SaveEntitlement(ctx context.Context, e *models.Entitlement) error
	// UpdateEntitlement полностью перезаписывает существующее право.
	UpdateEntitlement(ctx context.Context, e *models.Entitlement) error
}

// ProductCatalog определяет read-only доступ к каталогу продуктов.
type ProductCatalog interface {
	// FindByID возвращает определение продукта или ошибку models.ErrNotFound.
	FindByID(ctx context.Context, productID string) (*models.ProductDefinition, error)
}

// DunningRepository определяет чтение dunning-записей для гейта отзыва.
type DunningRepository interface {
	// FindDunningRecord возвращает запись пользователя или (nil, nil), если её нет.
	FindDunningRecord(ctx context.Context, userID string) (*models.DunningRecord, error)
}

// ProcessedPayments таблица идемпотентности платежей по paymentIntentId.
type ProcessedPayments interface {
	IsPaymentProcessed(ctx context.Context, paymentIntentID string) (bool, error)
	MarkPaymentProcessed(ctx context.Context, paymentIntentID string) error
}

// EventPublisher публикует исходящие события entitlement.* (fire-and-forget).
type EventPublisher interface {
	PublishCreated(payload models.EntitlementEventPayload, meta models.EventMeta) error
	PublishUpdated(payload models.EntitlementEventPayload, meta models.EventMeta) error
	PublishRevoked(payload models.EntitlementEventPayload, meta models.EventMeta) error
}

// ReconcilerService применяет одно событие биллинга к правам пользователя.
type ReconcilerService struct {
	ents      EntitlementRepository
	products  ProductCatalog
	dunning   DunningRepository
	processed ProcessedPayments
	publisher EventPublisher
	log       *slog.Logger
}

// NewReconcilerService создает новый экземпляр ReconcilerService.
func NewReconcilerService(
	ents EntitlementRepository,
	products ProductCatalog,
	dunning DunningRepository,
	processed ProcessedPayments,
	publisher EventPublisher,
	log *slog.Logger,
) *ReconcilerService {
	return &ReconcilerService{
		ents:      ents,
		products:  products,
		dunning:   dunning,
		processed: processed,
		publisher: publisher,
		log:       log,
	}
}

// ProcessMessage разбирает сырое сообщение очереди и применяет событие.
// Неизвестные типы событий подтверждаются и пропускаются.
func (s *ReconcilerService) ProcessMessage(ctx context.Context, body []byte) error {
	event, err := models.ParseBillingEvent(body)
	if err != nil {
		var unknown *models.ErrUnknownEventType
		if errors.As(err, &unknown) {
			s.log.Warn("skipping unknown event type", slog.String("type", unknown.Type))
			return nil
		}
		return fmt.Errorf("reconciler.ProcessMessage: %w", err)
	}
	return s.Execute(ctx, event)
}

// Execute применяет одно типизированное событие биллинга.
//
// payment.failed и payment.action_required сюда не относятся: ими занимается
// dunning-подсистема, и их обработка здесь привела бы к преждевременному или
// повторному отзыву прав.
func (s *ReconcilerService) Execute(ctx context.Context, event models.BillingEvent) error {
	const op = "reconciler.Execute"
	now := time.Now().UTC()

	var err error
	switch e := event.(type) {
	case models.SubscriptionCreated:
		err = s.handleSubscriptionCreated(ctx, e, now)
	case models.SubscriptionUpdated:
		err = s.handleSubscriptionUpdated(ctx, e, now)
	case models.SubscriptionCanceled:
		err = s.handleSubscriptionCanceled(ctx, e, now)
	case models.SubscriptionExpired:
		err = s.handleSubscriptionExpired(ctx, e, now)
	case models.SubscriptionPaused:
		// пассивный no-op: права остаются активными, счётчики не сбрасываются
		s.log.Info("subscription paused, entitlements remain active",
			slog.String("user_id", e.Payload.UserID))
	case models.SubscriptionResumed:
		err = s.handleSubscriptionResumed(ctx, e, now)
	case models.PaymentSuccessful:
		err = s.handlePaymentSuccessful(ctx, e, now)
	case models.PaymentFailed, models.PaymentActionRequired:
		s.log.Info("skipping payment failure event, handled by dunning service")
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *ReconcilerService) handleSubscriptionCreated(ctx context.Context, e models.SubscriptionCreated, now time.Time) error {
	p := e.Payload
	expiresAt := p.CurrentPeriodEnd

	if err := s.grantFromProduct(ctx, p.UserID, p.ProductID, &expiresAt, false, now); err != nil {
		return err
	}
	if err := s.processAddons(ctx, p.UserID, p.ProductID, p.AddonProductIDs, &expiresAt, false, now); err != nil {
		return err
	}

	s.publishEntitlementEvents(ctx, p.UserID, p.ProductID, p.SubscriptionID, "subscription.created", e.Meta)
	return nil
}

func (s *ReconcilerService) handleSubscriptionUpdated(ctx context.Context, e models.SubscriptionUpdated, now time.Time) error {
	p := e.Payload
	expiresAt := p.CurrentPeriodEnd

	// Смена тарифа: права старого продукта снимаются сразу и безусловно,
	// dunning-окно на сознательную смену плана не распространяется.
	if p.PreviousProductID != "" && p.PreviousProductID != p.ProductID {
		s.log.Info("product switch detected, revoking old product entitlements",
			slog.String("user_id", p.UserID),
			slog.String("previous_product_id", p.PreviousProductID),
			slog.String("product_id", p.ProductID))
		if err := s.revokeForProduct(ctx, p.UserID, p.PreviousProductID, true, nil, true, now); err != nil {
			return err
		}
	}

	isRenewal, err := s.isBillingCycleRenewal(ctx, p.UserID, p.ProductID, p.CurrentPeriodStart)
	if err != nil {
		// ошибочный детект продления не должен приводить к ложным сбросам
		s.log.Error("failed to detect billing cycle renewal", sl.Err(err))
		isRenewal = false
	}

	if err := s.grantFromProduct(ctx, p.UserID, p.ProductID, &expiresAt, isRenewal, now); err != nil {
		return err
	}
	if err := s.processAddons(ctx, p.UserID, p.ProductID, p.AddonProductIDs, &expiresAt, isRenewal, now); err != nil {
		return err
	}

	s.publishEntitlementEvents(ctx, p.UserID, p.ProductID, p.SubscriptionID, "subscription.updated", e.Meta)
	return nil
}

func (s *ReconcilerService) handleSubscriptionCanceled(ctx context.Context, e models.SubscriptionCanceled, now time.Time) error {
	p := e.Payload

	if p.CancelAtPeriodEnd {
		// права остаются активными до конца оплаченного периода
		expiresAt := p.CurrentPeriodEnd
		if err := s.revokeForProduct(ctx, p.UserID, p.ProductID, false, &expiresAt, false, now); err != nil {
			return err
		}
	} else {
		if err := s.revokeForProduct(ctx, p.UserID, p.ProductID, true, nil, false, now); err != nil {
			return err
		}
	}

	s.publishEntitlementEvents(ctx, p.UserID, p.ProductID, p.SubscriptionID, "subscription.canceled", e.Meta)
	return nil
}

func (s *ReconcilerService) handleSubscriptionExpired(ctx context.Context, e models.SubscriptionExpired, now time.Time) error {
	p := e.Payload

	if err := s.revokeForProduct(ctx, p.UserID, p.ProductID, true, nil, false, now); err != nil {
		return err
	}

	s.publishEntitlementEvents(ctx, p.UserID, p.ProductID, p.SubscriptionID, "subscription.expired", e.Meta)
	return nil
}

func (s *ReconcilerService) handleSubscriptionResumed(ctx context.Context, e models.SubscriptionResumed, now time.Time) error {
	p := e.Payload
	expiresAt := p.CurrentPeriodEnd

	// возобновление — не продление: счётчики не сбрасываются
	if err := s.grantFromProduct(ctx, p.UserID, p.ProductID, &expiresAt, false, now); err != nil {
		return err
	}

	s.publishEntitlementEvents(ctx, p.UserID, p.ProductID, p.SubscriptionID, "subscription.resumed", e.Meta)
	return nil
}

func (s *ReconcilerService) handlePaymentSuccessful(ctx context.Context, e models.PaymentSuccessful, now time.Time) error {
	p := e.Payload

	if p.ProductID == "" {
		s.log.Info("payment successful without productId, skipping entitlement creation",
			slog.String("payment_intent_id", p.PaymentIntentID))
		return nil
	}

	if p.PaymentIntentID != "" {
		done, err := s.processed.IsPaymentProcessed(ctx, p.PaymentIntentID)
		if err != nil {
			return err
		}
		if done {
			s.log.Info("payment already processed, skipping",
				slog.String("payment_intent_id", p.PaymentIntentID))
			return nil
		}
	}

	// разовая покупка: срок действия определяет сам продукт, не период подписки
	if err := s.grantFromProduct(ctx, p.UserID, p.ProductID, nil, false, now); err != nil {
		return err
	}

	if p.PaymentIntentID != "" {
		if err := s.processed.MarkPaymentProcessed(ctx, p.PaymentIntentID); err != nil {
			return err
		}
	}

	s.publishEntitlementEvents(ctx, p.UserID, p.ProductID, p.SubscriptionID, "payment.successful", e.Meta)
	return nil
}

// GrantProduct выдаёт права продукта (включая add-on-ы) вне потока событий
// биллинга, например при старте пробного периода.
func (s *ReconcilerService) GrantProduct(ctx context.Context, userID, productID string, expiresAt *time.Time) error {
	const op = "reconciler.GrantProduct"
	now := time.Now().UTC()
	if err := s.grantFromProduct(ctx, userID, productID, expiresAt, false, now); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.processAddons(ctx, userID, productID, nil, expiresAt, false, now); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// grantFromProduct создаёт или обновляет права, выдаваемые продуктом,
// и синхронизирует его лимиты использования.
func (s *ReconcilerService) grantFromProduct(ctx context.Context, userID, productID string, expiresAt *time.Time, isRenewal bool, now time.Time) error {
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return fmt.Errorf("product %s: %w", productID, err)
	}

	for _, key := range product.Entitlements {
		if err := s.grantEntitlement(ctx, userID, key, expiresAt, isRenewal, now); err != nil {
			return err
		}
	}

	return s.syncProductLimits(ctx, product, userID, false, now)
}

// grantEntitlement создаёт право либо реактивирует существующее.
// На продлении счётчики, привязанные к биллинговому циклу, обнуляются и
// получают границей сброса новый конец периода; остальные сбрасываются
// лениво, если их граница уже пройдена.
func (s *ReconcilerService) grantEntitlement(ctx context.Context, userID, key string, expiresAt *time.Time, isRenewal bool, now time.Time) error {
	existing, err := s.ents.FindEntitlement(ctx, userID, key)
	if err != nil {
		return err
	}

	if existing == nil {
		return s.ents.SaveEntitlement(ctx, models.NewEntitlement(userID, key, models.DefaultRole, now, expiresAt))
	}

	existing.Activate(expiresAt)

	if u := existing.Usage; u != nil {
		switch {
		case isRenewal && u.IsBillingCycle():
			u.Reset(now)
			if expiresAt != nil {
				u.SetBillingCycleBoundary(*expiresAt)
			}
			s.log.Info("reset usage on billing cycle renewal",
				slog.String("user_id", userID), slog.String("entitlement_key", key))
		case u.ShouldReset(now):
			u.Reset(now)
		case isRenewal && expiresAt != nil:
			u.SetBillingCycleBoundary(*expiresAt)
		}
	}

	return s.ents.UpdateEntitlement(ctx, existing)
}

// syncProductLimits синхронизирует лимиты продукта со счётчиками прав.
// Базовый продукт перезаписывает лимит, add-on добавляет к существующему.
// Стратегия billing_cycle имеет приоритет и не понижается стратегией
// другого продукта на той же метрике.
func (s *ReconcilerService) syncProductLimits(ctx context.Context, product *models.ProductDefinition, userID string, isAddon bool, now time.Time) error {
	if len(product.UsageLimits) == 0 {
		return nil
	}

	entitlements, err := s.ents.ListEntitlements(ctx, userID)
	if err != nil {
		return err
	}
	byKey := make(map[string]*models.Entitlement, len(entitlements))
	for _, e := range entitlements {
		byKey[e.Key] = e
	}

	for _, limit := range product.UsageLimits {
		entitlement, ok := byKey[limit.Metric]
		if !ok {
			// право ещё не создано, лимит подтянется при следующей синхронизации
			continue
		}

		strategy := models.ResetStrategyForPeriod(limit.Period)

		if u := entitlement.Usage; u != nil {
			justReset := u.ShouldReset(now)
			if justReset {
				u.Reset(now)
			}

			if isAddon {
				u.Limit += limit.Limit
			} else {
				u.Limit = limit.Limit
			}

			if strategy != nil && (!u.IsBillingCycle() || strategy.Period == models.PeriodBillingCycle) {
				u.Strategy = strategy
			}

			switch {
			case u.Strategy == nil || u.Strategy.Type != models.ResetPeriodic:
				u.ResetAt = nil
			case !justReset && u.Strategy.Period != models.PeriodBillingCycle:
				next := models.NextResetAt(*u.Strategy, now)
				u.ResetAt = &next
			}
			// для billing_cycle границу выставляет продление подписки
		} else {
			counter := &models.UsageCounter{Limit: limit.Limit, Strategy: strategy}
			if strategy != nil && strategy.Type == models.ResetPeriodic {
				next := models.NextResetAt(*strategy, now)
				counter.ResetAt = &next
			}
			entitlement.Usage = counter
		}

		if err := s.ents.UpdateEntitlement(ctx, entitlement); err != nil {
			return err
		}
	}

	return nil
}

// processAddons рекурсивно обрабатывает add-on-ы продукта: конфигурации,
// устаревший список и явно переданные в событии productId.
func (s *ReconcilerService) processAddons(ctx context.Context, userID, productID string, eventAddonIDs []string, expiresAt *time.Time, isRenewal bool, now time.Time) error {
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return fmt.Errorf("product %s: %w", productID, err)
	}

	addonIDs := product.AddonProductIDs()
	for _, id := range eventAddonIDs {
		if !containsString(addonIDs, id) {
			addonIDs = append(addonIDs, id)
		}
	}

	for _, addonID := range addonIDs {
		if err := s.processAddonProduct(ctx, userID, addonID, expiresAt, isRenewal, now); err != nil {
			return err
		}
	}
	return nil
}

// processAddonProduct выдаёт права одного add-on-а и аддитивно
// синхронизирует его лимиты. Отсутствующий в каталоге add-on пропускается.
func (s *ReconcilerService) processAddonProduct(ctx context.Context, userID, addonProductID string, expiresAt *time.Time, isRenewal bool, now time.Time) error {
	addon, err := s.products.FindByID(ctx, addonProductID)
	if err != nil {
		if isNotFound(err) {
			s.log.Warn("add-on product not found, skipping",
				slog.String("product_id", addonProductID))
			return nil
		}
		return err
	}

	for _, key := range addon.Entitlements {
		if err := s.grantEntitlement(ctx, userID, key, expiresAt, isRenewal, now); err != nil {
			return err
		}
	}

	return s.syncProductLimits(ctx, addon, userID, true, now)
}

// isBillingCycleRenewal определяет, является ли обновление подписки началом
// нового биллингового периода: начало нового периода наступает не раньше
// сохранённого конца предыдущего (expiresAt права) с допуском в одну секунду
// на рассинхронизацию часов.
func (s *ReconcilerService) isBillingCycleRenewal(ctx context.Context, userID, productID string, newPeriodStart time.Time) (bool, error) {
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}

	for _, key := range product.Entitlements {
		entitlement, err := s.ents.FindEntitlement(ctx, userID, key)
		if err != nil {
			return false, err
		}
		if entitlement == nil || entitlement.ExpiresAt == nil {
			continue
		}
		if newPeriodStart.Sub(*entitlement.ExpiresAt) >= -renewalSkewTolerance {
			s.log.Info("billing cycle renewal detected",
				slog.Time("new_period_start", newPeriodStart),
				slog.Time("previous_expires_at", *entitlement.ExpiresAt))
			return true, nil
		}
	}
	return false, nil
}

// revokeForProduct отзывает права продукта и его add-on-ов.
//
// Перед отзывом по отмене или истечению подписки проверяется dunning-окно:
// в состояниях ACTION_REQUIRED, GRACE_PERIOD и RESTRICTED доступ сохраняется,
// отзыв выполняется только при OK или SUSPENDED. Если записи по таймлайну уже
// положен переход, решение принимается по вычисленному следующему состоянию,
// даже если dunning-тикер его ещё не сохранил. bypassDunningGate используется
// при смене тарифа, где окно не применяется.
func (s *ReconcilerService) revokeForProduct(ctx context.Context, userID, productID string, immediate bool, expiresAt *time.Time, bypassDunningGate bool, now time.Time) error {
	if !bypassDunningGate {
		keep, err := s.dunningProtects(ctx, userID, now)
		if err != nil {
			return err
		}
		if keep {
			return nil
		}
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return fmt.Errorf("product %s: %w", productID, err)
	}

	for _, key := range product.Entitlements {
		entitlement, err := s.ents.FindEntitlement(ctx, userID, key)
		if err != nil {
			return err
		}
		if entitlement == nil {
			continue
		}
		if immediate {
			entitlement.Revoke()
		} else if expiresAt != nil {
			entitlement.ExtendExpiry(*expiresAt)
		}
		if err := s.ents.UpdateEntitlement(ctx, entitlement); err != nil {
			return err
		}
	}

	for _, addonID := range product.AddonProductIDs() {
		if err := s.revokeForProduct(ctx, userID, addonID, immediate, expiresAt, bypassDunningGate, now); err != nil {
			if isNotFound(err) {
				s.log.Warn("add-on product not found during revocation, skipping",
					slog.String("product_id", addonID))
				continue
			}
			return err
		}
	}
	return nil
}

// dunningProtects сообщает, защищает ли dunning-окно права пользователя
// от отзыва в момент now.
func (s *ReconcilerService) dunningProtects(ctx context.Context, userID string, now time.Time) (bool, error) {
	record, err := s.dunning.FindDunningRecord(ctx, userID)
	if err != nil {
		return false, err
	}
	if record == nil {
		return false, nil
	}

	state := record.State
	if record.ShouldTransition(now) {
		state = record.NextState(now)
	}

	switch state {
	case models.DunningActionRequired, models.DunningGracePeriod, models.DunningRestricted:
		s.log.Info("skipping entitlement revocation, dunning grace window active",
			slog.String("user_id", userID),
			slog.String("dunning_state", string(state)),
			slog.Int("days_since_detection", record.DaysSinceDetection(now)))
		return true, nil
	default:
		return false, nil
	}
}

// publishEntitlementEvents публикует по событию на каждое право пользователя.
// Публикация fire-and-forget: ошибки логируются и не откатывают уже
// сохранённые изменения состояния.
func (s *ReconcilerService) publishEntitlementEvents(ctx context.Context, userID, productID, subscriptionID, reason string, meta models.EventMeta) {
	entitlements, err := s.ents.ListEntitlements(ctx, userID)
	if err != nil {
		s.log.Error("failed to load entitlements for event publishing", sl.Err(err))
		return
	}

	for _, e := range entitlements {
		status := "inactive"
		if e.Status == models.StatusActive {
			status = "active"
		}
		payload := models.EntitlementEventPayload{
			UserID:         e.UserID,
			EntitlementKey: e.Key,
			Role:           e.Role,
			Status:         status,
			ExpiresAt:      e.ExpiresAt,
			ProductID:      productID,
			SubscriptionID: subscriptionID,
			Reason:         reason,
		}
		if e.Usage != nil {
			payload.UsageLimit = &models.UsageSnapshot{
				Limit: e.Usage.EffectiveLimit(),
				Used:  e.Usage.Used,
			}
		}

		var pubErr error
		switch {
		case strings.Contains(reason, "created"), strings.Contains(reason, "successful"):
			pubErr = s.publisher.PublishCreated(payload, meta)
		case strings.Contains(reason, "updated"), strings.Contains(reason, "resumed"):
			pubErr = s.publisher.PublishUpdated(payload, meta)
		case strings.Contains(reason, "canceled"), strings.Contains(reason, "expired"), strings.Contains(reason, "revoked"):
			pubErr = s.publisher.PublishRevoked(payload, meta)
		}
		if pubErr != nil {
			s.log.Error("failed to publish entitlement event", sl.Err(pubErr),
				slog.String("entitlement_key", e.Key))
		}
	}
}
