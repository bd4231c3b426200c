package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fscabinet/server/internal/database"
	"fscabinet/server/internal/liqpay"
	"fscabinet/server/internal/models"
	"fscabinet/server/internal/utils"
)

const callbackLockTTL = 30 * time.Second

// callbackLockWait - сколько повторный коллбек ждет, пока предыдущий по тому же заказу закончится
const callbackLockWait = 5 * time.Second

// Поля успешного коллбека, которые сохраняются в additional_data
var successPayloadFields = []string{
	"status",
	"liqpay_order_id",
	"payment_id",
	"paytype",
	"refund_date_last",
	"sender_card_type",
	"sender_commission",
	"sender_first_name",
	"sender_last_name",
	"sender_phone",
	"token",
	"type",
}

// Поля неуспешного коллбека
var failurePayloadFields = []string{
	"status",
	"err_code",
	"err_description",
}

// PaymentService ведет платежи по заказам и обрабатывает коллбеки LiqPay
type PaymentService struct {
	db        *gorm.DB
	gateway   *liqpay.Client
	redisUtil *utils.RedisClient
	notifier  OrderNotifier
	events    EventPublisher
	clock     Clock
	lockWait  time.Duration
}

// NewPaymentService создает сервис платежей; redisUtil, notifier и events могут быть nil
func NewPaymentService(db *gorm.DB, gateway *liqpay.Client, redisUtil *utils.RedisClient, notifier OrderNotifier, events EventPublisher) *PaymentService {
	return &PaymentService{
		db:        db,
		gateway:   gateway,
		redisUtil: redisUtil,
		notifier:  notifier,
		events:    events,
		clock:     time.Now,
		lockWait:  callbackLockWait,
	}
}

// SetClock подменяет источник времени
func (s *PaymentService) SetClock(c Clock) {
	s.clock = c
}

// findCurrentOrder - последний неотклоненный заказ сессии, у которого есть платеж
func findCurrentOrder(db *gorm.DB, sessionKey string) (*models.Order, error) {
	var order models.Order
	err := db.
		Preload("Transaction").
		Preload("Items").
		Preload("Items.Additions").
		Joins("JOIN order_transactions ON order_transactions.order_id = orders.id").
		Where("orders.session_key = ? AND orders.is_rejected = ?", sessionKey, false).
		Order("orders.created_at DESC").
		Order("orders.id DESC").
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find current order: %w", err)
	}
	if order.Transaction == nil {
		return nil, ErrNotFound
	}
	return &order, nil
}

// CurrentTransaction возвращает платеж текущего заказа сессии (с заказом в Order) или ErrNotFound
func (s *PaymentService) CurrentTransaction(ctx context.Context, sessionKey string) (*models.Order, error) {
	if sessionKey == "" {
		return nil, ErrNotFound
	}
	return findCurrentOrder(s.db.WithContext(ctx), sessionKey)
}

// PaymentPending - у сессии есть неоплаченный обязательный платеж
func (s *PaymentService) PaymentPending(ctx context.Context, rc RequestContext) (bool, error) {
	if rc.Authenticated || rc.SessionKey == "" {
		return false, nil
	}
	order, err := s.CurrentTransaction(ctx, rc.SessionKey)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !order.Transaction.IsPaid(), nil
}

// RejectCurrentOrder отклоняет текущий заказ сессии (покупатель отказался от оплаты)
func (s *PaymentService) RejectCurrentOrder(ctx context.Context, rc RequestContext) error {
	if err := requireAnonymous(rc); err != nil {
		return err
	}

	current, err := s.CurrentTransaction(ctx, rc.SessionKey)
	if err != nil {
		return err
	}

	var order *models.Order
	err = database.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		locked, err := lockOrder(tx, current.ID)
		if err != nil {
			return err
		}
		if locked.Transaction != nil && locked.Transaction.IsPaid() {
			return NewDomainError(CodeCannotBeRejected)
		}
		if err := tx.Omit(clause.Associations).Model(locked).Update("is_rejected", true).Error; err != nil {
			return fmt.Errorf("failed to reject order: %w", err)
		}
		order, err = loadOrder(tx, current.ID)
		return err
	})
	if err != nil {
		return err
	}

	log.Info().Uint("order_id", order.ID).Str("session", rc.SessionKey).Msg("🚫 Покупатель отклонил заказ")
	s.publish(ctx, EventOrderRejected, order)
	return nil
}

// CheckoutForm собирает подписанную форму оплаты для текущего неоплаченного платежа сессии
func (s *PaymentService) CheckoutForm(ctx context.Context, rc RequestContext, resultURL, serverURL string) (liqpay.Form, *models.Order, error) {
	if err := requireAnonymous(rc); err != nil {
		return liqpay.Form{}, nil, err
	}

	order, err := s.CurrentTransaction(ctx, rc.SessionKey)
	if err != nil {
		return liqpay.Form{}, nil, err
	}
	if order.Transaction.IsPaid() {
		return liqpay.Form{}, nil, ErrNotFound
	}

	form, err := s.gateway.CheckoutForm(liqpay.FormParams{
		Amount:      order.Transaction.Amount,
		OrderID:     order.ID,
		Description: order.Transaction.PaymentDescription(),
		ResultURL:   resultURL,
		ServerURL:   serverURL,
	})
	if err != nil {
		return liqpay.Form{}, nil, err
	}
	return form, order, nil
}

// MarkPaid переводит платеж в PAID
func MarkPaid(tx *gorm.DB, trx *models.OrderTransaction) error {
	if err := tx.Model(trx).Update("status", models.TransactionPaid).Error; err != nil {
		return fmt.Errorf("failed to mark transaction paid: %w", err)
	}
	trx.Status = models.TransactionPaid
	return nil
}

// RecordGatewayPayload заменяет additional_data последним ответом шлюза
func RecordGatewayPayload(tx *gorm.DB, trx *models.OrderTransaction, payload map[string]interface{}) error {
	data := datatypes.JSONMap(payload)
	if err := tx.Model(trx).Update("additional_data", data).Error; err != nil {
		return fmt.Errorf("failed to record gateway payload: %w", err)
	}
	trx.AdditionalData = data
	return nil
}

// pickPayload копирует из коллбека только нужные поля и отметку времени
func pickPayload(cb liqpay.Callback, fields []string, at time.Time) map[string]interface{} {
	payload := make(map[string]interface{}, len(fields)+1)
	for _, name := range fields {
		payload[name] = cb.Field(name)
	}
	payload["updated_at"] = at.UTC().Format(time.RFC3339)
	return payload
}

// ConfirmGatewayPayment обрабатывает коллбек LiqPay. Неуспешный статус только записывается,
// успешный записывается и переводит платеж в PAID в одной транзакции, затем уходит письмо.
func (s *PaymentService) ConfirmGatewayPayment(ctx context.Context, data, signature string) error {
	if !s.gateway.Verify(data, signature) {
		log.Warn().Msg("⚠️ Коллбек LiqPay с неверной подписью")
		return ErrInvalidSignature
	}

	cb, err := liqpay.DecodeCallback(data)
	if err != nil {
		if errors.Is(err, liqpay.ErrInvalidBase64) {
			return NewDomainError(CodeInvalidBase64String)
		}
		return NewDomainError(CodeInvalidPayload)
	}

	orderID, err := strconv.ParseUint(cb.OrderID, 10, 64)
	if err != nil || orderID == 0 {
		return ErrNotFound
	}

	// Коллбеки по одному заказу выполняются по очереди. Если очередь не дошла за lockWait,
	// порядок держит блокировка строки заказа в транзакции
	if s.redisUtil != nil {
		lock, ok, err := s.redisUtil.AcquireLock(ctx, fmt.Sprintf("liqpay:callback:%d", orderID), uuid.New().String(), callbackLockTTL, s.lockWait)
		switch {
		case err != nil:
			log.Warn().Err(err).Msg("⚠️ Redis недоступен, коллбек обрабатывается без блокировки")
		case !ok:
			log.Warn().Uint64("order_id", orderID).Msg("⚠️ Блокировка коллбека не освободилась, ждем блокировку заказа в БД")
		default:
			defer func() {
				if err := lock.Release(context.Background()); err != nil {
					log.Warn().Err(err).Msg("⚠️ Не удалось снять блокировку коллбека")
				}
			}()
		}
	}

	now := s.clock()
	var (
		order   *models.Order
		wasPaid bool
	)
	err = database.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		locked, err := lockOrder(tx, uint(orderID))
		if err != nil {
			return err
		}
		if locked.Transaction == nil {
			return ErrNotFound
		}
		wasPaid = locked.Transaction.IsPaid()

		if !cb.IsSuccess() {
			if err := RecordGatewayPayload(tx, locked.Transaction, pickPayload(cb, failurePayloadFields, now)); err != nil {
				return err
			}
		} else {
			if err := RecordGatewayPayload(tx, locked.Transaction, pickPayload(cb, successPayloadFields, now)); err != nil {
				return err
			}
			if err := MarkPaid(tx, locked.Transaction); err != nil {
				return err
			}
			// Деньги уже списаны: оплата важнее отклонения
			if locked.IsRejected {
				log.Warn().Uint("order_id", locked.ID).Msg("⚠️ Оплачен отклоненный заказ, отклонение снято")
				if err := tx.Omit(clause.Associations).Model(locked).Update("is_rejected", false).Error; err != nil {
					return fmt.Errorf("failed to restore rejected order: %w", err)
				}
			}
		}

		order, err = loadOrder(tx, locked.ID)
		return err
	})
	if err != nil {
		return err
	}

	if !cb.IsSuccess() {
		log.Info().
			Uint("order_id", order.ID).
			Str("status", cb.Status).
			Str("err_code", cb.ErrCode).
			Msg("💳 Неуспешный коллбек LiqPay записан")
		s.publish(ctx, EventOrderPaymentFailed, order)
		return nil
	}

	log.Info().Uint("order_id", order.ID).Str("amount", order.Transaction.Amount.String()).Msg("💳 Платеж LiqPay подтвержден")
	if wasPaid {
		return nil
	}

	s.publish(ctx, EventOrderPaid, order)
	if s.notifier != nil {
		s.notifier.SendNewOrderNotification(ctx, order.ID)
	}
	return nil
}

func (s *PaymentService) publish(ctx context.Context, eventType OrderEventType, order *models.Order) {
	if s.events == nil || order == nil {
		return
	}
	s.events.Publish(ctx, NewOrderEvent(eventType, order, s.clock()))
}
