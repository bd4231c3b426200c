package services

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"fscabinet/server/internal/models"
	"fscabinet/server/internal/utils"
)

// OrderEventsChannel - канал Redis Pub/Sub для живой ленты заказов в админке
const OrderEventsChannel = "orders:events"

// OrderEventType - тип события жизненного цикла заказа
type OrderEventType string

const (
	EventOrderCreated       OrderEventType = "order.created"
	EventOrderPaid          OrderEventType = "order.paid"
	EventOrderRejected      OrderEventType = "order.rejected"
	EventOrderPaymentFailed OrderEventType = "order.payment_failed"
)

// OrderEvent - событие заказа (Kafka, Redis, WebSocket)
type OrderEvent struct {
	Type              OrderEventType   `json:"type"`
	OrderID           uint             `json:"order_id"`
	TotalAmount       decimal.Decimal  `json:"total_amount"`
	DeliveryMethod    string           `json:"delivery_method"`
	PaymentMethod     string           `json:"payment_method"`
	PaymentRequired   bool             `json:"payment_required"`
	TransactionStatus string           `json:"transaction_status,omitempty"`
	TransactionAmount *decimal.Decimal `json:"transaction_amount,omitempty"`
	IsRejected        bool             `json:"is_rejected"`
	OccurredAt        time.Time        `json:"occurred_at"`
}

// NewOrderEvent собирает событие из заказа (Items и Transaction должны быть загружены)
func NewOrderEvent(eventType OrderEventType, order *models.Order, at time.Time) OrderEvent {
	ev := OrderEvent{
		Type:            eventType,
		OrderID:         order.ID,
		TotalAmount:     order.TotalAmount(),
		DeliveryMethod:  string(order.DeliveryMethod),
		PaymentMethod:   string(order.PaymentMethod),
		PaymentRequired: order.IsPaymentRequired(),
		IsRejected:      order.IsRejected,
		OccurredAt:      at.UTC(),
	}
	if order.Transaction != nil {
		ev.TransactionStatus = string(order.Transaction.Status)
		amount := order.Transaction.Amount
		ev.TransactionAmount = &amount
	}
	return ev
}

// EventPublisher публикует события заказов; ошибки доставки не влияют на заказ
type EventPublisher interface {
	Publish(ctx context.Context, event OrderEvent)
}

// MessageWriter - то, что нужно от kafka.Writer
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// OrderEventBus отправляет события в Kafka (топик заказов) и в Redis Pub/Sub.
// Без Redis события раздаются локальным подписчикам напрямую.
type OrderEventBus struct {
	writer       MessageWriter
	redisUtil    *utils.RedisClient
	writeTimeout time.Duration

	mu          sync.RWMutex
	subscribers []func([]byte)
	wg          sync.WaitGroup
}

// NewOrderEventBus создает шину событий; writer и redisUtil могут быть nil
func NewOrderEventBus(writer MessageWriter, redisUtil *utils.RedisClient) *OrderEventBus {
	return &OrderEventBus{
		writer:       writer,
		redisUtil:    redisUtil,
		writeTimeout: 5 * time.Second,
	}
}

// NewKafkaOrdersWriter создает асинхронный producer для топика заказов
func NewKafkaOrdersWriter(brokers []string, topic string, transport *kafka.Transport) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{}, // события одного заказа попадают в одну партицию
		Transport:    transport,
		RequiredAcks: kafka.RequireOne,
	}
}

// Subscribe регистрирует локального получателя (используется, когда Redis недоступен)
func (b *OrderEventBus) Subscribe(fn func([]byte)) {
	b.mu.Lock()
	b.subscribers = append(b.subscribers, fn)
	b.mu.Unlock()
}

// UsesRedis сообщает, идет ли раздача через Redis Pub/Sub
func (b *OrderEventBus) UsesRedis() bool {
	return b.redisUtil != nil
}

// Publish отправляет событие; Kafka пишется в фоне с таймаутом
func (b *OrderEventBus) Publish(ctx context.Context, event OrderEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("❌ Ошибка сериализации события заказа")
		return
	}

	if b.redisUtil != nil {
		if err := b.redisUtil.Publish(ctx, OrderEventsChannel, payload); err != nil {
			log.Warn().Err(err).Str("type", string(event.Type)).Msg("⚠️ Не удалось опубликовать событие в Redis")
		}
	} else {
		b.mu.RLock()
		subscribers := append([]func([]byte){}, b.subscribers...)
		b.mu.RUnlock()
		for _, fn := range subscribers {
			fn(payload)
		}
	}

	if b.writer != nil {
		msg := kafka.Message{
			Key:   []byte(strconv.FormatUint(uint64(event.OrderID), 10)),
			Value: payload,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(event.Type)},
			},
		}
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			writeCtx, cancel := context.WithTimeout(context.Background(), b.writeTimeout)
			defer cancel()
			if err := b.writer.WriteMessages(writeCtx, msg); err != nil {
				log.Warn().Err(err).Uint("order_id", event.OrderID).Str("type", string(event.Type)).Msg("⚠️ Не удалось отправить событие в Kafka")
				return
			}
			log.Debug().Uint("order_id", event.OrderID).Str("type", string(event.Type)).Msg("📤 Событие заказа отправлено в Kafka")
		}()
	}
}

// Close дожидается фоновых отправок и закрывает Kafka writer
func (b *OrderEventBus) Close() error {
	b.wg.Wait()
	if b.writer != nil {
		return b.writer.Close()
	}
	return nil
}
