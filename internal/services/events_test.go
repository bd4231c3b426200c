package services

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fscabinet/server/internal/models"
)

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func sampleEvent(t *testing.T) OrderEvent {
	t.Helper()
	order := &models.Order{
		ID:             7,
		DeliveryMethod: models.DeliverySelfPickup,
		PaymentMethod:  models.PaymentLiqPay,
		Items:          []models.OrderItem{{Title: "Лате", Price: dec(50), Count: 2}},
		Transaction:    &models.OrderTransaction{Type: models.TransactionFullPayment, Status: models.TransactionNotPaid, Amount: dec(100)},
	}
	return NewOrderEvent(EventOrderCreated, order, testNow)
}

func TestNewOrderEvent(t *testing.T) {
	ev := sampleEvent(t)
	assert.Equal(t, uint(7), ev.OrderID)
	assert.True(t, dec(100).Equal(ev.TotalAmount))
	assert.True(t, ev.PaymentRequired)
	assert.Equal(t, "NOT_PAID", ev.TransactionStatus)
	require.NotNil(t, ev.TransactionAmount)
	assert.Equal(t, time.UTC, ev.OccurredAt.Location())
}

func TestOrderEventBusLocalFanOutAndKafka(t *testing.T) {
	writer := &fakeWriter{}
	bus := NewOrderEventBus(writer, nil)
	assert.False(t, bus.UsesRedis())

	var received [][]byte
	bus.Subscribe(func(payload []byte) { received = append(received, payload) })

	bus.Publish(context.Background(), sampleEvent(t))
	require.NoError(t, bus.Close())

	require.Len(t, received, 1)
	var decoded OrderEvent
	require.NoError(t, json.Unmarshal(received[0], &decoded))
	assert.Equal(t, EventOrderCreated, decoded.Type)

	require.Len(t, writer.messages, 1)
	assert.Equal(t, "7", string(writer.messages[0].Key))
	require.Len(t, writer.messages[0].Headers, 1)
	assert.Equal(t, "order.created", string(writer.messages[0].Headers[0].Value))
	assert.True(t, writer.closed)
}

func TestOrderEventBusSurvivesKafkaFailure(t *testing.T) {
	writer := &fakeWriter{err: errors.New("broker unavailable")}
	bus := NewOrderEventBus(writer, nil)

	calls := 0
	bus.Subscribe(func([]byte) { calls++ })
	bus.Publish(context.Background(), sampleEvent(t))
	require.NoError(t, bus.Close())
	assert.Equal(t, 1, calls)
}

func TestOrderEventBusPublishesToRedis(t *testing.T) {
	env := newTestEnv(t)
	bus := NewOrderEventBus(nil, env.redis)
	assert.True(t, bus.UsesRedis())

	ch, closeFn := env.redis.Subscribe(env.ctx, OrderEventsChannel)
	defer func() { _ = closeFn() }()

	local := 0
	bus.Subscribe(func([]byte) { local++ })

	// Подписка в miniredis появляется асинхронно
	var payload string
	require.Eventually(t, func() bool {
		bus.Publish(env.ctx, sampleEvent(t))
		select {
		case msg := <-ch:
			payload = msg.Payload
			return true
		case <-time.After(20 * time.Millisecond):
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	var decoded OrderEvent
	require.NoError(t, json.Unmarshal([]byte(payload), &decoded))
	assert.Equal(t, uint(7), decoded.OrderID)
	assert.Zero(t, local, "с Redis локальные подписчики не вызываются")
	require.NoError(t, bus.Close())
}
