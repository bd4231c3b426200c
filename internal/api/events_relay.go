package api

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"fscabinet/server/internal/services"
	"fscabinet/server/internal/utils"
)

// feedMessage - сообщение ленты заказов для админки
type feedMessage struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// wrapEvent упаковывает событие заказа в сообщение ленты
func wrapEvent(payload []byte) ([]byte, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &head); err != nil {
		return nil, err
	}
	return json.Marshal(feedMessage{
		Type:      head.Type,
		Data:      payload,
		Timestamp: time.Now().Unix(),
	})
}

// relay пересылает одно событие в хаб
func relay(hub *Hub, payload []byte) {
	msg, err := wrapEvent(payload)
	if err != nil {
		log.Warn().Err(err).Msg("⚠️ Некорректное событие заказа")
		return
	}
	hub.Broadcast(msg)
}

// StartOrderFeed подключает хаб к событиям заказов: через Redis Pub/Sub (все инстансы видят
// все заказы) или, без Redis, напрямую к локальной шине
func StartOrderFeed(ctx context.Context, hub *Hub, bus *services.OrderEventBus, redisUtil *utils.RedisClient) {
	if redisUtil == nil {
		bus.Subscribe(func(payload []byte) { relay(hub, payload) })
		log.Info().Msg("📡 Лента заказов: локальная шина (Redis недоступен)")
		return
	}

	ch, closeFn := redisUtil.Subscribe(ctx, services.OrderEventsChannel)
	go func() {
		defer func() {
			if err := closeFn(); err != nil {
				log.Warn().Err(err).Msg("⚠️ Ошибка закрытия Pub/Sub")
			}
		}()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if msg != nil {
					relay(hub, []byte(msg.Payload))
				}
			case <-ctx.Done():
				log.Info().Msg("🛑 Лента заказов остановлена")
				return
			}
		}
	}()
	log.Info().Str("channel", services.OrderEventsChannel).Msg("📡 Лента заказов: Redis Pub/Sub")
}
