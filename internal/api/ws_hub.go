package api

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	// Сколько сообщений копится для медленной админки, прежде чем ее отключить
	feedClientBuffer = 64
	feedWriteTimeout = 10 * time.Second
	feedPongTimeout  = 60 * time.Second
	feedPingPeriod   = feedPongTimeout * 9 / 10
)

// feedClient - одна открытая вкладка админки
type feedClient struct {
	conn     *websocket.Conn
	username string
	send     chan []byte
}

// Hub - живая лента заказов: раздает события всем подключенным сотрудникам
type Hub struct {
	mu      sync.RWMutex
	clients map[*feedClient]struct{}
	events  chan []byte
}

// NewHub создает хаб
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*feedClient]struct{}),
		events:  make(chan []byte, 256),
	}
}

// Run раздает события по очередям клиентов до отмены ctx
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case msg := <-h.events:
			h.fanOut(msg)
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				h.drop(c)
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) fanOut(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			log.Warn().Str("staff", c.username).Msg("⚠️ Админка не успевает читать ленту, отключаем")
			h.drop(c)
		}
	}
}

// drop вызывается под h.mu
func (h *Hub) drop(c *feedClient) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// Broadcast ставит событие в очередь на рассылку, не блокируя публикацию заказа
func (h *Hub) Broadcast(message []byte) {
	select {
	case h.events <- message:
	default:
		log.Warn().Msg("⚠️ Очередь WebSocket переполнена, событие пропущено")
	}
}

// ClientsCount - количество подключенных админок
func (h *Hub) ClientsCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// attach регистрирует соединение и запускает его писателя
func (h *Hub) attach(conn *websocket.Conn, username string) *feedClient {
	c := &feedClient{conn: conn, username: username, send: make(chan []byte, feedClientBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	go c.writeLoop()
	return c
}

// detach снимает клиента с рассылки
func (h *Hub) detach(c *feedClient) {
	h.mu.Lock()
	h.drop(c)
	h.mu.Unlock()
}

// writeLoop - единственный писатель в соединение: события и ping
func (c *feedClient) writeLoop() {
	ticker := time.NewTicker(feedPingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
