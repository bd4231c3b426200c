package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	// Доступ уже проверен RequireStaff, админка может жить на другом домене
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// ServeWS подключает админку к живой ленте событий заказов
// GET /api/v1/admin/ws
func ServeWS(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		username := ""
		if claims := staffClaims(c); claims != nil {
			username = claims.Username
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn().Err(err).Str("staff", username).Msg("⚠️ Ошибка обновления WebSocket соединения")
			return
		}

		client := hub.attach(conn, username)
		log.Info().Str("staff", username).Int("clients", hub.ClientsCount()).Msg("🖥️ Админка подключена к ленте заказов")
		defer func() {
			hub.detach(client)
			log.Info().Str("staff", username).Int("clients", hub.ClientsCount()).Msg("🖥️ Админка отключена от ленты заказов")
		}()

		// Лента только на запись: читаем, чтобы получать pong и заметить закрытие
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(feedPongTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(feedPongTimeout))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warn().Err(err).Str("staff", username).Msg("⚠️ WebSocket ошибка")
				}
				return
			}
		}
	}
}
