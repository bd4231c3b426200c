package api

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"fscabinet/server/internal/services"
)

const (
	ctxSessionKey  = "session_key"
	ctxStaffClaims = "staff_claims"

	// Cookie с JWT сотрудника для страниц (браузер не шлет Authorization сам)
	StaffTokenCookie = "staff_token"

	sessionMaxAge = 14 * 24 * 60 * 60
	paymentPage   = "/order/payment/"
)

// SessionMiddleware выдает анонимной сессии постоянный ключ в cookie
func SessionMiddleware(cookieName string, secure bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		key, err := c.Cookie(cookieName)
		if err != nil || uuid.Validate(key) != nil {
			key = uuid.New().String()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(cookieName, key, sessionMaxAge, "/", "", secure, true)
		}
		c.Set(ctxSessionKey, key)
		c.Next()
	}
}

// bearerToken достает JWT из заголовка Authorization или из cookie
func bearerToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.Fields(header)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
		return ""
	}
	token, _ := c.Cookie(StaffTokenCookie)
	return token
}

// Authenticate распознает сотрудника по JWT. Без токена запрос считается анонимным,
// невалидный токен тоже (как в TryGetClaims), чтобы покупатель со старой cookie не застрял.
func Authenticate(auth *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.Next()
			return
		}
		claims, err := auth.ParseToken(token)
		if err != nil {
			log.Debug().Err(err).Msg("🔐 Невалидный токен, запрос анонимный")
			c.Next()
			return
		}
		if _, err := auth.ActiveStaff(c.Request.Context(), claims.StaffID); err != nil {
			log.Debug().Str("staff_id", claims.StaffID).Msg("🔐 Сотрудник неактивен или удален")
			c.Next()
			return
		}
		c.Set(ctxStaffClaims, claims)
		c.Next()
	}
}

// staffClaims возвращает claims авторизованного сотрудника или nil
func staffClaims(c *gin.Context) *services.StaffClaims {
	v, ok := c.Get(ctxStaffClaims)
	if !ok {
		return nil
	}
	claims, _ := v.(*services.StaffClaims)
	return claims
}

// requestContext собирает контекст запроса для сервисов
func requestContext(c *gin.Context) services.RequestContext {
	rc := services.RequestContext{SessionKey: c.GetString(ctxSessionKey)}
	if claims := staffClaims(c); claims != nil {
		rc.Authenticated = true
		rc.StaffID = claims.StaffID
	}
	return rc
}

// ForbiddenForAuthenticated - действия покупателя недоступны сотрудникам
func ForbiddenForAuthenticated() gin.HandlerFunc {
	return func(c *gin.Context) {
		if staffClaims(c) != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, detail("permission_denied", "Authenticated users cannot perform this action."))
			return
		}
		c.Next()
	}
}

// RedirectIfAuthenticated уводит сотрудника со страниц оформления
func RedirectIfAuthenticated(to string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if staffClaims(c) != nil {
			c.Redirect(http.StatusFound, to)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RedirectToPaymentIfNeeded отправляет на страницу оплаты, пока обязательный платеж не оплачен
func RedirectToPaymentIfNeeded(payments *services.PaymentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		pending, err := payments.PaymentPending(c.Request.Context(), requestContext(c))
		if err != nil {
			respondError(c, err)
			c.Abort()
			return
		}
		if pending {
			c.Redirect(http.StatusFound, paymentPage)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireStaff пропускает только авторизованных сотрудников
func RequireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		if staffClaims(c) == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, detail("not_authenticated", "Authentication credentials were not provided."))
			return
		}
		c.Next()
	}
}

// RequireSuperuser пропускает только суперпользователей
func RequireSuperuser() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := staffClaims(c)
		if claims == nil || !claims.IsSuperuser {
			c.AbortWithStatusJSON(http.StatusForbidden, detail("permission_denied", "Superuser role required."))
			return
		}
		c.Next()
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter - token bucket на каждый IP
type IPRateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	idleTTL  time.Duration
}

// NewIPRateLimiter создает лимитер: rps запросов в секунду, burst - запас
func NewIPRateLimiter(rps float64, burst int) *IPRateLimiter {
	return &IPRateLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(rps),
		burst:    burst,
		idleTTL:  3 * time.Minute,
	}
}

// Allow списывает токен для ip
func (l *IPRateLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now

	// Чистим старые записи, чтобы карта не росла бесконечно
	if len(l.visitors) > 1024 {
		for key, other := range l.visitors {
			if now.Sub(other.lastSeen) > l.idleTTL {
				delete(l.visitors, key)
			}
		}
	}
	return v.limiter.Allow()
}

// Middleware возвращает 429 при превышении лимита
func (l *IPRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(c.ClientIP()) {
			log.Warn().Str("ip", c.ClientIP()).Str("path", c.Request.URL.Path).Msg("⏳ Превышен лимит запросов")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, detail("throttled", "Request was throttled."))
			return
		}
		c.Next()
	}
}

// RequestLogger логирует каждый запрос
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		status := c.Writer.Status()
		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		} else if status >= http.StatusBadRequest {
			event = log.Warn()
		}
		event.
			Str("method", method).
			Str("path", path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("🌐 HTTP запрос")
	}
}

// CORS для админки на отдельном домене
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
