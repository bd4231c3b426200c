package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"gorm.io/gorm"

	"fscabinet/server/internal/utils"
)

// HealthServiceName - имя сервиса в gRPC health протоколе
const HealthServiceName = "fscabinet.Storefront"

// HealthChecker проверяет зависимости сервера
type HealthChecker struct {
	db    *gorm.DB
	redis *utils.RedisClient
}

// NewHealthChecker создает проверку здоровья; redis может быть nil
func NewHealthChecker(db *gorm.DB, redisUtil *utils.RedisClient) *HealthChecker {
	return &HealthChecker{db: db, redis: redisUtil}
}

// Check возвращает состояние каждой зависимости ("ok", "error" или "disabled")
func (h *HealthChecker) Check(ctx context.Context) (map[string]string, bool) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	status := map[string]string{"database": "ok", "redis": "disabled"}
	healthy := true

	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		log.Warn().Err(err).Msg("⚠️ Health: БД недоступна")
		status["database"] = "error"
		healthy = false
	}

	// Redis необязателен: без него сервер работает, но сообщаем о проблеме
	if h.redis != nil {
		status["redis"] = "ok"
		if err := h.redis.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("⚠️ Health: Redis недоступен")
			status["redis"] = "error"
		}
	}
	return status, healthy
}

// Handler - GET /api/v1/health
func (h *HealthChecker) Handler(c *gin.Context) {
	checks, healthy := h.Check(c.Request.Context())
	code := http.StatusOK
	status := "ok"
	if !healthy {
		code = http.StatusServiceUnavailable
		status = "unavailable"
	}
	c.JSON(code, gin.H{
		"status":  status,
		"service": "FS Cabinet",
		"checks":  checks,
	})
}

// Watch периодически обновляет статус gRPC health сервера
func (h *HealthChecker) Watch(ctx context.Context, srv *health.Server, every time.Duration) {
	update := func() {
		_, healthy := h.Check(ctx)
		st := healthpb.HealthCheckResponse_SERVING
		if !healthy {
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
		srv.SetServingStatus("", st)
		srv.SetServingStatus(HealthServiceName, st)
	}

	update()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			srv.Shutdown()
			return
		case <-ticker.C:
			update()
		}
	}
}

// ServeGRPCHealth поднимает gRPC сервер со стандартным health сервисом для балансировщика.
// Возвращает сервер для GracefulStop.
func ServeGRPCHealth(ctx context.Context, addr string, checker *HealthChecker) (*grpc.Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	go checker.Watch(ctx, healthServer, 15*time.Second)
	go func() {
		log.Info().Str("addr", addr).Msg("📡 gRPC health сервер запущен")
		if err := grpcServer.Serve(lis); err != nil {
			log.Error().Err(err).Msg("❌ gRPC health сервер остановлен")
		}
	}()
	return grpcServer, nil
}
