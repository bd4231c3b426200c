package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"

	"fscabinet/server/internal/api"
	"fscabinet/server/internal/config"
	"fscabinet/server/internal/database"
	"fscabinet/server/internal/liqpay"
	"fscabinet/server/internal/logger"
	"fscabinet/server/internal/mailer"
	"fscabinet/server/internal/models"
	"fscabinet/server/internal/services"
	"fscabinet/server/internal/utils"
)

func main() {
	// .env необязателен: в production переменные приходят из окружения
	envErr := godotenv.Load()

	cfg := config.Load()
	logger.Setup(cfg.Environment)
	if envErr != nil {
		log.Info().Msg("ℹ️ .env файл не найден, используем переменные окружения системы")
	} else {
		log.Info().Msg("✅ Переменные окружения загружены из .env файла")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loc := cfg.Location()
	if cfg.LocalTimeZone != loc.String() {
		log.Warn().Str("zone", cfg.LocalTimeZone).Msg("⚠️ Часовой пояс не найден, используется UTC")
	}

	// Логируем адрес БД без пароля
	safeURL := cfg.DatabaseURL
	if idx := strings.Index(safeURL, "@"); idx > 0 {
		if schemeIdx := strings.Index(safeURL, "://"); schemeIdx > 0 {
			safeURL = safeURL[:schemeIdx+3] + "***@" + safeURL[idx+1:]
		}
	}
	log.Info().Str("database_url", safeURL).Msg("📋 Подключение к БД")

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("❌ Database connection failed")
	}
	defer database.Close(db)

	if err := models.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("❌ Migration failed")
	}
	if err := models.EnsureAdmin(db, cfg.AdminUsername, cfg.AdminPassword, cfg.AdminEmail); err != nil {
		log.Fatal().Err(err).Msg("❌ Не удалось создать администратора")
	}

	// Redis необязателен: без него нет блокировки коллбеков и синхронизации меню между инстансами
	var redisUtil *utils.RedisClient
	redisClient, err := database.ConnectRedis(cfg.RedisURL, cfg.RedisSentinelAddrs, cfg.RedisMasterName)
	if err != nil {
		log.Warn().Err(err).Msg("⚠️ Redis connection failed (continuing without Redis)")
		redisClient = nil
	} else {
		redisUtil = utils.NewRedisClient(redisClient)
	}
	defer database.CloseRedis(redisClient)

	// События заказов: Kafka (если задана) + Redis Pub/Sub для ленты в админке
	var writer services.MessageWriter
	if brokers := utils.ParseKafkaBrokers(cfg.KafkaBrokers); len(brokers) > 0 {
		dialer := utils.CreateKafkaDialer(cfg.KafkaUsername, cfg.KafkaPassword, cfg.KafkaCACert)
		writer = services.NewKafkaOrdersWriter(brokers, cfg.KafkaOrdersTopic, utils.NewKafkaTransport(dialer))
		log.Info().Strs("brokers", brokers).Str("topic", cfg.KafkaOrdersTopic).Msg("📡 Kafka producer заказов настроен")
	} else {
		log.Info().Msg("ℹ️ KAFKA_BROKERS не задан, события заказов не уходят в Kafka")
	}
	eventBus := services.NewOrderEventBus(writer, redisUtil)
	defer func() {
		if err := eventBus.Close(); err != nil {
			log.Warn().Err(err).Msg("⚠️ Ошибка закрытия шины событий")
		}
	}()

	var mail mailer.Mailer
	if cfg.ResendAPIKey != "" {
		resend, err := mailer.NewResendMailer(cfg.ResendAPIKey, cfg.EmailSender)
		if err != nil {
			log.Fatal().Err(err).Msg("❌ Resend mailer config invalid")
		}
		mail = resend
	} else {
		log.Warn().Msg("⚠️ RESEND_API_KEY не задан, письма пишутся в лог")
		mail = mailer.NewLogMailer()
	}

	if cfg.LiqPayPublicKey == "" || cfg.LiqPayPrivateKey == "" {
		log.Warn().Msg("⚠️ Ключи LiqPay не заданы, онлайн-оплата не будет работать")
	}
	gateway := liqpay.NewClient(cfg.LiqPayPublicKey, cfg.LiqPayPrivateKey)

	settingsService := services.NewSettingsService(db)
	notificationService, err := services.NewNotificationService(db, settingsService, mail, loc)
	if err != nil {
		log.Fatal().Err(err).Msg("❌ Notification templates failed")
	}
	cartService := services.NewCartService(db, loc)
	orderService := services.NewOrderService(db, settingsService, notificationService, eventBus, loc)
	paymentService := services.NewPaymentService(db, gateway, redisUtil, notificationService, eventBus)
	authService := services.NewAuthService(db, cfg.JWTSecret, cfg.JWTTTL)
	exportService := services.NewExportService(orderService, loc)

	menuService := services.NewMenuService(db, redisUtil)
	if err := menuService.LoadMenu(ctx); err != nil {
		log.Warn().Err(err).Msg("⚠️ Failed to load menu from DB (will retry on first request)")
	} else {
		log.Info().Msg("✅ Menu loaded from database")
	}
	menuService.StartAutoReload(ctx)
	defer menuService.Stop()

	hub := api.NewHub()
	go hub.Run(ctx)
	api.StartOrderFeed(ctx, hub, eventBus, redisUtil)

	health := api.NewHealthChecker(db, redisUtil)
	var grpcServer *grpc.Server
	if cfg.GRPCPort != "" {
		grpcServer, err = api.ServeGRPCHealth(ctx, ":"+cfg.GRPCPort, health)
		if err != nil {
			log.Fatal().Err(err).Msg("❌ failed to listen gRPC")
		}
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router, err := api.NewRouter(api.RouterDeps{
		Menu:                menuService,
		Carts:               cartService,
		Orders:              orderService,
		Payments:            paymentService,
		Settings:            settingsService,
		Auth:                authService,
		Export:              exportService,
		Hub:                 hub,
		Health:              health,
		SessionCookieName:   cfg.SessionCookieName,
		SessionCookieSecure: cfg.SessionCookieSecure,
		PublicBaseURL:       cfg.PublicBaseURL,
		Location:            loc,
		RateLimitRPS:        cfg.RateLimitRPS,
		RateLimitBurst:      cfg.RateLimitBurst,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("❌ Router setup failed")
	}

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("port", cfg.ServerPort).Msg("🚀 Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("❌ Failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("🛑 Остановка сервера...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("❌ HTTP shutdown failed")
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	log.Info().Msg("👋 Сервер остановлен")
}
