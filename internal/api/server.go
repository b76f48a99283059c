package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"staybook/internal/cache"
	"staybook/internal/config"
	"staybook/internal/database"
	"staybook/internal/external"
	"staybook/internal/handlers"
	"staybook/internal/logger"
	"staybook/internal/messaging"
	"staybook/internal/metrics"
	"staybook/internal/middleware"
	"staybook/internal/repository"
	"staybook/internal/service"
)

// Server представляет HTTP сервер API
type Server struct {
	router   *gin.Engine
	config   *config.Config
	db       *database.DB
	nats     *messaging.NATSClient
	redis    *cache.Client
	services *service.Services
	repos    *repository.Repositories
}

// NewServer создает новый экземпляр сервера
func NewServer(cfg *config.Config) *Server {
	// Устанавливаем режим Gin
	gin.SetMode(cfg.GinMode)

	// Подключаемся к базе данных
	db, err := database.Connect(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}

	// Запускаем миграции
	if err := db.RunMigrations(); err != nil {
		logger.Fatal("Failed to run migrations", "error", err)
	}

	// Подключаемся к NATS
	natsClient, err := messaging.NewNATSClient(cfg.NATS)
	if err != nil {
		logger.Fatal("Failed to connect to NATS", "error", err)
	}

	// Redis только ускоряет аутентификацию, без него сервис работает через БД
	redisClient, err := cache.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("Redis unavailable, credential cache disabled", "error", err)
	}

	gateway := external.NewChapaClient(cfg.Gateway)
	repos := repository.NewRepositories(db)

	services := service.NewServices(repos, gateway, messaging.NewBookingNotifier(natsClient), natsClient, service.PaymentOptions{
		Currency:         cfg.Payment.Currency,
		CallbackURL:      cfg.Payment.CallbackURL(),
		DefaultReturnURL: cfg.Payment.DefaultReturnURL,
	})

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS())
	router.Use(metrics.Middleware())
	router.Use(middleware.Timeout(cfg.RequestTimeout))

	server := &Server{
		router:   router,
		config:   cfg,
		db:       db,
		nats:     natsClient,
		redis:    redisClient,
		services: services,
		repos:    repos,
	}

	server.setupRoutes()

	return server
}

// setupRoutes настраивает все API роуты
func (s *Server) setupRoutes() {
	h := handlers.NewHandlers(s.services.Bookings, s.services.Payments)

	var authCache middleware.AuthCache
	if s.redis != nil {
		authCache = s.redis
	}

	// The gateway redirects the browser and posts its callback here without credentials
	s.router.GET("/api/payments/verify", h.VerifyPayment)

	api := s.router.Group("/api")
	api.Use(middleware.BasicAuth(s.repos.Users, authCache))
	{
		bookings := api.Group("/bookings")
		{
			bookings.POST("", h.CreateBooking)
			bookings.GET("", h.ListBookings)
			bookings.GET("/:id", h.GetBooking)
			bookings.PATCH("/:id/cancel", h.CancelBooking)
		}

		payments := api.Group("/payments")
		{
			payments.POST("/initiate", h.InitiatePayment)
		}
	}

	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// healthCheck обрабатывает health check запросы
func (s *Server) healthCheck(c *gin.Context) {
	dbHealth := s.db.HealthCheck(c.Request.Context())

	status := http.StatusOK
	if dbHealth.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}

	response := gin.H{
		"status":   dbHealth.Status,
		"service":  "staybook-api",
		"version":  "1.0.0",
		"database": dbHealth,
	}
	if s.redis != nil {
		if err := s.redis.Ping(c.Request.Context()); err != nil {
			response["redis"] = "unreachable"
		} else {
			response["redis"] = "ok"
		}
	}

	c.JSON(status, response)
}

// Run запускает HTTP сервер
func (s *Server) Run() error {
	addr := fmt.Sprintf(":%s", s.config.Port)
	return s.router.Run(addr)
}

// GetRouter возвращает роутер для тестирования
func (s *Server) GetRouter() *gin.Engine {
	return s.router
}

// Cleanup закрывает соединения
func (s *Server) Cleanup(ctx context.Context) error {
	if s.nats != nil {
		if err := s.nats.Close(); err != nil {
			logger.WithContext(ctx).Error("Error closing NATS connection", "error", err)
		}
	}

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			logger.WithContext(ctx).Error("Error closing Redis connection", "error", err)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			logger.WithContext(ctx).Error("Error closing database connection", "error", err)
			return err
		}
	}

	return nil
}
