package router

import (
	"net/http"
	"time"

	"mentorbook/config"
	"mentorbook/internal/domain"
	"mentorbook/internal/handler"
	"mentorbook/internal/middleware"
	"mentorbook/internal/repository"
	"mentorbook/internal/service"
	"mentorbook/internal/ws"
	"mentorbook/pkg/payment"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App is the wired HTTP service and the long-lived services main needs to
// start and stop.
type App struct {
	Engine        *gin.Engine
	Hub           *ws.Hub
	Slots         *service.SlotService
	Sessions      *service.SessionService
	Settlement    *service.SettlementService
	Ledger        *service.LedgerService
	Notifications *service.NotificationService

	limiter *middleware.InMemoryRateLimiter
}

// Close stops background workers. Queued notifications are delivered first.
func (a *App) Close() {
	if a.limiter != nil {
		a.limiter.Stop()
	}
	a.Notifications.Close()
}

func Setup(cfg *config.Config, db *gorm.DB, gateway payment.Gateway, fcm *service.FCMService, log *zap.Logger) *App {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	app := &App{Engine: r, Hub: ws.NewHub()}
	if cfg.Server.RateLimitPerMinute > 0 {
		app.limiter = middleware.NewInMemoryRateLimiter(cfg.Server.RateLimitPerMinute, time.Minute)
	}

	// Repositories
	userRepo := repository.NewUserRepository(db)
	devRepo := repository.NewDeveloperRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	// Services
	app.Notifications = service.NewNotificationService(notificationRepo, userRepo, app.Hub, fcm,
		cfg.Notification.QueueSize, cfg.Notification.Workers, log)
	identity := service.NewIdentityService(userRepo, devRepo)
	app.Slots = service.NewSlotService(db, cfg.Booking, log)
	app.Ledger = service.NewLedgerService(db, cfg.Payment.Currency, log)
	app.Sessions = service.NewSessionService(db, app.Slots, identity, app.Notifications, cfg.Booking, log)
	app.Settlement = service.NewSettlementService(db, gateway, app.Ledger, app.Notifications, cfg.Payment, log)

	// Handlers
	sessionHandler := handler.NewSessionHandler(app.Sessions, log)
	availabilityHandler := handler.NewAvailabilityHandler(app.Slots, identity, log)
	checkoutHandler := handler.NewCheckoutHandler(app.Settlement, log)
	webhookHandler := handler.NewPaymentWebhookHandler(gateway, app.Settlement, log)
	walletHandler := handler.NewWalletHandler(app.Ledger, log)
	adminHandler := handler.NewAdminHandler(app.Ledger, app.Settlement, log)
	notificationHandler := handler.NewNotificationHandler(app.Notifications, userRepo, log)

	authMw := middleware.AuthRequired(&cfg.JWT)
	authed := []gin.HandlerFunc{authMw}
	if app.limiter != nil {
		authed = append(authed, middleware.RateLimit(app.limiter))
	}

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	api := r.Group("/api/v1")
	{
		// the gateway signs its deliveries and retries on any non-2xx, so no auth or rate limit here
		api.POST("/webhooks/payment", webhookHandler.Handle)

		sessions := api.Group("/sessions")
		sessions.Use(authed...)
		{
			sessions.POST("", middleware.RequireRole(domain.RoleUser), sessionHandler.Book)
			sessions.GET("/:id", sessionHandler.Get)
			sessions.DELETE("/:id", middleware.RequireRole(domain.RoleUser), sessionHandler.Delete)
			sessions.POST("/:id/accept", middleware.RequireRole(domain.RoleDeveloper), sessionHandler.Accept)
			sessions.POST("/:id/reject", middleware.RequireRole(domain.RoleDeveloper), sessionHandler.Reject)
			sessions.POST("/:id/start", sessionHandler.Start)
			sessions.POST("/:id/complete", sessionHandler.Complete)
			sessions.POST("/:id/cancel", sessionHandler.Cancel)
			sessions.POST("/:id/checkout", middleware.RequireRole(domain.RoleUser), checkoutHandler.Create)
		}

		developers := api.Group("/developers")
		developers.Use(authed...)
		{
			developers.GET("/:id/availability", availabilityHandler.Check)
			developers.GET("/:id/unavailable-slots", availabilityHandler.Unavailable)
		}

		me := api.Group("/me")
		me.Use(authed...)
		{
			me.GET("/sessions", sessionHandler.ListMine)
			me.GET("/wallet", walletHandler.GetBalance)
			me.GET("/wallet/transactions", walletHandler.GetTransactions)
			me.GET("/notifications", notificationHandler.List)
			me.PUT("/notifications", notificationHandler.MarkAllRead)
			me.PUT("/notifications/:id/read", notificationHandler.MarkRead)
			me.POST("/fcm-token", notificationHandler.RegisterFCMToken)
			me.PUT("/unavailable-slots", middleware.RequireRole(domain.RoleDeveloper), availabilityHandler.SetMine)
			me.PUT("/default-unavailable-slots", middleware.RequireRole(domain.RoleDeveloper), availabilityHandler.SetDefaults)
		}

		admin := api.Group("/admin")
		admin.Use(authMw, middleware.AdminRequired())
		{
			admin.GET("/wallet", adminHandler.PlatformWallet)
			admin.GET("/wallets/:id/reconcile", adminHandler.Reconcile)
			admin.POST("/sessions/:id/transfer", adminHandler.Transfer)
		}
	}

	r.GET("/ws/notifications", ws.UpgradeNotificationsWS(&cfg.JWT, app.Hub, log))

	return app
}
