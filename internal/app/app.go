package app

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"nimbus_backend/database"
	"nimbus_backend/internal/billing"
	"nimbus_backend/internal/config"
	"nimbus_backend/internal/email"
	"nimbus_backend/internal/handlers"
	"nimbus_backend/internal/identity"
	"nimbus_backend/internal/logger"
	"nimbus_backend/internal/middleware"
	"nimbus_backend/internal/routes"
	"nimbus_backend/internal/services"
	"nimbus_backend/internal/validator"
	"nimbus_backend/internal/workers"
)

func Run() {
	config.LoadConfig()
	cfg := config.AppConfig

	logger.Init(cfg.Server.Env)
	logger.Info("Logger initialized", "env", cfg.Server.Env)

	gormDB, err := database.ConnectGorm()
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		logger.Fatal("Failed to get *sql.DB from GORM", "error", err)
	}
	if err = sqlDB.Ping(); err != nil {
		logger.Fatal("Database unavailable", "error", err)
	}
	logger.Info("Database connected")

	if err := database.AutoMigrate(gormDB); err != nil {
		logger.Fatal("Migration failed", "error", err)
	}

	serviceContainer := initializeServices(cfg)

	worker := workers.NewMembershipWorker(gormDB, serviceContainer.MembershipService, cfg.Worker.ExpirySchedule)
	if err := worker.Start(); err != nil {
		logger.Fatal("Failed to start membership worker", "error", err)
	}
	defer worker.Stop()

	ginRouter := SetupRouter(cfg, gormDB, serviceContainer)

	address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Info("Server starting", "address", address)
	if err := ginRouter.Run(address); err != nil {
		logger.Fatal("Server startup error", "error", err)
	}
}

func SetupRouter(cfg *config.Config, gormDB *gorm.DB, serviceContainer *services.ServiceContainer) *gin.Engine {
	verifier, err := identity.NewVerifier(cfg.Identity.Issuer, cfg.Identity.Audience, cfg.Identity.JWKSURL)
	if err != nil {
		logger.Fatal("Failed to initialize token verifier", "error", err)
	}

	auth := middleware.AuthMiddleware(verifier, serviceContainer.UserService)
	appHandlers := initializeHandlers(serviceContainer)

	ginRouter := initializeGinRouter(gormDB)
	routes.RegisterRoutes(ginRouter, appHandlers, auth)

	return ginRouter
}

func initializeServices(cfg *config.Config) *services.ServiceContainer {
	billingClient, err := billing.NewClient(billing.Config{
		SecretKey:     cfg.Stripe.SecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		SuccessURL:    cfg.Stripe.SuccessURL,
		CancelURL:     cfg.Stripe.CancelURL,
	})
	if err != nil {
		logger.Fatal("Failed to initialize billing client", "error", err)
	}

	management, err := identity.NewManagementClient(cfg.Identity.ManagementURL, cfg.Identity.ManagementToken)
	if err != nil {
		logger.Fatal("Failed to initialize identity management client", "error", err)
	}

	var emailProvider email.Provider
	if cfg.Email.Enabled {
		emailProvider = email.NewSMTPProvider(email.SMTPConfig{
			Host:     cfg.Email.SMTPHost,
			Port:     cfg.Email.SMTPPort,
			Username: cfg.Email.SMTPUsername,
			Password: cfg.Email.SMTPPassword,
			From:     cfg.Email.FromEmail,
			FromName: cfg.Email.FromName,
		})
	} else {
		logger.Warn("Email delivery disabled, using noop provider")
		emailProvider = &email.NoopProvider{}
	}

	return services.NewServiceContainer(billingClient, management, emailProvider)
}

func initializeHandlers(container *services.ServiceContainer) *handlers.AppHandlers {
	customValidator := validator.New()
	baseHandler := handlers.NewBaseHandler(customValidator)

	return &handlers.AppHandlers{
		UserHandler:       handlers.NewUserHandler(baseHandler, container.UserService),
		PlanHandler:       handlers.NewPlanHandler(baseHandler, container.MembershipService),
		MembershipHandler: handlers.NewMembershipHandler(baseHandler, container.MembershipService),
		BillingHandler:    handlers.NewBillingHandler(baseHandler, container.BillingClient, container.BillingService),
		AdminHandler:      handlers.NewAdminHandler(baseHandler, container.UserService, container.AdminSyncService),
	}
}

func initializeGinRouter(db *gorm.DB) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.DBMiddleware(db))
	return router
}
