package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/caplatform/backend/internal/auth"
	"github.com/caplatform/backend/internal/cases"
	"github.com/caplatform/backend/internal/catalog"
	"github.com/caplatform/backend/internal/notify"
	"github.com/caplatform/backend/internal/payments"
	"github.com/caplatform/backend/internal/storage"
	"github.com/caplatform/backend/internal/tasks"
	"github.com/caplatform/backend/pkg/config"
	"github.com/caplatform/backend/pkg/database"
	"github.com/caplatform/backend/pkg/logger"
	"github.com/caplatform/backend/pkg/models"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.AppEnv)
	defer logger.Sync()
	log := logger.Get()

	db := database.Init(cfg.DatabaseURL)
	if err := db.AutoMigrate(models.All()...); err != nil {
		log.Fatalw("migration failed", "error", err)
	}

	store, err := storage.New(cfg.Storage)
	if err != nil {
		log.Fatalw("storage init failed", "error", err)
	}

	runner := tasks.New(cfg.Tasks.Workers, cfg.Tasks.SoftTimeout, log)
	mailer := notify.NewMailer(cfg.Email, log)
	notifier := notify.NewDispatcher(db, mailer, runner, cfg, log)

	engine := cases.NewEngine(db, notifier)
	gateway := payments.NewGateway(cfg.Razorpay)
	reconciler := payments.NewReconciler(db, gateway, notifier, runner)

	authH := auth.NewHandler(db, cfg)
	catalogH := catalog.NewHandler(db)
	casesH := cases.NewHandler(db, engine, store)
	paymentsH := payments.NewHandler(reconciler)

	app := fiber.New(fiber.Config{
		ErrorHandler: auth.ErrorHandler,
		BodyLimit:    12 * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.FrontendURL,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PATCH, DELETE, OPTIONS",
	}))
	app.Use(requestLogger())

	/* ------------------------------ Health ------------------------------ */

	ping := func(c *fiber.Ctx) error {
		sqlDB, err := db.DB()
		if err != nil || sqlDB.Ping() != nil {
			return c.SendStatus(fiber.StatusServiceUnavailable)
		}
		return c.SendStatus(fiber.StatusOK)
	}
	app.Get("/health", ping)
	app.Get("/livez", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	app.Get("/readyz", ping)

	api := app.Group("/api")

	/* ------------------------------- Auth ------------------------------- */

	api.Post("/signup", authH.Signup)
	api.Post("/login", authH.Login)
	api.Get("/me", auth.RequireAuth(cfg.JWTSecret), authH.Me)

	/* ------------------------------ Catalog ----------------------------- */

	staff := auth.RequireRole(models.RoleStaff)
	authed := api.Group("", auth.RequireAuth(cfg.JWTSecret))
	authed.Get("/service-categories", catalogH.ListCategories)
	authed.Get("/services/:id", catalogH.GetService)

	admin := api.Group("/admin", auth.RequireAuth(cfg.JWTSecret), staff)
	admin.Post("/categories", catalogH.CreateCategory)
	admin.Post("/services", catalogH.CreateService)
	admin.Patch("/services/:id", catalogH.UpdateService)
	admin.Post("/plans", catalogH.CreatePlan)
	admin.Patch("/plans/:id", catalogH.UpdatePlan)
	admin.Delete("/plans/:id", catalogH.DeletePlan)

	/* ------------------------------- Cases ------------------------------ */

	authed.Post("/cases", auth.RequireRole(models.RoleClient), casesH.Create)
	authed.Get("/cases", casesH.List)
	authed.Get("/cases/:id", casesH.Detail)
	authed.Patch("/cases/:id/status", staff, casesH.UpdateStatus)
	authed.Delete("/cases/:id", staff, casesH.Delete)

	/* ----------------------------- Documents ---------------------------- */

	authed.Post("/cases/:id/documents", casesH.UploadDocument)
	authed.Get("/cases/:id/documents/:docID/signed-url", casesH.SignedDownloadURL)
	authed.Post("/cases/:id/documents/:docID/verify", staff, casesH.VerifyDocument)
	authed.Delete("/cases/:id/documents/:docID", casesH.DeleteDocument)

	/* ----------------------------- Payments ----------------------------- */

	client := auth.RequireRole(models.RoleClient)
	authed.Post("/cases/:id/pay", client, paymentsH.Pay)
	authed.Post("/cases/:id/razorpay/create-order", client, paymentsH.CreateOrder)
	authed.Post("/cases/:id/razorpay/verify", client, paymentsH.Verify)

	// Gateway-facing, authenticated by signature instead of JWT.
	api.Post("/payments/razorpay/webhook", paymentsH.Webhook)

	/* ----------------------------- Lifecycle ---------------------------- */

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		log.Info("shutting down")
		_ = app.ShutdownWithTimeout(10 * time.Second)
	}()

	log.Infow("server starting", "port", cfg.Port, "env", cfg.AppEnv)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalw("server stopped", "error", err)
	}

	// Let queued notifications drain before exit.
	runner.Shutdown()
}

// requestLogger logs one line per request with latency and status.
func requestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		logger.Get().Infow("request",
			"method", c.Method(),
			"path", c.Path(),
			"status", c.Response().StatusCode(),
			"latency", time.Since(start),
		)
		return err
	}
}
