// @title           Legal Aid Case & Service Request API
// @version         1.0
// @description     Case assignment, service request verification and lawyer suspension for a legal-aid practice.
// @contact.name    Aldo Rifki Putra
// @contact.email   aldoetobex@gmail.com
// @BasePath        /api
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in              header
// @name            Authorization
// @description     Format: Bearer <token>
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/aldoetobex/legal-aid-backend/internal/auth"
	"github.com/aldoetobex/legal-aid-backend/internal/cases"
	"github.com/aldoetobex/legal-aid-backend/internal/notify"
	"github.com/aldoetobex/legal-aid-backend/internal/payments"
	"github.com/aldoetobex/legal-aid-backend/internal/servicerequests"
	"github.com/aldoetobex/legal-aid-backend/internal/storage"
	"github.com/aldoetobex/legal-aid-backend/internal/suspensions"
	"github.com/aldoetobex/legal-aid-backend/pkg/config"
	"github.com/aldoetobex/legal-aid-backend/pkg/database"
	"github.com/aldoetobex/legal-aid-backend/pkg/logger"
	"github.com/aldoetobex/legal-aid-backend/pkg/models"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config: ", err)
	}

	lg, err := logger.New(cfg.LogLevel, cfg.LogDev || cfg.IsDev())
	if err != nil {
		log.Fatal("logger: ", err)
	}
	defer func() { _ = lg.Sync() }()

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		lg.Fatal("database connection failed", zap.Error(err))
	}
	defer func() { _ = database.Close(db) }()
	if err := database.Migrate(db); err != nil {
		lg.Fatal("migration failed", zap.Error(err))
	}

	// Notifications go out over SMTP when configured, otherwise to the log
	var sender notify.Sender = notify.LogSender{Log: lg}
	if cfg.SMTP.Enabled() {
		sender = notify.NewSMTPSender(cfg.SMTP)
	}
	dispatcher := notify.NewDispatcher(db, sender, lg)

	// Object storage is optional; document routes answer 503 without it
	var docs servicerequests.DocumentStore
	if cfg.MinIO.Enabled() {
		st, err := storage.NewStore(cfg.MinIO)
		if err != nil {
			lg.Fatal("object storage init failed", zap.Error(err))
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = st.EnsureBucket(ctx)
		cancel()
		if err != nil {
			lg.Fatal("object storage bucket check failed", zap.Error(err))
		}
		docs = st
	} else {
		lg.Warn("MINIO_ENDPOINT not set; document upload disabled")
	}

	if cfg.LegalAidIncomeThreshold == nil {
		lg.Warn("legal-aid fast-path approval disabled", zap.String("reason", cfg.ThresholdWarning))
	}

	manager := cases.NewManager(db, dispatcher, lg)
	gate := servicerequests.NewGate(db, cfg.LegalAidIncomeThreshold, dispatcher, lg)
	intake := servicerequests.NewIntake(db)
	coordinator := suspensions.NewCoordinator(db, dispatcher, lg)

	app := fiber.New(fiber.Config{
		ErrorHandler: auth.ErrorHandler,
		BodyLimit:    110 * 1024 * 1024, // 10 files of 10MB plus form overhead
	})
	app.Use(logger.Middleware(lg))

	app.Get("/health", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"status": "ok"}) })

	api := app.Group("/api")
	tokens := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL)
	authed := tokens.RequireAuth()
	staff := auth.RequireRole(models.RoleCoordinator, models.RoleAdmin)

	// Auth
	authH := auth.NewHandler(db, tokens, lg)
	api.Post("/signup", authH.Signup)
	api.Post("/login", authH.Login)
	api.Get("/me", authed, authH.Me)

	// Cases
	caseH := cases.NewHandler(db, manager)
	api.Post("/cases", authed, auth.RequireRole(models.RoleClient), caseH.Create)
	// static path before /cases/:id
	api.Get("/cases/assigned", authed, auth.RequireRole(models.RoleLawyer), caseH.ListAssigned)
	api.Get("/cases/:id", authed, caseH.GetDetail)
	api.Get("/cases/:id/activities", authed, caseH.ListActivities)
	api.Patch("/cases/:id", authed, staff, caseH.Update)
	api.Post("/cases/:id/assign", authed, staff, caseH.Assign)

	// Service requests
	srH := servicerequests.NewHandler(intake, gate, docs)
	api.Post("/service-requests", authed, auth.RequireRole(models.RoleClient), srH.Create)
	api.Get("/service-requests/:id", authed, srH.Get)
	api.Post("/service-requests/:id/income-proof", authed, auth.RequireRole(models.RoleClient), srH.SubmitIncomeProof)
	api.Post("/service-requests/:id/documents", authed, auth.RequireRole(models.RoleClient), srH.UploadDocuments)
	api.Get("/service-requests/:id/documents/:documentID/url", authed, srH.DocumentURL)

	// Verification
	api.Post("/service-requests/:id/documents/:documentID/verify", authed, staff, srH.VerifyDocument)
	api.Post("/service-requests/:id/income-proof/verify", authed, staff, srH.VerifyIncome)
	api.Post("/service-requests/:id/payment/verify", authed, staff, srH.VerifyPayment)

	// Payments
	payH := payments.NewHandler(db, gate, cfg, lg)
	api.Post("/service-requests/:id/payment", authed, auth.RequireRole(models.RoleClient), payH.Initiate)
	// Only in dev mode with mock payment provider; protected by X-Dev-Secret
	if cfg.IsDev() && cfg.PaymentProvider == "mock" {
		api.Post("/payments/mock/complete", payH.MockComplete)
	}

	// Suspensions
	suspH := suspensions.NewHandler(coordinator)
	admin := auth.RequireRole(models.RoleAdmin)
	api.Post("/lawyers/:id/suspend", authed, admin, suspH.Suspend)
	api.Post("/lawyers/:id/reinstate", authed, admin, suspH.Reinstate)
	api.Get("/lawyers/:id/suspensions", authed, staff, suspH.History)

	go func() {
		lg.Info("server running", zap.String("port", cfg.Port), zap.String("env", cfg.AppEnv))
		if err := app.Listen(":" + cfg.Port); err != nil {
			lg.Error("listen stopped", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	lg.Info("shutting down")
	if err := app.ShutdownWithTimeout(15 * time.Second); err != nil {
		lg.Error("shutdown", zap.Error(err))
	}
	dispatcher.Wait()
}
