package payments

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aldoetobex/legal-aid-backend/internal/auth"
	"github.com/aldoetobex/legal-aid-backend/internal/servicerequests"
	"github.com/aldoetobex/legal-aid-backend/pkg/apperr"
	"github.com/aldoetobex/legal-aid-backend/pkg/config"
	"github.com/aldoetobex/legal-aid-backend/pkg/models"
)

// Verifier is the part of the verification gate a processor callback drives.
type Verifier interface {
	VerifyPayment(ctx context.Context, in servicerequests.VerifyPaymentInput) (*servicerequests.PaymentResult, error)
}

type Handler struct {
	db       *gorm.DB
	verifier Verifier
	log      *zap.Logger

	provider  string
	devSecret string
	dev       bool
}

func NewHandler(db *gorm.DB, v Verifier, cfg config.Config, log *zap.Logger) *Handler {
	return &Handler{
		db:        db,
		verifier:  v,
		log:       log,
		provider:  cfg.PaymentProvider,
		devSecret: cfg.DevPaymentSecret,
		dev:       cfg.IsDev(),
	}
}

// ========== Initiate (client) ==========

// Initiate Payment godoc
// @Summary      Start paying for a service request
// @Description  Creates the request's single PENDING payment (idempotent) and returns a mock checkout URL. Any service type may pay; a LEGAL_AID request over the income threshold is approved through payment like the others.
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "service request id (uuid)"
// @Success      201  {object}  map[string]any  "payment_id, redirect_url, provider"
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /service-requests/{id}/payment [post]
func (h *Handler) Initiate(c *fiber.Ctx) error {
	if h.provider != "mock" {
		return fiber.NewError(fiber.StatusNotImplemented, "payment provider not wired yet")
	}
	clientID, err := auth.MustUserUUID(c)
	if err != nil {
		return err
	}
	reqID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid service request id")
	}

	var pay models.ServicePayment
	err = h.db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		var req models.ServiceRequest
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&req, "id = ? AND client_id = ?", reqID, clientID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("service request not found")
			}
			return apperr.Store("payments.initiate", err)
		}
		if req.Status != models.RequestPending {
			return apperr.Conflict("service request is no longer pending")
		}

		// One payment per request; a repeated call returns the existing row
		err := tx.First(&pay, "service_request_id = ?", req.ID).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.Store("payments.initiate", err)
		}
		now := time.Now().UTC()
		pay = models.ServicePayment{
			ServiceRequestID: req.ID,
			AmountCents:      req.FeeCents,
			Status:           models.PayPending,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := tx.Create(&pay).Error; err != nil {
			return apperr.Store("payments.initiate", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	// Frontend redirects to its success page and the processor (or /payments/mock/complete) confirms
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"payment_id":   pay.ID,
		"amount_cents": pay.AmountCents,
		"status":       pay.Status,
		"redirect_url": "mock://checkout?payment_id=" + pay.ID.String(),
		"provider":     h.provider,
	})
}

// ========== Mock Complete (dev only) ==========
// Body: { "payment_id": "<uuid>" }
// Header: X-Dev-Secret: <DEV_PAYMENT_SECRET>
type mockCompleteReq struct {
	PaymentID string `json:"payment_id"`
}

// Mock Complete godoc
// @Summary      Simulate the processor confirming a payment (dev only)
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        X-Dev-Secret  header  string           true  "dev secret"
// @Param        payload       body    mockCompleteReq  true  "payment"
// @Success      200  {object}  servicerequests.PaymentResult
// @Failure      401  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /payments/mock/complete [post]
func (h *Handler) MockComplete(c *fiber.Ctx) error {
	if !h.dev || h.provider != "mock" {
		return fiber.ErrNotFound
	}
	if h.devSecret == "" || c.Get("X-Dev-Secret") != h.devSecret {
		return fiber.NewError(http.StatusUnauthorized, "missing/invalid X-Dev-Secret")
	}
	var in mockCompleteReq
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	pid, err := uuid.Parse(in.PaymentID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid payment id")
	}

	var pay models.ServicePayment
	if err := h.db.WithContext(c.UserContext()).Select("id", "service_request_id", "provider_ref").
		First(&pay, "id = ?", pid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.ErrNotFound
		}
		return fiber.ErrInternalServerError
	}

	ref := "mock_" + uuid.NewString()
	if pay.ProviderRef != nil {
		ref = *pay.ProviderRef
	}
	res, err := h.verifier.VerifyPayment(c.UserContext(), servicerequests.VerifyPaymentInput{
		RequestID:   pay.ServiceRequestID,
		ProviderRef: ref,
	})
	if err != nil {
		return err
	}
	h.log.Info("mock payment completed",
		zap.String("payment_id", pay.ID.String()),
		zap.Bool("already_verified", res.AlreadyVerified),
	)
	return c.JSON(res)
}
