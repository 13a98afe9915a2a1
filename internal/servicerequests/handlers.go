package servicerequests

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/aldoetobex/legal-aid-backend/internal/auth"
	"github.com/aldoetobex/legal-aid-backend/pkg/models"
	"github.com/aldoetobex/legal-aid-backend/pkg/validation"
)

// ===== DTOs =====

type CreateRequest struct {
	ServiceType string `json:"service_type" validate:"required,servicetype"`
	Title       string `json:"title" validate:"required,notblank,max=120"`
	Description string `json:"description" validate:"max=2000"`
	FeeCents    int    `json:"fee_cents" validate:"gte=0"`
}

type IncomeProofRequest struct {
	AnnualIncome *float64 `json:"annual_income" validate:"required,gte=0"`
}

type VerifyDocumentRequest struct {
	Verified *bool  `json:"verified" validate:"required"`
	Notes    string `json:"notes" validate:"max=1000"`
}

type VerifyIncomeRequest struct {
	Verified *bool  `json:"verified" validate:"required"`
	Notes    string `json:"notes" validate:"max=1000"`
}

type Handler struct {
	intake *Intake
	gate   *Gate
	store  DocumentStore
}

func NewHandler(intake *Intake, gate *Gate, store DocumentStore) *Handler {
	return &Handler{intake: intake, gate: gate, store: store}
}

func parseRequestID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "invalid service request id")
	}
	return id, nil
}

// Create godoc
// @Summary      Open a service request
// @Tags         service-requests
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  CreateRequest  true  "Request"
// @Success      201  {object}  models.ServiceRequest
// @Failure      400  {object}  models.ValidationErrorResponse
// @Router       /service-requests [post]
func (h *Handler) Create(c *fiber.Ctx) error {
	var in CreateRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}
	clientID, err := auth.MustUserUUID(c)
	if err != nil {
		return err
	}
	req, err := h.intake.Create(c.UserContext(), CreateInput{
		ClientID:    clientID,
		ServiceType: models.ServiceType(in.ServiceType),
		Title:       in.Title,
		Description: in.Description,
		FeeCents:    in.FeeCents,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(req)
}

// Get godoc
// @Summary      Service request detail
// @Description  Owner client or staff; includes income proof, payment, documents and verification history
// @Tags         service-requests
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "service request id (uuid)"
// @Success      200  {object}  models.ServiceRequest
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /service-requests/{id} [get]
func (h *Handler) Get(c *fiber.Ctx) error {
	id, err := parseRequestID(c)
	if err != nil {
		return err
	}
	req, err := h.intake.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	if !auth.IsStaff(c) && req.ClientID.String() != auth.MustUserID(c) {
		return fiber.ErrForbidden
	}
	if req.Documents == nil {
		req.Documents = []models.ServiceDocument{}
	}
	if req.Verifications == nil {
		req.Verifications = []models.VerificationRecord{}
	}
	return c.JSON(req)
}

// Submit Income Proof godoc
// @Summary      Declare annual income (legal aid)
// @Tags         service-requests
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string              true  "service request id (uuid)"
// @Param        payload  body  IncomeProofRequest  true  "Income"
// @Success      201  {object}  models.IncomeProof
// @Failure      409  {object}  models.ErrorResponse
// @Router       /service-requests/{id}/income-proof [post]
func (h *Handler) SubmitIncomeProof(c *fiber.Ctx) error {
	id, err := parseRequestID(c)
	if err != nil {
		return err
	}
	var in IncomeProofRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}
	clientID, err := auth.MustUserUUID(c)
	if err != nil {
		return err
	}
	proof, err := h.intake.SubmitIncomeProof(c.UserContext(), id, clientID, *in.AnnualIncome)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(proof)
}

// Verify Document godoc
// @Summary      Verify or reject one document
// @Tags         verification
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id          path  string                 true  "service request id (uuid)"
// @Param        documentID  path  string                 true  "document id (uuid)"
// @Param        payload     body  VerifyDocumentRequest  true  "Decision"
// @Success      200  {object}  DocumentResult
// @Failure      404  {object}  models.ErrorResponse
// @Router       /service-requests/{id}/documents/{documentID}/verify [post]
func (h *Handler) VerifyDocument(c *fiber.Ctx) error {
	id, err := parseRequestID(c)
	if err != nil {
		return err
	}
	docID, err := uuid.Parse(c.Params("documentID"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid document id")
	}
	var in VerifyDocumentRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}
	actor, err := auth.MustUserUUID(c)
	if err != nil {
		return err
	}
	res, err := h.gate.VerifyDocument(c.UserContext(), VerifyDocumentInput{
		RequestID:  id,
		DocumentID: docID,
		Verified:   *in.Verified,
		Notes:      in.Notes,
		VerifiedBy: actor,
	})
	if err != nil {
		return err
	}
	return c.JSON(res)
}

// Verify Income godoc
// @Summary      Verify or reject the income proof
// @Description  A verified LEGAL_AID income at or under the configured threshold approves the request immediately
// @Tags         verification
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string               true  "service request id (uuid)"
// @Param        payload  body  VerifyIncomeRequest  true  "Decision"
// @Success      200  {object}  IncomeResult
// @Failure      404  {object}  models.ErrorResponse
// @Router       /service-requests/{id}/income-proof/verify [post]
func (h *Handler) VerifyIncome(c *fiber.Ctx) error {
	id, err := parseRequestID(c)
	if err != nil {
		return err
	}
	var in VerifyIncomeRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}
	actor, err := auth.MustUserUUID(c)
	if err != nil {
		return err
	}
	res, err := h.gate.VerifyIncome(c.UserContext(), VerifyIncomeInput{
		RequestID:  id,
		Verified:   *in.Verified,
		Notes:      in.Notes,
		VerifiedBy: actor,
	})
	if err != nil {
		return err
	}
	return c.JSON(res)
}

// Verify Payment godoc
// @Summary      Confirm the payment manually
// @Description  Staff confirmation of a payment; idempotent on an already verified payment
// @Tags         verification
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "service request id (uuid)"
// @Success      200  {object}  PaymentResult
// @Failure      404  {object}  models.ErrorResponse
// @Router       /service-requests/{id}/payment/verify [post]
func (h *Handler) VerifyPayment(c *fiber.Ctx) error {
	id, err := parseRequestID(c)
	if err != nil {
		return err
	}
	actor, err := auth.MustUserUUID(c)
	if err != nil {
		return err
	}
	res, err := h.gate.VerifyPayment(c.UserContext(), VerifyPaymentInput{RequestID: id, VerifiedBy: &actor})
	if err != nil {
		return err
	}
	return c.JSON(res)
}
