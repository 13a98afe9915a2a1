package suspensions

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/aldoetobex/legal-aid-backend/internal/auth"
	"github.com/aldoetobex/legal-aid-backend/pkg/validation"
)

type SuspendRequest struct {
	Reason       string `json:"reason" validate:"required,notblank,min=3,max=255"`
	DurationDays int    `json:"duration_days" validate:"gte=0,lte=3650"`
	Notes        string `json:"notes" validate:"max=1000"`
}

type Handler struct {
	co *Coordinator
}

func NewHandler(co *Coordinator) *Handler { return &Handler{co: co} }

func parseLawyerID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "invalid lawyer id")
	}
	return id, nil
}

// Suspend Lawyer godoc
// @Summary      Suspend a lawyer
// @Description  Admin suspends a lawyer; their ACTIVE cases move to PENDING_REASSIGNMENT in the same transaction. Repeating the call on a suspended lawyer returns already_suspended=true.
// @Tags         suspensions
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string          true  "lawyer id (uuid)"
// @Param        payload  body  SuspendRequest  true  "Suspension"
// @Success      200  {object}  Result
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /lawyers/{id}/suspend [post]
func (h *Handler) Suspend(c *fiber.Ctx) error {
	lawyerID, err := parseLawyerID(c)
	if err != nil {
		return err
	}
	var in SuspendRequest
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

	res, err := h.co.Suspend(c.UserContext(), SuspendInput{
		LawyerID:     lawyerID,
		Reason:       in.Reason,
		DurationDays: in.DurationDays,
		Notes:        in.Notes,
		SuspendedBy:  actor,
	})
	if err != nil {
		return err
	}
	return c.JSON(res)
}

// Reinstate Lawyer godoc
// @Summary      Lift a suspension
// @Tags         suspensions
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "lawyer id (uuid)"
// @Success      200  {object}  models.User
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /lawyers/{id}/reinstate [post]
func (h *Handler) Reinstate(c *fiber.Ctx) error {
	lawyerID, err := parseLawyerID(c)
	if err != nil {
		return err
	}
	actor, err := auth.MustUserUUID(c)
	if err != nil {
		return err
	}
	u, err := h.co.Reinstate(c.UserContext(), lawyerID, actor)
	if err != nil {
		return err
	}
	return c.JSON(u)
}

// Suspension History godoc
// @Summary      Suspension history of a lawyer
// @Tags         suspensions
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "lawyer id (uuid)"
// @Success      200  {array}  models.Suspension
// @Router       /lawyers/{id}/suspensions [get]
func (h *Handler) History(c *fiber.Ctx) error {
	lawyerID, err := parseLawyerID(c)
	if err != nil {
		return err
	}
	rows, err := h.co.History(c.UserContext(), lawyerID)
	if err != nil {
		return err
	}
	return c.JSON(rows)
}
