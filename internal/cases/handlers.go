package cases

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-aid-backend/internal/auth"
	"github.com/aldoetobex/legal-aid-backend/pkg/models"
	"github.com/aldoetobex/legal-aid-backend/pkg/validation"
)

// ===== DTOs =====

type CreateCaseRequest struct {
	Title       string `json:"title" validate:"required,notblank,max=120"`
	Category    string `json:"category" validate:"required,max=40"`
	Description string `json:"description" validate:"max=2000"`
	Priority    string `json:"priority" validate:"omitempty,priority"`
}

type AssignCaseRequest struct {
	LawyerID     string `json:"lawyer_id" validate:"required,uuid"`
	Reassignment bool   `json:"reassignment"`
	Notes        string `json:"notes" validate:"max=1000"`
}

// UpdateCaseRequest is a patch: absent fields are left alone. A lawyer_id
// turns the patch into a ReassignmentUpdate.
type UpdateCaseRequest struct {
	Title       *string `json:"title" validate:"omitempty,notblank,max=120"`
	Category    *string `json:"category" validate:"omitempty,max=40"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	Priority    *string `json:"priority" validate:"omitempty,priority"`
	Status      *string `json:"status" validate:"omitempty,terminalstatus"`
	LawyerID    *string `json:"lawyer_id" validate:"omitempty,uuid"`
	Notes       string  `json:"notes" validate:"max=1000"`
}

func (r UpdateCaseRequest) toUpdate() CaseUpdate {
	p := CasePatch{Title: r.Title, Category: r.Category, Description: r.Description}
	if r.Priority != nil {
		v := models.CasePriority(*r.Priority)
		p.Priority = &v
	}
	if r.Status != nil {
		v := models.CaseStatus(*r.Status)
		p.Status = &v
	}
	if r.LawyerID != nil && strings.TrimSpace(*r.LawyerID) != "" {
		id, _ := uuid.Parse(*r.LawyerID) // format already validated
		return ReassignmentUpdate{Patch: p, LawyerID: id, Notes: r.Notes}
	}
	return PlainUpdate{Patch: p}
}

type CaseListItem struct {
	ID        uuid.UUID         `json:"id"`
	Title     string            `json:"title"`
	Category  string            `json:"category"`
	Priority  string            `json:"priority"`
	Status    models.CaseStatus `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

type PageCases struct {
	Page     int            `json:"page"`
	PageSize int            `json:"pageSize"`
	Total    int64          `json:"total"`
	Pages    int            `json:"pages"`
	Items    []CaseListItem `json:"items"`
}

type Handler struct {
	db *gorm.DB
	m  *Manager
}

func NewHandler(db *gorm.DB, m *Manager) *Handler {
	return &Handler{db: db, m: m}
}

func parseCaseID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "invalid case id")
	}
	return id, nil
}

func parsePage(c *fiber.Ctx) (page, size int) {
	page, _ = strconv.Atoi(c.Query("page", "1"))
	size, _ = strconv.Atoi(c.Query("pageSize", "10"))
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 50 {
		size = 10
	}
	return
}

// Create Case godoc
// @Summary      Create case
// @Description  Client opens a new case; it starts PENDING with no lawyer
// @Tags         cases
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  CreateCaseRequest  true  "Case payload"
// @Success      201  {object}  models.Case
// @Failure      400  {object}  models.ValidationErrorResponse
// @Router       /cases [post]
func (h *Handler) Create(c *fiber.Ctx) error {
	var in CreateCaseRequest
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

	cs, err := h.m.Create(c.UserContext(), CreateInput{
		ClientID:    clientID,
		Title:       in.Title,
		Category:    in.Category,
		Description: in.Description,
		Priority:    models.CasePriority(in.Priority),
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(cs)
}

// Assign Case godoc
// @Summary      Assign or reassign a lawyer
// @Description  Coordinator assigns a lawyer. Without reassignment=true an already assigned case is a 409.
// @Tags         cases
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string             true  "case id (uuid)"
// @Param        payload  body  AssignCaseRequest  true  "Assignment"
// @Success      200  {object}  models.Case
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /cases/{id}/assign [post]
func (h *Handler) Assign(c *fiber.Ctx) error {
	caseID, err := parseCaseID(c)
	if err != nil {
		return err
	}
	var in AssignCaseRequest
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
	lawyerID, _ := uuid.Parse(in.LawyerID)

	cs, err := h.m.Assign(c.UserContext(), AssignInput{
		CaseID:            caseID,
		LawyerID:          lawyerID,
		PerformedBy:       actor,
		AllowReassignment: in.Reassignment,
		Notes:             in.Notes,
	})
	if err != nil {
		return err
	}
	return c.JSON(cs)
}

// Update Case godoc
// @Summary      Update case
// @Description  Coordinator patches case fields; a different lawyer_id is handled as a reassignment
// @Tags         cases
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string             true  "case id (uuid)"
// @Param        payload  body  UpdateCaseRequest  true  "Patch"
// @Success      200  {object}  models.Case
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /cases/{id} [patch]
func (h *Handler) Update(c *fiber.Ctx) error {
	caseID, err := parseCaseID(c)
	if err != nil {
		return err
	}
	var in UpdateCaseRequest
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

	cs, err := h.m.Update(c.UserContext(), caseID, actor, in.toUpdate())
	if err != nil {
		return err
	}
	return c.JSON(cs)
}

// Get case detail
// @Summary      Case detail
// @Description  Owner client, the assigned lawyer, or staff see the case with its assignment history and timeline
// @Tags         cases
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "case id (uuid)"
// @Success      200  {object}  models.Case
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /cases/{id} [get]
func (h *Handler) GetDetail(c *fiber.Ctx) error {
	caseID, err := parseCaseID(c)
	if err != nil {
		return err
	}
	cs, err := h.m.Get(c.UserContext(), caseID)
	if err != nil {
		return err
	}
	if !canView(c, cs) {
		return fiber.ErrForbidden
	}

	// Normalize: never send null lists
	if cs.Assignments == nil {
		cs.Assignments = []models.CaseAssignment{}
	}
	if cs.Activities == nil {
		cs.Activities = []models.CaseActivity{}
	}
	return c.JSON(cs)
}

func canView(c *fiber.Ctx, cs *models.Case) bool {
	if auth.IsStaff(c) {
		return true
	}
	userID := auth.MustUserID(c)
	switch auth.MustRole(c) {
	case string(models.RoleClient):
		return cs.ClientID.String() == userID
	case string(models.RoleLawyer):
		return cs.LawyerID != nil && cs.LawyerID.String() == userID
	}
	return false
}

// List Activities godoc
// @Summary      Case timeline
// @Tags         cases
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "case id (uuid)"
// @Success      200  {array}   models.CaseActivity
// @Router       /cases/{id}/activities [get]
func (h *Handler) ListActivities(c *fiber.Ctx) error {
	caseID, err := parseCaseID(c)
	if err != nil {
		return err
	}
	cs, err := h.m.Get(c.UserContext(), caseID)
	if err != nil {
		return err
	}
	if !canView(c, cs) {
		return fiber.ErrForbidden
	}
	if cs.Activities == nil {
		cs.Activities = []models.CaseActivity{}
	}
	return c.JSON(cs.Activities)
}

// List Assigned godoc
// @Summary      My assigned cases
// @Description  Lawyer lists cases currently pointing at them (paginated). Includes PENDING_REASSIGNMENT cases kept for triage.
// @Tags         cases
// @Security     BearerAuth
// @Produce      json
// @Param        page      query int    false "page"
// @Param        pageSize  query int    false "pageSize"
// @Param        status    query string false "status filter"
// @Success      200  {object}  PageCases
// @Router       /cases/assigned [get]
func (h *Handler) ListAssigned(c *fiber.Ctx) error {
	lawyerID := auth.MustUserID(c)
	page, size := parsePage(c)
	status := strings.TrimSpace(c.Query("status"))

	q := h.db.WithContext(c.UserContext()).Model(&models.Case{}).Where("lawyer_id = ?", lawyerID)
	if status != "" {
		switch models.CaseStatus(status) {
		case models.CaseActive, models.CasePendingReassignment, models.CaseResolved, models.CaseClosed:
			q = q.Where("status = ?", status)
		default:
			return fiber.NewError(fiber.StatusBadRequest, "invalid status filter")
		}
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	rows := make([]CaseListItem, 0, size)
	if err := q.Order("updated_at DESC").
		Offset((page - 1) * size).Limit(size).
		Scan(&rows).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	if rows == nil {
		rows = []CaseListItem{}
	}

	return c.JSON(PageCases{
		Page:     page,
		PageSize: size,
		Total:    total,
		Pages:    int(math.Ceil(float64(total) / float64(size))),
		Items:    rows,
	})
}
