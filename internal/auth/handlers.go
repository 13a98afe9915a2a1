package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-aid-backend/pkg/apperr"
	"github.com/aldoetobex/legal-aid-backend/pkg/models"
	"github.com/aldoetobex/legal-aid-backend/pkg/validation"
)

/* ================================ DTOs ================================= */

// Request body for /signup. Coordinators and admins are provisioned, not self-registered.
type SignupRequest struct {
	Role     string `json:"role" validate:"required,oneof=client lawyer"`
	Name     string `json:"name" validate:"required,notblank,min=2,max=80"`
	Email    string `json:"email" validate:"required,email,max=120"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	// Lawyers must give a bar number so they can be vetted before assignment
	Jurisdiction string `json:"jurisdiction" validate:"omitempty,jurisdiction"`
	BarNumber    string `json:"bar_number" validate:"required_if=Role lawyer,barnum"`
}

// Request body for /login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=120"`
	Password string `json:"password" validate:"required"`
}

// Standard auth response
type AuthResponse struct {
	Token string      `json:"token"`
	Role  models.Role `json:"role"`
}

// Profile response for /me
type UserProfileResponse struct {
	ID           uuid.UUID          `json:"id"`
	Email        string             `json:"email"`
	Role         models.Role        `json:"role"`
	Status       models.UserStatus  `json:"status"`
	Name         string             `json:"name"`
	Jurisdiction string             `json:"jurisdiction,omitempty"`
	BarNumber    string             `json:"bar_number,omitempty"`
	Suspension   *models.Suspension `json:"suspension,omitempty"` // latest, only while suspended
	CreatedAt    time.Time          `json:"created_at"`
}

/* ============================== Handler ================================= */

type Handler struct {
	db     *gorm.DB
	tokens *Tokens
	log    *zap.Logger
}

func NewHandler(db *gorm.DB, tokens *Tokens, log *zap.Logger) *Handler {
	return &Handler{db: db, tokens: tokens, log: log}
}

/* =============================== Signup ================================= */

// @Summary      Sign up
// @Description  Register a new client or lawyer account
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body  SignupRequest  true  "Signup payload"
// @Success      201      {object}  AuthResponse
// @Failure      400      {object}  models.ValidationErrorResponse
// @Failure      409      {object}  models.ErrorResponse  "email already exists"
// @Router       /signup [post]
func (h *Handler) Signup(c *fiber.Ctx) error {
	var in SignupRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Jurisdiction = strings.ToUpper(strings.TrimSpace(in.Jurisdiction))

	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return fiber.ErrInternalServerError
	}

	u := models.User{
		Email:        in.Email,
		PasswordHash: string(hash),
		Role:         models.Role(in.Role),
		Status:       models.UserActive,
		Name:         strings.TrimSpace(in.Name),
		Jurisdiction: in.Jurisdiction,
		BarNumber:    strings.TrimSpace(in.BarNumber),
	}
	if err := h.db.WithContext(c.UserContext()).Create(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperr.Conflict("email already exists")
		}
		return apperr.Store("auth.signup", err)
	}
	h.log.Info("user signed up", zap.String("user_id", u.ID.String()), zap.String("role", string(u.Role)))

	token, err := h.tokens.Issue(u.ID, u.Role)
	if err != nil {
		return fiber.ErrInternalServerError
	}
	return c.Status(fiber.StatusCreated).JSON(AuthResponse{Token: token, Role: u.Role})
}

/* ================================ Login ================================= */

// @Summary      Login
// @Description  Authenticate and receive a JWT. Suspended accounts get 403.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body  LoginRequest  true  "Login payload"
// @Success      200      {object}  AuthResponse
// @Failure      400      {object}  models.ValidationErrorResponse
// @Failure      401      {object}  models.ErrorResponse
// @Failure      403      {object}  models.ErrorResponse
// @Router       /login [post]
func (h *Handler) Login(c *fiber.Ctx) error {
	var in LoginRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	var u models.User
	if err := h.db.WithContext(c.UserContext()).Where("email = ?", in.Email).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.ErrUnauthorized
		}
		return apperr.Store("auth.login", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Password)) != nil {
		return fiber.ErrUnauthorized
	}

	// Suspended accounts keep their data but cannot sign in
	if u.Status == models.UserSuspended {
		return apperr.Forbidden("account is suspended")
	}

	token, err := h.tokens.Issue(u.ID, u.Role)
	if err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(AuthResponse{Token: token, Role: u.Role})
}

/* ================================= Me =================================== */

// @Summary      Get current user profile
// @Description  Return the profile of the authenticated user, with the current suspension if any
// @Tags         auth
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  UserProfileResponse
// @Failure      401  {object}  models.ErrorResponse
// @Router       /me [get]
func (h *Handler) Me(c *fiber.Ctx) error {
	userID, err := MustUserUUID(c)
	if err != nil {
		return err
	}

	db := h.db.WithContext(c.UserContext())
	var u models.User
	if err := db.First(&u, "id = ?", userID).Error; err != nil {
		return fiber.ErrUnauthorized
	}

	resp := UserProfileResponse{
		ID:           u.ID,
		Email:        u.Email,
		Role:         u.Role,
		Status:       u.Status,
		Name:         u.Name,
		Jurisdiction: u.Jurisdiction,
		BarNumber:    u.BarNumber,
		CreatedAt:    u.CreatedAt,
	}
	if u.Status == models.UserSuspended {
		var s models.Suspension
		if err := db.Where("lawyer_id = ?", u.ID).Order("created_at DESC").First(&s).Error; err == nil {
			resp.Suspension = &s
		}
	}
	return c.JSON(resp)
}
