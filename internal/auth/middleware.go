package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/aldoetobex/legal-aid-backend/pkg/apperr"
	"github.com/aldoetobex/legal-aid-backend/pkg/models"
)

/* ============================== JWT Claims ============================== */

// Claims represents the JWT payload we issue and expect.
type Claims struct {
	Sub  string `json:"sub"`  // user ID
	Role string `json:"role"` // client | lawyer | coordinator | admin
	jwt.RegisteredClaims
}

/* ============================== JWT Helpers ============================= */

// Tokens issues and checks HS256 tokens with one shared secret.
type Tokens struct {
	secret []byte
	ttl    time.Duration
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Tokens{secret: []byte(secret), ttl: ttl}
}

// Issue signs a token for the given user and role.
func (t *Tokens) Issue(userID uuid.UUID, role models.Role) (string, error) {
	now := time.Now()
	claims := &Claims{
		Sub:  userID.String(),
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

func (t *Tokens) parse(raw string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, fiber.ErrUnauthorized
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || claims.Sub == "" {
		return nil, fiber.ErrUnauthorized
	}
	return claims, nil
}

/* ============================== Middleware ============================== */

// RequireAuth validates a Bearer JWT and injects userID and role into the context.
func (t *Tokens) RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		h := c.Get("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			return fiber.ErrUnauthorized
		}
		claims, err := t.parse(strings.TrimPrefix(h, "Bearer "))
		if err != nil {
			return err
		}
		c.Locals("userID", claims.Sub)
		c.Locals("role", claims.Role)
		return c.Next()
	}
}

// MustUserID reads the authenticated user ID from context or panics (programming error).
func MustUserID(c *fiber.Ctx) string {
	if v := c.Locals("userID"); v != nil {
		return v.(string)
	}
	panic(errors.New("user not in context"))
}

// MustRole reads the authenticated user role from context or panics (programming error).
func MustRole(c *fiber.Ctx) string {
	if v := c.Locals("role"); v != nil {
		return v.(string)
	}
	panic(errors.New("role not in context"))
}

// MustUserUUID is MustUserID parsed; a malformed subject is treated as unauthenticated.
func MustUserUUID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(MustUserID(c))
	if err != nil {
		return uuid.Nil, fiber.ErrUnauthorized
	}
	return id, nil
}

// RequireRole ensures the authenticated user has one of the given roles.
func RequireRole(roles ...models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		got := MustRole(c)
		for _, r := range roles {
			if got == string(r) {
				return c.Next()
			}
		}
		return fiber.ErrForbidden
	}
}

// IsStaff reports whether the caller is a coordinator or an administrator.
func IsStaff(c *fiber.Ctx) bool {
	r := MustRole(c)
	return r == string(models.RoleCoordinator) || r == string(models.RoleAdmin)
}

/* =========================== Error Formatting =========================== */

// httpCodeToString converts an HTTP status code to a short, stable string.
func httpCodeToString(code int) string {
	switch code {
	case fiber.StatusBadRequest:
		return "BAD_REQUEST"
	case fiber.StatusUnauthorized:
		return "UNAUTHORIZED"
	case fiber.StatusForbidden:
		return "FORBIDDEN"
	case fiber.StatusNotFound:
		return "NOT_FOUND"
	case fiber.StatusConflict:
		return "CONFLICT"
	case fiber.StatusServiceUnavailable:
		return "SERVICE_UNAVAILABLE"
	case fiber.StatusUnprocessableEntity:
		return "UNPROCESSABLE_ENTITY"
	case fiber.StatusRequestEntityTooLarge:
		return "PAYLOAD_TOO_LARGE"
	default:
		return "INTERNAL_SERVER_ERROR"
	}
}

// ErrorHandler is a global Fiber error handler that returns a consistent JSON shape.
func ErrorHandler(c *fiber.Ctx, err error) error {
	// Defaults
	code := fiber.StatusInternalServerError
	msg := "Internal Server Error"

	// Domain errors carry a kind; store failures keep their cause out of the body
	if e, ok := apperr.As(err); ok {
		code = e.HTTPStatus()
		if e.Kind != apperr.KindStoreFailure && e.Kind != apperr.KindUnknown {
			msg = e.Message
		}
		return c.Status(code).JSON(models.ErrorResponse{
			Code:    e.Kind.String(),
			Error:   true,
			Message: msg,
		})
	}

	// Fiber errors carry status codes
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		if strings.TrimSpace(e.Message) != "" {
			msg = e.Message
		} else {
			// Use Fiber's default messages per status code
			msg = fiber.ErrInternalServerError.Message
			switch code {
			case fiber.StatusBadRequest:
				msg = fiber.ErrBadRequest.Message
			case fiber.StatusUnauthorized:
				msg = fiber.ErrUnauthorized.Message
			case fiber.StatusForbidden:
				msg = fiber.ErrForbidden.Message
			case fiber.StatusNotFound:
				msg = fiber.ErrNotFound.Message
			case fiber.StatusConflict:
				msg = fiber.ErrConflict.Message
			}
		}
	}

	return c.Status(code).JSON(models.ErrorResponse{
		Code:    httpCodeToString(code),
		Error:   true,
		Message: msg,
	})
}
