package validation

import (
	"github.com/gofiber/fiber/v2"

	"github.com/aldoetobex/legal-aid-backend/pkg/models"
)

// Respond writes the 400 body for field errors.
func Respond(c *fiber.Ctx, errs map[string][]string) error {
	return c.Status(fiber.StatusBadRequest).JSON(models.ValidationErrorResponse{
		Message: "Validation failed",
		Errors:  errs,
	})
}
