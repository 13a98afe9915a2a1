package validation

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/aldoetobex/legal-aid-backend/pkg/models"
)

var (
	v *validator.Validate

	// Bar number: 3–40 chars, alphanumerics plus space, dash, slash.
	reBarNum       = regexp.MustCompile(`^[A-Za-z0-9 /-]{3,40}$`)
	reJurisdiction = regexp.MustCompile(`^[A-Z]{2}$`) // ISO-3166 alpha-2, e.g. SG
)

func init() {
	v = validator.New()

	// Use JSON tag as the field name in error output
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	register("barnum", optional(reBarNum.MatchString))
	register("jurisdiction", optional(func(s string) bool {
		return reJurisdiction.MatchString(strings.ToUpper(s))
	}))

	// Free text that must carry something besides whitespace
	register("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})

	register("priority", optional(func(s string) bool {
		switch models.CasePriority(s) {
		case models.PriorityLow, models.PriorityMedium, models.PriorityHigh, models.PriorityUrgent:
			return true
		}
		return false
	}))

	// Callers may only close a case; ACTIVE and PENDING_REASSIGNMENT are
	// reached through assignment and suspension.
	register("terminalstatus", optional(func(s string) bool {
		return models.CaseStatus(s).Terminal()
	}))

	register("servicetype", optional(func(s string) bool {
		switch models.ServiceType(s) {
		case models.ServiceLegalAid, models.ServicePaid, models.ServiceConsultation:
			return true
		}
		return false
	}))
}

func register(tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("validation: register %q: %v", tag, err))
	}
}

// optional lets empty strings through so omitempty/required decide on them.
func optional(match func(string) bool) validator.Func {
	return func(fl validator.FieldLevel) bool {
		val := strings.TrimSpace(fl.Field().String())
		if val == "" {
			return true
		}
		return match(val)
	}
}

var fixedMessages = map[string]string{
	"required":       "This field is required",
	"required_if":    "This field is required",
	"notblank":       "This field must not be blank",
	"email":          "Invalid email format",
	"oneof":          "Value is not allowed",
	"uuid":           "Invalid UUID format",
	"uuid4":          "Invalid UUID format",
	"barnum":         "Invalid bar number format",
	"jurisdiction":   "Invalid jurisdiction code (use ISO-3166 alpha-2, e.g. “SG”)",
	"priority":       "Priority must be LOW, MEDIUM, HIGH or URGENT",
	"terminalstatus": "Status can only be set to RESOLVED or CLOSED",
	"servicetype":    "Service type must be LEGAL_AID, PAID or CONSULTATION",
}

func message(e validator.FieldError) string {
	if msg, ok := fixedMessages[e.Tag()]; ok {
		return msg
	}
	isString := e.Kind() == reflect.String
	switch e.Tag() {
	case "min", "gte":
		if isString {
			return fmt.Sprintf("Must be at least %s characters", e.Param())
		}
		if e.Tag() == "min" {
			return fmt.Sprintf("Must be at least %s", e.Param())
		}
		return fmt.Sprintf("Must be greater than or equal to %s", e.Param())
	case "max", "lte":
		if isString {
			return fmt.Sprintf("Must be at most %s characters", e.Param())
		}
		if e.Tag() == "max" {
			return fmt.Sprintf("Must be at most %s", e.Param())
		}
		return fmt.Sprintf("Must be less than or equal to %s", e.Param())
	case "gt":
		return fmt.Sprintf("Must be greater than %s", e.Param())
	}
	// Fallback to the validator's text for tags we have no wording for
	return e.Error()
}

// Validate returns map[field][]messages (Laravel-like). A nil map means the
// value is valid.
func Validate(s any) (map[string][]string, error) {
	err := v.Struct(s)
	if err == nil {
		return nil, nil
	}
	ve, ok := err.(validator.ValidationErrors)
	if !ok {
		return nil, err
	}
	out := make(map[string][]string, len(ve))
	for _, e := range ve {
		field := e.Field() // already mapped from json tag
		out[field] = append(out[field], message(e))
	}
	return out, nil
}
