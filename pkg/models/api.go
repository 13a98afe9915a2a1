// pkg/models/api.go
package models

// Laravel-style validation error body
type ValidationErrorResponse struct {
	Message string              `json:"message" example:"Validation failed"`
	Errors  map[string][]string `json:"errors"`
}

// Generic error body (401/403/404/409/500)
type ErrorResponse struct {
	Error   bool   `json:"error" example:"true"`
	Message string `json:"message" example:"case already has a lawyer"`
	Code    string `json:"code,omitempty" example:"CONFLICT"`
}
