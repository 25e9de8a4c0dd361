package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jobsturm/crm-local-sub000/internal/database"
	"github.com/jobsturm/crm-local-sub000/internal/domain"
	"github.com/jobsturm/crm-local-sub000/internal/service"
	"go.uber.org/zap"
)

// maxBodyBytes caps request bodies
const maxBodyBytes = 1 << 20

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// decodeJSON reads a JSON request body into target. Unknown fields are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return false
	}
	return true
}

// respondValidationError sends a standardized validation error response with specific field messages
func respondValidationError(w http.ResponseWriter, ve validator.ValidationErrors) {
	errs := make(map[string]string)
	for _, fe := range ve {
		fieldName := toJSONFieldName(fe.Field())
		errs[fieldName] = formatValidationError(fe)
	}

	respondJSON(w, http.StatusBadRequest, domain.APIError{
		Type:   domain.ErrorTypeValidation,
		Title:  "Validation Error",
		Status: http.StatusBadRequest,
		Detail: "One or more fields failed validation",
		Errors: errs,
	})
}

// formatValidationError creates a human-readable validation error message
func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", toJSONFieldName(fe.Field()))
	case "email":
		return "Must be a valid email address"
	case "max":
		return fmt.Sprintf("Must be at most %s", fe.Param())
	case "min":
		return fmt.Sprintf("Must be at least %s", fe.Param())
	case "gte":
		return fmt.Sprintf("Must be greater than or equal to %s", fe.Param())
	case "lte":
		return fmt.Sprintf("Must be less than or equal to %s", fe.Param())
	case "len":
		return fmt.Sprintf("Must be exactly %s characters", fe.Param())
	case "oneof":
		return fmt.Sprintf("Must be one of: %s", fe.Param())
	default:
		return domain.GetValidationMessage(fe.Tag())
	}
}

// toJSONFieldName converts a Go struct field name to its JSON equivalent (camelCase)
func toJSONFieldName(field string) string {
	if len(field) == 0 {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}

// respondWithError sends a standardized JSON error response
func respondWithError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, domain.APIError{
		Type:   getErrorType(status),
		Title:  http.StatusText(status),
		Status: status,
		Detail: message,
	})
}

// getErrorType returns the appropriate error type for an HTTP status code
func getErrorType(status int) string {
	switch status {
	case http.StatusBadRequest:
		return domain.ErrorTypeBadRequest
	case http.StatusNotFound:
		return domain.ErrorTypeNotFound
	case http.StatusConflict:
		return domain.ErrorTypeConflict
	default:
		return domain.ErrorTypeInternal
	}
}

// handleError maps service errors to responses. Unexpected errors are logged
// and reported as 500 without detail.
func handleError(w http.ResponseWriter, logger *zap.Logger, err error, msg string) {
	var validationErr *service.ValidationError
	var partial *service.PartialConversionError

	switch {
	case errors.As(err, &validationErr):
		respondValidationError(w, validationErr.Fields)
	case errors.As(err, &partial):
		logger.Warn(msg, zap.Error(err), zap.String("invoiceId", partial.InvoiceID))
		respondJSON(w, http.StatusConflict, domain.APIError{
			Type:      domain.ErrorTypePartialConversion,
			Title:     http.StatusText(http.StatusConflict),
			Status:    http.StatusConflict,
			Detail:    err.Error(),
			InvoiceID: partial.InvoiceID,
		})
	case errors.Is(err, service.ErrNotFound):
		respondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidInput):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrConflict):
		respondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, database.ErrVersionTooNew):
		logger.Error(msg, zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "Data was written by a newer version of the application")
	default:
		logger.Error(msg, zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, msg)
	}
}
