package service

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Common service errors
var (
	// ErrNotFound is returned when a resource is not found
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput is returned when input validation fails
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict is returned when there's a conflict (e.g., duplicate)
	ErrConflict = errors.New("resource conflict")

	// ErrCustomerNotFound is returned when a customer is not found
	ErrCustomerNotFound = fmt.Errorf("customer %w", ErrNotFound)

	// ErrDocumentNotFound is returned when an offer or invoice is not found
	ErrDocumentNotFound = fmt.Errorf("document %w", ErrNotFound)

	// ErrBusinessNotFound is returned before a business profile was saved
	ErrBusinessNotFound = fmt.Errorf("business profile %w", ErrNotFound)

	// ErrProductNotFound is returned when a catalog entry is not found
	ErrProductNotFound = fmt.Errorf("product %w", ErrNotFound)

	// ErrInvalidTransition is returned for status changes the lifecycle forbids
	ErrInvalidTransition = fmt.Errorf("%w: status transition not allowed", ErrInvalidInput)

	// ErrAlreadyConverted is returned when an offer already has an invoice
	ErrAlreadyConverted = fmt.Errorf("%w: offer already converted to an invoice", ErrConflict)

	// ErrPartialConversion is returned when the invoice of a conversion was
	// written but the offer could not be linked to it
	ErrPartialConversion = errors.New("offer converted partially")

	// ErrNumberConflict is returned when no free document number was found
	ErrNumberConflict = fmt.Errorf("%w: document number already in use", ErrConflict)

	// ErrRootNotEmpty is returned when the destination of a root change
	// already holds a database
	ErrRootNotEmpty = fmt.Errorf("%w: destination already contains a database", ErrConflict)
)

// PartialConversionError carries the invoice that was created before the
// offer update failed. Retry with LinkConversion.
type PartialConversionError struct {
	OfferID       string
	InvoiceID     string
	InvoiceNumber string
	Err           error
}

func (e *PartialConversionError) Error() string {
	return fmt.Sprintf("invoice %s created but offer %s not updated: %v", e.InvoiceNumber, e.OfferID, e.Err)
}

// Unwrap exposes both ErrPartialConversion and the underlying cause
func (e *PartialConversionError) Unwrap() []error {
	return []error{ErrPartialConversion, e.Err}
}

// ValidationError wraps field errors of a request
type ValidationError struct {
	Fields validator.ValidationErrors
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidInput, e.Fields.Error())
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
