package domain

import "time"

// ============================================================================
// Customer requests
// ============================================================================

// AddressInput is the request form of an Address
type AddressInput struct {
	Street     string `json:"street" validate:"max=200"`
	City       string `json:"city" validate:"max=100"`
	PostalCode string `json:"postalCode" validate:"max=20"`
	Country    string `json:"country" validate:"max=100"`
}

// ToAddress converts the input to an Address
func (a AddressInput) ToAddress() Address {
	return Address(a)
}

// CreateCustomerRequest carries the fields of a new customer
type CreateCustomerRequest struct {
	Name        string       `json:"name" validate:"required,max=200"`
	CompanyName string       `json:"companyName" validate:"max=200"`
	Email       string       `json:"email" validate:"omitempty,email"`
	Phone       string       `json:"phone" validate:"max=50"`
	Address     AddressInput `json:"address"`
	VatNumber   string       `json:"vatNumber" validate:"max=50"`
	Notes       string       `json:"notes" validate:"max=2000"`
}

// UpdateCustomerRequest updates only the fields that are provided
type UpdateCustomerRequest struct {
	Name        *string       `json:"name" validate:"omitempty,min=1,max=200"`
	CompanyName *string       `json:"companyName" validate:"omitempty,max=200"`
	Email       *string       `json:"email" validate:"omitempty,email"`
	Phone       *string       `json:"phone" validate:"omitempty,max=50"`
	Address     *AddressInput `json:"address"`
	VatNumber   *string       `json:"vatNumber" validate:"omitempty,max=50"`
	Notes       *string       `json:"notes" validate:"omitempty,max=2000"`
}

// ============================================================================
// Product requests
// ============================================================================

type CreateProductRequest struct {
	Description  string  `json:"description" validate:"required,max=500"`
	DefaultPrice float64 `json:"defaultPrice" validate:"gte=0"`
	Unit         string  `json:"unit" validate:"max=20"`
}

type UpdateProductRequest struct {
	Description  *string  `json:"description" validate:"omitempty,min=1,max=500"`
	DefaultPrice *float64 `json:"defaultPrice" validate:"omitempty,gte=0"`
	Unit         *string  `json:"unit" validate:"omitempty,max=20"`
}

// ============================================================================
// Document requests
// ============================================================================

// DocumentItemInput is one requested line. Any client-side total is ignored.
type DocumentItemInput struct {
	Description string  `json:"description" validate:"required,max=1000"`
	Quantity    float64 `json:"quantity" validate:"gte=0"`
	UnitPrice   float64 `json:"unitPrice" validate:"gte=0"`
	ProductID   string  `json:"productId" validate:"omitempty,max=64"`
}

// CreateDocumentRequest carries the fields of a new offer or invoice.
// TaxRate and PaymentTermDays fall back to settings when nil.
type CreateDocumentRequest struct {
	DocumentType    DocumentType        `json:"documentType" validate:"required,oneof=offer invoice"`
	CustomerID      string              `json:"customerId" validate:"required"`
	Items           []DocumentItemInput `json:"items" validate:"required,min=1,dive"`
	TaxRate         *float64            `json:"taxRate" validate:"omitempty,gte=0,lte=100"`
	PaymentTermDays *int                `json:"paymentTermDays" validate:"omitempty,gte=0,lte=3650"`
	IssueDate       *time.Time          `json:"issueDate"`
	Title           string              `json:"title" validate:"max=200"`
	Introduction    string              `json:"introduction" validate:"max=5000"`
	Notes           string              `json:"notes" validate:"max=5000"`
	Footer          string              `json:"footer" validate:"max=2000"`
}

// UpdateDocumentRequest edits a document. Nil fields are left unchanged;
// a non-nil Items replaces all lines.
type UpdateDocumentRequest struct {
	CustomerID      *string              `json:"customerId" validate:"omitempty,min=1"`
	Items           *[]DocumentItemInput `json:"items" validate:"omitempty,min=1,dive"`
	TaxRate         *float64             `json:"taxRate" validate:"omitempty,gte=0,lte=100"`
	PaymentTermDays *int                 `json:"paymentTermDays" validate:"omitempty,gte=0,lte=3650"`
	IssueDate       *time.Time           `json:"issueDate"`
	Title           *string              `json:"title" validate:"omitempty,max=200"`
	Introduction    *string              `json:"introduction" validate:"omitempty,max=5000"`
	Notes           *string              `json:"notes" validate:"omitempty,max=5000"`
	Footer          *string              `json:"footer" validate:"omitempty,max=2000"`
}

// UpdateStatusRequest moves a document to a new status
type UpdateStatusRequest struct {
	Status DocumentStatus `json:"status" validate:"required"`
	Note   string         `json:"note" validate:"max=1000"`
}

// ConvertOfferResponse is the result of an offer to invoice conversion
type ConvertOfferResponse struct {
	Offer   *Document `json:"offer"`
	Invoice *Document `json:"invoice"`
}

// ============================================================================
// Business and settings requests
// ============================================================================

type UpdateBusinessRequest struct {
	Name          *string       `json:"name" validate:"omitempty,min=1,max=200"`
	Email         *string       `json:"email" validate:"omitempty,email"`
	Phone         *string       `json:"phone" validate:"omitempty,max=50"`
	Website       *string       `json:"website" validate:"omitempty,max=200"`
	Address       *AddressInput `json:"address"`
	VatNumber     *string       `json:"vatNumber" validate:"omitempty,max=50"`
	ChamberNumber *string       `json:"chamberNumber" validate:"omitempty,max=50"`
	Iban          *string       `json:"iban" validate:"omitempty,max=50"`
	Bic           *string       `json:"bic" validate:"omitempty,max=20"`
	LogoPath      *string       `json:"logoPath" validate:"omitempty,max=1000"`
}

// NumberingFormatInput edits the prefix and template of one document type.
// Counters are not editable.
type NumberingFormatInput struct {
	Prefix *string `json:"prefix" validate:"omitempty,max=20"`
	Format *string `json:"format" validate:"omitempty,min=1,max=100"`
}

type UpdateSettingsRequest struct {
	Currency             *string               `json:"currency" validate:"omitempty,len=3"`
	DefaultTaxRate       *float64              `json:"defaultTaxRate" validate:"omitempty,gte=0,lte=100"`
	PaymentTermDays      *int                  `json:"paymentTermDays" validate:"omitempty,gte=0,lte=3650"`
	OfferValidityDays    *int                  `json:"offerValidityDays" validate:"omitempty,gte=0,lte=3650"`
	OfferNumbering       *NumberingFormatInput `json:"offerNumbering"`
	InvoiceNumbering     *NumberingFormatInput `json:"invoiceNumbering"`
	Labels               map[string]string     `json:"labels"`
	Theme                *string               `json:"theme" validate:"omitempty,oneof=light dark system"`
	Locale               *string               `json:"locale" validate:"omitempty,min=2,max=10"`
	FiscalYearStartMonth *int                  `json:"fiscalYearStartMonth" validate:"omitempty,gte=1,lte=12"`
}

// ============================================================================
// Storage root
// ============================================================================

// RootChangeMode selects whether the old tree is kept after a root change
type RootChangeMode string

const (
	RootChangeCopy RootChangeMode = "copy"
	RootChangeMove RootChangeMode = "move"
)

type ChangeRootRequest struct {
	Root string         `json:"root" validate:"required"`
	Mode RootChangeMode `json:"mode" validate:"required,oneof=copy move"`
}

// RootInfo describes the active storage root
type RootInfo struct {
	Root         string `json:"root"`
	DatabaseFile string `json:"databaseFile"`
	Version      string `json:"version"`
}

// ErrorResponse is the simple error body used by handlers
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
