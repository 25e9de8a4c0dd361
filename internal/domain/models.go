package domain

import (
	"time"
)

// ============================================================================
// Versioned database contents
// ============================================================================

// Customer is an address book entry
type Customer struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	CompanyName string    `json:"companyName,omitempty"`
	Email       string    `json:"email,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	Address     Address   `json:"address"`
	VatNumber   string    `json:"vatNumber,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Address is a postal address
type Address struct {
	Street     string `json:"street,omitempty"`
	City       string `json:"city,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country,omitempty"`
}

// Business is the profile of the company issuing documents
type Business struct {
	Name          string    `json:"name"`
	Email         string    `json:"email,omitempty"`
	Phone         string    `json:"phone,omitempty"`
	Website       string    `json:"website,omitempty"`
	Address       Address   `json:"address"`
	VatNumber     string    `json:"vatNumber,omitempty"`
	ChamberNumber string    `json:"chamberNumber,omitempty"`
	Iban          string    `json:"iban,omitempty"`
	Bic           string    `json:"bic,omitempty"`
	LogoPath      string    `json:"logoPath,omitempty"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Product is a reusable catalog entry
type Product struct {
	ID           string    `json:"id"`
	Description  string    `json:"description"`
	DefaultPrice float64   `json:"defaultPrice"`
	Unit         string    `json:"unit,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// NumberingState holds the template and counters for one document type.
// NextNumber is the lifetime counter value the next document receives.
// YearCounters maps a year ("2025") to the number of documents issued in it.
type NumberingState struct {
	Prefix       string         `json:"prefix"`
	Format       string         `json:"format"`
	NextNumber   int            `json:"nextNumber"`
	YearCounters map[string]int `json:"yearCounters"`
}

// NumberingSettings holds numbering state per document type
type NumberingSettings struct {
	Offer   NumberingState `json:"offer"`
	Invoice NumberingState `json:"invoice"`
}

// For returns a pointer to the state of the given document type
func (n *NumberingSettings) For(t DocumentType) *NumberingState {
	if t == DocumentTypeOffer {
		return &n.Offer
	}
	return &n.Invoice
}

// Settings is the single settings record of the database
type Settings struct {
	Currency             string            `json:"currency"`
	DefaultTaxRate       float64           `json:"defaultTaxRate"`
	PaymentTermDays      int               `json:"paymentTermDays"`
	OfferValidityDays    int               `json:"offerValidityDays"`
	Numbering            NumberingSettings `json:"numbering"`
	Labels               map[string]string `json:"labels"`
	Theme                string            `json:"theme"`
	Locale               string            `json:"locale"`
	FiscalYearStartMonth int               `json:"fiscalYearStartMonth"`
}

// Database is the content of {root}/database.json
type Database struct {
	Version   string     `json:"version"`
	Customers []Customer `json:"customers"`
	Business  *Business  `json:"business"`
	Products  []Product  `json:"products"`
	Settings  Settings   `json:"settings"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// FindCustomer returns the index of the customer with id, or -1
func (d *Database) FindCustomer(id string) int {
	for i := range d.Customers {
		if d.Customers[i].ID == id {
			return i
		}
	}
	return -1
}

// FindProduct returns the index of the product with id, or -1
func (d *Database) FindProduct(id string) int {
	for i := range d.Products {
		if d.Products[i].ID == id {
			return i
		}
	}
	return -1
}

// ============================================================================
// Documents
// ============================================================================

// DocumentType distinguishes offers from invoices
type DocumentType string

const (
	DocumentTypeOffer   DocumentType = "offer"
	DocumentTypeInvoice DocumentType = "invoice"
)

// DocumentTypes lists every document type in directory order
var DocumentTypes = []DocumentType{DocumentTypeOffer, DocumentTypeInvoice}

// IsValid returns true if t is a known document type
func (t DocumentType) IsValid() bool {
	return t == DocumentTypeOffer || t == DocumentTypeInvoice
}

// Dir returns the directory name under the storage root for this type
func (t DocumentType) Dir() string {
	if t == DocumentTypeOffer {
		return "offers"
	}
	return "invoices"
}

// DocumentStatus is the lifecycle status of a document
type DocumentStatus string

const (
	StatusDraft     DocumentStatus = "draft"
	StatusSent      DocumentStatus = "sent"
	StatusCancelled DocumentStatus = "cancelled"

	// Invoice-only
	StatusPaid    DocumentStatus = "paid"
	StatusOverdue DocumentStatus = "overdue"

	// Offer-only
	StatusAccepted DocumentStatus = "accepted"
	StatusRejected DocumentStatus = "rejected"
)

// CustomerSnapshot is the copy of customer data embedded in a document at
// creation time. Editing the customer later does not change it.
type CustomerSnapshot struct {
	Name        string  `json:"name"`
	CompanyName string  `json:"companyName,omitempty"`
	Email       string  `json:"email,omitempty"`
	Address     Address `json:"address"`
	VatNumber   string  `json:"vatNumber,omitempty"`
}

// SnapshotOf copies the printable fields of a customer
func SnapshotOf(c *Customer) CustomerSnapshot {
	return CustomerSnapshot{
		Name:        c.Name,
		CompanyName: c.CompanyName,
		Email:       c.Email,
		Address:     c.Address,
		VatNumber:   c.VatNumber,
	}
}

// DocumentItem is one line of a document. Total is computed server-side.
type DocumentItem struct {
	ID          string  `json:"id"`
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
	Total       float64 `json:"total"`
	ProductID   string  `json:"productId,omitempty"`
}

// StatusHistoryEntry records one status change. FromStatus is nil only for
// the creation entry.
type StatusHistoryEntry struct {
	FromStatus *DocumentStatus `json:"fromStatus"`
	ToStatus   DocumentStatus  `json:"toStatus"`
	ChangedAt  time.Time       `json:"changedAt"`
	Note       string          `json:"note,omitempty"`
}

// Document is an offer or an invoice
type Document struct {
	ID               string               `json:"id"`
	DocumentType     DocumentType         `json:"documentType"`
	DocumentNumber   string               `json:"documentNumber"`
	CustomerID       string               `json:"customerId"`
	Customer         CustomerSnapshot     `json:"customer"`
	Items            []DocumentItem       `json:"items"`
	Subtotal         float64              `json:"subtotal"`
	TaxRate          float64              `json:"taxRate"`
	TaxAmount        float64              `json:"taxAmount"`
	Total            float64              `json:"total"`
	IssueDate        time.Time            `json:"issueDate"`
	PaymentTermDays  int                  `json:"paymentTermDays"`
	DueDate          time.Time            `json:"dueDate"`
	Title            string               `json:"title,omitempty"`
	Introduction     string               `json:"introduction,omitempty"`
	Notes            string               `json:"notes,omitempty"`
	Footer           string               `json:"footer,omitempty"`
	Status           DocumentStatus       `json:"status"`
	StatusHistory    []StatusHistoryEntry `json:"statusHistory"`
	CreatedAt        time.Time            `json:"createdAt"`
	UpdatedAt        time.Time            `json:"updatedAt"`

	ConvertedFromOfferID *string `json:"convertedFromOfferId,omitempty"`
	ConvertedToInvoiceID *string `json:"convertedToInvoiceId,omitempty"`
}

// Year returns the bucket year used for the document's directory
func (d *Document) Year() int {
	return d.CreatedAt.Year()
}

// DocumentSummary is the lightweight listing view of a document
type DocumentSummary struct {
	ID             string         `json:"id"`
	DocumentType   DocumentType   `json:"documentType"`
	DocumentNumber string         `json:"documentNumber"`
	CustomerID     string         `json:"customerId"`
	CustomerName   string         `json:"customerName"`
	Total          float64        `json:"total"`
	Status         DocumentStatus `json:"status"`
	DueDate        time.Time      `json:"dueDate"`
	CreatedAt      time.Time      `json:"createdAt"`
}
