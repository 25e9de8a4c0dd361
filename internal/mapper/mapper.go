package mapper

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jobsturm/crm-local-sub000/internal/domain"
)

// ToCustomer builds a new customer from a create request
func ToCustomer(req *domain.CreateCustomerRequest, now time.Time) domain.Customer {
	return domain.Customer{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(req.Name),
		CompanyName: req.CompanyName,
		Email:       req.Email,
		Phone:       req.Phone,
		Address:     req.Address.ToAddress(),
		VatNumber:   req.VatNumber,
		Notes:       req.Notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// MergeCustomer copies the provided fields of req onto c
func MergeCustomer(c *domain.Customer, req *domain.UpdateCustomerRequest, now time.Time) {
	if req.Name != nil {
		c.Name = strings.TrimSpace(*req.Name)
	}
	if req.CompanyName != nil {
		c.CompanyName = *req.CompanyName
	}
	if req.Email != nil {
		c.Email = *req.Email
	}
	if req.Phone != nil {
		c.Phone = *req.Phone
	}
	if req.Address != nil {
		c.Address = req.Address.ToAddress()
	}
	if req.VatNumber != nil {
		c.VatNumber = *req.VatNumber
	}
	if req.Notes != nil {
		c.Notes = *req.Notes
	}
	c.UpdatedAt = now
}

// ToProduct builds a new catalog entry from a create request
func ToProduct(req *domain.CreateProductRequest, now time.Time) domain.Product {
	return domain.Product{
		ID:           uuid.NewString(),
		Description:  strings.TrimSpace(req.Description),
		DefaultPrice: domain.Money(req.DefaultPrice).InexactFloat64(),
		Unit:         req.Unit,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// MergeProduct copies the provided fields of req onto p
func MergeProduct(p *domain.Product, req *domain.UpdateProductRequest, now time.Time) {
	if req.Description != nil {
		p.Description = strings.TrimSpace(*req.Description)
	}
	if req.DefaultPrice != nil {
		p.DefaultPrice = domain.Money(*req.DefaultPrice).InexactFloat64()
	}
	if req.Unit != nil {
		p.Unit = *req.Unit
	}
	p.UpdatedAt = now
}

// MergeBusiness applies req to the business profile, creating the profile
// when none exists yet
func MergeBusiness(b *domain.Business, req *domain.UpdateBusinessRequest, now time.Time) *domain.Business {
	if b == nil {
		b = &domain.Business{}
	}
	if req.Name != nil {
		b.Name = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		b.Email = *req.Email
	}
	if req.Phone != nil {
		b.Phone = *req.Phone
	}
	if req.Website != nil {
		b.Website = *req.Website
	}
	if req.Address != nil {
		b.Address = req.Address.ToAddress()
	}
	if req.VatNumber != nil {
		b.VatNumber = *req.VatNumber
	}
	if req.ChamberNumber != nil {
		b.ChamberNumber = *req.ChamberNumber
	}
	if req.Iban != nil {
		b.Iban = strings.ToUpper(strings.ReplaceAll(*req.Iban, " ", ""))
	}
	if req.Bic != nil {
		b.Bic = strings.ToUpper(*req.Bic)
	}
	if req.LogoPath != nil {
		b.LogoPath = *req.LogoPath
	}
	b.UpdatedAt = now
	return b
}

// MergeSettings copies the provided fields of req onto s. Numbering
// counters are never touched; templates must be validated by the caller.
func MergeSettings(s *domain.Settings, req *domain.UpdateSettingsRequest) {
	if req.Currency != nil {
		s.Currency = strings.ToUpper(*req.Currency)
	}
	if req.DefaultTaxRate != nil {
		s.DefaultTaxRate = *req.DefaultTaxRate
	}
	if req.PaymentTermDays != nil {
		s.PaymentTermDays = *req.PaymentTermDays
	}
	if req.OfferValidityDays != nil {
		s.OfferValidityDays = *req.OfferValidityDays
	}
	mergeNumbering(&s.Numbering.Offer, req.OfferNumbering)
	mergeNumbering(&s.Numbering.Invoice, req.InvoiceNumbering)
	if req.Labels != nil {
		if s.Labels == nil {
			s.Labels = map[string]string{}
		}
		for k, v := range req.Labels {
			if v == "" {
				delete(s.Labels, k)
				continue
			}
			s.Labels[k] = v
		}
	}
	if req.Theme != nil {
		s.Theme = *req.Theme
	}
	if req.Locale != nil {
		s.Locale = *req.Locale
	}
	if req.FiscalYearStartMonth != nil {
		s.FiscalYearStartMonth = *req.FiscalYearStartMonth
	}
}

func mergeNumbering(state *domain.NumberingState, in *domain.NumberingFormatInput) {
	if in == nil {
		return
	}
	if in.Prefix != nil {
		state.Prefix = *in.Prefix
	}
	if in.Format != nil {
		state.Format = *in.Format
	}
}

// ToItems converts requested lines into document items with fresh ids.
// Totals are left for Document.Recalculate.
func ToItems(inputs []domain.DocumentItemInput) []domain.DocumentItem {
	items := make([]domain.DocumentItem, 0, len(inputs))
	for _, in := range inputs {
		items = append(items, domain.DocumentItem{
			ID:          uuid.NewString(),
			Description: strings.TrimSpace(in.Description),
			Quantity:    in.Quantity,
			UnitPrice:   in.UnitPrice,
			ProductID:   in.ProductID,
		})
	}
	return items
}

// CopyItems duplicates items with fresh ids, keeping quantities and prices
func CopyItems(items []domain.DocumentItem) []domain.DocumentItem {
	out := make([]domain.DocumentItem, len(items))
	for i, item := range items {
		item.ID = uuid.NewString()
		out[i] = item
	}
	return out
}
