package database

import (
	"time"

	"github.com/jobsturm/crm-local-sub000/internal/domain"
	"github.com/jobsturm/crm-local-sub000/internal/numbering"
)

// CurrentVersion is the database version written by this build
const CurrentVersion = "2.1.0"

// Migrations upgrades database.json one version at a time
var Migrations = []Migration{
	{From: "1.0.0", To: "1.1.0", Apply: addProductsAndTerms},
	{From: "1.1.0", To: "2.0.0", Apply: nestNumbering},
	{From: "2.0.0", To: "2.1.0", Apply: addPreferences},
}

var chain = Chain{Current: CurrentVersion, Migrations: Migrations}

// 1.1.0 introduced the product catalog, payment terms and custom labels
func addProductsAndTerms(raw map[string]any) (map[string]any, error) {
	SetDefault(raw, "products", []any{})
	SetDefault(raw, "customers", []any{})

	settings := Object(raw, "settings")
	SetDefault(settings, "currency", "EUR")
	SetDefault(settings, "defaultTaxRate", float64(21))
	SetDefault(settings, "paymentTermDays", float64(14))
	SetDefault(settings, "offerValidityDays", float64(30))
	SetDefault(settings, "labels", map[string]any{})
	return raw, nil
}

// 2.0.0 moved the flat prefix and counter fields into settings.numbering and
// nested customer address fields
func nestNumbering(raw map[string]any) (map[string]any, error) {
	settings := Object(raw, "settings")

	nested := map[string]any{
		"offer":   numberingState(settings, "offerPrefix", "nextOfferNumber", "OFF"),
		"invoice": numberingState(settings, "invoicePrefix", "nextInvoiceNumber", "INV"),
	}
	for _, key := range []string{"offerPrefix", "nextOfferNumber", "invoicePrefix", "nextInvoiceNumber"} {
		delete(settings, key)
	}
	settings["numbering"] = nested

	if customers, ok := raw["customers"].([]any); ok {
		for _, c := range customers {
			if customer, ok := c.(map[string]any); ok {
				nestAddress(customer)
			}
		}
	}
	if business, ok := raw["business"].(map[string]any); ok {
		nestAddress(business)
	}
	return raw, nil
}

func numberingState(settings map[string]any, prefixKey, counterKey, fallback string) map[string]any {
	prefix, ok := settings[prefixKey].(string)
	if !ok || prefix == "" {
		prefix = fallback
	}
	next, ok := settings[counterKey].(float64)
	if !ok || next < 1 {
		next = 1
	}
	return map[string]any{
		"prefix":       prefix,
		"format":       numbering.DefaultFormat,
		"nextNumber":   next,
		"yearCounters": map[string]any{},
	}
}

var addressFields = []string{"street", "city", "postalCode", "country"}

func nestAddress(entity map[string]any) {
	if _, ok := entity["address"].(map[string]any); ok {
		return
	}
	address := map[string]any{}
	if line, ok := entity["address"].(string); ok && line != "" {
		address["street"] = line
	}
	for _, field := range addressFields {
		if v, ok := entity[field]; ok {
			address[field] = v
			delete(entity, field)
		}
	}
	entity["address"] = address
}

// 2.1.0 added fiscal year reporting and display preferences
func addPreferences(raw map[string]any) (map[string]any, error) {
	settings := Object(raw, "settings")
	SetDefault(settings, "fiscalYearStartMonth", float64(1))
	SetDefault(settings, "theme", "system")
	SetDefault(settings, "locale", "en")
	return raw, nil
}

// DefaultSettings returns the settings of a freshly created database
func DefaultSettings() domain.Settings {
	return domain.Settings{
		Currency:          "EUR",
		DefaultTaxRate:    21,
		PaymentTermDays:   14,
		OfferValidityDays: 30,
		Numbering: domain.NumberingSettings{
			Offer:   domain.NumberingState{Prefix: "OFF", Format: numbering.DefaultFormat, NextNumber: 1, YearCounters: map[string]int{}},
			Invoice: domain.NumberingState{Prefix: "INV", Format: numbering.DefaultFormat, NextNumber: 1, YearCounters: map[string]int{}},
		},
		Labels:               map[string]string{},
		Theme:                "system",
		Locale:               "en",
		FiscalYearStartMonth: 1,
	}
}

// DefaultDatabase returns an empty database at CurrentVersion
func DefaultDatabase(now time.Time) *domain.Database {
	return &domain.Database{
		Version:   CurrentVersion,
		Customers: []domain.Customer{},
		Business:  nil,
		Products:  []domain.Product{},
		Settings:  DefaultSettings(),
		UpdatedAt: now,
	}
}
