package finance

import (
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jobsturm/crm-local-sub000/internal/domain"
)

// Summary holds the headline figures of a period
type Summary struct {
	TotalRevenue      float64 `json:"totalRevenue"`
	TotalVat          float64 `json:"totalVat"`
	TotalReceived     float64 `json:"totalReceived"`
	OutstandingAmount float64 `json:"outstandingAmount"`
	OverdueAmount     float64 `json:"overdueAmount"`
	PaidCount         int     `json:"paidCount"`
	OutstandingCount  int     `json:"outstandingCount"`
	OverdueCount      int     `json:"overdueCount"`
	InvoiceCount      int     `json:"invoiceCount"`
}

// VatLine is the VAT collected at one rate
type VatLine struct {
	Rate  float64 `json:"rate"`
	Base  float64 `json:"base"`
	Vat   float64 `json:"vat"`
	Count int     `json:"count"`
}

// AgingBucket groups open invoices by days past due
type AgingBucket struct {
	Label  string  `json:"label"`
	Count  int     `json:"count"`
	Amount float64 `json:"amount"`
}

// StatusLine is the count and total of invoices in one status
type StatusLine struct {
	Status domain.DocumentStatus `json:"status"`
	Count  int                   `json:"count"`
	Amount float64               `json:"amount"`
}

// Comparison relates the period to the one before it
type Comparison struct {
	Period            Period   `json:"period"`
	Summary           Summary  `json:"summary"`
	RevenueChangePct  *float64 `json:"revenueChangePct"`
	VatChangePct      *float64 `json:"vatChangePct"`
	OutstandingChange float64  `json:"outstandingChange"`
}

// Granularity of a time series
type Granularity string

const (
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
)

// Point is one time series bucket [Start, next Start)
type Point struct {
	Label   string    `json:"label"`
	Start   time.Time `json:"start"`
	Revenue float64   `json:"revenue"`
	Vat     float64   `json:"vat"`
}

// TimeSeries is revenue over time, empty buckets included
type TimeSeries struct {
	Granularity Granularity `json:"granularity"`
	Points      []Point     `json:"points"`
}

// Overview is the complete financial report of a period
type Overview struct {
	Period          Period        `json:"period"`
	Currency        string        `json:"currency,omitempty"`
	GeneratedAt     time.Time     `json:"generatedAt"`
	Summary         Summary       `json:"summary"`
	VatBreakdown    []VatLine     `json:"vatBreakdown"`
	Aging           []AgingBucket `json:"aging"`
	StatusBreakdown []StatusLine  `json:"statusBreakdown"`
	Comparison      Comparison    `json:"comparison"`
	TimeSeries      TimeSeries    `json:"timeSeries"`
}

// Aging bucket labels
const (
	Aging0To30  = "0-30"
	Aging31To60 = "31-60"
	Aging61To90 = "61-90"
	Aging90Plus = "90+"
)

// PaidDate returns when an invoice was paid: the last transition into paid,
// falling back to the last update
func PaidDate(doc *domain.Document) time.Time {
	if at, ok := doc.PaidAt(); ok {
		return at
	}
	return doc.UpdatedAt
}

// EarliestIssue returns the earliest issue date among invoices, or zero
func EarliestIssue(invoices []domain.Document) time.Time {
	var earliest time.Time
	for i := range invoices {
		if earliest.IsZero() || invoices[i].IssueDate.Before(earliest) {
			earliest = invoices[i].IssueDate
		}
	}
	return earliest
}

// Compute builds the overview of period from the given documents as observed
// at now. Non-invoice documents are ignored.
func Compute(docs []domain.Document, period Period, now time.Time) Overview {
	invoices := make([]domain.Document, 0, len(docs))
	for i := range docs {
		if docs[i].DocumentType == domain.DocumentTypeInvoice {
			invoices = append(invoices, docs[i])
		}
	}

	current := Summarize(invoices, period, now)
	prevPeriod := period.Previous()
	previous := Summarize(invoices, prevPeriod, now)

	return Overview{
		Period:          period,
		GeneratedAt:     now,
		Summary:         current,
		VatBreakdown:    VatBreakdown(invoices, period),
		Aging:           Aging(invoices, now),
		StatusBreakdown: StatusBreakdown(invoices, period, now),
		Comparison: Comparison{
			Period:            prevPeriod,
			Summary:           previous,
			RevenueChangePct:  changePct(current.TotalRevenue, previous.TotalRevenue),
			VatChangePct:      changePct(current.TotalVat, previous.TotalVat),
			OutstandingChange: sub(current.OutstandingAmount, previous.OutstandingAmount),
		},
		TimeSeries: Series(invoices, period),
	}
}

// Summarize computes the cash-basis headline figures. Revenue and VAT count
// paid invoices by paid date; outstanding counts sent and overdue invoices
// by issue date.
func Summarize(invoices []domain.Document, period Period, now time.Time) Summary {
	revenue, vat, received := decimal.Zero, decimal.Zero, decimal.Zero
	outstanding, overdue := decimal.Zero, decimal.Zero
	var s Summary

	for i := range invoices {
		inv := &invoices[i]
		status := inv.EffectiveStatus(now)

		if period.Contains(inv.IssueDate) && status != domain.StatusDraft && status != domain.StatusCancelled {
			s.InvoiceCount++
		}

		switch status {
		case domain.StatusPaid:
			if !period.Contains(PaidDate(inv)) {
				continue
			}
			revenue = revenue.Add(decimal.NewFromFloat(inv.Subtotal))
			vat = vat.Add(decimal.NewFromFloat(inv.TaxAmount))
			received = received.Add(decimal.NewFromFloat(inv.Total))
			s.PaidCount++

		case domain.StatusSent, domain.StatusOverdue:
			if !period.Contains(inv.IssueDate) {
				continue
			}
			amount := decimal.NewFromFloat(inv.Total)
			outstanding = outstanding.Add(amount)
			s.OutstandingCount++
			if status == domain.StatusOverdue {
				overdue = overdue.Add(amount)
				s.OverdueCount++
			}
		}
	}

	s.TotalRevenue = money(revenue)
	s.TotalVat = money(vat)
	s.TotalReceived = money(received)
	s.OutstandingAmount = money(outstanding)
	s.OverdueAmount = money(overdue)
	return s
}

// VatBreakdown groups the VAT of invoices paid in the period by rate,
// highest rate first
func VatBreakdown(invoices []domain.Document, period Period) []VatLine {
	type acc struct {
		base, vat decimal.Decimal
		count     int
	}
	byRate := map[string]*acc{}
	rates := map[string]float64{}

	for i := range invoices {
		inv := &invoices[i]
		if inv.Status != domain.StatusPaid || !period.Contains(PaidDate(inv)) {
			continue
		}
		key := strconv.FormatFloat(inv.TaxRate, 'f', -1, 64)
		a, ok := byRate[key]
		if !ok {
			a = &acc{base: decimal.Zero, vat: decimal.Zero}
			byRate[key] = a
			rates[key] = inv.TaxRate
		}
		a.base = a.base.Add(decimal.NewFromFloat(inv.Subtotal))
		a.vat = a.vat.Add(decimal.NewFromFloat(inv.TaxAmount))
		a.count++
	}

	lines := make([]VatLine, 0, len(byRate))
	for key, a := range byRate {
		lines = append(lines, VatLine{Rate: rates[key], Base: money(a.base), Vat: money(a.vat), Count: a.count})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].Rate > lines[j].Rate })
	return lines
}

// AgingLabel returns the bucket of an invoice due at due, observed at now.
// Days are floor((now - due) / 24h); invoices not yet due land in 0-30.
func AgingLabel(due, now time.Time) string {
	days := int(now.Sub(due) / (24 * time.Hour))
	switch {
	case days <= 30:
		return Aging0To30
	case days <= 60:
		return Aging31To60
	case days <= 90:
		return Aging61To90
	default:
		return Aging90Plus
	}
}

// Aging buckets every open invoice (not paid, cancelled or draft) by days
// past due. It does not depend on the reporting period.
func Aging(invoices []domain.Document, now time.Time) []AgingBucket {
	labels := []string{Aging0To30, Aging31To60, Aging61To90, Aging90Plus}
	amounts := make(map[string]decimal.Decimal, len(labels))
	counts := make(map[string]int, len(labels))

	for i := range invoices {
		inv := &invoices[i]
		switch inv.Status {
		case domain.StatusPaid, domain.StatusCancelled, domain.StatusDraft:
			continue
		}
		label := AgingLabel(inv.DueDate, now)
		amounts[label] = amounts[label].Add(decimal.NewFromFloat(inv.Total))
		counts[label]++
	}

	buckets := make([]AgingBucket, 0, len(labels))
	for _, label := range labels {
		buckets = append(buckets, AgingBucket{Label: label, Count: counts[label], Amount: money(amounts[label])})
	}
	return buckets
}

// StatusBreakdown counts invoices issued in the period per effective status
func StatusBreakdown(invoices []domain.Document, period Period, now time.Time) []StatusLine {
	statuses := domain.Statuses(domain.DocumentTypeInvoice)
	amounts := make(map[domain.DocumentStatus]decimal.Decimal, len(statuses))
	counts := make(map[domain.DocumentStatus]int, len(statuses))

	for i := range invoices {
		inv := &invoices[i]
		if !period.Contains(inv.IssueDate) {
			continue
		}
		status := inv.EffectiveStatus(now)
		amounts[status] = amounts[status].Add(decimal.NewFromFloat(inv.Total))
		counts[status]++
	}

	lines := make([]StatusLine, 0, len(statuses))
	for _, status := range statuses {
		lines = append(lines, StatusLine{Status: status, Count: counts[status], Amount: money(amounts[status])})
	}
	return lines
}

// GranularityFor picks the bucket size of a range
func GranularityFor(period Period) Granularity {
	days := period.Duration().Hours() / 24
	switch {
	case days < 28:
		return GranularityDay
	case days < 120:
		return GranularityWeek
	default:
		return GranularityMonth
	}
}

// Series spreads paid revenue and VAT over buckets covering the period
func Series(invoices []domain.Document, period Period) TimeSeries {
	g := GranularityFor(period)
	series := TimeSeries{Granularity: g, Points: []Point{}}

	var starts []time.Time
	for t := bucketStart(period.Start, g); t.Before(period.End); t = nextBucket(t, g) {
		starts = append(starts, t)
	}
	if len(starts) == 0 {
		return series
	}

	revenue := make([]decimal.Decimal, len(starts))
	vat := make([]decimal.Decimal, len(starts))
	for i := range invoices {
		inv := &invoices[i]
		if inv.Status != domain.StatusPaid {
			continue
		}
		paid := PaidDate(inv)
		if !period.Contains(paid) {
			continue
		}
		idx := sort.Search(len(starts), func(k int) bool { return starts[k].After(paid) }) - 1
		if idx < 0 {
			idx = 0
		}
		revenue[idx] = revenue[idx].Add(decimal.NewFromFloat(inv.Subtotal))
		vat[idx] = vat[idx].Add(decimal.NewFromFloat(inv.TaxAmount))
	}

	for i, start := range starts {
		series.Points = append(series.Points, Point{
			Label:   bucketLabel(start, g),
			Start:   start,
			Revenue: money(revenue[i]),
			Vat:     money(vat[i]),
		})
	}
	return series
}

func bucketStart(t time.Time, g Granularity) time.Time {
	day := startOfDay(t)
	switch g {
	case GranularityWeek:
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case GranularityMonth:
		return time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, day.Location())
	default:
		return day
	}
}

func nextBucket(t time.Time, g Granularity) time.Time {
	switch g {
	case GranularityWeek:
		return t.AddDate(0, 0, 7)
	case GranularityMonth:
		return t.AddDate(0, 1, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}

func bucketLabel(t time.Time, g Granularity) string {
	if g == GranularityMonth {
		return t.Format("2006-01")
	}
	return t.Format(dateLayout)
}

func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

func sub(a, b float64) float64 {
	return money(decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b)))
}

// changePct returns the percentage change from previous to current, nil
// when previous is zero
func changePct(current, previous float64) *float64 {
	if previous == 0 {
		return nil
	}
	prev := decimal.NewFromFloat(previous)
	pct := money(decimal.NewFromFloat(current).Sub(prev).Div(prev).Mul(decimal.NewFromInt(100)))
	return &pct
}
