package domain

import "time"

var invoiceStatuses = []DocumentStatus{StatusDraft, StatusSent, StatusPaid, StatusOverdue, StatusCancelled}

var offerStatuses = []DocumentStatus{StatusDraft, StatusSent, StatusAccepted, StatusRejected, StatusCancelled}

// Allowed forward moves out of the non-terminal states. Terminal states are
// absent: from them any other non-draft status of the same type may be chosen.
var transitions = map[DocumentType]map[DocumentStatus][]DocumentStatus{
	DocumentTypeInvoice: {
		StatusDraft:   {StatusSent, StatusCancelled},
		StatusSent:    {StatusPaid, StatusOverdue, StatusCancelled},
		StatusOverdue: {StatusPaid, StatusSent, StatusCancelled},
	},
	DocumentTypeOffer: {
		StatusDraft: {StatusSent, StatusCancelled},
		StatusSent:  {StatusAccepted, StatusRejected, StatusCancelled},
	},
}

// Statuses returns the statuses valid for a document type
func Statuses(t DocumentType) []DocumentStatus {
	if t == DocumentTypeOffer {
		return offerStatuses
	}
	return invoiceStatuses
}

// IsValidStatus returns true if s is a status of document type t
func IsValidStatus(t DocumentType, s DocumentStatus) bool {
	for _, candidate := range Statuses(t) {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal returns true for statuses that end the normal flow. Terminal
// states still permit further transitions.
func IsTerminal(t DocumentType, s DocumentStatus) bool {
	if !IsValidStatus(t, s) {
		return false
	}
	_, open := transitions[t][s]
	return !open
}

// CanTransition reports whether a document of type t may move from one
// status to another. Draft is only ever the initial status.
func CanTransition(t DocumentType, from, to DocumentStatus) bool {
	if from == to || to == StatusDraft || !IsValidStatus(t, from) || !IsValidStatus(t, to) {
		return false
	}

	next, open := transitions[t][from]
	if !open {
		return true
	}
	for _, candidate := range next {
		if candidate == to {
			return true
		}
	}
	return false
}

// NewStatusHistory returns the single creation entry of a new document
func NewStatusHistory(at time.Time, note string) []StatusHistoryEntry {
	return []StatusHistoryEntry{{
		FromStatus: nil,
		ToStatus:   StatusDraft,
		ChangedAt:  at,
		Note:       note,
	}}
}

// ApplyTransition sets the status and appends a history entry. It does not
// check CanTransition.
func (d *Document) ApplyTransition(to DocumentStatus, at time.Time, note string) {
	from := d.Status
	d.StatusHistory = append(d.StatusHistory, StatusHistoryEntry{
		FromStatus: &from,
		ToStatus:   to,
		ChangedAt:  at,
		Note:       note,
	})
	d.Status = to
	d.UpdatedAt = at
}

// PaidAt returns the time of the last transition into paid
func (d *Document) PaidAt() (time.Time, bool) {
	for i := len(d.StatusHistory) - 1; i >= 0; i-- {
		if d.StatusHistory[i].ToStatus == StatusPaid {
			return d.StatusHistory[i].ChangedAt, true
		}
	}
	return time.Time{}, false
}

// IsPastDue returns true if the due date lies before the start of now's day
func (d *Document) IsPastDue(now time.Time) bool {
	y, m, day := now.Date()
	today := time.Date(y, m, day, 0, 0, 0, 0, now.Location())
	return d.DueDate.Before(today)
}

// EffectiveStatus returns the status as observed at now. A sent invoice past
// its due date reads as overdue.
func (d *Document) EffectiveStatus(now time.Time) DocumentStatus {
	if d.DocumentType == DocumentTypeInvoice && d.Status == StatusSent && d.IsPastDue(now) {
		return StatusOverdue
	}
	return d.Status
}

// Summarize builds the listing view of a document as observed at now
func (d *Document) Summarize(now time.Time) DocumentSummary {
	return DocumentSummary{
		ID:             d.ID,
		DocumentType:   d.DocumentType,
		DocumentNumber: d.DocumentNumber,
		CustomerID:     d.CustomerID,
		CustomerName:   d.Customer.Name,
		Total:          d.Total,
		Status:         d.EffectiveStatus(now),
		DueDate:        d.DueDate,
		CreatedAt:      d.CreatedAt,
	}
}
