package repository

import (
	"time"

	"github.com/jobsturm/crm-local-sub000/internal/database"
)

// DocumentVersion is the envelope version written by this build
const DocumentVersion = "1.1.0"

var documentChain = database.Chain{
	Current: DocumentVersion,
	Migrations: []database.Migration{
		{From: "1.0.0", To: "1.1.0", Apply: addHistoryAndTerms},
	},
}

// 1.1.0 introduced status history and per-document payment terms
func addHistoryAndTerms(raw map[string]any) (map[string]any, error) {
	doc := database.Object(raw, "document")

	status, _ := doc["status"].(string)
	if status == "" {
		status = "draft"
		doc["status"] = status
	}

	if history, ok := doc["statusHistory"].([]any); !ok || len(history) == 0 {
		created := doc["createdAt"]
		entries := []any{map[string]any{
			"fromStatus": nil,
			"toStatus":   "draft",
			"changedAt":  created,
		}}
		if status != "draft" {
			changed := doc["updatedAt"]
			if changed == nil {
				changed = created
			}
			entries = append(entries, map[string]any{
				"fromStatus": "draft",
				"toStatus":   status,
				"changedAt":  changed,
			})
		}
		doc["statusHistory"] = entries
	}

	if _, ok := doc["paymentTermDays"]; !ok {
		doc["paymentTermDays"] = float64(termFromDates(doc))
	}
	return raw, nil
}

// termFromDates derives the payment term from issue and due date, falling
// back to 14 days
func termFromDates(doc map[string]any) int {
	issue, ok1 := doc["issueDate"].(string)
	due, ok2 := doc["dueDate"].(string)
	if !ok1 || !ok2 {
		return 14
	}
	i, err1 := time.Parse(time.RFC3339, issue)
	d, err2 := time.Parse(time.RFC3339, due)
	if err1 != nil || err2 != nil || d.Before(i) {
		return 14
	}
	return int(d.Sub(i).Hours() / 24)
}
