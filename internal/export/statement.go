package export

import (
	"strings"

	"cashtimachann/internal/core"
)

// StatementFilter narrows a client's transaction history.
type StatementFilter struct {
	Search string
	Type   string
	Status string
}

// StatementPage is one page of the filtered statement.
type StatementPage struct {
	Transactions []core.Transaction
	Total        int
	Page         int
	TotalPages   int
	Filter       StatementFilter
}

func matchesStatement(t core.Transaction, f StatementFilter, q string) bool {
	if f.Type != "" && f.Type != "all" && !strings.EqualFold(t.TransactionType, f.Type) {
		return false
	}
	if f.Status != "" && f.Status != "all" && !strings.EqualFold(t.Status, f.Status) {
		return false
	}
	if q == "" {
		return true
	}
	for _, v := range []string{t.Description, t.SenderName, t.ReceiverName, t.ReferenceNumber} {
		if strings.Contains(strings.ToLower(v), q) {
			return true
		}
	}
	return false
}

// FilterStatement keeps the transactions matching f. Search covers the
// description, both party names and the reference.
func FilterStatement(txs []core.Transaction, f StatementFilter) []core.Transaction {
	q := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]core.Transaction, 0, len(txs))
	for _, t := range txs {
		if matchesStatement(t, f, q) {
			out = append(out, t)
		}
	}
	return out
}

// Statement filters and paginates, core.DefaultPageSize per page.
func Statement(txs []core.Transaction, f StatementFilter, page int) StatementPage {
	filtered := FilterStatement(txs, f)
	items, page := core.Paginate(filtered, page, core.DefaultPageSize)
	return StatementPage{
		Transactions: items,
		Total:        len(filtered),
		Page:         page,
		TotalPages:   core.TotalPages(len(filtered), core.DefaultPageSize),
		Filter:       f,
	}
}
