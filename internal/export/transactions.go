package export

import (
	"fmt"
	"strings"
	"time"

	"cashtimachann/internal/core"
)

// ContentType is the media type of every CSV download.
const ContentType = "text/csv; charset=utf-8"

// AdminHeader is the header of the admin transaction export.
var AdminHeader = []string{"ID", "Referans", "Tip", "Estati", "Montan", "Frè", "Deviz", "Voye", "Resevwa", "Dat"}

// ClientHeader is the header of the per-client statement export.
var ClientHeader = []string{"Date", "Type", "Description", "Amount"}

func isoTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// AdminRow renders one transaction of the admin export.
func AdminRow(t core.Transaction) []string {
	return []string{
		t.ID.String(),
		t.ReferenceNumber,
		core.TypeLabel(t),
		core.StatusLabel(t.Status),
		t.Amount.Fixed(),
		t.Fee.Fixed(),
		t.CurrencyOrDefault(),
		t.SenderName,
		t.ReceiverName,
		isoTime(t.CreatedAt),
	}
}

func AdminRows(txs []core.Transaction) [][]string {
	rows := make([][]string, len(txs))
	for i, t := range txs {
		rows[i] = AdminRow(t)
	}
	return rows
}

// AdminCSV quotes every field.
func AdminCSV(txs []core.Transaction) string {
	return Encode(AdminHeader, AdminRows(txs), QuoteAll)
}

func ClientRow(t core.Transaction) []string {
	return []string{isoTime(t.CreatedAt), t.TransactionType, t.Description, t.Amount.Fixed()}
}

// ClientCSV quotes only the fields that need it.
func ClientCSV(txs []core.Transaction) string {
	rows := make([][]string, len(txs))
	for i, t := range txs {
		rows[i] = ClientRow(t)
	}
	return Encode(ClientHeader, rows, QuoteMinimal)
}

// AdminFilename is transactions_YYYY-MM-DD-HH-MM-SS.csv.
func AdminFilename(now time.Time) string {
	return fmt.Sprintf("transactions_%s.csv", now.UTC().Format("2006-01-02-15-04-05"))
}

// ClientFilename is transactions_<username>.csv, "client" when unknown.
func ClientFilename(username string) string {
	username = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-', r == '.':
			return r
		}
		return -1
	}, username)
	if username == "" {
		username = "client"
	}
	return fmt.Sprintf("transactions_%s.csv", username)
}
