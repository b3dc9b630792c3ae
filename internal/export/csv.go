// Package export renders transaction listings as CSV and as spreadsheet
// rows.
package export

import (
	"io"
	"strings"
)

// Quoting selects how fields are quoted.
type Quoting int

const (
	// QuoteAll wraps every field in double quotes.
	QuoteAll Quoting = iota
	// QuoteMinimal quotes only fields containing a quote, a comma or a
	// newline.
	QuoteMinimal
)

func quoteField(v string, q Quoting) string {
	escaped := strings.ReplaceAll(v, `"`, `""`)
	if q == QuoteAll || strings.ContainsAny(v, "\",\n") {
		return `"` + escaped + `"`
	}
	return escaped
}

// Encode joins the header and rows with "\n" and no trailing newline, so
// N rows give N+1 lines.
func Encode(header []string, rows [][]string, q Quoting) string {
	var b strings.Builder
	writeLine := func(fields []string) {
		for i, f := range fields {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(quoteField(f, q))
		}
	}
	writeLine(header)
	for _, r := range rows {
		b.WriteByte('\n')
		writeLine(r)
	}
	return b.String()
}

// Write encodes to w.
func Write(w io.Writer, header []string, rows [][]string, q Quoting) error {
	_, err := io.WriteString(w, Encode(header, rows, q))
	return err
}
