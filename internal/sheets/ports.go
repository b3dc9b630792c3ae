package sheets

import (
	"context"
	"fmt"
)

// Ports for the spreadsheet export adapters.
type (
	RowWriter interface {
		// AppendRows writes rows below the existing content, preceded by the
		// header when the sheet is empty, and returns the range written.
		AppendRows(ctx context.Context, header []string, rows [][]string) (rowRef string, err error)
	}

	// KeyLister reads back the key column (the first one) of the sheet.
	KeyLister interface {
		ExportedKeys(ctx context.Context) (map[string]struct{}, error)
	}

	Exporter interface {
		RowWriter
		KeyLister
	}
)

// Result describes one export run.
type Result struct {
	RowRef  string
	Written int
	Skipped int
}

// Export appends the rows whose first column is not in the sheet yet, so
// exporting the same listing twice does not duplicate transactions.
func Export(ctx context.Context, e Exporter, header []string, rows [][]string) (Result, error) {
	existing, err := e.ExportedKeys(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("read exported keys: %w", err)
	}
	fresh := make([][]string, 0, len(rows))
	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		if _, ok := existing[row[0]]; ok {
			continue
		}
		if _, ok := seen[row[0]]; ok {
			continue
		}
		seen[row[0]] = struct{}{}
		fresh = append(fresh, row)
	}
	res := Result{Written: len(fresh), Skipped: len(rows) - len(fresh)}
	if len(fresh) == 0 {
		return res, nil
	}
	ref, err := e.AppendRows(ctx, header, fresh)
	if err != nil {
		return Result{}, err
	}
	res.RowRef = ref
	return res, nil
}
