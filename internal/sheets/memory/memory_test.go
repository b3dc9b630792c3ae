package memory

import (
	"context"
	"testing"

	"cashtimachann/internal/sheets"
)

func TestMemoryStoreAppendWritesHeaderOnce(t *testing.T) {
	s := New()
	ctx := context.Background()
	header := []string{"ID", "Montan"}

	ref, err := s.AppendRows(ctx, header, [][]string{{"1", "10.00"}, {"2", "20.00"}})
	if err != nil || ref != "mem:2-3" {
		t.Fatalf("unexpected append: ref=%q err=%v", ref, err)
	}
	ref, err = s.AppendRows(ctx, header, [][]string{{"3", "30.00"}})
	if err != nil || ref != "mem:4-4" {
		t.Fatalf("unexpected append: ref=%q err=%v", ref, err)
	}
	if rows := s.Rows(); len(rows) != 4 || rows[0][0] != "ID" {
		t.Fatalf("rows = %v", rows)
	}
}

func TestExportSkipsKnownKeys(t *testing.T) {
	s := New()
	ctx := context.Background()
	header := []string{"ID", "Montan"}

	res, err := sheets.Export(ctx, s, header, [][]string{{"1", "10.00"}, {"2", "20.00"}})
	if err != nil || res.Written != 2 || res.Skipped != 0 {
		t.Fatalf("first export = %+v, %v", res, err)
	}
	res, err = sheets.Export(ctx, s, header, [][]string{{"2", "20.00"}, {"3", "30.00"}, {"3", "30.00"}, {}})
	if err != nil || res.Written != 1 || res.Skipped != 3 {
		t.Fatalf("second export = %+v, %v", res, err)
	}
	res, err = sheets.Export(ctx, s, header, [][]string{{"1", "10.00"}})
	if err != nil || res.Written != 0 || res.RowRef != "" {
		t.Fatalf("repeat export = %+v, %v", res, err)
	}
	if rows := s.Rows(); len(rows) != 4 {
		t.Fatalf("rows = %v", rows)
	}
}
