package core

import "testing"

func TestTotalPages(t *testing.T) {
	cases := []struct{ count, limit, want int }{
		{0, 10, 1},
		{1, 10, 1},
		{10, 10, 1},
		{11, 10, 2},
		{95, 10, 10},
		{5, 0, 1},
	}
	for _, c := range cases {
		if got := TotalPages(c.count, c.limit); got != c.want {
			t.Errorf("TotalPages(%d, %d) = %d, want %d", c.count, c.limit, got, c.want)
		}
	}
}

func TestTransactionFilterQuery(t *testing.T) {
	q := TransactionFilter{Search: " abc ", Status: "all", Type: "send", DateFrom: "2025-01-01"}.Query()
	if q.Get("search") != "abc" || q.Has("status") || q.Get("type") != "send" {
		t.Errorf("unexpected query %v", q.Encode())
	}
	if q.Get("page") != "1" || q.Get("limit") != "10" {
		t.Errorf("defaults missing: %v", q.Encode())
	}
}

func TestPaginate(t *testing.T) {
	items := make([]int, 23)
	for i := range items {
		items[i] = i
	}
	page, n := Paginate(items, 3, 10)
	if n != 3 || len(page) != 3 || page[0] != 20 {
		t.Fatalf("page 3 = %v (n=%d)", page, n)
	}
	page, n = Paginate(items, 9, 10)
	if n != 3 || len(page) != 3 {
		t.Fatalf("out of range page should clamp, got %v (n=%d)", page, n)
	}
	page, n = Paginate([]int{}, 1, 10)
	if n != 1 || len(page) != 0 {
		t.Fatalf("empty = %v (n=%d)", page, n)
	}
}

func TestFilterSearchResults(t *testing.T) {
	in := []UserSearchResult{
		{ID: "1", UserType: RoleClient},
		{ID: "2", UserType: RoleAgent},
		{ID: "3", UserType: RoleClient},
	}
	out := FilterSearchResults(in, "3")
	if len(out) != 1 || out[0].ID != "1" {
		t.Fatalf("FilterSearchResults = %+v", out)
	}
	if (UserSearchResult{FirstName: "Jan", LastName: "Pyè"}).DisplayName() != "Jan Pyè" {
		t.Fatal("DisplayName fallback")
	}
}

func TestAdminPreferencesNormalized(t *testing.T) {
	got := AdminPreferences{ViewMode: "Cards", Density: "huge", SortBy: "balance", SortDir: "sideways", ItemsPerPage: 7}.Normalized()
	want := AdminPreferences{ViewMode: "cards", Density: "regular", SortBy: "balance", SortDir: "desc", ItemsPerPage: 10}
	if got != want {
		t.Errorf("Normalized = %+v, want %+v", got, want)
	}
	if d := (AdminPreferences{}).Normalized(); d != DefaultAdminPreferences() {
		t.Errorf("zero value should normalize to defaults, got %+v", d)
	}
}
