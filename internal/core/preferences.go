package core

import "strings"

// AdminPreferences are the per-admin settings of the user listing.
type AdminPreferences struct {
	ViewMode     string `json:"view_mode"`
	Density      string `json:"density"`
	SortBy       string `json:"sort_by"`
	SortDir      string `json:"sort_dir"`
	ItemsPerPage int    `json:"items_per_page"`
}

var (
	viewModes    = []string{"table", "cards"}
	densities    = []string{"compact", "regular", "comfortable"}
	userSortKeys = []string{"name", "balance", "status", "date"}
	pageSizes    = []int{10, 20, 50, 100}
)

func DefaultAdminPreferences() AdminPreferences {
	return AdminPreferences{
		ViewMode:     "table",
		Density:      "regular",
		SortBy:       "date",
		SortDir:      "desc",
		ItemsPerPage: DefaultPageSize,
	}
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// Normalized replaces every unknown value with its default, the way a
// partial update is merged over the defaults.
func (p AdminPreferences) Normalized() AdminPreferences {
	d := DefaultAdminPreferences()
	p.ViewMode = strings.ToLower(strings.TrimSpace(p.ViewMode))
	p.Density = strings.ToLower(strings.TrimSpace(p.Density))
	p.SortBy = strings.ToLower(strings.TrimSpace(p.SortBy))
	p.SortDir = strings.ToLower(strings.TrimSpace(p.SortDir))
	if !oneOf(p.ViewMode, viewModes) {
		p.ViewMode = d.ViewMode
	}
	if !oneOf(p.Density, densities) {
		p.Density = d.Density
	}
	if !oneOf(p.SortBy, userSortKeys) {
		p.SortBy = d.SortBy
	}
	if p.SortDir != "asc" && p.SortDir != "desc" {
		p.SortDir = d.SortDir
	}
	valid := false
	for _, n := range pageSizes {
		if p.ItemsPerPage == n {
			valid = true
		}
	}
	if !valid {
		p.ItemsPerPage = d.ItemsPerPage
	}
	return p
}

// PageSizes lists the selectable page sizes.
func PageSizes() []int {
	return append([]int(nil), pageSizes...)
}
