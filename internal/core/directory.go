package core

import (
	"math"
	"net/url"
	"strconv"
	"strings"
)

// MinSearchLength is the shortest query the user directory answers.
const MinSearchLength = 3

// DefaultPageSize is the page size of transaction and user listings.
const DefaultPageSize = 10

// UserSearchResult is one entry of the recipient directory search.
type UserSearchResult struct {
	ID          ID     `json:"id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Username    string `json:"username"`
	PhoneNumber string `json:"phone_number"`
	Email       string `json:"email"`
	FullName    string `json:"full_name"`
	UserType    Role   `json:"user_type"`
}

// DisplayName prefers full_name, then first/last, then username.
func (r UserSearchResult) DisplayName() string {
	if strings.TrimSpace(r.FullName) != "" {
		return strings.TrimSpace(r.FullName)
	}
	if n := strings.TrimSpace(r.FirstName + " " + r.LastName); n != "" {
		return n
	}
	return r.Username
}

// FilterSearchResults keeps clients only and drops the caller.
func FilterSearchResults(results []UserSearchResult, selfID ID) []UserSearchResult {
	out := make([]UserSearchResult, 0, len(results))
	for _, r := range results {
		if r.UserType != "" && r.UserType != RoleClient {
			continue
		}
		if selfID != "" && r.ID == selfID {
			continue
		}
		out = append(out, r)
	}
	return out
}

// TransactionFilter holds the admin transaction listing parameters.
type TransactionFilter struct {
	Search   string
	Status   string
	Type     string
	UserType string
	DateFrom string
	DateTo   string
	Page     int
	Limit    int
}

// Normalized applies page and limit defaults.
func (f TransactionFilter) Normalized() TransactionFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = DefaultPageSize
	}
	f.Search = strings.TrimSpace(f.Search)
	return f
}

// Query encodes the filter the way the backend expects it. "all" and empty
// values are omitted.
func (f TransactionFilter) Query() url.Values {
	f = f.Normalized()
	q := url.Values{}
	set := func(k, v string) {
		if v != "" && v != "all" {
			q.Set(k, v)
		}
	}
	set("search", f.Search)
	set("status", f.Status)
	set("type", f.Type)
	set("user_type", f.UserType)
	set("date_from", f.DateFrom)
	set("date_to", f.DateTo)
	q.Set("page", strconv.Itoa(f.Page))
	q.Set("limit", strconv.Itoa(f.Limit))
	return q
}

// TotalPages is max(1, ceil(count/limit)).
func TotalPages(count, limit int) int {
	if limit < 1 {
		limit = DefaultPageSize
	}
	pages := int(math.Ceil(float64(count) / float64(limit)))
	if pages < 1 {
		return 1
	}
	return pages
}

// Paginate returns the 1-based page of items and the clamped page number.
func Paginate[T any](items []T, page, perPage int) ([]T, int) {
	if perPage < 1 {
		perPage = DefaultPageSize
	}
	pages := TotalPages(len(items), perPage)
	if page < 1 {
		page = 1
	}
	if page > pages {
		page = pages
	}
	start := (page - 1) * perPage
	if start >= len(items) {
		return nil, page
	}
	end := start + perPage
	if end > len(items) {
		end = len(items)
	}
	return items[start:end], page
}
