// Package http provides HTTP server and handler implementations.
//
// This file holds the form and query parsing shared by the handlers.

package http

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"cashtimachann/internal/core"
	"cashtimachann/internal/export"
	"cashtimachann/internal/services"
)

// FormReader reads sanitized values from a parsed form.
type FormReader struct {
	values url.Values
}

// ReadForm parses the request form. Forms are small; the body is capped.
func ReadForm(w http.ResponseWriter, r *http.Request) (*FormReader, error) {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	return &FormReader{values: r.Form}, nil
}

func (f *FormReader) Get(key string) string {
	return sanitizeInput(f.values.Get(key))
}

// Secret returns a value without sanitizing it (passwords, PINs).
func (f *FormReader) Secret(key string) string {
	return f.values.Get(key)
}

// Amount parses a user-entered amount. Grouping spaces are ignored, so
// "1 250,50" and "1250.5" both parse.
func (f *FormReader) Amount(key string) (core.Money, error) {
	cents, err := core.ParseDecimalToCents(strings.ReplaceAll(f.Get(key), " ", ""))
	if err != nil {
		return core.Money{}, err
	}
	return core.Money{Cents: cents}, nil
}

// sanitizeInput removes control characters except tab, newline and
// carriage return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// ParsePage reads a 1-based page number, defaulting to 1.
func ParsePage(query url.Values) int {
	page, err := strconv.Atoi(strings.TrimSpace(query.Get("page")))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

// ParseTransactionFilter reads the admin transaction listing filters.
func ParseTransactionFilter(query url.Values) core.TransactionFilter {
	f := core.TransactionFilter{
		Search:   sanitizeInput(query.Get("search")),
		Status:   sanitizeInput(query.Get("status")),
		Type:     sanitizeInput(query.Get("type")),
		UserType: sanitizeInput(query.Get("user_type")),
		DateFrom: sanitizeInput(query.Get("date_from")),
		DateTo:   sanitizeInput(query.Get("date_to")),
		Page:     ParsePage(query),
	}
	return f.Normalized()
}

// ParseUserFilter reads the admin user listing filters.
func ParseUserFilter(query url.Values) services.UserFilter {
	role := strings.ToLower(sanitizeInput(query.Get("role")))
	if parsed, ok := core.ParseRole(role); ok {
		role = parsed.String()
	} else if role != "all" {
		role = ""
	}
	return services.UserFilter{
		Role:        role,
		Search:      sanitizeInput(query.Get("search")),
		Status:      sanitizeInput(query.Get("status")),
		Created:     sanitizeInput(query.Get("created")),
		CreatedFrom: sanitizeInput(query.Get("created_from")),
		CreatedTo:   sanitizeInput(query.Get("created_to")),
		KYC:         sanitizeInput(query.Get("kyc")),
		SortBy:      sanitizeInput(query.Get("sort_by")),
		SortDir:     sanitizeInput(query.Get("sort_dir")),
	}
}

// ParseStatementFilter reads the client statement filters.
func ParseStatementFilter(query url.Values) export.StatementFilter {
	return export.StatementFilter{
		Search: sanitizeInput(query.Get("search")),
		Type:   sanitizeInput(query.Get("type")),
		Status: sanitizeInput(query.Get("status")),
	}
}

// RequireMethod checks if the request method matches the expected method(s).
// Returns an error response builder if the method doesn't match.
func RequireMethod(r *http.Request, methods ...string) *HTMXResponseBuilder {
	for _, m := range methods {
		if r.Method == m {
			return nil
		}
	}
	return MethodNotAllowedError(strings.Join(methods, ", "))
}

// RequirePOST is a convenience function for POST-only handlers.
func RequirePOST(r *http.Request) *HTMXResponseBuilder {
	return RequireMethod(r, http.MethodPost)
}

// isHTMX reports whether the request was issued by HTMX.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}
