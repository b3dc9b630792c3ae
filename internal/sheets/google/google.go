// Package google appends exported transactions to a Google Sheet.
package google

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	applog "cashtimachann/internal/log"
	"cashtimachann/internal/sheets"
)

// rowCacheTTL bounds how long the known row count and keys of a sheet are
// trusted before the key column is read again.
const rowCacheTTL = 30 * time.Second

type rowCache struct {
	sheet     string
	nextRow   int
	keys      map[string]struct{}
	fetchedAt time.Time
}

func (rc *rowCache) valid(sheet string, now time.Time) bool {
	return rc != nil && rc.sheet == sheet && now.Sub(rc.fetchedAt) < rowCacheTTL
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	// sheetBase is the tab name without year; writes go to "<year> <base>".
	sheetBase string
	now       func() time.Time
	logger    *applog.Logger

	mu    sync.Mutex
	cache *rowCache
}

var _ sheets.Exporter = (*Client)(nil)

// New creates a Sheets client for spreadsheetID. Without options the
// service account credentials are read from the environment.
func New(ctx context.Context, spreadsheetID, sheetBase string, logger *applog.Logger, opts ...goption.ClientOption) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	sheetBase = strings.TrimSpace(sheetBase)
	if sheetBase == "" {
		sheetBase = "Tranzaksyon"
	}
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentSheets)

	var (
		svc *gsheet.Service
		err error
	)
	if len(opts) == 0 {
		svc, err = newSheetsService(ctx, logger)
	} else {
		svc, err = gsheet.NewService(ctx, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetBase:     sheetBase,
		now:           time.Now,
		logger:        logger,
	}, nil
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
// Uses GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS.
func newSheetsService(ctx context.Context, logger *applog.Logger) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	switch {
	case serviceAccountJSON != "":
		logger.InfoContext(ctx, "Using inline service account credentials")
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		logger.InfoContext(ctx, "Reading service account credentials", "path", serviceAccountFile)
		b, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = b
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope),
		goption.WithHTTPClient(newHTTPClientWithPooling()))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// newHTTPClientWithPooling creates an HTTP client for the Sheets API with
// connection pooling and bounded timeouts.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: 60 * time.Second}
}

// SheetName is the tab rows are written to this year.
func (c *Client) SheetName() string {
	return yearPrefixedName(c.sheetBase, c.now().Year())
}

// state returns the row count and keys of sheet, reading column A when
// the cache is stale. The caller holds c.mu.
func (c *Client) state(ctx context.Context, sheet string) (*rowCache, error) {
	now := c.now()
	if c.cache.valid(sheet, now) {
		return c.cache, nil
	}
	rng := a1Range(sheet, "A:A")
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	rc := &rowCache{
		sheet:     sheet,
		nextRow:   len(resp.Values) + 1,
		keys:      make(map[string]struct{}, len(resp.Values)),
		fetchedAt: now,
	}
	// Row 1 is the header.
	for i, row := range resp.Values {
		if i == 0 || len(row) == 0 {
			continue
		}
		if v := strings.TrimSpace(fmt.Sprint(row[0])); v != "" {
			rc.keys[v] = struct{}{}
		}
	}
	c.cache = rc
	return rc, nil
}

// InvalidateRowCache forces the next call to re-read the sheet.
func (c *Client) InvalidateRowCache() {
	c.mu.Lock()
	c.cache = nil
	c.mu.Unlock()
}

func (c *Client) ExportedKeys(ctx context.Context) (map[string]struct{}, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	rc, err := c.state(ctx, c.SheetName())
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(rc.keys))
	for k := range rc.keys {
		out[k] = struct{}{}
	}
	return out, nil
}

func (c *Client) AppendRows(ctx context.Context, header []string, rows [][]string) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if len(rows) == 0 {
		return "", nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	sheet := c.SheetName()
	rc, err := c.state(ctx, sheet)
	if err != nil {
		return "", err
	}

	values := make([][]any, 0, len(rows)+1)
	if rc.nextRow == 1 && len(header) > 0 {
		values = append(values, toCells(header))
	}
	width := len(header)
	for _, r := range rows {
		values = append(values, toCells(r))
		if len(r) > width {
			width = len(r)
		}
	}

	first := rc.nextRow
	last := first + len(values) - 1
	rng := a1Range(sheet, fmt.Sprintf("A%d:%s%d", first, columnName(width), last))
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		c.cache = nil
		return "", fmt.Errorf("write %s: %w", rng, err)
	}

	rc.nextRow = last + 1
	for _, r := range rows {
		if len(r) > 0 {
			rc.keys[strings.TrimSpace(r[0])] = struct{}{}
		}
	}
	c.logger.InfoContext(ctx, "Rows appended to sheet",
		"sheet", sheet,
		"range", rng,
		"rows", len(rows))
	return rng, nil
}

// toCells converts a row for USER_ENTERED input: numbers stay numbers and
// text that would be parsed as a formula is escaped.
func toCells(row []string) []any {
	out := make([]any, len(row))
	for i, v := range row {
		out[i] = cellValue(v)
	}
	return out
}

func cellValue(v string) any {
	if v == "" {
		return v
	}
	if isPlainNumber(v) {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	switch v[0] {
	case '=', '+', '-', '@':
		return "'" + v
	}
	return v
}

// isPlainNumber accepts -?digits[.digits] without leading zeros, so phone
// numbers and codes keep their text form.
func isPlainNumber(v string) bool {
	v = strings.TrimPrefix(v, "-")
	intPart, frac, hasFrac := strings.Cut(v, ".")
	if intPart == "" || (len(intPart) > 1 && intPart[0] == '0') {
		return false
	}
	if hasFrac && frac == "" {
		return false
	}
	for _, r := range intPart + frac {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// columnName converts a 1-based column index to its A1 letters.
func columnName(n int) string {
	if n < 1 {
		n = 1
	}
	name := ""
	for n > 0 {
		n--
		name = string(rune('A'+n%26)) + name
		n /= 26
	}
	return name
}

func a1Range(sheet, cells string) string {
	return "'" + strings.ReplaceAll(sheet, "'", "''") + "'!" + cells
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
