package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"ledger/internal/core"
	ports "ledger/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// valuesAPI is the slice of the Sheets values service the client uses.
type valuesAPI interface {
	Get(ctx context.Context, spreadsheetID, rng string) ([][]any, error)
	Append(ctx context.Context, spreadsheetID, rng string, row []any) (updatedRange string, err error)
}

type Client struct {
	values        valuesAPI
	spreadsheetID string
	// Base sheet name without year (e.g. "Income"); the posting year is prefixed.
	sheetBase string

	mu sync.Mutex
	// known holds transaction ids already present, per sheet.
	known map[string]map[string]struct{}
}

var (
	_ ports.PostingWriter = (*Client)(nil)
	_ ports.PostingLister = (*Client)(nil)
)

// NewFromEnv creates a Sheets client using environment variables and a
// service account.
// Required: GOOGLE_SPREADSHEET_ID
// Optional: GOOGLE_SHEET_NAME (default "Income").
func NewFromEnv(ctx context.Context) (*Client, error) {
	return NewForSpreadsheet(ctx, os.Getenv("GOOGLE_SPREADSHEET_ID"), os.Getenv("GOOGLE_SHEET_NAME"))
}

// NewForSpreadsheet creates a client for an explicit spreadsheet. Credentials
// still come from the service account environment variables.
func NewForSpreadsheet(ctx context.Context, spreadsheetID, sheetBase string) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return New(serviceValues{svc: svc}, spreadsheetID, sheetBase), nil
}

func New(values valuesAPI, spreadsheetID, sheetBase string) *Client {
	sheetBase = strings.TrimSpace(sheetBase)
	if sheetBase == "" {
		sheetBase = "Income"
	}
	return &Client{
		values:        values,
		spreadsheetID: spreadsheetID,
		sheetBase:     sheetBase,
		known:         make(map[string]map[string]struct{}),
	}
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
// Uses GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	switch {
	case serviceAccountJSON != "":
		slog.InfoContext(ctx, "Using inline JSON credentials")
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", serviceAccountFile)
		var err error
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// serviceValues adapts *gsheet.Service to valuesAPI.
type serviceValues struct {
	svc *gsheet.Service
}

func (s serviceValues) Get(ctx context.Context, spreadsheetID, rng string) ([][]any, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (s serviceValues) Append(ctx context.Context, spreadsheetID, rng string, row []any) (string, error) {
	vr := &gsheet.ValueRange{Values: [][]any{row}}
	resp, err := s.svc.Spreadsheets.Values.Append(spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", err
	}
	if resp.Updates != nil {
		return resp.Updates.UpdatedRange, nil
	}
	return rng, nil
}

// AppendPosting writes the posting to "<year> <base>" unless a row with the
// same transaction id is already there.
func (c *Client) AppendPosting(ctx context.Context, userID string, tx core.IncomeTransaction) (string, error) {
	if err := tx.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}
	if c.values == nil {
		return "", errors.New("sheets service not initialized")
	}

	sheet := yearPrefixedName(c.sheetBase, tx.Date.Year())
	if err := c.loadKnown(ctx, sheet); err != nil {
		return "", err
	}
	c.mu.Lock()
	_, dup := c.known[sheet][tx.ID]
	c.mu.Unlock()
	if dup {
		slog.DebugContext(ctx, "Posting already mirrored", "transaction_id", tx.ID, "sheet", sheet)
		return "", nil
	}

	ref, err := c.values.Append(ctx, c.spreadsheetID, fmt.Sprintf("%s!A:H", sheet), formatRow(ports.RowFor(userID, tx)))
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", sheet, err)
	}

	c.mu.Lock()
	c.known[sheet][tx.ID] = struct{}{}
	c.mu.Unlock()
	return ref, nil
}

// loadKnown reads column A of the sheet once per process.
func (c *Client) loadKnown(ctx context.Context, sheet string) error {
	c.mu.Lock()
	_, ok := c.known[sheet]
	c.mu.Unlock()
	if ok {
		return nil
	}

	col, err := c.readCol(ctx, sheet, "A:A")
	if err != nil {
		return err
	}
	ids := make(map[string]struct{}, len(col))
	for _, id := range col {
		ids[id] = struct{}{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.known[sheet]; !ok {
		c.known[sheet] = ids
	}
	return nil
}

func (c *Client) readCol(ctx context.Context, sheetName, col string) ([]string, error) {
	rng := fmt.Sprintf("%s!%s", sheetName, col)
	values, err := c.values.Get(ctx, c.spreadsheetID, rng)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	seen := map[string]struct{}{}
	var out []string
	for _, row := range values {
		if len(row) == 0 {
			continue
		}
		v := strings.TrimSpace(fmt.Sprint(row[0]))
		if v == "" || strings.HasPrefix(v, "#") {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out, nil
}

// ListPostings reads back the mirror rows of one year. Header and
// unparseable rows are skipped.
func (c *Client) ListPostings(ctx context.Context, year int) ([]ports.Row, error) {
	if c.values == nil {
		return nil, errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!A:H", yearPrefixedName(c.sheetBase, year))
	values, err := c.values.Get(ctx, c.spreadsheetID, rng)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	var out []ports.Row
	for i, raw := range values {
		row, err := parseRow(raw)
		if err != nil {
			if i > 0 {
				slog.WarnContext(ctx, "Skipping malformed mirror row", "range", rng, "row", i+1, "error", err)
			}
			continue
		}
		out = append(out, row)
	}
	return out, nil
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
