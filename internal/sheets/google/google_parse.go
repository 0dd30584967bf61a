package google

import (
	"fmt"
	"strings"

	"ledger/internal/core"
	ports "ledger/internal/sheets"
)

// Column order of a mirror row.
var header = []string{"Transaction", "Date", "User", "Source", "Description", "Amount", "Currency", "Auto"}

func formatRow(r ports.Row) []any {
	auto := "no"
	if r.AutoAdded {
		auto = "yes"
	}
	return []any{
		r.TransactionID,
		r.Date.String(),
		r.UserID,
		r.SourceID,
		r.Description,
		r.Amount.String(),
		r.Currency,
		auto,
	}
}

// parseRow is the inverse of formatRow. Amounts typed by hand with a
// decimal comma are accepted.
func parseRow(values []any) (ports.Row, error) {
	cols := toStrings(values)
	if len(cols) < 6 {
		return ports.Row{}, fmt.Errorf("expected at least 6 columns, got %d", len(cols))
	}
	if strings.EqualFold(cols[0], header[0]) {
		return ports.Row{}, fmt.Errorf("header row")
	}
	day, err := core.ParseDate(cols[1])
	if err != nil {
		return ports.Row{}, err
	}
	amount, err := core.ParseAmount(cols[5])
	if err != nil {
		return ports.Row{}, err
	}
	return ports.Row{
		TransactionID: cols[0],
		Date:          day,
		UserID:        cols[2],
		SourceID:      cols[3],
		Description:   cols[4],
		Amount:        amount,
		Currency:      safeGet(cols, 6),
		AutoAdded:     strings.EqualFold(safeGet(cols, 7), "yes"),
	}, nil
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}
