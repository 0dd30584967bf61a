package http

import (
	"time"

	"ledger/internal/core"
	"ledger/internal/services"
)

// Amounts travel as decimal strings, dates as YYYY-MM-DD.

type sourceRequest struct {
	Name        string `json:"name"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Frequency   string `json:"frequency"`
	StartDate   string `json:"start_date"`
	DayOfWeek   *int   `json:"day_of_week,omitempty"`
	DayOfMonth  *int   `json:"day_of_month,omitempty"`
	CustomDates []int  `json:"custom_dates,omitempty"`
	AutoAdd     *bool  `json:"auto_add,omitempty"`
	IsActive    *bool  `json:"is_active,omitempty"`
}

// toSource converts the request. auto_add defaults to false and is_active
// to true.
func (req sourceRequest) toSource() (core.IncomeSource, error) {
	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		return core.IncomeSource{}, err
	}
	freq, err := core.ParseFrequency(req.Frequency)
	if err != nil {
		return core.IncomeSource{}, err
	}
	start, err := core.ParseDate(req.StartDate)
	if err != nil {
		return core.IncomeSource{}, &core.ValidationError{Field: "start_date", Reason: "expected YYYY-MM-DD"}
	}

	src := core.IncomeSource{
		Name:       sanitizeInput(req.Name),
		Amount:     amount,
		Currency:   sanitizeInput(req.Currency),
		Frequency:  freq,
		StartDate:  start,
		DayOfMonth: req.DayOfMonth,
		CustomDays: append([]int(nil), req.CustomDates...),
		IsActive:   true,
	}
	if req.DayOfWeek != nil {
		wd := time.Weekday(*req.DayOfWeek)
		src.DayOfWeek = &wd
	}
	if req.AutoAdd != nil {
		src.AutoAdd = *req.AutoAdd
	}
	if req.IsActive != nil {
		src.IsActive = *req.IsActive
	}
	return src, nil
}

type sourceResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Amount      string    `json:"amount"`
	AmountCents int64     `json:"amount_cents"`
	Currency    string    `json:"currency,omitempty"`
	Frequency   string    `json:"frequency"`
	StartDate   string    `json:"start_date"`
	DayOfWeek   *int      `json:"day_of_week,omitempty"`
	DayOfMonth  *int      `json:"day_of_month,omitempty"`
	CustomDates []int     `json:"custom_dates,omitempty"`
	AutoAdd     bool      `json:"auto_add"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func newSourceResponse(s core.IncomeSource) sourceResponse {
	resp := sourceResponse{
		ID:          s.ID,
		Name:        s.Name,
		Amount:      s.Amount.String(),
		AmountCents: s.Amount.Cents,
		Currency:    s.Currency,
		Frequency:   string(s.Frequency),
		StartDate:   s.StartDate.String(),
		DayOfMonth:  s.DayOfMonth,
		CustomDates: s.CustomDays,
		AutoAdd:     s.AutoAdd,
		IsActive:    s.IsActive,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
	if s.DayOfWeek != nil {
		wd := int(*s.DayOfWeek)
		resp.DayOfWeek = &wd
	}
	return resp
}

type incomeRequest struct {
	SourceID    string `json:"income_source_id,omitempty"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency,omitempty"`
	Date        string `json:"date"`
	Description string `json:"description,omitempty"`
}

func (req incomeRequest) toTransaction() (core.IncomeTransaction, error) {
	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		return core.IncomeTransaction{}, err
	}
	date, err := core.ParseDate(req.Date)
	if err != nil {
		return core.IncomeTransaction{}, &core.ValidationError{Field: "date", Reason: "expected YYYY-MM-DD"}
	}
	return core.IncomeTransaction{
		SourceID:    sanitizeInput(req.SourceID),
		Amount:      amount,
		Currency:    sanitizeInput(req.Currency),
		Date:        date,
		Description: sanitizeInput(req.Description),
	}, nil
}

type incomeResponse struct {
	ID          string    `json:"id"`
	SourceID    string    `json:"income_source_id,omitempty"`
	Amount      string    `json:"amount"`
	AmountCents int64     `json:"amount_cents"`
	Currency    string    `json:"currency,omitempty"`
	Date        string    `json:"date"`
	Description string    `json:"description,omitempty"`
	AutoAdded   bool      `json:"auto_added"`
	CreatedAt   time.Time `json:"created_at"`
}

func newIncomeResponse(tx core.IncomeTransaction) incomeResponse {
	return incomeResponse{
		ID:          tx.ID,
		SourceID:    tx.SourceID,
		Amount:      tx.Amount.String(),
		AmountCents: tx.Amount.Cents,
		Currency:    tx.Currency,
		Date:        tx.Date.String(),
		Description: tx.Description,
		AutoAdded:   tx.AutoAdded,
		CreatedAt:   tx.CreatedAt,
	}
}

func newIncomeResponses(txs []core.IncomeTransaction) []incomeResponse {
	out := make([]incomeResponse, len(txs))
	for i, tx := range txs {
		out[i] = newIncomeResponse(tx)
	}
	return out
}

type expenseRequest struct {
	Amount      string `json:"amount"`
	Currency    string `json:"currency,omitempty"`
	Date        string `json:"date"`
	CategoryID  string `json:"category_id,omitempty"`
	Description string `json:"description,omitempty"`
}

func (req expenseRequest) toExpense() (core.Expense, error) {
	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		return core.Expense{}, err
	}
	date, err := core.ParseDate(req.Date)
	if err != nil {
		return core.Expense{}, &core.ValidationError{Field: "date", Reason: "expected YYYY-MM-DD"}
	}
	return core.Expense{
		Amount:      amount,
		Currency:    sanitizeInput(req.Currency),
		Date:        date,
		CategoryID:  sanitizeInput(req.CategoryID),
		Description: sanitizeInput(req.Description),
	}, nil
}

type expenseResponse struct {
	ID          string    `json:"id"`
	Amount      string    `json:"amount"`
	AmountCents int64     `json:"amount_cents"`
	Currency    string    `json:"currency,omitempty"`
	Date        string    `json:"date"`
	CategoryID  string    `json:"category_id,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func newExpenseResponse(e core.Expense) expenseResponse {
	return expenseResponse{
		ID:          e.ID,
		Amount:      e.Amount.String(),
		AmountCents: e.Amount.Cents,
		Currency:    e.Currency,
		Date:        e.Date.String(),
		CategoryID:  e.CategoryID,
		Description: e.Description,
		CreatedAt:   e.CreatedAt,
	}
}

type amountResponse struct {
	Amount      string `json:"amount"`
	AmountCents int64  `json:"amount_cents"`
}

func newAmount(m core.Money) amountResponse {
	return amountResponse{Amount: m.String(), AmountCents: m.Cents}
}

type amountRequest struct {
	Amount string `json:"amount"`
}

type totalsResponse struct {
	Start    string         `json:"start,omitempty"`
	End      string         `json:"end,omitempty"`
	Income   amountResponse `json:"income"`
	Expenses amountResponse `json:"expenses"`
	Net      amountResponse `json:"net"`
}

func newTotalsResponse(t core.PeriodTotals) (totalsResponse, error) {
	net, err := t.Net()
	if err != nil {
		return totalsResponse{}, err
	}
	return totalsResponse{
		Start:    t.Range.Start.String(),
		End:      t.Range.End.String(),
		Income:   newAmount(t.Income),
		Expenses: newAmount(t.Expenses),
		Net:      newAmount(net),
	}, nil
}

type occurrenceResponse struct {
	SourceID string `json:"income_source_id"`
	Name     string `json:"name"`
	Date     string `json:"date"`
	Amount   string `json:"amount"`
	Currency string `json:"currency,omitempty"`
}

// projectionResponse is labelled so that clients never mistake it for
// realized totals.
type projectionResponse struct {
	Projected   bool                 `json:"projected"`
	Start       string               `json:"start"`
	End         string               `json:"end"`
	Total       amountResponse       `json:"total"`
	Occurrences []occurrenceResponse `json:"occurrences"`
}

func newProjectionResponse(p core.Projection) projectionResponse {
	resp := projectionResponse{
		Projected:   true,
		Start:       p.Range.Start.String(),
		End:         p.Range.End.String(),
		Total:       newAmount(p.Total),
		Occurrences: make([]occurrenceResponse, len(p.Occurrences)),
	}
	for i, o := range p.Occurrences {
		resp.Occurrences[i] = occurrenceResponse{
			SourceID: o.SourceID,
			Name:     o.Name,
			Date:     o.Date.String(),
			Amount:   o.Amount.String(),
			Currency: o.Currency,
		}
	}
	return resp
}

type failureResponse struct {
	SourceID string `json:"income_source_id"`
	Name     string `json:"name"`
	Error    string `json:"error"`
}

type runResponse struct {
	Date     string            `json:"date"`
	Checked  int               `json:"checked"`
	Created  []incomeResponse  `json:"created"`
	Failures []failureResponse `json:"failures"`
}

func newRunResponse(res services.RunResult) runResponse {
	resp := runResponse{
		Date:     res.Day.String(),
		Checked:  res.Checked,
		Created:  newIncomeResponses(res.Created),
		Failures: make([]failureResponse, len(res.Failures)),
	}
	for i, f := range res.Failures {
		resp.Failures[i] = failureResponse{SourceID: f.SourceID, Name: f.SourceName, Error: f.Err.Error()}
	}
	return resp
}
