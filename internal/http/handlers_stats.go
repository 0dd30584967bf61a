package http

import (
	"net/http"

	"ledger/internal/core"
)

// handleRunScheduler runs the daily check for the caller. Without a date it
// uses today in the server's location. Per-source failures are reported in
// the body with a 200; only an unreadable source list fails the request.
func (s *Server) handleRunScheduler(w http.ResponseWriter, r *http.Request) {
	svc, err := s.service(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	day, err := dateParam(r, "date")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if day.IsZero() {
		day = s.today()
	}
	res, err := svc.RunDailyCheck(r.Context(), day)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newRunResponse(res))
}

func (s *Server) handleTotals(w http.ResponseWriter, r *http.Request) {
	svc, err := s.service(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rng, err := rangeParams(r, true)
	if err != nil {
		writeError(w, r, err)
		return
	}
	totals, err := svc.TotalsForPeriod(r.Context(), rng.Start, rng.End)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.writeTotals(w, r, totals)
}

func (s *Server) handleMonthTotals(w http.ResponseWriter, r *http.Request) {
	svc, err := s.service(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	year, month, err := yearMonthParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	totals, err := svc.MonthTotals(r.Context(), year, month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.writeTotals(w, r, totals)
}

func (s *Server) writeTotals(w http.ResponseWriter, r *http.Request, totals core.PeriodTotals) {
	resp, err := newTotalsResponse(totals)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleProjection(w http.ResponseWriter, r *http.Request) {
	svc, err := s.service(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rng, err := rangeParams(r, true)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rng.End.DaysSince(rng.Start) > maxOccurrenceWindowDays {
		writeError(w, r, &core.ValidationError{Field: "end", Reason: "window longer than five years"})
		return
	}
	p, err := svc.Projection(r.Context(), rng.Start, rng.End)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newProjectionResponse(p))
}

type balanceResponse struct {
	Balance         amountResponse `json:"balance"`
	StartingBalance amountResponse `json:"starting_balance"`
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	svc, err := s.service(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	balance, err := svc.CurrentBalance(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	starting, err := svc.StartingBalance(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Balance: newAmount(balance), StartingBalance: newAmount(starting)})
}

// handleCorrectBalance sets the current balance to the requested amount by
// moving the starting balance. No ledger row is written.
func (s *Server) handleCorrectBalance(w http.ResponseWriter, r *http.Request) {
	svc, err := s.service(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	target, err := decodeAmount(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	starting, err := svc.CorrectBalanceTo(r.Context(), target)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Balance: newAmount(target), StartingBalance: newAmount(starting)})
}

func (s *Server) handleSetStartingBalance(w http.ResponseWriter, r *http.Request) {
	svc, err := s.service(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	starting, err := decodeAmount(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := svc.SetStartingBalance(r.Context(), starting); err != nil {
		writeError(w, r, err)
		return
	}
	balance, err := svc.CurrentBalance(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Balance: newAmount(balance), StartingBalance: newAmount(starting)})
}

// decodeAmount reads {"amount": "..."}. Balances may be negative.
func decodeAmount(w http.ResponseWriter, r *http.Request) (core.Money, error) {
	var req amountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return core.Money{}, err
	}
	return core.ParseAmount(req.Amount)
}
