package http

import (
	"net/http"
	"strings"
)

func (s *Server) handleListIncomes(w http.ResponseWriter, r *http.Request) {
	svc, err := s.service(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rng, err := rangeParams(r, false)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sourceID := strings.TrimSpace(r.URL.Query().Get("source_id"))
	txs, err := svc.ListIncomes(r.Context(), rng, sourceID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newIncomeResponses(txs))
}

func (s *Server) handleCreateIncome(w http.ResponseWriter, r *http.Request) {
	svc, err := s.service(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req incomeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	tx, err := req.toTransaction()
	if err != nil {
		writeError(w, r, err)
		return
	}
	saved, err := svc.AddManualIncome(r.Context(), tx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newIncomeResponse(saved))
}

func (s *Server) handleDeleteIncome(w http.ResponseWriter, r *http.Request) {
	svc, err := s.service(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := svc.DeleteIncome(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	svc, err := s.service(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rng, err := rangeParams(r, false)
	if err != nil {
		writeError(w, r, err)
		return
	}
	expenses, err := svc.ListExpenses(r.Context(), rng)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]expenseResponse, len(expenses))
	for i, e := range expenses {
		out[i] = newExpenseResponse(e)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	svc, err := s.service(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req expenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	e, err := req.toExpense()
	if err != nil {
		writeError(w, r, err)
		return
	}
	saved, err := svc.AddExpense(r.Context(), e)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newExpenseResponse(saved))
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	svc, err := s.service(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := svc.DeleteExpense(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
