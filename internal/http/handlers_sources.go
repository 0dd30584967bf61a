package http

import (
	"net/http"

	"ledger/internal/core"
)

// Occurrence listing steps day by day, so the window is bounded.
const maxOccurrenceWindowDays = 5 * 366

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	svc, err := s.service(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sources, err := svc.ListSources(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]sourceResponse, len(sources))
	for i, src := range sources {
		out[i] = newSourceResponse(src)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateSource(w http.ResponseWriter, r *http.Request) {
	svc, err := s.service(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req sourceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	src, err := req.toSource()
	if err != nil {
		writeError(w, r, err)
		return
	}
	saved, err := svc.CreateSource(r.Context(), src)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/sources/"+saved.ID)
	writeJSON(w, http.StatusCreated, newSourceResponse(saved))
}

func (s *Server) handleGetSource(w http.ResponseWriter, r *http.Request) {
	svc, err := s.service(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	src, err := svc.GetSource(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSourceResponse(src))
}

// handleUpdateSource replaces the definition; postings already made keep
// their amounts and dates.
func (s *Server) handleUpdateSource(w http.ResponseWriter, r *http.Request) {
	svc, err := s.service(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req sourceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	src, err := req.toSource()
	if err != nil {
		writeError(w, r, err)
		return
	}
	src.ID = r.PathValue("id")
	saved, err := svc.UpdateSource(r.Context(), src)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSourceResponse(saved))
}

func (s *Server) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	svc, err := s.service(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := svc.DeleteSource(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSourceOccurrences(w http.ResponseWriter, r *http.Request) {
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
	dates, err := svc.SourceOccurrences(r.Context(), r.PathValue("id"), rng.Start, rng.End)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = d.String()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"income_source_id": r.PathValue("id"),
		"start":            rng.Start.String(),
		"end":              rng.End.String(),
		"dates":            out,
	})
}
