package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"ledger/internal/core"
)

// HeaderUserID selects the ledger a request operates on. Authentication
// happens in front of this service.
const HeaderUserID = "X-User-ID"

const maxBodyBytes = 1 << 20

var validUserID = regexp.MustCompile(`^[A-Za-z0-9._@:-]{1,128}$`)

func userID(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if id == "" {
		return "", badRequest("missing " + HeaderUserID + " header")
	}
	if !validUserID.MatchString(id) {
		return "", badRequest("malformed " + HeaderUserID + " header")
	}
	return id, nil
}

// decodeJSON reads exactly one JSON object into dst, rejecting unknown
// fields and oversized bodies.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return badRequest("request body is empty")
		case errors.As(err, &maxErr):
			return badRequest("request body too large")
		default:
			return badRequest("malformed JSON: " + err.Error())
		}
	}
	if dec.More() {
		return badRequest("request body must contain a single JSON object")
	}
	return nil
}

// sanitizeInput trims and drops control characters other than tab and
// newlines.
func sanitizeInput(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s))
}

// dateParam parses a YYYY-MM-DD query parameter. An absent parameter
// yields the zero Date.
func dateParam(r *http.Request, name string) (core.Date, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return core.Date{}, nil
	}
	d, err := core.ParseDate(v)
	if err != nil {
		return core.Date{}, badRequest(fmt.Sprintf("invalid %s: expected YYYY-MM-DD", name))
	}
	return d, nil
}

// rangeParams reads start and end. When required, both must be present.
func rangeParams(r *http.Request, required bool) (core.DateRange, error) {
	start, err := dateParam(r, "start")
	if err != nil {
		return core.DateRange{}, err
	}
	end, err := dateParam(r, "end")
	if err != nil {
		return core.DateRange{}, err
	}
	if required && (start.IsZero() || end.IsZero()) {
		return core.DateRange{}, badRequest("start and end are required")
	}
	rng := core.DateRange{Start: start, End: end}
	if err := rng.Validate(); err != nil {
		return core.DateRange{}, err
	}
	return rng, nil
}

func yearMonthParams(r *http.Request) (year, month int, err error) {
	q := r.URL.Query()
	year, err = strconv.Atoi(strings.TrimSpace(q.Get("year")))
	if err != nil || year < 1 || year > 9999 {
		return 0, 0, badRequest("invalid year")
	}
	month, err = strconv.Atoi(strings.TrimSpace(q.Get("month")))
	if err != nil {
		return 0, 0, badRequest("invalid month")
	}
	return year, month, nil
}
