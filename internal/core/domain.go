package core

import (
	"strings"
	"time"
)

const (
	Weekly   Frequency = "WEEKLY"
	Biweekly Frequency = "BIWEEKLY"
	Monthly  Frequency = "MONTHLY"
	Custom   Frequency = "CUSTOM"
	Manual   Frequency = "MANUAL"
)

const maxDescriptionLen = 200

type (
	Frequency string

	// IncomeSource is a recurring income definition. Exactly one of
	// DayOfWeek, DayOfMonth or CustomDays is populated, matching Frequency.
	IncomeSource struct {
		ID         string
		Name       string
		Amount     Money
		Currency   string // opaque, passed through to postings
		Frequency  Frequency
		StartDate  Date
		DayOfWeek  *time.Weekday
		DayOfMonth *int
		CustomDays []int
		AutoAdd    bool
		IsActive   bool
		CreatedAt  time.Time
		UpdatedAt  time.Time
	}

	// IncomeTransaction is an income-side ledger row. SourceID is empty for
	// one-off manual entries not tied to a recurring definition.
	IncomeTransaction struct {
		ID          string
		SourceID    string
		Amount      Money
		Currency    string
		Date        Date
		Description string
		AutoAdded   bool
		CreatedAt   time.Time
	}

	Expense struct {
		ID          string
		Amount      Money
		Currency    string
		Date        Date
		CategoryID  string
		Description string
		CreatedAt   time.Time
		UpdatedAt   time.Time
	}
)

// Frequencies lists every supported frequency kind.
func Frequencies() []Frequency {
	return []Frequency{Weekly, Biweekly, Monthly, Custom, Manual}
}

// IsValid reports whether f is a known frequency kind.
func (f Frequency) IsValid() bool {
	switch f {
	case Weekly, Biweekly, Monthly, Custom, Manual:
		return true
	default:
		return false
	}
}

// ParseFrequency accepts any letter case.
func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(strings.ToUpper(strings.TrimSpace(s)))
	if !f.IsValid() {
		return "", invalid("frequency", "unknown frequency %q", s)
	}
	return f, nil
}

// Validate checks the recurrence definition. It is called when a source is
// created or edited so that a malformed rule never reaches the scheduler.
func (s IncomeSource) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return invalid("name", "must not be empty")
	}
	if len(s.Name) > maxDescriptionLen {
		return invalid("name", "too long (max %d characters)", maxDescriptionLen)
	}
	if s.Amount.Cents < 0 {
		return invalid("amount", "must not be negative")
	}
	if err := s.StartDate.Validate(); err != nil {
		return invalid("start_date", "%v", err)
	}

	hasWeek := s.DayOfWeek != nil
	hasMonth := s.DayOfMonth != nil
	hasCustom := len(s.CustomDays) > 0

	switch s.Frequency {
	case Weekly:
		if !hasWeek {
			return invalid("day_of_week", "required for %s", s.Frequency)
		}
		if *s.DayOfWeek < time.Sunday || *s.DayOfWeek > time.Saturday {
			return invalid("day_of_week", "must be between 0 and 6")
		}
		if hasMonth || hasCustom {
			return invalid("frequency", "%s accepts only day_of_week", s.Frequency)
		}
	case Monthly:
		if !hasMonth {
			return invalid("day_of_month", "required for %s", s.Frequency)
		}
		if *s.DayOfMonth < 1 || *s.DayOfMonth > 31 {
			return invalid("day_of_month", "must be between 1 and 31")
		}
		if hasWeek || hasCustom {
			return invalid("frequency", "%s accepts only day_of_month", s.Frequency)
		}
	case Custom:
		if !hasCustom {
			return invalid("custom_dates", "required for %s", s.Frequency)
		}
		seen := make(map[int]struct{}, len(s.CustomDays))
		for _, d := range s.CustomDays {
			if d < 1 || d > 31 {
				return invalid("custom_dates", "day %d must be between 1 and 31", d)
			}
			if _, dup := seen[d]; dup {
				return invalid("custom_dates", "day %d listed twice", d)
			}
			seen[d] = struct{}{}
		}
		if hasWeek || hasMonth {
			return invalid("frequency", "%s accepts only custom_dates", s.Frequency)
		}
	case Biweekly, Manual:
		// Biweekly is anchored on StartDate, manual never recurs.
		if hasWeek || hasMonth || hasCustom {
			return invalid("frequency", "%s takes no day selector", s.Frequency)
		}
	default:
		return invalid("frequency", "unknown frequency %q", s.Frequency)
	}
	return nil
}

// Schedulable reports whether the scheduler should consider s on day.
func (s IncomeSource) Schedulable(day Date) bool {
	return s.AutoAdd && s.IsActive && s.Frequency != Manual && !day.Before(s.StartDate)
}

func (t IncomeTransaction) Validate() error {
	if err := t.Date.Validate(); err != nil {
		return invalid("date", "%v", err)
	}
	if t.Amount.Cents < 0 {
		return invalid("amount", "must not be negative")
	}
	if len(t.Description) > maxDescriptionLen {
		return invalid("description", "too long (max %d characters)", maxDescriptionLen)
	}
	if t.AutoAdded && t.SourceID == "" {
		return invalid("income_source_id", "required for automatic postings")
	}
	return nil
}

func (e Expense) Validate() error {
	if err := e.Date.Validate(); err != nil {
		return invalid("date", "%v", err)
	}
	if e.Amount.Cents < 0 {
		return invalid("amount", "must not be negative")
	}
	if len(e.Description) > maxDescriptionLen {
		return invalid("description", "too long (max %d characters)", maxDescriptionLen)
	}
	return nil
}
