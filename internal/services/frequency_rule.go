// Package services provides business logic and orchestration services.
//
// This file implements one rule type per frequency kind. FrequencyRule is
// sealed: a new kind needs a new rule type and a case in RuleFor, and the
// table test in frequency_rule_test.go fails until both exist.

package services

import (
	"fmt"
	"time"

	"ledger/internal/core"
)

// FrequencyRule decides whether a calendar day is an occurrence date.
// Implementations are pure and do not look at activation state.
type FrequencyRule interface {
	Matches(day core.Date) bool
	frequency() core.Frequency
}

// WeeklyRule matches one weekday.
type WeeklyRule struct {
	Weekday time.Weekday
}

func (r WeeklyRule) Matches(day core.Date) bool { return day.Weekday() == r.Weekday }
func (WeeklyRule) frequency() core.Frequency     { return core.Weekly }

// BiweeklyRule matches every 14th day counted from Anchor, the source's
// start date. Days before the anchor never match.
type BiweeklyRule struct {
	Anchor core.Date
}

func (r BiweeklyRule) Matches(day core.Date) bool {
	n := day.DaysSince(r.Anchor)
	return n >= 0 && n%14 == 0
}
func (BiweeklyRule) frequency() core.Frequency { return core.Biweekly }

// MonthlyRule matches one day of the month. Months shorter than Day have
// no occurrence; the day is not clamped to month end.
type MonthlyRule struct {
	Day int
}

func (r MonthlyRule) Matches(day core.Date) bool { return day.Day() == r.Day }
func (MonthlyRule) frequency() core.Frequency     { return core.Monthly }

// CustomRule matches any day of the month listed in Days.
type CustomRule struct {
	Days map[int]struct{}
}

func NewCustomRule(days []int) CustomRule {
	set := make(map[int]struct{}, len(days))
	for _, d := range days {
		set[d] = struct{}{}
	}
	return CustomRule{Days: set}
}

func (r CustomRule) Matches(day core.Date) bool {
	_, ok := r.Days[day.Day()]
	return ok
}
func (CustomRule) frequency() core.Frequency { return core.Custom }

// ManualRule never matches; manual sources only label manual entries.
type ManualRule struct{}

func (ManualRule) Matches(core.Date) bool     { return false }
func (ManualRule) frequency() core.Frequency { return core.Manual }

// RuleFor builds the rule for a validated source.
func RuleFor(s core.IncomeSource) (FrequencyRule, error) {
	switch s.Frequency {
	case core.Weekly:
		if s.DayOfWeek == nil {
			return nil, fmt.Errorf("weekly source %s has no day of week", s.ID)
		}
		return WeeklyRule{Weekday: *s.DayOfWeek}, nil
	case core.Biweekly:
		return BiweeklyRule{Anchor: s.StartDate}, nil
	case core.Monthly:
		if s.DayOfMonth == nil {
			return nil, fmt.Errorf("monthly source %s has no day of month", s.ID)
		}
		return MonthlyRule{Day: *s.DayOfMonth}, nil
	case core.Custom:
		return NewCustomRule(s.CustomDays), nil
	case core.Manual:
		return ManualRule{}, nil
	}
	return nil, fmt.Errorf("unknown frequency: %s", s.Frequency)
}

// Matches reports whether day is an occurrence date of s. A source whose
// rule cannot be built never matches; validation rejects such sources
// before they are stored.
func Matches(day core.Date, s core.IncomeSource) bool {
	rule, err := RuleFor(s)
	if err != nil {
		return false
	}
	return rule.Matches(day)
}
