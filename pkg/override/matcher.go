package override

import (
	"slices"
	"time"

	"github.com/messbook/messbook/pkg/meal"
)

// Matches reports whether the rule applies to the given date, member and meal
// category. Expiry is checked against now (the wall clock), not against the
// queried date: querying next week's status through an expired rule yields no
// match even though the rule was alive on that date.
func (r Rule) Matches(date meal.Date, userID int, category meal.Category, now time.Time) bool {
	if !r.Active {
		return false
	}
	if r.ExpiresAt != nil && !now.Before(*r.ExpiresAt) {
		return false
	}
	if !r.Category.Covers(category) {
		return false
	}
	switch r.Scope {
	case ScopeGlobal, ScopeAllUsers:
	case ScopeUser:
		if r.TargetUserID == nil || *r.TargetUserID != userID {
			return false
		}
	default:
		return false
	}
	return r.DateSpec.matches(date)
}

func (ds DateSpec) matches(date meal.Date) bool {
	switch ds.Kind {
	case DateSingle:
		return ds.Date != nil && ds.Date.Equal(date)
	case DateRange:
		if ds.StartDate == nil || ds.EndDate == nil {
			return false
		}
		return !date.Before(*ds.StartDate) && !date.After(*ds.EndDate)
	case DateRecurring:
		switch ds.Pattern {
		case PatternWeekly:
			return slices.Contains(ds.RecurrenceDays, int(date.Weekday()))
		case PatternMonthly:
			return slices.Contains(ds.RecurrenceDays, date.Day())
		}
	}
	return false
}

// MatchingRules filters rules down to the ones applying to the given query.
// Pure filter, the input order is preserved.
func MatchingRules(rules []Rule, date meal.Date, userID int, category meal.Category, now time.Time) []Rule {
	matched := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r.Matches(date, userID, category, now) {
			matched = append(matched, r)
		}
	}
	return matched
}
