package override

import (
	"errors"
	"fmt"
	"time"

	"github.com/messbook/messbook/pkg/meal"
	"github.com/messbook/messbook/pkg/user"
)

var (
	ErrInvalidRule      = errors.New("invalid override rule")
	ErrPermissionDenied = errors.New("actor is not allowed to perform this override operation")
)

type Scope string

const (
	ScopeUser     Scope = "user"
	ScopeAllUsers Scope = "allUsers"
	ScopeGlobal   Scope = "global"
)

func (s Scope) Valid() bool {
	switch s {
	case ScopeUser, ScopeAllUsers, ScopeGlobal:
		return true
	}
	return false
}

type Action string

const (
	ForceOn  Action = "force_on"
	ForceOff Action = "force_off"
)

func (a Action) Valid() bool {
	return a == ForceOn || a == ForceOff
}

type DateSpecKind string

const (
	DateSingle    DateSpecKind = "single"
	DateRange     DateSpecKind = "range"
	DateRecurring DateSpecKind = "recurring"
)

type RecurrencePattern string

const (
	PatternWeekly  RecurrencePattern = "weekly"
	PatternMonthly RecurrencePattern = "monthly"
)

// DateSpec describes which dates a rule applies to. Exactly the fields for its
// Kind are set: Date for single, StartDate/EndDate for range, Pattern and
// RecurrenceDays for recurring.
type DateSpec struct {
	Kind      DateSpecKind
	Date      *meal.Date
	StartDate *meal.Date
	EndDate   *meal.Date
	Pattern   RecurrencePattern
	// RecurrenceDays holds weekdays (0=Sunday..6=Saturday) for a weekly
	// pattern, or days of month (1..31) for a monthly pattern.
	RecurrenceDays []int
}

// Rule forces meals on or off for the dates its DateSpec selects, for the
// members its Scope selects. Rules never auto-expire; ExpiresAt is checked at
// evaluation time against the wall clock.
type Rule struct {
	ID           string
	Scope        Scope
	TargetUserID *int
	DateSpec     DateSpec
	Category     meal.RuleCategory
	Action       Action
	// Priority is an explicit rank overriding the derived scope/role ranking.
	// Rules with a priority always outrank rules without one.
	Priority    *int
	Active      bool
	ExpiresAt   *time.Time
	CreatedBy   int
	CreatorRole user.Role
	Reason      string
	CreatedAt   time.Time
}

// Validate checks the rule spec for structural problems. All returned errors
// wrap ErrInvalidRule.
func (r Rule) Validate() error {
	if !r.Scope.Valid() {
		return fmt.Errorf("%w: unknown scope %q", ErrInvalidRule, r.Scope)
	}
	if r.Scope == ScopeUser && r.TargetUserID == nil {
		return fmt.Errorf("%w: user scope requires a target user", ErrInvalidRule)
	}
	if r.Scope != ScopeUser && r.TargetUserID != nil {
		return fmt.Errorf("%w: target user is only allowed with user scope", ErrInvalidRule)
	}
	if !r.Category.Valid() {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidRule, r.Category)
	}
	if !r.Action.Valid() {
		return fmt.Errorf("%w: unknown action %q", ErrInvalidRule, r.Action)
	}
	return r.DateSpec.validate()
}

func (ds DateSpec) validate() error {
	switch ds.Kind {
	case DateSingle:
		if ds.Date == nil {
			return fmt.Errorf("%w: single date spec requires a date", ErrInvalidRule)
		}
	case DateRange:
		if ds.StartDate == nil {
			return fmt.Errorf("%w: range date spec requires a start date", ErrInvalidRule)
		}
		if ds.EndDate == nil {
			return fmt.Errorf("%w: range date spec requires an end date", ErrInvalidRule)
		}
		if ds.EndDate.Before(*ds.StartDate) {
			return fmt.Errorf("%w: range end date is before its start date", ErrInvalidRule)
		}
	case DateRecurring:
		if ds.Pattern != PatternWeekly && ds.Pattern != PatternMonthly {
			return fmt.Errorf("%w: recurring date spec requires a weekly or monthly pattern", ErrInvalidRule)
		}
		if len(ds.RecurrenceDays) == 0 {
			return fmt.Errorf("%w: recurring date spec requires at least one recurrence day", ErrInvalidRule)
		}
		for _, day := range ds.RecurrenceDays {
			if ds.Pattern == PatternWeekly && (day < 0 || day > 6) {
				return fmt.Errorf("%w: weekly recurrence day %d is out of range 0..6", ErrInvalidRule, day)
			}
			if ds.Pattern == PatternMonthly && (day < 1 || day > 31) {
				return fmt.Errorf("%w: monthly recurrence day %d is out of range 1..31", ErrInvalidRule, day)
			}
		}
	default:
		return fmt.Errorf("%w: unknown date spec kind %q", ErrInvalidRule, ds.Kind)
	}
	return nil
}
