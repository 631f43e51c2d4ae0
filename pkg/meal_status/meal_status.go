package meal_status

import (
	"errors"
	"time"

	"github.com/messbook/messbook/pkg/meal"
)

var (
	ErrInvalidRecord    = errors.New("invalid manual record")
	ErrInvalidRange     = errors.New("invalid date range")
	ErrPermissionDenied = errors.New("actor is not allowed to change this member's records")
)

// Source names which layer of the precedence chain decided a status.
type Source string

const (
	SourceManual   Source = "manual"
	SourceOverride Source = "override"
	SourceDefault  Source = "default"
)

// ManualRecord is a member's explicit per-day meal entry. It outranks every
// override rule and the default policy, unconditionally.
type ManualRecord struct {
	UserID   int
	Date     meal.Date
	Category meal.Category
	IsOn     bool
	// Count is the number of portions, at least 1 while the meal is on and
	// always 0 while it is off.
	Count     int
	Note      string
	UpdatedBy int
	UpdatedAt time.Time
}

// StatusDecision is the resolved billing state of one (date, member, category)
// triple together with the context that produced it.
type StatusDecision struct {
	Date          meal.Date
	UserID        int
	Category      meal.Category
	IsOn          bool
	Count         int
	Source        Source
	MatchedRuleID *string
	IsDefaultOff  bool
	IsHoliday     bool
	HolidayName   string
}
