package calendar

import (
	"time"

	"github.com/messbook/messbook/pkg/holiday"
	"github.com/messbook/messbook/pkg/meal"
)

// Policy holds the weekend and holiday configuration that decides the default
// on/off state of a date. It is a single mess-wide record, maintained by
// admins and read by every status resolution.
type Policy struct {
	FridayOff       bool
	SaturdayOff     bool
	OddSaturdayOff  bool
	EvenSaturdayOff bool

	GovernmentHolidayOff bool
	ReligiousHolidayOff  bool
	OptionalHolidayOff   bool

	UpdatedBy int
	UpdatedAt time.Time
}

// DefaultPolicy is the configuration applied before an admin saves one:
// Fridays and government holidays off, everything else on.
func DefaultPolicy() Policy {
	return Policy{
		FridayOff:            true,
		GovernmentHolidayOff: true,
	}
}

// DayStatus is the outcome of evaluating the default policy for one date.
type DayStatus struct {
	IsDefaultOff bool
	IsHoliday    bool
	HolidayName  string
}

// Evaluate computes the default on/off state of a date from the weekend
// configuration and an optional holiday entry for that date. Pure function;
// the caller supplies the holiday lookup result.
//
// Saturdays count by occurrence within the month: the 1st, 3rd, and 5th are
// "odd" Saturdays, the 2nd and 4th "even".
func Evaluate(date meal.Date, policy Policy, h *holiday.Holiday) DayStatus {
	status := DayStatus{}

	switch date.Weekday() {
	case time.Friday:
		if policy.FridayOff {
			status.IsDefaultOff = true
		}
	case time.Saturday:
		if policy.SaturdayOff {
			status.IsDefaultOff = true
		} else {
			ordinal := date.WeekdayOrdinal()
			odd := ordinal%2 == 1
			if odd && policy.OddSaturdayOff {
				status.IsDefaultOff = true
			}
			if !odd && policy.EvenSaturdayOff {
				status.IsDefaultOff = true
			}
		}
	}

	if h != nil && h.Active {
		status.IsHoliday = true
		status.HolidayName = h.Name
		if holidayClassOff(policy, h.Classification) {
			status.IsDefaultOff = true
		}
	}

	return status
}

func holidayClassOff(policy Policy, class holiday.Classification) bool {
	switch class {
	case holiday.Government:
		return policy.GovernmentHolidayOff
	case holiday.Religious:
		return policy.ReligiousHolidayOff
	case holiday.Optional:
		return policy.OptionalHolidayOff
	}
	return false
}
