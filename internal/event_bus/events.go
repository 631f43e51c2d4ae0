package event_bus

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types published on the bus.
const (
	CalendarPolicyUpdatedEvent EventType = "calendar.policy.updated"
	TransactionAppliedEvent    EventType = "ledger.transaction.applied"
	DailyCostFinalizedEvent    EventType = "daily_cost.finalized"
	DailyCostReversedEvent     EventType = "daily_cost.reversed"
)

// CalendarPolicyUpdated announces that the weekend/holiday policy changed.
// Status resolution caches a policy snapshot and refreshes on this event.
type CalendarPolicyUpdated struct {
	UpdatedBy int
}

// TransactionApplied describes one committed ledger mutation.
type TransactionApplied struct {
	TransactionID string
	UserID        int
	Category      string
	Kind          string
	Amount        decimal.Decimal
	NewBalance    decimal.Decimal
	AppliedAt     time.Time
}

// DailyCostFinalized reports the outcome of a finalize run, including how
// many participants were skipped because their balance is frozen.
type DailyCostFinalized struct {
	EventID      string
	Date         string
	Deducted     int
	Skipped      int
	TotalCharged decimal.Decimal
}

// DailyCostReversed reports a reversed cost event and the refunded total.
type DailyCostReversed struct {
	EventID  string
	Date     string
	Refunded int
	Reason   string
}
