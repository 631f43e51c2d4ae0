package daily_cost

import (
	"errors"
	"fmt"
	"time"

	"github.com/messbook/messbook/pkg/meal"
	"github.com/shopspring/decimal"
)

var (
	ErrDuplicateEvent   = errors.New("a cost event already exists for this date")
	ErrEventNotFound    = errors.New("cost event not found")
	ErrInvalidEvent     = errors.New("invalid cost event")
	ErrAlreadyFinalized = errors.New("cost event is already finalized")
	ErrNotFinalized     = errors.New("cost event is not finalized")
	ErrAlreadyReversed  = errors.New("cost event is already reversed")
	ErrEventReversed    = errors.New("cost event has been reversed")
	ErrPermissionDenied = errors.New("actor is not allowed to manage cost events")
)

// CostEvent is one day's meal charge for a set of participants. At most one
// event exists per date. The event exclusively owns its ordered participant
// list; participants are only changed through the event.
type CostEvent struct {
	ID            string
	Date          meal.Date
	Category      meal.Category
	TotalCost     decimal.Decimal
	Participants  []Participant
	IsFinalized   bool
	FinalizedAt   *time.Time
	IsReversed    bool
	ReversedAt    *time.Time
	ReverseReason string
	CreatedBy     int
	CreatedAt     time.Time
}

// Draft reports whether the event's cost breakdown may still be edited.
func (e CostEvent) Draft() bool {
	return !e.IsFinalized && !e.IsReversed
}

// Participant is one member's share of a cost event. Deducted reports whether
// the share is currently charged to the member's balance: finalize sets it and
// a reverse's refund clears it again.
type Participant struct {
	UserID     int
	Cost       decimal.Decimal
	Deducted   bool
	DeductedAt *time.Time
}

// CostSpec describes how a day's cost is split across participants.
// Exactly one of EqualSplit or Itemized must be set.
type CostSpec struct {
	EqualSplit *EqualSplit
	Itemized   []ItemizedCost
}

// EqualSplit divides TotalCost evenly: every participant is charged the total
// divided by the head count, rounded to two decimal places. The rounded shares
// may reconcile to the total only within one minimal currency unit; no
// remainder correction is applied.
type EqualSplit struct {
	TotalCost      decimal.Decimal
	ParticipantIDs []int
}

type ItemizedCost struct {
	UserID int
	Cost   decimal.Decimal
}

// buildParticipants turns a cost spec into the participant list and the
// event's total cost. For an equal split the total is the requested one, for
// an itemized spec it is the sum of the given costs.
func buildParticipants(spec CostSpec) ([]Participant, decimal.Decimal, error) {
	if (spec.EqualSplit == nil) == (len(spec.Itemized) == 0) {
		return nil, decimal.Zero, fmt.Errorf("%w: exactly one of equalSplit or itemized must be given", ErrInvalidEvent)
	}

	if spec.EqualSplit != nil {
		split := spec.EqualSplit
		if len(split.ParticipantIDs) == 0 {
			return nil, decimal.Zero, fmt.Errorf("%w: an equal split needs at least one participant", ErrInvalidEvent)
		}
		if !split.TotalCost.IsPositive() {
			return nil, decimal.Zero, fmt.Errorf("%w: total cost must be positive", ErrInvalidEvent)
		}
		if err := rejectDuplicateUsers(split.ParticipantIDs); err != nil {
			return nil, decimal.Zero, err
		}
		perHead := split.TotalCost.DivRound(decimal.NewFromInt(int64(len(split.ParticipantIDs))), 2)
		participants := make([]Participant, 0, len(split.ParticipantIDs))
		for _, userID := range split.ParticipantIDs {
			participants = append(participants, Participant{UserID: userID, Cost: perHead})
		}
		return participants, split.TotalCost, nil
	}

	userIDs := make([]int, 0, len(spec.Itemized))
	participants := make([]Participant, 0, len(spec.Itemized))
	total := decimal.Zero
	for _, item := range spec.Itemized {
		if !item.Cost.IsPositive() {
			return nil, decimal.Zero, fmt.Errorf("%w: cost for user %d must be positive", ErrInvalidEvent, item.UserID)
		}
		userIDs = append(userIDs, item.UserID)
		participants = append(participants, Participant{UserID: item.UserID, Cost: item.Cost})
		total = total.Add(item.Cost)
	}
	if err := rejectDuplicateUsers(userIDs); err != nil {
		return nil, decimal.Zero, err
	}
	return participants, total, nil
}

func rejectDuplicateUsers(userIDs []int) error {
	seen := make(map[int]bool, len(userIDs))
	for _, userID := range userIDs {
		if seen[userID] {
			return fmt.Errorf("%w: user %d is listed twice", ErrInvalidEvent, userID)
		}
		seen[userID] = true
	}
	return nil
}
