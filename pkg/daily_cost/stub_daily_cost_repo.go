package daily_cost

import (
	"context"
	"fmt"
	"time"

	"github.com/messbook/messbook/pkg/meal"
)

// StubRepo is an in-memory Repo for tests. It returns copies, so callers
// never share participant slices with the stored state.
type StubRepo struct {
	events map[string]CostEvent
}

func NewStubRepo() *StubRepo {
	return &StubRepo{events: map[string]CostEvent{}}
}

func (s *StubRepo) WithTransaction(_ context.Context, fn func(repo Repo) error) error {
	return fn(s)
}

func (s *StubRepo) Create(_ context.Context, event CostEvent) error {
	s.events[event.ID] = copyEvent(event)
	return nil
}

func (s *StubRepo) Get(_ context.Context, id string) (CostEvent, error) {
	event, ok := s.events[id]
	if !ok {
		return CostEvent{}, ErrEventNotFound
	}
	return copyEvent(event), nil
}

func (s *StubRepo) FindByDate(_ context.Context, date meal.Date) (*CostEvent, error) {
	for _, event := range s.events {
		if event.Date.Equal(date) {
			found := copyEvent(event)
			return &found, nil
		}
	}
	return nil, nil
}

func (s *StubRepo) Update(_ context.Context, event CostEvent) error {
	stored, ok := s.events[event.ID]
	if !ok {
		return ErrEventNotFound
	}
	stored.TotalCost = event.TotalCost
	stored.Participants = copyParticipants(event.Participants)
	s.events[event.ID] = stored
	return nil
}

func (s *StubRepo) Delete(_ context.Context, id string) error {
	if _, ok := s.events[id]; !ok {
		return ErrEventNotFound
	}
	delete(s.events, id)
	return nil
}

func (s *StubRepo) MarkDeducted(_ context.Context, eventID string, userID int, at time.Time) error {
	event, ok := s.events[eventID]
	if !ok {
		return ErrEventNotFound
	}
	for i := range event.Participants {
		participant := &event.Participants[i]
		if participant.UserID != userID || participant.Deducted {
			continue
		}
		deductedAt := at
		participant.Deducted = true
		participant.DeductedAt = &deductedAt
		s.events[eventID] = event
		return nil
	}
	return fmt.Errorf("participant %d of cost event %s is missing or already deducted", userID, eventID)
}

func (s *StubRepo) MarkRefunded(_ context.Context, eventID string, userID int) error {
	event, ok := s.events[eventID]
	if !ok {
		return ErrEventNotFound
	}
	for i := range event.Participants {
		participant := &event.Participants[i]
		if participant.UserID != userID || !participant.Deducted {
			continue
		}
		participant.Deducted = false
		participant.DeductedAt = nil
		s.events[eventID] = event
		return nil
	}
	return fmt.Errorf("participant %d of cost event %s is missing or not deducted", userID, eventID)
}

func (s *StubRepo) SetFinalized(_ context.Context, eventID string, at time.Time) error {
	event, ok := s.events[eventID]
	if !ok || event.IsFinalized {
		return ErrAlreadyFinalized
	}
	finalizedAt := at
	event.IsFinalized = true
	event.FinalizedAt = &finalizedAt
	s.events[eventID] = event
	return nil
}

func (s *StubRepo) SetReversed(_ context.Context, eventID string, reason string, at time.Time) error {
	event, ok := s.events[eventID]
	if !ok || !event.IsFinalized || event.IsReversed {
		return ErrAlreadyReversed
	}
	reversedAt := at
	event.IsReversed = true
	event.ReversedAt = &reversedAt
	event.ReverseReason = reason
	s.events[eventID] = event
	return nil
}

func copyEvent(event CostEvent) CostEvent {
	event.Participants = copyParticipants(event.Participants)
	return event
}

func copyParticipants(participants []Participant) []Participant {
	copied := make([]Participant, len(participants))
	copy(copied, participants)
	return copied
}
