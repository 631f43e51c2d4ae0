package daily_cost

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/messbook/messbook/internal/event_bus"
	"github.com/messbook/messbook/internal/utils"
	"github.com/messbook/messbook/pkg/ledger"
	"github.com/messbook/messbook/pkg/meal"
	"github.com/messbook/messbook/pkg/user"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// Ledger is the slice of the balance ledger the orchestrator needs: every
// participant share becomes one Apply call, deduction or refund.
type Ledger interface {
	Apply(ctx context.Context, request ledger.ApplyRequest) (ledger.Transaction, error)
}

// ParticipantError records one participant whose deduction was skipped while
// the rest of the batch went through.
type ParticipantError struct {
	UserID int
	Reason string
}

// FinalizeResult is the outcome of one finalize run: the event as it now
// stands plus the per-participant errors of this run.
type FinalizeResult struct {
	Event  CostEvent
	Errors []ParticipantError
}

type Service interface {
	Create(ctx context.Context, date meal.Date, category meal.Category, spec CostSpec) (CostEvent, error)
	Get(ctx context.Context, id string) (CostEvent, error)
	GetByDate(ctx context.Context, date meal.Date) (CostEvent, error)
	// Finalize charges every participant not yet deducted. Frozen balances are
	// skipped and reported per participant; calling Finalize again re-attempts
	// only those, never the already-deducted ones.
	Finalize(ctx context.Context, id string) (FinalizeResult, error)
	// Reverse refunds every deducted participant and marks the event reversed.
	// Reversing is terminal; the event cannot be finalized again.
	Reverse(ctx context.Context, id string, reason string) (CostEvent, error)
	UpdateDraft(ctx context.Context, id string, spec CostSpec) (CostEvent, error)
	DeleteDraft(ctx context.Context, id string) error
}

type ServiceImpl struct {
	repo   Repo
	ledger Ledger
	bus    *event_bus.EventBus
	clock  utils.Clock
}

func NewService(repo Repo, ledgerService Ledger, bus *event_bus.EventBus, clock utils.Clock) *ServiceImpl {
	return &ServiceImpl{repo: repo, ledger: ledgerService, bus: bus, clock: clock}
}

func requireManager(ctx context.Context) (user.User, error) {
	actor, err := user.CurrentUser(ctx)
	if err != nil {
		return user.User{}, err
	}
	if !actor.Role.AtLeast(user.RoleManager) {
		return user.User{}, fmt.Errorf("%w: manager rank required", ErrPermissionDenied)
	}
	return actor, nil
}

func (s *ServiceImpl) Create(ctx context.Context, date meal.Date, category meal.Category, spec CostSpec) (CostEvent, error) {
	actor, err := requireManager(ctx)
	if err != nil {
		return CostEvent{}, err
	}
	if date.IsZero() {
		return CostEvent{}, fmt.Errorf("%w: a date is required", ErrInvalidEvent)
	}
	if !category.Valid() {
		return CostEvent{}, fmt.Errorf("%w: unknown category %q", ErrInvalidEvent, category)
	}
	participants, total, err := buildParticipants(spec)
	if err != nil {
		return CostEvent{}, err
	}

	event := CostEvent{
		ID:           uuid.NewString(),
		Date:         date,
		Category:     category,
		TotalCost:    total,
		Participants: participants,
		CreatedBy:    actor.Id,
		CreatedAt:    s.clock.Now(),
	}
	err = s.repo.WithTransaction(ctx, func(repo Repo) error {
		existing, err := repo.FindByDate(ctx, date)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: %s", ErrDuplicateEvent, date)
		}
		return repo.Create(ctx, event)
	})
	if err != nil {
		return CostEvent{}, err
	}
	return event, nil
}

func (s *ServiceImpl) Get(ctx context.Context, id string) (CostEvent, error) {
	if _, err := requireManager(ctx); err != nil {
		return CostEvent{}, err
	}
	return s.repo.Get(ctx, id)
}

func (s *ServiceImpl) GetByDate(ctx context.Context, date meal.Date) (CostEvent, error) {
	if _, err := requireManager(ctx); err != nil {
		return CostEvent{}, err
	}
	event, err := s.repo.FindByDate(ctx, date)
	if err != nil {
		return CostEvent{}, err
	}
	if event == nil {
		return CostEvent{}, ErrEventNotFound
	}
	return *event, nil
}

func (s *ServiceImpl) Finalize(ctx context.Context, id string) (FinalizeResult, error) {
	if _, err := requireManager(ctx); err != nil {
		return FinalizeResult{}, err
	}
	event, err := s.repo.Get(ctx, id)
	if err != nil {
		return FinalizeResult{}, err
	}
	if event.IsReversed {
		return FinalizeResult{}, fmt.Errorf("%w: %s", ErrEventReversed, id)
	}

	// Each deduction commits on its own, so one participant's failure never
	// rolls back the others.
	deducted := 0
	charged := decimal.Zero
	var skipped []ParticipantError
	for i := range event.Participants {
		participant := &event.Participants[i]
		if participant.Deducted {
			continue
		}
		referenceID := event.ID
		_, err := s.ledger.Apply(ctx, ledger.ApplyRequest{
			UserID:      participant.UserID,
			Category:    event.Category,
			Amount:      participant.Cost.Neg(),
			Kind:        ledger.KindDeduction,
			ReferenceID: &referenceID,
			Note:        "daily cost " + event.Date.String(),
		})
		if errors.Is(err, ledger.ErrBalanceFrozen) {
			// The share stays pending for a later finalize run.
			skipped = append(skipped, ParticipantError{UserID: participant.UserID, Reason: "balance is frozen"})
			continue
		}
		if err != nil {
			return FinalizeResult{}, err
		}
		now := s.clock.Now()
		if err := s.repo.MarkDeducted(ctx, event.ID, participant.UserID, now); err != nil {
			return FinalizeResult{}, err
		}
		participant.Deducted = true
		participant.DeductedAt = &now
		deducted++
		charged = charged.Add(participant.Cost)
	}

	if !event.IsFinalized {
		now := s.clock.Now()
		if err := s.repo.SetFinalized(ctx, event.ID, now); err != nil {
			return FinalizeResult{}, err
		}
		event.IsFinalized = true
		event.FinalizedAt = &now
	}

	s.publishFinalized(ctx, event, deducted, len(skipped), charged)
	return FinalizeResult{Event: event, Errors: skipped}, nil
}

func (s *ServiceImpl) Reverse(ctx context.Context, id string, reason string) (CostEvent, error) {
	if _, err := requireManager(ctx); err != nil {
		return CostEvent{}, err
	}
	if reason == "" {
		return CostEvent{}, fmt.Errorf("%w: a reverse reason is required", ErrInvalidEvent)
	}
	event, err := s.repo.Get(ctx, id)
	if err != nil {
		return CostEvent{}, err
	}
	if event.IsReversed {
		return CostEvent{}, fmt.Errorf("%w: %s", ErrAlreadyReversed, id)
	}
	if !event.IsFinalized {
		return CostEvent{}, fmt.Errorf("%w: %s", ErrNotFinalized, id)
	}

	// A failing refund, for example onto a frozen balance, aborts the
	// reverse. The deducted flags already cleared keep a retried reverse from
	// refunding anyone twice.
	refunded := 0
	for i := range event.Participants {
		participant := &event.Participants[i]
		if !participant.Deducted {
			continue
		}
		referenceID := event.ID
		_, err := s.ledger.Apply(ctx, ledger.ApplyRequest{
			UserID:      participant.UserID,
			Category:    event.Category,
			Amount:      participant.Cost,
			Kind:        ledger.KindRefund,
			ReferenceID: &referenceID,
			Note:        reason,
		})
		if err != nil {
			return CostEvent{}, err
		}
		if err := s.repo.MarkRefunded(ctx, event.ID, participant.UserID); err != nil {
			return CostEvent{}, err
		}
		participant.Deducted = false
		participant.DeductedAt = nil
		refunded++
	}

	now := s.clock.Now()
	if err := s.repo.SetReversed(ctx, event.ID, reason, now); err != nil {
		return CostEvent{}, err
	}
	event.IsReversed = true
	event.ReversedAt = &now
	event.ReverseReason = reason

	s.publishReversed(ctx, event, refunded, reason)
	return event, nil
}

func (s *ServiceImpl) UpdateDraft(ctx context.Context, id string, spec CostSpec) (CostEvent, error) {
	if _, err := requireManager(ctx); err != nil {
		return CostEvent{}, err
	}
	event, err := s.repo.Get(ctx, id)
	if err != nil {
		return CostEvent{}, err
	}
	if err := requireDraft(event); err != nil {
		return CostEvent{}, err
	}
	participants, total, err := buildParticipants(spec)
	if err != nil {
		return CostEvent{}, err
	}
	event.TotalCost = total
	event.Participants = participants
	if err := s.repo.Update(ctx, event); err != nil {
		return CostEvent{}, err
	}
	return event, nil
}

func (s *ServiceImpl) DeleteDraft(ctx context.Context, id string) error {
	if _, err := requireManager(ctx); err != nil {
		return err
	}
	event, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := requireDraft(event); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

func requireDraft(event CostEvent) error {
	if event.IsReversed {
		return fmt.Errorf("%w: %s", ErrEventReversed, event.ID)
	}
	if event.IsFinalized {
		return fmt.Errorf("%w: %s", ErrAlreadyFinalized, event.ID)
	}
	return nil
}

func (s *ServiceImpl) publishFinalized(ctx context.Context, event CostEvent, deducted, skipped int, charged decimal.Decimal) {
	e := event_bus.NewEvent(ctx, event_bus.DailyCostFinalizedEvent, event_bus.DailyCostFinalized{
		EventID:      event.ID,
		Date:         event.Date.String(),
		Deducted:     deducted,
		Skipped:      skipped,
		TotalCharged: charged,
	})
	if err := s.bus.Publish(e); err != nil {
		log.Errorf("could not publish cost event finalized event: %v", err)
	}
}

func (s *ServiceImpl) publishReversed(ctx context.Context, event CostEvent, refunded int, reason string) {
	e := event_bus.NewEvent(ctx, event_bus.DailyCostReversedEvent, event_bus.DailyCostReversed{
		EventID:  event.ID,
		Date:     event.Date.String(),
		Refunded: refunded,
		Reason:   reason,
	})
	if err := s.bus.Publish(e); err != nil {
		log.Errorf("could not publish cost event reversed event: %v", err)
	}
}
