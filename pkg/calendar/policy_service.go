package calendar

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/messbook/messbook/internal/event_bus"
	"github.com/messbook/messbook/internal/utils"
	"github.com/messbook/messbook/pkg/user"
	log "github.com/sirupsen/logrus"
)

var ErrPolicyPermission = errors.New("actor is not allowed to change the calendar policy")

type PolicyService interface {
	Current(ctx context.Context) (Policy, error)
	Update(ctx context.Context, policy Policy) (Policy, error)
}

// PolicyServiceImpl serves the policy from an in-memory snapshot. Status
// resolution hits it on every query and the policy changes rarely, so the
// snapshot is refreshed only on the policy-updated event.
type PolicyServiceImpl struct {
	repo  PolicyRepo
	bus   *event_bus.EventBus
	clock utils.Clock

	mu       sync.RWMutex
	snapshot *Policy
}

func NewPolicyService(repo PolicyRepo, bus *event_bus.EventBus, clock utils.Clock) *PolicyServiceImpl {
	s := &PolicyServiceImpl{repo: repo, bus: bus, clock: clock}
	event_bus.SubscribeTyped[event_bus.CalendarPolicyUpdated](
		bus,
		event_bus.CalendarPolicyUpdatedEvent,
		func(e event_bus.EventT[event_bus.CalendarPolicyUpdated]) error {
			log.Debugf("calendar policy updated by user %d, dropping snapshot", e.Data.UpdatedBy)
			s.mu.Lock()
			s.snapshot = nil
			s.mu.Unlock()
			return nil
		},
	)
	return s
}

func (s *PolicyServiceImpl) Current(ctx context.Context) (Policy, error) {
	s.mu.RLock()
	cached := s.snapshot
	s.mu.RUnlock()
	if cached != nil {
		return *cached, nil
	}

	policy, err := s.repo.Load(ctx)
	if err != nil {
		return Policy{}, err
	}

	s.mu.Lock()
	s.snapshot = &policy
	s.mu.Unlock()
	return policy, nil
}

func (s *PolicyServiceImpl) Update(ctx context.Context, policy Policy) (Policy, error) {
	actor, err := user.CurrentUser(ctx)
	if err != nil {
		return Policy{}, fmt.Errorf("failed to get current user: %w", err)
	}
	if !actor.Role.AtLeast(user.RoleAdmin) {
		return Policy{}, ErrPolicyPermission
	}

	policy.UpdatedBy = actor.Id
	policy.UpdatedAt = s.clock.Now()
	if err := s.repo.Save(ctx, policy); err != nil {
		return Policy{}, err
	}

	if err := s.bus.Publish(event_bus.NewEvent(
		ctx,
		event_bus.CalendarPolicyUpdatedEvent,
		event_bus.CalendarPolicyUpdated{UpdatedBy: actor.Id},
	)); err != nil {
		log.Errorf("failed to publish calendar policy update event: %v", err)
	}

	return policy, nil
}
