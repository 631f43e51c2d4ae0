package meal_status

import (
	"context"
	"fmt"

	"github.com/messbook/messbook/internal/utils"
	"github.com/messbook/messbook/pkg/calendar"
	"github.com/messbook/messbook/pkg/holiday"
	"github.com/messbook/messbook/pkg/meal"
	"github.com/messbook/messbook/pkg/override"
	"github.com/messbook/messbook/pkg/user"
	"golang.org/x/sync/errgroup"
)

// maxRangeDays caps a range query at a year of days.
const maxRangeDays = 366

type Service interface {
	// Resolve decides whether the meal is on for the triple and why.
	Resolve(ctx context.Context, date meal.Date, userID int, category meal.Category) (StatusDecision, error)
	// ResolveRange resolves every date of [from, to], in date order.
	ResolveRange(ctx context.Context, from, to meal.Date, userID int, category meal.Category) ([]StatusDecision, error)
	SetManual(ctx context.Context, record ManualRecord) (ManualRecord, error)
	ClearManual(ctx context.Context, userID int, date meal.Date, category meal.Category) error
}

type ServiceImpl struct {
	records   Repo
	overrides override.Service
	policy    calendar.PolicyService
	holidays  holiday.Repo
	clock     utils.Clock
}

func NewService(records Repo, overrides override.Service, policy calendar.PolicyService, holidays holiday.Repo, clock utils.Clock) *ServiceImpl {
	return &ServiceImpl{
		records:   records,
		overrides: overrides,
		policy:    policy,
		holidays:  holidays,
		clock:     clock,
	}
}

// Resolve applies the precedence chain: a manual record wins unconditionally,
// then the top-ranked matching override rule, then the default policy. The
// day context (default-off, holiday) is reported regardless of which layer
// decided.
func (s *ServiceImpl) Resolve(ctx context.Context, date meal.Date, userID int, category meal.Category) (StatusDecision, error) {
	policy, err := s.policy.Current(ctx)
	if err != nil {
		return StatusDecision{}, fmt.Errorf("failed to load calendar policy: %w", err)
	}
	h, err := s.holidays.FindByDate(ctx, date)
	if err != nil {
		return StatusDecision{}, fmt.Errorf("failed to look up holiday: %w", err)
	}
	day := calendar.Evaluate(date, policy, h)

	decision := StatusDecision{
		Date:         date,
		UserID:       userID,
		Category:     category,
		IsDefaultOff: day.IsDefaultOff,
		IsHoliday:    day.IsHoliday,
		HolidayName:  day.HolidayName,
	}

	record, err := s.records.Find(ctx, userID, date, category)
	if err != nil {
		return StatusDecision{}, fmt.Errorf("failed to look up manual record: %w", err)
	}
	if record != nil {
		decision.Source = SourceManual
		decision.IsOn = record.IsOn
		if record.IsOn {
			decision.Count = record.Count
		}
		return decision, nil
	}

	rules, err := s.overrides.ListApplicable(ctx, date, userID, category)
	if err != nil {
		return StatusDecision{}, fmt.Errorf("failed to list override rules: %w", err)
	}
	if len(rules) > 0 {
		winner := rules[0]
		decision.Source = SourceOverride
		decision.MatchedRuleID = &winner.ID
		decision.IsOn = winner.Action == override.ForceOn
		if decision.IsOn {
			decision.Count = 1
		}
		return decision, nil
	}

	decision.Source = SourceDefault
	decision.IsOn = !day.IsDefaultOff
	if decision.IsOn {
		decision.Count = 1
	}
	return decision, nil
}

func (s *ServiceImpl) ResolveRange(ctx context.Context, from, to meal.Date, userID int, category meal.Category) ([]StatusDecision, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("%w: end date is before the start date", ErrInvalidRange)
	}
	days := from.DaysUntil(to) + 1
	if days > maxRangeDays {
		return nil, fmt.Errorf("%w: range spans %d days, the maximum is %d", ErrInvalidRange, days, maxRangeDays)
	}

	// Resolution is a pure read, so the dates are resolved in parallel.
	decisions := make([]StatusDecision, days)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < days; i++ {
		g.Go(func() error {
			decision, err := s.Resolve(gctx, from.AddDays(i), userID, category)
			if err != nil {
				return err
			}
			decisions[i] = decision
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return decisions, nil
}

func (s *ServiceImpl) SetManual(ctx context.Context, record ManualRecord) (ManualRecord, error) {
	actor, err := user.CurrentUser(ctx)
	if err != nil {
		return ManualRecord{}, fmt.Errorf("failed to get current user: %w", err)
	}
	if record.UserID == 0 {
		record.UserID = actor.Id
	}
	if record.UserID != actor.Id && !actor.Role.AtLeast(user.RoleManager) {
		return ManualRecord{}, fmt.Errorf("%w: only managers can record meals for other members", ErrPermissionDenied)
	}
	if record.Date.IsZero() {
		return ManualRecord{}, fmt.Errorf("%w: date is required", ErrInvalidRecord)
	}
	if !record.Category.Valid() {
		return ManualRecord{}, fmt.Errorf("%w: unknown category %q", ErrInvalidRecord, record.Category)
	}
	if record.Count < 0 {
		return ManualRecord{}, fmt.Errorf("%w: count cannot be negative", ErrInvalidRecord)
	}

	// Normalize the count at write time so readers can trust it.
	if !record.IsOn {
		record.Count = 0
	} else if record.Count == 0 {
		record.Count = 1
	}
	record.UpdatedBy = actor.Id
	record.UpdatedAt = s.clock.Now()

	if err := s.records.Upsert(ctx, record); err != nil {
		return ManualRecord{}, fmt.Errorf("failed to store manual record: %w", err)
	}
	return record, nil
}

func (s *ServiceImpl) ClearManual(ctx context.Context, userID int, date meal.Date, category meal.Category) error {
	actor, err := user.CurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("failed to get current user: %w", err)
	}
	if userID == 0 {
		userID = actor.Id
	}
	if userID != actor.Id && !actor.Role.AtLeast(user.RoleManager) {
		return fmt.Errorf("%w: only managers can clear other members' records", ErrPermissionDenied)
	}
	return s.records.Delete(ctx, userID, date, category)
}
