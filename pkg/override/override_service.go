package override

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/messbook/messbook/internal/utils"
	"github.com/messbook/messbook/pkg/meal"
	"github.com/messbook/messbook/pkg/user"
)

type Service interface {
	Create(ctx context.Context, rule Rule) (Rule, error)
	Update(ctx context.Context, id string, rule Rule) (Rule, error)
	Delete(ctx context.Context, id string) error
	// Toggle flips the active flag and returns the stored rule.
	Toggle(ctx context.Context, id string) (Rule, error)
	Get(ctx context.Context, id string) (Rule, error)
	// ListApplicable returns the rules matching the query, strongest first.
	ListApplicable(ctx context.Context, date meal.Date, userID int, category meal.Category) ([]Rule, error)
	// ListAll returns every rule for the management view.
	ListAll(ctx context.Context) ([]Rule, error)
}

type ServiceImpl struct {
	repo  Repo
	gate  Gate
	clock utils.Clock
}

func NewService(repo Repo, clock utils.Clock) *ServiceImpl {
	return &ServiceImpl{repo: repo, gate: Gate{}, clock: clock}
}

func (s *ServiceImpl) Create(ctx context.Context, rule Rule) (Rule, error) {
	actor, err := user.CurrentUser(ctx)
	if err != nil {
		return Rule{}, fmt.Errorf("failed to get current user: %w", err)
	}
	if err := rule.Validate(); err != nil {
		return Rule{}, err
	}
	if !s.gate.CanCreate(actor.Role, rule.Scope) {
		return Rule{}, fmt.Errorf("%w: role %s cannot create a rule with scope %s", ErrPermissionDenied, actor.Role, rule.Scope)
	}

	rule.ID = uuid.NewString()
	rule.CreatedBy = actor.Id
	rule.CreatorRole = actor.Role
	rule.CreatedAt = s.clock.Now()
	if err := s.repo.Create(ctx, rule); err != nil {
		return Rule{}, fmt.Errorf("failed to store override rule: %w", err)
	}
	return rule, nil
}

func (s *ServiceImpl) Update(ctx context.Context, id string, rule Rule) (Rule, error) {
	actor, err := user.CurrentUser(ctx)
	if err != nil {
		return Rule{}, fmt.Errorf("failed to get current user: %w", err)
	}
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return Rule{}, err
	}
	if !s.gate.CanModify(existing, actor.Id, actor.Role) {
		return Rule{}, fmt.Errorf("%w: role %s cannot modify this rule", ErrPermissionDenied, actor.Role)
	}

	// Identity and provenance are immutable; everything else follows the patch.
	rule.ID = existing.ID
	rule.CreatedBy = existing.CreatedBy
	rule.CreatorRole = existing.CreatorRole
	rule.CreatedAt = existing.CreatedAt
	if err := rule.Validate(); err != nil {
		return Rule{}, err
	}
	if rule.Scope != existing.Scope && !s.gate.CanCreate(actor.Role, rule.Scope) {
		return Rule{}, fmt.Errorf("%w: role %s cannot move the rule to scope %s", ErrPermissionDenied, actor.Role, rule.Scope)
	}
	if err := s.repo.Update(ctx, rule); err != nil {
		return Rule{}, fmt.Errorf("failed to update override rule: %w", err)
	}
	return rule, nil
}

func (s *ServiceImpl) Delete(ctx context.Context, id string) error {
	actor, err := user.CurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("failed to get current user: %w", err)
	}
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !s.gate.CanModify(existing, actor.Id, actor.Role) {
		return fmt.Errorf("%w: role %s cannot delete this rule", ErrPermissionDenied, actor.Role)
	}
	return s.repo.Delete(ctx, id)
}

func (s *ServiceImpl) Toggle(ctx context.Context, id string) (Rule, error) {
	actor, err := user.CurrentUser(ctx)
	if err != nil {
		return Rule{}, fmt.Errorf("failed to get current user: %w", err)
	}
	rule, err := s.repo.Get(ctx, id)
	if err != nil {
		return Rule{}, err
	}
	if !s.gate.CanModify(rule, actor.Id, actor.Role) {
		return Rule{}, fmt.Errorf("%w: role %s cannot toggle this rule", ErrPermissionDenied, actor.Role)
	}

	rule.Active = !rule.Active
	if err := s.repo.Update(ctx, rule); err != nil {
		return Rule{}, fmt.Errorf("failed to toggle override rule: %w", err)
	}
	return rule, nil
}

func (s *ServiceImpl) Get(ctx context.Context, id string) (Rule, error) {
	return s.repo.Get(ctx, id)
}

func (s *ServiceImpl) ListApplicable(ctx context.Context, date meal.Date, userID int, category meal.Category) ([]Rule, error) {
	rules, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list override rules: %w", err)
	}
	matched := MatchingRules(rules, date, userID, category, s.clock.Now())
	SortForResolution(matched)
	return matched, nil
}

func (s *ServiceImpl) ListAll(ctx context.Context) ([]Rule, error) {
	actor, err := user.CurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get current user: %w", err)
	}
	if !actor.Role.AtLeast(user.RoleManager) {
		return nil, fmt.Errorf("%w: role %s cannot list all rules", ErrPermissionDenied, actor.Role)
	}
	return s.repo.List(ctx)
}
