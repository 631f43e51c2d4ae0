package override

import (
	"context"
	"testing"
	"time"

	"github.com/messbook/messbook/internal/utils"
	"github.com/messbook/messbook/pkg/meal"
	"github.com/messbook/messbook/pkg/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupServiceTest() (*ServiceImpl, *StubRepo, *utils.MockClock) {
	repo := NewStubRepo()
	clock := &utils.MockClock{FixedNow: time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)}
	return NewService(repo, clock), repo, clock
}

func ctxWithRole(id int, role user.Role) context.Context {
	return user.WithUser(context.Background(), user.User{Id: id, Username: "tester", Role: role})
}

func TestService_Create(t *testing.T) {
	service, _, clock := setupServiceTest()

	// given a manager creating a rule for a specific member
	rule := validRule()
	rule.Scope = ScopeUser
	rule.TargetUserID = intPtr(4)

	// when
	created, err := service.Create(ctxWithRole(2, user.RoleManager), rule)

	// then the rule carries identity and provenance
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, 2, created.CreatedBy)
	assert.Equal(t, user.RoleManager, created.CreatorRole)
	assert.Equal(t, clock.FixedNow, created.CreatedAt)

	stored, err := service.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, stored)
}

func TestService_CreateDeniedByScope(t *testing.T) {
	service, _, _ := setupServiceTest()

	_, err := service.Create(ctxWithRole(2, user.RoleManager), validRule())

	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestService_CreateInvalidRule(t *testing.T) {
	service, _, _ := setupServiceTest()

	rule := validRule()
	rule.DateSpec = DateSpec{Kind: DateRange, StartDate: datePtr(2025, time.June, 10)}

	_, err := service.Create(ctxWithRole(1, user.RoleAdmin), rule)

	assert.ErrorIs(t, err, ErrInvalidRule)
}

func TestService_UpdateKeepsProvenance(t *testing.T) {
	service, _, _ := setupServiceTest()

	created, err := service.Create(ctxWithRole(1, user.RoleAdmin), validRule())
	require.NoError(t, err)

	patch := validRule()
	patch.Action = ForceOn
	patch.Reason = "exam week"

	updated, err := service.Update(ctxWithRole(3, user.RoleSuperadmin), created.ID, patch)

	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, ForceOn, updated.Action)
	assert.Equal(t, "exam week", updated.Reason)
	// creator fields survive the update even when someone else edits
	assert.Equal(t, 1, updated.CreatedBy)
	assert.Equal(t, user.RoleAdmin, updated.CreatorRole)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
}

func TestService_UpdateDeniedForForeignRule(t *testing.T) {
	service, _, _ := setupServiceTest()

	created, err := service.Create(ctxWithRole(1, user.RoleAdmin), validRule())
	require.NoError(t, err)

	patch := validRule()
	patch.Scope = ScopeUser
	patch.TargetUserID = intPtr(4)

	_, err = service.Update(ctxWithRole(2, user.RoleManager), created.ID, patch)

	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestService_UpdateDeniedScopeEscalation(t *testing.T) {
	service, _, _ := setupServiceTest()

	// given a manager's own user-scoped rule
	rule := validRule()
	rule.Scope = ScopeUser
	rule.TargetUserID = intPtr(4)
	created, err := service.Create(ctxWithRole(2, user.RoleManager), rule)
	require.NoError(t, err)

	// when the manager tries to widen it to global scope
	patch := validRule()
	_, err = service.Update(ctxWithRole(2, user.RoleManager), created.ID, patch)

	// then the scope change is rejected
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestService_Toggle(t *testing.T) {
	service, _, _ := setupServiceTest()

	created, err := service.Create(ctxWithRole(1, user.RoleAdmin), validRule())
	require.NoError(t, err)
	require.True(t, created.Active)

	toggled, err := service.Toggle(ctxWithRole(1, user.RoleAdmin), created.ID)
	require.NoError(t, err)
	assert.False(t, toggled.Active)

	toggled, err = service.Toggle(ctxWithRole(1, user.RoleAdmin), created.ID)
	require.NoError(t, err)
	assert.True(t, toggled.Active)
}

func TestService_DeleteDenied(t *testing.T) {
	service, _, _ := setupServiceTest()

	created, err := service.Create(ctxWithRole(1, user.RoleAdmin), validRule())
	require.NoError(t, err)

	err = service.Delete(ctxWithRole(5, user.RoleMember), created.ID)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	err = service.Delete(ctxWithRole(1, user.RoleAdmin), created.ID)
	require.NoError(t, err)

	_, err = service.Get(context.Background(), created.ID)
	assert.ErrorIs(t, err, ErrRuleNotFound)
}

func TestService_ListApplicableRanked(t *testing.T) {
	service, _, clock := setupServiceTest()
	adminCtx := ctxWithRole(1, user.RoleAdmin)
	date := meal.NewDate(2025, time.June, 9)

	global := validRule()
	createdGlobal, err := service.Create(adminCtx, global)
	require.NoError(t, err)

	clock.SetNow(clock.FixedNow.Add(time.Minute))
	targeted := validRule()
	targeted.Scope = ScopeUser
	targeted.TargetUserID = intPtr(4)
	targeted.Action = ForceOn
	createdTargeted, err := service.Create(adminCtx, targeted)
	require.NoError(t, err)

	rules, err := service.ListApplicable(context.Background(), date, 4, meal.Lunch)

	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, createdTargeted.ID, rules[0].ID)
	assert.Equal(t, createdGlobal.ID, rules[1].ID)

	// a member the targeted rule does not cover only sees the global one
	rules, err = service.ListApplicable(context.Background(), date, 7, meal.Lunch)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, createdGlobal.ID, rules[0].ID)
}

func TestService_ListAllRequiresManager(t *testing.T) {
	service, _, _ := setupServiceTest()

	_, err := service.ListAll(ctxWithRole(5, user.RoleMember))
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = service.ListAll(ctxWithRole(2, user.RoleManager))
	assert.NoError(t, err)
}
