package meal_status

import (
	"context"
	"testing"
	"time"

	"github.com/messbook/messbook/internal/event_bus"
	"github.com/messbook/messbook/internal/utils"
	"github.com/messbook/messbook/pkg/calendar"
	"github.com/messbook/messbook/pkg/holiday"
	"github.com/messbook/messbook/pkg/meal"
	"github.com/messbook/messbook/pkg/override"
	"github.com/messbook/messbook/pkg/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type resolverFixture struct {
	service   *ServiceImpl
	records   *StubRepo
	overrides override.Service
	policy    *calendar.StubPolicyRepo
	holidays  *holiday.StubHolidayRepo
	clock     *utils.MockClock
}

// setupResolver wires the resolver against stub storage and real override,
// calendar and holiday collaborators, with the default policy (Fridays and
// government holidays off).
func setupResolver() resolverFixture {
	clock := &utils.MockClock{FixedNow: time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)}
	records := NewStubRepo()
	policyRepo := calendar.NewStubPolicyRepo()
	policyService := calendar.NewPolicyService(policyRepo, event_bus.NewEventBus(), clock)
	holidays := holiday.NewStubHolidayRepo()
	overrides := override.NewService(override.NewStubRepo(), clock)
	service := NewService(records, overrides, policyService, holidays, clock)
	return resolverFixture{
		service:   service,
		records:   records,
		overrides: overrides,
		policy:    policyRepo,
		holidays:  holidays,
		clock:     clock,
	}
}

func adminCtx() context.Context {
	return user.WithUser(context.Background(), user.User{Id: 1, Username: "asha", Role: user.RoleAdmin})
}

func memberCtx(id int) context.Context {
	return user.WithUser(context.Background(), user.User{Id: id, Username: "member", Role: user.RoleMember})
}

func globalForceOff(t *testing.T, f resolverFixture, date meal.Date) override.Rule {
	t.Helper()
	d := date
	rule, err := f.overrides.Create(adminCtx(), override.Rule{
		Scope:    override.ScopeGlobal,
		DateSpec: override.DateSpec{Kind: override.DateSingle, Date: &d},
		Category: meal.RuleBoth,
		Action:   override.ForceOff,
		Active:   true,
	})
	require.NoError(t, err)
	return rule
}

func TestResolve_DefaultPolicyEquivalence(t *testing.T) {
	f := setupResolver()

	// a plain working Tuesday is on, a Friday is off, both decided by default
	testCases := []struct {
		name   string
		date   meal.Date
		wantOn bool
	}{
		{name: "working day is on", date: meal.NewDate(2025, time.June, 10), wantOn: true},
		{name: "Friday is off", date: meal.NewDate(2025, time.June, 13), wantOn: false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			decision, err := f.service.Resolve(context.Background(), tc.date, 4, meal.Lunch)
			require.NoError(t, err)
			assert.Equal(t, SourceDefault, decision.Source)
			assert.Equal(t, tc.wantOn, decision.IsOn)
			assert.Equal(t, !tc.wantOn, decision.IsDefaultOff)
			if tc.wantOn {
				assert.Equal(t, 1, decision.Count)
			} else {
				assert.Equal(t, 0, decision.Count)
			}
		})
	}
}

func TestResolve_HolidayContext(t *testing.T) {
	f := setupResolver()
	date := meal.NewDate(2025, time.June, 11)
	f.holidays.Add(holiday.Holiday{Date: date, Name: "Eid", Classification: holiday.Government, Active: true})

	decision, err := f.service.Resolve(context.Background(), date, 4, meal.Dinner)

	require.NoError(t, err)
	assert.False(t, decision.IsOn)
	assert.True(t, decision.IsDefaultOff)
	assert.True(t, decision.IsHoliday)
	assert.Equal(t, "Eid", decision.HolidayName)
}

func TestResolve_OverrideBeatsDefault(t *testing.T) {
	f := setupResolver()
	date := meal.NewDate(2025, time.June, 10) // a working Tuesday
	rule := globalForceOff(t, f, date)

	decision, err := f.service.Resolve(context.Background(), date, 4, meal.Lunch)

	require.NoError(t, err)
	assert.False(t, decision.IsOn)
	assert.Equal(t, SourceOverride, decision.Source)
	require.NotNil(t, decision.MatchedRuleID)
	assert.Equal(t, rule.ID, *decision.MatchedRuleID)
	// the day context still reports the default view
	assert.False(t, decision.IsDefaultOff)
}

func TestResolve_ManualBeatsEverything(t *testing.T) {
	f := setupResolver()
	date := meal.NewDate(2025, time.June, 10)
	globalForceOff(t, f, date)

	// given the member recorded two lunch portions by hand
	_, err := f.service.SetManual(memberCtx(4), ManualRecord{
		Date:     date,
		Category: meal.Lunch,
		IsOn:     true,
		Count:    2,
	})
	require.NoError(t, err)

	decision, err := f.service.Resolve(context.Background(), date, 4, meal.Lunch)

	require.NoError(t, err)
	assert.True(t, decision.IsOn)
	assert.Equal(t, 2, decision.Count)
	assert.Equal(t, SourceManual, decision.Source)
	assert.Nil(t, decision.MatchedRuleID)

	// other members still see the override
	other, err := f.service.Resolve(context.Background(), date, 7, meal.Lunch)
	require.NoError(t, err)
	assert.False(t, other.IsOn)
	assert.Equal(t, SourceOverride, other.Source)
}

func TestResolve_Deterministic(t *testing.T) {
	f := setupResolver()
	date := meal.NewDate(2025, time.June, 10)

	// two competing global rules created in the same instant, differing only
	// by action; the winner must be identical on every call
	globalForceOff(t, f, date)
	d := date
	_, err := f.overrides.Create(adminCtx(), override.Rule{
		Scope:    override.ScopeGlobal,
		DateSpec: override.DateSpec{Kind: override.DateSingle, Date: &d},
		Category: meal.RuleBoth,
		Action:   override.ForceOn,
		Active:   true,
	})
	require.NoError(t, err)

	first, err := f.service.Resolve(context.Background(), date, 4, meal.Lunch)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := f.service.Resolve(context.Background(), date, 4, meal.Lunch)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestResolveRange(t *testing.T) {
	f := setupResolver()
	// Monday through Sunday, with one Friday in between
	from := meal.NewDate(2025, time.June, 9)
	to := meal.NewDate(2025, time.June, 15)
	friday := meal.NewDate(2025, time.June, 13)

	decisions, err := f.service.ResolveRange(context.Background(), from, to, 4, meal.Lunch)

	require.NoError(t, err)
	require.Len(t, decisions, 7)
	for i, decision := range decisions {
		assert.True(t, from.AddDays(i).Equal(decision.Date))
		wantOn := !decision.Date.Equal(friday)
		assert.Equal(t, wantOn, decision.IsOn, "date %s", decision.Date)
	}
}

func TestResolveRange_InvalidRange(t *testing.T) {
	f := setupResolver()

	_, err := f.service.ResolveRange(context.Background(),
		meal.NewDate(2025, time.June, 10), meal.NewDate(2025, time.June, 9), 4, meal.Lunch)
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = f.service.ResolveRange(context.Background(),
		meal.NewDate(2024, time.January, 1), meal.NewDate(2026, time.January, 1), 4, meal.Lunch)
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestSetManual_Normalization(t *testing.T) {
	f := setupResolver()
	date := meal.NewDate(2025, time.June, 10)

	// an "on" record without a count becomes one portion
	record, err := f.service.SetManual(memberCtx(4), ManualRecord{Date: date, Category: meal.Lunch, IsOn: true})
	require.NoError(t, err)
	assert.Equal(t, 1, record.Count)
	assert.Equal(t, 4, record.UserID)
	assert.Equal(t, 4, record.UpdatedBy)
	assert.Equal(t, f.clock.FixedNow, record.UpdatedAt)

	// an "off" record drops any count
	record, err = f.service.SetManual(memberCtx(4), ManualRecord{Date: date, Category: meal.Lunch, IsOn: false, Count: 3})
	require.NoError(t, err)
	assert.Equal(t, 0, record.Count)

	decision, err := f.service.Resolve(context.Background(), date, 4, meal.Lunch)
	require.NoError(t, err)
	assert.False(t, decision.IsOn)
	assert.Equal(t, 0, decision.Count)
}

func TestSetManual_Validation(t *testing.T) {
	f := setupResolver()

	_, err := f.service.SetManual(memberCtx(4), ManualRecord{Category: meal.Lunch, IsOn: true})
	assert.ErrorIs(t, err, ErrInvalidRecord)

	_, err = f.service.SetManual(memberCtx(4), ManualRecord{Date: meal.NewDate(2025, time.June, 10), Category: "brunch", IsOn: true})
	assert.ErrorIs(t, err, ErrInvalidRecord)

	_, err = f.service.SetManual(memberCtx(4), ManualRecord{Date: meal.NewDate(2025, time.June, 10), Category: meal.Lunch, IsOn: true, Count: -1})
	assert.ErrorIs(t, err, ErrInvalidRecord)
}

func TestSetManual_ForOthersRequiresManager(t *testing.T) {
	f := setupResolver()
	date := meal.NewDate(2025, time.June, 10)

	_, err := f.service.SetManual(memberCtx(4), ManualRecord{UserID: 7, Date: date, Category: meal.Lunch, IsOn: false})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	managerCtx := user.WithUser(context.Background(), user.User{Id: 2, Username: "ravi", Role: user.RoleManager})
	record, err := f.service.SetManual(managerCtx, ManualRecord{UserID: 7, Date: date, Category: meal.Lunch, IsOn: false})
	require.NoError(t, err)
	assert.Equal(t, 7, record.UserID)
	assert.Equal(t, 2, record.UpdatedBy)
}

func TestClearManual(t *testing.T) {
	f := setupResolver()
	date := meal.NewDate(2025, time.June, 10)

	_, err := f.service.SetManual(memberCtx(4), ManualRecord{Date: date, Category: meal.Lunch, IsOn: false})
	require.NoError(t, err)

	err = f.service.ClearManual(memberCtx(4), 0, date, meal.Lunch)
	require.NoError(t, err)

	// resolution falls back to the default
	decision, err := f.service.Resolve(context.Background(), date, 4, meal.Lunch)
	require.NoError(t, err)
	assert.Equal(t, SourceDefault, decision.Source)
	assert.True(t, decision.IsOn)

	// clearing a record that does not exist reports not found
	err = f.service.ClearManual(memberCtx(4), 0, date, meal.Lunch)
	assert.ErrorIs(t, err, ErrRecordNotFound)

	// members cannot clear other members' records
	err = f.service.ClearManual(memberCtx(4), 7, date, meal.Lunch)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}
