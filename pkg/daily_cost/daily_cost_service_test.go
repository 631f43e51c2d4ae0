package daily_cost

import (
	"context"
	"testing"
	"time"

	"github.com/messbook/messbook/internal/event_bus"
	"github.com/messbook/messbook/internal/test_utils"
	"github.com/messbook/messbook/internal/utils"
	"github.com/messbook/messbook/pkg/ledger"
	"github.com/messbook/messbook/pkg/meal"
	"github.com/messbook/messbook/pkg/user"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var costTestNow = time.Date(2025, 6, 10, 21, 0, 0, 0, time.UTC)

var costTestDate = meal.NewDate(2025, time.June, 10)

type costFixture struct {
	service    *ServiceImpl
	repo       *StubRepo
	ledger     *ledger.ServiceImpl
	ledgerRepo *ledger.StubRepo
	bus        *event_bus.EventBus
	clock      *utils.MockClock
}

func setupCostTest() *costFixture {
	repo := NewStubRepo()
	ledgerRepo := ledger.NewStubRepo()
	bus := event_bus.NewEventBus()
	clock := &utils.MockClock{FixedNow: costTestNow}
	ledgerService := ledger.NewService(ledgerRepo, bus, clock)
	return &costFixture{
		service:    NewService(repo, ledgerService, bus, clock),
		repo:       repo,
		ledger:     ledgerService,
		ledgerRepo: ledgerRepo,
		bus:        bus,
		clock:      clock,
	}
}

func ctxWithRole(id int, role user.Role) context.Context {
	return test_utils.UserContext(id, role)
}

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func requireAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, got.Equal(amount(want)), "want amount %s, got %s", want, got)
}

// seedBalance deposits the given amount for a user so deductions have
// something to draw from.
func (f *costFixture) seedBalance(t *testing.T, userID int, category meal.Category, deposit string) {
	t.Helper()
	_, err := f.ledger.Apply(ctxWithRole(2, user.RoleManager), ledger.ApplyRequest{
		UserID:   userID,
		Category: category,
		Amount:   amount(deposit),
		Kind:     ledger.KindDeposit,
	})
	require.NoError(t, err)
}

func (f *costFixture) balanceOf(t *testing.T, userID int, category meal.Category) decimal.Decimal {
	t.Helper()
	balance, err := f.ledger.GetBalance(ctxWithRole(2, user.RoleManager), userID, category)
	require.NoError(t, err)
	return balance.Amount
}

func itemizedSpec(costs map[int]string) CostSpec {
	var spec CostSpec
	for _, userID := range []int{7, 8, 9} {
		cost, ok := costs[userID]
		if !ok {
			continue
		}
		spec.Itemized = append(spec.Itemized, ItemizedCost{UserID: userID, Cost: amount(cost)})
	}
	return spec
}

func TestCreate_EqualSplitDividesEvenly(t *testing.T) {
	// given
	f := setupCostTest()
	managerCtx := ctxWithRole(2, user.RoleManager)

	// when 100 is split across three members
	event, err := f.service.Create(managerCtx, costTestDate, meal.Lunch, CostSpec{
		EqualSplit: &EqualSplit{TotalCost: amount("100"), ParticipantIDs: []int{7, 8, 9}},
	})

	// then each share is the rounded per-head cost
	require.NoError(t, err)
	requireAmount(t, "100", event.TotalCost)
	require.Len(t, event.Participants, 3)
	shareSum := decimal.Zero
	for _, participant := range event.Participants {
		requireAmount(t, "33.33", participant.Cost)
		shareSum = shareSum.Add(participant.Cost)
	}
	// The rounded shares reconcile to the total within one minimal unit.
	difference := event.TotalCost.Sub(shareSum).Abs()
	assert.True(t, difference.LessThanOrEqual(amount("0.01")), "difference %s", difference)

	assert.True(t, event.Draft())
	assert.Equal(t, 2, event.CreatedBy)
}

func TestCreate_ItemizedSumsTotal(t *testing.T) {
	// given
	f := setupCostTest()
	managerCtx := ctxWithRole(2, user.RoleManager)

	// when
	event, err := f.service.Create(managerCtx, costTestDate, meal.Dinner,
		itemizedSpec(map[int]string{7: "60", 8: "60", 9: "80.50"}))

	// then the total is the sum and the order is preserved
	require.NoError(t, err)
	requireAmount(t, "200.50", event.TotalCost)
	require.Len(t, event.Participants, 3)
	assert.Equal(t, 7, event.Participants[0].UserID)
	assert.Equal(t, 9, event.Participants[2].UserID)
	requireAmount(t, "80.50", event.Participants[2].Cost)
}

func TestCreate_DuplicateDateRejected(t *testing.T) {
	// given an event for the date
	f := setupCostTest()
	managerCtx := ctxWithRole(2, user.RoleManager)
	_, err := f.service.Create(managerCtx, costTestDate, meal.Lunch,
		itemizedSpec(map[int]string{7: "60"}))
	require.NoError(t, err)

	// when a second event targets the same date
	_, err = f.service.Create(managerCtx, costTestDate, meal.Dinner,
		itemizedSpec(map[int]string{8: "60"}))

	// then
	assert.ErrorIs(t, err, ErrDuplicateEvent)
}

func TestCreate_Validation(t *testing.T) {
	f := setupCostTest()
	managerCtx := ctxWithRole(2, user.RoleManager)

	tests := []struct {
		name     string
		date     meal.Date
		category meal.Category
		spec     CostSpec
	}{
		{
			name:     "no cost spec at all",
			date:     costTestDate,
			category: meal.Lunch,
			spec:     CostSpec{},
		},
		{
			name:     "both cost specs at once",
			date:     costTestDate,
			category: meal.Lunch,
			spec: CostSpec{
				EqualSplit: &EqualSplit{TotalCost: amount("100"), ParticipantIDs: []int{7}},
				Itemized:   []ItemizedCost{{UserID: 8, Cost: amount("50")}},
			},
		},
		{
			name:     "equal split without participants",
			date:     costTestDate,
			category: meal.Lunch,
			spec:     CostSpec{EqualSplit: &EqualSplit{TotalCost: amount("100")}},
		},
		{
			name:     "equal split with zero total",
			date:     costTestDate,
			category: meal.Lunch,
			spec:     CostSpec{EqualSplit: &EqualSplit{TotalCost: decimal.Zero, ParticipantIDs: []int{7}}},
		},
		{
			name:     "itemized with negative cost",
			date:     costTestDate,
			category: meal.Lunch,
			spec:     CostSpec{Itemized: []ItemizedCost{{UserID: 7, Cost: amount("-10")}}},
		},
		{
			name:     "itemized with duplicate user",
			date:     costTestDate,
			category: meal.Lunch,
			spec: CostSpec{Itemized: []ItemizedCost{
				{UserID: 7, Cost: amount("10")},
				{UserID: 7, Cost: amount("20")},
			}},
		},
		{
			name:     "unknown category",
			date:     costTestDate,
			category: meal.Category("breakfast"),
			spec:     CostSpec{Itemized: []ItemizedCost{{UserID: 7, Cost: amount("10")}}},
		},
		{
			name:     "zero date",
			date:     meal.Date{},
			category: meal.Lunch,
			spec:     CostSpec{Itemized: []ItemizedCost{{UserID: 7, Cost: amount("10")}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.Create(managerCtx, tt.date, tt.category, tt.spec)
			assert.ErrorIs(t, err, ErrInvalidEvent)
		})
	}
}

func TestCreate_RequiresManager(t *testing.T) {
	f := setupCostTest()

	_, err := f.service.Create(ctxWithRole(7, user.RoleMember), costTestDate, meal.Lunch,
		itemizedSpec(map[int]string{7: "60"}))
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestFinalize_DeductsEveryParticipant(t *testing.T) {
	// given three members with funded dinner balances
	f := setupCostTest()
	managerCtx := ctxWithRole(2, user.RoleManager)
	for _, userID := range []int{7, 8, 9} {
		f.seedBalance(t, userID, meal.Dinner, "500")
	}
	event, err := f.service.Create(managerCtx, costTestDate, meal.Dinner,
		itemizedSpec(map[int]string{7: "60", 8: "60", 9: "80.50"}))
	require.NoError(t, err)

	// when
	result, err := f.service.Finalize(managerCtx, event.ID)

	// then every share is charged
	require.NoError(t, err)
	assert.Empty(t, result.Errors)
	assert.True(t, result.Event.IsFinalized)
	require.NotNil(t, result.Event.FinalizedAt)
	requireAmount(t, "440", f.balanceOf(t, 7, meal.Dinner))
	requireAmount(t, "440", f.balanceOf(t, 8, meal.Dinner))
	requireAmount(t, "419.50", f.balanceOf(t, 9, meal.Dinner))
	for _, participant := range result.Event.Participants {
		assert.True(t, participant.Deducted)
		require.NotNil(t, participant.DeductedAt)
	}

	// and the deductions reference the event
	transactions, err := f.ledger.ListTransactions(managerCtx, ledger.TransactionFilter{UserID: 7})
	require.NoError(t, err)
	require.Len(t, transactions, 2)
	deduction := transactions[0]
	if deduction.Kind != ledger.KindDeduction {
		deduction = transactions[1]
	}
	assert.Equal(t, ledger.KindDeduction, deduction.Kind)
	require.NotNil(t, deduction.ReferenceID)
	assert.Equal(t, event.ID, *deduction.ReferenceID)
}

func TestFinalize_FrozenParticipantSkippedOthersCharged(t *testing.T) {
	// given user 8's lunch balance is frozen
	f := setupCostTest()
	managerCtx := ctxWithRole(2, user.RoleManager)
	adminCtx := ctxWithRole(1, user.RoleAdmin)
	for _, userID := range []int{7, 8, 9} {
		f.seedBalance(t, userID, meal.Lunch, "500")
	}
	_, err := f.ledger.Freeze(adminCtx, 8, meal.Lunch, "disputed bill")
	require.NoError(t, err)
	event, err := f.service.Create(managerCtx, costTestDate, meal.Lunch,
		itemizedSpec(map[int]string{7: "60", 8: "60", 9: "60"}))
	require.NoError(t, err)

	var published []event_bus.DailyCostFinalized
	event_bus.SubscribeTyped(f.bus, event_bus.DailyCostFinalizedEvent,
		func(e event_bus.EventT[event_bus.DailyCostFinalized]) error {
			published = append(published, e.Data)
			return nil
		})

	// when
	result, err := f.service.Finalize(managerCtx, event.ID)

	// then the frozen member is skipped and the others are charged
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, 8, result.Errors[0].UserID)
	requireAmount(t, "440", f.balanceOf(t, 7, meal.Lunch))
	requireAmount(t, "500", f.balanceOf(t, 8, meal.Lunch))
	requireAmount(t, "440", f.balanceOf(t, 9, meal.Lunch))
	assert.True(t, result.Event.IsFinalized)

	require.Len(t, published, 1)
	assert.Equal(t, 2, published[0].Deducted)
	assert.Equal(t, 1, published[0].Skipped)
	requireAmount(t, "120", published[0].TotalCharged)

	// and after unfreezing, a second finalize charges only the skipped member
	_, err = f.ledger.Unfreeze(adminCtx, 8, meal.Lunch)
	require.NoError(t, err)
	result, err = f.service.Finalize(managerCtx, event.ID)
	require.NoError(t, err)
	assert.Empty(t, result.Errors)
	requireAmount(t, "440", f.balanceOf(t, 7, meal.Lunch))
	requireAmount(t, "440", f.balanceOf(t, 8, meal.Lunch))
	requireAmount(t, "440", f.balanceOf(t, 9, meal.Lunch))
}

func TestFinalize_TwiceNeverDoubleDeducts(t *testing.T) {
	// given a finalized event
	f := setupCostTest()
	managerCtx := ctxWithRole(2, user.RoleManager)
	f.seedBalance(t, 7, meal.Lunch, "500")
	event, err := f.service.Create(managerCtx, costTestDate, meal.Lunch,
		itemizedSpec(map[int]string{7: "60"}))
	require.NoError(t, err)
	_, err = f.service.Finalize(managerCtx, event.ID)
	require.NoError(t, err)

	// when
	result, err := f.service.Finalize(managerCtx, event.ID)

	// then the member is charged exactly once
	require.NoError(t, err)
	assert.Empty(t, result.Errors)
	requireAmount(t, "440", f.balanceOf(t, 7, meal.Lunch))
	transactions, err := f.ledger.ListTransactions(managerCtx, ledger.TransactionFilter{UserID: 7})
	require.NoError(t, err)
	assert.Len(t, transactions, 2)
}

func TestFinalize_ReversedEventRejected(t *testing.T) {
	// given a reversed event
	f := setupCostTest()
	managerCtx := ctxWithRole(2, user.RoleManager)
	f.seedBalance(t, 7, meal.Lunch, "500")
	event, err := f.service.Create(managerCtx, costTestDate, meal.Lunch,
		itemizedSpec(map[int]string{7: "60"}))
	require.NoError(t, err)
	_, err = f.service.Finalize(managerCtx, event.ID)
	require.NoError(t, err)
	_, err = f.service.Reverse(managerCtx, event.ID, "cancelled meal")
	require.NoError(t, err)

	// when
	_, err = f.service.Finalize(managerCtx, event.ID)

	// then
	assert.ErrorIs(t, err, ErrEventReversed)
}

func TestReverse_RefundsDeductedParticipants(t *testing.T) {
	// given a finalized event over three members
	f := setupCostTest()
	managerCtx := ctxWithRole(2, user.RoleManager)
	for _, userID := range []int{7, 8, 9} {
		f.seedBalance(t, userID, meal.Dinner, "500")
	}
	event, err := f.service.Create(managerCtx, costTestDate, meal.Dinner,
		itemizedSpec(map[int]string{7: "60", 8: "60", 9: "80.50"}))
	require.NoError(t, err)
	_, err = f.service.Finalize(managerCtx, event.ID)
	require.NoError(t, err)

	var published []event_bus.DailyCostReversed
	event_bus.SubscribeTyped(f.bus, event_bus.DailyCostReversedEvent,
		func(e event_bus.EventT[event_bus.DailyCostReversed]) error {
			published = append(published, e.Data)
			return nil
		})

	// when
	reversed, err := f.service.Reverse(managerCtx, event.ID, "kitchen closed")

	// then every balance is restored exactly
	require.NoError(t, err)
	assert.True(t, reversed.IsReversed)
	require.NotNil(t, reversed.ReversedAt)
	assert.Equal(t, "kitchen closed", reversed.ReverseReason)
	for _, userID := range []int{7, 8, 9} {
		requireAmount(t, "500", f.balanceOf(t, userID, meal.Dinner))
	}

	// and the refunds reference the event
	transactions, err := f.ledger.ListTransactions(managerCtx, ledger.TransactionFilter{UserID: 9})
	require.NoError(t, err)
	refunds := 0
	for _, transaction := range transactions {
		if transaction.Kind != ledger.KindRefund {
			continue
		}
		refunds++
		requireAmount(t, "80.50", transaction.Amount)
		require.NotNil(t, transaction.ReferenceID)
		assert.Equal(t, event.ID, *transaction.ReferenceID)
	}
	assert.Equal(t, 1, refunds)

	require.Len(t, published, 1)
	assert.Equal(t, 3, published[0].Refunded)
	assert.Equal(t, "kitchen closed", published[0].Reason)

	// and the event is terminal
	_, err = f.service.Reverse(managerCtx, event.ID, "again")
	assert.ErrorIs(t, err, ErrAlreadyReversed)
}

func TestReverse_RequiresFinalizedAndReason(t *testing.T) {
	// given a draft event
	f := setupCostTest()
	managerCtx := ctxWithRole(2, user.RoleManager)
	event, err := f.service.Create(managerCtx, costTestDate, meal.Lunch,
		itemizedSpec(map[int]string{7: "60"}))
	require.NoError(t, err)

	// then a draft cannot be reversed
	_, err = f.service.Reverse(managerCtx, event.ID, "too early")
	assert.ErrorIs(t, err, ErrNotFinalized)

	// and a reason is required
	f.seedBalance(t, 7, meal.Lunch, "500")
	_, err = f.service.Finalize(managerCtx, event.ID)
	require.NoError(t, err)
	_, err = f.service.Reverse(managerCtx, event.ID, "")
	assert.ErrorIs(t, err, ErrInvalidEvent)
}

func TestReverse_ResumesAfterFrozenRefund(t *testing.T) {
	// given a finalized event where the second member's balance froze after
	// the deduction
	f := setupCostTest()
	managerCtx := ctxWithRole(2, user.RoleManager)
	adminCtx := ctxWithRole(1, user.RoleAdmin)
	for _, userID := range []int{7, 8, 9} {
		f.seedBalance(t, userID, meal.Lunch, "500")
	}
	event, err := f.service.Create(managerCtx, costTestDate, meal.Lunch,
		itemizedSpec(map[int]string{7: "60", 8: "60", 9: "60"}))
	require.NoError(t, err)
	_, err = f.service.Finalize(managerCtx, event.ID)
	require.NoError(t, err)
	_, err = f.ledger.Freeze(adminCtx, 8, meal.Lunch, "under review")
	require.NoError(t, err)

	// when the reverse hits the frozen balance it aborts
	_, err = f.service.Reverse(managerCtx, event.ID, "cancelled meal")
	require.ErrorIs(t, err, ledger.ErrBalanceFrozen)
	requireAmount(t, "500", f.balanceOf(t, 7, meal.Lunch))

	// then a retry after unfreezing completes without refunding user 7 twice
	_, err = f.ledger.Unfreeze(adminCtx, 8, meal.Lunch)
	require.NoError(t, err)
	reversed, err := f.service.Reverse(managerCtx, event.ID, "cancelled meal")
	require.NoError(t, err)
	assert.True(t, reversed.IsReversed)
	for _, userID := range []int{7, 8, 9} {
		requireAmount(t, "500", f.balanceOf(t, userID, meal.Lunch))
	}
}

func TestUpdateDraft_ReplacesBreakdown(t *testing.T) {
	// given
	f := setupCostTest()
	managerCtx := ctxWithRole(2, user.RoleManager)
	event, err := f.service.Create(managerCtx, costTestDate, meal.Lunch,
		itemizedSpec(map[int]string{7: "60", 8: "60"}))
	require.NoError(t, err)

	// when the draft switches to an equal split over three members
	updated, err := f.service.UpdateDraft(managerCtx, event.ID, CostSpec{
		EqualSplit: &EqualSplit{TotalCost: amount("150"), ParticipantIDs: []int{7, 8, 9}},
	})

	// then
	require.NoError(t, err)
	requireAmount(t, "150", updated.TotalCost)
	require.Len(t, updated.Participants, 3)
	requireAmount(t, "50", updated.Participants[0].Cost)

	stored, err := f.service.Get(managerCtx, event.ID)
	require.NoError(t, err)
	require.Len(t, stored.Participants, 3)
}

func TestUpdateDraft_FinalizedRejected(t *testing.T) {
	// given a finalized event
	f := setupCostTest()
	managerCtx := ctxWithRole(2, user.RoleManager)
	f.seedBalance(t, 7, meal.Lunch, "500")
	event, err := f.service.Create(managerCtx, costTestDate, meal.Lunch,
		itemizedSpec(map[int]string{7: "60"}))
	require.NoError(t, err)
	_, err = f.service.Finalize(managerCtx, event.ID)
	require.NoError(t, err)

	// then neither update nor delete is allowed
	_, err = f.service.UpdateDraft(managerCtx, event.ID, itemizedSpec(map[int]string{7: "80"}))
	assert.ErrorIs(t, err, ErrAlreadyFinalized)
	err = f.service.DeleteDraft(managerCtx, event.ID)
	assert.ErrorIs(t, err, ErrAlreadyFinalized)
}

func TestDeleteDraft_RemovesEvent(t *testing.T) {
	// given
	f := setupCostTest()
	managerCtx := ctxWithRole(2, user.RoleManager)
	event, err := f.service.Create(managerCtx, costTestDate, meal.Lunch,
		itemizedSpec(map[int]string{7: "60"}))
	require.NoError(t, err)

	// when
	err = f.service.DeleteDraft(managerCtx, event.ID)

	// then the date is free again
	require.NoError(t, err)
	_, err = f.service.Get(managerCtx, event.ID)
	assert.ErrorIs(t, err, ErrEventNotFound)
	_, err = f.service.Create(managerCtx, costTestDate, meal.Lunch,
		itemizedSpec(map[int]string{8: "60"}))
	assert.NoError(t, err)
}

func TestGetByDate(t *testing.T) {
	// given
	f := setupCostTest()
	managerCtx := ctxWithRole(2, user.RoleManager)
	event, err := f.service.Create(managerCtx, costTestDate, meal.Lunch,
		itemizedSpec(map[int]string{7: "60"}))
	require.NoError(t, err)

	// then the event is found by its date
	found, err := f.service.GetByDate(managerCtx, costTestDate)
	require.NoError(t, err)
	assert.Equal(t, event.ID, found.ID)

	// and other dates report not found
	_, err = f.service.GetByDate(managerCtx, costTestDate.AddDays(1))
	assert.ErrorIs(t, err, ErrEventNotFound)

	// and members cannot browse cost events
	_, err = f.service.GetByDate(ctxWithRole(7, user.RoleMember), costTestDate)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}
