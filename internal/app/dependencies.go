package app

import (
	"database/sql"

	"github.com/messbook/messbook/internal/config"
	"github.com/messbook/messbook/internal/event_bus"
	"github.com/messbook/messbook/internal/utils"
	"github.com/messbook/messbook/pkg/calendar"
	"github.com/messbook/messbook/pkg/daily_cost"
	"github.com/messbook/messbook/pkg/holiday"
	"github.com/messbook/messbook/pkg/ledger"
	"github.com/messbook/messbook/pkg/meal_status"
	"github.com/messbook/messbook/pkg/override"
	"github.com/messbook/messbook/pkg/user"
	log "github.com/sirupsen/logrus"
)

// Dependencies holds all services and handlers for the application.
type Dependencies struct {
	UserService user.Service
	UserHandler *user.Handler

	HolidayRepo holiday.Repo

	PolicyRepo    calendar.PolicyRepo
	PolicyService calendar.PolicyService
	PolicyHandler *calendar.PolicyHandler

	OverrideRepo    override.Repo
	OverrideService override.Service
	OverrideHandler *override.Handler

	MealStatusRepo    meal_status.Repo
	MealStatusService meal_status.Service
	MealStatusHandler *meal_status.Handler

	LedgerRepo    ledger.Repo
	LedgerService ledger.Service
	LedgerHandler *ledger.Handler

	DailyCostRepo    daily_cost.Repo
	DailyCostService daily_cost.Service
	DailyCostHandler *daily_cost.Handler

	EventBus *event_bus.EventBus
	Clock    utils.Clock
}

// BuildDependencies initializes and wires all application services and handlers.
func BuildDependencies(db *sql.DB, cfg config.Application) *Dependencies {
	deps := &Dependencies{}

	deps.Clock = &utils.SystemClock{}
	deps.EventBus = event_bus.NewEventBus()

	deps.UserService = user.NewService(user.NewRepo(db))
	deps.UserHandler = user.NewHandler(deps.UserService)

	deps.HolidayRepo = holiday.NewRepo(db)

	deps.PolicyRepo = calendar.NewPolicyRepo(db)
	deps.PolicyService = calendar.NewPolicyService(deps.PolicyRepo, deps.EventBus, deps.Clock)
	deps.PolicyHandler = calendar.NewPolicyHandler(deps.PolicyService)

	deps.OverrideRepo = override.NewRepo(db)
	deps.OverrideService = override.NewService(deps.OverrideRepo, deps.Clock)
	deps.OverrideHandler = override.NewHandler(deps.OverrideService)

	deps.MealStatusRepo = meal_status.NewRepo(db)
	deps.MealStatusService = meal_status.NewService(deps.MealStatusRepo, deps.OverrideService, deps.PolicyService, deps.HolidayRepo, deps.Clock)
	deps.MealStatusHandler = meal_status.NewHandler(deps.MealStatusService)

	deps.LedgerRepo = ledger.NewRepo(db)
	deps.LedgerService = ledger.NewService(deps.LedgerRepo, deps.EventBus, deps.Clock)
	deps.LedgerHandler = ledger.NewHandler(deps.LedgerService)

	deps.DailyCostRepo = daily_cost.NewRepo(db)
	deps.DailyCostService = daily_cost.NewService(deps.DailyCostRepo, deps.LedgerService, deps.EventBus, deps.Clock)
	deps.DailyCostHandler = daily_cost.NewHandler(deps.DailyCostService)

	subscribeEventLogging(deps.EventBus)

	return deps
}

// subscribeEventLogging records settlement activity in the application log.
func subscribeEventLogging(bus *event_bus.EventBus) {
	event_bus.SubscribeTyped(bus, event_bus.DailyCostFinalizedEvent, func(e event_bus.EventT[event_bus.DailyCostFinalized]) error {
		log.Infof("Daily cost %s finalized for %s: %d deducted, %d skipped, %s charged",
			e.Data.EventID, e.Data.Date, e.Data.Deducted, e.Data.Skipped, e.Data.TotalCharged.String())
		return nil
	})
	event_bus.SubscribeTyped(bus, event_bus.DailyCostReversedEvent, func(e event_bus.EventT[event_bus.DailyCostReversed]) error {
		log.Infof("Daily cost %s reversed for %s: %d refunded (%s)",
			e.Data.EventID, e.Data.Date, e.Data.Refunded, e.Data.Reason)
		return nil
	})
}
