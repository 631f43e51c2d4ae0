package app

import (
	"github.com/gorilla/mux"
	"github.com/messbook/messbook/internal/config"
)

// RegisterRoutes registers all API endpoints.
func RegisterRoutes(r *mux.Router, deps *Dependencies, cfg config.Application) {

	// Meal status
	r.HandleFunc("/api/meal/status", deps.MealStatusHandler.GetStatus).Methods("GET")
	r.HandleFunc("/api/meal/manual", deps.MealStatusHandler.SetManualRecord).Methods("PUT")
	r.HandleFunc("/api/meal/manual", deps.MealStatusHandler.ClearManualRecord).Methods("DELETE")

	// Override rules
	r.HandleFunc("/api/override", deps.OverrideHandler.CreateRule).Methods("POST")
	r.HandleFunc("/api/override", deps.OverrideHandler.ListApplicableRules).Queries("date", "{date}").Methods("GET")
	r.HandleFunc("/api/override", deps.OverrideHandler.ListAllRules).Methods("GET")
	r.HandleFunc("/api/override/{ruleId}", deps.OverrideHandler.GetRule).Methods("GET")
	r.HandleFunc("/api/override/{ruleId}", deps.OverrideHandler.UpdateRule).Methods("PUT")
	r.HandleFunc("/api/override/{ruleId}", deps.OverrideHandler.DeleteRule).Methods("DELETE")
	r.HandleFunc("/api/override/{ruleId}/status", deps.OverrideHandler.ToggleRule).Methods("PATCH")

	// Calendar policy
	r.HandleFunc("/api/calendar/policy", deps.PolicyHandler.GetPolicy).Methods("GET")
	r.HandleFunc("/api/calendar/policy", deps.PolicyHandler.UpdatePolicy).Methods("PUT")

	// Balance ledger
	r.HandleFunc("/api/ledger/transaction", deps.LedgerHandler.ApplyTransaction).Methods("POST")
	r.HandleFunc("/api/ledger/transaction", deps.LedgerHandler.ListTransactions).Methods("GET")
	r.HandleFunc("/api/ledger/transaction/{transactionId}/reverse", deps.LedgerHandler.ReverseTransaction).Methods("POST")
	r.HandleFunc("/api/ledger/balance", deps.LedgerHandler.GetBalance).Methods("GET")
	r.HandleFunc("/api/ledger/balance/freeze", deps.LedgerHandler.FreezeBalance).Methods("PUT")
	r.HandleFunc("/api/ledger/balance/unfreeze", deps.LedgerHandler.UnfreezeBalance).Methods("PUT")

	// Daily cost events
	r.HandleFunc("/api/dailycost", deps.DailyCostHandler.CreateEvent).Methods("POST")
	r.HandleFunc("/api/dailycost", deps.DailyCostHandler.GetEventByDate).Queries("date", "{date}").Methods("GET")
	r.HandleFunc("/api/dailycost/{eventId}", deps.DailyCostHandler.GetEvent).Methods("GET")
	r.HandleFunc("/api/dailycost/{eventId}/finalize", deps.DailyCostHandler.FinalizeEvent).Methods("POST")
	r.HandleFunc("/api/dailycost/{eventId}/reverse", deps.DailyCostHandler.ReverseEvent).Methods("POST")
	r.HandleFunc("/api/dailycost/{eventId}", deps.DailyCostHandler.UpdateEvent).Methods("PUT")
	r.HandleFunc("/api/dailycost/{eventId}", deps.DailyCostHandler.DeleteEvent).Methods("DELETE")

	// User management
	r.HandleFunc("/api/user/current", deps.UserHandler.CurrentUser).Methods("GET")
	r.HandleFunc("/api/user", deps.UserHandler.ListUsers).Methods("GET")
}
