package ledger

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/messbook/messbook/internal/rest"
	"github.com/messbook/messbook/pkg/meal"
	"github.com/messbook/messbook/pkg/user"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

type BalanceDTO struct {
	UserID       int             `json:"userId"`
	Category     string          `json:"category"`
	Amount       decimal.Decimal `json:"amount"`
	Frozen       bool            `json:"frozen"`
	FrozenBy     *int            `json:"frozenBy,omitempty"`
	FrozenAt     *time.Time      `json:"frozenAt,omitempty"`
	FrozenReason string          `json:"frozenReason,omitempty"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

type TransactionDTO struct {
	ID              string          `json:"id"`
	UserID          int             `json:"userId"`
	Category        string          `json:"category"`
	Amount          decimal.Decimal `json:"amount"`
	PreviousBalance decimal.Decimal `json:"previousBalance"`
	NewBalance      decimal.Decimal `json:"newBalance"`
	Kind            string          `json:"kind"`
	ReferenceID     *string         `json:"referenceId,omitempty"`
	Note            string          `json:"note,omitempty"`
	IsReversed      bool            `json:"isReversed"`
	ActorID         int             `json:"actorId"`
	CreatedAt       time.Time       `json:"createdAt"`
}

type ApplyTransactionDTO struct {
	UserID      int             `json:"userId"`
	Category    string          `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	Kind        string          `json:"kind"`
	ReferenceID *string         `json:"referenceId,omitempty"`
	Note        string          `json:"note,omitempty"`
}

type ReverseTransactionDTO struct {
	Reason string `json:"reason"`
}

type FreezeBalanceDTO struct {
	UserID   int    `json:"userId"`
	Category string `json:"category"`
	Reason   string `json:"reason,omitempty"`
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service}
}

// ApplyTransaction handles POST requests that record a ledger transaction.
//
// @Summary Record a ledger transaction
// @Tags ledger
// @Accept json
// @Produce json
// @Param transaction body ApplyTransactionDTO true "Transaction to record"
// @Success 201 {object} TransactionDTO
// @Router /api/ledger/transaction [post]
func (handler *Handler) ApplyTransaction(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var dto ApplyTransactionDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeLedgerError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	applied, err := handler.service.Apply(r.Context(), ApplyRequest{
		UserID:      dto.UserID,
		Category:    meal.Category(dto.Category),
		Amount:      dto.Amount,
		Kind:        Kind(dto.Kind),
		ReferenceID: dto.ReferenceID,
		Note:        dto.Note,
	})
	if err != nil {
		respondLedgerError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(transactionToDTO(applied)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

// ReverseTransaction handles POST requests that reverse a ledger transaction.
//
// @Summary Reverse a ledger transaction
// @Tags ledger
// @Accept json
// @Produce json
// @Param transactionId path string true "Transaction ID"
// @Param reversal body ReverseTransactionDTO true "Reversal reason"
// @Success 201 {object} TransactionDTO
// @Router /api/ledger/transaction/{transactionId}/reverse [post]
func (handler *Handler) ReverseTransaction(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	transactionID := mux.Vars(r)["transactionId"]

	var dto ReverseTransactionDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeLedgerError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	reversal, err := handler.service.Reverse(r.Context(), transactionID, dto.Reason)
	if err != nil {
		respondLedgerError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(transactionToDTO(reversal)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

// GetBalance handles GET requests for balances. With a category parameter it
// returns that single balance, otherwise all balances of the user.
//
// @Summary Get prepaid balances
// @Tags ledger
// @Produce json
// @Param userId query int false "User ID, defaults to the current user"
// @Param category query string false "Meal category (lunch or dinner)"
// @Success 200 {array} BalanceDTO
// @Router /api/ledger/balance [get]
func (handler *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	userID, ok := ledgerUserID(w, r)
	if !ok {
		return
	}

	if categoryParam := r.URL.Query().Get("category"); categoryParam != "" {
		category, err := meal.ParseCategory(categoryParam)
		if err != nil {
			writeLedgerError(w, http.StatusBadRequest, "Invalid category", err.Error())
			return
		}
		balance, err := handler.service.GetBalance(r.Context(), userID, category)
		if err != nil {
			respondLedgerError(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(balanceToDTO(balance)); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	balances, err := handler.service.ListBalances(r.Context(), userID)
	if err != nil {
		respondLedgerError(w, err)
		return
	}
	dtos := make([]BalanceDTO, 0, len(balances))
	for _, balance := range balances {
		dtos = append(dtos, balanceToDTO(balance))
	}
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(dtos); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

// ListTransactions handles GET requests for a user's transaction statement.
//
// @Summary List ledger transactions
// @Tags ledger
// @Produce json
// @Param userId query int false "User ID, defaults to the current user"
// @Param category query string false "Meal category (lunch or dinner)"
// @Param from query string false "First day to include (YYYY-MM-DD)"
// @Param to query string false "Last day to include (YYYY-MM-DD)"
// @Success 200 {array} TransactionDTO
// @Router /api/ledger/transaction [get]
func (handler *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	userID, ok := ledgerUserID(w, r)
	if !ok {
		return
	}
	filter := TransactionFilter{UserID: userID}

	if categoryParam := r.URL.Query().Get("category"); categoryParam != "" {
		category, err := meal.ParseCategory(categoryParam)
		if err != nil {
			writeLedgerError(w, http.StatusBadRequest, "Invalid category", err.Error())
			return
		}
		filter.Category = &category
	}
	if fromParam := r.URL.Query().Get("from"); fromParam != "" {
		from, err := meal.ParseDate(fromParam)
		if err != nil {
			writeLedgerError(w, http.StatusBadRequest, "Invalid from date", err.Error())
			return
		}
		fromTime := from.Time()
		filter.From = &fromTime
	}
	if toParam := r.URL.Query().Get("to"); toParam != "" {
		to, err := meal.ParseDate(toParam)
		if err != nil {
			writeLedgerError(w, http.StatusBadRequest, "Invalid to date", err.Error())
			return
		}
		// The filter's upper bound is exclusive, so include the whole day.
		toTime := to.AddDays(1).Time()
		filter.To = &toTime
	}

	transactions, err := handler.service.ListTransactions(r.Context(), filter)
	if err != nil {
		respondLedgerError(w, err)
		return
	}
	dtos := make([]TransactionDTO, 0, len(transactions))
	for _, transaction := range transactions {
		dtos = append(dtos, transactionToDTO(transaction))
	}
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(dtos); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

// FreezeBalance handles PUT requests that freeze a balance.
//
// @Summary Freeze a balance
// @Tags ledger
// @Accept json
// @Produce json
// @Param freeze body FreezeBalanceDTO true "Balance to freeze"
// @Success 200 {object} BalanceDTO
// @Router /api/ledger/balance/freeze [put]
func (handler *Handler) FreezeBalance(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var dto FreezeBalanceDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeLedgerError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	balance, err := handler.service.Freeze(r.Context(), dto.UserID, meal.Category(dto.Category), dto.Reason)
	if err != nil {
		respondLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(balanceToDTO(balance)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

// UnfreezeBalance handles PUT requests that unfreeze a balance.
//
// @Summary Unfreeze a balance
// @Tags ledger
// @Accept json
// @Produce json
// @Param unfreeze body FreezeBalanceDTO true "Balance to unfreeze"
// @Success 200 {object} BalanceDTO
// @Router /api/ledger/balance/unfreeze [put]
func (handler *Handler) UnfreezeBalance(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var dto FreezeBalanceDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeLedgerError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	balance, err := handler.service.Unfreeze(r.Context(), dto.UserID, meal.Category(dto.Category))
	if err != nil {
		respondLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(balanceToDTO(balance)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

// ledgerUserID reads the optional userId query parameter. Zero means "the
// current user" and is resolved by the service.
func ledgerUserID(w http.ResponseWriter, r *http.Request) (int, bool) {
	param := r.URL.Query().Get("userId")
	if param == "" {
		return 0, true
	}
	userID, err := strconv.Atoi(param)
	if err != nil {
		writeLedgerError(w, http.StatusBadRequest, "Invalid userId", "userId must be numeric")
		return 0, false
	}
	return userID, true
}

func respondLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidTransaction):
		writeLedgerError(w, http.StatusBadRequest, "Invalid transaction", err.Error())
	case errors.Is(err, user.ErrNoUser):
		writeLedgerError(w, http.StatusUnauthorized, "Unauthorized", "no user in request context")
	case errors.Is(err, ErrPermissionDenied):
		writeLedgerError(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, ErrTransactionNotFound):
		writeLedgerError(w, http.StatusNotFound, "Transaction not found", err.Error())
	case errors.Is(err, ErrBalanceFrozen):
		writeLedgerError(w, http.StatusConflict, "Balance frozen", err.Error())
	case errors.Is(err, ErrAlreadyReversed):
		writeLedgerError(w, http.StatusConflict, "Already reversed", err.Error())
	case errors.Is(err, ErrCannotReverse):
		writeLedgerError(w, http.StatusConflict, "Cannot reverse", err.Error())
	case errors.Is(err, ErrConflict):
		writeLedgerError(w, http.StatusConflict, "Concurrent update", "the balance changed concurrently, retry the request")
	default:
		log.Errorf("ledger handler error: %v", err)
		writeLedgerError(w, http.StatusInternalServerError, "Internal server error", "")
	}
}

func writeLedgerError(w http.ResponseWriter, status int, message string, details string) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(rest.ErrorResponse{Error: message, Details: details}); err != nil {
		log.Errorf("could not encode error response: %v", err)
	}
}

func balanceToDTO(balance Balance) BalanceDTO {
	return BalanceDTO{
		UserID:       balance.UserID,
		Category:     string(balance.Category),
		Amount:       balance.Amount,
		Frozen:       balance.Frozen,
		FrozenBy:     balance.FrozenBy,
		FrozenAt:     balance.FrozenAt,
		FrozenReason: balance.FrozenReason,
		UpdatedAt:    balance.UpdatedAt,
	}
}

func transactionToDTO(transaction Transaction) TransactionDTO {
	return TransactionDTO{
		ID:              transaction.ID,
		UserID:          transaction.UserID,
		Category:        string(transaction.Category),
		Amount:          transaction.Amount,
		PreviousBalance: transaction.PreviousBalance,
		NewBalance:      transaction.NewBalance,
		Kind:            string(transaction.Kind),
		ReferenceID:     transaction.ReferenceID,
		Note:            transaction.Note,
		IsReversed:      transaction.IsReversed,
		ActorID:         transaction.ActorID,
		CreatedAt:       transaction.CreatedAt,
	}
}
