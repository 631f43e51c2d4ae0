package daily_cost

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/messbook/messbook/internal/rest"
	"github.com/messbook/messbook/pkg/ledger"
	"github.com/messbook/messbook/pkg/meal"
	"github.com/messbook/messbook/pkg/user"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

type CostEventDTO struct {
	ID            string           `json:"id"`
	Date          string           `json:"date"`
	Category      string           `json:"category"`
	TotalCost     decimal.Decimal  `json:"totalCost"`
	Participants  []ParticipantDTO `json:"participants"`
	IsFinalized   bool             `json:"isFinalized"`
	FinalizedAt   *time.Time       `json:"finalizedAt,omitempty"`
	IsReversed    bool             `json:"isReversed"`
	ReversedAt    *time.Time       `json:"reversedAt,omitempty"`
	ReverseReason string           `json:"reverseReason,omitempty"`
	CreatedBy     int              `json:"createdBy"`
	CreatedAt     time.Time        `json:"createdAt"`
}

type ParticipantDTO struct {
	UserID     int             `json:"userId"`
	Cost       decimal.Decimal `json:"cost"`
	Deducted   bool            `json:"deducted"`
	DeductedAt *time.Time      `json:"deductedAt,omitempty"`
}

type EqualSplitDTO struct {
	TotalCost      decimal.Decimal `json:"totalCost"`
	ParticipantIDs []int           `json:"participantIds"`
}

type ItemizedCostDTO struct {
	UserID int             `json:"userId"`
	Cost   decimal.Decimal `json:"cost"`
}

type CreateEventDTO struct {
	Date       string            `json:"date"`
	Category   string            `json:"category"`
	EqualSplit *EqualSplitDTO    `json:"equalSplit,omitempty"`
	Itemized   []ItemizedCostDTO `json:"itemized,omitempty"`
}

type UpdateEventDTO struct {
	EqualSplit *EqualSplitDTO    `json:"equalSplit,omitempty"`
	Itemized   []ItemizedCostDTO `json:"itemized,omitempty"`
}

type ReverseEventDTO struct {
	Reason string `json:"reason"`
}

type ParticipantErrorDTO struct {
	UserID int    `json:"userId"`
	Reason string `json:"reason"`
}

type FinalizeResultDTO struct {
	Event  CostEventDTO          `json:"event"`
	Errors []ParticipantErrorDTO `json:"errors,omitempty"`
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service}
}

// CreateEvent handles POST requests that create a daily cost event.
//
// @Summary Create a daily cost event
// @Tags dailycost
// @Accept json
// @Produce json
// @Param event body CreateEventDTO true "Cost event to create"
// @Success 201 {object} CostEventDTO
// @Router /api/dailycost [post]
func (handler *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var dto CreateEventDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeCostError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	date, err := meal.ParseDate(dto.Date)
	if err != nil {
		writeCostError(w, http.StatusBadRequest, "Invalid date", err.Error())
		return
	}

	event, err := handler.service.Create(r.Context(), date, meal.Category(dto.Category), dtoToSpec(dto.EqualSplit, dto.Itemized))
	if err != nil {
		respondCostError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(eventToDTO(event)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

// GetEvent handles GET requests for a single cost event by ID.
//
// @Summary Get a daily cost event
// @Tags dailycost
// @Produce json
// @Param eventId path string true "Cost event ID"
// @Success 200 {object} CostEventDTO
// @Router /api/dailycost/{eventId} [get]
func (handler *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	event, err := handler.service.Get(r.Context(), mux.Vars(r)["eventId"])
	if err != nil {
		respondCostError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(eventToDTO(event)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

// GetEventByDate handles GET requests that look a cost event up by date.
//
// @Summary Get the daily cost event of a date
// @Tags dailycost
// @Produce json
// @Param date query string true "Date (YYYY-MM-DD)"
// @Success 200 {object} CostEventDTO
// @Router /api/dailycost [get]
func (handler *Handler) GetEventByDate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	date, err := meal.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeCostError(w, http.StatusBadRequest, "Invalid date", err.Error())
		return
	}
	event, err := handler.service.GetByDate(r.Context(), date)
	if err != nil {
		respondCostError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(eventToDTO(event)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

// FinalizeEvent handles POST requests that run the deduction batch.
//
// @Summary Finalize a daily cost event
// @Tags dailycost
// @Produce json
// @Param eventId path string true "Cost event ID"
// @Success 200 {object} FinalizeResultDTO
// @Router /api/dailycost/{eventId}/finalize [post]
func (handler *Handler) FinalizeEvent(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	result, err := handler.service.Finalize(r.Context(), mux.Vars(r)["eventId"])
	if err != nil {
		respondCostError(w, err)
		return
	}

	dto := FinalizeResultDTO{Event: eventToDTO(result.Event)}
	for _, participantError := range result.Errors {
		dto.Errors = append(dto.Errors, ParticipantErrorDTO{
			UserID: participantError.UserID,
			Reason: participantError.Reason,
		})
	}
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(dto); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

// ReverseEvent handles POST requests that refund a finalized cost event.
//
// @Summary Reverse a daily cost event
// @Tags dailycost
// @Accept json
// @Produce json
// @Param eventId path string true "Cost event ID"
// @Param reversal body ReverseEventDTO true "Reverse reason"
// @Success 200 {object} CostEventDTO
// @Router /api/dailycost/{eventId}/reverse [post]
func (handler *Handler) ReverseEvent(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var dto ReverseEventDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeCostError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	event, err := handler.service.Reverse(r.Context(), mux.Vars(r)["eventId"], dto.Reason)
	if err != nil {
		respondCostError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(eventToDTO(event)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

// UpdateEvent handles PUT requests that replace a draft's cost breakdown.
//
// @Summary Update a draft cost event
// @Tags dailycost
// @Accept json
// @Produce json
// @Param eventId path string true "Cost event ID"
// @Param event body UpdateEventDTO true "New cost breakdown"
// @Success 200 {object} CostEventDTO
// @Router /api/dailycost/{eventId} [put]
func (handler *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var dto UpdateEventDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeCostError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	event, err := handler.service.UpdateDraft(r.Context(), mux.Vars(r)["eventId"], dtoToSpec(dto.EqualSplit, dto.Itemized))
	if err != nil {
		respondCostError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(eventToDTO(event)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

// DeleteEvent handles DELETE requests for draft cost events.
//
// @Summary Delete a draft cost event
// @Tags dailycost
// @Param eventId path string true "Cost event ID"
// @Success 204
// @Router /api/dailycost/{eventId} [delete]
func (handler *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := handler.service.DeleteDraft(r.Context(), mux.Vars(r)["eventId"]); err != nil {
		w.Header().Set("Content-Type", "application/json")
		respondCostError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func respondCostError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidEvent):
		writeCostError(w, http.StatusBadRequest, "Invalid cost event", err.Error())
	case errors.Is(err, user.ErrNoUser):
		writeCostError(w, http.StatusUnauthorized, "Unauthorized", "no user in request context")
	case errors.Is(err, ErrPermissionDenied):
		writeCostError(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, ErrEventNotFound):
		writeCostError(w, http.StatusNotFound, "Cost event not found", err.Error())
	case errors.Is(err, ErrDuplicateEvent):
		writeCostError(w, http.StatusConflict, "Duplicate cost event", err.Error())
	case errors.Is(err, ErrAlreadyFinalized):
		writeCostError(w, http.StatusConflict, "Already finalized", err.Error())
	case errors.Is(err, ErrNotFinalized):
		writeCostError(w, http.StatusConflict, "Not finalized", err.Error())
	case errors.Is(err, ErrAlreadyReversed):
		writeCostError(w, http.StatusConflict, "Already reversed", err.Error())
	case errors.Is(err, ErrEventReversed):
		writeCostError(w, http.StatusConflict, "Event reversed", err.Error())
	case errors.Is(err, ledger.ErrBalanceFrozen):
		writeCostError(w, http.StatusConflict, "Balance frozen", err.Error())
	default:
		log.Errorf("daily cost handler error: %v", err)
		writeCostError(w, http.StatusInternalServerError, "Internal server error", "")
	}
}

func writeCostError(w http.ResponseWriter, status int, message string, details string) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(rest.ErrorResponse{Error: message, Details: details}); err != nil {
		log.Errorf("could not encode error response: %v", err)
	}
}

func dtoToSpec(equalSplit *EqualSplitDTO, itemized []ItemizedCostDTO) CostSpec {
	var spec CostSpec
	if equalSplit != nil {
		spec.EqualSplit = &EqualSplit{
			TotalCost:      equalSplit.TotalCost,
			ParticipantIDs: equalSplit.ParticipantIDs,
		}
	}
	for _, item := range itemized {
		spec.Itemized = append(spec.Itemized, ItemizedCost{UserID: item.UserID, Cost: item.Cost})
	}
	return spec
}

func eventToDTO(event CostEvent) CostEventDTO {
	participants := make([]ParticipantDTO, 0, len(event.Participants))
	for _, participant := range event.Participants {
		participants = append(participants, ParticipantDTO{
			UserID:     participant.UserID,
			Cost:       participant.Cost,
			Deducted:   participant.Deducted,
			DeductedAt: participant.DeductedAt,
		})
	}
	return CostEventDTO{
		ID:            event.ID,
		Date:          event.Date.String(),
		Category:      string(event.Category),
		TotalCost:     event.TotalCost,
		Participants:  participants,
		IsFinalized:   event.IsFinalized,
		FinalizedAt:   event.FinalizedAt,
		IsReversed:    event.IsReversed,
		ReversedAt:    event.ReversedAt,
		ReverseReason: event.ReverseReason,
		CreatedBy:     event.CreatedBy,
		CreatedAt:     event.CreatedAt,
	}
}
