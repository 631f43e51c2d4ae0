package meal_status

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/messbook/messbook/internal/rest"
	"github.com/messbook/messbook/pkg/meal"
	"github.com/messbook/messbook/pkg/user"
	log "github.com/sirupsen/logrus"
)

type StatusDTO struct {
	Date          string  `json:"date"`
	UserID        int     `json:"userId"`
	Category      string  `json:"category"`
	IsOn          bool    `json:"isOn"`
	Count         int     `json:"count"`
	Source        string  `json:"source"`
	MatchedRuleID *string `json:"matchedRuleId,omitempty"`
	IsDefaultOff  bool    `json:"isDefaultOff"`
	IsHoliday     bool    `json:"isHoliday"`
	HolidayName   string  `json:"holidayName,omitempty"`
}

type ManualRecordDTO struct {
	UserID    int        `json:"userId,omitempty"`
	Date      string     `json:"date"`
	Category  string     `json:"category"`
	IsOn      bool       `json:"isOn"`
	Count     int        `json:"count,omitempty"`
	Note      string     `json:"note,omitempty"`
	UpdatedBy int        `json:"updatedBy,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// GetStatus godoc
// @Summary Resolve meal status
// @Description Resolve whether a meal is on for a date (or a from/to range), a member and a category
// @Tags MealStatus
// @Produce json
// @Param date query string false "Single date (YYYY-MM-DD)"
// @Param from query string false "Range start (YYYY-MM-DD), used with to"
// @Param to query string false "Range end (YYYY-MM-DD), used with from"
// @Param userId query int false "Member ID, defaults to the current user"
// @Param category query string true "Meal category (lunch or dinner)"
// @Success 200 {array} StatusDTO
// @Failure 400 {object} rest.ErrorResponse "Invalid query"
// @Router /api/meal/status [get]
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	category, err := meal.ParseCategory(r.URL.Query().Get("category"))
	if err != nil {
		writeStatusError(w, http.StatusBadRequest, "Invalid category", err.Error())
		return
	}
	userID, ok := statusUserID(w, r)
	if !ok {
		return
	}

	if dateParam := r.URL.Query().Get("date"); dateParam != "" {
		date, err := meal.ParseDate(dateParam)
		if err != nil {
			writeStatusError(w, http.StatusBadRequest, "Invalid date format", "'date' must be formatted as YYYY-MM-DD")
			return
		}
		decision, err := h.service.Resolve(r.Context(), date, userID, category)
		if err != nil {
			respondStatusError(w, err)
			return
		}
		if err := json.NewEncoder(w).Encode(statusToDTO(decision)); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	from, err := meal.ParseDate(r.URL.Query().Get("from"))
	if err != nil {
		writeStatusError(w, http.StatusBadRequest, "Invalid date range", "provide either 'date' or both 'from' and 'to' formatted as YYYY-MM-DD")
		return
	}
	to, err := meal.ParseDate(r.URL.Query().Get("to"))
	if err != nil {
		writeStatusError(w, http.StatusBadRequest, "Invalid date range", "provide either 'date' or both 'from' and 'to' formatted as YYYY-MM-DD")
		return
	}

	decisions, err := h.service.ResolveRange(r.Context(), from, to, userID, category)
	if err != nil {
		respondStatusError(w, err)
		return
	}
	dtos := make([]StatusDTO, 0, len(decisions))
	for _, decision := range decisions {
		dtos = append(dtos, statusToDTO(decision))
	}
	if err := json.NewEncoder(w).Encode(dtos); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// SetManualRecord godoc
// @Summary Set a manual meal record
// @Description Record an explicit on/off entry for a date, overriding rules and defaults
// @Tags MealStatus
// @Accept json
// @Produce json
// @Param record body ManualRecordDTO true "Record to store"
// @Success 200 {object} ManualRecordDTO
// @Failure 400 {object} rest.ErrorResponse "Invalid record"
// @Failure 403 {object} rest.ErrorResponse "Managing other members requires the manager role"
// @Router /api/meal/manual [put]
func (h *Handler) SetManualRecord(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var dto ManualRecordDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeStatusError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	date, err := meal.ParseDate(dto.Date)
	if err != nil {
		writeStatusError(w, http.StatusBadRequest, "Invalid date format", "'date' must be formatted as YYYY-MM-DD")
		return
	}

	record, err := h.service.SetManual(r.Context(), ManualRecord{
		UserID:   dto.UserID,
		Date:     date,
		Category: meal.Category(dto.Category),
		IsOn:     dto.IsOn,
		Count:    dto.Count,
		Note:     dto.Note,
	})
	if err != nil {
		respondStatusError(w, err)
		return
	}
	if err := json.NewEncoder(w).Encode(recordToDTO(record)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// ClearManualRecord godoc
// @Summary Clear a manual meal record
// @Description Remove the explicit entry so rules and defaults apply again
// @Tags MealStatus
// @Param date query string true "Date (YYYY-MM-DD)"
// @Param userId query int false "Member ID, defaults to the current user"
// @Param category query string true "Meal category (lunch or dinner)"
// @Success 204 "No Content"
// @Failure 404 {object} rest.ErrorResponse "No record for this triple"
// @Router /api/meal/manual [delete]
func (h *Handler) ClearManualRecord(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	date, err := meal.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeStatusError(w, http.StatusBadRequest, "Invalid date format", "'date' must be formatted as YYYY-MM-DD")
		return
	}
	category, err := meal.ParseCategory(r.URL.Query().Get("category"))
	if err != nil {
		writeStatusError(w, http.StatusBadRequest, "Invalid category", err.Error())
		return
	}
	userID, ok := statusUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.ClearManual(r.Context(), userID, date, category); err != nil {
		respondStatusError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// statusUserID resolves the userId query param, falling back to the actor,
// and writes the error response itself when the param is unusable.
func statusUserID(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("userId")
	if raw == "" {
		id, err := user.CurrentId(r.Context())
		if err != nil {
			writeStatusError(w, http.StatusUnauthorized, "No user in request context", "")
			return 0, false
		}
		return id, true
	}
	id, err := strconv.Atoi(raw)
	if err != nil {
		writeStatusError(w, http.StatusBadRequest, "Invalid userId", "userId must be numeric")
		return 0, false
	}
	return id, true
}

func respondStatusError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidRecord), errors.Is(err, ErrInvalidRange):
		writeStatusError(w, http.StatusBadRequest, "Invalid request", err.Error())
	case errors.Is(err, ErrPermissionDenied):
		writeStatusError(w, http.StatusForbidden, "Permission denied", err.Error())
	case errors.Is(err, ErrRecordNotFound):
		writeStatusError(w, http.StatusNotFound, "Record not found", "")
	case errors.Is(err, user.ErrNoUser):
		writeStatusError(w, http.StatusUnauthorized, "No user in request context", "")
	default:
		log.Errorf("meal status request failed: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeStatusError(w http.ResponseWriter, status int, message string, details string) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(rest.ErrorResponse{Error: message, Details: details}); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func statusToDTO(decision StatusDecision) StatusDTO {
	return StatusDTO{
		Date:          decision.Date.String(),
		UserID:        decision.UserID,
		Category:      string(decision.Category),
		IsOn:          decision.IsOn,
		Count:         decision.Count,
		Source:        string(decision.Source),
		MatchedRuleID: decision.MatchedRuleID,
		IsDefaultOff:  decision.IsDefaultOff,
		IsHoliday:     decision.IsHoliday,
		HolidayName:   decision.HolidayName,
	}
}

func recordToDTO(record ManualRecord) ManualRecordDTO {
	updatedAt := record.UpdatedAt
	return ManualRecordDTO{
		UserID:    record.UserID,
		Date:      record.Date.String(),
		Category:  string(record.Category),
		IsOn:      record.IsOn,
		Count:     record.Count,
		Note:      record.Note,
		UpdatedBy: record.UpdatedBy,
		UpdatedAt: &updatedAt,
	}
}
