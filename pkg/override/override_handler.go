package override

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/messbook/messbook/internal/rest"
	"github.com/messbook/messbook/pkg/meal"
	"github.com/messbook/messbook/pkg/user"
	log "github.com/sirupsen/logrus"
)

type DateSpecDTO struct {
	Kind           string  `json:"kind"`
	Date           *string `json:"date,omitempty"`
	StartDate      *string `json:"startDate,omitempty"`
	EndDate        *string `json:"endDate,omitempty"`
	Pattern        string  `json:"pattern,omitempty"`
	RecurrenceDays []int   `json:"recurrenceDays,omitempty"`
}

type RuleDTO struct {
	ID           string      `json:"id,omitempty"`
	Scope        string      `json:"scope"`
	TargetUserID *int        `json:"targetUserId,omitempty"`
	DateSpec     DateSpecDTO `json:"dateSpec"`
	Category     string      `json:"category"`
	Action       string      `json:"action"`
	Priority     *int        `json:"priority,omitempty"`
	// Active defaults to true when omitted on create.
	Active      *bool      `json:"active"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	CreatedBy   int        `json:"createdBy,omitempty"`
	CreatorRole string     `json:"creatorRole,omitempty"`
	Reason      string     `json:"reason,omitempty"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// CreateRule godoc
// @Summary Create an override rule
// @Description Create a rule forcing meals on or off for the selected dates and members
// @Tags Override
// @Accept json
// @Produce json
// @Param rule body RuleDTO true "Rule to create"
// @Success 201 {object} RuleDTO
// @Failure 400 {object} rest.ErrorResponse "Invalid rule"
// @Failure 403 {object} rest.ErrorResponse "Scope not allowed for role"
// @Router /api/override [post]
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var dto RuleDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	rule, err := dtoToRule(dto)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid rule", err.Error())
		return
	}

	created, err := h.service.Create(r.Context(), rule)
	if err != nil {
		respondRuleError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(ruleToDTO(created)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// GetRule godoc
// @Summary Get an override rule
// @Tags Override
// @Produce json
// @Param ruleId path string true "Rule ID"
// @Success 200 {object} RuleDTO
// @Failure 404 {object} rest.ErrorResponse "Rule not found"
// @Router /api/override/{ruleId} [get]
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	rule, err := h.service.Get(r.Context(), mux.Vars(r)["ruleId"])
	if err != nil {
		respondRuleError(w, err)
		return
	}
	if err := json.NewEncoder(w).Encode(ruleToDTO(rule)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// UpdateRule godoc
// @Summary Update an override rule
// @Description Replace the rule's spec. Creator fields stay unchanged.
// @Tags Override
// @Accept json
// @Produce json
// @Param ruleId path string true "Rule ID"
// @Param rule body RuleDTO true "New rule spec"
// @Success 200 {object} RuleDTO
// @Failure 400 {object} rest.ErrorResponse "Invalid rule"
// @Failure 403 {object} rest.ErrorResponse "Not allowed to modify this rule"
// @Failure 404 {object} rest.ErrorResponse "Rule not found"
// @Router /api/override/{ruleId} [put]
func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var dto RuleDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	rule, err := dtoToRule(dto)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid rule", err.Error())
		return
	}

	updated, err := h.service.Update(r.Context(), mux.Vars(r)["ruleId"], rule)
	if err != nil {
		respondRuleError(w, err)
		return
	}
	if err := json.NewEncoder(w).Encode(ruleToDTO(updated)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// DeleteRule godoc
// @Summary Delete an override rule
// @Tags Override
// @Param ruleId path string true "Rule ID"
// @Success 204 "No Content"
// @Failure 403 {object} rest.ErrorResponse "Not allowed to modify this rule"
// @Failure 404 {object} rest.ErrorResponse "Rule not found"
// @Router /api/override/{ruleId} [delete]
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), mux.Vars(r)["ruleId"]); err != nil {
		w.Header().Set("Content-Type", "application/json")
		respondRuleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ToggleRule godoc
// @Summary Toggle an override rule
// @Description Flip the rule's active flag
// @Tags Override
// @Produce json
// @Param ruleId path string true "Rule ID"
// @Success 200 {object} RuleDTO
// @Failure 403 {object} rest.ErrorResponse "Not allowed to modify this rule"
// @Failure 404 {object} rest.ErrorResponse "Rule not found"
// @Router /api/override/{ruleId}/status [patch]
func (h *Handler) ToggleRule(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	rule, err := h.service.Toggle(r.Context(), mux.Vars(r)["ruleId"])
	if err != nil {
		respondRuleError(w, err)
		return
	}
	if err := json.NewEncoder(w).Encode(ruleToDTO(rule)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// ListApplicableRules godoc
// @Summary List rules applying to a date
// @Description List active rules matching the date, member and category, strongest first
// @Tags Override
// @Produce json
// @Param date query string true "Date (YYYY-MM-DD)"
// @Param userId query int false "Member ID, defaults to the current user"
// @Param category query string true "Meal category (lunch or dinner)"
// @Success 200 {array} RuleDTO
// @Failure 400 {object} rest.ErrorResponse "Invalid query"
// @Router /api/override [get]
func (h *Handler) ListApplicableRules(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	date, err := meal.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format", "'date' must be formatted as YYYY-MM-DD")
		return
	}
	category, err := meal.ParseCategory(r.URL.Query().Get("category"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid category", err.Error())
		return
	}
	userID, err := queryUserID(r)
	if err != nil {
		respondRuleError(w, err)
		return
	}

	rules, err := h.service.ListApplicable(r.Context(), date, userID, category)
	if err != nil {
		respondRuleError(w, err)
		return
	}

	dtos := make([]RuleDTO, 0, len(rules))
	for _, rule := range rules {
		dtos = append(dtos, ruleToDTO(rule))
	}
	if err := json.NewEncoder(w).Encode(dtos); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// ListAllRules godoc
// @Summary List all override rules
// @Description Management view of every rule, inactive ones included
// @Tags Override
// @Produce json
// @Success 200 {array} RuleDTO
// @Failure 403 {object} rest.ErrorResponse "Manager role required"
// @Router /api/override [get]
func (h *Handler) ListAllRules(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	rules, err := h.service.ListAll(r.Context())
	if err != nil {
		respondRuleError(w, err)
		return
	}

	dtos := make([]RuleDTO, 0, len(rules))
	for _, rule := range rules {
		dtos = append(dtos, ruleToDTO(rule))
	}
	if err := json.NewEncoder(w).Encode(dtos); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// queryUserID resolves the userId query param, falling back to the actor.
func queryUserID(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("userId")
	if raw == "" {
		return user.CurrentId(r.Context())
	}
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: userId must be numeric", ErrInvalidRule)
	}
	return id, nil
}

func respondRuleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidRule):
		writeError(w, http.StatusBadRequest, "Invalid rule", err.Error())
	case errors.Is(err, ErrPermissionDenied):
		writeError(w, http.StatusForbidden, "Permission denied", err.Error())
	case errors.Is(err, ErrRuleNotFound):
		writeError(w, http.StatusNotFound, "Rule not found", "")
	case errors.Is(err, user.ErrNoUser):
		writeError(w, http.StatusUnauthorized, "No user in request context", "")
	default:
		log.Errorf("override request failed: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, message string, details string) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(rest.ErrorResponse{Error: message, Details: details}); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func ruleToDTO(rule Rule) RuleDTO {
	active := rule.Active
	createdAt := rule.CreatedAt
	return RuleDTO{
		ID:           rule.ID,
		Scope:        string(rule.Scope),
		TargetUserID: rule.TargetUserID,
		DateSpec: DateSpecDTO{
			Kind:           string(rule.DateSpec.Kind),
			Date:           dateString(rule.DateSpec.Date),
			StartDate:      dateString(rule.DateSpec.StartDate),
			EndDate:        dateString(rule.DateSpec.EndDate),
			Pattern:        string(rule.DateSpec.Pattern),
			RecurrenceDays: rule.DateSpec.RecurrenceDays,
		},
		Category:    string(rule.Category),
		Action:      string(rule.Action),
		Priority:    rule.Priority,
		Active:      &active,
		ExpiresAt:   rule.ExpiresAt,
		CreatedBy:   rule.CreatedBy,
		CreatorRole: string(rule.CreatorRole),
		Reason:      rule.Reason,
		CreatedAt:   &createdAt,
	}
}

func dtoToRule(dto RuleDTO) (Rule, error) {
	active := true
	if dto.Active != nil {
		active = *dto.Active
	}
	spec := DateSpec{
		Kind:           DateSpecKind(dto.DateSpec.Kind),
		Pattern:        RecurrencePattern(dto.DateSpec.Pattern),
		RecurrenceDays: dto.DateSpec.RecurrenceDays,
	}
	var err error
	if spec.Date, err = parseDTODate(dto.DateSpec.Date); err != nil {
		return Rule{}, err
	}
	if spec.StartDate, err = parseDTODate(dto.DateSpec.StartDate); err != nil {
		return Rule{}, err
	}
	if spec.EndDate, err = parseDTODate(dto.DateSpec.EndDate); err != nil {
		return Rule{}, err
	}
	return Rule{
		Scope:        Scope(dto.Scope),
		TargetUserID: dto.TargetUserID,
		DateSpec:     spec,
		Category:     meal.RuleCategory(dto.Category),
		Action:       Action(dto.Action),
		Priority:     dto.Priority,
		Active:       active,
		ExpiresAt:    dto.ExpiresAt,
		Reason:       dto.Reason,
	}, nil
}

func parseDTODate(s *string) (*meal.Date, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	d, err := meal.ParseDate(*s)
	if err != nil {
		return nil, fmt.Errorf("%w: date %q must be formatted as YYYY-MM-DD", ErrInvalidRule, *s)
	}
	return &d, nil
}
