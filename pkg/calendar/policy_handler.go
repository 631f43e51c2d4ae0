package calendar

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/messbook/messbook/internal/rest"
	log "github.com/sirupsen/logrus"
)

type PolicyDTO struct {
	FridayOff            bool      `json:"fridayOff"`
	SaturdayOff          bool      `json:"saturdayOff"`
	OddSaturdayOff       bool      `json:"oddSaturdayOff"`
	EvenSaturdayOff      bool      `json:"evenSaturdayOff"`
	GovernmentHolidayOff bool      `json:"governmentHolidayOff"`
	ReligiousHolidayOff  bool      `json:"religiousHolidayOff"`
	OptionalHolidayOff   bool      `json:"optionalHolidayOff"`
	UpdatedBy            int       `json:"updatedBy,omitempty"`
	UpdatedAt            time.Time `json:"updatedAt,omitempty"`
}

type PolicyHandler struct {
	service PolicyService
}

func NewPolicyHandler(service PolicyService) *PolicyHandler {
	return &PolicyHandler{service: service}
}

// GetPolicy godoc
// @Summary Get the weekend and holiday policy
// @Description Retrieve the calendar policy used to decide default-off days
// @Tags Calendar
// @Produce json
// @Success 200 {object} PolicyDTO
// @Router /api/calendar/policy [get]
func (h *PolicyHandler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	policy, err := h.service.Current(r.Context())
	if err != nil {
		log.Errorf("failed to load calendar policy: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if err := json.NewEncoder(w).Encode(policyToDTO(policy)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// UpdatePolicy godoc
// @Summary Update the weekend and holiday policy
// @Description Replace the calendar policy. Admin role required.
// @Tags Calendar
// @Accept json
// @Produce json
// @Param policy body PolicyDTO true "Policy to store"
// @Success 200 {object} PolicyDTO
// @Failure 400 {object} rest.ErrorResponse "Invalid request body"
// @Failure 403 {object} rest.ErrorResponse "Actor is not an admin"
// @Router /api/calendar/policy [put]
func (h *PolicyHandler) UpdatePolicy(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var dto PolicyDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		if encodeErr := json.NewEncoder(w).Encode(rest.ErrorResponse{
			Error: "Invalid request body",
		}); encodeErr != nil {
			http.Error(w, encodeErr.Error(), http.StatusInternalServerError)
		}
		return
	}

	policy, err := h.service.Update(r.Context(), dtoToPolicy(dto))
	if err != nil {
		if errors.Is(err, ErrPolicyPermission) {
			w.WriteHeader(http.StatusForbidden)
			if encodeErr := json.NewEncoder(w).Encode(rest.ErrorResponse{
				Error: "Only admins can change the calendar policy",
			}); encodeErr != nil {
				http.Error(w, encodeErr.Error(), http.StatusInternalServerError)
			}
			return
		}
		log.Errorf("failed to update calendar policy: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if err := json.NewEncoder(w).Encode(policyToDTO(policy)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func policyToDTO(p Policy) PolicyDTO {
	return PolicyDTO{
		FridayOff:            p.FridayOff,
		SaturdayOff:          p.SaturdayOff,
		OddSaturdayOff:       p.OddSaturdayOff,
		EvenSaturdayOff:      p.EvenSaturdayOff,
		GovernmentHolidayOff: p.GovernmentHolidayOff,
		ReligiousHolidayOff:  p.ReligiousHolidayOff,
		OptionalHolidayOff:   p.OptionalHolidayOff,
		UpdatedBy:            p.UpdatedBy,
		UpdatedAt:            p.UpdatedAt,
	}
}

func dtoToPolicy(dto PolicyDTO) Policy {
	return Policy{
		FridayOff:            dto.FridayOff,
		SaturdayOff:          dto.SaturdayOff,
		OddSaturdayOff:       dto.OddSaturdayOff,
		EvenSaturdayOff:      dto.EvenSaturdayOff,
		GovernmentHolidayOff: dto.GovernmentHolidayOff,
		ReligiousHolidayOff:  dto.ReligiousHolidayOff,
		OptionalHolidayOff:   dto.OptionalHolidayOff,
	}
}
