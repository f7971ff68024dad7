package availability

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/wayne-blip/agromedicana-server/cmd/models"
	"github.com/wayne-blip/agromedicana-server/cmd/utils"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

const (
	defaultStart        = "09:00"
	defaultEnd          = "17:00"
	defaultSlotDuration = 60
)

type AvailabilityHandler struct {
	db *gorm.DB
}

func NewAvailabilityHandler(db *gorm.DB) *AvailabilityHandler {
	return &AvailabilityHandler{db: db}
}

func (h *AvailabilityHandler) RegisterRoutes(router *mux.Router) {
	router.Handle("/availability", utils.AuthMiddleware(http.HandlerFunc(h.GetOwnSchedule))).Methods("GET")
	router.Handle("/availability", utils.AuthMiddleware(http.HandlerFunc(h.UpdateSchedule))).Methods("PUT")
	router.HandleFunc("/availability/{expertId}", h.GetExpertAvailability).Methods("GET")
}

// scheduleDay is the wire form of one weekly schedule entry.
type scheduleDay struct {
	Enabled      bool   `json:"enabled"`
	Start        string `json:"start"`
	End          string `json:"end"`
	SlotDuration int    `json:"slot_duration"`
}

func defaultScheduleDay() scheduleDay {
	return scheduleDay{
		Enabled:      false,
		Start:        defaultStart,
		End:          defaultEnd,
		SlotDuration: defaultSlotDuration,
	}
}

func (h *AvailabilityHandler) loadSchedule(expertID uint) (map[string]scheduleDay, error) {
	var entries []models.Availability
	if err := h.db.Where("expert_id = ?", expertID).Find(&entries).Error; err != nil {
		return nil, err
	}

	schedule := make(map[string]scheduleDay, len(models.DayNames))
	for _, day := range models.DayNames {
		schedule[day] = defaultScheduleDay()
	}
	for _, e := range entries {
		schedule[e.DayOfWeek] = scheduleDay{
			Enabled:      e.Enabled,
			Start:        e.StartTime,
			End:          e.EndTime,
			SlotDuration: e.SlotDuration,
		}
	}
	return schedule, nil
}

// GetOwnSchedule returns the authenticated expert's weekly schedule, with
// defaults filled in for days that were never saved.
func (h *AvailabilityHandler) GetOwnSchedule(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	schedule, err := h.loadSchedule(userID)
	if err != nil {
		http.Error(w, "Error retrieving schedule", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"schedule": schedule})
}

// UpdateSchedule upserts the full weekly schedule for the authenticated
// expert. Farmers cannot publish availability.
func (h *AvailabilityHandler) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var user models.User
	if err := h.db.First(&user, userID).Error; err != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}
	if user.Role != models.RoleExpert {
		http.Error(w, "Only experts can set availability", http.StatusForbidden)
		return
	}

	var req struct {
		Schedule map[string]scheduleDay `json:"schedule"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	valid := make(map[string]bool, len(models.DayNames))
	for _, day := range models.DayNames {
		valid[day] = true
	}

	for day, entry := range req.Schedule {
		if !valid[day] {
			http.Error(w, "Unknown day: "+day, http.StatusBadRequest)
			return
		}
		startMin, err := parseClock(entry.Start)
		if err != nil {
			http.Error(w, "Invalid start time for "+day, http.StatusBadRequest)
			return
		}
		endMin, err := parseClock(entry.End)
		if err != nil {
			http.Error(w, "Invalid end time for "+day, http.StatusBadRequest)
			return
		}
		if entry.Enabled && startMin >= endMin {
			http.Error(w, "Start time must be before end time for "+day, http.StatusBadRequest)
			return
		}
	}

	tx := h.db.Begin()
	for day, entry := range req.Schedule {
		duration := entry.SlotDuration
		if duration <= 0 {
			duration = defaultSlotDuration
		}

		var existing models.Availability
		err := tx.Where("expert_id = ? AND day_of_week = ?", userID, day).First(&existing).Error
		switch {
		case err == nil:
			existing.Enabled = entry.Enabled
			existing.StartTime = entry.Start
			existing.EndTime = entry.End
			existing.SlotDuration = duration
			if err := tx.Save(&existing).Error; err != nil {
				tx.Rollback()
				http.Error(w, "Error saving schedule", http.StatusInternalServerError)
				return
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			record := models.Availability{
				ExpertID:     userID,
				DayOfWeek:    day,
				Enabled:      entry.Enabled,
				StartTime:    entry.Start,
				EndTime:      entry.End,
				SlotDuration: duration,
			}
			if err := tx.Create(&record).Error; err != nil {
				tx.Rollback()
				http.Error(w, "Error saving schedule", http.StatusInternalServerError)
				return
			}
		default:
			tx.Rollback()
			http.Error(w, "Database error", http.StatusInternalServerError)
			return
		}
	}
	if err := tx.Commit().Error; err != nil {
		http.Error(w, "Error saving schedule", http.StatusInternalServerError)
		return
	}

	schedule, err := h.loadSchedule(userID)
	if err != nil {
		http.Error(w, "Error retrieving schedule", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":   "ok",
		"schedule": schedule,
	})
}

// GetExpertAvailability is the public availability view. Without a date it
// returns the weekly schedule; with ?date=YYYY-MM-DD it computes the open
// slots for that day, excluding booked ones and flagging past ones.
func (h *AvailabilityHandler) GetExpertAvailability(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	expertID, err := strconv.ParseUint(vars["expertId"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid expert ID", http.StatusBadRequest)
		return
	}

	var expert models.User
	if err := h.db.Where("id = ? AND role = ?", expertID, models.RoleExpert).First(&expert).Error; err != nil {
		http.Error(w, "Expert not found", http.StatusNotFound)
		return
	}

	dateStr := r.URL.Query().Get("date")
	if dateStr == "" {
		schedule, err := h.loadSchedule(uint(expertID))
		if err != nil {
			http.Error(w, "Error retrieving schedule", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"schedule": schedule})
		return
	}

	date, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		http.Error(w, "Invalid date format. Use YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	duration := 0
	if d := r.URL.Query().Get("duration"); d != "" {
		duration, err = strconv.Atoi(d)
		if err != nil || duration < 0 {
			http.Error(w, "Invalid duration", http.StatusBadRequest)
			return
		}
	}

	dayName := models.DayNames[(int(date.Weekday())+6)%7]

	var entry models.Availability
	found := true
	if err := h.db.Where("expert_id = ? AND day_of_week = ?", expertID, dayName).First(&entry).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "Database error", http.StatusInternalServerError)
			return
		}
		found = false
	}

	w.Header().Set("Content-Type", "application/json")

	if !found || !entry.Enabled {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"date":      dateStr,
			"available": false,
			"reason":    "not available this day",
			"slots":     []Slot{},
		})
		return
	}

	bookedStarts, err := h.bookedStartTimes(uint(expertID), date)
	if err != nil {
		http.Error(w, "Error retrieving bookings", http.StatusInternalServerError)
		return
	}

	slots := GenerateSlots(&entry, date, duration, bookedStarts, time.Now())

	json.NewEncoder(w).Encode(map[string]interface{}{
		"date":      dateStr,
		"available": true,
		"slots":     slots,
	})
}

// bookedStartTimes collects the HH:MM start times of the expert's pending
// and accepted consultations on the given date.
func (h *AvailabilityHandler) bookedStartTimes(expertID uint, date time.Time) (map[string]bool, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	var consultations []models.Consultation
	err := h.db.Where(
		"expert_id = ? AND status IN ? AND date >= ? AND date < ?",
		expertID,
		[]string{models.ConsultationPending, models.ConsultationAccepted},
		dayStart, dayEnd,
	).Find(&consultations).Error
	if err != nil {
		return nil, err
	}

	booked := make(map[string]bool, len(consultations))
	for _, c := range consultations {
		booked[c.Date.Format("15:04")] = true
	}
	return booked, nil
}
