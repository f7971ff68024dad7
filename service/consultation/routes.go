package consultation

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/wayne-blip/agromedicana-server/cmd/models"
	"github.com/wayne-blip/agromedicana-server/cmd/utils"
	"github.com/wayne-blip/agromedicana-server/service/notification"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

type ConsultationHandler struct {
	db *gorm.DB
}

func NewConsultationHandler(db *gorm.DB) *ConsultationHandler {
	return &ConsultationHandler{db: db}
}

func (h *ConsultationHandler) RegisterRoutes(router *mux.Router) {
	router.Handle("/consultations", utils.AuthMiddleware(http.HandlerFunc(h.BookConsultation))).Methods("POST")
	router.Handle("/consultations", utils.AuthMiddleware(http.HandlerFunc(h.GetConsultations))).Methods("GET")
	router.Handle("/consultations/{id}", utils.AuthMiddleware(http.HandlerFunc(h.UpdateStatus))).Methods("PUT")
	router.Handle("/consultations/{id}", utils.AuthMiddleware(http.HandlerFunc(h.CancelConsultation))).Methods("DELETE")
}

// BookConsultation creates a pending consultation for the authenticated
// client. The client on a consultation never changes after creation.
func (h *ConsultationHandler) BookConsultation(w http.ResponseWriter, r *http.Request) {
	clientID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		ExpertID        *uint  `json:"expert_id"`
		ExpertName      string `json:"expert_name"`
		ExpertSpecialty string `json:"expert_specialty"`
		Date            string `json:"date"`
		Duration        int    `json:"duration"`
		Topic           string `json:"topic"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.ExpertName == "" {
		http.Error(w, "expert_name is required", http.StatusBadRequest)
		return
	}

	scheduledAt := time.Now()
	if req.Date != "" {
		scheduledAt, err = time.Parse("2006-01-02 15:04", req.Date)
		if err != nil {
			http.Error(w, "Invalid date format. Use YYYY-MM-DD HH:MM", http.StatusBadRequest)
			return
		}
	}

	duration := req.Duration
	if duration <= 0 {
		duration = 60
	}

	topic := req.Topic
	if topic == "" {
		topic = "General Consultation"
	}

	consultation := models.Consultation{
		ClientID:        clientID,
		ExpertID:        req.ExpertID,
		ExpertName:      req.ExpertName,
		ExpertSpecialty: req.ExpertSpecialty,
		Date:            scheduledAt,
		Duration:        duration,
		Topic:           topic,
		Status:          models.ConsultationPending,
	}

	if err := h.db.Create(&consultation).Error; err != nil {
		http.Error(w, "Error creating consultation", http.StatusInternalServerError)
		return
	}

	if consultation.ExpertID != nil {
		refID := consultation.ID
		var client models.User
		clientName := "A farmer"
		if err := h.db.First(&client, clientID).Error; err == nil {
			if client.FullName != "" {
				clientName = client.FullName
			} else {
				clientName = client.Username
			}
		}
		notification.Create(h.db, *consultation.ExpertID, models.NotificationConsultation,
			"New Consultation Request",
			fmt.Sprintf("%s requested a consultation on %q", clientName, consultation.Topic),
			"/consultations", &refID)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":       "ok",
		"consultation": consultation,
	})
}

// GetConsultations lists the consultations the authenticated user is part
// of, on whichever side of the booking they sit.
func (h *ConsultationHandler) GetConsultations(w http.ResponseWriter, r *http.Request) {
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

	query := h.db.Model(&models.Consultation{})
	if user.Role == models.RoleExpert {
		query = query.Where("expert_id = ?", userID)
	} else {
		query = query.Where("client_id = ?", userID)
	}

	if status := r.URL.Query().Get("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var consultations []models.Consultation
	if err := query.Order("date DESC").Find(&consultations).Error; err != nil {
		http.Error(w, "Error retrieving consultations", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"consultations": consultations,
	})
}

// UpdateStatus moves a consultation through the state machine. Setting the
// status it already has is a no-op and fires no notification.
func (h *ConsultationHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	actorID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	consultationID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid consultation ID", http.StatusBadRequest)
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Status == "" {
		http.Error(w, "status is required", http.StatusBadRequest)
		return
	}

	var consultation models.Consultation
	if err := h.db.First(&consultation, consultationID).Error; err != nil {
		http.Error(w, "Consultation not found", http.StatusNotFound)
		return
	}

	// Participants only. The no-op below returns the full record, so the
	// check has to come before it.
	isParticipant := consultation.ClientID == actorID ||
		(consultation.ExpertID != nil && *consultation.ExpertID == actorID)
	if !isParticipant {
		http.Error(w, "You are not allowed to change this consultation", http.StatusForbidden)
		return
	}

	oldStatus := consultation.Status
	if req.Status == oldStatus {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":       "ok",
			"consultation": consultation,
		})
		return
	}

	if !CanTransition(oldStatus, req.Status) {
		http.Error(w, fmt.Sprintf("Cannot change status from %s to %s", oldStatus, req.Status), http.StatusBadRequest)
		return
	}

	if !ActorMayTransition(&consultation, actorID, req.Status) {
		http.Error(w, "You are not allowed to change this consultation", http.StatusForbidden)
		return
	}

	consultation.Status = req.Status
	if err := h.db.Save(&consultation).Error; err != nil {
		http.Error(w, "Error updating consultation", http.StatusInternalServerError)
		return
	}

	notifyTransition(h.db, &consultation, oldStatus, req.Status, actorID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":       "ok",
		"consultation": consultation,
	})
}

// CancelConsultation deletes a booking. Only the client who booked may
// cancel, and only before the consultation is completed.
func (h *ConsultationHandler) CancelConsultation(w http.ResponseWriter, r *http.Request) {
	actorID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	consultationID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid consultation ID", http.StatusBadRequest)
		return
	}

	var consultation models.Consultation
	if err := h.db.First(&consultation, consultationID).Error; err != nil {
		http.Error(w, "Consultation not found", http.StatusNotFound)
		return
	}

	if consultation.ClientID != actorID {
		http.Error(w, "Only the booking client can cancel a consultation", http.StatusForbidden)
		return
	}

	if consultation.Status == models.ConsultationCompleted {
		http.Error(w, "Completed consultations cannot be cancelled", http.StatusBadRequest)
		return
	}

	if err := h.db.Unscoped().Delete(&consultation).Error; err != nil {
		http.Error(w, "Error cancelling consultation", http.StatusInternalServerError)
		return
	}

	if consultation.ExpertID != nil {
		refID := consultation.ID
		notification.Create(h.db, *consultation.ExpertID, models.NotificationConsultation,
			"Consultation Cancelled",
			fmt.Sprintf("The consultation on %q was cancelled by the client", consultation.Topic),
			"/consultations", &refID)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"message": "Consultation cancelled",
	})
}
