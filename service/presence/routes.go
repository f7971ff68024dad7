package presence

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/wayne-blip/agromedicana-server/cmd/models"
	"github.com/wayne-blip/agromedicana-server/cmd/utils"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

// onlineWindow is how recently a heartbeat must have arrived for a user to
// count as online.
const onlineWindow = 120 * time.Second

type PresenceHandler struct {
	db     *gorm.DB
	typing *TypingTracker
}

func NewPresenceHandler(db *gorm.DB, typing *TypingTracker) *PresenceHandler {
	if typing == nil {
		typing = NewTypingTracker()
	}
	return &PresenceHandler{db: db, typing: typing}
}

// Typing exposes the tracker so the websocket hub can feed it.
func (h *PresenceHandler) Typing() *TypingTracker {
	return h.typing
}

func (h *PresenceHandler) RegisterRoutes(router *mux.Router) {
	router.Handle("/presence/heartbeat", utils.AuthMiddleware(http.HandlerFunc(h.Heartbeat))).Methods("POST")
	router.Handle("/presence/status/{userId}", utils.AuthMiddleware(http.HandlerFunc(h.GetStatus))).Methods("GET")
	router.Handle("/consultations/{id}/typing", utils.AuthMiddleware(http.HandlerFunc(h.MarkTyping))).Methods("POST")
	router.Handle("/consultations/{id}/typing", utils.AuthMiddleware(http.HandlerFunc(h.GetTyping))).Methods("GET")
}

// Heartbeat stamps the caller's last-seen time; the frontend calls it
// periodically while the user is active.
func (h *PresenceHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	now := time.Now()
	if err := h.db.Model(&models.User{}).Where("id = ?", userID).Update("last_seen", now).Error; err != nil {
		http.Error(w, "Error updating presence", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// GetStatus reports online/last-seen for a user.
func (h *PresenceHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	if _, err := utils.GetUserIDFromContext(r); err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	targetID, err := strconv.ParseUint(vars["userId"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	var target models.User
	err = h.db.First(&target, targetID).Error
	w.Header().Set("Content-Type", "application/json")
	if err != nil || target.LastSeen == nil {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"online":        false,
			"last_seen_utc": nil,
		})
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"online":        time.Since(*target.LastSeen) < onlineWindow,
		"last_seen_utc": target.LastSeen.UTC().Format(time.RFC3339),
	})
}

// MarkTyping records that the caller is typing in a consultation.
func (h *PresenceHandler) MarkTyping(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
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

	h.typing.Mark(uint(consultationID), userID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// GetTyping reports whether the caller's counterpart in the consultation is
// currently typing.
func (h *PresenceHandler) GetTyping(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
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

	counterpart := consultation.ClientID
	if userID == consultation.ClientID {
		if consultation.ExpertID == nil {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]bool{"typing": false})
			return
		}
		counterpart = *consultation.ExpertID
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{
		"typing": h.typing.Active(uint(consultationID), counterpart),
	})
}
