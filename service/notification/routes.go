package notification

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/wayne-blip/agromedicana-server/cmd/models"
	"github.com/wayne-blip/agromedicana-server/cmd/utils"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

// Create writes an in-app notification record. Callers treat this as
// fire-and-forget: a failed insert is logged and must never roll back the
// operation that triggered it.
func Create(db *gorm.DB, userID uint, ntype, title, description, link string, refID *uint) {
	n := models.Notification{
		UserID:      userID,
		Type:        ntype,
		Title:       title,
		Description: description,
		Icon:        iconFor(ntype),
		Color:       colorFor(ntype),
		Link:        link,
		RefID:       refID,
	}
	if err := db.Create(&n).Error; err != nil {
		log.Printf("Error creating notification for user %d: %v", userID, err)
	}
}

func iconFor(ntype string) string {
	switch ntype {
	case models.NotificationPayment:
		return "ri-money-dollar-circle-line"
	case models.NotificationMessage:
		return "ri-message-3-line"
	case models.NotificationConsultation:
		return "ri-calendar-check-line"
	default:
		return "ri-notification-3-line"
	}
}

func colorFor(ntype string) string {
	switch ntype {
	case models.NotificationPayment:
		return "bg-green-500"
	case models.NotificationMessage:
		return "bg-blue-500"
	default:
		return "bg-teal-500"
	}
}

type NotificationHandler struct {
	db *gorm.DB
}

func NewNotificationHandler(db *gorm.DB) *NotificationHandler {
	return &NotificationHandler{db: db}
}

func (h *NotificationHandler) RegisterRoutes(router *mux.Router) {
	router.Handle("/notifications", utils.AuthMiddleware(http.HandlerFunc(h.GetNotifications))).Methods("GET")
	router.Handle("/notifications/unread-count", utils.AuthMiddleware(http.HandlerFunc(h.GetUnreadCount))).Methods("GET")
	router.Handle("/notifications/mark-all-read", utils.AuthMiddleware(http.HandlerFunc(h.MarkAllRead))).Methods("PUT")
	router.Handle("/notifications/{id}/read", utils.AuthMiddleware(http.HandlerFunc(h.MarkRead))).Methods("PUT")
	router.Handle("/notifications/{id}", utils.AuthMiddleware(http.HandlerFunc(h.DeleteNotification))).Methods("DELETE")
}

type notificationResponse struct {
	models.Notification
	Time string `json:"time"`
}

// timeAgo renders a coarse relative timestamp for notification lists.
func timeAgo(t, now time.Time) string {
	diff := now.Sub(t)
	switch {
	case diff < time.Minute:
		return "Just now"
	case diff < time.Hour:
		return fmt.Sprintf("%d min ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours >= 2 {
			return fmt.Sprintf("%d hours ago", hours)
		}
		return "1 hour ago"
	default:
		days := int(diff.Hours() / 24)
		if days > 1 {
			return fmt.Sprintf("%d days ago", days)
		}
		return "1 day ago"
	}
}

// GetNotifications lists the current user's notifications, newest first.
// The type filter accepts a notification type, "unread", or "all".
func (h *NotificationHandler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage < 1 {
		perPage = 50
	}

	query := h.db.Model(&models.Notification{}).Where("user_id = ?", userID)
	if filterType := r.URL.Query().Get("type"); filterType != "" && filterType != "all" {
		if filterType == "unread" {
			query = query.Where("read = ?", false)
		} else {
			query = query.Where("type = ?", filterType)
		}
	}

	var notifications []models.Notification
	if err := query.Order("created_at DESC").
		Limit(perPage).Offset((page - 1) * perPage).
		Find(&notifications).Error; err != nil {
		http.Error(w, "Error retrieving notifications", http.StatusInternalServerError)
		return
	}

	var unread int64
	h.db.Model(&models.Notification{}).Where("user_id = ? AND read = ?", userID, false).Count(&unread)

	now := time.Now()
	result := make([]notificationResponse, 0, len(notifications))
	for _, n := range notifications {
		result = append(result, notificationResponse{Notification: n, Time: timeAgo(n.CreatedAt, now)})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"notifications": result,
		"unread_count":  unread,
	})
}

func (h *NotificationHandler) GetUnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var count int64
	if err := h.db.Model(&models.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Count(&count).Error; err != nil {
		http.Error(w, "Error counting notifications", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"unread_count": count})
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	notificationID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid notification ID", http.StatusBadRequest)
		return
	}

	result := h.db.Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Update("read", true)
	if result.Error != nil {
		http.Error(w, "Error updating notification", http.StatusInternalServerError)
		return
	}
	if result.RowsAffected == 0 {
		http.Error(w, "Notification not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.db.Model(&models.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Update("read", true).Error; err != nil {
		http.Error(w, "Error updating notifications", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (h *NotificationHandler) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	notificationID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid notification ID", http.StatusBadRequest)
		return
	}

	result := h.db.Unscoped().
		Where("id = ? AND user_id = ?", notificationID, userID).
		Delete(&models.Notification{})
	if result.Error != nil {
		http.Error(w, "Error deleting notification", http.StatusInternalServerError)
		return
	}
	if result.RowsAffected == 0 {
		http.Error(w, "Notification not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
