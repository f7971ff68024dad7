package chat

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/wayne-blip/agromedicana-server/cmd/models"
	"github.com/wayne-blip/agromedicana-server/cmd/utils"
	"github.com/wayne-blip/agromedicana-server/service/notification"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

// Pusher delivers a payload to a user's live connection, if any. Delivery
// is best effort; chat persistence never depends on it.
type Pusher interface {
	SendToUser(userID uint, payload interface{})
}

type ChatHandler struct {
	db     *gorm.DB
	filter *Filter
	pusher Pusher
}

// NewChatHandler builds the chat handler. pusher may be nil when no live
// transport is wired (tests, migrations).
func NewChatHandler(db *gorm.DB, filter *Filter, pusher Pusher) *ChatHandler {
	if filter == nil {
		filter = NewFilter(DefaultRules())
	}
	return &ChatHandler{db: db, filter: filter, pusher: pusher}
}

func (h *ChatHandler) RegisterRoutes(router *mux.Router) {
	router.Handle("/consultations/{id}/messages", utils.AuthMiddleware(http.HandlerFunc(h.GetMessages))).Methods("GET")
	router.Handle("/consultations/{id}/messages", utils.AuthMiddleware(http.HandlerFunc(h.SendMessage))).Methods("POST")
	router.Handle("/consultations/{id}/attachments", utils.AuthMiddleware(http.HandlerFunc(h.UploadAttachment))).Methods("POST")
	router.Handle("/messages/{id}", utils.AuthMiddleware(http.HandlerFunc(h.DeleteMessage))).Methods("DELETE")
	router.Handle("/unread-counts", utils.AuthMiddleware(http.HandlerFunc(h.GetUnreadCounts))).Methods("GET")
}

type messageResponse struct {
	ID             uint   `json:"id"`
	ConsultationID uint   `json:"consultation_id"`
	SenderID       uint   `json:"sender_id"`
	SenderName     string `json:"sender_name"`
	SenderRole     string `json:"sender_role"`
	Body           string `json:"message"`
	MessageType    string `json:"message_type"`
	FileName       string `json:"file_name,omitempty"`
	FileURL        string `json:"file_url,omitempty"`
	Timestamp      string `json:"timestamp"`
	Read           bool   `json:"read"`
	Deleted        bool   `json:"deleted"`
}

// toResponse serializes a message, blanking body and file fields of deleted
// messages while keeping the id.
func toResponse(m *models.Message, sender *models.User) messageResponse {
	resp := messageResponse{
		ID:             m.ID,
		ConsultationID: m.ConsultationID,
		SenderID:       m.SenderID,
		SenderName:     "Unknown",
		SenderRole:     "Unknown",
		Body:           m.Body,
		MessageType:    m.MessageType,
		FileName:       m.FileName,
		FileURL:        m.FileURL,
		Timestamp:      m.CreatedAt.Format("2006-01-02T15:04:05"),
		Read:           m.Read,
		Deleted:        m.Deleted,
	}
	if m.Deleted {
		resp.Body = ""
		resp.FileName = ""
		resp.FileURL = ""
	}
	if sender != nil {
		resp.SenderName = sender.Username
		resp.SenderRole = sender.Role
	}
	return resp
}

// GetMessages returns a consultation's messages oldest first and marks the
// counterpart's messages as read for the requesting user.
func (h *ChatHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
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

	isParticipant := consultation.ClientID == userID ||
		(consultation.ExpertID != nil && *consultation.ExpertID == userID)
	if !isParticipant {
		http.Error(w, "You are not part of this consultation", http.StatusForbidden)
		return
	}

	h.db.Model(&models.Message{}).
		Where("consultation_id = ? AND sender_id != ? AND read = ?", consultationID, userID, false).
		Update("read", true)

	var messages []models.Message
	if err := h.db.Where("consultation_id = ?", consultationID).
		Order("created_at ASC").Find(&messages).Error; err != nil {
		http.Error(w, "Error retrieving messages", http.StatusInternalServerError)
		return
	}

	senders := make(map[uint]*models.User)
	result := make([]messageResponse, 0, len(messages))
	for i := range messages {
		sender, ok := senders[messages[i].SenderID]
		if !ok {
			var u models.User
			if err := h.db.First(&u, messages[i].SenderID).Error; err == nil {
				sender = &u
			}
			senders[messages[i].SenderID] = sender
		}
		result = append(result, toResponse(&messages[i], sender))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"messages": result})
}

// gateMessaging enforces the preconditions shared by text and file
// messages: the consultation exists and is accepted, a payment is on record,
// and the sender is a participant. On failure it writes the error response
// and returns ok=false.
func (h *ChatHandler) gateMessaging(w http.ResponseWriter, consultationID, senderID uint) (*models.Consultation, bool) {
	var consultation models.Consultation
	if err := h.db.First(&consultation, consultationID).Error; err != nil {
		http.Error(w, "Consultation not found", http.StatusNotFound)
		return nil, false
	}

	if consultation.Status != models.ConsultationAccepted {
		http.Error(w, "Consultation must be accepted before messaging", http.StatusForbidden)
		return nil, false
	}

	var payment models.Payment
	if err := h.db.Where("consultation_id = ?", consultationID).First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "Consultation must be paid for before messaging", http.StatusPaymentRequired)
			return nil, false
		}
		http.Error(w, "Database error", http.StatusInternalServerError)
		return nil, false
	}

	isParticipant := consultation.ClientID == senderID ||
		(consultation.ExpertID != nil && *consultation.ExpertID == senderID)
	if !isParticipant {
		http.Error(w, "You are not part of this consultation", http.StatusForbidden)
		return nil, false
	}

	return &consultation, true
}

// SendMessage persists a chat message after every gate passes: the
// consultation is accepted, a payment exists, the sender is a participant,
// and the body clears the contact-info filter. A message is never persisted
// when any gate fails.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	senderID, err := utils.GetUserIDFromContext(r)
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
		Body        string `json:"message"`
		MessageType string `json:"message_type"`
		FileName    string `json:"file_name"`
		FileURL     string `json:"file_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Body == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}

	consultation, ok := h.gateMessaging(w, uint(consultationID), senderID)
	if !ok {
		return
	}

	if blocked, reason := h.filter.Classify(req.Body); blocked {
		http.Error(w, "Message blocked: "+reason, http.StatusForbidden)
		return
	}

	messageType := req.MessageType
	if messageType == "" {
		messageType = models.MessageText
	}

	message := models.Message{
		ConsultationID: uint(consultationID),
		SenderID:       senderID,
		Body:           req.Body,
		MessageType:    messageType,
		FileName:       req.FileName,
		FileURL:        req.FileURL,
	}

	if err := h.db.Create(&message).Error; err != nil {
		http.Error(w, "Error sending message", http.StatusInternalServerError)
		return
	}

	var sender models.User
	var senderPtr *models.User
	if err := h.db.First(&sender, senderID).Error; err == nil {
		senderPtr = &sender
	}
	resp := toResponse(&message, senderPtr)

	recipientID := consultation.ClientID
	if senderID == consultation.ClientID && consultation.ExpertID != nil {
		recipientID = *consultation.ExpertID
	}
	if recipientID != senderID {
		refID := message.ConsultationID
		notification.Create(h.db, recipientID, models.NotificationMessage,
			"New Message",
			resp.SenderName+" sent you a message",
			"/messages", &refID)
		if h.pusher != nil {
			h.pusher.SendToUser(recipientID, map[string]interface{}{
				"type":    "message",
				"message": resp,
			})
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"message": resp,
	})
}

// UploadAttachment stores a file and records it as a file message. The same
// gates as text messages apply; the optional caption goes through the
// contact-info filter like any message body.
func (h *ChatHandler) UploadAttachment(w http.ResponseWriter, r *http.Request) {
	senderID, err := utils.GetUserIDFromContext(r)
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

	if err := r.ParseMultipartForm(utils.MaxAttachmentSize); err != nil {
		http.Error(w, "Invalid multipart form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	consultation, ok := h.gateMessaging(w, uint(consultationID), senderID)
	if !ok {
		return
	}

	caption := r.FormValue("caption")
	if caption == "" {
		caption = header.Filename
	}
	if blocked, reason := h.filter.Classify(caption); blocked {
		http.Error(w, "Message blocked: "+reason, http.StatusForbidden)
		return
	}

	fileURL, err := utils.SaveAttachment(file, header)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	message := models.Message{
		ConsultationID: uint(consultationID),
		SenderID:       senderID,
		Body:           caption,
		MessageType:    models.MessageFile,
		FileName:       header.Filename,
		FileURL:        fileURL,
	}

	if err := h.db.Create(&message).Error; err != nil {
		http.Error(w, "Error sending attachment", http.StatusInternalServerError)
		return
	}

	var sender models.User
	var senderPtr *models.User
	if err := h.db.First(&sender, senderID).Error; err == nil {
		senderPtr = &sender
	}
	resp := toResponse(&message, senderPtr)

	recipientID := consultation.ClientID
	if senderID == consultation.ClientID && consultation.ExpertID != nil {
		recipientID = *consultation.ExpertID
	}
	if recipientID != senderID {
		refID := message.ConsultationID
		notification.Create(h.db, recipientID, models.NotificationMessage,
			"New Attachment",
			resp.SenderName+" sent you a file",
			"/messages", &refID)
		if h.pusher != nil {
			h.pusher.SendToUser(recipientID, map[string]interface{}{
				"type":    "message",
				"message": resp,
			})
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"message": resp,
	})
}

// DeleteMessage soft-deletes a message. Only the sender may delete, and the
// record keeps its id with body and file fields cleared.
func (h *ChatHandler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	messageID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid message ID", http.StatusBadRequest)
		return
	}

	var message models.Message
	if err := h.db.First(&message, messageID).Error; err != nil {
		http.Error(w, "Message not found", http.StatusNotFound)
		return
	}

	if message.SenderID != userID {
		http.Error(w, "You can only delete your own messages", http.StatusForbidden)
		return
	}

	message.Body = ""
	message.FileName = ""
	message.FileURL = ""
	message.Deleted = true
	if err := h.db.Save(&message).Error; err != nil {
		http.Error(w, "Error deleting message", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// GetUnreadCounts returns the unread totals for the authenticated user,
// overall and per consultation.
func (h *ChatHandler) GetUnreadCounts(w http.ResponseWriter, r *http.Request) {
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

	var consultations []models.Consultation
	if err := query.Find(&consultations).Error; err != nil {
		http.Error(w, "Error retrieving consultations", http.StatusInternalServerError)
		return
	}

	total := int64(0)
	byConsultation := make(map[string]int64)
	for _, c := range consultations {
		var count int64
		h.db.Model(&models.Message{}).
			Where("consultation_id = ? AND sender_id != ? AND read = ?", c.ID, userID, false).
			Count(&count)
		if count > 0 {
			byConsultation[strconv.FormatUint(uint64(c.ID), 10)] = count
			total += count
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"total_unread":    total,
		"by_consultation": byConsultation,
	})
}
