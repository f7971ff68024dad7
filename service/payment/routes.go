package payment

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/wayne-blip/agromedicana-server/cmd/models"
	"github.com/wayne-blip/agromedicana-server/cmd/utils"
	"github.com/wayne-blip/agromedicana-server/service/notification"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

type PaymentHandler struct {
	db *gorm.DB
}

func NewPaymentHandler(db *gorm.DB) *PaymentHandler {
	return &PaymentHandler{db: db}
}

func (h *PaymentHandler) RegisterRoutes(router *mux.Router) {
	router.Handle("/payments", utils.AuthMiddleware(http.HandlerFunc(h.MakePayment))).Methods("POST")
	router.Handle("/payments/consultation/{id}", utils.AuthMiddleware(http.HandlerFunc(h.GetConsultationPayment))).Methods("GET")
	router.Handle("/my-payments", utils.AuthMiddleware(http.HandlerFunc(h.GetMyPayments))).Methods("GET")
	router.Handle("/earnings", utils.AuthMiddleware(http.HandlerFunc(h.GetEarnings))).Methods("GET")
}

// MakePayment records a client paying for an accepted consultation. The
// preconditions are explicit: the actor must be the booking client, the
// consultation must be accepted, and no payment may already exist. The
// unique index on consultation_id backs the duplicate check under
// concurrency.
func (h *PaymentHandler) MakePayment(w http.ResponseWriter, r *http.Request) {
	actorID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		ConsultationID uint    `json:"consultation_id"`
		Amount         float64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ConsultationID == 0 || req.Amount <= 0 {
		http.Error(w, "consultation_id and a positive amount are required", http.StatusBadRequest)
		return
	}

	var consultation models.Consultation
	if err := h.db.First(&consultation, req.ConsultationID).Error; err != nil {
		http.Error(w, "Consultation not found", http.StatusNotFound)
		return
	}

	if consultation.ClientID != actorID {
		http.Error(w, "Only the booking client can pay for a consultation", http.StatusForbidden)
		return
	}

	if consultation.Status != models.ConsultationAccepted {
		http.Error(w, "Consultation must be accepted before payment", http.StatusBadRequest)
		return
	}

	var existing models.Payment
	err = h.db.Where("consultation_id = ?", consultation.ID).First(&existing).Error
	if err == nil {
		http.Error(w, "Payment already exists for this consultation", http.StatusConflict)
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	var expertID uint
	if consultation.ExpertID != nil {
		expertID = *consultation.ExpertID
	}

	fee, payout := SplitAmount(req.Amount, FeeRate())
	payment := models.Payment{
		ConsultationID: consultation.ID,
		ClientID:       consultation.ClientID,
		ExpertID:       expertID,
		Amount:         req.Amount,
		PlatformFee:    fee,
		ExpertPayout:   payout,
		Reference:      "PAY-" + uuid.New().String(),
		Status:         models.PaymentCompleted,
	}

	if err := h.db.Create(&payment).Error; err != nil {
		// The unique index rejects the race loser of two concurrent attempts.
		if strings.Contains(err.Error(), "UNIQUE constraint") || strings.Contains(err.Error(), "duplicate key") {
			http.Error(w, "Payment already exists for this consultation", http.StatusConflict)
			return
		}
		http.Error(w, "Error recording payment", http.StatusInternalServerError)
		return
	}

	if expertID != 0 {
		refID := payment.ID
		notification.Create(h.db, expertID, models.NotificationPayment,
			"Payment Received",
			fmt.Sprintf("You received a payment of $%.2f (payout $%.2f) for %q", payment.Amount, payment.ExpertPayout, consultation.Topic),
			"/earnings", &refID)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"payment": payment,
	})
}

// GetConsultationPayment reports whether a consultation has been paid for.
func (h *PaymentHandler) GetConsultationPayment(w http.ResponseWriter, r *http.Request) {
	if _, err := utils.GetUserIDFromContext(r); err != nil {
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

	var payment models.Payment
	err = h.db.Where("consultation_id = ?", consultationID).First(&payment).Error
	w.Header().Set("Content-Type", "application/json")
	if errors.Is(err, gorm.ErrRecordNotFound) {
		json.NewEncoder(w).Encode(map[string]interface{}{"paid": false})
		return
	}
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"paid":    true,
		"payment": payment,
	})
}

// GetMyPayments lists the authenticated client's payments and total spend.
func (h *PaymentHandler) GetMyPayments(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var payments []models.Payment
	if err := h.db.Where("client_id = ?", userID).Order("created_at DESC").Find(&payments).Error; err != nil {
		http.Error(w, "Error retrieving payments", http.StatusInternalServerError)
		return
	}

	totalSpent := 0.0
	for _, p := range payments {
		totalSpent += p.Amount
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"payments":    payments,
		"total_spent": totalSpent,
	})
}

// GetEarnings lists an expert's received payments and total payout.
func (h *PaymentHandler) GetEarnings(w http.ResponseWriter, r *http.Request) {
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
		http.Error(w, "Only experts can view earnings", http.StatusForbidden)
		return
	}

	var payments []models.Payment
	if err := h.db.Where("expert_id = ?", userID).Order("created_at DESC").Find(&payments).Error; err != nil {
		http.Error(w, "Error retrieving earnings", http.StatusInternalServerError)
		return
	}

	totalEarned := 0.0
	totalFees := 0.0
	for _, p := range payments {
		totalEarned += p.ExpertPayout
		totalFees += p.PlatformFee
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"payments":      payments,
		"total_earned":  totalEarned,
		"platform_fees": totalFees,
	})
}
