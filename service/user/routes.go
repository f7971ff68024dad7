package user

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/wayne-blip/agromedicana-server/cmd/models"
	"github.com/wayne-blip/agromedicana-server/cmd/utils"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const tokenLifetime = 24 * time.Hour

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

type UserHandler struct {
	db *gorm.DB
}

func NewUserHandler(db *gorm.DB) *UserHandler {
	return &UserHandler{db: db}
}

func (h *UserHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/auth/register", h.Register).Methods("POST")
	router.HandleFunc("/auth/login", h.Login).Methods("POST")
	router.Handle("/auth/profile", utils.AuthMiddleware(http.HandlerFunc(h.GetProfile))).Methods("GET")
	router.Handle("/auth/profile", utils.AuthMiddleware(http.HandlerFunc(h.UpdateProfile))).Methods("PUT")
	router.Handle("/auth/change-password", utils.AuthMiddleware(http.HandlerFunc(h.ChangePassword))).Methods("POST")
	router.Handle("/experts", utils.AuthMiddleware(http.HandlerFunc(h.GetExperts))).Methods("GET")
	router.Handle("/farmers", utils.AuthMiddleware(http.HandlerFunc(h.GetFarmers))).Methods("GET")
	router.Handle("/my-clients", utils.AuthMiddleware(http.HandlerFunc(h.GetMyClients))).Methods("GET")
}

type registerRequest struct {
	Username     string `json:"username"`
	Password     string `json:"password"`
	Role         string `json:"role"`
	FullName     string `json:"full_name"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	Meta         string `json:"meta"`
	FarmName     string `json:"farm_name"`
	FarmSize     string `json:"farm_size"`
	Location     string `json:"location"`
	PrimaryCrops string `json:"primary_crops"`
}

func validateRegistration(req *registerRequest) string {
	if len(strings.TrimSpace(req.Username)) < 3 {
		return "Username must be at least 3 characters"
	}
	if len(req.Password) < 6 {
		return "Password must be at least 6 characters"
	}
	if req.Role != models.RoleClient && req.Role != models.RoleExpert {
		return "Role must be Client or Expert"
	}
	if req.Email != "" && !emailPattern.MatchString(req.Email) {
		return "Invalid email address"
	}
	return ""
}

// Register creates an account and returns a token so the client can skip a
// separate login round trip.
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if msg := validateRegistration(&req); msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	var existing models.User
	if err := h.db.Where("username = ?", req.Username).First(&existing).Error; err == nil {
		http.Error(w, "Username already taken", http.StatusConflict)
		return
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "Error hashing password", http.StatusInternalServerError)
		return
	}

	user := models.User{
		Username:     req.Username,
		PasswordHash: string(hash),
		Role:         req.Role,
		FullName:     req.FullName,
		Email:        req.Email,
		Phone:        req.Phone,
		Meta:         req.Meta,
		FarmName:     req.FarmName,
		FarmSize:     req.FarmSize,
		Location:     req.Location,
		PrimaryCrops: req.PrimaryCrops,
	}

	if err := h.db.Create(&user).Error; err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") || strings.Contains(err.Error(), "duplicate key") {
			http.Error(w, "Username already taken", http.StatusConflict)
			return
		}
		http.Error(w, "Error creating user", http.StatusInternalServerError)
		return
	}

	token, err := utils.GenerateToken(user.ID, tokenLifetime)
	if err != nil {
		http.Error(w, "Error generating token", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"token": token,
		"user":  user,
	})
}

// Login verifies credentials and issues a token.
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var user models.User
	if err := h.db.Where("username = ?", req.Username).First(&user).Error; err != nil {
		http.Error(w, "Invalid username or password", http.StatusUnauthorized)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		http.Error(w, "Invalid username or password", http.StatusUnauthorized)
		return
	}

	token, err := utils.GenerateToken(user.ID, tokenLifetime)
	if err != nil {
		http.Error(w, "Error generating token", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"token": token,
		"user":  user,
	})
}

func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
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

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}

// UpdateProfile applies the editable profile fields. Username, role, and
// password are not editable here.
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
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

	var req struct {
		FullName          *string `json:"full_name"`
		Email             *string `json:"email"`
		Phone             *string `json:"phone"`
		Meta              *string `json:"meta"`
		FarmName          *string `json:"farm_name"`
		FarmSize          *string `json:"farm_size"`
		Location          *string `json:"location"`
		PrimaryCrops      *string `json:"primary_crops"`
		ProfilePicture    *string `json:"profile_picture"`
		NotificationPrefs *string `json:"notification_prefs"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Email != nil && *req.Email != "" && !emailPattern.MatchString(*req.Email) {
		http.Error(w, "Invalid email address", http.StatusBadRequest)
		return
	}

	if req.FullName != nil {
		user.FullName = *req.FullName
	}
	if req.Email != nil {
		user.Email = *req.Email
	}
	if req.Phone != nil {
		user.Phone = *req.Phone
	}
	if req.Meta != nil {
		user.Meta = *req.Meta
	}
	if req.FarmName != nil {
		user.FarmName = *req.FarmName
	}
	if req.FarmSize != nil {
		user.FarmSize = *req.FarmSize
	}
	if req.Location != nil {
		user.Location = *req.Location
	}
	if req.PrimaryCrops != nil {
		user.PrimaryCrops = *req.PrimaryCrops
	}
	if req.ProfilePicture != nil {
		user.ProfilePicture = *req.ProfilePicture
	}
	if req.NotificationPrefs != nil {
		user.NotificationPrefs = *req.NotificationPrefs
	}

	if err := h.db.Save(&user).Error; err != nil {
		http.Error(w, "Error updating profile", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}

func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.NewPassword) < 6 {
		http.Error(w, "Password must be at least 6 characters", http.StatusBadRequest)
		return
	}

	var user models.User
	if err := h.db.First(&user, userID).Error; err != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
		http.Error(w, "Current password is incorrect", http.StatusUnauthorized)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "Error hashing password", http.StatusInternalServerError)
		return
	}

	if err := h.db.Model(&user).Update("password_hash", string(hash)).Error; err != nil {
		http.Error(w, "Error updating password", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// GetExperts lists expert accounts, optionally filtered by specialty.
func (h *UserHandler) GetExperts(w http.ResponseWriter, r *http.Request) {
	if _, err := utils.GetUserIDFromContext(r); err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	query := h.db.Where("role = ?", models.RoleExpert)
	if specialty := r.URL.Query().Get("specialty"); specialty != "" {
		query = query.Where("meta LIKE ?", "%"+specialty+"%")
	}

	var experts []models.User
	if err := query.Order("username ASC").Find(&experts).Error; err != nil {
		http.Error(w, "Error retrieving experts", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"experts": experts})
}

// GetFarmers lists client accounts.
func (h *UserHandler) GetFarmers(w http.ResponseWriter, r *http.Request) {
	if _, err := utils.GetUserIDFromContext(r); err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var farmers []models.User
	if err := h.db.Where("role = ?", models.RoleClient).Order("username ASC").Find(&farmers).Error; err != nil {
		http.Error(w, "Error retrieving farmers", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"farmers": farmers})
}

// GetMyClients lists the distinct clients who have booked the authenticated
// expert.
func (h *UserHandler) GetMyClients(w http.ResponseWriter, r *http.Request) {
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
		http.Error(w, "Only experts can view their clients", http.StatusForbidden)
		return
	}

	var clientIDs []uint
	if err := h.db.Model(&models.Consultation{}).
		Where("expert_id = ?", userID).
		Distinct("client_id").
		Pluck("client_id", &clientIDs).Error; err != nil {
		http.Error(w, "Error retrieving clients", http.StatusInternalServerError)
		return
	}

	clients := []models.User{}
	if len(clientIDs) > 0 {
		if err := h.db.Where("id IN ?", clientIDs).Order("username ASC").Find(&clients).Error; err != nil {
			http.Error(w, "Error retrieving clients", http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"clients": clients})
}
