package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/wayne-blip/agromedicana-server/service/availability"
	"github.com/wayne-blip/agromedicana-server/service/chat"
	"github.com/wayne-blip/agromedicana-server/service/consultation"
	"github.com/wayne-blip/agromedicana-server/service/notification"
	"github.com/wayne-blip/agromedicana-server/service/payment"
	"github.com/wayne-blip/agromedicana-server/service/presence"
	"github.com/wayne-blip/agromedicana-server/service/user"
	"github.com/wayne-blip/agromedicana-server/service/ws"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

type APIServer struct {
	address string
	db      *gorm.DB
}

func NewApiServer(address string, db *gorm.DB) *APIServer {
	return &APIServer{
		address: address,
		db:      db,
	}
}

// Router wires every handler onto a fresh mux. Exposed separately from Run
// so tests can mount it on httptest servers.
func (s *APIServer) Router() *mux.Router {
	router := mux.NewRouter()
	subrouter := router.PathPrefix("/api/v1").Subrouter()

	userHandler := user.NewUserHandler(s.db)
	userHandler.RegisterRoutes(subrouter)

	availabilityHandler := availability.NewAvailabilityHandler(s.db)
	availabilityHandler.RegisterRoutes(subrouter)

	consultationHandler := consultation.NewConsultationHandler(s.db)
	consultationHandler.RegisterRoutes(subrouter)

	paymentHandler := payment.NewPaymentHandler(s.db)
	paymentHandler.RegisterRoutes(subrouter)

	presenceHandler := presence.NewPresenceHandler(s.db, nil)
	presenceHandler.RegisterRoutes(subrouter)

	hub := ws.NewHub(presenceHandler.Typing())
	hub.RegisterRoutes(router)

	chatHandler := chat.NewChatHandler(s.db, nil, hub)
	chatHandler.RegisterRoutes(subrouter)

	notificationHandler := notification.NewNotificationHandler(s.db)
	notificationHandler.RegisterRoutes(subrouter)

	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"service": "agromedicana-server",
			"status":  "ok",
		})
	}).Methods("GET")

	return router
}

func (s *APIServer) Run() error {
	router := s.Router()

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)

	log.Println("Server running at", s.address)
	return http.ListenAndServe(s.address, cors(router))
}
