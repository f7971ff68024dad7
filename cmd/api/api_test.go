package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wayne-blip/agromedicana-server/cmd/models"
	"github.com/glebarez/sqlite"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	t.Setenv("SECRET_KEY", "test-secret")

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Availability{},
		&models.Consultation{},
		&models.Payment{},
		&models.Message{},
		&models.Notification{},
	))

	// In-memory SQLite allows one writer; a single connection keeps
	// parallel requests from tripping lock errors instead of the
	// application's own conflict handling.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	server := NewApiServer("", db)
	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)
	return ts
}

// doJSON issues a request and decodes the JSON response when there is one.
// Error responses written with http.Error are plain text; those come back in
// the raw string with a nil map.
func doJSON(t *testing.T, ts *httptest.Server, method, path, token string, body interface{}) (int, map[string]interface{}, string) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, ts.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var decoded map[string]interface{}
	if json.Unmarshal(raw, &decoded) != nil {
		decoded = nil
	}
	return resp.StatusCode, decoded, string(raw)
}

func registerUser(t *testing.T, ts *httptest.Server, username, role string) (token string, userID uint) {
	t.Helper()
	status, resp, raw := doJSON(t, ts, "POST", "/api/v1/auth/register", "", map[string]interface{}{
		"username": username,
		"password": "secret123",
		"role":     role,
	})
	require.Equal(t, http.StatusCreated, status, raw)
	token = resp["token"].(string)
	userID = uint(resp["user"].(map[string]interface{})["ID"].(float64))
	return token, userID
}

func enableFullWeek(t *testing.T, ts *httptest.Server, token string) {
	t.Helper()
	schedule := make(map[string]interface{}, len(models.DayNames))
	for _, day := range models.DayNames {
		schedule[day] = map[string]interface{}{
			"enabled":       true,
			"start":         "09:00",
			"end":           "12:00",
			"slot_duration": 60,
		}
	}
	status, _, raw := doJSON(t, ts, "PUT", "/api/v1/availability", token, map[string]interface{}{
		"schedule": schedule,
	})
	require.Equal(t, http.StatusOK, status, raw)
}

func TestRegisterValidationAndLogin(t *testing.T) {
	ts := newTestServer(t)

	status, _, _ := doJSON(t, ts, "POST", "/api/v1/auth/register", "", map[string]interface{}{
		"username": "ab", "password": "secret123", "role": "Client",
	})
	assert.Equal(t, http.StatusBadRequest, status, "short username")

	status, _, _ = doJSON(t, ts, "POST", "/api/v1/auth/register", "", map[string]interface{}{
		"username": "kwame", "password": "123", "role": "Client",
	})
	assert.Equal(t, http.StatusBadRequest, status, "short password")

	status, _, _ = doJSON(t, ts, "POST", "/api/v1/auth/register", "", map[string]interface{}{
		"username": "kwame", "password": "secret123", "role": "Wizard",
	})
	assert.Equal(t, http.StatusBadRequest, status, "unknown role")

	registerUser(t, ts, "kwame", models.RoleClient)

	status, _, _ = doJSON(t, ts, "POST", "/api/v1/auth/register", "", map[string]interface{}{
		"username": "kwame", "password": "secret123", "role": "Client",
	})
	assert.Equal(t, http.StatusConflict, status, "duplicate username")

	status, resp, raw := doJSON(t, ts, "POST", "/api/v1/auth/login", "", map[string]interface{}{
		"username": "kwame", "password": "secret123",
	})
	require.Equal(t, http.StatusOK, status, raw)
	assert.NotEmpty(t, resp["token"])

	status, _, _ = doJSON(t, ts, "POST", "/api/v1/auth/login", "", map[string]interface{}{
		"username": "kwame", "password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestAvailabilityScheduleAndSlots(t *testing.T) {
	ts := newTestServer(t)

	farmerToken, _ := registerUser(t, ts, "farmer1", models.RoleClient)
	expertToken, expertID := registerUser(t, ts, "expert1", models.RoleExpert)

	status, _, _ := doJSON(t, ts, "PUT", "/api/v1/availability", farmerToken, map[string]interface{}{
		"schedule": map[string]interface{}{},
	})
	assert.Equal(t, http.StatusForbidden, status, "farmers cannot set availability")

	status, _, _ = doJSON(t, ts, "PUT", "/api/v1/availability", expertToken, map[string]interface{}{
		"schedule": map[string]interface{}{
			"monday": map[string]interface{}{"enabled": true, "start": "12:00", "end": "09:00"},
		},
	})
	assert.Equal(t, http.StatusBadRequest, status, "inverted window rejected")

	status, _, _ = doJSON(t, ts, "PUT", "/api/v1/availability", expertToken, map[string]interface{}{
		"schedule": map[string]interface{}{
			"noday": map[string]interface{}{"enabled": true, "start": "09:00", "end": "12:00"},
		},
	})
	assert.Equal(t, http.StatusBadRequest, status, "unknown day rejected")

	enableFullWeek(t, ts, expertToken)

	date := time.Now().AddDate(0, 0, 7).Format("2006-01-02")
	status, resp, raw := doJSON(t, ts, "GET", fmt.Sprintf("/api/v1/availability/%d?date=%s", expertID, date), "", nil)
	require.Equal(t, http.StatusOK, status, raw)
	assert.Equal(t, true, resp["available"])
	slots := resp["slots"].([]interface{})
	require.Len(t, slots, 3)
	first := slots[0].(map[string]interface{})
	assert.Equal(t, "09:00", first["start"])
	assert.Equal(t, "10:00", first["end"])
	assert.Equal(t, false, first["booked"])
	assert.Equal(t, false, first["past"])

	// A 30-minute requested duration doubles the slot count.
	status, resp, _ = doJSON(t, ts, "GET", fmt.Sprintf("/api/v1/availability/%d?date=%s&duration=30", expertID, date), "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, resp["slots"].([]interface{}), 6)

	status, _, _ = doJSON(t, ts, "GET", fmt.Sprintf("/api/v1/availability/%d?date=not-a-date", expertID), "", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _, _ = doJSON(t, ts, "GET", "/api/v1/availability/9999?date="+date, "", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestConsultationLifecycleWithPaymentAndChat(t *testing.T) {
	ts := newTestServer(t)

	farmerToken, _ := registerUser(t, ts, "ama", models.RoleClient)
	expertToken, expertID := registerUser(t, ts, "drmensah", models.RoleExpert)
	enableFullWeek(t, ts, expertToken)

	date := time.Now().AddDate(0, 0, 7)
	dateStr := date.Format("2006-01-02")

	status, resp, raw := doJSON(t, ts, "POST", "/api/v1/consultations", farmerToken, map[string]interface{}{
		"expert_id":   expertID,
		"expert_name": "Dr. Mensah",
		"date":        dateStr + " 10:00",
		"topic":       "Maize leaf blight",
	})
	require.Equal(t, http.StatusCreated, status, raw)
	consultation := resp["consultation"].(map[string]interface{})
	consultationID := uint(consultation["ID"].(float64))
	assert.Equal(t, models.ConsultationPending, consultation["status"])

	// The booked start shows up in the slot view; neighbours stay open.
	status, resp, _ = doJSON(t, ts, "GET", fmt.Sprintf("/api/v1/availability/%d?date=%s", expertID, dateStr), "", nil)
	require.Equal(t, http.StatusOK, status)
	slots := resp["slots"].([]interface{})
	require.Len(t, slots, 3)
	assert.Equal(t, false, slots[0].(map[string]interface{})["booked"])
	assert.Equal(t, true, slots[1].(map[string]interface{})["booked"])
	assert.Equal(t, false, slots[2].(map[string]interface{})["booked"])

	// The expert was notified about the request.
	status, resp, _ = doJSON(t, ts, "GET", "/api/v1/notifications/unread-count", expertToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), resp["unread_count"])

	msgPath := fmt.Sprintf("/api/v1/consultations/%d/messages", consultationID)
	status, _, raw = doJSON(t, ts, "POST", msgPath, farmerToken, map[string]interface{}{
		"message": "Hello doctor",
	})
	assert.Equal(t, http.StatusForbidden, status, raw)

	status, _, _ = doJSON(t, ts, "POST", "/api/v1/payments", farmerToken, map[string]interface{}{
		"consultation_id": consultationID, "amount": 35.00,
	})
	assert.Equal(t, http.StatusBadRequest, status, "cannot pay before acceptance")

	consultationPath := fmt.Sprintf("/api/v1/consultations/%d", consultationID)

	// The farmer cannot accept their own request.
	status, _, _ = doJSON(t, ts, "PUT", consultationPath, farmerToken, map[string]interface{}{
		"status": models.ConsultationAccepted,
	})
	assert.Equal(t, http.StatusForbidden, status)

	status, _, raw = doJSON(t, ts, "PUT", consultationPath, expertToken, map[string]interface{}{
		"status": models.ConsultationAccepted,
	})
	require.Equal(t, http.StatusOK, status, raw)

	// Re-sending the same status is a no-op and adds no notification.
	status, _, _ = doJSON(t, ts, "GET", "/api/v1/notifications/unread-count", farmerToken, nil)
	require.Equal(t, http.StatusOK, status)
	status, _, _ = doJSON(t, ts, "PUT", consultationPath, expertToken, map[string]interface{}{
		"status": models.ConsultationAccepted,
	})
	require.Equal(t, http.StatusOK, status)
	status, resp, _ = doJSON(t, ts, "GET", "/api/v1/notifications/unread-count", farmerToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), resp["unread_count"], "only the original acceptance notified")

	// Accepted but unpaid: messaging demands payment.
	status, _, raw = doJSON(t, ts, "POST", msgPath, farmerToken, map[string]interface{}{
		"message": "Hello doctor",
	})
	assert.Equal(t, http.StatusPaymentRequired, status, raw)

	// Only the booking client can pay.
	status, _, _ = doJSON(t, ts, "POST", "/api/v1/payments", expertToken, map[string]interface{}{
		"consultation_id": consultationID, "amount": 35.00,
	})
	assert.Equal(t, http.StatusForbidden, status)

	status, resp, raw = doJSON(t, ts, "POST", "/api/v1/payments", farmerToken, map[string]interface{}{
		"consultation_id": consultationID, "amount": 35.00,
	})
	require.Equal(t, http.StatusCreated, status, raw)
	payment := resp["payment"].(map[string]interface{})
	assert.InDelta(t, 3.50, payment["platform_fee"].(float64), 0.0001)
	assert.InDelta(t, 31.50, payment["expert_payout"].(float64), 0.0001)
	assert.Contains(t, payment["reference"].(string), "PAY-")

	status, _, _ = doJSON(t, ts, "POST", "/api/v1/payments", farmerToken, map[string]interface{}{
		"consultation_id": consultationID, "amount": 35.00,
	})
	assert.Equal(t, http.StatusConflict, status, "duplicate payment")

	status, resp, _ = doJSON(t, ts, "GET", fmt.Sprintf("/api/v1/payments/consultation/%d", consultationID), farmerToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, resp["paid"])

	status, resp, _ = doJSON(t, ts, "GET", "/api/v1/earnings", expertToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.InDelta(t, 31.50, resp["total_earned"].(float64), 0.0001)
	assert.InDelta(t, 3.50, resp["platform_fees"].(float64), 0.0001)

	status, _, _ = doJSON(t, ts, "GET", "/api/v1/earnings", farmerToken, nil)
	assert.Equal(t, http.StatusForbidden, status)

	// Paid and accepted: clean messages go through, contact info does not.
	status, resp, raw = doJSON(t, ts, "POST", msgPath, farmerToken, map[string]interface{}{
		"message": "My maize leaves are turning yellow.",
	})
	require.Equal(t, http.StatusCreated, status, raw)
	messageID := uint(resp["message"].(map[string]interface{})["id"].(float64))

	status, _, raw = doJSON(t, ts, "POST", msgPath, farmerToken, map[string]interface{}{
		"message": "call me on 0241234567",
	})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Contains(t, raw, "Message blocked")

	status, _, raw = doJSON(t, ts, "POST", msgPath, expertToken, map[string]interface{}{
		"message": "Send a photo of the underside of the leaves.",
	})
	require.Equal(t, http.StatusCreated, status, raw)

	status, resp, _ = doJSON(t, ts, "GET", msgPath, expertToken, nil)
	require.Equal(t, http.StatusOK, status)
	messages := resp["messages"].([]interface{})
	require.Len(t, messages, 2, "the blocked message was never persisted")

	// Deleting keeps the row but blanks the content.
	status, _, _ = doJSON(t, ts, "DELETE", fmt.Sprintf("/api/v1/messages/%d", messageID), expertToken, nil)
	assert.Equal(t, http.StatusForbidden, status, "only the sender deletes")

	status, _, _ = doJSON(t, ts, "DELETE", fmt.Sprintf("/api/v1/messages/%d", messageID), farmerToken, nil)
	require.Equal(t, http.StatusOK, status)

	status, resp, _ = doJSON(t, ts, "GET", msgPath, farmerToken, nil)
	require.Equal(t, http.StatusOK, status)
	messages = resp["messages"].([]interface{})
	require.Len(t, messages, 2)
	deleted := messages[0].(map[string]interface{})
	assert.Equal(t, float64(messageID), deleted["id"])
	assert.Equal(t, true, deleted["deleted"])
	assert.Equal(t, "", deleted["message"])

	// Either party may complete, and completed bookings cannot be cancelled.
	status, _, raw = doJSON(t, ts, "PUT", consultationPath, farmerToken, map[string]interface{}{
		"status": models.ConsultationCompleted,
	})
	require.Equal(t, http.StatusOK, status, raw)

	status, _, _ = doJSON(t, ts, "DELETE", consultationPath, farmerToken, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestRejectedConsultationCannotBePaidOrMessaged(t *testing.T) {
	ts := newTestServer(t)

	farmerToken, _ := registerUser(t, ts, "kofi", models.RoleClient)
	expertToken, expertID := registerUser(t, ts, "agronomist", models.RoleExpert)

	status, resp, raw := doJSON(t, ts, "POST", "/api/v1/consultations", farmerToken, map[string]interface{}{
		"expert_id":   expertID,
		"expert_name": "Agronomist",
		"topic":       "Soil acidity",
	})
	require.Equal(t, http.StatusCreated, status, raw)
	consultationID := uint(resp["consultation"].(map[string]interface{})["ID"].(float64))

	status, _, _ = doJSON(t, ts, "PUT", fmt.Sprintf("/api/v1/consultations/%d", consultationID), expertToken, map[string]interface{}{
		"status": models.ConsultationRejected,
	})
	require.Equal(t, http.StatusOK, status)

	status, _, _ = doJSON(t, ts, "POST", "/api/v1/payments", farmerToken, map[string]interface{}{
		"consultation_id": consultationID, "amount": 20.00,
	})
	assert.Equal(t, http.StatusBadRequest, status, "rejected consultations cannot be paid")

	status, _, _ = doJSON(t, ts, "POST", fmt.Sprintf("/api/v1/consultations/%d/messages", consultationID), farmerToken, map[string]interface{}{
		"message": "Hello?",
	})
	assert.Equal(t, http.StatusForbidden, status)

	// Rejected is terminal.
	status, _, _ = doJSON(t, ts, "PUT", fmt.Sprintf("/api/v1/consultations/%d", consultationID), expertToken, map[string]interface{}{
		"status": models.ConsultationAccepted,
	})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestClientCancelsPendingConsultation(t *testing.T) {
	ts := newTestServer(t)

	farmerToken, _ := registerUser(t, ts, "abena", models.RoleClient)
	expertToken, expertID := registerUser(t, ts, "plantdoc", models.RoleExpert)

	status, resp, raw := doJSON(t, ts, "POST", "/api/v1/consultations", farmerToken, map[string]interface{}{
		"expert_id":   expertID,
		"expert_name": "Plant Doc",
	})
	require.Equal(t, http.StatusCreated, status, raw)
	consultationID := uint(resp["consultation"].(map[string]interface{})["ID"].(float64))

	status, _, _ = doJSON(t, ts, "DELETE", fmt.Sprintf("/api/v1/consultations/%d", consultationID), expertToken, nil)
	assert.Equal(t, http.StatusForbidden, status, "experts do not cancel")

	status, _, _ = doJSON(t, ts, "DELETE", fmt.Sprintf("/api/v1/consultations/%d", consultationID), farmerToken, nil)
	require.Equal(t, http.StatusOK, status)

	status, resp, _ = doJSON(t, ts, "GET", "/api/v1/consultations", farmerToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, resp["consultations"])
}

func TestOutsiderCannotTouchConsultation(t *testing.T) {
	ts := newTestServer(t)

	farmerToken, _ := registerUser(t, ts, "afia", models.RoleClient)
	expertToken, expertID := registerUser(t, ts, "leafdoc", models.RoleExpert)
	strangerToken, _ := registerUser(t, ts, "nosy", models.RoleClient)

	status, resp, raw := doJSON(t, ts, "POST", "/api/v1/consultations", farmerToken, map[string]interface{}{
		"expert_id":   expertID,
		"expert_name": "Leaf Doc",
		"topic":       "Sensitive topic",
	})
	require.Equal(t, http.StatusCreated, status, raw)
	consultationID := uint(resp["consultation"].(map[string]interface{})["ID"].(float64))
	consultationPath := fmt.Sprintf("/api/v1/consultations/%d", consultationID)

	// Re-sending the current status must not hand the record to outsiders.
	status, _, raw = doJSON(t, ts, "PUT", consultationPath, strangerToken, map[string]interface{}{
		"status": models.ConsultationPending,
	})
	assert.Equal(t, http.StatusForbidden, status)
	assert.NotContains(t, raw, "Sensitive topic")

	status, _, _ = doJSON(t, ts, "PUT", consultationPath, strangerToken, map[string]interface{}{
		"status": models.ConsultationAccepted,
	})
	assert.Equal(t, http.StatusForbidden, status)

	// Reading the thread is participants-only too.
	status, _, _ = doJSON(t, ts, "GET", fmt.Sprintf("/api/v1/consultations/%d/messages", consultationID), strangerToken, nil)
	assert.Equal(t, http.StatusForbidden, status)

	// Participants keep the no-op behavior.
	status, resp, _ = doJSON(t, ts, "PUT", consultationPath, farmerToken, map[string]interface{}{
		"status": models.ConsultationPending,
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, models.ConsultationPending, resp["consultation"].(map[string]interface{})["status"])

	status, _, _ = doJSON(t, ts, "PUT", consultationPath, expertToken, map[string]interface{}{
		"status": models.ConsultationAccepted,
	})
	require.Equal(t, http.StatusOK, status)
}

func TestConcurrentDuplicatePayments(t *testing.T) {
	ts := newTestServer(t)

	farmerToken, _ := registerUser(t, ts, "akosua", models.RoleClient)
	expertToken, expertID := registerUser(t, ts, "agrilab", models.RoleExpert)

	status, resp, raw := doJSON(t, ts, "POST", "/api/v1/consultations", farmerToken, map[string]interface{}{
		"expert_id":   expertID,
		"expert_name": "Agri Lab",
	})
	require.Equal(t, http.StatusCreated, status, raw)
	consultationID := uint(resp["consultation"].(map[string]interface{})["ID"].(float64))

	status, _, _ = doJSON(t, ts, "PUT", fmt.Sprintf("/api/v1/consultations/%d", consultationID), expertToken, map[string]interface{}{
		"status": models.ConsultationAccepted,
	})
	require.Equal(t, http.StatusOK, status)

	payload, err := json.Marshal(map[string]interface{}{
		"consultation_id": consultationID,
		"amount":          35.00,
	})
	require.NoError(t, err)

	// Two simultaneous payment attempts: exactly one may win, whichever
	// order they land in.
	statuses := make(chan int, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, err := http.NewRequest("POST", ts.URL+"/api/v1/payments", bytes.NewReader(payload))
			if err != nil {
				statuses <- 0
				return
			}
			req.Header.Set("Authorization", "Bearer "+farmerToken)
			req.Header.Set("Content-Type", "application/json")
			r, err := ts.Client().Do(req)
			if err != nil {
				statuses <- 0
				return
			}
			io.Copy(io.Discard, r.Body)
			r.Body.Close()
			statuses <- r.StatusCode
		}()
	}
	wg.Wait()
	close(statuses)

	var got []int
	for s := range statuses {
		got = append(got, s)
	}
	assert.ElementsMatch(t, []int{http.StatusCreated, http.StatusConflict}, got)

	status, resp, _ = doJSON(t, ts, "GET", "/api/v1/my-payments", farmerToken, nil)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, resp["payments"].([]interface{}), 1, "exactly one payment persisted")
	assert.InDelta(t, 35.00, resp["total_spent"].(float64), 0.0001)
}

func TestWebSocketTokenAuth(t *testing.T) {
	ts := newTestServer(t)

	token, _ := registerUser(t, ts, "wsfarmer", models.RoleClient)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	// Browser clients cannot set headers; the query parameter works.
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL+"?token="+token, nil)
	require.NoError(t, err)
	resp.Body.Close()
	conn.Close()

	// Header auth still works for non-browser clients.
	header := http.Header{"Authorization": []string{"Bearer " + token}}
	conn, resp, err = websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	resp.Body.Close()
	conn.Close()

	_, resp, err = websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	_, resp, err = websocket.DefaultDialer.Dial(wsURL+"?token=bogus", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestPresenceHeartbeatAndStatus(t *testing.T) {
	ts := newTestServer(t)

	farmerToken, farmerID := registerUser(t, ts, "esi", models.RoleClient)
	expertToken, _ := registerUser(t, ts, "cropwise", models.RoleExpert)

	status, resp, _ := doJSON(t, ts, "GET", fmt.Sprintf("/api/v1/presence/status/%d", farmerID), expertToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, resp["online"], "no heartbeat yet")

	status, _, _ = doJSON(t, ts, "POST", "/api/v1/presence/heartbeat", farmerToken, nil)
	require.Equal(t, http.StatusOK, status)

	status, resp, _ = doJSON(t, ts, "GET", fmt.Sprintf("/api/v1/presence/status/%d", farmerID), expertToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, resp["online"])
	assert.NotEmpty(t, resp["last_seen_utc"])
}

func TestNotificationManagement(t *testing.T) {
	ts := newTestServer(t)

	farmerToken, _ := registerUser(t, ts, "yaw", models.RoleClient)
	expertToken, expertID := registerUser(t, ts, "soilpro", models.RoleExpert)

	for i := 0; i < 3; i++ {
		status, _, raw := doJSON(t, ts, "POST", "/api/v1/consultations", farmerToken, map[string]interface{}{
			"expert_id":   expertID,
			"expert_name": "Soil Pro",
			"topic":       fmt.Sprintf("Question %d", i),
		})
		require.Equal(t, http.StatusCreated, status, raw)
	}

	status, resp, _ := doJSON(t, ts, "GET", "/api/v1/notifications", expertToken, nil)
	require.Equal(t, http.StatusOK, status)
	notifications := resp["notifications"].([]interface{})
	require.Len(t, notifications, 3)
	assert.Equal(t, float64(3), resp["unread_count"])
	first := notifications[0].(map[string]interface{})
	firstID := uint(first["ID"].(float64))
	assert.Equal(t, "Just now", first["time"])

	status, _, _ = doJSON(t, ts, "PUT", fmt.Sprintf("/api/v1/notifications/%d/read", firstID), expertToken, nil)
	require.Equal(t, http.StatusOK, status)

	status, resp, _ = doJSON(t, ts, "GET", "/api/v1/notifications/unread-count", expertToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(2), resp["unread_count"])

	// Another user cannot mark or delete someone else's notification.
	status, _, _ = doJSON(t, ts, "PUT", fmt.Sprintf("/api/v1/notifications/%d/read", firstID), farmerToken, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _, _ = doJSON(t, ts, "PUT", "/api/v1/notifications/mark-all-read", expertToken, nil)
	require.Equal(t, http.StatusOK, status)

	status, resp, _ = doJSON(t, ts, "GET", "/api/v1/notifications/unread-count", expertToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(0), resp["unread_count"])

	status, _, _ = doJSON(t, ts, "DELETE", fmt.Sprintf("/api/v1/notifications/%d", firstID), expertToken, nil)
	require.Equal(t, http.StatusOK, status)

	status, resp, _ = doJSON(t, ts, "GET", "/api/v1/notifications", expertToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, resp["notifications"].([]interface{}), 2)
}

func TestProfileAndDirectories(t *testing.T) {
	ts := newTestServer(t)

	farmerToken, _ := registerUser(t, ts, "adwoa", models.RoleClient)
	expertToken, expertID := registerUser(t, ts, "agrovet", models.RoleExpert)

	status, resp, _ := doJSON(t, ts, "GET", "/api/v1/auth/profile", farmerToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "adwoa", resp["username"])
	_, hasHash := resp["password_hash"]
	assert.False(t, hasHash, "password hash never serialized")

	status, resp, raw := doJSON(t, ts, "PUT", "/api/v1/auth/profile", farmerToken, map[string]interface{}{
		"farm_name":     "Green Acres",
		"location":      "Ashanti Region",
		"primary_crops": "maize, cassava",
	})
	require.Equal(t, http.StatusOK, status, raw)
	assert.Equal(t, "Green Acres", resp["farm_name"])

	status, _, _ = doJSON(t, ts, "PUT", "/api/v1/auth/profile", farmerToken, map[string]interface{}{
		"email": "not-an-email",
	})
	assert.Equal(t, http.StatusBadRequest, status)

	status, resp, _ = doJSON(t, ts, "GET", "/api/v1/experts", farmerToken, nil)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, resp["experts"].([]interface{}), 1)

	status, resp, _ = doJSON(t, ts, "GET", "/api/v1/farmers", expertToken, nil)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, resp["farmers"].([]interface{}), 1)

	// my-clients only lists farmers who actually booked.
	status, resp, _ = doJSON(t, ts, "GET", "/api/v1/my-clients", expertToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, resp["clients"])

	status, _, _ = doJSON(t, ts, "GET", "/api/v1/my-clients", farmerToken, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _, raw = doJSON(t, ts, "POST", "/api/v1/consultations", farmerToken, map[string]interface{}{
		"expert_id":   expertID,
		"expert_name": "Agrovet",
	})
	require.Equal(t, http.StatusCreated, status, raw)

	status, resp, _ = doJSON(t, ts, "GET", "/api/v1/my-clients", expertToken, nil)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, resp["clients"].([]interface{}), 1)
}

func TestChangePassword(t *testing.T) {
	ts := newTestServer(t)

	token, _ := registerUser(t, ts, "kwabena", models.RoleClient)

	status, _, _ := doJSON(t, ts, "POST", "/api/v1/auth/change-password", token, map[string]interface{}{
		"current_password": "wrong", "new_password": "newsecret",
	})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _, _ = doJSON(t, ts, "POST", "/api/v1/auth/change-password", token, map[string]interface{}{
		"current_password": "secret123", "new_password": "short",
	})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _, _ = doJSON(t, ts, "POST", "/api/v1/auth/change-password", token, map[string]interface{}{
		"current_password": "secret123", "new_password": "newsecret",
	})
	require.Equal(t, http.StatusOK, status)

	status, _, _ = doJSON(t, ts, "POST", "/api/v1/auth/login", "", map[string]interface{}{
		"username": "kwabena", "password": "secret123",
	})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _, _ = doJSON(t, ts, "POST", "/api/v1/auth/login", "", map[string]interface{}{
		"username": "kwabena", "password": "newsecret",
	})
	assert.Equal(t, http.StatusOK, status)
}

func TestRootStatusEndpoint(t *testing.T) {
	ts := newTestServer(t)

	status, resp, _ := doJSON(t, ts, "GET", "/", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", resp["status"])
}
