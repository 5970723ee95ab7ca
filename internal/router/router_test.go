package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mentorbook/config"
	"mentorbook/internal/auth"
	"mentorbook/internal/database"
	"mentorbook/internal/database/dbtest"
	"mentorbook/internal/domain"
	"mentorbook/internal/handler"
	"mentorbook/internal/models"
	"mentorbook/internal/repository"
	"mentorbook/pkg/payment"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	t        *testing.T
	app      *App
	cfg      *config.Config
	gateway  *payment.StubGateway
	platform *models.Wallet
	dev      *models.DeveloperProfile

	userToken, devToken, adminToken string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	db := dbtest.Open(t)
	cfg := &config.Config{
		Server:       config.ServerConfig{Env: "test"},
		JWT:          config.JWTConfig{AccessSecret: "test-secret", AccessExpiry: time.Hour, Issuer: "mentorbook"},
		Booking:      config.BookingConfig{Timezone: "UTC", SlotGranularity: 30 * time.Minute, MaxDurationMinutes: 480},
		Payment:      config.PaymentConfig{Currency: "USD", RefundReversal: true, SuccessURL: "https://app/ok", CancelURL: "https://app/cancel"},
		Admin:        config.AdminConfig{Email: "admin@test.local", Name: "Platform"},
		Notification: config.NotificationConfig{QueueSize: 32, Workers: 1},
	}
	platform, err := database.SeedPlatform(ctx, db, cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	users := repository.NewUserRepository(db)
	admin, err := users.GetByEmail(ctx, cfg.Admin.Email)
	if err != nil {
		t.Fatalf("admin: %v", err)
	}
	user := &models.User{Name: "Ada", Email: "ada@test.local", Role: domain.RoleUser}
	devUser := &models.User{Name: "Linus", Email: "linus@test.local", Role: domain.RoleDeveloper}
	for _, u := range []*models.User{user, devUser} {
		if err := users.Create(ctx, u); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}
	dev := &models.DeveloperProfile{UserID: devUser.ID, Title: "Go mentor", HourlyRate: decimal.NewFromInt(60), Currency: "USD", IsApproved: true}
	if err := repository.NewDeveloperRepository(db).Create(ctx, dev); err != nil {
		t.Fatalf("create developer: %v", err)
	}

	gw := payment.NewStubGateway("whsec_test")
	app := Setup(cfg, db, gw, nil, zap.NewNop())
	t.Cleanup(app.Close)

	s := &testServer{t: t, app: app, cfg: cfg, gateway: gw, platform: platform, dev: dev}
	s.userToken = s.token(user)
	s.devToken = s.token(devUser)
	s.adminToken = s.token(admin)
	return s
}

func (s *testServer) token(u *models.User) string {
	s.t.Helper()
	tok, err := auth.GenerateAccessToken(&s.cfg.JWT, u.ID, u.Email, u.Role)
	if err != nil {
		s.t.Fatalf("token: %v", err)
	}
	return tok
}

func (s *testServer) do(method, path, token string, body interface{}) (int, map[string]interface{}) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			s.t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.app.Engine.ServeHTTP(w, req)
	out := map[string]interface{}{}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w.Code, out
}

func (s *testServer) webhook(payload []byte, sig string) int {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payment", bytes.NewReader(payload))
	req.Header.Set(handler.SignatureHeader, sig)
	w := httptest.NewRecorder()
	s.app.Engine.ServeHTTP(w, req)
	return w.Code
}

func field(m map[string]interface{}, keys ...string) interface{} {
	var cur interface{} = m
	for _, k := range keys {
		obj, ok := cur.(map[string]interface{})
		if !ok {
			return nil
		}
		cur = obj[k]
	}
	return cur
}

func TestBookingToPayoutOverHTTP(t *testing.T) {
	s := newTestServer(t)
	start := time.Now().UTC().Add(72 * time.Hour).Truncate(time.Hour)
	book := map[string]interface{}{"developer_id": s.dev.ID, "start_time": start.Format(time.RFC3339), "duration_minutes": 30, "topic": "code review"}

	if code, _ := s.do(http.MethodPost, "/api/v1/sessions", "", book); code != http.StatusUnauthorized {
		t.Fatalf("anonymous book = %d", code)
	}
	if code, _ := s.do(http.MethodPost, "/api/v1/sessions", s.devToken, book); code != http.StatusForbidden {
		t.Fatalf("developer book = %d", code)
	}
	code, body := s.do(http.MethodPost, "/api/v1/sessions", s.userToken, book)
	if code != http.StatusCreated {
		t.Fatalf("book = %d %v", code, body)
	}
	id := uint(field(body, "session", "id").(float64))
	sessionPath := fmt.Sprintf("/api/v1/sessions/%d", id)

	if code, _ := s.do(http.MethodPost, "/api/v1/sessions", s.userToken, book); code != http.StatusConflict {
		t.Fatalf("double book = %d", code)
	}
	if code, _ := s.do(http.MethodPost, sessionPath+"/accept", s.userToken, nil); code != http.StatusForbidden {
		t.Fatalf("accept by user = %d", code)
	}
	if code, body := s.do(http.MethodPost, sessionPath+"/accept", s.devToken, nil); code != http.StatusOK || field(body, "session", "status") != domain.SessionApproved {
		t.Fatalf("accept = %d %v", code, body)
	}

	avail := fmt.Sprintf("/api/v1/developers/%d/availability?start=%s&duration=30", s.dev.ID, start.Format(time.RFC3339))
	if code, body := s.do(http.MethodGet, avail, s.userToken, nil); code != http.StatusOK || body["available"] != false {
		t.Fatalf("availability = %d %v", code, body)
	}

	code, body = s.do(http.MethodPost, sessionPath+"/checkout", s.userToken, nil)
	if code != http.StatusCreated {
		t.Fatalf("checkout = %d %v", code, body)
	}
	csID, _ := field(body, "payment", "gateway_session_id").(string)
	if csID == "" || body["checkout_url"] != "https://app/ok" {
		t.Fatalf("checkout body = %v", body)
	}
	if code, body := s.do(http.MethodPost, sessionPath+"/checkout", s.userToken, nil); code != http.StatusOK || body["reused"] != true {
		t.Fatalf("second checkout = %d %v", code, body)
	}

	payload, sig := s.gateway.SignedEvent("evt_http_1", payment.EventCheckoutCompleted, map[string]interface{}{
		"id": csID, "amount_total": 3000, "currency": "usd",
	})
	if code := s.webhook(payload, "t=1,v1=deadbeef"); code != http.StatusBadRequest {
		t.Fatalf("bad signature = %d", code)
	}
	for i := 0; i < 2; i++ {
		if code := s.webhook(payload, sig); code != http.StatusOK {
			t.Fatalf("webhook delivery %d = %d", i, code)
		}
	}
	code, body = s.do(http.MethodGet, sessionPath, s.devToken, nil)
	if code != http.StatusOK || field(body, "session", "status") != domain.SessionScheduled || field(body, "session", "payment_status") != domain.SessionPaymentCompleted {
		t.Fatalf("session after payment = %d %v", code, body)
	}

	transferPath := fmt.Sprintf("/api/v1/admin/sessions/%d/transfer", id)
	if code, _ := s.do(http.MethodPost, transferPath, s.userToken, nil); code != http.StatusForbidden {
		t.Fatalf("transfer by user = %d", code)
	}
	if code, body := s.do(http.MethodPost, transferPath, s.adminToken, nil); code != http.StatusOK {
		t.Fatalf("transfer = %d %v", code, body)
	}
	if code, body := s.do(http.MethodPost, transferPath, s.adminToken, nil); code != http.StatusConflict || body["error"] != "transfer failed" {
		t.Fatalf("second transfer = %d %v", code, body)
	}

	if code, body := s.do(http.MethodGet, "/api/v1/me/wallet", s.devToken, nil); code != http.StatusOK || body["balance"] != "30.00" {
		t.Fatalf("developer wallet = %d %v", code, body)
	}
	code, body = s.do(http.MethodGet, fmt.Sprintf("/api/v1/admin/wallets/%d/reconcile", s.platform.ID), s.adminToken, nil)
	if code != http.StatusOK || body["balanced"] != true {
		t.Fatalf("reconcile = %d %v", code, body)
	}

	// notifications are delivered asynchronously
	deadline := time.Now().Add(3 * time.Second)
	for {
		_, body := s.do(http.MethodGet, "/api/v1/me/notifications", s.devToken, nil)
		if list, _ := body["notifications"].([]interface{}); len(list) >= 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("developer notifications = %v", body)
		}
		time.Sleep(20 * time.Millisecond)
	}
	if code, _ := s.do(http.MethodPut, "/api/v1/me/notifications", s.devToken, nil); code != http.StatusOK {
		t.Fatalf("mark all read = %d", code)
	}
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t)
	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   interface{}
		want   int
	}{
		{"unknown session", http.MethodGet, "/api/v1/sessions/999", s.userToken, nil, http.StatusNotFound},
		{"bad id", http.MethodGet, "/api/v1/sessions/abc", s.userToken, nil, http.StatusBadRequest},
		{"missing fields", http.MethodPost, "/api/v1/sessions", s.userToken, map[string]interface{}{"topic": "x"}, http.StatusBadRequest},
		{"past start", http.MethodPost, "/api/v1/sessions", s.userToken, map[string]interface{}{
			"developer_id": s.dev.ID, "start_time": "2020-01-01T10:00:00Z", "duration_minutes": 30}, http.StatusBadRequest},
		{"bad page", http.MethodGet, "/api/v1/me/sessions?page=0", s.userToken, nil, http.StatusBadRequest},
		{"slots by user", http.MethodPut, "/api/v1/me/default-unavailable-slots", s.userToken, map[string]interface{}{"slots": []string{"10:00"}}, http.StatusForbidden},
		{"off-grid slot", http.MethodPut, "/api/v1/me/default-unavailable-slots", s.devToken, map[string]interface{}{"slots": []string{"10:15"}}, http.StatusBadRequest},
		{"admin only", http.MethodGet, "/api/v1/admin/wallet", s.devToken, nil, http.StatusForbidden},
		{"transfer unknown", http.MethodPost, "/api/v1/admin/sessions/999/transfer", s.adminToken, nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code, body := s.do(tt.method, tt.path, tt.token, tt.body); code != tt.want {
				t.Fatalf("%s %s = %d %v, want %d", tt.method, tt.path, code, body, tt.want)
			}
		})
	}
}

func TestWebhookProcessingFailureAsksForRetry(t *testing.T) {
	s := newTestServer(t)
	payload, sig := s.gateway.SignedEvent("evt_orphan", payment.EventCheckoutCompleted, map[string]interface{}{"id": "cs_missing"})
	if code := s.webhook(payload, sig); code != http.StatusInternalServerError {
		t.Fatalf("orphan completion = %d", code)
	}
	bad := []byte(`{"type":"x"}`)
	if code := s.webhook(bad, s.gateway.Signer.Sign(bad)); code != http.StatusBadRequest {
		t.Fatalf("malformed event = %d", code)
	}
}

func TestDeveloperSlots(t *testing.T) {
	s := newTestServer(t)
	date := time.Now().UTC().Add(48 * time.Hour).Format(domain.DateLayout)
	code, body := s.do(http.MethodPut, "/api/v1/me/unavailable-slots", s.devToken, map[string]interface{}{"date": date, "slots": []string{"14:00", "09:30"}})
	if code != http.StatusOK {
		t.Fatalf("set slots = %d %v", code, body)
	}
	if code, _ := s.do(http.MethodPut, "/api/v1/me/default-unavailable-slots", s.devToken, map[string]interface{}{"slots": []string{"12:00"}}); code != http.StatusOK {
		t.Fatalf("set defaults = %d", code)
	}
	code, body = s.do(http.MethodGet, fmt.Sprintf("/api/v1/developers/%d/unavailable-slots?date=%s", s.dev.ID, date), s.userToken, nil)
	if code != http.StatusOK {
		t.Fatalf("get slots = %d", code)
	}
	got, _ := body["slots"].([]interface{})
	if len(got) != 3 || got[0] != "09:30" || got[1] != "12:00" || got[2] != "14:00" {
		t.Fatalf("slots = %v", got)
	}
}
