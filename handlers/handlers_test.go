package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subscriptionOpsAPI/internal/apperrors"
	"subscriptionOpsAPI/internal/automation"
	"subscriptionOpsAPI/internal/communication"
	"subscriptionOpsAPI/internal/identity"
	"subscriptionOpsAPI/internal/payment"
	"subscriptionOpsAPI/middleware"
	"subscriptionOpsAPI/services"
)

type decoded struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) decoded {
	t.Helper()
	var out decoded
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func withIdentity(r *http.Request, id *identity.Identity) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), middleware.IdentityKey, id))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(apperrors.Validationf("bad")))
	assert.Equal(t, http.StatusBadRequest, statusFor(&apperrors.InvalidTransitionError{From: "verified", To: "rejected"}))
	assert.Equal(t, http.StatusNotFound, statusFor(apperrors.NotFoundf("gone")))
	assert.Equal(t, http.StatusForbidden, statusFor(apperrors.Forbiddenf("no")))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(apperrors.Unavailablef("down")))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("kaput")))
}

func TestRespondWithServiceErrorHidesInternals(t *testing.T) {
	rec := httptest.NewRecorder()
	respondWithServiceError(rec, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("firestore: secret detail"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody(t, rec)
	assert.False(t, body.OK)
	assert.Equal(t, "Internal server error", body.Error)
}

type stubAutomation struct {
	opts     automation.RunOptions
	runErr   error
	cfg      automation.Config
	restarts int
}

func (s *stubAutomation) Config(context.Context) (automation.Config, error) { return s.cfg, nil }

func (s *stubAutomation) UpdateConfig(_ context.Context, u automation.ConfigUpdate) (automation.Config, error) {
	next := u.Apply(s.cfg)
	if err := next.Validate(); err != nil {
		return s.cfg, err
	}
	s.cfg = next
	return s.cfg, nil
}

func (s *stubAutomation) ResetConfig(context.Context) (automation.Config, error) {
	s.cfg = automation.DefaultConfig()
	return s.cfg, nil
}

func (s *stubAutomation) RunDaily(_ context.Context, opts automation.RunOptions) (*automation.RunResult, error) {
	s.opts = opts
	if s.runErr != nil {
		return nil, s.runErr
	}
	return &automation.RunResult{RunDate: "2024-06-15", DryRun: opts.DryRun, ProcessedCount: 4, NotificationsSent: 3}, nil
}

func (s *stubAutomation) Restart(context.Context) error {
	s.restarts++
	return nil
}

func (s *stubAutomation) Status() services.SchedulerStatus {
	return services.SchedulerStatus{Scheduled: s.cfg.Enabled}
}

func TestRunDaily(t *testing.T) {
	stub := &stubAutomation{cfg: automation.DefaultConfig()}
	h := NewAutomationHandler(stub, stub)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/automation/run-daily?dryRun=true", nil)
	req = withIdentity(req, &identity.Identity{UID: "admin-1", Role: identity.RoleAdmin})
	rec := httptest.NewRecorder()
	h.RunDaily(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, automation.RunOptions{DryRun: true, InvokedBy: "admin-1", Reason: "manual-trigger"}, stub.opts)

	var result automation.RunResult
	require.NoError(t, json.Unmarshal(decodeBody(t, rec).Data, &result))
	assert.True(t, result.DryRun)
	assert.Equal(t, 4, result.ProcessedCount)
	assert.Equal(t, 3, result.NotificationsSent)
}

func TestRunDaily_ReasonAndErrors(t *testing.T) {
	stub := &stubAutomation{cfg: automation.DefaultConfig()}
	h := NewAutomationHandler(stub, stub)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/automation/run-daily", strings.NewReader(`{"reason":"backfill"}`))
	req = withIdentity(req, &identity.Identity{Email: "ops@example.com"})
	rec := httptest.NewRecorder()
	h.RunDaily(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, automation.RunOptions{InvokedBy: "ops@example.com", Reason: "backfill"}, stub.opts)

	rec = httptest.NewRecorder()
	h.RunDaily(rec, httptest.NewRequest(http.MethodPost, "/api/v1/automation/run-daily?dryRun=maybe", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	stub.runErr = errors.New("config store down")
	rec = httptest.NewRecorder()
	h.RunDaily(rec, httptest.NewRequest(http.MethodPost, "/api/v1/automation/run-daily", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "manual", stub.opts.InvokedBy)
}

func TestUpdateConfigRestartsScheduler(t *testing.T) {
	stub := &stubAutomation{cfg: automation.DefaultConfig()}
	h := NewAutomationHandler(stub, stub)

	rec := httptest.NewRecorder()
	h.UpdateConfig(rec, httptest.NewRequest(http.MethodPut, "/api/v1/automation/config", strings.NewReader(`{"enabled":false}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, stub.restarts)

	var resp configResponse
	require.NoError(t, json.Unmarshal(decodeBody(t, rec).Data, &resp))
	assert.False(t, resp.Config.Enabled)
	assert.False(t, resp.Scheduler.Scheduled)

	rec = httptest.NewRecorder()
	h.UpdateConfig(rec, httptest.NewRequest(http.MethodPut, "/api/v1/automation/config", strings.NewReader(`{"cronExpression":"nope"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 1, stub.restarts)

	rec = httptest.NewRecorder()
	h.ResetConfig(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/automation/config", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, stub.restarts)
}

type stubPayments struct {
	PaymentOps
	filter  payment.Filter
	created *payment.CreateRequest
	userID  string
	owner   string
	err     error
}

func (s *stubPayments) Get(_ context.Context, id, owner string) (*payment.Payment, error) {
	s.owner = owner
	return &payment.Payment{ID: id, CreatedBy: "u1"}, nil
}

func (s *stubPayments) Retry(_ context.Context, id, userID, owner string) (*payment.Payment, error) {
	s.userID, s.owner = userID, owner
	if owner != "" && owner != "u1" {
		return nil, apperrors.Forbiddenf("payment %s belongs to another user", id)
	}
	return &payment.Payment{ID: id, Status: payment.StatusPending}, nil
}

func (s *stubPayments) BySubscription(_ context.Context, _, owner string) ([]*payment.Payment, error) {
	s.owner = owner
	return nil, nil
}

func (s *stubPayments) Create(_ context.Context, req *payment.CreateRequest, userID string) (*payment.Payment, error) {
	s.created, s.userID = req, userID
	if s.err != nil {
		return nil, s.err
	}
	return &payment.Payment{ID: "pay-1", SubscriptionID: req.SubscriptionID, Status: payment.StatusPending}, nil
}

func (s *stubPayments) List(_ context.Context, f payment.Filter) (*payment.Page, error) {
	s.filter = f
	return &payment.Page{Payments: []*payment.Payment{}, Page: f.Page, Limit: f.Limit}, nil
}

func (s *stubPayments) Verify(_ context.Context, id, _, _ string) (*services.VerificationResult, error) {
	if id == "done" {
		return nil, &apperrors.InvalidTransitionError{From: "verified", To: "verified"}
	}
	return nil, apperrors.NotFoundf("payment %s not found", id)
}

func paymentRouter(h *PaymentHandler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/payments", h.CreatePayment).Methods(http.MethodPost)
	r.HandleFunc("/payments", h.ListPayments).Methods(http.MethodGet)
	r.HandleFunc("/payments/subscription/{subscriptionId}", h.GetBySubscription).Methods(http.MethodGet)
	r.HandleFunc("/payments/{id}", h.GetPayment).Methods(http.MethodGet)
	r.HandleFunc("/payments/{id}/verify", h.VerifyPayment).Methods(http.MethodPatch)
	r.HandleFunc("/payments/{id}/retry", h.RetryPayment).Methods(http.MethodPatch)
	return r
}

func TestCreatePayment(t *testing.T) {
	stub := &stubPayments{}
	router := paymentRouter(NewPaymentHandler(stub))

	req := httptest.NewRequest(http.MethodPost, "/payments", strings.NewReader(`{"subscriptionId":"s1","amount":45,"method":"binance"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/payments", strings.NewReader(`{"subscriptionId":"s1","amount":45,"method":"binance"}`))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, withIdentity(req, &identity.Identity{UID: "u1", Role: identity.RoleClient}))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "u1", stub.userID)
	assert.Equal(t, 45.0, stub.created.Amount)

	stub.err = apperrors.Validationf("payment of $50.00 exceeds the monthly amount")
	req = httptest.NewRequest(http.MethodPost, "/payments", strings.NewReader(`{"subscriptionId":"s1","amount":50,"method":"binance"}`))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, withIdentity(req, &identity.Identity{UID: "u1"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec).Error, "exceeds the monthly amount")

	req = httptest.NewRequest(http.MethodPost, "/payments", strings.NewReader(`{`))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, withIdentity(req, &identity.Identity{UID: "u1"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListPaymentsScopesClients(t *testing.T) {
	stub := &stubPayments{}
	router := paymentRouter(NewPaymentHandler(stub))

	req := httptest.NewRequest(http.MethodGet, "/payments?status=pending&page=2&limit=5", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, withIdentity(req, &identity.Identity{UID: "u1", Role: identity.RoleClient}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, payment.Filter{Status: payment.StatusPending, Page: 2, Limit: 5, CreatedBy: "u1"}, stub.filter)

	req = httptest.NewRequest(http.MethodGet, "/payments", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, withIdentity(req, &identity.Identity{UID: "a1", Role: identity.RoleAdmin}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, stub.filter.CreatedBy)

	req = httptest.NewRequest(http.MethodGet, "/payments?limit=-3", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPaymentReadsAndRetryAreScopedForClients(t *testing.T) {
	stub := &stubPayments{}
	router := paymentRouter(NewPaymentHandler(stub))
	client := &identity.Identity{UID: "u2", Role: identity.RoleClient}
	admin := &identity.Identity{UID: "a1", Role: identity.RoleAdmin}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, withIdentity(httptest.NewRequest(http.MethodPatch, "/payments/pay-1/retry", nil), client))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "u2", stub.owner)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, withIdentity(httptest.NewRequest(http.MethodPatch, "/payments/pay-1/retry", nil), admin))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, stub.owner)
	assert.Equal(t, "a1", stub.userID)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, withIdentity(httptest.NewRequest(http.MethodGet, "/payments/pay-1", nil), client))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u2", stub.owner)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, withIdentity(httptest.NewRequest(http.MethodGet, "/payments/subscription/s1", nil), client))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u2", stub.owner)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, withIdentity(httptest.NewRequest(http.MethodGet, "/payments/subscription/s1", nil), admin))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, stub.owner)
}

func TestVerifyPaymentErrors(t *testing.T) {
	router := paymentRouter(NewPaymentHandler(&stubPayments{}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/payments/missing/verify", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/payments/done/verify", strings.NewReader(`{"notes":"again"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec).Error, "invalid status transition")
}

type stubComms struct {
	CommunicationOps
	payload communication.InboundPayload
	err     error
}

func (s *stubComms) Receive(_ context.Context, p communication.InboundPayload) (*communication.Message, error) {
	s.payload = p
	return &communication.Message{}, s.err
}

func TestWebhookAlwaysAnswersTwiML(t *testing.T) {
	stub := &stubComms{}
	h := NewCommunicationHandler(stub)

	form := url.Values{
		"From":        {"whatsapp:+584125550001"},
		"To":          {"whatsapp:+14155238886"},
		"Body":        {"hola"},
		"MessageSid":  {"SM1"},
		"ProfileName": {"Ana"},
	}
	newReq := func() *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/communications/webhook", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req
	}

	rec := httptest.NewRecorder()
	h.Webhook(rec, newReq())
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/xml", rec.Header().Get("Content-Type"))
	assert.Equal(t, emptyTwiML, rec.Body.String())
	assert.Equal(t, communication.InboundPayload{
		From:        "whatsapp:+584125550001",
		To:          "whatsapp:+14155238886",
		Body:        "hola",
		MessageSid:  "SM1",
		ProfileName: "Ana",
	}, stub.payload)

	stub.err = errors.New("store down")
	rec = httptest.NewRecorder()
	h.Webhook(rec, newReq())
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSendTemplateRequiresFields(t *testing.T) {
	h := NewCommunicationHandler(&stubComms{})
	rec := httptest.NewRecorder()
	h.SendTemplate(rec, httptest.NewRequest(http.MethodPost, "/api/v1/communications/send-template", strings.NewReader(`{"clientId":"c1"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMe(t *testing.T) {
	h := NewAuthHandler(nil)

	rec := httptest.NewRecorder()
	h.Me(rec, httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	h.Me(rec, withIdentity(httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil), &identity.Identity{UID: "u1", Role: identity.RoleStaff}))
	require.Equal(t, http.StatusOK, rec.Code)

	var id identity.Identity
	require.NoError(t, json.Unmarshal(decodeBody(t, rec).Data, &id))
	assert.Equal(t, identity.RoleStaff, id.Role)
}
