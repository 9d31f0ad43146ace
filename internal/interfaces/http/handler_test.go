package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"project_waflow/internal/config"
	"project_waflow/internal/entities"
	"project_waflow/internal/infrastructure"
	"project_waflow/internal/repository"
	"project_waflow/internal/usecases"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMessenger struct {
	mu        sync.Mutex
	sent      []string
	questions []entities.OutboundQuestion
	templates []entities.OutboundTemplate
	fail      error
}

func (s *stubMessenger) SendText(ctx context.Context, req entities.OutboundText) (*entities.DeliveryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return &entities.DeliveryResult{To: req.To, Attempts: 3, Error: s.fail.Error()}, s.fail
	}
	s.sent = append(s.sent, req.Text)
	return &entities.DeliveryResult{To: req.To, Attempts: 1, MessageID: fmt.Sprintf("wamid.out%d", len(s.sent))}, nil
}

func (s *stubMessenger) SendQuestion(ctx context.Context, req entities.OutboundQuestion) (*entities.DeliveryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.questions = append(s.questions, req)
	return &entities.DeliveryResult{To: req.To, Attempts: 1, MessageID: fmt.Sprintf("wamid.q%d", len(s.questions))}, nil
}

func (s *stubMessenger) SendTemplate(ctx context.Context, req entities.OutboundTemplate) (*entities.DeliveryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return &entities.DeliveryResult{To: req.To, Attempts: 3, Error: s.fail.Error()}, s.fail
	}
	s.templates = append(s.templates, req)
	return &entities.DeliveryResult{To: req.To, Attempts: 1, MessageID: fmt.Sprintf("wamid.t%d", len(s.templates))}, nil
}

type testServer struct {
	router    *gin.Engine
	messenger *stubMessenger
	ledger    *repository.ConversationRepository
	audit     *repository.FileAuditLog
}

func newTestServer(t *testing.T, jwtSecret string) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	flows := repository.NewFlowRepository(dir)
	ledger := repository.NewConversationRepository(dir)
	audit := repository.NewFileAuditLog(dir)
	messenger := &stubMessenger{}

	svc := usecases.NewMessageService(messenger, ledger, flows, nil, nil, time.Second)
	auth := usecases.NewAuthUsecase(jwtSecret)
	require.NoError(t, auth.EnsureAdmin("admin", "s3cret"))

	waCfg := config.WhatsAppConfig{
		PhoneNumberID:     "1234567890",
		BusinessAccountID: "9988776655",
		VerifyToken:       "verify-me",
		APIVersion:        "v21.0",
		BrandName:         "Koenig Solutions",
	}

	r := gin.New()
	SetupRoutes(r, svc, usecases.NewFlowUsecase(flows), auth, usecases.NewDashboardUsecase(flows, ledger, audit),
		ledger, waCfg, infrastructure.NewRecipientLimiter(1, 5), NewMiddleware(jwtSecret))

	return &testServer{router: r, messenger: messenger, ledger: ledger, audit: audit}
}

func (s *testServer) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func TestWebhookVerification(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(t, http.MethodGet, "/api/webhook?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=12345", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "12345", w.Body.String())

	w = s.do(t, http.MethodGet, "/api/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

const incomingText = `{
  "object": "whatsapp_business_account",
  "entry": [{"changes": [{"value": {
    "contacts": [{"wa_id": "919876543210", "profile": {"name": "Asha"}}],
    "messages": [{"from": "919876543210", "id": "wamid.in1", "type": "text", "text": {"body": "Hello there"}}]
  }}]}]
}`

func TestWebhookIncomingMessageCreatesConversation(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(t, http.MethodPost, "/api/webhook", incomingText)
	require.Equal(t, http.StatusOK, w.Code)

	conv, err := s.ledger.Get(context.Background(), "919876543210")
	require.NoError(t, err)
	require.Len(t, conv.Messages, 1)
	m := conv.Messages[0]
	assert.Equal(t, entities.DirectionIncoming, m.Direction)
	assert.Equal(t, "Hello there", m.Text)
	assert.Equal(t, "text", m.Type)
	assert.Equal(t, "Asha", m.ContactName)
	assert.Equal(t, "wamid.in1", m.WAMessageID)

	// a second delivery appends to the same conversation
	w = s.do(t, http.MethodPost, "/api/webhook", incomingText)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Conversations []entities.ConversationSummary `json:"conversations"`
	}
	decode(t, s.do(t, http.MethodGet, "/api/conversations", ""), &list)
	require.Len(t, list.Conversations, 1)
	assert.Equal(t, 2, list.Conversations[0].MessageCount)
}

func TestWebhookRejectsOtherObjects(t *testing.T) {
	s := newTestServer(t, "")
	w := s.do(t, http.MethodPost, "/api/webhook", `{"object": "page", "entry": []}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, "/api/webhook", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookStatusUpdatesMatchingMessage(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(t, http.MethodPost, "/api/messages/send", `{"phone": "+919876543210", "text": "first"}`)
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, http.MethodPost, "/api/messages/send", `{"phone": "+919876543210", "text": "second"}`)
	require.Equal(t, http.StatusOK, w.Code)

	before, err := s.ledger.Get(context.Background(), "+919876543210")
	require.NoError(t, err)

	w = s.do(t, http.MethodPost, "/api/webhook", `{
	  "object": "whatsapp_business_account",
	  "entry": [{"changes": [{"value": {
	    "statuses": [{"id": "wamid.out1", "status": "delivered", "recipient_id": "919876543210"}]
	  }}]}]
	}`)
	require.Equal(t, http.StatusOK, w.Code)

	after, err := s.ledger.Get(context.Background(), "+919876543210")
	require.NoError(t, err)
	want := before.Messages[0]
	want.Status = "delivered"
	assert.Equal(t, want, after.Messages[0])
	assert.Equal(t, before.Messages[1], after.Messages[1])
}

func TestExtractText(t *testing.T) {
	var m webhookMessage
	require.NoError(t, json.Unmarshal([]byte(`{"type": "interactive", "interactive": {"type": "button_reply", "button_reply": {"id": "yes", "title": "Yes"}}}`), &m))
	text, id := extractText(m)
	assert.Equal(t, "Yes", text)
	assert.Equal(t, "yes", id)

	m = webhookMessage{}
	require.NoError(t, json.Unmarshal([]byte(`{"type": "interactive", "interactive": {"type": "list_reply", "list_reply": {"id": "opt_3", "title": "Three"}}}`), &m))
	text, id = extractText(m)
	assert.Equal(t, "Three", text)
	assert.Equal(t, "opt_3", id)

	text, _ = extractText(webhookMessage{Type: "image"})
	assert.Equal(t, "[image]", text)

	text, id = extractText(webhookMessage{Type: "button", Button: &struct {
		Text    string `json:"text"`
		Payload string `json:"payload"`
	}{Text: "Stop", Payload: "STOP"}})
	assert.Equal(t, "Stop", text)
	assert.Equal(t, "STOP", id)
}

func TestFlowEndpoints(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(t, http.MethodPost, "/api/flows", `{"description": "no name"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/flows", `{
	  "name": "Welcome",
	  "nodes": [
	    {"id": "s", "type": "start"},
	    {"id": "m", "type": "message", "data": {"messageText": "Hi {{name}}"}},
	    {"id": "q", "type": "question", "data": {"questionText": "Interested?", "options": ["Yes", "No"]}}
	  ],
	  "connections": [{"from": "s", "to": "m", "fromPort": "out"}, {"from": "m", "to": "q", "fromPort": "out"}]
	}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		Flow entities.Flow `json:"flow"`
	}
	decode(t, w, &created)
	id := created.Flow.ID
	require.NotEmpty(t, id)
	assert.False(t, created.Flow.IsActive)

	w = s.do(t, http.MethodPost, "/api/flows/"+id+"/test", `{"message": "hi"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"responses": [
	  {"type": "message", "nodeId": "m", "text": "Hi there"},
	  {"type": "question", "nodeId": "q", "text": "Interested?", "options": ["Yes", "No"], "waitingForInput": true}
	]}`, w.Body.String())

	w = s.do(t, http.MethodPut, "/api/flows/"+id, `{"name": "Renamed", "id": "other"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var updated struct {
		Flow entities.Flow `json:"flow"`
	}
	decode(t, w, &updated)
	assert.Equal(t, id, updated.Flow.ID)
	assert.Equal(t, "Renamed", updated.Flow.Name)

	w = s.do(t, http.MethodPut, "/api/flows/"+id, `{"nodes": [{"id": "m", "type": "message", "data": {}}]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/flows/"+id+"/activate", "")
	require.Equal(t, http.StatusOK, w.Code)

	var list struct {
		Flows []entities.FlowSummary `json:"flows"`
	}
	decode(t, s.do(t, http.MethodGet, "/api/flows", ""), &list)
	require.Len(t, list.Flows, 1)
	assert.True(t, list.Flows[0].IsActive)

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/flows/flow_missing", "").Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPost, "/api/flows/flow_missing/activate", "").Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPost, "/api/flows/flow_missing/test", "").Code)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodDelete, "/api/flows/"+id, "").Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodDelete, "/api/flows/"+id, "").Code)
}

func TestLiveFlowThroughWebhook(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(t, http.MethodPost, "/api/flows", `{
	  "name": "Live",
	  "nodes": [
	    {"id": "s", "type": "start"},
	    {"id": "q", "type": "question", "data": {"label": "interest", "questionText": "Interested?", "options": [
	      {"id": "yes", "text": "Yes"}, {"id": "no", "text": "No"}
	    ]}},
	    {"id": "y", "type": "message", "data": {"messageText": "Great {{name}}, noted {{interest}}"}},
	    {"id": "n", "type": "message", "data": {"messageText": "Maybe later"}}
	  ],
	  "connections": [
	    {"from": "s", "to": "q"},
	    {"from": "q", "to": "y", "fromPort": "yes"},
	    {"from": "q", "to": "n", "fromPort": "no"}
	  ]
	}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		Flow entities.Flow `json:"flow"`
	}
	decode(t, w, &created)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/flows/"+created.Flow.ID+"/activate", "").Code)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/webhook", incomingText).Code)
	require.Len(t, s.messenger.questions, 1)
	assert.Equal(t, "Interested?", s.messenger.questions[0].Text)

	reply := `{
	  "object": "whatsapp_business_account",
	  "entry": [{"changes": [{"value": {
	    "contacts": [{"wa_id": "919876543210", "profile": {"name": "Asha"}}],
	    "messages": [{"from": "919876543210", "id": "wamid.in2", "type": "interactive",
	      "interactive": {"type": "button_reply", "button_reply": {"id": "no", "title": "No"}}}]
	  }}]}]
	}`
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/webhook", reply).Code)
	assert.Equal(t, []string{"Maybe later"}, s.messenger.sent)

	conv, err := s.ledger.Get(context.Background(), "919876543210")
	require.NoError(t, err)
	assert.Nil(t, conv.FlowState)
	assert.Len(t, conv.Messages, 4)
}

func TestSendMessageEndpoint(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(t, http.MethodPost, "/api/messages/send", `{"phone": "919876543210"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(t, http.MethodPost, "/api/messages/send", `{"phone": "abc", "text": "hi"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/messages/send", `{"phone": "919876543210", "text": "hi", "leadId": "L42", "leadName": "Asha"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var res usecases.SendResult
	decode(t, w, &res)
	assert.True(t, res.Success)
	assert.Equal(t, "wamid.out1", res.MessageID)

	var byLead struct {
		Conversation entities.Conversation `json:"conversation"`
	}
	w = s.do(t, http.MethodGet, "/api/conversations/lead/L42", "")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &byLead)
	assert.Equal(t, "919876543210", byLead.Conversation.Phone)
	assert.Equal(t, "Asha", byLead.Conversation.LeadName)

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/conversations/lead/L0", "").Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/conversations/phone/911111111111", "").Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/conversations/phone/919876543210", "").Code)

	s.messenger.fail = &infrastructure.ProviderError{StatusCode: 503, Body: "unavailable"}
	w = s.do(t, http.MethodPost, "/api/messages/send", `{"phone": "919876543210", "text": "again"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	decode(t, w, &res)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "HTTP 503")
}

func TestSendTemplateEndpoint(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(t, http.MethodPost, "/api/messages/send-template", `{"phone": "919876543210"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(t, http.MethodPost, "/api/messages/send-template", `{"phone": "abc", "templateName": "welcome"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/messages/send-template",
		`{"phone": "919876543210", "templateName": "course_intro", "templateParams": ["Asha"], "leadId": "L9", "leadName": "Asha"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var res usecases.SendResult
	decode(t, w, &res)
	assert.True(t, res.Success)
	assert.Equal(t, "wamid.t1", res.MessageID)

	require.Len(t, s.messenger.templates, 1)
	assert.Equal(t, "course_intro", s.messenger.templates[0].Name)
	assert.Equal(t, []string{"Asha"}, s.messenger.templates[0].Params)
	assert.Empty(t, s.messenger.sent)

	conv, err := s.ledger.Get(context.Background(), "919876543210")
	require.NoError(t, err)
	assert.Equal(t, "L9", conv.LeadID)
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, "template", conv.Messages[0].Type)
	assert.Equal(t, "[Template: course_intro]", conv.Messages[0].Text)

	s.messenger.fail = &infrastructure.ProviderError{StatusCode: 400, Body: "template not approved"}
	w = s.do(t, http.MethodPost, "/api/messages/send-template", `{"phone": "919876543210", "templateName": "draft"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestWhatsAppEndpoints(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(t, http.MethodGet, "/api/whatsapp/config", "")
	require.Equal(t, http.StatusOK, w.Code)
	var cfg map[string]any
	decode(t, w, &cfg)
	assert.Equal(t, false, cfg["configured"])
	assert.Equal(t, false, cfg["hasAccessToken"])
	assert.Equal(t, true, cfg["hasPhoneNumberId"])
	assert.Equal(t, "7890", cfg["phoneNumberId"])
	assert.Equal(t, "6655", cfg["businessAccountId"])
	assert.Equal(t, "Koenig Solutions", cfg["brandName"])

	for i := 0; i < 60; i++ {
		require.NoError(t, s.audit.Append(context.Background(), entities.AuditEntry{To: "919876543210", Status: entities.StatusSent, TextPreview: fmt.Sprint(i)}))
	}
	var logs struct {
		Logs []entities.AuditEntry `json:"logs"`
	}
	decode(t, s.do(t, http.MethodGet, "/api/whatsapp/message-log", ""), &logs)
	require.Len(t, logs.Logs, MaxLogTail)
	assert.Equal(t, "59", logs.Logs[MaxLogTail-1].TextPreview)

	var stats usecases.DashboardStats
	decode(t, s.do(t, http.MethodGet, "/api/dashboard/stats", ""), &stats)
	assert.Equal(t, 60, stats.Sent)
}

func TestAuthRequiredWhenSecretSet(t *testing.T) {
	s := newTestServer(t, "top-secret")

	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/flows", "").Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/flows", "", "Authorization", "Bearer garbage").Code)

	// webhook stays reachable for the provider
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/webhook", incomingText).Code)

	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodPost, "/api/auth/login", `{"username": "admin", "password": "nope"}`).Code)

	w := s.do(t, http.MethodPost, "/api/auth/login", `{"username": "admin", "password": "s3cret"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var login struct {
		Token string `json:"token"`
	}
	decode(t, w, &login)
	require.NotEmpty(t, login.Token)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/flows", "", "Authorization", "Bearer "+login.Token).Code)
}

func TestRateLimitPerClient(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(NewMiddleware("").RateLimitPerClient(1, 2))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestSecurityAndCORSHeaders(t *testing.T) {
	s := newTestServer(t, "")
	w := s.do(t, http.MethodOptions, "/api/flows", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}
