package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"kiwigeek/internal/config"
	"kiwigeek/internal/model"
	"kiwigeek/internal/service"
)

const greetingAnswer = `{"isActionableQuote": false, "message": "¿Cuál es tu presupuesto?"}`

const rawQuote = `{
  "isActionableQuote": true,
  "scope": "TOWER",
  "options": [
    {
      "title": "OPCIÓN B - IDEAL",
      "strategy": "Equilibrio",
      "components": [
        {"category": "Procesador", "name": "Ryzen 5 5600", "price": 900},
        {"category": "Tarjeta de Video", "name": "RTX 4060", "price": 1500}
      ]
    }
  ]
}`

// stubConversation replays answers in order; once exhausted it repeats the last one
type stubConversation struct {
	mu      sync.Mutex
	answers []string
	err     error
}

func (s *stubConversation) Send(_ context.Context, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	answer := s.answers[0]
	if len(s.answers) > 1 {
		s.answers = s.answers[1:]
	}
	return answer, nil
}

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(conv func() service.Conversation) *gin.Engine {
	policy := config.DefaultQuotePolicy()
	decoder := service.NewQuoteDecoder(nil)
	validator := service.NewValidator(policy)

	assistant := service.NewAssistantService(service.AssistantDeps{
		Sessions:  service.NewSessionStore(conv),
		Extractor: service.NewBudgetExtractor(policy),
		Decoder:   decoder,
		Validator: validator,
		Loop:      service.NewCorrectionLoop(decoder, validator, 2, nil),
		Selector:  service.NewSelector(policy),
		Provider:  "stub",
	})

	return NewRouter(RouterDeps{
		Assistant: assistant,
		Server:    config.ServerConfig{AllowedOrigins: "*"},
		Build:     BuildInfo{Version: "test"},
		Provider:  "stub",
	})
}

func answering(answers ...string) func() service.Conversation {
	return func() service.Conversation {
		return &stubConversation{answers: answers}
	}
}

func perform(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) APIError {
	t.Helper()
	var body struct {
		Error APIError `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid error body %q: %v", w.Body.String(), err)
	}
	return body.Error
}

func TestChatHandler_Chat(t *testing.T) {
	router := newTestRouter(answering(greetingAnswer))

	w := perform(router, http.MethodPost, "/api/v1/chat", `{"message": "hola"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var result model.TurnResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if _, err := uuid.Parse(result.SessionID); err != nil {
		t.Errorf("session_id %q is not a UUID", result.SessionID)
	}
	if result.State != string(service.StateAccepted) {
		t.Errorf("State = %q", result.State)
	}
	if !strings.Contains(result.Message, "presupuesto") {
		t.Errorf("Message = %q", result.Message)
	}

	w = perform(router, http.MethodGet, "/api/v1/sessions/"+result.SessionID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("session status = %d", w.Code)
	}
	var view model.SessionView
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		t.Fatalf("invalid session body: %v", err)
	}
	if view.Turns != 1 || len(view.History) != 2 {
		t.Errorf("view = %+v, want 1 turn and 2 history entries", view)
	}
}

func TestChatHandler_Chat_Errors(t *testing.T) {
	tests := []struct {
		name       string
		conv       func() service.Conversation
		body       string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "missing message",
			conv:       answering(greetingAnswer),
			body:       `{}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrCodeBadRequest,
		},
		{
			name:       "blank message",
			conv:       answering(greetingAnswer),
			body:       `{"message": "   "}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrCodeBadRequest,
		},
		{
			name:       "malformed json",
			conv:       answering(greetingAnswer),
			body:       `{"message":`,
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrCodeBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := perform(newTestRouter(tt.conv), http.MethodPost, "/api/v1/chat", tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if got := decodeError(t, w).Code; got != tt.wantCode {
				t.Errorf("code = %q, want %q", got, tt.wantCode)
			}
		})
	}
}

func TestChatHandler_Chat_GeneratorFailures(t *testing.T) {
	failing := func() service.Conversation {
		return &stubConversation{err: errors.New("connection refused")}
	}
	router := newTestRouter(failing)
	sessionID := uuid.NewString()
	body := `{"session_id": "` + sessionID + `", "message": "PC de 4000 soles"}`

	w := perform(router, http.MethodPost, "/api/v1/chat", body)
	if w.Code != http.StatusOK {
		t.Fatalf("first failure status = %d, body = %s", w.Code, w.Body.String())
	}
	var result model.TurnResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if result.Message != service.ResendMessage {
		t.Errorf("Message = %q, want resend prompt", result.Message)
	}

	w = perform(router, http.MethodPost, "/api/v1/chat", body)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("second failure status = %d, want 503", w.Code)
	}
	if got := decodeError(t, w).Code; got != ErrCodeSessionNeedsReset {
		t.Errorf("code = %q, want %q", got, ErrCodeSessionNeedsReset)
	}

	w = perform(router, http.MethodDelete, "/api/v1/sessions/"+sessionID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("reset status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Kiwigeek") {
		t.Errorf("reset body lacks greeting: %s", w.Body.String())
	}
}

func TestChatHandler_ChatStream(t *testing.T) {
	router := newTestRouter(answering(greetingAnswer))

	w := perform(router, http.MethodPost, "/api/v1/chat/stream", `{"message": "hola"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("Content-Type = %q", ct)
	}

	var events []string
	scanner := bufio.NewScanner(strings.NewReader(w.Body.String()))
	for scanner.Scan() {
		if name, ok := strings.CutPrefix(scanner.Text(), "event: "); ok {
			events = append(events, name)
		}
	}

	want := []string{"start", "attempt", "result", "done"}
	if strings.Join(events, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v, want %v", events, want)
	}
}

func TestChatHandler_ChatStream_Error(t *testing.T) {
	router := newTestRouter(answering(greetingAnswer))

	w := perform(router, http.MethodPost, "/api/v1/chat/stream", `{"message": " "}`)
	body := w.Body.String()
	if !strings.Contains(body, "event: error") {
		t.Errorf("missing error event in %q", body)
	}
	if strings.Contains(body, "event: done") {
		t.Errorf("done sent after error: %q", body)
	}
}

func TestChatHandler_Sessions(t *testing.T) {
	router := newTestRouter(answering(greetingAnswer))
	unknown := uuid.NewString()

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{"get unknown", http.MethodGet, "/api/v1/sessions/" + unknown, http.StatusNotFound},
		{"reset unknown", http.MethodDelete, "/api/v1/sessions/" + unknown, http.StatusNotFound},
		{"turns without store", http.MethodGet, "/api/v1/sessions/" + unknown + "/turns", http.StatusOK},
		{"invalid limit", http.MethodGet, "/api/v1/sessions/" + unknown + "/turns?limit=abc", http.StatusBadRequest},
		{"negative limit", http.MethodGet, "/api/v1/sessions/" + unknown + "/turns?limit=-1", http.StatusBadRequest},
		{"unknown route", http.MethodGet, "/api/v1/nope", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := perform(router, tt.method, tt.path, "")
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestValidateHandler_Validate(t *testing.T) {
	router := newTestRouter(answering(greetingAnswer))

	rawBody, _ := json.Marshal(map[string]any{"raw": rawQuote, "budget": "2400"})

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"valid raw quote", string(rawBody), http.StatusOK, ""},
		{"undecodable raw", `{"raw": "no es json", "budget": "4000"}`, http.StatusUnprocessableEntity, ErrCodeUndecodableQuote},
		{"nothing to validate", `{"budget": "4000"}`, http.StatusUnprocessableEntity, ErrCodeUndecodableQuote},
		{"negative budget", `{"raw": "x", "budget": "-5"}`, http.StatusBadRequest, ErrCodeBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := perform(router, http.MethodPost, "/api/v1/quotes/validate", tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantCode != "" {
				if got := decodeError(t, w).Code; got != tt.wantCode {
					t.Errorf("code = %q, want %q", got, tt.wantCode)
				}
				return
			}

			var resp model.ValidateResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("invalid body: %v", err)
			}
			if len(resp.Verdicts) != 1 {
				t.Fatalf("verdicts = %d, want 1", len(resp.Verdicts))
			}
		})
	}
}

func TestFeedbackHandler_Submit(t *testing.T) {
	router := newTestRouter(answering(greetingAnswer))

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"whatsapp", `{"session_id": "s1", "turn": 1, "option_title": "OPCIÓN A", "action": "whatsapp"}`, http.StatusOK},
		{"unknown action", `{"session_id": "s1", "turn": 1, "option_title": "OPCIÓN A", "action": "share"}`, http.StatusBadRequest},
		{"missing title", `{"session_id": "s1", "turn": 1, "action": "buy"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := perform(router, http.MethodPost, "/api/v1/feedback", tt.body)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestRouter_HealthAndVersion(t *testing.T) {
	router := newTestRouter(answering(greetingAnswer))

	w := perform(router, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d", w.Code)
	}
	var health map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &health); err != nil {
		t.Fatalf("invalid health body: %v", err)
	}
	if health["database"] != "disabled" || health["generator"] != "stub" {
		t.Errorf("health = %v", health)
	}

	w = perform(router, http.MethodGet, "/version", "")
	if !strings.Contains(w.Body.String(), `"version":"test"`) {
		t.Errorf("version body = %s", w.Body.String())
	}

	if w := perform(router, http.MethodGet, "/metrics", ""); w.Code != http.StatusNotFound {
		t.Errorf("metrics without handler status = %d, want 404", w.Code)
	}
}

func TestCorsConfig(t *testing.T) {
	tests := []struct {
		name        string
		server      config.ServerConfig
		wantAll     bool
		wantOrigins []string
	}{
		{"wildcard", config.ServerConfig{AllowedOrigins: "*"}, true, nil},
		{"empty", config.ServerConfig{}, true, nil},
		{"list", config.ServerConfig{AllowedOrigins: "https://kiwigeek.pe, https://www.kiwigeek.pe"}, false, []string{"https://kiwigeek.pe", "https://www.kiwigeek.pe"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := corsConfig(tt.server)
			if cfg.AllowAllOrigins != tt.wantAll {
				t.Errorf("AllowAllOrigins = %v, want %v", cfg.AllowAllOrigins, tt.wantAll)
			}
			if strings.Join(cfg.AllowOrigins, "|") != strings.Join(tt.wantOrigins, "|") {
				t.Errorf("AllowOrigins = %v, want %v", cfg.AllowOrigins, tt.wantOrigins)
			}
		})
	}
}
