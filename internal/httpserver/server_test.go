package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"market-hunter/internal/database"
	"market-hunter/internal/httpserver/deps"
	"market-hunter/internal/hub"
	"market-hunter/internal/logger"
	"market-hunter/internal/monitor"
	"market-hunter/internal/protocol"
	"market-hunter/internal/scraper"
)

type fakeAccounts struct {
	mu       sync.Mutex
	users    map[string]*database.User
	sessions map[string]*database.User
	telegram map[uint]int64
	next     uint
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{
		users:    make(map[string]*database.User),
		sessions: make(map[string]*database.User),
		telegram: make(map[uint]int64),
	}
}

func (a *fakeAccounts) CreateUser(_ context.Context, username, password string) (*database.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.users[username]; ok {
		return nil, database.ErrUsernameTaken
	}
	a.next++
	u := &database.User{ID: a.next, Username: username, PasswordHash: password}
	a.users[username] = u
	return u, nil
}

func (a *fakeAccounts) Authenticate(_ context.Context, username, password string) (*database.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	u, ok := a.users[username]
	if !ok || u.PasswordHash != password {
		return nil, database.ErrInvalidCredentials
	}
	return u, nil
}

func (a *fakeAccounts) CreateSession(_ context.Context, userID uint, ttl time.Duration) (*database.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, u := range a.users {
		if u.ID == userID {
			token := fmt.Sprintf("token-%d-%d", userID, len(a.sessions))
			a.sessions[token] = u
			return &database.Session{Token: token, UserID: userID, ExpiresAt: time.Now().Add(ttl)}, nil
		}
	}
	return nil, fmt.Errorf("no user %d", userID)
}

func (a *fakeAccounts) GetSessionUser(_ context.Context, token string) (*database.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sessions[token], nil
}

func (a *fakeAccounts) DeleteSession(_ context.Context, token string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.sessions, token)
	return nil
}

func (a *fakeAccounts) SetTelegramID(_ context.Context, userID uint, telegramID int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.telegram[userID] = telegramID
	return nil
}

type fakeEngine struct {
	mu       sync.Mutex
	monitors map[string]*database.Monitor
	running  map[string]bool
	next     int
	search   error
	limit    int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{monitors: make(map[string]*database.Monitor), running: make(map[string]bool)}
}

func (e *fakeEngine) Start(_ context.Context, ownerID uint, f scraper.SearchFilters, interval time.Duration) (*database.Monitor, error) {
	f = f.Normalize()
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", monitor.ErrInvalidFilter, err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.next++
	m := &database.Monitor{
		ID:              fmt.Sprintf("m-%d", e.next),
		UserID:          ownerID,
		Query:           f.Query,
		IntervalSeconds: int(interval / time.Second),
		IsActive:        true,
	}
	e.monitors[m.ID] = m
	e.running[m.ID] = true
	return m, nil
}

func (e *fakeEngine) Stop(_ context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.monitors[id]
	if !ok {
		return monitor.ErrMonitorNotFound
	}
	m.IsActive = false
	delete(e.running, id)
	return nil
}

func (e *fakeEngine) Owned(_ context.Context, ownerID uint, id string) (*database.Monitor, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.monitors[id]
	if !ok || m.UserID != ownerID {
		return nil, monitor.ErrMonitorNotFound
	}
	return m, nil
}

func (e *fakeEngine) List(_ context.Context, ownerID uint) ([]*database.Monitor, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []*database.Monitor
	for _, m := range e.monitors {
		if m.UserID == ownerID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (e *fakeEngine) Listings(_ context.Context, id string, limit int) ([]*database.Listing, error) {
	e.mu.Lock()
	e.limit = limit
	e.mu.Unlock()
	return []*database.Listing{{ID: 1, URL: "https://www.olx.ua/d/a.html", Marketplace: "olx", Title: "Bike"}}, nil
}

func (e *fakeEngine) Trigger(_ context.Context, id string) (monitor.TickReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running[id] {
		return monitor.TickReport{}, monitor.ErrNotRunning
	}
	return monitor.TickReport{MonitorID: id, Reason: "trigger", Candidates: 3}, nil
}

func (e *fakeEngine) Search(_ context.Context, f scraper.SearchFilters) ([]scraper.Listing, error) {
	e.mu.Lock()
	err := e.search
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return []scraper.Listing{{URL: "u", Marketplace: "olx", Title: f.Query}}, nil
}

func (e *fakeEngine) failSearch(err error) {
	e.mu.Lock()
	e.search = err
	e.mu.Unlock()
}

type harness struct {
	srv      *httptest.Server
	engine   *fakeEngine
	accounts *fakeAccounts
	hub      *hub.Hub
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		engine:   newFakeEngine(),
		accounts: newFakeAccounts(),
		hub:      hub.New(time.Minute, logger.Nop()),
	}
	s := New(":0", logger.Nop(), deps.Deps{
		Logger:    logger.Nop(),
		StartTime: time.Now(),
		Engine:    h.engine,
		Accounts:  h.accounts,
		Hub:       h.hub,
	})
	h.srv = httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		h.hub.Close()
		h.srv.Close()
	})
	return h
}

func (h *harness) do(t *testing.T, method, path, token, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, h.srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (h *harness) register(t *testing.T, username string) string {
	t.Helper()
	resp := h.do(t, http.MethodPost, "/api/auth/register", "", fmt.Sprintf(`{"username":%q,"password":"secret123"}`, username))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register %s: status %d", username, resp.StatusCode)
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	return out.Token
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Errorf("%s %s: expected %d, got %d", resp.Request.Method, resp.Request.URL.Path, want, resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)
	resp := h.do(t, http.MethodGet, "/healthz", "", "")
	expectStatus(t, resp, http.StatusOK)

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" {
		t.Errorf("Unexpected body: %v", body)
	}
}

func TestAuthFlow(t *testing.T) {
	h := newHarness(t)

	expectStatus(t, h.do(t, http.MethodGet, "/api/monitors", "", ""), http.StatusUnauthorized)
	expectStatus(t, h.do(t, http.MethodGet, "/api/monitors", "bogus", ""), http.StatusUnauthorized)

	token := h.register(t, "alice")
	expectStatus(t, h.do(t, http.MethodGet, "/api/monitors", token, ""), http.StatusOK)

	expectStatus(t, h.do(t, http.MethodPost, "/api/auth/register", "", `{"username":"alice","password":"secret123"}`), http.StatusConflict)
	expectStatus(t, h.do(t, http.MethodPost, "/api/auth/register", "", `{"username":"al","password":"x"}`), http.StatusBadRequest)
	expectStatus(t, h.do(t, http.MethodPost, "/api/auth/login", "", `{"username":"alice","password":"wrong"}`), http.StatusUnauthorized)
	expectStatus(t, h.do(t, http.MethodPost, "/api/auth/login", "", `{"username":"alice","password":"secret123"}`), http.StatusOK)

	expectStatus(t, h.do(t, http.MethodPut, "/api/me/telegram", token, `{"telegram_id":4242}`), http.StatusNoContent)
	h.accounts.mu.Lock()
	chat := h.accounts.telegram[1]
	h.accounts.mu.Unlock()
	if chat != 4242 {
		t.Errorf("Telegram id not stored, got %d", chat)
	}

	expectStatus(t, h.do(t, http.MethodPost, "/api/auth/logout", token, ""), http.StatusNoContent)
	expectStatus(t, h.do(t, http.MethodGet, "/api/monitors", token, ""), http.StatusUnauthorized)
}

func TestMonitorLifecycle(t *testing.T) {
	h := newHarness(t)
	alice := h.register(t, "alice")
	bob := h.register(t, "bob")

	resp := h.do(t, http.MethodPost, "/api/monitors", alice, `{"query":"road bike","max_price":15000,"interval_seconds":60}`)
	expectStatus(t, resp, http.StatusCreated)
	var m database.Monitor
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		t.Fatal(err)
	}
	if m.ID == "" || m.Query != "road bike" || m.IntervalSeconds != 60 {
		t.Fatalf("Unexpected monitor: %+v", m)
	}

	expectStatus(t, h.do(t, http.MethodPost, "/api/monitors", alice, `{"query":""}`), http.StatusBadRequest)
	expectStatus(t, h.do(t, http.MethodPost, "/api/monitors", alice, `{"query":"x","interval_seconds":-5}`), http.StatusBadRequest)

	expectStatus(t, h.do(t, http.MethodPost, "/api/monitors/"+m.ID+"/trigger", alice, ""), http.StatusOK)

	expectStatus(t, h.do(t, http.MethodGet, "/api/monitors/"+m.ID+"/listings?limit=5", alice, ""), http.StatusOK)
	h.engine.mu.Lock()
	limit := h.engine.limit
	h.engine.mu.Unlock()
	if limit != 5 {
		t.Errorf("Expected limit 5 to reach the engine, got %d", limit)
	}
	expectStatus(t, h.do(t, http.MethodGet, "/api/monitors/"+m.ID+"/listings?limit=zero", alice, ""), http.StatusBadRequest)

	// Foreign and unknown monitors are both 404.
	expectStatus(t, h.do(t, http.MethodDelete, "/api/monitors/"+m.ID, bob, ""), http.StatusNotFound)
	expectStatus(t, h.do(t, http.MethodDelete, "/api/monitors/nope", alice, ""), http.StatusNotFound)

	expectStatus(t, h.do(t, http.MethodDelete, "/api/monitors/"+m.ID, alice, ""), http.StatusNoContent)
	expectStatus(t, h.do(t, http.MethodDelete, "/api/monitors/"+m.ID, alice, ""), http.StatusNoContent)

	expectStatus(t, h.do(t, http.MethodPost, "/api/monitors/"+m.ID+"/trigger", alice, ""), http.StatusConflict)
}

func TestSearch(t *testing.T) {
	h := newHarness(t)
	token := h.register(t, "alice")

	resp := h.do(t, http.MethodGet, "/api/search?q=lamp&min_price=10", token, "")
	expectStatus(t, resp, http.StatusOK)
	var listings []scraper.Listing
	if err := json.NewDecoder(resp.Body).Decode(&listings); err != nil {
		t.Fatal(err)
	}
	if len(listings) != 1 || listings[0].Title != "lamp" {
		t.Errorf("Unexpected listings: %+v", listings)
	}

	expectStatus(t, h.do(t, http.MethodGet, "/api/search?q=lamp&min_price=cheap", token, ""), http.StatusBadRequest)

	h.engine.failSearch(monitor.ErrRateLimited)
	resp = h.do(t, http.MethodGet, "/api/search?q=lamp", token, "")
	expectStatus(t, resp, http.StatusTooManyRequests)
	if resp.Header.Get("Retry-After") == "" {
		t.Error("Expected Retry-After on 429")
	}

	h.engine.failSearch(fmt.Errorf("db exploded"))
	expectStatus(t, h.do(t, http.MethodGet, "/api/search?q=lamp", token, ""), http.StatusInternalServerError)
}

func TestWebsocketWithQueryToken(t *testing.T) {
	h := newHarness(t)
	token := h.register(t, "alice")

	base := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws"
	if _, resp, err := websocket.DefaultDialer.Dial(base, nil); err == nil {
		t.Fatal("Dial without token should fail")
	} else if resp != nil && resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", resp.StatusCode)
	}

	ws, _, err := websocket.DefaultDialer.Dial(base+"?token="+token, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer ws.Close()

	_ = ws.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	msg, err := protocol.Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Type != protocol.TypeConnectionEstablished {
		t.Errorf("Expected connection_established, got %q", msg.Type)
	}
}
