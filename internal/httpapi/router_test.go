package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/ai-chat/internal/ai"
	"github.com/suPer8Hu/ai-chat/internal/auth"
	"github.com/suPer8Hu/ai-chat/internal/chat"
	"github.com/suPer8Hu/ai-chat/internal/db"
	"github.com/suPer8Hu/ai-chat/internal/httpapi/handlers"
)

const testSecret = "router-test-secret"

// fakeProvider answers the single-message title prompt with title and every
// chat completion with reply.
type fakeProvider struct {
	mu    sync.Mutex
	reply string
	title string
	err   error
	calls [][]ai.Message
}

func (p *fakeProvider) Chat(_ context.Context, msgs []ai.Message) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(msgs) == 1 {
		return p.title, nil
	}
	p.calls = append(p.calls, append([]ai.Message(nil), msgs...))
	if p.err != nil {
		return "", p.err
	}
	return p.reply, nil
}

func (p *fakeProvider) lastCall() []ai.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.calls) == 0 {
		return nil
	}
	return p.calls[len(p.calls)-1]
}

type memTokens struct {
	mu      sync.Mutex
	revoked map[string]bool
}

func (m *memTokens) RevokeToken(_ context.Context, jti string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[jti] = true
	return nil
}

func (m *memTokens) IsTokenRevoked(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revoked[jti], nil
}

type testServer struct {
	engine   *gin.Engine
	provider *fakeProvider
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gdb, err := db.Connect("sqlite:file:"+uuid.NewString()+"?mode=memory&cache=shared", false)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))
	t.Cleanup(func() { _ = db.Close(gdb) })

	provider := &fakeProvider{reply: "Paris is the capital of France.", title: "Trip to Paris"}
	chatSvc := chat.NewService(chat.NewRepo(gdb), provider, chat.Options{
		SystemPrompt:      "You are helpful.",
		ContextWindowSize: 20,
		CompletionTimeout: 5 * time.Second,
		TitleTimeout:      5 * time.Second,
	})
	authSvc := auth.NewService(auth.NewUserRepo(gdb), testSecret, time.Hour)
	tokens := &memTokens{revoked: map[string]bool{}}

	h := handlers.NewHandler(chatSvc, authSvc, tokens, false)
	return &testServer{engine: NewRouter(h, authSvc, tokens), provider: provider}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func (s *testServer) login(t *testing.T, username string) string {
	t.Helper()
	creds := gin.H{"username": username, "password": "secret123"}
	w := s.do(t, http.MethodPost, "/register", "", creds)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/login", "", creds)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.NotEmpty(t, out.Token)
	return out.Token
}

type chatResp struct {
	Reply          string  `json:"reply"`
	ConversationID string  `json:"conversation_id"`
	Subject        *string `json:"subject"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestPing(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/ping", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"pong"}`, w.Body.String())
}

func TestChat_AnonymousFollowUpIncludesHistory(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/chat", "", gin.H{"message": "Hello"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	first := decode[chatResp](t, w)
	assert.NotEmpty(t, first.ConversationID)
	assert.NotEmpty(t, first.Reply)
	require.NotNil(t, first.Subject)
	assert.Equal(t, "Trip to Paris", *first.Subject)

	w = s.do(t, http.MethodPost, "/chat", "", gin.H{"message": "And then?", "conversation_id": first.ConversationID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	msgs := s.provider.lastCall()
	require.Len(t, msgs, 4)
	assert.Equal(t, ai.RoleSystem, msgs[0].Role)
	assert.Equal(t, "Hello", msgs[1].Content)
	assert.Equal(t, ai.RoleAssistant, msgs[2].Role)
	assert.Equal(t, "And then?", msgs[3].Content)
}

func TestChat_Validation(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/chat", "", gin.H{"message": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"error"`)

	w = s.do(t, http.MethodPost, "/chat", "", gin.H{"message": "hi", "conversation_id": "missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestChat_UpstreamFailureWritesNothing(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "alice")
	s.provider.err = errors.New("connection refused")

	w := s.do(t, http.MethodPost, "/chat", token, gin.H{"message": "Hello"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.JSONEq(t, `{"error":"assistant unavailable","code":50200}`, w.Body.String())
	assert.NotContains(t, w.Body.String(), "connection refused")

	w = s.do(t, http.MethodGet, "/conversations", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestConversations_OwnerLifecycle(t *testing.T) {
	s := newTestServer(t)
	alice := s.login(t, "alice")
	bob := s.login(t, "bob")

	w := s.do(t, http.MethodPost, "/chat", alice, gin.H{"message": "I went to Paris"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	conv := decode[chatResp](t, w).ConversationID

	// listing
	w = s.do(t, http.MethodGet, "/conversations", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	convs := decode[[]chat.ConversationSummary](t, w)
	require.Len(t, convs, 1)
	assert.Equal(t, conv, convs[0].ConversationID)
	assert.Equal(t, "Trip to Paris", convs[0].DisplayName)

	w = s.do(t, http.MethodGet, "/conversations", bob, nil)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = s.do(t, http.MethodGet, "/conversations", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// search is case-insensitive and scoped
	w = s.do(t, http.MethodPost, "/search", alice, gin.H{"search_term": "PARIS"})
	require.Equal(t, http.StatusOK, w.Code)
	found := decode[[]map[string]any](t, w)
	require.NotEmpty(t, found)
	assert.Equal(t, conv, found[0]["conversation_id"])
	assert.NotContains(t, found[0], "id")
	assert.NotContains(t, found[0], "user_id")

	w = s.do(t, http.MethodPost, "/search", bob, gin.H{"search_term": "paris"})
	assert.JSONEq(t, `[]`, w.Body.String())

	w = s.do(t, http.MethodPost, "/search", "", gin.H{"search_term": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// rename
	w = s.do(t, http.MethodPost, "/rename_conversation", bob, gin.H{"conversation_id": conv, "new_name": "Mine"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, "/rename_conversation", alice, gin.H{"conversation_id": conv})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/rename_conversation", alice, gin.H{"conversation_id": conv, "new_name": "Holiday"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/conversations", alice, nil)
	convs = decode[[]chat.ConversationSummary](t, w)
	require.Len(t, convs, 1)
	assert.Equal(t, "Holiday", convs[0].DisplayName)

	// load
	w = s.do(t, http.MethodPost, "/load_conversation", alice, gin.H{"conversation_id": conv})
	require.Equal(t, http.StatusOK, w.Code)
	turns := decode[[]chat.Turn](t, w)
	require.Len(t, turns, 1)
	assert.Equal(t, "I went to Paris", turns[0].UserText)

	// delete
	w = s.do(t, http.MethodPost, "/delete_conversation", bob, gin.H{"conversation_id": conv})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, "/delete_conversation", alice, gin.H{"conversation_id": conv})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"conversation deleted"}`, w.Body.String())

	w = s.do(t, http.MethodPost, "/load_conversation", alice, gin.H{"conversation_id": conv})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAuth_RegisterLoginLogout(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "carol")

	w := s.do(t, http.MethodPost, "/register", "", gin.H{"username": "carol", "password": "secret123"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, "/login", "", gin.H{"username": "carol", "password": "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodGet, "/logout", token, nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))

	w = s.do(t, http.MethodGet, "/conversations", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogin_SetsCookie(t *testing.T) {
	s := newTestServer(t)
	s.login(t, "dave")

	w := s.do(t, http.MethodPost, "/login", "", gin.H{"username": "dave", "password": "secret123"})
	require.Equal(t, http.StatusOK, w.Code)
	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == "token" {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.NotEmpty(t, cookie.Value)
}

func TestRouter_NotFound(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/chat", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
