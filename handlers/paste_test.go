package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/johnwmail/pasties/internal/auth"
	"github.com/johnwmail/pasties/internal/services"
	"github.com/johnwmail/pasties/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "handler-test-secret"

// setupRouter builds the /api routes over an in-memory store
func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc := services.NewPasteService(storage.NewMemoryStore(), services.Options{
		SlugLength: 8,
		Ownership:  true,
		BcryptCost: bcrypt.MinCost,
	})

	r := gin.New()
	r.NoRoute(NotFound)
	api := r.Group("/api", ResolveEditor(auth.New(testSecret)))
	NewPasteHandler(svc, nil).Register(api)
	return r
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Payload json.RawMessage `json:"payload"`
}

func do(t *testing.T, r *gin.Engine, method, path string, body any, mutate ...func(*http.Request)) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, m := range mutate {
		m(req)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

type pastePayload struct {
	URL           string `json:"url"`
	Content       string `json:"content"`
	Views         int64  `json:"views"`
	ViewProtected bool   `json:"view_protected"`
	Metadata      struct {
		Owner string `json:"owner"`
		Title string `json:"title"`
	} `json:"metadata"`
}

// createPaste posts to /api/new and returns the password and paste
func createPaste(t *testing.T, r *gin.Engine, body map[string]any, mutate ...func(*http.Request)) (string, pastePayload) {
	t.Helper()
	w, env := do(t, r, http.MethodPost, "/api/new", body, mutate...)
	require.Equal(t, http.StatusOK, w.Code, env.Message)
	require.True(t, env.Success)

	var pair []json.RawMessage
	require.NoError(t, json.Unmarshal(env.Payload, &pair))
	require.Len(t, pair, 2)

	var password string
	var paste pastePayload
	require.NoError(t, json.Unmarshal(pair[0], &password))
	require.NoError(t, json.Unmarshal(pair[1], &paste))
	return password, paste
}

func withToken(t *testing.T, user string) func(*http.Request) {
	token, err := auth.New(testSecret).Issue(user, 0)
	require.NoError(t, err)
	return func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: auth.CookieName, Value: token})
	}
}

func TestCreateAndGet(t *testing.T) {
	r := setupRouter(t)

	password, created := createPaste(t, r, map[string]any{"content": "hello world"})
	assert.Len(t, created.URL, 8)
	assert.NotEmpty(t, password)

	w, env := do(t, r, http.MethodGet, "/api/"+created.URL, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Paste exists", env.Message)

	var got pastePayload
	require.NoError(t, json.Unmarshal(env.Payload, &got))
	assert.Equal(t, "hello world", got.Content)
	assert.Equal(t, int64(1), got.Views)
	assert.NotContains(t, string(env.Payload), `"password"`)
}

func TestCreate_Errors(t *testing.T) {
	r := setupRouter(t)
	createPaste(t, r, map[string]any{"url": "taken", "content": "x"})

	tests := []struct {
		name string
		body any
		want int
	}{
		{"malformed json", "{not json", http.StatusBadRequest},
		{"empty content", map[string]any{"content": ""}, http.StatusBadRequest},
		{"url too short", map[string]any{"url": "a", "content": "x"}, http.StatusBadRequest},
		{"reserved url", map[string]any{"url": "new", "content": "x"}, http.StatusBadRequest},
		{"duplicate url", map[string]any{"url": "taken", "content": "x"}, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := do(t, r, http.MethodPost, "/api/new", tt.body)
			assert.Equal(t, tt.want, w.Code)
			assert.False(t, env.Success)
			assert.NotEmpty(t, env.Message)
		})
	}
}

func TestRaw(t *testing.T) {
	r := setupRouter(t)
	createPaste(t, r, map[string]any{"url": "plain", "content": "line one\nline two"})

	req := httptest.NewRequest(http.MethodGet, "/api/plain/raw", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), `filename="plain.txt"`)
	assert.Equal(t, "line one\nline two", w.Body.String())

	w, env := do(t, r, http.MethodGet, "/api/missing/raw", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.False(t, env.Success)
}

func TestGet_NotFound(t *testing.T) {
	r := setupRouter(t)

	w, env := do(t, r, http.MethodGet, "/api/nothing-here", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "No paste with this URL has been found.", env.Message)
}

func TestClone(t *testing.T) {
	r := setupRouter(t)
	_, src := createPaste(t, r, map[string]any{"url": "source", "content": "original"})

	w, env := do(t, r, http.MethodPost, "/api/clone", map[string]any{"source": src.URL, "url": "copy"})
	require.Equal(t, http.StatusOK, w.Code, env.Message)
	assert.Equal(t, "Paste cloned", env.Message)

	_, env = do(t, r, http.MethodGet, "/api/copy", nil)
	var got pastePayload
	require.NoError(t, json.Unmarshal(env.Payload, &got))
	assert.Equal(t, "original", got.Content)

	w, _ = do(t, r, http.MethodPost, "/api/clone", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code, "source is required")
}

func TestEditAndDelete(t *testing.T) {
	r := setupRouter(t)
	password, p := createPaste(t, r, map[string]any{"url": "doc", "content": "v1"})

	w, env := do(t, r, http.MethodPost, "/api/doc/edit", map[string]any{"password": "wrong", "new_content": "v2"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "The given password is invalid.", env.Message)

	w, env = do(t, r, http.MethodPost, "/api/doc/edit", map[string]any{
		"password":    password,
		"new_content": "v2",
		"new_url":     "doc2",
	})
	require.Equal(t, http.StatusOK, w.Code, env.Message)
	var edited pastePayload
	require.NoError(t, json.Unmarshal(env.Payload, &edited))
	assert.Equal(t, "doc2", edited.URL)
	assert.Equal(t, "v2", edited.Content)

	w, _ = do(t, r, http.MethodGet, "/api/"+p.URL, nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "old URL is released")

	w, env = do(t, r, http.MethodPost, "/api/doc2/delete", map[string]any{"password": password})
	require.Equal(t, http.StatusOK, w.Code, env.Message)
	assert.Equal(t, "Paste deleted", env.Message)
	assert.Equal(t, "null", string(env.Payload))

	w, _ = do(t, r, http.MethodGet, "/api/doc2", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestViewPassword(t *testing.T) {
	r := setupRouter(t)
	password, _ := createPaste(t, r, map[string]any{"url": "secret", "content": "hidden"})

	w, env := do(t, r, http.MethodPost, "/api/secret/metadata", map[string]any{
		"password": password,
		"metadata": map[string]any{"title": "Private", "view_password": "letmein"},
	})
	require.Equal(t, http.StatusOK, w.Code, env.Message)
	var meta pastePayload
	require.NoError(t, json.Unmarshal(env.Payload, &meta))
	assert.True(t, meta.ViewProtected)
	assert.Equal(t, "Private", meta.Metadata.Title)

	w, env = do(t, r, http.MethodGet, "/api/secret", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "This paste requires a view password.", env.Message)

	w, _ = do(t, r, http.MethodGet, "/api/secret?view_password=nope", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = do(t, r, http.MethodGet, "/api/secret", nil, func(r *http.Request) {
		r.Header.Set(ViewPasswordHeader, "letmein")
	})
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, r, http.MethodGet, "/api/secret?view_password=letmein", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestOwnerEditsWithoutPassword(t *testing.T) {
	r := setupRouter(t)
	alice := withToken(t, "alice")

	_, p := createPaste(t, r, map[string]any{"content": "mine"}, alice)
	assert.Equal(t, "alice", p.Metadata.Owner)

	w, env := do(t, r, http.MethodPost, "/api/"+p.URL+"/edit", map[string]any{"new_content": "still mine"}, alice)
	assert.Equal(t, http.StatusOK, w.Code, env.Message)

	w, _ = do(t, r, http.MethodPost, "/api/"+p.URL+"/edit", map[string]any{"new_content": "stolen"}, withToken(t, "mallory"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestInvalidToken(t *testing.T) {
	r := setupRouter(t)

	w, env := do(t, r, http.MethodGet, "/api/anything", nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer not-a-token")
	})
	assert.Equal(t, StatusFor(services.KindUnauthorized), w.Code)
	assert.False(t, env.Success)
	assert.Equal(t, "Invalid authentication token", env.Message)
	assert.Equal(t, "null", string(env.Payload))
}

func TestList(t *testing.T) {
	r := setupRouter(t)
	alice := withToken(t, "alice")
	for i := 0; i < 3; i++ {
		createPaste(t, r, map[string]any{"content": "a"}, alice)
	}
	createPaste(t, r, map[string]any{"content": "anon"})

	w, env := do(t, r, http.MethodGet, "/api/pastes?owner=alice&limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code, env.Message)
	var page []pastePayload
	require.NoError(t, json.Unmarshal(env.Payload, &page))
	require.Len(t, page, 2)
	for _, p := range page {
		assert.Equal(t, "alice", p.Metadata.Owner)
		assert.Empty(t, p.Content, "listings carry no content")
	}

	w, _ = do(t, r, http.MethodGet, "/api/pastes?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, r, http.MethodGet, "/api/pastes?limit=1000", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNotFoundRoute(t *testing.T) {
	r := setupRouter(t)

	w, env := do(t, r, http.MethodGet, "/does/not/exist", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.False(t, env.Success)
	assert.Equal(t, "Path does not exist", env.Message)
	assert.Equal(t, "404", string(env.Payload))
}

func TestStatusFor(t *testing.T) {
	tests := map[services.ErrorKind]int{
		services.KindInvalidValue:         http.StatusBadRequest,
		services.KindPasswordIncorrect:    http.StatusUnauthorized,
		services.KindViewPasswordRequired: http.StatusUnauthorized,
		services.KindUnauthorized:         http.StatusUnauthorized,
		services.KindNotFound:             http.StatusNotFound,
		services.KindAlreadyExists:        http.StatusConflict,
		services.KindOther:                http.StatusInternalServerError,
	}
	for kind, want := range tests {
		assert.Equal(t, want, StatusFor(kind), kind.String())
	}
}

func TestBadRequest_BodyTooLarge(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/", func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 8)
		var v map[string]any
		if err := c.ShouldBindJSON(&v); err != nil {
			badRequest(c, err)
			return
		}
		respond(c, http.StatusOK, "ok", nil)
	})

	w, env := do(t, r, http.MethodPost, "/", map[string]any{"content": "far more than eight bytes"})
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "Request body too large", env.Message)
}
