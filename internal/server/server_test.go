package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/tasklists/internal/auth"
	"github.com/sakif/tasklists/internal/event"
	"github.com/sakif/tasklists/internal/model"
	"github.com/sakif/tasklists/internal/service"
)

const testSecret = "server-test-secret-0123456789"

type testEnv struct {
	srv    *Server
	tokens *auth.TokenService
	ids    map[string]string // login → user ID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := New(Config{DBPath: ":memory:", JWTSecret: testSecret, EventsChannel: "lists.events"}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	tokens, err := auth.NewTokenService(testSecret)
	require.NoError(t, err)

	return &testEnv{srv: srv, tokens: tokens, ids: map[string]string{}}
}

// account returns the ID of the account named login, creating it with role
// on first use. The auth gates only accept tokens for stored accounts.
func (e *testEnv) account(t *testing.T, login, role string) string {
	t.Helper()
	if id, ok := e.ids[login]; ok {
		return id
	}
	u := &model.User{Login: login, Role: role}
	require.NoError(t, e.srv.db.CreateLocal(context.Background(), u))
	e.ids[login] = u.ID
	return u.ID
}

// id is the user ID behind login; the account must already exist.
func (e *testEnv) id(t *testing.T, login string) string {
	t.Helper()
	id, ok := e.ids[login]
	require.True(t, ok, "no account %q", login)
	return id
}

// do sends a request as the account named userID, created with role on
// first use; an empty userID sends no token at all.
func (e *testEnv) do(t *testing.T, method, path, body, userID, role string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if userID != "" {
		token, err := e.tokens.Generate(e.account(t, userID, role), role)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeList(t *testing.T, rr *httptest.ResponseRecorder) model.List {
	t.Helper()
	var l model.List
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&l))
	return l
}

// newUserForTest creates a local account the way cmd/useradd does.
func newUserForTest(s *Server, login, password string) (*model.User, error) {
	svc := service.NewAuthService(s.db, s.tokens, auth.NewPasswordServiceForTest(4), s.logger)
	return svc.CreateLocalUser(context.Background(), login, password, "")
}

func (e *testEnv) create(t *testing.T, userID, title string) model.List {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/api/lists", `{"title":"`+title+`"}`, userID, model.RoleUser)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decodeList(t, rr)
}

func TestCreate_ServerSetsOwnerAndEmptyTasks(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/lists",
		`{"title":"groceries","by":"mallory","tasks":[{"text":"x"}],"created_at":"2000-01-01T00:00:00Z"}`,
		"u1", model.RoleUser)

	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Contains(t, rr.Body.String(), `"tasks":[]`)

	l := decodeList(t, rr)
	assert.NotEmpty(t, l.ID)
	assert.Equal(t, "groceries", l.Title)
	assert.Equal(t, env.id(t, "u1"), l.By)
	assert.Empty(t, l.Tasks)
	assert.NotEqual(t, 2000, l.CreatedAt.Year())
}

func TestCreate_ThenAdminShowRoundTrips(t *testing.T) {
	env := newTestEnv(t)
	created := env.create(t, "u1", "chores")

	rr := env.do(t, http.MethodGet, "/api/lists/"+created.ID, "", "root", model.RoleAdmin)

	require.Equal(t, http.StatusOK, rr.Code)
	shown := decodeList(t, rr)
	assert.Equal(t, created.ID, shown.ID)
	assert.Equal(t, created.Title, shown.Title)
	assert.Equal(t, created.By, shown.By)
	assert.True(t, created.CreatedAt.Equal(shown.CreatedAt))
}

func TestUpdate_ReplacesTasksAndIgnoresBodyID(t *testing.T) {
	env := newTestEnv(t)
	l := env.create(t, "u1", "todo")

	rr := env.do(t, http.MethodPut, "/api/lists/"+l.ID,
		`{"tasks":[{"text":"a"},{"text":"b"},{"text":"c"}]}`, "u1", model.RoleUser)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(t, http.MethodPut, "/api/lists/"+l.ID,
		`{"id":"some-other-id","tasks":[{"text":"x","done":true}]}`, "u1", model.RoleUser)
	require.Equal(t, http.StatusOK, rr.Code)

	updated := decodeList(t, rr)
	assert.Equal(t, l.ID, updated.ID)
	assert.Equal(t, []model.Task{{Text: "x", Done: true}}, updated.Tasks)
	assert.Equal(t, "todo", updated.Title)
}

func TestUpdate_PatchIsRoutedToUpdate(t *testing.T) {
	env := newTestEnv(t)
	l := env.create(t, "u1", "before")

	rr := env.do(t, http.MethodPatch, "/api/lists/"+l.ID, `{"title":"after"}`, "u1", model.RoleUser)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "after", decodeList(t, rr).Title)
}

func TestUpdate_NonOwnerIs401AndNothingChanges(t *testing.T) {
	env := newTestEnv(t)
	l := env.create(t, "u1", "mine")

	rr := env.do(t, http.MethodPut, "/api/lists/"+l.ID, `{"title":"stolen"}`, "u2", model.RoleUser)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Empty(t, rr.Body.String())

	rr = env.do(t, http.MethodGet, "/api/lists/"+l.ID, "", "root", model.RoleAdmin)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "mine", decodeList(t, rr).Title)
}

func TestUpdate_UnknownIDIs404(t *testing.T) {
	env := newTestEnv(t)

	for _, id := range []string{"not-an-xid", "9m4e2mr0ui3e8a215n4g"} {
		rr := env.do(t, http.MethodPut, "/api/lists/"+id, `{"title":"x"}`, "u1", model.RoleUser)
		assert.Equal(t, http.StatusNotFound, rr.Code, id)
		assert.Empty(t, rr.Body.String())
	}
}

func TestUpdate_MalformedJSONIs400(t *testing.T) {
	env := newTestEnv(t)
	l := env.create(t, "u1", "x")

	rr := env.do(t, http.MethodPut, "/api/lists/"+l.ID, `{"title":`, "u1", model.RoleUser)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDestroy_TwiceIs204Then404(t *testing.T) {
	env := newTestEnv(t)
	l := env.create(t, "u1", "short-lived")

	rr := env.do(t, http.MethodDelete, "/api/lists/"+l.ID, "", "u1", model.RoleUser)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = env.do(t, http.MethodDelete, "/api/lists/"+l.ID, "", "u1", model.RoleUser)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDestroy_NonOwnerIs401AndListSurvives(t *testing.T) {
	env := newTestEnv(t)
	l := env.create(t, "u1", "keep")

	rr := env.do(t, http.MethodDelete, "/api/lists/"+l.ID, "", "u2", model.RoleUser)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/lists/"+l.ID, "", "root", model.RoleAdmin)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestAdminMayModifyAnyList(t *testing.T) {
	env := newTestEnv(t)
	l := env.create(t, "u1", "x")

	rr := env.do(t, http.MethodPut, "/api/lists/"+l.ID, `{"title":"moderated"}`, "root", model.RoleAdmin)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, env.id(t, "u1"), decodeList(t, rr).By)

	rr = env.do(t, http.MethodDelete, "/api/lists/"+l.ID, "", "root", model.RoleAdmin)
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestMine(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/lists/mine", "", "u1", model.RoleUser)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())

	own := env.create(t, "u1", "a")
	env.create(t, "u2", "b")

	rr = env.do(t, http.MethodGet, "/api/lists/mine", "", "u1", model.RoleUser)
	require.Equal(t, http.StatusOK, rr.Code)
	var got []model.List
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
	require.Len(t, got, 1)
	assert.Equal(t, own.ID, got[0].ID)
}

func TestIndex(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/lists", "", "root", model.RoleAdmin)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())

	env.create(t, "u1", "a")
	env.create(t, "u2", "b")

	rr = env.do(t, http.MethodGet, "/api/lists", "", "root", model.RoleAdmin)
	require.Equal(t, http.StatusOK, rr.Code)
	var got []model.List
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
	assert.Len(t, got, 2)
}

func TestRoutingGates(t *testing.T) {
	env := newTestEnv(t)
	l := env.create(t, "u1", "gated")

	tests := []struct {
		name       string
		method     string
		path       string
		userID     string
		role       string
		wantStatus int
	}{
		{"index anonymous", http.MethodGet, "/api/lists", "", "", http.StatusUnauthorized},
		{"index as user", http.MethodGet, "/api/lists", "u1", model.RoleUser, http.StatusForbidden},
		{"show as owner", http.MethodGet, "/api/lists/" + l.ID, "u1", model.RoleUser, http.StatusForbidden},
		{"mine anonymous", http.MethodGet, "/api/lists/mine", "", "", http.StatusUnauthorized},
		{"create anonymous", http.MethodPost, "/api/lists", "", "", http.StatusUnauthorized},
		{"update anonymous", http.MethodPut, "/api/lists/" + l.ID, "", "", http.StatusUnauthorized},
		{"patch anonymous", http.MethodPatch, "/api/lists/" + l.ID, "", "", http.StatusUnauthorized},
		{"delete anonymous", http.MethodDelete, "/api/lists/" + l.ID, "", "", http.StatusUnauthorized},
		{"me anonymous", http.MethodGet, "/api/me", "", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, tt.method, tt.path, `{}`, tt.userID, tt.role)
			assert.Equal(t, tt.wantStatus, rr.Code)
		})
	}
}

func TestRoleChangeAppliesBeforeTokenExpiry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rr := env.do(t, http.MethodGet, "/api/lists", "", "root", model.RoleAdmin)
	require.Equal(t, http.StatusOK, rr.Code)

	// The token still says admin; the stored account no longer does.
	adminToken, err := env.tokens.Generate(env.id(t, "root"), model.RoleAdmin)
	require.NoError(t, err)
	require.NoError(t, env.srv.db.SetRole(ctx, env.id(t, "root"), model.RoleUser))

	req := httptest.NewRequest(http.MethodGet, "/api/lists", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	rr = httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	// And the other way round: a user token for a freshly promoted account.
	userID := env.account(t, "u1", model.RoleUser)
	userToken, err := env.tokens.Generate(userID, model.RoleUser)
	require.NoError(t, err)
	require.NoError(t, env.srv.db.SetRole(ctx, userID, model.RoleAdmin))

	req = httptest.NewRequest(http.MethodGet, "/api/lists", nil)
	req.Header.Set("Authorization", "Bearer "+userToken)
	rr = httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestTokenForUnknownAccountIs401(t *testing.T) {
	env := newTestEnv(t)

	token, err := env.tokens.Generate("no-such-user", model.RoleAdmin)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/lists/mine", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestInvalidTokenIs401(t *testing.T) {
	env := newTestEnv(t)

	other, err := auth.NewTokenService("a-completely-different-secret")
	require.NoError(t, err)
	token, err := other.Generate("u1", model.RoleAdmin)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/lists", nil)
	req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: token})
	rr := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestWritesAreAnnouncedOnTheRelay(t *testing.T) {
	env := newTestEnv(t)

	var mu sync.Mutex
	var got []string
	record := func(kind event.Kind, l *model.List) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, string(kind))
	}
	env.srv.Relay().Subscribe(string(event.Save), record)
	env.srv.Relay().Subscribe(string(event.Remove), record)

	l := env.create(t, "u1", "observed")

	var scoped int
	env.srv.Relay().Subscribe(event.Save.Key(l.ID), func(event.Kind, *model.List) { scoped++ })

	env.do(t, http.MethodPut, "/api/lists/"+l.ID, `{"title":"changed"}`, "u1", model.RoleUser)
	env.do(t, http.MethodPut, "/api/lists/"+l.ID, `{"title":"denied"}`, "u2", model.RoleUser)
	env.do(t, http.MethodDelete, "/api/lists/"+l.ID, "", "u1", model.RoleUser)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"save", "save", "remove"}, got)
	assert.Equal(t, 1, scoped)
}

func TestLocalLoginFlow(t *testing.T) {
	env := newTestEnv(t)

	// Accounts are normally created with cmd/useradd; go through the same service.
	_, err := newUserForTest(env.srv, "alice", "correct horse")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/auth/login",
		bytes.NewBufferString(`{"login":"alice","password":"correct horse"}`))
	rr := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)

	req = httptest.NewRequest(http.MethodPost, "/api/lists", strings.NewReader(`{"title":"via cookie"}`))
	req.AddCookie(cookies[0])
	rr = httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(cookies[0])
	rr = httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"login":"alice"`)
}

func TestGitHubRoutesOnlyWhenConfigured(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/auth/github/login", "", "", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := New(Config{
		DBPath:             ":memory:",
		JWTSecret:          testSecret,
		GitHubClientID:     "id",
		GitHubClientSecret: "secret",
		GitHubCallbackURL:  "http://localhost/auth/github/callback",
	}, logger)
	require.NoError(t, err)
	defer srv.Close()

	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/auth/github/login", nil))
	assert.Equal(t, http.StatusTemporaryRedirect, rr.Code)
	assert.Contains(t, rr.Header().Get("Location"), "github.com/login/oauth/authorize")
}

func TestOperationalEndpoints(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, "u1", "counted")

	rr := env.do(t, http.MethodGet, "/healthz", "", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(t, http.MethodGet, "/readyz", "", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"database":"healthy"`)

	rr = env.do(t, http.MethodGet, "/metrics", "", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, `list_events_total{kind="save"} 1`)
	assert.Contains(t, body, `http_requests_total{`)
}

func TestNew_RejectsShortSecret(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := New(Config{DBPath: ":memory:", JWTSecret: "short"}, logger)
	assert.Error(t, err)
}
