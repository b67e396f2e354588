package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slapit/slapit-api/internal/handler"
	"github.com/slapit/slapit-api/internal/model"
	"github.com/slapit/slapit-api/internal/repository/rowstore"
	"github.com/slapit/slapit-api/internal/service"
	"github.com/slapit/slapit-api/internal/store/sqlstore"
)

const (
	alice = "11111111-1111-4111-8111-111111111111"
	bob   = "22222222-2222-4222-8222-222222222222"
	ghost = "99999999-9999-4999-8999-999999999999"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type api struct {
	t      *testing.T
	router http.Handler
	logs   *bytes.Buffer
}

// newAPI wires the handlers over an in-memory sqlite store with the same
// routes the server registers.
func newAPI(t *testing.T, storeErr error) *api {
	t.Helper()
	db, err := sqlstore.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(logs, nil))
	repos := rowstore.New(db)
	registry := service.NewCommunityService(repos.Communities(), repos.Memberships(), repos.Profiles(), logger)
	ledger := service.NewProfileService(repos.Profiles(), logger)
	intake := service.NewStickerService(repos.Stickers(), ledger, logger)
	reconciler := service.NewReconciler(repos.Communities(), repos.Memberships(), repos.Profiles(), logger)

	communities := handler.NewCommunityHandler(registry, logger)
	profiles := handler.NewProfileHandler(ledger, intake, logger)
	stickers := handler.NewStickerHandler(intake, logger)
	health := handler.NewHealthHandler(pinger{storeErr}, reconciler, "test", logger)

	r := chi.NewRouter()
	r.Get("/", health.HandleRoot)
	r.Get("/health", health.HandleHealth)
	r.Post("/admin/reconcile", health.HandleReconcile)
	r.Route("/communities", func(r chi.Router) {
		r.Post("/", communities.HandleCreate)
		r.Get("/{id}", communities.HandleGet)
		r.Post("/{id}/join", communities.HandleJoin)
		r.Delete("/{id}/quit", communities.HandleQuit)
		r.Delete("/{id}/kick", communities.HandleKick)
		r.Get("/{id}/users", communities.HandleListMembers)
	})
	r.Route("/stickers", func(r chi.Router) {
		r.Post("/", stickers.HandleCreate)
		r.Get("/{id}", stickers.HandleGet)
		r.Delete("/{id}", stickers.HandleDelete)
	})
	r.Route("/users", func(r chi.Router) {
		r.Post("/profiles", profiles.HandleCreate)
		r.Get("/{auth_id}", profiles.HandleGet)
		r.Put("/{auth_id}", profiles.HandleUpdate)
		r.Get("/{auth_id}/stickers", profiles.HandleListStickers)
	})
	return &api{t: t, router: r, logs: logs}
}

func (a *api) do(method, path, body string) *httptest.ResponseRecorder {
	a.t.Helper()
	var rd io.Reader
	if body != "" {
		rd = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v), "body: %s", rr.Body.String())
	return v
}

func (a *api) profile(authID, username string) {
	a.t.Helper()
	rr := a.do(http.MethodPost, "/users/profiles", `{"auth_id":"`+authID+`","username":"`+username+`"}`)
	require.Equal(a.t, http.StatusOK, rr.Code, rr.Body.String())
}

func (a *api) community(adminID string) model.Community {
	a.t.Helper()
	rr := a.do(http.MethodPost, "/communities/", `{"name":"Test","description":"city","admin_id":"`+adminID+`"}`)
	require.Equal(a.t, http.StatusOK, rr.Code, rr.Body.String())
	return decode[model.Community](a.t, rr)
}

func TestRootAndHealth(t *testing.T) {
	a := newAPI(t, nil)

	rr := a.do(http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Welcome")

	rr = a.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	body := decode[map[string]string](t, rr)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "test", body["version"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestHealthStoreDown(t *testing.T) {
	a := newAPI(t, errors.New("dial tcp: refused"))

	rr := a.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	body := decode[map[string]string](t, rr)
	assert.Equal(t, "unavailable", body["store"])
	assert.NotContains(t, rr.Body.String(), "refused")
}

// create -> get -> join -> members -> kick -> members
func TestCommunityScenario(t *testing.T) {
	a := newAPI(t, nil)
	a.profile(alice, "alice")
	a.profile(bob, "bob")

	c := a.community(alice)
	assert.Equal(t, alice, c.AdminID)

	rr := a.do(http.MethodGet, "/communities/"+c.ID, "")
	require.Equal(t, http.StatusOK, rr.Code)
	got := decode[model.Community](t, rr)
	assert.Equal(t, "Test", got.Name)
	assert.Equal(t, alice, got.AdminID)

	rr = a.do(http.MethodPost, "/communities/"+c.ID+"/join", `{"user_id":"`+bob+`"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.JSONEq(t, `{"ok":true}`, rr.Body.String())

	rr = a.do(http.MethodGet, "/communities/"+c.ID+"/users", "")
	require.Equal(t, http.StatusOK, rr.Code)
	members := decode[map[string][]model.Profile](t, rr)["community_users"]
	assert.Len(t, members, 2)

	rr = a.do(http.MethodDelete, "/communities/"+c.ID+"/kick?admin_id="+bob+"&user_id="+alice, "")
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "forbidden", decode[handler.ErrorResponse](t, rr).Error)

	rr = a.do(http.MethodDelete, "/communities/"+c.ID+"/kick?admin_id="+alice+"&user_id="+bob, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = a.do(http.MethodGet, "/communities/"+c.ID+"/users", "")
	members = decode[map[string][]model.Profile](t, rr)["community_users"]
	require.Len(t, members, 1)
	assert.Equal(t, alice, members[0].AuthID)
}

func TestJoinTwiceIsConflict(t *testing.T) {
	a := newAPI(t, nil)
	a.profile(alice, "alice")
	a.profile(bob, "bob")
	c := a.community(alice)

	require.Equal(t, http.StatusOK, a.do(http.MethodPost, "/communities/"+c.ID+"/join", `{"user_id":"`+bob+`"}`).Code)
	rr := a.do(http.MethodPost, "/communities/"+c.ID+"/join", `{"user_id":"`+bob+`"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestQuit(t *testing.T) {
	a := newAPI(t, nil)
	a.profile(alice, "alice")
	a.profile(bob, "bob")
	c := a.community(alice)
	require.Equal(t, http.StatusOK, a.do(http.MethodPost, "/communities/"+c.ID+"/join", `{"user_id":"`+bob+`"}`).Code)

	rr := a.do(http.MethodDelete, "/communities/"+c.ID+"/quit?user_id="+bob, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.NotEmpty(t, decode[map[string]string](t, rr)["message"])

	rr = a.do(http.MethodDelete, "/communities/"+c.ID+"/quit?user_id="+bob, "")
	assert.Equal(t, http.StatusNotFound, rr.Code, "quitting twice is not a silent success")

	rr = a.do(http.MethodDelete, "/communities/"+c.ID+"/quit?user_id="+alice, "")
	assert.Equal(t, http.StatusForbidden, rr.Code, "the admin cannot leave")
}

func TestCommunityErrors(t *testing.T) {
	a := newAPI(t, nil)
	a.profile(alice, "alice")

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantError  string
		wantField  string
	}{
		{"malformed JSON", http.MethodPost, "/communities/", `{"name":`, http.StatusBadRequest, "validation_error", "body"},
		{"blank name", http.MethodPost, "/communities/", `{"name":" ","admin_id":"` + alice + `"}`, http.StatusBadRequest, "validation_error", "name"},
		{"malformed admin", http.MethodPost, "/communities/", `{"name":"x","admin_id":"alice"}`, http.StatusBadRequest, "validation_error", "admin_id"},
		{"unknown community", http.MethodGet, "/communities/" + ghost, "", http.StatusNotFound, "not_found", ""},
		{"malformed community id", http.MethodGet, "/communities/42", "", http.StatusBadRequest, "validation_error", "id"},
		{"members of unknown community", http.MethodGet, "/communities/" + ghost + "/users", "", http.StatusNotFound, "not_found", ""},
		{"join without user", http.MethodPost, "/communities/" + ghost + "/join", `{}`, http.StatusBadRequest, "validation_error", "user_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := a.do(tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, rr.Code, rr.Body.String())
			e := decode[handler.ErrorResponse](t, rr)
			assert.Equal(t, tt.wantError, e.Error)
			assert.Equal(t, tt.wantField, e.Field)
			assert.NotEmpty(t, e.Message)
		})
	}
}

// =========================================================================
// STICKERS AND PROFILES
// =========================================================================

func stickerBody(communityID, authID, title string) string {
	return `{"community_id":"` + communityID + `","title":"` + title + `","description":"  tower ",` +
		`"image_url":"https://cdn.example.com/s.png","long":2.29,"lat":48.85,"auth_id":"` + authID + `"}`
}

func TestStickerLifecycle(t *testing.T) {
	a := newAPI(t, nil)
	a.profile(alice, "alice")
	c := a.community(alice)

	rr := a.do(http.MethodPost, "/stickers/", stickerBody(c.ID, alice, "Eiffel"))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	created := decode[map[string]any](t, rr)
	assert.Equal(t, true, created["ok"])
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)

	rr = a.do(http.MethodGet, "/stickers/"+id, "")
	require.Equal(t, http.StatusOK, rr.Code)
	st := decode[model.Sticker](t, rr)
	assert.Equal(t, "tower", st.Description)
	assert.Equal(t, 48.85, st.Lat)

	rr = a.do(http.MethodGet, "/users/"+alice, "")
	require.Equal(t, http.StatusOK, rr.Code)
	p := decode[model.Profile](t, rr)
	assert.Equal(t, int64(1), p.TotalStickers)
	assert.Equal(t, int64(10), p.Score)

	rr = a.do(http.MethodGet, "/users/"+alice+"/stickers?limit=5", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]model.Sticker](t, rr), 1)

	rr = a.do(http.MethodDelete, "/stickers/"+id, "")
	require.Equal(t, http.StatusOK, rr.Code)
	rr = a.do(http.MethodDelete, "/stickers/"+id, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestStickerErrors(t *testing.T) {
	a := newAPI(t, nil)
	a.profile(alice, "alice")
	c := a.community(alice)

	rr := a.do(http.MethodPost, "/stickers/", stickerBody(c.ID, alice, " "))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "title", decode[handler.ErrorResponse](t, rr).Field)

	rr = a.do(http.MethodPost, "/stickers/", strings.Replace(stickerBody(c.ID, alice, "x"), `"lat":48.85,`, "", 1))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "lat", decode[handler.ErrorResponse](t, rr).Field)

	rr = a.do(http.MethodPost, "/stickers/", stickerBody(ghost, alice, "x"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	e := decode[handler.ErrorResponse](t, rr)
	assert.Equal(t, "upstream_constraint", e.Error)
	assert.NotEmpty(t, e.Message)

	rr = a.do(http.MethodGet, "/users/"+alice, "")
	assert.Zero(t, decode[model.Profile](t, rr).Score)
}

func TestProfileEndpoints(t *testing.T) {
	a := newAPI(t, nil)
	a.profile(alice, "alice")

	rr := a.do(http.MethodPost, "/users/profiles", `{"auth_id":"`+alice+`","username":"again"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = a.do(http.MethodPut, "/users/"+alice, `{"bio":"hello"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	p := decode[model.Profile](t, rr)
	assert.Equal(t, "alice", p.Username)
	require.NotNil(t, p.Bio)
	assert.Equal(t, "hello", *p.Bio)

	rr = a.do(http.MethodPut, "/users/"+alice, `{}`)
	assert.Equal(t, http.StatusOK, rr.Code, "empty patch returns the profile")

	rr = a.do(http.MethodPut, "/users/"+ghost, `{"bio":"x"}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = a.do(http.MethodGet, "/users/"+ghost, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = a.do(http.MethodGet, "/users/"+alice+"/stickers?limit=ten", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "limit", decode[handler.ErrorResponse](t, rr).Field)

	rr = a.do(http.MethodGet, "/users/"+bob+"/stickers", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())
}

func TestAdminReconcile(t *testing.T) {
	a := newAPI(t, nil)
	a.profile(alice, "alice")
	a.community(alice)

	rr := a.do(http.MethodPost, "/admin/reconcile", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	rep := decode[service.Report](t, rr)
	assert.Equal(t, 1, rep.CheckedProfiles)
	assert.Equal(t, 1, rep.Memberships)
	assert.Zero(t, rep.Failed)
}

func TestMalformedBodiesAreLogged(t *testing.T) {
	tests := []struct {
		method, path, want string
	}{
		{http.MethodPost, "/communities/", "invalid community JSON"},
		{http.MethodPost, "/communities/" + ghost + "/join", "invalid join JSON"},
		{http.MethodPost, "/stickers/", "invalid sticker JSON"},
		{http.MethodPost, "/users/profiles", "invalid profile JSON"},
		{http.MethodPut, "/users/" + alice, "invalid profile patch JSON"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			a := newAPI(t, nil)
			rr := a.do(tt.method, tt.path, "{not json")
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Contains(t, a.logs.String(), tt.want)
		})
	}
}

func TestBadPagingIsLogged(t *testing.T) {
	a := newAPI(t, nil)
	rr := a.do(http.MethodGet, "/users/"+alice+"/stickers?limit=ten", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, a.logs.String(), "invalid paging parameter")
}
