package roles

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantage-cms/vantage-cms/internal/platform/httpx"
	"github.com/vantage-cms/vantage-cms/internal/rbac"
)

type staticVerifier struct{}

func (staticVerifier) Identify(raw string) (uuid.UUID, error) {
	return uuid.Parse(raw)
}

type staticSnapshots struct {
	principals map[uuid.UUID]rbac.Principal
}

func (s staticSnapshots) ResolveSnapshot(ctx context.Context, id uuid.UUID) (rbac.Principal, error) {
	principal, ok := s.principals[id]
	if !ok {
		return rbac.Principal{}, httpx.ErrNotFound
	}
	return principal, nil
}

type handlerFixture struct {
	router  chi.Router
	repo    *mockRepository
	service *Service
	admin   uuid.UUID
	reader  uuid.UUID
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	repo := newMockRepository()
	service := NewService(repo, nil)
	_, err := service.Seed(context.Background())
	require.NoError(t, err)

	admin := uuid.New()
	reader := uuid.New()
	snapshots := staticSnapshots{principals: map[uuid.UUID]rbac.Principal{
		admin:  {ID: admin, RoleName: "Admin", IsAdmin: true},
		reader: {ID: reader, RoleName: "Viewer", Permissions: []string{rbac.PermRoleRead}},
	}}
	guard := rbac.NewGuard(staticVerifier{}, snapshots, nil, nil)

	handler := NewHandler(nil, service, rbac.Middleware{Guard: guard})
	router := chi.NewRouter()
	router.Route("/roles", handler.MountRoutes)

	return &handlerFixture{router: router, repo: repo, service: service, admin: admin, reader: reader}
}

func (f *handlerFixture) do(method, target, body string, as uuid.UUID) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if as != uuid.Nil {
		req.Header.Set("Authorization", "Bearer "+as.String())
	}
	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, req)
	return res
}

func TestHandlerListRequiresAuth(t *testing.T) {
	f := newHandlerFixture(t)

	res := f.do(http.MethodGet, "/roles/", "", uuid.Nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	res = f.do(http.MethodGet, "/roles/", "", f.reader)
	assert.Equal(t, http.StatusOK, res.Code)

	var out []roleResponse
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &out))
	assert.Len(t, out, 3)
}

func TestHandlerCreateForbiddenWithoutPermission(t *testing.T) {
	f := newHandlerFixture(t)

	body := `{"name":"Editor","permissions":["post:read"]}`
	res := f.do(http.MethodPost, "/roles/", body, f.reader)
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = f.do(http.MethodPost, "/roles/", body, f.admin)
	assert.Equal(t, http.StatusCreated, res.Code)

	var created roleResponse
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &created))
	assert.Equal(t, "Editor", created.Name)
	assert.True(t, created.Deletable)
}

func TestHandlerCreateValidation(t *testing.T) {
	f := newHandlerFixture(t)

	res := f.do(http.MethodPost, "/roles/", `{"name":"x"}`, f.admin)
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = f.do(http.MethodPost, "/roles/", `{"name":"Editor","bogus":true}`, f.admin)
	assert.Equal(t, http.StatusBadRequest, res.Code, "unknown fields are rejected")
}

func TestHandlerGetMalformedID(t *testing.T) {
	f := newHandlerFixture(t)

	res := f.do(http.MethodGet, "/roles/not-a-uuid", "", f.reader)
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestHandlerGetMissingRole(t *testing.T) {
	f := newHandlerFixture(t)

	res := f.do(http.MethodGet, "/roles/"+uuid.NewString(), "", f.reader)
	assert.Equal(t, http.StatusNotFound, res.Code)
}

func TestHandlerDeleteProtectedRole(t *testing.T) {
	f := newHandlerFixture(t)
	adminRoleID, _ := f.service.Directory().ID(RoleAdmin)

	res := f.do(http.MethodDelete, "/roles/"+adminRoleID.String(), "", f.admin)
	assert.Equal(t, http.StatusForbidden, res.Code)
}

func TestHandlerDeleteManyRoute(t *testing.T) {
	f := newHandlerFixture(t)
	editor, err := f.service.Create(context.Background(), "Editor", nil, "")
	require.NoError(t, err)

	// "/many" must not be swallowed by the "/{id}" route.
	body := `{"ids":["` + editor.ID.String() + `"]}`
	res := f.do(http.MethodDelete, "/roles/many", body, f.admin)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	var out struct {
		Deleted []string `json:"deleted"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &out))
	assert.Equal(t, []string{editor.ID.String()}, out.Deleted)
}

func TestHandlerReseedRepairsDrift(t *testing.T) {
	f := newHandlerFixture(t)
	adminRoleID, _ := f.service.Directory().ID(RoleAdmin)
	delete(f.repo.roles, adminRoleID)

	res := f.do(http.MethodPost, "/roles/reseed", "", f.reader)
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = f.do(http.MethodPost, "/roles/reseed", "", f.admin)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	var out struct {
		Roles []string `json:"roles"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &out))
	assert.ElementsMatch(t, DefaultRoleNames(), out.Roles)

	count, _ := f.repo.CountNonDeletable(context.Background())
	assert.Equal(t, DefaultRoleCount, count)
}

func TestHandlerUpdateRole(t *testing.T) {
	f := newHandlerFixture(t)
	editor, err := f.service.Create(context.Background(), "Editor", nil, "")
	require.NoError(t, err)

	res := f.do(http.MethodPut, "/roles/"+editor.ID.String(), `{"name":"Publisher"}`, f.admin)
	require.Equal(t, http.StatusOK, res.Code)

	var updated roleResponse
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &updated))
	assert.Equal(t, "Publisher", updated.Name)
}
