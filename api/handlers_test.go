package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"datacatalog/api/services"
	"datacatalog/internal/testutil"
	"datacatalog/pkg/apitoken"
	"datacatalog/pkg/config"
	"datacatalog/pkg/model"
	"datacatalog/pkg/shared"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *recordingPublisher) PublishActivity(_ context.Context, ev *shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, *ev)
	return nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *shared.Error   `json:"error"`
}

type testServer struct {
	f       *testutil.Fixture
	cfg     *config.Config
	handler http.Handler
	pub     *recordingPublisher
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	f := testutil.New(t)
	cfg := config.FromMap(map[string]string{config.KeySiteURL: "http://test.ckan.net"})
	pub := &recordingPublisher{}
	catalog := services.NewCatalogService(f.DB.DB, cfg, nil, nil, pub)
	h := NewHandlers(f.DB, cfg, catalog, nil)
	return &testServer{f: f, cfg: cfg, handler: h.Routes(), pub: pub}
}

// token issues and commits an API token for a new user.
func (s *testServer) token(t *testing.T) (*model.User, string) {
	t.Helper()
	u := s.f.User()
	tok, err := apitoken.New(s.f.Session, s.cfg).Create(s.f.Ctx, u.ID, "", true)
	require.NoError(t, err)
	return u, tok.ID
}

func (s *testServer) do(t *testing.T, method, target, token, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t)

	rec, env := s.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)

	var health shared.HealthStatus
	require.NoError(t, json.Unmarshal(env.Data, &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "healthy", health.Details["database"])
}

func TestGroupList(t *testing.T) {
	s := newTestServer(t)
	aa := s.f.Group("aa")
	bb := s.f.Group("bb")
	s.f.Organization("org")
	s.f.InGroups(s.f.Dataset(), aa, bb)
	s.f.InGroups(s.f.Dataset(), bb)
	s.f.Commit()

	rec, env := s.do(t, http.MethodGet, "/api/3/action/group_list", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var names []string
	require.NoError(t, json.Unmarshal(env.Data, &names))
	assert.Equal(t, []string{"aa", "bb"}, names)

	rec, env = s.do(t, http.MethodGet, "/api/3/action/group_list?all_fields=true&sort=package_count+desc", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var groups []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &groups))
	require.Len(t, groups, 2)
	assert.Equal(t, "bb", groups[0]["name"])
	assert.Equal(t, float64(2), groups[0]["package_count"])
	assert.Equal(t, "aa", groups[1]["name"])

	rec, env = s.do(t, http.MethodGet, "/api/3/action/organization_list", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &names))
	assert.Equal(t, []string{"org"}, names)
}

func TestGroupList_BadSort(t *testing.T) {
	s := newTestServer(t)

	rec, env := s.do(t, http.MethodGet, "/api/3/action/group_list?sort=title", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, shared.CodeInvalidRequest, env.Error.Code)
}

func TestGroupShow_KindMismatch(t *testing.T) {
	s := newTestServer(t)
	s.f.Group("plain")
	s.f.Organization("acme")
	s.f.Commit()

	rec, _ := s.do(t, http.MethodGet, "/api/3/action/group_show?id=plain", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env := s.do(t, http.MethodGet, "/api/3/action/organization_show?id=plain", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, shared.CodeNotFound, env.Error.Code)

	rec, env = s.do(t, http.MethodGet, "/api/3/action/organization_show?id=acme", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var org map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &org))
	assert.Equal(t, true, org["is_organization"])
}

func TestGroupShow_MissingID(t *testing.T) {
	s := newTestServer(t)

	rec, _ := s.do(t, http.MethodGet, "/api/3/action/group_show", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPackageShow(t *testing.T) {
	s := newTestServer(t)
	p := s.f.Dataset(func(p *model.Package) { p.LicenseID = testutil.Str("cc-by") })
	s.f.Resource(p)
	s.f.Commit()

	rec, env := s.do(t, http.MethodGet, "/api/3/action/package_show?id="+p.Name, "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var pkg map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &pkg))
	assert.Equal(t, p.ID, pkg["id"])
	assert.Equal(t, "Creative Commons Attribution", pkg["license_title"])
	assert.Equal(t, float64(1), pkg["num_resources"])

	rec, _ = s.do(t, http.MethodGet, "/api/3/action/package_show?id=nope", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTagAndVocabularyShow(t *testing.T) {
	s := newTestServer(t)
	v := s.f.Vocabulary("genre")
	p := s.f.Dataset()
	s.f.Tag(p, "russian", nil)
	s.f.Tag(p, "poetry", &v.ID)
	s.f.Commit()

	rec, env := s.do(t, http.MethodGet, "/api/3/action/tag_show?id=russian&include_datasets=true", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var tag map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &tag))
	assert.Equal(t, "russian", tag["name"])
	assert.Len(t, tag["packages"], 1)

	rec, _ = s.do(t, http.MethodGet, "/api/3/action/tag_show?id=poetry", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = s.do(t, http.MethodGet, "/api/3/action/tag_show?id=poetry&vocabulary_id=genre", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env = s.do(t, http.MethodGet, "/api/3/action/vocabulary_show?id=genre", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var vocab map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &vocab))
	assert.Equal(t, v.ID, vocab["id"])
	assert.Len(t, vocab["tags"], 1)
}

func TestActivityShow(t *testing.T) {
	s := newTestServer(t)
	s.f.Activity(&model.Activity{
		ID:           "act-1",
		UserID:       "u",
		ObjectID:     "p",
		ActivityType: shared.ActivityNewPackage,
		Data:         map[string]any{"package": map[string]any{"title": "T", "notes": "long"}},
	})
	s.f.Commit()

	rec, env := s.do(t, http.MethodGet, "/api/3/action/activity_show?id=act-1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var act map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &act))
	assert.Equal(t, map[string]any{"package": map[string]any{"title": "T"}}, act["data"])

	rec, env = s.do(t, http.MethodGet, "/api/3/action/activity_show?id=act-1&include_data=true", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &act))
	assert.Equal(t, "long", act["data"].(map[string]any)["package"].(map[string]any)["notes"])
}

func TestResourceCreate(t *testing.T) {
	s := newTestServer(t)
	p := s.f.Dataset()
	user, token := s.token(t)

	body := `{"package_id":"` + p.ID + `","url":"http://example.com/data.csv","format":"CSV","size":42,"custom":"x"}`
	rec, env := s.do(t, http.MethodPost, "/api/3/action/resource_create", token, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var res map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, p.ID, res["package_id"])
	assert.Equal(t, "http://example.com/data.csv", res["url"])
	assert.Equal(t, float64(42), res["size"])
	assert.Equal(t, "x", res["custom"])

	require.Len(t, s.pub.events, 1)
	ev := s.pub.events[0]
	assert.Equal(t, shared.ActivityChangedPackage, ev.Type)
	assert.Equal(t, p.ID, ev.ObjectID)
	assert.Equal(t, user.ID, ev.UserID)
	assert.Contains(t, ev.Data, "package")

	rec, env = s.do(t, http.MethodGet, "/api/3/action/package_show?id="+p.ID, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var pkg map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &pkg))
	assert.Equal(t, float64(1), pkg["num_resources"])
}

func TestResourceCreate_Validation(t *testing.T) {
	s := newTestServer(t)
	p := s.f.Dataset()
	_, token := s.token(t)

	rec, _ := s.do(t, http.MethodPost, "/api/3/action/resource_create", token, `{"url":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = s.do(t, http.MethodPost, "/api/3/action/resource_create", token, `{"package_id":"`+p.ID+`","size":"big"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = s.do(t, http.MethodPost, "/api/3/action/resource_create", token, `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, s.pub.events)
}

func TestResourceCreate_RejectsExistingID(t *testing.T) {
	s := newTestServer(t)
	a := s.f.Dataset()
	b := s.f.Dataset()
	owned := s.f.Resource(a)
	_, token := s.token(t)

	for _, pkg := range []*model.Package{b, a} {
		body := `{"package_id":"` + pkg.ID + `","id":"` + owned.ID + `","url":"http://elsewhere/x.csv"}`
		rec, env := s.do(t, http.MethodPost, "/api/3/action/resource_create", token, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "package %s", pkg.Name)
		require.NotNil(t, env.Error)
		assert.Equal(t, shared.CodeInvalidRequest, env.Error.Code)
	}
	assert.Empty(t, s.pub.events)

	sess := s.f.NewSession()
	defer sess.Close()
	stored, err := sess.GetResource(s.f.Ctx, owned.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, stored.PackageID)
	assert.Equal(t, "http://link.to.some.data", stored.URL)
}

func TestResourceCreate_BodyTooLarge(t *testing.T) {
	s := newTestServer(t)
	p := s.f.Dataset()
	_, token := s.token(t)

	body := `{"package_id":"` + p.ID + `","description":"` + strings.Repeat("x", maxBodyBytes) + `"}`
	rec, env := s.do(t, http.MethodPost, "/api/3/action/resource_create", token, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, shared.CodeInvalidRequest, env.Error.Code)
	assert.Empty(t, s.pub.events)
}

func TestWritesRequireToken(t *testing.T) {
	s := newTestServer(t)

	rec, env := s.do(t, http.MethodPost, "/api/3/action/resource_create", "", `{}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, shared.CodeUnauthorized, env.Error.Code)

	rec, _ = s.do(t, http.MethodPost, "/api/3/action/api_token_create", "Bearer not-a-token", `{}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPITokenLifecycle(t *testing.T) {
	s := newTestServer(t)
	_, token := s.token(t)
	_, otherToken := s.token(t)

	rec, env := s.do(t, http.MethodPost, "/api/3/action/api_token_create", "Bearer "+token, `{"name":"ci"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created map[string]string
	require.NoError(t, json.Unmarshal(env.Data, &created))
	fresh := created["token"]
	require.NotEmpty(t, fresh)

	// The new token authenticates.
	rec, _ = s.do(t, http.MethodPost, "/api/3/action/api_token_create", fresh, `{}`)
	assert.Equal(t, http.StatusCreated, rec.Code)

	// Someone else's token cannot be revoked.
	rec, env = s.do(t, http.MethodPost, "/api/3/action/api_token_revoke", token, `{"token":"`+otherToken+`"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, shared.CodeForbidden, env.Error.Code)

	rec, _ = s.do(t, http.MethodPost, "/api/3/action/api_token_revoke", token, `{"token":"`+fresh+`"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = s.do(t, http.MethodPost, "/api/3/action/api_token_create", fresh, `{}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = s.do(t, http.MethodPost, "/api/3/action/api_token_revoke", token, `{"token":"`+fresh+`"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTokenAuth_TouchesToken(t *testing.T) {
	s := newTestServer(t)
	_, token := s.token(t)

	rec, _ := s.do(t, http.MethodGet, "/api/3/action/group_list", token, "")
	require.Equal(t, http.StatusOK, rec.Code)

	sess := s.f.NewSession()
	defer sess.Close()
	tok, err := apitoken.New(sess, s.cfg).Get(s.f.Ctx, token)
	require.NoError(t, err)
	require.NotNil(t, tok)
	assert.NotNil(t, tok.LastAccess)
}

func TestUnknownAction(t *testing.T) {
	s := newTestServer(t)

	rec, env := s.do(t, http.MethodGet, "/api/3/action/package_search", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, env.Success)
}
