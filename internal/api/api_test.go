package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"directory/internal/auth"
	"directory/internal/cloudinary"
	"directory/internal/config"
	"directory/internal/profile"
	"directory/internal/queue"
)

type testEnv struct {
	router *gin.Engine
	store  *profile.FileStore
	events *queue.InMemory
	token  string
}

func newTestEnv(t *testing.T, images ImageUploader) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store, err := profile.OpenFileStore(filepath.Join(t.TempDir(), "users.json"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	admin, err := auth.NewAdmin("admin@campus.edu", "admin123", "")
	if err != nil {
		t.Fatalf("admin: %v", err)
	}
	cfg := config.App{JWTIssuer: "test", JWTSigningKey: "test-key", SessionTTL: time.Hour}
	events := queue.NewInMemory(32)
	env := &testEnv{
		store:  store,
		events: events,
		router: NewRouter(Deps{
			Config:   cfg,
			Profiles: profile.NewService(store, events, nil),
			Admin:    admin,
			Images:   images,
			Health:   map[string]HealthCheck{"store": func(ctx context.Context) error { _, err := store.List(ctx); return err }},
		}),
	}
	env.token = env.login(t, "admin@campus.edu", "admin123", http.StatusOK)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(raw)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) login(t *testing.T, email, password string, want int) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": email, "password": password}, false)
	if w.Code != want {
		t.Fatalf("login status %d: %s", w.Code, w.Body.String())
	}
	var res struct {
		AccessToken string `json:"access_token"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	return res.AccessToken
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	env := newTestEnv(t, nil)
	env.login(t, "admin@campus.edu", "nope", http.StatusUnauthorized)
	w := env.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "admin@campus.edu"}, false)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing password: %d", w.Code)
	}
}

func TestCreateWithoutIDAppearsFirst(t *testing.T) {
	env := newTestEnv(t, nil)
	older := env.do(t, http.MethodPost, "/api/profiles", map[string]any{
		"id": "user_1", "name": "Old Timer", "email": "old@campus.edu", "role": "teacher", "department": "Physics",
	}, true)
	if older.Code != http.StatusOK {
		t.Fatalf("seed: %d %s", older.Code, older.Body.String())
	}
	time.Sleep(2 * time.Millisecond)

	w := env.do(t, http.MethodPost, "/api/profiles", map[string]any{
		"name": "Sam Staff", "email": "sam@campus.edu", "role": "staff", "department": "IT Services",
		"yearOrPosition": "Helpdesk", "skills": []string{"Networking"},
	}, true)
	if w.Code != http.StatusOK {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	created := decode[map[string]any](t, w)
	id, _ := created["id"].(string)
	if !strings.HasPrefix(id, "user_") {
		t.Fatalf("expected generated id, got %v", created["id"])
	}
	if created["createdAt"] != created["updatedAt"] || created["createdAt"] == nil {
		t.Fatalf("expected equal timestamps, got %v / %v", created["createdAt"], created["updatedAt"])
	}
	if created["message"] != "User saved successfully" {
		t.Fatalf("missing confirmation message: %v", created)
	}

	list := decode[[]profile.Profile](t, env.do(t, http.MethodGet, "/api/profiles", nil, false))
	if len(list) != 2 || list[0].ID != id {
		t.Fatalf("new profile not first: %+v", list)
	}
	if list[0].Projects == nil || list[0].Publications == nil {
		t.Fatalf("lists not materialized: %+v", list[0])
	}
	if env.events.Len() != 2 {
		t.Fatalf("expected 2 saved events, got %d", env.events.Len())
	}
}

func TestMutationsRequireAdmin(t *testing.T) {
	env := newTestEnv(t, nil)
	cases := []struct{ method, path string }{
		{http.MethodPost, "/api/profiles"},
		{http.MethodDelete, "/api/profiles?id=x"},
		{http.MethodPost, "/api/settings"},
		{http.MethodGet, "/api/admin/form"},
		{http.MethodPost, "/api/admin/form"},
	}
	for _, tc := range cases {
		if w := env.do(t, tc.method, tc.path, map[string]string{}, false); w.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected 401, got %d", tc.method, tc.path, w.Code)
		}
	}
}

func TestSaveProfileValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/profiles", strings.NewReader("{broken"))
	req.Header.Set("Authorization", "Bearer "+env.token)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("malformed body: %d", w.Code)
	}
	w = env.do(t, http.MethodPost, "/api/profiles", map[string]any{"name": "x", "email": "x@y", "role": "dean"}, true)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad role: %d", w.Code)
	}
}

func TestDeleteProfile(t *testing.T) {
	env := newTestEnv(t, nil)
	if w := env.do(t, http.MethodDelete, "/api/profiles", nil, true); w.Code != http.StatusBadRequest {
		t.Fatalf("missing id: %d", w.Code)
	}
	if w := env.do(t, http.MethodDelete, "/api/profiles?id=ghost", nil, true); w.Code != http.StatusNotFound {
		t.Fatalf("unknown id: %d", w.Code)
	}
	env.do(t, http.MethodPost, "/api/profiles", map[string]any{"id": "user_9", "name": "A", "email": "a@x", "role": "student"}, true)
	w := env.do(t, http.MethodDelete, "/api/profiles?id=user_9", nil, true)
	if w.Code != http.StatusOK || decode[map[string]any](t, w)["success"] != true {
		t.Fatalf("delete: %d %s", w.Code, w.Body.String())
	}
	if w := env.do(t, http.MethodGet, "/api/profiles/user_9", nil, false); w.Code != http.StatusNotFound {
		t.Fatalf("deleted profile still served: %d", w.Code)
	}
}

func TestDirectoryEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	for i := 0; i < 10; i++ {
		env.do(t, http.MethodPost, "/api/profiles", map[string]any{
			"name": "Student " + string(rune('A'+i)), "email": "s@campus.edu", "role": "student", "department": "Mathematics",
		}, true)
	}
	env.do(t, http.MethodPost, "/api/profiles", map[string]any{
		"name": "Teacher T", "email": "t@campus.edu", "role": "teacher", "department": "Mathematics",
	}, true)

	page := decode[profile.Page](t, env.do(t, http.MethodGet, "/api/directory?role=student&department=Mathematics", nil, false))
	if page.Total != 10 || page.Shown != 6 || !page.HasMore {
		t.Fatalf("first page: %+v", page)
	}
	page = decode[profile.Page](t, env.do(t, http.MethodGet, "/api/directory?role=student&pages=2", nil, false))
	if page.Shown != 10 || page.HasMore {
		t.Fatalf("after two loads: %+v", page)
	}
	page = decode[profile.Page](t, env.do(t, http.MethodGet, "/api/directory?search=TEACHER", nil, false))
	if page.Total != 1 || page.Profiles[0].Role != profile.RoleTeacher {
		t.Fatalf("search: %+v", page)
	}
	page = decode[profile.Page](t, env.do(t, http.MethodGet, "/api/directory?department=Physics", nil, false))
	if page.Total != 0 || page.Profiles == nil {
		t.Fatalf("empty result should be an empty list: %+v", page)
	}
	if w := env.do(t, http.MethodGet, "/api/directory?pages=-1", nil, false); w.Code != http.StatusBadRequest {
		t.Fatalf("negative pages: %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/directory?alpha=St", nil, false); w.Code != http.StatusBadRequest {
		t.Fatalf("multi-letter alpha: %d", w.Code)
	}
	page = decode[profile.Page](t, env.do(t, http.MethodGet, "/api/directory?alpha=t", nil, false))
	if page.Total != 1 {
		t.Fatalf("alpha t: %+v", page)
	}
}

func TestSettingsEcho(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do(t, http.MethodPost, "/api/settings", map[string]string{"siteTitle": "People"}, true)
	got := decode[map[string]string](t, w)
	if got["siteTitle"] != "People" || got["message"] != "Settings saved successfully!" {
		t.Fatalf("unexpected echo %v", got)
	}
	after := decode[map[string]string](t, env.do(t, http.MethodGet, "/api/settings", nil, false))
	if after["siteTitle"] != "Campus Directory" {
		t.Fatalf("settings should not persist: %v", after)
	}
}

func TestFormWorkflowOverHTTP(t *testing.T) {
	env := newTestEnv(t, nil)
	empty := decode[profile.Form](t, env.do(t, http.MethodGet, "/api/admin/form", nil, true))
	if empty != profile.EmptyForm() {
		t.Fatalf("unexpected empty form %+v", empty)
	}

	f := profile.EmptyForm()
	f.Name, f.Email, f.Role = "Grace Hopper", "grace@campus.edu", profile.RoleTeacher
	f.Skills, f.Projects = "Python, Go,  Rust ", "COBOL,,"
	w := env.do(t, http.MethodPost, "/api/admin/form", f, true)
	if w.Code != http.StatusOK {
		t.Fatalf("submit: %d %s", w.Code, w.Body.String())
	}
	res := decode[struct {
		Profile profile.Profile `json:"profile"`
		Refresh bool            `json:"refresh"`
		Form    profile.Form    `json:"form"`
	}](t, w)
	if !res.Refresh || res.Form != profile.EmptyForm() {
		t.Fatalf("expected reset form and refresh signal: %+v", res)
	}
	if strings.Join(res.Profile.Skills, "|") != "Python|Go|Rust" || strings.Join(res.Profile.Projects, "|") != "COBOL" {
		t.Fatalf("lists not normalized: %+v", res.Profile)
	}

	hydrated := decode[profile.Form](t, env.do(t, http.MethodGet, "/api/admin/form/"+res.Profile.ID, nil, true))
	if hydrated.ID != res.Profile.ID || hydrated.Skills != "Python, Go, Rust" {
		t.Fatalf("unexpected hydrated form %+v", hydrated)
	}
	if w := env.do(t, http.MethodGet, "/api/admin/form/ghost", nil, true); w.Code != http.StatusNotFound {
		t.Fatalf("unknown id: %d", w.Code)
	}

	bad := profile.EmptyForm()
	bad.Email = "x@y"
	if w := env.do(t, http.MethodPost, "/api/admin/form", bad, true); w.Code != http.StatusBadRequest {
		t.Fatalf("missing name: %d", w.Code)
	}
}

func multipartForm(t *testing.T, fields map[string]string, file []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	if file != nil {
		part, err := mw.CreateFormFile("imageFile", "avatar.png")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		_, _ = part.Write(file)
	}
	_ = mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestFormMultipartInlinesFile(t *testing.T) {
	env := newTestEnv(t, nil)
	body, ct := multipartForm(t, map[string]string{
		"name": "Ada", "email": "ada@campus.edu", "role": "student", "imageMode": "file",
		"imageUrl": "https://ignored.example/a.png",
	}, []byte("\x89PNG\r\n\x1a\nrest"))
	req := httptest.NewRequest(http.MethodPost, "/api/admin/form", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("Authorization", "Bearer "+env.token)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("submit: %d %s", w.Code, w.Body.String())
	}
	list, _ := env.store.List(context.Background())
	if len(list) != 1 || list[0].Image.Kind != profile.ImageInline {
		t.Fatalf("expected inline image, got %+v", list)
	}
}

type stubUploader struct{ err error }

func (s stubUploader) UploadBytes(_ context.Context, data []byte, filename string) (*cloudinary.UploadResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &cloudinary.UploadResult{SecureURL: "https://res.cloudinary.com/demo/" + filename, Bytes: len(data)}, nil
}

func TestUploadImage(t *testing.T) {
	post := func(env *testEnv, file []byte) *httptest.ResponseRecorder {
		body, ct := multipartForm(t, nil, file)
		req := httptest.NewRequest(http.MethodPost, "/api/admin/images", body)
		req.Header.Set("Content-Type", ct)
		req.Header.Set("Authorization", "Bearer "+env.token)
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		return w
	}

	if w := post(newTestEnv(t, nil), []byte("x")); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("unconfigured: %d", w.Code)
	}
	env := newTestEnv(t, stubUploader{})
	w := post(env, []byte("png"))
	if w.Code != http.StatusOK || decode[map[string]any](t, w)["url"] != "https://res.cloudinary.com/demo/avatar.png" {
		t.Fatalf("upload: %d %s", w.Code, w.Body.String())
	}
	if w := post(env, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("missing file: %d", w.Code)
	}
	if w := post(newTestEnv(t, stubUploader{err: errors.New("down")}), []byte("png")); w.Code != http.StatusBadGateway {
		t.Fatalf("upstream failure: %d", w.Code)
	}
}

func TestHealthAndFilters(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do(t, http.MethodGet, "/healthz", nil, false)
	if w.Code != http.StatusOK || decode[map[string]any](t, w)["store"] != true {
		t.Fatalf("health: %d %s", w.Code, w.Body.String())
	}
	facets := decode[profile.Facets](t, env.do(t, http.MethodGet, "/api/filters", nil, false))
	if len(facets.Alphabet) != 26 || len(facets.Roles) != 3 {
		t.Fatalf("facets: %+v", facets)
	}
}
