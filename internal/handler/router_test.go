package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/jobly/internal/middleware"
	"github.com/hitoshi/jobly/internal/model"
	"github.com/hitoshi/jobly/internal/session"
)

func newTestRouter(t *testing.T, svc *mockSessionService, catalog *mockCatalogService) http.Handler {
	t.Helper()
	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		SubmitRate:      100,
		SubmitBurst:     100,
		CleanupInterval: time.Minute,
	})
	t.Cleanup(rl.Stop)

	return NewRouter(&RouterDeps{
		Session:        svc,
		Catalog:        catalog,
		Renderer:       newTestRenderer(t),
		Logger:         discardLogger(),
		RateLimiter:    rl,
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("metrics")) }),
	})
}

func statusSession(status model.Status) *mockSessionService {
	return &mockSessionService{
		snapshotFn: func() session.Snapshot {
			if status == model.StatusAuthenticated {
				return authenticatedSnapshot(testUser())
			}
			return session.Snapshot{Status: status}
		},
	}
}

func TestRouter_ProtectedPage_ByStatus(t *testing.T) {
	catalog := &mockCatalogService{
		listJobsFn: func(ctx context.Context, title string) ([]model.Job, error) {
			return testJobs(), nil
		},
	}

	tests := []struct {
		name         string
		status       model.Status
		wantCode     int
		wantLocation string
	}{
		{name: "authenticated renders", status: model.StatusAuthenticated, wantCode: http.StatusOK},
		{name: "anonymous redirects", status: model.StatusAnonymous, wantCode: http.StatusSeeOther, wantLocation: "/login?next=%2Fjobs"},
		{name: "initializing shows placeholder", status: model.StatusInitializing, wantCode: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(t, statusSession(tt.status), catalog)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/jobs", nil))

			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if loc := w.Header().Get("Location"); loc != tt.wantLocation {
				t.Errorf("Location = %q, want %q", loc, tt.wantLocation)
			}
		})
	}
}

func TestRouter_PublicPagesRenderWhileInitializing(t *testing.T) {
	router := newTestRouter(t, statusSession(model.StatusInitializing), &mockCatalogService{})

	for _, path := range []string{"/", "/login", "/signup"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK {
			t.Errorf("GET %s status = %d, want %d", path, w.Code, http.StatusOK)
		}
	}
}

func TestRouter_PostWithoutCSRFToken_Forbidden(t *testing.T) {
	svc := statusSession(model.StatusAnonymous)
	svc.loginFn = func(ctx context.Context, creds model.Credentials) model.OperationResult {
		t.Error("Login should not be called without a CSRF token")
		return model.Succeeded()
	}
	router := newTestRouter(t, svc, &mockCatalogService{})

	req := formRequest(http.MethodPost, "/login", url.Values{"username": {"u"}, "password": {"p"}})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestRouter_LoginFlowWithCSRFToken(t *testing.T) {
	svc := statusSession(model.StatusAnonymous)
	router := newTestRouter(t, svc, &mockCatalogService{})

	// GETでCSRF Cookieを受け取る
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/login", nil))
	var csrfCookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == "csrf_token" {
			csrfCookie = c
		}
	}
	if csrfCookie == nil {
		t.Fatal("login page should set the CSRF cookie")
	}
	if !strings.Contains(w.Body.String(), csrfCookie.Value) {
		t.Error("login form should embed the CSRF token")
	}

	req := formRequest(http.MethodPost, "/login", url.Values{
		"username":                {"testuser"},
		"password":                {"password"},
		middleware.CSRFFormField: {csrfCookie.Value},
	})
	req.AddCookie(csrfCookie)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusSeeOther)
	}
	if loc := w.Header().Get("Location"); loc != "/companies" {
		t.Errorf("Location = %q, want /companies", loc)
	}
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	router := newTestRouter(t, statusSession(model.StatusAnonymous), &mockCatalogService{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("/health status = %d, want %d", w.Code, http.StatusOK)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Body.String() != "metrics" {
		t.Errorf("/metrics body = %q, want metrics", w.Body.String())
	}
}

func TestRouter_SessionAPI(t *testing.T) {
	router := newTestRouter(t, statusSession(model.StatusAuthenticated), &mockCatalogService{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/session", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), `"username":"testuser"`) {
		t.Errorf("body = %q, want the session user", w.Body.String())
	}
}

func TestRouter_UnknownPathRedirectsHome(t *testing.T) {
	router := newTestRouter(t, statusSession(model.StatusAnonymous), &mockCatalogService{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/no/such/page", nil))

	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusSeeOther)
	}
	if loc := w.Header().Get("Location"); loc != "/" {
		t.Errorf("Location = %q, want /", loc)
	}
}

func TestRouter_ServesSessionScript(t *testing.T) {
	router := newTestRouter(t, statusSession(model.StatusAnonymous), &mockCatalogService{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/assets/session.js", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "/api/session/events") {
		t.Error("session script should subscribe to session events")
	}
}

// TestRouter_RehydrationCompletesMidRequest_UsesOneSessionView はリクエスト開始後に
// 復元が完了しても、ガードとハンドラーが同じスナップショットで判定・描画することを検証する。
func TestRouter_RehydrationCompletesMidRequest_UsesOneSessionView(t *testing.T) {
	var calls atomic.Int32
	svc := &mockSessionService{
		snapshotFn: func() session.Snapshot {
			// 最初の読み取り（リクエスト開始時）の直後に復元が完了する
			if calls.Add(1) == 1 {
				return session.Snapshot{Status: model.StatusInitializing}
			}
			return authenticatedSnapshot(testUser())
		},
		updateProfileFn: func(ctx context.Context, username string, patch model.ProfilePatch) model.OperationResult {
			t.Errorf("UpdateProfile called with username %q during rehydration", username)
			return model.Succeeded()
		},
	}
	router := newTestRouter(t, svc, &mockCatalogService{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/profile", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d (placeholder from the request snapshot)", w.Code, http.StatusServiceUnavailable)
	}

	// 次のリクエストは復元後のスナップショットでユーザーを描画する
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/profile", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), `value="test@example.com"`) {
		t.Error("profile form should be filled from the authenticated snapshot")
	}
}
