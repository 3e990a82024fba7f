package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/hitoshi/jobly/internal/middleware"
	"github.com/hitoshi/jobly/internal/model"
	"github.com/hitoshi/jobly/internal/session"
)

// --- モック定義 ---

type mockSessionService struct {
	snapshotFn      func() session.Snapshot
	subscribeFn     func(fn func(session.Snapshot)) func()
	loginFn         func(ctx context.Context, creds model.Credentials) model.OperationResult
	signupFn        func(ctx context.Context, reg model.Registration) model.OperationResult
	updateProfileFn func(ctx context.Context, username string, patch model.ProfilePatch) model.OperationResult
	applyToJobFn    func(ctx context.Context, jobID int) model.OperationResult
	hasAppliedFn    func(jobID int) bool

	mu          sync.Mutex
	logoutCalls int
}

func (m *mockSessionService) Snapshot() session.Snapshot {
	if m.snapshotFn != nil {
		return m.snapshotFn()
	}
	return session.Snapshot{Status: model.StatusAnonymous}
}

func (m *mockSessionService) Status() model.Status {
	return m.Snapshot().Status
}

func (m *mockSessionService) Subscribe(fn func(session.Snapshot)) func() {
	if m.subscribeFn != nil {
		return m.subscribeFn(fn)
	}
	return func() {}
}

func (m *mockSessionService) Login(ctx context.Context, creds model.Credentials) model.OperationResult {
	if m.loginFn != nil {
		return m.loginFn(ctx, creds)
	}
	return model.Succeeded()
}

func (m *mockSessionService) Signup(ctx context.Context, reg model.Registration) model.OperationResult {
	if m.signupFn != nil {
		return m.signupFn(ctx, reg)
	}
	return model.Succeeded()
}

func (m *mockSessionService) UpdateProfile(ctx context.Context, username string, patch model.ProfilePatch) model.OperationResult {
	if m.updateProfileFn != nil {
		return m.updateProfileFn(ctx, username, patch)
	}
	return model.Succeeded()
}

func (m *mockSessionService) Logout(ctx context.Context) model.OperationResult {
	m.mu.Lock()
	m.logoutCalls++
	m.mu.Unlock()
	return model.Succeeded()
}

func (m *mockSessionService) HasAppliedToJob(jobID int) bool {
	if m.hasAppliedFn != nil {
		return m.hasAppliedFn(jobID)
	}
	return m.Snapshot().User.HasApplied(jobID)
}

func (m *mockSessionService) ApplyToJob(ctx context.Context, jobID int) model.OperationResult {
	if m.applyToJobFn != nil {
		return m.applyToJobFn(ctx, jobID)
	}
	return model.Succeeded()
}

type mockCatalogService struct {
	listCompaniesFn func(ctx context.Context, nameLike string) ([]model.Company, error)
	getCompanyFn    func(ctx context.Context, handle string) (*model.Company, error)
	listJobsFn      func(ctx context.Context, title string) ([]model.Job, error)
}

func (m *mockCatalogService) ListCompanies(ctx context.Context, nameLike string) ([]model.Company, error) {
	if m.listCompaniesFn != nil {
		return m.listCompaniesFn(ctx, nameLike)
	}
	return nil, nil
}

func (m *mockCatalogService) GetCompany(ctx context.Context, handle string) (*model.Company, error) {
	if m.getCompanyFn != nil {
		return m.getCompanyFn(ctx, handle)
	}
	return nil, errors.New("not found")
}

func (m *mockCatalogService) ListJobs(ctx context.Context, title string) ([]model.Job, error) {
	if m.listJobsFn != nil {
		return m.listJobsFn(ctx, title)
	}
	return nil, nil
}

// --- ヘルパー ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	rd, err := NewRenderer(discardLogger())
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	return rd
}

func testUser(applied ...int) *model.User {
	u := &model.User{
		Username:      "testuser",
		FirstName:     "Test",
		LastName:      "User",
		Email:         "test@example.com",
		AppliedJobIDs: map[int]struct{}{},
	}
	for _, id := range applied {
		u.AppliedJobIDs[id] = struct{}{}
	}
	return u
}

func authenticatedSnapshot(u *model.User) session.Snapshot {
	return session.Snapshot{Status: model.StatusAuthenticated, User: u, HasToken: true}
}

func anonymousSnapshot() session.Snapshot {
	return session.Snapshot{Status: model.StatusAnonymous}
}

// withSnapshot はSessionミドルウェアを通した状態のリクエストを返す。
func withSnapshot(r *http.Request, snap session.Snapshot) *http.Request {
	return r.WithContext(middleware.ContextWithSnapshot(r.Context(), snap))
}

func formRequest(method, target string, form url.Values) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// --- ParseJobID ---

func TestParseJobID(t *testing.T) {
	tests := []struct {
		raw     string
		want    int
		wantErr bool
	}{
		{raw: "42", want: 42},
		{raw: "1", want: 1},
		{raw: "0", wantErr: true},
		{raw: "-3", wantErr: true},
		{raw: "abc", wantErr: true},
		{raw: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseJobID(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidJobID) {
					t.Errorf("ParseJobID(%q) error = %v, want ErrInvalidJobID", tt.raw, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseJobID(%q) unexpected error: %v", tt.raw, err)
			}
			if got != tt.want {
				t.Errorf("ParseJobID(%q) = %d, want %d", tt.raw, got, tt.want)
			}
		})
	}
}
