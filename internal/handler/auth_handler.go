package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/jobly/internal/guard"
	"github.com/hitoshi/jobly/internal/middleware"
	"github.com/hitoshi/jobly/internal/model"
)

// afterLoginPath はログイン・サインアップ成功後の遷移先。
const afterLoginPath = "/companies"

// loginForm はログインフォームの表示データ。パスワードは再表示しない。
type loginForm struct {
	Username string
	Next     string
}

// signupForm はサインアップフォームの表示データ。パスワードは再表示しない。
type signupForm struct {
	Username  string
	FirstName string
	LastName  string
	Email     string
}

// AuthHandler はホーム・ログイン・サインアップ・ログアウトのHTTPハンドラー。
type AuthHandler struct {
	session  SessionService
	renderer *Renderer
	logger   *slog.Logger
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(session SessionService, renderer *Renderer, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{
		session:  session,
		renderer: renderer,
		logger:   logger,
	}
}

// Home はトップページを表示する。
// GET /
func (h *AuthHandler) Home(w http.ResponseWriter, r *http.Request) {
	h.renderer.Render(w, r, http.StatusOK, "home", Page{})
}

// LoginForm はログインフォームを表示する。ログイン済みの場合は企業一覧へ遷移する。
// GET /login
func (h *AuthHandler) LoginForm(w http.ResponseWriter, r *http.Request) {
	if h.authenticated(r) {
		http.Redirect(w, r, afterLoginPath, http.StatusSeeOther)
		return
	}
	h.renderer.Render(w, r, http.StatusOK, "login", Page{
		Title: "Log In",
		Data:  loginForm{Next: r.URL.Query().Get("next")},
	})
}

// Login はログインフォームの送信を処理する。
// 成功時はnextパラメータ（サイト内のパスのみ）または企業一覧へ遷移し、
// 失敗時はエラー一覧を付けてフォームを再表示する。
// POST /login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	creds := model.Credentials{
		Username: strings.TrimSpace(r.PostFormValue("username")),
		Password: r.PostFormValue("password"),
	}
	next := r.PostFormValue("next")

	result := h.session.Login(r.Context(), creds)
	if !result.Success {
		h.renderer.Render(w, r, http.StatusUnprocessableEntity, "login", Page{
			Title:  "Log In",
			Alerts: result.Errors,
			Data:   loginForm{Username: creds.Username, Next: next},
		})
		return
	}

	http.Redirect(w, r, guard.SafeNext(next, afterLoginPath), http.StatusSeeOther)
}

// SignupForm はサインアップフォームを表示する。ログイン済みの場合は企業一覧へ遷移する。
// GET /signup
func (h *AuthHandler) SignupForm(w http.ResponseWriter, r *http.Request) {
	if h.authenticated(r) {
		http.Redirect(w, r, afterLoginPath, http.StatusSeeOther)
		return
	}
	h.renderer.Render(w, r, http.StatusOK, "signup", Page{
		Title: "Sign Up",
		Data:  signupForm{},
	})
}

// Signup はサインアップフォームの送信を処理する。成功時は企業一覧へ遷移する。
// POST /signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	reg := model.Registration{
		Username:  strings.TrimSpace(r.PostFormValue("username")),
		Password:  r.PostFormValue("password"),
		FirstName: strings.TrimSpace(r.PostFormValue("firstName")),
		LastName:  strings.TrimSpace(r.PostFormValue("lastName")),
		Email:     strings.TrimSpace(r.PostFormValue("email")),
	}

	result := h.session.Signup(r.Context(), reg)
	if !result.Success {
		h.renderer.Render(w, r, http.StatusUnprocessableEntity, "signup", Page{
			Title:  "Sign Up",
			Alerts: result.Errors,
			Data: signupForm{
				Username:  reg.Username,
				FirstName: reg.FirstName,
				LastName:  reg.LastName,
				Email:     reg.Email,
			},
		})
		return
	}

	http.Redirect(w, r, afterLoginPath, http.StatusSeeOther)
}

// Logout はセッションを破棄してトップページへ遷移する。
// POST /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.session.Logout(r.Context())
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// authenticated はリクエスト開始時点でログイン済みだったかを返す。
func (h *AuthHandler) authenticated(r *http.Request) bool {
	if snap, ok := middleware.SnapshotFromContext(r.Context()); ok {
		return snap.Authenticated()
	}
	return h.session.Status() == model.StatusAuthenticated
}
