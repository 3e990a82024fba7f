package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/jobly/internal/middleware"
	"github.com/hitoshi/jobly/internal/model"
	"github.com/hitoshi/jobly/internal/session"
)

// profileUpdatedMessage はプロフィール更新成功時の通知。
const profileUpdatedMessage = "Updated successfully."

// profileForm はプロフィールフォームの表示データ。パスワードは常に空で表示する。
type profileForm struct {
	Username  string
	FirstName string
	LastName  string
	Email     string
}

// ProfileHandler はプロフィールの表示・更新のHTTPハンドラー。
type ProfileHandler struct {
	session  SessionService
	renderer *Renderer
	logger   *slog.Logger
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(session SessionService, renderer *Renderer, logger *slog.Logger) *ProfileHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProfileHandler{
		session:  session,
		renderer: renderer,
		logger:   logger,
	}
}

// Show はログイン中ユーザーのプロフィールフォームを表示する。
// GET /profile
func (h *ProfileHandler) Show(w http.ResponseWriter, r *http.Request) {
	snap := h.snapshot(r)
	h.renderer.Render(w, r, http.StatusOK, "profile", Page{
		Title: "Profile",
		Data:  formFromUser(snap.User),
	})
}

// Update はプロフィールフォームの送信を処理する。
// 失敗時は入力値を保持したままエラー一覧を表示し、成功時はサーバーの応答を反映して再表示する。
// POST /profile
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	snap := h.snapshot(r)

	form := profileForm{
		Username:  snap.Username(),
		FirstName: strings.TrimSpace(r.PostFormValue("firstName")),
		LastName:  strings.TrimSpace(r.PostFormValue("lastName")),
		Email:     strings.TrimSpace(r.PostFormValue("email")),
	}
	password := r.PostFormValue("password")

	patch := model.ProfilePatch{
		FirstName: &form.FirstName,
		LastName:  &form.LastName,
		Email:     &form.Email,
		Password:  &password,
	}

	result := h.session.UpdateProfile(r.Context(), form.Username, patch)
	if !result.Success {
		h.renderer.Render(w, r, http.StatusUnprocessableEntity, "profile", Page{
			Title:  "Profile",
			Alerts: result.Errors,
			Data:   form,
		})
		return
	}

	// 更新後の状態でナビゲーションも描画する
	updated := h.session.Snapshot()
	h.renderer.Render(w, r, http.StatusOK, "profile", Page{
		Title:   "Profile",
		Session: updated,
		Notices: []string{profileUpdatedMessage},
		Data:    formFromUser(updated.User),
	})
}

func (h *ProfileHandler) snapshot(r *http.Request) session.Snapshot {
	if snap, ok := middleware.SnapshotFromContext(r.Context()); ok {
		return snap
	}
	return h.session.Snapshot()
}

func formFromUser(u *model.User) profileForm {
	if u == nil {
		return profileForm{}
	}
	return profileForm{
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
	}
}
