// Package guard は保護されたビューへのアクセス可否を判定する。
//
// 判定はセッションの状態のみで決まる。
// 復元中（StatusInitializing）はリダイレクトせずプレースホルダーを返すため、
// 有効なトークンを持つユーザーが復元の完了前にログイン画面へ飛ばされることはない。
package guard

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/jobly/internal/middleware"
	"github.com/hitoshi/jobly/internal/model"
)

// Outcome は判定結果の種類。
type Outcome int

const (
	// ShowPlaceholder は復元完了まで待機用の表示を返す。
	ShowPlaceholder Outcome = iota
	// Render は要求されたビューを表示する。
	Render
	// Redirect はログイン画面へ誘導する。
	Redirect
)

// String はログ出力用の名前を返す。
func (o Outcome) String() string {
	switch o {
	case Render:
		return "render"
	case Redirect:
		return "redirect"
	default:
		return "placeholder"
	}
}

// PlaceholderBody はプレースホルダーの本文。
const PlaceholderBody = "Loading ..."

// Decision は保護されたビューに対する判定。
type Decision struct {
	Outcome Outcome
	View    string // Renderの場合に表示するビュー
	Target  string // Redirectの場合の遷移先
}

// Decide はセッションの状態から、viewを表示するか、loginPathへ誘導するか、
// プレースホルダーを返すかを判定する。未知の状態はプレースホルダーとして扱う。
func Decide(status model.Status, view, loginPath string) Decision {
	switch status {
	case model.StatusAuthenticated:
		return Decision{Outcome: Render, View: view}
	case model.StatusAnonymous:
		return Decision{Outcome: Redirect, Target: loginPath}
	default:
		return Decision{Outcome: ShowPlaceholder}
	}
}

// StatusReader はセッション状態の読み取りに必要なインターフェース。
// session.Managerの部分集合として定義する。
type StatusReader interface {
	Status() model.Status
}

// Guard は保護されたルートグループに適用するミドルウェアを提供する。
type Guard struct {
	reader    StatusReader
	loginPath string
	logger    *slog.Logger
}

// New はGuardを生成する。loginPathが空の場合は"/login"を使う。
func New(reader StatusReader, loginPath string, logger *slog.Logger) *Guard {
	if loginPath == "" {
		loginPath = "/login"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{reader: reader, loginPath: loginPath, logger: logger}
}

// Middleware はリクエストごとに判定を行うchi互換のミドルウェアを返す。
//   - Render: 次のハンドラーに委譲する
//   - Redirect: 303でログイン画面へ。元のURLはnextクエリパラメータで渡す
//   - ShowPlaceholder: 503と"Loading ..."。ブラウザには1秒後の再読み込みを促す
func (g *Guard) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := Decide(g.status(r), r.URL.Path, g.loginPath)

			switch d.Outcome {
			case Render:
				next.ServeHTTP(w, r)
			case Redirect:
				g.logger.Debug("redirecting anonymous request to login",
					slog.String("path", r.URL.Path),
				)
				http.Redirect(w, r, LoginURL(d.Target, r), http.StatusSeeOther)
			default:
				writePlaceholder(w)
			}
		})
	}
}

// status はリクエスト開始時のスナップショットの状態を返す。
// ハンドラーも同じスナップショットを参照するため、判定と描画で状態が食い違わない。
// Sessionミドルウェアを通っていない場合は現在の状態を読む。
func (g *Guard) status(r *http.Request) model.Status {
	if snap, ok := middleware.SnapshotFromContext(r.Context()); ok {
		return snap.Status
	}
	return g.reader.Status()
}

// LoginURL はログイン後に元のページへ戻れるよう、nextパラメータを付けたログインURLを返す。
// POSTなど状態変更メソッドの場合は戻り先を付けない。
func LoginURL(loginPath string, r *http.Request) string {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return loginPath
	}
	return loginPath + "?" + url.Values{"next": {r.URL.RequestURI()}}.Encode()
}

// SafeNext はnextパラメータの値がこのサーバー内のパスである場合のみ返す。
// それ以外（外部URLやプロトコル相対URL）はfallbackを返す。
func SafeNext(next, fallback string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return fallback
	}
	u, err := url.Parse(next)
	if err != nil || u.IsAbs() || u.Host != "" {
		return fallback
	}
	return next
}

func writePlaceholder(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Retry-After", "1")
	w.Header().Set("Refresh", "1")
	w.WriteHeader(http.StatusServiceUnavailable)
	w.Write([]byte(PlaceholderBody))
}
