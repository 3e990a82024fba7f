package handler

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/hitoshi/jobly/internal/middleware"
	"github.com/hitoshi/jobly/internal/model"
	"github.com/hitoshi/jobly/internal/session"
)

//go:embed templates/*.html
var templateFiles embed.FS

//go:embed assets
var assetFiles embed.FS

// AssetHandler は/assets/配下の静的ファイルを配信するハンドラーを返す。
func AssetHandler() http.Handler {
	sub, err := fs.Sub(assetFiles, "assets")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/assets/", http.FileServerFS(sub))
}

// pageNames はlayout.htmlと組み合わせて解析するページテンプレート。
var pageNames = []string{
	"home", "login", "signup", "companies", "company", "jobs", "profile", "error",
}

// Page は全ページ共通のテンプレートデータ。
type Page struct {
	Title     string
	Session   session.Snapshot
	CSRFToken string
	Alerts    []string // 失敗時のメッセージ一覧
	Notices   []string // 成功時のメッセージ一覧
	Data      any
}

// Renderer はページテンプレートを描画する。
type Renderer struct {
	pages  map[string]*template.Template
	logger *slog.Logger
}

// NewRenderer は埋め込みテンプレートを解析してRendererを生成する。
func NewRenderer(logger *slog.Logger) (*Renderer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		t, err := template.ParseFS(templateFiles, "templates/layout.html", "templates/partials.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		pages[name] = t
	}

	return &Renderer{pages: pages, logger: logger}, nil
}

// Render はページを描画する。SessionとCSRFTokenは未設定ならリクエストコンテキストから補う。
// 描画に失敗した場合は何も書き込まずに500を返す。
func (rd *Renderer) Render(w http.ResponseWriter, r *http.Request, status int, name string, page Page) {
	t, ok := rd.pages[name]
	if !ok {
		rd.logger.Error("unknown page template", slog.String("page", name))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	if page.Session.Status == "" {
		if snap, ok := middleware.SnapshotFromContext(r.Context()); ok {
			page.Session = snap
		}
	}
	if page.CSRFToken == "" {
		page.CSRFToken = middleware.CSRFTokenFromContext(r.Context())
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", page); err != nil {
		rd.logger.Error("template execution failed",
			slog.String("page", name),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// RenderError はゲートウェイのエラーをエラーページとして描画する。
func (rd *Renderer) RenderError(w http.ResponseWriter, r *http.Request, err error) {
	status, _ := middleware.StatusForError(err)
	if status >= http.StatusInternalServerError {
		rd.logger.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	rd.RenderMessages(w, r, status, model.Messages(err))
}

// RenderMessages はメッセージ一覧をエラーページとして描画する。
func (rd *Renderer) RenderMessages(w http.ResponseWriter, r *http.Request, status int, messages []string) {
	rd.Render(w, r, status, "error", Page{
		Title:  "Error",
		Alerts: messages,
	})
}
