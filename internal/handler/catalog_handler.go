package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/jobly/internal/guard"
	"github.com/hitoshi/jobly/internal/middleware"
	"github.com/hitoshi/jobly/internal/model"
)

// jobView は求人カードの表示データ。
type jobView struct {
	Job     model.Job
	Applied bool
}

type companiesPage struct {
	Query     string
	Companies []model.Company
}

type companyPage struct {
	Company  *model.Company
	Jobs     []jobView
	ReturnTo string
}

type jobsPage struct {
	Query    string
	Jobs     []jobView
	ReturnTo string
}

// CatalogHandler は企業・求人の一覧と求人への応募のHTTPハンドラー。
// ログイン済みのリクエストのみが到達する（ルートガードの内側に配置する）。
type CatalogHandler struct {
	catalog  CatalogService
	session  SessionService
	renderer *Renderer
	logger   *slog.Logger
}

// NewCatalogHandler はCatalogHandlerを生成する。
func NewCatalogHandler(catalog CatalogService, session SessionService, renderer *Renderer, logger *slog.Logger) *CatalogHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogHandler{
		catalog:  catalog,
		session:  session,
		renderer: renderer,
		logger:   logger,
	}
}

// ListCompanies は企業一覧を表示する。
// GET /companies?nameLike=xxx
func (h *CatalogHandler) ListCompanies(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("nameLike"))

	companies, err := h.catalog.ListCompanies(r.Context(), query)
	if err != nil {
		h.renderer.RenderError(w, r, err)
		return
	}

	h.renderer.Render(w, r, http.StatusOK, "companies", Page{
		Title: "Companies",
		Data:  companiesPage{Query: query, Companies: companies},
	})
}

// GetCompany は企業詳細と求人一覧を表示する。
// GET /companies/{handle}
func (h *CatalogHandler) GetCompany(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "handle")

	company, err := h.catalog.GetCompany(r.Context(), handle)
	if err != nil {
		h.renderer.RenderError(w, r, err)
		return
	}

	h.renderer.Render(w, r, http.StatusOK, "company", Page{
		Title: company.Name,
		Data: companyPage{
			Company:  company,
			Jobs:     h.jobViews(r, company.Jobs),
			ReturnTo: r.URL.RequestURI(),
		},
	})
}

// ListJobs は求人一覧を表示する。
// GET /jobs?title=xxx
func (h *CatalogHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("title"))

	jobs, err := h.catalog.ListJobs(r.Context(), query)
	if err != nil {
		h.renderer.RenderError(w, r, err)
		return
	}

	h.renderer.Render(w, r, http.StatusOK, "jobs", Page{
		Title: "Jobs",
		Data: jobsPage{
			Query:    query,
			Jobs:     h.jobViews(r, jobs),
			ReturnTo: r.URL.RequestURI(),
		},
	})
}

// ApplyToJob は求人に応募し、応募元のページへ戻る。
// POST /jobs/{id}/apply
func (h *CatalogHandler) ApplyToJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := ParseJobID(chi.URLParam(r, "id"))
	if err != nil {
		h.renderer.RenderMessages(w, r, http.StatusBadRequest, []string{"Invalid job id."})
		return
	}

	// 二重送信はリモートへ送らずに戻す
	if h.session.HasAppliedToJob(jobID) {
		http.Redirect(w, r, guard.SafeNext(r.PostFormValue("next"), "/jobs"), http.StatusSeeOther)
		return
	}

	result := h.session.ApplyToJob(r.Context(), jobID)
	if !result.Success {
		h.renderer.RenderMessages(w, r, http.StatusUnprocessableEntity, result.Errors)
		return
	}

	http.Redirect(w, r, guard.SafeNext(r.PostFormValue("next"), "/jobs"), http.StatusSeeOther)
}

// jobViews はリクエスト時点のスナップショットから応募済みかどうかを付与する。
func (h *CatalogHandler) jobViews(r *http.Request, jobs []model.Job) []jobView {
	snap, ok := middleware.SnapshotFromContext(r.Context())
	if !ok {
		snap = h.session.Snapshot()
	}

	views := make([]jobView, len(jobs))
	for i, job := range jobs {
		views[i] = jobView{Job: job, Applied: snap.User.HasApplied(job.ID)}
	}
	return views
}
