package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hitoshi/jobly/internal/model"
)

// tokenResponse は /auth/token と /auth/register のレスポンス。
type tokenResponse struct {
	Token string `json:"token"`
}

// userDTO はJobly APIのユーザー表現。
// PATCHのレスポンスにはapplicationsが含まれないため、ポインタで有無を区別する。
type userDTO struct {
	Username     string `json:"username"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	Email        string `json:"email"`
	IsAdmin      bool   `json:"isAdmin"`
	Applications *[]int `json:"applications"`
}

type userResponse struct {
	User *userDTO `json:"user"`
}

type jobDTO struct {
	ID            int    `json:"id"`
	Title         string `json:"title"`
	Salary        *int   `json:"salary"`
	Equity        string `json:"equity"`
	CompanyHandle string `json:"companyHandle"`
	CompanyName   string `json:"companyName"`
}

type companyDTO struct {
	Handle       string   `json:"handle"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	NumEmployees *int     `json:"numEmployees"`
	LogoURL      string   `json:"logoUrl"`
	Jobs         []jobDTO `json:"jobs"`
}

// profilePatchBody はPATCH /users/{username} のリクエストボディ。未指定の項目は送らない。
type profilePatchBody struct {
	FirstName *string `json:"firstName,omitempty"`
	LastName  *string `json:"lastName,omitempty"`
	Email     *string `json:"email,omitempty"`
	Password  *string `json:"password,omitempty"`
}

// ErrMalformedResponse はレスポンスに必要な項目が欠けている場合のエラー。
var ErrMalformedResponse = errors.New("malformed response from jobly api")

// Authenticate はユーザー名とパスワードでトークンを取得する。
// POST /auth/token
func (c *Client) Authenticate(ctx context.Context, creds model.Credentials) (string, error) {
	var resp tokenResponse
	body := map[string]string{
		"username": creds.Username,
		"password": creds.Password,
	}
	if err := c.Request(ctx, http.MethodPost, "/auth/token", body, false, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", fmt.Errorf("authenticate: %w", ErrMalformedResponse)
	}
	return resp.Token, nil
}

// Register は新規アカウントを登録してトークンを取得する。
// POST /auth/register
func (c *Client) Register(ctx context.Context, reg model.Registration) (string, error) {
	var resp tokenResponse
	body := map[string]string{
		"username":  reg.Username,
		"password":  reg.Password,
		"firstName": reg.FirstName,
		"lastName":  reg.LastName,
		"email":     reg.Email,
	}
	if err := c.Request(ctx, http.MethodPost, "/auth/register", body, false, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", fmt.Errorf("register: %w", ErrMalformedResponse)
	}
	return resp.Token, nil
}

// GetUser は現在のトークンでユーザー情報（応募済み求人を含む）を取得する。
// GET /users/{username}
func (c *Client) GetUser(ctx context.Context, username string) (*model.User, error) {
	var resp userResponse
	if err := c.Request(ctx, http.MethodGet, "/users/"+url.PathEscape(username), nil, true, &resp); err != nil {
		return nil, err
	}
	if resp.User == nil || resp.User.Username == "" {
		return nil, fmt.Errorf("get user: %w", ErrMalformedResponse)
	}
	return resp.User.toModel(), nil
}

// GetUserWithToken は設定済みトークンを変更せず、指定トークンでユーザー情報を取得する。
// セッション確立前のプロフィール取得に使う。
func (c *Client) GetUserWithToken(ctx context.Context, token, username string) (*model.User, error) {
	return c.withToken(token).GetUser(ctx, username)
}

// SaveProfile はプロフィールを更新し、リモートが返した正規のユーザー情報を返す。
// レスポンスにapplicationsが無い場合、AppliedJobIDsはnilになる。
// PATCH /users/{username}
func (c *Client) SaveProfile(ctx context.Context, username string, patch model.ProfilePatch) (*model.User, error) {
	body := profilePatchBody{
		FirstName: patch.FirstName,
		LastName:  patch.LastName,
		Email:     patch.Email,
		Password:  patch.Password,
	}
	var resp userResponse
	if err := c.Request(ctx, http.MethodPatch, "/users/"+url.PathEscape(username), body, true, &resp); err != nil {
		return nil, err
	}
	if resp.User == nil || resp.User.Username == "" {
		return nil, fmt.Errorf("save profile: %w", ErrMalformedResponse)
	}
	return resp.User.toModel(), nil
}

// ApplyToJob は求人に応募する。同じ求人への再応募はリモート側で冪等に扱われる。
// POST /users/{username}/jobs/{id}
func (c *Client) ApplyToJob(ctx context.Context, username string, jobID int) error {
	path := fmt.Sprintf("/users/%s/jobs/%d", url.PathEscape(username), jobID)
	return c.Request(ctx, http.MethodPost, path, nil, true, nil)
}

// ListCompanies は企業一覧を取得する。nameLikeが空でなければ名前で絞り込む。
// GET /companies
func (c *Client) ListCompanies(ctx context.Context, nameLike string) ([]model.Company, error) {
	path := "/companies"
	if nameLike != "" {
		path += "?" + url.Values{"nameLike": {nameLike}}.Encode()
	}
	var resp struct {
		Companies []companyDTO `json:"companies"`
	}
	if err := c.Request(ctx, http.MethodGet, path, nil, c.Token() != "", &resp); err != nil {
		return nil, err
	}
	out := make([]model.Company, 0, len(resp.Companies))
	for _, dto := range resp.Companies {
		out = append(out, dto.toModel())
	}
	return out, nil
}

// GetCompany は企業の詳細と求人一覧を取得する。
// GET /companies/{handle}
func (c *Client) GetCompany(ctx context.Context, handle string) (*model.Company, error) {
	var resp struct {
		Company *companyDTO `json:"company"`
	}
	if err := c.Request(ctx, http.MethodGet, "/companies/"+url.PathEscape(handle), nil, c.Token() != "", &resp); err != nil {
		return nil, err
	}
	if resp.Company == nil {
		return nil, fmt.Errorf("get company: %w", ErrMalformedResponse)
	}
	company := resp.Company.toModel()
	return &company, nil
}

// ListJobs は求人一覧を取得する。titleが空でなければタイトルで絞り込む。
// GET /jobs
func (c *Client) ListJobs(ctx context.Context, title string) ([]model.Job, error) {
	path := "/jobs"
	if title != "" {
		path += "?" + url.Values{"title": {title}}.Encode()
	}
	var resp struct {
		Jobs []jobDTO `json:"jobs"`
	}
	if err := c.Request(ctx, http.MethodGet, path, nil, c.Token() != "", &resp); err != nil {
		return nil, err
	}
	out := make([]model.Job, 0, len(resp.Jobs))
	for _, dto := range resp.Jobs {
		out = append(out, dto.toModel())
	}
	return out, nil
}

// UsernameFromToken はトークンのusernameクレームを取り出す。
// 署名の検証はリモートが行うため、ここでは検証しない。
func UsernameFromToken(token string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}
	username, ok := claims["username"].(string)
	if !ok || username == "" {
		return "", errors.New("token has no username claim")
	}
	return username, nil
}

func (d *userDTO) toModel() *model.User {
	u := &model.User{
		Username:  d.Username,
		FirstName: d.FirstName,
		LastName:  d.LastName,
		Email:     d.Email,
		IsAdmin:   d.IsAdmin,
	}
	if d.Applications != nil {
		u.AppliedJobIDs = make(map[int]struct{}, len(*d.Applications))
		for _, id := range *d.Applications {
			u.AppliedJobIDs[id] = struct{}{}
		}
	}
	return u
}

func (d jobDTO) toModel() model.Job {
	j := model.Job{
		ID:            d.ID,
		Title:         d.Title,
		Equity:        d.Equity,
		CompanyHandle: d.CompanyHandle,
		CompanyName:   d.CompanyName,
	}
	if d.Salary != nil {
		j.Salary = *d.Salary
	}
	return j
}

func (d companyDTO) toModel() model.Company {
	c := model.Company{
		Handle:      d.Handle,
		Name:        d.Name,
		Description: d.Description,
		LogoURL:     d.LogoURL,
	}
	if d.NumEmployees != nil {
		c.NumEmployees = *d.NumEmployees
	}
	for _, j := range d.Jobs {
		c.Jobs = append(c.Jobs, j.toModel())
	}
	return c
}
