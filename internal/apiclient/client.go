// Package apiclient はJobly APIへの全ての呼び出しを仲介するゲートウェイクライアントを提供する。
//
// 現在のトークンをBearer認証として付与し、通信エラー・検証エラー・サーバーエラーを
// model パッケージの統一エラー型に正規化する。セッションの管理は行わない。
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/jobly/internal/metrics"
	"github.com/hitoshi/jobly/internal/model"
	"golang.org/x/time/rate"
)

const (
	// defaultUserAgent はJobly APIへ送るUser-Agent。
	defaultUserAgent = "Jobly-Shell/1.0"
	// maxResponseSize はレスポンスボディの最大読み取りサイズ（1MB）。
	maxResponseSize = 1 << 20
)

// Config はクライアントの設定。
type Config struct {
	BaseURL   string
	RateLimit rate.Limit // 送信レート（req/sec）。0以下の場合は制限しない
	RateBurst int
	UserAgent string
}

// Client はJobly APIのゲートウェイクライアント。
// トークンはSetTokenでのみ変更され、以降のリクエストに反映される。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    metrics.MetricsCollector
	baseURL    string
	userAgent  string
	limiter    *rate.Limiter
	sanitizer  *messageSanitizer

	mu    sync.RWMutex
	token string
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, collector metrics.MetricsCollector, cfg Config) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	if collector == nil {
		collector = metrics.Noop{}
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	limit := cfg.RateLimit
	if limit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.RateBurst
	if burst < 1 {
		burst = 1
	}

	return &Client{
		httpClient: httpClient,
		logger:     logger,
		metrics:    collector,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:  cfg.UserAgent,
		limiter:    rate.NewLimiter(limit, burst),
		sanitizer:  newMessageSanitizer(),
	}
}

// SetToken は以降のリクエストで使うトークンを設定する。空文字列はトークンなしを表す。
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Token は現在のトークンを返す。
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// withToken は設定済みトークンの代わりにtokenを使うクライアントを返す。
// HTTPクライアントとレートリミッターは共有する。
func (c *Client) withToken(token string) *Client {
	return &Client{
		httpClient: c.httpClient,
		logger:     c.logger,
		metrics:    c.metrics,
		baseURL:    c.baseURL,
		userAgent:  c.userAgent,
		limiter:    c.limiter,
		sanitizer:  c.sanitizer,
		token:      token,
	}
}

// Request はJobly APIにリクエストを送信し、成功時はレスポンスをoutにデコードする。
// outがnilの場合はボディを読み捨てる。レスポンスの形の検証は呼び出し元が行う。
//
// 返すエラー:
//   - requiresAuthでトークン未設定: *model.UnauthenticatedError（通信は行わない）
//   - レスポンス未受信・タイムアウト: *model.NetworkError
//   - 4xx: *model.RemoteRejectedError
//   - 5xx: *model.ServerError
func (c *Client) Request(ctx context.Context, method, path string, body any, requiresAuth bool, out any) error {
	endpoint := endpointLabel(method, path)
	start := time.Now()

	token := c.Token()
	if requiresAuth && token == "" {
		c.metrics.RecordAPIRequest(endpoint, "unauthenticated", 0)
		return &model.UnauthenticatedError{Operation: method + " " + path}
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if requiresAuth {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		c.metrics.RecordAPIRequest(endpoint, "network_error", time.Since(start))
		return &model.NetworkError{Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RecordAPIRequest(endpoint, "network_error", time.Since(start))
		c.logger.Warn("jobly api request failed",
			slog.String("endpoint", endpoint),
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
		)
		return &model.NetworkError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		c.metrics.RecordAPIRequest(endpoint, "network_error", time.Since(start))
		return &model.NetworkError{Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	class := ClassifyHTTPStatus(resp.StatusCode)
	c.metrics.RecordAPIRequest(endpoint, class.outcomeLabel(), time.Since(start))

	switch class {
	case ResponseSuccess:
		if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
			return nil
		}
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode %s response: %w", endpoint, err)
		}
		return nil

	case ResponseRejected:
		msgs := c.sanitizer.extractMessages(resp.StatusCode, respBody)
		c.logger.Debug("jobly api rejected request",
			slog.String("endpoint", endpoint),
			slog.String("request_id", requestID),
			slog.Int("http_status", resp.StatusCode),
		)
		return &model.RemoteRejectedError{Status: resp.StatusCode, Errors: msgs}

	default:
		msgs := c.sanitizer.extractMessages(resp.StatusCode, respBody)
		c.logger.Error("jobly api returned server error",
			slog.String("endpoint", endpoint),
			slog.String("request_id", requestID),
			slog.Int("http_status", resp.StatusCode),
			slog.String("detail", strings.Join(msgs, "; ")),
		)
		return &model.ServerError{Status: resp.StatusCode, Detail: strings.Join(msgs, "; ")}
	}
}

// endpointLabel はメトリクスのカーディナリティを抑えるため、パスの先頭セグメントのみを使う。
func endpointLabel(method, path string) string {
	p := strings.TrimPrefix(path, "/")
	if i := strings.IndexAny(p, "/?"); i >= 0 {
		p = p[:i]
	}
	return method + " /" + p
}
