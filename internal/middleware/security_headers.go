package middleware

import (
	"net/http"
	"strings"
)

// contentSecurityPolicy はスクリプト・フォーム送信先を同一オリジンに限定する。
// セッション変化を購読するスクリプトは/assets/から配信し、インラインスクリプトは許可しない。
const contentSecurityPolicy = "default-src 'self'; frame-ancestors 'none'; form-action 'self'; base-uri 'none'"

// NewSecurityHeadersMiddleware はセキュリティ関連のHTTPレスポンスヘッダーを付与するミドルウェアを返す。
// ページとAPIの応答はログイン中ユーザーの情報を含むため、/assets/以外はキャッシュさせない。
// ログアウト後にブラウザの戻る操作で前のユーザーのプロフィールが表示されないようにする。
func NewSecurityHeadersMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "same-origin")
			h.Set("Content-Security-Policy", contentSecurityPolicy)
			if !strings.HasPrefix(r.URL.Path, "/assets/") {
				h.Set("Cache-Control", "no-store")
			}
			next.ServeHTTP(w, r)
		})
	}
}
