// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"net/http"

	"github.com/hitoshi/jobly/internal/session"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// snapshotContextKey はリクエストコンテキストにセッションのスナップショットを格納するためのキー。
	snapshotContextKey = contextKey("session_snapshot")
	// csrfTokenContextKey はリクエストコンテキストにCSRFトークンを格納するためのキー。
	csrfTokenContextKey = contextKey("csrf_token")
)

// SessionReader はセッション状態の読み取りに必要なインターフェース。
// session.Managerの部分集合として定義する。
type SessionReader interface {
	Snapshot() session.Snapshot
}

// NewSessionMiddleware はリクエスト開始時点のセッションのスナップショットを
// リクエストコンテキストに注入するミドルウェアを返す。
// 1つのリクエストの処理中は同じスナップショットを参照するため、
// 途中でセッションが変わっても表示が食い違うことはない。
func NewSessionMiddleware(reader SessionReader) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := ContextWithSnapshot(r.Context(), reader.Snapshot())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SnapshotFromContext はリクエストコンテキストからセッションのスナップショットを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func SnapshotFromContext(ctx context.Context) (session.Snapshot, bool) {
	snap, ok := ctx.Value(snapshotContextKey).(session.Snapshot)
	return snap, ok
}

// ContextWithSnapshot はコンテキストにセッションのスナップショットを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithSnapshot(ctx context.Context, snap session.Snapshot) context.Context {
	return context.WithValue(ctx, snapshotContextKey, snap)
}

// UsernameFromContext はリクエストコンテキストからログイン中のユーザー名を取得する。
// 未ログインまたはセッションミドルウェアを通過していない場合は空文字列。
func UsernameFromContext(ctx context.Context) string {
	snap, ok := SnapshotFromContext(ctx)
	if !ok {
		return ""
	}
	return snap.Username()
}
