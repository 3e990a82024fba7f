package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hitoshi/jobly/internal/model"
)

// ErrorResponseBody はJSONエラーレスポンスの統一フォーマット。
// errorsはフォームのアラート一覧と同じメッセージ列。
type ErrorResponseBody struct {
	Code   string   `json:"code"`
	Errors []string `json:"errors"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, code string, messages ...string) {
	if messages == nil {
		messages = []string{}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:   code,
		Errors: messages,
	})
}

// StatusForError はゲートウェイのエラー種別に対応するHTTPステータスコードとエラーコードを返す。
//   - 未認証: 401
//   - リモートの拒否: リモートが返した4xx
//   - 通信エラー・サーバーエラー: 502
//   - その他: 500
func StatusForError(err error) (int, string) {
	var (
		unauth   *model.UnauthenticatedError
		rejected *model.RemoteRejectedError
		network  *model.NetworkError
		server   *model.ServerError
	)

	switch {
	case errors.As(err, &unauth):
		return http.StatusUnauthorized, "UNAUTHENTICATED"
	case errors.As(err, &rejected):
		if rejected.Status < 400 || rejected.Status > 499 {
			return http.StatusBadRequest, "REMOTE_REJECTED"
		}
		return rejected.Status, "REMOTE_REJECTED"
	case errors.As(err, &network):
		return http.StatusBadGateway, "NETWORK_ERROR"
	case errors.As(err, &server):
		return http.StatusBadGateway, "UPSTREAM_ERROR"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

// WriteError はエラー種別に応じたステータスコードで統一エラーレスポンスを書き込む。
func WriteError(w http.ResponseWriter, err error) {
	status, code := StatusForError(err)
	WriteErrorResponse(w, status, code, model.Messages(err)...)
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, "INTERNAL_ERROR", model.ServerErrorMessage)
}
