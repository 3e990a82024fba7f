package model

import (
	"errors"
	"fmt"
)

// ユーザーに表示する定型メッセージ
const (
	UnauthenticatedMessage = "You must be logged in to do that."
	NetworkErrorMessage    = "Network error - please try again"
	ServerErrorMessage     = "Something went wrong on our end. Please try again later."
)

// UnauthenticatedError は認証が必要な操作をトークンなしで実行しようとした場合のエラー。
// ルートガードを通過していれば発生しないため、UI側のフロー誤りを示す。
type UnauthenticatedError struct {
	Operation string
}

// Error はerrorインターフェースを実装する。
func (e *UnauthenticatedError) Error() string {
	if e.Operation == "" {
		return "unauthenticated"
	}
	return fmt.Sprintf("unauthenticated: %s", e.Operation)
}

// NetworkError はレスポンスを受信できなかった通信エラー（タイムアウトを含む）。
// 再送信で回復しうる。
type NetworkError struct {
	Err error
}

// Error はerrorインターフェースを実装する。
func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

// Unwrap は元のエラーを返す。
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// RemoteRejectedError はリモートAPIが4xxで拒否した場合のエラー。
// Errorsはフォームにそのまま表示する。自動リトライはしない。
type RemoteRejectedError struct {
	Status int
	Errors []string
}

// Error はerrorインターフェースを実装する。
func (e *RemoteRejectedError) Error() string {
	return fmt.Sprintf("remote rejected (%d): %v", e.Status, e.Errors)
}

// ServerError はリモートAPIが5xxを返した場合のエラー。
// バリデーション失敗としては扱わず、汎用メッセージのみ表示する。
type ServerError struct {
	Status int
	Detail string
}

// Error はerrorインターフェースを実装する。
func (e *ServerError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("server error (%d)", e.Status)
	}
	return fmt.Sprintf("server error (%d): %s", e.Status, e.Detail)
}

// Messages はエラーをフォーム表示用のメッセージ一覧に変換する。
// 生の通信エラーの内容は表示しない。
func Messages(err error) []string {
	if err == nil {
		return []string{}
	}

	var rejected *RemoteRejectedError
	if errors.As(err, &rejected) {
		if len(rejected.Errors) == 0 {
			return []string{"Request was rejected."}
		}
		out := make([]string, len(rejected.Errors))
		copy(out, rejected.Errors)
		return out
	}

	var unauth *UnauthenticatedError
	if errors.As(err, &unauth) {
		return []string{UnauthenticatedMessage}
	}

	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return []string{NetworkErrorMessage}
	}

	return []string{ServerErrorMessage}
}
