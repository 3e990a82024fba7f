package apiclient

import (
	"encoding/json"
	"html"
	"net/http"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// errorPayload はJobly APIのエラーレスポンス。
// {"errors": [...]} と {"error": {"message": ...}} の両方の形式を受け付ける。
type errorPayload struct {
	Errors  json.RawMessage `json:"errors"`
	Error   json.RawMessage `json:"error"`
	Message json.RawMessage `json:"message"`
}

// messageSanitizer はリモートから受け取ったメッセージからマークアップを除去する。
// bluemondayのStrictPolicyでタグを全て落とし、エスケープを戻してプレーンテキストにする。
type messageSanitizer struct {
	policy *bluemonday.Policy
}

func newMessageSanitizer() *messageSanitizer {
	return &messageSanitizer{policy: bluemonday.StrictPolicy()}
}

func (s *messageSanitizer) clean(msg string) string {
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(msg)))
}

// extractMessages はエラーレスポンスのボディからメッセージ一覧を取り出す。
// 単一メッセージは1要素のリストに昇格する。取り出せない場合はステータス文言を返す。
func (s *messageSanitizer) extractMessages(statusCode int, body []byte) []string {
	var raw []string

	var payload errorPayload
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, field := range []json.RawMessage{payload.Errors, payload.Error, payload.Message} {
			if msgs := decodeMessages(field); len(msgs) > 0 {
				raw = msgs
				break
			}
		}
	}

	out := make([]string, 0, len(raw))
	for _, m := range raw {
		if cleaned := s.clean(m); cleaned != "" {
			out = append(out, cleaned)
		}
	}

	if len(out) == 0 {
		if text := http.StatusText(statusCode); text != "" {
			return []string{text}
		}
		return []string{"Request failed"}
	}
	return out
}

// decodeMessages は文字列、文字列配列、messageフィールドを持つオブジェクトのいずれかを解釈する。
func decodeMessages(raw json.RawMessage) []string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		if single == "" {
			return nil
		}
		return []string{single}
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}

	var nested struct {
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(raw, &nested); err == nil {
		return decodeMessages(nested.Message)
	}

	return nil
}
