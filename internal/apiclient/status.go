package apiclient

// ResponseClass はHTTPステータスコードに基づくレスポンスの分類。
type ResponseClass int

const (
	// ResponseSuccess は成功（2xx）。
	ResponseSuccess ResponseClass = iota
	// ResponseRejected はクライアント側の誤り（4xx）。フォームに表示する。
	ResponseRejected
	// ResponseServerError はリモート側の障害（5xx）。
	ResponseServerError
	// ResponseUnexpected はJobly APIが返さないはずのステータス（1xx/3xx）。
	ResponseUnexpected
)

// ClassifyHTTPStatus はHTTPステータスコードをレスポンス分類に変換する。
func ClassifyHTTPStatus(statusCode int) ResponseClass {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return ResponseSuccess
	case statusCode >= 400 && statusCode < 500:
		return ResponseRejected
	case statusCode >= 500:
		return ResponseServerError
	default:
		return ResponseUnexpected
	}
}

// outcomeLabel はメトリクス用の結果ラベルを返す。
func (c ResponseClass) outcomeLabel() string {
	switch c {
	case ResponseSuccess:
		return "success"
	case ResponseRejected:
		return "rejected"
	case ResponseServerError:
		return "server_error"
	default:
		return "unexpected"
	}
}
