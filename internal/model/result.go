package model

// OperationResult は状態を変更する全てのセッション操作が呼び出し元に返す統一形式。
// フォームはErrorsをそのままアラート一覧として表示する。
type OperationResult struct {
	Success bool
	Errors  []string
}

// Succeeded は成功結果を返す。
func Succeeded() OperationResult {
	return OperationResult{Success: true, Errors: []string{}}
}

// Failed は失敗結果を返す。
func Failed(errs ...string) OperationResult {
	if errs == nil {
		errs = []string{}
	}
	return OperationResult{Success: false, Errors: errs}
}

// FailedWith はエラーを表示用メッセージに変換した失敗結果を返す。
func FailedWith(err error) OperationResult {
	return Failed(Messages(err)...)
}
