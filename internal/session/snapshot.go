package session

import "github.com/hitoshi/jobly/internal/model"

// Snapshot はセッション状態の読み取り専用の射影。
// Userはコピーなので、受け取った側が変更してもセッションには影響しない。
//
// 常に Status == StatusAuthenticated ⇔ User != nil ⇔ HasToken が成り立つ。
type Snapshot struct {
	Status   model.Status
	User     *model.User
	HasToken bool
}

// Authenticated はログイン済みかどうかを返す。
func (s Snapshot) Authenticated() bool {
	return s.Status == model.StatusAuthenticated
}

// Username はログイン中のユーザー名を返す。未ログインの場合は空文字列。
func (s Snapshot) Username() string {
	if s.User == nil {
		return ""
	}
	return s.User.Username
}
