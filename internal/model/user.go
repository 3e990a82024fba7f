// Package model はドメインモデルを定義する。
package model

// Status はセッションの認証状態を表す。
type Status string

const (
	// StatusInitializing は起動直後、保存済みトークンからの復元が完了していない状態。
	StatusInitializing Status = "initializing"
	// StatusAuthenticated はログイン済みの状態。
	StatusAuthenticated Status = "authenticated"
	// StatusAnonymous は未ログインの状態。
	StatusAnonymous Status = "anonymous"
)

// User はログイン中のJoblyユーザーを表す。
// セッションマネージャーがリモートAPIの応答からのみ生成・更新する。
type User struct {
	Username      string
	FirstName     string
	LastName      string
	Email         string
	IsAdmin       bool
	AppliedJobIDs map[int]struct{}
}

// HasApplied は指定求人に応募済みかどうかを返す。
func (u *User) HasApplied(jobID int) bool {
	if u == nil {
		return false
	}
	_, ok := u.AppliedJobIDs[jobID]
	return ok
}

// Clone はAppliedJobIDsを含めたディープコピーを返す。
// 読み取り側にセッション内部の状態を書き換えさせないために使う。
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.AppliedJobIDs = make(map[int]struct{}, len(u.AppliedJobIDs))
	for id := range u.AppliedJobIDs {
		c.AppliedJobIDs[id] = struct{}{}
	}
	return &c
}

// Credentials はログインフォームの入力値。
type Credentials struct {
	Username string
	Password string
}

// Registration はサインアップフォームの入力値。
type Registration struct {
	Username  string
	Password  string
	FirstName string
	LastName  string
	Email     string
}

// ProfilePatch はプロフィール更新の差分。
// nilのフィールドは変更しない。Passwordは変更確認のためリモートAPIが要求する。
type ProfilePatch struct {
	FirstName *string
	LastName  *string
	Email     *string
	Password  *string
}
