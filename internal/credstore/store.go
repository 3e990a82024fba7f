// Package credstore はJobly APIのBearerトークンを再起動をまたいで永続化する。
//
// 保存するのは不透明なトークン文字列1つのみで、スキーマのバージョン管理は行わない。
// バックエンドはファイル、メモリ、Redis、PostgreSQLから選択する。
package credstore

import (
	"context"
	"fmt"
	"sync"
)

// Store は認証情報ストアのインターフェース。
type Store interface {
	// Save はトークンを永続化する。既存の値は上書きする。
	Save(ctx context.Context, token string) error
	// Load は保存済みトークンを返す。未保存の場合はokがfalseになる。
	Load(ctx context.Context) (token string, ok bool, err error)
	// Clear はトークンを削除する。未保存の状態で呼んでもエラーにしない。
	Clear(ctx context.Context) error
}

// StorageError は永続化媒体が利用できない場合のエラー。
// 致命的ではなく、呼び出し元はメモリ上のセッションのみで動作を継続する。
type StorageError struct {
	Backend string
	Op      string
	Err     error
}

// Error はerrorインターフェースを実装する。
func (e *StorageError) Error() string {
	return fmt.Sprintf("credential store (%s) %s failed: %v", e.Backend, e.Op, e.Err)
}

// Unwrap は元のエラーを返す。
func (e *StorageError) Unwrap() error {
	return e.Err
}

// MemoryStore はプロセス内のみでトークンを保持するStore。
// 永続化を無効にした場合とテストで使う。
type MemoryStore struct {
	mu    sync.Mutex
	token string
	set   bool
}

// NewMemoryStore はMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Save はトークンを保持する。
func (s *MemoryStore) Save(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.set = true
	return nil
}

// Load は保持中のトークンを返す。
func (s *MemoryStore) Load(_ context.Context) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, s.set, nil
}

// Clear は保持中のトークンを破棄する。
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.set = false
	return nil
}

var _ Store = (*MemoryStore)(nil)
