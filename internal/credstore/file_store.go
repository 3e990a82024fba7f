package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// fileContent はトークンファイルのJSON形式。キーは"token"の1つのみ。
type fileContent struct {
	Token string `json:"token"`
}

// FileStore はローカルファイルにトークンを保存するStore。
// 書き込みは一時ファイルからのrenameで行い、途中状態のファイルを残さない。
type FileStore struct {
	path string
}

// NewFileStore はFileStoreを生成する。
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path は保存先のパスを返す。
func (s *FileStore) Path() string {
	return s.path
}

// Save はトークンをファイルに書き込む。
func (s *FileStore) Save(_ context.Context, token string) error {
	data, err := json.Marshal(fileContent{Token: token})
	if err != nil {
		return s.fail("save", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return s.fail("save", err)
	}

	tmp, err := os.CreateTemp(dir, ".token-*")
	if err != nil {
		return s.fail("save", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return s.fail("save", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return s.fail("save", err)
	}
	if err := tmp.Close(); err != nil {
		return s.fail("save", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return s.fail("save", err)
	}
	return nil
}

// Load はファイルからトークンを読み込む。ファイルが無い場合は未保存として扱う。
func (s *FileStore) Load(_ context.Context) (string, bool, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, s.fail("load", err)
	}

	var content fileContent
	if err := json.Unmarshal(data, &content); err != nil {
		return "", false, s.fail("load", fmt.Errorf("corrupt token file: %w", err))
	}
	if content.Token == "" {
		return "", false, nil
	}
	return content.Token, true, nil
}

// Clear はトークンファイルを削除する。
func (s *FileStore) Clear(_ context.Context) error {
	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return s.fail("clear", err)
	}
	return nil
}

func (s *FileStore) fail(op string, err error) error {
	return &StorageError{Backend: "file", Op: op, Err: err}
}

var _ Store = (*FileStore)(nil)
