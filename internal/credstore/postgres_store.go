package credstore

import (
	"context"
	"database/sql"
	"errors"
)

// PostgresStore はPostgreSQLのcredentialsテーブルにトークンを保存するStore。
// 1つのキーにつき1行のみを持つ。テーブルはdatabase.RunMigrationsで作成する。
type PostgresStore struct {
	db  *sql.DB
	key string
}

// NewPostgresStore はPostgresStoreを生成する。
func NewPostgresStore(db *sql.DB, key string) *PostgresStore {
	return &PostgresStore{db: db, key: key}
}

// Save はトークンをアップサートする。
func (s *PostgresStore) Save(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO credentials (key, token, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET token = EXCLUDED.token, updated_at = now()`,
		s.key, token,
	)
	if err != nil {
		return &StorageError{Backend: "postgres", Op: "save", Err: err}
	}
	return nil
}

// Load はトークンを読み込む。行が無い場合は未保存として扱う。
func (s *PostgresStore) Load(ctx context.Context) (string, bool, error) {
	var token string
	err := s.db.QueryRowContext(ctx,
		`SELECT token FROM credentials WHERE key = $1`,
		s.key,
	).Scan(&token)

	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, &StorageError{Backend: "postgres", Op: "load", Err: err}
	}
	return token, token != "", nil
}

// Clear は行を削除する。
func (s *PostgresStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM credentials WHERE key = $1`,
		s.key,
	)
	if err != nil {
		return &StorageError{Backend: "postgres", Op: "clear", Err: err}
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
