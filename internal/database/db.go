package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Open はPostgreSQL認証情報ストア用の接続プールを開く。
// CREDENTIAL_STORE=postgres のとき、serve・logout・migrateから使用する。
// 起動時の読み込みとログイン・ログアウト時の書き込みしか行わないため、プールは最小限にする。
// sql.Openは接続を試行しないため、実際の接続確認にはdb.PingContext()を使用すること。
func Open(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	// アイドル中にDB側で切断された接続をログアウト時に掴まないようにする
	db.SetConnMaxIdleTime(5 * time.Minute)

	return db, nil
}
