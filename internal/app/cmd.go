package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はWebシェルのサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandMigrate は認証情報ストア用のデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandLogout は保存済みの認証情報を削除することを示す。
	// サーバーを起動せずにログアウト状態へ戻す運用用コマンド。
	CommandLogout Command = "logout"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "serve":
		return CommandServe
	case "migrate":
		return CommandMigrate
	case "logout":
		return CommandLogout
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandServe
	}
}
