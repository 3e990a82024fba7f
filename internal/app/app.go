package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/jobly/internal/apiclient"
	"github.com/hitoshi/jobly/internal/config"
	"github.com/hitoshi/jobly/internal/credstore"
	"github.com/hitoshi/jobly/internal/database"
	"github.com/hitoshi/jobly/internal/handler"
	"github.com/hitoshi/jobly/internal/logger"
	"github.com/hitoshi/jobly/internal/metrics"
	"github.com/hitoshi/jobly/internal/middleware"
	"github.com/hitoshi/jobly/internal/session"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "3000"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("api_url", cfg.APIBaseURL),
		slog.String("credential_store", cfg.CredentialStore),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandLogout:
		return runLogout(cfg)
	default:
		return runServe(cfg)
	}
}

// openStore は設定に応じた認証情報ストアを開く。
// 返されるclose関数はストアが保持する接続を閉じる。
func openStore(ctx context.Context, cfg *config.Config) (credstore.Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.CredentialStore {
	case config.CredentialStoreMemory:
		return credstore.NewMemoryStore(), noop, nil

	case config.CredentialStoreRedis:
		client, err := credstore.OpenRedis(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		slog.Info("redis connection established")
		return credstore.NewRedisStore(client, cfg.CredentialKey), client.Close, nil

	case config.CredentialStorePostgres:
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		slog.Info("database connection established")
		return credstore.NewPostgresStore(db, cfg.CredentialKey), db.Close, nil

	default:
		return credstore.NewFileStore(cfg.CredentialFile), noop, nil
	}
}

// storeOpenTimeout はserve起動時のストア接続確認の上限。
const storeOpenTimeout = 5 * time.Second

// openStoreOrMemory はserve用に認証情報ストアを開く。
// 接続できない場合は致命的エラーにせず、この実行中だけメモリ上のストアで継続する。
// その場合セッションは再起動をまたいで保持されない。
func openStoreOrMemory(ctx context.Context, cfg *config.Config, collector metrics.MetricsCollector) (credstore.Store, func() error) {
	openCtx, cancel := context.WithTimeout(ctx, storeOpenTimeout)
	defer cancel()

	store, closeStore, err := openStore(openCtx, cfg)
	if err != nil {
		collector.RecordCredentialStoreError("open")
		slog.Warn("credential store unavailable; falling back to in-memory store",
			slog.String("backend", cfg.CredentialStore),
			slog.String("error", err.Error()),
		)
		return credstore.NewMemoryStore(), func() error { return nil }
	}
	return store, closeStore
}

// server はserveモードで起動する構成要素をまとめたもの。
type server struct {
	http        *http.Server
	manager     *session.Manager
	rateLimiter *middleware.RateLimiter
}

// buildServer は全依存関係をワイヤリングしたHTTPサーバーを構築する。
// セッションはInitializing状態で返るため、呼び出し側でInitializeを開始すること。
// collectorはregに登録済みのものを渡す。
func buildServer(cfg *config.Config, store credstore.Store, reg *prometheus.Registry, collector metrics.MetricsCollector) (*server, error) {
	log := slog.Default()

	// 1. Jobly APIクライアント
	client := apiclient.NewClient(
		&http.Client{Timeout: cfg.APITimeout},
		log,
		collector,
		apiclient.Config{
			BaseURL:   cfg.APIBaseURL,
			RateLimit: rate.Limit(cfg.APIRateLimit),
			RateBurst: cfg.APIRateBurst,
		},
	)

	// 2. セッションマネージャー
	manager := session.NewManager(client, store, log, collector)

	// 3. ビュー
	renderer, err := handler.NewRenderer(log)
	if err != nil {
		return nil, err
	}

	// 4. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	router := handler.NewRouter(&handler.RouterDeps{
		Session:        manager,
		Catalog:        client,
		Renderer:       renderer,
		Logger:         log,
		LoginPath:      cfg.LoginPath,
		CSRFConfig:     middleware.CSRFConfig{CookieSecure: cfg.CookieSecure},
		RateLimiter:    rateLimiter,
		MetricsHandler: metrics.Handler(reg),
	})

	return &server{
		http: &http.Server{
			Addr:         ":" + cfg.ServerPort,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		manager:     manager,
		rateLimiter: rateLimiter,
	}, nil
}

// runServe はWebシェルのサーバーモードで起動する。
// 認証情報ストアを開き、保存済みトークンからのセッション復元を開始してからHTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. メトリクス
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	// 2. 認証情報ストア（接続できなければメモリ上で継続）
	store, closeStore := openStoreOrMemory(ctx, cfg, collector)
	defer closeStore()

	// 3. ワイヤリング
	srv, err := buildServer(cfg, store, reg, collector)
	if err != nil {
		return fmt.Errorf("failed to build server: %w", err)
	}
	defer srv.rateLimiter.Stop()

	// 4. セッション復元（完了まで保護ページはプレースホルダーを返す）
	go func() {
		if err := srv.manager.Initialize(ctx); err != nil {
			slog.Error("session initialization failed", slog.String("error", err.Error()))
		}
	}()

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting",
			slog.String("addr", srv.http.Addr),
		)
		if err := srv.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// CREDENTIAL_STORE=postgres のときのみ意味を持つ。
func runMigrate(cfg *config.Config) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("migration requires DATABASE_URL")
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runLogout は保存済みの認証情報を削除する。
// 次回のserve起動時はAnonymousから始まる。
func runLogout(cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open credential store: %w", err)
	}
	defer closeStore()

	if err := store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear stored credential: %w", err)
	}

	slog.Info("stored credential cleared")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
