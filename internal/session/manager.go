// Package session はアプリケーション全体で1つのログインセッションを管理する。
//
// Managerはセッション状態の唯一の書き込み手で、ログイン・サインアップ・プロフィール更新・
// ログアウト・求人応募を調停し、起動時には保存済みトークンから状態を復元する。
// 他のコンポーネントはSnapshotとSubscribeを通じて状態を読むだけにする。
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/hitoshi/jobly/internal/apiclient"
	"github.com/hitoshi/jobly/internal/credstore"
	"github.com/hitoshi/jobly/internal/metrics"
	"github.com/hitoshi/jobly/internal/model"
)

// ErrAlreadyInitialized はInitializeを2回以上呼んだ場合のエラー。
var ErrAlreadyInitialized = errors.New("session: already initialized")

// ProfileOwnershipMessage は他人のプロフィールを更新しようとした場合のメッセージ。
const ProfileOwnershipMessage = "You can only update your own profile."

// Gateway はManagerが必要とするJobly APIの操作。
// apiclient.Clientの部分集合として定義する。
type Gateway interface {
	SetToken(token string)
	Authenticate(ctx context.Context, creds model.Credentials) (string, error)
	Register(ctx context.Context, reg model.Registration) (string, error)
	GetUser(ctx context.Context, username string) (*model.User, error)
	GetUserWithToken(ctx context.Context, token, username string) (*model.User, error)
	SaveProfile(ctx context.Context, username string, patch model.ProfilePatch) (*model.User, error)
	ApplyToJob(ctx context.Context, username string, jobID int) error
}

var _ Gateway = (*apiclient.Client)(nil)

// Manager はセッションマネージャー。
//
// 通信はロックの外で行い、状態の反映（ゲートウェイのトークン、認証情報ストア、メモリ上の状態）は
// applyMuで直列化して一度に行う。読み取り側が途中状態を観測することはない。
// 同時に複数のLoginを呼んだ場合の調停は行わない（UI側で再送信を防ぐこと）。
type Manager struct {
	gateway           Gateway
	store             credstore.Store
	logger            *slog.Logger
	metrics           metrics.MetricsCollector
	usernameFromToken func(token string) (string, error)

	applyMu sync.Mutex

	mu          sync.RWMutex
	status      model.Status
	user        *model.User
	token       string
	version     uint64
	initStarted bool

	subMu       sync.Mutex
	subscribers map[uint64]func(Snapshot)
	nextSubID   uint64
}

// NewManager はStatusInitializingのManagerを生成する。
func NewManager(gateway Gateway, store credstore.Store, logger *slog.Logger, collector metrics.MetricsCollector) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if collector == nil {
		collector = metrics.Noop{}
	}
	return &Manager{
		gateway:           gateway,
		store:             store,
		logger:            logger,
		metrics:           collector,
		usernameFromToken: apiclient.UsernameFromToken,
		status:            model.StatusInitializing,
		subscribers:       make(map[uint64]func(Snapshot)),
	}
}

// Initialize は起動時に1回だけ呼び、保存済みトークンからセッションを復元する。
// トークンが無い、または無効な場合はStatusAnonymousになる。
// 期限切れトークンは想定内のため、復元の失敗はエラーとして返さない。
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	if m.initStarted {
		m.mu.Unlock()
		return ErrAlreadyInitialized
	}
	m.initStarted = true
	startVersion := m.version
	m.mu.Unlock()

	token, ok, err := m.store.Load(ctx)
	if err != nil {
		m.metrics.RecordCredentialStoreError("load")
		m.logger.Warn("failed to load stored credential; starting anonymous",
			slog.String("error", err.Error()),
		)
		m.applyIfUnchanged(startVersion, func() {
			m.commit(model.StatusAnonymous, nil, "")
		})
		return nil
	}

	if !ok {
		m.applyIfUnchanged(startVersion, func() {
			m.commit(model.StatusAnonymous, nil, "")
		})
		return nil
	}

	user, err := m.fetchProfile(ctx, token)
	if err != nil {
		m.logger.Info("stored credential rejected; starting anonymous",
			slog.String("error", err.Error()),
		)
		m.applyIfUnchanged(startVersion, func() {
			m.gateway.SetToken("")
			m.clearStore(ctx)
			m.commit(model.StatusAnonymous, nil, "")
		})
		return nil
	}

	m.applyIfUnchanged(startVersion, func() {
		m.gateway.SetToken(token)
		m.commit(model.StatusAuthenticated, user, token)
	})
	return nil
}

// Login は認証してセッションを確立する。
// トークンとプロフィールの両方を取得できた場合のみ状態を変更する。
func (m *Manager) Login(ctx context.Context, creds model.Credentials) model.OperationResult {
	token, err := m.gateway.Authenticate(ctx, creds)
	if err != nil {
		m.logger.Info("login failed",
			slog.String("username", creds.Username),
			slog.String("error", err.Error()),
		)
		return model.FailedWith(err)
	}
	return m.establish(ctx, token, "login")
}

// Signup は新規アカウントを登録し、ログインと同様にセッションを確立する。
func (m *Manager) Signup(ctx context.Context, reg model.Registration) model.OperationResult {
	token, err := m.gateway.Register(ctx, reg)
	if err != nil {
		m.logger.Info("signup failed",
			slog.String("username", reg.Username),
			slog.String("error", err.Error()),
		)
		return model.FailedWith(err)
	}
	return m.establish(ctx, token, "signup")
}

// establish は取得したトークンでプロフィールを取得し、成功した場合のみセッションに反映する。
func (m *Manager) establish(ctx context.Context, token, via string) model.OperationResult {
	user, err := m.fetchProfile(ctx, token)
	if err != nil {
		m.logger.Warn("failed to load profile after "+via,
			slog.String("error", err.Error()),
		)
		return model.FailedWith(err)
	}

	m.apply(func() {
		m.gateway.SetToken(token)
		if err := m.store.Save(ctx, token); err != nil {
			// 永続化できなくてもこのプロセスの間はログイン状態を維持する
			m.metrics.RecordCredentialStoreError("save")
			m.logger.Warn("failed to persist credential; session will not survive restart",
				slog.String("error", err.Error()),
			)
		}
		m.commit(model.StatusAuthenticated, user, token)
	})

	return model.Succeeded()
}

// UpdateProfile はプロフィールを更新し、リモートが返した正規のレコードでcurrentUserを置き換える。
// 失敗時はcurrentUserを変更しない。statusとtokenは変更しない。
func (m *Manager) UpdateProfile(ctx context.Context, username string, patch model.ProfilePatch) model.OperationResult {
	m.mu.RLock()
	status, current, token := m.status, m.user, m.token
	m.mu.RUnlock()

	if status != model.StatusAuthenticated {
		return model.FailedWith(&model.UnauthenticatedError{Operation: "update profile"})
	}
	if username != current.Username {
		return model.Failed(ProfileOwnershipMessage)
	}

	updated, err := m.gateway.SaveProfile(ctx, username, patch)
	if err != nil {
		return model.FailedWith(err)
	}

	m.apply(func() {
		// 通信中にログアウトや別ユーザーでのログインがあった場合は反映しない
		if m.token != token || m.user == nil {
			return
		}
		if updated.AppliedJobIDs == nil {
			updated.AppliedJobIDs = m.user.Clone().AppliedJobIDs
		}
		m.commit(model.StatusAuthenticated, updated, m.token)
	})

	return model.Succeeded()
}

// Logout はセッションを破棄する。通信は行わず、常に成功する。
func (m *Manager) Logout(ctx context.Context) model.OperationResult {
	m.apply(func() {
		m.gateway.SetToken("")
		m.clearStore(ctx)
		m.commit(model.StatusAnonymous, nil, "")
	})
	return model.Succeeded()
}

// HasAppliedToJob は応募済みの求人かどうかを返す。未ログインの場合はfalse。
func (m *Manager) HasAppliedToJob(jobID int) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.user.HasApplied(jobID)
}

// ApplyToJob は求人に応募する。リモートが成功を返した後にのみ応募済み一覧へ追加する。
func (m *Manager) ApplyToJob(ctx context.Context, jobID int) model.OperationResult {
	m.mu.RLock()
	status, current, token := m.status, m.user, m.token
	m.mu.RUnlock()

	if status != model.StatusAuthenticated {
		return model.FailedWith(&model.UnauthenticatedError{Operation: "apply to job"})
	}
	if current.HasApplied(jobID) {
		return model.Succeeded()
	}

	if err := m.gateway.ApplyToJob(ctx, current.Username, jobID); err != nil {
		m.logger.Info("job application failed",
			slog.String("username", current.Username),
			slog.Int("job_id", jobID),
			slog.String("error", err.Error()),
		)
		return model.FailedWith(err)
	}

	m.apply(func() {
		if m.token != token || m.user == nil {
			return
		}
		next := m.user.Clone()
		next.AppliedJobIDs[jobID] = struct{}{}
		m.commit(model.StatusAuthenticated, next, m.token)
	})

	return model.Succeeded()
}

// Refresh はリモートからcurrentUserを再取得する。失敗時は状態を変更しない。
func (m *Manager) Refresh(ctx context.Context) model.OperationResult {
	m.mu.RLock()
	status, current, token := m.status, m.user, m.token
	m.mu.RUnlock()

	if status != model.StatusAuthenticated {
		return model.FailedWith(&model.UnauthenticatedError{Operation: "refresh profile"})
	}

	user, err := m.gateway.GetUser(ctx, current.Username)
	if err != nil {
		return model.FailedWith(err)
	}

	m.apply(func() {
		if m.token != token || m.user == nil {
			return
		}
		m.commit(model.StatusAuthenticated, user, m.token)
	})

	return model.Succeeded()
}

// Status は現在のセッション状態を返す。
func (m *Manager) Status() model.Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Snapshot は現在のセッション状態の読み取り専用コピーを返す。
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

// Subscribe は状態変更の通知を受け取るリスナーを登録し、登録解除関数を返す。
// リスナーは変更が反映された後に新しいSnapshotを受け取る。
// リスナーの中からManagerの更新系操作を呼んではならない。
func (m *Manager) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	m.subMu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.subscribers[id] = fn
	m.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.subMu.Lock()
			delete(m.subscribers, id)
			m.subMu.Unlock()
		})
	}
}

func (m *Manager) fetchProfile(ctx context.Context, token string) (*model.User, error) {
	username, err := m.usernameFromToken(token)
	if err != nil {
		return nil, err
	}
	return m.gateway.GetUserWithToken(ctx, token, username)
}

func (m *Manager) clearStore(ctx context.Context) {
	if err := m.store.Clear(ctx); err != nil {
		m.metrics.RecordCredentialStoreError("clear")
		m.logger.Warn("failed to clear stored credential",
			slog.String("error", err.Error()),
		)
	}
}

// apply は状態反映を直列化して実行する。
func (m *Manager) apply(fn func()) {
	m.applyMu.Lock()
	defer m.applyMu.Unlock()
	fn()
}

// applyIfUnchanged は起動時の復元中に他の操作が状態を変更していない場合のみfnを実行する。
func (m *Manager) applyIfUnchanged(version uint64, fn func()) {
	m.applyMu.Lock()
	defer m.applyMu.Unlock()

	m.mu.RLock()
	changed := m.version != version
	m.mu.RUnlock()
	if changed {
		m.logger.Debug("session changed during rehydration; discarding rehydration result")
		return
	}
	fn()
}

// commit は状態を一度に置き換え、購読者へ通知する。applyMuを保持した状態で呼ぶこと。
func (m *Manager) commit(status model.Status, user *model.User, token string) {
	m.mu.Lock()
	from := m.status
	unchanged := from == status && m.user == nil && user == nil
	m.status = status
	m.user = user
	m.token = token
	m.version++
	snap := m.snapshotLocked()
	m.mu.Unlock()

	if unchanged {
		return
	}

	if from != status {
		m.metrics.RecordSessionTransition(string(from), string(status))
		m.metrics.SetAuthenticated(status == model.StatusAuthenticated)
		m.logger.Info("session status changed",
			slog.String("from", string(from)),
			slog.String("to", string(status)),
			slog.String("username", snap.Username()),
		)
	}

	m.notify(snap)
}

func (m *Manager) notify(snap Snapshot) {
	m.subMu.Lock()
	listeners := make([]func(Snapshot), 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		listeners = append(listeners, fn)
	}
	m.subMu.Unlock()

	for _, fn := range listeners {
		// リスナーごとにUserのコピーを渡す
		fn(Snapshot{Status: snap.Status, User: snap.User.Clone(), HasToken: snap.HasToken})
	}
}

func (m *Manager) snapshotLocked() Snapshot {
	return Snapshot{
		Status:   m.status,
		User:     m.user.Clone(),
		HasToken: m.token != "",
	}
}
