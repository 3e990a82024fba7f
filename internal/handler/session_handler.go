package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/hitoshi/jobly/internal/session"
)

// defaultHeartbeatInterval はセッションイベントストリームのハートビート間隔。
const defaultHeartbeatInterval = 25 * time.Second

// sessionEventName はセッション状態の変化を通知するSSEイベント名。
const sessionEventName = "session"

// userResponse はセッションAPIのユーザー表現。
type userResponse struct {
	Username     string `json:"username"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	Email        string `json:"email"`
	IsAdmin      bool   `json:"isAdmin"`
	Applications []int  `json:"applications"`
}

// sessionResponse はセッションAPIの応答。
type sessionResponse struct {
	Status        string        `json:"status"`
	Authenticated bool          `json:"authenticated"`
	User          *userResponse `json:"user"`
}

func toSessionResponse(snap session.Snapshot) sessionResponse {
	resp := sessionResponse{
		Status:        string(snap.Status),
		Authenticated: snap.Authenticated(),
	}
	if snap.User != nil {
		apps := make([]int, 0, len(snap.User.AppliedJobIDs))
		for id := range snap.User.AppliedJobIDs {
			apps = append(apps, id)
		}
		slices.Sort(apps)
		resp.User = &userResponse{
			Username:     snap.User.Username,
			FirstName:    snap.User.FirstName,
			LastName:     snap.User.LastName,
			Email:        snap.User.Email,
			IsAdmin:      snap.User.IsAdmin,
			Applications: apps,
		}
	}
	return resp
}

// SessionHandler はセッション状態の参照と変化の購読を提供する。
type SessionHandler struct {
	session   SessionService
	logger    *slog.Logger
	heartbeat time.Duration
}

// NewSessionHandler はSessionHandlerを生成する。
func NewSessionHandler(session SessionService, logger *slog.Logger) *SessionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionHandler{
		session:   session,
		logger:    logger,
		heartbeat: defaultHeartbeatInterval,
	}
}

// Get は現在のセッション状態をJSONで返す。
// GET /api/session
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	json.NewEncoder(w).Encode(toSessionResponse(h.session.Snapshot()))
}

// Events はセッション状態をServer-Sent Eventsで配信する。
// 接続直後に現在の状態を送り、以降は状態が変わるたびに最新の状態を送る。
// 送信が追いつかない場合は途中の状態を読み飛ばし、最新の状態のみを送る。
// GET /api/session/events
func (h *SessionHandler) Events(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	// サーバーのWriteTimeoutでストリームが切断されないようにする
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.logger.Warn("failed to clear write deadline", slog.String("error", err.Error()))
	}

	updates := make(chan session.Snapshot, 1)
	unsubscribe := h.session.Subscribe(func(snap session.Snapshot) {
		for {
			select {
			case updates <- snap:
				return
			default:
			}
			// 未送信の古い状態を捨てて最新の状態に置き換える
			select {
			case <-updates:
			default:
			}
		}
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := h.writeEvent(w, rc, h.session.Snapshot()); err != nil {
		return
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case snap := <-updates:
			if err := h.writeEvent(w, rc, snap); err != nil {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func (h *SessionHandler) writeEvent(w http.ResponseWriter, rc *http.ResponseController, snap session.Snapshot) error {
	data, err := json.Marshal(toSessionResponse(snap))
	if err != nil {
		h.logger.Error("failed to encode session event", slog.String("error", err.Error()))
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", sessionEventName, data); err != nil {
		return err
	}
	return rc.Flush()
}

// Health はプロセスの稼働状態とセッションの状態を返す。
// セッションの状態に関わらずプロセスが応答できれば200を返す。
// GET /health
func (h *SessionHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"session": string(h.session.Status()),
	})
}
