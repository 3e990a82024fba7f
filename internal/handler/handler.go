// Package handler はHTTPハンドラーとビューを提供する。
//
// ハンドラーはセッションの状態を読み取り、フォーム送信をsession.Managerの操作に変換する。
// 認証の仕組み自体には関与しない。
package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/hitoshi/jobly/internal/apiclient"
	"github.com/hitoshi/jobly/internal/model"
	"github.com/hitoshi/jobly/internal/session"
)

// SessionService はハンドラーが必要とするセッション操作。
// session.Managerの部分集合として定義する。
type SessionService interface {
	Snapshot() session.Snapshot
	Status() model.Status
	Subscribe(fn func(session.Snapshot)) (unsubscribe func())
	Login(ctx context.Context, creds model.Credentials) model.OperationResult
	Signup(ctx context.Context, reg model.Registration) model.OperationResult
	UpdateProfile(ctx context.Context, username string, patch model.ProfilePatch) model.OperationResult
	Logout(ctx context.Context) model.OperationResult
	HasAppliedToJob(jobID int) bool
	ApplyToJob(ctx context.Context, jobID int) model.OperationResult
}

// CatalogService は企業・求人の一覧表示に必要なJobly APIの操作。
// apiclient.Clientの部分集合として定義する。
type CatalogService interface {
	ListCompanies(ctx context.Context, nameLike string) ([]model.Company, error)
	GetCompany(ctx context.Context, handle string) (*model.Company, error)
	ListJobs(ctx context.Context, title string) ([]model.Job, error)
}

var (
	_ SessionService = (*session.Manager)(nil)
	_ CatalogService = (*apiclient.Client)(nil)
)

// ErrInvalidJobID は求人IDが正の整数でない場合のエラー。
var ErrInvalidJobID = errors.New("invalid job id")

// ParseJobID はURLパラメータの求人IDを解析する。
func ParseJobID(raw string) (int, error) {
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidJobID, raw)
	}
	return id, nil
}
