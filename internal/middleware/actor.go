// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/beetlebase/internal/model"
)

// UserIDHeader は上流のゲートウェイが認証済みユーザーIDを設定するヘッダー。
const UserIDHeader = "X-User-ID"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// userIDContextKey は操作主体（なりすまし中は対象ユーザー）のIDを格納するキー。
	userIDContextKey = contextKey("user_id")
	// actorContextKey はリクエストの実行者情報を格納するキー。
	actorContextKey = contextKey("actor")
)

// Actor はリクエストの実行者を表す。
// Realは認証された本人、Actingは操作の対象となるユーザー（なりすまし中は対象ユーザー）。
type Actor struct {
	Real   *model.User
	Acting *model.User
}

// Impersonating はなりすまし中かを返す。
func (a *Actor) Impersonating() bool {
	return a.Real.ID != a.Acting.ID
}

// UserFinder はユーザーの取得に必要なインターフェース。
type UserFinder interface {
	Get(ctx context.Context, userID string) (*model.User, error)
}

// ActingResolver はなりすまし中の操作主体を解決する。
type ActingResolver interface {
	ActingUserID(userID string) string
}

// NewActorMiddleware はX-User-IDヘッダーから実行者を解決するミドルウェアを返す。
// 本人が存在しない場合は401、利用停止中の場合は403を返す。
// 管理者がなりすまし中の場合は、対象ユーザーを操作主体としてコンテキストに注入する。
func NewActorMiddleware(users UserFinder, resolver ActingResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(UserIDHeader)
			if id == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			user, ok := lookupUser(w, r, users, id)
			if !ok {
				return
			}
			if !user.IsActive() {
				WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError("このアカウントは利用停止されています。"))
				return
			}

			actor := &Actor{Real: user, Acting: user}
			if actingID := resolver.ActingUserID(id); actingID != id {
				acting, ok := lookupUser(w, r, users, actingID)
				if !ok {
					return
				}
				actor.Acting = acting
			}

			ctx := context.WithValue(r.Context(), actorContextKey, actor)
			ctx = context.WithValue(ctx, userIDContextKey, actor.Acting.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func lookupUser(w http.ResponseWriter, r *http.Request, users UserFinder, id string) (*model.User, bool) {
	user, err := users.Get(r.Context(), id)
	if err == nil {
		return user, true
	}
	if model.HasCode(err, model.ErrCodeUserNotFound) {
		WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return nil, false
	}
	slog.Error("failed to resolve user",
		slog.String("user_id", id),
		slog.String("error", err.Error()),
	)
	WriteInternalServerError(w)
	return nil, false
}

// NewRequireAdminMiddleware は本人が管理者であることを要求するミドルウェアを返す。
// なりすまし中でも本人の権限で判定する。
func NewRequireAdminMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, err := ActorFromContext(r.Context())
			if err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			if !actor.Real.IsAdmin {
				WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError("管理者権限が必要です。"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ActorFromContext はリクエストコンテキストから実行者を取得する。
func ActorFromContext(ctx context.Context) (*Actor, error) {
	actor, ok := ctx.Value(actorContextKey).(*Actor)
	if !ok || actor == nil {
		return nil, errors.New("actor not found in context")
	}
	return actor, nil
}

// UserIDFromContext はリクエストコンテキストから操作主体のユーザーIDを取得する。
// 実行者ミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

// ContextWithActor はコンテキストに実行者を注入する。操作主体のユーザーIDも合わせて設定する。
func ContextWithActor(ctx context.Context, actor *Actor) context.Context {
	ctx = context.WithValue(ctx, actorContextKey, actor)
	return context.WithValue(ctx, userIDContextKey, actor.Acting.ID)
}
