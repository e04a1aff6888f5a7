// Package repository はデータ永続化のインターフェースを定義する。
// インメモリ実装（デフォルト）とPostgreSQL実装を提供する。
package repository

import (
	"context"

	"github.com/hitoshi/beetlebase/internal/model"
)

// IndividualRepository は個体データの永続化インターフェース。
// 写真・計測値は個体に従属し、追記のみ可能。
type IndividualRepository interface {
	// FindByID は指定IDの個体を写真・計測値付きで取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Individual, error)

	// FindByOwnerAndCode は所有者と個体コードで個体を検索する。
	// コードは一意性を強制しないため、登録順で最初の個体を返す。見つからない場合はnilを返す。
	FindByOwnerAndCode(ctx context.Context, ownerID, code string) (*model.Individual, error)

	// FindFirstByCode は所有者を問わず、個体コードの大文字小文字を区別しない一致で
	// 最初に登録された個体を返す。公開プロフィールの解決に使用する。見つからない場合はnilを返す。
	FindFirstByCode(ctx context.Context, code string) (*model.Individual, error)

	// ListByOwner は所有者の個体一覧を登録順で返す。
	ListByOwner(ctx context.Context, ownerID string) ([]*model.Individual, error)

	// CountByOwner は所有者の登録個体数を返す。
	CountByOwner(ctx context.Context, ownerID string) (int, error)

	// Create は個体を作成する。
	Create(ctx context.Context, ind *model.Individual) error

	// Update は個体の登録情報（IndividualDraftの各項目とUpdatedAt）を置き換える。
	// 写真・計測値は変更しない。
	Update(ctx context.Context, ind *model.Individual) error

	// AppendPhoto は個体の写真リスト末尾に写真を追加する。
	AppendPhoto(ctx context.Context, individualID string, photo model.Photo) error

	// AppendMeasurement は個体の計測記録を追加する。
	AppendMeasurement(ctx context.Context, individualID string, m model.Measurement) error
}

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// List は全ユーザーを作成順で返す。
	List(ctx context.Context) ([]*model.User, error)

	// Create はユーザーを作成する。
	Create(ctx context.Context, user *model.User) error

	// Update はユーザーの状態・プラン・権限を更新する。
	Update(ctx context.Context, user *model.User) error
}

// JobRepository はジョブデータの永続化インターフェース。
type JobRepository interface {
	// FindByID は指定IDのジョブを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Job, error)

	// List はジョブを投入日時の新しい順で返す。kindが空の場合は全種別を返す。
	List(ctx context.Context, kind model.JobKind) ([]*model.Job, error)

	// ListByOwner は所有者のジョブを投入日時の新しい順で返す。
	ListByOwner(ctx context.Context, ownerID string) ([]*model.Job, error)

	// ListByStatus は指定状態のジョブを投入日時の古い順で返す。
	ListByStatus(ctx context.Context, status model.JobStatus) ([]*model.Job, error)

	// Create はジョブを作成する。
	Create(ctx context.Context, job *model.Job) error

	// UpdateIf は保存済みジョブの状態がexpectedの場合に限り、ジョブ全体を置き換える。
	// 状態が一致しない、またはジョブが存在しない場合はfalseを返す。
	// 複数ワーカーが同じジョブを取得しないための比較更新として使用する。
	UpdateIf(ctx context.Context, job *model.Job, expected model.JobStatus) (bool, error)
}
