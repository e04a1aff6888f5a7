// Package model はドメインモデルを定義する。
package model

import "time"

// UserStatus はアカウントの状態を表す。
type UserStatus string

const (
	UserStatusActive    UserStatus = "Active"
	UserStatusSuspended UserStatus = "Suspended"
)

// Plan は契約プランを表す。リソース上限を決定する。
type Plan string

const (
	PlanFree Plan = "Free"
	PlanPro  Plan = "Pro"
)

// Valid はプランが定義済みの値かを返す。
func (p Plan) Valid() bool {
	return p == PlanFree || p == PlanPro
}

// User はサービス利用ユーザーを表す。
// Planは新規作成時Freeで、アップグレード以外では変更されない。
type User struct {
	ID        string
	Email     string
	Status    UserStatus
	Plan      Plan
	IsAdmin   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsActive はアカウントが利用可能な状態かを返す。
func (u *User) IsActive() bool {
	return u.Status == UserStatusActive
}
