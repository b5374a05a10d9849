// Package model はドメインモデルを定義する。
package model

import "time"

// Task はユーザーが作成する作業項目を表す。
// リモートコレクションに保存され、ローカルビューは常に最新のスナップショットから導出される。
type Task struct {
	ID          string
	Title       string // 必須。トリム後に空であってはならない
	Description string
	UserID      string // 所有アイデンティティへの参照（任意）
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
