// Package model はドメインモデルを定義する。
package model

import "time"

// Credential はメール+パスワード認証の資格情報を表す。
// パスワードは平文では保持せず、bcryptハッシュのみを保存する。
type Credential struct {
	UserID       string
	PasswordHash string
	HashVersion  string // 例: "bcrypt"
	CreatedAt    time.Time
}
