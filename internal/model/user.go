// Package model はドメインモデルを定義する。
package model

import "time"

// User は認証済みのプリンシパル（現在のアイデンティティ）を表す。
// UIDはIDプロバイダーが採番し、一度割り当てられたら不変。
type User struct {
	UID       string
	Email     string
	Name      string
	Image     *ImageRef // アップロード済みプロフィール画像
	CreatedAt time.Time
}

// AuthEventKind はIDプロバイダーが発行する状態変化イベントの種別を表す。
type AuthEventKind string

const (
	// AuthEventSignedIn はサインイン（トークンリフレッシュ含む）イベント。
	AuthEventSignedIn AuthEventKind = "signed_in"
	// AuthEventSignedOut はサインアウト（他プロセスからの失効含む）イベント。
	AuthEventSignedOut AuthEventKind = "signed_out"
)

// AuthEvent はIDプロバイダーの非同期な状態変化通知を表す。
// Userはsigned_in時のみ非nil。
type AuthEvent struct {
	Kind AuthEventKind
	User *User
}

// Session はIDプロバイダーが発行するセッショントークンを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
