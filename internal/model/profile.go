// Package model はドメインモデルを定義する。
package model

import "time"

// ImageRef はアップロード済みリモートオブジェクトへの参照を表す。
// URLは追加のローカル状態なしで解決可能でなければならない。
type ImageRef struct {
	URL  string `json:"url"`            // ダウンロードURL
	Path string `json:"path"`           // オブジェクトストア上のパス（更新・削除用）
	Name string `json:"name,omitempty"` // 元ファイル名
	Size int64  `json:"size,omitempty"` // ファイルサイズ（バイト）
	Mime string `json:"mime,omitempty"` // MIMEタイプ
}

// Profile はユーザーが編集可能な属性を保持する永続ドキュメント。
// UIDでUserと1:1に対応する。
type Profile struct {
	UID       string
	Name      string
	Email     string
	Image     *ImageRef
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProfilePatch はProfileへのマージ書き込みを表す。
// nilフィールドは変更せず、既存の値を維持する（部分更新）。
type ProfilePatch struct {
	Name  *string
	Email *string
	Image *ImageRef

	// LocalImageURI が設定されている場合、保存前にアップロードパイプラインで
	// ImageRefへ変換する必要がある。ImageとLocalImageURIは排他。
	LocalImageURI string
}

// DefaultProfileName はプロフィール未作成時に合成されるデフォルト名。
const DefaultProfileName = "User"

// PlaceholderImageURL はプロフィール未作成時に合成されるプレースホルダー画像。
const PlaceholderImageURL = "https://i.pravatar.cc/300"
