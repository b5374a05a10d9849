// Package storage はプロフィール画像等のバイナリオブジェクトの保存を提供する。
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ObjectStore はオブジェクトの保存とダウンロードURL解決のインターフェース。
type ObjectStore interface {
	// PutObject は指定パスへオブジェクトを保存する。既存オブジェクトは上書きされる。
	PutObject(ctx context.Context, path string, data []byte, contentType string) error

	// DownloadURL は保存済みオブジェクトのダウンロードURLを返す。
	// URLは追加のローカル状態なしで解決可能でなければならない。
	DownloadURL(path string) string
}

// DiskStore はローカルファイルシステム上のオブジェクトストア。
// オブジェクトはデーモンの/objects/ルートから配信される。
type DiskStore struct {
	rootDir string
	baseURL string
}

// NewDiskStore はDiskStoreを生成する。rootDirが存在しない場合は作成する。
func NewDiskStore(rootDir, baseURL string) (*DiskStore, error) {
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &DiskStore{
		rootDir: rootDir,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

// RootDir はオブジェクトのルートディレクトリを返す。静的配信用。
func (s *DiskStore) RootDir() string {
	return s.rootDir
}

// PutObject は指定パスへオブジェクトを保存する。
// パスはストアのルート外を指してはならない。
func (s *DiskStore) PutObject(ctx context.Context, path string, data []byte, contentType string) error {
	fullPath, err := s.resolve(path)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return fmt.Errorf("failed to create object directory: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write object: %w", err)
	}
	return nil
}

// DownloadURL は保存済みオブジェクトのダウンロードURLを返す。
func (s *DiskStore) DownloadURL(path string) string {
	return s.baseURL + "/objects/" + strings.TrimLeft(path, "/")
}

// resolve はオブジェクトパスをルート配下の絶対パスへ解決する。
// パストラバーサルを拒否する。
func (s *DiskStore) resolve(path string) (string, error) {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return "", fmt.Errorf("invalid object path: %s", path)
		}
	}
	return filepath.Join(s.rootDir, filepath.Clean("/"+path)), nil
}

// compile-time interface check
var _ ObjectStore = (*DiskStore)(nil)
