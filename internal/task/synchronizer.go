// Package task はタスクコレクションの同期を提供する。
package task

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/wallxpress/internal/model"
	"github.com/hitoshi/wallxpress/internal/notify"
	"github.com/hitoshi/wallxpress/internal/repository"
	"github.com/hitoshi/wallxpress/internal/security"
)

// Synchronizer はタスクコレクションのローカルビューを
// リモートのドキュメントストアと同期する。
//
// すべての書き込みはライトスルーで、コミット後にコレクション全体の
// スナップショットが再計算されて購読者へ配信される。楽観的な
// ローカルパッチやオフラインキューは持たない。
type Synchronizer struct {
	tasks     repository.TaskRepository
	sanitizer security.TextSanitizerService
	hub       *notify.Hub[[]model.Task]

	// pubMu は再計算と配信をひとまとめに直列化する。
	// これを持たないと、並行書き込み時に古いスナップショットが
	// 新しいものの後から配信され、購読者が停滞した表示のまま残る。
	pubMu sync.Mutex

	// owner は現在のアイデンティティのUIDを返す。サインアウト中は空文字。
	owner func() string
}

// NewSynchronizer はSynchronizerを生成する。
// ownerはタスクの所有者スタンプに使われる（nilの場合は所有者なし）。
func NewSynchronizer(tasks repository.TaskRepository, sanitizer security.TextSanitizerService, owner func() string) *Synchronizer {
	if owner == nil {
		owner = func() string { return "" }
	}
	return &Synchronizer{
		tasks:     tasks,
		sanitizer: sanitizer,
		hub:       notify.NewHub[[]model.Task](),
		owner:     owner,
	}
}

// SubscribeAll はコレクション変化の購読を登録し、解除関数を返す。
// 登録時に初期スナップショットが同期配信され、以降は書き込みのたびに
// 再計算されたスナップショット（格納順）が配信される。
//
// 初期取得が失敗した場合はSyncErrorがonErrorへ報告され、続けて
// 一回限りのフォールバック取得が試行される。
func (s *Synchronizer) SubscribeAll(ctx context.Context, onChange func([]model.Task), onError func(error)) func() {
	// 初期配信中に書き込み側の配信が割り込むと、初期スナップショットが
	// 新しいものを上書きしてしまうため、配信ロックの下で行う
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	unsubscribe := s.hub.Subscribe(onChange)

	snapshot, err := s.tasks.ListInOrder(ctx, s.owner())
	if err != nil {
		onError(model.NewSyncError(err))
		snapshot, err = s.tasks.ListInOrder(ctx, s.owner())
		if err != nil {
			slog.Warn("fallback task fetch failed", slog.String("error", err.Error()))
			return unsubscribe
		}
	}
	onChange(snapshot)

	return unsubscribe
}

// Create は新規タスクを作成し、ストアが採番したIDを返す。
// タイトルがトリム後に空の場合はストア呼び出しを行わずに
// TITLE_REQUIREDを返す。
func (s *Synchronizer) Create(ctx context.Context, title, description string) (string, error) {
	title = strings.TrimSpace(s.sanitizer.Sanitize(title))
	if title == "" {
		return "", model.NewTitleRequiredError()
	}
	description = strings.TrimSpace(s.sanitizer.Sanitize(description))

	now := time.Now()
	task := &model.Task{
		Title:       title,
		Description: description,
		UserID:      s.owner(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	id, err := s.tasks.Create(ctx, task)
	if err != nil {
		return "", fmt.Errorf("failed to create task: %w", err)
	}

	s.publishSnapshot(ctx)
	return id, nil
}

// Update はID以外の全フィールドを置換する。
// タイトルがトリム後に空の場合はストア呼び出しを行わずに
// TITLE_REQUIREDを返す。対象が存在しない場合はTASK_NOT_FOUNDを返す。
func (s *Synchronizer) Update(ctx context.Context, id, title, description string) error {
	title = strings.TrimSpace(s.sanitizer.Sanitize(title))
	if title == "" {
		return model.NewTitleRequiredError()
	}
	description = strings.TrimSpace(s.sanitizer.Sanitize(description))

	task := &model.Task{
		Title:       title,
		Description: description,
		UpdatedAt:   time.Now(),
	}
	if err := s.tasks.Update(ctx, id, task); err != nil {
		return err
	}

	s.publishSnapshot(ctx)
	return nil
}

// Delete は指定IDのタスクを削除する。対象が存在しなくても成功する（冪等）。
func (s *Synchronizer) Delete(ctx context.Context, id string) error {
	if err := s.tasks.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}

	s.publishSnapshot(ctx)
	return nil
}

// GetByID は指定IDのタスクを返す。存在しない場合はnilを返す（エラーではない）。
func (s *Synchronizer) GetByID(ctx context.Context, id string) (*model.Task, error) {
	task, err := s.tasks.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

// List はコレクション全体を格納順で返す。
func (s *Synchronizer) List(ctx context.Context) ([]model.Task, error) {
	tasks, err := s.tasks.ListInOrder(ctx, s.owner())
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

// publishSnapshot はコレクション全体を再計算して購読者へ配信する。
// 再計算と配信は配信ロックの下でひとまとめに行われ、単一購読内の
// 配信順は常に再計算の新しさの順と一致する。
// 再計算に失敗した場合は配信をスキップする（次回の書き込みで回復する）。
func (s *Synchronizer) publishSnapshot(ctx context.Context) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	snapshot, err := s.tasks.ListInOrder(ctx, s.owner())
	if err != nil {
		slog.Warn("failed to recompute task snapshot", slog.String("error", err.Error()))
		return
	}
	s.hub.Publish(snapshot)
}
