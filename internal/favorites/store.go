// Package favorites はお気に入り画像のプロセス全体で共有される
// インメモリストアを提供する。
package favorites

import (
	"sync"

	"github.com/hitoshi/wallxpress/internal/model"
	"github.com/hitoshi/wallxpress/internal/notify"
)

// Store はお気に入り画像の集合を保持する。
//
// 同一性はURL文字列の等価性で判定される。同じ画像を指す別URLは
// 別エントリとして扱われる（意図的な仕様）。
// 集合はプロセス内にのみ存在し、再起動をまたいで永続化されない。
type Store struct {
	mu    sync.RWMutex
	byURL map[string]model.ImageRef
	order []string // 追加順を保持する

	// pubMu は変更とスナップショット配信をひとまとめに直列化する。
	// muだけだと、ロック解放後の配信が並行Toggleと入れ替わり、
	// 古いスナップショットが最後に届くことがある。
	pubMu sync.Mutex

	hub *notify.Hub[[]model.ImageRef]
}

// NewStore はStoreを生成する。
func NewStore() *Store {
	return &Store{
		byURL: make(map[string]model.ImageRef),
		hub:   notify.NewHub[[]model.ImageRef](),
	}
}

// Toggle はお気に入り状態を反転し、反転後の状態を返す。
// 集合に含まれていなければ追加してtrue、含まれていれば削除してfalse。
func (s *Store) Toggle(ref model.ImageRef) bool {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	s.mu.Lock()

	var added bool
	if _, ok := s.byURL[ref.URL]; ok {
		delete(s.byURL, ref.URL)
		for i, url := range s.order {
			if url == ref.URL {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
		added = false
	} else {
		s.byURL[ref.URL] = ref
		s.order = append(s.order, ref.URL)
		added = true
	}

	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.hub.Publish(snapshot)
	return added
}

// IsFavorite はお気に入りに含まれるかを返す。
func (s *Store) IsFavorite(ref model.ImageRef) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byURL[ref.URL]
	return ok
}

// List はお気に入り一覧を追加順で返す。
func (s *Store) List() []model.ImageRef {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Subscribe は一覧変化の購読を登録し、解除関数を返す。
// 登録時点の一覧が直ちに同期配信され、以降は変化のたびに配信される。
func (s *Store) Subscribe(fn func([]model.ImageRef)) func() {
	// 初期配信がToggleの配信と交錯しないよう、配信ロックの下で行う
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	unsubscribe := s.hub.Subscribe(fn)
	fn(s.List())
	return unsubscribe
}

// Clear は集合を空にする。サインアウト時に使用される。
func (s *Store) Clear() {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	s.mu.Lock()
	s.byURL = make(map[string]model.ImageRef)
	s.order = nil
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.hub.Publish(snapshot)
}

// snapshotLocked は追加順の一覧を作る。呼び出し元でロックを保持すること。
func (s *Store) snapshotLocked() []model.ImageRef {
	snapshot := make([]model.ImageRef, 0, len(s.order))
	for _, url := range s.order {
		snapshot = append(snapshot, s.byURL[url])
	}
	return snapshot
}
