// Package notify はライブ購読のためのプロセス内観測ハブを提供する。
//
// リモートストアへの書き込みが成功した後、シンクロナイザーはハブに
// スナップショットを発行し、登録済みのリスナーへ配信する。単一の購読に
// 対する通知は発行順を保ち、破棄（unsubscribe）後のコールバック呼び出しは
// 発生しない。ガベージコレクションに頼らず、必ず明示的に破棄すること。
package notify

import "sync"

// Hub は型Tのスナップショットを購読者へ配信する観測ハブ。
// Publishは登録順に購読者を同期的に呼び出すため、単一購読内の
// 通知順序は発行順と一致する。コールバック内でブロックしないこと。
type Hub[T any] struct {
	mu     sync.RWMutex
	subs   map[int]func(T)
	order  []int
	nextID int
}

// NewHub は新しいHubを生成する。
func NewHub[T any]() *Hub[T] {
	return &Hub[T]{
		subs: make(map[int]func(T)),
	}
}

// Subscribe はリスナーを登録し、破棄関数を返す。
// 破棄関数は冪等で、復帰後はそのリスナーが呼び出されないことを保証する。
// 配信中に呼び出された場合、進行中の配信が完了するまでブロックする。
func (h *Hub[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = fn
	h.order = append(h.order, id)
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[id]; !ok {
			return
		}
		delete(h.subs, id)
		// 配信順リストからも除去する。残すと再接続の繰り返しで
		// リストが増え続け、Publishが空振りの走査を重ねることになる。
		for i, other := range h.order {
			if other == id {
				h.order = append(h.order[:i], h.order[i+1:]...)
				break
			}
		}
	}
}

// Publish は全購読者へスナップショットを配信する。
// 配信は発行側ゴルーチン上で同期的に行われる。
func (h *Hub[T]) Publish(v T) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, id := range h.order {
		if fn, ok := h.subs[id]; ok {
			fn(v)
		}
	}
}

// Len は現在の購読者数を返す。テストとメトリクス用。
func (h *Hub[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
