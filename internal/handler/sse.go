package handler

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/hitoshi/wallxpress/internal/model"
)

// sseHeartbeatInterval は切断検出用コメント行の送信間隔。
const sseHeartbeatInterval = 30 * time.Second

// ssePump はスナップショット配信とSSE書き込みの間の緩衝を担う。
//
// 購読コールバックは配信元のgoroutineから同期的に呼ばれるため、
// 低速なクライアントで配信元をブロックしないよう、最新スナップショットのみを
// 保持して合流させる。スナップショットは常に全量であり、途中の状態を
// 飛ばしても最終的な表示は正しい。
type ssePump struct {
	mu     sync.Mutex
	latest []byte
	notify chan struct{}
}

func newSSEPump() *ssePump {
	return &ssePump{notify: make(chan struct{}, 1)}
}

// push は最新のイベントペイロードを差し替え、読み取り側を起床させる。
func (p *ssePump) push(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	framed := append([]byte("event: "+event+"\ndata: "), data...)
	framed = append(framed, '\n', '\n')

	p.mu.Lock()
	p.latest = framed
	p.mu.Unlock()

	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// take は最新のフレームを取り出す。
func (p *ssePump) take() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	frame := p.latest
	p.latest = nil
	return frame
}

// serveSSE はServer-Sent Eventsのストリーミング応答を提供する。
//
// subscribeはpumpへのイベント投入を開始し、購読解除関数を返す。
// クライアント切断（リクエストコンテキストのキャンセル）で購読を解除し、
// 配信中のコールバック完了を待ってから戻る。
func serveSSE(w http.ResponseWriter, r *http.Request, subscribe func(pump *ssePump) func()) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
			Code:     "STREAMING_UNSUPPORTED",
			Message:  "ストリーミングに対応していない接続です。",
			Category: "system",
			Action:   "接続方法を確認してください。",
		})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	pump := newSSEPump()
	unsubscribe := subscribe(pump)
	defer unsubscribe()

	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-pump.notify:
			if frame := pump.take(); frame != nil {
				if _, err := w.Write(frame); err != nil {
					return
				}
				flusher.Flush()
			}
		case <-heartbeat.C:
			if _, err := w.Write([]byte(": ping\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
