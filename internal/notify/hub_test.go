package notify

import (
	"sync"
	"testing"
)

// TestHub_PublishOrder は単一購読への通知が発行順に配信されることを検証する。
func TestHub_PublishOrder(t *testing.T) {
	h := NewHub[[]string]()

	var got [][]string
	unsub := h.Subscribe(func(snapshot []string) {
		got = append(got, snapshot)
	})
	defer unsub()

	h.Publish([]string{"A"})
	h.Publish([]string{"A", "B"})
	h.Publish([]string{"B"})

	if len(got) != 3 {
		t.Fatalf("expected 3 deliveries, got %d", len(got))
	}
	want := [][]string{{"A"}, {"A", "B"}, {"B"}}
	for i, snapshot := range want {
		if len(got[i]) != len(snapshot) {
			t.Errorf("delivery %d: expected %v, got %v", i, snapshot, got[i])
			continue
		}
		for j := range snapshot {
			if got[i][j] != snapshot[j] {
				t.Errorf("delivery %d: expected %v, got %v", i, snapshot, got[i])
			}
		}
	}
}

// TestHub_UnsubscribeStopsDelivery は破棄後にコールバックが呼ばれないことを検証する。
func TestHub_UnsubscribeStopsDelivery(t *testing.T) {
	h := NewHub[int]()

	count := 0
	unsub := h.Subscribe(func(int) { count++ })

	h.Publish(1)
	unsub()
	h.Publish(2)

	if count != 1 {
		t.Errorf("expected 1 delivery before unsubscribe, got %d", count)
	}
	if h.Len() != 0 {
		t.Errorf("expected 0 subscribers after unsubscribe, got %d", h.Len())
	}
}

// TestHub_UnsubscribeIdempotent は破棄関数の多重呼び出しが安全であることを検証する。
func TestHub_UnsubscribeIdempotent(t *testing.T) {
	h := NewHub[int]()
	unsub := h.Subscribe(func(int) {})
	unsub()
	unsub() // 2回目もpanicしない
	if h.Len() != 0 {
		t.Errorf("expected 0 subscribers, got %d", h.Len())
	}
}

// TestHub_UnsubscribeCompactsOrder は破棄された購読のIDが配信順リストに
// 残らないことを検証する。残ると再接続の繰り返しでリストが増え続ける。
func TestHub_UnsubscribeCompactsOrder(t *testing.T) {
	h := NewHub[int]()

	for i := 0; i < 100; i++ {
		unsub := h.Subscribe(func(int) {})
		unsub()
	}
	keep := h.Subscribe(func(int) {})
	defer keep()

	h.mu.RLock()
	orderLen := len(h.order)
	h.mu.RUnlock()
	if orderLen != 1 {
		t.Errorf("expected 1 delivery-order entry after churn, got %d", orderLen)
	}
}

// TestHub_MultipleSubscribers は複数購読者への配信が登録順であることを検証する。
func TestHub_MultipleSubscribers(t *testing.T) {
	h := NewHub[int]()

	var order []string
	unsub1 := h.Subscribe(func(int) { order = append(order, "first") })
	defer unsub1()
	unsub2 := h.Subscribe(func(int) { order = append(order, "second") })
	defer unsub2()

	h.Publish(42)

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("expected registration-order delivery, got %v", order)
	}
}

// TestHub_ConcurrentPublish は並行発行でもデータ競合なく全件配信されることを検証する。
func TestHub_ConcurrentPublish(t *testing.T) {
	h := NewHub[int]()

	var mu sync.Mutex
	count := 0
	unsub := h.Subscribe(func(int) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	defer unsub()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Publish(1)
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if count != 10 {
		t.Errorf("expected 10 deliveries, got %d", count)
	}
}
