package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/wallxpress/internal/model"
)

// --- モック定義 ---

type mockFavoritesStore struct {
	toggleFn     func(ref model.ImageRef) bool
	isFavoriteFn func(ref model.ImageRef) bool
	listFn       func() []model.ImageRef
	subscribeFn  func(fn func([]model.ImageRef)) func()
}

func (m *mockFavoritesStore) Toggle(ref model.ImageRef) bool {
	if m.toggleFn != nil {
		return m.toggleFn(ref)
	}
	return false
}

func (m *mockFavoritesStore) IsFavorite(ref model.ImageRef) bool {
	if m.isFavoriteFn != nil {
		return m.isFavoriteFn(ref)
	}
	return false
}

func (m *mockFavoritesStore) List() []model.ImageRef {
	if m.listFn != nil {
		return m.listFn()
	}
	return nil
}

func (m *mockFavoritesStore) Subscribe(fn func([]model.ImageRef)) func() {
	if m.subscribeFn != nil {
		return m.subscribeFn(fn)
	}
	return func() {}
}

// --- テスト ---

func TestToggleFavorite_Added_ReturnsTrue(t *testing.T) {
	var captured model.ImageRef
	store := &mockFavoritesStore{
		toggleFn: func(ref model.ImageRef) bool {
			captured = ref
			return true
		},
	}
	h := NewFavoritesHandler(store, &mockCollector{})

	req := httptest.NewRequest(http.MethodPost, "/api/favorites/toggle",
		strings.NewReader(`{"url":"https://images.example.com/w1.jpg","path":"wallpapers/w1.jpg"}`))
	w := httptest.NewRecorder()

	h.ToggleFavorite(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if captured.URL != "https://images.example.com/w1.jpg" {
		t.Errorf("captured url = %q", captured.URL)
	}

	var body toggleResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if !body.Added {
		t.Error("expected added = true")
	}
}

func TestToggleFavorite_EmptyURL_Returns400(t *testing.T) {
	h := NewFavoritesHandler(&mockFavoritesStore{}, &mockCollector{})

	req := httptest.NewRequest(http.MethodPost, "/api/favorites/toggle",
		strings.NewReader(`{"path":"wallpapers/w1.jpg"}`))
	w := httptest.NewRecorder()

	h.ToggleFavorite(w, req)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusBadRequest)
	}
}

func TestContainsFavorite_Registered_ReturnsTrue(t *testing.T) {
	var captured model.ImageRef
	store := &mockFavoritesStore{
		isFavoriteFn: func(ref model.ImageRef) bool {
			captured = ref
			return true
		},
	}
	h := NewFavoritesHandler(store, &mockCollector{})

	req := httptest.NewRequest(http.MethodGet,
		"/api/favorites/contains?url=https%3A%2F%2Fimages.example.com%2Fw1.jpg", nil)
	w := httptest.NewRecorder()

	h.ContainsFavorite(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if captured.URL != "https://images.example.com/w1.jpg" {
		t.Errorf("captured url = %q", captured.URL)
	}

	var body containsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if !body.Favorite {
		t.Error("expected favorite = true")
	}
}

func TestContainsFavorite_MissingURL_Returns400(t *testing.T) {
	h := NewFavoritesHandler(&mockFavoritesStore{}, &mockCollector{})

	req := httptest.NewRequest(http.MethodGet, "/api/favorites/contains", nil)
	w := httptest.NewRecorder()

	h.ContainsFavorite(w, req)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusBadRequest)
	}
}

func TestListFavorites_ReturnsInsertionOrder(t *testing.T) {
	store := &mockFavoritesStore{
		listFn: func() []model.ImageRef {
			return []model.ImageRef{
				{URL: "https://images.example.com/w1.jpg"},
				{URL: "https://images.example.com/w2.jpg"},
			}
		},
	}
	h := NewFavoritesHandler(store, &mockCollector{})

	req := httptest.NewRequest(http.MethodGet, "/api/favorites", nil)
	w := httptest.NewRecorder()

	h.ListFavorites(w, req)

	var body []model.ImageRef
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if len(body) != 2 {
		t.Fatalf("len = %d, want 2", len(body))
	}
	if body[0].URL != "https://images.example.com/w1.jpg" {
		t.Errorf("unexpected order: %v", body)
	}
}
