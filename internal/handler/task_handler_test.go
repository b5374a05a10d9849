package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/wallxpress/internal/model"
)

// --- モック定義 ---

type mockTaskService struct {
	subscribeAllFn func(ctx context.Context, onChange func([]model.Task), onError func(error)) func()
	createFn       func(ctx context.Context, title, description string) (string, error)
	updateFn       func(ctx context.Context, id, title, description string) error
	deleteFn       func(ctx context.Context, id string) error
	getByIDFn      func(ctx context.Context, id string) (*model.Task, error)
	listFn         func(ctx context.Context) ([]model.Task, error)
}

func (m *mockTaskService) SubscribeAll(ctx context.Context, onChange func([]model.Task), onError func(error)) func() {
	if m.subscribeAllFn != nil {
		return m.subscribeAllFn(ctx, onChange, onError)
	}
	return func() {}
}

func (m *mockTaskService) Create(ctx context.Context, title, description string) (string, error) {
	if m.createFn != nil {
		return m.createFn(ctx, title, description)
	}
	return "", nil
}

func (m *mockTaskService) Update(ctx context.Context, id, title, description string) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, id, title, description)
	}
	return nil
}

func (m *mockTaskService) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

func (m *mockTaskService) GetByID(ctx context.Context, id string) (*model.Task, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockTaskService) List(ctx context.Context) ([]model.Task, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

// newTaskRouter はURLパラメータを解決するためchiルーター経由でハンドラーを組む。
func newTaskRouter(h *TaskHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/api/tasks", h.ListTasks)
	r.Post("/api/tasks", h.CreateTask)
	r.Get("/api/tasks/stream", h.StreamTasks)
	r.Get("/api/tasks/{id}", h.GetTask)
	r.Put("/api/tasks/{id}", h.UpdateTask)
	r.Delete("/api/tasks/{id}", h.DeleteTask)
	return r
}

// --- テスト ---

func TestCreateTask_Success_ReturnsAssignedID(t *testing.T) {
	service := &mockTaskService{
		createFn: func(ctx context.Context, title, description string) (string, error) {
			if title != "壁紙を選ぶ" {
				t.Errorf("title = %q", title)
			}
			return "task-1", nil
		},
	}
	router := newTaskRouter(NewTaskHandler(service, &mockCollector{}))

	req := httptest.NewRequest(http.MethodPost, "/api/tasks",
		strings.NewReader(`{"title":"壁紙を選ぶ","description":"今週中に"}`))
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["id"] != "task-1" {
		t.Errorf("id = %q, want %q", body["id"], "task-1")
	}
}

func TestCreateTask_EmptyTitle_Returns400(t *testing.T) {
	service := &mockTaskService{
		createFn: func(ctx context.Context, title, description string) (string, error) {
			return "", model.NewTitleRequiredError()
		},
	}
	router := newTaskRouter(NewTaskHandler(service, &mockCollector{}))

	req := httptest.NewRequest(http.MethodPost, "/api/tasks",
		strings.NewReader(`{"title":"   "}`))
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}

	var body apiErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Code != model.ErrCodeTitleRequired {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeTitleRequired)
	}
}

func TestGetTask_NotFound_Returns404(t *testing.T) {
	router := newTaskRouter(NewTaskHandler(&mockTaskService{}, &mockCollector{}))

	req := httptest.NewRequest(http.MethodGet, "/api/tasks/missing", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusNotFound)
	}
}

func TestUpdateTask_NotFound_Returns404(t *testing.T) {
	service := &mockTaskService{
		updateFn: func(ctx context.Context, id, title, description string) error {
			return model.NewTaskNotFoundError(id)
		},
	}
	router := newTaskRouter(NewTaskHandler(service, &mockCollector{}))

	req := httptest.NewRequest(http.MethodPut, "/api/tasks/missing",
		strings.NewReader(`{"title":"更新"}`))
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusNotFound)
	}
}

func TestDeleteTask_Returns204(t *testing.T) {
	var deletedID string
	service := &mockTaskService{
		deleteFn: func(ctx context.Context, id string) error {
			deletedID = id
			return nil
		},
	}
	router := newTaskRouter(NewTaskHandler(service, &mockCollector{}))

	req := httptest.NewRequest(http.MethodDelete, "/api/tasks/task-1", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusNoContent)
	}
	if deletedID != "task-1" {
		t.Errorf("deleted id = %q, want %q", deletedID, "task-1")
	}
}

func TestListTasks_ReturnsSnapshotInOrder(t *testing.T) {
	now := time.Now()
	service := &mockTaskService{
		listFn: func(ctx context.Context) ([]model.Task, error) {
			return []model.Task{
				{ID: "task-1", Title: "先に作成", CreatedAt: now},
				{ID: "task-2", Title: "後に作成", CreatedAt: now.Add(time.Second)},
			}, nil
		},
	}
	router := newTaskRouter(NewTaskHandler(service, &mockCollector{}))

	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	var body []taskResponse
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if len(body) != 2 {
		t.Fatalf("len = %d, want 2", len(body))
	}
	if body[0].ID != "task-1" || body[1].ID != "task-2" {
		t.Errorf("unexpected order: %v", body)
	}
}

// TestStreamTasks_DeliversSnapshotAsSSE は購読スナップショットが
// SSEフレームとして配信されることを確認する。
func TestStreamTasks_DeliversSnapshotAsSSE(t *testing.T) {
	unsubscribed := make(chan struct{})
	service := &mockTaskService{
		subscribeAllFn: func(ctx context.Context, onChange func([]model.Task), onError func(error)) func() {
			onChange([]model.Task{{ID: "task-1", Title: "最初のタスク"}})
			return func() { close(unsubscribed) }
		},
	}

	server := httptest.NewServer(newTaskRouter(NewTaskHandler(service, &mockCollector{})))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/api/tasks/stream", nil)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("failed to connect stream: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want %q", ct, "text/event-stream")
	}

	reader := bufio.NewReader(resp.Body)
	var eventLine, dataLine string
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("failed to read stream: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		if strings.HasPrefix(line, "event: ") {
			eventLine = line
		}
		if strings.HasPrefix(line, "data: ") {
			dataLine = line
			break
		}
	}

	if eventLine != "event: tasks" {
		t.Errorf("event = %q, want %q", eventLine, "event: tasks")
	}

	var tasks []taskResponse
	if err := json.Unmarshal([]byte(strings.TrimPrefix(dataLine, "data: ")), &tasks); err != nil {
		t.Fatalf("failed to decode snapshot: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "task-1" {
		t.Errorf("unexpected snapshot: %v", tasks)
	}

	// 切断で購読が解除される
	cancel()
	select {
	case <-unsubscribed:
	case <-time.After(5 * time.Second):
		t.Fatal("expected unsubscribe on client disconnect")
	}
}
