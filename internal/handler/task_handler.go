package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/wallxpress/internal/metrics"
	"github.com/hitoshi/wallxpress/internal/model"
)

// TaskServiceInterface はタスクハンドラーが必要とするサービスインターフェース。
type TaskServiceInterface interface {
	// SubscribeAll は全タスクのライブ購読を登録し、解除関数を返す。
	SubscribeAll(ctx context.Context, onChange func([]model.Task), onError func(error)) func()
	// Create はタスクを作成し、採番されたIDを返す。
	Create(ctx context.Context, title, description string) (string, error)
	// Update はタスクを全置換で更新する。
	Update(ctx context.Context, id, title, description string) error
	// Delete はタスクを削除する（冪等）。
	Delete(ctx context.Context, id string) error
	// GetByID はタスクを1件取得する。存在しなければnil。
	GetByID(ctx context.Context, id string) (*model.Task, error)
	// List は全タスクを作成順で返す。
	List(ctx context.Context) ([]model.Task, error)
}

// TaskHandler はタスクコレクション同期のHTTPハンドラー。
type TaskHandler struct {
	service   TaskServiceInterface
	collector metrics.MetricsCollector
}

// NewTaskHandler はTaskHandlerを生成する。
func NewTaskHandler(service TaskServiceInterface, collector metrics.MetricsCollector) *TaskHandler {
	return &TaskHandler{service: service, collector: collector}
}

// taskRequest はタスク作成・更新リクエストのボディ。
type taskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// taskResponse はタスク情報のAPIレスポンス。
type taskResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	UserID      string    `json:"user_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toTaskResponse(t model.Task) taskResponse {
	return taskResponse{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		UserID:      t.UserID,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func toTaskResponses(tasks []model.Task) []taskResponse {
	results := make([]taskResponse, len(tasks))
	for i, t := range tasks {
		results[i] = toTaskResponse(t)
	}
	return results
}

// ListTasks は全タスクを作成順で返す。
// GET /api/tasks
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.service.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTaskResponses(tasks))
}

// CreateTask はタスクを作成する。
// POST /api/tasks
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	id, err := h.service.Create(r.Context(), req.Title, req.Description)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// GetTask はタスクを1件取得する。
// GET /api/tasks/{id}
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	task, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if task == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewTaskNotFoundError(id))
		return
	}

	writeJSON(w, http.StatusOK, toTaskResponse(*task))
}

// UpdateTask はタスクを全置換で更新する。
// PUT /api/tasks/{id}
func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	if err := h.service.Update(r.Context(), id, req.Title, req.Description); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeleteTask はタスクを削除する。対象が存在しなくても成功を返す（冪等）。
// DELETE /api/tasks/{id}
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.service.Delete(r.Context(), id); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// StreamTasks は全タスクスナップショットのSSEストリームを提供する。
// 接続直後に現在のスナップショットが配信され、以降はコレクションが
// 変化するたびに全量スナップショットが配信される。
// GET /api/tasks/stream
func (h *TaskHandler) StreamTasks(w http.ResponseWriter, r *http.Request) {
	serveSSE(w, r, func(pump *ssePump) func() {
		return h.service.SubscribeAll(r.Context(),
			func(tasks []model.Task) {
				pump.push("tasks", toTaskResponses(tasks))
				h.collector.RecordSnapshotDelivered("tasks")
			},
			func(err error) {
				pump.push("sync_error", toSyncErrorPayload(err))
			},
		)
	})
}
