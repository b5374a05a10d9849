package handler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/wallxpress/internal/model"
)

// --- モック定義 ---

type mockRemover struct {
	removeBackgroundFn func(ctx context.Context, image []byte, filename string) ([]byte, error)
}

func (m *mockRemover) RemoveBackground(ctx context.Context, image []byte, filename string) ([]byte, error) {
	if m.removeBackgroundFn != nil {
		return m.removeBackgroundFn(ctx, image, filename)
	}
	return nil, nil
}

// mockCollector はメトリクス収集の呼び出しを記録する。
type mockCollector struct {
	removeBGSuccess int
	removeBGFailure int
	httpStatuses    []int
}

func (m *mockCollector) RecordAuthEvent(kind string)              {}
func (m *mockCollector) RecordSnapshotDelivered(collection string) {}
func (m *mockCollector) RecordUploadSuccess()                      {}
func (m *mockCollector) RecordUploadFailure()                      {}
func (m *mockCollector) RecordUploadLatency(d time.Duration)       {}
func (m *mockCollector) RecordRemoveBGCall(success bool) {
	if success {
		m.removeBGSuccess++
	} else {
		m.removeBGFailure++
	}
}
func (m *mockCollector) RecordHTTPStatus(statusCode int) {
	m.httpStatuses = append(m.httpStatuses, statusCode)
}

func multipartImageRequest(t *testing.T, fieldName, filename string, image []byte) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile(fieldName, filename)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := part.Write(image); err != nil {
		t.Fatalf("failed to write image: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/removebg", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

// --- テスト ---

func TestRemoveBackground_Success_ReturnsProcessedImage(t *testing.T) {
	processed := []byte("png-image-data")
	remover := &mockRemover{
		removeBackgroundFn: func(ctx context.Context, image []byte, filename string) ([]byte, error) {
			if string(image) != "raw-image" {
				t.Errorf("image = %q", image)
			}
			if filename != "photo.jpg" {
				t.Errorf("filename = %q, want %q", filename, "photo.jpg")
			}
			return processed, nil
		},
	}
	collector := &mockCollector{}
	h := NewRemoveBGHandler(remover, collector)

	req := multipartImageRequest(t, "image_file", "photo.jpg", []byte("raw-image"))
	w := httptest.NewRecorder()

	h.RemoveBackground(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q, want %q", ct, "image/png")
	}

	body, _ := io.ReadAll(resp.Body)
	if !bytes.Equal(body, processed) {
		t.Error("expected processed image bytes in response")
	}
	if collector.removeBGSuccess != 1 {
		t.Errorf("success count = %d, want 1", collector.removeBGSuccess)
	}
}

func TestRemoveBackground_MissingImageField_Returns400(t *testing.T) {
	h := NewRemoveBGHandler(&mockRemover{}, &mockCollector{})

	req := multipartImageRequest(t, "wrong_field", "photo.jpg", []byte("raw"))
	w := httptest.NewRecorder()

	h.RemoveBackground(w, req)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusBadRequest)
	}
}

func TestRemoveBackground_APIFailure_Returns502(t *testing.T) {
	remover := &mockRemover{
		removeBackgroundFn: func(ctx context.Context, image []byte, filename string) ([]byte, error) {
			return nil, model.NewRemoveBGError(errors.New("insufficient credits"))
		},
	}
	collector := &mockCollector{}
	h := NewRemoveBGHandler(remover, collector)

	req := multipartImageRequest(t, "image_file", "photo.jpg", []byte("raw"))
	w := httptest.NewRecorder()

	h.RemoveBackground(w, req)

	if w.Result().StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusBadGateway)
	}
	if collector.removeBGFailure != 1 {
		t.Errorf("failure count = %d, want 1", collector.removeBGFailure)
	}
}
