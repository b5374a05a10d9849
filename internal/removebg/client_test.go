package removebg

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/wallxpress/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestRemoveBackground_Success はマルチパートリクエストが正しく構築され、
// 結果のバイナリが返ることを確認する。
func TestRemoveBackground_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.Header.Get("X-Api-Key") != "test-key" {
			t.Errorf("expected API key header, got %q", r.Header.Get("X-Api-Key"))
		}

		if err := r.ParseMultipartForm(32 << 20); err != nil {
			t.Fatalf("failed to parse multipart form: %v", err)
		}
		if got := r.FormValue("size"); got != "auto" {
			t.Errorf("expected size=auto, got %q", got)
		}

		file, header, err := r.FormFile("image_file")
		if err != nil {
			t.Fatalf("expected image_file part: %v", err)
		}
		defer file.Close()
		if header.Filename != "photo.jpg" {
			t.Errorf("expected filename photo.jpg, got %q", header.Filename)
		}
		body, _ := io.ReadAll(file)
		if string(body) != "input-bytes" {
			t.Errorf("unexpected image payload: %q", body)
		}

		w.Write([]byte("output-bytes"))
	}))
	defer server.Close()

	client := NewClient(server.Client(), testLogger(), "test-key")
	client.endpoint = server.URL

	result, err := client.RemoveBackground(context.Background(), []byte("input-bytes"), "photo.jpg")
	if err != nil {
		t.Fatalf("RemoveBackground failed: %v", err)
	}
	if string(result) != "output-bytes" {
		t.Errorf("unexpected result: %q", result)
	}
}

// TestRemoveBackground_APIError はエラーステータスがREMOVEBG_FAILEDとして
// 返ることを確認する。
func TestRemoveBackground_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
	}))
	defer server.Close()

	client := NewClient(server.Client(), testLogger(), "test-key")
	client.endpoint = server.URL

	_, err := client.RemoveBackground(context.Background(), []byte("input"), "photo.jpg")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeRemoveBGFailed {
		t.Fatalf("expected REMOVEBG_FAILED, got %v", err)
	}
}

// TestRemoveBackground_EmptyImage は空画像が即座にエラーになることを確認する。
func TestRemoveBackground_EmptyImage(t *testing.T) {
	client := NewClient(http.DefaultClient, testLogger(), "test-key")

	_, err := client.RemoveBackground(context.Background(), nil, "x.jpg")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeRemoveBGFailed {
		t.Fatalf("expected REMOVEBG_FAILED, got %v", err)
	}
}
