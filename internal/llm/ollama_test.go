package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestOllamaClientCallsImageModelThenTextModel(t *testing.T) {
	var calls []generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		calls = append(calls, req)

		resp := generateResponse{Response: "fallback"}
		if req.Model == "llava" {
			resp.Response = "a person wearing a red jacket"
		} else {
			resp.Response = "Caption_EN: Hello.\nCaption_TC: 你好。\nWeapons: 01"
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	dir := t.TempDir()
	imgPath := filepath.Join(dir, "shot.jpg")
	if err := os.WriteFile(imgPath, []byte("not-really-a-jpeg"), 0o644); err != nil {
		t.Fatalf("writing fixture image: %v", err)
	}

	c := NewOllamaClient(srv.URL)
	raw, err := c.Query(context.Background(), imgPath, "Image: {image_description}\nTools:\n{weapon_list}")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if raw != "Caption_EN: Hello.\nCaption_TC: 你好。\nWeapons: 01" {
		t.Errorf("unexpected raw response: %q", raw)
	}

	if len(calls) != 2 {
		t.Fatalf("expected 2 generate calls (image then text), got %d", len(calls))
	}
	if calls[0].Model != "llava" || len(calls[0].Images) != 1 {
		t.Errorf("first call should target the image model with an embedded image, got %+v", calls[0])
	}
	if calls[1].Model != "yi:9b-chat-v1.5-q4_K_M" {
		t.Errorf("second call should target the text model, got %q", calls[1].Model)
	}
	if got := calls[1].Prompt; got != "Image: a person wearing a red jacket\nTools:\n{weapon_list}" {
		t.Errorf("image description was not substituted into the prompt: %q", got)
	}
}

func TestOllamaClientMissingImageFileFails(t *testing.T) {
	c := NewOllamaClient("http://127.0.0.1:0")
	if _, err := c.Query(context.Background(), "/nonexistent/path.jpg", "{image_description}"); err == nil {
		t.Error("expected an error for a missing screenshot file")
	}
}

func TestOllamaClientServerErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	dir := t.TempDir()
	imgPath := filepath.Join(dir, "shot.jpg")
	os.WriteFile(imgPath, []byte("x"), 0o644)

	c := NewOllamaClient(srv.URL)
	if _, err := c.Query(context.Background(), imgPath, "{image_description}"); err == nil {
		t.Error("expected the text/image model's 500 to surface as an error")
	}
}
