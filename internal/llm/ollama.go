package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// OllamaClient talks to a local Ollama server (spec §4.9's "two models
// called sequentially"): an image model narrates the screenshot, then a
// text model turns that narration plus the caller's filled-in prompt
// into the three-section response internal/llm.Parse expects.
type OllamaClient struct {
	BaseURL    string
	ImageModel string
	TextModel  string

	httpClient *http.Client
}

// NewOllamaClient builds a client against baseURL (e.g.
// "http://localhost:11434"), defaulting to the installation's original
// model pairing: llava for image description, yi for strategy text.
func NewOllamaClient(baseURL string) *OllamaClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaClient{
		BaseURL:    baseURL,
		ImageModel: "llava",
		TextModel:  "yi:9b-chat-v1.5-q4_K_M",
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// Query implements pkg/installation.LLMClient. prompt must still contain
// the literal "{image_description}" placeholder; Query fills it in with
// the image model's narration before asking the text model to choose
// tools and write captions.
func (c *OllamaClient) Query(ctx context.Context, imagePath, prompt string) (string, error) {
	description, err := c.describeImage(ctx, imagePath)
	if err != nil {
		return "", fmt.Errorf("llm: image analysis: %w", err)
	}

	filled := strings.Replace(prompt, "{image_description}", description, 1)
	strategy, err := c.generate(ctx, c.TextModel, filled, nil)
	if err != nil {
		return "", fmt.Errorf("llm: strategy generation: %w", err)
	}
	return strategy, nil
}

func (c *OllamaClient) describeImage(ctx context.Context, imagePath string) (string, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return "", fmt.Errorf("reading screenshot: %w", err)
	}
	b64 := base64.StdEncoding.EncodeToString(data)
	return c.generate(ctx, c.ImageModel,
		"Describe this person's appearance, clothing, and any notable features in detail.",
		[]string{b64})
}

type generateRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	Images []string `json:"images,omitempty"`
	Stream bool     `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

func (c *OllamaClient) generate(ctx context.Context, model, prompt string, images []string) (string, error) {
	body, err := json.Marshal(generateRequest{Model: model, Prompt: prompt, Images: images, Stream: false})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("ollama %s: %s: %s", model, resp.Status, msg)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding ollama response: %w", err)
	}
	return out.Response, nil
}
