// Package ai talks to the OpenAI API: plain chat completions, the
// assistant (knowledge base) run loop, and the file/vector-store uploads
// backing it. It also hosts the email extraction pipeline and the Q&A
// answerer built on those calls.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

var (
	// ErrTimeout means the local wait budget ran out. The remote run may
	// still complete later; only the wait stops.
	ErrTimeout = errors.New("ai: wait budget exceeded")
	// ErrParse means the model response was not the structured JSON the
	// extraction prompt demands.
	ErrParse = errors.New("ai: response is not valid structured JSON")
	// ErrNoMatch means the extracted client name resolves to no record.
	ErrNoMatch = errors.New("ai: extracted client matches no record")
)

// Client is a thin OpenAI API client.
type Client struct {
	http  *resty.Client
	model string
	// pollInterval is how often assistant runs are re-checked.
	pollInterval time.Duration
}

func NewClient(baseURL, apiKey, model string) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Authorization", "Bearer "+apiKey).
		SetHeader("OpenAI-Beta", "assistants=v2")
	return &Client{http: c, model: model, pollInterval: time.Second}
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete runs one stateless chat completion and returns the reply text.
// jsonOnly constrains the model to emit a single JSON object.
func (c *Client) Complete(ctx context.Context, system, user string, jsonOnly bool, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}
	if jsonOnly {
		req.ResponseFormat = &struct {
			Type string `json:"type"`
		}{Type: "json_object"}
	}

	resp, err := c.http.R().SetContext(ctx).SetBody(&req).Post("/v1/chat/completions")
	if err != nil {
		if ctx.Err() != nil {
			return "", ErrTimeout
		}
		return "", fmt.Errorf("ai: completion: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("ai: completion: status %d: %s", resp.StatusCode(), resp.String())
	}
	var out chatResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", fmt.Errorf("ai: completion: decode: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("ai: completion: empty choices")
	}
	return out.Choices[0].Message.Content, nil
}

// UploadFile pushes one file into the provider with purpose "assistants"
// and returns its file ID.
func (c *Client) UploadFile(ctx context.Context, filename string, data []byte) (string, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetFileReader("file", filename, bytes.NewReader(data)).
		SetFormData(map[string]string{"purpose": "assistants"}).
		Post("/v1/files")
	if err != nil {
		return "", fmt.Errorf("ai: upload %s: %w", filename, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("ai: upload %s: status %d", filename, resp.StatusCode())
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", fmt.Errorf("ai: upload %s: decode: %w", filename, err)
	}
	return out.ID, nil
}

// AddFileToVectorStore attaches an uploaded file to the knowledge-base
// vector store.
func (c *Client) AddFileToVectorStore(ctx context.Context, vectorStoreID, fileID string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"file_id": fileID}).
		Post("/v1/vector_stores/" + vectorStoreID + "/files")
	if err != nil {
		return fmt.Errorf("ai: vector store add: %w", err)
	}
	if resp.StatusCode() >= 300 {
		return fmt.Errorf("ai: vector store add: status %d", resp.StatusCode())
	}
	return nil
}
