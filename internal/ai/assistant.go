package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

type runState struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	LastError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_error"`
}

// RunAssistant asks the knowledge-base assistant one question: create a
// thread, post the message, start a run, poll until it settles, and read
// the first response message. budget bounds the local wait only; the
// remote run is not cancelled on timeout.
func (c *Client) RunAssistant(ctx context.Context, assistantID, message string, budget time.Duration) (string, error) {
	threadID, err := c.createThread(ctx)
	if err != nil {
		return "", err
	}
	if err := c.postMessage(ctx, threadID, message); err != nil {
		return "", err
	}
	run, err := c.startRun(ctx, threadID, assistantID)
	if err != nil {
		return "", err
	}

	deadline := time.Now().Add(budget)
	for run.Status == "queued" || run.Status == "in_progress" || run.Status == "cancelling" {
		if time.Now().After(deadline) {
			log.Printf("ai: assistant run timed out after %s", budget)
			return "", ErrTimeout
		}
		select {
		case <-ctx.Done():
			return "", ErrTimeout
		case <-time.After(c.pollInterval):
		}
		run, err = c.getRun(ctx, threadID, run.ID)
		if err != nil {
			return "", err
		}
	}

	switch run.Status {
	case "completed":
		return c.firstMessage(ctx, threadID)
	case "failed":
		if run.LastError != nil {
			return "", fmt.Errorf("ai: assistant run failed: %s: %s", run.LastError.Code, run.LastError.Message)
		}
		return "", fmt.Errorf("ai: assistant run failed")
	default:
		return "", fmt.Errorf("ai: assistant run ended with status %q", run.Status)
	}
}

func (c *Client) createThread(ctx context.Context) (string, error) {
	resp, err := c.http.R().SetContext(ctx).SetBody(map[string]any{}).Post("/v1/threads")
	if err != nil {
		return "", fmt.Errorf("ai: create thread: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("ai: create thread: status %d", resp.StatusCode())
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", fmt.Errorf("ai: create thread: decode: %w", err)
	}
	return out.ID, nil
}

func (c *Client) postMessage(ctx context.Context, threadID, content string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"role": "user", "content": content}).
		Post("/v1/threads/" + threadID + "/messages")
	if err != nil {
		return fmt.Errorf("ai: post message: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("ai: post message: status %d", resp.StatusCode())
	}
	return nil
}

func (c *Client) startRun(ctx context.Context, threadID, assistantID string) (*runState, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"assistant_id": assistantID}).
		Post("/v1/threads/" + threadID + "/runs")
	if err != nil {
		return nil, fmt.Errorf("ai: start run: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("ai: start run: status %d", resp.StatusCode())
	}
	var run runState
	if err := json.Unmarshal(resp.Body(), &run); err != nil {
		return nil, fmt.Errorf("ai: start run: decode: %w", err)
	}
	return &run, nil
}

func (c *Client) getRun(ctx context.Context, threadID, runID string) (*runState, error) {
	resp, err := c.http.R().SetContext(ctx).Get("/v1/threads/" + threadID + "/runs/" + runID)
	if err != nil {
		return nil, fmt.Errorf("ai: poll run: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("ai: poll run: status %d", resp.StatusCode())
	}
	var run runState
	if err := json.Unmarshal(resp.Body(), &run); err != nil {
		return nil, fmt.Errorf("ai: poll run: decode: %w", err)
	}
	return &run, nil
}

func (c *Client) firstMessage(ctx context.Context, threadID string) (string, error) {
	resp, err := c.http.R().SetContext(ctx).Get("/v1/threads/" + threadID + "/messages")
	if err != nil {
		return "", fmt.Errorf("ai: list messages: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("ai: list messages: status %d", resp.StatusCode())
	}
	var out struct {
		Data []struct {
			Content []struct {
				Text struct {
					Value string `json:"value"`
				} `json:"text"`
			} `json:"content"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", fmt.Errorf("ai: list messages: decode: %w", err)
	}
	if len(out.Data) == 0 || len(out.Data[0].Content) == 0 {
		return "", fmt.Errorf("ai: assistant returned no messages")
	}
	return StripCitations(out.Data[0].Content[0].Text.Value), nil
}
