// Package slack is the chat transport: an API client for posting
// messages and files, and HTTP handlers for slash commands and events.
package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"pulse/bot/internal/export"
)

// Client talks to the Slack Web API.
type Client struct {
	http *resty.Client
}

func NewClient(baseURL, botToken string) *Client {
	http := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(botToken).
		SetTimeout(10 * time.Second)
	return &Client{http: http}
}

type apiResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// Post sends a message to a channel.
func (c *Client) Post(ctx context.Context, channelID, text string) error {
	var out apiResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"channel": channelID, "text": text}).
		SetResult(&out).
		Post("/api/chat.postMessage")
	if err != nil {
		return fmt.Errorf("slack: post message: %w", err)
	}
	if resp.IsError() || !out.OK {
		return fmt.Errorf("slack: post message to %s: %s", channelID, apiError(resp, out))
	}
	return nil
}

// Upload pushes a rendered report into a channel using the external
// upload flow: get an upload URL, send the bytes, complete the upload.
func (c *Client) Upload(ctx context.Context, channelID string, res *export.Result) error {
	var ticket struct {
		apiResponse
		UploadURL string `json:"upload_url"`
		FileID    string `json:"file_id"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"filename": res.Filename,
			"length":   fmt.Sprintf("%d", len(res.Data)),
		}).
		SetResult(&ticket).
		Get("/api/files.getUploadURLExternal")
	if err != nil {
		return fmt.Errorf("slack: get upload url: %w", err)
	}
	if resp.IsError() || !ticket.OK {
		return fmt.Errorf("slack: get upload url: %s", apiError(resp, ticket.apiResponse))
	}

	put, err := resty.New().SetTimeout(30*time.Second).R().
		SetContext(ctx).
		SetHeader("Content-Type", res.MimeType).
		SetBody(res.Data).
		Post(ticket.UploadURL)
	if err != nil {
		return fmt.Errorf("slack: upload bytes: %w", err)
	}
	if put.IsError() {
		return fmt.Errorf("slack: upload bytes: status %d", put.StatusCode())
	}

	files, err := json.Marshal([]map[string]string{{"id": ticket.FileID, "title": res.Filename}})
	if err != nil {
		return fmt.Errorf("slack: encode upload completion: %w", err)
	}
	var done apiResponse
	resp, err = c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"files":      string(files),
			"channel_id": channelID,
		}).
		SetResult(&done).
		Post("/api/files.completeUploadExternal")
	if err != nil {
		return fmt.Errorf("slack: complete upload: %w", err)
	}
	if resp.IsError() || !done.OK {
		return fmt.Errorf("slack: complete upload: %s", apiError(resp, done))
	}
	return nil
}

// UserEmail resolves a user id to the profile email used by the
// allow-lists. Missing emails come back empty, not as an error.
func (c *Client) UserEmail(ctx context.Context, userID string) (string, error) {
	var out struct {
		apiResponse
		User struct {
			Profile struct {
				Email string `json:"email"`
			} `json:"profile"`
		} `json:"user"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("user", userID).
		SetResult(&out).
		Get("/api/users.info")
	if err != nil {
		return "", fmt.Errorf("slack: users.info %s: %w", userID, err)
	}
	if resp.IsError() || !out.OK {
		return "", fmt.Errorf("slack: users.info %s: %s", userID, apiError(resp, out.apiResponse))
	}
	return out.User.Profile.Email, nil
}

func apiError(resp *resty.Response, out apiResponse) string {
	if out.Error != "" {
		return out.Error
	}
	return fmt.Sprintf("status %d", resp.StatusCode())
}
