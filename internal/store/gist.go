// Package store persists project records in a GitHub Gist: one JSON blob
// per client, named "{client}.json".
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	// legacyFilename is the old single-aggregate blob. It is migrated on
	// startup and skipped during enumeration.
	legacyFilename = "projects.json"
	// placeholderFilename is the default blob GitHub creates with a new
	// gist. Never a record.
	placeholderFilename = "gistfile1.txt"
)

var (
	ErrNotFound      = errors.New("store: record not found")
	ErrDecode        = errors.New("store: malformed record blob")
	ErrInvalidRecord = errors.New("store: record missing client name")
)

// Gist is the record store adapter. It owns persistence exclusively; every
// other component reads through it and writes back through it within one
// logical operation.
type Gist struct {
	client *resty.Client
	gistID string
}

// NewGist creates a store against the given API base URL (the public
// GitHub API in production, an httptest server in tests).
func NewGist(baseURL, token, gistID string) *Gist {
	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/vnd.github.v3+json").
		SetHeader("Authorization", "token "+token).
		SetTimeout(10 * time.Second)
	return &Gist{client: c, gistID: gistID}
}

type gistFile struct {
	Content string `json:"content"`
}

type gistContainer struct {
	Files map[string]gistFile `json:"files"`
}

// gistPatch uses pointers so a nil entry serializes as null, which deletes
// the named blob.
type gistPatch struct {
	Files map[string]*gistFile `json:"files"`
}

func recordFilename(client string) string {
	return client + ".json"
}

func (g *Gist) fetch(ctx context.Context) (*gistContainer, error) {
	resp, err := g.client.R().SetContext(ctx).Get("/gists/" + g.gistID)
	if err != nil {
		return nil, fmt.Errorf("gist fetch: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("gist fetch: status %d", resp.StatusCode())
	}
	var container gistContainer
	if err := json.Unmarshal(resp.Body(), &container); err != nil {
		return nil, fmt.Errorf("gist fetch: decode container: %w", err)
	}
	return &container, nil
}

func (g *Gist) patch(ctx context.Context, p gistPatch) error {
	resp, err := g.client.R().SetContext(ctx).SetBody(p).Patch("/gists/" + g.gistID)
	if err != nil {
		return fmt.Errorf("gist patch: %w", err)
	}
	if resp.StatusCode() >= 300 {
		return fmt.Errorf("gist patch: status %d", resp.StatusCode())
	}
	return nil
}

// Get fetches one record by client name (exact key). Returns ErrNotFound
// if no such blob exists, ErrDecode if the blob is not a valid record.
func (g *Gist) Get(ctx context.Context, client string) (*ProjectRecord, error) {
	if client == "" {
		return nil, ErrNotFound
	}
	container, err := g.fetch(ctx)
	if err != nil {
		log.Printf("store: get %q: %v", client, err)
		return nil, err
	}
	file, ok := container.Files[recordFilename(client)]
	if !ok || file.Content == "" {
		return nil, ErrNotFound
	}
	var rec ProjectRecord
	if err := json.Unmarshal([]byte(file.Content), &rec); err != nil {
		log.Printf("store: get %q: %v", client, err)
		return nil, ErrDecode
	}
	return &rec, nil
}

// Put serializes and overwrites (or creates) the record's blob. Callers
// must supply the full record; there is no partial-field update.
func (g *Gist) Put(ctx context.Context, rec *ProjectRecord) error {
	if rec == nil || rec.Client == "" {
		return ErrInvalidRecord
	}
	content, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("store: put %q: %w", rec.Client, err)
	}
	p := gistPatch{Files: map[string]*gistFile{
		recordFilename(rec.Client): {Content: string(content)},
	}}
	if err := g.patch(ctx, p); err != nil {
		log.Printf("store: put %q: %v", rec.Client, err)
		return err
	}
	return nil
}

// Delete removes a record's blob. Used for renames; tolerant of an
// already-absent blob.
func (g *Gist) Delete(ctx context.Context, client string) error {
	if client == "" {
		return nil
	}
	p := gistPatch{Files: map[string]*gistFile{recordFilename(client): nil}}
	if err := g.patch(ctx, p); err != nil {
		log.Printf("store: delete %q: %v", client, err)
		return err
	}
	return nil
}

// ListAll enumerates every record blob in the gist, skipping the legacy
// aggregate, the placeholder, non-JSON names, undecodable blobs, and blobs
// without a client key. Order follows container enumeration and is
// unspecified. Remote failure yields an empty list plus the error.
func (g *Gist) ListAll(ctx context.Context) ([]*ProjectRecord, error) {
	container, err := g.fetch(ctx)
	if err != nil {
		log.Printf("store: list: %v", err)
		return nil, err
	}
	var records []*ProjectRecord
	for name, file := range container.Files {
		if name == legacyFilename || name == placeholderFilename {
			continue
		}
		if !strings.HasSuffix(name, ".json") || file.Content == "" {
			continue
		}
		var rec ProjectRecord
		if err := json.Unmarshal([]byte(file.Content), &rec); err != nil {
			continue
		}
		if rec.Client == "" {
			continue
		}
		records = append(records, &rec)
	}
	return records, nil
}

// BulkSave writes back an entire collection in a single PATCH, one file
// entry per record with a non-empty client name. Kept for callers that
// fetch, mutate, and save the whole list; prefer Put for single records.
func (g *Gist) BulkSave(ctx context.Context, records []*ProjectRecord) error {
	files := make(map[string]*gistFile)
	for _, rec := range records {
		if rec.Client == "" {
			log.Printf("store: bulk save: skipping record without client name")
			continue
		}
		content, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return fmt.Errorf("store: bulk save %q: %w", rec.Client, err)
		}
		files[recordFilename(rec.Client)] = &gistFile{Content: string(content)}
	}
	if len(files) == 0 {
		return nil
	}
	if err := g.patch(ctx, gistPatch{Files: files}); err != nil {
		log.Printf("store: bulk save: %v", err)
		return err
	}
	return nil
}
