package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"pulse/bot/internal/store"
)

// RecordStore is the slice of the gist store the extractor needs.
type RecordStore interface {
	Get(ctx context.Context, client string) (*store.ProjectRecord, error)
	ListAll(ctx context.Context) ([]*store.ProjectRecord, error)
	Put(ctx context.Context, rec *store.ProjectRecord) error
}

// Completer produces a one-shot model completion.
type Completer interface {
	Complete(ctx context.Context, system, user string, jsonOnly bool, timeout time.Duration) (string, error)
	Model() string
}

// Syncer pushes an updated record to the knowledge base in the background.
type Syncer interface {
	SyncRecord(ctx context.Context, rec *store.ProjectRecord)
}

// Extracted is the structured payload the model pulls out of an email.
type Extracted struct {
	Client  string `json:"client"`
	Status  string `json:"status"`
	Blocker string `json:"blocker"`
	Summary string `json:"summary"`
}

const previewLimit = 150

const extractTimeout = 15 * time.Second

// Extractor turns raw email text into a persisted project update.
type Extractor struct {
	records RecordStore
	llm     Completer
	kb      Syncer        // optional
	locks   *store.Locker // optional, shared with the command handlers
}

func NewExtractor(records RecordStore, llm Completer, kb Syncer, locks *store.Locker) *Extractor {
	return &Extractor{records: records, llm: llm, kb: kb, locks: locks}
}

const extractSystem = "You are a project status parser. You read client emails and extract structured status updates. Respond only with JSON."

func extractPrompt(clients []string, rawText string) string {
	var b strings.Builder
	b.WriteString("Known clients: ")
	b.WriteString(strings.Join(clients, ", "))
	b.WriteString("\n\nExtract from the email below a JSON object with keys ")
	b.WriteString(`"client" (must match one of the known clients), "status" (current project status in one sentence), "blocker" (current blocker, or empty string if none), "summary" (one-line summary of the email).`)
	b.WriteString("\n\nEmail:\n")
	b.WriteString(rawText)
	return b.String()
}

// ExtractAndApply parses rawText, resolves the client it mentions and
// persists the update. correlationID ties the email entry back to the
// originating message.
func (e *Extractor) ExtractAndApply(ctx context.Context, rawText, correlationID string) (*store.ProjectRecord, error) {
	all, err := e.records.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("extract: list records: %w", err)
	}
	names := make([]string, 0, len(all))
	for _, rec := range all {
		names = append(names, rec.Client)
	}

	raw, err := e.llm.Complete(ctx, extractSystem, extractPrompt(names, rawText), true, extractTimeout)
	if err != nil {
		return nil, fmt.Errorf("extract: completion: %w", err)
	}

	var parsed Extracted
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &parsed); err != nil {
		log.Printf("extract: unparseable model output: %v", err)
		return nil, ErrParse
	}
	parsed.Client = strings.TrimSpace(parsed.Client)
	if parsed.Client == "" {
		return nil, ErrParse
	}

	if e.locks != nil {
		unlock := e.locks.Lock(parsed.Client)
		defer unlock()
	}
	rec, err := e.resolve(ctx, parsed.Client, all)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	rec.EmailHistory = append(rec.EmailHistory, store.EmailEntry{
		Timestamp:       now.Format("2006-01-02 15:04:05"),
		Summary:         parsed.Summary,
		StatusExtracted: parsed.Status,
		RawTextPreview:  preview(rawText),
		SlackTS:         correlationID,
	})
	if len(rec.EmailHistory) > store.MaxEmailHistory {
		rec.EmailHistory = rec.EmailHistory[len(rec.EmailHistory)-store.MaxEmailHistory:]
	}

	if strings.TrimSpace(parsed.Status) != "" {
		rec.Status = parsed.Status
	}
	if strings.TrimSpace(parsed.Blocker) != "" {
		rec.Blocker = parsed.Blocker
	}
	rec.LastUpdated = now.Format("2006-01-02 15:04")
	rec.LastEmailReceived = now.Format("2006-01-02 15:04")
	rec.CommChannel = "Email"

	if err := e.records.Put(ctx, rec); err != nil {
		return nil, fmt.Errorf("extract: save %q: %w", rec.Client, err)
	}
	if e.kb != nil {
		go e.kb.SyncRecord(context.Background(), rec)
	}
	return rec, nil
}

// resolve finds the record for name, exact match first, then a
// case-insensitive scan over the records already listed.
func (e *Extractor) resolve(ctx context.Context, name string, all []*store.ProjectRecord) (*store.ProjectRecord, error) {
	rec, err := e.records.Get(ctx, name)
	if err == nil {
		return rec, nil
	}
	for _, cand := range all {
		if strings.EqualFold(cand.Client, name) {
			// Re-read under the canonical name so the mutation starts
			// from the freshest copy, not the listing snapshot.
			if fresh, gerr := e.records.Get(ctx, cand.Client); gerr == nil {
				return fresh, nil
			}
			return cand, nil
		}
	}
	log.Printf("extract: no record matches client %q", name)
	return nil, ErrNoMatch
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewLimit {
		return text
	}
	return string(runes[:previewLimit]) + "..."
}
