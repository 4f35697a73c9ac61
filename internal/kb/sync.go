// Package kb mirrors project records into the model provider's vector
// store so the assistant can ground its answers on current data.
package kb

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"pulse/bot/internal/store"
)

// Uploader is the slice of the model client the syncer needs.
type Uploader interface {
	UploadFile(ctx context.Context, filename string, data []byte) (string, error)
	AddFileToVectorStore(ctx context.Context, vectorStoreID, fileID string) error
}

// LogEntry is one activity line pushed alongside record snapshots.
type LogEntry struct {
	Client    string `json:"client"`
	Type      string `json:"type"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	User      string `json:"user"`
}

// Syncer uploads record snapshots and activity logs. Every failure is
// logged and swallowed, knowledge base freshness is best effort.
type Syncer struct {
	uploader      Uploader
	vectorStoreID string
}

func NewSyncer(uploader Uploader, vectorStoreID string) *Syncer {
	return &Syncer{uploader: uploader, vectorStoreID: vectorStoreID}
}

// Enabled reports whether a vector store is configured.
func (s *Syncer) Enabled() bool {
	return s != nil && s.vectorStoreID != "" && s.uploader != nil
}

// SyncRecord pushes the current snapshot of one record.
func (s *Syncer) SyncRecord(ctx context.Context, rec *store.ProjectRecord) {
	if !s.Enabled() || rec == nil {
		return
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		log.Printf("kb: marshal record %q: %v", rec.Client, err)
		return
	}
	name := fmt.Sprintf("project_%s.json", sanitize(rec.Client))
	s.upload(ctx, name, data)
}

// SyncAll pushes a snapshot of every record plus a combined activity log
// built from their histories.
func (s *Syncer) SyncAll(ctx context.Context, records []*store.ProjectRecord) {
	if !s.Enabled() {
		return
	}
	for _, rec := range records {
		s.SyncRecord(ctx, rec)
	}
	logDump := buildLogDump(records)
	if logDump == "" {
		return
	}
	name := fmt.Sprintf("activity_log_%s.txt", time.Now().Format("20060102_150405"))
	s.upload(ctx, name, []byte(logDump))
}

func (s *Syncer) upload(ctx context.Context, name string, data []byte) {
	fileID, err := s.uploader.UploadFile(ctx, name, data)
	if err != nil {
		log.Printf("kb: upload %s: %v", name, err)
		return
	}
	if err := s.uploader.AddFileToVectorStore(ctx, s.vectorStoreID, fileID); err != nil {
		log.Printf("kb: attach %s to vector store: %v", name, err)
	}
}

// buildLogDump renders change and email history as one plain-text log.
func buildLogDump(records []*store.ProjectRecord) string {
	var entries []LogEntry
	for _, rec := range records {
		for _, ch := range rec.History {
			var parts []string
			for field, fc := range ch.Changes {
				parts = append(parts, fmt.Sprintf("%s: %q -> %q", field, fc.Old, fc.New))
			}
			entries = append(entries, LogEntry{
				Client:    rec.Client,
				Type:      "change",
				Content:   strings.Join(parts, "; "),
				Timestamp: ch.Timestamp,
				User:      ch.User,
			})
		}
		for _, em := range rec.EmailHistory {
			entries = append(entries, LogEntry{
				Client:    rec.Client,
				Type:      "email",
				Content:   em.Summary,
				Timestamp: em.Timestamp,
			})
		}
	}
	if len(entries) == 0 {
		return ""
	}
	var b strings.Builder
	for _, e := range entries {
		line, err := json.Marshal(e)
		if err != nil {
			continue
		}
		b.Write(line)
		b.WriteByte('\n')
	}
	return b.String()
}

func sanitize(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, " ", "_")
	var b strings.Builder
	for _, r := range name {
		if r == '_' || r == '-' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
