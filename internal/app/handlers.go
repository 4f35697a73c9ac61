package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strings"

	"pulse/bot/internal/authz"
	"pulse/bot/internal/export"
	"pulse/bot/internal/store"
	"pulse/bot/internal/track"
)

// newClientDefaults seed a freshly added client record.
var newClientDefaults = map[string]string{
	"owner":     store.Sentinel,
	"developer": "Unassigned",
	"category":  store.CategoryInProgress,
	"status":    "Initialized",
	"blocker":   store.Sentinel,
}

// resolveClient finds a record by name, exact first, then
// case-insensitive.
func (s *Service) resolveClient(ctx context.Context, name string) (*store.ProjectRecord, *DomainError) {
	rec, err := s.records.Get(ctx, name)
	if err == nil {
		return rec, nil
	}
	all, err := s.records.ListAll(ctx)
	if err != nil {
		return nil, domainError(http.StatusBadGateway, "upstream", "could not load project records", nil)
	}
	for _, cand := range all {
		if strings.EqualFold(cand.Client, name) {
			return cand, nil
		}
	}
	return nil, domainError(http.StatusNotFound, "not_found", fmt.Sprintf("no project found for %q", name), nil)
}

// scopeClient decides which client an operation targets. External
// channels are pinned to their mapped client.
func scopeClient(cctx authz.Context, requested string) (string, *DomainError) {
	if cctx.Scope == authz.ScopeExternal {
		if requested != "" && !strings.EqualFold(requested, cctx.Client) {
			return "", domainError(http.StatusForbidden, "unauthorized", "this channel can only work with its own project", nil)
		}
		if cctx.Client == "" {
			return "", domainError(http.StatusBadRequest, "invalid", "this channel is not mapped to a client", nil)
		}
		return cctx.Client, nil
	}
	if requested == "" {
		return "", domainError(http.StatusBadRequest, "invalid", "a client name is required", nil)
	}
	return requested, nil
}

// UpdateProject applies field changes to one client's record and
// returns a human-readable summary of what changed.
func (s *Service) UpdateProject(ctx context.Context, actor Actor, channelID, client string, fields map[string]string) (string, error) {
	cctx, derr := s.authorize(actor, channelID, false)
	if derr != nil {
		return "", derr
	}
	target, derr := scopeClient(cctx, client)
	if derr != nil {
		return "", derr
	}

	unlock := s.lockClient(target)
	defer unlock()

	rec, derr := s.resolveClient(ctx, target)
	if derr != nil {
		return "", derr
	}
	summary := track.Apply(rec, fields, actor.auditIdentity())
	if !summary.Changed {
		return fmt.Sprintf("No changes for *%s*, everything already matches.", rec.Client), nil
	}
	if err := s.records.Put(ctx, rec); err != nil {
		return "", domainError(http.StatusBadGateway, "upstream", "saving the update failed", nil)
	}
	s.syncInBackground(rec)

	var lines []string
	lines = append(lines, fmt.Sprintf("Updated *%s*:", rec.Client))
	for _, field := range track.TrackedFields {
		fc, ok := summary.Changes[field]
		if !ok {
			continue
		}
		lines = append(lines, fmt.Sprintf("• %s: %s → %s", field, fc.Old, fc.New))
	}
	return strings.Join(lines, "\n"), nil
}

// AddClient creates a record with starter defaults.
func (s *Service) AddClient(ctx context.Context, actor Actor, channelID, client string) (string, error) {
	if _, derr := s.authorize(actor, channelID, true); derr != nil {
		return "", derr
	}
	client = strings.TrimSpace(client)
	if client == "" {
		return "", domainError(http.StatusBadRequest, "invalid", "a client name is required", nil)
	}

	unlock := s.lockClient(client)
	defer unlock()

	if _, err := s.records.Get(ctx, client); err == nil {
		return "", domainError(http.StatusConflict, "exists", fmt.Sprintf("client %q already exists", client), nil)
	}
	rec := &store.ProjectRecord{Client: client}
	track.Apply(rec, newClientDefaults, actor.auditIdentity())
	if err := s.records.Put(ctx, rec); err != nil {
		return "", domainError(http.StatusBadGateway, "upstream", "creating the client failed", nil)
	}
	s.syncInBackground(rec)
	return fmt.Sprintf("Added *%s* with starter defaults.", client), nil
}

// RenameClient moves a record to a new name. The new blob is written
// before the old one is deleted so a failure cannot lose the record.
func (s *Service) RenameClient(ctx context.Context, actor Actor, channelID, from, to string) (string, error) {
	if _, derr := s.authorize(actor, channelID, true); derr != nil {
		return "", derr
	}
	to = strings.TrimSpace(to)
	if to == "" {
		return "", domainError(http.StatusBadRequest, "invalid", "a new client name is required", nil)
	}

	unlock := s.lockClient(from)
	defer unlock()

	rec, derr := s.resolveClient(ctx, from)
	if derr != nil {
		return "", derr
	}
	if _, err := s.records.Get(ctx, to); err == nil {
		return "", domainError(http.StatusConflict, "exists", fmt.Sprintf("client %q already exists", to), nil)
	}
	oldName := rec.Client
	rec.Client = to
	if err := s.records.Put(ctx, rec); err != nil {
		rec.Client = oldName
		return "", domainError(http.StatusBadGateway, "upstream", "saving the renamed record failed", nil)
	}
	if err := s.records.Delete(ctx, oldName); err != nil {
		log.Printf("app: rename %q -> %q left the old blob behind: %v", oldName, to, err)
	}
	s.syncInBackground(rec)
	return fmt.Sprintf("Renamed *%s* to *%s*.", oldName, to), nil
}

const (
	recentHistoryEntries = 10
	historyValueLimit    = 50
	historySummaryLimit  = 80
)

// History formats a client's change and email history, newest first.
// The recent view shows the last few entries, the full view everything
// retained.
func (s *Service) History(ctx context.Context, actor Actor, channelID, client string, full bool) (string, error) {
	cctx, derr := s.authorize(actor, channelID, false)
	if derr != nil {
		return "", derr
	}
	target, derr := scopeClient(cctx, client)
	if derr != nil {
		return "", derr
	}
	rec, derr := s.resolveClient(ctx, target)
	if derr != nil {
		return "", derr
	}

	changes := rec.History
	emails := rec.EmailHistory
	if !full {
		if len(changes) > recentHistoryEntries {
			changes = changes[len(changes)-recentHistoryEntries:]
		}
		if len(emails) > recentHistoryEntries {
			emails = emails[len(emails)-recentHistoryEntries:]
		}
	}
	if len(changes) == 0 && len(emails) == 0 {
		return fmt.Sprintf("No history recorded for *%s* yet.", rec.Client), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "History for *%s*:\n", rec.Client)
	for i := len(changes) - 1; i >= 0; i-- {
		entry := changes[i]
		fmt.Fprintf(&b, "%s by %s\n", entry.Timestamp, entry.User)
		fields := make([]string, 0, len(entry.Changes))
		for field := range entry.Changes {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		for _, field := range fields {
			fc := entry.Changes[field]
			fmt.Fprintf(&b, "  • %s: %s → %s\n", field, truncate(fc.Old, historyValueLimit), truncate(fc.New, historyValueLimit))
		}
	}
	for i := len(emails) - 1; i >= 0; i-- {
		em := emails[i]
		fmt.Fprintf(&b, "%s email: %s\n", em.Timestamp, truncate(em.Summary, historySummaryLimit))
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

// Ask answers a question synchronously within the channel's visibility.
func (s *Service) Ask(ctx context.Context, actor Actor, channelID, question string) (string, error) {
	cctx, derr := s.authorize(actor, channelID, false)
	if derr != nil {
		return "", derr
	}
	if strings.TrimSpace(question) == "" {
		return "", domainError(http.StatusBadRequest, "invalid", "ask me something", nil)
	}
	answer, err := s.answer.Answer(ctx, question, cctx, false)
	if err != nil {
		log.Printf("app: ask failed: %v", err)
		return "", domainError(http.StatusBadGateway, "upstream", "I could not produce an answer right now", nil)
	}
	return answer, nil
}

// AskAsync queues the question on the worker pool and posts the answer
// back to the channel when it is ready.
func (s *Service) AskAsync(actor Actor, channelID, question string) error {
	cctx, derr := s.authorize(actor, channelID, false)
	if derr != nil {
		return derr
	}
	if strings.TrimSpace(question) == "" {
		return domainError(http.StatusBadRequest, "invalid", "ask me something", nil)
	}
	ok := s.pool.submit(func() {
		ctx := context.Background()
		answer, err := s.answer.Answer(ctx, question, cctx, true)
		if err != nil {
			log.Printf("app: background ask failed: %v", err)
			answer = "I could not produce an answer right now, please try again."
		}
		if err := s.messenger.Post(ctx, channelID, answer); err != nil {
			log.Printf("app: posting answer to %s failed: %v", channelID, err)
		}
	})
	if !ok {
		return domainError(http.StatusServiceUnavailable, "busy", "too many questions in flight, try again shortly", nil)
	}
	return nil
}

// PublishReport posts the text status report to the report channel.
func (s *Service) PublishReport(ctx context.Context, actor Actor, channelID string) error {
	if _, derr := s.authorize(actor, channelID, true); derr != nil {
		return derr
	}
	return s.postReport(ctx)
}

// DailyReport posts the scheduled morning digest and refreshes the
// knowledge base. It runs with no actor.
func (s *Service) DailyReport(ctx context.Context) error {
	if s.reportChannelID == "" {
		return domainError(http.StatusBadRequest, "invalid", "no report channel configured", nil)
	}
	records, err := s.records.ListAll(ctx)
	if err != nil {
		return domainError(http.StatusBadGateway, "upstream", "could not load project records", nil)
	}
	if err := s.messenger.Post(ctx, s.reportChannelID, BuildDailyDigest(records)); err != nil {
		return domainError(http.StatusBadGateway, "upstream", "posting the report failed", nil)
	}
	if s.kb != nil && s.kb.Enabled() {
		s.kb.SyncAll(ctx, records)
	}
	return nil
}

func (s *Service) postReport(ctx context.Context) error {
	if s.reportChannelID == "" {
		return domainError(http.StatusBadRequest, "invalid", "no report channel configured", nil)
	}
	records, err := s.records.ListAll(ctx)
	if err != nil {
		return domainError(http.StatusBadGateway, "upstream", "could not load project records", nil)
	}
	text := BuildTextReport(records)
	if err := s.messenger.Post(ctx, s.reportChannelID, text); err != nil {
		return domainError(http.StatusBadGateway, "upstream", "posting the report failed", nil)
	}
	return nil
}

// DownloadReport renders a PDF report and uploads it to the requesting
// channel. External channels only ever see their own client.
func (s *Service) DownloadReport(ctx context.Context, actor Actor, channelID string, kind export.Kind) error {
	cctx, derr := s.authorize(actor, channelID, false)
	if derr != nil {
		return derr
	}
	var records []*store.ProjectRecord
	if cctx.Scope == authz.ScopeExternal {
		if cctx.Client == "" {
			return domainError(http.StatusBadRequest, "invalid", "this channel is not mapped to a client", nil)
		}
		rec, rerr := s.resolveClient(ctx, cctx.Client)
		if rerr != nil {
			return rerr
		}
		records = []*store.ProjectRecord{rec}
	} else {
		all, err := s.records.ListAll(ctx)
		if err != nil {
			return domainError(http.StatusBadGateway, "upstream", "could not load project records", nil)
		}
		records = all
	}
	title := "Project Status Report"
	if kind == export.KindBlockersOnly {
		title = "Blocked Projects Report"
	}
	res, err := s.exporter.Render(records, title, kind)
	if err != nil {
		log.Printf("app: report export failed: %v", err)
		return domainError(http.StatusBadGateway, "upstream", "rendering the report failed", nil)
	}
	if err := s.messenger.Upload(ctx, channelID, res); err != nil {
		return domainError(http.StatusBadGateway, "upstream", "uploading the report failed", nil)
	}
	return nil
}

// ProcessMailboxEvent handles an inbound message event. Only first
// deliveries from the mailbox channel trigger extraction.
func (s *Service) ProcessMailboxEvent(ctx context.Context, eventID, channelID, text, messageTS string) error {
	if s.dedup != nil && eventID != "" {
		first, err := s.dedup.FirstSeen(ctx, eventID)
		if err != nil {
			log.Printf("app: dedup check failed, processing anyway: %v", err)
		} else if !first {
			return nil
		}
	}
	snap := s.snapshots.Current()
	if snap.MailboxChannelID == "" || channelID != snap.MailboxChannelID {
		return nil
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}

	rec, err := s.extract.ExtractAndApply(ctx, text, messageTS)
	if err != nil {
		log.Printf("app: mailbox extraction failed: %v", err)
		if perr := s.messenger.Post(ctx, channelID, "I could not match that email to a project."); perr != nil {
			log.Printf("app: posting extraction failure notice failed: %v", perr)
		}
		return err
	}
	confirmation := fmt.Sprintf("Logged an email update for *%s*. Status: %s", rec.Client, rec.Status)
	if rec.HasBlocker() {
		confirmation += fmt.Sprintf("\nBlocker: %s", rec.Blocker)
	}
	if err := s.messenger.Post(ctx, channelID, confirmation); err != nil {
		log.Printf("app: posting extraction confirmation failed: %v", err)
	}
	return nil
}

// SyncKnowledge pushes every record and the activity log to the
// knowledge base.
func (s *Service) SyncKnowledge(ctx context.Context, actor Actor, channelID string) (string, error) {
	if _, derr := s.authorize(actor, channelID, true); derr != nil {
		return "", derr
	}
	if s.kb == nil || !s.kb.Enabled() {
		return "", domainError(http.StatusBadRequest, "invalid", "no knowledge base configured", nil)
	}
	records, err := s.records.ListAll(ctx)
	if err != nil {
		return "", domainError(http.StatusBadGateway, "upstream", "could not load project records", nil)
	}
	s.kb.SyncAll(ctx, records)
	return fmt.Sprintf("Synced %d records to the knowledge base.", len(records)), nil
}

func (s *Service) syncInBackground(rec *store.ProjectRecord) {
	if s.kb == nil || !s.kb.Enabled() {
		return
	}
	snapshot := *rec
	go s.kb.SyncRecord(context.Background(), &snapshot)
}
