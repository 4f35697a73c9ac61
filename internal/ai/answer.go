package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"pulse/bot/internal/authz"
	"pulse/bot/internal/store"
)

// Assistant runs an assistant thread to completion.
type Assistant interface {
	RunAssistant(ctx context.Context, assistantID, message string, budget time.Duration) (string, error)
}

const (
	syncBudget       = 20 * time.Second
	backgroundBudget = 60 * time.Second
	answerTimeout    = 30 * time.Second
)

// Answerer answers questions about projects, assistant-first with a
// plain completion fallback.
type Answerer struct {
	records     RecordStore
	llm         Completer
	assistant   Assistant
	assistantID string
}

func NewAnswerer(records RecordStore, llm Completer, assistant Assistant, assistantID string) *Answerer {
	return &Answerer{records: records, llm: llm, assistant: assistant, assistantID: assistantID}
}

const internalSystem = "You are a project operations assistant. Answer directly and concisely for an internal team audience. Call out blockers and stale projects explicitly."

const externalSystem = "You are a client-facing project assistant. Answer politely and professionally. Only discuss the client's own project and never mention other clients."

// Answer responds to question within the visibility of ctxScope. A
// background call gets a larger assistant budget than an interactive one.
func (a *Answerer) Answer(ctx context.Context, question string, scope authz.Context, background bool) (string, error) {
	records, err := a.visibleRecords(ctx, scope)
	if err != nil {
		return "", err
	}

	if a.assistantID != "" && a.assistant != nil {
		budget := syncBudget
		if background {
			budget = backgroundBudget
		}
		msg := assistantMessage(question, records, scope)
		answer, err := a.assistant.RunAssistant(ctx, a.assistantID, msg, budget)
		if err == nil && strings.TrimSpace(answer) != "" {
			return answer, nil
		}
		log.Printf("answer: assistant run failed, falling back to completion: %v", err)
	}

	system := internalSystem
	if scope.Scope == authz.ScopeExternal {
		system = externalSystem
	}
	answer, err := a.llm.Complete(ctx, system, completionPrompt(question, records), false, answerTimeout)
	if err != nil {
		return "", fmt.Errorf("answer: completion fallback: %w", err)
	}
	return StripCitations(answer), nil
}

// visibleRecords narrows the record set to what the asking channel may
// see. External channels see exactly their own client.
func (a *Answerer) visibleRecords(ctx context.Context, scope authz.Context) ([]*store.ProjectRecord, error) {
	if scope.Scope == authz.ScopeExternal {
		if scope.Client == "" {
			return nil, errors.New("answer: external channel has no client mapping")
		}
		rec, err := a.records.Get(ctx, scope.Client)
		if err != nil {
			return nil, fmt.Errorf("answer: no record for client %q: %w", scope.Client, err)
		}
		return []*store.ProjectRecord{redactForExternal(rec)}, nil
	}
	all, err := a.records.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("answer: list records: %w", err)
	}
	if len(all) == 0 {
		return nil, errors.New("answer: no project records available")
	}
	return all, nil
}

// redactForExternal strips team-internal details before a record is
// shown to a client-facing prompt.
func redactForExternal(rec *store.ProjectRecord) *store.ProjectRecord {
	out := *rec
	out.Owner = ""
	out.Developer = ""
	out.History = nil
	out.EmailHistory = nil
	return &out
}

func recordsJSON(records []*store.ProjectRecord) string {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(data)
}

func assistantMessage(question string, records []*store.ProjectRecord, scope authz.Context) string {
	var b strings.Builder
	if scope.Scope == authz.ScopeExternal {
		b.WriteString("Answer for a client-facing channel. Be polite and only discuss this client's project.\n\n")
	} else {
		b.WriteString("Answer for the internal team. Be direct and highlight blockers.\n\n")
	}
	b.WriteString("Current project data:\n")
	b.WriteString(recordsJSON(records))
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	return b.String()
}

func completionPrompt(question string, records []*store.ProjectRecord) string {
	var b strings.Builder
	b.WriteString("Current project data:\n")
	b.WriteString(recordsJSON(records))
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	return b.String()
}
