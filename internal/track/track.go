// Package track computes field-level diffs on project records and keeps
// the bounded change history that backs the /project-history views.
package track

import (
	"strings"
	"time"

	"pulse/bot/internal/store"
)

// TrackedFields are the record fields the change history covers, in the
// order they appear in change summaries.
var TrackedFields = []string{
	"status",
	"category",
	"owner",
	"developer",
	"blocker",
	"last_contact_date",
	"call",
	"comm_channel",
}

// Summary reports what one update changed.
type Summary struct {
	Changed   bool
	Changes   map[string]store.FieldChange
	Timestamp string
}

// Apply diffs the proposed field values against the record, applies the
// non-empty ones, and appends one ChangeEntry covering every field that
// actually changed. Empty, missing, and "-" values are equivalent "unset"
// for comparison. The record is mutated in memory only; the caller
// persists it through the store.
//
// A proposal identical to the current state (after normalization) returns
// {Changed: false} and leaves the history untouched.
func Apply(rec *store.ProjectRecord, proposed map[string]string, actor string) Summary {
	if actor == "" {
		actor = "unknown"
	}
	now := time.Now()
	timestamp := now.Format("2006-01-02 15:04:05")

	previous := snapshotFields(rec)
	changes := map[string]store.FieldChange{}
	for _, field := range TrackedFields {
		newVal, ok := proposed[field]
		if !ok {
			continue
		}
		oldVal := previous[field]
		if normalize(newVal) == normalize(oldVal) {
			continue
		}
		changes[field] = store.FieldChange{
			Old: display(oldVal),
			New: display(newVal),
		}
	}

	if len(changes) == 0 {
		return Summary{Changed: false, Changes: map[string]store.FieldChange{}, Timestamp: timestamp}
	}

	rec.History = append(rec.History, store.ChangeEntry{
		Timestamp:     timestamp,
		User:          actor,
		Changes:       changes,
		PreviousState: previous,
	})
	if len(rec.History) > store.MaxHistory {
		rec.History = rec.History[len(rec.History)-store.MaxHistory:]
	}

	merge(rec, proposed)
	rec.LastUpdated = now.Format("2006-01-02 15:04")

	return Summary{Changed: true, Changes: changes, Timestamp: timestamp}
}

// merge writes the proposed values onto the record. Free-text and select
// fields overwrite when non-empty; date and channel fields additionally
// keep their old value when the proposal is the unset sentinel, so an
// untouched datepicker never erases a stored date.
func merge(rec *store.ProjectRecord, proposed map[string]string) {
	if v := proposed["status"]; v != "" {
		rec.Status = v
	}
	if v := proposed["category"]; v != "" {
		rec.Category = v
	}
	if v := proposed["owner"]; v != "" {
		rec.Owner = v
	}
	if v := proposed["developer"]; v != "" {
		rec.Developer = v
	}
	if v := proposed["blocker"]; v != "" {
		rec.Blocker = v
	}
	if v := proposed["last_contact_date"]; v != "" && v != store.Sentinel {
		rec.LastContactDate = v
	}
	if v := proposed["call"]; v != "" && v != store.Sentinel {
		rec.Call = v
	}
	if v := proposed["comm_channel"]; v != "" && v != store.Sentinel {
		rec.CommChannel = v
	}
}

func snapshotFields(rec *store.ProjectRecord) map[string]string {
	return map[string]string{
		"status":            rec.Status,
		"category":          rec.Category,
		"owner":             rec.Owner,
		"developer":         rec.Developer,
		"blocker":           rec.Blocker,
		"last_contact_date": rec.LastContactDate,
		"call":              rec.Call,
		"comm_channel":      rec.CommChannel,
	}
}

func normalize(v string) string {
	v = strings.TrimSpace(v)
	if v == "" || v == store.Sentinel {
		return store.Sentinel
	}
	return v
}

// display collapses only the empty string to the sentinel so history
// entries never show a blank value.
func display(v string) string {
	if v == "" {
		return store.Sentinel
	}
	return v
}
