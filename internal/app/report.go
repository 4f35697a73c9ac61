package app

import (
	"fmt"
	"sort"
	"strings"

	"pulse/bot/internal/store"
)

type reportSection struct {
	category string
	emoji    string
}

// reportSections fixes the display order of the text report.
var reportSections = []reportSection{
	{store.CategoryLaunched, "🚀"},
	{store.CategoryReady, "📅"},
	{store.CategoryAlmost, "🔜"},
	{store.CategoryInProgress, "🛠️"},
	{store.CategoryStuck, "🛑"},
	{store.CategoryOther, "📦"},
}

// BuildTextReport renders all records as a chat-formatted status report
// grouped by category.
func BuildTextReport(records []*store.ProjectRecord) string {
	if len(records) == 0 {
		return "No projects tracked yet."
	}

	known := make(map[string]bool, len(reportSections))
	for _, s := range reportSections {
		known[s.category] = true
	}
	buckets := map[string][]*store.ProjectRecord{}
	for _, rec := range records {
		cat := strings.TrimSpace(rec.Category)
		if !known[cat] {
			cat = store.CategoryOther
		}
		buckets[cat] = append(buckets[cat], rec)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*Project Status Report* (%d projects)\n", len(records))
	for _, section := range reportSections {
		recs := buckets[section.category]
		if len(recs) == 0 {
			continue
		}
		sort.Slice(recs, func(i, j int) bool { return recs[i].Client < recs[j].Client })
		fmt.Fprintf(&b, "\n%s *%s* (%d)\n", section.emoji, section.category, len(recs))
		for _, rec := range recs {
			fmt.Fprintf(&b, "• *%s*: %s", rec.Client, orSentinel(rec.Status))
			if rec.HasBlocker() {
				fmt.Fprintf(&b, " ⚠️ %s", rec.Blocker)
			}
			b.WriteByte('\n')
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// BuildDailyDigest renders the scheduled morning report: stuck projects
// first, then the most recently touched active ones, then totals.
func BuildDailyDigest(records []*store.ProjectRecord) string {
	if len(records) == 0 {
		return "Good morning! No projects tracked yet."
	}

	var stuck, active []*store.ProjectRecord
	blocked := 0
	for _, rec := range records {
		if rec.HasBlocker() {
			blocked++
		}
		if strings.TrimSpace(rec.Category) == store.CategoryStuck {
			stuck = append(stuck, rec)
		} else if strings.TrimSpace(rec.Category) != store.CategoryLaunched {
			active = append(active, rec)
		}
	}
	sort.Slice(stuck, func(i, j int) bool { return stuck[i].Client < stuck[j].Client })
	sort.Slice(active, func(i, j int) bool { return active[i].LastUpdated > active[j].LastUpdated })
	if len(active) > 5 {
		active = active[:5]
	}

	var b strings.Builder
	b.WriteString("*Good morning! Daily project digest*\n")
	if len(stuck) > 0 {
		fmt.Fprintf(&b, "\n🛑 *Needs attention* (%d)\n", len(stuck))
		for _, rec := range stuck {
			fmt.Fprintf(&b, "• *%s*: %s", rec.Client, orSentinel(rec.Status))
			if rec.HasBlocker() {
				fmt.Fprintf(&b, " ⚠️ %s", rec.Blocker)
			}
			b.WriteByte('\n')
		}
	}
	if len(active) > 0 {
		b.WriteString("\n🛠️ *Recently active*\n")
		for _, rec := range active {
			fmt.Fprintf(&b, "• *%s*: %s\n", rec.Client, orSentinel(rec.Status))
		}
	}
	fmt.Fprintf(&b, "\n%d projects tracked, %d blocked.", len(records), blocked)
	return b.String()
}

func orSentinel(s string) string {
	if strings.TrimSpace(s) == "" {
		return store.Sentinel
	}
	return s
}
