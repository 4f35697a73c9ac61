package export

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"pulse/bot/internal/store"
)

// Service renders project records into PDF reports.
type Service struct{}

func NewService() *Service {
	return &Service{}
}

// Render builds a PDF report over records. KindBlockersOnly drops
// records without a blocker before grouping; when nothing is blocked it
// renders an all-clear page instead of failing.
func (s *Service) Render(records []*store.ProjectRecord, title string, kind Kind) (*Result, error) {
	allClear := false
	if kind == KindBlockersOnly {
		var blocked []*store.ProjectRecord
		for _, rec := range records {
			if rec.HasBlocker() {
				blocked = append(blocked, rec)
			}
		}
		allClear = len(records) > 0 && len(blocked) == 0
		records = blocked
	}
	if len(records) == 0 && !allClear {
		return nil, ErrNothingToExport
	}

	html, err := RenderReportHTML(TemplateData{
		Title:       title,
		GeneratedAt: time.Now(),
		Kind:        kind,
		AllClear:    allClear,
		Groups:      GroupByCategory(records),
	})
	if err != nil {
		return nil, fmt.Errorf("render report html: %w", err)
	}

	log.Printf("export: rendering %q (%s, %d records)", title, kind, len(records))
	return exportPDF(html, title)
}

// CategoryOrder is the display order of category sections.
var CategoryOrder = []string{
	store.CategoryLaunched,
	store.CategoryReady,
	store.CategoryAlmost,
	store.CategoryInProgress,
	store.CategoryStuck,
	store.CategoryOther,
}

// GroupByCategory buckets records into category sections in display
// order. Unknown categories land in the Other bucket. Records inside a
// bucket are sorted by client name.
func GroupByCategory(records []*store.ProjectRecord) []TemplateGroup {
	known := make(map[string]bool, len(CategoryOrder))
	for _, c := range CategoryOrder {
		known[c] = true
	}
	buckets := map[string][]*store.ProjectRecord{}
	for _, rec := range records {
		cat := strings.TrimSpace(rec.Category)
		if !known[cat] {
			cat = store.CategoryOther
		}
		buckets[cat] = append(buckets[cat], rec)
	}

	var groups []TemplateGroup
	for _, cat := range CategoryOrder {
		recs := buckets[cat]
		if len(recs) == 0 {
			continue
		}
		sort.Slice(recs, func(i, j int) bool { return recs[i].Client < recs[j].Client })
		groups = append(groups, TemplateGroup{Category: cat, Records: recs})
	}
	return groups
}
