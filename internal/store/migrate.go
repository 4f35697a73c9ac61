package store

import (
	"context"
	"encoding/json"
	"log"
)

// MigrateLegacy splits the old aggregate projects.json blob into one blob
// per client and deletes the aggregate, all in a single PATCH. Idempotent:
// safe to run on every start. If the legacy blob is absent, empty, or not
// a JSON array, migration is a logged no-op. An existing per-client blob is
// overwritten by the legacy entry (last write wins, no merge).
func (g *Gist) MigrateLegacy(ctx context.Context) error {
	container, err := g.fetch(ctx)
	if err != nil {
		log.Printf("store: migration check: %v", err)
		return err
	}

	file, ok := container.Files[legacyFilename]
	if !ok {
		return nil
	}
	if file.Content == "" {
		log.Printf("store: migration: %s is empty, skipping", legacyFilename)
		return nil
	}

	var records []ProjectRecord
	if err := json.Unmarshal([]byte(file.Content), &records); err != nil {
		log.Printf("store: migration: %s is not a record list, skipping: %v", legacyFilename, err)
		return nil
	}

	files := map[string]*gistFile{
		legacyFilename: nil, // null deletes the aggregate
	}
	migrated := 0
	for i := range records {
		rec := &records[i]
		if rec.Client == "" {
			continue
		}
		content, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			log.Printf("store: migration: encode %q: %v", rec.Client, err)
			continue
		}
		files[recordFilename(rec.Client)] = &gistFile{Content: string(content)}
		migrated++
	}

	if err := g.patch(ctx, gistPatch{Files: files}); err != nil {
		log.Printf("store: migration: %v", err)
		return err
	}
	log.Printf("store: migration complete, split %d records into separate blobs", migrated)
	return nil
}
