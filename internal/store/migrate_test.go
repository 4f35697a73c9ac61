package store

import (
	"context"
	"encoding/json"
	"testing"
)

func TestMigrateLegacySplitsAggregate(t *testing.T) {
	g, fake := newTestStore(t, map[string]string{
		"projects.json": `[{"client":"Acme","status":"ok"},{"client":"Globex"},{"status":"no name"}]`,
	})
	ctx := context.Background()

	if err := g.MigrateLegacy(ctx); err != nil {
		t.Fatalf("MigrateLegacy error: %v", err)
	}

	if _, ok := fake.files["projects.json"]; ok {
		t.Fatal("legacy aggregate still present after migration")
	}
	var acme ProjectRecord
	if err := json.Unmarshal([]byte(fake.files["Acme.json"]), &acme); err != nil {
		t.Fatalf("Acme.json invalid: %v", err)
	}
	if acme.Client != "Acme" || acme.Status != "ok" {
		t.Fatalf("Acme.json = %+v", acme)
	}
	if _, ok := fake.files["Globex.json"]; !ok {
		t.Fatal("Globex.json missing after migration")
	}
	if len(fake.files) != 2 {
		t.Fatalf("migration produced %d blobs, want 2: %v", len(fake.files), fake.files)
	}
	if fake.patches != 1 {
		t.Fatalf("migration issued %d PATCH requests, want 1", fake.patches)
	}
}

func TestMigrateLegacyIdempotent(t *testing.T) {
	g, fake := newTestStore(t, map[string]string{
		"projects.json": `[{"client":"Acme","status":"ok"}]`,
	})
	ctx := context.Background()

	if err := g.MigrateLegacy(ctx); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first := map[string]string{}
	for k, v := range fake.files {
		first[k] = v
	}

	if err := g.MigrateLegacy(ctx); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(fake.files) != len(first) {
		t.Fatalf("second run changed blob set: %v vs %v", fake.files, first)
	}
	for k, v := range first {
		if fake.files[k] != v {
			t.Fatalf("second run changed %s", k)
		}
	}
	if fake.patches != 1 {
		t.Fatalf("second run issued a PATCH on an already-migrated store")
	}
}

func TestMigrateLegacyOverwritesExisting(t *testing.T) {
	g, fake := newTestStore(t, map[string]string{
		"projects.json": `[{"client":"Acme","status":"from legacy"}]`,
		"Acme.json":     `{"client":"Acme","status":"newer"}`,
	})

	if err := g.MigrateLegacy(context.Background()); err != nil {
		t.Fatalf("MigrateLegacy error: %v", err)
	}
	var acme ProjectRecord
	if err := json.Unmarshal([]byte(fake.files["Acme.json"]), &acme); err != nil {
		t.Fatalf("Acme.json invalid: %v", err)
	}
	if acme.Status != "from legacy" {
		t.Fatalf("status = %q, want legacy entry to win", acme.Status)
	}
}

func TestMigrateLegacyNoOps(t *testing.T) {
	cases := []struct {
		name  string
		files map[string]string
	}{
		{name: "absent", files: map[string]string{"Acme.json": `{"client":"Acme"}`}},
		{name: "not a list", files: map[string]string{"projects.json": `{"client":"Acme"}`}},
		{name: "empty", files: map[string]string{"projects.json": ""}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g, fake := newTestStore(t, tc.files)
			if err := g.MigrateLegacy(context.Background()); err != nil {
				t.Fatalf("MigrateLegacy error: %v", err)
			}
			if fake.patches != 0 {
				t.Fatalf("no-op migration issued a PATCH")
			}
		})
	}
}
