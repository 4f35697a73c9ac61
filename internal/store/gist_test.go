package store

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// fakeGist emulates the two gist endpoints the adapter uses: GET returns
// the container, PATCH applies file updates (null content deletes).
type fakeGist struct {
	files   map[string]string
	patches int
}

func newFakeGist(files map[string]string) *fakeGist {
	if files == nil {
		files = map[string]string{}
	}
	return &fakeGist{files: files}
}

func (f *fakeGist) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			out := map[string]any{"files": map[string]any{}}
			filesOut := out["files"].(map[string]any)
			for name, content := range f.files {
				filesOut[name] = map[string]string{"content": content}
			}
			_ = json.NewEncoder(w).Encode(out)
		case http.MethodPatch:
			f.patches++
			var payload struct {
				Files map[string]*struct {
					Content string `json:"content"`
				} `json:"files"`
			}
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			for name, file := range payload.Files {
				if file == nil {
					delete(f.files, name)
				} else {
					f.files[name] = file.Content
				}
			}
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}

func newTestStore(t *testing.T, files map[string]string) (*Gist, *fakeGist) {
	t.Helper()
	fake := newFakeGist(files)
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)
	return NewGist(srv.URL, "test-token", "g1"), fake
}

func TestGet(t *testing.T) {
	g, _ := newTestStore(t, map[string]string{
		"Acme.json":   `{"client":"Acme","status":"ok"}`,
		"Broken.json": `{not json`,
	})
	ctx := context.Background()

	rec, err := g.Get(ctx, "Acme")
	if err != nil {
		t.Fatalf("Get(Acme) error: %v", err)
	}
	if rec.Client != "Acme" || rec.Status != "ok" {
		t.Fatalf("Get(Acme) = %+v", rec)
	}

	if _, err := g.Get(ctx, "Ghost"); err != ErrNotFound {
		t.Fatalf("Get(Ghost) error = %v, want ErrNotFound", err)
	}
	if _, err := g.Get(ctx, "Broken"); err != ErrDecode {
		t.Fatalf("Get(Broken) error = %v, want ErrDecode", err)
	}
	if _, err := g.Get(ctx, ""); err != ErrNotFound {
		t.Fatalf("Get(\"\") error = %v, want ErrNotFound", err)
	}
}

func TestPut(t *testing.T) {
	g, fake := newTestStore(t, nil)
	ctx := context.Background()

	if err := g.Put(ctx, &ProjectRecord{}); err != ErrInvalidRecord {
		t.Fatalf("Put without client = %v, want ErrInvalidRecord", err)
	}
	if err := g.Put(ctx, nil); err != ErrInvalidRecord {
		t.Fatalf("Put(nil) = %v, want ErrInvalidRecord", err)
	}

	rec := &ProjectRecord{Client: "Acme", Status: "kickoff done", Blocker: Sentinel}
	if err := g.Put(ctx, rec); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	content, ok := fake.files["Acme.json"]
	if !ok {
		t.Fatalf("Put did not create Acme.json, files = %v", fake.files)
	}
	var stored ProjectRecord
	if err := json.Unmarshal([]byte(content), &stored); err != nil {
		t.Fatalf("stored blob invalid: %v", err)
	}
	if stored.Status != "kickoff done" {
		t.Fatalf("stored status = %q", stored.Status)
	}
}

func TestDelete(t *testing.T) {
	g, fake := newTestStore(t, map[string]string{"Acme.json": `{"client":"Acme"}`})
	ctx := context.Background()

	if err := g.Delete(ctx, "Acme"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if _, ok := fake.files["Acme.json"]; ok {
		t.Fatal("Delete left Acme.json in place")
	}

	// Already absent is not an error.
	if err := g.Delete(ctx, "Acme"); err != nil {
		t.Fatalf("Delete of absent blob: %v", err)
	}
	if err := g.Delete(ctx, ""); err != nil {
		t.Fatalf("Delete of empty name: %v", err)
	}
}

func TestListAllSkipsNonRecords(t *testing.T) {
	g, _ := newTestStore(t, map[string]string{
		"Acme.json":     `{"client":"Acme","status":"ok"}`,
		"Globex.json":   `{"client":"Globex"}`,
		"projects.json": `[{"client":"Old"}]`,
		"gistfile1.txt": "hello",
		"notes.md":      "# notes",
		"broken.json":   `{{{`,
		"orphan.json":   `{"status":"no client key"}`,
	})

	records, err := g.ListAll(context.Background())
	if err != nil {
		t.Fatalf("ListAll error: %v", err)
	}
	names := map[string]bool{}
	for _, rec := range records {
		names[rec.Client] = true
	}
	if len(records) != 2 || !names["Acme"] || !names["Globex"] {
		t.Fatalf("ListAll = %v, want exactly Acme and Globex", names)
	}
}

func TestListAllRemoteFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	g := NewGist(srv.URL, "t", "g1")

	records, err := g.ListAll(context.Background())
	if err == nil {
		t.Fatal("ListAll should report remote failure")
	}
	if len(records) != 0 {
		t.Fatalf("ListAll on failure = %v, want empty", records)
	}
}

func TestBulkSave(t *testing.T) {
	g, fake := newTestStore(t, nil)
	ctx := context.Background()

	records := []*ProjectRecord{
		{Client: "Acme", Status: "a"},
		{Status: "skipped, no client"},
		{Client: "Globex", Status: "b"},
	}
	if err := g.BulkSave(ctx, records); err != nil {
		t.Fatalf("BulkSave error: %v", err)
	}
	if fake.patches != 1 {
		t.Fatalf("BulkSave issued %d PATCH requests, want 1", fake.patches)
	}
	if len(fake.files) != 2 {
		t.Fatalf("BulkSave wrote %d blobs, want 2: %v", len(fake.files), fake.files)
	}

	// Empty and client-less collections do not touch the remote.
	if err := g.BulkSave(ctx, nil); err != nil {
		t.Fatalf("BulkSave(nil) error: %v", err)
	}
	if err := g.BulkSave(ctx, []*ProjectRecord{{Status: "x"}}); err != nil {
		t.Fatalf("BulkSave(no clients) error: %v", err)
	}
	if fake.patches != 1 {
		t.Fatalf("no-op BulkSave issued a PATCH")
	}
}
