package kb

import (
	"context"
	"errors"
	"strings"
	"testing"

	"pulse/bot/internal/store"
)

type fakeUploader struct {
	uploads   map[string][]byte
	attached  []string
	uploadErr error
	attachErr error
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{uploads: map[string][]byte{}}
}

func (f *fakeUploader) UploadFile(_ context.Context, filename string, data []byte) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.uploads[filename] = data
	return "file-" + filename, nil
}

func (f *fakeUploader) AddFileToVectorStore(_ context.Context, _, fileID string) error {
	if f.attachErr != nil {
		return f.attachErr
	}
	f.attached = append(f.attached, fileID)
	return nil
}

func TestSyncRecord(t *testing.T) {
	up := newFakeUploader()
	s := NewSyncer(up, "vs_1")

	s.SyncRecord(context.Background(), &store.ProjectRecord{Client: "Globex Corp", Status: "green"})

	data, ok := up.uploads["project_globex_corp.json"]
	if !ok {
		t.Fatalf("upload missing, got %v", up.uploads)
	}
	if !strings.Contains(string(data), `"Globex Corp"`) {
		t.Errorf("upload content = %s", data)
	}
	if len(up.attached) != 1 {
		t.Errorf("attached = %v", up.attached)
	}
}

func TestSyncAllIncludesActivityLog(t *testing.T) {
	up := newFakeUploader()
	s := NewSyncer(up, "vs_1")

	records := []*store.ProjectRecord{
		{
			Client:  "Acme",
			History: []store.ChangeEntry{{Timestamp: "2026-08-01 10:00:00", User: "U1", Changes: map[string]store.FieldChange{"status": {Old: "a", New: "b"}}}},
		},
		{
			Client:       "Globex",
			EmailHistory: []store.EmailEntry{{Timestamp: "2026-08-02 09:00:00", Summary: "launch update"}},
		},
	}
	s.SyncAll(context.Background(), records)

	var logName string
	for name := range up.uploads {
		if strings.HasPrefix(name, "activity_log_") {
			logName = name
		}
	}
	if logName == "" {
		t.Fatalf("activity log not uploaded, got %v", up.uploads)
	}
	content := string(up.uploads[logName])
	if !strings.Contains(content, `"change"`) || !strings.Contains(content, `"email"`) {
		t.Errorf("log content = %s", content)
	}
	if len(up.uploads) != 3 {
		t.Errorf("uploads = %d, want 2 records + 1 log", len(up.uploads))
	}
}

func TestSyncerFailuresAreSwallowed(t *testing.T) {
	up := newFakeUploader()
	up.uploadErr = errors.New("api down")
	s := NewSyncer(up, "vs_1")

	// Must not panic or block.
	s.SyncRecord(context.Background(), &store.ProjectRecord{Client: "Acme"})
	s.SyncAll(context.Background(), []*store.ProjectRecord{{Client: "Acme"}})
}

func TestSyncerDisabled(t *testing.T) {
	up := newFakeUploader()
	s := NewSyncer(up, "")

	s.SyncRecord(context.Background(), &store.ProjectRecord{Client: "Acme"})
	if len(up.uploads) != 0 {
		t.Errorf("disabled syncer uploaded: %v", up.uploads)
	}

	var nilSyncer *Syncer
	if nilSyncer.Enabled() {
		t.Error("nil syncer reports enabled")
	}
}
