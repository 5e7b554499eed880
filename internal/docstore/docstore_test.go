package docstore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"contract-analyzer/internal/models"
)

type fakeObjectStore struct {
	signedURL   string
	signCalls   int
	removeCalls []string
	removeErr   error
}

func (f *fakeObjectStore) SignedDownloadURL(_ context.Context, bucket, key string, _ time.Duration) (string, error) {
	f.signCalls++
	return f.signedURL, nil
}

func (f *fakeObjectStore) Remove(_ context.Context, bucket, key string) error {
	f.removeCalls = append(f.removeCalls, bucket+"/"+key)
	return f.removeErr
}

func newTestClient(objects ObjectStore) *Client {
	return &Client{
		objects:    objects,
		httpClient: &http.Client{Timeout: 2 * time.Second},
		signedTTL:  time.Minute,
	}
}

func TestParseBucketURL(t *testing.T) {
	ref, err := ParseBucketURL("https://storage.example.com/v1/contracts/user-1/nda.pdf")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ref.Bucket != "contracts" {
		t.Fatalf("expected bucket contracts, got %q", ref.Bucket)
	}
	if ref.Key != "user-1/nda.pdf" {
		t.Fatalf("expected key user-1/nda.pdf, got %q", ref.Key)
	}
	if ref.FileName != "nda.pdf" {
		t.Fatalf("expected file nda.pdf, got %q", ref.FileName)
	}

	if _, err := ParseBucketURL("nda.pdf"); err == nil {
		t.Fatalf("expected error for short reference")
	}
}

func TestEnsureLocalDownloadsAndMaterializes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("contract body"))
	}))
	defer srv.Close()

	objects := &fakeObjectStore{signedURL: srv.URL}
	client := newTestClient(objects)
	dir := t.TempDir()

	if ok := client.EnsureLocal(context.Background(), "W-test", "contracts/user-1/nda.pdf", dir); !ok {
		t.Fatalf("expected download to succeed")
	}

	data, err := os.ReadFile(filepath.Join(dir, "nda.pdf"))
	if err != nil {
		t.Fatalf("document not written: %v", err)
	}
	if string(data) != "contract body" {
		t.Fatalf("unexpected document content: %q", data)
	}
	if objects.signCalls != 1 {
		t.Fatalf("expected 1 signing call, got %d", objects.signCalls)
	}
}

func TestEnsureLocalSkipsExistingFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "nda.pdf"), []byte("cached"), 0o644); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	objects := &fakeObjectStore{signedURL: "http://unused.invalid"}
	client := newTestClient(objects)

	if ok := client.EnsureLocal(context.Background(), "W-test", "contracts/user-1/nda.pdf", dir); !ok {
		t.Fatalf("expected cached file to be reused")
	}
	if objects.signCalls != 0 {
		t.Fatalf("expected no network round trip, got %d signing calls", objects.signCalls)
	}
}

func TestEnsureLocalReturnsFalseOnBadReference(t *testing.T) {
	client := newTestClient(&fakeObjectStore{})
	if ok := client.EnsureLocal(context.Background(), "W-test", "nda.pdf", t.TempDir()); ok {
		t.Fatalf("expected false for unparseable reference")
	}
}

type fakeRecordDeleter struct {
	deleted []string
	err     error
}

func (f *fakeRecordDeleter) DeleteDocumentRecord(_ context.Context, id string) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func TestPurgeDeletesObjectBeforeRow(t *testing.T) {
	objects := &fakeObjectStore{}
	records := &fakeRecordDeleter{}
	client := newTestClient(objects)

	doc := docFixture()
	if err := client.Purge(context.Background(), records, doc); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if len(objects.removeCalls) != 1 || objects.removeCalls[0] != "contracts/nda.pdf" {
		t.Fatalf("unexpected remove calls: %v", objects.removeCalls)
	}
	if len(records.deleted) != 1 || records.deleted[0] != "doc-1" {
		t.Fatalf("unexpected record deletions: %v", records.deleted)
	}
}

func TestPurgeKeepsRowWhenObjectRemovalFails(t *testing.T) {
	objects := &fakeObjectStore{removeErr: os.ErrPermission}
	records := &fakeRecordDeleter{}
	client := newTestClient(objects)

	if err := client.Purge(context.Background(), records, docFixture()); err == nil {
		t.Fatalf("expected error when object removal fails")
	}
	if len(records.deleted) != 0 {
		t.Fatalf("metadata row must survive a failed object removal")
	}
}

func TestPruneRemovesOnlyStaleFiles(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "old.pdf")
	fresh := filepath.Join(dir, "new.pdf")
	for _, p := range []string{stale, fresh} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}
	old := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatalf("age file: %v", err)
	}

	removed, err := Prune(dir, 24*time.Hour)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removal, got %d", removed)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("fresh file should survive: %v", err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("stale file should be gone")
	}
}

func docFixture() models.Document {
	return models.Document{ID: "doc-1", Bucket: "contracts", FileName: "nda.pdf"}
}
