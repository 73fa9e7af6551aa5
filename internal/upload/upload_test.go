package upload

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/localgraph/kg-backend/internal/apierr"
	"github.com/localgraph/kg-backend/internal/model"
)

type fakeIndexer struct {
	accepted bool
	reason   string
	starts   int
}

func (f *fakeIndexer) Start() (bool, string) {
	f.starts++
	return f.accepted, f.reason
}

func TestUploadValidationRules(t *testing.T) {
	dir := t.TempDir()
	idx := &fakeIndexer{accepted: true}
	in := New(dir, idx)

	cases := []struct {
		name          string
		filename      string
		content       []byte
		contentLength int64
		wantKind      apierr.Kind
	}{
		{"empty filename", "", []byte("x"), 1, apierr.Validation},
		{"path separator", "../evil.txt", []byte("x"), 1, apierr.Validation},
		{"bad extension", "notes.md", []byte("x"), 1, apierr.Validation},
		{"zero length", "notes.txt", []byte{}, 0, apierr.Validation},
		{"too large", "notes.txt", []byte("x"), maxUploadBytes + 1, apierr.Validation},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := in.Upload(c.filename, c.content, c.contentLength)
			if err == nil {
				t.Fatal("Upload() error = nil, want rejection")
			}
			if apierr.KindOf(err) != c.wantKind {
				t.Fatalf("KindOf(err) = %v, want %v", apierr.KindOf(err), c.wantKind)
			}
		})
	}
}

func TestUploadSuccessWritesFileAndSchedulesIndexing(t *testing.T) {
	dir := t.TempDir()
	idx := &fakeIndexer{accepted: true}
	in := New(dir, idx)

	file, err := in.Upload("notes.txt", []byte("hello world"), 11)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if file.Name != "notes.txt" {
		t.Fatalf("file.Name = %q, want notes.txt", file.Name)
	}
	if file.Status != model.UploadStatusPending {
		t.Fatalf("file.Status = %v, want pending", file.Status)
	}
	if idx.starts != 1 {
		t.Fatalf("indexer.starts = %d, want 1", idx.starts)
	}

	data, err := os.ReadFile(filepath.Join(dir, "notes.txt"))
	if err != nil {
		t.Fatalf("read uploaded file: %v", err)
	}
	if string(data) != "hello world" {
		t.Fatalf("file content = %q", data)
	}
}

func TestUploadCollisionRenames(t *testing.T) {
	dir := t.TempDir()
	idx := &fakeIndexer{accepted: true}
	in := New(dir, idx)

	first, err := in.Upload("notes.txt", []byte("first"), 5)
	if err != nil {
		t.Fatalf("first Upload() error = %v", err)
	}
	second, err := in.Upload("notes.txt", []byte("second"), 6)
	if err != nil {
		t.Fatalf("second Upload() error = %v", err)
	}

	if second.Name == first.Name {
		t.Fatalf("second.Name = %q, want a renamed file distinct from %q", second.Name, first.Name)
	}
	if filepath.Ext(second.Name) != ".txt" {
		t.Fatalf("second.Name = %q, want .txt extension preserved", second.Name)
	}
}

func TestListOrdersMostRecentFirst(t *testing.T) {
	dir := t.TempDir()
	idx := &fakeIndexer{accepted: true}
	in := New(dir, idx)

	if _, err := in.Upload("a.txt", []byte("a"), 1); err != nil {
		t.Fatalf("Upload(a) error = %v", err)
	}
	if _, err := in.Upload("b.txt", []byte("b"), 1); err != nil {
		t.Fatalf("Upload(b) error = %v", err)
	}

	list := in.List()
	if len(list) != 2 {
		t.Fatalf("len(list) = %d, want 2", len(list))
	}
	if list[0].Name != "b.txt" {
		t.Fatalf("list[0].Name = %q, want most recent b.txt", list[0].Name)
	}
}

func TestDeleteRemovesFileAndRecord(t *testing.T) {
	dir := t.TempDir()
	idx := &fakeIndexer{accepted: true}
	in := New(dir, idx)

	file, err := in.Upload("a.txt", []byte("a"), 1)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	if err := in.Delete(file.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "a.txt")); !os.IsNotExist(err) {
		t.Fatalf("file still exists on disk after Delete(), stat err = %v", err)
	}
	if len(in.List()) != 0 {
		t.Fatal("List() still contains the deleted record")
	}

	if err := in.Delete(file.ID); apierr.KindOf(err) != apierr.NotFound {
		t.Fatalf("second Delete() kind = %v, want NotFound", apierr.KindOf(err))
	}
}

func TestOnIndexCompleteMarksPendingFiles(t *testing.T) {
	dir := t.TempDir()
	idx := &fakeIndexer{accepted: true}
	in := New(dir, idx)

	file, err := in.Upload("a.txt", []byte("a"), 1)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	in.OnIndexComplete(true)
	list := in.List()
	if list[0].ID != file.ID || list[0].Status != model.UploadStatusIndexed {
		t.Fatalf("after success, status = %v, want indexed", list[0].Status)
	}
}

func TestOnIndexCompleteFailureMarksError(t *testing.T) {
	dir := t.TempDir()
	idx := &fakeIndexer{accepted: true}
	in := New(dir, idx)

	if _, err := in.Upload("a.txt", []byte("a"), 1); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	in.OnIndexComplete(false)
	list := in.List()
	if list[0].Status != model.UploadStatusError {
		t.Fatalf("after failure, status = %v, want error", list[0].Status)
	}
}
