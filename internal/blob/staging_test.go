package blob

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	root := t.TempDir()
	s, err := NewStore(filepath.Join(root, "avatars"), filepath.Join(root, "temp-attachments"), "https://gateway.example.com", nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestNewStoreCreatesDirectories(t *testing.T) {
	s := newTestStore(t)
	for _, dir := range []string{s.AvatarDir, s.AttachmentDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("expected directory %q to exist", dir)
		}
	}
}

func TestStageAttachmentWritesFileAndReturnsURL(t *testing.T) {
	src := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fake image bytes"))
	}))
	defer src.Close()

	s := newTestStore(t)
	staged, err := s.StageAttachment(context.Background(), "req-123", 0, src.URL, "my photo!.png")
	if err != nil {
		t.Fatalf("StageAttachment: %v", err)
	}

	wantURL := "https://gateway.example.com/temp-attachments/req-123/0-my_photo_.png"
	if staged.URL != wantURL {
		t.Errorf("URL = %q, want %q", staged.URL, wantURL)
	}
	if staged.ContentHash == "" {
		t.Error("expected non-empty content hash")
	}
	data, err := os.ReadFile(staged.Path)
	if err != nil {
		t.Fatalf("reading staged file: %v", err)
	}
	if string(data) != "fake image bytes" {
		t.Errorf("staged content = %q", string(data))
	}
}

func TestStageAttachmentSanitizesPathTraversal(t *testing.T) {
	src := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("x"))
	}))
	defer src.Close()

	s := newTestStore(t)
	staged, err := s.StageAttachment(context.Background(), "req-1", 1, src.URL, "../../etc/passwd")
	if err != nil {
		t.Fatalf("StageAttachment: %v", err)
	}
	if filepath.Dir(staged.Path) != filepath.Join(s.AttachmentDir, "req-1") {
		t.Errorf("staged path escaped request directory: %q", staged.Path)
	}
}

func TestStageAttachmentUpstreamError(t *testing.T) {
	src := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer src.Close()

	s := newTestStore(t)
	if _, err := s.StageAttachment(context.Background(), "req-1", 0, src.URL, "a.png"); err == nil {
		t.Fatal("expected error for 404 source")
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"clip.ogg":         "clip.ogg",
		"../../etc/passwd": "passwd",
		"my photo!.png":    "my_photo_.png",
		"":                 "attachment",
		"..":               "attachment",
	}
	for in, want := range cases {
		if got := sanitizeFilename(in); got != want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
