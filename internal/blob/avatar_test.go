package blob

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/aceteam-ai/conduit/internal/models"
)

type fakePersonalityLister struct {
	personalities []*models.Personality
}

func (f *fakePersonalityLister) ListPersonalitiesWithAvatars(ctx context.Context) ([]*models.Personality, error) {
	return f.personalities, nil
}

type fakeAvatarFetcher struct {
	data  map[string][]byte
	calls int
	err   error
}

func (f *fakeAvatarFetcher) FetchAvatar(ctx context.Context, blobKey string) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.data[blobKey], nil
}

func TestSyncAvatarsWritesMissingFiles(t *testing.T) {
	s := newTestStore(t)
	lister := &fakePersonalityLister{personalities: []*models.Personality{
		{ID: "p1", AvatarBlobKey: "blob-1"},
		{ID: "p2", AvatarBlobKey: ""},
	}}
	fetcher := &fakeAvatarFetcher{data: map[string][]byte{"blob-1": []byte("avatar bytes")}}

	if err := s.SyncAvatars(context.Background(), lister, fetcher); err != nil {
		t.Fatalf("SyncAvatars: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(s.AvatarDir, "p1"))
	if err != nil {
		t.Fatalf("reading synced avatar: %v", err)
	}
	if string(data) != "avatar bytes" {
		t.Errorf("avatar content = %q", string(data))
	}
	if _, err := os.Stat(filepath.Join(s.AvatarDir, "p2")); !os.IsNotExist(err) {
		t.Error("expected no file written for personality with empty blob key")
	}
	if fetcher.calls != 1 {
		t.Errorf("fetcher called %d times, want 1", fetcher.calls)
	}
}

func TestSyncAvatarsSkipsAlreadyCached(t *testing.T) {
	s := newTestStore(t)
	if err := os.WriteFile(filepath.Join(s.AvatarDir, "p1"), []byte("already here"), 0o644); err != nil {
		t.Fatal(err)
	}
	lister := &fakePersonalityLister{personalities: []*models.Personality{{ID: "p1", AvatarBlobKey: "blob-1"}}}
	fetcher := &fakeAvatarFetcher{data: map[string][]byte{"blob-1": []byte("new bytes")}}

	if err := s.SyncAvatars(context.Background(), lister, fetcher); err != nil {
		t.Fatalf("SyncAvatars: %v", err)
	}
	if fetcher.calls != 0 {
		t.Errorf("fetcher should not be called for already-cached avatar, got %d calls", fetcher.calls)
	}
	data, _ := os.ReadFile(filepath.Join(s.AvatarDir, "p1"))
	if string(data) != "already here" {
		t.Error("existing avatar file was overwritten")
	}
}

func TestSyncAvatarsToleratesFetchFailure(t *testing.T) {
	s := newTestStore(t)
	lister := &fakePersonalityLister{personalities: []*models.Personality{{ID: "p1", AvatarBlobKey: "blob-1"}}}
	fetcher := &fakeAvatarFetcher{err: errors.New("object store unavailable")}

	if err := s.SyncAvatars(context.Background(), lister, fetcher); err != nil {
		t.Fatalf("SyncAvatars should not fail the whole resync on one fetch error: %v", err)
	}
}

func TestAvatarURLAndPath(t *testing.T) {
	s := newTestStore(t)
	if got, want := s.AvatarURL("p1"), "https://gateway.example.com/avatars/p1"; got != want {
		t.Errorf("AvatarURL = %q, want %q", got, want)
	}
	if got, want := s.AvatarPath("p1"), filepath.Join(s.AvatarDir, "p1"); got != want {
		t.Errorf("AvatarPath = %q, want %q", got, want)
	}
}
