package blob

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/aceteam-ai/conduit/internal/models"
)

// PersonalityLister is the narrow seam into internal/store/postgres this
// package needs for avatar resync; kept as an interface so tests can
// substitute a fake without a live database.
type PersonalityLister interface {
	ListPersonalitiesWithAvatars(ctx context.Context) ([]*models.Personality, error)
}

// AvatarFetcher resolves a blob key to its bytes. The concrete object
// store behind it is out of scope (spec §1's non-goals list raw storage
// engines); this interface is the entire contract the core has with it.
type AvatarFetcher interface {
	FetchAvatar(ctx context.Context, blobKey string) ([]byte, error)
}

// SyncAvatars implements spec §6's "source of truth is the DB; missing
// entries resynced at startup": for every personality carrying an avatar
// blob key, write its bytes to {AvatarDir}/{personalityId} if not already
// present. Existing files are never overwritten — the DB is consulted only
// to discover what's missing, not to re-verify what's already cached.
func (s *Store) SyncAvatars(ctx context.Context, personalities PersonalityLister, fetcher AvatarFetcher) error {
	avatars, err := personalities.ListPersonalitiesWithAvatars(ctx)
	if err != nil {
		return fmt.Errorf("blob: list personalities with avatars: %w", err)
	}

	var synced, skipped, failed int
	for _, p := range avatars {
		if p.AvatarBlobKey == "" {
			continue
		}
		destPath := filepath.Join(s.AvatarDir, p.ID)
		if _, err := os.Stat(destPath); err == nil {
			skipped++
			continue
		}

		data, err := fetcher.FetchAvatar(ctx, p.AvatarBlobKey)
		if err != nil {
			s.logger.Warn("avatar resync failed", "personalityId", p.ID, "blobKey", p.AvatarBlobKey, "error", err)
			failed++
			continue
		}
		if err := os.WriteFile(destPath, data, 0o644); err != nil {
			s.logger.Warn("avatar write failed", "personalityId", p.ID, "error", err)
			failed++
			continue
		}
		synced++
	}

	s.logger.Info("avatar resync complete", "synced", synced, "skipped", skipped, "failed", failed)
	return nil
}

// HTTPAvatarFetcher treats a personality's AvatarBlobKey as a directly
// fetchable URL, the same HTTP-GET contract StageAttachment uses for
// inbound attachments — no object-store SDK is in scope (spec §1's
// non-goals exclude raw storage engines), so the blob key is whatever
// upstream already serves avatars from.
type HTTPAvatarFetcher struct {
	Client *http.Client
}

func (f HTTPAvatarFetcher) FetchAvatar(ctx context.Context, blobKey string) ([]byte, error) {
	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, blobKey, nil)
	if err != nil {
		return nil, fmt.Errorf("blob: build avatar fetch request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("blob: fetch avatar: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("blob: avatar source returned HTTP %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// AvatarURL returns the public URL a cached avatar is served from, per
// spec §6's "GET /avatars/*" public route.
func (s *Store) AvatarURL(personalityID string) string {
	return fmt.Sprintf("%s/avatars/%s", s.GatewayURL, personalityID)
}

// AvatarPath returns the on-disk path for personalityID's cached avatar,
// for internal/server's file-serving handler.
func (s *Store) AvatarPath(personalityID string) string {
	return filepath.Join(s.AvatarDir, personalityID)
}
