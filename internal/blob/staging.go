// Package blob implements the two shared blob areas of spec §6's
// "Persistent state layout": ephemeral request-scoped attachment staging
// (spec §4.1) and the persistent avatar cache synced from the database.
// Grounded on the teacher's internal/jobs/download_model.go (HTTP fetch to
// a local path under os.MkdirAll-ensured directories), generalized from a
// one-shot curl subprocess to an http.Client-based Store with content
// hashing and filename sanitization, since attachment staging must compute
// a content hash for the deduplication fingerprint (spec §4.1) rather than
// just land a file on disk.
package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Store manages the two on-disk blob directories described in spec §6:
// a persistent avatar cache and an ephemeral per-request attachment
// staging area, both served back out under a public gateway URL.
type Store struct {
	AvatarDir     string
	AttachmentDir string
	GatewayURL    string // e.g. "https://gateway.example.com", no trailing slash

	HTTPClient *http.Client
	logger     *slog.Logger
}

// NewStore ensures both blob directories exist (spec §6: "created at
// startup if absent") and returns a ready Store.
func NewStore(avatarDir, attachmentDir, gatewayURL string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(avatarDir, 0o755); err != nil {
		return nil, fmt.Errorf("blob: create avatar dir: %w", err)
	}
	if err := os.MkdirAll(attachmentDir, 0o755); err != nil {
		return nil, fmt.Errorf("blob: create attachment dir: %w", err)
	}
	return &Store{
		AvatarDir:     avatarDir,
		AttachmentDir: attachmentDir,
		GatewayURL:    strings.TrimSuffix(gatewayURL, "/"),
		HTTPClient:    &http.Client{Timeout: 30 * time.Second},
		logger:        logger,
	}, nil
}

// StagedAttachment is the result of staging one inbound attachment.
type StagedAttachment struct {
	URL         string // public gateway URL the worker reads back
	ContentHash string // sha256 hex, feeds the dedup fingerprint (spec §4.1)
	Path        string // on-disk path, for housekeeping jobs
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// sanitizeFilename collapses anything outside [A-Za-z0-9._-] so a
// caller-supplied name can't escape the staging directory or collide with
// reserved path segments.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	if name == "" || name == "." || name == ".." {
		name = "attachment"
	}
	return name
}

// StageAttachment downloads sourceURL and writes it under
// {AttachmentDir}/{requestID}/{index}-{sanitizedName}, returning the
// public URL workers will read it back from:
// "${publicGatewayUrl}/temp-attachments/{requestId}/{index}-{sanitizedName}"
// per spec §4.1's attachment-staging contract.
func (s *Store) StageAttachment(ctx context.Context, requestID string, index int, sourceURL, name string) (StagedAttachment, error) {
	sanitized := sanitizeFilename(name)
	if sanitized == "attachment" {
		if ext := filepath.Ext(sourceURL); ext != "" && unsafeFilenameChars.FindString(ext) == "" {
			sanitized += ext
		}
	}
	filename := fmt.Sprintf("%d-%s", index, sanitized)

	destDir := filepath.Join(s.AttachmentDir, requestID)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return StagedAttachment{}, fmt.Errorf("blob: create request staging dir: %w", err)
	}
	destPath := filepath.Join(destDir, filename)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return StagedAttachment{}, fmt.Errorf("blob: build attachment fetch request: %w", err)
	}
	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return StagedAttachment{}, fmt.Errorf("blob: fetch attachment: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return StagedAttachment{}, fmt.Errorf("blob: attachment source returned HTTP %d", resp.StatusCode)
	}

	f, err := os.Create(destPath)
	if err != nil {
		return StagedAttachment{}, fmt.Errorf("blob: create staged file: %w", err)
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.Copy(io.MultiWriter(f, hasher), resp.Body); err != nil {
		return StagedAttachment{}, fmt.Errorf("blob: write staged file: %w", err)
	}

	s.logger.Debug("attachment staged", "requestId", requestID, "index", index, "path", destPath)

	return StagedAttachment{
		URL:         fmt.Sprintf("%s/temp-attachments/%s/%s", s.GatewayURL, requestID, filename),
		ContentHash: hex.EncodeToString(hasher.Sum(nil)),
		Path:        destPath,
	}, nil
}
