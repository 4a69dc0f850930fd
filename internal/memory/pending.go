package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/aceteam-ai/conduit/internal/ids"
	"github.com/aceteam-ai/conduit/internal/models"
	"github.com/aceteam-ai/conduit/internal/pipeline"
)

// PendingMemoryStore is the relational-store seam internal/memory needs,
// satisfied by internal/store/postgres.Store in production and by a fake
// in tests (SPEC_FULL's ambient test-tooling note: interface-seam fakes
// for postgres rather than a live database in unit tests).
type PendingMemoryStore interface {
	CreatePendingMemory(ctx context.Context, pm models.PendingMemory) error
	GetPendingMemory(ctx context.Context, id string) (*models.PendingMemory, error)
	DeletePendingMemory(ctx context.Context, id string) error
	RetainPendingMemory(ctx context.Context, id, lastError string) error
}

// VectorInserter is the narrow seam Writer needs from Store.
type VectorInserter interface {
	Insert(ctx context.Context, m models.Memory) error
}

// Writer adapts a VectorInserter + a PendingMemoryStore to
// pipeline.MemoryWriter, implementing spec §4.3 stage 11's
// stage→commit→delete-or-retain flow.
type Writer struct {
	pending PendingMemoryStore
	vectors VectorInserter
}

func NewWriter(pending PendingMemoryStore, vectors VectorInserter) *Writer {
	return &Writer{pending: pending, vectors: vectors}
}

var _ pipeline.MemoryWriter = (*Writer)(nil)

func (w *Writer) StagePending(ctx context.Context, personaID, personalityID, text string) (string, error) {
	hash := ids.ContentHash(text)
	memoryID := ids.MemoryID(personaID, personalityID, hash)

	pm := models.PendingMemory{
		ID: ids.NewULID(),
		Memory: models.Memory{
			ID:            memoryID,
			PersonaID:     personaID,
			PersonalityID: personalityID,
			Text:          text,
			Scope:         models.MemoryScopePersonal,
			CreatedAt:     time.Now().UTC(),
		},
	}
	if err := w.pending.CreatePendingMemory(ctx, pm); err != nil {
		return "", fmt.Errorf("memory: stage pending: %w", err)
	}
	return pm.ID, nil
}

func (w *Writer) Commit(ctx context.Context, pendingID string) error {
	pm, err := w.pending.GetPendingMemory(ctx, pendingID)
	if err != nil {
		return fmt.Errorf("memory: load pending %q: %w", pendingID, err)
	}
	if pm == nil {
		return fmt.Errorf("memory: pending %q not found", pendingID)
	}

	if err := w.vectors.Insert(ctx, pm.Memory); err != nil {
		return fmt.Errorf("memory: vector insert for %q: %w", pendingID, err)
	}

	return w.pending.DeletePendingMemory(ctx, pendingID)
}

func (w *Writer) RetainForRetry(ctx context.Context, pendingID string) error {
	return w.pending.RetainPendingMemory(ctx, pendingID, "vector insert failed")
}
