package memory

import (
	"context"
	"fmt"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/aceteam-ai/conduit/internal/models"
)

const (
	collectionName = "conduit_memory"
	vectorField    = "embedding"
)

// Store is the vector-backed long-term-memory index of spec §3's Memory
// entity. No pack example calls the Milvus SDK directly; this wrapper
// follows the SDK's documented collection/column/search shape rather than
// a verified in-pack usage.
type Store struct {
	client   client.Client
	embedder Embedder
}

// New connects to addr and ensures the memory collection/index exist.
func New(ctx context.Context, addr string, embedder Embedder) (*Store, error) {
	cli, err := client.NewClient(ctx, client.Config{Address: addr})
	if err != nil {
		return nil, fmt.Errorf("memory: connect milvus: %w", err)
	}

	s := &Store{client: cli, embedder: embedder}
	if err := s.ensureCollection(ctx); err != nil {
		cli.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) ensureCollection(ctx context.Context) error {
	exists, err := s.client.HasCollection(ctx, collectionName)
	if err != nil {
		return fmt.Errorf("memory: check collection: %w", err)
	}
	if exists {
		return s.client.LoadCollection(ctx, collectionName, false)
	}

	schema := &entity.Schema{
		CollectionName: collectionName,
		Fields: []*entity.Field{
			{Name: "id", DataType: entity.FieldTypeVarChar, PrimaryKey: true, TypeParams: map[string]string{"max_length": "64"}},
			{Name: vectorField, DataType: entity.FieldTypeFloatVector, TypeParams: map[string]string{"dim": fmt.Sprint(EmbeddingDim)}},
			{Name: "persona_id", DataType: entity.FieldTypeVarChar, TypeParams: map[string]string{"max_length": "64"}},
			{Name: "personality_id", DataType: entity.FieldTypeVarChar, TypeParams: map[string]string{"max_length": "64"}},
			{Name: "channel_id", DataType: entity.FieldTypeVarChar, TypeParams: map[string]string{"max_length": "64"}},
			{Name: "text", DataType: entity.FieldTypeVarChar, TypeParams: map[string]string{"max_length": "8192"}},
			{Name: "created_at", DataType: entity.FieldTypeInt64},
		},
	}

	if err := s.client.CreateCollection(ctx, schema, 2); err != nil {
		return fmt.Errorf("memory: create collection: %w", err)
	}

	idx, err := entity.NewIndexIvfFlat(entity.L2, 128)
	if err != nil {
		return fmt.Errorf("memory: build index spec: %w", err)
	}
	if err := s.client.CreateIndex(ctx, collectionName, vectorField, idx, false); err != nil {
		return fmt.Errorf("memory: create index: %w", err)
	}

	return s.client.LoadCollection(ctx, collectionName, false)
}

// Insert embeds and writes m to the vector index, keyed by its
// deterministic id (spec §3: UUIDv5, ON CONFLICT DO NOTHING semantics —
// Milvus upserts by primary key, so a re-insert of the same id is
// naturally idempotent).
func (s *Store) Insert(ctx context.Context, m models.Memory) error {
	vec, err := s.embedder.Embed(ctx, m.Text)
	if err != nil {
		return fmt.Errorf("memory: embed: %w", err)
	}

	columns := []entity.Column{
		entity.NewColumnVarChar("id", []string{m.ID}),
		entity.NewColumnFloatVector(vectorField, EmbeddingDim, [][]float32{vec}),
		entity.NewColumnVarChar("persona_id", []string{m.PersonaID}),
		entity.NewColumnVarChar("personality_id", []string{m.PersonalityID}),
		entity.NewColumnVarChar("channel_id", []string{m.ChannelID}),
		entity.NewColumnVarChar("text", []string{m.Text}),
		entity.NewColumnInt64("created_at", []int64{m.CreatedAt.UnixMilli()}),
	}

	if _, err := s.client.Insert(ctx, collectionName, "", columns...); err != nil {
		return fmt.Errorf("memory: insert: %w", err)
	}
	return nil
}

// search runs a single top-k similarity query, optionally scoped by a
// Milvus boolean expression (e.g. "channel_id == \"123\"").
func (s *Store) search(ctx context.Context, queryText, expr string, topK int) ([]searchHit, error) {
	if topK <= 0 {
		return nil, nil
	}

	vec, err := s.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("memory: embed query: %w", err)
	}

	sp, err := entity.NewIndexFlatSearchParam()
	if err != nil {
		return nil, fmt.Errorf("memory: build search params: %w", err)
	}

	results, err := s.client.Search(ctx, collectionName, nil, expr,
		[]string{"id", "text", "channel_id"},
		[]entity.Vector{entity.FloatVector(vec)},
		vectorField, entity.L2, topK, sp)
	if err != nil {
		return nil, fmt.Errorf("memory: search: %w", err)
	}

	var hits []searchHit
	for _, r := range results {
		idCol := r.Fields.GetColumn("id")
		textCol := r.Fields.GetColumn("text")
		channelCol := r.Fields.GetColumn("channel_id")
		for i := 0; i < r.ResultCount; i++ {
			id, _ := idCol.GetAsString(i)
			text, _ := textCol.GetAsString(i)
			channelID, _ := channelCol.GetAsString(i)
			hits = append(hits, searchHit{
				ID:        id,
				Text:      text,
				ChannelID: channelID,
				Score:     float64(r.Scores[i]),
			})
		}
	}
	return hits, nil
}

type searchHit struct {
	ID        string
	Text      string
	ChannelID string
	Score     float64
}
