package rag

import (
	"context"
	"fmt"
	"hash/fnv"
	"log"

	"github.com/qdrant/go-client/qdrant"

	"StoryLoom/server/internal/config"
	"StoryLoom/server/internal/models"
)

// MemoryStore persists narrative moments in Qdrant and recalls the
// ones most similar to the current round's actions. Only narrative
// entry kinds are remembered; dice rolls and images carry no story
// content worth recalling.
type MemoryStore struct {
	client     *qdrant.Client
	embeddings *EmbeddingService
	collection string
	vectorSize uint64
}

// NewMemoryStore connects to Qdrant and ensures the memory collection
// exists.
func NewMemoryStore(ctx context.Context, cfg config.QdrantConfig, embeddings *EmbeddingService) (*MemoryStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	store := &MemoryStore{
		client:     client,
		embeddings: embeddings,
		collection: cfg.Collection,
		vectorSize: uint64(cfg.VectorSize),
	}
	if err := store.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (m *MemoryStore) ensureCollection(ctx context.Context) error {
	exists, err := m.client.CollectionExists(ctx, m.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		return nil
	}

	err = m.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: m.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     m.vectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", m.collection, err)
	}
	return nil
}

// Record embeds the narrative entries and upserts them. Non-narrative
// entries are skipped; a partial batch failure fails the whole call so
// the caller's retry covers it.
func (m *MemoryStore) Record(ctx context.Context, sessionID string, entries []models.LogEntry) error {
	var texts []string
	var kept []models.LogEntry
	for _, entry := range entries {
		if entry.Kind != models.LogNarration &&
			entry.Kind != models.LogGMResponse &&
			entry.Kind != models.LogPlayerAction {
			continue
		}
		texts = append(texts, entry.Content)
		kept = append(kept, entry)
	}
	if len(texts) == 0 {
		return nil
	}

	vectors, err := m.embeddings.Embed(ctx, texts)
	if err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, len(kept))
	for i, entry := range kept {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(memoryID(sessionID, entry)),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: qdrant.NewValueMap(map[string]any{
				"session_id": sessionID,
				"round":      int64(entry.Round),
				"kind":       entry.Kind,
				"content":    entry.Content,
				"player_id":  entry.PlayerID,
			}),
		}
	}

	_, err = m.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: m.collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert memories: %w", err)
	}
	return nil
}

// Related returns the stored moments most similar to the query, scoped
// to one session.
func (m *MemoryStore) Related(ctx context.Context, sessionID, query string, limit int) ([]string, error) {
	if query == "" || limit <= 0 {
		return nil, nil
	}

	vectors, err := m.embeddings.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}

	limit64 := uint64(limit)
	results, err := m.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: m.collection,
		Query:          qdrant.NewQuery(vectors[0]...),
		Limit:          &limit64,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("session_id", sessionID),
			},
		},
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query memories: %w", err)
	}

	memories := make([]string, 0, len(results))
	for _, point := range results {
		content := point.Payload["content"].GetStringValue()
		if content == "" {
			continue
		}
		round := point.Payload["round"].GetIntegerValue()
		memories = append(memories, fmt.Sprintf("[round %d] %s", round, content))
	}
	return memories, nil
}

// Close releases the Qdrant connection.
func (m *MemoryStore) Close() {
	if err := m.client.Close(); err != nil {
		log.Printf("[RAG] failed to close qdrant client: %v", err)
	}
}

// memoryID derives a stable point id so re-recording the same entry
// overwrites instead of duplicating.
func memoryID(sessionID string, entry models.LogEntry) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%d|%s|%s|%s", sessionID, entry.Round, entry.Kind, entry.PlayerID, entry.Content)
	return h.Sum64()
}
