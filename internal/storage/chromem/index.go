// Package chromem implements the vector tiers on chromem-go, a pure-Go
// embedded vector database with cosine similarity. The recent-turn index and
// the embedded archive variant both live here.
package chromem

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/meridian-labs/tether/internal/storage"
	"github.com/meridian-labs/tether/pkg/types"
)

var _ storage.VectorIndex = (*RecentIndex)(nil)

// RecentIndex is the nearest-neighbor index over recent turns. Points are
// keyed by session id: an upsert for an existing session supersedes the
// previous point.
type RecentIndex struct {
	collection *chromem.Collection

	// mu serializes delete+add upserts for the same collection.
	mu sync.Mutex
}

// NewRecentIndex creates the recent-turn index backed by an in-process
// chromem collection. Embeddings are always supplied by the caller, so no
// embedding function is configured.
func NewRecentIndex() (*RecentIndex, error) {
	db := chromem.NewDB()
	collection, err := db.GetOrCreateCollection("recent_turns", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem: create recent_turns collection: %w", err)
	}
	return &RecentIndex{collection: collection}, nil
}

// Upsert stores the point under its session id, replacing any earlier point
// for the same session. chromem has no native upsert, so this is a
// delete-then-add under the index lock.
func (i *RecentIndex) Upsert(ctx context.Context, point *types.ShortTermVectorPoint) error {
	if point == nil || point.SessionID == "" {
		return fmt.Errorf("chromem: vector point requires a session id")
	}

	payload, err := json.Marshal(point)
	if err != nil {
		return fmt.Errorf("chromem: marshal point %s: %w", point.SessionID, err)
	}

	doc := chromem.Document{
		ID:        point.SessionID,
		Embedding: point.Intent,
		Content:   string(payload),
		Metadata: map[string]string{
			"pseudo_user_id": point.PseudoUserID,
			"channel":        string(point.Channel),
		},
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	// Ignore the delete error for fresh ids; AddDocument will catch anything real.
	_ = i.collection.Delete(ctx, nil, nil, point.SessionID)

	if err := i.collection.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("chromem: upsert point %s: %w", point.SessionID, err)
	}
	return nil
}

// Query returns up to topK points nearest to vector, most similar first.
func (i *RecentIndex) Query(ctx context.Context, vector []float32, topK int) ([]types.ShortTermVectorPoint, error) {
	results, err := queryCollection(ctx, i.collection, vector, topK)
	if err != nil {
		return nil, fmt.Errorf("chromem: query recent turns: %w", err)
	}

	points := make([]types.ShortTermVectorPoint, 0, len(results))
	for _, res := range results {
		var point types.ShortTermVectorPoint
		if err := json.Unmarshal([]byte(res.Content), &point); err != nil {
			return nil, fmt.Errorf("chromem: unmarshal point %s: %w", res.ID, err)
		}
		points = append(points, point)
	}
	return points, nil
}

// Close is a no-op; chromem keeps everything in process memory.
func (i *RecentIndex) Close() error {
	return nil
}

// queryCollection runs a QueryEmbedding with topK clamped to the collection
// size, since chromem rejects nResults larger than the document count.
func queryCollection(ctx context.Context, col *chromem.Collection, vector []float32, topK int) ([]chromem.Result, error) {
	if topK <= 0 {
		topK = 10
	}
	if count := col.Count(); count < topK {
		topK = count
	}
	if topK == 0 {
		return nil, nil
	}
	return col.QueryEmbedding(ctx, vector, topK, nil, nil)
}
