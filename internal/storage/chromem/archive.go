package chromem

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	chromem "github.com/philippgille/chromem-go"

	"github.com/meridian-labs/tether/internal/storage"
	"github.com/meridian-labs/tether/pkg/types"
)

var _ storage.ArchiveStore = (*Archive)(nil)

// Archive is the embedded long-term tier for deployments without Postgres.
// It keeps the same insert-only contract as the pgvector backend: one point
// per (pseudo_user_id, last_seen), never updated in place.
type Archive struct {
	collection *chromem.Collection
}

// NewArchive creates an in-process archive collection.
func NewArchive() (*Archive, error) {
	db := chromem.NewDB()
	collection, err := db.GetOrCreateCollection("archive_points", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem: create archive collection: %w", err)
	}
	return &Archive{collection: collection}, nil
}

// archiveID derives the document id from the insert-only key.
func archiveID(point *types.LongTermMemoryPoint) string {
	return point.PseudoUserID + "|" + strconv.FormatInt(point.LastSeen.UnixNano(), 10)
}

// Insert stores a new memory point. Re-inserting the same
// (pseudo_user_id, last_seen) pair is a no-op.
func (a *Archive) Insert(ctx context.Context, point *types.LongTermMemoryPoint) error {
	if point == nil || point.PseudoUserID == "" {
		return fmt.Errorf("chromem: archive point requires a pseudo user id")
	}

	payload, err := json.Marshal(point)
	if err != nil {
		return fmt.Errorf("chromem: marshal archive point: %w", err)
	}

	doc := chromem.Document{
		ID:        archiveID(point),
		Embedding: point.Intent,
		Content:   string(payload),
		Metadata:  map[string]string{"pseudo_user_id": point.PseudoUserID},
	}
	if err := a.collection.AddDocument(ctx, doc); err != nil {
		// Duplicate key means the point already exists; insert-only semantics
		// make that a no-op rather than an error.
		if a.exists(doc.ID) {
			return nil
		}
		return fmt.Errorf("chromem: insert archive point %s: %w", doc.ID, err)
	}
	return nil
}

// exists reports whether a document id is already stored.
func (a *Archive) exists(id string) bool {
	_, err := a.collection.GetByID(context.Background(), id)
	return err == nil
}

// Query returns up to topK archive points nearest to vector.
func (a *Archive) Query(ctx context.Context, vector []float32, topK int) ([]types.LongTermMemoryPoint, error) {
	results, err := queryCollection(ctx, a.collection, vector, topK)
	if err != nil {
		return nil, fmt.Errorf("chromem: query archive: %w", err)
	}

	points := make([]types.LongTermMemoryPoint, 0, len(results))
	for _, res := range results {
		var point types.LongTermMemoryPoint
		if err := json.Unmarshal([]byte(res.Content), &point); err != nil {
			return nil, fmt.Errorf("chromem: unmarshal archive point %s: %w", res.ID, err)
		}
		points = append(points, point)
	}
	return points, nil
}

// Close is a no-op; chromem keeps everything in process memory.
func (a *Archive) Close() error {
	return nil
}
