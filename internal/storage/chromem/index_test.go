package chromem

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-labs/tether/pkg/types"
)

func TestRecentIndex_UpsertSupersedes(t *testing.T) {
	index, err := NewRecentIndex()
	require.NoError(t, err)
	ctx := context.Background()

	first := &types.ShortTermVectorPoint{
		SessionID:    "web:abc",
		PseudoUserID: "P1",
		Channel:      types.ChannelWeb,
		Intent:       []float32{1, 0, 0},
		Text:         "where is order AB123",
		Metadata:     types.Metadata{IP: "198.51.100.7", Geo: "DE", Lang: "de"},
		Timestamp:    time.Now(),
	}
	require.NoError(t, index.Upsert(ctx, first))

	second := *first
	second.PseudoUserID = "P2"
	second.Intent = []float32{0, 1, 0}
	require.NoError(t, index.Upsert(ctx, &second))

	// Only the superseding point remains, with its payload intact.
	points, err := index.Query(ctx, []float32{0, 1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "P2", points[0].PseudoUserID)
	assert.Equal(t, "where is order AB123", points[0].Text)
	assert.Equal(t, "DE", points[0].Metadata.Geo)
}

func TestRecentIndex_QueryEmptyIndex(t *testing.T) {
	index, err := NewRecentIndex()
	require.NoError(t, err)

	points, err := index.Query(context.Background(), []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, points)
}

func TestRecentIndex_QueryRanksBySimilarity(t *testing.T) {
	index, err := NewRecentIndex()
	require.NoError(t, err)
	ctx := context.Background()

	near := &types.ShortTermVectorPoint{SessionID: "web:near", Intent: []float32{0.9, 0.1, 0}}
	far := &types.ShortTermVectorPoint{SessionID: "web:far", Intent: []float32{0, 0, 1}}
	require.NoError(t, index.Upsert(ctx, near))
	require.NoError(t, index.Upsert(ctx, far))

	points, err := index.Query(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, "web:near", points[0].SessionID)
}

func TestArchive_InsertOnly(t *testing.T) {
	archive, err := NewArchive()
	require.NoError(t, err)
	ctx := context.Background()

	seen := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	point := &types.LongTermMemoryPoint{
		PseudoUserID: "P1",
		Summary:      "asked about a delayed order",
		Intent:       []float32{1, 0, 0},
		LastSeen:     seen,
	}
	require.NoError(t, archive.Insert(ctx, point))

	// Same (pseudo_user_id, last_seen) pair: no-op, not an error.
	require.NoError(t, archive.Insert(ctx, point))

	later := *point
	later.LastSeen = seen.Add(time.Hour)
	require.NoError(t, archive.Insert(ctx, &later))

	points, err := archive.Query(ctx, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, points, 2)
}
