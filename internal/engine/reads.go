package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/meridian-labs/tether/internal/storage"
	"github.com/meridian-labs/tether/pkg/types"
)

// contextReads is the joined result of the parallel context fan-out.
// Any field may be empty: a failed or timed-out read degrades to no prior
// context instead of failing the request.
type contextReads struct {
	record  *types.ShortTermRecord
	recent  []types.ShortTermVectorPoint
	archive []types.LongTermMemoryPoint
}

// readContext issues the three context reads concurrently and waits for all
// of them: the session record, the nearest recent-turn points, and the
// nearest archive points. Each read gets its own budget when one is
// configured, and each degrades independently.
func (e *Engine) readContext(ctx context.Context, sessionID string, intent []float32) contextReads {
	var reads contextReads
	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		readCtx, cancel := e.budgeted(ctx)
		defer cancel()
		record, err := e.sessions.Get(readCtx, sessionID)
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				e.logger.Warn("session read failed, degrading to empty",
					"session_id", sessionID, "error", err)
			}
			return
		}
		reads.record = record
	}()

	go func() {
		defer wg.Done()
		readCtx, cancel := e.budgeted(ctx)
		defer cancel()
		points, err := e.recent.Query(readCtx, intent, e.topK)
		if err != nil {
			e.logger.Warn("recent vector query failed, degrading to empty",
				"session_id", sessionID, "error", err)
			return
		}
		reads.recent = points
	}()

	go func() {
		defer wg.Done()
		readCtx, cancel := e.budgeted(ctx)
		defer cancel()
		points, err := e.archive.Query(readCtx, intent, e.topK)
		if err != nil {
			e.logger.Warn("archive query failed, degrading to empty",
				"session_id", sessionID, "error", err)
			return
		}
		reads.archive = points
	}()

	wg.Wait()
	return reads
}

// budgeted derives the per-read context. Without a budget the parent context
// is used as is.
func (e *Engine) budgeted(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.readBudget <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.readBudget)
}

// historyTexts flattens the retrieved context into the text corpus the
// intelligence layer scores against: session messages first, then archive
// summaries.
func (r contextReads) historyTexts() []string {
	var texts []string
	if r.record != nil {
		texts = append(texts, r.record.Texts()...)
	}
	for _, p := range r.archive {
		if p.Summary != "" {
			texts = append(texts, p.Summary)
		}
	}
	return texts
}
