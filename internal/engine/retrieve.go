package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/meridian-labs/tether/pkg/types"
)

// RetrieveResult is the context bundle handed to response generation: an
// assembled memory block plus the raw tiers it was built from.
type RetrieveResult struct {
	MemoryBlock string                       `json:"memory_block"`
	ShortTerm   *types.ShortTermRecord       `json:"short_term,omitempty"`
	Recent      []types.ShortTermVectorPoint `json:"recent,omitempty"`
	LongTerm    []types.LongTermMemoryPoint  `json:"long_term,omitempty"`
}

// Retrieve runs the read fan-out for a session without any write-back or
// intelligence stages. Retrieval never mutates: TTLs are not refreshed and
// repeated calls return identical content until the next Store.
func (e *Engine) Retrieve(ctx context.Context, sessionID, queryText string) (*RetrieveResult, error) {
	vector, err := e.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, &PipelineError{Category: FailureEmbedding, Err: fmt.Errorf("engine: embed query: %w", err)}
	}

	reads := e.readContext(ctx, sessionID, vector)

	return &RetrieveResult{
		MemoryBlock: buildMemoryBlock(reads),
		ShortTerm:   reads.record,
		Recent:      reads.recent,
		LongTerm:    reads.archive,
	}, nil
}

// buildMemoryBlock renders the retrieved context as prompt-ready text:
// the recent conversation turns, then the relevant archive summaries.
func buildMemoryBlock(reads contextReads) string {
	var b strings.Builder

	if reads.record != nil && len(reads.record.Messages) > 0 {
		b.WriteString("Recent conversation:\n")
		for _, m := range reads.record.Messages {
			fmt.Fprintf(&b, "- [%s] %s\n", m.Role, m.Text)
		}
	}

	if len(reads.archive) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Relevant history:\n")
		for i, p := range reads.archive {
			fmt.Fprintf(&b, "%d. %s\n", i+1, p.Summary)
		}
	}

	return b.String()
}
