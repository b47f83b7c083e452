package engine

import (
	"testing"

	"github.com/meridian-labs/tether/pkg/types"
)

func TestRecommendNilProblem(t *testing.T) {
	r := NewActionRecommender()
	if got := r.Recommend(nil); got != nil {
		t.Errorf("nil problem should yield no actions, got %v", got)
	}
}

func TestRecommendSortedByRank(t *testing.T) {
	r := NewActionRecommender()
	actions := r.Recommend(&types.ExtractedProblem{
		Category:      types.CategoryDelivery,
		CanAgentSolve: true,
	})
	if len(actions) == 0 {
		t.Fatal("expected actions for delivery")
	}
	for i := 1; i < len(actions); i++ {
		if actions[i].Rank() > actions[i-1].Rank() {
			t.Errorf("actions not sorted: %s (%.2f) after %s (%.2f)",
				actions[i].Type, actions[i].Rank(), actions[i-1].Type, actions[i-1].Rank())
		}
	}
}

func TestRecommendAppendsEscalation(t *testing.T) {
	r := NewActionRecommender()
	actions := r.Recommend(&types.ExtractedProblem{
		Category:      types.CategoryBilling,
		CanAgentSolve: false,
	})

	found := false
	for _, a := range actions {
		if a.Type == "escalate_to_human" {
			found = true
			if a.AutoExecutable {
				t.Error("escalation action must not be auto-executable")
			}
		}
	}
	if !found {
		t.Error("non-agent-solvable problem must include an escalation action")
	}
	// Rank 1.0*0.6 + 0.95*0.4 = 0.98 puts escalation first for billing.
	if actions[0].Type != "escalate_to_human" {
		t.Errorf("expected escalation ranked first, got %s", actions[0].Type)
	}
}

func TestRecommendDoesNotMutateCandidates(t *testing.T) {
	r := NewActionRecommender()
	before := len(candidateActions[types.CategoryOther])
	_ = r.Recommend(&types.ExtractedProblem{Category: types.CategoryOther, CanAgentSolve: false})
	if len(candidateActions[types.CategoryOther]) != before {
		t.Error("Recommend mutated the shared candidate table")
	}
}
