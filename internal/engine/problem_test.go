package engine

import (
	"testing"

	"github.com/meridian-labs/tether/pkg/types"
)

func TestExtractRequiresIndicator(t *testing.T) {
	x := NewProblemExtractor()
	urgency := types.UrgencyScore{Score: 0.2, Level: types.UrgencyLow}

	if p := x.Extract("thanks, everything arrived fine", urgency, nil); p != nil {
		t.Errorf("no indicator keyword should yield no problem, got %+v", p)
	}
	if p := x.Extract("my order is delayed", urgency, nil); p == nil {
		t.Error("indicator keyword present, expected a problem")
	}
}

func TestExtractCategoryFirstMatchWins(t *testing.T) {
	x := NewProblemExtractor()
	urgency := types.UrgencyScore{Score: 0.2, Level: types.UrgencyLow}

	cases := []struct {
		text string
		want types.ProblemCategory
	}{
		{"my package is delayed", types.CategoryDelivery},
		{"I was charged twice on my invoice", types.CategoryBilling},
		{"I want a refund for this", types.CategoryRefund},
		{"the device arrived broken", types.CategoryProductDefect},
		{"I can't log in, my password is wrong", types.CategoryAccountAccess},
		{"the app shows an error and crashes", types.CategoryTechnical},
		{"something is wrong here", types.CategoryOther},
		// Delivery is checked before billing, so a mixed message lands there.
		{"my order was charged but the package is missing", types.CategoryDelivery},
	}
	for _, tc := range cases {
		p := x.Extract(tc.text, urgency, nil)
		if p == nil {
			t.Errorf("Extract(%q) returned nil", tc.text)
			continue
		}
		if p.Category != tc.want {
			t.Errorf("Extract(%q) category = %s, want %s", tc.text, p.Category, tc.want)
		}
	}
}

func TestCanAgentSolve(t *testing.T) {
	if canAgentSolve("I want to speak to a manager about my order", types.UrgencyLow) {
		t.Error("manager mention must not be agent-solvable")
	}
	if canAgentSolve("my order is delayed", types.UrgencyHigh) {
		t.Error("high urgency must not be agent-solvable")
	}
	if !canAgentSolve("my order is delayed", types.UrgencyMedium) {
		t.Error("routine delivery problem should be agent-solvable")
	}
}

func TestExtractCriticality(t *testing.T) {
	x := NewProblemExtractor()

	// Base case: criticality is just the urgency score.
	p := x.Extract("my order is missing", types.UrgencyScore{Score: 0.4, Level: types.UrgencyMedium}, nil)
	if p == nil {
		t.Fatal("expected a problem")
	}
	if p.Criticality != 0.4 {
		t.Errorf("criticality = %f, want 0.4", p.Criticality)
	}
	if !p.CanAgentSolve {
		t.Error("expected agent-solvable")
	}

	// Manager demand (+0.3), critical keyword (+0.2), similar history (+0.2):
	// 0.5 + 0.7 clamps to 1.0.
	history := []string{"my order AB123 is missing, get me a manager"}
	p = x.Extract("my order AB123 is missing, this is urgent, get me a manager",
		types.UrgencyScore{Score: 0.5, Level: types.UrgencyMedium}, history)
	if p == nil {
		t.Fatal("expected a problem")
	}
	if p.CanAgentSolve {
		t.Error("manager demand should not be agent-solvable")
	}
	if p.Criticality != 1.0 {
		t.Errorf("criticality = %f, want clamped 1.0", p.Criticality)
	}
	if p.Occurrences != 2 {
		t.Errorf("occurrences = %d, want 2", p.Occurrences)
	}
}

func TestExtractDescriptionBounded(t *testing.T) {
	x := NewProblemExtractor()
	long := "my order is delayed "
	for len(long) <= maxDescriptionLength {
		long += "and I am still waiting for any update at all "
	}

	p := x.Extract(long, types.UrgencyScore{Score: 0.3, Level: types.UrgencyMedium}, nil)
	if p == nil {
		t.Fatal("expected a problem")
	}
	if len(p.Description) > maxDescriptionLength {
		t.Errorf("description length %d exceeds %d", len(p.Description), maxDescriptionLength)
	}
}
