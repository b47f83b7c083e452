package engine

import (
	"sort"

	"github.com/meridian-labs/tether/pkg/types"
)

// candidateActions maps a problem category to its fixed action set.
// Confidence and priority are heuristic constants; auto-executable actions
// can run without a manual approval step.
var candidateActions = map[types.ProblemCategory][]types.RecommendedAction{
	types.CategoryDelivery: {
		{Type: "check_order_status", Description: "Look up the order and share its current status", Confidence: 0.9, Priority: 0.8, AutoExecutable: true},
		{Type: "resend_tracking", Description: "Send the customer the latest tracking link", Confidence: 0.8, Priority: 0.6, AutoExecutable: true},
		{Type: "file_carrier_inquiry", Description: "Open an inquiry with the shipping carrier", Confidence: 0.6, Priority: 0.5, AutoExecutable: false},
	},
	types.CategoryBilling: {
		{Type: "explain_charges", Description: "Walk through the line items on the latest invoice", Confidence: 0.85, Priority: 0.6, AutoExecutable: true},
		{Type: "review_charge", Description: "Flag the disputed charge for billing review", Confidence: 0.8, Priority: 0.8, AutoExecutable: false},
	},
	types.CategoryRefund: {
		{Type: "explain_refund_policy", Description: "Share the refund policy and expected timeline", Confidence: 0.9, Priority: 0.5, AutoExecutable: true},
		{Type: "initiate_refund", Description: "Start the refund workflow for the affected order", Confidence: 0.7, Priority: 0.9, AutoExecutable: false},
	},
	types.CategoryProductDefect: {
		{Type: "send_troubleshooting", Description: "Send the troubleshooting guide for the product", Confidence: 0.8, Priority: 0.6, AutoExecutable: true},
		{Type: "start_replacement", Description: "Start a replacement order for the defective item", Confidence: 0.75, Priority: 0.8, AutoExecutable: false},
	},
	types.CategoryAccountAccess: {
		{Type: "send_password_reset", Description: "Email a password reset link to the account address", Confidence: 0.9, Priority: 0.9, AutoExecutable: true},
		{Type: "verify_identity", Description: "Run the identity verification flow before unlocking", Confidence: 0.8, Priority: 0.7, AutoExecutable: false},
	},
	types.CategoryTechnical: {
		{Type: "collect_error_details", Description: "Ask for the exact error message and steps to reproduce", Confidence: 0.85, Priority: 0.6, AutoExecutable: true},
		{Type: "run_diagnostics", Description: "Run automated diagnostics on the customer's account", Confidence: 0.8, Priority: 0.7, AutoExecutable: true},
	},
	types.CategoryOther: {
		{Type: "clarify_request", Description: "Ask a clarifying question to pin down the problem", Confidence: 0.7, Priority: 0.5, AutoExecutable: true},
	},
}

// escalationAction is appended whenever the problem needs a human.
var escalationAction = types.RecommendedAction{
	Type:           "escalate_to_human",
	Description:    "Hand the conversation to a human agent",
	Confidence:     0.95,
	Priority:       1.0,
	AutoExecutable: false,
}

// ActionRecommender maps an extracted problem to ranked next steps.
type ActionRecommender struct{}

// NewActionRecommender creates a recommender.
func NewActionRecommender() *ActionRecommender {
	return &ActionRecommender{}
}

// Recommend returns the candidate actions for the problem's category, with an
// escalation action appended when the problem is not agent-solvable, sorted
// by rank descending. A nil problem yields no actions.
func (r *ActionRecommender) Recommend(problem *types.ExtractedProblem) []types.RecommendedAction {
	if problem == nil {
		return nil
	}

	base := candidateActions[problem.Category]
	actions := make([]types.RecommendedAction, len(base))
	copy(actions, base)

	if !problem.CanAgentSolve {
		actions = append(actions, escalationAction)
	}

	sort.SliceStable(actions, func(i, j int) bool {
		return actions[i].Rank() > actions[j].Rank()
	})
	return actions
}
