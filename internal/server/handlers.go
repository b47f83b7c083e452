package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/meridian-labs/tether/internal/adapters"
	"github.com/meridian-labs/tether/internal/engine"
	"github.com/meridian-labs/tether/internal/storage"
	"github.com/meridian-labs/tether/pkg/types"
)

// Pipeline is the slice of the engine the handlers need. Tests substitute a
// fake.
type Pipeline interface {
	Store(ctx context.Context, req engine.StoreRequest) (*engine.StoreResult, error)
	Retrieve(ctx context.Context, sessionID, queryText string) (*engine.RetrieveResult, error)
	GetTicket(ctx context.Context, id string) (*types.EscalationTicket, error)
	ListTickets(ctx context.Context, status types.TicketStatus) []types.EscalationTicket
	UpdateTicket(ctx context.Context, id string, status types.TicketStatus) error
}

// handlers carries the pipeline and logger for all routes.
type handlers struct {
	pipeline Pipeline
	logger   *slog.Logger
}

// storeMessageRequest is the POST /api/v1/messages body. UserID is the raw
// channel-local identifier; it is hashed inside the pipeline and never stored.
type storeMessageRequest struct {
	Channel  string         `json:"channel"`
	UserID   string         `json:"user_id"`
	Text     string         `json:"text"`
	Subject  string         `json:"subject,omitempty"`
	Summary  string         `json:"summary,omitempty"`
	Metadata types.Metadata `json:"metadata"`
}

func (h *handlers) handleStoreMessage(w http.ResponseWriter, r *http.Request) {
	var req storeMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
		return
	}

	adapter, err := adapters.ForChannel(types.Channel(req.Channel))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "UNKNOWN_CHANNEL")
		return
	}

	metadata := req.Metadata
	if metadata.IP == "" {
		if host, _, splitErr := net.SplitHostPort(r.RemoteAddr); splitErr == nil {
			metadata.IP = host
		}
	}
	if metadata.UserAgent == "" {
		metadata.UserAgent = r.UserAgent()
	}

	inbound, err := adapter.Normalize(adapters.RawMessage{
		UserID:   req.UserID,
		Text:     req.Text,
		Subject:  req.Subject,
		Metadata: metadata,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
		return
	}

	result, err := h.pipeline.Store(r.Context(), engine.StoreRequest{
		Channel:  inbound.Channel,
		UserID:   inbound.UserID,
		Text:     inbound.Text,
		Summary:  req.Summary,
		Metadata: inbound.Metadata,
	})
	if err != nil {
		h.writePipelineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handlers) handleRetrieveContext(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "query parameter q is required", "BAD_REQUEST")
		return
	}

	result, err := h.pipeline.Retrieve(r.Context(), sessionID, query)
	if err != nil {
		h.writePipelineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handlers) handleListTickets(w http.ResponseWriter, r *http.Request) {
	status := types.TicketStatus(r.URL.Query().Get("status"))
	if status != "" && !types.IsValidTicketStatus(status) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", status), "BAD_REQUEST")
		return
	}

	tickets := h.pipeline.ListTickets(r.Context(), status)
	if tickets == nil {
		tickets = []types.EscalationTicket{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tickets": tickets})
}

func (h *handlers) handleGetTicket(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.pipeline.GetTicket(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "ticket not found", "NOT_FOUND")
			return
		}
		h.logger.Error("loading ticket failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error", "INTERNAL")
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

type updateTicketRequest struct {
	Status types.TicketStatus `json:"status"`
}

func (h *handlers) handleUpdateTicket(w http.ResponseWriter, r *http.Request) {
	var req updateTicketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
		return
	}
	if !types.IsValidTicketStatus(req.Status) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", req.Status), "BAD_REQUEST")
		return
	}

	id := mux.Vars(r)["id"]
	if err := h.pipeline.UpdateTicket(r.Context(), id, req.Status); err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			writeError(w, http.StatusNotFound, "ticket not found", "NOT_FOUND")
		case errors.Is(err, storage.ErrInvalidTransition):
			writeError(w, http.StatusConflict, err.Error(), "INVALID_TRANSITION")
		default:
			h.logger.Error("updating ticket failed", "ticket_id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error", "INTERNAL")
		}
		return
	}

	ticket, err := h.pipeline.GetTicket(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"updated": true})
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *handlers) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// writePipelineError maps pipeline failure categories onto HTTP statuses.
// The caller sees a generic message plus the category code; validation
// failures additionally name the violated field.
func (h *handlers) writePipelineError(w http.ResponseWriter, err error) {
	var perr *engine.PipelineError
	if !errors.As(err, &perr) {
		h.logger.Error("pipeline failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error", "INTERNAL")
		return
	}

	switch perr.Category {
	case engine.FailureValidation:
		msg := "validation failed"
		var verr *types.ValidationError
		if errors.As(err, &verr) {
			msg = verr.Error()
		}
		writeError(w, http.StatusBadRequest, msg, "VALIDATION")
	case engine.FailureEmbedding:
		h.logger.Error("embedding failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "embedding unavailable", "EMBEDDING")
	case engine.FailureStoreWrite:
		h.logger.Error("store write failed", "store", perr.Store, "error", err)
		writeError(w, http.StatusInternalServerError, "memory write failed", "STORE_WRITE")
	case engine.FailureEscalation:
		h.logger.Error("escalation ticket creation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "escalation failed", "ESCALATION")
	default:
		h.logger.Error("pipeline failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error", "INTERNAL")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, map[string]string{"error": message, "code": code})
}
