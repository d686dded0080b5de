package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/sparoodata/mainai-sub000/internal/aiquery"
	"github.com/sparoodata/mainai-sub000/internal/audit"
	"github.com/sparoodata/mainai-sub000/internal/dispatch"
)

type assistantQueryRequest struct {
	Recipient string `json:"recipient"`
	Query     string `json:"query"`
	Context   string `json:"context,omitempty"`
}

type assistantQueryResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

type assistantAskRequest struct {
	Query   string `json:"query"`
	Context string `json:"context,omitempty"`
}

type assistantJobResponse struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// handleAssistantQuery accepts a chat message, extracts the assistant
// command and enqueues a report job. The answer is delivered back over
// the chat channel by the worker, so the gateway only gets a job id.
func (a *API) handleAssistantQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req assistantQueryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	recipient := strings.TrimSpace(req.Recipient)
	if recipient == "" {
		writeError(w, r, http.StatusBadRequest, "recipient is required")
		return
	}
	query, ok := a.extractCommand(req.Query)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "query is not an assistant command")
		return
	}
	if query == "" {
		writeError(w, r, http.StatusBadRequest, "query is empty")
		return
	}

	job, err := a.queue.Enqueue(r.Context(), recipient, query, req.Context)
	if err != nil {
		if errors.Is(err, dispatch.ErrInvalidInput) {
			writeError(w, r, http.StatusBadRequest, "invalid query")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "enqueue failed")
		return
	}

	_ = audit.LogEvent(r.Context(), "assistant.query.enqueued", map[string]any{
		"job_id":    job.ID,
		"recipient": recipient,
	})

	writeJSON(w, http.StatusAccepted, assistantQueryResponse{
		JobID:  job.ID,
		Status: string(job.Status),
	})
}

// handleAssistantAsk answers a query synchronously, without the queue or
// chat delivery. Used by operators and integration checks.
func (a *API) handleAssistantAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req assistantAskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, r, http.StatusBadRequest, "query is required")
		return
	}

	answer, err := a.assistant.Ask(r.Context(), req.Context, req.Query)
	if err != nil {
		switch {
		case errors.Is(err, aiquery.ErrCredentialsExhausted):
			writeError(w, r, http.StatusServiceUnavailable, "assistant is rate limited, try again later")
		case errors.Is(err, aiquery.ErrPayloadTooLarge):
			writeError(w, r, http.StatusRequestEntityTooLarge, "query too large for the assistant")
		default:
			writeError(w, r, http.StatusBadGateway, "assistant query failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"reply": answer,
	})
}

func (a *API) handleAssistantJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/assistant/jobs/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "job not found")
		return
	}

	job, err := a.queue.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, dispatch.ErrJobNotFound) {
			writeError(w, r, http.StatusNotFound, "job not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, assistantJobResponse{
		ID:        job.ID,
		Status:    string(job.Status),
		Error:     job.Error,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	})
}

// extractCommand strips the assistant command prefix from a chat message.
// ok is false when the message does not address the assistant at all.
func (a *API) extractCommand(message string) (query string, ok bool) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", false
	}
	if !strings.HasPrefix(message, a.commandPrefix) {
		return "", false
	}
	rest := message[len(a.commandPrefix):]
	if rest != "" && !strings.HasPrefix(rest, " ") {
		// "/aisomething" is a different command, not ours.
		return "", false
	}
	return strings.TrimSpace(rest), true
}
