package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sparoodata/mainai-sub000/internal/audit"
	"github.com/sparoodata/mainai-sub000/internal/blob"
	"github.com/sparoodata/mainai-sub000/internal/dispatch"
	"github.com/sparoodata/mainai-sub000/internal/obs"
	"github.com/sparoodata/mainai-sub000/internal/token"
)

// ReadyProbe reports whether the service can do useful work (DB reachable).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Options carries the request-independent settings the handlers need.
type Options struct {
	// PublicBaseURL is prepended to capability links sent to recipients.
	PublicBaseURL string
	// CommandPrefix marks a chat message as an assistant query ("/ai").
	CommandPrefix string
	// TokenTTL is the validity window for newly issued capability tokens.
	TokenTTL time.Duration
}

// API is the HTTP layer over the token store, report queue and AI client.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	tokens    token.Store
	queue     dispatch.Queue
	assistant dispatch.AnswerClient
	uploads   blob.ObjectStore

	publicBaseURL string
	commandPrefix string
	tokenTTL      time.Duration

	rateBurst  int
	ratePerSec int
}

func New(rp ReadyProbe, version string, tokens token.Store, queue dispatch.Queue, assistant dispatch.AnswerClient, uploads blob.ObjectStore, opts Options) *API {
	a := &API{
		mux:           http.NewServeMux(),
		readyProbe:    rp,
		version:       version,
		tokens:        tokens,
		queue:         queue,
		assistant:     assistant,
		uploads:       uploads,
		publicBaseURL: strings.TrimRight(opts.PublicBaseURL, "/"),
		commandPrefix: opts.CommandPrefix,
		tokenTTL:      opts.TokenTTL,
		rateBurst:     20,
		ratePerSec:    10,
	}
	if a.commandPrefix == "" {
		a.commandPrefix = "/ai"
	}
	if a.tokenTTL <= 0 {
		a.tokenTTL = 15 * time.Minute
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/token", a.handleAuthToken)

	// Capability-guarded endpoints. The token in the query string is the
	// only authentication; no bearer token is required.
	a.mux.HandleFunc("/v1/uploads", a.handleUploads)
	a.mux.HandleFunc("/v1/authorize", a.handleAuthorize)

	// Gateway-facing endpoints behind JWT roles.
	a.mux.Handle("/v1/tokens", RequireRole("gateway")(http.HandlerFunc(a.handleIssueToken)))
	a.mux.Handle("/v1/assistant/query", RequireRole("gateway")(http.HandlerFunc(a.handleAssistantQuery)))
	a.mux.Handle("/v1/assistant/ask", RequireRole("gateway")(http.HandlerFunc(a.handleAssistantAsk)))
	a.mux.Handle("/v1/assistant/jobs/", RequireRole("gateway")(http.HandlerFunc(a.handleAssistantJob)))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler assembles the middleware chain around the mux.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	h = MaxBodyBytes(h, 10<<20)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = LoggingJSON(h)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "mainai-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "mainai-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}
