package httpapi

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/sparoodata/mainai-sub000/internal/audit"
	"github.com/sparoodata/mainai-sub000/internal/ids"
	"github.com/sparoodata/mainai-sub000/internal/obs"
	"github.com/sparoodata/mainai-sub000/internal/token"
)

type issueTokenRequest struct {
	Recipient  string `json:"recipient"`
	Kind       string `json:"kind"`
	TargetType string `json:"target_type,omitempty"`
	TargetID   string `json:"target_id,omitempty"`
	TTLMinutes int    `json:"ttl_minutes,omitempty"`
}

type issueTokenResponse struct {
	Token     string    `json:"token"`
	Link      string    `json:"link"`
	ExpiresAt time.Time `json:"expires_at"`
}

type tokenInfoResponse struct {
	Kind       string    `json:"kind"`
	TargetType string    `json:"target_type,omitempty"`
	TargetID   string    `json:"target_id,omitempty"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// handleIssueToken mints a capability token on behalf of the chat gateway
// and returns the link to embed in the outbound message.
func (a *API) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req issueTokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Recipient) == "" {
		writeError(w, r, http.StatusBadRequest, "recipient is required")
		return
	}

	ttl := a.tokenTTL
	if req.TTLMinutes != 0 {
		if req.TTLMinutes < 1 || req.TTLMinutes > 24*60 {
			writeError(w, r, http.StatusBadRequest, "ttl_minutes must be between 1 and 1440")
			return
		}
		ttl = time.Duration(req.TTLMinutes) * time.Minute
	}

	target := token.Target{
		Type: token.TargetType(strings.TrimSpace(req.TargetType)),
		ID:   strings.TrimSpace(req.TargetID),
	}
	tok, err := a.tokens.Issue(r.Context(), strings.TrimSpace(req.Recipient), token.Kind(req.Kind), target, ttl)
	if err != nil {
		if errors.Is(err, token.ErrInvalidInput) {
			writeError(w, r, http.StatusBadRequest, "invalid kind or target")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "token issue failed")
		return
	}

	_ = audit.LogEvent(r.Context(), "token.issued", map[string]any{
		"recipient":  tok.Recipient,
		"kind":       string(tok.Kind),
		"expires_at": tok.ExpiresAt.Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, issueTokenResponse{
		Token:     tok.ID,
		Link:      a.capabilityLink(tok),
		ExpiresAt: tok.ExpiresAt,
	})
}

func (a *API) capabilityLink(tok token.Token) string {
	p := "/v1/authorize"
	if tok.Kind == token.KindUpload {
		p = "/v1/uploads"
	}
	return fmt.Sprintf("%s%s?token=%s", a.publicBaseURL, p, tok.ID)
}

// handleUploads serves the upload capability. GET inspects the token
// without spending it so the gateway can render a form; POST spends it
// and stores the image.
func (a *API) handleUploads(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.peekToken(w, r, token.KindUpload)
	case http.MethodPost:
		a.acceptUpload(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// handleAuthorize serves the authorize capability. GET inspects, POST
// records the decision and spends the token.
func (a *API) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.peekToken(w, r, token.KindAuthorize)
	case http.MethodPost:
		a.acceptAuthorization(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) peekToken(w http.ResponseWriter, r *http.Request, kind token.Kind) {
	id := strings.TrimSpace(r.URL.Query().Get("token"))
	if id == "" {
		writeError(w, r, http.StatusForbidden, "missing token")
		return
	}
	tok, err := a.tokens.Peek(r.Context(), id)
	if err != nil {
		handleTokenError(w, r, err)
		return
	}
	if tok.Kind != kind {
		writeError(w, r, http.StatusForbidden, "invalid token")
		return
	}
	writeJSON(w, http.StatusOK, tokenInfoResponse{
		Kind:       string(tok.Kind),
		TargetType: string(tok.TargetType),
		TargetID:   tok.TargetID,
		ExpiresAt:  tok.ExpiresAt,
	})
}

type uploadRequest struct {
	Token    string `json:"token,omitempty"`
	Filename string `json:"filename"`
	Data     string `json:"data"`
}

type authorizeRequest struct {
	Token   string `json:"token,omitempty"`
	Approve *bool  `json:"approve,omitempty"`
}

func (a *API) acceptUpload(w http.ResponseWriter, r *http.Request) {
	if a.uploads == nil {
		writeError(w, r, http.StatusServiceUnavailable, "object storage not configured")
		return
	}

	// Read the payload before spending the token so malformed requests do
	// not burn a valid capability.
	filename, data, bodyToken, err := readUploadPayload(w, r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	id := requestToken(r, bodyToken)
	if id == "" {
		obs.CountTokenConsume("missing")
		writeError(w, r, http.StatusForbidden, "missing token")
		return
	}

	tok, err := a.consumeToken(r.Context(), id)
	if err != nil {
		handleTokenError(w, r, err)
		return
	}
	if tok.Kind != token.KindUpload {
		writeError(w, r, http.StatusForbidden, "invalid token")
		return
	}

	key := a.uploadKey(tok, filename)
	contentType := mime.TypeByExtension(path.Ext(filename))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	ctx := token.ContextWithGrant(r.Context(), token.GrantOf(tok))
	if err := a.uploads.Put(ctx, key, contentType, data); err != nil {
		writeError(w, r, http.StatusInternalServerError, "store upload failed")
		return
	}

	_ = audit.LogEvent(ctx, "token.upload.accepted", map[string]any{
		"recipient":   tok.Recipient,
		"target_type": string(tok.TargetType),
		"target_id":   tok.TargetID,
		"key":         key,
		"bytes":       len(data),
	})

	writeJSON(w, http.StatusCreated, map[string]any{
		"status": "stored",
		"key":    key,
	})
}

func (a *API) acceptAuthorization(w http.ResponseWriter, r *http.Request) {
	var req authorizeRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
	}
	approve := true
	if req.Approve != nil {
		approve = *req.Approve
	}

	id := requestToken(r, req.Token)
	if id == "" {
		obs.CountTokenConsume("missing")
		writeError(w, r, http.StatusForbidden, "missing token")
		return
	}

	tok, err := a.consumeToken(r.Context(), id)
	if err != nil {
		handleTokenError(w, r, err)
		return
	}
	if tok.Kind != token.KindAuthorize {
		writeError(w, r, http.StatusForbidden, "invalid token")
		return
	}

	status := "authorized"
	if !approve {
		status = "declined"
	}
	ctx := token.ContextWithGrant(r.Context(), token.GrantOf(tok))
	_ = audit.LogEvent(ctx, "token.authorize."+status, map[string]any{
		"recipient": tok.Recipient,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"status": status,
	})
}

func (a *API) consumeToken(ctx context.Context, id string) (token.Token, error) {
	tok, err := a.tokens.Consume(ctx, id)
	switch {
	case err == nil:
		obs.CountTokenConsume("ok")
	case errors.Is(err, token.ErrNotFound):
		obs.CountTokenConsume("not_found")
	case errors.Is(err, token.ErrAlreadyUsed):
		obs.CountTokenConsume("already_used")
	case errors.Is(err, token.ErrExpired):
		obs.CountTokenConsume("expired")
	default:
		obs.CountTokenConsume("error")
	}
	return tok, err
}

// requestToken resolves the capability token id, preferring the request
// body over the query string.
func requestToken(r *http.Request, bodyToken string) string {
	if id := strings.TrimSpace(bodyToken); id != "" {
		return id
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func readUploadPayload(w http.ResponseWriter, r *http.Request) (filename string, data []byte, bodyToken string, err error) {
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "multipart/form-data") {
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			return "", nil, "", errors.New("invalid multipart body")
		}
		file, header, err := r.FormFile("image")
		if err != nil {
			return "", nil, "", errors.New("image file is required")
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return "", nil, "", errors.New("read image failed")
		}
		if len(data) == 0 {
			return "", nil, "", errors.New("image file is empty")
		}
		return header.Filename, data, r.FormValue("token"), nil
	}

	var req uploadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return "", nil, "", err
	}
	if strings.TrimSpace(req.Data) == "" {
		return "", nil, "", errors.New("data is required")
	}
	decoded, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		return "", nil, "", errors.New("data must be base64 encoded")
	}
	filename = strings.TrimSpace(req.Filename)
	if filename == "" {
		filename = "upload.bin"
	}
	return filename, decoded, req.Token, nil
}

func (a *API) uploadKey(tok token.Token, filename string) string {
	targetType := string(tok.TargetType)
	if targetType == "" {
		targetType = "misc"
	}
	targetID := tok.TargetID
	if targetID == "" {
		targetID = tok.Recipient
	}
	ext := path.Ext(filename)
	return fmt.Sprintf("uploads/%s/%s/%s%s", targetType, targetID, ids.New(), ext)
}

func handleTokenError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, token.ErrNotFound):
		writeError(w, r, http.StatusForbidden, "invalid token")
	case errors.Is(err, token.ErrAlreadyUsed):
		writeError(w, r, http.StatusForbidden, "token already used")
	case errors.Is(err, token.ErrExpired):
		writeError(w, r, http.StatusForbidden, "token expired")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
