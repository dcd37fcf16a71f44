package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"livequiz/internal/app"
)

// APIHandler is the pull-based HTTP surface next to the websocket: create a
// session, resolve a join code, and poll status. The status payload matches
// what the relay pushes, so clients can rely on either path.
type APIHandler struct {
	engine *app.Engine
	index  SessionIndexer
}

func NewAPIHandler(engine *app.Engine, index SessionIndexer) *APIHandler {
	if index == nil {
		index = NoopIndexer{}
	}
	return &APIHandler{engine: engine, index: index}
}

// Register mounts the API routes on the mux.
func (h *APIHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/sessions", h.createSession)
	mux.HandleFunc("GET /api/sessions/{token}/status", h.status)
	mux.HandleFunc("POST /api/join", h.resolveCode)
}

type createSessionRequest struct {
	QuizID string `json:"quiz_id"`
	HostID string `json:"host_id"`
}

type createSessionResponse struct {
	Token string `json:"token"`
	Code  string `json:"code"`
}

func (h *APIHandler) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.QuizID == "" || req.HostID == "" {
		http.Error(w, "quiz_id and host_id are required", http.StatusBadRequest)
		return
	}
	session, err := h.engine.CreateSession(r.Context(), req.QuizID, req.HostID)
	if err != nil {
		http.Error(w, err.Error(), statusCode(err))
		return
	}
	h.index.Mark(r.Context(), session)
	writeJSON(w, http.StatusCreated, createSessionResponse{Token: session.Token, Code: session.Code})
}

func (h *APIHandler) status(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	status, err := h.engine.Status(r.Context(), token)
	if err != nil {
		http.Error(w, err.Error(), statusCode(err))
		return
	}
	writeJSON(w, http.StatusOK, status)
}

type resolveCodeRequest struct {
	Code string `json:"code"`
}

type resolveCodeResponse struct {
	Token string `json:"token"`
}

func (h *APIHandler) resolveCode(w http.ResponseWriter, r *http.Request) {
	var req resolveCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		http.Error(w, "code is required", http.StatusBadRequest)
		return
	}
	code := strings.ToUpper(strings.TrimSpace(req.Code))

	// The Redis index answers most lookups; the store is the fallback and
	// the authority.
	if token, ok := h.index.TokenForCode(r.Context(), code); ok {
		writeJSON(w, http.StatusOK, resolveCodeResponse{Token: token})
		return
	}
	session, err := h.engine.ResolveCode(r.Context(), code)
	if err != nil {
		http.Error(w, err.Error(), statusCode(err))
		return
	}
	writeJSON(w, http.StatusOK, resolveCodeResponse{Token: session.Token})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
