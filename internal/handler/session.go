package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/jharjadi/pro-rag/chat-api-go/internal/chat"
	authmw "github.com/jharjadi/pro-rag/chat-api-go/internal/middleware"
	"github.com/jharjadi/pro-rag/chat-api-go/internal/model"
	"github.com/jharjadi/pro-rag/chat-api-go/internal/search"
	"github.com/jharjadi/pro-rag/chat-api-go/internal/service"
)

// SessionHandler serves the session and turn endpoints.
type SessionHandler struct {
	manager      *chat.Manager
	conversation *chat.Conversation
	discovery    *service.DiscoveryService
	models       []string
	validate     *validator.Validate
}

// NewSessionHandler creates a new SessionHandler. models is the enumerated
// set a session may select from.
func NewSessionHandler(
	manager *chat.Manager,
	conversation *chat.Conversation,
	discovery *service.DiscoveryService,
	models []string,
) *SessionHandler {
	return &SessionHandler{
		manager:      manager,
		conversation: conversation,
		discovery:    discovery,
		models:       models,
		validate:     newValidator(models),
	}
}

// session resolves the {id} URL parameter for the calling user. It writes a
// 404 and returns false when the session does not exist.
func (h *SessionHandler) session(w http.ResponseWriter, r *http.Request) (*chat.Session, bool) {
	s, err := h.manager.Get(chi.URLParam(r, "id"), authmw.UserIDFromContext(r.Context()))
	if err != nil {
		writeChatError(w, err)
		return nil, false
	}
	return s, true
}

// decode reads a JSON body into v and validates it. It writes a 400 and
// returns false on failure.
func (h *SessionHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON: "+err.Error())
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", validationMessage(err))
		return false
	}
	return true
}

// Create handles POST /v1/sessions. The new session is initialized and its
// search services discovered before it is returned.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	s := h.manager.Create(authmw.UserIDFromContext(r.Context()))

	// A failed discovery still yields a session, with input disabled.
	h.conversation.Services(r.Context(), s)

	writeJSON(w, http.StatusCreated, s.View())
}

// Get handles GET /v1/sessions/{id}.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.View())
}

// Delete handles DELETE /v1/sessions/{id}.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	err := h.manager.Delete(chi.URLParam(r, "id"), authmw.UserIDFromContext(r.Context()))
	if err != nil {
		writeChatError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateSettings handles PATCH /v1/sessions/{id}/settings.
func (h *SessionHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var upd model.SettingsUpdate
	if !h.decode(w, r, &upd) {
		return
	}

	settings, err := h.conversation.UpdateSettings(r.Context(), s, upd)
	if err != nil {
		writeChatError(w, err)
		return
	}

	slog.Info("session settings updated",
		"session_id", s.ID,
		"model", settings.Model,
		"retrieved_chunk_count", settings.RetrievedChunkCount,
		"history_window_size", settings.HistoryWindowSize,
		"search_service", settings.SearchService,
	)
	writeJSON(w, http.StatusOK, settings)
}

// Ask handles POST /v1/sessions/{id}/messages: one full turn through
// retrieval, prompt assembly and completion.
func (h *SessionHandler) Ask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	totalStart := time.Now()

	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req model.AskRequest
	if !h.decode(w, r, &req) {
		return
	}

	settings := s.Settings()
	tlog := &model.TurnLog{
		Timestamp:      time.Now().UTC(),
		SessionID:      s.ID,
		UserID:         s.Owner,
		RequestID:      chimw.GetReqID(ctx),
		QuestionHash:   hashQuestion(req.Question),
		SearchService:  settings.SearchService,
		Model:          settings.Model,
		RetrievedLimit: settings.RetrievedChunkCount,
	}

	ans, err := h.conversation.Ask(ctx, s, req.Question)
	if err != nil {
		slog.Error("turn failed", "error", err, "session_id", s.ID, "request_id", tlog.RequestID)
		tlog.Outcome = chat.Outcome(err)
		h.emitTurnLog(tlog, writeChatError(w, err), totalStart)
		return
	}

	tlog.NumResults = len(ans.Records)
	tlog.HistoryTurns = ans.HistoryTurns
	tlog.QueryExpanded = ans.QueryExpanded
	tlog.LatencyMSRetrieve = ans.Retrieve.Milliseconds()
	tlog.LatencyMSLLM = ans.Complete.Milliseconds()
	tlog.Outcome = chat.Outcome(nil)

	writeJSON(w, http.StatusOK, askResponse(ans, req.Debug))
	h.emitTurnLog(tlog, http.StatusOK, totalStart)
}

func askResponse(ans *chat.Answer, debug bool) *model.AskResponse {
	resp := &model.AskResponse{
		Answer:  ans.Turn,
		Sources: ans.Sources,
		Warning: ans.Warning,
	}
	if resp.Sources == nil {
		resp.Sources = []model.Source{}
	}
	if debug {
		resp.Debug = &model.DebugInfo{
			RetrievalQuery: ans.RetrievalQuery,
			Prompt:         ans.Prompt,
			Results:        ans.Records,
		}
	}
	return resp
}

// Clear handles POST /v1/sessions/{id}/clear.
func (h *SessionHandler) Clear(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, model.ClearResponse{
		Message:  chat.ClearedMessage,
		Messages: h.conversation.Clear(s),
	})
}

// Discover handles POST /v1/sessions/{id}/discover. The session view is
// returned either way; a failed discovery shows up as input_disabled.
func (h *SessionHandler) Discover(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	h.conversation.Rediscover(r.Context(), s)
	writeJSON(w, http.StatusOK, s.View())
}

// Summary handles POST /v1/sessions/{id}/summary, previewing the standalone
// query the history would produce for a question.
func (h *SessionHandler) Summary(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req model.SummaryRequest
	if !h.decode(w, r, &req) {
		return
	}

	query, warning, err := h.conversation.Summarize(r.Context(), s, req.Question)
	if err != nil {
		slog.Error("summary failed", "error", err, "session_id", s.ID)
		writeChatError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, model.SummaryResponse{Query: query, Warning: warning})
}

// Models handles GET /v1/models.
func (h *SessionHandler) Models(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.ModelsResponse{
		Models:  h.models,
		Default: h.manager.Defaults().Model,
	})
}

// SearchServices handles GET /v1/search-services with a fresh discovery.
func (h *SessionHandler) SearchServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.discovery.Discover(r.Context())
	if err != nil {
		slog.Error("search service discovery failed", "error", err)
		writeChatError(w, err)
		return
	}
	if services == nil {
		services = []search.Descriptor{}
	}
	writeJSON(w, http.StatusOK, model.SearchServicesResponse{SearchServices: services})
}

// sweepResponse is the POST /v1/admin/sweep response body.
type sweepResponse struct {
	Removed int `json:"removed"`
	Active  int `json:"active"`
}

// Sweep handles POST /v1/admin/sweep, expiring idle sessions immediately.
func (h *SessionHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	removed := h.manager.Sweep()
	slog.Info("manual session sweep",
		"event", "admin_sweep",
		"user_id", authmw.UserIDFromContext(r.Context()),
		"removed", removed,
	)
	writeJSON(w, http.StatusOK, sweepResponse{Removed: removed, Active: h.manager.Len()})
}

// emitTurnLog writes the structured per-turn log line.
func (h *SessionHandler) emitTurnLog(tlog *model.TurnLog, httpStatus int, totalStart time.Time) {
	tlog.HTTPStatus = httpStatus
	tlog.LatencyMSTotal = time.Since(totalStart).Milliseconds()

	slog.Info("turn",
		"ts", tlog.Timestamp.Format(time.RFC3339),
		"session_id", tlog.SessionID,
		"user_id", tlog.UserID,
		"request_id", tlog.RequestID,
		"question_hash", tlog.QuestionHash,
		"search_service", tlog.SearchService,
		"model", tlog.Model,
		"retrieved_limit", tlog.RetrievedLimit,
		"num_results", tlog.NumResults,
		"history_turns", tlog.HistoryTurns,
		"query_expanded", tlog.QueryExpanded,
		"latency_ms_total", tlog.LatencyMSTotal,
		"latency_ms_retrieve", tlog.LatencyMSRetrieve,
		"latency_ms_llm", tlog.LatencyMSLLM,
		"outcome", tlog.Outcome,
		"http_status", tlog.HTTPStatus,
	)
}
