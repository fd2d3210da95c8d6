// Package model defines the wire types for the chat API.
package model

import (
	"time"

	"github.com/jharjadi/pro-rag/chat-api-go/internal/search"
)

// Role identifies who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a conversation. Turns are never edited once appended.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Settings are the per-session knobs a user may change.
type Settings struct {
	Model               string `json:"model"`
	RetrievedChunkCount int    `json:"retrieved_chunk_count"`
	HistoryWindowSize   int    `json:"history_window_size"`
	SearchService       string `json:"search_service"`
}

// SettingsUpdate is the PATCH /v1/sessions/{id}/settings request body.
// Nil fields are left unchanged.
type SettingsUpdate struct {
	Model               *string `json:"model" validate:"omitempty,chat_model"`
	RetrievedChunkCount *int    `json:"retrieved_chunk_count" validate:"omitempty,min=1,max=100"`
	HistoryWindowSize   *int    `json:"history_window_size" validate:"omitempty,min=1,max=100"`
	SearchService       *string `json:"search_service" validate:"omitempty,min=1"`
}

// SessionResponse describes a session and its transcript.
type SessionResponse struct {
	SessionID      string              `json:"session_id"`
	Messages       []Turn              `json:"messages"`
	Settings       Settings            `json:"settings"`
	SearchServices []search.Descriptor `json:"search_services"`
	InputDisabled  bool                `json:"input_disabled"`
	Error          string              `json:"error,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
}

// AskRequest is the POST /v1/sessions/{id}/messages request body.
type AskRequest struct {
	Question string `json:"question" validate:"required,max=8000"`
	Debug    bool   `json:"debug"`
}

// AskResponse is the POST /v1/sessions/{id}/messages response body.
type AskResponse struct {
	Answer  Turn       `json:"answer"`
	Sources []Source   `json:"sources"`
	Warning string     `json:"warning,omitempty"`
	Debug   *DebugInfo `json:"debug,omitempty"`
}

// Source is a document a retrieved chunk came from.
type Source struct {
	RelativePath string `json:"relative_path,omitempty"`
	FileURL      string `json:"file_url,omitempty"`
}

// DebugInfo contains debug information when debug=true.
type DebugInfo struct {
	RetrievalQuery string          `json:"retrieval_query"`
	Prompt         string          `json:"prompt"`
	Results        []search.Record `json:"results"`
}

// SummaryRequest is the POST /v1/sessions/{id}/summary request body.
type SummaryRequest struct {
	Question string `json:"question" validate:"required,max=8000"`
}

// SummaryResponse carries the rewritten standalone query.
type SummaryResponse struct {
	Query   string `json:"query"`
	Warning string `json:"warning,omitempty"`
}

// ClearResponse confirms a conversation reset.
type ClearResponse struct {
	Message  string `json:"message"`
	Messages []Turn `json:"messages"`
}

// ModelsResponse lists the enumerated model set.
type ModelsResponse struct {
	Models  []string `json:"models"`
	Default string   `json:"default"`
}

// SearchServicesResponse lists discovered search services.
type SearchServicesResponse struct {
	SearchServices []search.Descriptor `json:"search_services"`
}

// ErrorResponse is the standard error response body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// TurnLog holds all fields for the structured per-turn log line.
type TurnLog struct {
	Timestamp         time.Time `json:"ts"`
	SessionID         string    `json:"session_id"`
	UserID            string    `json:"user_id"`
	RequestID         string    `json:"request_id"`
	QuestionHash      string    `json:"question_hash"`
	SearchService     string    `json:"search_service"`
	Model             string    `json:"model"`
	RetrievedLimit    int       `json:"retrieved_limit"`
	NumResults        int       `json:"num_results"`
	HistoryTurns      int       `json:"history_turns"`
	QueryExpanded     bool      `json:"query_expanded"`
	LatencyMSTotal    int64     `json:"latency_ms_total"`
	LatencyMSRetrieve int64     `json:"latency_ms_retrieve"`
	LatencyMSLLM      int64     `json:"latency_ms_llm"`
	Outcome           string    `json:"outcome"`
	HTTPStatus        int       `json:"http_status"`
}
