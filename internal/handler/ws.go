package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/jharjadi/pro-rag/chat-api-go/internal/chat"
	authmw "github.com/jharjadi/pro-rag/chat-api-go/internal/middleware"
	"github.com/jharjadi/pro-rag/chat-api-go/internal/model"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Frame types.
const (
	frameQuestion = "question"
	frameClear    = "clear"
	frameSession  = "session"
	frameTurn     = "turn"
	frameCleared  = "cleared"
	frameError    = "error"
)

// clientFrame is a text frame sent by the browser.
type clientFrame struct {
	Type     string `json:"type"`
	Question string `json:"question,omitempty"`
	Debug    bool   `json:"debug,omitempty"`
}

// serverFrame is a text frame sent to the browser. Only the fields relevant
// to Type are set.
type serverFrame struct {
	Type     string                 `json:"type"`
	Session  *model.SessionResponse `json:"session,omitempty"`
	Answer   *model.AskResponse     `json:"answer,omitempty"`
	Messages []model.Turn           `json:"messages,omitempty"`
	Error    string                 `json:"error,omitempty"`
	Message  string                 `json:"message,omitempty"`
}

// WSHandler serves GET /v1/sessions/{id}/ws, a live channel onto one session.
// Questions are answered in the background so a clear can arrive while an
// answer is pending.
type WSHandler struct {
	sessions *SessionHandler
	limiter  *authmw.UserLimiter
}

// NewWSHandler creates a WSHandler. A nil limiter allows every question.
func NewWSHandler(sessions *SessionHandler, limiter *authmw.UserLimiter) *WSHandler {
	return &WSHandler{sessions: sessions, limiter: limiter}
}

// ServeHTTP resolves the session, upgrades the connection and runs the frame
// loop until the client goes away.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessions.session(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err, "session_id", s.ID)
		return
	}
	defer conn.Close()

	release := s.Attach()
	defer release()

	slog.Info("websocket connected", "session_id", s.ID)
	h.run(r.Context(), conn, s)
	slog.Info("websocket closed", "session_id", s.ID)
}

func (h *WSHandler) run(parent context.Context, conn *websocket.Conn, s *chat.Session) {
	var inflight sync.WaitGroup
	defer inflight.Wait()

	// Pending answers are abandoned once the client is gone.
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	defer cancel()

	send := newFrameSender(conn)
	view := s.View()
	send(serverFrame{Type: frameSession, Session: &view})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("websocket read ended", "error", err, "session_id", s.ID)
			}
			return
		}
		s.Touch()

		if msgType != websocket.TextMessage {
			send(serverFrame{Type: frameError, Error: "bad_request", Message: "expected a text frame"})
			continue
		}

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			send(serverFrame{Type: frameError, Error: "bad_request", Message: "invalid JSON: " + err.Error()})
			continue
		}

		switch frame.Type {
		case frameQuestion:
			if strings.TrimSpace(frame.Question) == "" {
				send(serverFrame{Type: frameError, Error: "bad_request", Message: chat.ErrEmptyQuestion.Error()})
				continue
			}
			if !h.limiter.Allow(s.Owner) {
				send(serverFrame{Type: frameError, Error: "rate_limited", Message: "too many questions, slow down"})
				continue
			}
			inflight.Add(1)
			go func(frame clientFrame) {
				defer inflight.Done()
				send(h.answer(ctx, s, frame))
			}(frame)
		case frameClear:
			send(serverFrame{
				Type:     frameCleared,
				Message:  chat.ClearedMessage,
				Messages: h.sessions.conversation.Clear(s),
			})
		default:
			send(serverFrame{Type: frameError, Error: "bad_request", Message: "unknown frame type " + frame.Type})
		}
	}
}

func (h *WSHandler) answer(ctx context.Context, s *chat.Session, frame clientFrame) serverFrame {
	ans, err := h.sessions.conversation.Ask(ctx, s, frame.Question)
	if err != nil {
		status, code := errorStatus(err)
		slog.Error("turn failed", "error", err, "session_id", s.ID, "transport", "websocket")
		return serverFrame{Type: frameError, Error: code, Message: errorMessage(status, code, err)}
	}

	return serverFrame{Type: frameTurn, Answer: askResponse(ans, frame.Debug)}
}

// newFrameSender serializes writes; gorilla connections allow one writer.
func newFrameSender(conn *websocket.Conn) func(serverFrame) {
	var mu sync.Mutex
	return func(f serverFrame) {
		mu.Lock()
		defer mu.Unlock()

		if err := conn.WriteJSON(f); err != nil {
			slog.Debug("websocket write failed", "error", err, "type", f.Type)
		}
	}
}
