// Package chat holds conversation sessions and the turn loop that answers
// questions from retrieved context.
package chat

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jharjadi/pro-rag/chat-api-go/internal/model"
	"github.com/jharjadi/pro-rag/chat-api-go/internal/search"
)

// GreetingText is the assistant turn every session starts with.
const GreetingText = "Hello! 👋 I am your AI Chatbot. How can I assist you today?"

// ClearedMessage confirms a conversation reset.
const ClearedMessage = "Conversation cleared!"

// HistoryWarning is shown when the history window could not be built.
const HistoryWarning = "Error retrieving chat history. Please try again."

var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrTurnInFlight        = errors.New("a question is already being answered")
	ErrEmptyQuestion       = errors.New("question is empty")
	ErrInvalidSettings     = errors.New("invalid settings")
	ErrConversationCleared = errors.New("conversation was cleared while the answer was pending")
)

// Greeting returns the greeting turn.
func Greeting() model.Turn {
	return model.Turn{Role: model.RoleAssistant, Content: GreetingText}
}

// State is the turn loop state of a session.
type State int

const (
	StateIdle State = iota
	StateAwaitingAnswer
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingAnswer:
		return "awaiting_answer"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Session is one user's conversation: ordered turns, settings, and the
// memoized search service discovery. All methods are safe for concurrent use.
type Session struct {
	ID        string
	Owner     string
	CreatedAt time.Time

	mu           sync.Mutex
	turns        []model.Turn
	settings     model.Settings
	state        State
	epoch        uint64
	discovered   bool
	services     []search.Descriptor
	discoveryErr error
	lastActive   time.Time
	attached     int
}

// NewSession creates an initialized session owned by owner.
func NewSession(owner string, defaults model.Settings) *Session {
	now := time.Now().UTC()
	s := &Session{
		ID:         uuid.Must(uuid.NewV7()).String(),
		Owner:      owner,
		CreatedAt:  now,
		lastActive: now,
	}
	s.Init(defaults)
	return s
}

// Init fills unset fields from defaults and seeds the greeting. Fields that
// are already set are left alone, so calling Init again is a no-op.
func (s *Session) Init(defaults model.Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.turns) == 0 {
		s.turns = []model.Turn{Greeting()}
	}
	if s.settings.Model == "" {
		s.settings.Model = defaults.Model
	}
	if s.settings.RetrievedChunkCount < 1 {
		s.settings.RetrievedChunkCount = defaults.RetrievedChunkCount
	}
	if s.settings.HistoryWindowSize < 1 {
		s.settings.HistoryWindowSize = defaults.HistoryWindowSize
	}
	if s.settings.SearchService == "" {
		s.settings.SearchService = defaults.SearchService
	}
}

// Clear truncates the transcript to the greeting and returns the session to
// idle. An answer still in flight is discarded when it arrives.
func (s *Session) Clear() []model.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.turns = []model.Turn{Greeting()}
	s.state = StateIdle
	s.epoch++
	s.lastActive = time.Now().UTC()
	return s.copyTurns()
}

// Turns returns a copy of the transcript.
func (s *Session) Turns() []model.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyTurns()
}

// Settings returns the current settings.
func (s *Session) Settings() model.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// State returns the turn loop state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastActive returns when the session was last used.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// InputDisabled reports whether questions are refused because discovery
// found no search services or failed.
func (s *Session) InputDisabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inputDisabledLocked()
}

func (s *Session) inputDisabledLocked() bool {
	return !s.discovered || len(s.services) == 0
}

// View renders the session for the API.
func (s *Session) View() model.SessionResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp := model.SessionResponse{
		SessionID:      s.ID,
		Messages:       s.copyTurns(),
		Settings:       s.settings,
		SearchServices: append([]search.Descriptor{}, s.services...),
		InputDisabled:  s.inputDisabledLocked(),
		CreatedAt:      s.CreatedAt,
	}
	if s.discoveryErr != nil {
		resp.Error = s.discoveryErr.Error()
	}
	return resp
}

// Touch records activity on the session.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActive = time.Now().UTC()
	s.mu.Unlock()
}

// Attach marks the session as held by a live connection until release is
// called. Attached sessions are not expired by the idle sweep, and the idle
// clock restarts on release.
func (s *Session) Attach() (release func()) {
	s.mu.Lock()
	s.attached++
	s.lastActive = time.Now().UTC()
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.attached--
			s.lastActive = time.Now().UTC()
			s.mu.Unlock()
		})
	}
}

// Attached reports whether a live connection holds the session.
func (s *Session) Attached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attached > 0
}

func (s *Session) copyTurns() []model.Turn {
	out := make([]model.Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// setServices memoizes a discovery result and picks the first service when
// none is selected or the selected one disappeared.
func (s *Session) setServices(services []search.Descriptor, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.discovered = true
	s.services = services
	s.discoveryErr = err
	if len(services) == 0 {
		return
	}
	if _, ok := findService(services, s.settings.SearchService); !ok {
		s.settings.SearchService = services[0].Name
	}
}

func findService(services []search.Descriptor, name string) (search.Descriptor, bool) {
	for _, d := range services {
		if d.Name == name {
			return d, true
		}
	}
	return search.Descriptor{}, false
}

// ChatHistory returns the trailing min(len(turns), size) turns in order. It
// never panics and never mutates turns; on failure it returns an empty
// history and a non-nil error meant to be shown as a warning.
func ChatHistory(turns []model.Turn, size int) (history []model.Turn, err error) {
	defer func() {
		if r := recover(); r != nil {
			history = []model.Turn{}
			err = fmt.Errorf("build chat history: %v", r)
		}
	}()

	if size < 1 {
		return []model.Turn{}, fmt.Errorf("history window size must be positive, got %d", size)
	}

	start := len(turns) - size
	if start < 0 {
		start = 0
	}
	history = make([]model.Turn, len(turns)-start)
	copy(history, turns[start:])
	return history, nil
}
