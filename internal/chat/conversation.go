package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jharjadi/pro-rag/chat-api-go/internal/metrics"
	"github.com/jharjadi/pro-rag/chat-api-go/internal/model"
	"github.com/jharjadi/pro-rag/chat-api-go/internal/search"
	"github.com/jharjadi/pro-rag/chat-api-go/internal/service"
)

// Conversation drives the turn loop for sessions. It is shared by all
// sessions; per-session state lives on the Session.
type Conversation struct {
	discovery  *service.DiscoveryService
	retrieval  *service.RetrievalService
	completion *service.CompletionService
	expand     bool
}

// NewConversation creates a Conversation. When expandQuery is set, retrieval
// uses the history-folded query instead of the raw question.
func NewConversation(
	discovery *service.DiscoveryService,
	retrieval *service.RetrievalService,
	completion *service.CompletionService,
	expandQuery bool,
) *Conversation {
	return &Conversation{
		discovery:  discovery,
		retrieval:  retrieval,
		completion: completion,
		expand:     expandQuery,
	}
}

// Answer is the outcome of one turn.
type Answer struct {
	Turn           model.Turn
	Records        []search.Record
	Sources        []model.Source
	RetrievalQuery string
	Prompt         string
	Warning        string
	HistoryTurns   int
	QueryExpanded  bool
	Retrieve       time.Duration
	Complete       time.Duration
}

// Services returns the session's search services, discovering them on first
// use. A failed or empty discovery is memoized too; use Rediscover to retry.
func (c *Conversation) Services(ctx context.Context, s *Session) ([]search.Descriptor, error) {
	s.mu.Lock()
	if s.discovered {
		services, err := s.services, s.discoveryErr
		s.mu.Unlock()
		return services, err
	}
	s.mu.Unlock()

	return c.Rediscover(ctx, s)
}

// Rediscover queries the catalog again and replaces the memoized result.
func (c *Conversation) Rediscover(ctx context.Context, s *Session) ([]search.Descriptor, error) {
	start := time.Now()
	services, err := c.discovery.Discover(ctx)
	metrics.StageDuration.WithLabelValues("discover").Observe(time.Since(start).Seconds())

	if err != nil {
		if !errors.Is(err, service.ErrNoSearchServices) {
			metrics.Errors.WithLabelValues("discover").Inc()
		}
		slog.Error("search service discovery failed", "session_id", s.ID, "error", err)
		services = nil
	}
	s.setServices(services, err)
	return services, err
}

// Ask runs one turn: append the question, retrieve context, assemble the
// prompt, complete it and append the answer. Only one turn may be in flight
// per session.
func (c *Conversation) Ask(ctx context.Context, s *Session, question string) (ans *Answer, err error) {
	defer func() {
		metrics.TurnsTotal.WithLabelValues(Outcome(err)).Inc()
	}()

	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	services, err := c.Services(ctx, s)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.state == StateAwaitingAnswer {
		s.mu.Unlock()
		return nil, ErrTurnInFlight
	}
	settings := s.settings
	svc, ok := findService(services, settings.SearchService)
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: search service %q is not available", ErrInvalidSettings, settings.SearchService)
	}
	prior := s.copyTurns()
	s.turns = append(s.turns, model.Turn{Role: model.RoleUser, Content: question})
	s.state = StateAwaitingAnswer
	s.lastActive = time.Now().UTC()
	epoch := s.epoch
	s.mu.Unlock()

	ans, err = c.answer(ctx, svc, settings, prior, question)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.epoch != epoch {
		slog.Info("discarding answer for cleared conversation", "session_id", s.ID)
		return nil, ErrConversationCleared
	}
	s.state = StateIdle
	s.lastActive = time.Now().UTC()
	if err != nil {
		return nil, err
	}
	s.turns = append(s.turns, ans.Turn)
	return ans, nil
}

func (c *Conversation) answer(ctx context.Context, svc search.Descriptor, settings model.Settings, prior []model.Turn, question string) (*Answer, error) {
	ans := &Answer{RetrievalQuery: question}

	if c.expand {
		query, history, warning, err := c.summarize(ctx, settings, prior, question)
		if err != nil {
			return nil, err
		}
		ans.RetrievalQuery = query
		ans.HistoryTurns = len(history)
		ans.Warning = warning
		ans.QueryExpanded = true
	}

	retrieved, err := c.retrieval.Query(ctx, svc, ans.RetrievalQuery, settings.RetrievedChunkCount)
	if err != nil {
		return nil, err
	}
	ans.Records = retrieved.Records
	ans.Sources = service.CollectSources(retrieved.Records)
	ans.Retrieve = retrieved.Latency

	ans.Prompt = service.CreatePrompt(retrieved.Context, question)

	completed, err := c.completion.Complete(ctx, settings.Model, ans.Prompt)
	if err != nil {
		return nil, err
	}
	ans.Complete = completed.Latency
	ans.Turn = model.Turn{Role: model.RoleAssistant, Content: completed.Text}
	return ans, nil
}

// Summarize rewrites question as a standalone query using the session's
// recent history. It does not change the transcript.
func (c *Conversation) Summarize(ctx context.Context, s *Session, question string) (query, warning string, err error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", "", ErrEmptyQuestion
	}
	s.mu.Lock()
	settings := s.settings
	turns := s.copyTurns()
	s.mu.Unlock()

	query, _, warning, err = c.summarize(ctx, settings, turns, question)
	return query, warning, err
}

func (c *Conversation) summarize(ctx context.Context, settings model.Settings, turns []model.Turn, question string) (string, []model.Turn, string, error) {
	var warning string
	history, err := ChatHistory(turns, settings.HistoryWindowSize)
	if err != nil {
		slog.Warn("chat history unavailable", "error", err)
		metrics.HistoryWarnings.Inc()
		warning = HistoryWarning
	}

	completed, err := c.completion.Complete(ctx, settings.Model, service.SummaryPrompt(history, question))
	if err != nil {
		return "", nil, warning, err
	}

	query := service.SingleLine(completed.Text)
	if query == "" {
		query = question
	}
	return query, history, warning, nil
}

// Clear resets the session transcript to the greeting.
func (c *Conversation) Clear(s *Session) []model.Turn {
	turns := s.Clear()
	slog.Info("conversation cleared", "session_id", s.ID)
	return turns
}

// UpdateSettings applies the non-nil fields of upd after checking them
// against the model set and the discovered services.
func (c *Conversation) UpdateSettings(ctx context.Context, s *Session, upd model.SettingsUpdate) (model.Settings, error) {
	if upd.Model != nil && !c.completion.Allowed(*upd.Model) {
		return model.Settings{}, fmt.Errorf("%w: unknown model %q", ErrInvalidSettings, *upd.Model)
	}
	if upd.RetrievedChunkCount != nil && *upd.RetrievedChunkCount < 1 {
		return model.Settings{}, fmt.Errorf("%w: retrieved_chunk_count must be positive", ErrInvalidSettings)
	}
	if upd.HistoryWindowSize != nil && *upd.HistoryWindowSize < 1 {
		return model.Settings{}, fmt.Errorf("%w: history_window_size must be positive", ErrInvalidSettings)
	}
	if upd.SearchService != nil {
		services, err := c.Services(ctx, s)
		if err != nil {
			return model.Settings{}, err
		}
		if _, ok := findService(services, *upd.SearchService); !ok {
			return model.Settings{}, fmt.Errorf("%w: unknown search service %q", ErrInvalidSettings, *upd.SearchService)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if upd.Model != nil {
		s.settings.Model = *upd.Model
	}
	if upd.RetrievedChunkCount != nil {
		s.settings.RetrievedChunkCount = *upd.RetrievedChunkCount
	}
	if upd.HistoryWindowSize != nil {
		s.settings.HistoryWindowSize = *upd.HistoryWindowSize
	}
	if upd.SearchService != nil {
		s.settings.SearchService = *upd.SearchService
	}
	return s.settings, nil
}

// Outcome classifies a turn result for metrics and logs.
func Outcome(err error) string {
	var retrievalErr *service.RetrievalError
	var completionErr *service.CompletionError
	var discoveryErr *service.DiscoveryError
	switch {
	case err == nil:
		return "answered"
	case errors.As(err, &retrievalErr):
		return "retrieval_failed"
	case errors.As(err, &completionErr):
		return "completion_failed"
	case errors.Is(err, service.ErrNoSearchServices):
		return "no_search_services"
	case errors.As(err, &discoveryErr):
		return "discovery_failed"
	case errors.Is(err, ErrTurnInFlight):
		return "turn_in_flight"
	case errors.Is(err, ErrConversationCleared):
		return "discarded"
	default:
		return "error"
	}
}
