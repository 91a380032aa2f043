package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"query-assistant/internal/domain"
)

const (
	defaultHistoryLimit      = 5
	defaultMaxInputLength    = 4000
	defaultCompletionTimeout = 30 * time.Second
	defaultPersistTimeout    = 10 * time.Second

	// FallbackResponse replaces a blank completion.
	FallbackResponse = "No response generated."
)

// Completer produces generated text for a fully assembled prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// HistoryStore is the append-only turn log. Recent returns at most limit turns,
// newest first.
type HistoryStore interface {
	Append(ctx context.Context, turn domain.Turn) error
	Recent(ctx context.Context, limit int) ([]domain.Turn, error)
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// Options are the tunables of the pipeline. Zero values fall back to defaults.
type Options struct {
	Schema            string
	Dialect           domain.Dialect
	HistoryLimit      int
	MaxInputLength    int
	CompletionTimeout time.Duration
	PersistTimeout    time.Duration
}

type Service struct {
	llm     Completer
	history HistoryStore
	logger  *zap.Logger

	schema            string
	dialect           domain.Dialect
	historyLimit      int
	maxInputLength    int
	completionTimeout time.Duration
	persistTimeout    time.Duration

	pending sync.WaitGroup
}

type ChatInput struct {
	Prompt string
}

type ChatOutput struct {
	Response string
}

type QueryInput struct {
	Query string
}

type QueryOutput struct {
	Query string
}

// NewService wires the pipeline. A nil history store makes chat stateless.
func NewService(llm Completer, history HistoryStore, logger *zap.Logger, opts Options) (*Service, error) {
	if llm == nil {
		return nil, errors.New("usecase: completion client must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Dialect == "" {
		opts.Dialect = domain.DialectDocument
	}
	if strings.TrimSpace(opts.Schema) == "" {
		opts.Schema = domain.DefaultSchema(opts.Dialect)
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = defaultHistoryLimit
	}
	if opts.MaxInputLength <= 0 {
		opts.MaxInputLength = defaultMaxInputLength
	}
	if opts.CompletionTimeout <= 0 {
		opts.CompletionTimeout = defaultCompletionTimeout
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = defaultPersistTimeout
	}
	return &Service{
		llm:               llm,
		history:           history,
		logger:            logger,
		schema:            opts.Schema,
		dialect:           opts.Dialect,
		historyLimit:      opts.HistoryLimit,
		maxInputLength:    opts.MaxInputLength,
		completionTimeout: opts.CompletionTimeout,
		persistTimeout:    opts.PersistTimeout,
	}, nil
}

// HistoryEnabled reports whether chat reads and writes conversation history.
func (s *Service) HistoryEnabled() bool {
	return s.history != nil
}

// Chat answers a free-form prompt, using recent history when a store is configured.
func (s *Service) Chat(ctx context.Context, in ChatInput) (ChatOutput, error) {
	if err := s.validate(in.Prompt, domain.ModeChat); err != nil {
		return ChatOutput{}, err
	}

	window := s.recentHistory(ctx)

	prompt, err := AssemblePrompt(PromptInput{
		Schema:  s.schema,
		History: window,
		Input:   in.Prompt,
		Mode:    domain.ModeChat,
		Dialect: s.dialect,
	})
	if err != nil {
		return ChatOutput{}, err
	}

	text, err := s.complete(ctx, prompt)
	if err != nil {
		return ChatOutput{}, err
	}

	s.persist(ctx, domain.Turn{
		ID:        newUUID(),
		Input:     in.Prompt,
		Output:    text,
		Timestamp: now().UTC(),
	})
	return ChatOutput{Response: text}, nil
}

// GenerateQuery turns a request into a single query. It never touches history.
func (s *Service) GenerateQuery(ctx context.Context, in QueryInput) (QueryOutput, error) {
	if err := s.validate(in.Query, domain.ModeQueryGeneration); err != nil {
		return QueryOutput{}, err
	}

	prompt, err := AssemblePrompt(PromptInput{
		Schema:  s.schema,
		Input:   in.Query,
		Mode:    domain.ModeQueryGeneration,
		Dialect: s.dialect,
	})
	if err != nil {
		return QueryOutput{}, err
	}

	text, err := s.complete(ctx, prompt)
	if err != nil {
		return QueryOutput{}, err
	}
	return QueryOutput{Query: text}, nil
}

// Wait blocks until every detached history write has finished.
func (s *Service) Wait() {
	s.pending.Wait()
}

func (s *Service) validate(input string, mode domain.Mode) error {
	if strings.TrimSpace(input) == "" {
		return missingInputError(mode)
	}
	if utf8.RuneCountInString(input) > s.maxInputLength {
		if mode == domain.ModeQueryGeneration {
			return newError(ErrorInvalidInput, "query_too_long", fmt.Sprintf("Query must be at most %d characters", s.maxInputLength), nil)
		}
		return newError(ErrorInvalidInput, "prompt_too_long", fmt.Sprintf("Prompt must be at most %d characters", s.maxInputLength), nil)
	}
	return nil
}

// recentHistory is best-effort: a failing store yields an empty window.
func (s *Service) recentHistory(ctx context.Context) []domain.Turn {
	if s.history == nil {
		return nil
	}
	turns, err := s.history.Recent(ctx, s.historyLimit)
	if err != nil {
		s.logger.Warn("history read failed, continuing without context",
			zap.String("code", string(ErrorStorage)),
			zap.Error(err))
		return nil
	}
	if len(turns) > s.historyLimit {
		turns = turns[:s.historyLimit]
	}
	return turns
}

func (s *Service) complete(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.completionTimeout)
	defer cancel()

	text, err := s.llm.Complete(callCtx, prompt)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return "", newError(ErrorUpstream, "completion_timeout", "Completion request timed out", err)
		}
		if status, ok := upstreamStatusCode(err); ok && status == 429 {
			return "", newError(ErrorRateLimited, "completion_rate_limited", "Completion provider rate limit exceeded", err)
		}
		return "", newError(ErrorUpstream, "completion_error", fmt.Sprintf("Completion request failed: %v", err), err)
	}
	if strings.TrimSpace(text) == "" {
		return FallbackResponse, nil
	}
	return text, nil
}

// persist writes the turn on a detached goroutine. The response path never
// waits for it and never sees its error.
func (s *Service) persist(ctx context.Context, turn domain.Turn) {
	if s.history == nil {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.persistTimeout)
		defer cancel()
		if err := s.history.Append(writeCtx, turn); err != nil {
			s.logger.Warn("history write failed",
				zap.String("code", string(ErrorStorage)),
				zap.String("turn_id", turn.ID),
				zap.Error(err))
		}
	}()
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}

var newUUID = func() string {
	return uuid.NewString()
}

var now = time.Now
