package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/neuroexpert/site/internal/domain"
	"github.com/neuroexpert/site/internal/identity"
	"github.com/neuroexpert/site/internal/store"
)

// Options tunes a Service.
type Options struct {
	DefaultModel       string
	AllowedModels      []string
	MaxContextTokens   int
	MaxHistoryMessages int
	Timeout            time.Duration
}

// DefaultOptions returns the production settings.
func DefaultOptions() Options {
	return Options{
		DefaultModel:       "gpt-4o",
		AllowedModels:      []string{"gpt-4o"},
		MaxContextTokens:   3000,
		MaxHistoryMessages: 20,
		Timeout:            30 * time.Second,
	}
}

// Service produces assistant replies.
type Service struct {
	repo      store.Repository
	providers *Registry
	tokens    *TokenCounter
	convLog   ConversationLogger
	opts      Options
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a chat service. convLog and logger may be nil.
func NewService(repo store.Repository, providers *Registry, convLog ConversationLogger, opts Options, logger *slog.Logger) *Service {
	if convLog == nil {
		convLog = noopConversationLogger{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.DefaultModel == "" {
		opts.DefaultModel = DefaultOptions().DefaultModel
	}
	return &Service{
		repo:      repo,
		providers: providers,
		tokens:    NewTokenCounter(),
		convLog:   convLog,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
	}
}

// Models returns the models a request may select.
func (s *Service) Models() []string {
	if len(s.opts.AllowedModels) == 0 {
		return []string{s.opts.DefaultModel}
	}
	return s.opts.AllowedModels
}

// resolveModel returns requested if it is allowed, else the default.
func (s *Service) resolveModel(requested string) string {
	requested = strings.TrimSpace(requested)
	for _, m := range s.opts.AllowedModels {
		if requested == m {
			return m
		}
	}
	return s.opts.DefaultModel
}

// Reply answers one visitor message. Provider and storage failures are
// absorbed: the visitor always gets a reply unless the request itself is
// invalid.
func (s *Service) Reply(ctx context.Context, channel string, req Request) (*Response, error) {
	started := s.now().UTC()
	req.SessionID = identity.SanitizeSessionID(req.SessionID)
	req.Message = strings.TrimSpace(req.Message)
	if req.SessionID == "" || req.Message == "" {
		return nil, ErrInvalidRequest
	}
	model := s.resolveModel(req.Model)
	clientIP := identity.ClientIPFromContext(ctx)

	s.convLog.Log(ConversationLogEvent{
		SessionID:  req.SessionID,
		ClientIP:   clientIP,
		Channel:    channel,
		Direction:  "inbound",
		EventType:  "chat_user_message",
		Model:      model,
		ContentRaw: req.Message,
	})

	history := s.loadHistory(ctx, req.SessionID)
	messages := append(BuildContext(history, s.opts.MaxContextTokens), Message{Role: RoleUser, Content: req.Message})

	reply, provider, genErr := s.generate(ctx, model, messages)
	fallback := genErr != nil
	if fallback {
		s.logger.Warn("AI generation failed, using fallback reply",
			"session_id", req.SessionID,
			"model", model,
			"error", genErr,
		)
		reply = FallbackReply(req.Message)
	}

	s.saveTurn(ctx, &domain.ChatTurn{
		SessionID:   req.SessionID,
		UserMessage: req.Message,
		AIResponse:  reply,
		TokensUser:  s.tokens.Count(req.Message),
		TokensAI:    s.tokens.Count(reply),
		Model:       model,
		CreatedAt:   started,
	})

	s.convLog.Log(ConversationLogEvent{
		SessionID:  req.SessionID,
		ClientIP:   clientIP,
		Channel:    channel,
		Direction:  "outbound",
		EventType:  "chat_assistant_message",
		Model:      model,
		ContentRaw: reply,
		Meta: map[string]any{
			"provider":      provider,
			"fallback":      fallback,
			"history_turns": len(messages) / 2,
			"duration_ms":   s.now().Sub(started).Milliseconds(),
		},
	})

	s.logger.Info("Chat processed",
		"session_id", req.SessionID,
		"model", model,
		"provider", provider,
		"fallback", fallback,
		"history_turns", len(messages)/2,
	)

	return &Response{
		Response:  reply,
		SessionID: req.SessionID,
		Model:     model,
		Timestamp: started.Format(time.RFC3339),
	}, nil
}

func (s *Service) loadHistory(ctx context.Context, sessionID string) []*domain.ChatTurn {
	if s.repo == nil || s.opts.MaxHistoryMessages == 0 {
		return nil
	}
	turns, err := s.repo.RecentChatTurns(ctx, sessionID, s.opts.MaxHistoryMessages)
	if err != nil {
		s.logger.Error("Failed to load chat context", "session_id", sessionID, "error", err)
		return nil
	}
	return turns
}

func (s *Service) generate(ctx context.Context, model string, messages []Message) (string, string, error) {
	if s.providers == nil {
		return "", "", ErrUnknownModel
	}
	p, err := s.providers.Resolve(model)
	if err != nil {
		return "", "", err
	}

	genCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	text, err := p.Generate(genCtx, model, SystemPrompt, messages)
	if err != nil {
		return "", p.Name(), err
	}
	if strings.TrimSpace(text) == "" {
		return "", p.Name(), ErrEmptyReply
	}
	return text, p.Name(), nil
}

func (s *Service) saveTurn(ctx context.Context, turn *domain.ChatTurn) {
	if s.repo == nil {
		return
	}
	// The visitor already has a reply; persist even if the request is gone.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.repo.SaveChatTurn(saveCtx, turn); err != nil {
		s.logger.Error("Failed to save conversation", "session_id", turn.SessionID, "error", err)
	}
}

// Ping checks the chat history store.
func (s *Service) Ping(ctx context.Context) error {
	if s.repo == nil {
		return errors.New("chat history store not configured")
	}
	return s.repo.Ping(ctx)
}

// ProviderStatus reports which models have a configured provider.
func (s *Service) ProviderStatus() map[string]string {
	if s.providers == nil {
		return map[string]string{}
	}
	return s.providers.Status(s.Models())
}
