package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"nexus/internal/domain"
	"nexus/internal/llm"
)

const (
	DefaultChatModel       = "gpt-4o"
	DefaultChatTemperature = 0.7
)

var ErrNoQuestion = errors.New("chat history has no user question")

const systemPrompt = `You are Nexus, an assistant that answers questions from an internal knowledge base.
Use the retrieved context below to answer the user's question.
If the context does not contain the answer, say that you don't know, but be as helpful as the context allows.
Always cite your sources using the [Source: filename] format.

Context:
`

// ChatConfig selects the answering model. A negative Temperature selects
// DefaultChatTemperature.
type ChatConfig struct {
	Model       string
	Temperature float32
}

// ChatService answers a conversation grounded on retrieved context.
type ChatService struct {
	retriever   *Retriever
	completer   llm.Completer
	model       string
	temperature float32
	log         *zap.Logger
}

func NewChatService(retriever *Retriever, completer llm.Completer, cfg ChatConfig, log *zap.Logger) *ChatService {
	if cfg.Model == "" {
		cfg.Model = DefaultChatModel
	}
	if cfg.Temperature < 0 {
		cfg.Temperature = DefaultChatTemperature
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ChatService{
		retriever:   retriever,
		completer:   completer,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		log:         log.Named("chat"),
	}
}

// Answer retrieves context for the last message and asks the model with the whole history.
func (c *ChatService) Answer(ctx context.Context, messages []domain.Message) (domain.Answer, error) {
	if len(messages) == 0 {
		return domain.Answer{}, ErrNoQuestion
	}
	question := messages[len(messages)-1].Content
	if strings.TrimSpace(question) == "" {
		return domain.Answer{}, ErrNoQuestion
	}

	ctx, cancel := context.WithTimeout(ctx, c.retriever.timeout)
	defer cancel()

	retrieved, err := c.retriever.Retrieve(ctx, question)
	if err != nil {
		return domain.Answer{}, err
	}

	prompt := make([]domain.Message, 0, len(messages)+1)
	prompt = append(prompt, domain.Message{Role: llm.RoleSystem, Content: systemPrompt + retrieved.Context})
	prompt = append(prompt, messages...)
	content, err := c.completer.Complete(ctx, prompt, llm.Options{Model: c.model, Temperature: c.temperature})
	if err != nil {
		c.log.Warn("completion failed", zap.Error(err))
		return domain.Answer{}, err
	}
	c.log.Debug("answered", zap.Int("history", len(messages)), zap.Strings("sources", retrieved.Sources))
	return domain.Answer{Content: content, Sources: retrieved.Sources, Matches: retrieved.Matches}, nil
}
