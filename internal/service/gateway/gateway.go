package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"guitargpt/internal/config"
	"guitargpt/internal/models"
)

// maxContextMessages bounds how much history is sent to the model. The
// first message is always kept for conversation context.
const maxContextMessages = 20

const keyPrefix = "sk-"

var (
	// ErrCredentialMissing means no API key is configured; the call is
	// refused before being attempted.
	ErrCredentialMissing = errors.New("api key not set")
	// ErrNoResponse collapses every gateway failure mode into one case.
	ErrNoResponse = errors.New("no valid response from AI")
)

// ValidKeyFormat is the only format check applied to entered credentials.
func ValidKeyFormat(key string) bool {
	return strings.HasPrefix(key, keyPrefix)
}

// Service wraps the structured-completion API. The credential is an
// explicit dependency; Reconfigure swaps it when the user re-enters a key.
type Service struct {
	provider string
	provCfg  config.ProviderConfig
	log      *zap.Logger

	mu        sync.RWMutex
	chatModel model.ToolCallingChatModel
}

// NewService builds a gateway for the configured provider. A missing key is
// not an error here: calls fail with ErrCredentialMissing until one is set.
func NewService(provider string, provCfg config.ProviderConfig, apiKey string, log *zap.Logger) (*Service, error) {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{provider: provider, provCfg: provCfg, log: log}
	if apiKey != "" {
		if err := s.Reconfigure(apiKey); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Reconfigure rebuilds the underlying chat model with a new credential.
func (s *Service) Reconfigure(apiKey string) error {
	chatModel, err := buildChatModel(s.provider, s.provCfg, apiKey)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.chatModel = chatModel
	s.mu.Unlock()
	return nil
}

func buildChatModel(provider string, provCfg config.ProviderConfig, apiKey string) (model.ToolCallingChatModel, error) {
	modelName := provCfg.Model
	switch provider {
	case "openai":
		return openai.NewChatModel(context.Background(), &openai.ChatModelConfig{
			BaseURL: provCfg.BaseURL,
			Model:   modelName,
			APIKey:  apiKey,
		})
	case "gemini":
		client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
			APIKey: apiKey,
		})
		if err != nil {
			return nil, fmt.Errorf("gemini client: %w", err)
		}
		return gemini.NewChatModel(context.Background(), &gemini.Config{
			Client: client,
			Model:  modelName,
		})
	case "claude":
		var baseURLPtr *string
		if provCfg.BaseURL != "" {
			baseURLPtr = &provCfg.BaseURL
		}
		return claude.NewChatModel(context.Background(), &claude.Config{
			APIKey:    apiKey,
			Model:     modelName,
			BaseURL:   baseURLPtr,
			MaxTokens: 2000,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
}

func (s *Service) currentModel() model.ToolCallingChatModel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chatModel
}

// Chat sends the ordered history to the model and parses its structured
// reply into a segment sequence.
func (s *Service) Chat(ctx context.Context, history []models.Message) ([]models.Segment, error) {
	chatModel := s.currentModel()
	if chatModel == nil {
		return nil, ErrCredentialMissing
	}

	msgs := make([]*schema.Message, 0, maxContextMessages+2)
	msgs = append(msgs, &schema.Message{Role: schema.System, Content: systemPrompt()})
	msgs = append(msgs, prepareContext(history)...)

	resp, err := chatModel.Generate(ctx, msgs)
	if err != nil {
		return nil, fmt.Errorf("generate chat response: %w", err)
	}
	segments, err := parseSegments(resp.Content)
	if err != nil {
		s.log.Warn("malformed gateway response", zap.Error(err))
		return nil, ErrNoResponse
	}
	return segments, nil
}

// GenerateTitle asks for a short conversation title (at most 6 words).
func (s *Service) GenerateTitle(ctx context.Context, history []models.Message) (string, error) {
	chatModel := s.currentModel()
	if chatModel == nil {
		return "", ErrCredentialMissing
	}

	var conversation strings.Builder
	for _, msg := range history {
		text := msg.PlainText()
		if text == "" {
			continue
		}
		switch msg.Role {
		case models.RoleUser:
			fmt.Fprintf(&conversation, "User: %s\n", text)
		case models.RoleAssistant:
			fmt.Fprintf(&conversation, "Assistant: %s\n", text)
		}
	}

	resp, err := chatModel.Generate(ctx, []*schema.Message{
		{
			Role:    schema.System,
			Content: "Generate a short, concise title (max 6 words) for this guitar-related conversation. Output only the title.",
		},
		{Role: schema.User, Content: conversation.String()},
	})
	if err != nil {
		return "", fmt.Errorf("generate title: %w", err)
	}
	title := strings.TrimSpace(resp.Content)
	if title == "" {
		return DefaultTitle, nil
	}
	return title, nil
}

// DefaultTitle is used when title generation yields nothing usable.
const DefaultTitle = "Guitar Conversation"

// prepareContext takes the last maxContextMessages entries, always keeping
// the opening message of long conversations.
func prepareContext(history []models.Message) []*schema.Message {
	window := history
	if len(history) > maxContextMessages {
		window = append([]models.Message{history[0]}, history[len(history)-maxContextMessages:]...)
	}
	msgs := make([]*schema.Message, 0, len(window))
	for _, msg := range window {
		role := schema.User
		if msg.Role == models.RoleAssistant {
			role = schema.Assistant
		}
		msgs = append(msgs, &schema.Message{Role: role, Content: msg.PlainText()})
	}
	return msgs
}
