package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"
)

// extractorSystemPrompt steers Claude toward durable, storable memories.
const extractorSystemPrompt = `You extract long-term memories from a conversation between a user and an assistant.

Your goals:
- Extract only stable, reusable information worth remembering across conversations.
- Classify each memory as "episodic" (user-specific experience or preference) or "semantic" (general domain knowledge).
- Write each memory as a single self-contained third-person sentence.
- Skip transient details, pleasantries, and anything already implied by another memory.
- If nothing is worth remembering, return an empty list.

Respond with ONLY a JSON array, no prose:
[{"content": "...", "memory_type": "episodic"}]`

// CandidateMemory is one memory Claude proposed for storage.
type CandidateMemory struct {
	Content    string     `json:"content"`
	MemoryType MemoryType `json:"memory_type"`
}

// Exchange is one user/assistant turn pair to mine for memories.
type Exchange struct {
	UserMessage      string
	AssistantMessage string
	UserID           string
	ThreadID         *string
}

// MemoryExtractor distills a conversation exchange into storable memories.
// RecordExchange depends on this rather than a concrete client.
type MemoryExtractor interface {
	ExtractMemories(ctx context.Context, userMessage, assistantMessage string) ([]CandidateMemory, error)
}

// Extractor asks Claude to distill a conversation exchange into storable
// memories. It is an optional collaborator: the engine works without it.
type Extractor struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
	logger    zerolog.Logger
}

// NewExtractor returns a configured extractor.
func NewExtractor(apiKey, model string, logger zerolog.Logger) (*Extractor, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("extractor: missing API key")
	}
	if model == "" {
		return nil, fmt.Errorf("extractor: missing model name")
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &Extractor{
		client:    &client,
		model:     model,
		maxTokens: 1024,
		logger:    logger.With().Str("component", "memory_extractor").Logger(),
	}, nil
}

// ExtractMemories returns the memories Claude found in the exchange.
// Candidates with unparseable types are dropped with a warning.
func (e *Extractor) ExtractMemories(ctx context.Context, userMessage, assistantMessage string) ([]CandidateMemory, error) {
	if strings.TrimSpace(userMessage) == "" && strings.TrimSpace(assistantMessage) == "" {
		return nil, nil
	}

	prompt := fmt.Sprintf("User said:\n%s\n\nAssistant replied:\n%s", userMessage, assistantMessage)

	message, err := e.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(e.model),
		MaxTokens: e.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: extractorSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("extractor: messages API: %w", err)
	}

	var text string
	for _, blockUnion := range message.Content {
		if block, ok := blockUnion.AsAny().(anthropic.TextBlock); ok {
			text += block.Text
		}
	}
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	var raw []struct {
		Content    string `json:"content"`
		MemoryType string `json:"memory_type"`
	}
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("extractor: decode response: %w", err)
	}

	candidates := make([]CandidateMemory, 0, len(raw))
	for _, c := range raw {
		typ, err := ParseMemoryType(c.MemoryType)
		if err != nil {
			e.logger.Warn().
				Str("memory_type", c.MemoryType).
				Str("content", truncateString(c.Content, 40)).
				Msg("Dropping candidate with unknown memory type")
			continue
		}
		if strings.TrimSpace(c.Content) == "" {
			continue
		}
		candidates = append(candidates, CandidateMemory{Content: c.Content, MemoryType: typ})
	}
	return candidates, nil
}

// RecordExchange extracts memories from an exchange and stores each through
// the normal store path, so deduplication applies. A candidate that fails to
// store is logged and skipped rather than failing the rest. Returns the
// number of newly stored memories.
func (m *Manager) RecordExchange(ctx context.Context, extractor MemoryExtractor, ex Exchange) (int, error) {
	if extractor == nil {
		return 0, NewValidationError("extractor is required")
	}

	candidates, err := extractor.ExtractMemories(ctx, ex.UserMessage, ex.AssistantMessage)
	if err != nil {
		return 0, NewConnectionError("extract memories", err)
	}
	if len(candidates) == 0 {
		m.logger.Debug().Msg("Exchange produced no storable memories")
		return 0, nil
	}

	stored := 0
	for _, c := range candidates {
		outcome, err := m.StoreMemory(ctx, StoreRequest{
			Content:    c.Content,
			MemoryType: c.MemoryType,
			UserID:     ex.UserID,
			ThreadID:   ex.ThreadID,
			Metadata:   map[string]string{"source": "extraction"},
		})
		if err != nil {
			m.logger.Warn().Err(err).
				Str("content", truncateString(c.Content, 40)).
				Msg("Failed to store extracted memory")
			continue
		}
		if outcome.Status == StoreStatusStored {
			stored++
		}
	}

	m.logger.Info().
		Int("candidates", len(candidates)).
		Int("stored", stored).
		Str("user_id", ex.UserID).
		Msg("Exchange recorded")
	return stored, nil
}
