package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/recallkit/memoryd/memory"
	"github.com/recallkit/memoryd/session"
)

// RegisterMemoryTools registers the store, retrieve and delete tools backed
// by the memory manager. store_memory and retrieve_memories act on the
// ambient session scope; delete_memory takes an explicit user_id and is
// checked against ownership inside the manager.
func (r *Registry) RegisterMemoryTools(manager *memory.Manager) {
	r.logger.Info().Msg("Registering memory tools")

	r.Register("store_memory", func(ctx context.Context, args json.RawMessage) (string, error) {
		var payload struct {
			Content    string            `json:"content"`
			MemoryType string            `json:"memory_type"`
			Metadata   map[string]string `json:"metadata"`
		}
		if err := json.Unmarshal(args, &payload); err != nil {
			return "", memory.NewValidationError("invalid arguments for store_memory")
		}

		memType, err := memory.ParseMemoryType(payload.MemoryType)
		if err != nil {
			return "", memory.NewValidationError(err.Error())
		}

		scope := session.ScopeFrom(ctx)
		outcome, err := manager.StoreMemory(ctx, memory.StoreRequest{
			UserID:     scope.UserID,
			ThreadID:   scope.ThreadIDPtr(),
			MemoryType: memType,
			Content:    payload.Content,
			Metadata:   payload.Metadata,
		})
		if err != nil {
			return "", err
		}

		if outcome.Status == memory.StoreStatusSkippedDuplicate {
			return "Skipped: a similar memory already exists.", nil
		}
		return fmt.Sprintf("Stored %s memory %s.", outcome.Record.MemoryType, outcome.Record.MemoryID), nil
	})

	r.Register("retrieve_memories", func(ctx context.Context, args json.RawMessage) (string, error) {
		var payload struct {
			Query      string          `json:"query"`
			MemoryType json.RawMessage `json:"memory_type"`
			Limit      int             `json:"limit"`
		}
		if err := json.Unmarshal(args, &payload); err != nil {
			return "", memory.NewValidationError("invalid arguments for retrieve_memories")
		}

		memTypes, err := parseMemoryTypes(payload.MemoryType)
		if err != nil {
			return "", err
		}

		// Retrieval spans all of the user's threads: long-term memories
		// stored in one conversation should surface in the next.
		scope := session.ScopeFrom(ctx)
		records, err := manager.RetrieveMemories(ctx, memory.RetrievalQuery{
			Query:       payload.Query,
			UserID:      scope.UserID,
			MemoryTypes: memTypes,
			Limit:       payload.Limit,
		})
		if err != nil {
			return "", err
		}

		return RenderMemories(records), nil
	})

	r.Register("delete_memory", func(ctx context.Context, args json.RawMessage) (string, error) {
		var payload struct {
			MemoryID string `json:"memory_id"`
			UserID   string `json:"user_id"`
		}
		if err := json.Unmarshal(args, &payload); err != nil {
			return "", memory.NewValidationError("invalid arguments for delete_memory")
		}

		deleted, err := manager.DeleteMemory(ctx, payload.MemoryID, payload.UserID)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%t", deleted), nil
	})
}

// RegisterExtractionTool registers record_exchange, which mines a user and
// assistant turn pair for storable memories and saves them through the
// normal deduplicated store path. Registered only when an extractor is
// configured.
func (r *Registry) RegisterExtractionTool(manager *memory.Manager, extractor memory.MemoryExtractor) {
	r.logger.Info().Msg("Registering extraction tool")

	r.Register("record_exchange", func(ctx context.Context, args json.RawMessage) (string, error) {
		var payload struct {
			UserMessage      string `json:"user_message"`
			AssistantMessage string `json:"assistant_message"`
		}
		if err := json.Unmarshal(args, &payload); err != nil {
			return "", memory.NewValidationError("invalid arguments for record_exchange")
		}

		scope := session.ScopeFrom(ctx)
		stored, err := manager.RecordExchange(ctx, extractor, memory.Exchange{
			UserMessage:      payload.UserMessage,
			AssistantMessage: payload.AssistantMessage,
			UserID:           scope.UserID,
			ThreadID:         scope.ThreadIDPtr(),
		})
		if err != nil {
			return "", err
		}

		if stored == 0 {
			return "No new memories recorded.", nil
		}
		return fmt.Sprintf("Recorded %d new memories.", stored), nil
	})
}

// parseMemoryTypes accepts the memory_type argument as either a single
// string or an array of strings.
func parseMemoryTypes(raw json.RawMessage) ([]memory.MemoryType, error) {
	if len(raw) == 0 {
		return nil, memory.NewValidationError("memory_type is required")
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		typ, err := memory.ParseMemoryType(single)
		if err != nil {
			return nil, memory.NewValidationError(err.Error())
		}
		return []memory.MemoryType{typ}, nil
	}

	var many []string
	if err := json.Unmarshal(raw, &many); err != nil {
		return nil, memory.NewValidationError("memory_type must be a string or an array of strings")
	}
	if len(many) == 0 {
		return nil, memory.NewValidationError("memory_type is required")
	}
	types := make([]memory.MemoryType, 0, len(many))
	for _, s := range many {
		typ, err := memory.ParseMemoryType(s)
		if err != nil {
			return nil, memory.NewValidationError(err.Error())
		}
		types = append(types, typ)
	}
	return types, nil
}

// RenderMemories formats retrieved memories as the numbered text block the
// model consumes.
func RenderMemories(records []memory.MemoryRecord) string {
	if len(records) == 0 {
		return "No relevant memories found."
	}

	var b strings.Builder
	for i, rec := range records {
		fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, rec.MemoryType, rec.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

// RenderError formats a tool error for the model. Typed engine errors keep
// their kind so the model can distinguish bad input from backend trouble.
func RenderError(err error) string {
	var memErr *memory.Error
	if errors.As(err, &memErr) {
		return fmt.Sprintf("[%s] %s", memErr.Kind, memErr.Message)
	}
	return err.Error()
}
