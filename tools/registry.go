package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
)

// Handler handles a single tool call. The ambient session scope rides on
// the context; args is the raw JSON argument object from the model.
type Handler func(ctx context.Context, args json.RawMessage) (string, error)

// Registry maps tool names to handlers.
type Registry struct {
	handlers map[string]Handler
	logger   zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	logger = logger.With().Str("component", "tool_registry").Logger()
	return &Registry{
		handlers: make(map[string]Handler),
		logger:   logger,
	}
}

// Register registers a handler for a tool name.
func (r *Registry) Register(name string, h Handler) {
	r.logger.Debug().Str("name", name).Msg("Registering tool handler")
	r.handlers[name] = h
}

// Names returns the registered tool names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}

// Handle dispatches a tool call and returns the text result shown to the
// model.
func (r *Registry) Handle(ctx context.Context, toolName string, args json.RawMessage) (string, error) {
	h, ok := r.handlers[toolName]
	if !ok {
		r.logger.Error().Str("tool", toolName).Msg("Unknown tool requested")
		return "", fmt.Errorf("unknown tool: %s", toolName)
	}

	r.logger.Info().Str("tool", toolName).RawJSON("args", normalizeArgs(args)).Msg("Executing tool")

	result, err := h(ctx, args)
	if err != nil {
		r.logger.Warn().Str("tool", toolName).Err(err).Msg("Tool returned error")
		return "", err
	}

	r.logger.Info().Str("tool", toolName).Str("result", truncateForLog(result)).Msg("Tool returned result")
	return result, nil
}

// normalizeArgs guards the log call against invalid JSON from the caller.
func normalizeArgs(args json.RawMessage) json.RawMessage {
	if json.Valid(args) && len(args) > 0 {
		return args
	}
	return json.RawMessage("{}")
}

func truncateForLog(s string) string {
	const max = 500
	if len(s) <= max {
		return s
	}
	return s[:max] + "... (truncated)"
}
