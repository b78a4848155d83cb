// ABOUTME: Summary plugin producing a structured single-shot summary
// ABOUTME: Stateless; every invocation is one model call with a JSON schema

package plugins

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/loomworks/plugin-gateway/internal/contract"
	"github.com/loomworks/plugin-gateway/internal/upstream/dialogue"
)

// SummaryName is the registry name of the summary plugin.
const SummaryName = "summary"

// summarySchema constrains the model output to a title plus bullet points.
var summarySchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"title": {"type": "string"},
		"points": {"type": "array", "items": {"type": "string"}}
	},
	"required": ["title", "points"],
	"additionalProperties": false
}`)

// StructuredChatter runs one schema-constrained chat completion. Satisfied
// by *dialogue.Client.
type StructuredChatter interface {
	ChatStructured(ctx context.Context, messages []dialogue.Message, schemaName string, schema json.RawMessage) (string, error)
}

// Summary condenses a piece of text in a single exchange. No session state
// is involved.
type Summary struct {
	chat   StructuredChatter
	logger *slog.Logger
}

// NewSummary creates the summary plugin.
func NewSummary(chat StructuredChatter, logger *slog.Logger) *Summary {
	if logger == nil {
		logger = slog.Default()
	}
	return &Summary{
		chat:   chat,
		logger: logger.With("component", "plugin.summary"),
	}
}

// Execute implements contract.Handler. The only operation is "summarize"
// with inputs text and optional language.
func (s *Summary) Execute(ctx context.Context, inv *contract.Invocation) *contract.Result {
	if inv.Operation != "summarize" {
		return contract.Invalid(fmt.Sprintf("unknown operation %q", inv.Operation))
	}

	text := stringInput(inv.Inputs, "text")
	if text == "" {
		return contract.Invalid("text is required")
	}

	system := "Summarize the user's text as a short title and bullet points."
	if language := stringInput(inv.Inputs, "language"); language != "" {
		system = fmt.Sprintf("%s Write the summary in language %q.", system, language)
	}

	raw, err := s.chat.ChatStructured(ctx, []dialogue.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: text},
	}, "summary", summarySchema)
	if err != nil {
		s.logger.Error("summary exchange failed", "error", err)
		return upstreamResult(err, "summarization failed")
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		s.logger.Error("summary response is not valid JSON", "error", err)
		return contract.Upstream(0, "summarization returned malformed output")
	}
	return contract.OK("ok", data)
}
