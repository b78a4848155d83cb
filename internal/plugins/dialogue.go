// ABOUTME: Dialogue plugin exposing the conversation session lifecycle
// ABOUTME: Maps start/continue/end operations onto the session manager

package plugins

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/loomworks/plugin-gateway/internal/contract"
	"github.com/loomworks/plugin-gateway/internal/session"
	"github.com/loomworks/plugin-gateway/internal/upstream/dialogue"
)

// DialogueName is the registry name of the dialogue plugin.
const DialogueName = "dialogue"

// Chatter runs one chat completion. Satisfied by *dialogue.Client.
type Chatter interface {
	Chat(ctx context.Context, messages []dialogue.Message) (string, error)
}

// chatExchanger adapts a chat client to the session.Exchanger interface.
// Session metadata shapes the system prompt so the model answers in the
// session's language.
type chatExchanger struct {
	chat Chatter
}

// NewChatExchanger wraps a chat client as a session exchanger.
func NewChatExchanger(chat Chatter) session.Exchanger {
	return &chatExchanger{chat: chat}
}

func (e *chatExchanger) Exchange(ctx context.Context, sessionID string, meta session.Metadata, content string) (string, error) {
	system := "You are a helpful conversation partner. Keep answers concise."
	if meta.Language != "" {
		system = fmt.Sprintf("%s Respond in language %q.", system, meta.Language)
	}
	return e.chat.Chat(ctx, []dialogue.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: content},
	})
}

// Dialogue drives multi-turn conversations. Operations:
//
//	start    inputs: language, content   -> session_id, turn, answer
//	continue inputs: session_id, content -> session_id, turn, answer
//	end      inputs: session_id          -> session_id
type Dialogue struct {
	sessions *session.Manager
	logger   *slog.Logger
}

// NewDialogue creates the dialogue plugin.
func NewDialogue(sessions *session.Manager, logger *slog.Logger) *Dialogue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dialogue{
		sessions: sessions,
		logger:   logger.With("component", "plugin.dialogue"),
	}
}

// Execute implements contract.Handler.
func (d *Dialogue) Execute(ctx context.Context, inv *contract.Invocation) *contract.Result {
	switch inv.Operation {
	case "start":
		return d.start(ctx, inv)
	case "continue":
		return d.cont(ctx, inv)
	case "end":
		return d.end(ctx, inv)
	default:
		return contract.Invalid(fmt.Sprintf("unknown operation %q", inv.Operation))
	}
}

func (d *Dialogue) start(ctx context.Context, inv *contract.Invocation) *contract.Result {
	reply, err := d.sessions.Start(ctx, session.StartRequest{
		Language: stringInput(inv.Inputs, "language"),
		Content:  stringInput(inv.Inputs, "content"),
	})
	if err != nil {
		return d.failure(err, "starting conversation failed")
	}
	return replyResult(reply)
}

func (d *Dialogue) cont(ctx context.Context, inv *contract.Invocation) *contract.Result {
	reply, err := d.sessions.Continue(ctx, session.ContinueRequest{
		SessionID: stringInput(inv.Inputs, "session_id"),
		Content:   stringInput(inv.Inputs, "content"),
	})
	if err != nil {
		return d.failure(err, "continuing conversation failed")
	}
	return replyResult(reply)
}

func (d *Dialogue) end(ctx context.Context, inv *contract.Invocation) *contract.Result {
	id := stringInput(inv.Inputs, "session_id")
	if err := d.sessions.End(ctx, id); err != nil {
		return d.failure(err, "ending conversation failed")
	}
	return contract.OK("ok", map[string]any{"session_id": id})
}

// failure translates session-layer errors into results. Validation errors
// are the caller's fault, a missing session is not found, and anything
// else is an upstream failure.
func (d *Dialogue) failure(err error, message string) *contract.Result {
	switch {
	case errors.Is(err, session.ErrInitialContentRequired),
		errors.Is(err, session.ErrSessionIDRequired):
		return contract.Invalid(err.Error())
	case errors.Is(err, session.ErrSessionNotFound):
		return contract.NotFound(err.Error())
	default:
		d.logger.Error("session operation failed", "error", err)
		return upstreamResult(err, message)
	}
}

func replyResult(reply *session.Reply) *contract.Result {
	return contract.OK("ok", map[string]any{
		"session_id": reply.SessionID,
		"turn":       reply.Turn,
		"answer":     reply.Answer,
	})
}
