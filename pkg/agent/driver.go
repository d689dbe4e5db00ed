// Package agent adapts the external CLI coding agent behind a small
// driver interface. The engine never talks to the agent binary
// directly; it drives conversations turn by turn through a Driver and
// lets the recovery layer classify whatever fails. Each driver owns
// exactly one conversation.
package agent

import (
	"context"
	"errors"
	"time"
)

// ErrNoActiveSession is returned by Continue when no conversation has
// been started or the driver was reset.
var ErrNoActiveSession = errors.New("agent: no active session")

// Message is one entry of a driver's conversation history.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// TurnResult carries the agent's response for a single turn.
type TurnResult struct {
	Text      string
	SessionID string
	TokensIn  int
	TokensOut int
}

// Driver is the conversation-level contract the engine programs
// against. Implementations are fail-fast: they surface errors raw and
// leave retry policy to the caller.
type Driver interface {
	// StartSession opens a fresh conversation, discarding any previous
	// one, and sends the system context followed by the first prompt.
	StartSession(ctx context.Context, systemContext, firstPrompt string) (*TurnResult, error)

	// Continue sends a follow-up prompt on the active conversation.
	Continue(ctx context.Context, prompt string) (*TurnResult, error)

	HasActiveSession() bool

	// Reset abandons the conversation; the next StartSession begins
	// with no carried context.
	Reset()

	// History returns a copy of the conversation so far.
	History() []Message
}
