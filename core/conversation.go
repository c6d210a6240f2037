package core

import (
	"fmt"
	"sync"
)

// Conversation is the ordered, append-only transcript of one orchestration
// run. It is the sole state threaded through the loop and is what gets sent
// back to the model on every iteration. It is safe for concurrent access.
//
// Contract:
//   - The first message is a user message
//   - An assistant message follows a user or tool_result message
//   - A tool_result message immediately follows an assistant message that
//     carried tool calls and answers every call exactly once, in order
//   - An assistant message carrying tool calls is always followed by its
//     tool_result message
//   - Messages returns a defensive copy
type Conversation struct {
	mu       sync.RWMutex
	messages []Message
}

// NewConversation creates a transcript seeded with the user's message.
func NewConversation(userMessage string) *Conversation {
	return &Conversation{messages: []Message{NewUserMessage(userMessage)}}
}

// Append adds msg to the transcript after checking the alternation and
// pairing invariants. A rejected message leaves the transcript untouched.
func (c *Conversation) Append(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.validateNext(msg); err != nil {
		return err
	}

	c.messages = append(c.messages, msg)

	return nil
}

// AppendUser appends a user text message.
func (c *Conversation) AppendUser(text string) error { return c.Append(NewUserMessage(text)) }

// AppendAssistant appends an assistant turn verbatim.
func (c *Conversation) AppendAssistant(msg Message) error {
	msg.Role = RoleAssistant
	return c.Append(msg)
}

// AppendToolResults appends one synthesized tool_result message.
func (c *Conversation) AppendToolResults(results []ToolResult) error {
	return c.Append(NewToolResultMessage(results))
}

// Messages returns a copy of the transcript.
func (c *Conversation) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Message, len(c.messages))
	copy(out, c.messages)

	return out
}

// Len returns the number of messages in the transcript.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.messages)
}

// Last returns the most recent message and false when the transcript is empty.
func (c *Conversation) Last() (Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.messages) == 0 {
		return Message{}, false
	}

	return c.messages[len(c.messages)-1], true
}

func (c *Conversation) validateNext(msg Message) error {
	if len(c.messages) == 0 {
		if msg.Role != RoleUser {
			return fmt.Errorf("%w: transcript must start with a user message, got %s", ErrProtocolViolation, msg.Role)
		}
		return nil
	}

	prev := c.messages[len(c.messages)-1]
	if prev.Role == RoleAssistant && prev.HasToolCalls() && msg.Role != RoleToolResult {
		return fmt.Errorf("%w: %s message cannot follow an assistant turn with pending tool calls", ErrProtocolViolation, msg.Role)
	}

	switch msg.Role {
	case RoleUser:
		if prev.Role != RoleAssistant {
			return fmt.Errorf("%w: user message cannot follow %s", ErrProtocolViolation, prev.Role)
		}
	case RoleAssistant:
		if prev.Role == RoleAssistant {
			return fmt.Errorf("%w: consecutive assistant messages", ErrProtocolViolation)
		}
	case RoleToolResult:
		if prev.Role != RoleAssistant {
			return fmt.Errorf("%w: tool_result must follow an assistant turn", ErrProtocolViolation)
		}
		return matchResults(prev.ToolCalls(), msg.ToolResults())
	default:
		return fmt.Errorf("%w: unknown role %q", ErrProtocolViolation, msg.Role)
	}

	return nil
}

// matchResults checks that results answer calls one-to-one, in order.
func matchResults(calls []ToolCall, results []ToolResult) error {
	if len(calls) == 0 {
		return fmt.Errorf("%w: tool_result follows an assistant turn without tool calls", ErrProtocolViolation)
	}

	if len(results) != len(calls) {
		return fmt.Errorf("%w: %d tool calls answered by %d results", ErrProtocolViolation, len(calls), len(results))
	}

	for i, call := range calls {
		if results[i].ToolCallID != call.ID {
			return fmt.Errorf("%w: result %d references %q, expected %q", ErrProtocolViolation, i, results[i].ToolCallID, call.ID)
		}
	}

	return nil
}
