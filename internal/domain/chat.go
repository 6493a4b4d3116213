package domain

import "errors"

// ErrNotConfigured marks a missing agent endpoint or access key.
var ErrNotConfigured = errors.New("agent endpoint and access key are required")

// ChatMessage is the provider-agnostic chat message shape used by the relay
// and the agent integration.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AgentReply is the completion payload returned by the remote agent. Only the
// fields the relay reads are decoded; everything else is ignored.
type AgentReply struct {
	ID      string        `json:"id,omitempty"`
	Object  string        `json:"object,omitempty"`
	Created int64         `json:"created,omitempty"`
	Model   string        `json:"model,omitempty"`
	Choices []AgentChoice `json:"choices,omitempty"`
}

type AgentChoice struct {
	Index        int          `json:"index"`
	Message      *ChatMessage `json:"message,omitempty"`
	FinishReason string       `json:"finish_reason,omitempty"`
}

// Text returns the first choice's message content. The second result is false
// when the payload has no choices, no message, or empty content.
func (r AgentReply) Text() (string, bool) {
	if len(r.Choices) == 0 || r.Choices[0].Message == nil {
		return "", false
	}
	content := r.Choices[0].Message.Content
	if content == "" {
		return "", false
	}
	return content, true
}
