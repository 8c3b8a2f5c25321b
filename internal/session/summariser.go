// Package session implements connection fan-out, the speaking floor, and
// the supporting conversation-memory machinery a long-running simulation
// session needs: context window management ([ContextManager]), transcript
// summarisation ([Summariser], [LLMSummariser]), periodic consolidation to
// the persistence adapter ([Consolidator]), and graceful degradation when
// that store is unavailable ([PersistenceGuard]).
//
// All exported types are safe for concurrent use.
package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/simbridge/medsim/pkg/provider/llm"
	"github.com/simbridge/medsim/pkg/types"
)

// summarisationPrompt is the system prompt sent to the LLM when summarising
// a segment of a simulation's transcript.
const summarisationPrompt = `Summarise the following transcript segment from a medical simulation session.
Preserve: vitals and exam findings revealed, orders placed and their results, treatments administered with
doses, rhythm or stage changes, and any safety-relevant statements made by the participant.
Be concise but preserve every clinically significant detail.`

// Summariser produces a concise summary of a conversation segment.
type Summariser interface {
	// Summarise takes a slice of messages and returns a condensed summary string.
	Summarise(ctx context.Context, messages []llm.Message) (string, error)
}

// LLMSummariser uses an LLM provider to summarise conversations.
type LLMSummariser struct {
	llm llm.Provider
}

// NewLLMSummariser creates a new [LLMSummariser] backed by the given provider.
func NewLLMSummariser(provider llm.Provider) *LLMSummariser {
	return &LLMSummariser{llm: provider}
}

// Summarise sends messages to the LLM with a summarisation prompt and returns
// the summary text. It formats the conversation history into a single user
// message and asks the model to produce a concise summary.
func (s *LLMSummariser) Summarise(ctx context.Context, messages []llm.Message) (string, error) {
	if len(messages) == 0 {
		return "", nil
	}

	// Format messages into a readable transcript for the summariser.
	var sb strings.Builder
	for _, m := range messages {
		speaker := m.Role
		if m.Name != "" {
			speaker = m.Name
		}
		fmt.Fprintf(&sb, "[%s]: %s\n", speaker, m.Content)
	}

	resp, err := s.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: summarisationPrompt,
		Messages: []types.Message{
			{
				Role:    "user",
				Content: sb.String(),
			},
		},
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("summarise: %w", err)
	}

	return resp.Content, nil
}
