// Package mock provides test doubles for the realtime package interfaces.
package mock

import (
	"context"
	"sync"

	"github.com/simbridge/medsim/pkg/provider/realtime"
)

// ConnectCall records a single invocation of Provider.Connect.
type ConnectCall struct {
	Ctx context.Context
	Cfg realtime.SessionConfig
}

// Provider is a mock implementation of realtime.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is returned by Connect. If nil, Connect returns a new default
	// Session.
	Session realtime.Session

	// ConnectErr, if non-nil, is returned as the error from Connect.
	ConnectErr error

	// ProviderCapabilities is returned by Capabilities.
	ProviderCapabilities realtime.Capabilities

	// ConnectCalls records every call to Connect in order.
	ConnectCalls []ConnectCall
}

func (p *Provider) Connect(ctx context.Context, cfg realtime.SessionConfig) (realtime.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{Ctx: ctx, Cfg: cfg})
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	if p.Session != nil {
		return p.Session, nil
	}
	return &Session{Callbacks: cfg.Callbacks}, nil
}

func (p *Provider) Capabilities() realtime.Capabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ProviderCapabilities
}

var _ realtime.Provider = (*Provider)(nil)

// Session is a mock implementation of realtime.Session. Tests can call the
// Callbacks fields directly to simulate provider-originated events.
type Session struct {
	mu sync.Mutex

	Callbacks realtime.Callbacks

	SendAudioChunkErr    error
	CommitAudioErr       error
	CancelResponseErr    error
	SubmitToolResultErr  error
	UpdateInstructionsErr error
	CloseErr             error

	SentChunks        [][]byte
	CommitCallCount   int
	CancelCallCount   int
	ToolResults       []string
	Instructions      []string
	CloseCallCount    int
}

func (s *Session) SendAudioChunk(_ context.Context, chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.SentChunks = append(s.SentChunks, cp)
	return s.SendAudioChunkErr
}

func (s *Session) CommitAudio(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CommitCallCount++
	return s.CommitAudioErr
}

func (s *Session) CancelResponse(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CancelCallCount++
	return s.CancelResponseErr
}

func (s *Session) SubmitToolResult(_ context.Context, _ string, result string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ToolResults = append(s.ToolResults, result)
	return s.SubmitToolResultErr
}

func (s *Session) UpdateInstructions(_ context.Context, instructions string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Instructions = append(s.Instructions, instructions)
	return s.UpdateInstructionsErr
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return s.CloseErr
}

var _ realtime.Session = (*Session)(nil)
