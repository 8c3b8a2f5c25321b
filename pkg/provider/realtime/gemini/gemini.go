// Package gemini implements the realtime.Provider interface for Google's
// Gemini Live API: a bidirectional WebSocket session using the
// BidiGenerateContent protocol. Registered in the gateway as the
// "gemini-realtime" adapter.
package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/simbridge/medsim/pkg/provider/realtime"
	"github.com/simbridge/medsim/pkg/types"
)

var _ realtime.Provider = (*Provider)(nil)
var _ realtime.Session = (*session)(nil)

const (
	defaultModel   = "gemini-2.0-flash-live-001"
	defaultBaseURL = "wss://generativelanguage.googleapis.com/ws"

	keepaliveInterval = 20 * time.Second
	keepaliveTimeout  = 5 * time.Second
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the Gemini model used for sessions.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL overrides the base WebSocket URL. Used in tests to point at a
// local mock server.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// Provider implements realtime.Provider for Google's Gemini Live API.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
}

// New creates a Provider with the given API key and options.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{apiKey: apiKey, model: defaultModel, baseURL: defaultBaseURL}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Capabilities returns static metadata about the Gemini Live provider.
func (p *Provider) Capabilities() realtime.Capabilities {
	return realtime.Capabilities{
		ContextWindow:        1_000_000,
		MaxSessionDurationMs: 15 * 60 * 1000,
		Voices: []types.VoiceProfile{
			{ID: "Aoede", Name: "Aoede", Provider: "gemini"},
			{ID: "Charon", Name: "Charon", Provider: "gemini"},
			{ID: "Fenrir", Name: "Fenrir", Provider: "gemini"},
			{ID: "Kore", Name: "Kore", Provider: "gemini"},
			{ID: "Puck", Name: "Puck", Provider: "gemini"},
		},
	}
}

// Connect establishes a new Gemini Live session and sends the initial setup
// message. Events begin flowing to cfg.Callbacks once the receive loop
// starts.
func (p *Provider) Connect(ctx context.Context, cfg realtime.SessionConfig) (realtime.Session, error) {
	wsURL := fmt.Sprintf(
		"%s/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent?key=%s",
		p.baseURL, p.apiKey,
	)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{"Content-Type": []string{"application/json"}},
	})
	if err != nil {
		return nil, fmt.Errorf("realtime/gemini: dial: %w", err)
	}

	sessCtx, sessCancel := context.WithCancel(context.Background())
	sess := &session{
		conn: conn,
		cb:   cfg.Callbacks,
		done: make(chan struct{}),
		ctx:  sessCtx, cancel: sessCancel,
	}

	if err := sess.sendSetup(p.model, cfg); err != nil {
		sessCancel()
		conn.Close(websocket.StatusInternalError, "setup failed")
		return nil, fmt.Errorf("realtime/gemini: setup: %w", err)
	}

	go sess.receiveLoop()
	go sess.keepaliveLoop()

	return sess, nil
}

// ── Protocol message types (outgoing) ──────────────────────────────────────

type setupMessage struct {
	Setup setupConfig `json:"setup"`
}

type setupConfig struct {
	Model             string             `json:"model"`
	GenerationConfig  generationConfig   `json:"generationConfig"`
	SystemInstruction *systemInstruction `json:"systemInstruction,omitempty"`
	Tools             []geminiTool       `json:"tools,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string      `json:"responseModalities"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type systemInstruction struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiTool struct {
	FunctionDeclarations []functionDeclaration `json:"functionDeclarations,omitempty"`
}

type functionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type realtimeInputMessage struct {
	RealtimeInput realtimeInput `json:"realtimeInput"`
}

type realtimeInput struct {
	MediaChunks []mediaChunk `json:"mediaChunks"`
}

type mediaChunk struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type toolResponseMessage struct {
	ToolResponse toolResponse `json:"toolResponse"`
}

type toolResponse struct {
	FunctionResponses []functionResponse `json:"functionResponses"`
}

type functionResponse struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// ── Protocol message types (incoming) ──────────────────────────────────────

type serverMessage struct {
	SetupComplete *json.RawMessage `json:"setupComplete,omitempty"`
	ServerContent *serverContent   `json:"serverContent,omitempty"`
	ToolCall      *toolCallMsg     `json:"toolCall,omitempty"`
	Error         *geminiError     `json:"error,omitempty"`
	UsageMetadata *usageMetadata   `json:"usageMetadata,omitempty"`
}

type usageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

type serverContent struct {
	ModelTurn           *modelTurn     `json:"modelTurn,omitempty"`
	InputTranscription  *transcription `json:"inputTranscription,omitempty"`
	OutputTranscription *transcription `json:"outputTranscription,omitempty"`
}

type modelTurn struct {
	Parts []part `json:"parts"`
}

type transcription struct {
	Text string `json:"text"`
}

type toolCallMsg struct {
	FunctionCalls []functionCall `json:"functionCalls"`
}

type functionCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// ── session ─────────────────────────────────────────────────────────────────

type session struct {
	conn *websocket.Conn
	cb   realtime.Callbacks

	mu     sync.Mutex
	closed bool
	done   chan struct{}

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func (s *session) sendSetup(model string, cfg realtime.SessionConfig) error {
	msg := setupMessage{
		Setup: setupConfig{
			Model:            fmt.Sprintf("models/%s", model),
			GenerationConfig: generationConfig{ResponseModalities: []string{"audio"}},
		},
	}
	if cfg.Instructions != "" {
		msg.Setup.SystemInstruction = &systemInstruction{Parts: []part{{Text: cfg.Instructions}}}
	}
	if cfg.Voice.ID != "" {
		msg.Setup.GenerationConfig.SpeechConfig = &speechConfig{
			VoiceConfig: voiceConfig{PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: cfg.Voice.ID}},
		}
	}
	if len(cfg.Tools) > 0 {
		decls := make([]functionDeclaration, len(cfg.Tools))
		for i, t := range cfg.Tools {
			decls[i] = functionDeclaration{Name: t.Name, Description: t.Description, Parameters: t.Parameters}
		}
		msg.Setup.Tools = []geminiTool{{FunctionDeclarations: decls}}
	}
	return s.writeJSON(msg)
}

func (s *session) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("realtime/gemini: marshal: %w", err)
	}
	return s.conn.Write(s.ctx, websocket.MessageText, data)
}

func (s *session) receiveLoop() {
	var endErr error
	defer func() { s.finish(endErr) }()

	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			if s.ctx.Err() == nil {
				endErr = err
			}
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		s.handleServerMessage(&msg)
	}
}

func (s *session) handleServerMessage(msg *serverMessage) {
	if msg.ServerContent != nil {
		s.handleServerContent(msg.ServerContent)
	}
	if msg.ToolCall != nil {
		s.handleToolCall(msg.ToolCall)
	}
	if msg.UsageMetadata != nil && s.cb.OnUsage != nil {
		s.cb.OnUsage(realtime.Usage{
			InputTokens:  msg.UsageMetadata.PromptTokenCount,
			OutputTokens: msg.UsageMetadata.CandidatesTokenCount,
		})
	}
}

func (s *session) handleServerContent(sc *serverContent) {
	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			if p.InlineData != nil && s.cb.OnAudioOut != nil {
				audioData, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
				if err == nil && len(audioData) > 0 {
					s.cb.OnAudioOut(audioData)
				}
			}
			if p.Text != "" && s.cb.OnTranscriptDelta != nil {
				s.cb.OnTranscriptDelta(types.TranscriptEntry{
					SpeakerName: "character", Text: p.Text, IsCharacter: true, Timestamp: time.Now(),
				})
			}
		}
	}
	if sc.InputTranscription != nil && sc.InputTranscription.Text != "" && s.cb.OnTranscriptDelta != nil {
		s.cb.OnTranscriptDelta(types.TranscriptEntry{
			SpeakerName: "participant", Text: sc.InputTranscription.Text, Timestamp: time.Now(),
		})
	}
	if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" && s.cb.OnTranscriptDelta != nil {
		s.cb.OnTranscriptDelta(types.TranscriptEntry{
			SpeakerName: "character", Text: sc.OutputTranscription.Text, IsCharacter: true, Timestamp: time.Now(),
		})
	}
}

func (s *session) handleToolCall(tc *toolCallMsg) {
	if s.cb.OnToolIntent == nil {
		return
	}
	for _, fc := range tc.FunctionCalls {
		argsJSON, err := json.Marshal(fc.Args)
		if err != nil {
			continue
		}
		s.cb.OnToolIntent(realtime.ToolIntent{Name: fc.Name, Arguments: string(argsJSON), CallID: fc.ID})
	}
}

func (s *session) keepaliveLoop() {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(s.ctx, keepaliveTimeout)
			_ = s.conn.Ping(pingCtx)
			cancel()
		}
	}
}

func (s *session) finish(err error) {
	s.closeOnce.Do(func() {
		if s.cb.OnDisconnect != nil {
			s.cb.OnDisconnect(err)
		}
	})
}

// ── Session methods ──────────────────────────────────────────────────────────

// SendAudioChunk delivers a raw PCM audio chunk (16 kHz, s16le, mono).
func (s *session) SendAudioChunk(_ context.Context, chunk []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("realtime/gemini: session closed")
	}
	s.mu.Unlock()

	encoded := base64.StdEncoding.EncodeToString(chunk)
	return s.writeJSON(realtimeInputMessage{RealtimeInput: realtimeInput{
		MediaChunks: []mediaChunk{{MIMEType: "audio/pcm;rate=16000", Data: encoded}},
	}})
}

// CommitAudio is a no-op: Gemini Live infers end-of-speech server-side.
func (s *session) CommitAudio(_ context.Context) error { return nil }

// CancelResponse is not supported by the Gemini Live protocol.
func (s *session) CancelResponse(_ context.Context) error {
	return fmt.Errorf("realtime/gemini: response cancellation not supported")
}

func (s *session) SubmitToolResult(_ context.Context, callID, result string) error {
	var respObj map[string]any
	if err := json.Unmarshal([]byte(result), &respObj); err != nil {
		respObj = map[string]any{"output": result}
	}
	return s.writeJSON(toolResponseMessage{
		ToolResponse: toolResponse{FunctionResponses: []functionResponse{{ID: callID, Response: respObj}}},
	})
}

// UpdateInstructions is not supported by the Gemini Live protocol; tools and
// instructions are fixed at session setup.
func (s *session) UpdateInstructions(_ context.Context, _ string) error {
	return fmt.Errorf("realtime/gemini: mid-session instruction updates are not supported")
}

// Close terminates the session and releases all resources. Idempotent.
func (s *session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	close(s.done)
	s.conn.Close(websocket.StatusNormalClosure, "session closed")
	s.finish(nil)
	return nil
}
