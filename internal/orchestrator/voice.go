package orchestrator

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"

	"github.com/simbridge/medsim/internal/costctl"
	"github.com/simbridge/medsim/internal/handlers"
	"github.com/simbridge/medsim/internal/validate"
	"github.com/simbridge/medsim/pkg/provider/llm"
	"github.com/simbridge/medsim/pkg/provider/realtime"
	"github.com/simbridge/medsim/pkg/provider/stt"
	"github.com/simbridge/medsim/pkg/types"
)

// patientInstructions is the system-level persona handed to the realtime
// provider for the simulated patient voice, the one character driven by a
// live generative model rather than a scripted template.
const patientInstructions = "You are a pediatric simulation patient. Stay in character, respond only to what a real patient would say or do, and never break the simulation to discuss the exercise itself."

func (o *Orchestrator) handleStartSpeaking(sessionID, userID string) {
	grant := o.manager.RequestFloor(sessionID, userID)
	msg := map[string]any{"type": "floor", "granted": grant.Granted, "userId": userID}
	if !grant.Granted {
		msg["heldBy"] = grant.Previous
	}
	o.manager.BroadcastToSession(sessionID, msg)
}

func (o *Orchestrator) handleStopSpeaking(ctx context.Context, sessionID, userID string) {
	released := o.manager.ReleaseFloor(sessionID, userID)
	if !released {
		return
	}
	o.manager.BroadcastToSession(sessionID, map[string]any{"type": "floor", "granted": false, "userId": ""})

	r := o.runtimeFor(ctx, sessionID, "")
	r.voiceMu.Lock()
	realtimeSess := r.realtime
	r.voiceMu.Unlock()
	if realtimeSess != nil {
		if err := realtimeSess.CommitAudio(ctx); err != nil {
			slog.Warn("orchestrator: realtime commit failed", "session_id", sessionID, "error", err)
		}
	}
}

// handleDoctorAudio forwards one chunk of participant audio down whichever
// voice path is active for the session: the low-latency realtime session
// for the patient character when one is configured and the session isn't
// in cost-controller fallback, otherwise the STT→LLM→TTS pipeline built
// from the resilience-wrapped fallback providers.
func (o *Orchestrator) handleDoctorAudio(ctx context.Context, sessionID string, f validate.DoctorAudioFrame) {
	audio, err := base64.StdEncoding.DecodeString(f.AudioBase64)
	if err != nil {
		slog.Warn("orchestrator: malformed doctor_audio base64", "session_id", sessionID, "error", err)
		return
	}

	r := o.runtimeFor(ctx, sessionID, "")
	r.voiceMu.Lock()
	defer r.voiceMu.Unlock()

	if r.aiPaused {
		return
	}

	useRealtime := o.cfg.Realtime != nil && !r.cost.Fallback()

	if useRealtime {
		if r.realtime == nil {
			sess, err := o.connectRealtime(ctx, r)
			if err != nil {
				slog.Warn("orchestrator: realtime connect failed, falling back", "session_id", sessionID, "error", err)
				r.cost.SetFallback(true)
			} else {
				r.realtime = sess
			}
		}
		if r.realtime != nil {
			if err := r.realtime.SendAudioChunk(ctx, audio); err != nil {
				slog.Warn("orchestrator: realtime send failed, falling back", "session_id", sessionID, "error", err)
				r.cost.SetFallback(true)
				r.realtime = nil
			} else {
				return
			}
		}
	}

	o.sendFallbackAudio(ctx, r, audio)
}

// connectRealtime opens the patient's full-duplex session.
func (o *Orchestrator) connectRealtime(ctx context.Context, r *Runtime) (realtime.Session, error) {
	voice := o.cfg.VoiceProfiles[handlers.CharacterPatient]
	return o.cfg.Realtime.Connect(ctx, realtime.SessionConfig{
		Voice:        voice,
		Instructions: patientInstructions,
		Callbacks: realtime.Callbacks{
			OnAudioOut: func(chunk []byte) {
				o.manager.BroadcastToSession(r.SessionID, map[string]any{
					"type":      "character_audio",
					"character": string(handlers.CharacterPatient),
					"audio":     base64.StdEncoding.EncodeToString(chunk),
				})
			},
			OnTranscriptDelta: func(entry types.TranscriptEntry) {
				r.voiceMu.Lock()
				r.transcript = append(r.transcript, transcriptTurn{speaker: entry.SpeakerID, text: entry.Text, ts: entry.Timestamp})
				r.voiceMu.Unlock()
			},
			OnUsage: func(u realtime.Usage) {
				r.cost.AddUsage(costctl.Usage{InputTokens: u.InputTokens, OutputTokens: u.OutputTokens, AudioSeconds: u.AudioSeconds})
			},
			OnToolIntent: func(intent realtime.ToolIntent) {
				o.handleRealtimeToolIntent(ctx, r, intent)
			},
			OnDisconnect: func(err error) {
				r.voiceMu.Lock()
				r.realtime = nil
				r.voiceMu.Unlock()
				if err != nil {
					slog.Warn("orchestrator: realtime session disconnected", "session_id", r.SessionID, "error", err)
				}
			},
		},
	})
}

// handleRealtimeToolIntent routes a model-proposed tool call through the
// same commandType dispatch table a voice_command frame uses, then reports
// the outcome back to the realtime session so generation can resume.
func (o *Orchestrator) handleRealtimeToolIntent(ctx context.Context, r *Runtime, intent realtime.ToolIntent) {
	frame := validate.VoiceCommandFrame{
		SessionID:   r.SessionID,
		CommandType: intent.Name,
		Payload:     []byte(intent.Arguments),
	}

	var outcome handlers.Outcome
	lockErr := r.lock.WithStateLock(ctx, intent.Name, func() error {
		outcome = runHandler(r, frame, o.now())
		return nil
	})

	result := map[string]any{"accepted": lockErr == nil && outcome.Accepted}
	if lockErr != nil {
		result["reason"] = lockErr.Error()
	} else if !outcome.Accepted {
		result["reason"] = outcome.Reason
	} else {
		r.persist(ctx)
		broadcastSimState(o.manager, r)
	}
	data, _ := json.Marshal(result)

	r.voiceMu.Lock()
	sess := r.realtime
	r.voiceMu.Unlock()
	if sess != nil {
		if err := sess.SubmitToolResult(ctx, intent.CallID, string(data)); err != nil {
			slog.Warn("orchestrator: submitting tool result failed", "session_id", r.SessionID, "error", err)
		}
	}
}

// sendFallbackAudio pushes audio into the session's STT stream, opening one
// lazily on first use and starting a single long-lived goroutine to drain
// its final transcripts into the LLM/TTS reply pipeline.
func (o *Orchestrator) sendFallbackAudio(ctx context.Context, r *Runtime, audio []byte) {
	if r.sttSession == nil {
		sess, err := o.cfg.STT.StartStream(ctx, stt.StreamConfig{SampleRate: 16000, Channels: 1})
		if err != nil {
			slog.Warn("orchestrator: stt stream start failed", "session_id", r.SessionID, "error", err)
			return
		}
		r.sttSession = sess
		go o.drainFinals(r, sess)
	}
	if err := r.sttSession.SendAudio(audio); err != nil {
		slog.Warn("orchestrator: stt send failed", "session_id", r.SessionID, "error", err)
	}
}

// drainFinals runs for the lifetime of sess, turning each authoritative
// transcript into a patient reply. It exits when sess's Finals channel
// closes (session end or Close).
func (o *Orchestrator) drainFinals(r *Runtime, sess stt.SessionHandle) {
	for t := range sess.Finals() {
		if t.Text == "" {
			continue
		}
		r.voiceMu.Lock()
		r.transcript = append(r.transcript, transcriptTurn{speaker: "participant", text: t.Text})
		r.voiceMu.Unlock()
		o.replyFallback(context.Background(), r, t.Text)
	}
}

// replyFallback generates and synthesizes the patient's reply through the
// LLM/TTS fallback providers, used whenever the realtime path is
// unavailable or the session has degraded to it under budget pressure.
func (o *Orchestrator) replyFallback(ctx context.Context, r *Runtime, utterance string) {
	resp, err := o.cfg.LLM.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: patientInstructions,
		Messages:     []types.Message{{Role: "user", Content: utterance}},
	})
	if err != nil {
		slog.Warn("orchestrator: llm completion failed", "session_id", r.SessionID, "error", err)
		return
	}

	r.cost.AddUsage(costctl.Usage{InputTokens: resp.Usage.PromptTokens, OutputTokens: resp.Usage.CompletionTokens})

	r.voiceMu.Lock()
	r.transcript = append(r.transcript, transcriptTurn{speaker: string(handlers.CharacterPatient), text: resp.Content})
	r.voiceMu.Unlock()

	text := make(chan string, 1)
	text <- resp.Content
	close(text)

	voice := o.cfg.VoiceProfiles[handlers.CharacterPatient]
	audioCh, err := o.cfg.TTS.SynthesizeStream(ctx, text, voice)
	if err != nil {
		slog.Warn("orchestrator: tts synthesis failed", "session_id", r.SessionID, "error", err)
		return
	}
	for chunk := range audioCh {
		o.manager.BroadcastToSession(r.SessionID, map[string]any{
			"type":      "character_audio",
			"character": string(handlers.CharacterPatient),
			"audio":     base64.StdEncoding.EncodeToString(chunk),
		})
	}
}
