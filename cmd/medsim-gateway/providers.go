package main

import (
	"fmt"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/simbridge/medsim/internal/config"
	"github.com/simbridge/medsim/pkg/provider/llm"
	"github.com/simbridge/medsim/pkg/provider/llm/anyllm"
	"github.com/simbridge/medsim/pkg/provider/llm/openai"
	"github.com/simbridge/medsim/pkg/provider/realtime"
	realtimegemini "github.com/simbridge/medsim/pkg/provider/realtime/gemini"
	realtimeopenai "github.com/simbridge/medsim/pkg/provider/realtime/openai"
	"github.com/simbridge/medsim/pkg/provider/stt"
	"github.com/simbridge/medsim/pkg/provider/stt/deepgram"
	"github.com/simbridge/medsim/pkg/provider/stt/whisper"
	"github.com/simbridge/medsim/pkg/provider/tts"
	"github.com/simbridge/medsim/pkg/provider/tts/coqui"
	"github.com/simbridge/medsim/pkg/provider/tts/elevenlabs"
)

// registerBuiltinProviders wires every adapter package this gateway ships
// against into reg, keyed by the provider name a config.yaml names under
// providers.<kind>.name. A name with no matching factory here simply fails
// to resolve at [config.Registry.Create*] time with
// [config.ErrProviderNotRegistered] — main treats that as fatal for any slot
// whose name is set; a slot left with an empty name is skipped.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterSTT("deepgram", func(e config.ProviderEntry) (stt.Provider, error) {
		opts := []deepgram.Option{}
		if e.Model != "" {
			opts = append(opts, deepgram.WithModel(e.Model))
		}
		return deepgram.New(e.APIKey, opts...)
	})
	reg.RegisterSTT("whisper", func(e config.ProviderEntry) (stt.Provider, error) {
		serverURL := e.BaseURL
		if serverURL == "" {
			return nil, fmt.Errorf("stt/whisper: base_url is required")
		}
		opts := []whisper.Option{}
		if e.Model != "" {
			opts = append(opts, whisper.WithModel(e.Model))
		}
		return whisper.New(serverURL, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(e config.ProviderEntry) (tts.Provider, error) {
		opts := []elevenlabs.Option{}
		if e.Model != "" {
			opts = append(opts, elevenlabs.WithModel(e.Model))
		}
		return elevenlabs.New(e.APIKey, opts...)
	})
	reg.RegisterTTS("coqui", func(e config.ProviderEntry) (tts.Provider, error) {
		serverURL := e.BaseURL
		if serverURL == "" {
			return nil, fmt.Errorf("tts/coqui: base_url is required")
		}
		return coqui.New(serverURL)
	})

	reg.RegisterLLM("openai", func(e config.ProviderEntry) (llm.Provider, error) {
		opts := []openai.Option{}
		if e.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(e.BaseURL))
		}
		return openai.New(e.APIKey, e.Model, opts...)
	})
	reg.RegisterLLM("anthropic", func(e config.ProviderEntry) (llm.Provider, error) {
		return anyllm.NewAnthropic(e.Model, anyllmlib.WithAPIKey(e.APIKey))
	})
	reg.RegisterLLM("anyllm", func(e config.ProviderEntry) (llm.Provider, error) {
		backend, _ := e.Options["provider"].(string)
		if backend == "" {
			return nil, fmt.Errorf("llm/anyllm: options.provider is required")
		}
		return anyllm.New(backend, e.Model, anyllmlib.WithAPIKey(e.APIKey))
	})

	reg.RegisterRealtime("openai-realtime", func(e config.ProviderEntry) (realtime.Provider, error) {
		opts := []realtimeopenai.Option{}
		if e.Model != "" {
			opts = append(opts, realtimeopenai.WithModel(e.Model))
		}
		if e.BaseURL != "" {
			opts = append(opts, realtimeopenai.WithBaseURL(e.BaseURL))
		}
		return realtimeopenai.New(e.APIKey, opts...), nil
	})
	reg.RegisterRealtime("gemini-realtime", func(e config.ProviderEntry) (realtime.Provider, error) {
		opts := []realtimegemini.Option{}
		if e.Model != "" {
			opts = append(opts, realtimegemini.WithModel(e.Model))
		}
		if e.BaseURL != "" {
			opts = append(opts, realtimegemini.WithBaseURL(e.BaseURL))
		}
		return realtimegemini.New(e.APIKey, opts...), nil
	})
}
