package audio

import "time"

// AudioFrame represents a single frame of audio data flowing through the pipeline.
// Frames are the atomic unit of audio transport — decoded from a doctor_audio
// base64 payload, resampled/channel-converted, and handed to STT or a
// full-duplex realtime adapter.
type AudioFrame struct {
	// PCM audio data. Sample rate and channel count are determined by the pipeline config.
	Data []byte

	// SampleRate in Hz (e.g., 48000 as captured in-browser, 16000 for STT).
	SampleRate int

	// Channels: 1 for mono (STT input), 2 for stereo (client playback).
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}
