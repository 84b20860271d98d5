// Package models contains the shared wire and domain value types used
// across the assistant's classification, voting, session, and orchestration
// components.
package models

import (
	"strings"
	"time"
)

// Utterance is the immutable, per-turn natural-language input to the
// classification pipeline.
type Utterance struct {
	// Text is the raw user-provided text (already transcribed, if the
	// source was audio).
	Text string `json:"text"`

	// ContextMetadata carries caller-supplied free-form context (device,
	// locale, client version, ...).
	ContextMetadata map[string]any `json:"context_metadata,omitempty"`

	// Audio carries optional audio-derived context. Nil when the utterance
	// originated as text.
	Audio *AudioMetadata `json:"audio_metadata,omitempty"`

	// Timestamp is when the utterance was received.
	Timestamp time.Time `json:"timestamp"`
}

// AudioMetadata describes the audio channel an utterance was transcribed
// from. Transcription itself happens outside the core (spec.md §1).
type AudioMetadata struct {
	Location    string  `json:"location,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	DeviceID    string  `json:"device_id,omitempty"`
	SampleRate  int     `json:"sample_rate,omitempty"`
	Channels    int     `json:"channels,omitempty"`
	Confidence  float64 `json:"confidence,omitempty"`
}

// IsEmpty reports whether the utterance carries no usable text. Empty
// utterances are rejected by RagClassifier with a ValidationError.
func (u Utterance) IsEmpty() bool {
	return len(strings.TrimSpace(u.Text)) == 0
}
