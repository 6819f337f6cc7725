package call

import (
	"context"
	"time"

	"github.com/chadiek/preapproval-line/internal/convo"
)

// Transcriber is the minimal interface for realtime STT. It accepts 8kHz
// mu-law buffers as received from the telephone leg and emits live and
// finalized text.
type Transcriber interface {
	Connect() error
	SendULaw8k(audio []byte) error
	Transcripts() <-chan string
	Finalize() <-chan string
	// RecentlyDetectedVoice returns true if voice energy was seen within the given window.
	RecentlyDetectedVoice(window time.Duration) bool
	Close() error
}

// Responder generates the next assistant reply from the conversation so far.
type Responder interface {
	Respond(ctx context.Context, turns []convo.Turn) (string, error)
}

// Speaker streams 8kHz mu-law audio for the given text and supports swapping
// the active voice between utterances.
type Speaker interface {
	StreamULaw8k(ctx context.Context, text string) (<-chan []byte, <-chan error)
	SetVoice(voiceID string)
}

// Archiver persists the finished call transcript.
type Archiver interface {
	SaveTranscript(callSID string, turns []convo.Turn) error
}

// Envelope is a Twilio media stream message. Only the fields this server
// reads are declared.
type Envelope struct {
	Event string `json:"event"`
	Media struct {
		Payload string `json:"payload"`
	} `json:"media"`
	Start struct {
		StreamSid string `json:"streamSid"`
		CallSid   string `json:"callSid"`
	} `json:"start"`
}
