package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sync"
)

// ElevenLabsClient streams synthesized speech over the ElevenLabs HTTP
// streaming endpoint. The voice can be swapped mid-call when the persona
// changes.
type ElevenLabsClient struct {
	APIKey string

	mu      sync.RWMutex
	voiceID string
}

func NewElevenLabsClient(apiKey, voiceID string) *ElevenLabsClient {
	return &ElevenLabsClient{APIKey: apiKey, voiceID: voiceID}
}

// SetVoice switches the synthesis voice. Takes effect on the next utterance.
func (e *ElevenLabsClient) SetVoice(voiceID string) {
	if voiceID == "" {
		return
	}
	e.mu.Lock()
	e.voiceID = voiceID
	e.mu.Unlock()
	log.Printf("elevenlabs: voice switched to %s", voiceID)
}

func (e *ElevenLabsClient) currentVoice() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.voiceID
}

// StreamULaw8k streams 8kHz mu-law audio for the given text, ready to be
// framed into Twilio media messages.
func (e *ElevenLabsClient) StreamULaw8k(ctx context.Context, text string) (<-chan []byte, <-chan error) {
	audioCh := make(chan []byte, 4096)
	errCh := make(chan error, 1)
	go func() {
		defer close(audioCh)
		defer close(errCh)
		voiceID := e.currentVoice()
		if e.APIKey == "" || voiceID == "" {
			errCh <- fmt.Errorf("elevenlabs: api key or voice id missing")
			return
		}
		if text == "" {
			return
		}
		if err := httpStream(ctx, e.APIKey, voiceID, text, audioCh); err != nil {
			errCh <- err
			return
		}
	}()
	return audioCh, errCh
}

// httpStream streams mu-law audio via the HTTP streaming endpoint.
func httpStream(ctx context.Context, apiKey, voiceID, text string, audioCh chan<- []byte) error {
	u := url.URL{
		Scheme: "https",
		Host:   "api.elevenlabs.io",
		Path:   "/v1/text-to-speech/" + voiceID + "/stream",
	}
	q := u.Query()
	q.Set("model_id", "eleven_flash_v2_5")
	q.Set("output_format", "ulaw_8000")
	// lower streaming latency target (0..4 where lower is lower latency, may trade quality)
	q.Set("optimize_streaming_latency", "2")
	u.RawQuery = q.Encode()

	body := map[string]any{
		"model_id": "eleven_flash_v2_5",
		"text":     text,
		"voice_settings": map[string]any{
			"stability":         0.4,
			"similarity_boost":  0.7,
			"style":             0.0,
			"use_speaker_boost": true,
		},
		// use shorter chunks to reduce tail cutoff; server still streams
		"generation_config": map[string]any{
			"chunk_length_schedule": []int{80, 120, 160, 200},
		},
	}
	buf, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("xi-api-key", apiKey)
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 0}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("elevenlabs http stream error: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("elevenlabs http status=%d body=%s", resp.StatusCode, string(b))
	}

	bufChunk := make([]byte, 4096)
	logged := false
	for {
		n, rerr := resp.Body.Read(bufChunk)
		if n > 0 {
			if !logged {
				log.Printf("elevenlabs http: receiving audio stream (%d bytes first chunk)", n)
				logged = true
			}
			out := make([]byte, n)
			copy(out, bufChunk[:n])
			select {
			case audioCh <- out:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				return nil
			}
			return fmt.Errorf("elevenlabs http read error: %w", rerr)
		}
	}
}
