package stt

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// STABILIZATION_GRACE waits a little after crossing the silence threshold to
// absorb any late transcript updates from the ASR before finalizing.
const STABILIZATION_GRACE = 250 * time.Millisecond

// AssemblyAIService is the alternative live transcription backend, selected
// with STT_PROVIDER=assemblyai. Unlike Deepgram's per-utterance finals,
// AssemblyAI streams a growing full-turn transcript, so end-of-utterance
// detection emits only the delta since the last committed text.
type AssemblyAIService struct {
	apiKey      string
	conn        *websocket.Conn
	transcripts chan string
	finalizeCh  chan string
	audioData   chan []byte
	stopCh      chan struct{}
	mu          sync.RWMutex
	connected   bool

	// utterance accumulation
	accMu                   sync.Mutex
	latestFullTranscript    string
	committedFullTranscript string
	lastUpdateTime          time.Time
	silenceTimer            *time.Timer
	lastVoiceTime           time.Time
}

type aaiBeginMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	ExpiresAt int64  `json:"expires_at"`
}

type aaiTurnMessage struct {
	Type          string `json:"type"`
	Transcript    string `json:"transcript"`
	TurnFormatted bool   `json:"turn_is_formatted"`
}

type aaiTerminationMessage struct {
	Type                   string  `json:"type"`
	AudioDurationSeconds   float64 `json:"audio_duration_seconds"`
	SessionDurationSeconds float64 `json:"session_duration_seconds"`
}

type aaiErrorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// NewAssemblyAIService creates a live transcription service for one call.
func NewAssemblyAIService(apiKey string) *AssemblyAIService {
	return &AssemblyAIService{
		apiKey:      apiKey,
		transcripts: make(chan string, 100),
		finalizeCh:  make(chan string, 10),
		audioData:   make(chan []byte, 1000),
		stopCh:      make(chan struct{}),
	}
}

// Transcripts returns the channel of running partial transcripts.
func (s *AssemblyAIService) Transcripts() <-chan string { return s.transcripts }

// Finalize returns a channel signaling end-of-utterance with the delta text.
func (s *AssemblyAIService) Finalize() <-chan string { return s.finalizeCh }

// Connect establishes the streaming WebSocket connection.
func (s *AssemblyAIService) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return nil
	}
	if s.apiKey == "" {
		return fmt.Errorf("AssemblyAI API key is empty")
	}

	params := url.Values{}
	params.Set("sample_rate", "8000")
	params.Set("encoding", "pcm_mulaw")
	params.Set("format_turns", "false")

	wsURL := fmt.Sprintf("wss://streaming.assemblyai.com/v3/ws?%s", params.Encode())
	headers := map[string][]string{
		"Authorization": {s.apiKey},
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, resp, err := dialer.Dial(wsURL, headers)
	if err != nil {
		if resp != nil {
			log.Printf("assemblyai connection failed with status: %d", resp.StatusCode)
		}
		return fmt.Errorf("failed to connect to AssemblyAI: %w", err)
	}

	s.conn = conn
	s.connected = true
	s.lastUpdateTime = time.Now()
	s.lastVoiceTime = time.Now()

	go s.handleMessages()
	go s.sendAudioData()

	log.Println("connected to AssemblyAI live transcription")
	return nil
}

// SendULaw8k queues 8kHz mu-law caller audio for transcription.
func (s *AssemblyAIService) SendULaw8k(audio []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.connected {
		return fmt.Errorf("not connected to AssemblyAI")
	}
	s.detectVoiceActivity(audio)
	select {
	case s.audioData <- audio:
		return nil
	default:
		log.Println("audio buffer full, dropping packet")
		return nil
	}
}

func (s *AssemblyAIService) detectVoiceActivity(ulaw []byte) {
	const minSamples = 80 // 10ms at 8kHz
	if len(ulaw) < minSamples {
		return
	}
	step := 1
	if len(ulaw) > 1600 {
		step = 2
	}
	var sumSquares float64
	count := 0
	for i := 0; i < len(ulaw); i += step {
		v := float64(ulawToLinear(ulaw[i]))
		sumSquares += v * v
		count++
	}
	if count == 0 {
		return
	}
	rms := math.Sqrt(sumSquares / float64(count))
	const voiceRMS = 250.0
	if rms >= voiceRMS {
		s.accMu.Lock()
		s.lastVoiceTime = time.Now()
		s.accMu.Unlock()
	}
}

// RecentlyDetectedVoice reports whether non-silent voice energy was observed
// within the given window.
func (s *AssemblyAIService) RecentlyDetectedVoice(window time.Duration) bool {
	s.accMu.Lock()
	last := s.lastVoiceTime
	s.accMu.Unlock()
	return time.Since(last) <= window
}

// Close terminates the stream and flushes any pending delta.
func (s *AssemblyAIService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil
	}
	close(s.stopCh)
	s.accMu.Lock()
	if s.silenceTimer != nil {
		_ = s.silenceTimer.Stop()
		s.silenceTimer = nil
	}
	s.accMu.Unlock()
	if s.conn != nil {
		_ = s.conn.WriteJSON(map[string]string{"type": "Terminate"})
		_ = s.conn.Close()
	}
	s.connected = false
	s.conn = nil
	// The channels stay open: a silence timer callback may still be
	// mid-flight, and its send races a close. stopCh stops every reader
	// and writer instead.
	s.flushPendingDelta()
	log.Println("AssemblyAI connection closed")
	return nil
}

func (s *AssemblyAIService) handleMessages() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("recovered from panic in handleMessages: %v", r)
		}
	}()
	for {
		select {
		case <-s.stopCh:
			return
		default:
			s.mu.RLock()
			conn := s.conn
			s.mu.RUnlock()
			if conn == nil {
				return
			}
			_, message, err := conn.ReadMessage()
			if err != nil {
				log.Printf("error reading AssemblyAI message: %v", err)
				return
			}
			s.processMessage(message)
		}
	}
}

func (s *AssemblyAIService) processMessage(message []byte) {
	var base map[string]any
	if err := json.Unmarshal(message, &base); err != nil {
		log.Printf("error unmarshaling AssemblyAI message: %v", err)
		return
	}
	msgType, _ := base["type"].(string)
	switch msgType {
	case "Begin":
		var msg aaiBeginMessage
		if err := json.Unmarshal(message, &msg); err == nil {
			log.Printf("AssemblyAI session began: id=%s expires=%s", msg.ID, time.Unix(msg.ExpiresAt, 0).Format(time.RFC3339))
		}
	case "Turn":
		var msg aaiTurnMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("error unmarshaling Turn message: %v", err)
			return
		}
		if msg.Transcript == "" {
			return
		}
		select {
		case s.transcripts <- msg.Transcript:
		default:
		}
		s.accMu.Lock()
		s.latestFullTranscript = msg.Transcript
		s.lastUpdateTime = time.Now()
		if s.silenceTimer == nil {
			s.silenceTimer = time.AfterFunc(SILENCE_THRESHOLD, s.finalizeDueToSilence)
		} else {
			_ = s.silenceTimer.Stop()
			s.silenceTimer.Reset(SILENCE_THRESHOLD)
		}
		s.accMu.Unlock()
	case "Termination":
		var msg aaiTerminationMessage
		if err := json.Unmarshal(message, &msg); err == nil {
			log.Printf("AssemblyAI session terminated: audio=%.2fs session=%.2fs", msg.AudioDurationSeconds, msg.SessionDurationSeconds)
		}
		s.flushPendingDelta()
	case "Error":
		var msg aaiErrorMessage
		if err := json.Unmarshal(message, &msg); err == nil {
			log.Printf("AssemblyAI error: %s", msg.Error)
		}
	default:
		log.Printf("unknown AssemblyAI message type: %s", msgType)
	}
}

// finalizeDueToSilence runs after the inactivity window. It emits only the
// delta since the last committed transcript, if any.
func (s *AssemblyAIService) finalizeDueToSilence() {
	select {
	case <-s.stopCh:
		return
	default:
	}

	s.accMu.Lock()
	now := time.Now()
	threshold := SILENCE_THRESHOLD
	if isContinuationLikely(s.latestFullTranscript) {
		threshold += CONTINUATION_EXTENSION
	}
	sinceText := now.Sub(s.lastUpdateTime)
	sinceVoice := now.Sub(s.lastVoiceTime)
	if sinceText < threshold || sinceVoice < threshold {
		// not enough inactivity, reschedule for the remaining window
		wait := threshold
		if rem := threshold - sinceText; sinceText < threshold && rem < wait {
			wait = rem
		}
		if rem := threshold - sinceVoice; sinceVoice < threshold && rem < wait {
			wait = rem
		}
		if wait < 10*time.Millisecond {
			wait = 10 * time.Millisecond
		}
		if s.silenceTimer == nil {
			s.silenceTimer = time.AfterFunc(wait, s.finalizeDueToSilence)
		} else {
			_ = s.silenceTimer.Stop()
			s.silenceTimer.Reset(wait)
		}
		s.accMu.Unlock()
		return
	}

	lastUpdateAt := s.lastUpdateTime
	s.accMu.Unlock()

	// grace period to catch late transcript updates
	time.Sleep(STABILIZATION_GRACE)

	s.accMu.Lock()
	if s.lastUpdateTime.After(lastUpdateAt) {
		// a late update arrived during grace, push the timer forward
		threshold2 := SILENCE_THRESHOLD
		if isContinuationLikely(s.latestFullTranscript) {
			threshold2 += CONTINUATION_EXTENSION
		}
		wait := threshold2
		if rem := threshold2 - time.Since(s.lastUpdateTime); rem > 10*time.Millisecond && rem < wait {
			wait = rem
		}
		if s.silenceTimer == nil {
			s.silenceTimer = time.AfterFunc(wait, s.finalizeDueToSilence)
		} else {
			_ = s.silenceTimer.Stop()
			s.silenceTimer.Reset(wait)
		}
		s.accMu.Unlock()
		return
	}
	delta := s.commitDeltaLocked()
	s.accMu.Unlock()

	if delta == "" {
		return
	}
	select {
	case <-s.stopCh:
	case s.finalizeCh <- delta:
	}
}

// commitDeltaLocked advances the committed transcript and returns the new
// text since the previous commit. Callers must hold accMu.
func (s *AssemblyAIService) commitDeltaLocked() string {
	latest := s.latestFullTranscript
	base := s.committedFullTranscript
	delta := strings.TrimSpace(strings.TrimPrefix(latest, base))
	if delta == "" && base != "" {
		if idx := strings.LastIndex(latest, base); idx >= 0 && idx+len(base) <= len(latest) {
			delta = strings.TrimSpace(latest[idx+len(base):])
		}
	}
	s.committedFullTranscript = latest
	return delta
}

func (s *AssemblyAIService) flushPendingDelta() {
	s.accMu.Lock()
	delta := s.commitDeltaLocked()
	s.accMu.Unlock()
	if delta == "" {
		return
	}
	select {
	case s.finalizeCh <- delta:
	case <-time.After(200 * time.Millisecond):
		log.Printf("assemblyai flush: timed out delivering final delta")
	}
}

func (s *AssemblyAIService) sendAudioData() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("recovered from panic in sendAudioData: %v", r)
		}
	}()
	for {
		select {
		case <-s.stopCh:
			return
		case audio, ok := <-s.audioData:
			if !ok {
				return
			}
			s.mu.RLock()
			conn := s.conn
			s.mu.RUnlock()
			if conn != nil {
				if err := conn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
					log.Printf("error sending audio data: %v", err)
					return
				}
			}
		}
	}
}
