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
	"unicode"

	"github.com/gorilla/websocket"
)

// SILENCE_THRESHOLD is the base inactivity window required before we consider
// an utterance complete when the provider never marks the speech final.
const SILENCE_THRESHOLD = 700 * time.Millisecond

// CONTINUATION_EXTENSION is added to the silence threshold when the last word
// suggests the caller is likely to continue the sentence (e.g. "and", "at").
// Callers spelling out an email pause mid-address constantly.
const CONTINUATION_EXTENSION = 1200 * time.Millisecond

// vocabularyHints biases recognition toward the words this intake flow
// actually hears: spelled-out email tokens and the form's field names.
var vocabularyHints = []string{
	"agilityfeat", "gmail", "zip code", "email", "dot com", "at",
	"loan", "pre-approval", "specialist", "underscore",
}

// DeepgramService streams caller audio to Deepgram's live API and emits
// partial transcripts plus finalized utterances.
type DeepgramService struct {
	apiKey      string
	model       string
	language    string
	conn        *websocket.Conn
	transcripts chan string
	finalizeCh  chan string
	audioData   chan []byte
	stopCh      chan struct{}
	mu          sync.RWMutex
	connected   bool

	// utterance accumulation
	accMu          sync.Mutex
	pendingFinals  []string
	latestPartial  string
	lastUpdateTime time.Time
	silenceTimer   *time.Timer
	// last time non-silent voice energy was seen in the incoming audio
	lastVoiceTime time.Time
}

type resultsMessage struct {
	Type        string `json:"type"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`
	Channel     struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

type metadataMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
}

type errorMessage struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Message     string `json:"message"`
}

// NewDeepgramService creates a live transcription service for one call.
func NewDeepgramService(apiKey string) *DeepgramService {
	return &DeepgramService{
		apiKey:      apiKey,
		model:       "nova-2-general",
		language:    "multi",
		transcripts: make(chan string, 100),
		finalizeCh:  make(chan string, 10),
		audioData:   make(chan []byte, 1000),
		stopCh:      make(chan struct{}),
	}
}

// Transcripts returns the channel of running partial transcripts.
func (s *DeepgramService) Transcripts() <-chan string { return s.transcripts }

// Finalize returns a channel signaling end-of-utterance with the full
// utterance text.
func (s *DeepgramService) Finalize() <-chan string { return s.finalizeCh }

// Connect establishes the streaming WebSocket connection.
func (s *DeepgramService) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return nil
	}
	if s.apiKey == "" {
		return fmt.Errorf("deepgram API key is empty")
	}

	params := url.Values{}
	params.Set("model", s.model)
	params.Set("language", s.language)
	params.Set("encoding", "mulaw")
	params.Set("sample_rate", "8000")
	params.Set("punctuate", "true")
	params.Set("interim_results", "true")
	params.Set("smart_format", "true")
	for _, kw := range vocabularyHints {
		params.Add("keywords", kw)
	}

	wsURL := fmt.Sprintf("wss://api.deepgram.com/v1/listen?%s", params.Encode())
	headers := map[string][]string{
		"Authorization": {"Token " + s.apiKey},
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, resp, err := dialer.Dial(wsURL, headers)
	if err != nil {
		if resp != nil {
			log.Printf("deepgram connection failed with status: %d", resp.StatusCode)
		}
		return fmt.Errorf("failed to connect to Deepgram: %w", err)
	}

	s.conn = conn
	s.connected = true
	s.lastUpdateTime = time.Now()
	s.lastVoiceTime = time.Now()

	go s.handleMessages()
	go s.sendAudioData()

	log.Println("connected to Deepgram live transcription")
	return nil
}

// SendULaw8k queues 8kHz mu-law caller audio for transcription.
func (s *DeepgramService) SendULaw8k(audio []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.connected {
		return fmt.Errorf("not connected to Deepgram")
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

// detectVoiceActivity updates lastVoiceTime when the mu-law buffer carries
// voice energy above a threshold.
func (s *DeepgramService) detectVoiceActivity(ulaw []byte) {
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
func (s *DeepgramService) RecentlyDetectedVoice(window time.Duration) bool {
	s.accMu.Lock()
	last := s.lastVoiceTime
	s.accMu.Unlock()
	return time.Since(last) <= window
}

// Close terminates the stream and flushes any pending utterance.
func (s *DeepgramService) Close() error {
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
		_ = s.conn.WriteJSON(map[string]string{"type": "CloseStream"})
		_ = s.conn.Close()
	}
	s.connected = false
	s.conn = nil
	// The channels stay open: a silence timer callback may still be
	// mid-flight, and its send races a close. stopCh stops every reader
	// and writer instead.
	s.flushPending()
	log.Println("Deepgram connection closed")
	return nil
}

func (s *DeepgramService) handleMessages() {
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
				log.Printf("error reading Deepgram message: %v", err)
				return
			}
			s.processMessage(message)
		}
	}
}

func (s *DeepgramService) processMessage(message []byte) {
	var base map[string]any
	if err := json.Unmarshal(message, &base); err != nil {
		log.Printf("error unmarshaling Deepgram message: %v", err)
		return
	}
	msgType, _ := base["type"].(string)
	switch msgType {
	case "Results":
		var msg resultsMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("error unmarshaling Results message: %v", err)
			return
		}
		if len(msg.Channel.Alternatives) == 0 {
			return
		}
		transcript := strings.TrimSpace(msg.Channel.Alternatives[0].Transcript)
		if transcript == "" {
			return
		}
		select {
		case s.transcripts <- transcript:
		default:
		}
		s.accMu.Lock()
		s.lastUpdateTime = time.Now()
		if msg.IsFinal {
			s.pendingFinals = append(s.pendingFinals, transcript)
			s.latestPartial = ""
		} else {
			s.latestPartial = transcript
		}
		speechFinal := msg.SpeechFinal
		s.resetSilenceTimerLocked()
		s.accMu.Unlock()
		if speechFinal {
			s.flushPending()
		}
	case "UtteranceEnd":
		s.flushPending()
	case "Metadata":
		var msg metadataMessage
		if err := json.Unmarshal(message, &msg); err == nil {
			log.Printf("Deepgram session started: request_id=%s", msg.RequestID)
		}
	case "SpeechStarted":
		// voice energy tracking handles this locally
	case "Error":
		var msg errorMessage
		if err := json.Unmarshal(message, &msg); err == nil {
			log.Printf("Deepgram error: %s %s", msg.Description, msg.Message)
		}
	default:
		log.Printf("unknown Deepgram message type: %s", msgType)
	}
}

// resetSilenceTimerLocked arms the fallback end-of-utterance timer. Callers
// must hold accMu.
func (s *DeepgramService) resetSilenceTimerLocked() {
	threshold := SILENCE_THRESHOLD
	tail := s.latestPartial
	if tail == "" && len(s.pendingFinals) > 0 {
		tail = s.pendingFinals[len(s.pendingFinals)-1]
	}
	if isContinuationLikely(tail) {
		threshold += CONTINUATION_EXTENSION
	}
	if s.silenceTimer == nil {
		s.silenceTimer = time.AfterFunc(threshold, s.finalizeDueToSilence)
	} else {
		_ = s.silenceTimer.Stop()
		s.silenceTimer.Reset(threshold)
	}
}

// finalizeDueToSilence fires after the inactivity window. It re-arms itself
// if text or voice arrived in the meantime.
func (s *DeepgramService) finalizeDueToSilence() {
	select {
	case <-s.stopCh:
		return
	default:
	}

	s.accMu.Lock()
	threshold := SILENCE_THRESHOLD
	tail := s.latestPartial
	if tail == "" && len(s.pendingFinals) > 0 {
		tail = s.pendingFinals[len(s.pendingFinals)-1]
	}
	if isContinuationLikely(tail) {
		threshold += CONTINUATION_EXTENSION
	}
	now := time.Now()
	sinceText := now.Sub(s.lastUpdateTime)
	sinceVoice := now.Sub(s.lastVoiceTime)
	if sinceText < threshold || sinceVoice < threshold {
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
	s.accMu.Unlock()

	s.flushPending()
}

// flushPending emits the accumulated utterance, if any.
func (s *DeepgramService) flushPending() {
	s.accMu.Lock()
	parts := s.pendingFinals
	s.pendingFinals = nil
	if s.latestPartial != "" {
		parts = append(parts, s.latestPartial)
		s.latestPartial = ""
	}
	s.accMu.Unlock()

	utterance := strings.TrimSpace(strings.Join(parts, " "))
	if utterance == "" {
		return
	}
	select {
	case <-s.stopCh:
	case s.finalizeCh <- utterance:
	case <-time.After(200 * time.Millisecond):
		log.Printf("deepgram flush: timed out delivering utterance")
	}
}

func (s *DeepgramService) sendAudioData() {
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

// ulawToLinear expands one G.711 mu-law sample to 16-bit linear PCM.
func ulawToLinear(u byte) int16 {
	u = ^u
	sign := u&0x80 != 0
	exponent := (u >> 4) & 0x07
	mantissa := u & 0x0F
	t := (int(mantissa)<<3 + 0x84) << exponent
	t -= 0x84
	if sign {
		return int16(-t)
	}
	return int16(t)
}

// isContinuationLikely returns true if the last meaningful word indicates
// the speaker is likely to continue (conjunctions, prepositions, fillers).
func isContinuationLikely(text string) bool {
	w := lastWord(text)
	if w == "" {
		return false
	}
	_, ok := continuationWords[w]
	return ok
}

func lastWord(text string) string {
	trim := strings.TrimSpace(text)
	if trim == "" {
		return ""
	}
	fields := strings.FieldsFunc(trim, func(r rune) bool { return !unicode.IsLetter(r) })
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[len(fields)-1])
}

var continuationWords = map[string]struct{}{
	"and": {}, "or": {}, "but": {}, "nor": {}, "yet": {}, "so": {},
	"if": {}, "when": {}, "while": {}, "though": {}, "although": {},
	"because": {}, "since": {}, "unless": {}, "until": {}, "whereas": {},
	"also": {}, "plus": {}, "um": {}, "uh": {}, "like": {},
	"about": {}, "with": {}, "to": {}, "of": {}, "for": {}, "on": {}, "in": {}, "at": {},
	// mid-email pauses: "john dot ..." / "jane underscore ..."
	"dot": {}, "underscore": {}, "dash": {},
}
