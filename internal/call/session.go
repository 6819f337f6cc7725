package call

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chadiek/preapproval-line/internal/convo"
)

const llmTimeout = 20 * time.Second

// chunkReply splits an assistant reply into sentence-like chunks so the
// transcript only records text whose audio actually went out. Splits on
// '.', '?', '!' and newlines, retaining punctuation.
func chunkReply(reply string) []string {
	txt := strings.TrimSpace(reply)
	if txt == "" {
		return nil
	}
	var chunks []string
	var b strings.Builder
	for _, r := range txt {
		switch r {
		case '.', '!', '?':
			b.WriteRune(r)
			chunk := strings.TrimSpace(b.String())
			if chunk != "" {
				chunks = append(chunks, chunk)
			}
			b.Reset()
		case '\n', '\r':
			chunk := strings.TrimSpace(b.String())
			if chunk != "" {
				chunks = append(chunks, chunk)
			}
			b.Reset()
		default:
			b.WriteRune(r)
		}
	}
	tail := strings.TrimSpace(b.String())
	if tail != "" {
		chunks = append(chunks, tail)
	}
	return chunks
}

// Session orchestrates one phone call: inbound media to STT, finalized
// utterances to the LLM, replies to TTS and back out as media frames. It
// also consumes one-shot directives injected by the stage machinery.
type Session struct {
	conn      *websocket.Conn
	streamSID string
	callSID   string

	clog        *convo.Log
	transcriber Transcriber
	responder   Responder
	speaker     Speaker
	archiver    Archiver

	directives chan string

	teardownOnce sync.Once

	writeMu sync.Mutex

	mu          sync.Mutex
	speaking    bool
	speakCancel context.CancelFunc
	barged      bool
}

// NewSession constructs a session for an accepted media stream connection.
func NewSession(conn *websocket.Conn, streamSID, callSID string, clog *convo.Log, t Transcriber, r Responder, sp Speaker, a Archiver) *Session {
	return &Session{
		conn:        conn,
		streamSID:   streamSID,
		callSID:     callSID,
		clog:        clog,
		transcriber: t,
		responder:   r,
		speaker:     sp,
		archiver:    a,
		directives:  make(chan string, 8),
	}
}

// Inject queues a one-shot system directive. The directive is appended to
// the log only for the single generation it steers, then retired.
func (s *Session) Inject(directive string) {
	if directive == "" {
		return
	}
	select {
	case s.directives <- directive:
	default:
		log.Printf("call %s: directive queue full, dropping", s.callSID)
	}
}

// Run drives the call until the stream stops or ctx is canceled. It blocks;
// the caller owns the WebSocket and, once the transcript poller has been
// stopped, calls Teardown.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.transcriber.Connect(); err != nil {
		return err
	}

	go s.readMedia(ctx, cancel)
	go s.watchPartials(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case utterance, ok := <-s.transcriber.Finalize():
			if !ok {
				return nil
			}
			s.handleUserTurn(ctx, utterance)
		case directive := <-s.directives:
			s.handleDirective(ctx, directive)
		}
	}
}

// readMedia pumps inbound stream messages into the transcriber until the
// caller hangs up.
func (s *Session) readMedia(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			log.Printf("call %s: media read ended: %v", s.callSID, err)
			return
		}
		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			continue
		}
		switch env.Event {
		case "media":
			audio, err := base64.StdEncoding.DecodeString(env.Media.Payload)
			if err != nil {
				continue
			}
			_ = s.transcriber.SendULaw8k(audio)
		case "stop":
			log.Printf("call %s: stream stopped", s.callSID)
			return
		}
	}
}

// watchPartials interrupts playback when the caller talks over the agent.
func (s *Session) watchPartials(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-s.transcriber.Transcripts():
			if !ok {
				return
			}
			if t == "" {
				continue
			}
			if s.isSpeaking() && s.transcriber.RecentlyDetectedVoice(300*time.Millisecond) {
				s.bargeIn()
			}
		}
	}
}

func (s *Session) handleUserTurn(ctx context.Context, utterance string) {
	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return
	}
	log.Printf("call %s heard(final): %s", s.callSID, utterance)

	// Wait for sustained silence so the agent does not talk over the caller.
	waitCtx, waitCancel := context.WithTimeout(ctx, 3*time.Second)
	for waitCtx.Err() == nil {
		if !s.transcriber.RecentlyDetectedVoice(500 * time.Millisecond) {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	waitCancel()

	s.clog.Append(convo.RoleUser, utterance)

	reply, err := s.generate(ctx, s.clog.Snapshot())
	if err != nil {
		log.Printf("call %s: llm error: %v", s.callSID, err)
		return
	}
	if reply == "" {
		return
	}
	spoken, barged := s.speak(ctx, reply)
	s.recordAssistant(spoken, barged)
}

// handleDirective appends the directive as a system turn, generates one
// reply from that view, then pops the directive so it never persists.
func (s *Session) handleDirective(ctx context.Context, directive string) {
	s.clog.Append(convo.RoleSystem, directive)
	snapshot := s.clog.Snapshot()
	s.clog.PopLast()

	reply, err := s.generate(ctx, snapshot)
	if err != nil {
		log.Printf("call %s: llm error on directive: %v", s.callSID, err)
		return
	}
	if reply == "" {
		return
	}
	spoken, barged := s.speak(ctx, reply)
	s.recordAssistant(spoken, barged)
}

func (s *Session) generate(ctx context.Context, turns []convo.Turn) (string, error) {
	ctxLLM, cancel := context.WithTimeout(ctx, llmTimeout)
	defer cancel()
	reply, err := s.responder.Respond(ctxLLM, turns)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reply), nil
}

// recordAssistant appends the spoken portion of the reply to the log, with
// an interruption marker when the caller barged in.
func (s *Session) recordAssistant(spoken string, barged bool) {
	if barged {
		if spoken != "" {
			spoken += " [interrupted by caller]"
		} else {
			spoken = "[interrupted by caller]"
		}
	}
	if spoken == "" {
		return
	}
	s.clog.Append(convo.RoleAssistant, spoken)
}

// speak streams the reply chunk by chunk and returns the text whose audio
// was fully emitted plus whether the caller interrupted.
func (s *Session) speak(ctx context.Context, reply string) (string, bool) {
	ctxTTS, cancelTTS := context.WithCancel(ctx)
	s.mu.Lock()
	s.speaking = true
	s.speakCancel = cancelTTS
	s.barged = false
	s.mu.Unlock()

	var spokenBuilder strings.Builder
	chunks := chunkReply(reply)
CHUNK_LOOP:
	for i, chunk := range chunks {
		if s.wasBarged() {
			break CHUNK_LOOP
		}

		audioCh, errCh := s.speaker.StreamULaw8k(ctxTTS, chunk)
		openAudio, openErr := true, true
		for openAudio || openErr {
			select {
			case b, ok := <-audioCh:
				if ok {
					if len(b) > 0 && !s.wasBarged() {
						s.sendMedia(b)
					}
				} else {
					openAudio = false
				}
			case e, ok := <-errCh:
				if ok && e != nil {
					log.Printf("call %s: tts stream error: %v", s.callSID, e)
				}
				openErr = false
			case <-ctx.Done():
				openAudio, openErr = false, false
			}
		}

		if s.wasBarged() {
			break CHUNK_LOOP
		}
		spokenBuilder.WriteString(strings.TrimSpace(chunk))
		if i < len(chunks)-1 {
			spokenBuilder.WriteString(" ")
		}
	}

	s.mu.Lock()
	barged := s.barged
	s.speaking = false
	s.speakCancel = nil
	s.barged = false
	s.mu.Unlock()
	cancelTTS()

	return strings.TrimSpace(spokenBuilder.String()), barged
}

func (s *Session) isSpeaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}

func (s *Session) wasBarged() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.barged
}

// bargeIn cancels current playback and tells Twilio to drop buffered audio.
func (s *Session) bargeIn() {
	s.mu.Lock()
	cancel := s.speakCancel
	if s.speaking {
		s.barged = true
	}
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.sendClear()
}

// sendMedia frames mu-law audio as an outbound media message.
func (s *Session) sendMedia(audio []byte) {
	msg := map[string]any{
		"event":     "media",
		"streamSid": s.streamSID,
		"media": map[string]string{
			"payload": base64.StdEncoding.EncodeToString(audio),
		},
	}
	s.writeJSON(msg)
}

// sendClear flushes Twilio's outbound audio buffer.
func (s *Session) sendClear() {
	s.writeJSON(map[string]any{
		"event":     "clear",
		"streamSid": s.streamSID,
	})
}

func (s *Session) writeJSON(v any) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteJSON(v); err != nil {
		log.Printf("call %s: media write error: %v", s.callSID, err)
	}
}

// Teardown closes the transcription stream and archives the conversation.
// The caller runs it after the transcript poller has been cancelled and
// awaited, so no evaluation tick interleaves with archival. Repeat calls
// are no-ops.
func (s *Session) Teardown() {
	s.teardownOnce.Do(func() {
		_ = s.transcriber.Close()
		s.archive()
	})
}

func (s *Session) archive() {
	if s.archiver == nil {
		return
	}
	if err := s.archiver.SaveTranscript(s.callSID, s.clog.Snapshot()); err != nil {
		log.Printf("call %s: transcript archive failed: %v", s.callSID, err)
	}
}
