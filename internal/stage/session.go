package stage

import "sync"

// Stage is a step in the structured data-collection sequence.
type Stage string

const (
	StageNone          Stage = ""
	StageAwaitingName  Stage = "awaiting_name"
	StageAwaitingEmail Stage = "awaiting_email"
	StageAwaitingZip   Stage = "awaiting_zip"
	StageReadyToSend   Stage = "ready_to_send"
	StageCompleted     Stage = "completed"
)

// Persona identifies the instruction/voice bundle presented to the caller.
type Persona string

const (
	PersonaWelcome Persona = "welcome"
	PersonaLoan    Persona = "loan"
)

// Collected holds the applicant facts gathered so far. Fields fill in
// monotonically; a populated field is only cleared by a full persona reset.
type Collected struct {
	Name  string
	Email string
	Zip   string
}

// Session is the per-call state shared between the live dialogue driver and
// the transcript poller. One Session per call, created at call start and
// discarded at disconnect.
type Session struct {
	CallSID   string
	StreamSID string

	mu               sync.Mutex
	persona          Persona
	stage            Stage
	collected        Collected
	emailSent        bool
	callForwarded    bool
	nudged           map[Stage]bool
	sentClaimNudged  bool
	pendingEmail     string
	lastInvalidEmail string
}

// NewSession creates the state for one call, starting in the welcome persona
// with no collection stage active.
func NewSession(callSID, streamSID string) *Session {
	return &Session{
		CallSID:   callSID,
		StreamSID: streamSID,
		persona:   PersonaWelcome,
		stage:     StageNone,
		nudged:    make(map[Stage]bool),
	}
}

func (s *Session) Persona() Persona {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persona
}

func (s *Session) Stage() Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stage
}

func (s *Session) SetStage(st Stage) {
	s.mu.Lock()
	s.stage = st
	s.mu.Unlock()
}

func (s *Session) Collected() Collected {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collected
}

// SetName stores the extracted name. Once set it is never overwritten.
func (s *Session) SetName(name string) {
	s.mu.Lock()
	if s.collected.Name == "" {
		s.collected.Name = name
	}
	s.mu.Unlock()
}

// SetEmail stores a confirmed email and clears the pending/invalid trackers.
func (s *Session) SetEmail(email string) {
	s.mu.Lock()
	if s.collected.Email == "" {
		s.collected.Email = email
	}
	s.pendingEmail = ""
	s.lastInvalidEmail = ""
	s.mu.Unlock()
}

func (s *Session) SetZip(zip string) {
	s.mu.Lock()
	if s.collected.Zip == "" {
		s.collected.Zip = zip
	}
	s.mu.Unlock()
}

// EmailSent reports the send-link latch.
func (s *Session) EmailSent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emailSent
}

// LatchEmailSent flips the send-link latch. It reports whether this call
// performed the transition, so the guarded action runs at most once.
func (s *Session) LatchEmailSent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.emailSent {
		return false
	}
	s.emailSent = true
	return true
}

// CallForwarded reports the forwarding latch.
func (s *Session) CallForwarded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callForwarded
}

// LatchCallForwarded flips the forwarding latch, reporting whether this
// call performed the transition.
func (s *Session) LatchCallForwarded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.callForwarded {
		return false
	}
	s.callForwarded = true
	return true
}

// MarkNudged records that the one-per-stage reminder has been used, and
// reports whether this call claimed it.
func (s *Session) MarkNudged(st Stage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nudged[st] {
		return false
	}
	s.nudged[st] = true
	return true
}

// MarkSentClaimNudged claims the one-shot reminder used when the assistant
// claims an email was sent before one was collected.
func (s *Session) MarkSentClaimNudged() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sentClaimNudged {
		return false
	}
	s.sentClaimNudged = true
	return true
}

func (s *Session) PendingEmail() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingEmail
}

func (s *Session) SetPendingEmail(email string) {
	s.mu.Lock()
	s.pendingEmail = email
	s.mu.Unlock()
}

func (s *Session) LastInvalidEmail() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastInvalidEmail
}

func (s *Session) SetLastInvalidEmail(email string) {
	s.mu.Lock()
	s.lastInvalidEmail = email
	s.mu.Unlock()
}

// ResetForLoan performs the full persona reset when the call hands off to
// the loan specialist: collected data cleared, send latch re-armed, stage
// moved to name collection. The forwarding latch is deliberately untouched.
func (s *Session) ResetForLoan() {
	s.mu.Lock()
	s.persona = PersonaLoan
	s.stage = StageAwaitingName
	s.collected = Collected{}
	s.emailSent = false
	s.nudged = make(map[Stage]bool)
	s.sentClaimNudged = false
	s.pendingEmail = ""
	s.lastInvalidEmail = ""
	s.mu.Unlock()
}
