package stage

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/chadiek/preapproval-line/internal/convo"
	"github.com/chadiek/preapproval-line/internal/extract"
)

// Prompter injects a one-shot directive into the live dialogue. The
// directive steers the next assistant response and must not persist as
// conversation history.
type Prompter interface {
	Inject(directive string)
}

// PersonaSwitch swaps the active persona to the loan specialist.
type PersonaSwitch interface {
	SwitchToLoan(sess *Session)
}

// Effects exposes the latch-guarded side effects the machine can trigger.
type Effects interface {
	// SendApplicationLink attempts the one-time link email. It reports
	// whether the attempt was actually fired this call.
	SendApplicationLink(ctx context.Context, sess *Session) bool
	// ForwardCall redirects the live call leg to the support number.
	ForwardCall(ctx context.Context, sess *Session)
}

// Machine evaluates the conversation once per poll tick and drives stage
// transitions, nudges, persona switches and side effects.
type Machine struct {
	sess          *Session
	log           *convo.Log
	prompt        Prompter
	board         PersonaSwitch
	effects       Effects
	loanAgentName string
	supportNumber string
}

// NewMachine wires a stage machine for one call.
func NewMachine(sess *Session, clog *convo.Log, prompt Prompter, board PersonaSwitch, effects Effects, loanAgentName, supportNumber string) *Machine {
	return &Machine{
		sess:          sess,
		log:           clog,
		prompt:        prompt,
		board:         board,
		effects:       effects,
		loanAgentName: loanAgentName,
		supportNumber: supportNumber,
	}
}

// Tick runs one evaluation pass over a snapshot of the conversation log.
// Checks run in fixed priority order: human-agent request first, then
// persona and stage logic. A human handoff or persona switch consumes the
// whole tick; stage logic resumes on the next one.
func (m *Machine) Tick(ctx context.Context) {
	snap := m.log.Snapshot()
	userAll := snap.JoinedUser()
	assistantAll := snap.JoinedAssistant()

	// Human-agent requests scan the accumulated text since the request may
	// have appeared any number of turns ago.
	if !m.sess.CallForwarded() && m.supportNumber != "" {
		if extract.WantsHumanAgent(userAll) || extract.AcknowledgesHumanHandoff(assistantAll, m.loanAgentName) {
			m.effects.ForwardCall(ctx, m.sess)
			return
		}
	}

	if m.sess.Persona() == PersonaWelcome {
		switchRequested := extract.WantsApplication(userAll)
		if !switchRequested && m.loanAgentName != "" {
			// The LLM announcing the loan persona by name is treated as a
			// handoff it already committed to.
			switchRequested = strings.Contains(
				strings.ToLower(snap.LatestAssistant()),
				strings.ToLower(m.loanAgentName),
			)
		}
		if switchRequested {
			log.Printf("[%s] switching persona welcome -> loan", m.sess.CallSID)
			m.board.SwitchToLoan(m.sess)
		}
		// No data extraction while the welcome persona is active.
		return
	}

	latestUser := snap.LatestUser()
	latestAssistant := snap.LatestAssistant()

	switch m.sess.Stage() {
	case StageAwaitingName:
		m.tickName(latestUser)
	case StageAwaitingEmail:
		m.tickEmail(latestUser, latestAssistant)
	case StageAwaitingZip:
		m.tickZip(ctx, latestUser, latestAssistant)
	case StageReadyToSend:
		if m.effects.SendApplicationLink(ctx, m.sess) {
			m.sess.SetStage(StageCompleted)
		}
	case StageCompleted:
		// nothing left to do
	}
}

func (m *Machine) tickName(latestUser string) {
	if name := extract.Name(latestUser); name != "" {
		m.sess.SetName(name)
		m.sess.SetStage(StageAwaitingEmail)
		log.Printf("[%s] collected name %q", m.sess.CallSID, name)
		return
	}
	m.nudge(StageAwaitingName, "The caller has not given their full legal name yet. Politely ask for their full name again.")
}

func (m *Machine) tickEmail(latestUser, latestAssistant string) {
	if cand := extract.Email(latestUser); cand != "" {
		if extract.ValidEmail(cand) {
			m.sess.SetEmail(cand)
			m.sess.SetStage(StageAwaitingZip)
			log.Printf("[%s] collected email %s", m.sess.CallSID, cand)
			return
		}
		// One reminder per distinct invalid value, never a retry storm.
		if cand != m.sess.LastInvalidEmail() {
			m.sess.SetLastInvalidEmail(cand)
			m.prompt.Inject(fmt.Sprintf("The email address %q the caller gave does not look valid. Ask them to spell out their email address again, character by character.", cand))
		}
		return
	}

	// An affirmative with no email token of its own confirms a candidate the
	// assistant restated earlier.
	if pending := m.sess.PendingEmail(); pending != "" && extract.IsAffirmative(latestUser) {
		m.sess.SetEmail(pending)
		m.sess.SetStage(StageAwaitingZip)
		log.Printf("[%s] confirmed pending email %s", m.sess.CallSID, pending)
		return
	}

	if cand := extract.Email(latestAssistant); cand != "" && extract.ValidEmail(cand) {
		m.sess.SetPendingEmail(cand)
	}

	if extract.ClaimsEmailSent(latestAssistant) {
		if m.sess.MarkSentClaimNudged() {
			m.prompt.Inject("No email has been collected yet, so nothing was sent. Ask the caller for their email address before mentioning any link.")
		}
		return
	}

	m.nudge(StageAwaitingEmail, "The caller has not provided an email address yet. Ask for the email address where the secure link should be sent.")
}

func (m *Machine) tickZip(ctx context.Context, latestUser, latestAssistant string) {
	zip := extract.Zip(latestUser)
	if zip == "" {
		zip = extract.Zip(latestAssistant)
	}
	if zip == "" {
		zip = extract.ZipFallback(latestUser)
	}
	if zip == "" {
		zip = extract.ZipFallback(latestAssistant)
	}
	if zip == "" {
		m.nudge(StageAwaitingZip, "The caller has not provided their zip code yet. Ask for their five digit zip code.")
		return
	}
	m.sess.SetZip(zip)
	m.sess.SetStage(StageReadyToSend)
	log.Printf("[%s] collected zip %s", m.sess.CallSID, zip)
	if m.effects.SendApplicationLink(ctx, m.sess) {
		m.sess.SetStage(StageCompleted)
	}
}

// nudge emits at most one reminder per stage.
func (m *Machine) nudge(st Stage, directive string) {
	if m.sess.MarkNudged(st) {
		m.prompt.Inject(directive)
	}
}
