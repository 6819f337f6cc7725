package persona

import (
	"fmt"
	"log"

	"github.com/chadiek/preapproval-line/internal/convo"
	"github.com/chadiek/preapproval-line/internal/stage"
)

// VoiceSetter is the single capability every speech-synthesis backend must
// implement so a persona switch can swap voice identity.
type VoiceSetter interface {
	SetVoice(voiceID string)
}

// Switchboard owns the two persona instruction templates and performs the
// welcome -> loan handoff: replace the system instruction wholesale, swap
// the TTS voice, and deliver a one-shot kickoff directive that never
// persists as history.
type Switchboard struct {
	log    *convo.Log
	voice  VoiceSetter
	prompt stage.Prompter

	company     string
	welcomeName string
	loanName    string

	welcomeVoiceID string
	loanVoiceID    string
}

// Config parameterizes the persona templates and voices.
type Config struct {
	CompanyName      string
	WelcomeAgentName string
	LoanAgentName    string
	WelcomeVoiceID   string
	LoanVoiceID      string
}

// NewSwitchboard wires a switchboard for one call.
func NewSwitchboard(clog *convo.Log, voice VoiceSetter, prompt stage.Prompter, cfg Config) *Switchboard {
	return &Switchboard{
		log:            clog,
		voice:          voice,
		prompt:         prompt,
		company:        cfg.CompanyName,
		welcomeName:    cfg.WelcomeAgentName,
		loanName:       cfg.LoanAgentName,
		welcomeVoiceID: cfg.WelcomeVoiceID,
		loanVoiceID:    cfg.LoanVoiceID,
	}
}

// WelcomeInstructions returns the system prompt for the welcome concierge.
func (b *Switchboard) WelcomeInstructions() string {
	return fmt.Sprintf(`You are %s, the friendly welcome concierge for %s, a fintech lender. You answer general questions about the quick loan pre-approval service: how it works, that it uses a soft credit inquiry with no impact on credit score, and that an estimate takes under three minutes.

You do NOT collect any applicant information yourself. When the caller wants to start an application, is ready to apply, or asks to move forward, tell them you are handing them to %s, our loan specialist, and say the name %s clearly.

Guidelines:
- Be warm, professional and concise; this is a phone call, so keep answers short
- Never promise approval or quote rates
- If the caller asks for a human agent, acknowledge it and say you will transfer them`, b.welcomeName, b.company, b.loanName, b.loanName)
}

// LoanInstructions returns the system prompt for the loan specialist.
func (b *Switchboard) LoanInstructions() string {
	return fmt.Sprintf(`You are %s, a professional loan specialist for %s. You help the caller get a quick loan pre-approval estimate.

Your workflow, IN THIS ORDER:
1. Consent: explain the soft credit inquiry does not impact their credit score and get explicit consent.
2. Collect the caller's full legal name.
3. Collect the email address where the secure application link will be sent.
4. Collect the caller's zip code.
5. Only AFTER all three are collected, confirm the secure link has been sent to their email and offer to stay on the line.

IMPORTANT: never mention sending the link before the full name, email and zip code have all been collected.

Guidelines:
- Confirm each piece of information back to the caller as you collect it
- Ask for exactly one piece of information at a time
- Speak clearly and at a moderate pace; keep responses short
- If the caller hesitates, address their concern, then return to the next missing item`, b.loanName, b.company)
}

// KickoffDirective is the one-shot instruction that makes the loan persona
// open its leg of the conversation.
func (b *Switchboard) KickoffDirective() string {
	return fmt.Sprintf("Say: 'Hi, this is %s, your loan specialist. I can get you a pre-approval estimate in a couple of minutes. First, could I have your full legal name?'", b.loanName)
}

// OpeningDirective is the one-shot instruction queued when the call
// connects, before any caller speech.
func (b *Switchboard) OpeningDirective() string {
	return "Say: 'Hi, you have reached the quick pre-approval line. We can estimate your eligible amount in under 3 minutes. May I proceed?'"
}

// SwitchToLoan performs the one-directional persona handoff. The session is
// fully reset for collection, the system instruction is replaced (not
// appended), the voice identity swapped, and the kickoff delivered as a
// consumed-once directive.
func (b *Switchboard) SwitchToLoan(sess *stage.Session) {
	sess.ResetForLoan()
	b.log.ReplaceSystem(b.LoanInstructions())
	if b.voice != nil {
		b.voice.SetVoice(b.loanVoiceID)
	}
	b.prompt.Inject(b.KickoffDirective())
	log.Printf("[%s] loan persona active, voice=%s", sess.CallSID, b.loanVoiceID)
}

// LoanAgentName exposes the loan persona's display name for handoff
// detection.
func (b *Switchboard) LoanAgentName() string { return b.loanName }

// WelcomeVoiceID exposes the voice the call starts with.
func (b *Switchboard) WelcomeVoiceID() string { return b.welcomeVoiceID }
