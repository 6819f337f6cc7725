package dispatch

import (
	"context"
	"fmt"
	"log"
	"net/url"

	"github.com/chadiek/preapproval-line/internal/stage"
)

// Emailer delivers the secure application link. Implementations fail
// closed: a false return means the provider did not accept the message.
type Emailer interface {
	SendApplicationLink(ctx context.Context, email, name, link string, expiresInHours int) bool
}

// Forwarder redirects a live call leg to a destination number.
type Forwarder interface {
	ForwardCall(callSID, destination string) error
}

// Dispatcher fires the two one-time call side effects. Each is guarded by
// a latch on the session so it executes at most once per call regardless of
// how many poll ticks observe the satisfied condition.
type Dispatcher struct {
	emailer       Emailer
	forwarder     Forwarder
	baseURL       string
	supportNumber string
}

// New constructs a dispatcher with explicit collaborators.
func New(emailer Emailer, forwarder Forwarder, baseURL, supportNumber string) *Dispatcher {
	return &Dispatcher{
		emailer:       emailer,
		forwarder:     forwarder,
		baseURL:       baseURL,
		supportNumber: supportNumber,
	}
}

// SendApplicationLink emails the pre-filled application link once name,
// email and zip are all collected. The latch advances on any outcome: a
// provider failure is logged, not retried, so a known-bad configuration is
// not hammered every tick. Reports whether the attempt fired.
func (d *Dispatcher) SendApplicationLink(ctx context.Context, sess *stage.Session) bool {
	c := sess.Collected()
	if c.Name == "" || c.Email == "" || c.Zip == "" {
		return false
	}
	if !sess.LatchEmailSent() {
		return false
	}
	link := fmt.Sprintf("%s/loan-application?legal_name=%s&email=%s&zip_code=%s",
		d.baseURL, url.QueryEscape(c.Name), url.QueryEscape(c.Email), url.QueryEscape(c.Zip))
	ok := d.emailer.SendApplicationLink(ctx, c.Email, c.Name, link, 24)
	log.Printf("[%s] application link email to %s for %s, zip %s, success=%v", sess.CallSID, c.Email, c.Name, c.Zip, ok)
	return true
}

// ForwardCall redirects the caller to the configured support number. Fires
// at most once per call; requires both a call identifier and a configured
// destination. Failures are logged, never retried.
func (d *Dispatcher) ForwardCall(ctx context.Context, sess *stage.Session) {
	if sess.CallSID == "" || d.supportNumber == "" {
		return
	}
	if !sess.LatchCallForwarded() {
		return
	}
	if err := d.forwarder.ForwardCall(sess.CallSID, d.supportNumber); err != nil {
		log.Printf("[%s] call forwarding to %s failed: %v", sess.CallSID, d.supportNumber, err)
		return
	}
	log.Printf("[%s] call forwarded to %s", sess.CallSID, d.supportNumber)
}
