package telephony

import (
	"fmt"
	"log"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"github.com/twilio/twilio-go/twiml"
)

// Service redirects live calls through Twilio's REST API.
type Service struct {
	client *twilio.RestClient
}

type Config struct {
	AccountSID string
	AuthToken  string
}

func New(cfg Config) *Service {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &Service{client: client}
}

// ForwardCall replaces the in-progress call's TwiML with an announcement and
// a dial to the destination number, ending the media stream leg.
func (s *Service) ForwardCall(callSID, destination string) error {
	if callSID == "" {
		return fmt.Errorf("forward call: call SID is empty")
	}
	if destination == "" {
		return fmt.Errorf("forward call: destination number is empty")
	}

	doc, err := twiml.Voice([]twiml.Element{
		twiml.VoiceSay{Message: "Please hold while I connect you to a representative."},
		twiml.VoiceDial{Number: destination},
	})
	if err != nil {
		return fmt.Errorf("forward call: build twiml: %w", err)
	}

	params := &twilioApi.UpdateCallParams{}
	params.SetTwiml(doc)
	if _, err := s.client.Api.UpdateCall(callSID, params); err != nil {
		return fmt.Errorf("forward call: update call %s: %w", callSID, err)
	}
	log.Printf("call %s forwarded to %s", callSID, destination)
	return nil
}
