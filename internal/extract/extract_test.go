package extract

import "testing"

func TestEmail_SpokenForms(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"my email is john.doe@example.com", "john.doe@example.com"},
		{"it's john dot doe at example dot com", "john.doe@example.com"},
		{"jane underscore doe at gmail dotcom", "jane_doe@gmail.com"},
		{"john dash smith at example dot org", "john-smith@example.org"},
		{"john plus offers at example dot net", "john+offers@example.net"},
		{"john dot doe at agilityfeet dot com", "john.doe@agilityfeat.com"},
		{"maria arroba example dot com", "maria@example.com"},
		{"no address here", ""},
	}
	for _, tc := range cases {
		if got := Email(tc.in); got != tc.want {
			t.Errorf("Email(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestEmail_RecoversFromWordSplits(t *testing.T) {
	// ASR sometimes breaks the address into separate words
	if got := Email("john . doe @ example . com"); got != "john.doe@example.com" {
		t.Fatalf("Email = %q", got)
	}
}

func TestEmail_ContractionsDoNotLeakIntoLocalPart(t *testing.T) {
	// Words with non-address characters must not survive the compacting
	// retry; "it's" once produced "sjane.smith@gmail.com".
	cases := []struct {
		in   string
		want string
	}{
		{"it's jane dot smith at gmail dot com", "jane.smith@gmail.com"},
		{"that's jane dot smith at gmail dot com", "jane.smith@gmail.com"},
		{"sure, jane dot smith at gmail dot com", "jane.smith@gmail.com"},
	}
	for _, tc := range cases {
		if got := Email(tc.in); got != tc.want {
			t.Errorf("Email(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestValidEmail(t *testing.T) {
	valid := []string{"jane@example.com", "john.doe@agilityfeat.com", "a+b@x.co"}
	for _, s := range valid {
		if !ValidEmail(s) {
			t.Errorf("ValidEmail(%q) = false, want true", s)
		}
	}
	invalid := []string{"", "john@com", "no-at-sign.com", "jane doe@example.com", "@example.com"}
	for _, s := range invalid {
		if ValidEmail(s) {
			t.Errorf("ValidEmail(%q) = true, want false", s)
		}
	}
}

func TestZip(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"my zip is 33141", "33141"},
		{"three three one four one", "33141"},
		{"it's three three 1 four one", "33141"},
		{"oh nine one two three", "09123"},
		{"three three one four", ""},
		{"no digits at all", ""},
	}
	for _, tc := range cases {
		if got := Zip(tc.in); got != tc.want {
			t.Errorf("Zip(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestZipFallback(t *testing.T) {
	if got := ZipFallback("yes that's 33141"); got != "33141" {
		t.Fatalf("ZipFallback = %q", got)
	}
	if got := ZipFallback("the zip code is 90210 I think"); got != "90210" {
		t.Fatalf("ZipFallback = %q", got)
	}
	if got := ZipFallback("nothing stated"); got != "" {
		t.Fatalf("ZipFallback = %q, want empty", got)
	}
}

func TestName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"my full name is Jane Smith", "Jane Smith"},
		{"My name is Jane Smith", "Jane Smith"},
		{"I'm John Doe", "John Doe"},
		{"this is Maria Del Carmen", "Maria Del Carmen"},
		{"Jane Smith", "Jane Smith"},
		{"yes sure thing", ""},
	}
	for _, tc := range cases {
		if got := Name(tc.in); got != tc.want {
			t.Errorf("Name(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestWantsApplication(t *testing.T) {
	positive := []string{
		"I'd like to start the application",
		"I'm ready to apply",
		"let's move forward",
		"can I talk with a loan specialist",
		"let's get started",
	}
	for _, s := range positive {
		if !WantsApplication(s) {
			t.Errorf("WantsApplication(%q) = false, want true", s)
		}
	}
	if WantsApplication("what are your hours") {
		t.Errorf("WantsApplication matched unrelated question")
	}
}

func TestWantsHumanAgent(t *testing.T) {
	positive := []string{
		"I want to speak to a human",
		"can you transfer me please",
		"get me a representative",
		"I'd like to talk with a real person",
	}
	for _, s := range positive {
		if !WantsHumanAgent(s) {
			t.Errorf("WantsHumanAgent(%q) = false, want true", s)
		}
	}
	if WantsHumanAgent("I want to start my application") {
		t.Errorf("WantsHumanAgent matched application intent")
	}
}

func TestAcknowledgesHumanHandoff(t *testing.T) {
	if !AcknowledgesHumanHandoff("Transferring you now to a representative.", "Sofia") {
		t.Fatalf("expected handoff acknowledgment to match")
	}
	if !AcknowledgesHumanHandoff("I'll connect you with our support team.", "Sofia") {
		t.Fatalf("expected handoff acknowledgment to match")
	}
	// voice switches to the in-bot specialist are not real transfers
	if AcknowledgesHumanHandoff("I'll transfer you to Sofia, our loan specialist.", "Sofia") {
		t.Fatalf("specialist mention must be suppressed")
	}
	if AcknowledgesHumanHandoff("Let me connect you with the loan specialist now.", "Sofia") {
		t.Fatalf("loan specialist mention must be suppressed")
	}
}

func TestIsAffirmative(t *testing.T) {
	for _, s := range []string{"yes", "Yeah, that works", "correct", "that's right", "Sure."} {
		if !IsAffirmative(s) {
			t.Errorf("IsAffirmative(%q) = false, want true", s)
		}
	}
	for _, s := range []string{"no", "I don't think so", "maybe yes"} {
		if IsAffirmative(s) {
			t.Errorf("IsAffirmative(%q) = true, want false", s)
		}
	}
}

func TestClaimsEmailSent(t *testing.T) {
	for _, s := range []string{
		"I've sent you the email with your link.",
		"We have already sent the link.",
		"I just sent an email to you.",
	} {
		if !ClaimsEmailSent(s) {
			t.Errorf("ClaimsEmailSent(%q) = false, want true", s)
		}
	}
	if ClaimsEmailSent("I will send you the email shortly.") {
		t.Errorf("future tense must not count as sent")
	}
}
