package extract

import (
	"regexp"
	"strings"
)

// Extractors turn raw utterance text into candidate structured values.
// Absence of a candidate is signaled by an empty string; these functions
// never fail on malformed input.

// spokenDomains rewrites contractions the ASR tends to produce when a
// caller reads out a domain ("gmail dotcom").
var spokenDomains = strings.NewReplacer(
	"dotcom", ".com",
	"dotnet", ".net",
	"dotorg", ".org",
	"dotgov", ".gov",
	"dotco", ".co",
)

// misheardWords corrects domain-specific words the ASR reliably gets wrong.
var misheardWords = strings.NewReplacer(
	"agilityfeet", "agilityfeat",
	"agilityfit", "agilityfeat",
)

var (
	spokenAtRe         = regexp.MustCompile(`\b(?:at|arroba)\b`)
	spokenDotRe        = regexp.MustCompile(`\b(?:dot|period)\b`)
	spokenUnderscoreRe = regexp.MustCompile(`\bunderscore\b`)
	spokenDashRe       = regexp.MustCompile(`\b(?:dash|hyphen|minus)\b`)
	spokenPlusRe       = regexp.MustCompile(`\bplus\b`)

	emailSearchRe = regexp.MustCompile(`[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}`)
	emailStrictRe = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	emailTokenRe  = regexp.MustCompile(`^[a-z0-9._%+@-]+$`)
)

// NormalizeSpokenEmail lower-cases text and rewrites spoken-word email
// tokens ("john dot doe at gmail dot com") into symbol form.
func NormalizeSpokenEmail(text string) string {
	t := strings.ToLower(text)
	t = misheardWords.Replace(t)
	t = spokenDomains.Replace(t)
	t = spokenAtRe.ReplaceAllString(t, "@")
	t = spokenDotRe.ReplaceAllString(t, ".")
	t = spokenUnderscoreRe.ReplaceAllString(t, "_")
	t = spokenDashRe.ReplaceAllString(t, "-")
	t = spokenPlusRe.ReplaceAllString(t, "+")
	return t
}

// Email searches text for an email address after spoken-word normalization.
// If the normalized text has no match, whitespace is stripped and the search
// retried once, which recovers addresses the ASR split into separate words.
// Tokens carrying characters outside the address class ("it's", trailing
// punctuation) are dropped before the compact retry so they cannot glue
// onto the local part.
func Email(text string) string {
	norm := NormalizeSpokenEmail(text)
	if m := emailSearchRe.FindString(norm); m != "" {
		return m
	}
	var parts []string
	for _, f := range strings.Fields(norm) {
		if emailTokenRe.MatchString(f) {
			parts = append(parts, f)
		}
	}
	return emailSearchRe.FindString(strings.Join(parts, ""))
}

// ValidEmail reports whether s is a deliverable-looking address. This is a
// stricter check than extraction: full-string match, bounded lengths, and a
// dotted domain.
func ValidEmail(s string) bool {
	if s == "" || len(s) > 254 {
		return false
	}
	if !emailStrictRe.MatchString(s) {
		return false
	}
	at := strings.Index(s, "@")
	local, domain := s[:at], s[at+1:]
	if local == "" || len(local) > 64 {
		return false
	}
	return strings.Contains(domain, ".")
}

var bareZipRe = regexp.MustCompile(`\b\d{5}\b`)

var digitWords = map[string]string{
	"zero": "0", "oh": "0", "o": "0",
	"one": "1", "two": "2", "three": "3", "four": "4",
	"five": "5", "six": "6", "seven": "7", "eight": "8", "nine": "9",
}

// Zip finds a 5-digit zip code in text. A bare 5-digit token wins; failing
// that, digit words and numerals are assembled in order ("three three one
// four one" -> "33141"). Fewer than five accumulated digits yields nothing.
func Zip(text string) string {
	if m := bareZipRe.FindString(text); m != "" {
		return m
	}
	var digits strings.Builder
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	for _, tok := range tokens {
		if d, ok := digitWords[tok]; ok {
			digits.WriteString(d)
		} else if isAllDigits(tok) {
			digits.WriteString(tok)
		}
		if digits.Len() >= 5 {
			return digits.String()[:5]
		}
	}
	return ""
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

var namePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:(?i:full name is))\s+([A-Z][a-zA-Z]+(?:\s+[A-Z][a-zA-Z]+){0,2})`),
	regexp.MustCompile(`(?:(?i:my name is|i'm|i am|this is|it's|it is))\s+([A-Z][a-zA-Z]+(?:\s+[A-Z][a-zA-Z]+){0,2})`),
	regexp.MustCompile(`\b([A-Z][a-z]+(?:\s+[A-Z][a-z]+){1,2})\b`),
}

// Name looks for the caller's name: a "full name is X" statement first, an
// introduction phrase next, then a bare run of two or three capitalized
// words. First pattern to match wins.
func Name(text string) string {
	for _, re := range namePatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

var startApplicationRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bstart (?:the |my |an )?application\b`),
	regexp.MustCompile(`(?i)\bready to apply\b`),
	regexp.MustCompile(`(?i)\bmove forward\b`),
	regexp.MustCompile(`(?i)\b(?:speak|talk) (?:to|with) (?:the |a )?loan specialist\b`),
	regexp.MustCompile(`(?i)\b(?:let'?s |i (?:want|would like) to )?get started\b`),
	regexp.MustCompile(`(?i)\bapply (?:for|now)\b`),
}

// WantsApplication reports whether the user text signals intent to begin
// the loan application.
func WantsApplication(text string) bool {
	for _, re := range startApplicationRes {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

var humanAgentRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:want|need|would like|i'?d like)\s+to\s+(?:speak|talk)\s+(?:to|with)\s+(?:a\s+|an\s+)?(?:human|agent|representative|real person|person)\b`),
	regexp.MustCompile(`(?i)\b(?:speak|talk) (?:to|with) (?:a |an )?(?:human|live agent|real person)\b`),
	regexp.MustCompile(`(?i)\btransfer me\b`),
	regexp.MustCompile(`(?i)\bget me (?:a |an )?(?:human|agent|representative)\b`),
}

// WantsHumanAgent reports whether the user is asking to be handed to a
// live person.
func WantsHumanAgent(text string) bool {
	for _, re := range humanAgentRes {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

var handoffAckRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:transferring|connecting|forwarding) you (?:now )?(?:to|over to|with) ([^.!?]*)`),
	regexp.MustCompile(`(?i)\blet me (?:transfer|connect|forward) you (?:to|over to|with) ([^.!?]*)`),
	regexp.MustCompile(`(?i)\bi(?:'ll| will) (?:transfer|connect|forward) you (?:to|over to|with) ([^.!?]*)`),
}

// AcknowledgesHumanHandoff reports whether the assistant text contains an
// acknowledgment of a handoff to a human. Acknowledgments that actually
// refer to the loan-specialist persona (an in-bot voice switch, not a real
// transfer) are suppressed.
func AcknowledgesHumanHandoff(text, loanAgentName string) bool {
	for _, re := range handoffAckRes {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			target := strings.ToLower(m[1])
			if loanAgentName != "" && strings.Contains(target, strings.ToLower(loanAgentName)) {
				continue
			}
			if strings.Contains(target, "loan specialist") {
				continue
			}
			return true
		}
	}
	return false
}

var affirmativeRe = regexp.MustCompile(`(?i)^\s*(?:yes|yeah|yep|correct|that'?s right|affirmative|exactly|sure|right)\b`)

// IsAffirmative reports whether text opens with a yes-like confirmation.
func IsAffirmative(text string) bool {
	return affirmativeRe.MatchString(text)
}

var claimsSentRe = regexp.MustCompile(`(?i)\b(?:i'?ve|i have|we'?ve|we have|just) (?:already )?sent (?:you )?(?:the |an? )?(?:email|link|secure link)\b`)

// ClaimsEmailSent reports whether the assistant text asserts an email or
// link has already been sent.
func ClaimsEmailSent(text string) bool {
	return claimsSentRe.MatchString(text)
}

var zipFallbackRe = regexp.MustCompile(`(?i)(?:that'?s|that is|zip code is|zip is|is)\s+(\d{5})\b`)

// ZipFallback matches stated zip phrasings like "zip code is 33141" that the
// primary search may have missed.
func ZipFallback(text string) string {
	if m := zipFallbackRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}
