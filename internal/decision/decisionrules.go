package decision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

const defaultHost = "https://api.decisionrules.io"

// Client calls the DecisionRules solver for loan decisioning. Missing
// configuration fails the dependent operation immediately with a
// descriptive error; this is a one-shot HTTP call outside the live call
// path, so there is no silent degradation.
type Client struct {
	HTTPClient *http.Client
	APIKey     string
	RuleID     string
	Host       string
}

// NewClient constructs a solver client with the service's 20s timeout.
func NewClient(apiKey, ruleID, host string) *Client {
	if host == "" {
		host = defaultHost
	}
	return &Client{
		HTTPClient: &http.Client{Timeout: 20 * time.Second},
		APIKey:     apiKey,
		RuleID:     ruleID,
		Host:       host,
	}
}

// Result carries the parsed decision plus the raw solver payload.
type Result struct {
	Outcome string
	Reason  string
	Raw     any
}

// Solve submits the decision input and extracts the outcome.
func (c *Client) Solve(ctx context.Context, input map[string]any) (Result, error) {
	if c.APIKey == "" || c.RuleID == "" {
		return Result{}, fmt.Errorf("DecisionRules configuration is missing: set DECISION_RULES_API_KEY and DECISION_RULES_RULE_ID")
	}

	body, err := json.Marshal(map[string]any{"data": input})
	if err != nil {
		return Result{}, err
	}
	solveURL := fmt.Sprintf("%s/rule/solve/%s", strings.TrimRight(c.Host, "/"), c.RuleID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, solveURL, bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("unable to reach DecisionRules: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		preview, _ := io.ReadAll(resp.Body)
		return Result{}, fmt.Errorf("DecisionRules error %d: %s", resp.StatusCode, string(preview))
	}

	var payload any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Result{}, fmt.Errorf("decode DecisionRules response: %w", err)
	}

	outcome, reason := ExtractOutcome(payload)
	if outcome == "" {
		return Result{}, fmt.Errorf("DecisionRules response did not include a recognizable decision outcome")
	}
	log.Printf("decision: outcome=%s reason=%q", outcome, reason)
	return Result{Outcome: outcome, Reason: reason, Raw: payload}, nil
}

// Approved interprets an outcome string as an approval.
func Approved(outcome string) bool {
	n := strings.ToLower(strings.TrimSpace(outcome))
	return strings.Contains(n, "approve") || strings.Contains(n, "yes") || n == "true"
}

type decisionEntry struct {
	outcome string
	reason  string
}

// ExtractOutcome walks an arbitrary solver payload for decision outcomes
// and picks one. It is defensive against the shapes the solver can return
// (single objects, arrays, nested output maps). Denials take
// priority over approvals, which take priority over manual reviews.
func ExtractOutcome(payload any) (string, string) {
	decisions := collectDecisions(payload)
	if len(decisions) == 0 {
		return "", ""
	}

	priorityGroups := [][]string{
		{"deny", "declin", "reject"},
		{"approve", "yes", "true"},
		{"review", "manual"},
	}
	for _, keywords := range priorityGroups {
		var matches []decisionEntry
		for _, d := range decisions {
			if matchesAny(d.outcome, keywords) {
				matches = append(matches, d)
			}
		}
		if len(matches) > 0 {
			return matches[0].outcome, mergeReasons(matches)
		}
	}
	return decisions[0].outcome, decisions[0].reason
}

func collectDecisions(node any) []decisionEntry {
	var collected []decisionEntry
	switch n := node.(type) {
	case map[string]any:
		for _, key := range []string{"decision", "result", "status", "outcome", "approved"} {
			if v, ok := n[key].(string); ok {
				collected = append(collected, decisionEntry{outcome: v, reason: reasonFrom(n)})
			}
		}
		for _, key := range []string{"outputs", "result", "results", "data"} {
			if nested, ok := n[key]; ok {
				collected = append(collected, collectDecisions(nested)...)
			}
		}
	case []any:
		for _, item := range n {
			collected = append(collected, collectDecisions(item)...)
		}
	case string:
		collected = append(collected, decisionEntry{outcome: n})
	}
	return collected
}

func reasonFrom(n map[string]any) string {
	for _, key := range []string{"reason", "explanation", "details"} {
		switch v := n[key].(type) {
		case string:
			return v
		case map[string]any:
			b, _ := json.Marshal(v)
			return string(b)
		case nil:
		default:
			return fmt.Sprint(v)
		}
	}
	return ""
}

func matchesAny(text string, keywords []string) bool {
	n := strings.ToLower(strings.TrimSpace(text))
	for _, k := range keywords {
		if strings.Contains(n, k) {
			return true
		}
	}
	return false
}

func mergeReasons(entries []decisionEntry) string {
	seen := make(map[string]struct{})
	var reasons []string
	for _, e := range entries {
		if e.reason == "" {
			continue
		}
		if _, dup := seen[e.reason]; dup {
			continue
		}
		seen[e.reason] = struct{}{}
		reasons = append(reasons, e.reason)
	}
	if len(reasons) == 0 {
		return entries[0].reason
	}
	return strings.Join(reasons, "; ")
}
