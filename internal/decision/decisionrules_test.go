package decision

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSolve_PostsDataEnvelope(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"decision":"approved","reason":"score above cutoff"}]`))
	}))
	defer srv.Close()

	c := NewClient("solver-key", "rule-123", srv.URL)
	res, err := c.Solve(context.Background(), map[string]any{"CreditScore": 720})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if gotPath != "/rule/solve/rule-123" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer solver-key" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	data, ok := gotBody["data"].(map[string]any)
	if !ok || data["CreditScore"] != float64(720) {
		t.Errorf("request body = %+v", gotBody)
	}
	if res.Outcome != "approved" {
		t.Errorf("outcome = %q", res.Outcome)
	}
	if res.Reason != "score above cutoff" {
		t.Errorf("reason = %q", res.Reason)
	}
}

func TestSolve_MissingConfig(t *testing.T) {
	c := NewClient("", "", "")
	if _, err := c.Solve(context.Background(), nil); err == nil {
		t.Fatal("expected error without credentials")
	}
}

func TestSolve_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rule not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient("solver-key", "missing-rule", srv.URL)
	_, err := c.Solve(context.Background(), map[string]any{})
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected 404 error, got %v", err)
	}
}

func TestSolve_NoRecognizableOutcome(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"score": 42}]`))
	}))
	defer srv.Close()

	c := NewClient("solver-key", "rule-123", srv.URL)
	if _, err := c.Solve(context.Background(), map[string]any{}); err == nil {
		t.Fatal("expected error when no outcome field is present")
	}
}

func TestExtractOutcome_DenialWinsOverApproval(t *testing.T) {
	payload := []any{
		map[string]any{"decision": "approved", "reason": "income ok"},
		map[string]any{"decision": "denied", "reason": "credit history"},
	}
	outcome, reason := ExtractOutcome(payload)
	if outcome != "denied" {
		t.Errorf("outcome = %q, want denied", outcome)
	}
	if reason != "credit history" {
		t.Errorf("reason = %q", reason)
	}
}

func TestExtractOutcome_ApprovalWinsOverReview(t *testing.T) {
	payload := []any{
		map[string]any{"result": "manual review"},
		map[string]any{"result": "approve"},
	}
	outcome, _ := ExtractOutcome(payload)
	if outcome != "approve" {
		t.Errorf("outcome = %q, want approve", outcome)
	}
}

func TestExtractOutcome_NestedOutputs(t *testing.T) {
	payload := map[string]any{
		"outputs": map[string]any{
			"status": "Rejected",
			"reason": "debt to income too high",
		},
	}
	outcome, reason := ExtractOutcome(payload)
	if outcome != "Rejected" {
		t.Errorf("outcome = %q", outcome)
	}
	if reason != "debt to income too high" {
		t.Errorf("reason = %q", reason)
	}
}

func TestExtractOutcome_MergesDistinctReasons(t *testing.T) {
	payload := []any{
		map[string]any{"decision": "deny", "reason": "credit history"},
		map[string]any{"decision": "deny", "reason": "credit history"},
		map[string]any{"decision": "declined", "reason": "income unverified"},
	}
	_, reason := ExtractOutcome(payload)
	if reason != "credit history; income unverified" {
		t.Errorf("reason = %q", reason)
	}
}

func TestApproved(t *testing.T) {
	for outcome, want := range map[string]bool{
		"approved":      true,
		"Approve":       true,
		"yes":           true,
		"true":          true,
		"denied":        false,
		"manual review": false,
		"":              false,
	} {
		if got := Approved(outcome); got != want {
			t.Errorf("Approved(%q) = %v, want %v", outcome, got, want)
		}
	}
}
