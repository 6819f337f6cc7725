package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chadiek/preapproval-line/internal/convo"
)

func TestRespond_MapsTurnsToMessages(t *testing.T) {
	var gotReq chatCompletionsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("Authorization = %q", auth)
		}
		json.NewDecoder(r.Body).Decode(&gotReq)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"  Hi Jane, thanks for calling.  "}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient("sk-test", "gpt-4o")
	c.Endpoint = srv.URL

	turns := []convo.Turn{
		{Role: convo.RoleSystem, Content: "You are Emma."},
		{Role: convo.RoleUser, Content: "Hello, my name is Jane."},
	}
	reply, err := c.Respond(context.Background(), turns)
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if reply != "Hi Jane, thanks for calling." {
		t.Errorf("reply = %q", reply)
	}
	if gotReq.Model != "gpt-4o" {
		t.Errorf("model = %q", gotReq.Model)
	}
	if len(gotReq.Messages) != 2 {
		t.Fatalf("messages = %+v", gotReq.Messages)
	}
	if gotReq.Messages[0].Role != "system" || gotReq.Messages[1].Role != "user" {
		t.Errorf("roles = %q, %q", gotReq.Messages[0].Role, gotReq.Messages[1].Role)
	}
}

func TestRespond_MissingKey(t *testing.T) {
	c := NewOpenAIClient("", "")
	if _, err := c.Respond(context.Background(), nil); err == nil {
		t.Fatal("expected error without an API key")
	}
}

func TestRespond_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewOpenAIClient("sk-test", "")
	c.Endpoint = srv.URL
	if _, err := c.Respond(context.Background(), []convo.Turn{{Role: convo.RoleUser, Content: "hi"}}); err == nil {
		t.Fatal("expected error on 429")
	}
}

func TestRespond_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient("sk-test", "")
	c.Endpoint = srv.URL
	if _, err := c.Respond(context.Background(), []convo.Turn{{Role: convo.RoleUser, Content: "hi"}}); err == nil {
		t.Fatal("expected error on empty choices")
	}
}
