package stt

import (
	"testing"
	"time"
)

func TestAssemblyAI_ConnectMissingKey(t *testing.T) {
	s := NewAssemblyAIService("")
	if err := s.Connect(); err == nil {
		t.Fatal("expected error without an API key")
	}
}

func TestAssemblyAI_SendULaw8kRequiresConnection(t *testing.T) {
	s := NewAssemblyAIService("key")
	if err := s.SendULaw8k(make([]byte, 160)); err == nil {
		t.Fatal("expected error before Connect")
	}
}

func TestAssemblyAI_CommitDelta(t *testing.T) {
	s := NewAssemblyAIService("key")

	s.accMu.Lock()
	s.latestFullTranscript = "my name is jane"
	first := s.commitDeltaLocked()
	s.accMu.Unlock()
	if first != "my name is jane" {
		t.Errorf("first delta = %q", first)
	}

	// the turn transcript grows in place, only the tail is new
	s.accMu.Lock()
	s.latestFullTranscript = "my name is jane smith"
	second := s.commitDeltaLocked()
	s.accMu.Unlock()
	if second != "smith" {
		t.Errorf("second delta = %q", second)
	}

	// unchanged transcript yields nothing
	s.accMu.Lock()
	third := s.commitDeltaLocked()
	s.accMu.Unlock()
	if third != "" {
		t.Errorf("third delta = %q", third)
	}
}

func TestAssemblyAI_TurnMessageEmitsPartial(t *testing.T) {
	s := NewAssemblyAIService("key")
	s.processMessage([]byte(`{"type":"Turn","transcript":"my zip is three three"}`))

	select {
	case partial := <-s.transcripts:
		if partial != "my zip is three three" {
			t.Errorf("partial = %q", partial)
		}
	default:
		t.Fatal("partial transcript not emitted")
	}
	s.accMu.Lock()
	defer s.accMu.Unlock()
	if s.latestFullTranscript != "my zip is three three" {
		t.Errorf("latest transcript = %q", s.latestFullTranscript)
	}
	if s.silenceTimer == nil {
		t.Error("silence timer should be armed after a turn")
	}
	s.silenceTimer.Stop()
}

func TestAssemblyAI_CloseRacingFlushDoesNotPanic(t *testing.T) {
	s := NewAssemblyAIService("key")
	s.connected = true
	s.processMessage([]byte(`{"type":"Turn","transcript":"late words"}`))
	s.accMu.Lock()
	if s.silenceTimer != nil {
		s.silenceTimer.Stop()
	}
	s.accMu.Unlock()

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	s.accMu.Lock()
	s.latestFullTranscript = s.latestFullTranscript + " straggler"
	s.accMu.Unlock()
	s.flushPendingDelta()
	s.finalizeDueToSilence()
}

func TestAssemblyAI_TerminationFlushesDelta(t *testing.T) {
	s := NewAssemblyAIService("key")
	s.processMessage([]byte(`{"type":"Turn","transcript":"jane at example dot com"}`))
	s.accMu.Lock()
	s.silenceTimer.Stop()
	s.silenceTimer = nil
	s.accMu.Unlock()

	s.processMessage([]byte(`{"type":"Termination","audio_duration_seconds":4.2,"session_duration_seconds":5.0}`))
	select {
	case utterance := <-s.finalizeCh:
		if utterance != "jane at example dot com" {
			t.Errorf("utterance = %q", utterance)
		}
	case <-time.After(time.Second):
		t.Fatal("termination did not flush the pending delta")
	}
}
