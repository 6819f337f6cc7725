package convo

import "testing"

func TestLog_AppendAndSnapshotAccessors(t *testing.T) {
	l := NewLog("be helpful")
	l.Append(RoleUser, "hello")
	l.Append(RoleAssistant, "hi there")
	l.Append(RoleUser, "my zip is 33141")

	snap := l.Snapshot()
	if got := snap.LatestUser(); got != "my zip is 33141" {
		t.Fatalf("latest user mismatch: %q", got)
	}
	if got := snap.LatestAssistant(); got != "hi there" {
		t.Fatalf("latest assistant mismatch: %q", got)
	}
	if got := snap.JoinedUser(); got != "hello my zip is 33141" {
		t.Fatalf("joined user mismatch: %q", got)
	}
	if got := snap.JoinedAssistant(); got != "hi there" {
		t.Fatalf("joined assistant mismatch: %q", got)
	}
}

func TestLog_SnapshotIsCopy(t *testing.T) {
	l := NewLog("sys")
	l.Append(RoleUser, "one")
	snap := l.Snapshot()
	l.Append(RoleUser, "two")
	if len(snap) != 2 {
		t.Fatalf("snapshot should not grow with log, len=%d", len(snap))
	}
}

func TestLog_ReplaceSystem(t *testing.T) {
	l := NewLog("old instructions")
	l.Append(RoleUser, "hi")
	l.ReplaceSystem("new instructions")
	snap := l.Snapshot()
	if snap[0].Role != RoleSystem || snap[0].Content != "new instructions" {
		t.Fatalf("system turn not replaced: %+v", snap[0])
	}
	if l.Len() != 2 {
		t.Fatalf("replace must not change turn count, got %d", l.Len())
	}
}

func TestLog_PopLastRetiresOneShotDirective(t *testing.T) {
	l := NewLog("sys")
	l.Append(RoleUser, "hi")
	l.Append(RoleSystem, "Say: welcome aboard")
	popped, ok := l.PopLast()
	if !ok || popped.Content != "Say: welcome aboard" {
		t.Fatalf("expected popped directive, got %+v ok=%v", popped, ok)
	}
	if l.Len() != 2 {
		t.Fatalf("expected 2 turns after pop, got %d", l.Len())
	}
	if _, ok := NewLog("s").PopLast(); !ok {
		t.Fatalf("popping the seed system turn should still succeed")
	}
}

func TestSnapshot_EmptyRoles(t *testing.T) {
	snap := NewLog("sys").Snapshot()
	if snap.LatestUser() != "" || snap.JoinedAssistant() != "" {
		t.Fatalf("expected empty strings for absent roles")
	}
}
