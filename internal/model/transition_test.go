package model

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from CallStatus
		to   CallStatus
		want bool
	}{
		{CallStatusRinging, CallStatusAccepted, true},
		{CallStatusRinging, CallStatusEnded, true},
		{CallStatusRinging, CallStatusConnected, false},
		{CallStatusRinging, CallStatusRinging, false},
		{CallStatusAccepted, CallStatusConnected, true},
		{CallStatusAccepted, CallStatusEnded, true},
		{CallStatusAccepted, CallStatusRinging, false},
		{CallStatusAccepted, CallStatusAccepted, false},
		{CallStatusConnected, CallStatusEnded, true},
		{CallStatusConnected, CallStatusAccepted, false},
		{CallStatusConnected, CallStatusRinging, false},
		{CallStatusEnded, CallStatusRinging, false},
		{CallStatusEnded, CallStatusAccepted, false},
		{CallStatusEnded, CallStatusConnected, false},
		{CallStatusEnded, CallStatusEnded, false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestKindAllowed(t *testing.T) {
	cases := []struct {
		status CallStatus
		kind   SignalKind
		want   bool
	}{
		{CallStatusRinging, SignalCallAnswer, true},
		{CallStatusRinging, SignalCallReject, true},
		{CallStatusRinging, SignalCallEnd, true},
		{CallStatusRinging, SignalNegotiationOffer, false},
		{CallStatusRinging, SignalNegotiationCandidate, false},
		{CallStatusRinging, SignalCallInitiate, false},
		{CallStatusAccepted, SignalNegotiationOffer, true},
		{CallStatusAccepted, SignalNegotiationAnswer, true},
		{CallStatusAccepted, SignalNegotiationCandidate, true},
		{CallStatusAccepted, SignalCallEnd, true},
		{CallStatusAccepted, SignalCallAnswer, false},
		{CallStatusAccepted, SignalCallReject, false},
		{CallStatusConnected, SignalNegotiationCandidate, true},
		{CallStatusConnected, SignalCallEnd, true},
		{CallStatusConnected, SignalNegotiationOffer, false},
		{CallStatusConnected, SignalNegotiationAnswer, false},
		{CallStatusEnded, SignalCallEnd, false},
		{CallStatusEnded, SignalNegotiationCandidate, false},
		{CallStatusEnded, SignalCallAnswer, false},
	}
	for _, c := range cases {
		if got := KindAllowed(c.status, c.kind); got != c.want {
			t.Errorf("KindAllowed(%s, %s) = %v, want %v", c.status, c.kind, got, c.want)
		}
	}
}

func TestLifecycleTarget(t *testing.T) {
	cases := []struct {
		kind SignalKind
		want CallStatus
	}{
		{SignalCallAnswer, CallStatusAccepted},
		{SignalCallReject, CallStatusEnded},
		{SignalCallEnd, CallStatusEnded},
		{SignalNegotiationOffer, ""},
		{SignalNegotiationAnswer, ""},
		{SignalNegotiationCandidate, ""},
		{SignalCallInitiate, ""},
	}
	for _, c := range cases {
		if got := LifecycleTarget(c.kind); got != c.want {
			t.Errorf("LifecycleTarget(%s) = %q, want %q", c.kind, got, c.want)
		}
	}
}

func TestPairKeyUnordered(t *testing.T) {
	if PairKey("alice", "bob") != PairKey("bob", "alice") {
		t.Fatal("PairKey must not depend on argument order")
	}
	if PairKey("alice", "bob") == PairKey("alice", "carol") {
		t.Fatal("distinct pairs must have distinct keys")
	}
}

func TestSessionOther(t *testing.T) {
	s := &Session{CallerID: "alice", CalleeID: "bob"}
	if s.Other("alice") != "bob" || s.Other("bob") != "alice" {
		t.Fatal("Other must return the peer")
	}
	if s.Other("mallory") != "" {
		t.Fatal("Other must be empty for non-participants")
	}
}
