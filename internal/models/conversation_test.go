package models

import "testing"

func TestCanonicalKeyIsOrderIndependent(t *testing.T) {
	pairs := [][2]string{
		{"alice", "bob"},
		{"zed", "amy"},
		{"uid-10", "uid-9"},
		{"same", "same"},
		{"", "x"},
	}
	for _, p := range pairs {
		if CanonicalKey(p[0], p[1]) != CanonicalKey(p[1], p[0]) {
			t.Errorf("CanonicalKey(%q, %q) differs from reversed", p[0], p[1])
		}
	}
	if got := CanonicalKey("bob", "alice"); got != "alice_bob" {
		t.Errorf("expected alice_bob, got %q", got)
	}
}

func TestCanonicalKeyIsUniquePerPair(t *testing.T) {
	pairs := [][2]string{
		{"a_b", "c"},
		{"a", "b_c"},
		{"a", "b%5Fc"},
		{"a%", "b"},
		{"a", "%b"},
		{"a", "b"},
	}
	seen := make(map[string][2]string)
	for _, p := range pairs {
		key := CanonicalKey(p[0], p[1])
		if prev, ok := seen[key]; ok {
			t.Errorf("pairs %q and %q share key %q", prev, p, key)
		}
		seen[key] = p
	}
	if got := CanonicalKey("c", "a_b"); got != "a%5Fb_c" {
		t.Errorf("expected a%%5Fb_c, got %q", got)
	}
}

func TestDirectConversationTopic(t *testing.T) {
	a := DirectConversation("u2", "u1")
	b := DirectConversation("u1", "u2")
	if a != b {
		t.Fatalf("expected equal conversations, got %v and %v", a, b)
	}
	if a.Topic() != "messages:direct:u1_u2" {
		t.Errorf("unexpected topic %q", a.Topic())
	}
	if ClubConversation("dsa").String() != "club:dsa" {
		t.Errorf("unexpected club conversation %q", ClubConversation("dsa").String())
	}
}

func TestUserLabelFallsBackToEmailLocalPart(t *testing.T) {
	tests := []struct {
		user User
		want string
	}{
		{User{DisplayName: "Ann", Email: "ann@x.com"}, "Ann"},
		{User{DisplayName: "  ", Email: "bob@y.com"}, "bob"},
		{User{Email: "noat"}, "noat"},
		{User{}, "Anonymous"},
	}
	for _, tt := range tests {
		if got := tt.user.Label(); got != tt.want {
			t.Errorf("Label() = %q, want %q", got, tt.want)
		}
	}
}

func TestMessageBefore(t *testing.T) {
	a := Message{ID: "a", ServerTimestamp: 1}
	b := Message{ID: "b", ServerTimestamp: 1}
	c := Message{ID: "0", ServerTimestamp: 2}
	if !a.Before(b) || b.Before(a) {
		t.Error("equal timestamps should order by id")
	}
	if !b.Before(c) {
		t.Error("earlier timestamp should sort first")
	}
}
