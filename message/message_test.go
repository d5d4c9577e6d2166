package message

import "testing"

func TestNewMessage(t *testing.T) {
	m := NewMessage(RoleUser, "how do I replace the filter")
	if m.Role != RoleUser {
		t.Fatalf("role = %v", m.Role)
	}
	if m.Text() != "how do I replace the filter" {
		t.Fatalf("text = %q", m.Text())
	}
	if m.ID == "" || m.CreatedAt.IsZero() {
		t.Fatal("message missing ID or timestamp")
	}
}

func TestTextOnNil(t *testing.T) {
	var m *Message
	if m.Text() != "" {
		t.Fatal("nil message should stringify to empty")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	m := NewMessage(RoleAssistant, "original")
	m.Metadata["round"] = 1

	c := Clone(m)
	c.Content = "changed"
	c.Metadata["round"] = 2

	if m.Content != "original" {
		t.Fatal("clone mutated the source content")
	}
	if m.Metadata["round"] != 1 {
		t.Fatal("clone shares metadata with the source")
	}
}

func TestCloneMessages(t *testing.T) {
	if CloneMessages(nil) != nil {
		t.Fatal("empty input should clone to nil")
	}
	msgs := []*Message{
		NewMessage(RoleSystem, "prompt"),
		NewMessage(RoleUser, "question"),
	}
	clones := CloneMessages(msgs)
	if len(clones) != 2 {
		t.Fatalf("expected 2 clones, got %d", len(clones))
	}
	clones[0].Content = "mutated"
	if msgs[0].Content != "prompt" {
		t.Fatal("clones share backing messages")
	}
}
