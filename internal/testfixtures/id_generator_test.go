package testfixtures

import "testing"

func TestIDGenerator(t *testing.T) {
	gen := NewIDGenerator("evt")

	if first, second := gen.Next(), gen.Next(); first != "evt-1" || second != "evt-2" {
		t.Fatalf("unexpected identifiers: %q, %q", first, second)
	}

	gen.Reset("post")
	if next := gen.NextFunc()(); next != "post-1" {
		t.Fatalf("expected post-1 after reset, got %q", next)
	}

	var empty *IDGenerator
	if id := empty.NextFunc()(); id != "" {
		t.Fatalf("nil generator should yield empty ids, got %q", id)
	}
}
