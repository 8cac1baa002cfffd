package tool

import "testing"

func TestSuccess(t *testing.T) {
	r := Success("websearch", "three results")
	if !r.OK() {
		t.Error("OK() = false, want true")
	}
	if r.Payload() != "three results" {
		t.Errorf("Payload() = %q", r.Payload())
	}
	if r.Err() != "" {
		t.Errorf("Err() = %q, want empty", r.Err())
	}
	if r.Source() != "tool:websearch" {
		t.Errorf("Source() = %q, want tool:websearch", r.Source())
	}
}

func TestFailure(t *testing.T) {
	r := Failure("database", "connection refused")
	if r.OK() {
		t.Error("OK() = true, want false")
	}
	if r.Payload() != "" {
		t.Errorf("Payload() = %q, want empty", r.Payload())
	}
	if r.Err() != "connection refused" {
		t.Errorf("Err() = %q", r.Err())
	}
}

func TestSourceID(t *testing.T) {
	if got := SourceID("database"); got != "tool:database" {
		t.Errorf("SourceID() = %q, want tool:database", got)
	}
}
