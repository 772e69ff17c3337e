package passphrase

import (
	"strings"
	"testing"
)

func TestSourceReadsEnvironment(t *testing.T) {
	t.Setenv("MARKETPLACE_TEST_SECRET", "hunter2")
	src := NewSource("MARKETPLACE_TEST_SECRET", "signing secret")
	got, err := src.Get()
	if err != nil || got != "hunter2" {
		t.Fatalf("unexpected secret %q err %v", got, err)
	}
	t.Setenv("MARKETPLACE_TEST_SECRET", "changed")
	if again, _ := src.Get(); again != "hunter2" {
		t.Fatalf("secret not cached: %q", again)
	}
}

func TestSourceRejectsEmptyEnvironment(t *testing.T) {
	t.Setenv("MARKETPLACE_TEST_SECRET", "   ")
	if _, err := NewSource("MARKETPLACE_TEST_SECRET", "").Get(); err == nil || !strings.Contains(err.Error(), "set but empty") {
		t.Fatalf("expected empty secret error, got %v", err)
	}
}
