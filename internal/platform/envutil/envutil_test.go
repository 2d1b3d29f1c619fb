package envutil

import (
	"testing"
	"time"
)

func TestDuration(t *testing.T) {
	t.Setenv("SF_TEST_DURATION", "1500ms")
	if got := Duration("SF_TEST_DURATION", time.Second); got != 1500*time.Millisecond {
		t.Fatalf("got %s", got)
	}
	t.Setenv("SF_TEST_DURATION", "7")
	if got := Duration("SF_TEST_DURATION", time.Second); got != 7*time.Second {
		t.Fatalf("got %s", got)
	}
	t.Setenv("SF_TEST_DURATION", "soon")
	if got := Duration("SF_TEST_DURATION", time.Second); got != time.Second {
		t.Fatalf("got %s", got)
	}
}

func TestBoolAndInt(t *testing.T) {
	t.Setenv("SF_TEST_BOOL", "on")
	if !Bool("SF_TEST_BOOL", false) {
		t.Fatal("expected true")
	}
	t.Setenv("SF_TEST_BOOL", "nope")
	if Bool("SF_TEST_BOOL", true) {
		t.Fatal("expected false")
	}
	if !Bool("SF_TEST_BOOL_UNSET", true) {
		t.Fatal("expected default")
	}
	t.Setenv("SF_TEST_INT", "x")
	if Int("SF_TEST_INT", 3) != 3 {
		t.Fatal("expected default on parse error")
	}
}
