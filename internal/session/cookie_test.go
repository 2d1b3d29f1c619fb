package session

import (
	"errors"
	"testing"
	"time"
)

func TestSignerRoundTrip(t *testing.T) {
	s, err := NewSigner("secret", time.Hour)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	id := NewID()
	v, err := s.Issue(id)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	got, err := s.Parse(v)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got != id {
		t.Fatalf("got=%q want=%q", got, id)
	}
}

func TestSignerRejectsForgedAndExpired(t *testing.T) {
	s, _ := NewSigner("secret", time.Hour)
	other, _ := NewSigner("other-secret", time.Hour)

	forged, _ := other.Issue("sess")
	if _, err := s.Parse(forged); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("forged cookie accepted: %v", err)
	}

	past := time.Now().Add(-2 * time.Hour)
	s.now = func() time.Time { return past }
	old, _ := s.Issue("sess")
	s.now = time.Now
	if _, err := s.Parse(old); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expired cookie accepted: %v", err)
	}

	if _, err := s.Parse(""); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("empty cookie accepted: %v", err)
	}
	if _, err := NewSigner(" ", time.Hour); err == nil {
		t.Fatalf("blank secret accepted")
	}
}
