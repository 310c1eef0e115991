package oms

import (
	"testing"
	"time"
)

func TestSessionNextClose(t *testing.T) {
	s, err := NewSession(SessionConfig{CloseTime: "15:30"})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	tests := []struct {
		now, want time.Time
	}{
		{time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), time.Date(2026, 3, 2, 15, 30, 0, 0, time.UTC)},
		{time.Date(2026, 3, 2, 15, 30, 0, 0, time.UTC), time.Date(2026, 3, 3, 15, 30, 0, 0, time.UTC)},
		{time.Date(2026, 3, 31, 23, 0, 0, 0, time.UTC), time.Date(2026, 4, 1, 15, 30, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		if got := s.NextClose(tt.now); !got.Equal(tt.want) {
			t.Fatalf("NextClose(%s) = %s, want %s", tt.now, got, tt.want)
		}
	}
}

func TestSessionConfigErrors(t *testing.T) {
	if s, err := NewSession(SessionConfig{}); s != nil || err != nil {
		t.Fatalf("empty config means no session")
	}
	if _, err := NewSession(SessionConfig{CloseTime: "25:00"}); err == nil {
		t.Fatalf("expected an error for a bad close time")
	}
	if _, err := NewSession(SessionConfig{CloseTime: "15:30", Location: "Nowhere/City"}); err == nil {
		t.Fatalf("expected an error for an unknown location")
	}
}
