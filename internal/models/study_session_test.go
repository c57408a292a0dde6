package models

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to SessionStatus
		want     bool
	}{
		{StatusScheduled, StatusActive, true},
		{StatusScheduled, StatusPaused, false},
		{StatusScheduled, StatusCompleted, false},
		{StatusActive, StatusPaused, true},
		{StatusActive, StatusCompleted, true},
		{StatusActive, StatusActive, false},
		{StatusPaused, StatusActive, true},
		{StatusPaused, StatusCompleted, true},
		{StatusCompleted, StatusActive, false},
		{StatusCompleted, StatusPaused, false},
		{SessionStatus("bogus"), StatusActive, false},
	}

	for _, tc := range tests {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			if got := CanTransition(tc.from, tc.to); got != tc.want {
				t.Errorf("CanTransition(%q, %q) = %v, want %v", tc.from, tc.to, got, tc.want)
			}
		})
	}
}

func TestSessionStatusValid(t *testing.T) {
	for _, s := range []SessionStatus{StatusScheduled, StatusActive, StatusPaused, StatusCompleted} {
		if !s.Valid() {
			t.Errorf("expected %q to be valid", s)
		}
	}
	for _, s := range []SessionStatus{"", "running", "Completed"} {
		if s.Valid() {
			t.Errorf("expected %q to be invalid", s)
		}
	}
}
