package model

import (
	"testing"
	"time"
)

func TestAttemptStatusTransitions(t *testing.T) {
	cases := []struct {
		from    AttemptStatus
		to      AttemptStatus
		allowed bool
	}{
		{AttemptInProgress, AttemptCompleted, true},
		{AttemptInProgress, AttemptTimedOut, true},
		{AttemptInProgress, AttemptAbandoned, true},
		{AttemptCompleted, AttemptInProgress, false},
		{AttemptCompleted, AttemptTimedOut, false},
		{AttemptTimedOut, AttemptCompleted, false},
		{AttemptAbandoned, AttemptCompleted, false},
	}

	for _, c := range cases {
		a := &TestAttempt{Status: c.from}
		err := a.TransitionTo(c.to)
		if c.allowed && err != nil {
			t.Errorf("transition %s -> %s: unexpected error %v", c.from, c.to, err)
		}
		if !c.allowed {
			if err == nil {
				t.Errorf("transition %s -> %s: expected rejection", c.from, c.to)
			}
			if a.Status != c.from {
				t.Errorf("transition %s -> %s: status mutated on rejection", c.from, c.to)
			}
		}
	}
}

func TestAttemptStatusTerminal(t *testing.T) {
	if AttemptInProgress.Terminal() {
		t.Error("in_progress must not be terminal")
	}
	for _, s := range []AttemptStatus{AttemptCompleted, AttemptTimedOut, AttemptAbandoned} {
		if !s.Terminal() {
			t.Errorf("%s must be terminal", s)
		}
	}
}

func TestAttemptDeadline(t *testing.T) {
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	attempt := &TestAttempt{StartTime: start}

	timed := &Test{TimeMode: TimeModeTimed, TimeLimitMinutes: 10}
	if got := attempt.Deadline(timed); !got.Equal(start.Add(10 * time.Minute)) {
		t.Errorf("deadline = %v, want start+10m", got)
	}

	untimed := &Test{TimeMode: TimeModeUnlimited, TimeLimitMinutes: 10}
	if got := attempt.Deadline(untimed); !got.IsZero() {
		t.Errorf("untimed deadline = %v, want zero", got)
	}
}
