package web

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPollPolicy_DefaultSchedule(t *testing.T) {
	schedule := DefaultPollPolicy().Schedule()

	want := []time.Duration{
		time.Second,
		2 * time.Second,
		3 * time.Second,
		4500 * time.Millisecond,
		6750 * time.Millisecond,
		10 * time.Second,
		10 * time.Second,
		10 * time.Second,
		10 * time.Second,
		10 * time.Second,
		10 * time.Second,
		10 * time.Second,
	}
	assert.Equal(t, want, schedule)
	assert.Equal(t, 87250*time.Millisecond, DefaultPollPolicy().Total())
}

func TestPollPolicy_Bounded(t *testing.T) {
	tests := []struct {
		name    string
		policy  PollPolicy
		wantLen int
		wantMax time.Duration
	}{
		{"default", DefaultPollPolicy(), 12, 10 * time.Second},
		{"single attempt", PollPolicy{InitialDelay: time.Second, Interval: time.Second, Multiplier: 2, MaxInterval: time.Minute, MaxAttempts: 1}, 1, time.Second},
		{"fixed interval", PollPolicy{Interval: time.Second, Multiplier: 1, MaxInterval: time.Minute, MaxAttempts: 5}, 5, time.Second},
		{"multiplier below one", PollPolicy{Interval: time.Second, Multiplier: 0.5, MaxInterval: time.Minute, MaxAttempts: 4}, 4, time.Second},
		{"no attempts", PollPolicy{MaxAttempts: 0}, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schedule := tt.policy.Schedule()
			assert.Len(t, schedule, tt.wantLen)

			var maxDelay time.Duration
			for i, d := range schedule {
				if i > 1 {
					assert.GreaterOrEqual(t, d, schedule[i-1])
				}
				if d > maxDelay {
					maxDelay = d
				}
			}
			assert.Equal(t, tt.wantMax, maxDelay)
		})
	}
}
