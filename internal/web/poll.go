package web

import "time"

// PollPolicy is the success page lookup schedule. The page polls at most
// MaxAttempts times and then stops in a terminal pending state.
type PollPolicy struct {
	InitialDelay time.Duration
	Interval     time.Duration
	Multiplier   float64
	MaxInterval  time.Duration
	MaxAttempts  int
}

// DefaultPollPolicy returns the default schedule.
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{
		InitialDelay: time.Second,
		Interval:     2 * time.Second,
		Multiplier:   1.5,
		MaxInterval:  10 * time.Second,
		MaxAttempts:  12,
	}
}

// Schedule returns the wait before each attempt. The first entry is the
// initial delay; later entries grow by Multiplier and are capped at MaxInterval.
func (p PollPolicy) Schedule() []time.Duration {
	if p.MaxAttempts <= 0 {
		return nil
	}
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}

	delays := make([]time.Duration, 0, p.MaxAttempts)
	delays = append(delays, p.InitialDelay)

	next := float64(p.Interval)
	for len(delays) < p.MaxAttempts {
		d := time.Duration(next)
		if p.MaxInterval > 0 && d > p.MaxInterval {
			d = p.MaxInterval
		}
		delays = append(delays, d)
		next *= multiplier
	}
	return delays
}

// Total is the time from page load until the last attempt.
func (p PollPolicy) Total() time.Duration {
	var total time.Duration
	for _, d := range p.Schedule() {
		total += d
	}
	return total
}

func (p PollPolicy) scheduleMillis() []int64 {
	schedule := p.Schedule()
	out := make([]int64, len(schedule))
	for i, d := range schedule {
		out[i] = d.Milliseconds()
	}
	return out
}
