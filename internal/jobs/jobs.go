// Package jobs runs periodic background tasks, retrying failed runs with backoff.
package jobs

import (
	"context"
	"errors"
	"time"
)

// Task is the work a job performs on each run.
type Task func(ctx context.Context) error

// Job is a named task run every Interval.
type Job struct {
	Name        string
	Interval    time.Duration
	MaxAttempts int
	Run         Task
}

// ErrMaxAttempts is returned when every attempt of a run failed.
var ErrMaxAttempts = errors.New("max attempts reached")

const maxBackoff = 5 * time.Minute

// BackoffDuration is the wait before retrying after attempt n: 2^n seconds, capped.
func BackoffDuration(attempt int) time.Duration {
	switch {
	case attempt <= 0:
		return time.Second
	case attempt >= 9:
		return maxBackoff
	}
	return min(time.Duration(1<<attempt)*time.Second, maxBackoff)
}
