package game

import "time"

// RetryPolicy expresses a bounded retry loop: at most MaxAttempts tries
// with a fixed Delay between them. Shared by assignment regeneration and
// the instruction-delivery fallback so the retry shape lives in one place.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// Do runs fn until it succeeds or attempts are exhausted, returning the
// last error.
func (p RetryPolicy) Do(fn func() error) error {
	var err error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 && p.Delay > 0 {
			time.Sleep(p.Delay)
		}
		if err = fn(); err == nil {
			return nil
		}
	}
	return err
}
