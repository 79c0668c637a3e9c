package circuit

import "time"

// counts the outcome of calls in buckets of one second, within a
// limited window of seconds.
type window struct {
	buckets []bucket
}

type bucket struct {
	second   int64
	success  int
	failures int
}

func newWindow(seconds int) *window {
	if seconds <= 0 {
		seconds = 1
	}

	return &window{buckets: make([]bucket, seconds)}
}

func (w *window) size() int64 {
	return int64(len(w.buckets))
}

func (w *window) record(now time.Time, failure bool) {
	s := now.Unix()
	b := &w.buckets[s%w.size()]
	if b.second != s {
		*b = bucket{second: s}
	}

	if failure {
		b.failures++
	} else {
		b.success++
	}
}

// returns the total number of calls and the number of failures in the
// window ending at now.
func (w *window) counts(now time.Time) (total, failures int) {
	s := now.Unix()
	for _, b := range w.buckets {
		if b.second > s-w.size() && b.second <= s {
			total += b.success + b.failures
			failures += b.failures
		}
	}

	return
}

func (w *window) reset() {
	clear(w.buckets)
}
