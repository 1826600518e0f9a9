package scraper

import (
	"context"
	"math/rand/v2"
	"time"
)

// backoff yields the delays between attempts: initial, doubling up to
// ceiling.
type backoff struct {
	next    time.Duration
	ceiling time.Duration
	jitter  bool
}

func newBackoff(initial, ceiling time.Duration, jitter bool) *backoff {
	if initial <= 0 {
		initial = 500 * time.Millisecond
	}
	if ceiling < initial {
		ceiling = initial
	}
	return &backoff{next: initial, ceiling: ceiling, jitter: jitter}
}

// Next returns the delay before the next attempt. With jitter the delay is
// spread between 50% and 150% of the nominal value.
func (b *backoff) Next() time.Duration {
	d := b.next
	b.next *= 2
	if b.next > b.ceiling {
		b.next = b.ceiling
	}
	if b.jitter {
		d = time.Duration(float64(d) * (0.5 + rand.Float64()))
	}
	return d
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// poll calls check right away and then every interval until it reports
// done, returns an error, or ctx ends.
func poll(ctx context.Context, interval time.Duration, check func() (bool, error)) error {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		done, err := check()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
