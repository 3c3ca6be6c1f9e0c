// Package bwlimit shapes write throughput to a configured rate using a
// token-bucket limiter (spec.md §4.14), the same approach rclone wires
// golang.org/x/time/rate for under --bwlimit.
package bwlimit

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// Limiter wraps an io.Writer, sleeping as needed between writes to stay
// at or below the configured rate. A zero-value Limiter's Writer methods
// are a plain passthrough (no limiting configured).
type Limiter struct {
	lim *rate.Limiter
}

// New returns a Limiter admitting ratePerSec bytes/sec, with a bucket
// sized to burstBytes (one second of rate when burstBytes <= 0, per
// spec.md §4.14).
func New(ratePerSec, burstBytes int) *Limiter {
	if ratePerSec <= 0 {
		return &Limiter{}
	}
	burst := burstBytes
	if burst <= 0 {
		burst = ratePerSec
	}
	return &Limiter{lim: rate.NewLimiter(rate.Limit(ratePerSec), burst)}
}

// Unlimited returns a Limiter that never throttles.
func Unlimited() *Limiter { return &Limiter{} }

// ReadSize caps a read buffer so a single read can't request more than
// half the bucket's burst, preventing overshoot on slow configured rates
// (spec.md §4.14). want is the caller's preferred size.
func (l *Limiter) ReadSize(want int) int {
	if l == nil || l.lim == nil {
		return want
	}
	ceiling := l.lim.Burst() / 2
	if ceiling <= 0 {
		ceiling = 1
	}
	if want > ceiling {
		return ceiling
	}
	return want
}

// Wait blocks, honoring ctx cancellation, until n bytes are admitted by
// the limiter. A nil/unlimited Limiter returns immediately.
func (l *Limiter) Wait(ctx context.Context, n int) error {
	if l == nil || l.lim == nil || n <= 0 {
		return nil
	}
	return l.lim.WaitN(ctx, n)
}

// Writer wraps out so every Write is throttled by l.
func (l *Limiter) Writer(ctx context.Context, out io.Writer) io.Writer {
	return &limitedWriter{ctx: ctx, out: out, lim: l}
}

type limitedWriter struct {
	ctx context.Context
	out io.Writer
	lim *Limiter
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		n := w.lim.ReadSize(len(p))
		chunk := p[:n]
		if err := w.lim.Wait(w.ctx, n); err != nil {
			return written, err
		}
		wn, err := w.out.Write(chunk)
		written += wn
		if err != nil {
			return written, err
		}
		p = p[n:]
	}
	return written, nil
}
