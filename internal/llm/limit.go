// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Limiter bounds outstanding provider calls and, optionally, their rate.
// One Limiter is shared by the completer and the embedder of a run.
type Limiter struct {
	sem  *semaphore.Weighted
	rate *rate.Limiter
}

// NewLimiter allows at most maxConcurrent calls in flight. A positive
// perSecond adds a token bucket with a burst of maxConcurrent.
func NewLimiter(maxConcurrent int, perSecond float64) *Limiter {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	l := &Limiter{sem: semaphore.NewWeighted(int64(maxConcurrent))}
	if perSecond > 0 {
		l.rate = rate.NewLimiter(rate.Limit(perSecond), maxConcurrent)
	}
	return l
}

// Do runs fn once a slot is free and the rate allows it.
func (l *Limiter) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer l.sem.Release(1)
	if l.rate != nil {
		if err := l.rate.Wait(ctx); err != nil {
			return err
		}
	}
	return fn(ctx)
}

// Completer wraps c so every call goes through the limiter.
func (l *Limiter) Completer(c Completer) Completer {
	return CompleterFunc(func(ctx context.Context, prompt string, opts Options) (string, error) {
		var out string
		err := l.Do(ctx, func(ctx context.Context) error {
			var err error
			out, err = c.Complete(ctx, prompt, opts)
			return err
		})
		return out, err
	})
}

// Embedder wraps e so every call goes through the limiter.
func (l *Limiter) Embedder(e Embedder) Embedder {
	return EmbedderFunc(func(ctx context.Context, text string) ([]float32, error) {
		var out []float32
		err := l.Do(ctx, func(ctx context.Context) error {
			var err error
			out, err = e.Embed(ctx, text)
			return err
		})
		return out, err
	})
}
