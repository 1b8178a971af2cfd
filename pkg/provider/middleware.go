package provider

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// timeoutProvider bounds every completion call with a deadline. A timed-out
// call returns an error wrapping context.DeadlineExceeded; the caller decides
// whether to degrade or fall back.
type timeoutProvider struct {
	inner   Provider
	timeout time.Duration
}

// WithTimeout wraps a provider so no single call can outlive the given
// duration. Non-positive durations return the provider unchanged.
func WithTimeout(p Provider, timeout time.Duration) Provider {
	if timeout <= 0 {
		return p
	}
	return &timeoutProvider{inner: p, timeout: timeout}
}

func (p *timeoutProvider) Name() string { return p.inner.Name() }

func (p *timeoutProvider) Complete(ctx context.Context, req Request) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.inner.Complete(ctx, req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return Response{}, fmt.Errorf("provider %s: timed out after %s: %w", p.inner.Name(), p.timeout, context.DeadlineExceeded)
		}
		return Response{}, err
	}
	return resp, nil
}

// rateLimitedProvider gates completion calls through a token-bucket limiter
// shared across chains.
type rateLimitedProvider struct {
	inner   Provider
	limiter *rate.Limiter
}

// WithRateLimit wraps a provider with a requests-per-second limiter. Wait
// honors ctx, so a cancelled chain never blocks on the bucket.
func WithRateLimit(p Provider, rps float64, burst int) Provider {
	if rps <= 0 {
		return p
	}
	if burst < 1 {
		burst = 1
	}
	return &rateLimitedProvider{
		inner:   p,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (p *rateLimitedProvider) Name() string { return p.inner.Name() }

func (p *rateLimitedProvider) Complete(ctx context.Context, req Request) (Response, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return Response{}, fmt.Errorf("provider %s: rate limit wait: %w", p.inner.Name(), err)
	}
	return p.inner.Complete(ctx, req)
}
