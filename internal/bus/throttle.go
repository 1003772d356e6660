package bus

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/ricesearch/rice-deteriorate/internal/pkg/errors"
)

// ThrottledPublisher limits the rate at which events reach the inner publisher.
// Publish blocks until the limiter admits the event or ctx is done.
type ThrottledPublisher struct {
	inner   Publisher
	limiter *rate.Limiter
}

// NewThrottledPublisher allows perSecond events per second with the given burst.
// A burst below 1 is raised to 1.
func NewThrottledPublisher(inner Publisher, perSecond float64, burst int) *ThrottledPublisher {
	if burst < 1 {
		burst = 1
	}
	return &ThrottledPublisher{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Publish waits for a token and then publishes.
func (p *ThrottledPublisher) Publish(ctx context.Context, topic string, event Event) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return errors.Wrap(errors.CodeUnavailable, "publish throttled", err)
	}
	return p.inner.Publish(ctx, topic, event)
}

// Unwrap returns the inner publisher.
func (p *ThrottledPublisher) Unwrap() Publisher {
	return p.inner
}

// Close closes the inner publisher.
func (p *ThrottledPublisher) Close() error {
	return p.inner.Close()
}
