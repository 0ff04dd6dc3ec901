package provider

import (
	"context"
	"io"
	"iter"
	"time"

	"boq-estimator/internal/metrics"
	"boq-estimator/internal/models"
)

const (
	modeComplete = "complete"
	modeStream   = "stream"
)

type instrumented struct {
	next Provider
}

// WithMetrics records call counts, latency and streamed fragments for p.
func WithMetrics(p Provider) Provider {
	return &instrumented{next: p}
}

func (p *instrumented) Name() string {
	return p.next.Name()
}

// Unwrap returns the decorated provider.
func (p *instrumented) Unwrap() Provider {
	return p.next
}

// Close closes the decorated provider when it holds resources.
func (p *instrumented) Close() error {
	if c, ok := p.next.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (p *instrumented) Complete(ctx context.Context, req models.CompletionRequest) (*models.Completion, error) {
	start := time.Now()
	resp, err := p.next.Complete(ctx, req)
	observe(p.Name(), modeComplete, start, err)
	return resp, err
}

func (p *instrumented) Stream(ctx context.Context, req models.CompletionRequest) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		start := time.Now()
		var (
			failure error
			count   int
		)
		for fragment, err := range p.next.Stream(ctx, req) {
			if err != nil {
				failure = err
			} else {
				count++
			}
			if !yield(fragment, err) {
				break
			}
		}
		metrics.StreamFragments.WithLabelValues(p.Name()).Add(float64(count))
		observe(p.Name(), modeStream, start, failure)
	}
}

func observe(name, mode string, start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	metrics.UpstreamRequests.WithLabelValues(name, mode, outcome).Inc()
	metrics.UpstreamDuration.WithLabelValues(name, mode).Observe(time.Since(start).Seconds())
}
