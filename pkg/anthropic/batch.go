package anthropic

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	defaultBatchPollInitial = 5 * time.Second
	defaultBatchPollCap     = 5 * time.Minute
	defaultBatchPollTimeout = 24 * time.Hour
)

// PollOption configures PollBatch.
type PollOption func(*pollConfig)

type pollConfig struct {
	initial  time.Duration
	cap      time.Duration
	timeout  time.Duration
	progress func(*BatchResponse)
}

// WithPollInterval overrides the initial poll interval.
func WithPollInterval(d time.Duration) PollOption {
	return func(c *pollConfig) { c.initial = d }
}

// WithPollCap overrides the maximum poll interval.
func WithPollCap(d time.Duration) PollOption {
	return func(c *pollConfig) { c.cap = d }
}

// WithPollTimeout bounds polling when ctx has no deadline.
func WithPollTimeout(d time.Duration) PollOption {
	return func(c *pollConfig) { c.timeout = d }
}

// WithProgress is called with every batch status seen while polling.
func WithProgress(fn func(*BatchResponse)) PollOption {
	return func(c *pollConfig) { c.progress = fn }
}

// PollBatch polls GetBatch until the batch ends, doubling the interval up
// to the cap with ±20% jitter. A batch left canceling is reported as an
// error.
func PollBatch(ctx context.Context, client Client, batchID string, opts ...PollOption) (*BatchResponse, error) {
	cfg := pollConfig{
		initial: defaultBatchPollInitial,
		cap:     defaultBatchPollCap,
		timeout: defaultBatchPollTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	interval := cfg.initial
	for {
		batch, err := client.GetBatch(ctx, batchID)
		if err != nil {
			return nil, eris.Wrapf(err, "anthropic: poll batch %s", batchID)
		}
		if cfg.progress != nil {
			cfg.progress(batch)
		}

		switch batch.ProcessingStatus {
		case StatusEnded:
			return batch, nil
		case StatusCanceling:
			return batch, eris.Errorf("anthropic: batch %s is being canceled", batchID)
		}

		select {
		case <-ctx.Done():
			return nil, eris.Wrapf(ctx.Err(), "anthropic: poll batch %s timed out", batchID)
		case <-time.After(interval):
		}
		interval = nextInterval(interval, cfg.cap)
	}
}

func nextInterval(cur, ceiling time.Duration) time.Duration {
	next := min(cur*2, ceiling)
	if span := int64(next) / 5; span > 0 {
		next += time.Duration(rand.Int64N(2*span) - span)
	}
	return next
}

// BatchFailure records a batch item that did not succeed.
type BatchFailure struct {
	CustomID string `json:"custom_id"`
	Type     string `json:"type"`
}

// BatchResults holds the drained contents of an ended batch.
type BatchResults struct {
	Succeeded map[string]*MessageResponse
	Failures  []BatchFailure
	Usage     TokenUsage
}

// CollectBatchResults drains iter, keying succeeded messages by custom id.
// The iterator is always closed.
func CollectBatchResults(iter BatchResultIterator) (*BatchResults, error) {
	defer iter.Close() //nolint:errcheck

	res := &BatchResults{Succeeded: make(map[string]*MessageResponse)}
	for iter.Next() {
		item := iter.Item()
		if item.Type == ResultSucceeded && item.Message != nil {
			res.Succeeded[item.CustomID] = item.Message
			res.Usage.Add(item.Message.Usage)
			continue
		}
		res.Failures = append(res.Failures, BatchFailure{CustomID: item.CustomID, Type: item.Type})
	}
	if err := iter.Err(); err != nil {
		return nil, eris.Wrap(err, "anthropic: collect batch results")
	}

	if len(res.Failures) > 0 {
		zap.L().Warn("anthropic: batch had failed items",
			zap.Int("succeeded", len(res.Succeeded)),
			zap.Int("failed", len(res.Failures)),
		)
	}
	return res, nil
}
