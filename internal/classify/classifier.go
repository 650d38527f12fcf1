// Package classify labels keywords with a journey phase and search intent
// through the Messages API, either directly or as a message batch.
package classify

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/keyword-cli/internal/model"
	"github.com/sells-group/keyword-cli/internal/resilience"
	"github.com/sells-group/keyword-cli/pkg/anthropic"
)

// Config controls how requests are built and sent.
type Config struct {
	Model       string
	MaxTokens   int64
	Temperature float64
	Industry    string
	Phases      []string
	Intents     []string

	// Runs of at most SmallBatchThreshold requests go direct.
	SmallBatchThreshold int
	NoBatch             bool
	Concurrency         int
	RequestsPerSecond   float64

	PollInterval time.Duration
	PollCap      time.Duration
	Retry        resilience.RetryConfig
}

// DefaultConfig returns the classification defaults.
func DefaultConfig() Config {
	return Config{
		Model:               "claude-haiku-4-5-20251001",
		MaxTokens:           150,
		Temperature:         0.3,
		Phases:              Phases(DefaultTemplate, nil),
		Intents:             DefaultIntents,
		SmallBatchThreshold: 50,
		Concurrency:         10,
		RequestsPerSecond:   5,
		PollInterval:        30 * time.Second,
		PollCap:             5 * time.Minute,
		Retry:               resilience.DefaultRetryConfig(),
	}
}

// Result maps keyword text to its classification.
type Result struct {
	Labels  map[string]model.Classification
	Failed  []string
	Usage   anthropic.TokenUsage
	BatchID string
	Log     model.Log
}

// Classifier sends classification requests to the collaborator.
type Classifier struct {
	client anthropic.Client
	cfg    Config
}

// New returns a Classifier. Unset fields of cfg take their defaults.
func New(client anthropic.Client, cfg Config) *Classifier {
	def := DefaultConfig()
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if len(cfg.Phases) == 0 {
		cfg.Phases = def.Phases
	}
	if len(cfg.Intents) == 0 {
		cfg.Intents = def.Intents
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.PollCap <= 0 {
		cfg.PollCap = def.PollCap
	}
	return &Classifier{client: client, cfg: cfg}
}

// Requests builds one request per pending keyword, sharing a cached
// system prompt.
func (c *Classifier) Requests(pending []model.PendingRequest) []anthropic.BatchRequestItem {
	system := anthropic.CachedSystem(systemPrompt)
	temp := c.cfg.Temperature
	items := make([]anthropic.BatchRequestItem, len(pending))
	for i, p := range pending {
		items[i] = anthropic.BatchRequestItem{
			CustomID: p.ID,
			Params: anthropic.MessageRequest{
				Model:       c.cfg.Model,
				MaxTokens:   c.cfg.MaxTokens,
				System:      system,
				Messages:    []anthropic.Message{{Role: "user", Content: Prompt(p.Keyword, c.cfg.Industry, c.cfg.Phases, c.cfg.Intents)}},
				Temperature: &temp,
			},
		}
	}
	return items
}

// Submit creates a message batch for the pending keywords and returns its id.
func (c *Classifier) Submit(ctx context.Context, pending []model.PendingRequest) (string, error) {
	if len(pending) == 0 {
		return "", eris.New("classify: nothing to submit")
	}
	req := anthropic.BatchRequest{Requests: c.Requests(pending)}
	retry := c.retry("create_batch")
	batch, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*anthropic.BatchResponse, error) {
		return c.client.CreateBatch(ctx, req)
	})
	if err != nil {
		return "", eris.Wrap(err, "classify: submit batch")
	}
	zap.L().Info("classify: batch submitted",
		zap.String("batch_id", batch.ID),
		zap.Int("requests", len(pending)),
		zap.String("model", c.cfg.Model),
	)
	return batch.ID, nil
}

// Status fetches the batch's current status.
func (c *Classifier) Status(ctx context.Context, batchID string) (*anthropic.BatchResponse, error) {
	batch, err := resilience.DoVal(ctx, c.retry("get_batch"), func(ctx context.Context) (*anthropic.BatchResponse, error) {
		return c.client.GetBatch(ctx, batchID)
	})
	if err != nil {
		return nil, eris.Wrap(err, "classify: batch status")
	}
	return batch, nil
}

// Cancel asks the collaborator to stop the batch.
func (c *Classifier) Cancel(ctx context.Context, batchID string) (*anthropic.BatchResponse, error) {
	batch, err := c.client.CancelBatch(ctx, batchID)
	if err != nil {
		return nil, eris.Wrap(err, "classify: cancel batch")
	}
	return batch, nil
}

// Wait polls the batch until it ends.
func (c *Classifier) Wait(ctx context.Context, batchID string, progress func(*anthropic.BatchResponse)) (*anthropic.BatchResponse, error) {
	opts := []anthropic.PollOption{
		anthropic.WithPollInterval(c.cfg.PollInterval),
		anthropic.WithPollCap(c.cfg.PollCap),
	}
	if progress != nil {
		opts = append(opts, anthropic.WithProgress(progress))
	}
	batch, err := anthropic.PollBatch(ctx, c.client, batchID, opts...)
	if err != nil {
		return nil, eris.Wrap(err, "classify: wait for batch")
	}
	return batch, nil
}

// Collect retrieves an ended batch's results for the given pending
// requests. Unparseable and failed items are logged and left out.
func (c *Classifier) Collect(ctx context.Context, batchID string, pending []model.PendingRequest) (*Result, error) {
	batch, err := c.Status(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if !batch.Ended() {
		return nil, eris.Errorf("classify: batch %s not ended (status %s)", batchID, batch.ProcessingStatus)
	}

	iter, err := resilience.DoVal(ctx, c.retry("batch_results"), func(ctx context.Context) (anthropic.BatchResultIterator, error) {
		return c.client.GetBatchResults(ctx, batchID)
	})
	if err != nil {
		return nil, eris.Wrap(err, "classify: get batch results")
	}
	results, err := anthropic.CollectBatchResults(iter)
	if err != nil {
		return nil, eris.Wrap(err, "classify: collect batch results")
	}

	res := newResult(batchID)
	res.Usage = results.Usage
	for _, p := range pending {
		msg, ok := results.Succeeded[p.ID]
		if !ok {
			res.fail(p, "no result")
			continue
		}
		res.record(p, msg.Text())
	}
	res.summarize(len(pending))
	return res, nil
}

// Run classifies the pending keywords end to end. Small runs, or any run
// with NoBatch set, go through direct messages; larger runs use a batch.
func (c *Classifier) Run(ctx context.Context, pending []model.PendingRequest, progress func(*anthropic.BatchResponse)) (*Result, error) {
	if len(pending) == 0 {
		return newResult(""), nil
	}
	if c.cfg.NoBatch || len(pending) <= c.cfg.SmallBatchThreshold {
		return c.direct(ctx, pending)
	}

	batchID, err := c.Submit(ctx, pending)
	if err != nil {
		return nil, err
	}
	if _, err := c.Wait(ctx, batchID, progress); err != nil {
		return nil, err
	}
	return c.Collect(ctx, batchID, pending)
}

func (c *Classifier) direct(ctx context.Context, pending []model.PendingRequest) (*Result, error) {
	items := c.Requests(pending)

	var limiter *rate.Limiter
	if c.cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(c.cfg.RequestsPerSecond), max(1, int(c.cfg.RequestsPerSecond)))
	}

	type reply struct {
		text  string
		usage anthropic.TokenUsage
		err   error
	}
	replies := make([]reply, len(items))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)
	retry := c.retry("create_message")
	for i, item := range items {
		g.Go(func() error {
			if limiter != nil {
				if err := limiter.Wait(gCtx); err != nil {
					return eris.Wrap(err, "classify: rate limiter")
				}
			}
			resp, err := resilience.DoVal(gCtx, retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
				return c.client.CreateMessage(ctx, item.Params)
			})
			if err != nil {
				replies[i] = reply{err: err}
				return nil
			}
			replies[i] = reply{text: resp.Text(), usage: resp.Usage}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := newResult("")
	for i, p := range pending {
		r := replies[i]
		res.Usage.Add(r.usage)
		if r.err != nil {
			zap.L().Warn("classify: request failed", zap.String("keyword", p.Keyword), zap.Error(r.err))
			res.fail(p, "request failed")
			continue
		}
		res.record(p, r.text)
	}
	res.summarize(len(pending))
	return res, nil
}

func (c *Classifier) retry(op string) resilience.RetryConfig {
	cfg := c.cfg.Retry
	cfg.OnRetry = resilience.RetryLogger(op)
	return cfg
}

func newResult(batchID string) *Result {
	return &Result{Labels: make(map[string]model.Classification), BatchID: batchID}
}

func (r *Result) record(p model.PendingRequest, text string) {
	cls, ok := Parse(text)
	if !ok {
		r.fail(p, "unparseable reply")
		return
	}
	r.Labels[p.Keyword] = cls
}

func (r *Result) fail(p model.PendingRequest, reason string) {
	r.Failed = append(r.Failed, p.Keyword)
	zap.L().Debug("classify: keyword left unclassified",
		zap.String("id", p.ID),
		zap.String("keyword", p.Keyword),
		zap.String("reason", reason),
	)
}

func (r *Result) summarize(total int) {
	r.Log.Infof("Classified %d of %d keywords", len(r.Labels), total)
	if len(r.Failed) > 0 {
		r.Log.Warnf("%d keywords could not be classified", len(r.Failed))
	}
}
