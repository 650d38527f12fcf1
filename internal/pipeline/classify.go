package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/keyword-cli/internal/classify"
	"github.com/sells-group/keyword-cli/internal/model"
	"github.com/sells-group/keyword-cli/internal/universe"
	"github.com/sells-group/keyword-cli/pkg/anthropic"
)

// StageClassify labels metrics for the classification stage.
const StageClassify = "classify"

// Classifier is the part of classify.Classifier the pipeline drives.
type Classifier interface {
	Submit(ctx context.Context, pending []model.PendingRequest) (string, error)
	Collect(ctx context.Context, batchID string, pending []model.PendingRequest) (*classify.Result, error)
	Run(ctx context.Context, pending []model.PendingRequest, progress func(*anthropic.BatchResponse)) (*classify.Result, error)
}

// Submit sends the session's pending keywords as a batch and records the
// batch id. The session moves to the classifying stage.
func (p *Pipeline) Submit(ctx context.Context, sess *model.Session, c Classifier) error {
	if err := requireUniverse(sess); err != nil {
		return err
	}
	if sess.BatchID != "" {
		return eris.Errorf("pipeline: batch %s already submitted; collect or cancel it first", sess.BatchID)
	}
	if len(sess.Pending) == 0 {
		return eris.New("pipeline: no keywords awaiting classification")
	}
	id, err := c.Submit(ctx, sess.Pending)
	if err != nil {
		return eris.Wrap(err, "pipeline: submit classification")
	}
	sess.BatchID = id
	sess.Stage = model.StageClassifying
	return nil
}

// Collect retrieves the session's submitted batch and applies it to the
// universe.
func (p *Pipeline) Collect(ctx context.Context, sess *model.Session, c Classifier) (*Report, error) {
	if err := requireUniverse(sess); err != nil {
		return nil, err
	}
	if sess.BatchID == "" {
		return nil, eris.New("pipeline: no batch submitted for this session")
	}
	start := time.Now()
	res, err := c.Collect(ctx, sess.BatchID, sess.Pending)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: collect classification")
	}
	rep := p.applyResult(sess, res)
	sess.BatchID = ""
	p.metrics.ObserveStage(StageClassify, start, rep.Applied)
	return rep, nil
}

// Classify runs classification end to end for the session's pending
// keywords, directly or through a batch, and applies the labels.
func (p *Pipeline) Classify(ctx context.Context, sess *model.Session, c Classifier, progress func(*anthropic.BatchResponse)) (*Report, error) {
	if err := requireUniverse(sess); err != nil {
		return nil, err
	}
	start := time.Now()
	res, err := c.Run(ctx, sess.Pending, progress)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: classify")
	}
	rep := p.applyResult(sess, res)
	p.metrics.ObserveStage(StageClassify, start, rep.Applied)
	return rep, nil
}

// Import applies an offline classification file's labels to the universe.
func (p *Pipeline) Import(sess *model.Session, labels map[string]model.Classification) (*Report, error) {
	if err := requireUniverse(sess); err != nil {
		return nil, err
	}
	return p.applyResult(sess, &classify.Result{Labels: labels}), nil
}

func (p *Pipeline) applyResult(sess *model.Session, res *classify.Result) *Report {
	rep := &Report{Stage: StageClassify}
	rep.Log.Append(res.Log)

	rep.Applied = universe.ApplyClassifications(sess.Universe, res.Labels)
	rep.Log.Infof("Applied %d classifications to the universe", rep.Applied)
	sess.Pending = classify.Pending(sess.Universe)
	sess.Stage = model.StageClassified

	p.metrics.AddClassified("succeeded", rep.Applied)
	p.metrics.AddClassified("failed", len(res.Failed))
	p.metrics.AddTokens(res.Usage.InputTokens, res.Usage.OutputTokens)
	zap.L().Info("pipeline: classifications applied",
		zap.String("session", sess.ID),
		zap.Int("applied", rep.Applied),
		zap.Int("failed", len(res.Failed)),
		zap.Int("still_pending", len(sess.Pending)),
	)
	return rep
}

func requireUniverse(sess *model.Session) error {
	if sess.Universe == nil {
		return eris.New("pipeline: session has no universe; run build first")
	}
	return nil
}
