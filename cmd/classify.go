package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/keyword-cli/internal/classify"
	"github.com/sells-group/keyword-cli/internal/config"
	"github.com/sells-group/keyword-cli/internal/cost"
	"github.com/sells-group/keyword-cli/internal/model"
	"github.com/sells-group/keyword-cli/internal/pipeline"
	"github.com/sells-group/keyword-cli/internal/store"
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify session keywords by journey phase and search intent",
	Long:  "Commands for estimating, submitting, polling, collecting and importing journey phase and search intent classifications for a session's pending keywords.",
}

// withSession opens the store, loads the session, runs fn and saves the
// session when fn reports a change.
func withSession(ctx context.Context, id string, fn func(st store.Store, sess *model.Session) (bool, error)) error {
	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	sess, err := st.GetSession(ctx, id)
	if err != nil {
		return err
	}
	changed, err := fn(st, sess)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	return eris.Wrap(st.SaveSession(ctx, sess), "save session")
}

// -- classify estimate --

var classifyEstimateCmd = &cobra.Command{
	Use:   "estimate <session-id>",
	Short: "Estimate the cost of classifying the pending keywords",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), args[0], func(_ store.Store, sess *model.Session) (bool, error) {
			est := estimate(cfg, len(sess.Pending))
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return false, enc.Encode(est)
		})
	},
}

// estimate projects the cost of n requests under the configured mode.
func estimate(c *config.Config, n int) cost.Estimate {
	cc := c.Classifier(c.Settings())
	isBatch := !cc.NoBatch && n > cc.SmallBatchThreshold
	rates := c.Pricing.Rates()
	if len(rates.Anthropic) == 0 {
		rates = cost.DefaultRates()
	}
	name := cc.Model
	if name == "" {
		name = classify.DefaultConfig().Model
	}
	return cost.NewCalculator(rates).Classification(n, name, isBatch)
}

// -- classify submit --

var classifySubmitCmd = &cobra.Command{
	Use:   "submit <session-id>",
	Short: "Submit the pending keywords as a message batch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate(config.ModeClassify); err != nil {
			return err
		}
		return withSession(ctx, args[0], func(_ store.Store, sess *model.Session) (bool, error) {
			p, err := newPipeline(nil)
			if err != nil {
				return false, err
			}
			if err := p.Submit(ctx, sess, newClassifier(sess.Settings)); err != nil {
				return false, err
			}
			fmt.Println(sess.BatchID)
			return true, nil
		})
	},
}

// -- classify status --

var classifyStatusCmd = &cobra.Command{
	Use:   "status <session-id>",
	Short: "Show the status of a session's submitted batch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate(config.ModeClassify); err != nil {
			return err
		}
		return withSession(ctx, args[0], func(_ store.Store, sess *model.Session) (bool, error) {
			if sess.BatchID == "" {
				return false, eris.Errorf("session %s has no submitted batch", sess.ID)
			}
			batch, err := newClassifier(sess.Settings).Status(ctx, sess.BatchID)
			if err != nil {
				return false, err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return false, enc.Encode(batch)
		})
	},
}

// -- classify collect --

var classifyWait bool

var classifyCollectCmd = &cobra.Command{
	Use:   "collect <session-id>",
	Short: "Collect an ended batch and apply its classifications",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate(config.ModeClassify); err != nil {
			return err
		}
		return withSession(ctx, args[0], func(_ store.Store, sess *model.Session) (bool, error) {
			c := newClassifier(sess.Settings)
			if classifyWait && sess.BatchID != "" {
				if _, err := c.Wait(ctx, sess.BatchID, logProgress); err != nil {
					return false, err
				}
			}
			p, err := newPipeline(nil)
			if err != nil {
				return false, err
			}
			rep, err := p.Collect(ctx, sess, c)
			if err != nil {
				return false, err
			}
			printLog(os.Stderr, rep.Log)
			return true, nil
		})
	},
}

// -- classify cancel --

var classifyCancelCmd = &cobra.Command{
	Use:   "cancel <session-id>",
	Short: "Cancel a session's submitted batch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate(config.ModeClassify); err != nil {
			return err
		}
		return withSession(ctx, args[0], func(_ store.Store, sess *model.Session) (bool, error) {
			if sess.BatchID == "" {
				return false, eris.Errorf("session %s has no submitted batch", sess.ID)
			}
			batch, err := newClassifier(sess.Settings).Cancel(ctx, sess.BatchID)
			if err != nil {
				return false, err
			}
			zap.L().Info("batch cancel requested",
				zap.String("batch_id", batch.ID),
				zap.String("status", batch.ProcessingStatus),
			)
			sess.BatchID = ""
			sess.Stage = model.StageBuilt
			if sess.Universe != nil && len(classify.Pending(sess.Universe)) < sess.Universe.Len() {
				sess.Stage = model.StageClassified
			}
			return true, nil
		})
	},
}

// -- classify run --

var classifyRunCmd = &cobra.Command{
	Use:   "run <session-id>",
	Short: "Classify the pending keywords and wait for the results",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate(config.ModeClassify); err != nil {
			return err
		}
		return withSession(ctx, args[0], func(_ store.Store, sess *model.Session) (bool, error) {
			p, err := newPipeline(nil)
			if err != nil {
				return false, err
			}
			rep, err := p.Classify(ctx, sess, newClassifier(sess.Settings), logProgress)
			if err != nil {
				return false, err
			}
			printLog(os.Stderr, rep.Log)
			return true, nil
		})
	},
}

// -- classify import --

var classifyImportCmd = &cobra.Command{
	Use:   "import <session-id> <classifications.csv>",
	Short: "Apply classifications from a CSV file",
	Long:  "Reads a CSV with keyword, journey_phase and search_intent columns and applies it to the session's universe.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		labels, err := classify.ReadCSV(ctx, args[1])
		if err != nil {
			return err
		}
		return withSession(ctx, args[0], func(_ store.Store, sess *model.Session) (bool, error) {
			p, err := newPipeline(nil)
			if err != nil {
				return false, err
			}
			rep, err := p.Import(sess, labels)
			if err != nil {
				return false, err
			}
			printLog(os.Stderr, rep.Log)
			return true, nil
		})
	},
}

var _ pipeline.Classifier = (*classify.Classifier)(nil)

func init() {
	classifyCollectCmd.Flags().BoolVar(&classifyWait, "wait", false, "poll until the batch ends before collecting")

	classifyCmd.AddCommand(classifyEstimateCmd)
	classifyCmd.AddCommand(classifySubmitCmd)
	classifyCmd.AddCommand(classifyStatusCmd)
	classifyCmd.AddCommand(classifyCollectCmd)
	classifyCmd.AddCommand(classifyCancelCmd)
	classifyCmd.AddCommand(classifyRunCmd)
	classifyCmd.AddCommand(classifyImportCmd)
	rootCmd.AddCommand(classifyCmd)
}
