package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/keyword-cli/internal/classify"
	"github.com/sells-group/keyword-cli/internal/config"
	"github.com/sells-group/keyword-cli/internal/model"
	"github.com/sells-group/keyword-cli/internal/store"
)

var (
	finalizeLabels string
	finalizeOut    string
	finalizeFormat string
)

var finalizeCmd = &cobra.Command{
	Use:   "finalize <session-id>",
	Short: "Score the universe and write every subset",
	Long:  "Joins classifications onto the universe, computes business value, opportunity gap and opportunity score, and writes the master table with every applicable subset.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate(config.ModePipeline); err != nil {
			return err
		}

		var labels map[string]model.Classification
		if finalizeLabels != "" {
			var err error
			if labels, err = classify.ReadCSV(ctx, finalizeLabels); err != nil {
				return err
			}
		}

		return withSession(ctx, args[0], func(_ store.Store, sess *model.Session) (bool, error) {
			p, err := newPipeline(nil)
			if err != nil {
				return false, err
			}
			rep, err := p.Finalize(sess, labels)
			if err != nil {
				return false, err
			}
			printLog(os.Stderr, rep.Log)

			files, err := writeViews(outDir(finalizeOut), exportFormat(finalizeFormat), "keyword_universe_"+sess.ID, rep.Views, sess.UpdatedAt)
			if err != nil {
				return false, err
			}
			zap.L().Info("finalize complete",
				zap.String("session", sess.ID),
				zap.Int("views", len(rep.Views)),
				zap.Int("files", len(files)),
			)
			return true, printStats(rep)
		})
	},
}

func outDir(flag string) string {
	if flag != "" {
		return flag
	}
	return cfg.Export.Dir
}

func exportFormat(flag string) string {
	if flag != "" {
		return flag
	}
	return cfg.Export.Format
}

func init() {
	finalizeCmd.Flags().StringVar(&finalizeLabels, "classifications", "", "CSV of extra classifications to join")
	finalizeCmd.Flags().StringVar(&finalizeOut, "out", "", "output directory (default from config)")
	finalizeCmd.Flags().StringVar(&finalizeFormat, "format", "", "export format: csv, xlsx or zip (default from config)")
	rootCmd.AddCommand(finalizeCmd)
}
