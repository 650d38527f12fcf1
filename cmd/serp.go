package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/keyword-cli/internal/model"
	"github.com/sells-group/keyword-cli/internal/store"
	"github.com/sells-group/keyword-cli/internal/subset"
)

var serpCmd = &cobra.Command{
	Use:   "serp",
	Short: "Inspect and export SERP feature slices",
}

// -- serp list --

var serpListCmd = &cobra.Command{
	Use:   "list <session-id>",
	Short: "List the SERP features found in a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), args[0], func(_ store.Store, sess *model.Session) (bool, error) {
			t := sess.Master
			if t == nil {
				t = sess.Universe
			}
			if t == nil {
				fmt.Fprintln(os.Stderr, "Session has no universe.")
				return false, nil
			}
			stats := subset.Features(t)
			if len(stats) == 0 {
				fmt.Fprintln(os.Stderr, "No SERP feature data.")
				return false, nil
			}
			formatFeatures(os.Stdout, stats)
			return false, nil
		})
	},
}

func formatFeatures(w io.Writer, stats []subset.FeatureStat) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "FEATURE\tKEYWORDS\tVOLUME\tVALUE")
	for _, s := range stats {
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%.0f\t%.2f\n", s.Feature, s.Count, s.TotalVolume, s.TotalValue)
	}
	_ = tw.Flush()
}

// -- serp export --

var (
	serpFeatures []string
	serpOut      string
	serpFormat   string
)

var serpExportCmd = &cobra.Command{
	Use:   "export <session-id>",
	Short: "Write one file per SERP feature plus the feature summary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), args[0], func(_ store.Store, sess *model.Session) (bool, error) {
			p, err := newPipeline(nil)
			if err != nil {
				return false, err
			}
			rep, err := p.SERP(sess, serpFeatures)
			if err != nil {
				return false, err
			}
			printLog(os.Stderr, rep.Log)
			if len(rep.Views) == 0 {
				return false, nil
			}
			files, err := writeViews(outDir(serpOut), exportFormat(serpFormat), "serp_features_"+sess.ID, rep.Views, time.Now())
			if err != nil {
				return false, err
			}
			zap.L().Info("serp export complete", zap.Strings("files", files))
			return false, nil
		})
	},
}

func init() {
	serpExportCmd.Flags().StringArrayVar(&serpFeatures, "feature", nil, "SERP feature to slice (repeatable; default every feature found)")
	serpExportCmd.Flags().StringVar(&serpOut, "out", "", "output directory (default from config)")
	serpExportCmd.Flags().StringVar(&serpFormat, "format", "", "export format: csv, xlsx or zip (default from config)")

	serpCmd.AddCommand(serpListCmd)
	serpCmd.AddCommand(serpExportCmd)
	rootCmd.AddCommand(serpCmd)
}
