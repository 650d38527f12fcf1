package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/keyword-cli/internal/classify"
	"github.com/sells-group/keyword-cli/internal/config"
	"github.com/sells-group/keyword-cli/internal/model"
	"github.com/sells-group/keyword-cli/internal/pipeline"
)

var (
	runMain        string
	runRankings    string
	runCompetitors []string
	runMappings    []string
	runLabels      string
	runClassify    bool
	runName        string
	runOut         string
	runFormat      string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the whole pipeline: build, classify, finalize, export",
	Long:  "Builds the universe from the given exports, optionally classifies it (from a CSV or live via Claude), scores it and writes every subset. The session is saved after each stage.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		mode := config.ModePipeline
		if runClassify {
			mode = config.ModeClassify
		}
		if err := cfg.Validate(mode); err != nil {
			return err
		}

		var labels map[string]model.Classification
		if runLabels != "" {
			var err error
			if labels, err = classify.ReadCSV(ctx, runLabels); err != nil {
				return err
			}
		}
		mappings, err := parseMappings(runMappings)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		p, err := newPipeline(nil)
		if err != nil {
			return err
		}

		sess := &model.Session{Name: runName, Settings: cfg.Settings(), Mappings: mappings}
		rep, err := p.BuildEarly(ctx, sess, pipeline.Inputs{
			Main:        runMain,
			Rankings:    runRankings,
			Competitors: runCompetitors,
		})
		if err != nil {
			return err
		}
		printLog(os.Stderr, rep.Log)
		if err := st.SaveSession(ctx, sess); err != nil {
			return eris.Wrap(err, "run: save built session")
		}

		if len(labels) > 0 {
			rep, err := p.Import(sess, labels)
			if err != nil {
				return err
			}
			printLog(os.Stderr, rep.Log)
		}
		if runClassify && len(sess.Pending) > 0 {
			rep, err := p.Classify(ctx, sess, newClassifier(sess.Settings), logProgress)
			if err != nil {
				// the built session stays saved so classification can be retried
				return eris.Wrapf(err, "run: classify session %s", sess.ID)
			}
			printLog(os.Stderr, rep.Log)
			if err := st.SaveSession(ctx, sess); err != nil {
				return eris.Wrap(err, "run: save classified session")
			}
		}

		frep, err := p.Finalize(sess, nil)
		if err != nil {
			return err
		}
		printLog(os.Stderr, frep.Log)
		if err := st.SaveSession(ctx, sess); err != nil {
			return eris.Wrap(err, "run: save finalized session")
		}

		files, err := writeViews(outDir(runOut), exportFormat(runFormat), "keyword_universe_"+sess.ID, frep.Views, sess.UpdatedAt)
		if err != nil {
			return err
		}
		zap.L().Info("run complete",
			zap.String("session", sess.ID),
			zap.Int("keywords", sess.Master.Len()),
			zap.Int("unclassified", len(sess.Pending)),
			zap.Int("files", len(files)),
		)
		return printStats(frep)
	},
}

func init() {
	runCmd.Flags().StringVar(&runMain, "main", "", "main keyword export (required)")
	runCmd.Flags().StringVar(&runRankings, "rankings", "", "your site's rankings export")
	runCmd.Flags().StringArrayVar(&runCompetitors, "competitor", nil, "competitor rankings export (repeatable)")
	runCmd.Flags().StringArrayVar(&runMappings, "map", nil, "column mapping file:column=Header (repeatable)")
	runCmd.Flags().StringVar(&runLabels, "classifications", "", "CSV of classifications to apply")
	runCmd.Flags().BoolVar(&runClassify, "classify", false, "classify pending keywords via Claude")
	runCmd.Flags().StringVar(&runName, "name", "", "session name")
	runCmd.Flags().StringVar(&runOut, "out", "", "output directory (default from config)")
	runCmd.Flags().StringVar(&runFormat, "format", "", "export format: csv, xlsx or zip (default from config)")
	_ = runCmd.MarkFlagRequired("main")
	rootCmd.AddCommand(runCmd)
}
