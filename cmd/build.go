package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/keyword-cli/internal/config"
	"github.com/sells-group/keyword-cli/internal/model"
	"github.com/sells-group/keyword-cli/internal/pipeline"
	"github.com/sells-group/keyword-cli/internal/store"
)

var (
	buildMain        string
	buildRankings    string
	buildCompetitors []string
	buildMappings    []string
	buildSession     string
	buildName        string
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the keyword universe and save it as a session",
	Long:  "Cleans the main export, the rankings export and every competitor export with the same rules, merges them into one universe keyed by keyword and queues every keyword for classification.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate(config.ModePipeline); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		sess := &model.Session{ID: buildSession, Name: buildName}
		if buildSession != "" {
			existing, err := st.GetSession(ctx, buildSession)
			switch {
			case err == nil:
				sess = existing
				if buildName != "" {
					sess.Name = buildName
				}
			case !errors.Is(err, store.ErrNotFound):
				return err
			}
		}
		sess.Settings = cfg.Settings()
		mappings, err := parseMappings(buildMappings)
		if err != nil {
			return err
		}
		if mappings != nil {
			sess.Mappings = mappings
		}

		p, err := newPipeline(nil)
		if err != nil {
			return err
		}
		rep, err := p.BuildEarly(ctx, sess, pipeline.Inputs{
			Main:        buildMain,
			Rankings:    buildRankings,
			Competitors: buildCompetitors,
		})
		if err != nil {
			return err
		}
		printLog(os.Stderr, rep.Log)

		if err := st.SaveSession(ctx, sess); err != nil {
			return eris.Wrap(err, "build: save session")
		}

		zap.L().Info("build complete",
			zap.String("session", sess.ID),
			zap.Int("keywords", sess.Universe.Len()),
			zap.Int("pending", len(sess.Pending)),
		)
		fmt.Println(sess.ID)
		return printStats(rep)
	},
}

func printStats(rep *pipeline.Report) error {
	if rep.Stats == nil {
		return nil
	}
	enc := json.NewEncoder(os.Stderr)
	enc.SetIndent("", "  ")
	return enc.Encode(rep.Stats)
}

func init() {
	buildCmd.Flags().StringVar(&buildMain, "main", "", "main keyword export (required)")
	buildCmd.Flags().StringVar(&buildRankings, "rankings", "", "your site's rankings export")
	buildCmd.Flags().StringArrayVar(&buildCompetitors, "competitor", nil, "competitor rankings export (repeatable)")
	buildCmd.Flags().StringArrayVar(&buildMappings, "map", nil, "column mapping file:column=Header (repeatable)")
	buildCmd.Flags().StringVar(&buildSession, "session", "", "rebuild an existing session")
	buildCmd.Flags().StringVar(&buildName, "name", "", "session name")
	_ = buildCmd.MarkFlagRequired("main")
	rootCmd.AddCommand(buildCmd)
}
