package main

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/keyword-cli/internal/config"
	"github.com/sells-group/keyword-cli/internal/ingest"
	"github.com/sells-group/keyword-cli/internal/model"
	"github.com/sells-group/keyword-cli/internal/pipeline"
)

var (
	cleanOut      string
	cleanMappings []string
	cleanRemoved  bool
)

var cleanCmd = &cobra.Command{
	Use:   "clean <file>",
	Short: "Clean a single keyword export",
	Long:  "Removes brand, international, unrelated, phone number and junk keywords from one export using the configured rules, and writes the cleaned file plus optional per-category review files.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate(config.ModePipeline); err != nil {
			return err
		}

		mappings, err := parseMappings(cleanMappings)
		if err != nil {
			return err
		}
		path := args[0]
		mapping := mappings[filepath.Base(path)]
		if mapping == nil {
			mapping = mappings[string(model.RoleMain)]
		}

		t, rep, err := ingest.ReadFile(ctx, path, ingest.Options{Mapping: mapping})
		if err != nil {
			return eris.Wrap(err, "clean")
		}
		printLog(os.Stderr, rep.Log)

		p, err := newPipeline(nil)
		if err != nil {
			return err
		}
		settings := cfg.Settings()
		out, cats, sum := p.Clean(t, settings)
		printLog(os.Stderr, sum.Log)

		base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		views := []model.View{{Name: base + "_cleaned", Table: out}}
		if cleanRemoved {
			views = append(views, pipeline.Removed(t, cats)...)
		}
		dir := cleanOut
		if dir == "" {
			dir = cfg.Export.Dir
		}
		files, err := writeViews(dir, cfg.Export.Format, base+"_cleaned", views, time.Now())
		if err != nil {
			return eris.Wrap(err, "clean: export")
		}

		zap.L().Info("clean complete",
			zap.Int("initial", sum.Initial),
			zap.Int("final", sum.Final),
			zap.Strings("files", files),
		)
		return nil
	},
}

func init() {
	cleanCmd.Flags().StringVar(&cleanOut, "out", "", "output directory (default from config)")
	cleanCmd.Flags().StringArrayVar(&cleanMappings, "map", nil, "column mapping file:column=Header (repeatable)")
	cleanCmd.Flags().BoolVar(&cleanRemoved, "removed", false, "also write the removed keywords per category")
	rootCmd.AddCommand(cleanCmd)
}
