package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/keyword-cli/internal/classify"
	"github.com/sells-group/keyword-cli/internal/cleaner"
	"github.com/sells-group/keyword-cli/internal/config"
	"github.com/sells-group/keyword-cli/internal/export"
	"github.com/sells-group/keyword-cli/internal/metrics"
	"github.com/sells-group/keyword-cli/internal/model"
	"github.com/sells-group/keyword-cli/internal/pipeline"
	"github.com/sells-group/keyword-cli/internal/store"
	"github.com/sells-group/keyword-cli/pkg/anthropic"
)

// initStore opens and migrates the configured session store.
func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.Path
		if path == "" {
			path = "keyword.db"
		}
		st, err = store.NewSQLite(path)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
			Schema:   cfg.Store.Schema,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// newPipeline builds the pipeline from config, loading the rules file when
// one is configured.
func newPipeline(m *metrics.Metrics) (*pipeline.Pipeline, error) {
	var engine *cleaner.Engine
	if cfg.Cleaning.RulesFile != "" {
		rules, err := cleaner.LoadRules(cfg.Cleaning.RulesFile)
		if err != nil {
			return nil, err
		}
		if engine, err = cleaner.New(rules); err != nil {
			return nil, err
		}
	}
	return pipeline.New(engine, cfg.Scoring, cfg.Subsets, pipeline.WithMetrics(m)), nil
}

// newClassifier builds a classifier for a session's settings.
func newClassifier(s model.Settings) *classify.Classifier {
	var opts []anthropic.ClientOption
	if cfg.Anthropic.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(cfg.Anthropic.BaseURL))
	}
	opts = append(opts, anthropic.WithMaxRetries(cfg.Anthropic.MaxRetries))
	client := anthropic.NewClient(cfg.Anthropic.Key, opts...)
	return classify.New(client, cfg.Classifier(s))
}

// logProgress reports batch progress while waiting.
func logProgress(b *anthropic.BatchResponse) {
	zap.L().Info("classification batch progress",
		zap.String("batch_id", b.ID),
		zap.String("status", b.ProcessingStatus),
		zap.Int64("succeeded", b.RequestCounts.Succeeded),
		zap.Int64("errored", b.RequestCounts.Errored),
		zap.Int64("total", b.RequestCounts.Total()),
	)
}

// writeViews exports views to dir in the given format and returns the
// files written.
func writeViews(dir, format, name string, views []model.View, modified time.Time) ([]string, error) {
	switch format {
	case "", config.FormatCSV:
		return export.WriteDir(dir, views)
	case config.FormatXLSX:
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrapf(err, "create dir %s", dir)
		}
		path := filepath.Join(dir, name+".xlsx")
		if err := export.SaveWorkbook(path, views); err != nil {
			return nil, err
		}
		return []string{path}, nil
	case config.FormatZip:
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrapf(err, "create dir %s", dir)
		}
		path := filepath.Join(dir, name+".zip")
		f, err := os.Create(path)
		if err != nil {
			return nil, eris.Wrapf(err, "create %s", path)
		}
		if err := export.WriteZip(f, views, modified); err != nil {
			_ = f.Close()
			return nil, err
		}
		return []string{path}, eris.Wrap(f.Close(), "close zip")
	default:
		return nil, eris.Errorf("unknown export format %q", format)
	}
}

// parseMappings parses "file:column=Header" flags into session mappings.
// The file part may be a base file name or a role (main, rankings,
// competitor).
func parseMappings(flags []string) (map[string]map[string]string, error) {
	if len(flags) == 0 {
		return nil, nil
	}
	out := make(map[string]map[string]string)
	for _, f := range flags {
		file, pair, ok := strings.Cut(f, ":")
		if !ok || file == "" {
			return nil, eris.Errorf("invalid mapping %q: want file:column=Header", f)
		}
		col, header, ok := strings.Cut(pair, "=")
		col = strings.TrimSpace(col)
		if !ok || col == "" || strings.TrimSpace(header) == "" {
			return nil, eris.Errorf("invalid mapping %q: want file:column=Header", f)
		}
		if out[file] == nil {
			out[file] = make(map[string]string)
		}
		out[file][col] = strings.TrimSpace(header)
	}
	return out, nil
}

// printLog writes a stage log to w, one line per entry.
func printLog(w io.Writer, log model.Log) {
	for _, line := range log.Lines {
		fmt.Fprintln(w, line)
	}
}
