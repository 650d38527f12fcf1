package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/keyword-cli/internal/classify"
	"github.com/sells-group/keyword-cli/internal/export"
	"github.com/sells-group/keyword-cli/internal/model"
	"github.com/sells-group/keyword-cli/internal/store"
	"github.com/sells-group/keyword-cli/internal/universe"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect saved pipeline sessions",
	Long:  "Commands for listing, viewing, importing and deleting saved sessions.",
}

// -- sessions list --

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved sessions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		stage, _ := cmd.Flags().GetString("stage")
		limit, _ := cmd.Flags().GetInt("limit")

		sessions, err := st.ListSessions(ctx, store.SessionFilter{
			Stage: model.Stage(stage),
			Limit: limit,
		})
		if err != nil {
			return eris.Wrap(err, "sessions list")
		}

		if len(sessions) == 0 {
			fmt.Fprintln(os.Stderr, "No sessions found.")
			return nil
		}

		formatSessionsList(os.Stdout, sessions)
		return nil
	},
}

// -- sessions show --

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show a session's settings and universe statistics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), args[0], func(_ store.Store, sess *model.Session) (bool, error) {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return false, enc.Encode(describeSession(sess))
		})
	},
}

// sessionView is the printable summary of a session.
type sessionView struct {
	ID       string                       `json:"id"`
	Name     string                       `json:"name,omitempty"`
	Stage    model.Stage                  `json:"stage"`
	Settings model.Settings               `json:"settings"`
	Mappings map[string]map[string]string `json:"mappings,omitempty"`
	BatchID  string                       `json:"batch_id,omitempty"`
	Pending  int                          `json:"pending"`
	Sources  []model.Source               `json:"sources,omitempty"`
	Stats    *universe.Stats              `json:"stats,omitempty"`
}

func describeSession(sess *model.Session) sessionView {
	v := sessionView{
		ID:       sess.ID,
		Name:     sess.Name,
		Stage:    sess.Stage,
		Settings: sess.Settings,
		Mappings: sess.Mappings,
		BatchID:  sess.BatchID,
		Pending:  len(sess.Pending),
	}
	t := sess.Master
	if t == nil {
		t = sess.Universe
	}
	if t != nil {
		v.Sources = t.Sources
		stats := universe.Summarize(t)
		v.Stats = &stats
	}
	return v
}

// -- sessions import --

var sessionsImportCmd = &cobra.Command{
	Use:   "import <universe.csv>",
	Short: "Restore a session from an exported universe CSV",
	Long:  "Reads a universe CSV written by finalize or run, infers its sources from the {slug}_position columns and saves it as a new built session ready for classification or finalize.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		f, err := os.Open(args[0])
		if err != nil {
			return eris.Wrap(err, "sessions import: open")
		}
		defer f.Close() //nolint:errcheck

		settings := cfg.Settings()
		owner, _ := cmd.Flags().GetString("owner")
		if owner == "" {
			owner = universe.Slug(settings.BrandName)
		}
		name, _ := cmd.Flags().GetString("name")

		sess, err := importSession(f, owner, name, settings)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.SaveSession(ctx, sess); err != nil {
			return eris.Wrap(err, "sessions import: save session")
		}
		zap.L().Info("session imported",
			zap.String("session", sess.ID),
			zap.Int("keywords", sess.Universe.Len()),
			zap.Int("pending", len(sess.Pending)),
		)
		fmt.Println(sess.ID)
		return nil
	},
}

// importSession builds an unsaved session around a universe CSV. Keywords
// without a journey phase are queued for classification.
func importSession(r io.Reader, owner, name string, settings model.Settings) (*model.Session, error) {
	u, err := export.ReadUniverseCSV(r, owner)
	if err != nil {
		return nil, eris.Wrap(err, "sessions import")
	}
	sess := &model.Session{
		Name:     name,
		Settings: settings,
		Universe: u,
		Pending:  classify.Pending(u),
		Stage:    model.StageBuilt,
	}
	if len(sess.Pending) < u.Len() {
		sess.Stage = model.StageClassified
	}
	return sess, nil
}

// -- sessions delete --

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a saved session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.DeleteSession(ctx, args[0]); err != nil {
			return eris.Wrap(err, "sessions delete")
		}
		zap.L().Info("session deleted", zap.String("session", args[0]))
		return nil
	},
}

func init() {
	sessionsListCmd.Flags().String("stage", "", "filter by stage (built, classifying, classified, finalized)")
	sessionsListCmd.Flags().Int("limit", 50, "max number of sessions to display")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsImportCmd.Flags().String("owner", "", "slug of the owned site's ranking columns (default: slug of cleaning.brand_name)")
	sessionsImportCmd.Flags().String("name", "", "session name")

	sessionsCmd.AddCommand(sessionsImportCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
	rootCmd.AddCommand(sessionsCmd)
}

// formatSessionsList writes a tabular list of sessions to w.
func formatSessionsList(out io.Writer, sessions []model.SessionSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tSTAGE\tKEYWORDS\tUPDATED")
	_, _ = fmt.Fprintln(w, "--\t----\t-----\t--------\t-------")

	for _, s := range sessions {
		name := s.Name
		if len(name) > 30 {
			name = name[:27] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			s.ID,
			name,
			s.Stage,
			s.Keywords,
			s.UpdatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}
