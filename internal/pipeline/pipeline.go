// Package pipeline orchestrates the keyword universe stages: clean, build,
// classification join, scoring and subset generation. All state between
// stages lives on the model.Session passed to each call.
package pipeline

import (
	"context"
	"maps"
	"path/filepath"
	"slices"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/keyword-cli/internal/classify"
	"github.com/sells-group/keyword-cli/internal/cleaner"
	"github.com/sells-group/keyword-cli/internal/ingest"
	"github.com/sells-group/keyword-cli/internal/metrics"
	"github.com/sells-group/keyword-cli/internal/model"
	"github.com/sells-group/keyword-cli/internal/scoring"
	"github.com/sells-group/keyword-cli/internal/subset"
	"github.com/sells-group/keyword-cli/internal/universe"
)

// Stage names used in reports and metrics.
const (
	StageClean    = "clean"
	StageBuild    = "build"
	StageFinalize = "finalize"
	StageSERP     = "serp"
)

// Pipeline runs stages over a session. It holds configuration only and is
// safe to reuse across sessions.
type Pipeline struct {
	engine  *cleaner.Engine
	scorer  *scoring.Scorer
	subsets subset.Options
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMetrics records stage metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithClock sets the clock used for date windows.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a Pipeline. A nil engine uses the bundled cleaning rules.
func New(engine *cleaner.Engine, sc scoring.Config, so subset.Options, opts ...Option) *Pipeline {
	if engine == nil {
		engine = cleaner.Default()
	}
	p := &Pipeline{
		engine:  engine,
		scorer:  scoring.New(sc),
		subsets: so,
		now:     time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Report collects the logs and summaries of one stage.
type Report struct {
	Stage    string                     `json:"stage"`
	Ingest   map[string]ingest.Report   `json:"ingest,omitempty"`
	Cleaning map[string]cleaner.Summary `json:"cleaning,omitempty"`
	Merge    *universe.Report           `json:"merge,omitempty"`
	Applied  int                        `json:"classifications_applied,omitempty"`
	Scoring  *scoring.Report            `json:"scoring,omitempty"`
	Stats    *universe.Stats            `json:"stats,omitempty"`
	Views    []model.View               `json:"-"`
	Log      model.Log                  `json:"log"`
}

// View returns the named view from the report.
func (r *Report) View(name string) (model.View, bool) {
	for _, v := range r.Views {
		if v.Name == name {
			return v, true
		}
	}
	return model.View{}, false
}

// Flags converts session settings to cleaning flags.
func Flags(s model.Settings) cleaner.Flags {
	return cleaner.Flags{
		cleaner.CategoryBrand:         s.RemoveBrand,
		cleaner.CategoryInternational: s.RemoveIntl,
		cleaner.CategoryUnrelated:     s.RemoveUnrelated,
		cleaner.CategoryPhone:         s.RemovePhone,
		cleaner.CategoryJunk:          s.RemoveJunk,
	}
}

func detectOptions(s model.Settings) cleaner.Options {
	return cleaner.Options{
		CompetitorNames: s.CompetitorNames,
		TargetCountry:   s.TargetCountry,
		Industry:        s.Industry,
	}
}

// Clean detects every category on t and removes the enabled ones. The
// detected categories are returned so removed keywords can be reviewed.
func (p *Pipeline) Clean(t *model.Table, s model.Settings) (*model.Table, cleaner.Categories, cleaner.Summary) {
	start := time.Now()
	cats := p.engine.Detect(t, detectOptions(s))
	flags := Flags(s)
	out, sum := cleaner.Filter(t, cats, flags)

	for c, n := range sum.Counts {
		p.metrics.AddDetected(string(c), n)
	}
	p.metrics.AddRemoved(sum.Removed())
	p.metrics.ObserveStage(StageClean, start, out.Len())
	return out, cats, sum
}

// Inputs names the export files of one build.
type Inputs struct {
	Main        string
	Rankings    string
	Competitors []string
}

// Sources loads the input files, honoring the session's column mappings.
// Mappings are keyed by file base name, falling back to the role name.
func (p *Pipeline) Sources(ctx context.Context, sess *model.Session, in Inputs) (*model.Table, []model.SourceTable, map[string]ingest.Report, error) {
	if in.Main == "" {
		return nil, nil, nil, eris.New("pipeline: main keyword file is required")
	}
	reports := make(map[string]ingest.Report)

	load := func(path string, role model.Role) (*model.Table, error) {
		t, rep, err := ingest.ReadFile(ctx, path, ingest.Options{Mapping: mappingFor(sess, path, role)})
		if err != nil {
			return nil, err
		}
		reports[filepath.Base(path)] = rep
		return t, nil
	}

	main, err := load(in.Main, model.RoleMain)
	if err != nil {
		return nil, nil, nil, err
	}

	var additions []model.SourceTable
	if in.Rankings != "" {
		t, err := load(in.Rankings, model.RoleRankings)
		if err != nil {
			return nil, nil, nil, err
		}
		name := sess.Settings.BrandName
		if name == "" {
			name = universe.SourceName(filepath.Base(in.Rankings))
		}
		additions = append(additions, model.SourceTable{Name: name, Role: model.RoleRankings, Table: t})
	}
	for _, path := range in.Competitors {
		t, err := load(path, model.RoleCompetitor)
		if err != nil {
			return nil, nil, nil, err
		}
		additions = append(additions, model.SourceTable{
			Name:  universe.SourceName(filepath.Base(path)),
			Role:  model.RoleCompetitor,
			Table: t,
		})
	}
	return main, additions, reports, nil
}

func mappingFor(sess *model.Session, path string, role model.Role) ingest.Mapping {
	if m, ok := sess.Mappings[filepath.Base(path)]; ok {
		return m
	}
	return sess.Mappings[string(role)]
}

// BuildEarly loads the inputs and builds the universe. See Build.
func (p *Pipeline) BuildEarly(ctx context.Context, sess *model.Session, in Inputs) (*Report, error) {
	main, additions, ingested, err := p.Sources(ctx, sess, in)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load sources")
	}
	rep := p.Build(sess, main, additions...)
	rep.Ingest = ingested

	var log model.Log
	for _, name := range slices.Sorted(maps.Keys(ingested)) {
		log.Append(ingested[name].Log)
	}
	log.Append(rep.Log)
	rep.Log = log
	return rep, nil
}

// Build cleans the main table and every addition with the same rules,
// reduces rankings and competitor tables to their best position per
// keyword, merges them into the universe and queues unclassified keywords.
// The session moves to the built stage.
func (p *Pipeline) Build(sess *model.Session, main *model.Table, additions ...model.SourceTable) *Report {
	start := time.Now()
	rep := &Report{Stage: StageBuild, Cleaning: make(map[string]cleaner.Summary)}

	if main == nil {
		main = model.NewTable()
	}
	cleanMain, _, sum := p.Clean(main, sess.Settings)
	rep.Cleaning[string(model.RoleMain)] = sum
	rep.Log.Append(sum.Log)

	cleaned := make([]model.SourceTable, 0, len(additions))
	for _, add := range additions {
		if add.Table == nil {
			cleaned = append(cleaned, add)
			continue
		}
		t, _, s := p.Clean(add.Table, sess.Settings)
		rep.Cleaning[add.Name] = s
		rep.Log.Append(s.Log)
		if t.Has(model.ColPosition) {
			t = universe.BestPositions(t)
		}
		cleaned = append(cleaned, model.SourceTable{Name: add.Name, Role: add.Role, Table: t})
	}

	u, mrep := universe.Merge(cleanMain, cleaned...)
	rep.Merge = &mrep
	rep.Log.Append(mrep.Log)

	sess.Universe = u
	sess.Master = nil
	sess.BatchID = ""
	sess.Pending = classify.Pending(u)
	sess.Stage = model.StageBuilt
	rep.Log.Infof("%d keywords awaiting classification", len(sess.Pending))

	stats := universe.Summarize(u)
	rep.Stats = &stats
	p.metrics.ObserveStage(StageBuild, start, u.Len())
	zap.L().Info("pipeline: universe built",
		zap.String("session", sess.ID),
		zap.Int("keywords", u.Len()),
		zap.Int("sources", len(u.Sources)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return rep
}

// Finalize joins any extra classifications onto a copy of the universe,
// scores it and generates every applicable subset. The scored copy becomes the session's
// master table; the universe is left untouched.
func (p *Pipeline) Finalize(sess *model.Session, labels map[string]model.Classification) (*Report, error) {
	if sess.Universe == nil {
		return nil, eris.New("pipeline: session has no universe; run build first")
	}
	start := time.Now()
	rep := &Report{Stage: StageFinalize}

	master := sess.Universe.Clone()
	if len(labels) > 0 {
		rep.Applied = universe.ApplyClassifications(master, labels)
		rep.Log.Infof("Applied %d classifications", rep.Applied)
	}
	if pending := len(classify.Pending(master)); pending == master.Len() && pending > 0 {
		rep.Log.Warnf("no keywords are classified; journey and intent weights use the default")
	} else if pending > 0 {
		rep.Log.Warnf("%d keywords are unclassified and score with default weights", pending)
	}

	sc := p.scorer.Score(master)
	rep.Scoring = &sc
	rep.Log.Append(sc.Log)

	res := subset.NewGenerator(p.subsets, p.now).Generate(master)
	rep.Log.Append(res.Log)
	rep.Views = append([]model.View{{Name: "universe", Table: master}}, res.Views...)
	for _, v := range rep.Views {
		p.metrics.SetView(v.Name, v.Len())
	}

	stats := universe.Summarize(master)
	rep.Stats = &stats

	sess.Master = master
	sess.Pending = classify.Pending(master)
	sess.Stage = model.StageFinalized
	p.metrics.ObserveStage(StageFinalize, start, master.Len())
	return rep, nil
}

// Views regenerates the export views of a finalized session without
// re-scoring.
func (p *Pipeline) Views(sess *model.Session) ([]model.View, error) {
	if sess.Master == nil {
		return nil, eris.Errorf("pipeline: session %s is not finalized", sess.ID)
	}
	res := subset.NewGenerator(p.subsets, p.now).Generate(sess.Master)
	return append([]model.View{{Name: "universe", Table: sess.Master}}, res.Views...), nil
}

// SERP slices the scored master table (or the universe before finalize) by
// the requested SERP features and adds the feature summary.
func (p *Pipeline) SERP(sess *model.Session, features []string) (*Report, error) {
	t := sess.Master
	if t == nil {
		t = sess.Universe
	}
	if t == nil {
		return nil, eris.New("pipeline: session has no universe; run build first")
	}
	start := time.Now()
	rep := &Report{Stage: StageSERP}
	if len(features) == 0 {
		for _, f := range subset.Features(t) {
			features = append(features, f.Feature)
		}
	}

	res := subset.NewGenerator(p.subsets, p.now).SERPSlices(t, features)
	rep.Views = res.Views
	rep.Log.Append(res.Log)
	if len(rep.Views) == 0 {
		rep.Log.Warnf("no SERP feature data in this universe")
	}
	p.metrics.ObserveStage(StageSERP, start, len(rep.Views))
	return rep, nil
}

// Removed returns one review view per non-empty category of cats, as
// detected on t by Clean.
func Removed(t *model.Table, cats cleaner.Categories) []model.View {
	removed := cleaner.Removed(t, cats)
	var views []model.View
	for _, c := range cleaner.AllCategories {
		if rt, ok := removed[c]; ok {
			views = append(views, model.View{Name: "removed_" + string(c), Table: rt})
		}
	}
	return views
}
